// Package validator checks a statechart document before the engine builds an
// activation graph from it: structural schema validation (XSD for SCXML
// input, JSON Schema for SCJSON input) plus semantic rules that no schema
// language can express (unresolved targets, history placement, initial
// resolution). Diagnostics are designed to be useful to both humans and
// machines driving a conformance harness.
package validator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/agentflare-ai/go-xmldom"

	"github.com/agentflare-ai/scjson-go/document"
	"github.com/agentflare-ai/scjson-go/jsonload"
	"github.com/agentflare-ai/scjson-go/xmlload"
)

// Severity represents the severity level of a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Diagnostic describes one validation issue found in the document.
type Diagnostic struct {
	Severity  Severity `json:"severity"`
	Code      string   `json:"code"`
	Message   string   `json:"message"`
	StateID   string   `json:"state_id,omitempty"`
	Tag       string   `json:"tag,omitempty"`
	Attribute string   `json:"attribute,omitempty"`
	Hints     []string `json:"hints,omitempty"`
}

// Result is the aggregate validation result.
type Result struct {
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// HasErrors returns true if there is at least one error severity diagnostic.
func (r *Result) HasErrors() bool {
	for _, d := range r.Diagnostics {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Add appends diagnostics to the result.
func (r *Result) Add(diags ...Diagnostic) {
	r.Diagnostics = append(r.Diagnostics, diags...)
}

// Config controls validator behavior. The zero value is usable: LAX
// treatment, default semantic rules, no schema passes.
type Config struct {
	// Strict maps selected warnings to errors and makes unknown constructs
	// fatal instead of recorded-and-skipped.
	Strict bool

	// SourceName is an optional source name for reporting.
	SourceName string

	// SchemaBasePath is the base directory used to resolve schema locations
	// referenced by xmlns declarations in SCXML input.
	SchemaBasePath string

	// XSDValidation enables the XSD pass for SCXML input. Requires the
	// schemas referenced by the document's xmlns declarations to be
	// resolvable under SchemaBasePath.
	XSDValidation bool

	// JSONSchemaPath, when set, points at the SCJSON JSON Schema file used
	// to validate SCJSON input before semantic analysis.
	JSONSchemaPath string

	// SemanticRules allows injection of custom semantic validators.
	// If nil, DefaultSemanticRules() is used. Set to an empty slice to
	// disable semantic validation.
	SemanticRules []SemanticRule
}

// Validator validates SCXML/SCJSON statechart sources.
type Validator struct {
	config Config
}

// New creates a Validator with the given config.
func New(config Config) *Validator {
	return &Validator{config: config}
}

func (v *Validator) rules() []SemanticRule {
	if v.config.SemanticRules == nil {
		return DefaultSemanticRules()
	}
	return v.config.SemanticRules
}

func (v *Validator) loadMode() xmlload.Mode {
	if v.config.Strict {
		return xmlload.ModeStrict
	}
	return xmlload.ModeLax
}

// ValidateXML parses and validates SCXML source. The parsed document is
// returned alongside the result so callers can hand it straight to the
// engine when validation passes; it is nil when parsing itself failed.
func (v *Validator) ValidateXML(ctx context.Context, source string) (*Result, *document.Document, error) {
	result := &Result{}

	if v.config.XSDValidation {
		decoder := xmldom.NewDecoderFromBytes([]byte(source))
		dom, err := decoder.Decode()
		if err != nil {
			result.Add(Diagnostic{
				Severity: SeverityError,
				Code:     "E001",
				Message:  fmt.Sprintf("XML parse failed: %v", err),
			})
			return result, nil, nil
		}
		result.Add(v.validateXSD(ctx, dom, source)...)
	}

	doc, err := xmlload.Load(source, v.sourceName(), v.loadMode())
	if err != nil {
		result.Add(Diagnostic{
			Severity: SeverityError,
			Code:     "E002",
			Message:  fmt.Sprintf("document build failed: %v", err),
		})
		return result, nil, nil
	}

	v.runSemanticRules(doc, result)
	return result, doc, nil
}

// ValidateJSON parses and validates SCJSON source.
func (v *Validator) ValidateJSON(ctx context.Context, source string) (*Result, *document.Document, error) {
	result := &Result{}

	if v.config.JSONSchemaPath != "" {
		result.Add(v.validateJSONSchema(ctx, source)...)
	}

	mode := jsonload.ModeLax
	if v.config.Strict {
		mode = jsonload.ModeStrict
	}
	doc, err := jsonload.Load(source, v.sourceName(), mode)
	if err != nil {
		result.Add(Diagnostic{
			Severity: SeverityError,
			Code:     "E002",
			Message:  fmt.Sprintf("document build failed: %v", err),
		})
		return result, nil, nil
	}

	v.runSemanticRules(doc, result)
	return result, doc, nil
}

func (v *Validator) runSemanticRules(doc *document.Document, result *Result) {
	for _, rule := range v.rules() {
		diags := rule.Validate(doc, v.config)
		if len(diags) > 0 {
			slog.Debug("semantic rule reported diagnostics", "rule", rule.Name(), "count", len(diags))
		}
		result.Add(diags...)
	}
}

func (v *Validator) sourceName() string {
	if v.config.SourceName != "" {
		return v.config.SourceName
	}
	return "<string>"
}

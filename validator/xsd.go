package validator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/agentflare-ai/go-xmldom"
	"github.com/agentflare-ai/go-xsd"
)

// validateXSD runs the XSD pass over a parsed DOM: schemas are resolved from
// the document's own xmlns declarations relative to Config.SchemaBasePath,
// so a chart carrying vendor-extension namespaces validates against the
// vendor's schema as well as the SCXML one.
func (v *Validator) validateXSD(_ context.Context, dom xmldom.Document, source string) []Diagnostic {
	loader, err := xsd.NewSchemaLoader(xsd.SchemaLoaderConfig{
		BaseDir: v.config.SchemaBasePath,
	})
	if err != nil {
		return []Diagnostic{{
			Severity: SeverityError,
			Code:     "E003",
			Message:  fmt.Sprintf("failed to create schema loader: %v", err),
		}}
	}

	namespaces := xsd.ExtractNamespaces(dom)
	schema, err := loader.LoadSchemasFromNamespaces(namespaces)
	if err != nil {
		// LAX treats an unloadable schema as a warning and lets the semantic
		// pass carry the validation burden on its own.
		sev := SeverityWarning
		if v.config.Strict {
			sev = SeverityError
		}
		return []Diagnostic{{
			Severity: sev,
			Code:     "E003",
			Message:  fmt.Sprintf("failed to load schemas from xmlns declarations: %v", err),
		}}
	}

	xsdVal := xsd.NewValidator(schema)
	violations := xsdVal.Validate(dom)
	converter := xsd.NewDiagnosticConverter(v.sourceName(), source)
	xsdDiags := converter.Convert(violations)

	slog.Debug("xsd validation complete", "violations", len(xsdDiags))

	diags := make([]Diagnostic, 0, len(xsdDiags))
	for _, xd := range xsdDiags {
		diags = append(diags, Diagnostic{
			Severity:  Severity(xd.Severity),
			Code:      xd.Code,
			Message:   xd.Message,
			Tag:       xd.Tag,
			Attribute: xd.Attribute,
			Hints:     xd.Hints,
		})
	}
	return diags
}

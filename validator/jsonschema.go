package validator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/agentflare-ai/go-jsonschema"
)

// LoadJSONSchema reads and parses a JSON Schema file.
func LoadJSONSchema(path string) (*jsonschema.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file %s: %w", path, err)
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("failed to parse JSON schema from %s: %w", path, err)
	}
	return &schema, nil
}

// validateJSONSchema checks SCJSON source against the configured schema
// before any semantic analysis runs.
func (v *Validator) validateJSONSchema(_ context.Context, source string) []Diagnostic {
	schema, err := LoadJSONSchema(v.config.JSONSchemaPath)
	if err != nil {
		return []Diagnostic{{
			Severity: SeverityError,
			Code:     "E004",
			Message:  err.Error(),
		}}
	}

	var doc any
	if err := json.Unmarshal([]byte(source), &doc); err != nil {
		return []Diagnostic{{
			Severity: SeverityError,
			Code:     "E001",
			Message:  fmt.Sprintf("JSON parse failed: %v", err),
		}}
	}

	validation := jsonschema.ValidateDocument(doc, schema)
	if validation.Valid {
		return nil
	}
	diags := make([]Diagnostic, 0, len(validation.Errors))
	for _, verr := range validation.Errors {
		diags = append(diags, Diagnostic{
			Severity: SeverityError,
			Code:     "E005",
			Message:  verr.Message,
		})
	}
	return diags
}

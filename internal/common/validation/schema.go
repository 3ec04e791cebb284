package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// QueryRequestSchema describes the body of POST /docs. Emptiness of the
// question is checked by the orchestrator so that both the HTTP and the
// workflow entry points share one rule.
const QueryRequestSchema = `{
  "type": "object",
  "required": ["question"],
  "properties": {
    "question":         {"type": "string"},
    "requestSessionId": {"type": ["string", "null"], "maxLength": 100},
    "modelId":          {"type": ["string", "null"], "maxLength": 256}
  }
}`

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Summary joins all errors into one line, sorted for stable output.
func (r *ValidationResult) Summary() string {
	parts := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// Validator checks JSON documents against a compiled schema.
type Validator struct {
	schema *gojsonschema.Schema
}

// NewValidator compiles a JSON schema.
func NewValidator(schemaJSON string) (*Validator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// NewQueryRequestValidator compiles QueryRequestSchema.
func NewQueryRequestValidator() (*Validator, error) {
	return NewValidator(QueryRequestSchema)
}

// ValidateBytes validates a raw JSON document. Malformed JSON is an error,
// schema violations are reported in the result.
func (v *Validator) ValidateBytes(document []byte) (*ValidationResult, error) {
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(document))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return toResult(result), nil
}

// ValidateInput validates an already decoded document.
func (v *Validator) ValidateInput(input map[string]interface{}) (*ValidationResult, error) {
	result, err := v.schema.Validate(gojsonschema.NewGoLoader(input))
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	return toResult(result), nil
}

func toResult(result *gojsonschema.Result) *ValidationResult {
	out := &ValidationResult{Valid: result.Valid()}
	for _, e := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   e.Field(),
			Message: e.Description(),
			Code:    strings.ToUpper(e.Type()),
		})
	}
	return out
}

// Package llm is the black-box LM completion call: an Executor interface
// with an HTTP implementation (Anthropic/OpenAI SDKs) and a CLI-subprocess
// fallback, plus structured-response validation, token estimation, and
// per-model cost accounting.
package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Validator checks an LM's structured JSON response against a compiled
// schema, extracting JSON from surrounding prose or fenced code blocks
// if necessary. Grounded on the teacher's internal/engine/structured.go.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles schemaJSON once for repeated use.
func NewValidator(schemaJSON json.RawMessage) (*Validator, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(schemaJSON)))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema json: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// ValidationError describes why a response failed schema validation.
type ValidationError struct {
	Message string
	Raw     string
}

func (e *ValidationError) Error() string { return e.Message }

// Validate extracts JSON from responseText and checks it against the
// schema, returning the extracted JSON text on success.
func (v *Validator) Validate(responseText string) (string, error) {
	jsonStr := extractJSON(responseText)
	if jsonStr == "" {
		return "", &ValidationError{Message: "response does not contain valid JSON", Raw: responseText}
	}
	parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(jsonStr))
	if err != nil {
		return "", &ValidationError{Message: fmt.Sprintf("invalid json: %s", err), Raw: responseText}
	}
	if err := v.schema.Validate(parsed); err != nil {
		return "", &ValidationError{Message: fmt.Sprintf("schema validation failed: %s", err), Raw: responseText}
	}
	return jsonStr, nil
}

func extractJSON(text string) string {
	if idx := strings.Index(text, "```json"); idx >= 0 {
		start := idx + len("```json")
		if start < len(text) && text[start] == '\n' {
			start++
		}
		if end := strings.Index(text[start:], "```"); end >= 0 {
			candidate := strings.TrimSpace(text[start : start+end])
			if candidate != "" {
				return candidate
			}
		}
	}
	for i := 0; i < len(text); i++ {
		if text[i] == '{' || text[i] == '[' {
			candidate := extractBalanced(text[i:])
			if candidate != "" && isJSON(candidate) {
				return candidate
			}
		}
	}
	return ""
}

func isJSON(s string) bool {
	var v any
	return json.Unmarshal([]byte(s), &v) == nil
}

func extractBalanced(s string) string {
	if len(s) == 0 {
		return ""
	}
	open := s[0]
	var closeCh byte
	switch open {
	case '{':
		closeCh = '}'
	case '[':
		closeCh = ']'
	default:
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		if ch == open {
			depth++
		} else if ch == closeCh {
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}

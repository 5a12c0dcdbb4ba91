package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/stratagem/pkg/schema"
)

// graphSchemaJSON is the JSON Schema for inbound graph payloads.
// Embedded as a constant to avoid filesystem dependencies.
const graphSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://stratagem.dev/schemas/graph.json",
  "type": "object",
  "required": ["steps"],
  "properties": {
    "id": { "type": "string" },
    "name": { "type": "string" },
    "description": { "type": "string" },
    "site_id": { "type": "string" },
    "record_type": { "type": "string" },
    "steps": {
      "type": "array",
      "items": { "$ref": "#/$defs/step" }
    },
    "order": {
      "type": "array",
      "items": { "type": "string" }
    },
    "created_at": { "type": "string" },
    "updated_at": { "type": "string" }
  },
  "additionalProperties": false,
  "$defs": {
    "step": {
      "type": "object",
      "required": ["id"],
      "properties": {
        "id": {
          "type": "string",
          "minLength": 1
        },
        "display_name": { "type": "string" },
        "search_name": { "type": "string" },
        "record_type": { "type": "string" },
        "parameters": { "type": "object" },
        "operator": {
          "type": "string",
          "enum": ["UNION", "INTERSECT", "NOT"]
        },
        "primary_input": { "type": "string" },
        "secondary_input": { "type": "string" },
        "result_count": { "type": "integer" }
      },
      "additionalProperties": false
    }
  }
}`

// PayloadValidator validates inbound graph payloads and step parameters
// against JSON Schema Draft 2020-12. It is safe for concurrent use.
type PayloadValidator struct {
	graphSchema *jsonschema.Schema

	// mu guards the cache for dynamic parameter-schema compilation.
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// NewPayloadValidator creates a PayloadValidator with the graph schema
// pre-compiled.
func NewPayloadValidator() (*PayloadValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(graphSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal graph schema: %w", err)
	}
	if err := c.AddResource("https://stratagem.dev/schemas/graph.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add graph schema resource: %w", err)
	}

	gs, err := c.Compile("https://stratagem.dev/schemas/graph.json")
	if err != nil {
		return nil, fmt.Errorf("compile graph schema: %w", err)
	}

	return &PayloadValidator{
		graphSchema: gs,
		cache:       make(map[string]*jsonschema.Schema),
	}, nil
}

// ValidateGraphPayload validates a raw graph payload document. Duplicate
// step ids are checked here because JSON Schema cannot express them.
func (v *PayloadValidator) ValidateGraphPayload(raw []byte) error {
	if len(raw) == 0 {
		return schema.NewError(schema.ErrCodeValidation, "graph payload is empty")
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return schema.NewError(schema.ErrCodeParse, "graph payload is not valid JSON").WithCause(err)
	}

	if err := v.graphSchema.Validate(doc); err != nil {
		return toStratagemError(err)
	}

	var payload struct {
		Steps []struct {
			ID string `json:"id"`
		} `json:"steps"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return schema.NewError(schema.ErrCodeParse, "graph payload is not valid JSON").WithCause(err)
	}
	seen := make(map[string]struct{}, len(payload.Steps))
	for _, step := range payload.Steps {
		if _, exists := seen[step.ID]; exists {
			return schema.NewErrorf(schema.ErrCodeValidation, "duplicate step id %q", step.ID)
		}
		seen[step.ID] = struct{}{}
	}

	return nil
}

// ValidateParameters validates a step's parameters against a search's
// parameter schema, provided as raw bytes. The schema is compiled and cached
// for subsequent calls with the same schema.
func (v *PayloadValidator) ValidateParameters(params map[string]any, paramSchema []byte) error {
	if len(paramSchema) == 0 {
		return nil // no schema means no validation needed
	}
	if params == nil {
		params = map[string]any{}
	}

	compiled, err := v.getOrCompile(paramSchema)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "invalid parameter schema").WithCause(err)
	}

	// Round-trip so numbers become json.Number, as the library requires.
	doc, err := toJSONValue(params)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize parameters").WithCause(err)
	}

	if err := compiled.Validate(doc); err != nil {
		return toStratagemError(err)
	}

	return nil
}

// getOrCompile returns a cached compiled schema or compiles and caches a new one.
func (v *PayloadValidator) getOrCompile(schemaBytes []byte) (*jsonschema.Schema, error) {
	key := string(schemaBytes)

	v.mu.RLock()
	if cached, ok := v.cache[key]; ok {
		v.mu.RUnlock()
		return cached, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	// Double-check after acquiring write lock.
	if cached, ok := v.cache[key]; ok {
		return cached, nil
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(key))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	// Each dynamic schema gets a unique URL to avoid compiler collisions.
	url := fmt.Sprintf("stratagem://param-schema/%d", len(v.cache))

	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	v.cache[key] = compiled
	return compiled, nil
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toStratagemError converts a jsonschema.ValidationError into a
// StratagemError with itemized violation messages.
func toStratagemError(err error) *schema.StratagemError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error
// messages with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}

package tools

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/mark3labs/mcp-go/mcp"
)

// ArgumentError reports the first argument that does not satisfy a tool's
// schema. Field is empty when the arguments as a whole are unusable.
type ArgumentError struct {
	Field  string
	Reason string
}

func (e *ArgumentError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// dateFormat marks a string property as a YYYY-MM-DD calendar date.
func dateFormat() mcp.PropertyOption {
	return func(schema map[string]any) {
		schema["format"] = "date"
		schema["pattern"] = `^\d{4}-\d{2}-\d{2}$`
	}
}

// argumentSchema is a tool's input schema resolved for validation. The
// whole-object schema decides whether a call is valid; the per-property
// schemas only locate the offending field once it is not.
type argumentSchema struct {
	tool     string
	object   *jsonschema.Resolved
	props    map[string]*jsonschema.Resolved
	required []string
	dates    []string
}

func compileSchema(tool mcp.Tool) (*argumentSchema, error) {
	raw, err := json.Marshal(tool.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("tools: %s: failed to encode schema: %w", tool.Name, err)
	}
	var object jsonschema.Schema
	if err := json.Unmarshal(raw, &object); err != nil {
		return nil, fmt.Errorf("tools: %s: failed to decode schema: %w", tool.Name, err)
	}
	if object.Type == "" {
		object.Type = "object"
	}
	// Arguments the tool does not declare are rejected.
	object.AdditionalProperties = &jsonschema.Schema{Not: &jsonschema.Schema{}}

	resolved, err := object.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("tools: %s: invalid schema: %w", tool.Name, err)
	}

	s := &argumentSchema{
		tool:     tool.Name,
		object:   resolved,
		props:    make(map[string]*jsonschema.Resolved, len(tool.InputSchema.Properties)),
		required: tool.InputSchema.Required,
	}
	for name, def := range tool.InputSchema.Properties {
		prop, err := resolveProperty(def)
		if err != nil {
			return nil, fmt.Errorf("tools: %s.%s: invalid schema: %w", tool.Name, name, err)
		}
		s.props[name] = prop
		if m, ok := def.(map[string]any); ok && m["format"] == "date" {
			s.dates = append(s.dates, name)
		}
	}
	sort.Strings(s.dates)
	return s, nil
}

// resolveProperty decodes a property definition into its own schema tree so
// it shares no nodes with the whole-object schema.
func resolveProperty(def any) (*jsonschema.Resolved, error) {
	raw, err := json.Marshal(def)
	if err != nil {
		return nil, err
	}
	var prop jsonschema.Schema
	if err := json.Unmarshal(raw, &prop); err != nil {
		return nil, err
	}
	return prop.Resolve(nil)
}

// validate checks args against the schema. Null values count as absent.
func (s *argumentSchema) validate(args map[string]any) error {
	present := make(map[string]any, len(args))
	for k, v := range args {
		if v != nil {
			present[k] = v
		}
	}

	if err := s.object.Validate(present); err != nil {
		return s.locate(present, err)
	}

	// jsonschema treats format as an annotation; dates are checked here.
	for _, name := range s.dates {
		v, ok := present[name].(string)
		if !ok {
			continue
		}
		if _, err := time.Parse("2006-01-02", v); err != nil {
			return &ArgumentError{Field: name, Reason: "must be a date in YYYY-MM-DD format"}
		}
	}
	return nil
}

// locate turns a whole-object validation failure into an ArgumentError
// naming the first offending field.
func (s *argumentSchema) locate(args map[string]any, cause error) error {
	for _, field := range s.required {
		if _, ok := args[field]; !ok {
			return &ArgumentError{Field: field, Reason: "is required"}
		}
	}

	// Sorted so the reported field is stable.
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		prop, known := s.props[key]
		if !known {
			return &ArgumentError{Field: key, Reason: "is not a parameter of " + s.tool}
		}
		if err := prop.Validate(args[key]); err != nil {
			return &ArgumentError{Field: key, Reason: schemaReason(err)}
		}
	}

	return &ArgumentError{Reason: schemaReason(cause)}
}

// schemaReason drops the "validating <path>: " prefixes jsonschema wraps
// its errors in.
func schemaReason(err error) string {
	msg := err.Error()
	for strings.HasPrefix(msg, "validating ") {
		i := strings.Index(msg, ": ")
		if i < 0 {
			break
		}
		msg = msg[i+2:]
	}
	return msg
}

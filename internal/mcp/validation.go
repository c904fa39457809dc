// validation.go - Argument decoding with unknown-parameter warnings.
package mcp

import (
	"encoding/json"
	"fmt"
	"sort"
)

// decodeArgs unmarshals args into v and returns warnings for top-level keys
// the tool schema does not declare, which surfaces misspelled parameters.
func decodeArgs(args json.RawMessage, schema map[string]any, v any) ([]string, error) {
	if len(args) == 0 || string(args) == "null" {
		return nil, nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return nil, err
	}
	return unknownParams(args, schema), nil
}

// unknownParams checks incoming keys against the schema's properties.
func unknownParams(args json.RawMessage, schema map[string]any) []string {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(args, &raw); err != nil {
		return nil
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		return nil
	}
	var warnings []string
	for k := range raw {
		if _, known := props[k]; !known {
			warnings = append(warnings, fmt.Sprintf("unknown parameter '%s' (ignored)", k))
		}
	}
	sort.Strings(warnings)
	return warnings
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

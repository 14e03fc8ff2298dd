/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package harness

import (
	"fmt"
	"strings"

	"github.com/marcus-qen/governor/internal/contract"
)

// validateOutput checks that every field listed as required in schema
// is present in parsed and of a permitted type (spec.md §4.3). On the
// first problem found, it returns the offending field name and a
// description; ("", "") means validation passed.
func validateOutput(schema contract.OutputSchema, parsed map[string]any) (field string, problem string) {
	for _, name := range schema.Required {
		val, ok := parsed[name]
		if !ok {
			return name, "required field is missing"
		}
		prop := schema.Properties[name]
		if prop.Type == "" {
			continue
		}
		if !matchesType(val, prop.Type) {
			return name, fmt.Sprintf("expected type %q, got %s", prop.Type, jsonTypeName(val))
		}
	}
	return "", ""
}

func matchesType(val any, want string) bool {
	switch want {
	case "string":
		_, ok := val.(string)
		return ok
	case "number":
		_, ok := val.(float64)
		return ok
	case "integer":
		f, ok := val.(float64)
		return ok && f == float64(int64(f))
	case "boolean":
		_, ok := val.(bool)
		return ok
	case "array":
		_, ok := val.([]any)
		return ok
	case "object":
		_, ok := val.(map[string]any)
		return ok
	default:
		return true
	}
}

func jsonTypeName(val any) string {
	switch val.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return "unknown"
	}
}

// renderPrompt substitutes {{field}} placeholders in the agent's prompt
// with values from input, matching the teacher's SKILL.md templating
// convention for assembled prompts.
func renderPrompt(promptTemplate string, input map[string]any) (string, error) {
	out := promptTemplate
	for key, val := range input {
		placeholder := "{{" + key + "}}"
		if !strings.Contains(out, placeholder) {
			continue
		}
		out = strings.ReplaceAll(out, placeholder, fmt.Sprintf("%v", val))
	}
	return out, nil
}

/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package harness

import (
	"strings"
	"time"

	"github.com/marcus-qen/governor/internal/contract"
)

// simulateOutput synthesizes a minimal output matching schema, filling
// every required field with a schema-appropriate default (spec.md
// §4.3): empty arrays, zero numbers, sentinel strings, ISO timestamps
// from the current wall clock for fields that read as timestamps.
func simulateOutput(schema contract.OutputSchema) map[string]any {
	out := make(map[string]any, len(schema.Required))
	for _, name := range schema.Required {
		prop := schema.Properties[name]
		out[name] = defaultForProperty(name, prop)
	}
	return out
}

func defaultForProperty(name string, prop contract.PropertySchema) any {
	switch prop.Type {
	case "array":
		return []any{}
	case "object":
		return map[string]any{}
	case "number", "integer":
		return 0
	case "boolean":
		return false
	case "string":
		if looksLikeTimestampField(name) {
			return time.Now().UTC().Format(time.RFC3339)
		}
		return "simulated"
	default:
		return "simulated"
	}
}

func looksLikeTimestampField(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, "_at") || strings.Contains(lower, "timestamp") || strings.Contains(lower, "time")
}

/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package projector implements the State Projector (spec.md §4.5): a
// small path language for turning a chain's state bag into the input
// of its next step.
//
// Grammar:
//   - empty/null mapping  -> the entire state bag
//   - "$.key"             -> the single value at key
//   - "$.a,$.b,..."       -> a merged object of top-level keys a, b, ...,
//     later keys shadowing earlier ones on collision
package projector

import (
	"strings"
)

// Warning describes a non-fatal condition surfaced during projection,
// destined for the audit record of the step that triggered it (spec.md
// §4.5: "later keys shadow earlier ones on collision, with a warning in
// the audit record").
type Warning struct {
	Message string
}

// Project evaluates mapping against state and returns the projected
// value along with any shadowing warnings.
func Project(mapping string, state map[string]any) (any, []Warning) {
	mapping = strings.TrimSpace(mapping)
	if mapping == "" {
		return copyMap(state), nil
	}

	keys := splitKeys(mapping)
	if len(keys) == 1 {
		key := keys[0]
		val, ok := state[key]
		if !ok {
			return nil, nil
		}
		return val, nil
	}

	merged := make(map[string]any, len(keys))
	seen := make(map[string]bool, len(keys))
	var warnings []Warning
	for _, key := range keys {
		if seen[key] {
			warnings = append(warnings, Warning{Message: "duplicate projection key shadows earlier value: " + key})
		}
		seen[key] = true
		if val, ok := state[key]; ok {
			merged[key] = val
		} else {
			merged[key] = nil
		}
	}
	return merged, warnings
}

// splitKeys turns "$.a,$.b" into ["a","b"]. Each comma-separated term
// must begin with "$.".
func splitKeys(mapping string) []string {
	parts := strings.Split(mapping, ",")
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.TrimPrefix(p, "$.")
		if p != "" {
			keys = append(keys, p)
		}
	}
	return keys
}

func copyMap(state map[string]any) map[string]any {
	out := make(map[string]any, len(state))
	for k, v := range state {
		out[k] = v
	}
	return out
}

// Lookup resolves a single "$.key" reference against state, returning
// (value, present). Absent keys resolve to (nil, false) rather than
// aborting; callers (the Harness's precheck stage) decide whether an
// absent required field is an error (spec.md §4.5).
func Lookup(key string, state map[string]any) (any, bool) {
	key = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(key), "$."))
	val, ok := state[key]
	return val, ok
}

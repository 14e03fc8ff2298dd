/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package contract parses agent contract files into the typed
// AgentDefinition model and resolves the write-path permission boundary
// for each permission class.
package contract

// Class is the permission class a contract is classified into. The class
// determines the write-path boundary the Harness enforces before any
// provider call (spec.md §3, §4.1).
type Class string

const (
	ClassReadOnlyScan      Class = "read-only-scan"
	ClassPlanningSynthesis Class = "planning-synthesis"
	ClassRegistryState     Class = "registry-state"
	ClassWriteGated        Class = "write-gated"
	ClassControlPlane      Class = "control-plane"
)

// Valid reports whether c is one of the five closed permission classes.
func (c Class) Valid() bool {
	switch c {
	case ClassReadOnlyScan, ClassPlanningSynthesis, ClassRegistryState, ClassWriteGated, ClassControlPlane:
		return true
	}
	return false
}

// InputField is one declared input the contract expects in its invocation
// input object.
type InputField struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
}

// OutputSchema is the declared shape of an agent's JSON output — just
// enough of JSON Schema for the Harness to validate required fields and
// permitted types (spec.md §4.3).
type OutputSchema struct {
	Type       string                    `json:"type"`
	Required   []string                  `json:"required"`
	Properties map[string]PropertySchema `json:"properties"`
}

// PropertySchema describes one property's permitted JSON type(s).
// Type may be a single JSON-Schema type name ("string", "number",
// "integer", "boolean", "array", "object") or empty, meaning any type
// is permitted for that field.
type PropertySchema struct {
	Type string `json:"type"`
}

// AgentDefinition is the immutable, parsed form of one contract file.
// Once loaded into the registry it is never mutated — refreshing the
// registry replaces the whole catalog rather than editing entries in
// place (spec.md §3).
type AgentDefinition struct {
	Name        string
	Class       Class
	Description string
	Prompt      string

	InputFields  []InputField
	OutputSchema OutputSchema

	AllowedWritePaths    []string
	DisallowedWritePaths []string

	// Source records where the contract's content came from — "file" for
	// the common case, or an oci:// reference when the frontmatter
	// declared one (see SPEC_FULL.md, "OCI-sourced agent bundles").
	Source string

	// SourceFile is the path the contract was parsed from, used only for
	// diagnostics (duplicate-name errors, parse-error messages).
	SourceFile string
}

// RequiredInputNames returns the names of input fields the contract marks
// required.
func (d *AgentDefinition) RequiredInputNames() []string {
	var names []string
	for _, f := range d.InputFields {
		if f.Required {
			names = append(names, f.Name)
		}
	}
	return names
}

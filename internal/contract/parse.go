/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package contract

import (
	"fmt"
	"strings"

	"sigs.k8s.io/yaml"
)

// ParseError names the file and the failing section, per spec.md §4.1.
type ParseError struct {
	File    string
	Section string
	Err     error
}

func (e *ParseError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("%s: %v", e.Section, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.File, e.Section, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse parses the bytes of one declarative agent contract file. The file
// is YAML frontmatter (between "---" delimiters) naming the agent,
// classifying it, declaring input fields and write-path globs, and
// embedding the output JSON shape, followed by a markdown body that is
// the raw prompt. This mirrors the teacher's SKILL.md frontmatter format
// (internal/skill/loader.go:Parse) with fields specific to this kernel's
// contract shape.
//
// Unknown frontmatter keys are ignored, matching spec.md §4.1's "extra
// sections are permitted and ignored."
func Parse(data []byte, file string) (*AgentDefinition, error) {
	frontmatter, body, err := splitFrontmatter(string(data))
	if err != nil {
		return nil, &ParseError{File: file, Section: "frontmatter", Err: err}
	}
	if frontmatter == "" {
		return nil, &ParseError{File: file, Section: "frontmatter", Err: fmt.Errorf("missing YAML frontmatter block")}
	}

	var raw rawContract
	if err := yaml.Unmarshal([]byte(frontmatter), &raw); err != nil {
		return nil, &ParseError{File: file, Section: "frontmatter", Err: err}
	}

	if raw.Name == "" {
		return nil, &ParseError{File: file, Section: "name", Err: fmt.Errorf("missing required field: name")}
	}

	class := Class(raw.Class)
	if !class.Valid() {
		return nil, &ParseError{File: file, Section: "class", Err: fmt.Errorf("unknown permission class %q", raw.Class)}
	}

	prompt := strings.TrimSpace(body)
	if prompt == "" && raw.Source == "" {
		return nil, &ParseError{File: file, Section: "prompt body", Err: fmt.Errorf("empty prompt body and no source: declared to fetch one")}
	}

	schema, err := parseOutputSchema(raw.OutputSchema)
	if err != nil {
		return nil, &ParseError{File: file, Section: "output schema", Err: err}
	}

	allowed, disallowed := resolveWritePaths(class, raw.AllowedWritePaths, raw.DisallowedWritePaths)

	def := &AgentDefinition{
		Name:                 raw.Name,
		Class:                class,
		Description:          raw.Description,
		Prompt:               prompt,
		InputFields:          parseInputFields(raw.Input),
		OutputSchema:         schema,
		AllowedWritePaths:    allowed,
		DisallowedWritePaths: disallowed,
		Source:               firstNonEmpty(raw.Source, "file"),
		SourceFile:           file,
	}
	return def, nil
}

// rawContract is the frontmatter shape as written in a contract file.
type rawContract struct {
	Name                 string        `json:"name"`
	Class                string        `json:"class"`
	Description          string        `json:"description"`
	Input                []interface{} `json:"input"`
	OutputSchema         interface{}   `json:"output_schema"`
	AllowedWritePaths    []string      `json:"allowed_write_paths"`
	DisallowedWritePaths []string      `json:"disallowed_write_paths"`
	// Source, when set to an oci:// reference, tells the registry to pull
	// the prompt body from an OCI artifact instead of the markdown body
	// (see SPEC_FULL.md, "OCI-sourced agent bundles").
	Source string `json:"source"`
}

func parseInputFields(raw []interface{}) []InputField {
	var fields []InputField
	for _, item := range raw {
		switch v := item.(type) {
		case string:
			fields = append(fields, InputField{Name: v, Required: true})
		case map[string]interface{}:
			name, _ := v["name"].(string)
			if name == "" {
				continue
			}
			required := true
			if r, ok := v["required"].(bool); ok {
				required = r
			}
			fields = append(fields, InputField{Name: name, Required: required})
		}
	}
	return fields
}

func parseOutputSchema(raw interface{}) (OutputSchema, error) {
	if raw == nil {
		return OutputSchema{Type: "object"}, nil
	}

	m, ok := raw.(map[string]interface{})
	if !ok {
		return OutputSchema{}, fmt.Errorf("output_schema must be a mapping, got %T", raw)
	}

	schema := OutputSchema{Type: "object", Properties: map[string]PropertySchema{}}
	if t, ok := m["type"].(string); ok {
		schema.Type = t
	}
	if reqRaw, ok := m["required"].([]interface{}); ok {
		for _, r := range reqRaw {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	if propsRaw, ok := m["properties"].(map[string]interface{}); ok {
		for name, propRaw := range propsRaw {
			propMap, ok := propRaw.(map[string]interface{})
			if !ok {
				continue
			}
			propType, _ := propMap["type"].(string)
			schema.Properties[name] = PropertySchema{Type: propType}
		}
	}
	return schema, nil
}

// splitFrontmatter splits YAML frontmatter from a markdown body, exactly
// as the teacher's internal/skill/loader.go:splitFrontmatter does.
func splitFrontmatter(content string) (frontmatter, body string, err error) {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "---") {
		return "", content, nil
	}

	rest := content[3:]
	idx := strings.Index(rest, "\n---")
	if idx < 0 {
		return "", content, nil
	}

	frontmatter = strings.TrimSpace(rest[:idx])
	body = rest[idx+4:]
	return frontmatter, body, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

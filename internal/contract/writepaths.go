/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package contract

import (
	"path/filepath"
	"strings"
)

// Fixed roots the default write-path boundaries are expressed in terms of.
// Declared paths in a contract are added to these per-class defaults and
// do not replace them; these constants only seed the per-class defaults
// computed at load time (spec.md §4.9 "Permission classes").
const (
	RegistryRoot = "var/registry"
	AuditRoot    = "var/audit"
	VariableRoot = "var"
	ArtifactRoot = "artifacts"
	PromptRoot   = "prompts"
	SourceRoot   = "src"
	ConfigRoot   = "config"
	TestRootOne  = "test"
	TestRootTwo  = "tests"
)

// defaultWritePaths returns the (allowed, disallowed) root set a class
// carries before any file-declared paths are overlaid, per the invariant
// in spec.md §3 and the modeling note in §9 ("Permission classes"):
//
//	read-only-scan, planning-synthesis: allowed is always empty.
//	registry-state: allowed only under the registry/audit root.
//	write-gated: allowed only under a small artifact/prompt set, and
//	  never under source/config/test roots.
//	control-plane: allowed under the variable-data root and prompt root.
func defaultWritePaths(class Class) (allowed, disallowed []string) {
	switch class {
	case ClassReadOnlyScan, ClassPlanningSynthesis:
		return nil, nil
	case ClassRegistryState:
		return []string{RegistryRoot, AuditRoot}, nil
	case ClassWriteGated:
		return []string{ArtifactRoot, PromptRoot}, []string{SourceRoot, ConfigRoot, TestRootOne, TestRootTwo}
	case ClassControlPlane:
		return []string{VariableRoot, PromptRoot}, nil
	default:
		return nil, nil
	}
}

// resolveWritePaths combines the class defaults with any file-declared
// paths. read-only-scan and planning-synthesis ignore declared allowed
// paths — their allowed set is always empty, by invariant — but keep any
// declared disallowed paths.
func resolveWritePaths(class Class, declaredAllowed, declaredDisallowed []string) (allowed, disallowed []string) {
	defAllowed, defDisallowed := defaultWritePaths(class)

	if class == ClassReadOnlyScan || class == ClassPlanningSynthesis {
		return nil, append(append([]string{}, defDisallowed...), declaredDisallowed...)
	}

	allowed = append(append([]string{}, defAllowed...), declaredAllowed...)
	disallowed = append(append([]string{}, defDisallowed...), declaredDisallowed...)
	return allowed, disallowed
}

// AllowsWriteTo reports whether path lies under at least one allowed root
// and under none of the disallowed roots, per spec.md §4.2. path is
// normalized (cleaned, slash-separated) before matching.
func (d *AgentDefinition) AllowsWriteTo(path string) bool {
	norm := normalizePath(path)

	for _, pattern := range d.DisallowedWritePaths {
		if matchRoot(pattern, norm) {
			return false
		}
	}
	for _, pattern := range d.AllowedWritePaths {
		if matchRoot(pattern, norm) {
			return true
		}
	}
	return false
}

func normalizePath(p string) string {
	p = filepath.ToSlash(filepath.Clean(p))
	return strings.TrimPrefix(p, "./")
}

// matchRoot reports whether norm lies under root, or matches root as a
// glob pattern (adapted from the teacher's Action Sheet tool-name matcher,
// internal/engine/engine.go:matchGlob, repurposed here for filesystem
// paths instead of tool-call names).
func matchRoot(pattern, norm string) bool {
	pattern = normalizePath(pattern)

	if strings.Contains(pattern, "*") {
		return matchGlob(pattern, norm)
	}

	if norm == pattern {
		return true
	}
	return strings.HasPrefix(norm, pattern+"/")
}

// matchGlob performs simple glob matching where "*" matches any sequence
// of characters, including "/". It does not special-case "**" — a single
// "*" already spans path separators, matching the teacher's tool-name glob
// semantics exactly.
func matchGlob(pattern, text string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == text
	}

	if parts[0] != "" && !strings.HasPrefix(text, parts[0]) {
		return false
	}

	remaining := text
	if parts[0] != "" {
		remaining = remaining[len(parts[0]):]
	}

	for i := 1; i < len(parts); i++ {
		if parts[i] == "" {
			continue
		}
		idx := strings.Index(remaining, parts[i])
		if idx < 0 {
			return false
		}
		remaining = remaining[idx+len(parts[i]):]
	}

	if parts[len(parts)-1] != "" {
		return len(remaining) == 0
	}
	return true
}

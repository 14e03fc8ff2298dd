/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package orchestrator

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// chainFile is the on-disk shape of a chain definition, loaded by
// cmd/governctl's run subcommand (spec.md §6's "chain definitions are
// plain files, not a registered entity").
type chainFile struct {
	Name         string          `yaml:"name"`
	Description  string          `yaml:"description"`
	InitialState map[string]any  `yaml:"initial_state"`
	Steps        []chainFileStep `yaml:"steps"`
}

type chainFileStep struct {
	Agent             string `yaml:"agent"`
	Input             string `yaml:"input"`
	OutputKey         string `yaml:"output_key"`
	ContinueOnFailure bool   `yaml:"continue_on_failure"`
}

// LoadChainFile reads a YAML chain definition from path.
func LoadChainFile(path string) (ChainDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ChainDefinition{}, fmt.Errorf("read chain file %q: %w", path, err)
	}

	var raw chainFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return ChainDefinition{}, fmt.Errorf("parse chain file %q: %w", path, err)
	}
	if raw.Name == "" {
		return ChainDefinition{}, fmt.Errorf("chain file %q: missing name", path)
	}

	steps := make([]ChainStep, 0, len(raw.Steps))
	for _, s := range raw.Steps {
		if s.Agent == "" {
			return ChainDefinition{}, fmt.Errorf("chain file %q: step missing agent name", path)
		}
		steps = append(steps, ChainStep{
			AgentName:         s.Agent,
			InputMapping:      s.Input,
			OutputKey:         s.OutputKey,
			ContinueOnFailure: s.ContinueOnFailure,
		})
	}

	return ChainDefinition{
		Name:         raw.Name,
		Description:  raw.Description,
		Steps:        steps,
		InitialState: raw.InitialState,
	}, nil
}

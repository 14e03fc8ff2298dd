/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package orchestrator implements the Chain Orchestrator (spec.md §4.4):
// sequential execution of an ordered list of agent steps, resolving each
// step's input by projecting from a shared state bag, carrying results
// forward under an output key, honoring per-step continue-on-failure, and
// materializing a persisted ChainRun through the State Manager.
package orchestrator

import (
	"time"

	"github.com/marcus-qen/governor/internal/harness"
)

// ChainStep is one entry in a ChainDefinition (spec.md §4.4). OutputKeys
// are required to be unique within a chain — Execute rejects a
// definition that violates this invariant before running any step.
type ChainStep struct {
	AgentName         string
	InputMapping      string // projector expression; "" projects the whole state bag
	OutputKey         string // "" means the step's result is not carried forward
	ContinueOnFailure bool
}

// ChainDefinition is an ordered, named sequence of steps plus the state
// bag a run starts from (spec.md §4.4).
type ChainDefinition struct {
	Name         string
	Description  string
	Steps        []ChainStep
	InitialState map[string]any
}

// Status is the closed set of terminal chain statuses (spec.md §4.4,
// §7's propagation rules).
type Status string

const (
	StatusCompleted      Status = "completed"
	StatusAgentFailed    Status = "agent_failed"
	StatusPrecheckFailed Status = "precheck_failed"
	StatusManual         Status = "manual"
)

// Callbacks are optional hooks invoked as a chain progresses (spec.md
// §4.4's "execute(chain_def, repo_root, mode, [callbacks])"). Any nil
// hook is skipped.
type Callbacks struct {
	OnStepComplete  func(stepIndex int, step ChainStep, result *harness.AgentResult)
	OnChainComplete func(run *Run)
}

// Run is the in-memory result of one Execute call, mirroring the
// persisted ChainRun shape (spec.md §6) but carrying the richer
// harness.AgentResult rather than its JSON projection.
type Run struct {
	RunID           string
	ChainName       string
	RepositoryRoot  string
	Status          Status
	StartedAt       time.Time
	CompletedAt     time.Time
	ExecutionTimeMS int64
	Mode            string
	AgentResults    []harness.AgentResult
	FinalState      map[string]any
	Error           string
}

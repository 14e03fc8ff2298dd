/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package harness implements the Execution Harness (spec.md §4.3): runs
// one agent under one of three execution modes, enforcing prechecks,
// dispatching to the LLM provider collaborator in live mode, validating
// its output against the agent's declared schema, retrying transient
// provider failures, and emitting an audit record for every terminal
// outcome.
package harness

import (
	"encoding/json"
	"time"

	"github.com/marcus-qen/governor/internal/errkind"
)

// Mode is the closed set of execution modes (spec.md §6).
type Mode string

const (
	ModeDryRun    Mode = "dry_run"
	ModeSimulated Mode = "simulated"
	ModeLive      Mode = "live"
)

// ExecContext carries the ambient information every Execute call needs
// beyond the agent name and input (spec.md §4.3).
type ExecContext struct {
	RepositoryRoot string
	Mode           Mode
	CorrelationID  string
	ChainRunID     string
}

// Status is the closed set of terminal AgentResult statuses.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusStopped   Status = "stopped"
)

// ResultError pairs a human-readable message with a machine-readable
// kind (spec.md §7).
type ResultError struct {
	Kind    errkind.Kind
	Message string
}

// AgentResult is the outcome of one Execute call (spec.md §6).
type AgentResult struct {
	AgentName     string
	Status        Status
	StartedAt     time.Time
	CompletedAt   time.Time
	ExecutionTime time.Duration
	Output        json.RawMessage
	Error         *ResultError

	// Attempts records how many provider calls were made in live mode
	// (up to the Harness's retry limit, 3 by default, when retrying a
	// transient failure). It is reported as 1 in dry_run/simulated mode,
	// where no call is made, and as 0 when prechecks stop the step.
	Attempts int
	// RawResponse holds the raw provider bytes of the failing live call.
	// The bytes are kept on the AgentResult only; the audit record
	// written for the call does not include them.
	RawResponse []byte
}

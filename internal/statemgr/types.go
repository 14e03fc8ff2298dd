/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package statemgr implements the State Manager (spec.md §4.7): chain
// run history, repository fingerprinting, and accumulated findings, all
// persisted under <var>/state with the same atomic write-rename
// discipline as the Registry Store.
package statemgr

import (
	"encoding/json"
	"time"
)

// AgentResult is the persisted outcome of one chain step (spec.md §6).
type AgentResult struct {
	AgentName     string          `json:"agent_name"`
	Status        string          `json:"status"` // completed | failed | stopped
	StartedAt     time.Time       `json:"started_at"`
	CompletedAt   time.Time       `json:"completed_at"`
	ExecutionTime int64           `json:"execution_time_ms"`
	Output        json.RawMessage `json:"output,omitempty"`
	Error         *ResultError    `json:"error,omitempty"`
}

// ResultError is the machine/human error pair carried by a failed or
// stopped AgentResult (spec.md §7).
type ResultError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ChainRun is the persisted form of one chain execution (spec.md §6).
type ChainRun struct {
	RunID          string            `json:"run_id"`
	ChainName      string            `json:"chain_name"`
	RepositoryRoot string            `json:"repository_root"`
	Status         string            `json:"status"` // completed | agent_failed | precheck_failed | manual
	StartedAt      time.Time         `json:"started_at"`
	CompletedAt    time.Time         `json:"completed_at"`
	ExecutionTime  int64             `json:"execution_time_ms"`
	Mode           string            `json:"mode"`
	AgentResults   []AgentResult     `json:"agent_results"`
	FinalState     map[string]any    `json:"final_state"`
	Error          *ResultError      `json:"error,omitempty"`
}

// Finding is one agent-emitted observation, deduplicated across runs by
// (AgentName, Category, TargetPath, LineOrHash) (spec.md §4.7, GLOSSARY).
type Finding struct {
	AgentName    string    `json:"agent_name"`
	Category     string    `json:"category"`
	TargetPath   string    `json:"target_path"`
	LineOrHash   string    `json:"line_or_hash"`
	Severity     string    `json:"severity"`
	Description  string    `json:"description"`
	ObservedAt   time.Time `json:"observed_at"`
}

func (f Finding) key() string {
	return f.AgentName + "\x00" + f.Category + "\x00" + f.TargetPath + "\x00" + f.LineOrHash
}

// RepositoryState is the persisted per-repository record: its last
// known fingerprint, the id of the most recent successful run of each
// chain, its accumulated findings, and coarse run metrics (spec.md
// §3/§4.7).
type RepositoryState struct {
	RepositoryRoot string            `json:"repository_root"`
	RepositoryID   string            `json:"repository_id"`
	Fingerprint    string            `json:"fingerprint"`
	UpdatedAt      time.Time         `json:"updated_at"`
	// LastSuccessfulRun maps a chain name to the run id of its most
	// recent completed run (spec.md §3: "a mapping from chain name to
	// the id of the most recent successful run of that chain").
	LastSuccessfulRun map[string]string `json:"last_successful_run,omitempty"`
	Findings          []Finding         `json:"findings"`
	Metrics           RepositoryMetrics `json:"metrics"`
}

// RepositoryMetrics is the "coarse metrics" spec.md §3 attaches to a
// RepositoryState. The run counts are updated every time a non-dry_run
// chain run is recorded against this repository; TotalFindings is
// updated by AccumulateFindings.
type RepositoryMetrics struct {
	TotalRuns      int64 `json:"total_runs"`
	SuccessfulRuns int64 `json:"successful_runs"`
	FailedRuns     int64 `json:"failed_runs"`
	TotalFindings  int64 `json:"total_findings"`
}

// runIndexEntry is one row of the global run index, used to serve
// list_runs without reading every run file.
type runIndexEntry struct {
	RunID          string    `json:"run_id"`
	RepositoryRoot string    `json:"repository_root"`
	StartedAt      time.Time `json:"started_at"`
}

type runIndex struct {
	Entries []runIndexEntry `json:"entries"`
}

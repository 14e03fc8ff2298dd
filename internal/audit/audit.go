/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package audit implements the Audit Sink (spec.md §4.8): append-only,
// one JSONL file per UTC day per kind. Records are never edited
// in-place; rotation is by date only.
package audit

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/marcus-qen/governor/internal/atomicfile"
)

// Sink writes append-only audit records under one root directory
// (<var>/audit).
type Sink struct {
	root string
	// now is overridable in tests so daily rotation can be exercised
	// deterministically.
	now func() time.Time
}

// New creates a Sink rooted at root. The directory is created lazily on
// first write.
func New(root string) *Sink {
	return &Sink{root: root, now: time.Now}
}

// ExecutionRecord is one record for an agent execution (spec.md §4.3):
// either its terminal outcome or, with Attempt set, one live-mode
// provider attempt.
type ExecutionRecord struct {
	Timestamp     time.Time `json:"timestamp"`
	AgentName     string    `json:"agent_name"`
	AgentClass    string    `json:"agent_class"`
	Status        string    `json:"status"`
	DurationMS    int64     `json:"duration_ms"`
	Mode          string    `json:"mode"`
	CorrelationID string    `json:"correlation_id"`
	ChainRunID    string    `json:"chain_run_id"`
	ErrorKind     string    `json:"error_kind,omitempty"`
	Attempt       int       `json:"attempt,omitempty"`
}

// RegistryLogRecord has the fields of one line of the Registry Store's
// operation log (spec.md §4.6). The Store writes its own operation log
// and does not call WriteRegistryLog.
type RegistryLogRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	Op         string    `json:"op"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Checksum   string    `json:"checksum,omitempty"`
}

// WriteExecution appends one execution record to the day's
// execution_YYYYMMDD.jsonl file.
func (s *Sink) WriteExecution(rec ExecutionRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now().UTC()
	}
	return s.appendJSON(s.executionLogPath(rec.Timestamp), rec)
}

// WriteRegistryLog appends one registry-mutation record to the shared
// registry_log.jsonl file.
func (s *Sink) WriteRegistryLog(rec RegistryLogRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now().UTC()
	}
	return s.appendJSON(filepath.Join(s.root, "registry_log.jsonl"), rec)
}

func (s *Sink) executionLogPath(ts time.Time) string {
	return filepath.Join(s.root, fmt.Sprintf("execution_%s.jsonl", ts.UTC().Format("20060102")))
}

func (s *Sink) appendJSON(path string, rec any) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	if err := atomicfile.AppendLine(path, line); err != nil {
		return fmt.Errorf("append audit record to %q: %w", path, err)
	}
	return nil
}

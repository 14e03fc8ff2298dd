/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package statemgr

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/marcus-qen/governor/internal/atomicfile"
)

// Manager is the file-backed State Manager (spec.md §4.7), rooted at
// one <var>/state directory.
type Manager struct {
	root   string
	log    logr.Logger
	ignore []string

	mu sync.Mutex
	// repoLocks serializes save_repository_state per repository id, as
	// required by spec.md §5: "the State Manager serializes
	// save_repository_state via a single writer per repository id."
	repoLocks map[string]*sync.Mutex
}

// New opens (creating if absent) the State Manager rooted at root.
func New(root string, log logr.Logger) (*Manager, error) {
	if err := os.MkdirAll(filepath.Join(root, "runs"), 0o755); err != nil {
		return nil, fmt.Errorf("create runs directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(root, "repositories"), 0o755); err != nil {
		return nil, fmt.Errorf("create repositories directory: %w", err)
	}
	return &Manager{
		root:      root,
		log:       log,
		ignore:    DefaultIgnoreList,
		repoLocks: make(map[string]*sync.Mutex),
	}, nil
}

// WithIgnoreList overrides the directory names skipped during
// fingerprinting, per spec.md §9's note that the ignore list should be
// configurable without changing the algorithm.
func (m *Manager) WithIgnoreList(ignore []string) *Manager {
	m.ignore = ignore
	return m
}

func (m *Manager) repoLock(repoID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.repoLocks[repoID]
	if !ok {
		lock = &sync.Mutex{}
		m.repoLocks[repoID] = lock
	}
	return lock
}

func (m *Manager) runPath(runID string) string {
	return filepath.Join(m.root, "runs", runID+".json")
}

func (m *Manager) repoPath(repoID string) string {
	return filepath.Join(m.root, "repositories", repoID+".json")
}

func (m *Manager) indexPath() string {
	return filepath.Join(m.root, "index.json")
}

// RecordChainRun persists run, atomically appends it to the global run
// index (spec.md §4.7's "run listing"), and — outside dry_run mode —
// updates the repository's RepositoryState (last successful run per
// chain, coarse metrics, and — when the repository root is currently
// readable — its fingerprint), per spec.md §3's "updated after each
// chain run" lifecycle note. spec.md §8's idempotence law carves out
// dry_run explicitly ("never creates or modifies any registry entity or
// repository-state file"), so a dry_run run is recorded in the run
// index for history/listing purposes but never folded into
// RepositoryState.
func (m *Manager) RecordChainRun(run *ChainRun) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal chain run %q: %w", run.RunID, err)
	}
	if err := atomicfile.WriteFile(m.runPath(run.RunID), data, 0o644); err != nil {
		return fmt.Errorf("write chain run %q: %w", run.RunID, err)
	}

	m.mu.Lock()
	idx, err := m.loadIndexLocked()
	if err != nil {
		m.mu.Unlock()
		return err
	}
	idx.Entries = append(idx.Entries, runIndexEntry{
		RunID:          run.RunID,
		RepositoryRoot: run.RepositoryRoot,
		StartedAt:      run.StartedAt,
	})
	err = m.writeIndexLocked(idx)
	m.mu.Unlock()
	if err != nil {
		return err
	}

	if run.Mode == dryRunMode {
		return nil
	}
	return m.updateRepositoryStateForRun(run)
}

// dryRunMode mirrors harness.ModeDryRun's wire value. statemgr has no
// import on the harness package, so the string is duplicated here
// rather than shared — RepositoryState persistence only needs to know
// "was this a dry run," not the full Mode type.
const dryRunMode = "dry_run"

// updateRepositoryStateForRun folds one completed chain run's outcome
// into its repository's RepositoryState. Fingerprint recomputation is
// best-effort: a repository root that is unreadable (e.g. the run
// itself failed prechecks because the root didn't exist) leaves the
// previously stored fingerprint untouched rather than failing the whole
// record operation.
func (m *Manager) updateRepositoryStateForRun(run *ChainRun) error {
	if run.RepositoryRoot == "" {
		return nil
	}

	repoID, err := RepositoryID(run.RepositoryRoot)
	if err != nil {
		return err
	}

	lock := m.repoLock(repoID)
	lock.Lock()
	defer lock.Unlock()

	state, err := m.GetRepositoryState(run.RepositoryRoot)
	if err != nil {
		return err
	}

	state.Metrics.TotalRuns++
	if run.Status == "completed" {
		state.Metrics.SuccessfulRuns++
		if run.ChainName != "" {
			if state.LastSuccessfulRun == nil {
				state.LastSuccessfulRun = make(map[string]string, 1)
			}
			state.LastSuccessfulRun[run.ChainName] = run.RunID
		}
	} else {
		state.Metrics.FailedRuns++
	}

	if fp, fpErr := Fingerprint(run.RepositoryRoot, m.ignore); fpErr == nil {
		state.Fingerprint = fp
	} else {
		m.log.V(1).Info("skipped fingerprint refresh after chain run", "repository_root", run.RepositoryRoot, "reason", fpErr.Error())
	}
	state.UpdatedAt = time.Now().UTC()

	return m.saveRepositoryStateLocked(state)
}

func (m *Manager) loadIndexLocked() (*runIndex, error) {
	idx := &runIndex{}
	data, err := os.ReadFile(m.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return idx, nil
		}
		return nil, fmt.Errorf("read run index: %w", err)
	}
	if err := json.Unmarshal(data, idx); err != nil {
		return nil, fmt.Errorf("parse run index: %w", err)
	}
	return idx, nil
}

func (m *Manager) writeIndexLocked(idx *runIndex) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run index: %w", err)
	}
	if err := atomicfile.WriteFile(m.indexPath(), data, 0o644); err != nil {
		return fmt.Errorf("write run index: %w", err)
	}
	return nil
}

// GetChainRun reads one persisted chain run by id.
func (m *Manager) GetChainRun(runID string) (*ChainRun, error) {
	data, err := os.ReadFile(m.runPath(runID))
	if err != nil {
		return nil, fmt.Errorf("read chain run %q: %w", runID, err)
	}
	var run ChainRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("parse chain run %q: %w", runID, err)
	}
	return &run, nil
}

// ListRuns returns the most recent runs, newest-first by start time
// (ties broken by run id), optionally filtered to one repository root.
// limit <= 0 means unlimited.
func (m *Manager) ListRuns(repoRoot string, limit int) ([]runIndexEntry, error) {
	m.mu.Lock()
	idx, err := m.loadIndexLocked()
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	entries := make([]runIndexEntry, 0, len(idx.Entries))
	for _, e := range idx.Entries {
		if repoRoot != "" && e.RepositoryRoot != repoRoot {
			continue
		}
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].StartedAt.Equal(entries[j].StartedAt) {
			return entries[i].StartedAt.After(entries[j].StartedAt)
		}
		return entries[i].RunID > entries[j].RunID
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// GetRepositoryState reads the persisted state for repoRoot, returning
// a zero-value state (no error) if none has been saved yet.
func (m *Manager) GetRepositoryState(repoRoot string) (*RepositoryState, error) {
	repoID, err := RepositoryID(repoRoot)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(m.repoPath(repoID))
	if err != nil {
		if os.IsNotExist(err) {
			return &RepositoryState{RepositoryRoot: repoRoot, RepositoryID: repoID}, nil
		}
		return nil, fmt.Errorf("read repository state %q: %w", repoID, err)
	}

	var state RepositoryState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse repository state %q: %w", repoID, err)
	}
	return &state, nil
}

// SaveRepositoryState persists state, serialized per repository id.
func (m *Manager) SaveRepositoryState(state *RepositoryState) error {
	repoID, err := RepositoryID(state.RepositoryRoot)
	if err != nil {
		return err
	}

	lock := m.repoLock(repoID)
	lock.Lock()
	defer lock.Unlock()

	return m.saveRepositoryStateLocked(state)
}

// saveRepositoryStateLocked writes state to disk. Callers must already
// hold this repository's lock (via m.repoLock).
func (m *Manager) saveRepositoryStateLocked(state *RepositoryState) error {
	repoID, err := RepositoryID(state.RepositoryRoot)
	if err != nil {
		return err
	}
	state.RepositoryID = repoID

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal repository state %q: %w", repoID, err)
	}
	if err := atomicfile.WriteFile(m.repoPath(repoID), data, 0o644); err != nil {
		return fmt.Errorf("write repository state %q: %w", repoID, err)
	}
	return nil
}

// HasRepositoryChanged recomputes repoRoot's fingerprint and compares it
// against the one stored in RepositoryState.
func (m *Manager) HasRepositoryChanged(repoRoot string) (bool, error) {
	state, err := m.GetRepositoryState(repoRoot)
	if err != nil {
		return false, err
	}
	current, err := Fingerprint(repoRoot, m.ignore)
	if err != nil {
		return false, err
	}
	return current != state.Fingerprint, nil
}

// AccumulateFindings merges new findings into repoRoot's accumulated
// list, deduplicated by key, with the most recent observation winning
// for non-key fields, then persists the result.
func (m *Manager) AccumulateFindings(repoRoot string, findings []Finding) error {
	repoID, err := RepositoryID(repoRoot)
	if err != nil {
		return err
	}

	lock := m.repoLock(repoID)
	lock.Lock()
	defer lock.Unlock()

	state, err := m.GetRepositoryState(repoRoot)
	if err != nil {
		return err
	}

	byKey := make(map[string]Finding, len(state.Findings))
	for _, f := range state.Findings {
		byKey[f.key()] = f
	}
	for _, f := range findings {
		byKey[f.key()] = f
	}

	merged := make([]Finding, 0, len(byKey))
	for _, f := range byKey {
		merged = append(merged, f)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].key() < merged[j].key() })
	state.Findings = merged
	state.Metrics.TotalFindings = int64(len(merged))
	state.UpdatedAt = time.Now().UTC()

	return m.saveRepositoryStateLocked(state)
}

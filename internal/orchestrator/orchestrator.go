/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/marcus-qen/governor/internal/errkind"
	"github.com/marcus-qen/governor/internal/harness"
	"github.com/marcus-qen/governor/internal/projector"
	"github.com/marcus-qen/governor/internal/statemgr"
	"github.com/marcus-qen/governor/internal/telemetry"
)

// Orchestrator runs ChainDefinitions step by step against the Harness,
// serializing chains that target the same repository root (spec.md §5:
// "serialize chains that touch the same repository root").
type Orchestrator struct {
	harness *harness.Harness
	state   *statemgr.Manager
	log     logr.Logger

	mu        sync.Mutex
	repoLocks map[string]*sync.Mutex
}

// New builds an Orchestrator over an already-constructed Harness and
// State Manager.
func New(h *harness.Harness, state *statemgr.Manager, log logr.Logger) *Orchestrator {
	return &Orchestrator{
		harness:   h,
		state:     state,
		log:       log,
		repoLocks: make(map[string]*sync.Mutex),
	}
}

func (o *Orchestrator) repoLock(repoRoot string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	lock, ok := o.repoLocks[repoRoot]
	if !ok {
		lock = &sync.Mutex{}
		o.repoLocks[repoRoot] = lock
	}
	return lock
}

// Execute runs every step of def in order against repoRoot under mode,
// implementing spec.md §4.4. A definition with duplicate output keys is
// rejected up front: Execute returns a nil *Run and an error, and nothing
// is persisted. Otherwise it returns a non-nil *Run and persists exactly
// one ChainRun through the State Manager, even when the chain halts early.
func (o *Orchestrator) Execute(ctx context.Context, def ChainDefinition, repoRoot string, mode harness.Mode, cb Callbacks) (*Run, error) {
	if err := validateOutputKeys(def); err != nil {
		return nil, err
	}

	lock := o.repoLock(repoRoot)
	lock.Lock()
	defer lock.Unlock()

	runID := newRunID()
	startedAt := time.Now().UTC()

	spanCtx, span := telemetry.StartChainSpan(ctx, def.Name, repoRoot)

	state := copyInitialState(def.InitialState)
	state["repository_root"] = repoRoot

	run := &Run{
		RunID:          runID,
		ChainName:      def.Name,
		RepositoryRoot: repoRoot,
		Mode:           string(mode),
		StartedAt:      startedAt,
	}

	status := StatusCompleted
	var chainErr string

	for i, step := range def.Steps {
		select {
		case <-spanCtx.Done():
			status = StatusManual
			chainErr = spanCtx.Err().Error()
			run.AgentResults = append(run.AgentResults, haltedResult(step, errkind.Cancelled, chainErr))
		default:
		}
		if status == StatusManual {
			break
		}

		input, warnings := projectInput(step.InputMapping, state)
		for _, w := range warnings {
			o.log.Info("state projection warning", "chain", def.Name, "step", step.AgentName, "warning", w.Message)
		}

		result := o.harness.Execute(spanCtx, step.AgentName, input, harness.ExecContext{
			RepositoryRoot: repoRoot,
			Mode:           mode,
			ChainRunID:     runID,
		})

		run.AgentResults = append(run.AgentResults, *result)
		if cb.OnStepComplete != nil {
			cb.OnStepComplete(i, step, result)
		}

		if step.OutputKey != "" {
			state[step.OutputKey] = stepOutputValue(result)
		}

		if result.Status == harness.StatusCompleted {
			continue
		}

		if step.ContinueOnFailure {
			continue
		}

		if result.Status == harness.StatusStopped {
			status = StatusPrecheckFailed
		} else {
			status = StatusAgentFailed
		}
		if result.Error != nil {
			chainErr = result.Error.Message
		}
		break
	}

	completedAt := time.Now().UTC()
	run.Status = status
	run.CompletedAt = completedAt
	run.ExecutionTimeMS = completedAt.Sub(startedAt).Milliseconds()
	run.FinalState = state
	run.Error = chainErr

	telemetry.EndChainSpan(span, string(status), len(run.AgentResults))

	if o.state != nil {
		if err := o.state.RecordChainRun(toPersisted(run)); err != nil {
			return run, fmt.Errorf("record chain run %q: %w", runID, err)
		}
	}

	if cb.OnChainComplete != nil {
		cb.OnChainComplete(run)
	}

	return run, nil
}

func validateOutputKeys(def ChainDefinition) error {
	seen := make(map[string]bool, len(def.Steps))
	for _, step := range def.Steps {
		if step.OutputKey == "" {
			continue
		}
		if seen[step.OutputKey] {
			return fmt.Errorf("chain %q: duplicate output_key %q", def.Name, step.OutputKey)
		}
		seen[step.OutputKey] = true
	}
	return nil
}

func copyInitialState(initial map[string]any) map[string]any {
	state := make(map[string]any, len(initial)+1)
	for k, v := range initial {
		state[k] = v
	}
	return state
}

// projectInput resolves a step's input mapping against the running
// state bag (spec.md §4.5) and coerces the result to the map shape the
// Harness expects. A mapping that resolves to a non-object value is
// wrapped under a single "value" key rather than rejected, since the
// grammar does not reserve that shape for anything else.
func projectInput(mapping string, state map[string]any) (map[string]any, []projector.Warning) {
	projected, warnings := projector.Project(mapping, state)
	if projected == nil {
		return map[string]any{}, warnings
	}
	if m, ok := projected.(map[string]any); ok {
		return m, warnings
	}
	return map[string]any{"value": projected}, warnings
}

// stepOutputValue is what gets stored under a step's output_key: the
// parsed JSON output on success, or a minimal error object on failure,
// so continue-on-failure chains still see something useful at that key
// (spec.md's "final_state contains both keys, with A's value being an
// error object").
func stepOutputValue(result *harness.AgentResult) any {
	if result.Status == harness.StatusCompleted {
		var val any
		if len(result.Output) > 0 {
			if err := json.Unmarshal(result.Output, &val); err == nil {
				return val
			}
		}
		return map[string]any{}
	}

	errObj := map[string]any{"status": string(result.Status)}
	if result.Error != nil {
		errObj["kind"] = string(result.Error.Kind)
		errObj["message"] = result.Error.Message
	}
	return errObj
}

func haltedResult(step ChainStep, kind errkind.Kind, message string) harness.AgentResult {
	now := time.Now().UTC()
	return harness.AgentResult{
		AgentName:   step.AgentName,
		Status:      harness.StatusStopped,
		StartedAt:   now,
		CompletedAt: now,
		Error:       &harness.ResultError{Kind: kind, Message: message},
	}
}

// newRunID builds a sortable run id: a UTC timestamp prefix (lexically
// sortable to millisecond resolution) plus a uuid disambiguator, per
// spec.md §4.4's "a sortable identifier derived from start time plus a
// disambiguator."
func newRunID() string {
	return fmt.Sprintf("%s-%s", time.Now().UTC().Format("20060102T150405.000Z"), uuid.NewString()[:8])
}

func toPersisted(run *Run) *statemgr.ChainRun {
	results := make([]statemgr.AgentResult, 0, len(run.AgentResults))
	for _, r := range run.AgentResults {
		var perr *statemgr.ResultError
		if r.Error != nil {
			perr = &statemgr.ResultError{Kind: string(r.Error.Kind), Message: r.Error.Message}
		}
		results = append(results, statemgr.AgentResult{
			AgentName:     r.AgentName,
			Status:        string(r.Status),
			StartedAt:     r.StartedAt,
			CompletedAt:   r.CompletedAt,
			ExecutionTime: r.ExecutionTime.Milliseconds(),
			Output:        r.Output,
			Error:         perr,
		})
	}

	var perr *statemgr.ResultError
	if run.Error != "" {
		perr = &statemgr.ResultError{Kind: string(run.Status), Message: run.Error}
	}

	return &statemgr.ChainRun{
		RunID:          run.RunID,
		ChainName:      run.ChainName,
		RepositoryRoot: run.RepositoryRoot,
		Status:         string(run.Status),
		StartedAt:      run.StartedAt,
		CompletedAt:    run.CompletedAt,
		ExecutionTime:  run.ExecutionTimeMS,
		Mode:           run.Mode,
		AgentResults:   results,
		FinalState:     run.FinalState,
		Error:          perr,
	}
}

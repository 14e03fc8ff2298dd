/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-logr/logr"

	"github.com/marcus-qen/governor/internal/audit"
	"github.com/marcus-qen/governor/internal/contract"
	"github.com/marcus-qen/governor/internal/errkind"
	"github.com/marcus-qen/governor/internal/provider"
	"github.com/marcus-qen/governor/internal/registry"
	"github.com/marcus-qen/governor/internal/telemetry"
)

const (
	defaultMaxRetries  = 3
	defaultRetryBase   = 2 * time.Second
	defaultCallTimeout = 5 * time.Minute
)

// Harness runs one agent at a time under one of the three execution
// modes (spec.md §4.3).
type Harness struct {
	registry *registry.Registry
	provider provider.Provider
	sink     *audit.Sink
	log      logr.Logger

	maxRetries  int
	retryBase   time.Duration
	callTimeout time.Duration
}

// New builds a Harness. provider may be nil if the Harness will only
// ever run in dry_run or simulated mode.
func New(reg *registry.Registry, prov provider.Provider, sink *audit.Sink, log logr.Logger) *Harness {
	return &Harness{
		registry:    reg,
		provider:    prov,
		sink:        sink,
		log:         log,
		maxRetries:  defaultMaxRetries,
		retryBase:   defaultRetryBase,
		callTimeout: defaultCallTimeout,
	}
}

// WithRetryPolicy overrides the default retry count and base backoff,
// primarily for tests.
func (h *Harness) WithRetryPolicy(maxRetries int, base time.Duration) *Harness {
	h.maxRetries = maxRetries
	h.retryBase = base
	return h
}

// WithCallTimeout overrides the per-agent live-call timeout (spec.md
// §5: "default order of minutes, configurable").
func (h *Harness) WithCallTimeout(d time.Duration) *Harness {
	h.callTimeout = d
	return h
}

// Execute runs agentName once under ectx.Mode, with input drawn from
// the chain's projected state (spec.md §4.3).
func (h *Harness) Execute(ctx context.Context, agentName string, input map[string]any, ectx ExecContext) *AgentResult {
	spanCtx, span := telemetry.StartExecutionSpan(ctx, agentName, string(ectx.Mode))

	result := h.execute(spanCtx, agentName, input, ectx)

	errKind := ""
	if result.Error != nil {
		errKind = string(result.Error.Kind)
	}
	telemetry.EndExecutionSpan(span, string(result.Status), errKind)

	h.writeAudit(result, ectx)
	return result
}

func (h *Harness) execute(ctx context.Context, agentName string, input map[string]any, ectx ExecContext) *AgentResult {
	startedAt := time.Now().UTC()

	def := h.registry.Get(agentName)
	if def == nil {
		return h.stopped(agentName, startedAt, errkind.NotRegistered, fmt.Sprintf("agent %q is not registered", agentName))
	}

	if precheckErr := h.runPrechecks(def, input, ectx); precheckErr != nil {
		return h.stopped(agentName, startedAt, precheckErr.Kind, precheckErr.Message)
	}

	switch ectx.Mode {
	case ModeDryRun:
		return h.completed(agentName, startedAt, json.RawMessage(`{}`), 0, nil)
	case ModeSimulated:
		output := simulateOutput(def.OutputSchema)
		data, err := json.Marshal(output)
		if err != nil {
			return h.failed(agentName, startedAt, errkind.IOError, err.Error(), nil, 0)
		}
		return h.completed(agentName, startedAt, data, 0, nil)
	case ModeLive:
		return h.executeLive(ctx, def, input, ectx)
	default:
		return h.stopped(agentName, startedAt, errkind.PrecheckFailed, fmt.Sprintf("unknown execution mode %q", ectx.Mode))
	}
}

type precheckFailure struct {
	Kind    errkind.Kind
	Message string
}

func (e *precheckFailure) Error() string { return e.Message }

// runPrechecks implements spec.md §4.3's four required prechecks, in
// order: agent exists (checked by the caller before this is called),
// repository_root exists/is a directory/is readable, every required
// input field is present and non-empty, and no declared write target is
// disallowed.
func (h *Harness) runPrechecks(def *contract.AgentDefinition, input map[string]any, ectx ExecContext) *precheckFailure {
	info, err := os.Stat(ectx.RepositoryRoot)
	if err != nil {
		return &precheckFailure{Kind: errkind.PrecheckFailed, Message: fmt.Sprintf("repository_root %q: %v", ectx.RepositoryRoot, err)}
	}
	if !info.IsDir() {
		return &precheckFailure{Kind: errkind.PrecheckFailed, Message: fmt.Sprintf("repository_root %q is not a directory", ectx.RepositoryRoot)}
	}
	rootDir, err := os.Open(ectx.RepositoryRoot)
	if err != nil {
		return &precheckFailure{Kind: errkind.PrecheckFailed, Message: fmt.Sprintf("repository_root %q is not readable: %v", ectx.RepositoryRoot, err)}
	}
	rootDir.Close()

	for _, name := range def.RequiredInputNames() {
		val, ok := input[name]
		if !ok || isEmptyValue(val) {
			return &precheckFailure{Kind: errkind.PrecheckFailed, Message: fmt.Sprintf("missing required input field %q", name)}
		}
	}

	if rawPaths, ok := input["write_paths"]; ok {
		for _, p := range toStringSlice(rawPaths) {
			if !def.AllowsWriteTo(p) {
				return &precheckFailure{Kind: errkind.PrecheckFailed, Message: fmt.Sprintf("agent %q is not permitted to write to %q", def.Name, p)}
			}
		}
	}

	return nil
}

func isEmptyValue(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case []any:
		return len(x) == 0
	}
	return false
}

func toStringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		if s, ok := v.([]string); ok {
			return s
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// executeLive dispatches to the provider, retrying transient failures
// with capped exponential backoff (spec.md §4.3).
func (h *Harness) executeLive(ctx context.Context, def *contract.AgentDefinition, input map[string]any, ectx ExecContext) *AgentResult {
	startedAt := time.Now().UTC()
	prompt, err := renderPrompt(def.Prompt, input)
	if err != nil {
		return h.failed(def.Name, startedAt, errkind.IOError, err.Error(), nil, 0)
	}

	req := &provider.CompletionRequest{
		System:         fmt.Sprintf("You are the %q agent.", def.Name),
		Prompt:         prompt,
		MaxTokens:      4096,
		Temperature:    0,
		ResponseFormat: "json",
	}

	var lastRaw []byte
	attempts := 0
	backoff := h.retryBase

	for attempts < h.maxRetries {
		attempts++

		callCtx, cancel := context.WithTimeout(ctx, h.callTimeout)
		providerCtx, providerSpan := telemetry.StartProviderCallSpan(callCtx, "", h.provider.Name(), attempts)

		raw, callErr := h.provider.Complete(providerCtx, req)
		providerSpan.End()
		cancel()

		if callErr == nil {
			lastRaw = raw
			h.writeAttemptAudit(def, startedAt, ectx, attempts, "", true)
			return h.validateAndComplete(def, startedAt, raw, attempts)
		}

		kind := classifyErr(callErr)
		lastRaw = raw
		h.writeAttemptAudit(def, startedAt, ectx, attempts, kind, false)

		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return h.failed(def.Name, startedAt, errkind.ProviderTimeout, callErr.Error(), lastRaw, attempts)
		}

		if !kind.Retryable() || attempts >= h.maxRetries {
			if kind == errkind.ProviderTransient {
				kind = errkind.ProviderTransientExhausted
			}
			return h.failed(def.Name, startedAt, kind, callErr.Error(), lastRaw, attempts)
		}

		select {
		case <-ctx.Done():
			return h.failed(def.Name, startedAt, errkind.Cancelled, ctx.Err().Error(), lastRaw, attempts)
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return h.failed(def.Name, startedAt, errkind.ProviderTransientExhausted, "exhausted retries", lastRaw, attempts)
}

func classifyErr(err error) errkind.Kind {
	var callErr *provider.CallError
	if errors.As(err, &callErr) {
		return callErr.Kind
	}
	return errkind.ProviderTransient
}

// validateAndComplete parses raw as JSON and checks it against the
// agent's output schema (spec.md §4.3). Neither invalid_json nor
// validation_failed is retried.
func (h *Harness) validateAndComplete(def *contract.AgentDefinition, startedAt time.Time, raw []byte, attempts int) *AgentResult {
	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return h.failed(def.Name, startedAt, errkind.InvalidJSON, fmt.Sprintf("provider response is not valid JSON: %v", err), raw, attempts)
	}

	if field, problem := validateOutput(def.OutputSchema, parsed); field != "" {
		return h.failed(def.Name, startedAt, errkind.ValidationFailed, fmt.Sprintf("output field %q: %s", field, problem), raw, attempts)
	}

	return h.completed(def.Name, startedAt, raw, attempts, nil)
}

func (h *Harness) completed(agent string, startedAt time.Time, output json.RawMessage, attempts int, _ []byte) *AgentResult {
	return &AgentResult{
		AgentName:     agent,
		Status:        StatusCompleted,
		StartedAt:     startedAt,
		CompletedAt:   time.Now().UTC(),
		ExecutionTime: time.Since(startedAt),
		Output:        output,
		Attempts:      maxInt(attempts, 1),
	}
}

func (h *Harness) failed(agent string, startedAt time.Time, kind errkind.Kind, message string, raw []byte, attempts int) *AgentResult {
	return &AgentResult{
		AgentName:     agent,
		Status:        StatusFailed,
		StartedAt:     startedAt,
		CompletedAt:   time.Now().UTC(),
		ExecutionTime: time.Since(startedAt),
		Error:         &ResultError{Kind: kind, Message: message},
		RawResponse:   raw,
		Attempts:      maxInt(attempts, 1),
	}
}

func (h *Harness) stopped(agent string, startedAt time.Time, kind errkind.Kind, message string) *AgentResult {
	return &AgentResult{
		AgentName:     agent,
		Status:        StatusStopped,
		StartedAt:     startedAt,
		CompletedAt:   time.Now().UTC(),
		ExecutionTime: time.Since(startedAt),
		Error:         &ResultError{Kind: kind, Message: message},
		Attempts:      0,
	}
}

// writeAttemptAudit emits one audit record per live-mode provider call,
// on top of the single terminal record Execute writes once the whole
// invocation finishes. spec.md §8's retry-exhaustion scenario is
// explicit that a call retried three times produces "three audit
// records (one per attempt) plus one terminal record" — this is the
// per-attempt half of that; writeAudit (called once from Execute)
// supplies the terminal one.
func (h *Harness) writeAttemptAudit(def *contract.AgentDefinition, startedAt time.Time, ectx ExecContext, attempt int, kind errkind.Kind, ok bool) {
	if h.sink == nil {
		return
	}
	status := string(StatusFailed)
	if ok {
		status = string(StatusCompleted)
	}
	_ = h.sink.WriteExecution(audit.ExecutionRecord{
		AgentName:     def.Name,
		AgentClass:    string(def.Class),
		Status:        status,
		DurationMS:    time.Since(startedAt).Milliseconds(),
		Mode:          string(ectx.Mode),
		CorrelationID: ectx.CorrelationID,
		ChainRunID:    ectx.ChainRunID,
		ErrorKind:     string(kind),
		Attempt:       attempt,
	})
}

// writeAudit writes the audit record for a terminal AgentResult
// (spec.md §4.3: "on every terminal outcome, the Harness writes one
// JSON-line record to the daily execution log").
func (h *Harness) writeAudit(result *AgentResult, ectx ExecContext) {
	var kind string
	if result.Error != nil {
		kind = string(result.Error.Kind)
	}

	def := h.registry.Get(result.AgentName)
	class := ""
	if def != nil {
		class = string(def.Class)
	}

	if h.sink == nil {
		return
	}
	_ = h.sink.WriteExecution(audit.ExecutionRecord{
		AgentName:     result.AgentName,
		AgentClass:    class,
		Status:        string(result.Status),
		DurationMS:    result.ExecutionTime.Milliseconds(),
		Mode:          string(ectx.Mode),
		CorrelationID: ectx.CorrelationID,
		ChainRunID:    ectx.ChainRunID,
		ErrorKind:     kind,
		Attempt:       result.Attempts,
	})
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

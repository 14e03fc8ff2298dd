/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package provider defines the LLM provider collaborator interface
// consumed, not implemented, by the Harness (spec.md §6): a single
// Complete call that the Harness treats as opaque. Retries live in the
// Harness (spec.md §4.3), not here; a provider's job is only to make one
// call and classify its outcome.
package provider

import (
	"context"
	"fmt"

	"github.com/marcus-qen/governor/internal/errkind"
)

// Provider is the LLM backend abstraction. Implementations must be safe
// for concurrent use and must make exactly one call per Complete
// invocation — no provider-internal retrying.
type Provider interface {
	// Complete sends one completion request and returns the raw
	// response bytes, which the Harness parses as JSON and validates
	// against the agent's output schema.
	Complete(ctx context.Context, req *CompletionRequest) ([]byte, error)

	// Name returns the provider identifier (e.g. "anthropic").
	Name() string
}

// CompletionRequest is the input to an LLM completion call (spec.md
// §6: "complete(system, prompt, max_tokens, temperature,
// response_format) -> raw_bytes").
type CompletionRequest struct {
	System         string
	Prompt         string
	MaxTokens      int32
	Temperature    float64
	ResponseFormat string // e.g. "json" — providers that support structured output hints use this.
	Model          string
}

// CallError classifies a provider call failure into one of the closed
// error kinds the Harness understands (spec.md §7).
type CallError struct {
	Kind errkind.Kind
	Err  error
}

func (e *CallError) Error() string { return fmt.Sprintf("%s: %v", e.Kind, e.Err) }
func (e *CallError) Unwrap() error { return e.Err }

// ProviderConfig holds configuration for creating a provider.
type ProviderConfig struct {
	Type           string
	Endpoint       string
	APIKey         string
	Model          string
	CustomHeaders  map[string]string
	TimeoutSeconds int
}

// NewProvider creates a provider from config.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Type {
	case "anthropic":
		return NewAnthropicProvider(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider type: %q", cfg.Type)
	}
}

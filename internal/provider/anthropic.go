/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/marcus-qen/governor/internal/errkind"
)

const (
	anthropicDefaultEndpoint = "https://api.anthropic.com"
	anthropicDefaultModel    = "claude-sonnet-4-5"
	anthropicAPIVersion      = "2023-06-01"
)

// AnthropicProvider calls the Anthropic Messages API. It makes exactly
// one HTTP call per Complete; the Harness owns the retry loop (spec.md
// §4.3).
type AnthropicProvider struct {
	endpoint string
	apiKey   string
	model    string
	headers  map[string]string
	client   *http.Client
}

// NewAnthropicProvider creates an Anthropic provider.
func NewAnthropicProvider(cfg ProviderConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic provider requires API key")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = anthropicDefaultEndpoint
	}
	model := cfg.Model
	if model == "" {
		model = anthropicDefaultModel
	}
	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = 120
	}

	return &AnthropicProvider{
		endpoint: endpoint,
		apiKey:   cfg.APIKey,
		model:    model,
		headers:  cfg.CustomHeaders,
		client:   &http.Client{Timeout: time.Duration(timeout) * time.Second},
	}, nil
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int32              `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicResponse struct {
	Content    []anthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
	Usage      anthropicUsage          `json:"usage"`
	Error      *anthropicError         `json:"error,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Complete issues one request to the Anthropic Messages API and returns
// the concatenated text content as raw bytes — the Harness is
// responsible for parsing that text as JSON and validating it against
// the agent's output schema.
func (p *AnthropicProvider) Complete(ctx context.Context, req *CompletionRequest) ([]byte, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	apiReq := anthropicRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		System:      req.System,
		Messages:    []anthropicMessage{{Role: "user", Content: req.Prompt}},
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	apiResp, err := p.doOnce(ctx, body)
	if err != nil {
		return nil, err
	}

	if apiResp.Error != nil {
		return nil, &CallError{Kind: classifyAPIErrorType(apiResp.Error.Type), Err: fmt.Errorf("%s", apiResp.Error.Message)}
	}

	var text bytes.Buffer
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return text.Bytes(), nil
}

func classifyAPIErrorType(t string) errkind.Kind {
	switch t {
	case "rate_limit_error", "overloaded_error", "api_error":
		return errkind.ProviderTransient
	default:
		return errkind.ProviderPermanent
	}
}

func (p *AnthropicProvider) doOnce(ctx context.Context, body []byte) (*anthropicResponse, error) {
	url := p.endpoint + "/v1/messages"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)
	for k, v := range p.headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &CallError{Kind: errkind.ProviderTimeout, Err: err}
		}
		return nil, &CallError{Kind: errkind.ProviderTransient, Err: fmt.Errorf("HTTP request failed: %w", err)}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &CallError{Kind: errkind.IOError, Err: fmt.Errorf("read response: %w", err)}
	}

	switch {
	case httpResp.StatusCode == 429 || httpResp.StatusCode >= 500:
		return nil, &CallError{Kind: errkind.ProviderTransient, Err: fmt.Errorf("anthropic API returned %d: %s", httpResp.StatusCode, string(respBody))}
	case httpResp.StatusCode >= 400:
		return nil, &CallError{Kind: errkind.ProviderPermanent, Err: fmt.Errorf("anthropic API returned %d: %s", httpResp.StatusCode, string(respBody))}
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, &CallError{Kind: errkind.InvalidJSON, Err: fmt.Errorf("unmarshal response: %w", err)}
	}
	return &apiResp, nil
}

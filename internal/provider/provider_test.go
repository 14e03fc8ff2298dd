/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcus-qen/governor/internal/errkind"
)

func TestMockProvider_ReturnsQueuedResponses(t *testing.T) {
	mock := NewMockProvider([][]byte{[]byte(`{"a":1}`), []byte(`{"a":2}`)}, []error{nil, nil})

	out, err := mock.Complete(context.Background(), &CompletionRequest{Prompt: "first"})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(out))

	out, err = mock.Complete(context.Background(), &CompletionRequest{Prompt: "second"})
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, string(out))

	assert.Equal(t, 2, mock.CallCount())
}

func TestMockProvider_ReturnsQueuedError(t *testing.T) {
	wantErr := errors.New("boom")
	mock := NewMockProvider([][]byte{nil}, []error{wantErr})

	_, err := mock.Complete(context.Background(), &CompletionRequest{})
	assert.ErrorIs(t, err, wantErr)
}

func TestAnthropicProvider_RequiresAPIKey(t *testing.T) {
	_, err := NewAnthropicProvider(ProviderConfig{Type: "anthropic"})
	require.Error(t, err)
}

func TestAnthropicProvider_ParsesTextContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content":[{"type":"text","text":"{\"findings\":[]}"}],"stop_reason":"end_turn","usage":{"input_tokens":10,"output_tokens":5}}`))
	}))
	defer srv.Close()

	p, err := NewAnthropicProvider(ProviderConfig{Type: "anthropic", APIKey: "test-key", Endpoint: srv.URL})
	require.NoError(t, err)

	out, err := p.Complete(context.Background(), &CompletionRequest{Prompt: "scan"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"findings":[]}`, string(out))
}

func TestAnthropicProvider_ClassifiesTransientStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"type":"error"}`))
	}))
	defer srv.Close()

	p, err := NewAnthropicProvider(ProviderConfig{Type: "anthropic", APIKey: "test-key", Endpoint: srv.URL})
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), &CompletionRequest{Prompt: "scan"})
	require.Error(t, err)

	var callErr *CallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, errkind.ProviderTransient, callErr.Kind)
}

func TestAnthropicProvider_ClassifiesPermanentStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"type":"error"}`))
	}))
	defer srv.Close()

	p, err := NewAnthropicProvider(ProviderConfig{Type: "anthropic", APIKey: "test-key", Endpoint: srv.URL})
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), &CompletionRequest{Prompt: "scan"})
	require.Error(t, err)

	var callErr *CallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, errkind.ProviderPermanent, callErr.Kind)
}

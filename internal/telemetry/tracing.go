/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package telemetry configures OpenTelemetry tracing for the governance
// kernel. Spans follow the OTel GenAI semantic conventions where
// applicable:
//   - gen_ai.system — the LLM provider
//   - gen_ai.request.model — the model name
//   - gen_ai.usage.input_tokens — tokens consumed
//   - gen_ai.usage.output_tokens — tokens generated
//
// Custom span attributes use the `governor.` prefix. Adapted from the
// teacher's internal/telemetry/tracing.go; the OTLP gRPC exporter wiring
// was dropped in favor of letting the caller attach its own span
// processor, since the kernel has no standing collector to export to
// (see DESIGN.md).
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "governor/kernel"

// Tracer returns the package-level tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// InitTraceProvider installs an always-sampling SDK trace provider tagged
// with the kernel's service identity. Span exporting is left to whatever
// SpanProcessor the caller attaches via opts; with none attached, spans
// are still built and timed (useful for exercising the Harness/
// Orchestrator instrumentation in tests) but are simply dropped at
// Shutdown. Returns a shutdown function that must be called on
// application exit.
func InitTraceProvider(ctx context.Context, version string, opts ...sdktrace.TracerProviderOption) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", "governor"),
			attribute.String("service.version", version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	allOpts := append([]sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}, opts...)

	tp := sdktrace.NewTracerProvider(allOpts...)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// --- Span helpers ---

// StartExecutionSpan creates the parent span for one Harness.Execute call.
func StartExecutionSpan(ctx context.Context, agent, mode string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "agent.execute",
		trace.WithAttributes(
			attribute.String("governor.agent", agent),
			attribute.String("governor.mode", mode),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndExecutionSpan enriches the execution span with its terminal outcome.
func EndExecutionSpan(span trace.Span, status string, errorKind string) {
	span.SetAttributes(attribute.String("governor.status", status))
	if errorKind != "" {
		span.SetAttributes(attribute.String("governor.error_kind", errorKind))
	}
	span.End()
}

// StartProviderCallSpan creates a child span for one live-mode provider
// call, following GenAI conventions.
func StartProviderCallSpan(ctx context.Context, model, provider string, attempt int) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "gen_ai.chat",
		trace.WithAttributes(
			attribute.String("gen_ai.system", provider),
			attribute.String("gen_ai.request.model", model),
			attribute.Int("governor.attempt", attempt),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// EndProviderCallSpan enriches the provider-call span with usage data.
func EndProviderCallSpan(span trace.Span, inputTokens, outputTokens int64) {
	span.SetAttributes(
		attribute.Int64("gen_ai.usage.input_tokens", inputTokens),
		attribute.Int64("gen_ai.usage.output_tokens", outputTokens),
	)
	span.End()
}

// StartChainSpan creates the parent span for one Orchestrator.Execute
// call.
func StartChainSpan(ctx context.Context, chainName, repoRoot string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "chain.execute",
		trace.WithAttributes(
			attribute.String("governor.chain", chainName),
			attribute.String("governor.repository_root", repoRoot),
		),
	)
}

// EndChainSpan enriches the chain span with its terminal status.
func EndChainSpan(span trace.Span, status string, stepCount int) {
	span.SetAttributes(
		attribute.String("governor.chain_status", status),
		attribute.Int("governor.step_count", stepCount),
	)
	span.End()
}

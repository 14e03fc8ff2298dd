/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/marcus-qen/governor/internal/audit"
	"github.com/marcus-qen/governor/internal/errkind"
	"github.com/marcus-qen/governor/internal/provider"
	"github.com/marcus-qen/governor/internal/registry"
)

const scanAgentContract = `---
name: scan-dependencies
class: read-only-scan
input:
  - name: manifest_path
    required: true
output_schema:
  type: object
  required: [findings, scanned_at]
  properties:
    findings:
      type: array
    scanned_at:
      type: string
---
Scan {{manifest_path}} for vulnerable dependencies.
`

func newTestHarness(repoRoot string, prov provider.Provider) (*Harness, *registry.Registry) {
	contractsDir, err := os.MkdirTemp("", "contracts")
	Expect(err).NotTo(HaveOccurred())
	Expect(os.WriteFile(filepath.Join(contractsDir, "scan.md"), []byte(scanAgentContract), 0o644)).To(Succeed())

	reg := registry.New(logr.Discard())
	Expect(reg.Load(context.Background(), contractsDir)).To(Succeed())

	sink := audit.New(filepath.Join(repoRoot, "..", "audit"))
	h := New(reg, prov, sink, logr.Discard())
	return h, reg
}

// countExecutionAuditLines sums the JSON-lines across every execution
// log file in dir, used to measure how many audit records a single
// Execute call wrote without depending on any one day's file name.
func countExecutionAuditLines(repoRoot string) int {
	matches, err := filepath.Glob(filepath.Join(repoRoot, "..", "audit", "execution_*.jsonl"))
	Expect(err).NotTo(HaveOccurred())

	total := 0
	for _, m := range matches {
		data, err := os.ReadFile(m)
		Expect(err).NotTo(HaveOccurred())
		for _, line := range bytes.Split(data, []byte("\n")) {
			if len(bytes.TrimSpace(line)) > 0 {
				total++
			}
		}
	}
	return total
}

var _ = Describe("Harness", func() {
	var repoRoot string

	BeforeEach(func() {
		var err error
		repoRoot, err = os.MkdirTemp("", "repo")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(repoRoot)
	})

	Context("precheck failures", func() {
		It("stops when the agent is not registered", func() {
			h, _ := newTestHarness(repoRoot, nil)
			result := h.Execute(context.Background(), "does-not-exist", nil, ExecContext{RepositoryRoot: repoRoot, Mode: ModeDryRun})

			Expect(result.Status).To(Equal(StatusStopped))
			Expect(result.Error.Kind).To(Equal(errkind.NotRegistered))
		})

		It("stops when repository_root does not exist", func() {
			h, _ := newTestHarness(repoRoot, nil)
			result := h.Execute(context.Background(), "scan-dependencies",
				map[string]any{"manifest_path": "go.mod"},
				ExecContext{RepositoryRoot: filepath.Join(repoRoot, "missing"), Mode: ModeDryRun})

			Expect(result.Status).To(Equal(StatusStopped))
			Expect(result.Error.Kind).To(Equal(errkind.PrecheckFailed))
		})

		It("stops when a required input field is missing", func() {
			h, _ := newTestHarness(repoRoot, nil)
			result := h.Execute(context.Background(), "scan-dependencies", map[string]any{}, ExecContext{RepositoryRoot: repoRoot, Mode: ModeDryRun})

			Expect(result.Status).To(Equal(StatusStopped))
			Expect(result.Error.Kind).To(Equal(errkind.PrecheckFailed))
			Expect(result.Error.Message).To(ContainSubstring("manifest_path"))
		})

		It("stops when a write target is disallowed for the agent's class", func() {
			h, _ := newTestHarness(repoRoot, nil)
			result := h.Execute(context.Background(), "scan-dependencies",
				map[string]any{"manifest_path": "go.mod", "write_paths": []any{"src/main.go"}},
				ExecContext{RepositoryRoot: repoRoot, Mode: ModeDryRun})

			Expect(result.Status).To(Equal(StatusStopped))
			Expect(result.Error.Kind).To(Equal(errkind.PrecheckFailed))
		})
	})

	Context("dry_run mode", func() {
		It("returns completed with an empty output and makes no provider call", func() {
			prov := provider.NewMockProvider(nil, nil)
			h, _ := newTestHarness(repoRoot, prov)

			result := h.Execute(context.Background(), "scan-dependencies",
				map[string]any{"manifest_path": "go.mod"},
				ExecContext{RepositoryRoot: repoRoot, Mode: ModeDryRun})

			Expect(result.Status).To(Equal(StatusCompleted))
			Expect(string(result.Output)).To(Equal("{}"))
			Expect(prov.CallCount()).To(Equal(0))
		})
	})

	Context("simulated mode", func() {
		It("synthesizes required fields with schema-appropriate defaults", func() {
			prov := provider.NewMockProvider(nil, nil)
			h, _ := newTestHarness(repoRoot, prov)

			result := h.Execute(context.Background(), "scan-dependencies",
				map[string]any{"manifest_path": "go.mod"},
				ExecContext{RepositoryRoot: repoRoot, Mode: ModeSimulated})

			Expect(result.Status).To(Equal(StatusCompleted))
			Expect(prov.CallCount()).To(Equal(0))

			var output map[string]any
			Expect(json.Unmarshal(result.Output, &output)).To(Succeed())
			Expect(output["findings"]).To(Equal([]any{}))
			Expect(output["scanned_at"]).NotTo(BeEmpty())
		})

		It("produces identical final-state shapes across two runs", func() {
			prov := provider.NewMockProvider(nil, nil)
			h, _ := newTestHarness(repoRoot, prov)

			r1 := h.Execute(context.Background(), "scan-dependencies", map[string]any{"manifest_path": "go.mod"}, ExecContext{RepositoryRoot: repoRoot, Mode: ModeSimulated})
			r2 := h.Execute(context.Background(), "scan-dependencies", map[string]any{"manifest_path": "go.mod"}, ExecContext{RepositoryRoot: repoRoot, Mode: ModeSimulated})

			var o1, o2 map[string]any
			Expect(json.Unmarshal(r1.Output, &o1)).To(Succeed())
			Expect(json.Unmarshal(r2.Output, &o2)).To(Succeed())
			Expect(o1["findings"]).To(Equal(o2["findings"]))
		})
	})

	Context("live mode", func() {
		It("parses and validates a successful provider response", func() {
			prov := provider.NewMockProvider([][]byte{[]byte(`{"findings":[],"scanned_at":"2026-07-31T00:00:00Z"}`)}, []error{nil})
			h, _ := newTestHarness(repoRoot, prov)

			result := h.Execute(context.Background(), "scan-dependencies",
				map[string]any{"manifest_path": "go.mod"},
				ExecContext{RepositoryRoot: repoRoot, Mode: ModeLive})

			Expect(result.Status).To(Equal(StatusCompleted))
			Expect(prov.CallCount()).To(Equal(1))
		})

		It("fails with invalid_json and does not retry on malformed provider output", func() {
			prov := provider.NewMockProvider([][]byte{[]byte(`not json`)}, []error{nil})
			h, _ := newTestHarness(repoRoot, prov)

			result := h.Execute(context.Background(), "scan-dependencies",
				map[string]any{"manifest_path": "go.mod"},
				ExecContext{RepositoryRoot: repoRoot, Mode: ModeLive})

			Expect(result.Status).To(Equal(StatusFailed))
			Expect(result.Error.Kind).To(Equal(errkind.InvalidJSON))
			Expect(prov.CallCount()).To(Equal(1))
		})

		It("fails with validation_failed and does not retry on a missing required field", func() {
			prov := provider.NewMockProvider([][]byte{[]byte(`{"findings":[]}`)}, []error{nil})
			h, _ := newTestHarness(repoRoot, prov)

			result := h.Execute(context.Background(), "scan-dependencies",
				map[string]any{"manifest_path": "go.mod"},
				ExecContext{RepositoryRoot: repoRoot, Mode: ModeLive})

			Expect(result.Status).To(Equal(StatusFailed))
			Expect(result.Error.Kind).To(Equal(errkind.ValidationFailed))
			Expect(result.Error.Message).To(ContainSubstring("scanned_at"))
			Expect(prov.CallCount()).To(Equal(1))
		})

		It("retries a transient provider failure up to three times then exhausts", func() {
			transientErr := &provider.CallError{Kind: errkind.ProviderTransient, Err: errors.New("503")}
			prov := provider.NewMockProvider(
				[][]byte{nil, nil, nil},
				[]error{transientErr, transientErr, transientErr},
			)
			h, _ := newTestHarness(repoRoot, prov)
			h.WithRetryPolicy(3, time.Millisecond)

			before := countExecutionAuditLines(repoRoot)
			result := h.Execute(context.Background(), "scan-dependencies",
				map[string]any{"manifest_path": "go.mod"},
				ExecContext{RepositoryRoot: repoRoot, Mode: ModeLive})

			Expect(result.Status).To(Equal(StatusFailed))
			Expect(result.Error.Kind).To(Equal(errkind.ProviderTransientExhausted))
			Expect(prov.CallCount()).To(Equal(3))
			Expect(countExecutionAuditLines(repoRoot) - before).To(Equal(4), "three per-attempt audit records plus one terminal record")
		})

		It("succeeds after one transient retry", func() {
			transientErr := &provider.CallError{Kind: errkind.ProviderTransient, Err: errors.New("503")}
			prov := provider.NewMockProvider(
				[][]byte{nil, []byte(`{"findings":[],"scanned_at":"2026-07-31T00:00:00Z"}`)},
				[]error{transientErr, nil},
			)
			h, _ := newTestHarness(repoRoot, prov)
			h.WithRetryPolicy(3, time.Millisecond)

			before := countExecutionAuditLines(repoRoot)
			result := h.Execute(context.Background(), "scan-dependencies",
				map[string]any{"manifest_path": "go.mod"},
				ExecContext{RepositoryRoot: repoRoot, Mode: ModeLive})

			Expect(result.Status).To(Equal(StatusCompleted))
			Expect(prov.CallCount()).To(Equal(2))
			Expect(countExecutionAuditLines(repoRoot) - before).To(Equal(3), "one per-attempt audit record per call plus one terminal record")
		})

		It("does not retry a permanent provider error", func() {
			permanentErr := &provider.CallError{Kind: errkind.ProviderPermanent, Err: errors.New("401")}
			prov := provider.NewMockProvider([][]byte{nil}, []error{permanentErr})
			h, _ := newTestHarness(repoRoot, prov)
			h.WithRetryPolicy(3, time.Millisecond)

			result := h.Execute(context.Background(), "scan-dependencies",
				map[string]any{"manifest_path": "go.mod"},
				ExecContext{RepositoryRoot: repoRoot, Mode: ModeLive})

			Expect(result.Status).To(Equal(StatusFailed))
			Expect(result.Error.Kind).To(Equal(errkind.ProviderPermanent))
			Expect(prov.CallCount()).To(Equal(1))
		})
	})
})

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
	"os"
	"path/filepath"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/marcus-qen/governor/internal/audit"
	"github.com/marcus-qen/governor/internal/harness"
	"github.com/marcus-qen/governor/internal/provider"
	"github.com/marcus-qen/governor/internal/registry"
	"github.com/marcus-qen/governor/internal/statemgr"
)

const discoveryContract = `---
name: discover
class: read-only-scan
output_schema:
  type: object
  required: [findings]
  properties:
    findings:
      type: array
---
Discover things.
`

const summarizeContract = `---
name: summarize
class: planning-synthesis
input:
  - name: value
    required: true
output_schema:
  type: object
  required: [summary]
  properties:
    summary:
      type: string
---
Summarize {{value}}.
`

func newTestOrchestrator(repoRoot, varRoot string) *Orchestrator {
	contractsDir, err := os.MkdirTemp("", "contracts")
	Expect(err).NotTo(HaveOccurred())
	Expect(os.WriteFile(filepath.Join(contractsDir, "discover.md"), []byte(discoveryContract), 0o644)).To(Succeed())
	Expect(os.WriteFile(filepath.Join(contractsDir, "summarize.md"), []byte(summarizeContract), 0o644)).To(Succeed())

	reg := registry.New(logr.Discard())
	Expect(reg.Load(context.Background(), contractsDir)).To(Succeed())

	prov := provider.NewMockProvider(nil, nil)
	sink := audit.New(filepath.Join(varRoot, "audit"))
	h := harness.New(reg, prov, sink, logr.Discard())

	mgr, err := statemgr.New(filepath.Join(varRoot, "state"), logr.Discard())
	Expect(err).NotTo(HaveOccurred())

	return New(h, mgr, logr.Discard())
}

var _ = Describe("Orchestrator", func() {
	var repoRoot, varRoot string

	BeforeEach(func() {
		var err error
		repoRoot, err = os.MkdirTemp("", "repo")
		Expect(err).NotTo(HaveOccurred())
		varRoot, err = os.MkdirTemp("", "var")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(repoRoot)
		os.RemoveAll(varRoot)
	})

	It("runs a two-step dry-run chain and persists a completed run", func() {
		o := newTestOrchestrator(repoRoot, varRoot)
		def := ChainDefinition{
			Name: "two-step",
			Steps: []ChainStep{
				{AgentName: "discover", OutputKey: "discovery"},
				{AgentName: "summarize", InputMapping: "$.discovery"},
			},
		}

		run, err := o.Execute(context.Background(), def, repoRoot, harness.ModeDryRun, Callbacks{})
		Expect(err).NotTo(HaveOccurred())
		Expect(run.Status).To(Equal(StatusCompleted))
		Expect(run.AgentResults).To(HaveLen(2))
		Expect(run.AgentResults[0].Status).To(Equal(harness.StatusCompleted))
		Expect(run.AgentResults[1].Status).To(Equal(harness.StatusCompleted))
		Expect(run.FinalState["discovery"]).To(Equal(map[string]any{}))

		persisted, err := newStateManagerFor(varRoot).GetChainRun(run.RunID)
		Expect(err).NotTo(HaveOccurred())
		Expect(persisted.Status).To(Equal("completed"))
	})

	It("never creates a repository-state file for a dry-run chain", func() {
		o := newTestOrchestrator(repoRoot, varRoot)
		def := ChainDefinition{
			Name:  "two-step",
			Steps: []ChainStep{{AgentName: "discover", OutputKey: "discovery"}},
		}

		_, err := o.Execute(context.Background(), def, repoRoot, harness.ModeDryRun, Callbacks{})
		Expect(err).NotTo(HaveOccurred())

		state, err := newStateManagerFor(varRoot).GetRepositoryState(repoRoot)
		Expect(err).NotTo(HaveOccurred())
		Expect(state.Fingerprint).To(BeEmpty(), "dry_run must never write repository state (spec.md §8)")
		Expect(state.Metrics.TotalRuns).To(BeZero())
	})

	It("halts at a precheck failure without running later steps", func() {
		o := newTestOrchestrator(repoRoot, varRoot)
		def := ChainDefinition{
			Name: "halts",
			Steps: []ChainStep{
				{AgentName: "summarize"}, // missing required "value" input -> stopped
				{AgentName: "discover", OutputKey: "discovery"},
			},
		}

		run, err := o.Execute(context.Background(), def, repoRoot, harness.ModeDryRun, Callbacks{})
		Expect(err).NotTo(HaveOccurred())
		Expect(run.Status).To(Equal(StatusPrecheckFailed))
		Expect(run.AgentResults).To(HaveLen(1))
		Expect(run.AgentResults[0].Status).To(Equal(harness.StatusStopped))
	})

	It("continues past a failed step when continue_on_failure is set", func() {
		o := newTestOrchestrator(repoRoot, varRoot)
		def := ChainDefinition{
			Name: "continues",
			Steps: []ChainStep{
				{AgentName: "summarize", ContinueOnFailure: true, OutputKey: "a"}, // missing input -> stopped, but continues
				{AgentName: "discover", OutputKey: "b"},
			},
		}

		run, err := o.Execute(context.Background(), def, repoRoot, harness.ModeSimulated, Callbacks{})
		Expect(err).NotTo(HaveOccurred())
		Expect(run.Status).To(Equal(StatusCompleted))
		Expect(run.AgentResults).To(HaveLen(2))
		Expect(run.FinalState).To(HaveKey("a"))
		Expect(run.FinalState).To(HaveKey("b"))

		aVal, ok := run.FinalState["a"].(map[string]any)
		Expect(ok).To(BeTrue())
		Expect(aVal["status"]).To(Equal("stopped"))
	})

	It("rejects a chain definition with duplicate output keys before running any step", func() {
		o := newTestOrchestrator(repoRoot, varRoot)
		def := ChainDefinition{
			Name: "dup",
			Steps: []ChainStep{
				{AgentName: "discover", OutputKey: "x"},
				{AgentName: "discover", OutputKey: "x"},
			},
		}

		_, err := o.Execute(context.Background(), def, repoRoot, harness.ModeDryRun, Callbacks{})
		Expect(err).To(HaveOccurred())
	})

	It("invokes the step-complete callback once per attempted step", func() {
		o := newTestOrchestrator(repoRoot, varRoot)
		def := ChainDefinition{
			Name:  "cb",
			Steps: []ChainStep{{AgentName: "discover", OutputKey: "discovery"}},
		}

		var calls int
		_, err := o.Execute(context.Background(), def, repoRoot, harness.ModeDryRun, Callbacks{
			OnStepComplete: func(i int, step ChainStep, result *harness.AgentResult) {
				calls++
			},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(calls).To(Equal(1))
	})
})

func newStateManagerFor(varRoot string) *statemgr.Manager {
	mgr, err := statemgr.New(filepath.Join(varRoot, "state"), logr.Discard())
	Expect(err).NotTo(HaveOccurred())
	return mgr
}

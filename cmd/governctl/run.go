/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marcus-qen/governor/internal/harness"
	"github.com/marcus-qen/governor/internal/orchestrator"
)

func newRunCommand() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "run <chain-file> <repository-root>",
		Short: "Execute a chain definition against a repository root",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := orchestrator.LoadChainFile(args[0])
			if err != nil {
				return err
			}

			m := harness.Mode(mode)
			if m != harness.ModeDryRun && m != harness.ModeSimulated && m != harness.ModeLive {
				return fmt.Errorf("invalid --mode %q: must be one of dry_run, simulated, live", mode)
			}

			k, err := newKernel(cmd.Context())
			if err != nil {
				return err
			}

			run, err := k.orch.Execute(cmd.Context(), def, args[1], m, orchestrator.Callbacks{})
			if err != nil {
				return fmt.Errorf("execute chain %q: %w", def.Name, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "run %s: %s (%d steps)\n", run.RunID, run.Status, len(run.AgentResults))
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", string(harness.ModeDryRun), "execution mode: dry_run, simulated, or live")

	return cmd
}

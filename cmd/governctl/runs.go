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
)

func newRunsCommand() *cobra.Command {
	var repoRoot string
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List past chain runs for a repository root",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := newKernel(cmd.Context())
			if err != nil {
				return err
			}
			entries, err := k.state.ListRuns(repoRoot, limit)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}
			for _, e := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", e.RunID, e.RepositoryRoot, e.StartedAt.Format("2006-01-02T15:04:05Z"))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&repoRoot, "repository-root", "", "restrict to runs against this repository root")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of runs to list")

	return cmd
}

/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Command governctl is the thin CLI shell over the governance kernel: it
// wires Orchestrator.Execute, Registry.List, Manager.ListRuns, and
// Registry.Get to subcommands and nothing else. No output formatting,
// color, pagination, or interactivity flags are implemented.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "governctl",
		Short: "Drive the repository governance kernel",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a governor config JSON file")

	root.AddCommand(newRunCommand())
	root.AddCommand(newAgentsCommand())
	root.AddCommand(newRunsCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

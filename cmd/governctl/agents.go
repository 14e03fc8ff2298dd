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

func newAgentsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "Inspect the agent registry",
	}
	cmd.AddCommand(newAgentsListCommand())
	cmd.AddCommand(newAgentsReadCommand())
	return cmd
}

func newAgentsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every agent currently registered",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := newKernel(cmd.Context())
			if err != nil {
				return err
			}
			for _, a := range k.reg.List() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", a.Name, a.Class)
			}
			return nil
		},
	}
}

func newAgentsReadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "read <name>",
		Short: "Print one agent's contract definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := newKernel(cmd.Context())
			if err != nil {
				return err
			}
			a := k.reg.Get(args[0])
			if a == nil {
				return fmt.Errorf("no agent registered as %q", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "name: %s\nclass: %s\ndescription: %s\nsource: %s\n",
				a.Name, a.Class, a.Description, a.Source)
			return nil
		},
	}
}

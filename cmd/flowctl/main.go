// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package main implements the flowctl CLI tool for working with workflow
// documents: validating them, inspecting their execution plan, and running
// them against a local script directory.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "1.0.0"

func main() {
	rootCmd := &cobra.Command{
		Use:     "flowctl",
		Short:   "Workflow kernel CLI",
		Long:    `flowctl validates, plans, and executes declarative workflow YAML documents.`,
		Version: version,
	}

	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(runCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

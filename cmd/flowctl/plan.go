// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"axonflow/flowkernel/engine"
)

func planCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan <workflow.yaml>",
		Short: "Print the execution plan (dependency levels) for a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := loadWorkflow(args[0])
			if err != nil {
				return err
			}
			if errs := engine.Validate(wf); engine.HasErrors(errs) {
				return fmt.Errorf("workflow is invalid, run 'flowctl validate' for details")
			}

			plan, err := engine.AnalyzeDependencies(wf)
			if err != nil {
				return err
			}

			for i, level := range plan.Levels {
				fmt.Printf("level %d: %s\n", i, strings.Join(level.StepIDs, ", "))
			}
			fmt.Printf("max parallelism: %d\n", plan.MaxParallelism())
			return nil
		},
	}
	return cmd
}

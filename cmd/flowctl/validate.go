// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"axonflow/flowkernel/config"
	"axonflow/flowkernel/engine"
)

func loadWorkflow(path string) (*engine.Workflow, error) {
	cfg := config.Default()
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return engine.Parse(f, cfg.MaxDocumentBytes)
}

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <workflow.yaml>",
		Short: "Parse and validate a workflow document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := loadWorkflow(args[0])
			if err != nil {
				return err
			}

			errs := engine.Validate(wf)
			if len(errs) == 0 {
				fmt.Printf("%s: valid\n", wf.Workflow.Name)
				return nil
			}

			for _, e := range errs {
				fmt.Println(e.Error())
			}
			if engine.HasErrors(errs) {
				return fmt.Errorf("validation failed")
			}
			return nil
		},
	}
	return cmd
}

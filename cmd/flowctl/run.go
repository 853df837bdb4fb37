// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"axonflow/flowkernel/config"
	"axonflow/flowkernel/engine"
	"axonflow/flowkernel/shared/flowlog"
)

func runCmd() *cobra.Command {
	var inputFlags []string
	var projectRoot string
	var interpreterBin string
	var parallel bool
	var maxConcurrency int
	var bedrockRegion string
	var bedrockModel string
	var bedrockAccessKeyID string
	var bedrockSecretAccessKey string
	var runID string

	cmd := &cobra.Command{
		Use:   "run <workflow.yaml>",
		Short: "Execute a workflow and print its event trace and result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := loadWorkflow(args[0])
			if err != nil {
				return err
			}
			if errs := engine.Validate(wf); engine.HasErrors(errs) {
				for _, e := range errs {
					fmt.Println(e.Error())
				}
				return fmt.Errorf("workflow is invalid, run 'flowctl validate' for details")
			}

			inputs, err := parseInputFlags(inputFlags)
			if err != nil {
				return err
			}

			cfg := config.Default()
			if projectRoot == "" {
				projectRoot = "."
			}
			if interpreterBin == "" {
				interpreterBin = "python3"
			}

			log := flowlog.New("flowctl")
			events := engine.NewEventBus()
			events.On(engine.EventStepStarted, traceListener("step_started"))
			events.On(engine.EventStepCompleted, traceListener("step_completed"))
			events.On(engine.EventStepFailed, traceListener("step_failed"))

			runner := engine.NewRunner(projectRoot, interpreterBin, cfg.ScriptKillGrace, log, events)

			llm, err := resolveLLMBackend(bedrockRegion, bedrockModel, bedrockAccessKeyID, bedrockSecretAccessKey)
			if err != nil {
				return err
			}

			ex := engine.NewExecutor(log, events, engine.NewCircuitBreakerRegistry(), runner, llm, engine.GetDebugController())

			opts := engine.DefaultExecutorOptions()
			opts.EnableParallelExecution = parallel
			if maxConcurrency > 0 {
				opts.MaxConcurrency = maxConcurrency
			}

			if runID == "" {
				runID = uuid.New().String()
			}
			workflowID := fmt.Sprintf("%s:%s", wf.Workflow.Name, runID)

			result := ex.ExecuteWorkflow(context.Background(), wf, inputs, opts, workflowID)

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			if !result.Success {
				return fmt.Errorf("workflow failed at step %q: %s", result.FailedStepID, result.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&inputFlags, "input", nil, "workflow input as key=value (repeatable)")
	cmd.Flags().StringVar(&projectRoot, "project-root", ".", "directory script steps are sandboxed to")
	cmd.Flags().StringVar(&interpreterBin, "interpreter", "python3", "interpreter binary used to run script steps")
	cmd.Flags().BoolVar(&parallel, "parallel", false, "enable parallel execution within a dependency level")
	cmd.Flags().IntVar(&maxConcurrency, "max-concurrency", 0, "cap concurrent steps per level (0 = engine default)")
	cmd.Flags().StringVar(&bedrockRegion, "bedrock-region", "", "AWS region for llm steps (enables the Bedrock backend)")
	cmd.Flags().StringVar(&bedrockModel, "bedrock-model", "", "Bedrock model ID (accepted but not used: each llm step's model field selects the model)")
	cmd.Flags().StringVar(&bedrockAccessKeyID, "bedrock-access-key-id", "", "explicit AWS access key for Bedrock (default: ambient credential chain)")
	cmd.Flags().StringVar(&bedrockSecretAccessKey, "bedrock-secret-access-key", "", "explicit AWS secret key for Bedrock (default: ambient credential chain)")
	cmd.Flags().StringVar(&runID, "run-id", "", "identifier for this run, used in workflow_id (default: generated)")

	return cmd
}

func traceListener(event string) engine.Listener {
	return func(payload map[string]interface{}) {
		line, err := json.Marshal(payload)
		if err != nil {
			fmt.Printf("%s: %v\n", event, payload)
			return
		}
		fmt.Printf("%s %s\n", event, string(line))
	}
}

// parseInputFlags turns repeated "key=value" flags into a typed input map,
// inferring number and boolean types the way a shell-facing CLI should so
// callers are not forced to quote every scalar as JSON.
func parseInputFlags(flags []string) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	for _, kv := range flags {
		name, raw, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("--input %q must be in key=value form", kv)
		}
		out[name] = inferScalar(raw)
	}
	return out, nil
}

func inferScalar(raw string) interface{} {
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return raw
}

// resolveLLMBackend loads the Bedrock backend using AWS Signature V4
// credentials from the ambient environment when a region is supplied,
// otherwise falls back to a static stub suitable for workflows with no
// llm steps or with canned-response testing in mind. An explicit access
// key and secret key override the ambient credential chain.
func resolveLLMBackend(region, model, accessKeyID, secretAccessKey string) (engine.LLMBackend, error) {
	if region == "" {
		return &engine.StaticLLMBackend{Default: "flowctl: no Bedrock region configured"}, nil
	}

	optFns := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKeyID != "" && secretAccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")
		optFns = append(optFns, awsconfig.WithCredentialsProvider(creds))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), optFns...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for Bedrock (region: %s): %w", region, err)
	}
	client := bedrockruntime.NewFromConfig(awsCfg)
	_ = model // steps declare their own model ID; flag documents the operator's default
	return &engine.BedrockLLMBackend{Client: client}, nil
}

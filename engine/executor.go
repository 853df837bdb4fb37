// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package engine

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"axonflow/flowkernel/shared/ferrors"
	"axonflow/flowkernel/shared/flowlog"
)

// ExecutorOptions configures one ExecuteWorkflow call.
type ExecutorOptions struct {
	EnableParallelExecution bool
	MaxConcurrency          int
	ErrorPropagationStrategy string
}

// DefaultExecutorOptions returns the documented defaults.
func DefaultExecutorOptions() ExecutorOptions {
	return ExecutorOptions{
		EnableParallelExecution: false,
		MaxConcurrency:          4,
		ErrorPropagationStrategy: PropagationFailFast,
	}
}

// Executor is the top-level orchestrator: it walks the dependency
// analyzer's levels in order, running each level's steps one by one or,
// with parallel execution enabled, through a semaphore-bounded parallel
// group, merging each step's outputs into the execution context before the
// next level starts.
type Executor struct {
	Log      *flowlog.Logger
	Events   *EventBus
	Breakers *CircuitBreakerRegistry
	Runner   *Runner
	LLM      LLMBackend
	Debug    *DebugController
}

// NewExecutor wires the full dispatch registry together.
func NewExecutor(log *flowlog.Logger, events *EventBus, breakers *CircuitBreakerRegistry, runner *Runner, llm LLMBackend, debug *DebugController) *Executor {
	return &Executor{Log: log, Events: events, Breakers: breakers, Runner: runner, LLM: llm, Debug: debug}
}

// ExecuteWorkflow is the single entry point: resolve inputs, compute the
// execution plan, then walk levels, publishing lifecycle events throughout.
func (ex *Executor) ExecuteWorkflow(ctx context.Context, wf *Workflow, inputs map[string]interface{}, opts ExecutorOptions, workflowID string) ExecutionResult {
	start := time.Now()

	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 4
	}
	if opts.ErrorPropagationStrategy == "" {
		opts.ErrorPropagationStrategy = PropagationFailFast
	}

	resolvedInputs := mergeInputDefaults(wf, inputs)
	if missing := missingRequiredInputs(wf, resolvedInputs); len(missing) > 0 {
		return ExecutionResult{
			Success:         false,
			Error:           fmt.Sprintf("missing required input(s): %s", strings.Join(missing, ", ")),
			TotalDurationMs: time.Since(start).Milliseconds(),
		}
	}
	execCtx := NewExecutionContext(resolvedInputs, processEnv())

	plan, err := AnalyzeDependencies(wf)
	if err != nil {
		return ExecutionResult{
			Success: false,
			Error:   err.Error(),
			TotalDurationMs: time.Since(start).Milliseconds(),
		}
	}

	ex.publish(EventWorkflowStarted, map[string]interface{}{
		"workflow_id": workflowID,
		"total_steps": len(wf.Steps),
		"start_time":  start.Unix(),
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Loop body steps run only inside their loop's iterations, never as
	// top-level steps.
	skipped := map[string]bool{}
	for _, s := range wf.Steps {
		if s.Type == StepLoop {
			for _, id := range s.LoopSteps {
				skipped[id] = true
			}
		}
	}
	outputs := map[string]interface{}{}
	successCount, failureCount := 0, 0
	var failedStepID, topError string
	aborted := false

	for _, level := range plan.Levels {
		if aborted {
			break
		}
		var members []string
		for _, id := range level.StepIDs {
			if !skipped[id] {
				members = append(members, id)
			}
		}
		if len(members) == 0 {
			continue
		}

		levelResults := ex.runLevel(runCtx, wf, plan, execCtx, members, opts)

		for _, res := range levelResults {
			if res.Skipped {
				skipped[res.StepID] = true
				continue
			}
			if res.NewlySkipped != nil {
				for _, id := range res.NewlySkipped {
					skipped[id] = true
				}
			}
			if res.Outputs != nil {
				outputs[res.StepID] = res.Outputs
			}
			if res.Success {
				successCount++
			} else {
				failureCount++
				if failedStepID == "" {
					failedStepID = res.StepID
					topError = res.Error
				}
				if res.Abort {
					aborted = true
					cancel()
				}
			}
		}
	}

	result := ExecutionResult{
		Success:         !aborted,
		Outputs:         outputs,
		SuccessCount:    successCount,
		FailureCount:    failureCount,
		TotalDurationMs: time.Since(start).Milliseconds(),
	}
	if aborted {
		result.FailedStepID = failedStepID
		result.Error = topError
	}

	ex.publish(EventWorkflowCompleted, map[string]interface{}{
		"workflow_id":     workflowID,
		"total_duration":  result.TotalDurationMs,
		"results":         outputs,
		"success_count":   successCount,
		"failure_count":   failureCount,
		"timestamp":       time.Now().Unix(),
	})

	return result
}

// stepResult is one step's contribution to the level barrier.
type stepResult struct {
	StepID       string
	Success      bool
	Skipped      bool
	Outputs      map[string]interface{}
	Error        string
	Abort        bool
	NewlySkipped []string
}

// runLevel executes one level's members, sequentially in YAML order or
// concurrently bounded by max_concurrency.
func (ex *Executor) runLevel(ctx context.Context, wf *Workflow, plan *ExecutionPlan, execCtx *ExecutionContext, members []string, opts ExecutorOptions) []stepResult {
	if !opts.EnableParallelExecution {
		var results []stepResult
		for _, id := range members {
			results = append(results, ex.runStep(ctx, wf, plan, execCtx, plan.ByID[id], opts))
			if ctx.Err() != nil {
				break
			}
		}
		return results
	}

	sem := make(chan struct{}, opts.MaxConcurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	results := make([]stepResult, 0, len(members))

	for _, id := range members {
		step := plan.ByID[id]
		wg.Add(1)
		sem <- struct{}{}
		go func(step *Step) {
			defer wg.Done()
			defer func() { <-sem }()
			r := ex.runStep(ctx, wf, plan, execCtx, step, opts)
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		}(step)
	}
	wg.Wait()
	return results
}

// runStep resolves inputs, consults the Debug Controller, dispatches by
// type, wraps script/llm dispatch in Retry Policy, and applies Error
// Propagation on failure.
func (ex *Executor) runStep(ctx context.Context, wf *Workflow, plan *ExecutionPlan, execCtx *ExecutionContext, step *Step, opts ExecutorOptions) stepResult {
	if ctx.Err() != nil {
		return stepResult{StepID: step.ID, Skipped: true}
	}

	if ex.Debug != nil && ex.Debug.ShouldPause(step.ID) {
		cmd := ex.Debug.PauseAndWait(step.ID)
		if cmd.Action == "abort" {
			return stepResult{StepID: step.ID, Success: false, Error: "aborted by debugger", Abort: true}
		}
		MutateContext(execCtx, step.ID, cmd.Mutate)
	}

	start := time.Now()
	ex.publish(EventStepStarted, map[string]interface{}{
		"step_id":   step.ID,
		"timestamp": start.Unix(),
	})

	var outputs map[string]interface{}
	var dispatchErr error

	switch step.Type {
	case StepOutput:
		outputs, dispatchErr = ex.dispatchOutput(step, execCtx)
	case StepConditional:
		outputs, dispatchErr = ex.dispatchConditional(step, wf, execCtx)
	case StepLoop:
		outputs, dispatchErr = ex.dispatchLoop(ctx, step, wf, plan, execCtx, opts)
	case StepScript:
		outputs, dispatchErr = ex.dispatchRetried(ctx, step, execCtx, func(c context.Context) (map[string]interface{}, error) {
			return ex.dispatchScript(c, step, execCtx)
		})
	case StepLLM:
		outputs, dispatchErr = ex.dispatchRetried(ctx, step, execCtx, func(c context.Context) (map[string]interface{}, error) {
			return DispatchLLMStep(c, step, execCtx, ex.LLM)
		})
	default:
		dispatchErr = fmt.Errorf("unknown step type %q", step.Type)
	}

	dur := time.Since(start)

	if dispatchErr == nil {
		execCtx.StepOutputs[step.ID] = outputs
		ex.publish(EventStepCompleted, map[string]interface{}{
			"step_id":   step.ID,
			"outputs":   outputs,
			"duration":  dur.Milliseconds(),
			"timestamp": time.Now().Unix(),
		})
		res := stepResult{StepID: step.ID, Success: true, Outputs: outputs}
		if step.Type == StepConditional {
			if skip, ok := outputs["__skip__"].([]string); ok {
				res.NewlySkipped = skip
			}
		}
		return res
	}

	ex.publish(EventStepFailed, map[string]interface{}{
		"step_id":   step.ID,
		"error":     dispatchErr.Error(),
		"duration":  dur.Milliseconds(),
		"timestamp": time.Now().Unix(),
	})

	return ex.propagateError(ctx, wf, plan, execCtx, step, opts, dispatchErr)
}

// propagateError applies the step's error propagation strategy:
// fail-fast, fail-silent, or fallback.
func (ex *Executor) propagateError(ctx context.Context, wf *Workflow, plan *ExecutionPlan, execCtx *ExecutionContext, step *Step, opts ExecutorOptions, stepErr error) stepResult {
	strategy := step.ErrorPropagation
	if strategy == "" {
		strategy = opts.ErrorPropagationStrategy
	}
	if strategy == "" {
		strategy = PropagationFailFast
	}

	switch strategy {
	case PropagationFailSilent:
		outputs := map[string]interface{}{"_failed": true, "_error": stepErr.Error()}
		execCtx.StepOutputs[step.ID] = outputs
		return stepResult{StepID: step.ID, Success: true, Outputs: outputs}

	case PropagationFallback:
		if step.FallbackStep == "" {
			return stepResult{
				StepID:  step.ID,
				Success: false,
				Error:   fmt.Sprintf("%v: step %q has no fallback_step", ferrors.ErrMissingFallback, step.ID),
				Abort:   true,
			}
		}
		fallback, ok := plan.ByID[step.FallbackStep]
		if !ok {
			return stepResult{
				StepID:  step.ID,
				Success: false,
				Error:   fmt.Sprintf("%v: fallback step %q not found", ferrors.ErrMissingFallback, step.FallbackStep),
				Abort:   true,
			}
		}
		execCtx.StepOutputs[step.ID] = map[string]interface{}{"_primary_error": stepErr.Error()}
		fbResult := ex.runStep(ctx, wf, plan, execCtx, fallback, opts)
		if !fbResult.Success {
			return stepResult{
				StepID:  step.ID,
				Success: false,
				Error:   fmt.Sprintf("primary step %q failed (%v) and fallback %q also failed (%s)", step.ID, stepErr, step.FallbackStep, fbResult.Error),
				Abort:   true,
			}
		}
		merged := map[string]interface{}{"_fallback_used": true, "_primary_error": stepErr.Error()}
		for k, v := range fbResult.Outputs {
			merged[k] = v
		}
		execCtx.StepOutputs[step.ID] = merged
		// A successful fallback keeps failure_count at 0: the step's contract
		// (fallback_step) was honored and the workflow proceeded normally.
		return stepResult{StepID: step.ID, Success: true, Outputs: merged}

	default: // fail-fast
		return stepResult{StepID: step.ID, Success: false, Error: stepErr.Error(), Abort: true}
	}
}

func (ex *Executor) dispatchOutput(step *Step, execCtx *ExecutionContext) (map[string]interface{}, error) {
	resolved := resolveString(step.Message, execCtx)
	if len(resolved.Errors) > 0 {
		return nil, fmt.Errorf("%w: %v", ferrors.ErrVariableResolution, resolved.Errors[0])
	}
	return map[string]interface{}{"message": resolved.Value}, nil
}

func (ex *Executor) dispatchConditional(step *Step, wf *Workflow, execCtx *ExecutionContext) (map[string]interface{}, error) {
	outcome, err := EvaluateConditionalStep(step, wf, execCtx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"result":               outcome.Result,
		"resolved_condition":   outcome.ResolvedCondition,
		"branch_taken":         outcome.BranchTaken,
		"then_steps":           step.ThenSteps,
		"active_branch_steps":  outcome.ActiveBranchSteps,
		"__skip__":             outcome.SkippedSteps,
	}, nil
}

func (ex *Executor) dispatchLoop(ctx context.Context, step *Step, wf *Workflow, plan *ExecutionPlan, execCtx *ExecutionContext, opts ExecutorOptions) (map[string]interface{}, error) {
	items, err := ResolveLoopItems(step, execCtx)
	if err != nil {
		return nil, err
	}

	bodySteps := make([]*Step, 0, len(step.LoopSteps))
	for _, id := range step.LoopSteps {
		s, ok := plan.ByID[id]
		if !ok {
			return nil, fmt.Errorf("loop %q references unknown step %q", step.ID, id)
		}
		bodySteps = append(bodySteps, s)
	}

	var results []map[string]interface{}
	for _, iter := range items {
		iterOutputs, err := RunLoopBody(iter, execCtx, func(c *ExecutionContext) (map[string]interface{}, error) {
			perIter := map[string]interface{}{}
			for _, s := range bodySteps {
				r := ex.runStep(ctx, wf, plan, c, s, opts)
				if !r.Success {
					return nil, fmt.Errorf("loop %q body step %q failed: %s", step.ID, s.ID, r.Error)
				}
				perIter[s.ID] = r.Outputs
			}
			return perIter, nil
		})
		if err != nil {
			return nil, err
		}
		results = append(results, iterOutputs)
	}

	return map[string]interface{}{
		"iterations": len(items),
		"results":    results,
	}, nil
}

func (ex *Executor) dispatchScript(ctx context.Context, step *Step, execCtx *ExecutionContext) (map[string]interface{}, error) {
	resolved := ResolveValue(step.Inputs, execCtx)
	if len(resolved.Errors) > 0 {
		return nil, fmt.Errorf("%w: %v", ferrors.ErrVariableResolution, resolved.Errors[0])
	}
	inputs, _ := resolved.Value.(map[string]interface{})

	res := ex.Runner.Run(ctx, step.Script, inputs, RunOptions{TimeoutMs: 30000, StepID: step.ID})
	if !res.Success {
		return nil, fmt.Errorf("%s", res.Error)
	}
	if out, ok := res.Output.(map[string]interface{}); ok {
		return out, nil
	}
	return map[string]interface{}{"result": res.Output}, nil
}

// dispatchRetried wraps fn with Retry Policy and, when configured, the
// Circuit Breaker.
func (ex *Executor) dispatchRetried(ctx context.Context, step *Step, execCtx *ExecutionContext, fn StepFunc) (map[string]interface{}, error) {
	policy := RetryPolicy{}
	if step.RetryPolicy != nil {
		policy = *step.RetryPolicy
	}
	policy = policy.WithDefaults()

	if policy.CircuitBreaker != nil && policy.CircuitBreaker.Enabled && ex.Breakers != nil {
		cfg := policy.CircuitBreaker.WithDefaults()
		if allow, _ := ex.Breakers.Allow(step.ID, cfg); !allow {
			remaining := ex.Breakers.CooldownRemaining(step.ID)
			return nil, fmt.Errorf("%w: Circuit breaker is OPEN (%s)", ferrors.ErrCircuitOpen, ErrCircuitMessage(step.ID, remaining))
		}
	}

	outcome := RunWithRetry(ctx, policy, fn)

	if policy.CircuitBreaker != nil && policy.CircuitBreaker.Enabled && ex.Breakers != nil {
		cfg := policy.CircuitBreaker.WithDefaults()
		if outcome.Err != nil {
			ex.Breakers.RecordFailure(step.ID, cfg)
		} else {
			ex.Breakers.RecordSuccess(step.ID, cfg)
		}
	}

	return outcome.Outputs, outcome.Err
}

func (ex *Executor) publish(event string, payload map[string]interface{}) {
	if ex.Events != nil {
		ex.Events.Publish(event, payload)
	}
}

// processEnv snapshots the host environment into the map the Variable
// Resolver's env.<NAME> scope reads from.
func processEnv() map[string]string {
	out := map[string]string{}
	for _, kv := range os.Environ() {
		if name, val, ok := strings.Cut(kv, "="); ok {
			out[name] = val
		}
	}
	return out
}

func mergeInputDefaults(wf *Workflow, provided map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{}
	for k, v := range provided {
		out[k] = v
	}
	for _, decl := range wf.Inputs {
		if _, ok := out[decl.ID]; !ok && decl.Default != nil {
			out[decl.ID] = decl.Default
		}
	}
	return out
}

// missingRequiredInputs reports every declared required input absent from
// resolved (after defaults have already been merged in), so a missing
// input is caught at entry instead of surfacing later as a resolver error.
func missingRequiredInputs(wf *Workflow, resolved map[string]interface{}) []string {
	var missing []string
	for _, decl := range wf.Inputs {
		if !decl.Required {
			continue
		}
		if _, ok := resolved[decl.ID]; !ok {
			missing = append(missing, decl.ID)
		}
	}
	return missing
}

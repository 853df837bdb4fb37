// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package engine

import "fmt"

// ConditionalOutcome is the result of running a conditional step: which
// branch was taken and which steps (including transitive dependents of the
// inactive branch) must be marked skipped.
type ConditionalOutcome struct {
	Result              bool
	ResolvedCondition    string
	BranchTaken          string
	ActiveBranchSteps    []string
	SkippedSteps         []string
}

// EvaluateConditionalStep evaluates step.Condition and determines which
// branch is active, and which steps (including transitive dependents of
// the inactive branch that depend only on it) must be marked skipped.
func EvaluateConditionalStep(step *Step, wf *Workflow, ctx *ExecutionContext) (ConditionalOutcome, error) {
	cr := EvaluateCondition(step.Condition, ctx)
	if cr.Error != nil {
		return ConditionalOutcome{}, fmt.Errorf("conditional step %q: %w", step.ID, cr.Error)
	}

	var active, inactive []string
	branchTaken := "false"
	if cr.Result {
		active = step.ThenSteps
		inactive = step.ElseSteps
		branchTaken = "true"
	} else {
		active = step.ElseSteps
		inactive = step.ThenSteps
	}

	skipped := transitiveSkip(wf, inactive, active)

	return ConditionalOutcome{
		Result:            cr.Result,
		ResolvedCondition: cr.ResolvedCondition,
		BranchTaken:       branchTaken,
		ActiveBranchSteps: active,
		SkippedSteps:      skipped,
	}, nil
}

// transitiveSkip marks every step in inactiveRoots as skipped, then walks
// forward through the dependency graph: a step becomes skipped if every
// one of its dependencies is itself skipped and it is not already part of
// the active branch.
func transitiveSkip(wf *Workflow, inactiveRoots, activeRoots []string) []string {
	skipped := map[string]bool{}
	for _, id := range inactiveRoots {
		skipped[id] = true
	}
	active := map[string]bool{}
	for _, id := range activeRoots {
		active[id] = true
	}

	changed := true
	for changed {
		changed = false
		for i := range wf.Steps {
			s := &wf.Steps[i]
			if skipped[s.ID] || active[s.ID] || len(s.DependsOn) == 0 {
				continue
			}
			allSkipped := true
			anySkipped := false
			for _, dep := range s.DependsOn {
				if skipped[dep] {
					anySkipped = true
				} else {
					allSkipped = false
				}
			}
			if allSkipped && anySkipped {
				skipped[s.ID] = true
				changed = true
			}
		}
	}

	out := make([]string, 0, len(skipped))
	for id := range skipped {
		out = append(out, id)
	}
	return out
}

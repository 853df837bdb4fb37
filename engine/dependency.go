// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package engine

import (
	"fmt"
	"sort"
)

// ExecutionLevel is one batch of steps that may run in parallel: every
// step in a level has all its dependencies satisfied by earlier levels.
type ExecutionLevel struct {
	StepIDs []string
}

// ExecutionPlan is the analyzer's output: ordered levels plus an index
// back to each step for O(1) lookup during execution.
type ExecutionPlan struct {
	Levels  []ExecutionLevel
	ByID    map[string]*Step
}

// AnalyzeDependencies computes the level-ordered execution plan for a
// workflow using Kahn's algorithm over adjacency lists keyed by step ID
// (not a pointer graph; steps are not renumbered into integer indices).
// Levels are derived structurally from depends_on: every step in a level has
// all of its dependencies satisfied by steps in earlier levels, and each
// level lists its steps in declaration order.
//
// A depends_on entry naming an undeclared step, or a cycle, is reported as
// an error.
func AnalyzeDependencies(wf *Workflow) (*ExecutionPlan, error) {
	byID := make(map[string]*Step, len(wf.Steps))
	pos := make(map[string]int, len(wf.Steps))
	indegree := make(map[string]int, len(wf.Steps))
	dependents := make(map[string][]string, len(wf.Steps))

	for i := range wf.Steps {
		s := &wf.Steps[i]
		byID[s.ID] = s
		pos[s.ID] = i
		if _, ok := indegree[s.ID]; !ok {
			indegree[s.ID] = 0
		}
	}
	for i := range wf.Steps {
		s := &wf.Steps[i]
		for _, dep := range s.DependsOn {
			if _, ok := byID[dep]; !ok {
				return nil, fmt.Errorf("step %q depends on unknown step %q", s.ID, dep)
			}
			indegree[s.ID]++
			dependents[dep] = append(dependents[dep], s.ID)
		}
	}

	remaining := len(wf.Steps)
	var levels []ExecutionLevel
	// frontier holds every step whose indegree is currently zero.
	var frontier []string
	for _, s := range wf.Steps {
		if indegree[s.ID] == 0 {
			frontier = append(frontier, s.ID)
		}
	}

	for len(frontier) > 0 {
		levels = append(levels, ExecutionLevel{StepIDs: append([]string(nil), frontier...)})
		remaining -= len(frontier)

		var next []string
		for _, id := range frontier {
			for _, dep := range dependents[id] {
				indegree[dep]--
				if indegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		sort.Slice(next, func(a, b int) bool { return pos[next[a]] < pos[next[b]] })
		frontier = next
	}

	if remaining > 0 {
		return nil, fmt.Errorf("dependency graph contains a cycle involving %d unresolved step(s)", remaining)
	}

	return &ExecutionPlan{Levels: levels, ByID: byID}, nil
}

// MaxParallelism returns the width of the widest execution level, i.e.
// the maximum number of steps that could run concurrently.
func (p *ExecutionPlan) MaxParallelism() int {
	max := 0
	for _, lvl := range p.Levels {
		if len(lvl.StepIDs) > max {
			max = len(lvl.StepIDs)
		}
	}
	return max
}

// CanParallelize reports whether the plan has any level with more than
// one step.
func (p *ExecutionPlan) CanParallelize() bool {
	return p.MaxParallelism() > 1
}

// IndependentSteps returns the IDs of steps in the same level as stepID
// (excluding stepID itself), i.e. steps provably independent of it.
func (p *ExecutionPlan) IndependentSteps(stepID string) []string {
	for _, lvl := range p.Levels {
		for _, id := range lvl.StepIDs {
			if id != stepID {
				continue
			}
			var out []string
			for _, sib := range lvl.StepIDs {
				if sib != stepID {
					out = append(out, sib)
				}
			}
			return out
		}
	}
	return nil
}

// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func diamondWorkflow() *Workflow {
	return &Workflow{
		Workflow: WorkflowMeta{Name: "diamond", Version: "1.0.0", Description: "d"},
		Steps: []Step{
			{ID: "start", Type: StepOutput, Message: "go"},
			{ID: "a", Type: StepOutput, DependsOn: []string{"start"}, Message: "a"},
			{ID: "b", Type: StepOutput, DependsOn: []string{"start"}, Message: "b"},
			{ID: "merge", Type: StepOutput, DependsOn: []string{"a", "b"}, Message: "merged"},
		},
	}
}

func TestAnalyzeDependencies_Levels(t *testing.T) {
	plan, err := AnalyzeDependencies(diamondWorkflow())
	require.NoError(t, err)
	require.Len(t, plan.Levels, 3)
	assert.Equal(t, []string{"start"}, plan.Levels[0].StepIDs)
	assert.ElementsMatch(t, []string{"a", "b"}, plan.Levels[1].StepIDs)
	assert.Equal(t, []string{"merge"}, plan.Levels[2].StepIDs)
	assert.Equal(t, 2, plan.MaxParallelism())
	assert.True(t, plan.CanParallelize())
}

func TestAnalyzeDependencies_LevelSoundness(t *testing.T) {
	wf := diamondWorkflow()
	plan, err := AnalyzeDependencies(wf)
	require.NoError(t, err)

	levelOf := map[string]int{}
	for i, lvl := range plan.Levels {
		for _, id := range lvl.StepIDs {
			levelOf[id] = i
		}
	}
	for _, s := range wf.Steps {
		for _, dep := range s.DependsOn {
			assert.Less(t, levelOf[dep], levelOf[s.ID])
		}
	}
}

func TestAnalyzeDependencies_Cycle(t *testing.T) {
	wf := diamondWorkflow()
	wf.Steps[0].DependsOn = []string{"merge"}
	_, err := AnalyzeDependencies(wf)
	assert.Error(t, err)
}

func TestAnalyzeDependencies_IndependentSteps(t *testing.T) {
	plan, err := AnalyzeDependencies(diamondWorkflow())
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, plan.IndependentSteps("a"))
}

func TestAnalyzeDependencies_UnknownDependency(t *testing.T) {
	wf := diamondWorkflow()
	wf.Steps[1].DependsOn = []string{"ghost"}
	_, err := AnalyzeDependencies(wf)
	assert.Error(t, err)
}

// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validWorkflow() *Workflow {
	return &Workflow{
		Workflow: WorkflowMeta{Name: "demo", Version: "1.0.0", Description: "demo workflow"},
		Inputs: []InputDecl{
			{ID: "value", Type: "number", Label: "Value", Required: true},
		},
		Steps: []Step{
			{ID: "start", Type: StepOutput, Message: "go"},
			{ID: "check", Type: StepConditional, DependsOn: []string{"start"},
				Condition: "${workflow.inputs.value} > 50", ThenSteps: []string{"approve"}, ElseSteps: []string{"deny"}},
			{ID: "approve", Type: StepOutput, DependsOn: []string{"check"}, Message: "approved"},
			{ID: "deny", Type: StepOutput, DependsOn: []string{"check"}, Message: "denied"},
		},
	}
}

func TestValidate_Valid(t *testing.T) {
	errs := Validate(validWorkflow())
	assert.False(t, HasErrors(errs))
}

func TestValidate_MissingWorkflowFields(t *testing.T) {
	wf := validWorkflow()
	wf.Workflow.Name = ""
	wf.Workflow.Version = "not-semver"
	errs := Validate(wf)
	require.True(t, HasErrors(errs))
	fields := map[string]bool{}
	for _, e := range errs {
		fields[e.Field] = true
	}
	assert.True(t, fields["workflow.name"])
	assert.True(t, fields["workflow.version"])
}

func TestValidate_DuplicateStepIDs(t *testing.T) {
	wf := validWorkflow()
	wf.Steps[1].ID = "start"
	errs := Validate(wf)
	assert.True(t, HasErrors(errs))
}

func TestValidate_CycleDetection(t *testing.T) {
	wf := validWorkflow()
	wf.Steps[0].DependsOn = []string{"approve"}
	errs := Validate(wf)
	found := false
	for _, e := range errs {
		if e.Field == "steps" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidate_AcyclicGraphHasNoCycleError(t *testing.T) {
	errs := Validate(validWorkflow())
	for _, e := range errs {
		assert.NotContains(t, e.Message, "Circular dependency")
	}
}

func TestValidate_UnknownDependency(t *testing.T) {
	wf := validWorkflow()
	wf.Steps[0].DependsOn = []string{"ghost"}
	errs := Validate(wf)
	assert.True(t, HasErrors(errs))
}

func TestValidate_SelfDependency(t *testing.T) {
	wf := validWorkflow()
	wf.Steps[0].DependsOn = []string{"start"}
	errs := Validate(wf)
	assert.True(t, HasErrors(errs))
}

func TestValidate_SelectRequiresOptions(t *testing.T) {
	wf := validWorkflow()
	wf.Inputs = append(wf.Inputs, InputDecl{ID: "mode", Type: "select"})
	errs := Validate(wf)
	assert.True(t, HasErrors(errs))
}

func TestValidate_FallbackRequiresFallbackStep(t *testing.T) {
	wf := validWorkflow()
	wf.Steps[0].ErrorPropagation = PropagationFallback
	errs := Validate(wf)
	assert.True(t, HasErrors(errs))
}

func TestValidate_UndeclaredWorkflowInputReference(t *testing.T) {
	wf := validWorkflow()
	wf.Steps[0].Message = "${workflow.inputs.missing}"
	errs := Validate(wf)
	assert.True(t, HasErrors(errs))
}

func TestValidate_NonPredecessorStepReference(t *testing.T) {
	wf := validWorkflow()
	wf.Steps[0].Message = "${steps.approve.outputs.x}"
	errs := Validate(wf)
	assert.True(t, HasErrors(errs))
}

func TestValidate_EnvReferenceIsWarningNotError(t *testing.T) {
	wf := validWorkflow()
	wf.Steps[0].Message = "${env.SOME_VAR}"
	errs := Validate(wf)
	assert.False(t, HasErrors(errs))
	found := false
	for _, e := range errs {
		if e.Severity == SeverityWarning && e.Field == "steps.start.message" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidate_LoopReferenceOutsideLoop(t *testing.T) {
	wf := validWorkflow()
	wf.Steps[0].Message = "${loop.item}"
	errs := Validate(wf)
	assert.True(t, HasErrors(errs))
}

func TestValidate_UIMetadataIntegrity(t *testing.T) {
	wf := validWorkflow()
	wf.UIMetadata = &UIMetadata{
		Nodes:    []UINode{{ID: "ghost", Position: UIPosition{X: 0, Y: 0}}},
		Viewport: UIViewport{Zoom: 0},
	}
	errs := Validate(wf)
	assert.True(t, HasErrors(errs))
}

func TestValidate_EmptySteps(t *testing.T) {
	wf := validWorkflow()
	wf.Steps = nil
	errs := Validate(wf)
	require.True(t, HasErrors(errs))
	assert.Equal(t, "steps", errs[0].Field)
}

// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticLLMBackend_MatchesBySubstring(t *testing.T) {
	backend := &StaticLLMBackend{
		Responses: map[string]string{"weather": "It is sunny."},
		Default:   "I don't know.",
	}
	reply, err := backend.Send(context.Background(), "claude", "What's the weather today?")
	require.NoError(t, err)
	assert.Equal(t, "It is sunny.", reply)
}

func TestStaticLLMBackend_FallsBackToDefault(t *testing.T) {
	backend := &StaticLLMBackend{Default: "fallback reply"}
	reply, err := backend.Send(context.Background(), "claude", "anything")
	require.NoError(t, err)
	assert.Equal(t, "fallback reply", reply)
}

func TestStaticLLMBackend_NoMatchNoDefaultErrors(t *testing.T) {
	backend := &StaticLLMBackend{}
	_, err := backend.Send(context.Background(), "claude", "anything")
	require.Error(t, err)
}

func TestStaticLLMBackend_RespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	backend := &StaticLLMBackend{Default: "x"}
	_, err := backend.Send(ctx, "claude", "anything")
	require.Error(t, err)
}

func TestRenderPromptTemplate_ResolvesVariables(t *testing.T) {
	ctx := NewExecutionContext(map[string]interface{}{"name": "widget"}, nil)
	out, err := RenderPromptTemplate("Summarize ${workflow.inputs.name}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "Summarize widget", out)
}

func TestRenderPromptTemplate_UndefinedReferenceErrors(t *testing.T) {
	ctx := NewExecutionContext(nil, nil)
	_, err := RenderPromptTemplate("Summarize ${workflow.inputs.missing}", ctx)
	require.Error(t, err)
}

func TestDispatchLLMStep_EndToEnd(t *testing.T) {
	ctx := NewExecutionContext(map[string]interface{}{"topic": "go"}, nil)
	step := &Step{ID: "summarize", Type: StepLLM, Model: "claude", PromptTemplate: "Tell me about ${workflow.inputs.topic}"}
	backend := &StaticLLMBackend{Responses: map[string]string{"go": "Go is a language."}}

	out, err := DispatchLLMStep(context.Background(), step, ctx, backend)
	require.NoError(t, err)
	assert.Equal(t, "Go is a language.", out["response"])
}

func TestDispatchLLMStep_BackendErrorWraps(t *testing.T) {
	ctx := NewExecutionContext(nil, nil)
	step := &Step{ID: "summarize", Type: StepLLM, Model: "claude", PromptTemplate: "hello"}
	backend := &StaticLLMBackend{}

	_, err := DispatchLLMStep(context.Background(), step, ctx, backend)
	require.Error(t, err)
}

// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"axonflow/flowkernel/shared/ferrors"
)

// LLMBackend is the opaque send(prompt) -> string collaborator. The engine
// never parses a reply as code.
type LLMBackend interface {
	Send(ctx context.Context, model, prompt string) (string, error)
}

// StaticLLMBackend is an in-memory test stub: callers preload canned
// responses keyed by prompt substring, falling back to a default.
type StaticLLMBackend struct {
	Responses map[string]string
	Default   string
}

// Send returns a canned response whose key is a substring of prompt, or
// Default if none match. Keys are checked in map iteration order, so when
// several keys match, which response is returned is not defined.
func (b *StaticLLMBackend) Send(ctx context.Context, model, prompt string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	for key, resp := range b.Responses {
		if strings.Contains(prompt, key) {
			return resp, nil
		}
	}
	if b.Default != "" {
		return b.Default, nil
	}
	return "", fmt.Errorf("%w: no canned response configured for prompt", ferrors.ErrLLMBackend)
}

// RenderPromptTemplate resolves ${...} references in a step's
// prompt_template via the Variable Resolver. LLM dispatch goes through the
// same resolve-then-call-through-retry path as script steps.
func RenderPromptTemplate(template string, ctx *ExecutionContext) (string, error) {
	resolved := resolveString(template, ctx)
	if len(resolved.Errors) > 0 {
		return "", fmt.Errorf("%w: %v", ferrors.ErrVariableResolution, resolved.Errors[0])
	}
	return stringify(resolved.Value), nil
}

// BedrockLLMBackend invokes AWS Bedrock's InvokeModel API using signature
// v4 credentials from the ambient AWS config, building an Anthropic-format
// request body.
type BedrockLLMBackend struct {
	Client *bedrockruntime.Client
}

// Send builds an Anthropic-format Bedrock request for model and returns
// the first content block's text.
func (b *BedrockLLMBackend) Send(ctx context.Context, model, prompt string) (string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        1024,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: failed to encode request: %v", ferrors.ErrLLMBackend, err)
	}

	out, err := b.Client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(model),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("%w: bedrock invoke failed: %v", ferrors.ErrLLMBackend, err)
	}

	var parsed struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(out.Body, &parsed); err != nil {
		return "", fmt.Errorf("%w: failed to decode bedrock response: %v", ferrors.ErrLLMBackend, err)
	}
	if len(parsed.Content) == 0 {
		return "", fmt.Errorf("%w: empty bedrock response", ferrors.ErrLLMBackend)
	}
	return parsed.Content[0].Text, nil
}

// DispatchLLMStep renders the prompt, invokes backend, and returns the
// step's output map ({response: string}).
func DispatchLLMStep(ctx context.Context, step *Step, execCtx *ExecutionContext, backend LLMBackend) (map[string]interface{}, error) {
	prompt, err := RenderPromptTemplate(step.PromptTemplate, execCtx)
	if err != nil {
		return nil, err
	}
	reply, err := backend.Send(ctx, step.Model, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ferrors.ErrLLMBackend, err)
	}
	return map[string]interface{}{"response": reply}, nil
}

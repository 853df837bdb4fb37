// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package engine

import (
	"fmt"
	"strconv"
	"strings"

	"axonflow/flowkernel/shared/ferrors"
)

// LoopOutcome is the aggregate result of running a loop step.
type LoopOutcome struct {
	Iterations int
	Results    []map[string]interface{}
}

// loopIterable is one resolved iteration's (item, index, key, value).
type loopIterable struct {
	item  interface{}
	index int
	key   *string
	value interface{}
}

// ResolveLoopItems resolves step.Items against ctx and expands it into the
// per-iteration tuples the Loop Sub-Executor walks. The cap against
// max_iterations is enforced on this resolved, post-resolution length,
// per the source's documented behavior.
func ResolveLoopItems(step *Step, ctx *ExecutionContext) ([]loopIterable, error) {
	resolved := ResolveValue(step.Items, ctx)
	if len(resolved.Errors) > 0 {
		return nil, fmt.Errorf("%w: %v", ferrors.ErrVariableResolution, resolved.Errors[0])
	}

	maxIter := step.MaxIterations
	if maxIter == 0 {
		maxIter = 100
	}

	switch v := resolved.Value.(type) {
	case []interface{}:
		if len(v) > maxIter {
			return nil, fmt.Errorf("%w: %d items exceeds max_iterations %d", ferrors.ErrLoopSafety, len(v), maxIter)
		}
		out := make([]loopIterable, len(v))
		for i, item := range v {
			out[i] = loopIterable{item: item, index: i}
		}
		return out, nil

	case map[string]interface{}:
		if len(v) > maxIter {
			return nil, fmt.Errorf("%w: %d items exceeds max_iterations %d", ferrors.ErrLoopSafety, len(v), maxIter)
		}
		out := make([]loopIterable, 0, len(v))
		i := 0
		for k, val := range v {
			key := k
			out = append(out, loopIterable{
				item:  []interface{}{k, val},
				index: i,
				key:   &key,
				value: val,
			})
			i++
		}
		return out, nil

	case string:
		if rng, ok := parseRange(v); ok {
			if len(rng) > maxIter {
				return nil, fmt.Errorf("%w: %d items exceeds max_iterations %d", ferrors.ErrLoopSafety, len(rng), maxIter)
			}
			out := make([]loopIterable, len(rng))
			for i, n := range rng {
				out[i] = loopIterable{item: n, index: i}
			}
			return out, nil
		}
		return nil, fmt.Errorf("%w: items must be array, object, or range expression", ferrors.ErrVariableResolution)

	default:
		return nil, fmt.Errorf("%w: items must be array, object, or range expression", ferrors.ErrVariableResolution)
	}
}

// parseRange recognizes "range(start, end)" or "range(start, end, step)".
func parseRange(s string) ([]int, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "range(") || !strings.HasSuffix(s, ")") {
		return nil, false
	}
	body := s[len("range(") : len(s)-1]
	parts := strings.Split(body, ",")
	if len(parts) < 2 || len(parts) > 3 {
		return nil, false
	}
	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, false
		}
		nums[i] = n
	}
	start, end := nums[0], nums[1]
	step := 1
	if len(nums) == 3 {
		step = nums[2]
	}
	if step == 0 {
		return nil, false
	}

	var out []int
	if step > 0 {
		for i := start; i < end; i += step {
			out = append(out, i)
		}
	} else {
		for i := start; i > end; i += step {
			out = append(out, i)
		}
	}
	return out, true
}

// RunLoopBody is called by the Workflow Executor once per iteration with a
// function that executes loop_steps in declaration order against a
// LoopContext-scoped ExecutionContext sharing the outer step_outputs.
// The caller supplies runSteps so the executor's own dispatch/retry/error
// propagation machinery is reused rather than duplicated here.
func RunLoopBody(iter loopIterable, ctx *ExecutionContext, runSteps func(*ExecutionContext) (map[string]interface{}, error)) (map[string]interface{}, error) {
	ctx.LoopContext = &LoopContext{
		Item:  iter.item,
		Index: iter.index,
		Key:   iter.key,
		Value: iter.value,
	}
	defer func() { ctx.LoopContext = nil }()
	return runSteps(ctx)
}

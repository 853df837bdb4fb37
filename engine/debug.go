// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package engine

import (
	"sync"
	"time"
)

// DebugController is a process-wide singleton that lets an attached
// client pause execution at step boundaries, inspect/mutate the
// execution context, and single-step through a workflow run. Coordination
// uses a mutex-guarded map plus a buffered per-pause wake channel.
type DebugController struct {
	mu          sync.Mutex
	breakpoints map[string]bool
	enabled     bool
	timeout     time.Duration
	waiters     map[string]chan DebugCommand
}

// DebugCommand is what an attached client sends to resume a paused step.
type DebugCommand struct {
	Action  string // "continue" | "step" | "abort"
	Mutate  map[string]interface{}
}

var (
	debugOnce       sync.Once
	debugSingleton  *DebugController
)

// GetDebugController returns the process-wide DebugController, creating
// it on first use.
func GetDebugController() *DebugController {
	debugOnce.Do(func() {
		debugSingleton = &DebugController{
			breakpoints: make(map[string]bool),
			waiters:     make(map[string]chan DebugCommand),
			timeout:     5 * time.Minute,
		}
	})
	return debugSingleton
}

// NewDebugController builds an isolated controller for tests, bypassing
// the process-wide singleton.
func NewDebugController(timeout time.Duration) *DebugController {
	return &DebugController{
		breakpoints: make(map[string]bool),
		waiters:     make(map[string]chan DebugCommand),
		timeout:     timeout,
	}
}

// Enable turns on breakpoint checking for subsequent executions.
func (d *DebugController) Enable() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = true
}

// Disable turns off breakpoint checking; any waiting step is released
// with a "continue" so the run never hangs.
func (d *DebugController) Disable() {
	d.mu.Lock()
	d.enabled = false
	waiters := d.waiters
	d.waiters = make(map[string]chan DebugCommand)
	d.mu.Unlock()

	for _, ch := range waiters {
		select {
		case ch <- DebugCommand{Action: "continue"}:
		default:
		}
	}
}

// SetBreakpoint arms or disarms a breakpoint on a step ID.
func (d *DebugController) SetBreakpoint(stepID string, armed bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if armed {
		d.breakpoints[stepID] = true
	} else {
		delete(d.breakpoints, stepID)
	}
}

// ShouldPause reports whether execution should pause before stepID.
func (d *DebugController) ShouldPause(stepID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled && d.breakpoints[stepID]
}

// PauseAndWait blocks the calling goroutine at stepID until a client
// sends a DebugCommand via Resume, or the debug timeout elapses (in
// which case it returns a "continue" command so execution never hangs
// indefinitely).
func (d *DebugController) PauseAndWait(stepID string) DebugCommand {
	ch := make(chan DebugCommand, 1)
	d.mu.Lock()
	d.waiters[stepID] = ch
	timeout := d.timeout
	d.mu.Unlock()

	select {
	case cmd := <-ch:
		return cmd
	case <-time.After(timeout):
		return DebugCommand{Action: "continue"}
	}
}

// Resume sends cmd to a step paused at stepID; it is a no-op if nothing
// is currently waiting there.
func (d *DebugController) Resume(stepID string, cmd DebugCommand) bool {
	d.mu.Lock()
	ch, ok := d.waiters[stepID]
	if ok {
		delete(d.waiters, stepID)
	}
	d.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- cmd:
		return true
	default:
		return false
	}
}

// MutateContext merges client-supplied variable overrides into
// ctx.StepOutputs[stepID], creating that entry if it does not exist.
func MutateContext(ctx *ExecutionContext, stepID string, mutations map[string]interface{}) {
	if len(mutations) == 0 {
		return
	}
	out, ok := ctx.StepOutputs[stepID]
	if !ok {
		out = map[string]interface{}{}
		ctx.StepOutputs[stepID] = out
	}
	for k, v := range mutations {
		out[k] = v
	}
}

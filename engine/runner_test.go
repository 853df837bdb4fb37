// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return name
}

func newTestRunner(t *testing.T, root string) *Runner {
	t.Helper()
	return NewRunner(root, "/bin/sh", 200*time.Millisecond, nil, nil)
}

func TestRunner_SuccessJSONOutput(t *testing.T) {
	root := t.TempDir()
	script := writeScript(t, root, "ok.sh", "cat >/dev/null\necho '{\"result\":42}'\n")
	r := newTestRunner(t, root)

	res := r.Run(context.Background(), script, map[string]interface{}{"x": 1}, RunOptions{TimeoutMs: 2000})
	require.True(t, res.Success)
	assert.Equal(t, float64(42), res.Output.(map[string]interface{})["result"])
}

func TestRunner_NonZeroExit(t *testing.T) {
	root := t.TempDir()
	script := writeScript(t, root, "fail.sh", "cat >/dev/null\nexit 3\n")
	r := newTestRunner(t, root)

	res := r.Run(context.Background(), script, nil, RunOptions{TimeoutMs: 2000})
	assert.False(t, res.Success)
	assert.Equal(t, 3, res.ExitCode)
	assert.Contains(t, res.Error, "exited with code 3")
}

func TestRunner_InvalidJSONOutput(t *testing.T) {
	root := t.TempDir()
	script := writeScript(t, root, "bad.sh", "cat >/dev/null\necho 'not json'\n")
	r := newTestRunner(t, root)

	res := r.Run(context.Background(), script, nil, RunOptions{TimeoutMs: 2000})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "Invalid JSON output")
}

func TestRunner_Timeout(t *testing.T) {
	root := t.TempDir()
	script := writeScript(t, root, "slow.sh", "sleep 5\necho '{}'\n")
	r := newTestRunner(t, root)

	res := r.Run(context.Background(), script, nil, RunOptions{TimeoutMs: 50})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "timed out")
}

func TestRunner_SandboxRefusesEscapingPath(t *testing.T) {
	root := t.TempDir()
	r := newTestRunner(t, root)

	res := r.Run(context.Background(), "../../etc/passwd", nil, RunOptions{TimeoutMs: 2000})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "sandbox")
}

func TestRunner_SandboxRefusesEscapingInputPath(t *testing.T) {
	root := t.TempDir()
	script := writeScript(t, root, "ok.sh", "cat >/dev/null\necho '{}'\n")
	r := newTestRunner(t, root)

	res := r.Run(context.Background(), script, map[string]interface{}{
		"file": "/etc/passwd",
	}, RunOptions{TimeoutMs: 2000})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "sandbox")
}

func TestRunner_EventsPublishedOnSuccess(t *testing.T) {
	root := t.TempDir()
	script := writeScript(t, root, "ok.sh", "cat >/dev/null\necho '{\"done\":true}'\n")
	bus := NewEventBus()
	r := NewRunner(root, "/bin/sh", 200*time.Millisecond, nil, bus)

	var started, completed bool
	bus.On(EventStepStarted, func(p map[string]interface{}) { started = true })
	bus.On(EventStepCompleted, func(p map[string]interface{}) { completed = true })

	res := r.Run(context.Background(), script, nil, RunOptions{TimeoutMs: 2000, WorkflowID: "wf-1", StepID: "step-1"})
	require.True(t, res.Success)
	assert.True(t, started)
	assert.True(t, completed)
}

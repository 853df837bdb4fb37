// Package config centralizes engine-wide defaults, overridable from the
// environment: explicit environment variable, falling back to a hardcoded
// default.
package config

import (
	"os"
	"strconv"
	"time"
)

// EngineConfig holds the tunables that are not part of any single workflow
// document: parser limits, runner sandboxing, and debug defaults.
type EngineConfig struct {
	// MaxDocumentBytes caps the size of a YAML workflow document.
	MaxDocumentBytes int64

	// ScriptTimeout holds the default script-runner timeout. The engine and
	// CLI do not read it: the executor passes a fixed 30s timeout to the
	// Runner for every script step.
	ScriptTimeout time.Duration

	// ScriptKillGrace is how long the runner waits after a termination
	// signal before force-killing a child process.
	ScriptKillGrace time.Duration

	// AllowedScriptEnv lists environment variable names to pass through to
	// spawned scripts. Empty by default, and not read by the engine or CLI:
	// the executor passes no allowlist to the Runner, so scripts always get
	// an empty environment.
	AllowedScriptEnv []string

	// DebugTimeout holds how long the Debug Controller should wait at a
	// breakpoint before auto-resuming. GetDebugController uses its own fixed
	// 5-minute timeout and does not read this field.
	DebugTimeout time.Duration

	// MaxLoopIterations holds the default cap on loop iterations. The engine
	// does not read it: a loop step that omits max_iterations is capped at a
	// fixed 100 in ResolveLoopItems.
	MaxLoopIterations int
}

// Default returns the engine defaults, overridable via environment
// variables FLOWKERNEL_MAX_DOCUMENT_BYTES, FLOWKERNEL_SCRIPT_TIMEOUT_MS,
// FLOWKERNEL_DEBUG_TIMEOUT_MS.
func Default() EngineConfig {
	cfg := EngineConfig{
		MaxDocumentBytes:  1 << 20, // 1 MiB
		ScriptTimeout:     30 * time.Second,
		ScriptKillGrace:   2 * time.Second,
		AllowedScriptEnv:  nil,
		DebugTimeout:      5 * time.Minute,
		MaxLoopIterations: 100,
	}

	if v := envInt64("FLOWKERNEL_MAX_DOCUMENT_BYTES"); v > 0 {
		cfg.MaxDocumentBytes = v
	}
	if v := envInt64("FLOWKERNEL_SCRIPT_TIMEOUT_MS"); v > 0 {
		cfg.ScriptTimeout = time.Duration(v) * time.Millisecond
	}
	if v := envInt64("FLOWKERNEL_DEBUG_TIMEOUT_MS"); v > 0 {
		cfg.DebugTimeout = time.Duration(v) * time.Millisecond
	}

	return cfg
}

func envInt64(name string) int64 {
	raw := os.Getenv(name)
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package config

import (
	"os"
	"testing"
	"time"
)

func TestDefault_Hardcoded(t *testing.T) {
	cfg := Default()
	if cfg.MaxDocumentBytes != 1<<20 {
		t.Errorf("expected default MaxDocumentBytes 1MiB, got %d", cfg.MaxDocumentBytes)
	}
	if cfg.ScriptTimeout != 30*time.Second {
		t.Errorf("expected default ScriptTimeout 30s, got %v", cfg.ScriptTimeout)
	}
	if cfg.DebugTimeout != 5*time.Minute {
		t.Errorf("expected default DebugTimeout 5m, got %v", cfg.DebugTimeout)
	}
	if cfg.MaxLoopIterations != 100 {
		t.Errorf("expected default MaxLoopIterations 100, got %d", cfg.MaxLoopIterations)
	}
}

func TestDefault_EnvironmentOverrides(t *testing.T) {
	os.Setenv("FLOWKERNEL_MAX_DOCUMENT_BYTES", "2048")
	os.Setenv("FLOWKERNEL_SCRIPT_TIMEOUT_MS", "5000")
	os.Setenv("FLOWKERNEL_DEBUG_TIMEOUT_MS", "1000")
	defer func() {
		os.Unsetenv("FLOWKERNEL_MAX_DOCUMENT_BYTES")
		os.Unsetenv("FLOWKERNEL_SCRIPT_TIMEOUT_MS")
		os.Unsetenv("FLOWKERNEL_DEBUG_TIMEOUT_MS")
	}()

	cfg := Default()
	if cfg.MaxDocumentBytes != 2048 {
		t.Errorf("expected overridden MaxDocumentBytes 2048, got %d", cfg.MaxDocumentBytes)
	}
	if cfg.ScriptTimeout != 5*time.Second {
		t.Errorf("expected overridden ScriptTimeout 5s, got %v", cfg.ScriptTimeout)
	}
	if cfg.DebugTimeout != time.Second {
		t.Errorf("expected overridden DebugTimeout 1s, got %v", cfg.DebugTimeout)
	}
}

func TestDefault_InvalidEnvIgnored(t *testing.T) {
	os.Setenv("FLOWKERNEL_MAX_DOCUMENT_BYTES", "not-a-number")
	defer os.Unsetenv("FLOWKERNEL_MAX_DOCUMENT_BYTES")

	cfg := Default()
	if cfg.MaxDocumentBytes != 1<<20 {
		t.Errorf("expected fallback to default when env is invalid, got %d", cfg.MaxDocumentBytes)
	}
}

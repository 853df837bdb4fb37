// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	reg := NewCircuitBreakerRegistry()
	cfg := CircuitBreakerConfig{Enabled: true, FailureThreshold: 3, CooldownMs: 60000}

	for i := 0; i < 2; i++ {
		reg.RecordFailure("svc-a", cfg)
	}
	assert.Equal(t, StateClosed, reg.State("svc-a"))

	reg.RecordFailure("svc-a", cfg)
	assert.Equal(t, StateOpen, reg.State("svc-a"))

	allow, state := reg.Allow("svc-a", cfg)
	assert.False(t, allow)
	assert.Equal(t, StateOpen, state)
}

func TestCircuitBreaker_Isolation(t *testing.T) {
	reg := NewCircuitBreakerRegistry()
	cfg := CircuitBreakerConfig{Enabled: true, FailureThreshold: 2, CooldownMs: 60000}

	reg.RecordFailure("svc-a", cfg)
	reg.RecordFailure("svc-a", cfg)
	assert.Equal(t, StateOpen, reg.State("svc-a"))
	assert.Equal(t, StateClosed, reg.State("svc-b"))
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	reg := NewCircuitBreakerRegistry()
	cfg := CircuitBreakerConfig{Enabled: true, FailureThreshold: 3, CooldownMs: 60000}

	reg.RecordFailure("svc-a", cfg)
	reg.RecordFailure("svc-a", cfg)
	reg.RecordSuccess("svc-a", cfg)
	reg.RecordFailure("svc-a", cfg)
	reg.RecordFailure("svc-a", cfg)
	assert.Equal(t, StateClosed, reg.State("svc-a"))
}

func TestCircuitBreaker_Disabled(t *testing.T) {
	reg := NewCircuitBreakerRegistry()
	cfg := CircuitBreakerConfig{Enabled: false, FailureThreshold: 1}
	reg.RecordFailure("svc-a", cfg)
	allow, state := reg.Allow("svc-a", cfg)
	assert.True(t, allow)
	assert.Equal(t, StateClosed, state)
}

func TestCircuitBreaker_ManualReset(t *testing.T) {
	reg := NewCircuitBreakerRegistry()
	cfg := CircuitBreakerConfig{Enabled: true, FailureThreshold: 1, CooldownMs: 60000}
	reg.RecordFailure("svc-a", cfg)
	require.Equal(t, StateOpen, reg.State("svc-a"))
	reg.Reset("svc-a")
	assert.Equal(t, StateClosed, reg.State("svc-a"))
}

func TestCircuitBreaker_CooldownRemaining(t *testing.T) {
	reg := NewCircuitBreakerRegistry()
	cfg := CircuitBreakerConfig{Enabled: true, FailureThreshold: 1, CooldownMs: 60000}
	assert.Equal(t, int64(0), reg.CooldownRemaining("svc-a").Milliseconds())
	reg.RecordFailure("svc-a", cfg)
	assert.Greater(t, reg.CooldownRemaining("svc-a").Milliseconds(), int64(0))
}

func TestCircuitState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half_open", StateHalfOpen.String())
}

// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"axonflow/flowkernel/shared/ferrors"
)

// StepFunc is one attempt at executing a step; it returns the step's
// outputs or an error.
type StepFunc func(ctx context.Context) (map[string]interface{}, error)

// AttemptRecord traces one retry attempt, collected in RetryOutcome.Attempts.
type AttemptRecord struct {
	Attempt  int
	DelayMs  int
	Err      error
}

// RetryOutcome is the terminal result of RunWithRetry.
type RetryOutcome struct {
	Outputs  map[string]interface{}
	Attempts []AttemptRecord
	Err      error
}

// RunWithRetry drives fn through policy's attempt loop: a context-cancellable
// sleep between attempts, with three configurable delay strategies and
// retry_on/dont_retry_on error filters.
func RunWithRetry(ctx context.Context, policy RetryPolicy, fn StepFunc) RetryOutcome {
	policy = policy.WithDefaults()
	var attempts []AttemptRecord

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		outputs, err := fn(ctx)
		if err == nil {
			attempts = append(attempts, AttemptRecord{Attempt: attempt})
			return RetryOutcome{Outputs: outputs, Attempts: attempts}
		}

		attempts = append(attempts, AttemptRecord{Attempt: attempt, Err: err})

		if !shouldRetry(err, policy, attempt) {
			return RetryOutcome{Attempts: attempts, Err: err}
		}

		delay := delayForAttempt(policy, attempt)
		attempts[len(attempts)-1].DelayMs = delay

		timer := time.NewTimer(time.Duration(delay) * time.Millisecond)
		select {
		case <-ctx.Done():
			timer.Stop()
			return RetryOutcome{Attempts: attempts, Err: fmt.Errorf("%w: %v", ferrors.ErrCanceled, ctx.Err())}
		case <-timer.C:
		}
	}

	return RetryOutcome{Attempts: attempts, Err: errors.New("retry loop exited without a terminal result")}
}

// shouldRetry decides whether to retry err after attempt: false once attempt
// reaches max_attempts; else dont_retry_on_errors (substring,
// case-insensitive) takes precedence over retry_on_errors; with neither
// list configured, falls back to ferrors.IsRetryable.
func shouldRetry(err error, policy RetryPolicy, attempt int) bool {
	if attempt >= policy.MaxAttempts {
		return false
	}

	msg := strings.ToLower(err.Error())

	if len(policy.DontRetryOnErrors) > 0 {
		for _, pattern := range policy.DontRetryOnErrors {
			if strings.Contains(msg, strings.ToLower(pattern)) {
				return false
			}
		}
	}
	if len(policy.RetryOnErrors) > 0 {
		for _, pattern := range policy.RetryOnErrors {
			if strings.Contains(msg, strings.ToLower(pattern)) {
				return true
			}
		}
		return false
	}
	return ferrors.IsRetryable(err)
}

// delayForAttempt computes the backoff delay before the next attempt. The
// fixed strategy always returns InitialDelayMs; the exponential and jittered
// delays are capped at MaxDelayMs. The exponential and jittered curves are computed
// with backoff.ExponentialBackOff (cenkalti/backoff/v4): its currentInterval
// grows by BackoffMultiplier per call independent of the randomization
// applied to the returned value, so replaying NextBackOff attempt times from
// a fresh instance reproduces the Nth attempt's base interval exactly.
// RandomizationFactor 0 yields the deterministic exponential curve; 0.2
// yields a uniform [0.8, 1.2] jitter band.
func delayForAttempt(policy RetryPolicy, attempt int) int {
	switch policy.DelayStrategy {
	case DelayFixed:
		b := backoff.NewConstantBackOff(time.Duration(policy.InitialDelayMs) * time.Millisecond)
		return int(b.NextBackOff() / time.Millisecond)
	case DelayJittered:
		return int(exponentialDelay(policy, attempt, 0.2) / time.Millisecond)
	default: // exponential
		return int(exponentialDelay(policy, attempt, 0) / time.Millisecond)
	}
}

func exponentialDelay(policy RetryPolicy, attempt int, randomizationFactor float64) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Duration(policy.InitialDelayMs) * time.Millisecond
	b.Multiplier = policy.BackoffMultiplier
	b.MaxInterval = time.Duration(policy.MaxDelayMs) * time.Millisecond
	b.RandomizationFactor = randomizationFactor
	b.MaxElapsedTime = 0
	b.Reset()

	var d time.Duration
	for i := 0; i < attempt; i++ {
		d = b.NextBackOff()
	}
	if d > b.MaxInterval {
		d = b.MaxInterval
	}
	return d
}

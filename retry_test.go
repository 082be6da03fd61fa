// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmp

import (
	"context"
	"errors"
	"math"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicyDelayStaysWithinBounds(t *testing.T) {
	policy := RetryPolicy{InitialDelay: 10 * time.Millisecond, MaxDelay: 100 * time.Millisecond, Multiplier: 2}
	// Jitter applies after the MaxDelay cap, so the bound is MaxDelay·(1+jitter).
	upper := time.Duration(float64(policy.MaxDelay) * (1 + policy.jitter()))
	for n := 1; n <= 10; n++ {
		d := policy.delay(n)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, upper)
	}
}

func TestRetryPolicyDelayFollowsMultiplicativeJitterFormula(t *testing.T) {
	policy := RetryPolicy{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Hour, Multiplier: 2, Jitter: 0.1}
	for n := 1; n <= 5; n++ {
		computed := float64(policy.InitialDelay) * math.Pow(policy.multiplier(), float64(n-1))
		lo := time.Duration(computed * 0.9)
		hi := time.Duration(computed * 1.1)
		d := policy.delay(n)
		assert.GreaterOrEqual(t, d, lo, "attempt %d below the -10%% jitter bound", n)
		assert.LessOrEqual(t, d, hi, "attempt %d above the +10%% jitter bound", n)
	}
}

func TestRetryPolicyDelayDefaultsMultiplierToTwo(t *testing.T) {
	policy := RetryPolicy{InitialDelay: 1 * time.Millisecond, MaxDelay: time.Hour}
	assert.Equal(t, 2.0, policy.multiplier())
}

func TestRetryPolicyDelayDefaultsJitterToTenPercent(t *testing.T) {
	policy := RetryPolicy{InitialDelay: 1 * time.Millisecond, MaxDelay: time.Hour}
	assert.Equal(t, 0.1, policy.jitter())
}

func TestRetryPolicyDelayZeroInitialIsZero(t *testing.T) {
	policy := RetryPolicy{}
	assert.Equal(t, time.Duration(0), policy.delay(1))
}

func TestDoWithRetrySucceedsWithoutRetry(t *testing.T) {
	calls := 0
	err := doWithRetry(context.Background(), RetryPolicy{MaxRetries: 3}, func(ctx context.Context, n int) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoWithRetryStopsOnNonRetriableError(t *testing.T) {
	calls := 0
	sentinel := &ConfigError{Field: "x", Reason: "bad"}
	err := doWithRetry(context.Background(), RetryPolicy{MaxRetries: 5, InitialDelay: time.Millisecond}, func(ctx context.Context, n int) error {
		calls++
		return sentinel
	})
	assert.Equal(t, sentinel, err)
	assert.Equal(t, 1, calls)
}

func TestDoWithRetryRetriesTimeoutUntilExhausted(t *testing.T) {
	calls := 0
	err := doWithRetry(context.Background(), RetryPolicy{MaxRetries: 3, InitialDelay: time.Millisecond}, func(ctx context.Context, n int) error {
		calls++
		return &TimeoutError{}
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls, "one initial attempt plus three retries")
}

func TestDoWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := doWithRetry(context.Background(), RetryPolicy{MaxRetries: 5, InitialDelay: time.Millisecond}, func(ctx context.Context, n int) error {
		calls++
		if calls < 3 {
			return &TimeoutError{}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoWithRetryRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	cancel()
	err := doWithRetry(ctx, RetryPolicy{MaxRetries: 5, InitialDelay: 50 * time.Millisecond}, func(ctx context.Context, n int) error {
		calls++
		return &TimeoutError{}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "context already cancelled before the first retry's sleep")
}

func TestIsRetriableClassification(t *testing.T) {
	assert.True(t, isRetriable(&TimeoutError{}))
	assert.True(t, isRetriable(&IoError{Err: errors.New("boom")}))
	assert.False(t, isRetriable(nil))
	assert.False(t, isRetriable(&ConfigError{}))
	assert.False(t, isRetriable(&AuthError{}))
	assert.False(t, isRetriable(&PrivacyError{}))
	assert.False(t, isRetriable(&BerError{}))
	assert.False(t, isRetriable(&PduError{}))

	timeoutNetErr := &net.DNSError{IsTimeout: true}
	assert.True(t, isRetriable(timeoutNetErr))
	nonTimeoutNetErr := &net.DNSError{IsTimeout: false}
	assert.False(t, isRetriable(nonTimeoutNetErr))
}

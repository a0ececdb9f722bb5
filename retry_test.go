// Copyright 2026 The AERIS Payload Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package avaspec

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       attempts,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
		RetryTimeout:      time.Second,
	}
}

func TestRetryWithConfig_SucceedsAfterRetries(t *testing.T) {
	t.Parallel()

	calls := 0
	err := RetryWithConfig(context.Background(), fastRetryConfig(5), func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("attempt %d: %w", calls, ErrTimeout)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryWithConfig_ExhaustsAttempts(t *testing.T) {
	t.Parallel()

	calls := 0
	err := RetryWithConfig(context.Background(), fastRetryConfig(3), func() error {
		calls++
		return ErrTransportRead
	})
	require.ErrorIs(t, err, ErrTransportRead)
	assert.Equal(t, 3, calls)
}

func TestRetryWithConfig_NonRetryableStopsImmediately(t *testing.T) {
	t.Parallel()

	calls := 0
	err := RetryWithConfig(context.Background(), fastRetryConfig(5), func() error {
		calls++
		return ErrInvalidState
	})
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, 1, calls, "structural violations must not be retried")
}

func TestRetryWithConfig_ContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := RetryWithConfig(ctx, fastRetryConfig(10), func() error {
		calls++
		cancel()
		return ErrTimeout
	})
	require.Error(t, err)
	assert.LessOrEqual(t, calls, 2)
}

func TestRetryWithConfig_NilConfigUsesDefaults(t *testing.T) {
	t.Parallel()

	calls := 0
	err := RetryWithConfig(context.Background(), nil, func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryWithConfig_ZeroAttemptsRunsOnce(t *testing.T) {
	t.Parallel()

	cfg := fastRetryConfig(0)
	calls := 0
	err := RetryWithConfig(context.Background(), cfg, func() error {
		calls++
		return ErrTimeout
	})
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 1, calls)
}

func TestCalculateJitteredSleep(t *testing.T) {
	t.Parallel()

	base := 100 * time.Millisecond

	// No jitter: exact base.
	assert.Equal(t, base, calculateJitteredSleep(base, 0))

	// With jitter: within [base, base*1.1].
	for range 20 {
		sleep := calculateJitteredSleep(base, 0.1)
		assert.GreaterOrEqual(t, sleep, base)
		assert.LessOrEqual(t, sleep, base+base/10)
	}
}

func TestCalculateNextBackoff_Capped(t *testing.T) {
	t.Parallel()

	cfg := &RetryConfig{MaxBackoff: 50 * time.Millisecond, BackoffMultiplier: 3.0}
	assert.Equal(t, 30*time.Millisecond, calculateNextBackoff(10*time.Millisecond, cfg))
	assert.Equal(t, 50*time.Millisecond, calculateNextBackoff(30*time.Millisecond, cfg))
}

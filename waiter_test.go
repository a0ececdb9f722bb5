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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingTransaction_Ready(t *testing.T) {
	t.Parallel()

	p, _ := newPendingTransaction(context.Background(), cmdGetIdentification, time.Second)
	done := p.completionFunc()

	go done(Completion{N: 92})

	c, res := p.await(context.Background())
	assert.Equal(t, waitReady, res)
	assert.Equal(t, 92, c.N)
	require.NoError(t, c.Err)
	assert.True(t, p.completed)
}

func TestPendingTransaction_Ready_ReleasesTransferContext(t *testing.T) {
	t.Parallel()

	p, transferCtx := newPendingTransaction(context.Background(), cmdGetIdentification, time.Second)
	go p.completionFunc()(Completion{N: 92})

	_, res := p.await(context.Background())
	require.Equal(t, waitReady, res)
	require.ErrorIs(t, transferCtx.Err(), context.Canceled)
}

func TestPendingTransaction_Timeout(t *testing.T) {
	t.Parallel()

	p, _ := newPendingTransaction(context.Background(), cmdStartMeasurement, 20*time.Millisecond)

	start := time.Now()
	_, res := p.await(context.Background())
	elapsed := time.Since(start)

	assert.Equal(t, waitTimedOut, res)
	assert.False(t, p.completed)
	// The wait must not return early; an unresponsive transport costs at
	// most the timeout plus the reclaim cap.
	assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
}

func TestPendingTransaction_TimeoutReclaimsTransfer(t *testing.T) {
	t.Parallel()

	p, transferCtx := newPendingTransaction(context.Background(), cmdGetIdentification, 20*time.Millisecond)
	done := p.completionFunc()

	// A well-behaved transport: it owns the buffer until the transfer is
	// cancelled, then completes.
	released := make(chan struct{})
	go func() {
		<-transferCtx.Done()
		close(released)
		done(Completion{Err: transferCtx.Err()})
	}()

	start := time.Now()
	_, res := p.await(context.Background())
	require.Equal(t, waitTimedOut, res)

	// The transfer was cancelled and its completion drained before await
	// returned, so the caller may reuse the buffer immediately.
	select {
	case <-released:
	default:
		t.Fatal("timed-out wait returned while the transfer was still outstanding")
	}
	assert.True(t, p.completed)
	assert.Less(t, time.Since(start), 20*time.Millisecond+transferReclaimTimeout)
}

func TestPendingTransaction_LateCompletionAfterTimeout(t *testing.T) {
	t.Parallel()

	p, _ := newPendingTransaction(context.Background(), cmdStopMeasurement, 10*time.Millisecond)
	done := p.completionFunc()

	_, res := p.await(context.Background())
	require.Equal(t, waitTimedOut, res)

	// A completion arriving after the budget elapsed must not block or panic.
	done(Completion{N: 12})
	done(Completion{N: 12})
}

func TestPendingTransaction_Cancelled(t *testing.T) {
	t.Parallel()

	p, transferCtx := newPendingTransaction(context.Background(), cmdPrepareMeasurement, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, res := p.await(ctx)
	assert.Equal(t, waitCancelled, res)
	assert.ErrorIs(t, transferCtx.Err(), context.Canceled,
		"cancelling the wait must also cancel the transfer")
}

func TestPendingTransaction_DuplicateCompletionDropped(t *testing.T) {
	t.Parallel()

	p, _ := newPendingTransaction(context.Background(), cmdGetIdentification, time.Second)
	done := p.completionFunc()

	// Both sends happen before the wait; only the first result is kept.
	done(Completion{N: 1})
	done(Completion{N: 2})

	c, res := p.await(context.Background())
	assert.Equal(t, waitReady, res)
	assert.Equal(t, 1, c.N)
}

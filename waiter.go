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
	"time"
)

// waitResult is the outcome of waiting on a pending transaction.
type waitResult int

const (
	// waitReady means the completion callback fired within the budget.
	waitReady waitResult = iota
	// waitTimedOut means the budget elapsed with no completion.
	waitTimedOut
	// waitCancelled means the caller's context ended the wait.
	waitCancelled
)

// transferReclaimTimeout caps how long an abandoned transaction waits for
// the transport to complete its cancelled transfer and hand the shared
// buffer back.
const transferReclaimTimeout = 500 * time.Millisecond

// pendingTransaction is the driver's record of the single outstanding
// command awaiting a matching response or timeout. At most one exists per
// device; issuing a second command while one is pending is a caller bug.
type pendingTransaction struct {
	issuedAt  time.Time
	done      chan Completion
	cancel    context.CancelFunc
	timeout   time.Duration
	commandID byte
	completed bool
}

// newPendingTransaction records one outstanding command and returns the
// context its transfers must be queued under. Cancelling that context aborts
// the transfers, which is how an abandoned transaction reclaims the shared
// rx/tx buffers before they are reused.
func newPendingTransaction(ctx context.Context, commandID byte, timeout time.Duration) (*pendingTransaction, context.Context) {
	transferCtx, cancel := context.WithCancel(ctx)
	return &pendingTransaction{
		commandID: commandID,
		issuedAt:  time.Now(),
		timeout:   timeout,
		done:      make(chan Completion, 1),
		cancel:    cancel,
	}, transferCtx
}

// completionFunc returns the callback to hand to the transfer channel. The
// callback only delivers the result; all protocol logic stays with the
// sequencer goroutine that waits on the transaction.
func (p *pendingTransaction) completionFunc() CompletionFunc {
	return func(c Completion) {
		select {
		case p.done <- c:
		default:
			// A transaction completes at most once; a second callback for
			// the same transfer is dropped.
		}
	}
}

// await suspends until the transaction's completion callback fires, its
// timeout budget elapses, or ctx is cancelled. The wait is a channel select,
// so the scheduler keeps servicing other goroutines (including the transfer
// channel's completion delivery) for its whole duration.
func (p *pendingTransaction) await(ctx context.Context) (Completion, waitResult) {
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case c := <-p.done:
		p.completed = true
		p.cancel()
		return c, waitReady
	case <-timer.C:
		p.abandonTransfer()
		return Completion{}, waitTimedOut
	case <-ctx.Done():
		p.abandonTransfer()
		return Completion{}, waitCancelled
	}
}

// abandonTransfer cancels the transaction's transfers and waits for the
// transport to complete them. Until that completion arrives the transport
// still owns the buffers handed to QueueTransfer; returning earlier would let
// the next command reuse them while a stale transfer can still write.
func (p *pendingTransaction) abandonTransfer() {
	p.cancel()

	reclaim := time.NewTimer(transferReclaimTimeout)
	defer reclaim.Stop()
	select {
	case <-p.done:
		p.completed = true
	case <-reclaim.C:
		// The transport never acknowledged the cancellation.
	}
}

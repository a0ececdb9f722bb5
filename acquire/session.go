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

// Package acquire runs the continuous acquisition loop: every interval it
// drives one stop/prepare/start cycle on the instrument and hands the
// resulting measurement to the caller.
package acquire

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	avaspec "github.com/aeris-payload/go-avaspec"
	"github.com/aeris-payload/go-avaspec/internal/syncutil"
)

// Session handles continuous measurement acquisition
type Session struct {
	// OnMeasurement is called with each completed record. A non-nil return
	// stops the session.
	OnMeasurement func(m *avaspec.Measurement) error
	// OnCycleError is called when a cycle fails. The session keeps running
	// unless the error is fatal or the consecutive-failure limit is hit.
	OnCycleError func(err error)

	config     *Config
	device     *avaspec.Device
	pauseChan  chan struct{}
	resumeChan chan struct{}
	ackChan    chan struct{}

	cycles       atomic.Uint64
	lastRecordAt atomic.Int64

	stateMutex syncutil.RWMutex
	closed     atomic.Bool
	isPaused   atomic.Bool
}

// NewSession creates a new acquisition session
func NewSession(device *avaspec.Device, config *Config) *Session {
	if config == nil {
		config = DefaultConfig()
	}
	return &Session{
		device:     device,
		config:     config,
		pauseChan:  make(chan struct{}, 1),
		resumeChan: make(chan struct{}, 1),
		ackChan:    make(chan struct{}, 1),
	}
}

// GetDevice returns the underlying spectrometer device
func (s *Session) GetDevice() *avaspec.Device {
	return s.device
}

// Cycles returns the number of completed acquisition cycles
func (s *Session) Cycles() uint64 {
	return s.cycles.Load()
}

// LastMeasurementTime returns when the last complete record was acquired,
// or the zero time if none has been.
func (s *Session) LastMeasurementTime() time.Time {
	ns := s.lastRecordAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// SetOnMeasurement sets the callback for completed records.
func (s *Session) SetOnMeasurement(callback func(*avaspec.Measurement) error) {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	s.OnMeasurement = callback
}

// SetOnCycleError sets the callback for failed cycles.
func (s *Session) SetOnCycleError(callback func(error)) {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	s.OnCycleError = callback
}

// Start begins continuous acquisition. It blocks until ctx is cancelled,
// the session is closed, a fatal error occurs, or the consecutive-failure
// limit is reached.
func (s *Session) Start(ctx context.Context) error {
	failures := 0

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.pauseChan:
			if err := s.waitForResume(ctx); err != nil {
				return nil
			}
			continue
		case <-timer.C:
		}

		if s.closed.Load() {
			return nil
		}
		if s.isPaused.Load() {
			timer.Reset(10 * time.Millisecond)
			continue
		}

		cycleStart := time.Now()
		record, err := s.runCycle(ctx)
		switch {
		case err == nil:
			failures = 0
			s.cycles.Add(1)
			s.lastRecordAt.Store(time.Now().UnixNano())
			if cbErr := s.deliver(record); cbErr != nil {
				return cbErr
			}
		case ctx.Err() != nil:
			return nil
		default:
			failures++
			s.reportCycleError(err)
			if avaspec.IsFatal(err) {
				return fmt.Errorf("acquisition stopped: %w", err)
			}
			if s.config.MaxConsecutiveFailures > 0 && failures >= s.config.MaxConsecutiveFailures {
				return fmt.Errorf("acquisition stopped after %d consecutive failures: %w", failures, err)
			}
		}

		timer.Reset(nextDelay(cycleStart, s.config.Interval))
	}
}

// nextDelay keeps cycle starts on the interval grid when a cycle ran short,
// and starts immediately when a cycle overran.
func nextDelay(cycleStart time.Time, interval time.Duration) time.Duration {
	elapsed := time.Since(cycleStart)
	if elapsed >= interval {
		return 0
	}
	return interval - elapsed
}

// runCycle drives one full acquisition: stop any stale measurement, verify
// the instrument if configured, prepare, then start and collect the record.
// A timed-out stop or identify is logged by the driver and does not abort
// the cycle.
func (s *Session) runCycle(ctx context.Context) (*avaspec.Measurement, error) {
	if err := s.device.StopContext(ctx); err != nil && !avaspec.IsRetryable(err) {
		return nil, fmt.Errorf("stop failed: %w", err)
	}

	if s.config.IdentifyEachCycle {
		if _, err := s.device.IdentifyContext(ctx); err != nil && !avaspec.IsRetryable(err) {
			return nil, fmt.Errorf("identify failed: %w", err)
		}
	}

	if err := s.device.PrepareContext(ctx, s.config.Measurement); err != nil {
		return nil, fmt.Errorf("prepare failed: %w", err)
	}

	record, err := s.device.StartAndAcquireContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquisition failed: %w", err)
	}
	return record, nil
}

func (s *Session) deliver(record *avaspec.Measurement) error {
	s.stateMutex.RLock()
	cb := s.OnMeasurement
	s.stateMutex.RUnlock()
	if cb == nil {
		return nil
	}
	return cb(record)
}

func (s *Session) reportCycleError(err error) {
	s.stateMutex.RLock()
	cb := s.OnCycleError
	s.stateMutex.RUnlock()
	if cb != nil {
		cb(err)
	}
}

// waitForResume blocks the loop until Resume or cancellation.
func (s *Session) waitForResume(ctx context.Context) error {
	// Acknowledge the pause for PauseWithAck callers.
	select {
	case s.ackChan <- struct{}{}:
	default:
	}

	select {
	case <-s.resumeChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pause temporarily stops the acquisition loop between cycles
func (s *Session) Pause() {
	if s.isPaused.CompareAndSwap(false, true) {
		// Non-blocking send for when no loop is running
		select {
		case s.pauseChan <- struct{}{}:
		default:
		}
	}
}

// Resume restarts the acquisition loop after a pause
func (s *Session) Resume() {
	if s.isPaused.CompareAndSwap(true, false) {
		select {
		case s.resumeChan <- struct{}{}:
		default:
		}
	}
}

// PauseWithAck pauses acquisition and waits until the loop acknowledges.
func (s *Session) PauseWithAck(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("pause cancelled: %w", ctx.Err())
	}
	if !s.isPaused.CompareAndSwap(false, true) {
		return nil
	}

	select {
	case s.pauseChan <- struct{}{}:
		ackTimeout := time.NewTimer(100 * time.Millisecond)
		defer ackTimeout.Stop()

		select {
		case <-s.ackChan:
			return nil
		case <-ackTimeout.C:
			// No acknowledgment means no loop is running; the pause flag
			// is set either way.
			return nil
		case <-ctx.Done():
			s.isPaused.Store(false)
			return fmt.Errorf("pause cancelled: %w", ctx.Err())
		}
	case <-ctx.Done():
		s.isPaused.Store(false)
		return fmt.Errorf("pause cancelled: %w", ctx.Err())
	default:
		return nil
	}
}

// Close stops the session. The running Start loop exits before its next
// cycle.
func (s *Session) Close() error {
	s.closed.Store(true)

	s.isPaused.Store(false)
	select {
	case <-s.pauseChan:
	default:
	}
	select {
	case <-s.resumeChan:
	default:
	}
	return nil
}

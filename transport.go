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
	"sync"
	"time"

	"github.com/aeris-payload/go-avaspec/internal/frame"
)

// Direction selects the direction of a bulk transfer.
type Direction int

const (
	// DirOut transfers data from host to spectrometer.
	DirOut Direction = iota
	// DirIn transfers data from spectrometer to host.
	DirIn
)

// String returns the direction as a short wire-log tag.
func (d Direction) String() string {
	if d == DirOut {
		return "OUT"
	}
	return "IN"
}

// Completion carries the result of a finished transfer to its callback.
type Completion struct {
	// Err is nil on success.
	Err error
	// N is the number of bytes actually transferred.
	N int
}

// CompletionFunc is invoked exactly once when a queued transfer finishes.
// It runs asynchronously with respect to the caller's control flow and must
// only record the result; protocol logic belongs to the command sequencer.
type CompletionFunc func(Completion)

// Transport is the transfer channel the protocol engine drives. It exposes
// directional bulk transfers of up to one USB packet (512 bytes) and reports
// completion through a callback bound at queue time. Implementations exist
// for real USB hardware (transport/usb) and for tests (MockTransport,
// internal/simulator).
type Transport interface {
	// QueueTransfer enqueues one bulk transfer of length bytes using buf as
	// the source (OUT) or destination (IN). done fires when the transfer
	// completes. QueueTransfer itself never blocks on the wire.
	//
	// ctx bounds the transfer's lifetime: when it is cancelled the
	// implementation must abort the transfer, stop touching buf, and fire
	// done with the cancellation. Buffer ownership returns to the caller
	// only when done has fired.
	QueueTransfer(ctx context.Context, dir Direction, buf []byte, length int, done CompletionFunc) error

	// Close closes the transport connection
	Close() error

	// IsConnected returns true if the transport is connected
	IsConnected() bool

	// Type returns the transport type
	Type() TransportType
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportUSB represents the USB bulk transport.
	TransportUSB TransportType = "usb"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
	// TransportSimulator represents the wire-level instrument simulator
	TransportSimulator TransportType = "simulator"
)

// MockTransport provides a mock implementation of Transport for testing.
// Outbound command frames are parsed and logged; inbound transfers are
// served from packet queues scripted per command. A command with no scripted
// packets parks its inbound transfer until the transfer context is
// cancelled, which is how tests exercise the response timeout path.
type MockTransport struct {
	responses map[byte][][]byte
	callCount map[byte]int
	errorMap  map[byte]error
	inbound   [][]byte
	log       []MockCommandEntry
	delay     time.Duration
	mu        sync.Mutex
	connected bool
}

// MockCommandEntry records one outbound command frame seen by the mock.
type MockCommandEntry struct {
	Time      time.Time
	Frame     []byte
	CommandID byte
}

// NewMockTransport creates a new mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{
		connected: true,
		responses: make(map[byte][][]byte),
		callCount: make(map[byte]int),
		errorMap:  make(map[byte]error),
	}
}

// QueueTransfer implements Transport.
func (m *MockTransport) QueueTransfer(ctx context.Context, dir Direction, buf []byte, length int, done CompletionFunc) error {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return NewTransportError("QueueTransfer", "mock", ErrTransportClosed, ErrorTypePermanent)
	}
	delay := m.delay

	if dir == DirOut {
		m.handleOutbound(buf, length)
		m.mu.Unlock()
		m.complete(ctx, done, Completion{N: length}, delay)
		return nil
	}

	// Inbound: serve the next scripted packet, or park until the transfer is
	// cancelled when none is queued, so the waiter times out.
	if len(m.inbound) == 0 {
		m.mu.Unlock()
		if done != nil {
			go func() {
				<-ctx.Done()
				done(Completion{Err: ctx.Err()})
			}()
		}
		return nil
	}
	pkt := m.inbound[0]
	m.inbound = m.inbound[1:]
	m.mu.Unlock()

	n := copy(buf[:min(length, len(buf))], pkt)
	m.complete(ctx, done, Completion{N: n}, delay)
	return nil
}

// handleOutbound parses and logs a command frame and stages its scripted
// response packets. Caller holds the lock.
func (m *MockTransport) handleOutbound(buf []byte, length int) {
	frameCopy := make([]byte, length)
	copy(frameCopy, buf[:min(length, len(buf))])

	hdr, err := frame.ParseHeader(frameCopy)
	if err != nil {
		return
	}
	m.callCount[hdr.CommandID]++
	m.log = append(m.log, MockCommandEntry{
		CommandID: hdr.CommandID,
		Frame:     frameCopy,
		Time:      time.Now(),
	})

	if _, failed := m.errorMap[hdr.CommandID]; failed {
		return
	}
	for _, pkt := range m.responses[hdr.CommandID] {
		m.inbound = append(m.inbound, pkt)
	}
}

// complete invokes done asynchronously, matching the callback discipline of
// real transfer hardware. A cancellation during the configured delay aborts
// the transfer instead of delivering it.
func (*MockTransport) complete(ctx context.Context, done CompletionFunc, c Completion, delay time.Duration) {
	if done == nil {
		return
	}
	go func() {
		if delay > 0 {
			timer := time.NewTimer(delay)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				done(Completion{Err: ctx.Err()})
				return
			}
		}
		done(c)
	}()
}

// Close implements Transport interface
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
	return nil
}

// IsConnected returns true if the transport is connected
func (m *MockTransport) IsConnected() bool {
	m.mu.Lock()
	connected := m.connected
	m.mu.Unlock()
	return connected
}

// Type returns the transport type
func (*MockTransport) Type() TransportType {
	return TransportMock
}

// Test helper methods

// SetResponse scripts the inbound packets staged when cmd is next sent.
// Multi-packet responses (the measurement stream) pass one slice per packet.
func (m *MockTransport) SetResponse(cmd byte, packets ...[]byte) {
	m.mu.Lock()
	m.responses[cmd] = packets
	m.mu.Unlock()
}

// SetError makes the mock swallow responses for a command, so the inbound
// transfer never completes and the caller times out.
func (m *MockTransport) SetError(cmd byte, err error) {
	m.mu.Lock()
	m.errorMap[cmd] = err
	m.mu.Unlock()
}

// ClearError removes error injection for a command
func (m *MockTransport) ClearError(cmd byte) {
	m.mu.Lock()
	delete(m.errorMap, cmd)
	m.mu.Unlock()
}

// SetDelay configures a delay to simulate hardware response time
func (m *MockTransport) SetDelay(delay time.Duration) {
	m.mu.Lock()
	m.delay = delay
	m.mu.Unlock()
}

// GetCallCount returns how many times a command was sent
func (m *MockTransport) GetCallCount(cmd byte) int {
	m.mu.Lock()
	count := m.callCount[cmd]
	m.mu.Unlock()
	return count
}

// CommandLog returns a copy of the outbound frames seen so far.
func (m *MockTransport) CommandLog() []MockCommandEntry {
	m.mu.Lock()
	out := make([]MockCommandEntry, len(m.log))
	copy(out, m.log)
	m.mu.Unlock()
	return out
}

// Reset clears all call counts, logs and staged packets.
func (m *MockTransport) Reset() {
	m.mu.Lock()
	m.callCount = make(map[byte]int)
	m.log = nil
	m.inbound = nil
	m.connected = true
	m.mu.Unlock()
}

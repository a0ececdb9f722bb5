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
	"errors"
	"fmt"
	"time"

	"github.com/aeris-payload/go-avaspec/internal/frame"
)

// startMeasurementPayload is the two-byte payload the start-measurement
// command carries on the wire, captured from working transactions with the
// instrument.
var startMeasurementPayload = []byte{0x00, 0x04}

// TimeoutEvent describes a response timeout the sequencer absorbed. Timeouts
// are reported through the device's timeout handler rather than aborting the
// session: a missing acknowledgement delays data acquisition but does not
// halt the identify/prepare/stop commands.
type TimeoutEvent struct {
	State     SessionState
	CommandID byte
	Budget    time.Duration
}

// DeviceConfig contains configuration options for the Device
type DeviceConfig struct {
	// OnTimeout, when set, receives every absorbed response timeout.
	OnTimeout func(TimeoutEvent)
	// RetryConfig configures retry behavior for device connection. Commands
	// themselves are never retried; a caller that needs reliability
	// re-issues the whole measurement cycle.
	RetryConfig *RetryConfig
}

// DefaultDeviceConfig returns default device configuration
func DefaultDeviceConfig() *DeviceConfig {
	return &DeviceConfig{
		RetryConfig: DefaultRetryConfig(),
	}
}

// Identification is the raw 92-byte device identification block returned by
// the get-identification command.
type Identification struct {
	Raw []byte
}

// String formats the identification block for logs.
func (id *Identification) String() string {
	return formatHexBytes(id.Raw)
}

// Device is the command sequencer for one AvaSpec spectrometer session. It
// owns the single outbound and single inbound transfer buffer, the pending
// transaction record, and the measurement reassembler for the duration of a
// measurement cycle.
//
// Thread Safety: Device is NOT thread-safe. All methods must be called from
// a single goroutine or protected with external synchronization. The
// at-most-one-pending-transaction invariant is enforced by program
// structure, not by locks.
type Device struct {
	transport   Transport
	config      *DeviceConfig
	ident       *Identification
	trace       *TraceBuffer
	pending     *pendingTransaction
	reassembler Reassembler
	txBuf       [frame.PacketSize]byte
	rxBuf       [frame.PacketSize]byte
	state       SessionState
	seq         byte
}

// Option configures a Device.
type Option func(*Device) error

// WithTimeoutHandler installs a callback receiving every absorbed timeout.
func WithTimeoutHandler(handler func(TimeoutEvent)) Option {
	return func(d *Device) error {
		d.config.OnTimeout = handler
		return nil
	}
}

// WithRetryConfig overrides the connection retry configuration.
func WithRetryConfig(config *RetryConfig) Option {
	return func(d *Device) error {
		if config == nil {
			return fmt.Errorf("retry config must not be nil: %w", ErrInvalidParameter)
		}
		d.config.RetryConfig = config
		return nil
	}
}

// New creates a new AvaSpec device with the given transfer channel
func New(transport Transport, opts ...Option) (*Device, error) {
	device := &Device{
		transport: transport,
		config:    DefaultDeviceConfig(),
		state:     StateIdle,
		trace:     NewTraceBuffer(string(transport.Type()), "", 32),
	}

	for _, opt := range opts {
		if err := opt(device); err != nil {
			return nil, err
		}
	}

	return device, nil
}

// Transport returns the underlying transfer channel
func (d *Device) Transport() Transport {
	return d.transport
}

// State returns the current session state.
func (d *Device) State() SessionState {
	return d.state
}

// Identification returns the identification block from the last successful
// Identify, or nil if none succeeded yet.
func (d *Device) Identification() *Identification {
	return d.ident
}

// Init drives the session to a known state: any in-progress acquisition on
// the device side is stopped, then the identification block is read.
// Timeouts on either step are absorbed per the sequencer's timeout policy.
func (d *Device) Init() error {
	return d.InitContext(context.Background())
}

// InitContext initializes the device with context support
func (d *Device) InitContext(ctx context.Context) error {
	if err := d.StopContext(ctx); err != nil && !errors.Is(err, ErrTimeout) {
		return err
	}
	if _, err := d.IdentifyContext(ctx); err != nil && !errors.Is(err, ErrTimeout) {
		return err
	}
	return nil
}

// Close closes the device connection
func (d *Device) Close() error {
	if d.transport != nil {
		if err := d.transport.Close(); err != nil {
			return fmt.Errorf("failed to close transport: %w", err)
		}
	}
	return nil
}

// Identify reads the 92-byte device identification block (command 0x13).
func (d *Device) Identify() (*Identification, error) {
	return d.IdentifyContext(context.Background())
}

// IdentifyContext reads the identification block with context support
func (d *Device) IdentifyContext(ctx context.Context) (*Identification, error) {
	resp, err := d.runTransaction(ctx, StateIdentifying, cmdGetIdentification, nil, identTimeout, identResponseSize)
	if err != nil {
		return nil, err
	}
	d.ident = &Identification{Raw: resp}
	return d.ident, nil
}

// Prepare configures the acquisition parameters (command 0x05). It must
// precede StartAndAcquire.
func (d *Device) Prepare(cfg MeasurementConfig) error {
	return d.PrepareContext(context.Background(), cfg)
}

// PrepareContext configures acquisition parameters with context support
func (d *Device) PrepareContext(ctx context.Context, cfg MeasurementConfig) error {
	payload, err := cfg.payload()
	if err != nil {
		return err
	}
	_, err = d.runTransaction(ctx, StatePreparing, cmdPrepareMeasurement, payload, prepareTimeout, prepareResponseSize)
	return err
}

// Stop aborts any in-progress acquisition on the device (command 0x0F).
func (d *Device) Stop() error {
	return d.StopContext(context.Background())
}

// StopContext stops the device with context support
func (d *Device) StopContext(ctx context.Context) error {
	_, err := d.runTransaction(ctx, StateIdle, cmdStopMeasurement, nil, stopTimeout, stopResponseSize)
	d.reassembler.Begin()
	return err
}

// StartAndAcquire triggers one measurement (command 0x06), reassembles the
// resulting nine-packet stream into a complete 4106-byte record, sends the
// measurement acknowledgement, and returns the record. A timeout on the
// start acknowledgement is absorbed and acquisition proceeds; a timeout
// waiting for a data chunk abandons the cycle with ErrAcquisitionIncomplete
// so an external control loop can re-drive the whole
// identify-prepare-start sequence.
func (d *Device) StartAndAcquire() (*Measurement, error) {
	return d.StartAndAcquireContext(context.Background())
}

// StartAndAcquireContext runs one full acquisition with context support
func (d *Device) StartAndAcquireContext(ctx context.Context) (*Measurement, error) {
	if err := d.requireIdle("start measurement"); err != nil {
		return nil, err
	}

	d.state = StateMeasuring
	d.reassembler.Begin()

	// The start acknowledgement and the first data packet can race, so this
	// exchange accepts a full packet rather than the 6-byte acknowledgement;
	// if the instrument is already streaming, the whole packet is kept.
	resp, err := d.exchange(ctx, cmdStartMeasurement, startMeasurementPayload, startTimeout, frame.PacketSize)
	switch {
	case err == nil:
		switch {
		case frame.IsMeasurementData(resp):
			d.reassembler.OnPacket(resp)
		case len(resp) != startResponseSize:
			d.state = StateIdle
			return nil, fmt.Errorf("start response: %d bytes, want the %d-byte acknowledgement: %w",
				len(resp), startResponseSize, ErrNotMeasurementData)
		}
	case errors.Is(err, ErrTimeout):
		// Absorbed: a missing start acknowledgement only delays the data.
	default:
		d.state = StateIdle
		return nil, err
	}

	d.state = StateAcquiring
	record, err := d.acquireRecord(ctx)
	if err != nil {
		d.state = StateIdle
		return nil, err
	}

	d.state = StateAcknowledging
	if err := d.AcknowledgeContext(ctx); err != nil && !errors.Is(err, ErrTimeout) {
		return nil, err
	}
	return record, nil
}

// acquireRecord loops one inbound transfer per iteration, feeding each
// completed packet to the reassembler until the record is complete.
func (d *Device) acquireRecord(ctx context.Context) (*Measurement, error) {
	for {
		pkt, err := d.receiveChunk(ctx)
		if err != nil {
			return nil, err
		}
		// The stream's opening packet carries the measurement markers; a
		// bare packet here is a stray response, not the record.
		if d.reassembler.Offset() == 0 && !frame.IsMeasurementData(pkt) {
			return nil, fmt.Errorf("stream opened with a %d-byte packet: %w", len(pkt), ErrNotMeasurementData)
		}
		if d.reassembler.OnPacket(pkt) == Complete {
			return d.reassembler.Record(), nil
		}
	}
}

// receiveChunk queues one inbound transfer and waits for it under the
// per-chunk budget.
func (d *Device) receiveChunk(ctx context.Context) ([]byte, error) {
	if err := d.requireNoPending("receive chunk"); err != nil {
		return nil, err
	}

	clear(d.rxBuf[:])
	pending, transferCtx := newPendingTransaction(ctx, cmdStartMeasurement, chunkTimeout)
	d.pending = pending
	if err := d.transport.QueueTransfer(transferCtx, DirIn, d.rxBuf[:], frame.PacketSize, pending.completionFunc()); err != nil {
		pending.cancel()
		d.pending = nil
		return nil, fmt.Errorf("queue chunk read: %w", err)
	}

	c, res := d.pending.await(ctx)
	d.pending = nil
	switch res {
	case waitTimedOut:
		d.reportTimeout(cmdStartMeasurement, chunkTimeout)
		d.trace.RecordTimeout("chunk read")
		return nil, fmt.Errorf("%w: %d of %d bytes assembled: %w",
			ErrAcquisitionIncomplete, d.reassembler.Offset(), MeasurementSize, ErrTimeout)
	case waitCancelled:
		return nil, fmt.Errorf("chunk read cancelled: %w", ctx.Err())
	default:
	}
	if c.Err != nil {
		return nil, d.trace.WrapError(fmt.Errorf("chunk read: %w", c.Err))
	}

	d.trace.RecordRX(d.rxBuf[:min(c.N, 16)], "chunk")
	return d.rxBuf[:c.N], nil
}

// Acknowledge transmits the fixed 6-byte measurement acknowledgement
// (command 0xC0). The instrument sends no response; the transaction resolves
// on the outbound completion. Acknowledging clears the device-side buffer
// and resets the session's acquisition state.
func (d *Device) Acknowledge() error {
	return d.AcknowledgeContext(context.Background())
}

// AcknowledgeContext sends the measurement acknowledgement with context support
func (d *Device) AcknowledgeContext(ctx context.Context) error {
	if err := d.requireNoPending("acknowledge"); err != nil {
		return err
	}

	clear(d.txBuf[:])
	copy(d.txBuf[:], frame.AckFrame)
	d.trace.RecordTX(frame.AckFrame, "measurement ack")

	pending, transferCtx := newPendingTransaction(ctx, cmdAcknowledgeMeasurement, time.Second)
	d.pending = pending
	err := d.transport.QueueTransfer(transferCtx, DirOut, d.txBuf[:], len(frame.AckFrame), pending.completionFunc())
	if err != nil {
		pending.cancel()
		d.pending = nil
		return fmt.Errorf("queue acknowledge: %w", err)
	}

	_, res := d.pending.await(ctx)
	d.pending = nil
	d.reassembler.Begin()
	d.state = StateIdle
	if res == waitTimedOut {
		d.reportTimeout(cmdAcknowledgeMeasurement, time.Second)
		return fmt.Errorf("acknowledge send: %w", ErrTimeout)
	}
	if res == waitCancelled {
		return fmt.Errorf("acknowledge cancelled: %w", ctx.Err())
	}
	return nil
}

// runTransaction drives one simple command/response exchange through the
// given session state and restores the session to idle afterwards, whether
// the response arrived or timed out.
func (d *Device) runTransaction(
	ctx context.Context, state SessionState, commandID byte,
	payload []byte, timeout time.Duration, responseSize int,
) ([]byte, error) {
	if err := d.requireIdle(state.String()); err != nil {
		return nil, err
	}
	d.state = state
	resp, err := d.exchange(ctx, commandID, payload, timeout, responseSize)
	d.state = StateIdle
	return resp, err
}

// exchange frames and sends one command, then waits for its response packet.
// On timeout the pending transaction is marked failed and ErrTimeout is
// returned; the session is not aborted.
func (d *Device) exchange(
	ctx context.Context, commandID byte, payload []byte,
	timeout time.Duration, responseSize int,
) ([]byte, error) {
	if err := d.requireNoPending("exchange"); err != nil {
		return nil, err
	}

	clear(d.txBuf[:])
	frameLen, err := frame.BuildCommand(d.txBuf[:], d.seq, commandID, payload)
	if err != nil {
		if errors.Is(err, frame.ErrPayloadTooLarge) || errors.Is(err, frame.ErrOverflow) {
			return nil, fmt.Errorf("command %#02x: %w: %w", commandID, ErrBufferOverrun, err)
		}
		return nil, fmt.Errorf("build command %#02x: %w", commandID, err)
	}
	d.trace.RecordTX(d.txBuf[:frameLen], fmt.Sprintf("cmd %#02x", commandID))

	pending, transferCtx := newPendingTransaction(ctx, commandID, timeout)

	// The outbound completion only matters for buffer reuse; the response
	// transfer is the one the waiter watches. Both run under the transfer
	// context, so abandoning the transaction reclaims both buffers.
	if err := d.transport.QueueTransfer(transferCtx, DirOut, d.txBuf[:], frameLen, nil); err != nil {
		pending.cancel()
		return nil, fmt.Errorf("queue command %#02x: %w", commandID, err)
	}

	clear(d.rxBuf[:])
	d.pending = pending
	if err := d.transport.QueueTransfer(transferCtx, DirIn, d.rxBuf[:], frame.PacketSize, pending.completionFunc()); err != nil {
		pending.cancel()
		d.pending = nil
		return nil, fmt.Errorf("queue response read %#02x: %w", commandID, err)
	}

	c, res := d.pending.await(ctx)
	d.pending = nil
	switch res {
	case waitTimedOut:
		d.reportTimeout(commandID, timeout)
		d.trace.RecordTimeout(fmt.Sprintf("cmd %#02x", commandID))
		Debugf("command %#02x: no response within %v", commandID, timeout)
		return nil, fmt.Errorf("command %#02x: %w", commandID, ErrTimeout)
	case waitCancelled:
		return nil, fmt.Errorf("command %#02x cancelled: %w", commandID, ctx.Err())
	default:
	}
	if c.Err != nil {
		return nil, d.trace.WrapError(fmt.Errorf("command %#02x response: %w", commandID, c.Err))
	}

	n := min(c.N, responseSize)
	resp := make([]byte, n)
	copy(resp, d.rxBuf[:n])
	d.trace.RecordRX(resp, fmt.Sprintf("cmd %#02x response", commandID))
	return resp, nil
}

// requireIdle rejects an operation started outside the idle state. This is
// a structural violation by the caller, not a protocol condition.
func (d *Device) requireIdle(op string) error {
	if d.state != StateIdle {
		return fmt.Errorf("%s while %s: %w", op, d.state, ErrInvalidState)
	}
	return nil
}

// requireNoPending enforces the at-most-one-outstanding-command invariant.
func (d *Device) requireNoPending(op string) error {
	if d.pending != nil && !d.pending.completed {
		return fmt.Errorf("%s while command %#02x outstanding: %w",
			op, d.pending.commandID, ErrTransactionPending)
	}
	return nil
}

// reportTimeout delivers an absorbed timeout to the configured handler.
func (d *Device) reportTimeout(commandID byte, budget time.Duration) {
	if d.config.OnTimeout != nil {
		d.config.OnTimeout(TimeoutEvent{
			CommandID: commandID,
			State:     d.state,
			Budget:    budget,
		})
	}
}

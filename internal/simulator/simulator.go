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

// Package simulator provides a virtual AvaSpec-Mini2048CL that speaks the
// instrument's bulk protocol in-process. It produces synthetic spectra, so
// the full driver stack can run without hardware.
package simulator

import (
	"context"
	"encoding/binary"
	"math"
	"math/rand/v2"

	avaspec "github.com/aeris-payload/go-avaspec"
	"github.com/aeris-payload/go-avaspec/detection"
	"github.com/aeris-payload/go-avaspec/internal/frame"
	"github.com/aeris-payload/go-avaspec/internal/syncutil"
)

// Command IDs the virtual instrument answers.
const (
	cmdIdent   = 0x13
	cmdPrepare = 0x05
	cmdStart   = 0x06
	cmdStop    = 0x0F
	cmdAck     = 0xC0
)

// Response sizes, matching the real instrument.
const (
	identSize   = 92
	prepareSize = 8
	startSize   = 6
	stopSize    = 12
)

// SerialNumber is the synthetic serial reported in the identification
// response.
const SerialNumber = "2403018M1"

// VirtualAvaSpec implements avaspec.Transport as an in-process instrument.
// OUT transfers are parsed as command frames; IN transfers drain the packets
// the last command staged. An IN transfer with nothing staged never
// completes, which is how the real instrument behaves when it has nothing to
// say.
type VirtualAvaSpec struct {
	dropResponses map[byte]bool
	inbound       [][]byte
	rng           *rand.Rand
	integrationUs uint32
	averages      uint32
	startPixel    uint16
	stopPixel     uint16
	dropChunks    int
	mu            syncutil.Mutex
	connected     bool
	prepared      bool
}

// New creates a virtual instrument with a fixed-seed noise source so
// successive runs produce identical spectra.
func New() *VirtualAvaSpec {
	return &VirtualAvaSpec{
		connected:     true,
		dropResponses: make(map[byte]bool),
		dropChunks:    -1,
		integrationUs: 200000,
		averages:      1,
		stopPixel:     frame.PixelCount - 1,
		rng:           rand.New(rand.NewPCG(0x61766173, 0x70656331)),
	}
}

// Descriptor returns the instrument's 23-byte interface descriptor with the
// bulk IN endpoint at 0x86 and the bulk OUT endpoint at 0x02.
func (*VirtualAvaSpec) Descriptor() []byte {
	d := make([]byte, detection.DescriptorSize)
	d[0] = detection.DescriptorSize
	d[11] = 0x86
	d[18] = 0x02
	return d
}

// Claim returns the USB identity the detection package expects.
func (v *VirtualAvaSpec) Claim() detection.Claim {
	return detection.Claim{
		VendorID:   detection.VendorID,
		ProductID:  detection.ProductID,
		Descriptor: v.Descriptor(),
	}
}

// DropResponses makes the instrument swallow responses to the given command,
// so the driver's response wait times out.
func (v *VirtualAvaSpec) DropResponses(commandID byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.dropResponses[commandID] = true
}

// RestoreResponses undoes DropResponses for the given command.
func (v *VirtualAvaSpec) RestoreResponses(commandID byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.dropResponses, commandID)
}

// TruncateStream makes the next measurement stream stop after n packets,
// simulating a stalled acquisition.
func (v *VirtualAvaSpec) TruncateStream(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.dropChunks = n
}

// QueueTransfer implements avaspec.Transport.
func (v *VirtualAvaSpec) QueueTransfer(
	ctx context.Context, dir avaspec.Direction, buf []byte, length int, done avaspec.CompletionFunc,
) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.connected {
		return avaspec.ErrTransportClosed
	}

	switch dir {
	case avaspec.DirOut:
		v.handleCommand(buf[:length])
		if done != nil {
			go done(avaspec.Completion{N: length})
		}
		return nil
	case avaspec.DirIn:
		if len(v.inbound) == 0 {
			// Nothing staged: the transfer stays pending until cancelled,
			// like a bulk read against a silent instrument.
			if done != nil {
				go func() {
					<-ctx.Done()
					done(avaspec.Completion{Err: ctx.Err()})
				}()
			}
			return nil
		}
		pkt := v.inbound[0]
		v.inbound = v.inbound[1:]
		n := copy(buf[:length], pkt)
		if done != nil {
			go done(avaspec.Completion{N: n})
		}
		return nil
	default:
		return avaspec.ErrInvalidParameter
	}
}

// handleCommand parses an OUT frame and stages the response packets.
func (v *VirtualAvaSpec) handleCommand(out []byte) {
	h, err := frame.ParseHeader(out)
	if err != nil {
		return
	}
	if v.dropResponses[h.CommandID] {
		return
	}

	switch h.CommandID {
	case cmdIdent:
		v.inbound = append(v.inbound, v.identResponse(h.Sequence))
	case cmdPrepare:
		if payload, err := h.Payload(out); err == nil {
			v.applyPrepare(payload)
		}
		v.inbound = append(v.inbound, v.shortResponse(h.Sequence, cmdPrepare, prepareSize))
	case cmdStart:
		v.inbound = append(v.inbound, v.shortResponse(h.Sequence, cmdStart, startSize))
		v.stageMeasurement()
	case cmdStop:
		v.inbound = v.inbound[:0]
		v.inbound = append(v.inbound, v.shortResponse(h.Sequence, cmdStop, stopSize))
	case cmdAck:
		// The acknowledgement has no response.
	}
}

// applyPrepare decodes the little-endian acquisition parameters.
func (v *VirtualAvaSpec) applyPrepare(payload []byte) {
	if len(payload) < 16 {
		return
	}
	v.startPixel = binary.LittleEndian.Uint16(payload[0:2])
	v.stopPixel = binary.LittleEndian.Uint16(payload[2:4])
	v.integrationUs = binary.LittleEndian.Uint32(payload[4:8])
	v.averages = binary.LittleEndian.Uint32(payload[12:16])
	v.prepared = true
}

// identResponse builds the 92-byte identification response: a frame header
// followed by the serial number and firmware revision, zero padded.
func (v *VirtualAvaSpec) identResponse(seq byte) []byte {
	resp := make([]byte, identSize)
	resp[0] = frame.ProtocolID
	resp[1] = seq
	resp[2] = byte(identSize - 4)
	resp[4] = cmdIdent | 0x80
	copy(resp[frame.HeaderSize:], SerialNumber)
	copy(resp[frame.HeaderSize+16:], "FW1.2.0.0")
	return resp
}

// shortResponse builds a fixed-size acknowledgement frame for a command.
func (*VirtualAvaSpec) shortResponse(seq, commandID byte, size int) []byte {
	resp := make([]byte, size)
	resp[0] = frame.ProtocolID
	resp[1] = seq
	resp[2] = byte(size - 4)
	resp[4] = commandID | 0x80
	return resp
}

// stageMeasurement synthesizes one 4106-byte record and splits it into the
// packet stream the real instrument produces: eight 512-byte packets and a
// 10-byte tail.
func (v *VirtualAvaSpec) stageMeasurement() {
	record := v.synthesizeRecord()

	packets := len(record) / frame.PacketSize
	staged := 0
	for i := range packets {
		if v.dropChunks >= 0 && staged >= v.dropChunks {
			return
		}
		v.inbound = append(v.inbound, record[i*frame.PacketSize:(i+1)*frame.PacketSize])
		staged++
	}
	if tail := len(record) % frame.PacketSize; tail > 0 {
		if v.dropChunks >= 0 && staged >= v.dropChunks {
			return
		}
		v.inbound = append(v.inbound, record[len(record)-tail:])
	}
}

// synthesizeRecord produces a gaussian emission line over a noisy baseline,
// scaled by the prepared integration time.
func (v *VirtualAvaSpec) synthesizeRecord() []byte {
	record := make([]byte, frame.MeasurementSize)
	record[0] = frame.MeasurementMarker
	record[2] = byte((frame.MeasurementSize - 4) & 0xFF)
	record[3] = byte((frame.MeasurementSize - 4) >> 8)
	record[4] = frame.MeasurementResponseMarker

	// Peak amplitude grows with integration time, clipped to the ADC range.
	amplitude := 40000.0 * float64(v.integrationUs) / 200000.0
	if amplitude > 60000 {
		amplitude = 60000
	}
	const center, width = 1024.0, 96.0

	for i := range frame.PixelCount {
		value := 180.0 + 40.0*v.rng.Float64()
		if uint16(i) >= v.startPixel && uint16(i) <= v.stopPixel {
			d := (float64(i) - center) / width
			value += amplitude * math.Exp(-d*d/2)
		}
		if value > math.MaxUint16 {
			value = math.MaxUint16
		}
		off := frame.MeasurementHeaderSize + 2*i
		binary.LittleEndian.PutUint16(record[off:off+2], uint16(value))
	}
	return record
}

// Close implements avaspec.Transport.
func (v *VirtualAvaSpec) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.connected = false
	v.inbound = nil
	return nil
}

// IsConnected implements avaspec.Transport.
func (v *VirtualAvaSpec) IsConnected() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.connected
}

// Type implements avaspec.Transport.
func (v *VirtualAvaSpec) Type() avaspec.TransportType {
	return avaspec.TransportSimulator
}

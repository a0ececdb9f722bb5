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

package frame

import (
	"errors"
	"fmt"
)

// Build errors
var (
	// ErrPayloadTooLarge indicates the payload exceeds MaxPayloadSize or the
	// assembled frame would exceed MaxCommandSize.
	ErrPayloadTooLarge = errors.New("command payload too large")
	// ErrShortFrame indicates a buffer too short to hold a command header.
	ErrShortFrame = errors.New("frame shorter than command header")
)

// Header is the decoded fixed 6-byte command header.
type Header struct {
	ProtocolID byte
	Sequence   byte
	PayloadLen uint16
	CommandID  byte
	Flags      byte
}

// BuildCommand writes a complete command frame into buf: the fixed header
// followed by the command-specific payload. PayloadLen counts everything
// after the first four header bytes, i.e. command id + flags + payload.
// Returns the total frame length.
func BuildCommand(buf []byte, seq, commandID byte, payload []byte) (int, error) {
	if len(payload) > MaxPayloadSize {
		return 0, fmt.Errorf("%d bytes (max %d): %w", len(payload), MaxPayloadSize, ErrPayloadTooLarge)
	}
	total := HeaderSize + len(payload)
	if total > MaxCommandSize {
		return 0, fmt.Errorf("frame %d bytes (max %d): %w", total, MaxCommandSize, ErrPayloadTooLarge)
	}

	// payloadLen covers command id, flags and the payload bytes.
	payloadLen := uint16(2 + len(payload))

	w := NewWriter(buf)
	if err := w.WriteByte(ProtocolID); err != nil {
		return 0, err
	}
	if err := w.WriteByte(seq); err != nil {
		return 0, err
	}
	if err := w.WriteUint16(payloadLen); err != nil {
		return 0, err
	}
	if err := w.WriteByte(commandID); err != nil {
		return 0, err
	}
	if err := w.WriteByte(0x00); err != nil { // flags, always zero on the wire
		return 0, err
	}
	if err := w.Write(payload); err != nil {
		return 0, err
	}
	return w.Len(), nil
}

// ParseHeader decodes the fixed command header from the front of buf.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("%d bytes: %w", len(buf), ErrShortFrame)
	}
	return Header{
		ProtocolID: buf[0],
		Sequence:   buf[1],
		PayloadLen: uint16(buf[2]) | uint16(buf[3])<<8,
		CommandID:  buf[4],
		Flags:      buf[5],
	}, nil
}

// Payload returns the command payload that follows the header, using the
// header's length field to bound it. The length field counts command id and
// flags, so the payload itself is PayloadLen-2 bytes.
func (h Header) Payload(buf []byte) ([]byte, error) {
	if h.PayloadLen < 2 {
		return nil, nil
	}
	end := HeaderSize + int(h.PayloadLen) - 2
	if end > len(buf) {
		return nil, fmt.Errorf("payload claims %d bytes, frame has %d: %w",
			h.PayloadLen-2, len(buf)-HeaderSize, ErrShortFrame)
	}
	return buf[HeaderSize:end], nil
}

// IsMeasurementData reports whether an inbound packet belongs to a
// measurement data stream rather than a command acknowledgement. A packet
// qualifies when byte 0 carries the measurement marker or byte 4 carries the
// measurement-response marker.
func IsMeasurementData(pkt []byte) bool {
	if len(pkt) == 0 {
		return false
	}
	if pkt[0] == MeasurementMarker {
		return true
	}
	return len(pkt) > 4 && pkt[4] == MeasurementResponseMarker
}

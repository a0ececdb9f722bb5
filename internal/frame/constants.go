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

// Package frame implements the AvaSpec wire format: the fixed 6-byte command
// header, command payloads, and classification of inbound packets.
package frame

// Protocol marker bytes
const (
	// ProtocolID is the first byte of every outbound command header.
	ProtocolID = 0x20
	// MeasurementMarker at byte 0 of an inbound packet identifies the start
	// of a measurement data stream.
	MeasurementMarker = 0x21
	// MeasurementResponseMarker at byte 4 of an inbound packet identifies a
	// measurement response.
	MeasurementResponseMarker = 0xB1
)

// Frame layout
const (
	// HeaderSize is the fixed command header length:
	// {protocolId, sequence, payloadLenLSB, payloadLenMSB, commandId, flags}
	HeaderSize = 6
	// MaxPayloadSize is the largest command-specific payload the protocol
	// defines (prepare-measurement).
	MaxPayloadSize = 41
	// MaxCommandSize bounds a complete command frame so it always fits a
	// single USB bulk packet for commands.
	MaxCommandSize = 64
)

// Transfer and record sizes
const (
	// PacketSize is the USB bulk packet size used for both directions.
	PacketSize = 512
	// MeasurementSize is the complete measurement record: a 10-byte echoed
	// header followed by 2048 little-endian uint16 pixel intensities.
	MeasurementSize = 4106
	// MeasurementHeaderSize is the echoed header at the front of a record.
	MeasurementHeaderSize = 10
	// PixelCount is the number of pixels in one record.
	PixelCount = 2048
	// TailPacketSize is the short final fragment of a measurement stream:
	// 8 full packets leave exactly 10 bytes for the 9th.
	TailPacketSize = MeasurementSize - 8*PacketSize
)

// AckFrame is the fixed 6-byte measurement acknowledgement sent after a
// complete record has been reassembled. It clears the device-side buffer.
var AckFrame = []byte{0x21, 0x00, 0x02, 0x00, 0xC0, 0x00}

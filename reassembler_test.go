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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeris-payload/go-avaspec/internal/frame"
)

// splitRecord cuts a record into the stream the instrument produces: full
// 512-byte packets followed by the remainder.
func splitRecord(record []byte) [][]byte {
	var packets [][]byte
	for len(record) > frame.PacketSize {
		packets = append(packets, record[:frame.PacketSize])
		record = record[frame.PacketSize:]
	}
	if len(record) > 0 {
		packets = append(packets, record)
	}
	return packets
}

// patternRecord builds a full-size record with a recognizable byte pattern.
func patternRecord() []byte {
	record := make([]byte, MeasurementSize)
	for i := range record {
		record[i] = byte(i * 7)
	}
	return record
}

func TestReassembler_FullStream(t *testing.T) {
	t.Parallel()

	record := patternRecord()
	packets := splitRecord(record)
	require.Len(t, packets, 9)
	require.Len(t, packets[8], frame.TailPacketSize)

	var r Reassembler
	r.Begin()
	for i, pkt := range packets[:8] {
		assert.Equal(t, Partial, r.OnPacket(pkt), "packet %d must not complete the record", i)
	}
	assert.Equal(t, Complete, r.OnPacket(packets[8]))
	assert.Equal(t, MeasurementSize, r.Offset())
	assert.Equal(t, record, r.Record().Raw())
}

func TestReassembler_IncompleteStream(t *testing.T) {
	t.Parallel()

	packets := splitRecord(patternRecord())

	var r Reassembler
	r.Begin()
	for _, pkt := range packets[:8] {
		require.Equal(t, Partial, r.OnPacket(pkt))
	}
	assert.Equal(t, 8*frame.PacketSize, r.Offset())
}

func TestReassembler_OversizedTailIgnored(t *testing.T) {
	t.Parallel()

	record := patternRecord()
	packets := splitRecord(record)

	// Pad the tail packet to a full transfer; the extra bytes must not land
	// in the record.
	tail := make([]byte, frame.PacketSize)
	copy(tail, packets[8])
	for i := frame.TailPacketSize; i < len(tail); i++ {
		tail[i] = 0xEE
	}

	var r Reassembler
	r.Begin()
	for _, pkt := range packets[:8] {
		require.Equal(t, Partial, r.OnPacket(pkt))
	}
	assert.Equal(t, Complete, r.OnPacket(tail))
	assert.Equal(t, MeasurementSize, r.Offset())
	assert.Equal(t, record, r.Record().Raw())
}

func TestReassembler_PacketAfterComplete(t *testing.T) {
	t.Parallel()

	var r Reassembler
	r.Begin()
	for _, pkt := range splitRecord(patternRecord()) {
		r.OnPacket(pkt)
	}
	require.Equal(t, MeasurementSize, r.Offset())

	// A stray packet after completion changes nothing.
	assert.Equal(t, Complete, r.OnPacket(make([]byte, frame.PacketSize)))
	assert.Equal(t, MeasurementSize, r.Offset())
	assert.Equal(t, patternRecord(), r.Record().Raw())
}

func TestReassembler_BeginResets(t *testing.T) {
	t.Parallel()

	var r Reassembler
	r.Begin()
	r.OnPacket(make([]byte, frame.PacketSize))
	require.Equal(t, frame.PacketSize, r.Offset())

	r.Begin()
	assert.Equal(t, 0, r.Offset())
}

func TestReassembler_ShortChunks(t *testing.T) {
	t.Parallel()

	// Completion is byte-count based, not packet-count based: feeding the
	// record in odd-sized fragments still completes at exactly 4106 bytes.
	record := patternRecord()
	var r Reassembler
	r.Begin()

	off := 0
	for off < len(record) {
		n := min(100, len(record)-off)
		progress := r.OnPacket(record[off : off+n])
		off += n
		if off < len(record) {
			require.Equal(t, Partial, progress)
		} else {
			require.Equal(t, Complete, progress)
		}
	}
	assert.Equal(t, record, r.Record().Raw())
}

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

import "github.com/aeris-payload/go-avaspec/internal/frame"

// Progress reports the state of an in-flight measurement reassembly.
type Progress int

const (
	// Partial means more packets are needed to fill the record.
	Partial Progress = iota
	// Complete means the full 4106-byte record has been assembled.
	Complete
)

// Reassembler accumulates inbound 512-byte packets into a complete
// measurement record. The record size is fixed and known a priori, so the
// byte count alone determines completion: eight full packets plus one
// 10-byte tail fragment. No packet markers are consulted. (Counting exactly
// nine packets is numerically equivalent for these sizes, but the byte-count
// formulation holds up if the sizes ever change.)
type Reassembler struct {
	buf    [frame.MeasurementSize]byte
	offset int
}

// Begin resets the write offset and clears the record buffer for a new
// acquisition.
func (r *Reassembler) Begin() {
	r.offset = 0
	clear(r.buf[:])
}

// OnPacket copies as much of pkt as the record still needs, advances the
// offset, and reports whether the record is complete. Bytes beyond the
// record's remaining capacity are ignored; the offset never passes the
// record size.
func (r *Reassembler) OnPacket(pkt []byte) Progress {
	remaining := frame.MeasurementSize - r.offset
	if remaining <= 0 {
		return Complete
	}
	n := min(len(pkt), remaining)
	copy(r.buf[r.offset:], pkt[:n])
	r.offset += n

	if r.offset == frame.MeasurementSize {
		return Complete
	}
	return Partial
}

// Offset returns the number of record bytes assembled so far.
func (r *Reassembler) Offset() int {
	return r.offset
}

// Record returns the assembled measurement. Valid only once OnPacket has
// reported Complete.
func (r *Reassembler) Record() *Measurement {
	m := &Measurement{}
	copy(m.data[:], r.buf[:])
	return m
}

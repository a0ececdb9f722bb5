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
	"encoding/binary"
	"fmt"

	"github.com/aeris-payload/go-avaspec/internal/frame"
)

// Record geometry, re-exported for consumers that forward measurements.
const (
	// MeasurementSize is the complete record: 10-byte header + pixel data.
	MeasurementSize = frame.MeasurementSize
	// MeasurementHeaderSize is the echoed header at the front of the record.
	MeasurementHeaderSize = frame.MeasurementHeaderSize
	// PixelCount is the number of 16-bit pixel intensities per record.
	PixelCount = frame.PixelCount
)

// Measurement is one complete 4106-byte record produced by an acquisition
// cycle: a 10-byte echoed header followed by 2048 little-endian uint16 pixel
// intensities.
type Measurement struct {
	data [MeasurementSize]byte
}

// Raw returns the full record including its header.
func (m *Measurement) Raw() []byte {
	return m.data[:]
}

// Header returns the 10-byte echoed header.
func (m *Measurement) Header() []byte {
	return m.data[:MeasurementHeaderSize]
}

// Pixel returns the intensity of pixel i.
func (m *Measurement) Pixel(i int) (uint16, error) {
	if i < 0 || i >= PixelCount {
		return 0, fmt.Errorf("pixel index %d out of range [0, %d): %w", i, PixelCount, ErrInvalidParameter)
	}
	off := MeasurementHeaderSize + 2*i
	return binary.LittleEndian.Uint16(m.data[off : off+2]), nil
}

// Pixels decodes all 2048 pixel intensities.
func (m *Measurement) Pixels() []uint16 {
	out := make([]uint16, PixelCount)
	for i := range out {
		off := MeasurementHeaderSize + 2*i
		out[i] = binary.LittleEndian.Uint16(m.data[off : off+2])
	}
	return out
}

// MeasurementConfig holds the acquisition parameters sent with the
// prepare-measurement command. All multi-byte fields travel little-endian.
type MeasurementConfig struct {
	// StartPixel and StopPixel select the inclusive pixel range to read.
	StartPixel uint16
	StopPixel  uint16
	// IntegrationTimeUs is the integration time in microseconds.
	IntegrationTimeUs uint32
	// IntegrationDelay is the delay before integration starts, in internal
	// FPGA clock units.
	IntegrationDelay uint32
	// Averages is the number of on-device averages per measurement.
	Averages uint32
}

// DefaultMeasurementConfig returns the full-sensor single-shot configuration
// used for routine acquisition: all 2048 pixels, 200 ms integration, no
// delay, no averaging.
func DefaultMeasurementConfig() MeasurementConfig {
	return MeasurementConfig{
		StartPixel:        0,
		StopPixel:         PixelCount - 1,
		IntegrationTimeUs: 200000,
		IntegrationDelay:  0,
		Averages:          1,
	}
}

// validate rejects configurations the instrument cannot execute.
func (c MeasurementConfig) validate() error {
	if c.StartPixel > c.StopPixel {
		return fmt.Errorf("start pixel %d past stop pixel %d: %w", c.StartPixel, c.StopPixel, ErrInvalidParameter)
	}
	if c.StopPixel >= PixelCount {
		return fmt.Errorf("stop pixel %d out of range [0, %d): %w", c.StopPixel, PixelCount, ErrInvalidParameter)
	}
	if c.Averages == 0 {
		return fmt.Errorf("averages must be at least 1: %w", ErrInvalidParameter)
	}
	return nil
}

// payload encodes the fixed 41-byte prepare-measurement payload: pixel range,
// integration time, integration delay, averages, then reserved zeros.
func (c MeasurementConfig) payload() ([]byte, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}

	buf := make([]byte, frame.MaxPayloadSize)
	w := frame.NewWriter(buf)
	if err := w.WriteUint16(c.StartPixel); err != nil {
		return nil, err
	}
	if err := w.WriteUint16(c.StopPixel); err != nil {
		return nil, err
	}
	if err := w.WriteUint32(c.IntegrationTimeUs); err != nil {
		return nil, err
	}
	if err := w.WriteUint32(c.IntegrationDelay); err != nil {
		return nil, err
	}
	if err := w.WriteUint32(c.Averages); err != nil {
		return nil, err
	}
	// Remaining 25 bytes are reserved and stay zero.
	return buf, nil
}

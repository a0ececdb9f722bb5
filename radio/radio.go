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

// Package radio streams measurement records to a packet radio over SPI.
// A 4106-byte record does not fit one radio packet, so it travels as a
// numbered chunk sequence the ground segment reassembles.
package radio

import (
	"fmt"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	avaspec "github.com/aeris-payload/go-avaspec"
	"github.com/aeris-payload/go-avaspec/internal/syncutil"
)

const (
	// chunkMarker opens every chunk frame on the SPI bus.
	chunkMarker = 0xA5
	// chunkHeaderSize is marker + record sequence + index + total + length.
	chunkHeaderSize = 5
	// ChunkPayloadSize is the record bytes carried per radio packet. The
	// radio's packet buffer holds 64 bytes; the header takes 5.
	ChunkPayloadSize = 59

	// Default SPI settings for the radio module.
	defaultFreq = 2 * physic.MegaHertz
	mode        = spi.Mode0
)

// Link is a measurement downlink over an SPI-attached packet radio.
type Link struct {
	port spi.PortCloser
	conn spi.Conn
	mu   syncutil.Mutex
	seq  byte
}

// New opens the SPI port the radio is attached to.
func New(portName string) (*Link, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	port, err := spireg.Open(portName)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %s: %w", portName, err)
	}

	conn, err := port.Connect(defaultFreq, mode, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to connect SPI: %w", err)
	}

	return &Link{port: port, conn: conn}, nil
}

// NewWithConn wraps an existing SPI connection. Used in tests.
func NewWithConn(conn spi.Conn) *Link {
	return &Link{conn: conn}
}

// SendMeasurement splits the record into numbered chunks and clocks each one
// out to the radio. Every record gets the next sequence number, so the ground
// segment can detect a chunk from a stale record.
func (l *Link) SendMeasurement(m *avaspec.Measurement) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	raw := m.Raw()
	total := (len(raw) + ChunkPayloadSize - 1) / ChunkPayloadSize
	if total > 0xFF {
		return fmt.Errorf("record needs %d chunks, max 255: %w", total, avaspec.ErrInvalidParameter)
	}
	l.seq++

	for index := range total {
		start := index * ChunkPayloadSize
		end := min(start+ChunkPayloadSize, len(raw))
		if err := l.sendChunk(byte(index), byte(total), raw[start:end]); err != nil {
			return fmt.Errorf("failed to send chunk %d/%d: %w", index+1, total, err)
		}
	}
	return nil
}

// sendChunk frames one chunk and clocks it out.
func (l *Link) sendChunk(index, total byte, payload []byte) error {
	buf := make([]byte, chunkHeaderSize+len(payload))
	buf[0] = chunkMarker
	buf[1] = l.seq
	buf[2] = index
	buf[3] = total
	buf[4] = byte(len(payload))
	copy(buf[chunkHeaderSize:], payload)

	if err := l.conn.Tx(buf, nil); err != nil {
		return fmt.Errorf("SPI transfer failed: %w", err)
	}
	return nil
}

// Close releases the SPI port, if this link owns one.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.port == nil {
		return nil
	}
	err := l.port.Close()
	l.port = nil
	if err != nil {
		return fmt.Errorf("failed to close SPI port: %w", err)
	}
	return nil
}

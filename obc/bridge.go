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

// Package obc forwards measurements to the on-board computer over a serial
// line. Records travel as a framed CSV block: a start marker, one
// "pixel,intensity" line per pixel, and an end marker.
package obc

import (
	"bufio"
	"fmt"
	"io"

	"go.bug.st/serial"

	avaspec "github.com/aeris-payload/go-avaspec"
	"github.com/aeris-payload/go-avaspec/internal/syncutil"
)

// Block markers framing one measurement on the wire.
const (
	StartMarker = "VIA_START"
	EndMarker   = "VIA_END"
)

// Config holds the serial line settings for the OBC link.
type Config struct {
	// Port is the serial device path (e.g. "/dev/ttyAMA0").
	Port string
	// BaudRate for the link. Defaults to 115200.
	BaudRate int
}

// DefaultConfig returns the standard OBC link settings.
func DefaultConfig(port string) Config {
	return Config{
		Port:     port,
		BaudRate: 115200,
	}
}

// Bridge writes measurement blocks to the OBC. Safe for use from one
// goroutine at a time per block; concurrent blocks are serialized.
type Bridge struct {
	w      io.Writer
	closer io.Closer
	mu     syncutil.Mutex
}

// Open opens the serial port and returns a bridge bound to it.
func Open(cfg Config) (*Bridge, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 115200
	}
	port, err := serial.Open(cfg.Port, &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open OBC port %s: %w", cfg.Port, err)
	}
	return &Bridge{w: port, closer: port}, nil
}

// NewWriterBridge returns a bridge that writes to w instead of a serial
// port. Used in tests and when the OBC link is a pipe.
func NewWriterBridge(w io.Writer) *Bridge {
	return &Bridge{w: w}
}

// SendMeasurement writes one complete measurement as a framed CSV block.
func (b *Bridge) SendMeasurement(m *avaspec.Measurement) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	bw := bufio.NewWriter(b.w)
	if _, err := fmt.Fprintln(bw, StartMarker); err != nil {
		return fmt.Errorf("failed to write start marker: %w", err)
	}
	for i, value := range m.Pixels() {
		if _, err := fmt.Fprintf(bw, "%d,%d\n", i, value); err != nil {
			return fmt.Errorf("failed to write pixel %d: %w", i, err)
		}
	}
	if _, err := fmt.Fprintln(bw, EndMarker); err != nil {
		return fmt.Errorf("failed to write end marker: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush measurement block: %w", err)
	}
	return nil
}

// SendMessage writes a single free-form status line outside any block.
func (b *Bridge) SendMessage(msg string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := fmt.Fprintln(b.w, msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// Close closes the underlying serial port, if any.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closer == nil {
		return nil
	}
	err := b.closer.Close()
	b.closer = nil
	if err != nil {
		return fmt.Errorf("failed to close OBC port: %w", err)
	}
	return nil
}

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

// Writer errors
var (
	// ErrOverflow indicates a write would exceed the buffer capacity.
	ErrOverflow = errors.New("write exceeds buffer capacity")
)

// Writer is a bounds-checked cursor over a caller-supplied fixed-capacity
// buffer. Every write is checked against the buffer length; an overflow is
// reported as an error instead of silently truncating.
type Writer struct {
	buf []byte
	off int
}

// NewWriter wraps buf with a write cursor positioned at offset 0.
func NewWriter(buf []byte) *Writer {
	return &Writer{buf: buf}
}

// WriteByte appends a single byte.
func (w *Writer) WriteByte(b byte) error {
	if w.off >= len(w.buf) {
		return fmt.Errorf("offset %d: %w", w.off, ErrOverflow)
	}
	w.buf[w.off] = b
	w.off++
	return nil
}

// Write appends p in full or not at all.
func (w *Writer) Write(p []byte) error {
	if w.off+len(p) > len(w.buf) {
		return fmt.Errorf("offset %d, %d bytes: %w", w.off, len(p), ErrOverflow)
	}
	copy(w.buf[w.off:], p)
	w.off += len(p)
	return nil
}

// WriteUint16 appends v in little-endian byte order.
func (w *Writer) WriteUint16(v uint16) error {
	return w.Write([]byte{byte(v), byte(v >> 8)})
}

// WriteUint32 appends v in little-endian byte order.
func (w *Writer) WriteUint32(v uint32) error {
	return w.Write([]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
}

// Skip advances the cursor by n bytes, leaving the skipped region untouched.
func (w *Writer) Skip(n int) error {
	if w.off+n > len(w.buf) {
		return fmt.Errorf("offset %d, skip %d: %w", w.off, n, ErrOverflow)
	}
	w.off += n
	return nil
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return w.off
}

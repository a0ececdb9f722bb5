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

package obc

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	avaspec "github.com/aeris-payload/go-avaspec"
)

// rampMeasurement builds a record whose pixel i has intensity i&0xFFFF.
func rampMeasurement(t *testing.T) *avaspec.Measurement {
	t.Helper()

	raw := make([]byte, avaspec.MeasurementSize)
	for i := range avaspec.PixelCount {
		off := avaspec.MeasurementHeaderSize + 2*i
		raw[off] = byte(i)
		raw[off+1] = byte(i >> 8)
	}

	var r avaspec.Reassembler
	r.Begin()
	require.Equal(t, avaspec.Complete, r.OnPacket(raw))
	return r.Record()
}

func TestBridge_SendMeasurement(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	bridge := NewWriterBridge(&buf)
	require.NoError(t, bridge.SendMeasurement(rampMeasurement(t)))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, avaspec.PixelCount+2)

	assert.Equal(t, StartMarker, lines[0])
	assert.Equal(t, EndMarker, lines[len(lines)-1])
	assert.Equal(t, "0,0", lines[1])
	assert.Equal(t, "1024,1024", lines[1025])
	assert.Equal(t, fmt.Sprintf("%d,%d", avaspec.PixelCount-1, avaspec.PixelCount-1), lines[avaspec.PixelCount])
}

func TestBridge_SendMessage(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	bridge := NewWriterBridge(&buf)
	require.NoError(t, bridge.SendMessage("payload nominal"))
	assert.Equal(t, "payload nominal\n", buf.String())
}

// failingWriter errors after n successful writes.
type failingWriter struct {
	n int
}

func (f *failingWriter) Write(p []byte) (int, error) {
	if f.n <= 0 {
		return 0, errors.New("serial line gone")
	}
	f.n--
	return len(p), nil
}

func TestBridge_SendMeasurement_WriteError(t *testing.T) {
	t.Parallel()

	bridge := NewWriterBridge(&failingWriter{})
	err := bridge.SendMeasurement(rampMeasurement(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "serial line gone")
}

func TestBridge_CloseWithoutPort(t *testing.T) {
	t.Parallel()

	bridge := NewWriterBridge(&bytes.Buffer{})
	require.NoError(t, bridge.Close())
	require.NoError(t, bridge.Close())
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig("/dev/ttyAMA0")
	assert.Equal(t, "/dev/ttyAMA0", cfg.Port)
	assert.Equal(t, 115200, cfg.BaudRate)
}

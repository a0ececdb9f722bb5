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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeris-payload/go-avaspec/internal/frame"
)

// assembledRecord builds a complete measurement the way the driver does,
// through the reassembler.
func assembledRecord(t *testing.T) *Measurement {
	t.Helper()

	raw := make([]byte, frame.MeasurementSize)
	raw[0] = frame.MeasurementMarker
	raw[4] = frame.MeasurementResponseMarker
	for i := frame.MeasurementHeaderSize; i < len(raw); i++ {
		raw[i] = byte(i)
	}

	var r Reassembler
	r.Begin()
	require.Equal(t, Complete, r.OnPacket(raw))
	return r.Record()
}

// The session log shares a process-wide file, so this test must not run in
// parallel with others that log.
func TestSessionLog_InitLogClose(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer func() { require.NoError(t, os.Chdir(cwd)) }()

	logPath, err := InitSessionLog()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(logPath, "avaspec_"), "log name %q", logPath)
	assert.True(t, strings.HasSuffix(logPath, ".log"), "log name %q", logPath)
	assert.Equal(t, logPath, GetSessionLogPath())

	Debugf("prepare: integration %d us", 200000)
	LogMeasurement(assembledRecord(t))

	require.NoError(t, CloseSessionLog())
	assert.Empty(t, GetSessionLogPath())

	contents, err := os.ReadFile(filepath.Join(dir, logPath)) //nolint:gosec // path built from the log name this test created
	require.NoError(t, err)
	text := string(contents)

	assert.Contains(t, text, "=== AvaSpec Debug Session Log ===")
	assert.Contains(t, text, "DEBUG: prepare: integration 200000 us")
	assert.Contains(t, text, "MEASUREMENT (4106 bytes):")
	assert.Contains(t, text, "  0000: 21 00")
	assert.Contains(t, text, "=== Session ended ===")
}

func TestSessionLog_NoopWhenClosed(t *testing.T) {
	require.Empty(t, GetSessionLogPath())

	// With no session log open, logging must be a silent no-op.
	LogMeasurement(assembledRecord(t))
	LogMeasurement(nil)
	Debugln("discarded")
	require.NoError(t, CloseSessionLog())
}

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
	"errors"
	"fmt"
	"io"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		name string
		want bool
	}{
		{
			name: "Nil",
			err:  nil,
			want: false,
		},
		{
			name: "Timeout",
			err:  fmt.Errorf("command 0x13: %w", ErrTimeout),
			want: true,
		},
		{
			name: "Acquisition_Incomplete",
			err:  fmt.Errorf("%w: 1536 of 4106 bytes assembled: %w", ErrAcquisitionIncomplete, ErrTimeout),
			want: true,
		},
		{
			name: "Transport_Read",
			err:  ErrTransportRead,
			want: true,
		},
		{
			name: "Retryable_Transport_Error",
			err:  NewTimeoutError("read", "usb"),
			want: true,
		},
		{
			name: "Permanent_Transport_Error",
			err:  NewTransportError("open", "usb", ErrDeviceNotFound, ErrorTypePermanent),
			want: false,
		},
		{
			name: "Invalid_State",
			err:  ErrInvalidState,
			want: false,
		},
		{
			name: "Transaction_Pending",
			err:  ErrTransactionPending,
			want: false,
		},
		{
			name: "Buffer_Overrun",
			err:  ErrBufferOverrun,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestIsFatal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		name string
		want bool
	}{
		{
			name: "Nil",
			err:  nil,
			want: false,
		},
		{
			name: "Transport_Closed",
			err:  fmt.Errorf("queue: %w", ErrTransportClosed),
			want: true,
		},
		{
			name: "Device_Not_Found",
			err:  ErrDeviceNotFound,
			want: true,
		},
		{
			name: "EOF",
			err:  io.EOF,
			want: true,
		},
		{
			name: "Device_Unplugged_Errno",
			err:  fmt.Errorf("bulk read: %w", syscall.ENODEV),
			want: true,
		},
		{
			name: "Permanent_Transport_Error",
			err:  NewTransportError("open", "usb", errors.New("claim failed"), ErrorTypePermanent),
			want: true,
		},
		{
			name: "Plain_Timeout",
			err:  ErrTimeout,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsFatal(tt.err))
		})
	}
}

func TestTransportError_Formatting(t *testing.T) {
	t.Parallel()

	err := NewTransportError("read", "bus 1 addr 4", ErrTimeout, ErrorTypeTimeout)
	assert.Equal(t, "read bus 1 addr 4: response timeout", err.Error())
	require.ErrorIs(t, err, ErrTimeout)
	assert.True(t, err.Retryable)

	bare := NewTransportError("open", "", ErrDeviceNotFound, ErrorTypePermanent)
	assert.Equal(t, "open: device not found", bare.Error())
	assert.False(t, bare.Retryable)
}

func TestTraceBuffer_WrapError(t *testing.T) {
	t.Parallel()

	tb := NewTraceBuffer("mock", "test", 4)
	tb.RecordTX([]byte{0x20, 0x00, 0x02, 0x00, 0x13, 0x00}, "cmd 0x13")
	tb.RecordTimeout("cmd 0x13")

	wrapped := tb.WrapError(fmt.Errorf("command 0x13: %w", ErrTimeout))
	require.Error(t, wrapped)
	require.ErrorIs(t, wrapped, ErrTimeout)

	assert.True(t, HasTrace(wrapped))
	te := GetTrace(wrapped)
	require.NotNil(t, te)
	assert.Len(t, te.Trace, 2)
	assert.Equal(t, TraceTX, te.Trace[0].Direction)
	assert.Contains(t, te.Trace[1].Note, "TIMEOUT")
	assert.Contains(t, te.FormatTrace(), "20 00 02 00 13 00")

	assert.Nil(t, tb.WrapError(nil))
}

func TestTraceBuffer_Eviction(t *testing.T) {
	t.Parallel()

	tb := NewTraceBuffer("mock", "test", 2)
	tb.RecordTX([]byte{0x01}, "first")
	tb.RecordTX([]byte{0x02}, "second")
	tb.RecordTX([]byte{0x03}, "third")

	te := GetTrace(tb.WrapError(errors.New("boom")))
	require.NotNil(t, te)
	require.Len(t, te.Trace, 2)
	assert.Equal(t, "second", te.Trace[0].Note)
	assert.Equal(t, "third", te.Trace[1].Note)
}

func TestFormatHexBytes_Truncation(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "(empty)", formatHexBytes(nil))

	long := make([]byte, 100)
	formatted := formatHexBytes(long)
	assert.Contains(t, formatted, "... (100 bytes total)")
}

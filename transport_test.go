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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeris-payload/go-avaspec/internal/frame"
)

func TestMockTransport_OutboundLogging(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()

	buf := make([]byte, frame.PacketSize)
	n, err := frame.BuildCommand(buf, 0, cmdGetIdentification, nil)
	require.NoError(t, err)

	done := make(chan Completion, 1)
	err = mock.QueueTransfer(context.Background(), DirOut, buf, n, func(c Completion) { done <- c })
	require.NoError(t, err)

	select {
	case c := <-done:
		require.NoError(t, c.Err)
		assert.Equal(t, n, c.N)
	case <-time.After(time.Second):
		t.Fatal("outbound completion never fired")
	}

	assert.Equal(t, 1, mock.GetCallCount(cmdGetIdentification))
	log := mock.CommandLog()
	require.Len(t, log, 1)
	assert.Equal(t, buf[:n], log[0].Frame)
}

func TestMockTransport_InboundWithoutResponseParksUntilCancelled(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	buf := make([]byte, frame.PacketSize)
	done := make(chan Completion, 1)
	err := mock.QueueTransfer(ctx, DirIn, buf, frame.PacketSize, func(c Completion) { done <- c })
	require.NoError(t, err)

	select {
	case <-done:
		t.Fatal("inbound transfer completed with nothing staged")
	case <-time.After(50 * time.Millisecond):
	}

	// Cancelling the transfer hands the buffer back through the completion.
	cancel()
	select {
	case c := <-done:
		require.ErrorIs(t, c.Err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled transfer never completed")
	}
}

func TestMockTransport_ScriptedResponseOrder(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	mock.SetResponse(cmdStartMeasurement, []byte{0x01}, []byte{0x02}, []byte{0x03})

	cmd := make([]byte, frame.PacketSize)
	n, err := frame.BuildCommand(cmd, 0, cmdStartMeasurement, nil)
	require.NoError(t, err)
	require.NoError(t, mock.QueueTransfer(context.Background(), DirOut, cmd, n, nil))

	for want := byte(1); want <= 3; want++ {
		buf := make([]byte, frame.PacketSize)
		done := make(chan Completion, 1)
		require.NoError(t, mock.QueueTransfer(context.Background(), DirIn, buf, frame.PacketSize, func(c Completion) { done <- c }))

		select {
		case c := <-done:
			require.NoError(t, c.Err)
			assert.Equal(t, 1, c.N)
			assert.Equal(t, want, buf[0])
		case <-time.After(time.Second):
			t.Fatalf("packet %d never arrived", want)
		}
	}
}

func TestMockTransport_ErrorInjectionSwallowsResponse(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	mock.SetResponse(cmdStopMeasurement, []byte{0x01})
	mock.SetError(cmdStopMeasurement, ErrTimeout)

	cmd := make([]byte, frame.PacketSize)
	n, err := frame.BuildCommand(cmd, 0, cmdStopMeasurement, nil)
	require.NoError(t, err)
	require.NoError(t, mock.QueueTransfer(context.Background(), DirOut, cmd, n, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	buf := make([]byte, frame.PacketSize)
	done := make(chan Completion, 1)
	require.NoError(t, mock.QueueTransfer(ctx, DirIn, buf, frame.PacketSize, func(c Completion) { done <- c }))

	select {
	case <-done:
		t.Fatal("response should have been swallowed")
	case <-time.After(50 * time.Millisecond):
	}
	cancel()
	<-done

	// Clearing the injection restores normal scripting.
	mock.ClearError(cmdStopMeasurement)
	require.NoError(t, mock.QueueTransfer(context.Background(), DirOut, cmd, n, nil))
	require.NoError(t, mock.QueueTransfer(context.Background(), DirIn, buf, frame.PacketSize, func(c Completion) { done <- c }))
	select {
	case c := <-done:
		require.NoError(t, c.Err)
	case <-time.After(time.Second):
		t.Fatal("response never arrived after clearing injection")
	}
}

func TestMockTransport_ClosedRejectsTransfers(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	require.NoError(t, mock.Close())
	assert.False(t, mock.IsConnected())

	err := mock.QueueTransfer(context.Background(), DirOut, make([]byte, 8), 8, nil)
	require.ErrorIs(t, err, ErrTransportClosed)
}

func TestMockTransport_Reset(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	cmd := make([]byte, frame.PacketSize)
	n, err := frame.BuildCommand(cmd, 0, cmdGetIdentification, nil)
	require.NoError(t, err)
	require.NoError(t, mock.QueueTransfer(context.Background(), DirOut, cmd, n, nil))
	require.NoError(t, mock.Close())

	mock.Reset()
	assert.True(t, mock.IsConnected())
	assert.Zero(t, mock.GetCallCount(cmdGetIdentification))
	assert.Empty(t, mock.CommandLog())
}

func TestDirection_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "OUT", DirOut.String())
	assert.Equal(t, "IN", DirIn.String())
}

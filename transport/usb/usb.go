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

// Package usb implements the AvaSpec transfer channel over USB bulk
// endpoints using gousb.
package usb

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/gousb"

	avaspec "github.com/aeris-payload/go-avaspec"
	"github.com/aeris-payload/go-avaspec/detection"
	"github.com/aeris-payload/go-avaspec/internal/syncutil"
)

// Transport implements the avaspec.Transport interface over USB bulk
// endpoints. Each queued transfer runs on its own goroutine and reports
// through the caller's completion callback; the driver owns all timeout
// policy.
type Transport struct {
	ctx       *gousb.Context
	dev       *gousb.Device
	cfg       *gousb.Config
	intf      *gousb.Interface
	bulkIn    *gousb.InEndpoint
	bulkOut   *gousb.OutEndpoint
	ioCtx     context.Context
	ioCancel  context.CancelFunc
	path      string
	mu        syncutil.Mutex
	connected bool
}

// New enumerates the USB bus and opens the first AvaSpec-Mini2048CL found.
func New() (*Transport, error) {
	ctx := gousb.NewContext()

	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return uint16(desc.Vendor) == detection.VendorID && uint16(desc.Product) == detection.ProductID
	})
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("failed to enumerate USB devices: %w", err)
	}
	if len(devs) == 0 {
		ctx.Close()
		return nil, avaspec.ErrDeviceNotFound
	}

	dev := devs[0]
	for i := 1; i < len(devs); i++ {
		_ = devs[i].Close()
	}

	t, err := open(ctx, dev)
	if err != nil {
		_ = dev.Close()
		ctx.Close()
		return nil, err
	}
	return t, nil
}

// open claims the instrument's single configuration and interface and
// resolves the bulk endpoint pair.
func open(ctx *gousb.Context, dev *gousb.Device) (*Transport, error) {
	cfg, err := dev.Config(1)
	if err != nil {
		return nil, fmt.Errorf("failed to get config 1: %w", err)
	}

	intf, err := cfg.Interface(0, 0)
	if err != nil {
		_ = cfg.Close()
		return nil, fmt.Errorf("failed to claim interface 0: %w", err)
	}

	in, out, err := bulkEndpoints(intf)
	if err != nil {
		intf.Close()
		_ = cfg.Close()
		return nil, err
	}

	ioCtx, ioCancel := context.WithCancel(context.Background())
	return &Transport{
		ctx:       ctx,
		dev:       dev,
		cfg:       cfg,
		intf:      intf,
		bulkIn:    in,
		bulkOut:   out,
		ioCtx:     ioCtx,
		ioCancel:  ioCancel,
		path:      fmt.Sprintf("bus %d addr %d", dev.Desc.Bus, dev.Desc.Address),
		connected: true,
	}, nil
}

// bulkEndpoints locates the instrument's bulk IN/OUT endpoint pair on the
// claimed interface.
func bulkEndpoints(intf *gousb.Interface) (*gousb.InEndpoint, *gousb.OutEndpoint, error) {
	var inAddr, outAddr int
	for _, ep := range intf.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		if ep.Direction == gousb.EndpointDirectionIn && inAddr == 0 {
			inAddr = ep.Number
		}
		if ep.Direction == gousb.EndpointDirectionOut && outAddr == 0 {
			outAddr = ep.Number
		}
	}
	if inAddr == 0 || outAddr == 0 {
		return nil, nil, fmt.Errorf("%w: no bulk endpoint pair on interface", detection.ErrMalformedDescriptor)
	}

	in, err := intf.InEndpoint(inAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open bulk in endpoint: %w", err)
	}
	out, err := intf.OutEndpoint(outAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open bulk out endpoint: %w", err)
	}
	return in, out, nil
}

// QueueTransfer submits a bulk transfer. The transfer runs asynchronously;
// done (if non-nil) is invoked exactly once with the outcome. The buffer must
// stay valid until completion; cancelling ctx aborts the transfer and fires
// done once the endpoint has released the buffer.
func (t *Transport) QueueTransfer(
	ctx context.Context, dir avaspec.Direction, buf []byte, length int, done avaspec.CompletionFunc,
) error {
	t.mu.Lock()
	connected := t.connected
	t.mu.Unlock()
	if !connected {
		return avaspec.ErrTransportClosed
	}
	if length < 0 || length > len(buf) {
		return fmt.Errorf("transfer length %d out of range [0, %d]: %w",
			length, len(buf), avaspec.ErrInvalidParameter)
	}

	go t.run(ctx, dir, buf[:length], done)
	return nil
}

func (t *Transport) run(ctx context.Context, dir avaspec.Direction, buf []byte, done avaspec.CompletionFunc) {
	// A transfer ends when its own context is cancelled or the whole
	// transport shuts down, whichever comes first.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(t.ioCtx, cancel)
	defer stop()

	var n int
	var err error
	switch dir {
	case avaspec.DirOut:
		n, err = t.bulkOut.WriteContext(ctx, buf)
		if err != nil && !errors.Is(err, context.Canceled) {
			err = avaspec.NewTransportError("usb.write", t.path, err, avaspec.ErrorTypeTransient)
		}
	case avaspec.DirIn:
		n, err = t.bulkIn.ReadContext(ctx, buf)
		if err != nil && !errors.Is(err, context.Canceled) {
			err = avaspec.NewTransportError("usb.read", t.path, err, avaspec.ErrorTypeTransient)
		}
	default:
		err = fmt.Errorf("unknown transfer direction %d: %w", dir, avaspec.ErrInvalidParameter)
	}

	// A transfer cut short by Close reports the closed transport; one the
	// caller abandoned keeps the plain cancellation.
	if errors.Is(err, context.Canceled) && t.ioCtx.Err() != nil {
		err = avaspec.ErrTransportClosed
	}
	if done != nil {
		done(avaspec.Completion{N: n, Err: err})
	}
}

// Close cancels in-flight transfers and releases the USB interface.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return nil
	}
	t.connected = false

	t.ioCancel()
	t.intf.Close()
	if err := t.cfg.Close(); err != nil {
		avaspec.Debugf("usb: config close: %v", err)
	}
	if err := t.dev.Close(); err != nil {
		return fmt.Errorf("failed to close USB device: %w", err)
	}
	return t.ctx.Close()
}

// IsConnected returns true if the transport is open.
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Type returns the transport type.
func (t *Transport) Type() avaspec.TransportType {
	return avaspec.TransportUSB
}

// Path returns the bus location of the opened device.
func (t *Transport) Path() string {
	return t.path
}

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

// Package detection locates and validates AvaSpec-Mini spectrometers on the
// USB bus before the driver claims them.
package detection

import (
	"errors"
	"fmt"
)

// USB identity of the AvaSpec-Mini2048CL.
const (
	// VendorID is the Avantes USB vendor ID.
	VendorID = 0x1992
	// ProductID is the AvaSpec-Mini2048CL product ID.
	ProductID = 0x0668
)

// Interface descriptor layout. The instrument exposes a single 23-byte
// interface descriptor with the bulk endpoint addresses at fixed offsets.
const (
	// DescriptorSize is the expected interface descriptor length.
	DescriptorSize = 23
	// inEndpointOffset is the descriptor offset of the bulk IN endpoint address.
	inEndpointOffset = 11
	// outEndpointOffset is the descriptor offset of the bulk OUT endpoint address.
	outEndpointOffset = 18
)

// Claim validation errors.
var (
	// ErrWrongVendor indicates the device is not an Avantes instrument.
	ErrWrongVendor = errors.New("unexpected USB vendor ID")
	// ErrWrongProduct indicates the device is not an AvaSpec-Mini2048CL.
	ErrWrongProduct = errors.New("unexpected USB product ID")
	// ErrMalformedDescriptor indicates the interface descriptor does not
	// match the instrument's known layout.
	ErrMalformedDescriptor = errors.New("malformed interface descriptor")
)

// Claim is the raw identity a USB enumeration yields for a candidate device.
// Validate it before opening endpoints.
type Claim struct {
	// Descriptor is the raw interface descriptor bytes.
	Descriptor []byte
	// VendorID and ProductID come from the device descriptor.
	VendorID  uint16
	ProductID uint16
}

// Endpoints holds the bulk endpoint addresses extracted from a valid claim.
type Endpoints struct {
	// In is the bulk IN endpoint address (device to host).
	In byte
	// Out is the bulk OUT endpoint address (host to device).
	Out byte
}

// Validate checks the claim against the instrument's known USB identity and
// descriptor layout.
func (c Claim) Validate() error {
	if c.VendorID != VendorID {
		return fmt.Errorf("%w: %04X", ErrWrongVendor, c.VendorID)
	}
	if c.ProductID != ProductID {
		return fmt.Errorf("%w: %04X", ErrWrongProduct, c.ProductID)
	}
	if len(c.Descriptor) != DescriptorSize {
		return fmt.Errorf("%w: %d bytes, want %d", ErrMalformedDescriptor, len(c.Descriptor), DescriptorSize)
	}
	return nil
}

// Endpoints extracts the bulk endpoint addresses from the descriptor. The
// claim must validate first.
func (c Claim) Endpoints() (Endpoints, error) {
	if err := c.Validate(); err != nil {
		return Endpoints{}, err
	}

	in := c.Descriptor[inEndpointOffset]
	out := c.Descriptor[outEndpointOffset]
	if in&0x80 == 0 {
		return Endpoints{}, fmt.Errorf("%w: endpoint %02X is not an IN endpoint", ErrMalformedDescriptor, in)
	}
	if out&0x80 != 0 {
		return Endpoints{}, fmt.Errorf("%w: endpoint %02X is not an OUT endpoint", ErrMalformedDescriptor, out)
	}
	return Endpoints{In: in, Out: out}, nil
}

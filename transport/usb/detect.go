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

package usb

import (
	"context"
	"fmt"

	"github.com/google/gousb"

	"github.com/aeris-payload/go-avaspec/detection"
)

func init() {
	detection.RegisterDetector(&usbDetector{})
}

// usbDetector enumerates AvaSpec instruments on the USB bus without
// claiming them.
type usbDetector struct{}

// Transport returns the transport type this detector handles
func (*usbDetector) Transport() string {
	return "usb"
}

// Detect scans the bus for devices matching the instrument's VID/PID.
func (*usbDetector) Detect(ctx context.Context, _ *detection.Options) ([]detection.DeviceInfo, error) {
	select {
	case <-ctx.Done():
		return nil, detection.ErrDetectionTimeout
	default:
	}

	usbCtx := gousb.NewContext()
	defer usbCtx.Close()

	devs, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return uint16(desc.Vendor) == detection.VendorID && uint16(desc.Product) == detection.ProductID
	})
	if err != nil {
		for _, d := range devs {
			_ = d.Close()
		}
		return nil, fmt.Errorf("USB enumeration failed: %w", err)
	}

	devices := make([]detection.DeviceInfo, 0, len(devs))
	for _, d := range devs {
		desc := d.Desc
		devices = append(devices, detection.DeviceInfo{
			Transport: "usb",
			Path:      fmt.Sprintf("bus %d addr %d", desc.Bus, desc.Address),
			Name:      "AvaSpec-Mini2048CL",
			Claim: detection.Claim{
				VendorID:  uint16(desc.Vendor),
				ProductID: uint16(desc.Product),
			},
			Metadata: map[string]string{
				"vidpid": fmt.Sprintf("%04X:%04X", uint16(desc.Vendor), uint16(desc.Product)),
			},
		})
		_ = d.Close()
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

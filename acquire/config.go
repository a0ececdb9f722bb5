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

package acquire

import (
	"time"

	avaspec "github.com/aeris-payload/go-avaspec"
)

// Config holds acquisition session options
type Config struct {
	// Measurement is the acquisition configuration sent before each cycle
	Measurement avaspec.MeasurementConfig
	// Interval is the time between the start of consecutive cycles
	Interval time.Duration
	// MaxConsecutiveFailures stops the session after this many failed
	// cycles in a row (0 = never stop on failures)
	MaxConsecutiveFailures int
	// IdentifyEachCycle re-reads the instrument identification at the top
	// of every cycle as a liveness check
	IdentifyEachCycle bool
}

// DefaultConfig returns the default acquisition configuration
func DefaultConfig() *Config {
	return &Config{
		Measurement:            avaspec.DefaultMeasurementConfig(),
		Interval:               5 * time.Second,
		MaxConsecutiveFailures: 5,
		IdentifyEachCycle:      true,
	}
}

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

import "time"

// AvaSpec command codes (byte 4 of the 6-byte command header)
const (
	cmdGetIdentification      = 0x13
	cmdPrepareMeasurement     = 0x05
	cmdStartMeasurement       = 0x06
	cmdStopMeasurement        = 0x0F
	cmdAcknowledgeMeasurement = 0xC0
)

// Expected response sizes per command, in bytes. The acknowledge command
// produces no response at all.
const (
	identResponseSize   = 92
	prepareResponseSize = 8
	startResponseSize   = 6
	stopResponseSize    = 12
)

// Per-command response timeouts. The per-chunk timeout applies to each
// inbound 512-byte transfer during measurement acquisition.
const (
	identTimeout   = 3 * time.Second
	prepareTimeout = 3 * time.Second
	startTimeout   = 1 * time.Second
	stopTimeout    = 3 * time.Second
	chunkTimeout   = 3 * time.Second
)

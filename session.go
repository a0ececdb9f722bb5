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

// SessionState is the finite state machine driven by the command sequencer.
//
//	Idle --identify--> Identifying --(ack or timeout)--> Idle
//	Idle --prepare--> Preparing --(ack or timeout)--> Idle
//	Idle --start--> Measuring --(ack or timeout)--> Acquiring
//	Acquiring --(reassembly complete)--> Acknowledging
//	Acknowledging --(ack sent)--> Idle
//	Idle --stop--> Idle
type SessionState int

const (
	// StateIdle means no command is in flight.
	StateIdle SessionState = iota
	// StateIdentifying means a get-identification command is outstanding.
	StateIdentifying
	// StatePreparing means a prepare-measurement command is outstanding.
	StatePreparing
	// StateMeasuring means a start-measurement command is outstanding.
	StateMeasuring
	// StateAcquiring means measurement packets are being reassembled.
	StateAcquiring
	// StateAcknowledging means the measurement acknowledgement is being sent.
	StateAcknowledging
)

// String returns the state name for logs and errors.
func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateIdentifying:
		return "identifying"
	case StatePreparing:
		return "preparing"
	case StateMeasuring:
		return "measuring"
	case StateAcquiring:
		return "acquiring"
	case StateAcknowledging:
		return "acknowledging"
	default:
		return "unknown"
	}
}

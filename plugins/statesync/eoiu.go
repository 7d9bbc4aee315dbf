// Copyright (c) 2018 Cisco and/or its affiliates.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at:
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package statesync

// EOIUState is the state of the end-of-initial-update detection.
type EOIUState int

const (
	// EOIUWaiting means the sentinel message was not seen yet.
	EOIUWaiting EOIUState = iota

	// EOIUDetected means the initial dump has ended.
	EOIUDetected

	// EOIUComplete means the reconciliation triggered by the detection was done.
	EOIUComplete
)

// String returns name of the state.
func (s EOIUState) String() string {
	switch s {
	case EOIUWaiting:
		return "waiting"
	case EOIUDetected:
		return "detected"
	case EOIUComplete:
		return "complete"
	}
	return "unknown"
}

// DefaultSentinelInterface is the interface whose unchanged link message
// marks the end of the initial link dump.
const DefaultSentinelInterface = "lo"

// EOIUDetector detects the end of the initial update in the stream of link
// messages. The link dump is requested last and the kernel dumps links in
// the order of their index, so the reply for the sentinel interface (carrying
// an empty change mask, unlike notifications) is the first entry of the last
// dump. Detection therefore means that the final dump has started; the
// caller reconciles only after that dump is terminated.
type EOIUDetector struct {
	sentinel string
	state    EOIUState
	seen     uint64
}

// NewEOIUDetector returns detector waiting for the given sentinel interface.
func NewEOIUDetector(sentinel string) *EOIUDetector {
	if sentinel == "" {
		sentinel = DefaultSentinelInterface
	}
	return &EOIUDetector{sentinel: sentinel}
}

// Observe processes one link message. Returns true if this message
// caused the transition to EOIUDetected.
func (d *EOIUDetector) Observe(ifName string, changeMask uint32) bool {
	d.seen++
	if d.state != EOIUWaiting {
		return false
	}
	if ifName != d.sentinel || changeMask != 0 {
		return false
	}
	d.state = EOIUDetected
	return true
}

// MarkComplete moves the detector from EOIUDetected to EOIUComplete.
func (d *EOIUDetector) MarkComplete() error {
	if d.state != EOIUDetected {
		return &TransitionError{From: d.state, Action: "complete end-of-initial-update"}
	}
	d.state = EOIUComplete
	return nil
}

// State returns the current detection state.
func (d *EOIUDetector) State() EOIUState {
	return d.state
}

// Seen returns the number of observed link messages.
func (d *EOIUDetector) Seen() uint64 {
	return d.seen
}

// Sentinel returns the name of the sentinel interface.
func (d *EOIUDetector) Sentinel() string {
	return d.sentinel
}

// Reset returns the detector into the initial state.
func (d *EOIUDetector) Reset() {
	d.state = EOIUWaiting
	d.seen = 0
}

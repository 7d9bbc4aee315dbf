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

import (
	"fmt"
	"time"
)

/**************************** Backing Store Error *****************************/

// BackingStoreError is returned when the state store rejects or fails
// an operation. The affected changes are not considered written.
type BackingStoreError struct {
	op      string
	keys    int
	origErr error
}

// NewBackingStoreError is the constructor for BackingStoreError.
func NewBackingStoreError(op string, keys int, origErr error) error {
	return &BackingStoreError{op: op, keys: keys, origErr: origErr}
}

// Error returns the failed operation with the underlying error.
func (e *BackingStoreError) Error() string {
	return fmt.Sprintf("state store %s (%d keys) failed: %v", e.op, e.keys, e.origErr)
}

// GetOriginalError returns the underlying error.
func (e *BackingStoreError) GetOriginalError() error {
	return e.origErr
}

/************************* Warm Restart Timeout Error *************************/

// WarmRestartTimeoutError is returned when the downstream consumers did not
// confirm the restore within the configured timeout.
type WarmRestartTimeoutError struct {
	Timeout time.Duration
}

// Error describes the expired wait.
func (e *WarmRestartTimeoutError) Error() string {
	return fmt.Sprintf("restore was not confirmed within %v", e.Timeout)
}

/****************************** Transition Error ******************************/

// TransitionError is returned for a transition not allowed from the current
// state of a state machine.
type TransitionError struct {
	From   fmt.Stringer
	Action string
}

// Error describes the rejected transition.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s in state %v", e.Action, e.From)
}

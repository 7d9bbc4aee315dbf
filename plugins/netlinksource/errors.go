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

package netlinksource

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrOverrun is returned by the receive methods when the kernel reported
// that the socket receive buffer overflowed and notifications were lost.
// The caller should request a new dump to re-learn the current state.
var ErrOverrun = errors.New("netlink receive buffer overrun, notifications lost")

/******************************* Transport Error ******************************/

// TransportError is returned when the netlink socket cannot be opened,
// configured or read from.
type TransportError struct {
	op      string
	origErr error
}

// NewTransportError is the constructor for TransportError.
func NewTransportError(op string, origErr error) error {
	return &TransportError{op: op, origErr: origErr}
}

// Error returns the failed operation together with the underlying error.
func (e *TransportError) Error() string {
	return fmt.Sprintf("netlink %s failed: %v", e.op, e.origErr)
}

// GetOriginalError returns the underlying error.
func (e *TransportError) GetOriginalError() error {
	return e.origErr
}

/******************************** Decode Error ********************************/

// DecodeError describes a single netlink message that could not be decoded.
// The message is skipped, decoding continues with the next one.
type DecodeError struct {
	MsgType uint16
	Reason  string
}

// Error returns a description of the malformed message.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed netlink message (type %d): %s", e.MsgType, e.Reason)
}

/************************* Interface Resolution Error *************************/

// InterfaceResolutionError is returned when interface index cannot be
// translated to a name. Events referencing such interface are dropped.
type InterfaceResolutionError struct {
	Index   int
	origErr error
}

// NewInterfaceResolutionError is the constructor for InterfaceResolutionError.
func NewInterfaceResolutionError(index int, origErr error) error {
	return &InterfaceResolutionError{Index: index, origErr: origErr}
}

// Error returns the unresolved index with the underlying error.
func (e *InterfaceResolutionError) Error() string {
	return fmt.Sprintf("failed to resolve name of interface with index %d: %v", e.Index, e.origErr)
}

// GetOriginalError returns the underlying error.
func (e *InterfaceResolutionError) GetOriginalError() error {
	return e.origErr
}

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

//go:build !linux
// +build !linux

package netlinksource

import (
	"context"

	"github.com/ligato/cn-infra/logging"
	"github.com/pkg/errors"
)

var errUnsupported = errors.New("netlink is supported only on linux")

type unsupportedSource struct{}

// NewSource returns Source which fails to open on this platform.
func NewSource(log logging.Logger, resolver *IfNameResolver, cfg SocketConfig) Source {
	return &unsupportedSource{}
}

func (*unsupportedSource) Open() error {
	return NewTransportError("socket", errUnsupported)
}

func (*unsupportedSource) RequestDump(objType ObjectType) error {
	return NewTransportError("dump request", errUnsupported)
}

func (*unsupportedSource) Receive() ([]Event, error) {
	return nil, NewTransportError("receive", errUnsupported)
}

func (*unsupportedSource) TryReceive() ([]Event, bool, error) {
	return nil, false, NewTransportError("receive", errUnsupported)
}

func (*unsupportedSource) PollReceive(ctx context.Context) ([]Event, error) {
	return nil, NewTransportError("poll", errUnsupported)
}

func (*unsupportedSource) Close() error {
	return nil
}

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

// Package netlinksource subscribes to the kernel routing netlink channel and
// turns the received datagrams into typed link and neighbor events.
//
// The package exposes a single Source API with three receive styles:
//  - Receive blocks until at least one datagram arrives or the configured
//    receive timeout expires,
//  - TryReceive never blocks and reports an explicit empty result,
//  - PollReceive waits for the socket to become readable (bounded by
//    the context and the receive timeout) and then drains every queued datagram.
//
// All styles share the same Decoder, so the produced events are identical
// regardless of how the socket is driven. The slice of events returned by
// the receive methods is owned by the Source and is only valid until the next
// receive call.
//
// Only Linux provides the netlink transport; on other platforms Open fails
// with TransportError.
package netlinksource

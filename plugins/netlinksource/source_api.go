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
	"context"
	"fmt"
	"net"
	"time"
)

// Source is a subscription to kernel link and neighbor notifications.
// The slice returned by the receive methods is valid until the next call,
// its backing array is reused.
type Source interface {
	// Open creates the netlink socket and joins the multicast groups.
	// Returns TransportError if the socket cannot be created or configured.
	Open() error

	// RequestDump asks the kernel to send a complete dump of all objects
	// of the given type. The reply arrives through the receive methods
	// as a sequence of EventDump events terminated by EventDumpDone.
	RequestDump(objType ObjectType) error

	// Receive blocks until at least one datagram is received or the receive
	// timeout expires. On timeout an empty slice and nil error are returned.
	Receive() ([]Event, error)

	// TryReceive reads one datagram without blocking. <empty> is true
	// if there was nothing queued on the socket.
	TryReceive() (events []Event, empty bool, err error)

	// PollReceive waits until the socket becomes readable and then drains
	// all queued datagrams. The wait is bounded by the receive timeout and
	// interrupted by <ctx> cancellation (returning the context error).
	PollReceive(ctx context.Context) ([]Event, error)

	// Close releases the socket.
	Close() error
}

// ObjectType is a type of kernel object carried by an event.
type ObjectType int

const (
	// ObjectLink is a network interface.
	ObjectLink ObjectType = iota

	// ObjectNeigh is an entry of the neighbor (ARP/NDP) table.
	ObjectNeigh
)

// String returns human-readable name of the object type.
func (t ObjectType) String() string {
	switch t {
	case ObjectLink:
		return "link"
	case ObjectNeigh:
		return "neigh"
	}
	return fmt.Sprintf("object-%d", int(t))
}

// EventKind distinguishes notifications, deletions and dump replies.
type EventKind int

const (
	// EventNew is an asynchronous notification about a created or updated object.
	EventNew EventKind = iota

	// EventDelete is a notification about a removed object.
	EventDelete

	// EventDump is one object from a reply to RequestDump.
	EventDump

	// EventDumpDone terminates a dump reply. It carries no object.
	EventDumpDone
)

// String returns human-readable name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventNew:
		return "new"
	case EventDelete:
		return "delete"
	case EventDump:
		return "dump"
	case EventDumpDone:
		return "dump-done"
	}
	return fmt.Sprintf("kind-%d", int(k))
}

// Event is a single decoded kernel message.
// Exactly one of Link and Neigh is set, except for EventDumpDone.
type Event struct {
	Kind EventKind
	Type ObjectType

	// Seq is the sequence number from the netlink header (non-zero only for
	// replies to our own requests).
	Seq uint32

	Link  *LinkMsg
	Neigh *NeighMsg
}

// LinkMsg is the decoded content of RTM_NEWLINK/RTM_DELLINK.
type LinkMsg struct {
	Index int
	Name  string

	// Change is the ifi_change mask of the message; dump replies
	// carry zero.
	Change uint32

	// Flags are the raw IFF_* interface flags.
	Flags        uint32
	AdminUp      bool
	Running      bool
	OperState    string
	MTU          int
	HardwareAddr net.HardwareAddr
	MasterIndex  int
}

// NeighMsg is the decoded content of RTM_NEWNEIGH/RTM_DELNEIGH.
type NeighMsg struct {
	LinkIndex int

	// Interface is the resolved name of the interface the entry belongs to.
	Interface    string
	Family       int
	IP           net.IP
	HardwareAddr net.HardwareAddr

	// State is a combination of NUD_* values.
	State int

	// Flags is a combination of NTF_* values.
	Flags int
}

// Address families of neighbor entries.
const (
	FamilyIPv4   = 2  // AF_INET
	FamilyIPv6   = 10 // AF_INET6
	FamilyBridge = 7  // AF_BRIDGE
)

// Neighbor states, values from <linux/neighbour.h>.
const (
	NudIncomplete = 0x01
	NudReachable  = 0x02
	NudStale      = 0x04
	NudDelay      = 0x08
	NudProbe      = 0x10
	NudFailed     = 0x20
	NudNoArp      = 0x40
	NudPermanent  = 0x80
)

// NtfExtLearned marks neighbor entries learned externally (e.g. by
// a control plane), values from <linux/neighbour.h>.
const NtfExtLearned = 0x10

// NudStateName returns the name of the most significant NUD state bit.
func NudStateName(state int) string {
	switch {
	case state&NudPermanent != 0:
		return "permanent"
	case state&NudNoArp != 0:
		return "noarp"
	case state&NudFailed != 0:
		return "failed"
	case state&NudProbe != 0:
		return "probe"
	case state&NudDelay != 0:
		return "delay"
	case state&NudStale != 0:
		return "stale"
	case state&NudReachable != 0:
		return "reachable"
	case state&NudIncomplete != 0:
		return "incomplete"
	}
	return "none"
}

// SocketConfig groups the parameters of the netlink socket.
type SocketConfig struct {
	// ReceiveBufferSize is requested with SO_RCVBUFFORCE (SO_RCVBUF as fallback).
	ReceiveBufferSize int

	// ReceiveTimeout bounds Receive and PollReceive.
	ReceiveTimeout time.Duration

	// Groups lists the object types to subscribe notifications for.
	Groups []ObjectType
}

const (
	// DefaultReceiveBufferSize is the receive buffer requested when not configured.
	DefaultReceiveBufferSize = 16 * 1024 * 1024

	// DefaultReceiveTimeout is the receive timeout used when not configured.
	DefaultReceiveTimeout = time.Second
)

func (c SocketConfig) withDefaults() SocketConfig {
	if c.ReceiveBufferSize <= 0 {
		c.ReceiveBufferSize = DefaultReceiveBufferSize
	}
	if c.ReceiveTimeout <= 0 {
		c.ReceiveTimeout = DefaultReceiveTimeout
	}
	if len(c.Groups) == 0 {
		c.Groups = []ObjectType{ObjectLink, ObjectNeigh}
	}
	return c
}

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

// Package netlinksource provides a scripted implementation of
// netlinksource.Source for unit tests.
package netlinksource

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/contiv/netsync/plugins/netlinksource"
)

// emptyWait simulates the receive timeout when nothing is queued.
const emptyWait = 5 * time.Millisecond

type batch struct {
	events []netlinksource.Event
	err    error
}

// MockSource returns injected events and answers dump requests with
// the configured dump content terminated by EventDumpDone.
type MockSource struct {
	sync.Mutex

	queue []batch
	dumps map[netlinksource.ObjectType][]netlinksource.Event
	seq   uint32

	// OpenErr is returned by Open if set.
	OpenErr error

	// DumpRequests lists requested dumps in order.
	DumpRequests []netlinksource.ObjectType

	// SuppressDumpDone makes dump replies end without EventDumpDone.
	SuppressDumpDone bool

	// DumpBatchSize splits dump replies into batches of at most this many
	// events, each returned by a separate receive call. Zero returns the
	// whole reply at once.
	DumpBatchSize int

	opened bool
	closed bool
}

// NewMockSource returns MockSource with empty dumps.
func NewMockSource() *MockSource {
	return &MockSource{dumps: make(map[netlinksource.ObjectType][]netlinksource.Event)}
}

// SetDump sets the content of the dump reply for the given object type.
func (ms *MockSource) SetDump(objType netlinksource.ObjectType, events ...netlinksource.Event) {
	ms.Lock()
	defer ms.Unlock()
	for i := range events {
		events[i].Kind = netlinksource.EventDump
		events[i].Type = objType
	}
	ms.dumps[objType] = events
}

// Inject queues events returned together by one receive call.
func (ms *MockSource) Inject(events ...netlinksource.Event) {
	ms.Lock()
	defer ms.Unlock()
	ms.queue = append(ms.queue, batch{events: events})
}

// InjectError queues an error returned by one receive call.
func (ms *MockSource) InjectError(err error) {
	ms.Lock()
	defer ms.Unlock()
	ms.queue = append(ms.queue, batch{err: err})
}

// Queued returns the number of batches not yet received.
func (ms *MockSource) Queued() int {
	ms.Lock()
	defer ms.Unlock()
	return len(ms.queue)
}

// Requested returns a copy of DumpRequests.
func (ms *MockSource) Requested() []netlinksource.ObjectType {
	ms.Lock()
	defer ms.Unlock()
	return append([]netlinksource.ObjectType{}, ms.DumpRequests...)
}

// IsOpened returns true if Open succeeded.
func (ms *MockSource) IsOpened() bool {
	ms.Lock()
	defer ms.Unlock()
	return ms.opened
}

// IsClosed returns true if Close was called.
func (ms *MockSource) IsClosed() bool {
	ms.Lock()
	defer ms.Unlock()
	return ms.closed
}

// Open marks the source as opened.
func (ms *MockSource) Open() error {
	ms.Lock()
	defer ms.Unlock()
	if ms.OpenErr != nil {
		return ms.OpenErr
	}
	ms.opened = true
	return nil
}

// RequestDump queues the configured dump reply.
func (ms *MockSource) RequestDump(objType netlinksource.ObjectType) error {
	ms.Lock()
	defer ms.Unlock()
	if !ms.opened {
		return netlinksource.NewTransportError("dump request", errors.New("source is not open"))
	}
	ms.seq++
	ms.DumpRequests = append(ms.DumpRequests, objType)

	reply := make([]netlinksource.Event, 0, len(ms.dumps[objType])+1)
	for _, ev := range ms.dumps[objType] {
		ev.Seq = ms.seq
		reply = append(reply, ev)
	}
	if !ms.SuppressDumpDone {
		reply = append(reply, netlinksource.Event{
			Kind: netlinksource.EventDumpDone, Type: objType, Seq: ms.seq})
	}
	size := ms.DumpBatchSize
	if size <= 0 || size > len(reply) {
		ms.queue = append(ms.queue, batch{events: reply})
		return nil
	}
	for len(reply) > 0 {
		n := size
		if n > len(reply) {
			n = len(reply)
		}
		ms.queue = append(ms.queue, batch{events: reply[:n:n]})
		reply = reply[n:]
	}
	return nil
}

// Receive returns the next queued batch, or nothing after a short wait.
func (ms *MockSource) Receive() ([]netlinksource.Event, error) {
	events, empty, err := ms.TryReceive()
	if empty {
		time.Sleep(emptyWait)
	}
	return events, err
}

// TryReceive returns the next queued batch without waiting.
func (ms *MockSource) TryReceive() ([]netlinksource.Event, bool, error) {
	ms.Lock()
	defer ms.Unlock()
	if len(ms.queue) == 0 {
		return nil, true, nil
	}
	next := ms.queue[0]
	ms.queue = ms.queue[1:]
	return next.events, false, next.err
}

// PollReceive returns all queued batches up to the first error.
func (ms *MockSource) PollReceive(ctx context.Context) ([]netlinksource.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var events []netlinksource.Event
	for {
		batchEvents, empty, err := ms.TryReceive()
		events = append(events, batchEvents...)
		if err != nil {
			return events, err
		}
		if empty {
			break
		}
	}
	if len(events) == 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(emptyWait):
		}
	}
	return events, nil
}

// Close marks the source as closed.
func (ms *MockSource) Close() error {
	ms.Lock()
	defer ms.Unlock()
	ms.opened = false
	ms.closed = true
	return nil
}

// LinkEvent builds a link notification.
func LinkEvent(kind netlinksource.EventKind, index int, name string, change uint32) netlinksource.Event {
	return netlinksource.Event{
		Kind: kind,
		Type: netlinksource.ObjectLink,
		Link: &netlinksource.LinkMsg{
			Index:   index,
			Name:    name,
			Change:  change,
			AdminUp: true,
			Running: true,
		},
	}
}

// NeighEvent builds a neighbor notification.
func NeighEvent(kind netlinksource.EventKind, ifName string, family int, ip, mac string, state int) netlinksource.Event {
	msg := &netlinksource.NeighMsg{
		Interface: ifName,
		Family:    family,
		IP:        net.ParseIP(ip),
		State:     state,
	}
	if mac != "" {
		hw, err := net.ParseMAC(mac)
		if err != nil {
			panic(err)
		}
		msg.HardwareAddr = hw
	}
	return netlinksource.Event{Kind: kind, Type: netlinksource.ObjectNeigh, Neigh: msg}
}

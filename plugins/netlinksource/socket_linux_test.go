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
	"testing"
	"time"

	"github.com/ligato/cn-infra/logging/logrus"
	. "github.com/onsi/gomega"
)

const testReceiveTimeout = 50 * time.Millisecond

// openTestSocket opens a NETLINK_ROUTE socket, which does not need privileges;
// the receive buffer falls back to SO_RCVBUF without CAP_NET_ADMIN.
func openTestSocket(t *testing.T) *socket {
	resolver, err := NewIfNameResolver(0, nil)
	Expect(err).To(BeNil())
	source := NewSource(logrus.DefaultLogger(), resolver, SocketConfig{
		ReceiveBufferSize: 1 << 20,
		ReceiveTimeout:    testReceiveTimeout,
		Groups:            []ObjectType{ObjectNeigh},
	})
	if err := source.Open(); err != nil {
		t.Skipf("netlink socket not available: %v", err)
	}
	return source.(*socket)
}

// collectDump receives until the dump of <objType> is terminated. Returns
// the dump replies and the slice returned by the last receive call.
func collectDump(t *testing.T, objType ObjectType, receive func() ([]Event, error)) (dumped, last []Event) {
	for i := 0; i < 100; i++ {
		events, err := receive()
		Expect(err).To(BeNil())
		last = events
		for _, ev := range events {
			if ev.Type != objType {
				continue
			}
			switch ev.Kind {
			case EventDump:
				dumped = append(dumped, ev)
			case EventDumpDone:
				return dumped, last
			}
		}
	}
	t.Fatalf("dump of %v not terminated", objType)
	return nil, nil
}

func TestSocketOperationsRequireOpen(t *testing.T) {
	RegisterTestingT(t)
	resolver, err := NewIfNameResolver(0, nil)
	Expect(err).To(BeNil())
	source := NewSource(logrus.DefaultLogger(), resolver, SocketConfig{})

	_, isTransportErr := source.RequestDump(ObjectLink).(*TransportError)
	Expect(isTransportErr).To(BeTrue())
	_, err = source.Receive()
	_, isTransportErr = err.(*TransportError)
	Expect(isTransportErr).To(BeTrue())
	_, err = source.PollReceive(context.Background())
	_, isTransportErr = err.(*TransportError)
	Expect(isTransportErr).To(BeTrue())
	Expect(source.Close()).To(Succeed())
}

func TestSocketTryReceiveReportsEmpty(t *testing.T) {
	RegisterTestingT(t)
	s := openTestSocket(t)
	defer s.Close()

	// drain notifications queued since the socket was opened
	for i := 0; i < 100; i++ {
		events, empty, err := s.TryReceive()
		Expect(err).To(BeNil())
		if empty {
			Expect(events).To(BeEmpty())
			break
		}
	}
	_, empty, err := s.TryReceive()
	Expect(err).To(BeNil())
	Expect(empty).To(BeTrue())

	// blocking receive returns after the receive timeout
	start := time.Now()
	_, err = s.Receive()
	Expect(err).To(BeNil())
	Expect(time.Since(start)).To(BeNumerically("<", time.Second))
}

func TestSocketDumpsTerminated(t *testing.T) {
	RegisterTestingT(t)
	s := openTestSocket(t)
	defer s.Close()

	// neighbor table may be empty, the reply is terminated anyway
	Expect(s.RequestDump(ObjectNeigh)).To(Succeed())
	collectDump(t, ObjectNeigh, s.Receive)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	Expect(s.RequestDump(ObjectLink)).To(Succeed())
	links, _ := collectDump(t, ObjectLink, func() ([]Event, error) {
		return s.PollReceive(ctx)
	})

	var names []string
	for _, ev := range links {
		Expect(ev.Kind).To(Equal(EventDump))
		Expect(ev.Link).ToNot(BeNil())
		Expect(ev.Link.Change).To(BeZero())
		names = append(names, ev.Link.Name)
	}
	Expect(names).To(ContainElement("lo"))
	Expect(s.decoder.DecodeErrors()).To(BeZero())
}

func TestSocketReusesEventBuffer(t *testing.T) {
	RegisterTestingT(t)
	s := openTestSocket(t)
	defer s.Close()

	Expect(s.RequestDump(ObjectLink)).To(Succeed())
	_, last := collectDump(t, ObjectLink, s.Receive)

	for i := 0; i < 100; i++ {
		Expect(cap(last)).To(BeNumerically(">", 0))
		backing := &last[:1][0]
		next, empty, err := s.TryReceive()
		Expect(err).To(BeNil())
		if empty {
			// truncated, not reallocated
			Expect(next).To(BeEmpty())
			Expect(cap(next)).To(Equal(cap(last)))
			Expect(&next[:1][0]).To(BeIdenticalTo(backing))
			return
		}
		last = next
	}
	t.Fatal("socket not drained")
}

func TestSocketPollReceiveCancelled(t *testing.T) {
	RegisterTestingT(t)
	s := openTestSocket(t)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.PollReceive(ctx)
	Expect(err).To(Equal(context.Canceled))
}

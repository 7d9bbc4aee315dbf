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
	"time"

	"github.com/ligato/cn-infra/logging"
	"github.com/pkg/errors"
	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netlink/nl"
	"golang.org/x/sys/unix"
)

const (
	// receive buffer for a single datagram; the kernel never sends
	// more than 32KiB in one netlink datagram for rtnetlink dumps
	datagramBufferSize = 64 * 1024

	// maximum number of datagrams drained by a single PollReceive
	maxDrainedDatagrams = 1024

	// period in which PollReceive re-checks the context
	pollSlice = 100 * time.Millisecond
)

// socket implements Source over AF_NETLINK/NETLINK_ROUTE.
type socket struct {
	log     logging.Logger
	cfg     SocketConfig
	decoder *Decoder

	fd     int
	opened bool
	seq    uint32

	rxBuf  []byte
	events []Event
}

// NewSource returns Source backed by the kernel routing netlink socket.
// The socket is created by Open.
func NewSource(log logging.Logger, resolver *IfNameResolver, cfg SocketConfig) Source {
	return &socket{
		log:     log,
		cfg:     cfg.withDefaults(),
		decoder: NewDecoder(log, resolver),
		fd:      -1,
		seq:     uint32(time.Now().Unix()),
		rxBuf:   make([]byte, datagramBufferSize),
	}
}

// Open creates, configures and binds the netlink socket.
func (s *socket) Open() error {
	if s.opened {
		return nil
	}
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.NETLINK_ROUTE)
	if err != nil {
		return NewTransportError("socket", err)
	}
	if err := s.configure(fd); err != nil {
		unix.Close(fd)
		return err
	}
	s.fd = fd
	s.opened = true
	s.log.WithFields(logging.Fields{
		"rcvbuf":  s.cfg.ReceiveBufferSize,
		"timeout": s.cfg.ReceiveTimeout,
	}).Info("Netlink socket opened")
	return nil
}

func (s *socket) configure(fd int) error {
	// SO_RCVBUFFORCE requires CAP_NET_ADMIN
	err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUFFORCE, s.cfg.ReceiveBufferSize)
	if err != nil {
		s.log.Warnf("SO_RCVBUFFORCE failed (%v), falling back to SO_RCVBUF", err)
		err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, s.cfg.ReceiveBufferSize)
		if err != nil {
			return NewTransportError("setsockopt(SO_RCVBUF)", err)
		}
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_NETLINK, unix.NETLINK_BROADCAST_ERROR, 1); err != nil {
		return NewTransportError("setsockopt(NETLINK_BROADCAST_ERROR)", err)
	}
	// keep ENOBUFS reported, lost notifications must trigger a new dump
	if err := unix.SetsockoptInt(fd, unix.SOL_NETLINK, unix.NETLINK_NO_ENOBUFS, 0); err != nil {
		return NewTransportError("setsockopt(NETLINK_NO_ENOBUFS)", err)
	}
	tv := unix.NsecToTimeval(s.cfg.ReceiveTimeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		return NewTransportError("setsockopt(SO_RCVTIMEO)", err)
	}
	addr := &unix.SockaddrNetlink{
		Family: unix.AF_NETLINK,
		Groups: multicastGroups(s.cfg.Groups),
	}
	if err := unix.Bind(fd, addr); err != nil {
		return NewTransportError("bind", err)
	}
	return nil
}

func multicastGroups(objTypes []ObjectType) uint32 {
	var groups uint32
	for _, objType := range objTypes {
		switch objType {
		case ObjectLink:
			groups |= unix.RTMGRP_LINK
		case ObjectNeigh:
			groups |= unix.RTMGRP_NEIGH
		}
	}
	return groups
}

// RequestDump sends RTM_GETLINK or RTM_GETNEIGH dump request.
func (s *socket) RequestDump(objType ObjectType) error {
	if !s.opened {
		return NewTransportError("dump request", errors.New("socket is not open"))
	}
	var req *nl.NetlinkRequest
	switch objType {
	case ObjectLink:
		req = nl.NewNetlinkRequest(unix.RTM_GETLINK, unix.NLM_F_DUMP)
		req.AddData(nl.NewIfInfomsg(unix.AF_UNSPEC))
	case ObjectNeigh:
		req = nl.NewNetlinkRequest(unix.RTM_GETNEIGH, unix.NLM_F_DUMP)
		req.AddData(&netlink.Ndmsg{Family: unix.AF_UNSPEC})
	default:
		return errors.Errorf("unsupported object type for dump: %v", objType)
	}
	s.seq++
	req.Seq = s.seq

	s.decoder.ExpectDump(req.Seq, objType)
	if err := unix.Sendto(s.fd, req.Serialize(), 0, &unix.SockaddrNetlink{Family: unix.AF_NETLINK}); err != nil {
		return NewTransportError("dump request", err)
	}
	s.log.WithFields(logging.Fields{"type": objType, "seq": req.Seq}).Debug("Dump requested")
	return nil
}

// Receive blocks in recvfrom for at most the receive timeout.
func (s *socket) Receive() ([]Event, error) {
	s.events = s.events[:0]
	_, err := s.receiveOne(0)
	return s.events, err
}

// TryReceive reads a datagram if there is one queued.
func (s *socket) TryReceive() ([]Event, bool, error) {
	s.events = s.events[:0]
	received, err := s.receiveOne(unix.MSG_DONTWAIT)
	return s.events, !received && err == nil, err
}

// PollReceive waits for readiness and drains the socket.
func (s *socket) PollReceive(ctx context.Context) ([]Event, error) {
	s.events = s.events[:0]
	if !s.opened {
		return s.events, NewTransportError("poll", errors.New("socket is not open"))
	}
	deadline := time.Now().Add(s.cfg.ReceiveTimeout)
	for {
		if err := ctx.Err(); err != nil {
			return s.events, err
		}
		wait := time.Until(deadline)
		if wait <= 0 {
			return s.events, nil
		}
		if wait > pollSlice {
			wait = pollSlice
		}
		fds := []unix.PollFd{{Fd: int32(s.fd), Events: unix.POLLIN}}
		n, err := unix.Poll(fds, int(wait/time.Millisecond)+1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return s.events, NewTransportError("poll", err)
		}
		if n > 0 {
			break
		}
	}
	for i := 0; i < maxDrainedDatagrams; i++ {
		received, err := s.receiveOne(unix.MSG_DONTWAIT)
		if err != nil {
			return s.events, err
		}
		if !received {
			break
		}
	}
	return s.events, nil
}

// receiveOne reads and decodes a single datagram, appending to s.events.
func (s *socket) receiveOne(flags int) (received bool, err error) {
	if !s.opened {
		return false, NewTransportError("receive", errors.New("socket is not open"))
	}
	for {
		n, from, err := unix.Recvfrom(s.fd, s.rxBuf, flags)
		switch err {
		case nil:
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			// timeout for blocking reads, empty socket for non-blocking ones
			return false, nil
		case unix.ENOBUFS:
			return false, ErrOverrun
		default:
			return false, NewTransportError("receive", err)
		}
		if nlAddr, ok := from.(*unix.SockaddrNetlink); ok && nlAddr.Pid != 0 {
			// not from the kernel
			continue
		}
		s.events = s.decoder.Decode(s.rxBuf[:n], s.events)
		return true, nil
	}
}

// Close closes the socket.
func (s *socket) Close() error {
	if !s.opened {
		return nil
	}
	s.opened = false
	err := unix.Close(s.fd)
	s.fd = -1
	if err != nil {
		return NewTransportError("close", err)
	}
	return nil
}

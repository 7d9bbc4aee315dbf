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
	"net"
	"sync/atomic"

	"github.com/ligato/cn-infra/logging"
	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netlink/nl"
	"golang.org/x/sys/unix"
)

const (
	nlmsgAlignTo = 4
	sizeofNdmsg  = 12
)

// Decoder splits netlink datagrams into messages and decodes link and
// neighbor messages into events. Messages of other types are skipped.
type Decoder struct {
	log      logging.Logger
	resolver *IfNameResolver

	// pending dumps by sequence number
	dumps map[uint32]ObjectType

	decodeErrors  uint64
	resolveErrors uint64
}

// NewDecoder returns decoder which resolves interface names with <resolver>.
func NewDecoder(log logging.Logger, resolver *IfNameResolver) *Decoder {
	return &Decoder{
		log:      log,
		resolver: resolver,
		dumps:    make(map[uint32]ObjectType),
	}
}

// ExpectDump registers a dump request sent with the given sequence number,
// so that its termination can be reported with the right object type.
func (d *Decoder) ExpectDump(seq uint32, objType ObjectType) {
	d.dumps[seq] = objType
}

// DecodeErrors returns the number of malformed messages skipped so far.
func (d *Decoder) DecodeErrors() uint64 {
	return atomic.LoadUint64(&d.decodeErrors)
}

// ResolveErrors returns the number of events dropped because of unknown interface.
func (d *Decoder) ResolveErrors() uint64 {
	return atomic.LoadUint64(&d.resolveErrors)
}

// Decode appends events decoded from a single datagram to <events>.
// The returned events never reference <datagram>, it can be reused
// by the caller.
func (d *Decoder) Decode(datagram []byte, events []Event) []Event {
	for len(datagram) >= unix.SizeofNlMsghdr {
		hdr := readHeader(datagram)
		msgLen := int(hdr.Len)
		if msgLen < unix.SizeofNlMsghdr || msgLen > len(datagram) {
			// message boundaries are lost, the rest of the datagram is unusable
			d.skip(&DecodeError{
				MsgType: hdr.Type,
				Reason:  fmt.Sprintf("invalid length %d with %d bytes left", msgLen, len(datagram)),
			})
			break
		}
		events = d.decodeMessage(hdr, datagram[unix.SizeofNlMsghdr:msgLen], events)

		next := nlmsgAlign(msgLen)
		if next >= len(datagram) {
			break
		}
		datagram = datagram[next:]
	}
	return events
}

func (d *Decoder) decodeMessage(hdr *unix.NlMsghdr, payload []byte, events []Event) []Event {
	switch hdr.Type {
	case unix.NLMSG_DONE:
		return d.dumpDone(hdr, events)
	case unix.NLMSG_ERROR:
		return d.errorMessage(hdr, payload, events)
	case unix.RTM_NEWLINK, unix.RTM_DELLINK:
		ev, err := d.decodeLink(hdr, payload)
		if err != nil {
			d.skip(err)
			return events
		}
		return append(events, ev)
	case unix.RTM_NEWNEIGH, unix.RTM_DELNEIGH:
		ev, err := d.decodeNeigh(hdr, payload)
		if err != nil {
			if _, unresolved := err.(*InterfaceResolutionError); unresolved {
				atomic.AddUint64(&d.resolveErrors, 1)
				d.log.WithField("seq", hdr.Seq).Warn(err)
				return events
			}
			d.skip(err)
			return events
		}
		return append(events, ev)
	}
	// NLMSG_NOOP, NLMSG_OVERRUN and types outside of the interest set
	return events
}

func (d *Decoder) dumpDone(hdr *unix.NlMsghdr, events []Event) []Event {
	objType, expected := d.dumps[hdr.Seq]
	if !expected {
		d.log.Debugf("Ignoring NLMSG_DONE with unknown sequence number %d", hdr.Seq)
		return events
	}
	delete(d.dumps, hdr.Seq)
	return append(events, Event{Kind: EventDumpDone, Type: objType, Seq: hdr.Seq})
}

// errorMessage handles NLMSG_ERROR. A failed dump request is reported
// as terminated, so that the caller does not wait for it forever.
func (d *Decoder) errorMessage(hdr *unix.NlMsghdr, payload []byte, events []Event) []Event {
	if len(payload) < 4 {
		d.skip(&DecodeError{MsgType: hdr.Type, Reason: "truncated error message"})
		return events
	}
	errno := -int32(nl.NativeEndian().Uint32(payload[0:4]))
	if errno == 0 {
		// acknowledgement
		return events
	}
	d.log.WithField("seq", hdr.Seq).Warnf("Kernel returned error for netlink request: %v",
		unix.Errno(errno))
	if objType, isDump := d.dumps[hdr.Seq]; isDump {
		delete(d.dumps, hdr.Seq)
		events = append(events, Event{Kind: EventDumpDone, Type: objType, Seq: hdr.Seq})
	}
	return events
}

func (d *Decoder) decodeLink(hdr *unix.NlMsghdr, payload []byte) (Event, error) {
	if len(payload) < unix.SizeofIfInfomsg {
		return Event{}, &DecodeError{MsgType: hdr.Type, Reason: "truncated ifinfomsg"}
	}
	ifi := nl.DeserializeIfInfomsg(payload)
	link, err := netlink.LinkDeserialize(hdr, payload)
	if err != nil {
		return Event{}, &DecodeError{MsgType: hdr.Type, Reason: err.Error()}
	}
	attrs := link.Attrs()
	if attrs.Name == "" {
		return Event{}, &DecodeError{MsgType: hdr.Type, Reason: "link without name"}
	}

	msg := &LinkMsg{
		Index:        attrs.Index,
		Name:         attrs.Name,
		Change:       ifi.Change,
		Flags:        ifi.Flags,
		AdminUp:      ifi.Flags&unix.IFF_UP != 0,
		Running:      ifi.Flags&unix.IFF_RUNNING != 0,
		OperState:    attrs.OperState.String(),
		MTU:          attrs.MTU,
		HardwareAddr: copyBytes(attrs.HardwareAddr),
		MasterIndex:  attrs.MasterIndex,
	}
	kind := eventKind(hdr)
	if kind == EventDelete {
		d.resolver.Forget(msg.Index)
	} else {
		d.resolver.Update(msg.Index, msg.Name)
	}
	return Event{Kind: kind, Type: ObjectLink, Seq: hdr.Seq, Link: msg}, nil
}

// decodeNeigh parses ndmsg and its attributes directly; netlink.NeighDeserialize
// looks the link up in the OS for every message, which fails for links
// that were already removed.
func (d *Decoder) decodeNeigh(hdr *unix.NlMsghdr, payload []byte) (Event, error) {
	if len(payload) < sizeofNdmsg {
		return Event{}, &DecodeError{MsgType: hdr.Type, Reason: "truncated ndmsg"}
	}
	native := nl.NativeEndian()
	msg := &NeighMsg{
		Family:    int(payload[0]),
		LinkIndex: int(int32(native.Uint32(payload[4:8]))),
		State:     int(native.Uint16(payload[8:10])),
		Flags:     int(payload[10]),
	}
	attrs, err := nl.ParseRouteAttr(payload[sizeofNdmsg:])
	if err != nil {
		return Event{}, &DecodeError{MsgType: hdr.Type, Reason: err.Error()}
	}
	for _, attr := range attrs {
		switch attr.Attr.Type {
		case netlink.NDA_DST:
			msg.IP = net.IP(copyBytes(attr.Value))
		case netlink.NDA_LLADDR:
			msg.HardwareAddr = copyBytes(attr.Value)
		}
	}
	if msg.IP == nil && msg.Family != unix.AF_BRIDGE {
		return Event{}, &DecodeError{MsgType: hdr.Type, Reason: "neighbor without destination address"}
	}
	if msg.Interface, err = d.resolver.Name(msg.LinkIndex); err != nil {
		return Event{}, err
	}
	return Event{Kind: eventKind(hdr), Type: ObjectNeigh, Seq: hdr.Seq, Neigh: msg}, nil
}

func (d *Decoder) skip(err error) {
	atomic.AddUint64(&d.decodeErrors, 1)
	d.log.Warn(err)
}

func eventKind(hdr *unix.NlMsghdr) EventKind {
	switch hdr.Type {
	case unix.RTM_DELLINK, unix.RTM_DELNEIGH:
		return EventDelete
	}
	if hdr.Flags&unix.NLM_F_MULTI != 0 {
		return EventDump
	}
	return EventNew
}

func readHeader(b []byte) *unix.NlMsghdr {
	native := nl.NativeEndian()
	return &unix.NlMsghdr{
		Len:   native.Uint32(b[0:4]),
		Type:  native.Uint16(b[4:6]),
		Flags: native.Uint16(b[6:8]),
		Seq:   native.Uint32(b[8:12]),
		Pid:   native.Uint32(b[12:16]),
	}
}

func nlmsgAlign(l int) int {
	return (l + nlmsgAlignTo - 1) &^ (nlmsgAlignTo - 1)
}

// copyBytes detaches attribute values from the receive buffer.
func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}

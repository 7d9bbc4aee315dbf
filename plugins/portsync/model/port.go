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

// Package model defines the port states published by portsync.
package model

import (
	"strings"

	"github.com/gogo/protobuf/proto"
)

const (
	// KeyPrefix is the prefix of all port keys.
	KeyPrefix = "port/"

	// PortInitDoneKey is the key of the marker written once the initial
	// synchronization of all ports completed.
	PortInitDoneKey = "state/port_init_done"
)

// Port status values.
const (
	StatusUp   = "up"
	StatusDown = "down"
)

// Key returns the key under which the state of port <name> is published.
func Key(name string) string {
	return KeyPrefix + name
}

// ParseKey returns the port name from a port key.
func ParseKey(key string) (name string, ok bool) {
	if !strings.HasPrefix(key, KeyPrefix) {
		return "", false
	}
	name = strings.TrimPrefix(key, KeyPrefix)
	if name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}

// PortState is the kernel state of one front-panel port.
type PortState struct {
	Name        string `protobuf:"bytes,1,opt,name=name,proto3" json:"name,omitempty"`
	Index       uint32 `protobuf:"varint,2,opt,name=index,proto3" json:"index,omitempty"`
	AdminStatus string `protobuf:"bytes,3,opt,name=admin_status,json=adminStatus,proto3" json:"admin_status,omitempty"`
	OperStatus  string `protobuf:"bytes,4,opt,name=oper_status,json=operStatus,proto3" json:"oper_status,omitempty"`
	Mtu         uint32 `protobuf:"varint,5,opt,name=mtu,proto3" json:"mtu,omitempty"`
	Mac         string `protobuf:"bytes,6,opt,name=mac,proto3" json:"mac,omitempty"`
	MasterIndex uint32 `protobuf:"varint,7,opt,name=master_index,json=masterIndex,proto3" json:"master_index,omitempty"`
}

func (m *PortState) Reset()         { *m = PortState{} }
func (m *PortState) String() string { return proto.CompactTextString(m) }
func (*PortState) ProtoMessage()    {}

// GetKey returns the key of the port.
func (m *PortState) GetKey() string {
	return Key(m.Name)
}

// PortInitDone signals the consumers that all ports were synchronized.
type PortInitDone struct {
	Done  bool   `protobuf:"varint,1,opt,name=done,proto3" json:"done,omitempty"`
	Ports uint32 `protobuf:"varint,2,opt,name=ports,proto3" json:"ports,omitempty"`
}

func (m *PortInitDone) Reset()         { *m = PortInitDone{} }
func (m *PortInitDone) String() string { return proto.CompactTextString(m) }
func (*PortInitDone) ProtoMessage()    {}

// GetKey returns PortInitDoneKey.
func (m *PortInitDone) GetKey() string {
	return PortInitDoneKey
}

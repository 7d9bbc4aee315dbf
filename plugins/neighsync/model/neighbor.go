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

// Package model defines the neighbor entries published by neighsync.
package model

import (
	"strings"

	"github.com/gogo/protobuf/proto"
)

// KeyPrefix is the prefix of all neighbor keys.
const KeyPrefix = "neigh/"

// Address families of the neighbor entries.
const (
	FamilyIPv4 = "IPv4"
	FamilyIPv6 = "IPv6"
)

// Key returns the key under which the neighbor <ip> of interface <ifName>
// is published.
func Key(ifName string, ip string) string {
	return KeyPrefix + ifName + "/" + ip
}

// ParseKey returns the interface name and the IP address from a neighbor key.
func ParseKey(key string) (ifName string, ip string, ok bool) {
	if !strings.HasPrefix(key, KeyPrefix) {
		return "", "", false
	}
	parts := strings.SplitN(strings.TrimPrefix(key, KeyPrefix), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// NeighborEntry is one entry of the kernel neighbor table.
type NeighborEntry struct {
	Interface         string `protobuf:"bytes,1,opt,name=interface,proto3" json:"interface,omitempty"`
	Ip                string `protobuf:"bytes,2,opt,name=ip,proto3" json:"ip,omitempty"`
	Family            string `protobuf:"bytes,3,opt,name=family,proto3" json:"family,omitempty"`
	Mac               string `protobuf:"bytes,4,opt,name=mac,proto3" json:"mac,omitempty"`
	State             string `protobuf:"bytes,5,opt,name=state,proto3" json:"state,omitempty"`
	ExternallyLearned bool   `protobuf:"varint,6,opt,name=externally_learned,json=externallyLearned,proto3" json:"externally_learned,omitempty"`
}

func (m *NeighborEntry) Reset()         { *m = NeighborEntry{} }
func (m *NeighborEntry) String() string { return proto.CompactTextString(m) }
func (*NeighborEntry) ProtoMessage()    {}

// GetKey returns the key of the entry.
func (m *NeighborEntry) GetKey() string {
	return Key(m.Interface, m.Ip)
}

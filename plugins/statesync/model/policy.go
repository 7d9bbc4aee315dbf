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

// Package model defines the deployment policy records read by the
// synchronizers from the state store.
package model

import (
	"github.com/gogo/protobuf/proto"
)

const (
	// DeviceMetadataKey is the key of the device metadata record.
	DeviceMetadataKey = "config/device_metadata/localhost"

	// InterfaceConfigKeyPrefix is the key prefix of per-interface configuration.
	InterfaceConfigKeyPrefix = "config/interface/"

	// RestoreFlagsKeyPrefix is the key prefix of restore flags written by
	// the downstream consumers once they finished restoring after a warm restart.
	RestoreFlagsKeyPrefix = "state/restore/"

	// SubtypeDualToR is the device subtype of a dual top-of-rack deployment.
	SubtypeDualToR = "DualToR"
)

// InterfaceConfigKey returns the key of the configuration of the given interface.
func InterfaceConfigKey(ifName string) string {
	return InterfaceConfigKeyPrefix + ifName
}

// RestoreFlagsKey returns the key of the restore flags of the given application.
func RestoreFlagsKey(app string) string {
	return RestoreFlagsKeyPrefix + app
}

// DeviceMetadata describes the deployment of the device.
type DeviceMetadata struct {
	Hostname string `protobuf:"bytes,1,opt,name=hostname,proto3" json:"hostname,omitempty"`
	Subtype  string `protobuf:"bytes,2,opt,name=subtype,proto3" json:"subtype,omitempty"`
}

func (m *DeviceMetadata) Reset()         { *m = DeviceMetadata{} }
func (m *DeviceMetadata) String() string { return proto.CompactTextString(m) }
func (*DeviceMetadata) ProtoMessage()    {}

// InterfaceConfig is the configuration of a single interface.
type InterfaceConfig struct {
	Name                 string `protobuf:"bytes,1,opt,name=name,proto3" json:"name,omitempty"`
	Ipv6UseLinkLocalOnly bool   `protobuf:"varint,2,opt,name=ipv6_use_link_local_only,json=ipv6UseLinkLocalOnly,proto3" json:"ipv6_use_link_local_only,omitempty"`
}

func (m *InterfaceConfig) Reset()         { *m = InterfaceConfig{} }
func (m *InterfaceConfig) String() string { return proto.CompactTextString(m) }
func (*InterfaceConfig) ProtoMessage()    {}

// RestoreFlags signal the state of the restore of a downstream application.
type RestoreFlags struct {
	Restored bool `protobuf:"varint,1,opt,name=restored,proto3" json:"restored,omitempty"`
}

func (m *RestoreFlags) Reset()         { *m = RestoreFlags{} }
func (m *RestoreFlags) String() string { return proto.CompactTextString(m) }
func (*RestoreFlags) ProtoMessage()    {}

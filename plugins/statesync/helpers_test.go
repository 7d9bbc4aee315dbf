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

package statesync_test

import (
	"github.com/gogo/protobuf/proto"

	"github.com/contiv/netsync/plugins/statesync"
)

// testObject is a minimal synchronized object.
type testObject struct {
	Key   string `protobuf:"bytes,1,opt,name=key,proto3" json:"key,omitempty"`
	Value string `protobuf:"bytes,2,opt,name=value,proto3" json:"value,omitempty"`
}

func (m *testObject) Reset()         { *m = testObject{} }
func (m *testObject) String() string { return proto.CompactTextString(m) }
func (*testObject) ProtoMessage()    {}

// GetKey returns the store key.
func (m *testObject) GetKey() string { return m.Key }

func newTestObject() statesync.Object {
	return &testObject{}
}

func obj(key, value string) *testObject {
	return &testObject{Key: key, Value: value}
}

func set(key, value string) statesync.PendingEntry {
	return statesync.NewSetEntry(obj(key, value))
}

func del(key string) statesync.PendingEntry {
	return statesync.NewDeleteEntry(obj(key, ""))
}

func valueOf(o statesync.Object) string {
	return o.(*testObject).Value
}

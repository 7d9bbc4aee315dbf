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

package statesync

import (
	"github.com/gogo/protobuf/proto"
)

// Object is a value synchronized into the state store.
// The key identifies the object uniquely within the store, the last
// write for a given key wins.
type Object interface {
	proto.Message

	// GetKey returns the store key of the object.
	GetKey() string
}

// ObjectAllocator allocates an empty object of the synchronized type,
// used to unmarshal objects read back from the store or from a file.
type ObjectAllocator func() Object

// PendingEntry is a single change waiting to be written into the store.
type PendingEntry struct {
	Key      string
	Object   Object
	IsDelete bool
}

// NewSetEntry returns PendingEntry which creates or updates <obj>.
func NewSetEntry(obj Object) PendingEntry {
	return PendingEntry{Key: obj.GetKey(), Object: obj}
}

// NewDeleteEntry returns PendingEntry which removes <obj>.
func NewDeleteEntry(obj Object) PendingEntry {
	return PendingEntry{Key: obj.GetKey(), Object: obj, IsDelete: true}
}

// Store is the state database the synchronizers publish into.
type Store interface {
	// SetObject creates or updates a single object.
	SetObject(obj Object) error

	// DeleteObject removes a single object.
	DeleteObject(obj Object) error

	// SetObjectsBatch creates or updates all the objects in one call.
	SetObjectsBatch(objs []Object) error

	// DeleteObjectsBatch removes all the objects in one call.
	DeleteObjectsBatch(objs []Object) error

	// GetAllObjects returns all objects currently published by the synchronizer,
	// indexed by key.
	GetAllObjects() (map[string]Object, error)

	// IsRestoreDone returns true once the downstream consumers finished
	// restoring their state after a warm restart.
	IsRestoreDone() (bool, error)

	// IsDualToR returns true if the device is deployed as one of two
	// redundant top-of-rack switches.
	IsDualToR() (bool, error)

	// IsLinkLocalEnabled returns true if IPv6 link-local neighbors should
	// be synchronized for the given interface.
	IsLinkLocalEnabled(ifName string) (bool, error)
}

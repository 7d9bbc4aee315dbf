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

// Package statestore provides an in-memory implementation of statesync.Store
// for unit tests.
package statestore

import (
	"sort"
	"sync"

	"github.com/gogo/protobuf/proto"

	"github.com/contiv/netsync/plugins/statesync"
)

// MockStore keeps published objects in a map and counts the calls.
type MockStore struct {
	sync.Mutex

	Objects map[string]statesync.Object

	SetCalls         int
	DeleteCalls      int
	SetBatchCalls    int
	DeleteBatchCalls int
	GetAllCalls      int

	// sizes of the batches, in the order of the calls
	SetBatchSizes    []int
	DeleteBatchSizes []int

	RestoreDone bool
	DualToR     bool
	LinkLocal   map[string]bool

	// DualToRCalls counts the device metadata queries.
	DualToRCalls int

	// PolicyErr is returned by the policy queries if set.
	PolicyErr error

	err    error
	numErr int
}

// NewMockStore returns an empty MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		Objects:   make(map[string]statesync.Object),
		LinkLocal: make(map[string]bool),
	}
}

// InjectError makes the next <numErr> write or list operations fail with <err>.
func (ms *MockStore) InjectError(err error, numErr int) {
	ms.Lock()
	defer ms.Unlock()
	ms.err = err
	ms.numErr = numErr
}

func (ms *MockStore) injectedError() error {
	if ms.numErr > 0 {
		ms.numErr--
		return ms.err
	}
	return nil
}

// SetObject stores a copy of <obj>.
func (ms *MockStore) SetObject(obj statesync.Object) error {
	ms.Lock()
	defer ms.Unlock()
	ms.SetCalls++
	if err := ms.injectedError(); err != nil {
		return err
	}
	ms.Objects[obj.GetKey()] = clone(obj)
	return nil
}

// DeleteObject removes <obj>.
func (ms *MockStore) DeleteObject(obj statesync.Object) error {
	ms.Lock()
	defer ms.Unlock()
	ms.DeleteCalls++
	if err := ms.injectedError(); err != nil {
		return err
	}
	delete(ms.Objects, obj.GetKey())
	return nil
}

// SetObjectsBatch stores copies of all the objects, or none on error.
func (ms *MockStore) SetObjectsBatch(objs []statesync.Object) error {
	ms.Lock()
	defer ms.Unlock()
	ms.SetBatchCalls++
	if err := ms.injectedError(); err != nil {
		return err
	}
	ms.SetBatchSizes = append(ms.SetBatchSizes, len(objs))
	for _, obj := range objs {
		ms.Objects[obj.GetKey()] = clone(obj)
	}
	return nil
}

// DeleteObjectsBatch removes all the objects, or none on error.
func (ms *MockStore) DeleteObjectsBatch(objs []statesync.Object) error {
	ms.Lock()
	defer ms.Unlock()
	ms.DeleteBatchCalls++
	if err := ms.injectedError(); err != nil {
		return err
	}
	ms.DeleteBatchSizes = append(ms.DeleteBatchSizes, len(objs))
	for _, obj := range objs {
		delete(ms.Objects, obj.GetKey())
	}
	return nil
}

// GetAllObjects returns copies of all stored objects.
func (ms *MockStore) GetAllObjects() (map[string]statesync.Object, error) {
	ms.Lock()
	defer ms.Unlock()
	ms.GetAllCalls++
	if err := ms.injectedError(); err != nil {
		return nil, err
	}
	objects := make(map[string]statesync.Object, len(ms.Objects))
	for key, obj := range ms.Objects {
		objects[key] = clone(obj)
	}
	return objects, nil
}

// IsRestoreDone returns RestoreDone.
func (ms *MockStore) IsRestoreDone() (bool, error) {
	ms.Lock()
	defer ms.Unlock()
	return ms.RestoreDone, ms.PolicyErr
}

// IsDualToR returns DualToR.
func (ms *MockStore) IsDualToR() (bool, error) {
	ms.Lock()
	defer ms.Unlock()
	ms.DualToRCalls++
	return ms.DualToR, ms.PolicyErr
}

// IsLinkLocalEnabled returns the LinkLocal entry of the interface.
func (ms *MockStore) IsLinkLocalEnabled(ifName string) (bool, error) {
	ms.Lock()
	defer ms.Unlock()
	return ms.LinkLocal[ifName], ms.PolicyErr
}

// SetRestoreDone sets the restore flag.
func (ms *MockStore) SetRestoreDone(done bool) {
	ms.Lock()
	defer ms.Unlock()
	ms.RestoreDone = done
}

// Get returns the object stored under <key>.
func (ms *MockStore) Get(key string) (statesync.Object, bool) {
	ms.Lock()
	defer ms.Unlock()
	obj, found := ms.Objects[key]
	return obj, found
}

// Keys returns all keys in the sorted order.
func (ms *MockStore) Keys() []string {
	ms.Lock()
	defer ms.Unlock()
	var keys []string
	for key := range ms.Objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// BatchSizes returns copies of SetBatchSizes and DeleteBatchSizes.
func (ms *MockStore) BatchSizes() (sets, deletes []int) {
	ms.Lock()
	defer ms.Unlock()
	return append([]int{}, ms.SetBatchSizes...), append([]int{}, ms.DeleteBatchSizes...)
}

// BatchCalls returns the number of set and delete batch calls.
func (ms *MockStore) BatchCalls() (sets, deletes int) {
	ms.Lock()
	defer ms.Unlock()
	return ms.SetBatchCalls, ms.DeleteBatchCalls
}

func clone(obj statesync.Object) statesync.Object {
	return proto.Clone(obj).(statesync.Object)
}

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

// Package broker provides an in-memory implementation of keyval.ProtoBroker
// for unit tests.
package broker

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/gogo/protobuf/proto"
	"github.com/ligato/cn-infra/datasync"
	"github.com/ligato/cn-infra/db/keyval"
)

// MockBroker keeps the data in a map. Values are stored marshalled,
// so that the tests observe the same copy semantics as with a real database.
type MockBroker struct {
	sync.Mutex
	Data    map[string][]byte
	Commits int

	prefix string
	root   *MockBroker

	err    error
	numErr int
}

// NewMockBroker returns an empty MockBroker.
func NewMockBroker() *MockBroker {
	mb := &MockBroker{Data: map[string][]byte{}}
	mb.root = mb
	return mb
}

// NewBroker returns a view of the broker with all keys prefixed by <prefix>,
// like the brokers created by the key-value database plugins.
func (mb *MockBroker) NewBroker(prefix string) keyval.ProtoBroker {
	return &MockBroker{prefix: mb.prefix + prefix, root: mb.root}
}

// InjectError makes the next <numErr> write operations (puts, deletes and
// transaction commits) fail with <err>.
func (mb *MockBroker) InjectError(err error, numErr int) {
	root := mb.root
	root.Lock()
	defer root.Unlock()
	root.err = err
	root.numErr = numErr
}

func (mb *MockBroker) injectedError() error {
	root := mb.root
	if root.numErr > 0 {
		root.numErr--
		return root.err
	}
	return nil
}

// Keys returns all keys (including the prefix of the view) in the sorted order.
func (mb *MockBroker) Keys() []string {
	root := mb.root
	root.Lock()
	defer root.Unlock()
	var res []string
	for k := range root.Data {
		res = append(res, k)
	}
	sort.Strings(res)
	return res
}

// CommitCount returns the number of committed transactions.
func (mb *MockBroker) CommitCount() int {
	root := mb.root
	root.Lock()
	defer root.Unlock()
	return root.Commits
}

// Put stores the value under the key.
func (mb *MockBroker) Put(key string, data proto.Message, opts ...datasync.PutOption) error {
	root := mb.root
	root.Lock()
	defer root.Unlock()
	if err := mb.injectedError(); err != nil {
		return err
	}
	return mb.put(key, data)
}

func (mb *MockBroker) put(key string, data proto.Message) error {
	encoded, err := proto.Marshal(data)
	if err != nil {
		return err
	}
	mb.root.Data[mb.prefix+key] = encoded
	return nil
}

// Delete removes the key.
func (mb *MockBroker) Delete(key string, opts ...datasync.DelOption) (found bool, err error) {
	root := mb.root
	root.Lock()
	defer root.Unlock()
	if err := mb.injectedError(); err != nil {
		return false, err
	}
	_, found = root.Data[mb.prefix+key]
	delete(root.Data, mb.prefix+key)
	return found, nil
}

// GetValue unmarshals the value stored under the key into <val>.
func (mb *MockBroker) GetValue(key string, val proto.Message) (found bool, rev int64, err error) {
	root := mb.root
	root.Lock()
	defer root.Unlock()
	encoded, found := root.Data[mb.prefix+key]
	if !found {
		return false, 0, nil
	}
	return true, 0, proto.Unmarshal(encoded, val)
}

// NewTxn returns a transaction applied to the broker on Commit.
func (mb *MockBroker) NewTxn() keyval.ProtoTxn {
	return &mockTxn{broker: mb}
}

// ListValues lists key-value pairs under the prefix.
func (mb *MockBroker) ListValues(prefix string) (keyval.ProtoKeyValIterator, error) {
	return &mockIt{broker: mb, match: mb.match(prefix)}, nil
}

// ListKeys lists keys under the prefix.
func (mb *MockBroker) ListKeys(prefix string) (keyval.ProtoKeyIterator, error) {
	return &mockKeyIt{match: mb.match(prefix)}, nil
}

// match returns the matching keys without the prefix of the view.
func (mb *MockBroker) match(prefix string) []string {
	var match []string
	for _, k := range mb.Keys() {
		if strings.HasPrefix(k, mb.prefix+prefix) {
			match = append(match, strings.TrimPrefix(k, mb.prefix))
		}
	}
	return match
}

type txnOp struct {
	key   string
	value proto.Message
}

// mockTxn collects operations until Commit.
type mockTxn struct {
	broker *MockBroker
	ops    []txnOp
}

func (txn *mockTxn) Put(key string, data proto.Message) keyval.ProtoTxn {
	txn.ops = append(txn.ops, txnOp{key: key, value: data})
	return txn
}

func (txn *mockTxn) Delete(key string) keyval.ProtoTxn {
	txn.ops = append(txn.ops, txnOp{key: key})
	return txn
}

// Commit applies all operations or none of them.
func (txn *mockTxn) Commit(ctx context.Context) error {
	mb := txn.broker
	root := mb.root
	root.Lock()
	defer root.Unlock()
	if err := mb.injectedError(); err != nil {
		return err
	}
	encoded := make([][]byte, len(txn.ops))
	for i, op := range txn.ops {
		if op.value == nil {
			continue
		}
		data, err := proto.Marshal(op.value)
		if err != nil {
			return err
		}
		encoded[i] = data
	}
	for i, op := range txn.ops {
		if op.value == nil {
			delete(root.Data, mb.prefix+op.key)
			continue
		}
		root.Data[mb.prefix+op.key] = encoded[i]
	}
	root.Commits++
	return nil
}

type mockIt struct {
	broker *MockBroker
	match  []string
	index  int
}

func (mi *mockIt) GetNext() (kv keyval.ProtoKeyVal, stop bool) {
	root := mi.broker.root
	root.Lock()
	defer root.Unlock()
	if mi.index >= len(mi.match) {
		return nil, true
	}
	key := mi.match[mi.index]
	kv = &mockKv{key: key, val: root.Data[mi.broker.prefix+key]}
	mi.index++
	return kv, false
}

func (mi *mockIt) Close() error {
	return nil
}

type mockKeyIt struct {
	match []string
	index int
}

func (mi *mockKeyIt) GetNext() (key string, rev int64, stop bool) {
	if mi.index >= len(mi.match) {
		return "", 0, true
	}
	key = mi.match[mi.index]
	mi.index++
	return key, 0, false
}

func (mi *mockKeyIt) Close() error {
	return nil
}

type mockKv struct {
	key string
	val []byte
}

func (mk *mockKv) GetValue(val proto.Message) error {
	return proto.Unmarshal(mk.val, val)
}

func (mk *mockKv) GetPrevValue(val proto.Message) (exists bool, err error) {
	return false, nil
}

func (mk *mockKv) GetKey() string {
	return mk.key
}

func (mk *mockKv) GetRevision() int64 {
	return 0
}

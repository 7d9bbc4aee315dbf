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
	"context"
	"time"

	"github.com/gogo/protobuf/proto"
	"github.com/ligato/cn-infra/datasync"
	"github.com/ligato/cn-infra/db/keyval"
	"github.com/ligato/cn-infra/logging"
	"github.com/pkg/errors"

	"github.com/contiv/netsync/plugins/statesync/model"
)

const defaultCommitTimeout = 5 * time.Second

// KeyProtoValBroker is the subset of keyval.ProtoBroker used by KVStore.
type KeyProtoValBroker interface {
	// Put <data> to ETCD or to any other key-value based data source.
	Put(key string, data proto.Message, opts ...datasync.PutOption) error

	// Delete data under the <key>.
	Delete(key string, opts ...datasync.DelOption) (existed bool, err error)

	// GetValue reads a value stored under the given key.
	GetValue(key string, reqObj proto.Message) (found bool, revision int64, err error)

	// ListValues lists values stored under the given prefix.
	ListValues(prefix string) (keyval.ProtoKeyValIterator, error)

	// NewTxn creates a transaction.
	NewTxn() keyval.ProtoTxn
}

// KVStore implements Store over a key-value database. Each batch
// is written as a single transaction.
type KVStore struct {
	log           logging.Logger
	broker        KeyProtoValBroker
	prefix        string
	alloc         ObjectAllocator
	restoreApp    string
	commitTimeout time.Duration
}

// NewKVStore returns a Store publishing objects with keys under <prefix>.
// The restore signal is read from the flags of the application <restoreApp>.
func NewKVStore(log logging.Logger, broker KeyProtoValBroker, prefix string, alloc ObjectAllocator,
	restoreApp string) *KVStore {
	return &KVStore{
		log:           log,
		broker:        broker,
		prefix:        prefix,
		alloc:         alloc,
		restoreApp:    restoreApp,
		commitTimeout: defaultCommitTimeout,
	}
}

// SetObject puts a single object.
func (s *KVStore) SetObject(obj Object) error {
	return s.broker.Put(obj.GetKey(), obj)
}

// DeleteObject removes a single object.
func (s *KVStore) DeleteObject(obj Object) error {
	_, err := s.broker.Delete(obj.GetKey())
	return err
}

// SetObjectsBatch puts all the objects in one transaction.
func (s *KVStore) SetObjectsBatch(objs []Object) error {
	txn := s.broker.NewTxn()
	for _, obj := range objs {
		txn.Put(obj.GetKey(), obj)
	}
	return s.commit(txn)
}

// DeleteObjectsBatch removes all the objects in one transaction.
func (s *KVStore) DeleteObjectsBatch(objs []Object) error {
	txn := s.broker.NewTxn()
	for _, obj := range objs {
		txn.Delete(obj.GetKey())
	}
	return s.commit(txn)
}

func (s *KVStore) commit(txn keyval.ProtoTxn) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.commitTimeout)
	defer cancel()
	return txn.Commit(ctx)
}

// GetAllObjects lists all objects under the prefix.
func (s *KVStore) GetAllObjects() (map[string]Object, error) {
	it, err := s.broker.ListValues(s.prefix)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	objects := make(map[string]Object)
	for {
		kv, stop := it.GetNext()
		if stop {
			break
		}
		obj := s.alloc()
		if err := kv.GetValue(obj); err != nil {
			return nil, errors.Wrapf(err, "failed to read object %s", kv.GetKey())
		}
		objects[kv.GetKey()] = obj
	}
	return objects, nil
}

// IsRestoreDone reads the restore flags of the configured application.
func (s *KVStore) IsRestoreDone() (bool, error) {
	flags := &model.RestoreFlags{}
	found, _, err := s.broker.GetValue(model.RestoreFlagsKey(s.restoreApp), flags)
	if err != nil || !found {
		return false, err
	}
	return flags.Restored, nil
}

// IsDualToR reads the subtype from the device metadata.
func (s *KVStore) IsDualToR() (bool, error) {
	metadata := &model.DeviceMetadata{}
	found, _, err := s.broker.GetValue(model.DeviceMetadataKey, metadata)
	if err != nil || !found {
		return false, err
	}
	return metadata.Subtype == model.SubtypeDualToR, nil
}

// IsLinkLocalEnabled reads the IPv6 link-local option of the interface.
func (s *KVStore) IsLinkLocalEnabled(ifName string) (bool, error) {
	ifConfig := &model.InterfaceConfig{}
	found, _, err := s.broker.GetValue(model.InterfaceConfigKey(ifName), ifConfig)
	if err != nil || !found {
		return false, err
	}
	return ifConfig.Ipv6UseLinkLocalOnly, nil
}

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

	"github.com/ligato/cn-infra/logging"
)

// BatchWriter writes a list of changes into the store using at most
// one set and one delete batch.
type BatchWriter struct {
	log   logging.Logger
	store Store
}

// NewBatchWriter returns BatchWriter writing into <store>.
func NewBatchWriter(log logging.Logger, store Store) *BatchWriter {
	return &BatchWriter{log: log, store: store}
}

// Submit partitions <entries> into sets and deletes and writes them.
// Repeated keys are coalesced, only the last change of each key is written.
// Sets are written before deletes. Returns the number of written objects;
// on error the caller should submit the same entries again.
func (w *BatchWriter) Submit(ctx context.Context, entries []PendingEntry) (written int, err error) {
	if len(entries) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	sets, deletes := partition(entries)

	if len(sets) > 0 {
		if err := w.store.SetObjectsBatch(sets); err != nil {
			return 0, NewBackingStoreError("set batch", len(sets), err)
		}
		written += len(sets)
	}
	if len(deletes) > 0 {
		if err := w.store.DeleteObjectsBatch(deletes); err != nil {
			return written, NewBackingStoreError("delete batch", len(deletes), err)
		}
		written += len(deletes)
	}
	w.log.WithFields(logging.Fields{
		"sets":      len(sets),
		"deletes":   len(deletes),
		"coalesced": len(entries) - len(sets) - len(deletes),
	}).Debug("Batch written")
	return written, nil
}

// partition keeps the relative order of the surviving changes.
func partition(entries []PendingEntry) (sets, deletes []Object) {
	for _, entry := range Coalesce(entries) {
		if entry.IsDelete {
			deletes = append(deletes, entry.Object)
		} else {
			sets = append(sets, entry.Object)
		}
	}
	return sets, deletes
}

// Coalesce returns the entries with only the last change of each key,
// in the order of their last occurrence.
func Coalesce(entries []PendingEntry) []PendingEntry {
	last := make(map[string]int, len(entries))
	for i, entry := range entries {
		last[entry.Key] = i
	}
	coalesced := make([]PendingEntry, 0, len(last))
	for i, entry := range entries {
		if last[entry.Key] == i {
			coalesced = append(coalesced, entry)
		}
	}
	return coalesced
}

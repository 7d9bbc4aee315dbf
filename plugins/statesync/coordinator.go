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
	"github.com/ligato/cn-infra/logging"
)

// RestartState is the state of the warm restart state machine.
type RestartState int

const (
	// ColdStart means there is no previously published state to reconcile with.
	ColdStart RestartState = iota

	// WarmStart means previously published state was found and the initial
	// synchronization has not started yet.
	WarmStart

	// InitialSyncInProgress means the changes of the initial dump are being buffered.
	InitialSyncInProgress

	// InitialSyncComplete means the buffered changes were reconciled
	// (or abandoned) and changes are written directly.
	InitialSyncComplete
)

// String returns name of the state.
func (s RestartState) String() string {
	switch s {
	case ColdStart:
		return "cold-start"
	case WarmStart:
		return "warm-start"
	case InitialSyncInProgress:
		return "initial-sync-in-progress"
	case InitialSyncComplete:
		return "initial-sync-complete"
	}
	return "unknown"
}

const (
	defaultRestoreTimeout       = 3 * time.Minute
	defaultRestoreCheckInterval = time.Second
)

// CoordinatorConfig contains the warm restart parameters.
type CoordinatorConfig struct {
	// WarmRestartEnabled must be true to reconcile with previously published state.
	WarmRestartEnabled bool

	// RestoreTimeout bounds WaitForRestoreSignal.
	RestoreTimeout time.Duration

	// RestoreCheckInterval is the period of restore signal checks.
	RestoreCheckInterval time.Duration

	// DeleteStale enables removal of previously published objects not
	// refreshed during the initial synchronization.
	DeleteStale bool
}

// ReconcileDiff summarizes buffered changes compared with the cached snapshot.
type ReconcileDiff struct {
	New       int
	Changed   int
	Unchanged int
	Deleted   int
	Stale     int
}

// ReconcileResult describes a finished reconciliation.
type ReconcileResult struct {
	// Applied lists the changes written into the store (including removal
	// of stale objects).
	Applied []PendingEntry
	Written int
	Diff    ReconcileDiff
}

// Coordinator drives the warm restart: it loads the previously published
// state, buffers changes during the initial synchronization and flushes them
// in a single reconciliation. It is not safe for concurrent use, it is owned
// by the synchronizer worker.
type Coordinator struct {
	log       logging.Logger
	cfg       CoordinatorConfig
	store     Store
	writer    *BatchWriter
	stateFile *RestartStateFile
	eoiu      *EOIUDetector

	started          bool
	state            RestartState
	restoreConfirmed bool
	snapshot         map[string]Object
	pending          []PendingEntry
}

// NewCoordinator returns a new Coordinator. <stateFile> is optional.
func NewCoordinator(log logging.Logger, cfg CoordinatorConfig, store Store, writer *BatchWriter,
	stateFile *RestartStateFile, eoiu *EOIUDetector) *Coordinator {

	if cfg.RestoreTimeout <= 0 {
		cfg.RestoreTimeout = defaultRestoreTimeout
	}
	if cfg.RestoreCheckInterval <= 0 {
		cfg.RestoreCheckInterval = defaultRestoreCheckInterval
	}
	if eoiu == nil {
		eoiu = NewEOIUDetector(DefaultSentinelInterface)
	}
	return &Coordinator{
		log:       log,
		cfg:       cfg,
		store:     store,
		writer:    writer,
		stateFile: stateFile,
		eoiu:      eoiu,
	}
}

// Start loads the previously published objects and decides between
// WarmStart and ColdStart. Can be called only once.
func (c *Coordinator) Start() error {
	if c.started {
		return &TransitionError{From: c.state, Action: "start"}
	}
	snapshot, source, err := c.loadSnapshot()
	if err != nil {
		return err
	}
	c.started = true
	c.snapshot = snapshot

	if len(snapshot) > 0 && c.cfg.WarmRestartEnabled {
		c.state = WarmStart
	} else {
		c.state = ColdStart
	}
	c.log.WithFields(logging.Fields{
		"state":   c.state,
		"objects": len(snapshot),
		"source":  source,
	}).Info("Warm restart coordinator started")
	return nil
}

// loadSnapshot prefers the restart state file, the store is read only
// when the file is absent or empty.
func (c *Coordinator) loadSnapshot() (map[string]Object, string, error) {
	if c.stateFile != nil {
		objects, found, err := c.stateFile.Load()
		if err != nil {
			c.log.Warnf("Failed to load restart state file: %v", err)
		} else if found && len(objects) > 0 {
			return objects, "state-file", nil
		}
	}
	objects, err := c.store.GetAllObjects()
	if err != nil {
		return nil, "", NewBackingStoreError("get all", 0, err)
	}
	if objects == nil {
		objects = make(map[string]Object)
	}
	return objects, "store", nil
}

// BeginInitialSync starts buffering of changes. Allowed only in WarmStart.
func (c *Coordinator) BeginInitialSync() error {
	if !c.started || c.state != WarmStart {
		return &TransitionError{From: c.state, Action: "begin initial sync"}
	}
	c.state = InitialSyncInProgress
	c.log.Info("Initial synchronization started, changes are buffered")
	return nil
}

// ShouldBuffer returns true if changes must be passed to Buffer instead
// of being written.
func (c *Coordinator) ShouldBuffer() bool {
	return c.state == InitialSyncInProgress
}

// Buffer appends a change to the pending list.
func (c *Coordinator) Buffer(entry PendingEntry) error {
	if !c.ShouldBuffer() {
		return &TransitionError{From: c.state, Action: "buffer change"}
	}
	c.pending = append(c.pending, entry)
	return nil
}

// WaitForRestoreSignal polls the store until the downstream consumers confirm
// the restore. Returns WarmRestartTimeoutError if the confirmation does not
// arrive within RestoreTimeout. The pending changes are never touched.
func (c *Coordinator) WaitForRestoreSignal(ctx context.Context) error {
	deadline := time.Now().Add(c.cfg.RestoreTimeout)
	for {
		done, err := c.store.IsRestoreDone()
		if err != nil {
			c.log.Warnf("Failed to read restore flag: %v", err)
		} else if done {
			c.restoreConfirmed = true
			c.log.Info("Restore confirmed by downstream consumers")
			return nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return &WarmRestartTimeoutError{Timeout: c.cfg.RestoreTimeout}
		}
		wait := c.cfg.RestoreCheckInterval
		if wait > remaining {
			wait = remaining
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Reconcile writes all buffered changes (plus removal of stale objects if
// enabled) and completes the initial synchronization. It is a no-op outside
// of InitialSyncInProgress. On a store error the state is left unchanged,
// so that the reconciliation can be retried.
func (c *Coordinator) Reconcile(ctx context.Context) (ReconcileResult, error) {
	if c.state != InitialSyncInProgress {
		return ReconcileResult{}, nil
	}
	entries, diff := c.reconcileEntries()
	written, err := c.writer.Submit(ctx, entries)
	if err != nil {
		return ReconcileResult{}, err
	}

	c.pending = nil
	c.snapshot = nil
	c.state = InitialSyncComplete
	if c.eoiu.State() == EOIUDetected {
		c.eoiu.MarkComplete()
	}
	c.log.WithFields(logging.Fields{
		"new":       diff.New,
		"changed":   diff.Changed,
		"unchanged": diff.Unchanged,
		"deleted":   diff.Deleted,
		"stale":     diff.Stale,
		"written":   written,
	}).Info("Warm restart reconciliation done")
	return ReconcileResult{Applied: entries, Written: written, Diff: diff}, nil
}

// reconcileEntries compares the last change of each key with the snapshot.
func (c *Coordinator) reconcileEntries() ([]PendingEntry, ReconcileDiff) {
	var diff ReconcileDiff
	last := make(map[string]PendingEntry, len(c.pending))
	for _, entry := range c.pending {
		last[entry.Key] = entry
	}
	for key, entry := range last {
		cached, inSnapshot := c.snapshot[key]
		switch {
		case entry.IsDelete:
			diff.Deleted++
		case !inSnapshot:
			diff.New++
		case proto.Equal(cached, entry.Object):
			diff.Unchanged++
		default:
			diff.Changed++
		}
	}

	entries := make([]PendingEntry, 0, len(c.pending))
	entries = append(entries, c.pending...)
	for key, cached := range c.snapshot {
		if _, refreshed := last[key]; refreshed {
			continue
		}
		diff.Stale++
		if c.cfg.DeleteStale {
			entries = append(entries, PendingEntry{Key: key, Object: cached, IsDelete: true})
		}
	}
	return entries, diff
}

// Abandon gives up the warm restart before the initial synchronization
// began (e.g. after a restore timeout), changes are then written directly.
// Once changes are buffered, only Reconcile may complete the synchronization.
func (c *Coordinator) Abandon() error {
	if c.state != WarmStart {
		return &TransitionError{From: c.state, Action: "abandon warm restart"}
	}
	c.log.Warn("Warm restart abandoned")
	c.snapshot = nil
	c.state = InitialSyncComplete
	return nil
}

// State returns the current warm restart state.
func (c *Coordinator) State() RestartState {
	return c.state
}

// RestoreConfirmed returns true if the restore signal was received.
func (c *Coordinator) RestoreConfirmed() bool {
	return c.restoreConfirmed
}

// Pending returns the number of buffered changes.
func (c *Coordinator) Pending() int {
	return len(c.pending)
}

// Snapshot returns the objects loaded by Start. The map must not be modified.
func (c *Coordinator) Snapshot() map[string]Object {
	return c.snapshot
}

// EOIU returns the end-of-initial-update detector used by the coordinator.
func (c *Coordinator) EOIU() *EOIUDetector {
	return c.eoiu
}

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
	"sort"
	"sync/atomic"
	"time"

	"github.com/ligato/cn-infra/health/statuscheck"
	"github.com/ligato/cn-infra/logging"
	"github.com/pkg/errors"

	"github.com/contiv/netsync/plugins/netlinksource"
)

// IOStyle selects how the worker reads from the netlink source.
type IOStyle string

const (
	// IOBlocking makes the worker loop on the blocking Receive.
	IOBlocking IOStyle = "blocking"

	// IOReactor makes the worker wait for readiness and drain the socket.
	IOReactor IOStyle = "reactor"
)

// TimeoutPolicy selects what to do when the restore signal does not arrive in time.
type TimeoutPolicy string

const (
	// TimeoutReconcile proceeds with the initial synchronization and reconciliation.
	TimeoutReconcile TimeoutPolicy = "reconcile"

	// TimeoutAbandon gives up the warm restart, changes are written directly.
	TimeoutAbandon TimeoutPolicy = "abandon"
)

const (
	defaultReconcileTimeout     = 120 * time.Second
	defaultRetryInterval        = time.Second
	defaultSyncInterval         = 60 * time.Second
	defaultDumpTimeout          = 10 * time.Second
	defaultStateBackupRetention = 24 * time.Hour

	// unflushed changes are coalesced above this size while the store is down
	compactThreshold = 4096
)

// EngineConfig contains the parameters of a synchronizer.
type EngineConfig struct {
	IOStyle       IOStyle
	TimeoutPolicy TimeoutPolicy

	// Coordinator configures the warm restart.
	Coordinator CoordinatorConfig

	// SentinelInterface marks the end of the initial link dump.
	SentinelInterface string

	// ReconcileTimeout bounds the initial synchronization after a warm restart.
	ReconcileTimeout time.Duration

	// RetryInterval is the delay before a failed store batch is retried.
	RetryInterval time.Duration

	// SyncInterval is the period of the housekeeping.
	SyncInterval time.Duration

	// DumpTimeout bounds the wait for the end of a dump reply.
	DumpTimeout time.Duration

	// StateBackupRetention is the maximum age of restart state backups.
	StateBackupRetention time.Duration

	// Dumps lists the dumps requested at startup in the given order.
	// The link dump should be the last one, EOIU is detected in its reply
	// and the reconciliation waits until the reply is finished.
	Dumps []netlinksource.ObjectType
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.IOStyle == "" {
		c.IOStyle = IOBlocking
	}
	if c.TimeoutPolicy == "" {
		c.TimeoutPolicy = TimeoutReconcile
	}
	if c.ReconcileTimeout <= 0 {
		c.ReconcileTimeout = defaultReconcileTimeout
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = defaultRetryInterval
	}
	if c.SyncInterval <= 0 {
		c.SyncInterval = defaultSyncInterval
	}
	if c.DumpTimeout <= 0 {
		c.DumpTimeout = defaultDumpTimeout
	}
	if c.StateBackupRetention <= 0 {
		c.StateBackupRetention = defaultStateBackupRetention
	}
	if len(c.Dumps) == 0 {
		c.Dumps = []netlinksource.ObjectType{netlinksource.ObjectLink}
	}
	return c
}

// EventHandler filters kernel events of one table and translates them into
// store changes.
type EventHandler interface {
	// HandleEvent returns the change derived from the event; <ok> is false
	// if the event is not relevant.
	HandleEvent(ev *netlinksource.Event) (entry PendingEntry, ok bool)
}

// PolicyRefresher is implemented by handlers which cache deployment policy
// read from the store. It is called on every housekeeping pass.
type PolicyRefresher interface {
	RefreshPolicy() error
}

// InitialSyncObserver is implemented by handlers interested in the
// completion of the initial synchronization.
type InitialSyncObserver interface {
	InitialSyncComplete(store Store) error
}

// EngineDeps are the collaborators of an Engine.
type EngineDeps struct {
	Log     logging.Logger
	Source  netlinksource.Source
	Handler EventHandler
	Store   Store

	// StateFile is optional.
	StateFile *RestartStateFile

	// Collector is optional.
	Collector *StatsCollector

	// ReportState is optional, called when the health of the engine changes.
	ReportState func(state statuscheck.PluginState, err error)
}

// EngineStatus is a snapshot of the engine state published by the worker.
type EngineStatus struct {
	Name                string    `json:"name"`
	RestartState        string    `json:"restart_state"`
	EOIUState           string    `json:"eoiu_state"`
	RestoreConfirmed    bool      `json:"restore_confirmed"`
	InitialSyncDone     bool      `json:"initial_sync_done"`
	Pending             int       `json:"pending"`
	Unflushed           int       `json:"unflushed"`
	Published           int       `json:"published"`
	StateFileRecoveries uint64    `json:"state_file_recoveries"`
	Stats               Stats     `json:"stats"`
	LastError           string    `json:"last_error,omitempty"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Engine is a synchronizer of one kernel table. All its state is owned
// by the goroutine executing Run, other goroutines may only call Status.
type Engine struct {
	name string
	cfg  EngineConfig
	EngineDeps

	writer *BatchWriter
	coord  *Coordinator
	stats  Stats
	status atomic.Value

	mirror           map[string]Object
	unflushed        []PendingEntry
	retryAt          time.Time
	reconcileRetryAt time.Time
	reconcileDue     time.Time
	dirty            bool
	lastErr          error

	dumps          []netlinksource.ObjectType
	dumpInProgress bool
	dumpStarted    time.Time

	// keys refreshed since the last overrun, nil outside of the recovery
	refreshed map[string]struct{}

	initialSyncDone bool
	nextSync        time.Time
}

// NewEngine creates the engine, the returned engine is started by Run.
func NewEngine(name string, cfg EngineConfig, deps EngineDeps) *Engine {
	cfg = cfg.withDefaults()
	writer := NewBatchWriter(deps.Log, deps.Store)
	e := &Engine{
		name:       name,
		cfg:        cfg,
		EngineDeps: deps,
		writer:     writer,
		coord: NewCoordinator(deps.Log, cfg.Coordinator, deps.Store,
			writer, deps.StateFile, NewEOIUDetector(cfg.SentinelInterface)),
		mirror: make(map[string]Object),
	}
	e.status.Store(EngineStatus{Name: name})
	return e
}

// Name returns the name of the synchronizer.
func (e *Engine) Name() string {
	return e.name
}

// Coordinator returns the warm restart coordinator of the engine.
func (e *Engine) Coordinator() *Coordinator {
	return e.coord
}

// Status returns the last published status.
func (e *Engine) Status() EngineStatus {
	return e.status.Load().(EngineStatus)
}

// Open opens the netlink source. The kernel starts queuing notifications
// immediately, so no change is lost while the engine waits for the restore.
func (e *Engine) Open() error {
	return e.Source.Open()
}

// Run executes the synchronizer until <ctx> is cancelled. Returns nil after
// cancellation, or the error which prevented the engine from continuing.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.startup(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		e.reportState(statuscheck.Error, err)
		return err
	}
	if e.lastErr == nil {
		e.reportState(statuscheck.OK, nil)
	}
	e.publishStatus(time.Now())

	for {
		if ctx.Err() != nil {
			e.shutdown()
			return nil
		}
		events, err := e.receive(ctx)
		now := time.Now()
		e.process(ctx, events, now)
		if err != nil {
			switch {
			case errors.Cause(err) == netlinksource.ErrOverrun:
				e.onOverrun(now)
			case ctx.Err() != nil:
				e.shutdown()
				return nil
			default:
				e.Log.Errorf("Netlink source failed: %v", err)
				e.setLastError(err)
				e.publishStatus(now)
				e.reportState(statuscheck.Error, err)
				e.shutdown()
				return err
			}
		}
		e.afterPass(ctx, now)
	}
}

func (e *Engine) startup(ctx context.Context) error {
	if err := e.Open(); err != nil {
		return err
	}
	for {
		err := e.coord.Start()
		if err == nil {
			break
		}
		if _, storeErr := err.(*BackingStoreError); !storeErr {
			return err
		}
		e.Log.Warnf("Failed to load published state, retrying: %v", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.cfg.RetryInterval):
		}
	}
	for key, obj := range e.coord.Snapshot() {
		e.mirror[key] = obj
	}

	if e.coord.State() == WarmStart {
		if err := e.coord.WaitForRestoreSignal(ctx); err != nil {
			if _, timeout := err.(*WarmRestartTimeoutError); !timeout {
				return err
			}
			e.Log.Warnf("%v, applying timeout policy '%s'", err, e.cfg.TimeoutPolicy)
			e.setLastError(err)
			e.reportState(statuscheck.Error, err)
			if e.cfg.TimeoutPolicy == TimeoutAbandon {
				if err := e.coord.Abandon(); err != nil {
					return err
				}
			}
		}
	}
	if e.coord.State() == WarmStart {
		if err := e.coord.BeginInitialSync(); err != nil {
			return err
		}
		e.reconcileDue = time.Now().Add(e.cfg.ReconcileTimeout)
	}

	e.dumps = append(e.dumps[:0], e.cfg.Dumps...)
	e.nextSync = time.Now().Add(e.cfg.SyncInterval)
	return e.requestNextDump(time.Now())
}

func (e *Engine) receive(ctx context.Context) ([]netlinksource.Event, error) {
	if e.cfg.IOStyle == IOReactor {
		return e.Source.PollReceive(ctx)
	}
	return e.Source.Receive()
}

// process handles one batch of received events; the resulting changes are
// written in one BatchWriter submission unless buffered by the coordinator.
func (e *Engine) process(ctx context.Context, events []netlinksource.Event, now time.Time) {
	for i := range events {
		ev := &events[i]
		atomic.AddUint64(&e.stats.Events, 1)

		if ev.Kind == netlinksource.EventDumpDone {
			e.onDumpDone(ev, now)
			continue
		}
		if ev.Type == netlinksource.ObjectLink && ev.Link != nil {
			if e.coord.EOIU().Observe(ev.Link.Name, ev.Link.Change) {
				e.Log.WithField("seen", e.coord.EOIU().Seen()).Info("End of initial update detected")
			}
		}

		entry, ok := e.Handler.HandleEvent(ev)
		if !ok {
			atomic.AddUint64(&e.stats.Filtered, 1)
			continue
		}
		e.markRefreshed(entry)
		if e.coord.ShouldBuffer() {
			if err := e.coord.Buffer(entry); err == nil {
				continue
			}
		}
		e.unflushed = append(e.unflushed, entry)
	}
	e.flush(ctx, now)
}

func (e *Engine) flush(ctx context.Context, now time.Time) {
	if len(e.unflushed) == 0 || now.Before(e.retryAt) {
		return
	}
	written, err := e.writer.Submit(ctx, e.unflushed)
	if err != nil {
		atomic.AddUint64(&e.stats.StoreErrors, 1)
		e.retryAt = now.Add(e.cfg.RetryInterval)
		e.setLastError(err)
		if len(e.unflushed) > compactThreshold {
			e.unflushed = Coalesce(e.unflushed)
		}
		e.Log.WithField("unflushed", len(e.unflushed)).Warnf("Batch not written, will retry: %v", err)
		return
	}
	atomic.AddUint64(&e.stats.Written, uint64(written))
	e.applyToMirror(e.unflushed)
	e.unflushed = e.unflushed[:0]
	e.lastErr = nil
	e.persist()
}

func (e *Engine) applyToMirror(entries []PendingEntry) {
	for _, entry := range entries {
		if entry.IsDelete {
			delete(e.mirror, entry.Key)
		} else {
			e.mirror[entry.Key] = entry.Object
		}
	}
	if len(entries) > 0 {
		e.dirty = true
	}
}

func (e *Engine) persist() {
	if e.StateFile == nil || !e.dirty {
		return
	}
	if err := e.StateFile.Save(e.mirror); err != nil {
		atomic.AddUint64(&e.stats.StateFileErrors, 1)
		e.Log.Warnf("Failed to save restart state: %v", err)
		return
	}
	e.dirty = false
}

func (e *Engine) afterPass(ctx context.Context, now time.Time) {
	if e.coord.ShouldBuffer() {
		e.maybeReconcile(ctx, now)
	}
	// retry of a failed batch without new events
	e.flush(ctx, now)

	if e.dumpInProgress && now.Sub(e.dumpStarted) > e.cfg.DumpTimeout {
		e.Log.Warnf("Dump reply not finished within %v", e.cfg.DumpTimeout)
		e.dumpInProgress = false
		if e.refreshed != nil {
			// incomplete dump, objects missing in it may still exist
			e.Log.Warn("Removal of objects lost in overrun skipped")
			e.refreshed = nil
		}
	}
	if err := e.requestNextDump(now); err != nil {
		e.Log.Warnf("Failed to request dump: %v", err)
		e.setLastError(err)
	}
	if e.refreshed != nil && e.dumpsFinished() {
		e.sweep(ctx, now)
	}
	if !e.initialSyncDone && !e.coord.ShouldBuffer() && e.dumpsFinished() {
		e.completeInitialSync()
	}
	if !now.Before(e.nextSync) {
		e.housekeeping(now)
	}
	e.publishStatus(now)
}

// maybeReconcile reconciles once the end of the initial update was detected
// and all requested dumps finished, or the reconcile timeout expired.
func (e *Engine) maybeReconcile(ctx context.Context, now time.Time) {
	detected := e.coord.EOIU().State() == EOIUDetected && e.dumpsFinished()
	expired := !now.Before(e.reconcileDue)
	if !detected && !expired {
		return
	}
	if now.Before(e.reconcileRetryAt) {
		return
	}
	if !detected {
		e.Log.Warnf("End of initial update not detected within %v, reconciling", e.cfg.ReconcileTimeout)
	}
	result, err := e.coord.Reconcile(ctx)
	if err != nil {
		atomic.AddUint64(&e.stats.StoreErrors, 1)
		e.reconcileRetryAt = now.Add(e.cfg.RetryInterval)
		e.setLastError(err)
		e.Log.Warnf("Reconciliation failed, will retry: %v", err)
		return
	}
	atomic.AddUint64(&e.stats.Reconciles, 1)
	atomic.AddUint64(&e.stats.Written, uint64(result.Written))
	e.applyToMirror(result.Applied)
	e.persist()
	e.lastErr = nil
	e.reportState(statuscheck.OK, nil)
}

// dumpsFinished returns true if no dump is queued or being received. The
// sentinel is the first entry of the link dump, the rest of the reply
// still has to be received after its detection.
func (e *Engine) dumpsFinished() bool {
	return !e.dumpInProgress && len(e.dumps) == 0
}

func (e *Engine) requestNextDump(now time.Time) error {
	if e.dumpInProgress || len(e.dumps) == 0 {
		return nil
	}
	objType := e.dumps[0]
	if err := e.Source.RequestDump(objType); err != nil {
		return err
	}
	e.dumps = e.dumps[1:]
	e.dumpInProgress = true
	e.dumpStarted = now
	return nil
}

func (e *Engine) onDumpDone(ev *netlinksource.Event, now time.Time) {
	e.Log.WithFields(logging.Fields{"type": ev.Type, "seq": ev.Seq}).Debug("Dump finished")
	e.dumpInProgress = false
	if err := e.requestNextDump(now); err != nil {
		e.Log.Warnf("Failed to request dump: %v", err)
	}
}

// onOverrun re-requests all dumps, notifications were lost. Published
// objects not refreshed until the dumps finish are removed by sweep.
func (e *Engine) onOverrun(now time.Time) {
	atomic.AddUint64(&e.stats.Overruns, 1)
	e.Log.Warn("Netlink notifications lost, requesting full dump")
	if e.coord.ShouldBuffer() {
		// stale objects are left to the reconciliation
		e.refreshed = nil
	} else {
		e.refreshed = make(map[string]struct{})
	}
	for _, objType := range e.cfg.Dumps {
		queued := false
		for _, q := range e.dumps {
			if q == objType {
				queued = true
				break
			}
		}
		if !queued {
			e.dumps = append(e.dumps, objType)
		}
	}
	if err := e.requestNextDump(now); err != nil {
		e.Log.Warnf("Failed to request dump: %v", err)
	}
}

func (e *Engine) markRefreshed(entry PendingEntry) {
	if e.refreshed == nil {
		return
	}
	if entry.IsDelete {
		delete(e.refreshed, entry.Key)
	} else {
		e.refreshed[entry.Key] = struct{}{}
	}
}

// sweep removes published objects missing in the dumps requested after
// an overrun, their delete notifications were lost.
func (e *Engine) sweep(ctx context.Context, now time.Time) {
	var stale []string
	for key := range e.mirror {
		if _, found := e.refreshed[key]; !found {
			stale = append(stale, key)
		}
	}
	e.refreshed = nil
	if len(stale) == 0 {
		return
	}
	sort.Strings(stale)
	e.Log.WithField("count", len(stale)).Info("Removing objects deleted during overrun")
	for _, key := range stale {
		e.unflushed = append(e.unflushed, NewDeleteEntry(e.mirror[key]))
	}
	e.flush(ctx, now)
}

func (e *Engine) completeInitialSync() {
	e.initialSyncDone = true
	e.Log.WithFields(logging.Fields{
		"state":     e.coord.State(),
		"published": len(e.mirror),
	}).Info("Initial synchronization complete")
	if observer, ok := e.Handler.(InitialSyncObserver); ok {
		if err := observer.InitialSyncComplete(e.Store); err != nil {
			e.Log.Warnf("Initial synchronization observer failed: %v", err)
		}
	}
}

func (e *Engine) housekeeping(now time.Time) {
	e.nextSync = now.Add(e.cfg.SyncInterval)
	if !e.coord.ShouldBuffer() {
		e.persist()
	}
	if e.StateFile != nil {
		removed, err := e.StateFile.CleanupStale(e.cfg.StateBackupRetention)
		if err != nil {
			e.Log.Warnf("Failed to remove stale restart state backups: %v", err)
		} else if removed > 0 {
			e.Log.Debugf("Removed %d stale restart state backups", removed)
		}
	}
	if refresher, ok := e.Handler.(PolicyRefresher); ok {
		if err := refresher.RefreshPolicy(); err != nil {
			e.Log.Warnf("Failed to refresh deployment policy: %v", err)
		}
	}
	if e.Collector != nil {
		e.Collector.Update(e.snapshotStatus(now))
	}
}

func (e *Engine) shutdown() {
	if !e.coord.ShouldBuffer() && len(e.unflushed) > 0 {
		e.retryAt = time.Time{}
		e.flush(context.Background(), time.Now())
	}
	e.persist()
	if err := e.Source.Close(); err != nil {
		e.Log.Warn(err)
	}
	e.publishStatus(time.Now())
	e.Log.Info("Synchronizer stopped")
}

func (e *Engine) setLastError(err error) {
	e.lastErr = err
}

func (e *Engine) reportState(state statuscheck.PluginState, err error) {
	if e.ReportState != nil {
		e.ReportState(state, err)
	}
}

func (e *Engine) snapshotStatus(now time.Time) EngineStatus {
	status := EngineStatus{
		Name:             e.name,
		RestartState:     e.coord.State().String(),
		EOIUState:        e.coord.EOIU().State().String(),
		RestoreConfirmed: e.coord.RestoreConfirmed(),
		InitialSyncDone:  e.initialSyncDone,
		Pending:          e.coord.Pending(),
		Unflushed:        len(e.unflushed),
		Published:        len(e.mirror),
		Stats:            e.stats.Snapshot(),
		UpdatedAt:        now,
	}
	if e.StateFile != nil {
		status.StateFileRecoveries = e.StateFile.RecoveryCount()
	}
	if e.lastErr != nil {
		status.LastError = e.lastErr.Error()
	}
	return status
}

func (e *Engine) publishStatus(now time.Time) {
	e.status.Store(e.snapshotStatus(now))
}

// Published returns a copy of the objects published by the engine. Safe
// to call only from the worker or after Run returned.
func (e *Engine) Published() map[string]Object {
	published := make(map[string]Object, len(e.mirror))
	for key, obj := range e.mirror {
		published[key] = obj
	}
	return published
}

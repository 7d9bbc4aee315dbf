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
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ligato/cn-infra/logging/logrus"
	. "github.com/onsi/gomega"

	"github.com/contiv/netsync/mock/statestore"
	"github.com/contiv/netsync/plugins/statesync"
)

func newTestCoordinator(store statesync.Store, cfg statesync.CoordinatorConfig,
	stateFile *statesync.RestartStateFile) *statesync.Coordinator {

	log := logrus.DefaultLogger()
	return statesync.NewCoordinator(log, cfg, store, statesync.NewBatchWriter(log, store),
		stateFile, statesync.NewEOIUDetector(""))
}

func warmCfg() statesync.CoordinatorConfig {
	return statesync.CoordinatorConfig{
		WarmRestartEnabled:   true,
		RestoreTimeout:       200 * time.Millisecond,
		RestoreCheckInterval: 10 * time.Millisecond,
	}
}

func TestColdStartWithEmptyStore(t *testing.T) {
	RegisterTestingT(t)
	store := statestore.NewMockStore()
	coord := newTestCoordinator(store, warmCfg(), nil)

	Expect(coord.Start()).To(Succeed())
	Expect(coord.State()).To(Equal(statesync.ColdStart))
	Expect(coord.ShouldBuffer()).To(BeFalse())
	Expect(coord.BeginInitialSync()).ToNot(Succeed())
	Expect(coord.Buffer(set("a", "1"))).ToNot(Succeed())

	// reconcile is a no-op outside of the initial sync
	result, err := coord.Reconcile(context.Background())
	Expect(err).To(BeNil())
	Expect(result.Written).To(BeZero())
	sets, _ := store.BatchCalls()
	Expect(sets).To(BeZero())
}

func TestColdStartWhenWarmRestartDisabled(t *testing.T) {
	RegisterTestingT(t)
	store := statestore.NewMockStore()
	store.Objects["a"] = obj("a", "1")
	coord := newTestCoordinator(store, statesync.CoordinatorConfig{}, nil)

	Expect(coord.Start()).To(Succeed())
	Expect(coord.State()).To(Equal(statesync.ColdStart))
	Expect(coord.Snapshot()).To(HaveLen(1))
}

func TestStartOnlyOnce(t *testing.T) {
	RegisterTestingT(t)
	coord := newTestCoordinator(statestore.NewMockStore(), warmCfg(), nil)
	Expect(coord.Start()).To(Succeed())

	err := coord.Start()
	_, isTransitionErr := err.(*statesync.TransitionError)
	Expect(isTransitionErr).To(BeTrue())
}

func TestStartStoreFailure(t *testing.T) {
	RegisterTestingT(t)
	store := statestore.NewMockStore()
	store.InjectError(errors.New("timeout"), 1)
	coord := newTestCoordinator(store, warmCfg(), nil)

	err := coord.Start()
	_, isStoreErr := err.(*statesync.BackingStoreError)
	Expect(isStoreErr).To(BeTrue())

	// not started, can be retried
	Expect(coord.Start()).To(Succeed())
}

func TestWarmRestartReconciliation(t *testing.T) {
	RegisterTestingT(t)
	store := statestore.NewMockStore()
	store.Objects["a"] = obj("a", "1")
	store.Objects["b"] = obj("b", "1")
	store.Objects["c"] = obj("c", "1")
	store.SetRestoreDone(true)

	cfg := warmCfg()
	cfg.DeleteStale = true
	coord := newTestCoordinator(store, cfg, nil)

	Expect(coord.Start()).To(Succeed())
	Expect(coord.State()).To(Equal(statesync.WarmStart))
	Expect(coord.WaitForRestoreSignal(context.Background())).To(Succeed())
	Expect(coord.RestoreConfirmed()).To(BeTrue())
	Expect(coord.BeginInitialSync()).To(Succeed())
	Expect(coord.State()).To(Equal(statesync.InitialSyncInProgress))
	Expect(coord.ShouldBuffer()).To(BeTrue())

	// a unchanged, b changed, d new, c not refreshed
	Expect(coord.Buffer(set("a", "1"))).To(Succeed())
	Expect(coord.Buffer(set("b", "2"))).To(Succeed())
	Expect(coord.Buffer(set("d", "1"))).To(Succeed())
	Expect(coord.Pending()).To(Equal(3))
	// buffered, not written
	Expect(store.Keys()).To(Equal([]string{"a", "b", "c"}))

	coord.EOIU().Observe("lo", 0)
	result, err := coord.Reconcile(context.Background())
	Expect(err).To(BeNil())
	Expect(result.Diff).To(Equal(statesync.ReconcileDiff{New: 1, Changed: 1, Unchanged: 1, Stale: 1}))
	Expect(result.Written).To(Equal(4))
	Expect(coord.State()).To(Equal(statesync.InitialSyncComplete))
	Expect(coord.EOIU().State()).To(Equal(statesync.EOIUComplete))
	Expect(coord.Pending()).To(BeZero())

	Expect(store.Keys()).To(Equal([]string{"a", "b", "d"}))
	b, _ := store.Get("b")
	Expect(valueOf(b)).To(Equal("2"))
	sets, deletes := store.BatchCalls()
	Expect(sets).To(Equal(1))
	Expect(deletes).To(Equal(1))

	// idempotent
	result, err = coord.Reconcile(context.Background())
	Expect(err).To(BeNil())
	Expect(result.Written).To(BeZero())
	sets, deletes = store.BatchCalls()
	Expect(sets).To(Equal(1))
	Expect(deletes).To(Equal(1))
	Expect(coord.ShouldBuffer()).To(BeFalse())
}

func TestStaleObjectsKeptByDefault(t *testing.T) {
	RegisterTestingT(t)
	store := statestore.NewMockStore()
	store.Objects["a"] = obj("a", "1")
	store.Objects["b"] = obj("b", "1")
	coord := newTestCoordinator(store, warmCfg(), nil)

	Expect(coord.Start()).To(Succeed())
	Expect(coord.BeginInitialSync()).To(Succeed())
	Expect(coord.Buffer(set("a", "1"))).To(Succeed())
	Expect(coord.Buffer(del("a"))).To(Succeed())

	result, err := coord.Reconcile(context.Background())
	Expect(err).To(BeNil())
	Expect(result.Diff.Deleted).To(Equal(1))
	Expect(result.Diff.Stale).To(Equal(1))
	Expect(store.Keys()).To(Equal([]string{"b"}))
}

func TestReconcileFailureKeepsPending(t *testing.T) {
	RegisterTestingT(t)
	store := statestore.NewMockStore()
	store.Objects["a"] = obj("a", "1")
	coord := newTestCoordinator(store, warmCfg(), nil)

	Expect(coord.Start()).To(Succeed())
	Expect(coord.BeginInitialSync()).To(Succeed())
	Expect(coord.Buffer(set("a", "2"))).To(Succeed())
	Expect(coord.Buffer(set("b", "1"))).To(Succeed())

	store.InjectError(errors.New("store down"), 1)
	_, err := coord.Reconcile(context.Background())
	Expect(err).ToNot(BeNil())
	Expect(coord.State()).To(Equal(statesync.InitialSyncInProgress))
	Expect(coord.Pending()).To(Equal(2))

	result, err := coord.Reconcile(context.Background())
	Expect(err).To(BeNil())
	Expect(result.Written).To(Equal(2))
	Expect(coord.State()).To(Equal(statesync.InitialSyncComplete))
	Expect(store.Keys()).To(Equal([]string{"a", "b"}))
}

func TestRestoreSignalTimeout(t *testing.T) {
	RegisterTestingT(t)
	store := statestore.NewMockStore()
	store.Objects["a"] = obj("a", "1")
	cfg := warmCfg()
	cfg.RestoreTimeout = 50 * time.Millisecond
	coord := newTestCoordinator(store, cfg, nil)
	Expect(coord.Start()).To(Succeed())

	started := time.Now()
	err := coord.WaitForRestoreSignal(context.Background())
	elapsed := time.Since(started)
	timeoutErr, isTimeout := err.(*statesync.WarmRestartTimeoutError)
	Expect(isTimeout).To(BeTrue())
	Expect(timeoutErr.Timeout).To(Equal(50 * time.Millisecond))
	Expect(elapsed).To(BeNumerically(">=", 50*time.Millisecond))
	Expect(elapsed).To(BeNumerically("<", time.Second))
	Expect(coord.RestoreConfirmed()).To(BeFalse())
	Expect(coord.State()).To(Equal(statesync.WarmStart))

	// pending changes survive a failed wait
	Expect(coord.BeginInitialSync()).To(Succeed())
	Expect(coord.Buffer(set("b", "1"))).To(Succeed())
	Expect(coord.WaitForRestoreSignal(context.Background())).ToNot(Succeed())
	Expect(coord.Pending()).To(Equal(1))
}

func TestRestoreSignalArrivesLater(t *testing.T) {
	RegisterTestingT(t)
	store := statestore.NewMockStore()
	store.Objects["a"] = obj("a", "1")
	coord := newTestCoordinator(store, warmCfg(), nil)
	Expect(coord.Start()).To(Succeed())

	go func() {
		time.Sleep(30 * time.Millisecond)
		store.SetRestoreDone(true)
	}()
	Expect(coord.WaitForRestoreSignal(context.Background())).To(Succeed())
	Expect(coord.RestoreConfirmed()).To(BeTrue())
}

func TestRestoreSignalCancelled(t *testing.T) {
	RegisterTestingT(t)
	store := statestore.NewMockStore()
	store.Objects["a"] = obj("a", "1")
	cfg := warmCfg()
	cfg.RestoreTimeout = time.Minute
	coord := newTestCoordinator(store, cfg, nil)
	Expect(coord.Start()).To(Succeed())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	Expect(coord.WaitForRestoreSignal(ctx)).To(Equal(context.DeadlineExceeded))
}

func TestAbandonWarmRestart(t *testing.T) {
	RegisterTestingT(t)
	store := statestore.NewMockStore()
	store.Objects["a"] = obj("a", "1")
	coord := newTestCoordinator(store, warmCfg(), nil)
	Expect(coord.Start()).To(Succeed())
	Expect(coord.State()).To(Equal(statesync.WarmStart))

	Expect(coord.Abandon()).To(Succeed())
	Expect(coord.State()).To(Equal(statesync.InitialSyncComplete))
	Expect(coord.ShouldBuffer()).To(BeFalse())
	Expect(coord.Snapshot()).To(BeEmpty())
	Expect(coord.Abandon()).ToNot(Succeed())
	Expect(store.Keys()).To(Equal([]string{"a"}))
}

func TestAbandonRejectedWithBufferedChanges(t *testing.T) {
	RegisterTestingT(t)
	store := statestore.NewMockStore()
	store.Objects["a"] = obj("a", "1")
	coord := newTestCoordinator(store, warmCfg(), nil)
	Expect(coord.Start()).To(Succeed())
	Expect(coord.BeginInitialSync()).To(Succeed())
	Expect(coord.Buffer(set("b", "1"))).To(Succeed())

	err := coord.Abandon()
	Expect(err).ToNot(BeNil())
	_, isTransitionErr := err.(*statesync.TransitionError)
	Expect(isTransitionErr).To(BeTrue())
	Expect(coord.State()).To(Equal(statesync.InitialSyncInProgress))
	Expect(coord.Pending()).To(Equal(1))

	// the buffered change is still written by the reconciliation
	_, err = coord.Reconcile(context.Background())
	Expect(err).To(BeNil())
	Expect(store.Keys()).To(Equal([]string{"a", "b"}))
}

func TestSnapshotFromStateFile(t *testing.T) {
	RegisterTestingT(t)
	stateFile := newTestStateFile(t)
	Expect(stateFile.Save(map[string]statesync.Object{"f": obj("f", "1")})).To(Succeed())

	store := statestore.NewMockStore()
	store.Objects["a"] = obj("a", "1")
	coord := newTestCoordinator(store, warmCfg(), stateFile)
	Expect(coord.Start()).To(Succeed())
	Expect(coord.State()).To(Equal(statesync.WarmStart))
	Expect(coord.Snapshot()).To(HaveKey("f"))
	Expect(coord.Snapshot()).ToNot(HaveKey("a"))
	Expect(store.GetAllCalls).To(BeZero())
}

func TestWarmStartScenarioWithOneSetAndOneDelete(t *testing.T) {
	RegisterTestingT(t)
	store := statestore.NewMockStore()
	for _, key := range []string{"a", "b", "c"} {
		store.Objects[key] = obj(key, "1")
	}
	coord := newTestCoordinator(store, warmCfg(), nil)
	Expect(coord.Start()).To(Succeed())
	Expect(coord.BeginInitialSync()).To(Succeed())
	Expect(coord.Buffer(set("a", "2"))).To(Succeed())
	Expect(coord.Buffer(del("b"))).To(Succeed())

	_, err := coord.Reconcile(context.Background())
	Expect(err).To(BeNil())
	sets, deletes := store.BatchSizes()
	Expect(sets).To(Equal([]int{1}))
	Expect(deletes).To(Equal([]int{1}))
	Expect(coord.State()).To(Equal(statesync.InitialSyncComplete))
	Expect(coord.Snapshot()).To(BeEmpty())
	Expect(coord.Pending()).To(BeZero())
}

func TestColdStartWithCorruptedStateFile(t *testing.T) {
	RegisterTestingT(t)
	stateFile := newTestStateFile(t)
	Expect(os.MkdirAll(filepath.Dir(stateFile.Path()), 0755)).To(Succeed())
	Expect(os.WriteFile(stateFile.Path(), []byte("{trunc"), 0644)).To(Succeed())

	coord := newTestCoordinator(statestore.NewMockStore(), warmCfg(), stateFile)
	Expect(coord.Start()).To(Succeed())
	Expect(coord.State()).To(Equal(statesync.ColdStart))
	Expect(stateFile.RecoveryCount()).To(BeZero())
}

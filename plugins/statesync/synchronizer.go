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
	"sync"

	"github.com/ligato/cn-infra/db/keyval"
	"github.com/ligato/cn-infra/health/statuscheck"
	"github.com/ligato/cn-infra/infra"
	prometheusplugin "github.com/ligato/cn-infra/rpc/prometheus"
	"github.com/ligato/cn-infra/rpc/rest"
	"github.com/ligato/cn-infra/servicelabel"
	"github.com/pkg/errors"

	"github.com/contiv/netsync/plugins/netlinksource"
)

// BrokerFactory is implemented by the key-value database plugins (etcd, bolt).
type BrokerFactory interface {
	// NewBroker creates a new instance of DB broker prefixing all keys with the
	// given prefix.
	NewBroker(keyPrefix string) keyval.ProtoBroker
}

// SyncDeps are the dependencies of a synchronizer plugin.
type SyncDeps struct {
	infra.PluginDeps

	ServiceLabel servicelabel.ReaderAPI
	KVStore      BrokerFactory
	StatusCheck  statuscheck.PluginStatusWriter // optional
	HTTPHandlers rest.HTTPHandlers              // optional
	Prometheus   prometheusplugin.API           // optional

	// Source replaces the netlink socket, optional.
	Source netlinksource.Source
}

// Synchronizer is the part of a synchronizer plugin shared by the neighbor
// and port synchronizers: it wires the source, the store, the restart state
// file and the metrics around an Engine and runs it.
type Synchronizer struct {
	deps SyncDeps
	name string
	cfg  Config

	store     *KVStore
	source    netlinksource.Source
	stateFile *RestartStateFile
	collector *StatsCollector
	engine    *Engine
	registry  *EngineRegistry

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSynchronizer returns a synchronizer of the plugin <deps.PluginName>.
func NewSynchronizer(deps SyncDeps, cfg Config) *Synchronizer {
	return &Synchronizer{
		deps:     deps,
		name:     deps.PluginName.String(),
		cfg:      cfg,
		registry: DefaultRegistry(),
	}
}

// Setup creates the store publishing objects under <keyPrefix> of the agent
// and the netlink source subscribed to <groups>.
func (s *Synchronizer) Setup(keyPrefix string, alloc ObjectAllocator, groups ...netlinksource.ObjectType) error {
	if s.deps.ServiceLabel == nil || s.deps.KVStore == nil {
		return errors.Errorf("%s: missing store dependency", s.name)
	}
	broker := s.deps.KVStore.NewBroker(s.deps.ServiceLabel.GetAgentPrefix())
	s.store = NewKVStore(s.deps.Log, broker, keyPrefix, alloc, s.cfg.RestoreAppName)

	if s.cfg.StateFile != "" {
		s.stateFile = NewRestartStateFile(s.deps.Log, s.cfg.StateFile, s.cfg.StateMaxBackups, alloc)
	}

	s.source = s.deps.Source
	if s.source == nil {
		resolver, err := netlinksource.NewIfNameResolver(s.cfg.IfNameCacheSize, nil)
		if err != nil {
			return err
		}
		s.source = netlinksource.NewSource(s.deps.Log, resolver, s.cfg.SocketConfig(groups...))
	}

	if s.deps.Prometheus != nil {
		s.collector = &StatsCollector{
			Log:          s.deps.Log,
			ServiceLabel: s.deps.ServiceLabel.GetAgentLabel(),
			Prometheus:   s.deps.Prometheus,
			Path:         defaultStatsPath + "/" + s.name,
		}
		if err := s.collector.Init(); err != nil {
			return err
		}
	}
	if s.deps.StatusCheck != nil {
		s.deps.StatusCheck.Register(s.deps.PluginName, nil)
	}
	return nil
}

// Store returns the store created by Setup.
func (s *Synchronizer) Store() Store {
	return s.store
}

// Start creates the engine with the given handler, opens the source and
// runs the engine in a new goroutine. Errors of the source are returned
// immediately, they are fatal for the plugin.
func (s *Synchronizer) Start(handler EventHandler, dumps ...netlinksource.ObjectType) error {
	if s.store == nil {
		return errors.Errorf("%s: synchronizer not set up", s.name)
	}
	s.engine = NewEngine(s.name, s.cfg.EngineConfig(dumps...), EngineDeps{
		Log:         s.deps.Log,
		Source:      s.source,
		Handler:     handler,
		Store:       s.store,
		StateFile:   s.stateFile,
		Collector:   s.collector,
		ReportState: s.reportState,
	})
	if err := s.registry.Register(s.engine); err != nil {
		return err
	}
	RegisterStatusHandler(s.deps.Log, s.deps.HTTPHandlers, s.registry, s.name)

	if err := s.engine.Open(); err != nil {
		s.deps.Log.Errorf("Failed to open netlink source: %v", err)
		s.registry.Unregister(s.name)
		return err
	}

	var ctx context.Context
	ctx, s.cancel = context.WithCancel(context.Background())
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.engine.Run(ctx); err != nil {
			s.deps.Log.Errorf("Synchronizer failed: %v", err)
		}
	}()
	return nil
}

// Engine returns the engine created by Start.
func (s *Synchronizer) Engine() *Engine {
	return s.engine
}

// Close stops the engine and waits for its goroutine to finish.
func (s *Synchronizer) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	if s.engine != nil {
		s.registry.Unregister(s.name)
	}
	return nil
}

func (s *Synchronizer) reportState(state statuscheck.PluginState, err error) {
	if s.deps.StatusCheck != nil {
		s.deps.StatusCheck.ReportStateChange(s.deps.PluginName, state, err)
	}
}

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

package neighsync

import (
	"time"

	"github.com/contiv/netsync/plugins/netlinksource"
	"github.com/contiv/netsync/plugins/neighsync/model"
	"github.com/contiv/netsync/plugins/statesync"
)

// by default, neighbors of the management and internal interfaces are ignored
var defaultIgnoredInterfacePrefixes = []string{"eth0", "docker", "lo"}

// NeighSync plugin publishes the kernel neighbor table.
type NeighSync struct {
	Deps

	config *Config
	filter *NeighFilter
	sync   *statesync.Synchronizer
}

// Deps groups the dependencies of the plugin.
type Deps struct {
	statesync.SyncDeps
}

// Config holds the neighsync configuration.
type Config struct {
	statesync.Config

	IgnoredInterfacePrefixes []string      `json:"ignored-interface-prefixes"`
	LinkLocalCacheTTL        time.Duration `json:"link-local-cache-ttl"`
}

// Init loads the configuration and prepares the synchronizer.
func (p *NeighSync) Init() (err error) {
	p.config = &Config{
		Config:                   statesync.DefaultConfig(p.String()),
		IgnoredInterfacePrefixes: defaultIgnoredInterfacePrefixes,
		LinkLocalCacheTTL:        defaultLinkLocalCacheTTL,
	}
	if err = p.loadConfig(p.config); err != nil {
		return err
	}
	p.Log.Infof("Neighsync config: %+v", *p.config)

	p.sync = statesync.NewSynchronizer(p.SyncDeps, p.config.Config)
	err = p.sync.Setup(model.KeyPrefix, newNeighborEntry,
		netlinksource.ObjectLink, netlinksource.ObjectNeigh)
	if err != nil {
		return err
	}
	p.filter = NewNeighFilter(p.Log, p.sync.Store(),
		p.config.IgnoredInterfacePrefixes, p.config.LinkLocalCacheTTL)
	return nil
}

// AfterInit opens the netlink socket and starts the synchronization.
// The link table is dumped last, its end marks the end of the initial update.
func (p *NeighSync) AfterInit() error {
	return p.sync.Start(p.filter, netlinksource.ObjectNeigh, netlinksource.ObjectLink)
}

// Close stops the synchronization.
func (p *NeighSync) Close() error {
	return p.sync.Close()
}

// Filter returns the event filter, for example to invalidate the cached
// link-local option of an interface after its configuration changed.
func (p *NeighSync) Filter() *NeighFilter {
	return p.filter
}

// Status returns the status of the synchronizer.
func (p *NeighSync) Status() statesync.EngineStatus {
	return p.sync.Engine().Status()
}

// loadConfig loads configuration file.
func (p *NeighSync) loadConfig(config *Config) error {
	if p.Cfg == nil {
		return nil
	}
	found, err := p.Cfg.LoadValue(config)
	if err != nil {
		return err
	} else if !found {
		p.Log.Debugf("%v config not found", p.PluginName)
		return nil
	}
	p.Log.Debugf("%v config found: %+v", p.PluginName, config)
	return nil
}

func newNeighborEntry() statesync.Object {
	return &model.NeighborEntry{}
}

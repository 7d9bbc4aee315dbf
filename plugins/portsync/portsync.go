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

package portsync

import (
	"github.com/contiv/netsync/plugins/netlinksource"
	"github.com/contiv/netsync/plugins/portsync/model"
	"github.com/contiv/netsync/plugins/statesync"
)

// PortSync plugin publishes the state of the front-panel ports.
type PortSync struct {
	Deps

	config *Config
	filter *PortFilter
	sync   *statesync.Synchronizer
}

// Deps groups the dependencies of the plugin.
type Deps struct {
	statesync.SyncDeps
}

// Config holds the portsync configuration.
type Config struct {
	statesync.Config

	InterfacePrefixes []string `json:"interface-prefixes"`
}

// Init loads the configuration and prepares the synchronizer.
func (p *PortSync) Init() (err error) {
	p.config = &Config{
		Config:            statesync.DefaultConfig(p.String()),
		InterfacePrefixes: defaultInterfacePrefixes,
	}
	if err = p.loadConfig(p.config); err != nil {
		return err
	}
	p.Log.Infof("Portsync config: %+v", *p.config)

	p.sync = statesync.NewSynchronizer(p.SyncDeps, p.config.Config)
	err = p.sync.Setup(model.KeyPrefix, newPortState, netlinksource.ObjectLink)
	if err != nil {
		return err
	}
	p.filter = NewPortFilter(p.Log, p.config.InterfacePrefixes, p.config.SentinelInterface)
	return nil
}

// AfterInit opens the netlink socket and starts the synchronization
// with a dump of the link table.
func (p *PortSync) AfterInit() error {
	return p.sync.Start(p.filter, netlinksource.ObjectLink)
}

// Close stops the synchronization.
func (p *PortSync) Close() error {
	return p.sync.Close()
}

// Status returns the status of the synchronizer.
func (p *PortSync) Status() statesync.EngineStatus {
	return p.sync.Engine().Status()
}

// loadConfig loads configuration file.
func (p *PortSync) loadConfig(config *Config) error {
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

func newPortState() statesync.Object {
	return &model.PortState{}
}

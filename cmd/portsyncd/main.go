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

package main

import (
	"os"

	"github.com/ligato/cn-infra/agent"
	"github.com/ligato/cn-infra/db/keyval/bolt"
	"github.com/ligato/cn-infra/db/keyval/etcd"
	"github.com/ligato/cn-infra/health/probe"
	"github.com/ligato/cn-infra/logging/logrus"
	"github.com/ligato/cn-infra/servicelabel"

	"github.com/contiv/netsync/plugins/portsync"
	"github.com/contiv/netsync/plugins/statesync"
)

// kvStoreEnvVar selects the state database: "etcd" (default) or "bolt".
const kvStoreEnvVar = "NETSYNC_KVSTORE"

// PortSyncd mirrors the state of the front-panel ports into the state database.
type PortSyncd struct {
	ServiceLabel servicelabel.ReaderAPI
	HealthProbe  *probe.Plugin
	PortSync     *portsync.PortSync
}

func (p *PortSyncd) String() string {
	return "portsyncd"
}

// Init is called at startup phase. Method added in order to implement Plugin interface.
func (p *PortSyncd) Init() error {
	return nil
}

// Close is called at cleanup phase. Method added in order to implement Plugin interface.
func (p *PortSyncd) Close() error {
	return nil
}

func kvStore() statesync.BrokerFactory {
	if os.Getenv(kvStoreEnvVar) == "bolt" {
		return &bolt.DefaultPlugin
	}
	return &etcd.DefaultPlugin
}

func main() {
	portsync.DefaultPlugin.KVStore = kvStore()

	portSyncd := &PortSyncd{
		ServiceLabel: &servicelabel.DefaultPlugin,
		HealthProbe:  &probe.DefaultPlugin,
		PortSync:     &portsync.DefaultPlugin,
	}

	a := agent.NewAgent(agent.AllPlugins(portSyncd))
	if err := a.Run(); err != nil {
		logrus.DefaultLogger().Fatal(err)
	}
}

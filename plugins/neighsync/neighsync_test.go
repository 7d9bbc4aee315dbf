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
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ligato/cn-infra/infra"
	"github.com/ligato/cn-infra/logging"
	. "github.com/onsi/gomega"

	"github.com/contiv/netsync/mock/broker"
	mocksource "github.com/contiv/netsync/mock/netlinksource"
	"github.com/contiv/netsync/mock/servicelabel"
	"github.com/contiv/netsync/plugins/netlinksource"
	"github.com/contiv/netsync/plugins/neighsync/model"
	"github.com/contiv/netsync/plugins/statesync"
	policy "github.com/contiv/netsync/plugins/statesync/model"
)

const (
	testAgentLabel = "test-agent"
	agentPrefix    = "/vnf-agent/" + testAgentLabel + "/"
)

// testConfig applies changes to the default configuration.
type testConfig struct {
	apply func(cfg *Config)
}

func (c *testConfig) LoadValue(data interface{}) (found bool, err error) {
	c.apply(data.(*Config))
	return true, nil
}

func (c *testConfig) GetConfigName() string {
	return "neighsync.conf"
}

type pluginFixture struct {
	plugin *NeighSync
	broker *broker.MockBroker
	source *mocksource.MockSource
}

func newPluginFixture(t *testing.T, apply func(cfg *Config)) *pluginFixture {
	f := &pluginFixture{
		broker: broker.NewMockBroker(),
		source: mocksource.NewMockSource(),
	}
	stateFile := filepath.Join(t.TempDir(), "neighsync.json")
	f.plugin = &NeighSync{
		Deps: Deps{
			SyncDeps: statesync.SyncDeps{
				PluginDeps: infra.PluginDeps{
					PluginName: "neighsync",
					Log:        logging.ForPlugin("neighsync-test"),
					Cfg: &testConfig{apply: func(cfg *Config) {
						cfg.StateFile = stateFile
						cfg.RetryInterval = 10 * time.Millisecond
						cfg.RestoreCheckInterval = 5 * time.Millisecond
						cfg.SyncInterval = 20 * time.Millisecond
						if apply != nil {
							apply(cfg)
						}
					}},
				},
				ServiceLabel: servicelabel.NewMockServiceLabel(testAgentLabel),
				KVStore:      f.broker,
				Source:       f.source,
			},
		},
	}
	return f
}

// agentBroker returns the view of the broker used by the plugin.
func (f *pluginFixture) agentBroker() *broker.MockBroker {
	return f.broker.NewBroker(agentPrefix).(*broker.MockBroker)
}

func reachable(kind netlinksource.EventKind, ifName, ip, mac string) netlinksource.Event {
	return mocksource.NeighEvent(kind, ifName, netlinksource.FamilyIPv4, ip, mac, netlinksource.NudReachable)
}

func TestNeighSyncColdStart(t *testing.T) {
	RegisterTestingT(t)
	f := newPluginFixture(t, nil)
	f.source.SetDump(netlinksource.ObjectNeigh,
		reachable(netlinksource.EventDump, "Ethernet0", "10.0.0.1", "00:00:00:00:00:01"),
		reachable(netlinksource.EventDump, "eth0", "172.16.0.1", "00:00:00:00:00:02"))
	f.source.SetDump(netlinksource.ObjectLink, mocksource.LinkEvent(netlinksource.EventDump, 1, "lo", 0))

	Expect(f.plugin.Init()).To(Succeed())
	Expect(f.plugin.AfterInit()).To(Succeed())
	Expect(f.source.IsOpened()).To(BeTrue())

	Eventually(func() bool { return f.plugin.Status().InitialSyncDone }).Should(BeTrue())
	Expect(f.plugin.Status().RestartState).To(Equal(statesync.ColdStart.String()))
	Expect(f.broker.Keys()).To(Equal([]string{agentPrefix + "neigh/Ethernet0/10.0.0.1"}))

	f.source.Inject(
		reachable(netlinksource.EventNew, "Ethernet4", "10.0.1.1", "00:00:00:00:00:03"),
		reachable(netlinksource.EventDelete, "Ethernet0", "10.0.0.1", "00:00:00:00:00:01"))
	Eventually(f.broker.Keys).Should(Equal([]string{agentPrefix + "neigh/Ethernet4/10.0.1.1"}))

	entry := &model.NeighborEntry{}
	found, _, err := f.agentBroker().GetValue(model.Key("Ethernet4", "10.0.1.1"), entry)
	Expect(err).To(BeNil())
	Expect(found).To(BeTrue())
	Expect(entry.Mac).To(Equal("00:00:00:00:00:03"))
	Expect(entry.Family).To(Equal(model.FamilyIPv4))

	Expect(f.plugin.Close()).To(Succeed())
	Expect(f.source.IsClosed()).To(BeTrue())
	_, registered := statesync.DefaultRegistry().Lookup("neighsync")
	Expect(registered).To(BeFalse())
}

func TestNeighSyncWarmRestart(t *testing.T) {
	RegisterTestingT(t)
	f := newPluginFixture(t, func(cfg *Config) {
		cfg.ReconcileDeleteStale = true
		cfg.ReconcileTimeout = 50 * time.Millisecond
	})

	// published before the restart
	agent := f.agentBroker()
	Expect(agent.Put(model.Key("Ethernet0", "10.0.0.1"), &model.NeighborEntry{
		Interface: "Ethernet0", Ip: "10.0.0.1", Family: model.FamilyIPv4,
		Mac: "00:00:00:00:00:01", State: "reachable"})).To(Succeed())
	Expect(agent.Put(model.Key("Ethernet0", "10.0.0.9"), &model.NeighborEntry{
		Interface: "Ethernet0", Ip: "10.0.0.9", Family: model.FamilyIPv4,
		Mac: "00:00:00:00:00:09", State: "reachable"})).To(Succeed())
	Expect(agent.Put(policy.RestoreFlagsKey("swss"), &policy.RestoreFlags{Restored: true})).To(Succeed())

	f.source.SetDump(netlinksource.ObjectNeigh,
		reachable(netlinksource.EventDump, "Ethernet0", "10.0.0.1", "00:00:00:00:00:01"),
		reachable(netlinksource.EventDump, "Ethernet0", "10.0.0.2", "00:00:00:00:00:02"))
	f.source.SetDump(netlinksource.ObjectLink, mocksource.LinkEvent(netlinksource.EventDump, 1, "lo", 0))

	Expect(f.plugin.Init()).To(Succeed())
	Expect(f.plugin.AfterInit()).To(Succeed())
	defer f.plugin.Close()

	Eventually(func() bool { return f.plugin.Status().InitialSyncDone }).Should(BeTrue())
	Expect(f.plugin.Status().RestartState).To(Equal(statesync.InitialSyncComplete.String()))
	Expect(f.broker.Keys()).To(ConsistOf(
		agentPrefix+"neigh/Ethernet0/10.0.0.1",
		agentPrefix+"neigh/Ethernet0/10.0.0.2",
		agentPrefix+policy.RestoreFlagsKey("swss")))
}

func TestNeighSyncDualToR(t *testing.T) {
	RegisterTestingT(t)
	f := newPluginFixture(t, nil)
	Expect(f.agentBroker().Put(policy.DeviceMetadataKey,
		&policy.DeviceMetadata{Subtype: policy.SubtypeDualToR})).To(Succeed())
	f.source.SetDump(netlinksource.ObjectNeigh, mocksource.NeighEvent(netlinksource.EventDump,
		"Vlan1000", netlinksource.FamilyIPv4, "192.168.0.2", "", netlinksource.NudIncomplete))

	Expect(f.plugin.Init()).To(Succeed())
	Expect(f.plugin.AfterInit()).To(Succeed())
	defer f.plugin.Close()

	Eventually(func() bool { return f.plugin.Status().InitialSyncDone }).Should(BeTrue())
	entry := &model.NeighborEntry{}
	Eventually(func() bool {
		found, _, _ := f.agentBroker().GetValue(model.Key("Vlan1000", "192.168.0.2"), entry)
		return found
	}).Should(BeTrue())
	Expect(entry.Mac).To(Equal("00:00:00:00:00:00"))
}

func TestNeighSyncOpenFailure(t *testing.T) {
	RegisterTestingT(t)
	f := newPluginFixture(t, nil)
	f.source.OpenErr = netlinksource.NewTransportError("socket", errors.New("operation not permitted"))

	Expect(f.plugin.Init()).To(Succeed())
	Expect(f.plugin.AfterInit()).ToNot(Succeed())
	Expect(f.plugin.Close()).To(Succeed())
}

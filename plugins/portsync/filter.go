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
	"strings"

	"github.com/ligato/cn-infra/logging"

	"github.com/contiv/netsync/plugins/netlinksource"
	"github.com/contiv/netsync/plugins/portsync/model"
	"github.com/contiv/netsync/plugins/statesync"
)

// by default, only the front-panel ports are published
var defaultInterfacePrefixes = []string{"Ethernet"}

// PortFilter translates link events of the front-panel ports into port states.
// It is owned by the engine goroutine and not safe for concurrent use.
type PortFilter struct {
	log      logging.Logger
	prefixes []string
	sentinel string
	ports    map[string]struct{}
}

// NewPortFilter returns a filter accepting links with names starting with
// one of <prefixes>. The <sentinel> interface is never published.
func NewPortFilter(log logging.Logger, prefixes []string, sentinel string) *PortFilter {
	return &PortFilter{
		log:      log,
		prefixes: prefixes,
		sentinel: sentinel,
		ports:    make(map[string]struct{}),
	}
}

// HandleEvent returns the change of the port state derived from the link event.
func (f *PortFilter) HandleEvent(ev *netlinksource.Event) (statesync.PendingEntry, bool) {
	if ev.Type != netlinksource.ObjectLink || ev.Link == nil {
		return statesync.PendingEntry{}, false
	}
	link := ev.Link
	if link.Name == f.sentinel || !f.isFrontPanel(link.Name) {
		return statesync.PendingEntry{}, false
	}

	if ev.Kind == netlinksource.EventDelete {
		delete(f.ports, link.Name)
		f.log.WithField("port", link.Name).Info("Port removed")
		return statesync.NewDeleteEntry(&model.PortState{Name: link.Name}), true
	}
	f.ports[link.Name] = struct{}{}
	return statesync.NewSetEntry(PortState(link)), true
}

// InitialSyncComplete writes the marker signalling that all ports were
// published.
func (f *PortFilter) InitialSyncComplete(store statesync.Store) error {
	ports := len(f.ports)
	f.log.Infof("Initial synchronization of %d ports complete", ports)
	return store.SetObject(&model.PortInitDone{Done: true, Ports: uint32(ports)})
}

// Ports returns the number of ports currently known to the filter.
func (f *PortFilter) Ports() int {
	return len(f.ports)
}

func (f *PortFilter) isFrontPanel(name string) bool {
	for _, prefix := range f.prefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// PortState builds the published state of the link.
func PortState(link *netlinksource.LinkMsg) *model.PortState {
	port := &model.PortState{
		Name:        link.Name,
		Index:       uint32(link.Index),
		AdminStatus: status(link.AdminUp),
		OperStatus:  operStatus(link),
		Mtu:         uint32(link.MTU),
		MasterIndex: uint32(link.MasterIndex),
	}
	if len(link.HardwareAddr) > 0 {
		port.Mac = link.HardwareAddr.String()
	}
	return port
}

// operStatus prefers the RFC 2863 operational state; drivers not reporting
// it leave "unknown" and the carrier flag decides.
func operStatus(link *netlinksource.LinkMsg) string {
	switch link.OperState {
	case "up":
		return model.StatusUp
	case "", "unknown":
		return status(link.Running)
	}
	return model.StatusDown
}

func status(up bool) string {
	if up {
		return model.StatusUp
	}
	return model.StatusDown
}

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
	"bytes"
	"net"
	"strings"
	"time"

	"github.com/ligato/cn-infra/logging"
	"github.com/patrickmn/go-cache"

	"github.com/contiv/netsync/plugins/netlinksource"
	"github.com/contiv/netsync/plugins/neighsync/model"
	"github.com/contiv/netsync/plugins/statesync"
)

const (
	// by default, link-local policy of an interface is re-read after 30 seconds
	defaultLinkLocalCacheTTL = 30 * time.Second
)

var (
	zeroMAC      = net.HardwareAddr{0, 0, 0, 0, 0, 0}
	broadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
)

// NeighFilter decides which kernel neighbor events are published and
// translates them into neighbor entries.
type NeighFilter struct {
	log   logging.Logger
	store statesync.Store

	ignoredPrefixes []string

	// interface name -> bool
	linkLocal *cache.Cache

	dualToR       bool
	dualToRLoaded bool
}

// NewNeighFilter returns a filter reading the deployment policy from <store>.
func NewNeighFilter(log logging.Logger, store statesync.Store, ignoredPrefixes []string,
	linkLocalTTL time.Duration) *NeighFilter {

	if linkLocalTTL <= 0 {
		linkLocalTTL = defaultLinkLocalCacheTTL
	}
	return &NeighFilter{
		log:             log,
		store:           store,
		ignoredPrefixes: ignoredPrefixes,
		linkLocal:       cache.New(linkLocalTTL, 2*linkLocalTTL),
	}
}

// HandleEvent combines Accept and Normalize.
func (f *NeighFilter) HandleEvent(ev *netlinksource.Event) (statesync.PendingEntry, bool) {
	if !f.Accept(ev) {
		return statesync.PendingEntry{}, false
	}
	entry, isDelete := f.Normalize(ev)
	if isDelete {
		return statesync.NewDeleteEntry(entry), true
	}
	return statesync.NewSetEntry(entry), true
}

// Accept returns true if the neighbor event should be published.
func (f *NeighFilter) Accept(ev *netlinksource.Event) bool {
	if ev.Type != netlinksource.ObjectNeigh || ev.Neigh == nil {
		return false
	}
	neigh := ev.Neigh
	if neigh.Family != netlinksource.FamilyIPv4 && neigh.Family != netlinksource.FamilyIPv6 {
		return false
	}
	if neigh.IP == nil || f.isIgnoredInterface(neigh.Interface) {
		return false
	}

	if neigh.Family == netlinksource.FamilyIPv6 {
		if neigh.IP.IsLinkLocalMulticast() {
			return false
		}
		if neigh.IP.IsLinkLocalUnicast() && !f.isLinkLocalEnabled(neigh.Interface) {
			f.log.WithFields(logging.Fields{
				"interface": neigh.Interface,
				"ip":        neigh.IP,
			}).Debug("Ignoring IPv6 link-local neighbor")
			return false
		}
	} else if neigh.IP.IsLinkLocalUnicast() && f.isDualToR() {
		return false
	}

	if ev.Kind == netlinksource.EventDelete {
		return true
	}
	if neigh.State&netlinksource.NudNoArp != 0 && neigh.Flags&netlinksource.NtfExtLearned == 0 {
		return false
	}
	if !f.isDualToR() && !IsDelete(ev.Kind, neigh.State, false) && !validMAC(neigh.HardwareAddr) {
		f.log.WithFields(logging.Fields{
			"interface": neigh.Interface,
			"ip":        neigh.IP,
			"mac":       neigh.HardwareAddr,
		}).Debug("Ignoring neighbor with invalid MAC")
		return false
	}
	return true
}

// Normalize translates an accepted event into the neighbor entry.
func (f *NeighFilter) Normalize(ev *netlinksource.Event) (entry *model.NeighborEntry, isDelete bool) {
	neigh := ev.Neigh
	dualToR := f.isDualToR()
	isDelete = IsDelete(ev.Kind, neigh.State, dualToR)

	mac := neigh.HardwareAddr
	if dualToR && !isDelete && unresolved(neigh.State) {
		// keep the entry visible, the MAC is not known
		mac = zeroMAC
	}
	entry = &model.NeighborEntry{
		Interface:         neigh.Interface,
		Ip:                neigh.IP.String(),
		Family:            familyName(neigh.Family),
		State:             netlinksource.NudStateName(neigh.State),
		ExternallyLearned: neigh.Flags&netlinksource.NtfExtLearned != 0,
	}
	if len(mac) > 0 {
		entry.Mac = mac.String()
	}
	return entry, isDelete
}

// IsDelete classifies the event: kernel deletes are always deletes,
// notifications and dump replies are deletes only for unresolved entries
// outside of a dual-ToR deployment.
func IsDelete(kind netlinksource.EventKind, state int, dualToR bool) bool {
	if kind == netlinksource.EventDelete {
		return true
	}
	return unresolved(state) && !dualToR
}

// InvalidateLinkLocal drops the cached link-local policy of the interface,
// the next event re-reads it from the store.
func (f *NeighFilter) InvalidateLinkLocal(ifName string) {
	f.linkLocal.Delete(ifName)
}

// RefreshPolicy re-reads the deployment type and drops all cached
// per-interface policy.
func (f *NeighFilter) RefreshPolicy() error {
	f.linkLocal.Flush()
	dualToR, err := f.store.IsDualToR()
	if err != nil {
		return err
	}
	if dualToR != f.dualToR || !f.dualToRLoaded {
		f.log.Infof("Dual-ToR deployment: %t", dualToR)
	}
	f.dualToR = dualToR
	f.dualToRLoaded = true
	return nil
}

func (f *NeighFilter) isDualToR() bool {
	if !f.dualToRLoaded {
		if err := f.RefreshPolicy(); err != nil {
			// the last known mode is used until the next RefreshPolicy
			f.log.Warnf("Failed to read device metadata: %v", err)
			f.dualToRLoaded = true
		}
	}
	return f.dualToR
}

func (f *NeighFilter) isLinkLocalEnabled(ifName string) bool {
	if enabled, found := f.linkLocal.Get(ifName); found {
		return enabled.(bool)
	}
	enabled, err := f.store.IsLinkLocalEnabled(ifName)
	if err != nil {
		// not cached, retried with the next event
		f.log.Warnf("Failed to read link-local configuration of %s: %v", ifName, err)
		return false
	}
	f.linkLocal.Set(ifName, enabled, cache.DefaultExpiration)
	return enabled
}

func (f *NeighFilter) isIgnoredInterface(ifName string) bool {
	for _, prefix := range f.ignoredPrefixes {
		if strings.HasPrefix(ifName, prefix) {
			return true
		}
	}
	return false
}

func unresolved(state int) bool {
	return state&(netlinksource.NudIncomplete|netlinksource.NudFailed) != 0
}

func validMAC(mac net.HardwareAddr) bool {
	return len(mac) > 0 && !bytes.Equal(mac, zeroMAC) && !bytes.Equal(mac, broadcastMAC)
}

func familyName(family int) string {
	if family == netlinksource.FamilyIPv6 {
		return model.FamilyIPv6
	}
	return model.FamilyIPv4
}

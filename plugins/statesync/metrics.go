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
	"sync/atomic"

	"github.com/ligato/cn-infra/logging"
	prometheusplugin "github.com/ligato/cn-infra/rpc/prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultStatsPath  = "/stats" // path where the gauges are exposed
	nodeLabel         = "node"
	synchronizerLabel = "synchronizer"

	eventsMetric       = "events"
	filteredMetric     = "filteredEvents"
	writtenMetric      = "writtenObjects"
	storeErrMetric     = "storeErrors"
	overrunsMetric     = "overruns"
	reconcilesMetric   = "reconciles"
	bufferedMetric     = "bufferedChanges"
	publishedMetric    = "publishedObjects"
	recoveriesMetric   = "stateFileRecoveries"
	stateFileErrMetric = "stateFileErrors"
)

// Stats are counters of a synchronizer updated by its worker.
type Stats struct {
	Events          uint64
	Filtered        uint64
	Written         uint64
	StoreErrors     uint64
	Overruns        uint64
	Reconciles      uint64
	StateFileErrors uint64
}

// Snapshot returns a consistent copy of the counters.
func (s *Stats) Snapshot() Stats {
	return Stats{
		Events:          atomic.LoadUint64(&s.Events),
		Filtered:        atomic.LoadUint64(&s.Filtered),
		Written:         atomic.LoadUint64(&s.Written),
		StoreErrors:     atomic.LoadUint64(&s.StoreErrors),
		Overruns:        atomic.LoadUint64(&s.Overruns),
		Reconciles:      atomic.LoadUint64(&s.Reconciles),
		StateFileErrors: atomic.LoadUint64(&s.StateFileErrors),
	}
}

// StatsCollector exports statistics of synchronizers as Prometheus gauges.
type StatsCollector struct {
	Log          logging.Logger
	ServiceLabel string
	Prometheus   prometheusplugin.API

	// Path of the Prometheus registry, "/stats" if empty.
	Path string

	gaugeVecs map[string]*prometheus.GaugeVec
}

// nameAndHelp defines the type for Prometheus metric metadata
type nameAndHelp struct {
	name string
	help string
}

// Init registers the gauge vectors.
func (sc *StatsCollector) Init() error {
	sc.gaugeVecs = make(map[string]*prometheus.GaugeVec)
	if sc.Path == "" {
		sc.Path = defaultStatsPath
	}

	err := sc.Prometheus.NewRegistry(sc.Path,
		promhttp.HandlerOpts{ErrorHandling: promhttp.ContinueOnError, ErrorLog: sc.Log})
	if err != nil {
		sc.Log.Errorf("failed to create Prometheus registry for path '%s', error %s", sc.Path, err)
		return err
	}

	gaugeVecsMetadata := []nameAndHelp{
		{eventsMetric, "Number of kernel events received"},
		{filteredMetric, "Number of kernel events dropped by the filter"},
		{writtenMetric, "Number of objects written into the state store"},
		{storeErrMetric, "Number of failed state store batches"},
		{overrunsMetric, "Number of netlink receive buffer overruns"},
		{reconcilesMetric, "Number of warm restart reconciliations"},
		{bufferedMetric, "Number of changes buffered during the initial synchronization"},
		{publishedMetric, "Number of objects currently published"},
		{recoveriesMetric, "Number of restart state recoveries from a backup"},
		{stateFileErrMetric, "Number of failed restart state saves"},
	}

	for _, nh := range gaugeVecsMetadata {
		sc.gaugeVecs[nh.name] = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        nh.name,
			Help:        nh.help,
			ConstLabels: prometheus.Labels{nodeLabel: sc.ServiceLabel},
		}, []string{synchronizerLabel})

		err = sc.Prometheus.Register(sc.Path, sc.gaugeVecs[nh.name])
		if err != nil {
			sc.Log.Errorf("failed to register metric '%s', error %s", nh.name, err)
			return err
		}
	}
	return nil
}

// Update sets the gauges of the given synchronizer.
func (sc *StatsCollector) Update(status EngineStatus) {
	values := map[string]uint64{
		eventsMetric:       status.Stats.Events,
		filteredMetric:     status.Stats.Filtered,
		writtenMetric:      status.Stats.Written,
		storeErrMetric:     status.Stats.StoreErrors,
		overrunsMetric:     status.Stats.Overruns,
		reconcilesMetric:   status.Stats.Reconciles,
		stateFileErrMetric: status.Stats.StateFileErrors,
		bufferedMetric:     uint64(status.Pending),
		publishedMetric:    uint64(status.Published),
		recoveriesMetric:   status.StateFileRecoveries,
	}
	for name, value := range values {
		vec, found := sc.gaugeVecs[name]
		if !found {
			continue
		}
		gauge, err := vec.GetMetricWith(prometheus.Labels{synchronizerLabel: status.Name})
		if err != nil {
			sc.Log.Error(err)
			continue
		}
		gauge.Set(float64(value))
	}
}

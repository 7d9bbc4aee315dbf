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
	"time"

	"github.com/contiv/netsync/plugins/netlinksource"
)

const (
	// by default, the worker loops on the blocking receive
	defaultIOStyle = IOBlocking

	// by default, warm restart is enabled
	defaultWarmRestartEnabled = true

	// by default, the restart state is kept in /var/lib/netsync
	defaultStateDir = "/var/lib/netsync"

	// by default, consumer declaring the restore is "swss"
	defaultRestoreAppName = "swss"
)

// Config is the configuration shared by the synchronizer plugins.
type Config struct {
	// source
	IOStyle           IOStyle       `json:"io-style"`
	ReceiveBufferSize int           `json:"receive-buffer-size"`
	ReceiveTimeout    time.Duration `json:"receive-timeout"`
	IfNameCacheSize   int           `json:"ifname-cache-size"`

	// warm restart
	WarmRestartEnabled   bool          `json:"warm-restart-enabled"`
	RestoreTimeout       time.Duration `json:"restore-timeout"`
	RestoreCheckInterval time.Duration `json:"restore-check-interval"`
	RestoreAppName       string        `json:"restore-app-name"`
	ReconcileTimeout     time.Duration `json:"reconcile-timeout"`
	TimeoutPolicy        TimeoutPolicy `json:"timeout-policy"`
	ReconcileDeleteStale bool          `json:"reconcile-delete-stale"`
	SentinelInterface    string        `json:"sentinel-interface"`

	// engine
	RetryInterval time.Duration `json:"retry-interval"`
	SyncInterval  time.Duration `json:"sync-interval"`
	DumpTimeout   time.Duration `json:"dump-timeout"`

	// restart state file, disabled if empty
	StateFile            string        `json:"state-file"`
	StateMaxBackups      int           `json:"state-max-backups"`
	StateBackupRetention time.Duration `json:"state-backup-retention"`
}

// DefaultConfig returns the configuration used when no file is provided.
// <name> selects the restart state file.
func DefaultConfig(name string) Config {
	return Config{
		IOStyle:              defaultIOStyle,
		ReceiveBufferSize:    netlinksource.DefaultReceiveBufferSize,
		ReceiveTimeout:       netlinksource.DefaultReceiveTimeout,
		IfNameCacheSize:      netlinksource.DefaultIfNameCacheSize,
		WarmRestartEnabled:   defaultWarmRestartEnabled,
		RestoreTimeout:       defaultRestoreTimeout,
		RestoreCheckInterval: defaultRestoreCheckInterval,
		RestoreAppName:       defaultRestoreAppName,
		ReconcileTimeout:     defaultReconcileTimeout,
		TimeoutPolicy:        TimeoutReconcile,
		SentinelInterface:    DefaultSentinelInterface,
		RetryInterval:        defaultRetryInterval,
		SyncInterval:         defaultSyncInterval,
		DumpTimeout:          defaultDumpTimeout,
		StateFile:            defaultStateDir + "/" + name + ".json",
		StateMaxBackups:      DefaultMaxBackups,
		StateBackupRetention: defaultStateBackupRetention,
	}
}

// SocketConfig returns the configuration of the netlink socket.
func (c Config) SocketConfig(groups ...netlinksource.ObjectType) netlinksource.SocketConfig {
	return netlinksource.SocketConfig{
		ReceiveBufferSize: c.ReceiveBufferSize,
		ReceiveTimeout:    c.ReceiveTimeout,
		Groups:            groups,
	}
}

// EngineConfig returns the configuration of the engine, which requests
// <dumps> at startup.
func (c Config) EngineConfig(dumps ...netlinksource.ObjectType) EngineConfig {
	return EngineConfig{
		IOStyle:       c.IOStyle,
		TimeoutPolicy: c.TimeoutPolicy,
		Coordinator: CoordinatorConfig{
			WarmRestartEnabled:   c.WarmRestartEnabled,
			RestoreTimeout:       c.RestoreTimeout,
			RestoreCheckInterval: c.RestoreCheckInterval,
			DeleteStale:          c.ReconcileDeleteStale,
		},
		SentinelInterface:    c.SentinelInterface,
		ReconcileTimeout:     c.ReconcileTimeout,
		RetryInterval:        c.RetryInterval,
		SyncInterval:         c.SyncInterval,
		DumpTimeout:          c.DumpTimeout,
		StateBackupRetention: c.StateBackupRetention,
		Dumps:                dumps,
	}
}

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

// Package statesync mirrors kernel objects into the state store and
// coordinates the initial synchronization after a warm restart.
//
// The Engine runs a single worker per synchronized table. Events received
// from the netlink source pass through an EventHandler (filter + normalization)
// and are written by the BatchWriter, at most one set and one delete batch
// per received batch of events. After a warm restart the Coordinator buffers
// the events of the initial dump instead, until the end of the initial
// dump is detected by the EOIUDetector (or a timeout expires), and then
// flushes the buffered changes in one reconciliation.
//
// Objects published by the engine are additionally persisted into
// a RestartStateFile, which survives a restart of the process even if
// the state store is not available yet.
package statesync

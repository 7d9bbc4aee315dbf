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

// Package portsync implements the plugin publishing the state of the
// front-panel ports from the kernel link table.
//
// Ports are published under the agent prefix with key port/<name>.
// After the initial synchronization the plugin writes the marker
// state/port_init_done, the consumers wait for it before they start using
// the port states. During a warm restart the changes are buffered until
// the sentinel interface reports the end of the initial update.
package portsync

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

// Package neighsync implements the plugin mirroring the kernel neighbor
// (ARP/NDP) table into the state database.
//
// Neighbor notifications are received from the netlink socket, filtered by
// NeighFilter according to the deployment policy (dual-ToR, per-interface
// IPv6 link-local option) and written in batches. After a warm restart the
// changes of the initial dump are buffered and reconciled with the previously
// published entries once the end of the initial link dump is detected.
package neighsync

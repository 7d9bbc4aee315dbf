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

package model

import (
	"testing"

	"github.com/onsi/gomega"
)

func TestPortKey(t *testing.T) {
	gomega.RegisterTestingT(t)

	port := &PortState{Name: "Ethernet8"}
	gomega.Expect(port.GetKey()).To(gomega.Equal("port/Ethernet8"))

	name, ok := ParseKey(port.GetKey())
	gomega.Expect(ok).To(gomega.BeTrue())
	gomega.Expect(name).To(gomega.Equal("Ethernet8"))

	_, ok = ParseKey("port/")
	gomega.Expect(ok).To(gomega.BeFalse())
	_, ok = ParseKey("neigh/Ethernet0/10.0.0.1")
	gomega.Expect(ok).To(gomega.BeFalse())

	// the marker is outside of the port keys
	_, ok = ParseKey((&PortInitDone{}).GetKey())
	gomega.Expect(ok).To(gomega.BeFalse())
}

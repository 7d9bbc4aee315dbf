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
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ligato/cn-infra/logging/logrus"
	. "github.com/onsi/gomega"

	"github.com/contiv/netsync/plugins/portsync/model"
	"github.com/contiv/netsync/plugins/statesync"
)

func saveTestState(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "portsync.json")
	stateFile := statesync.NewRestartStateFile(logrus.DefaultLogger(), path, 2, func() statesync.Object {
		return &model.PortState{}
	})
	port := &model.PortState{Name: "Ethernet0", OperStatus: model.StatusUp}
	Expect(stateFile.Save(map[string]statesync.Object{port.GetKey(): port})).To(Succeed())
	return path
}

func TestShow(t *testing.T) {
	RegisterTestingT(t)
	path := saveTestState(t)

	out := &bytes.Buffer{}
	Expect(show(out, path, true)).To(Succeed())
	Expect(out.String()).To(ContainSubstring("objects:  1"))
	Expect(out.String()).To(ContainSubstring("port/Ethernet0"))
	Expect(out.String()).To(ContainSubstring(`"oper_status":"up"`))

	Expect(show(out, filepath.Join(t.TempDir(), "missing.json"), false)).ToNot(Succeed())
}

func TestVerify(t *testing.T) {
	RegisterTestingT(t)
	path := saveTestState(t)

	out := &bytes.Buffer{}
	valid, err := verify(out, path)
	Expect(err).To(BeNil())
	Expect(valid).To(BeTrue())
	Expect(out.String()).To(ContainSubstring("ok"))

	Expect(os.WriteFile(path, []byte("{broken"), 0644)).To(Succeed())
	out.Reset()
	valid, err = verify(out, path)
	Expect(err).To(BeNil())
	Expect(valid).To(BeFalse())
	Expect(out.String()).To(ContainSubstring("invalid"))
}

func TestCleanup(t *testing.T) {
	RegisterTestingT(t)
	path := saveTestState(t)
	old := path + ".1000.bak"
	Expect(os.WriteFile(old, []byte("{}"), 0644)).To(Succeed())

	removed, err := cleanup(path, time.Hour)
	Expect(err).To(BeNil())
	Expect(removed).To(Equal(1))
	_, err = os.Stat(old)
	Expect(os.IsNotExist(err)).To(BeTrue())
	_, err = os.Stat(path)
	Expect(err).To(BeNil())
}

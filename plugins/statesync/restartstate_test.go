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

package statesync_test

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/ligato/cn-infra/logging/logrus"
	. "github.com/onsi/gomega"

	"github.com/contiv/netsync/plugins/statesync"
)

func newTestStateFile(t *testing.T) *statesync.RestartStateFile {
	path := filepath.Join(t.TempDir(), "state", "neighsync.json")
	return statesync.NewRestartStateFile(logrus.DefaultLogger(), path, 2, newTestObject)
}

func TestStateFileSaveAndLoad(t *testing.T) {
	RegisterTestingT(t)
	stateFile := newTestStateFile(t)

	objects, found, err := stateFile.Load()
	Expect(err).To(BeNil())
	Expect(found).To(BeFalse())
	Expect(objects).To(BeNil())

	Expect(stateFile.Save(map[string]statesync.Object{
		"a": obj("a", "1"),
		"b": obj("b", "2"),
	})).To(Succeed())

	objects, found, err = stateFile.Load()
	Expect(err).To(BeNil())
	Expect(found).To(BeTrue())
	Expect(objects).To(HaveLen(2))
	Expect(valueOf(objects["b"])).To(Equal("2"))
	Expect(stateFile.RecoveryCount()).To(BeZero())

	record, err := statesync.ReadRestartStateRecord(stateFile.Path())
	Expect(err).To(BeNil())
	Expect(record.Version).To(Equal(statesync.RestartStateVersion))
	Expect(record.Objects).To(HaveKey("a"))

	// no temporary file left behind
	_, err = os.Stat(stateFile.Path() + ".tmp")
	Expect(os.IsNotExist(err)).To(BeTrue())
}

func TestStateFileRotatesAndPrunesBackups(t *testing.T) {
	RegisterTestingT(t)
	stateFile := newTestStateFile(t)

	for i := 0; i < 5; i++ {
		Expect(stateFile.Save(map[string]statesync.Object{"a": obj("a", strconv.Itoa(i))})).To(Succeed())
	}
	backups, err := stateFile.Backups()
	Expect(err).To(BeNil())
	Expect(backups).To(HaveLen(2))

	// newest backup holds the previous version
	record, err := statesync.ReadRestartStateRecord(backups[0])
	Expect(err).To(BeNil())
	Expect(string(record.Objects["a"])).To(ContainSubstring(`"3"`))
}

func TestStateFileRecoversFromBackup(t *testing.T) {
	RegisterTestingT(t)
	stateFile := newTestStateFile(t)

	Expect(stateFile.Save(map[string]statesync.Object{"a": obj("a", "1")})).To(Succeed())
	Expect(stateFile.Save(map[string]statesync.Object{"a": obj("a", "2")})).To(Succeed())
	Expect(os.WriteFile(stateFile.Path(), []byte("{broken"), 0644)).To(Succeed())

	objects, found, err := stateFile.Load()
	Expect(err).To(BeNil())
	Expect(found).To(BeTrue())
	Expect(valueOf(objects["a"])).To(Equal("1"))
	Expect(stateFile.RecoveryCount()).To(BeEquivalentTo(1))
}

func TestStateFileCorruptedWithoutBackups(t *testing.T) {
	RegisterTestingT(t)
	stateFile := newTestStateFile(t)
	Expect(os.MkdirAll(filepath.Dir(stateFile.Path()), 0755)).To(Succeed())
	Expect(os.WriteFile(stateFile.Path(), []byte("not json"), 0644)).To(Succeed())

	objects, found, err := stateFile.Load()
	Expect(err).To(BeNil())
	Expect(found).To(BeFalse())
	Expect(objects).To(BeNil())
	Expect(stateFile.RecoveryCount()).To(BeZero())
}

func TestStateFileVersionMismatch(t *testing.T) {
	RegisterTestingT(t)
	stateFile := newTestStateFile(t)
	Expect(os.MkdirAll(filepath.Dir(stateFile.Path()), 0755)).To(Succeed())
	Expect(os.WriteFile(stateFile.Path(), []byte(`{"version": 7, "objects": {}}`), 0644)).To(Succeed())

	_, err := statesync.ReadRestartStateRecord(stateFile.Path())
	Expect(err).ToNot(BeNil())
	Expect(err.Error()).To(ContainSubstring("version 7"))

	_, found, err := stateFile.Load()
	Expect(err).To(BeNil())
	Expect(found).To(BeFalse())
}

func TestStateFileKeyMismatch(t *testing.T) {
	RegisterTestingT(t)
	stateFile := newTestStateFile(t)
	Expect(os.MkdirAll(filepath.Dir(stateFile.Path()), 0755)).To(Succeed())
	Expect(os.WriteFile(stateFile.Path(),
		[]byte(`{"version": 1, "objects": {"a": {"key": "b"}}}`), 0644)).To(Succeed())

	_, found, err := stateFile.Load()
	Expect(err).To(BeNil())
	Expect(found).To(BeFalse())
}

func TestStateFileCleanupStale(t *testing.T) {
	RegisterTestingT(t)
	stateFile := newTestStateFile(t)
	Expect(stateFile.Save(map[string]statesync.Object{"a": obj("a", "1")})).To(Succeed())
	Expect(stateFile.Save(map[string]statesync.Object{"a": obj("a", "2")})).To(Succeed())

	old := time.Now().Add(-48 * time.Hour).UnixNano()
	oldBackup := stateFile.Path() + "." + strconv.FormatInt(old, 10) + ".bak"
	Expect(os.WriteFile(oldBackup, []byte("{}"), 0644)).To(Succeed())

	removed, err := stateFile.CleanupStale(24 * time.Hour)
	Expect(err).To(BeNil())
	Expect(removed).To(Equal(1))
	_, err = os.Stat(oldBackup)
	Expect(os.IsNotExist(err)).To(BeTrue())

	backups, err := stateFile.Backups()
	Expect(err).To(BeNil())
	Expect(backups).To(HaveLen(1))
	_, err = os.Stat(stateFile.Path())
	Expect(err).To(BeNil())
}

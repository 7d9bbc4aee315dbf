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
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ligato/cn-infra/logging"
	"github.com/pkg/errors"
)

const (
	// RestartStateVersion is the version of the restart state file format.
	RestartStateVersion = 1

	// DefaultMaxBackups is the number of rotated backups kept next to the live file.
	DefaultMaxBackups = 3

	backupSuffix = ".bak"
	tmpSuffix    = ".tmp"
)

// RestartStateRecord is the content of a restart state file.
type RestartStateRecord struct {
	Version int                        `json:"version"`
	SavedAt time.Time                  `json:"saved_at"`
	Objects map[string]json.RawMessage `json:"objects"`
}

// RestartStateFile persists the published objects into a file with rotated
// backups. A corrupted live file is recovered from the newest valid backup.
type RestartStateFile struct {
	log        logging.Logger
	path       string
	maxBackups int
	alloc      ObjectAllocator

	recoveries uint64
}

// NewRestartStateFile returns RestartStateFile stored at <path>.
// <alloc> creates empty objects for unmarshalling; it may be nil if
// the file is used only for Save/Inspect/CleanupStale.
func NewRestartStateFile(log logging.Logger, path string, maxBackups int, alloc ObjectAllocator) *RestartStateFile {
	if maxBackups < 0 {
		maxBackups = DefaultMaxBackups
	}
	return &RestartStateFile{
		log:        log,
		path:       path,
		maxBackups: maxBackups,
		alloc:      alloc,
	}
}

// Path returns location of the live file.
func (f *RestartStateFile) Path() string {
	return f.path
}

// RecoveryCount returns how many times the state was recovered from a backup.
func (f *RestartStateFile) RecoveryCount() uint64 {
	return atomic.LoadUint64(&f.recoveries)
}

// Save rotates the live file into a timestamped backup and atomically
// replaces it with the given objects.
func (f *RestartStateFile) Save(objects map[string]Object) error {
	record := RestartStateRecord{
		Version: RestartStateVersion,
		SavedAt: time.Now().UTC(),
		Objects: make(map[string]json.RawMessage, len(objects)),
	}
	for key, obj := range objects {
		data, err := json.Marshal(obj)
		if err != nil {
			return errors.Wrapf(err, "failed to marshal object %s", key)
		}
		record.Objects[key] = data
	}
	data, err := json.MarshalIndent(&record, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal restart state")
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return errors.Wrap(err, "failed to create restart state directory")
	}
	if err := f.rotate(); err != nil {
		// the previous state stays in place, only the backup is missing
		f.log.Warnf("Failed to rotate restart state file: %v", err)
	}
	if err := writeFileSync(f.path+tmpSuffix, data); err != nil {
		return err
	}
	if err := os.Rename(f.path+tmpSuffix, f.path); err != nil {
		return errors.Wrap(err, "failed to replace restart state file")
	}
	if err := f.prune(); err != nil {
		f.log.Warnf("Failed to prune restart state backups: %v", err)
	}
	return nil
}

// rotate links (or copies, if links are not supported) the live file
// into a new backup.
func (f *RestartStateFile) rotate() error {
	if _, err := os.Stat(f.path); os.IsNotExist(err) {
		return nil
	}
	stamp := time.Now().UnixNano()
	backup := f.backupPath(stamp)
	for {
		if _, err := os.Lstat(backup); os.IsNotExist(err) {
			break
		}
		stamp++
		backup = f.backupPath(stamp)
	}
	if err := os.Link(f.path, backup); err == nil {
		return nil
	}
	return copyFile(f.path, backup)
}

func (f *RestartStateFile) backupPath(stamp int64) string {
	return f.path + "." + strconv.FormatInt(stamp, 10) + backupSuffix
}

// Backups returns paths of the backups, newest first.
func (f *RestartStateFile) Backups() ([]string, error) {
	matches, err := filepath.Glob(f.path + ".*" + backupSuffix)
	if err != nil {
		return nil, err
	}
	type backup struct {
		path  string
		stamp int64
	}
	var backups []backup
	for _, match := range matches {
		stamp, ok := f.backupStamp(match)
		if !ok {
			continue
		}
		backups = append(backups, backup{path: match, stamp: stamp})
	}
	sort.Slice(backups, func(i, j int) bool {
		return backups[i].stamp > backups[j].stamp
	})
	paths := make([]string, 0, len(backups))
	for _, b := range backups {
		paths = append(paths, b.path)
	}
	return paths, nil
}

func (f *RestartStateFile) backupStamp(path string) (int64, bool) {
	stamp := strings.TrimSuffix(strings.TrimPrefix(path, f.path+"."), backupSuffix)
	value, err := strconv.ParseInt(stamp, 10, 64)
	return value, err == nil
}

func (f *RestartStateFile) prune() error {
	backups, err := f.Backups()
	if err != nil {
		return err
	}
	for i := f.maxBackups; i < len(backups); i++ {
		if err := os.Remove(backups[i]); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// CleanupStale removes backups older than <maxAge>. The live file is never removed.
func (f *RestartStateFile) CleanupStale(maxAge time.Duration) (removed int, err error) {
	backups, err := f.Backups()
	if err != nil {
		return 0, err
	}
	threshold := time.Now().Add(-maxAge).UnixNano()
	for _, backup := range backups {
		stamp, _ := f.backupStamp(backup)
		if stamp >= threshold {
			continue
		}
		if err := os.Remove(backup); err != nil && !os.IsNotExist(err) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Load reads the saved objects. <found> is false if there is no usable state:
// the live file does not exist, or it is corrupted and no valid backup exists.
func (f *RestartStateFile) Load() (objects map[string]Object, found bool, err error) {
	if f.alloc == nil {
		return nil, false, errors.New("restart state file opened without object allocator")
	}
	objects, err = f.loadFrom(f.path)
	if err == nil {
		return objects, true, nil
	}
	if os.IsNotExist(errors.Cause(err)) {
		return nil, false, nil
	}
	f.log.Warnf("Restart state file %s is not valid (%v), trying backups", f.path, err)

	backups, listErr := f.Backups()
	if listErr != nil {
		f.log.Warnf("Failed to list restart state backups: %v", listErr)
		return nil, false, nil
	}
	for _, backup := range backups {
		objects, err := f.loadFrom(backup)
		if err != nil {
			f.log.Warnf("Restart state backup %s is not valid: %v", backup, err)
			continue
		}
		atomic.AddUint64(&f.recoveries, 1)
		f.log.Infof("Restart state recovered from backup %s", backup)
		return objects, true, nil
	}
	return nil, false, nil
}

func (f *RestartStateFile) loadFrom(path string) (map[string]Object, error) {
	record, err := ReadRestartStateRecord(path)
	if err != nil {
		return nil, err
	}
	objects := make(map[string]Object, len(record.Objects))
	for key, data := range record.Objects {
		obj := f.alloc()
		if err := json.Unmarshal(data, obj); err != nil {
			return nil, errors.Wrapf(err, "invalid object %s", key)
		}
		if obj.GetKey() != key {
			return nil, errors.Errorf("object stored under %s has key %s", key, obj.GetKey())
		}
		objects[key] = obj
	}
	return objects, nil
}

// ReadRestartStateRecord reads and validates the record stored at <path>
// without decoding the objects.
func ReadRestartStateRecord(path string) (*RestartStateRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	record := &RestartStateRecord{}
	if err := json.Unmarshal(data, record); err != nil {
		return nil, errors.Wrap(err, "malformed restart state")
	}
	if record.Version != RestartStateVersion {
		return nil, errors.Errorf("unsupported restart state version %d", record.Version)
	}
	return record, nil
}

func writeFileSync(path string, data []byte) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Wrap(err, "failed to create restart state file")
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return errors.Wrap(err, "failed to write restart state file")
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return errors.Wrap(err, "failed to sync restart state file")
	}
	return file.Close()
}

func copyFile(from, to string) error {
	src, err := os.Open(from)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := os.OpenFile(to, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Sync(); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	infralog "github.com/ligato/cn-infra/logging/logrus"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/contiv/netsync/plugins/statesync"
)

const defaultMaxAge = 24 * time.Hour

var (
	showObjects bool
	maxAge      time.Duration
)

var cmdShow = &cobra.Command{
	Use:   "show state-file",
	Short: "Print the content of a restart state file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := show(os.Stdout, args[0], showObjects); err != nil {
			log.Fatal(err)
		}
	},
}

var cmdVerify = &cobra.Command{
	Use:   "verify state-file",
	Short: "Validate a restart state file and its backups",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		valid, err := verify(os.Stdout, args[0])
		if err != nil {
			log.Fatal(err)
		}
		if !valid {
			os.Exit(2)
		}
	},
}

var cmdCleanup = &cobra.Command{
	Use:   "cleanup state-file",
	Short: "Remove backups of a restart state file older than --max-age",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		removed, err := cleanup(args[0], maxAge)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("%d backups removed\n", removed)
	},
}

func init() {
	cmdShow.Flags().BoolVarP(&showObjects, "objects", "o", false, "print the stored objects")
	cmdCleanup.Flags().DurationVar(&maxAge, "max-age", defaultMaxAge, "age of the oldest backup kept")
}

func show(w io.Writer, path string, withObjects bool) error {
	record, err := statesync.ReadRestartStateRecord(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", path)
	}
	fmt.Fprintf(w, "file:     %s\n", path)
	fmt.Fprintf(w, "version:  %d\n", record.Version)
	fmt.Fprintf(w, "saved at: %s\n", record.SavedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "objects:  %d\n", len(record.Objects))

	keys := make([]string, 0, len(record.Objects))
	for key := range record.Objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if !withObjects {
			fmt.Fprintf(w, "  %s\n", key)
			continue
		}
		value := &bytes.Buffer{}
		if err := json.Compact(value, record.Objects[key]); err != nil {
			return errors.Wrapf(err, "invalid object %s", key)
		}
		fmt.Fprintf(w, "  %s %s\n", key, value)
	}
	return nil
}

// verify reports the validity of the live file and of all backups.
// <valid> is false if the daemon would not be able to load any of them.
func verify(w io.Writer, path string) (valid bool, err error) {
	stateFile := statesync.NewRestartStateFile(infralog.DefaultLogger(), path, statesync.DefaultMaxBackups, nil)
	backups, err := stateFile.Backups()
	if err != nil {
		return false, errors.Wrapf(err, "failed to list backups of %s", path)
	}

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tSTATUS\tOBJECTS\tSAVED AT")
	for _, file := range append([]string{path}, backups...) {
		record, err := statesync.ReadRestartStateRecord(file)
		if err != nil {
			log.WithField("file", file).Debug(err)
			fmt.Fprintf(tw, "%s\tinvalid: %v\t-\t-\n", file, errors.Cause(err))
			continue
		}
		valid = true
		fmt.Fprintf(tw, "%s\tok\t%d\t%s\n", file, len(record.Objects), record.SavedAt.Format(time.RFC3339))
	}
	return valid, tw.Flush()
}

func cleanup(path string, maxAge time.Duration) (int, error) {
	stateFile := statesync.NewRestartStateFile(infralog.DefaultLogger(), path, statesync.DefaultMaxBackups, nil)
	removed, err := stateFile.CleanupStale(maxAge)
	if err != nil {
		return removed, errors.Wrapf(err, "failed to clean up backups of %s", path)
	}
	log.WithFields(log.Fields{"file": path, "removed": removed}).Debug("Backups cleaned up")
	return removed, nil
}

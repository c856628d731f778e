// Copyright 2026 The OpenSeed Authors
// SPDX-License-Identifier: Apache-2.0

// Package runlock persists the run record of a supervised creature.
// The lock file's existence plus a liveness check of the recorded pid
// is the sole "is this creature running" predicate; there is no
// separate registry of running instances across process restarts.
package runlock

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// Record identifies one running supervisor and its creature.
type Record struct {
	HostPort     int       `json:"host_port"`
	CreaturePort int       `json:"creature_port"`
	PID          int       `json:"pid"`
	Name         string    `json:"name"`
	StartedAt    time.Time `json:"started_at"`
}

// Write persists the run record at path, atomically. Parent
// directories are created as needed.
func Write(path string, record Record) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("runlock: creating lock directory: %w", err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("runlock: marshaling record: %w", err)
	}
	data = append(data, '\n')

	temporaryPath := path + ".tmp"
	if err := os.WriteFile(temporaryPath, data, 0644); err != nil {
		return fmt.Errorf("runlock: writing lock file: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("runlock: renaming lock file into place: %w", err)
	}
	return nil
}

// Read parses the run record at path. The error wraps os.ErrNotExist
// when no lock file exists.
func Read(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return Record{}, fmt.Errorf("runlock: parsing lock file %s: %w", path, err)
	}
	return record, nil
}

// IsRunning reads the lock file and probes the recorded pid with
// signal 0. Returns the record and true only when the file exists and
// the process is alive; a lock file left behind by a dead supervisor
// reads as not running.
func IsRunning(path string) (Record, bool) {
	record, err := Read(path)
	if err != nil {
		return Record{}, false
	}
	if record.PID <= 0 {
		return Record{}, false
	}
	if err := unix.Kill(record.PID, 0); err != nil {
		// ESRCH: no such process. EPERM means the pid exists but
		// belongs to another user, still alive.
		if err != unix.EPERM {
			return Record{}, false
		}
	}
	return record, true
}

// Remove deletes the lock file. Missing files are not an error: the
// predicate is already "not running".
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("runlock: removing lock file: %w", err)
	}
	return nil
}

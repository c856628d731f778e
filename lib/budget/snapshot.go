// Copyright 2026 The OpenSeed Authors
// SPDX-License-Identifier: Apache-2.0

package budget

import (
	"os"

	"github.com/fxamacker/cbor/v2"
)

// snapshot is the persisted day state. CBOR with deterministic
// encoding: the same spend map always produces identical bytes, so a
// rewrite with unchanged state is a no-op at the filesystem level.
type snapshot struct {
	Day   string             `cbor:"1,keyasint"`
	Spend map[string]float64 `cbor:"2,keyasint"`
}

// snapshotEncMode is the deterministic CBOR encoder (RFC 8949 §4.2):
// sorted map keys, smallest integer encoding.
var snapshotEncMode cbor.EncMode

func init() {
	var err error
	snapshotEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("budget: CBOR encoder initialization failed: " + err.Error())
	}
}

// saveSnapshotLocked persists the current day and spend map. Failures
// are logged, not returned: budget persistence is an optimization over
// the daily reset, never a reason to fail a recorded call.
func (t *Tracker) saveSnapshotLocked() {
	data, err := snapshotEncMode.Marshal(snapshot{Day: t.day, Spend: t.spend})
	if err != nil {
		t.logger.Warn("encoding budget snapshot", "error", err)
		return
	}

	temporaryPath := t.snapshotPath + ".tmp"
	if err := os.WriteFile(temporaryPath, data, 0600); err != nil {
		t.logger.Warn("writing budget snapshot", "error", err)
		return
	}
	if err := os.Rename(temporaryPath, t.snapshotPath); err != nil {
		os.Remove(temporaryPath)
		t.logger.Warn("renaming budget snapshot into place", "error", err)
	}
}

// loadSnapshot restores spend from a previous run of the same UTC day.
// A snapshot from an earlier day is ignored; the day rolled over
// while the host was down.
func (t *Tracker) loadSnapshot() {
	data, err := os.ReadFile(t.snapshotPath)
	if err != nil {
		if !os.IsNotExist(err) {
			t.logger.Warn("reading budget snapshot", "error", err)
		}
		return
	}

	var saved snapshot
	if err := cbor.Unmarshal(data, &saved); err != nil {
		t.logger.Warn("parsing budget snapshot, starting fresh", "error", err)
		return
	}
	if saved.Day != t.day {
		return
	}
	if saved.Spend != nil {
		t.spend = saved.Spend
	}
	t.logger.Info("restored budget snapshot", "day", saved.Day, "creatures", len(saved.Spend))
}

// Copyright 2026 The OpenSeed Authors
// SPDX-License-Identifier: Apache-2.0

// Package budget accumulates per-creature token usage into a daily
// USD spend total and evaluates it against a configured cap. One
// authoritative Tracker per supervising process; the day boundary is
// UTC midnight, derived from the wall clock on every operation rather
// than a relative reset timer, so host suspend/resume cannot stall it.
//
// The pre-call check and the post-call record are deliberately not
// transactional: two concurrent calls can both pass the check before
// either is recorded. The overspend is bounded by the cost of the
// in-flight calls and is accepted.
package budget

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/openseed-dev/openseed/lib/clock"
)

// Action selects what happens when a creature's daily spend crosses
// its cap.
type Action string

const (
	// ActionSleep rejects further calls and asks the supervisor to put
	// the creature to sleep.
	ActionSleep Action = "sleep"

	// ActionWarn logs the violation and lets calls proceed.
	ActionWarn Action = "warn"

	// ActionOff disables budget checks entirely.
	ActionOff Action = "off"
)

// Config is a creature's budget policy.
type Config struct {
	// DailyCapUSD is the daily spend ceiling. Ignored when Action is off.
	DailyCapUSD float64 `yaml:"daily_cap_usd"`

	// Action is taken when spend crosses the cap. Defaults to warn.
	Action Action `yaml:"action"`
}

// ErrOverBudget is returned by Check when a creature's spend is at or
// over its cap and the configured action is sleep. The message is
// written for the creature to read. It explains why the call was
// rejected and what happens next.
type ErrOverBudget struct {
	Creature string
	SpentUSD float64
	CapUSD   float64
}

func (err *ErrOverBudget) Error() string {
	return fmt.Sprintf(
		"daily budget exhausted: %s has spent $%s of its $%s daily cap; going to sleep until the daily reset",
		err.Creature,
		humanize.FormatFloat("#,###.##", err.SpentUSD),
		humanize.FormatFloat("#,###.##", err.CapUSD))
}

// Tracker accumulates spend per creature for the current UTC day.
// Safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	clock  clock.Clock
	logger *slog.Logger
	config Config
	prices PriceTable

	day   string
	spend map[string]float64

	snapshotPath string
}

// NewTracker creates a Tracker with the given policy and price table.
// When snapshotPath is non-empty, the day's spend is persisted there
// after every record and reloaded here, so a supervisor restart
// mid-day does not forget what a creature has already spent.
func NewTracker(config Config, prices PriceTable, snapshotPath string, clk clock.Clock, logger *slog.Logger) *Tracker {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.Action == "" {
		config.Action = ActionWarn
	}

	tracker := &Tracker{
		clock:        clk,
		logger:       logger,
		config:       config,
		prices:       prices,
		spend:        make(map[string]float64),
		snapshotPath: snapshotPath,
	}
	tracker.day = tracker.dayKey()

	if snapshotPath != "" {
		tracker.loadSnapshot()
	}
	return tracker
}

// SpendToday returns the creature's accumulated spend for the current
// UTC day.
func (t *Tracker) SpendToday(creature string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked()
	return t.spend[creature]
}

// Check is the pre-call budget gate. It returns an *ErrOverBudget when
// the creature is at or over its cap and the action is sleep. With
// action warn it logs and returns nil; with action off it does nothing.
func (t *Tracker) Check(creature string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.config.Action == ActionOff {
		return nil
	}
	t.rolloverLocked()

	spent := t.spend[creature]
	if spent < t.config.DailyCapUSD {
		return nil
	}

	if t.config.Action == ActionWarn {
		t.logger.Warn("creature over daily budget, proceeding (action=warn)",
			"creature", creature, "spent_usd", spent, "cap_usd", t.config.DailyCapUSD)
		return nil
	}
	return &ErrOverBudget{Creature: creature, SpentUSD: spent, CapUSD: t.config.DailyCapUSD}
}

// Record adds the cost of one call, priced from the model's token
// rates, and reports whether the creature is now over its cap with
// action sleep; the caller fires the sleep trigger in that case even
// though the call itself was allowed to complete.
func (t *Tracker) Record(creature, model string, inputTokens, outputTokens int64) (overCap bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rolloverLocked()

	cost := t.prices.Cost(model, inputTokens, outputTokens)
	t.spend[creature] += cost

	t.logger.Debug("recorded llm spend",
		"creature", creature, "model", model,
		"input_tokens", inputTokens, "output_tokens", outputTokens,
		"cost_usd", cost, "spent_today_usd", t.spend[creature])

	if t.snapshotPath != "" {
		t.saveSnapshotLocked()
	}

	if t.config.Action != ActionSleep {
		return false
	}
	return t.spend[creature] >= t.config.DailyCapUSD
}

// rolloverLocked resets the spend map when the UTC day has changed
// since the last operation.
func (t *Tracker) rolloverLocked() {
	today := t.dayKey()
	if today == t.day {
		return
	}
	t.logger.Info("daily budget reset", "previous_day", t.day, "day", today)
	t.day = today
	t.spend = make(map[string]float64)
	if t.snapshotPath != "" {
		t.saveSnapshotLocked()
	}
}

func (t *Tracker) dayKey() string {
	return t.clock.Now().UTC().Format(time.DateOnly)
}

// Copyright 2026 The OpenSeed Authors
// SPDX-License-Identifier: Apache-2.0

package budget

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openseed-dev/openseed/lib/clock"
)

// testPrices bills every model at $10 per million tokens each way, so
// 100K input tokens cost exactly $1.
func testPrices() PriceTable {
	return PriceTable{"default": {InputPerMTok: 10, OutputPerMTok: 10}}
}

func approximately(got, want float64) bool {
	return math.Abs(got-want) < 1e-9
}

func TestRecordAccumulatesSpend(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(Config{DailyCapUSD: 20, Action: ActionSleep},
		testPrices(), "", clock.Fake(time.Unix(1700000000, 0)), nil)

	tracker.Record("fox", "claude-sonnet-4", 100_000, 0) // $1
	tracker.Record("fox", "claude-sonnet-4", 0, 50_000)  // $0.50

	if spend := tracker.SpendToday("fox"); !approximately(spend, 1.5) {
		t.Fatalf("SpendToday = %v, want 1.5", spend)
	}
	if spend := tracker.SpendToday("wolf"); spend != 0 {
		t.Fatalf("wolf spend = %v, want 0 (per-creature accounting)", spend)
	}
}

func TestCheckUnderCapAllows(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(Config{DailyCapUSD: 20, Action: ActionSleep},
		testPrices(), "", clock.Fake(time.Unix(1700000000, 0)), nil)

	// $19.50 of spend: under the $20 cap, the pre-check allows.
	tracker.Record("fox", "m", 1_950_000, 0)
	if err := tracker.Check("fox"); err != nil {
		t.Fatalf("Check under cap = %v, want nil", err)
	}
}

func TestCallCrossingCapFlagsOnRecord(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(Config{DailyCapUSD: 20, Action: ActionSleep},
		testPrices(), "", clock.Fake(time.Unix(1700000000, 0)), nil)

	// Spend $19.50, then a $1 call: pre-check passes (spend was below
	// cap), the record itself must flag over-budget.
	tracker.Record("fox", "m", 1_950_000, 0)
	if err := tracker.Check("fox"); err != nil {
		t.Fatalf("pre-check rejected an under-cap creature: %v", err)
	}
	if over := tracker.Record("fox", "m", 100_000, 0); !over {
		t.Fatal("Record did not flag the call that crossed the cap")
	}

	// And the next pre-check rejects.
	err := tracker.Check("fox")
	var overBudget *ErrOverBudget
	if !errors.As(err, &overBudget) {
		t.Fatalf("Check after crossing cap = %v, want ErrOverBudget", err)
	}
	if overBudget.Creature != "fox" || overBudget.CapUSD != 20 {
		t.Fatalf("ErrOverBudget = %+v", overBudget)
	}
}

func TestActionWarnNeverRejects(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(Config{DailyCapUSD: 1, Action: ActionWarn},
		testPrices(), "", clock.Fake(time.Unix(1700000000, 0)), nil)

	if over := tracker.Record("fox", "m", 10_000_000, 0); over {
		t.Fatal("Record flagged over-cap with action=warn")
	}
	if err := tracker.Check("fox"); err != nil {
		t.Fatalf("Check with action=warn = %v, want nil", err)
	}
}

func TestActionOffSkipsChecks(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(Config{DailyCapUSD: 0, Action: ActionOff},
		testPrices(), "", clock.Fake(time.Unix(1700000000, 0)), nil)

	tracker.Record("fox", "m", 10_000_000, 0)
	if err := tracker.Check("fox"); err != nil {
		t.Fatalf("Check with action=off = %v, want nil", err)
	}
}

func TestDailyReset(t *testing.T) {
	t.Parallel()

	// Start one minute before UTC midnight.
	start := time.Date(2026, 8, 25, 23, 59, 0, 0, time.UTC)
	fake := clock.Fake(start)
	tracker := NewTracker(Config{DailyCapUSD: 1, Action: ActionSleep},
		testPrices(), "", fake, nil)

	tracker.Record("fox", "m", 1_000_000, 0) // $10, way over
	if err := tracker.Check("fox"); err == nil {
		t.Fatal("Check allowed an over-cap creature before the reset")
	}

	fake.Advance(2 * time.Minute) // cross midnight

	if err := tracker.Check("fox"); err != nil {
		t.Fatalf("Check after daily reset = %v, want nil", err)
	}
	if spend := tracker.SpendToday("fox"); spend != 0 {
		t.Fatalf("spend after reset = %v, want 0", spend)
	}
}

func TestSnapshotRestoresSameDaySpend(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "budget.cbor")
	fake := clock.Fake(time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC))

	tracker := NewTracker(Config{DailyCapUSD: 20, Action: ActionSleep}, testPrices(), path, fake, nil)
	tracker.Record("fox", "m", 500_000, 0) // $5

	// Simulate a host restart: a fresh tracker over the same file.
	restarted := NewTracker(Config{DailyCapUSD: 20, Action: ActionSleep}, testPrices(), path, fake, nil)
	if spend := restarted.SpendToday("fox"); !approximately(spend, 5) {
		t.Fatalf("restored spend = %v, want 5", spend)
	}
}

func TestSnapshotFromPreviousDayIgnored(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "budget.cbor")

	yesterday := clock.Fake(time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC))
	tracker := NewTracker(Config{DailyCapUSD: 20, Action: ActionSleep}, testPrices(), path, yesterday, nil)
	tracker.Record("fox", "m", 500_000, 0)

	today := clock.Fake(time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC))
	restarted := NewTracker(Config{DailyCapUSD: 20, Action: ActionSleep}, testPrices(), path, today, nil)
	if spend := restarted.SpendToday("fox"); spend != 0 {
		t.Fatalf("stale snapshot restored: spend = %v, want 0", spend)
	}
}

func TestLoadPricesMergesOverDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "prices.jsonc")
	content := `{
		// local override for a fine-tuned model
		"fox-custom": {"input_per_mtok": 1.0, "output_per_mtok": 2.0},
	}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write prices: %v", err)
	}

	table, err := LoadPrices(path)
	if err != nil {
		t.Fatalf("LoadPrices: %v", err)
	}

	if cost := table.Cost("fox-custom", 1_000_000, 1_000_000); !approximately(cost, 3) {
		t.Fatalf("custom model cost = %v, want 3", cost)
	}
	// Defaults survive the merge.
	if _, ok := table["claude-sonnet-4"]; !ok {
		t.Fatal("defaults lost after merging a price file")
	}
}

func TestPriceLookupPrefixAndAggregator(t *testing.T) {
	t.Parallel()

	table := DefaultPrices()

	// Dated variant priced by prefix entry.
	dated := table.Cost("claude-sonnet-4-20250514", 1_000_000, 0)
	exact := table.Cost("claude-sonnet-4", 1_000_000, 0)
	if !approximately(dated, exact) {
		t.Fatalf("dated variant cost %v != prefix entry cost %v", dated, exact)
	}

	// Aggregator identifier priced by its model component.
	qualified := table.Cost("openai/o3", 1_000_000, 0)
	direct := table.Cost("o3", 1_000_000, 0)
	if !approximately(qualified, direct) {
		t.Fatalf("org-qualified cost %v != direct cost %v", qualified, direct)
	}

	// Unknown model falls back to the default entry.
	unknown := table.Cost("mystery-model", 1_000_000, 0)
	fallback := float64(1) * table["default"].InputPerMTok
	if !approximately(unknown, fallback) {
		t.Fatalf("unknown model cost = %v, want default %v", unknown, fallback)
	}
}

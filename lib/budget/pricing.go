// Copyright 2026 The OpenSeed Authors
// SPDX-License-Identifier: Apache-2.0

package budget

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/jsonc"
)

// ModelPrice is the USD price per million tokens for one model.
type ModelPrice struct {
	InputPerMTok  float64 `json:"input_per_mtok"`
	OutputPerMTok float64 `json:"output_per_mtok"`
}

// PriceTable maps model identifiers to prices. Lookup is by exact
// identifier first, then by the longest matching prefix entry (so
// "claude-sonnet-4" prices any dated sonnet-4 variant), then by the
// "default" entry.
type PriceTable map[string]ModelPrice

// DefaultPrices is a conservative built-in table used when no price
// file is configured. Unknown models are billed at the default rate,
// which errs high so a missing entry cannot silently underbill a
// creature toward its cap.
func DefaultPrices() PriceTable {
	return PriceTable{
		"claude-opus-4":     {InputPerMTok: 15, OutputPerMTok: 75},
		"claude-sonnet-4":   {InputPerMTok: 3, OutputPerMTok: 15},
		"claude-haiku-4":    {InputPerMTok: 1, OutputPerMTok: 5},
		"gpt-5":             {InputPerMTok: 1.25, OutputPerMTok: 10},
		"gpt-4o":            {InputPerMTok: 2.5, OutputPerMTok: 10},
		"o3":                {InputPerMTok: 2, OutputPerMTok: 8},
		"o4-mini":           {InputPerMTok: 1.1, OutputPerMTok: 4.4},
		"gemini-2.5-pro":    {InputPerMTok: 1.25, OutputPerMTok: 10},
		"gemini-2.5-flash":  {InputPerMTok: 0.3, OutputPerMTok: 2.5},
		"default":           {InputPerMTok: 15, OutputPerMTok: 75},
	}
}

// LoadPrices reads a price table from a JSONC file (JSON with comments
// and trailing commas, so the table can be annotated in place).
// Entries merge over the built-in defaults.
func LoadPrices(path string) (PriceTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("budget: reading price table: %w", err)
	}

	var loaded PriceTable
	if err := json.Unmarshal(jsonc.ToJSON(data), &loaded); err != nil {
		return nil, fmt.Errorf("budget: parsing price table %s: %w", path, err)
	}

	table := DefaultPrices()
	for model, price := range loaded {
		table[model] = price
	}
	return table, nil
}

// Cost returns the USD cost of a call against a model. Aggregator
// identifiers ("org/model") are priced by their model component when
// no entry matches the full identifier.
func (table PriceTable) Cost(model string, inputTokens, outputTokens int64) float64 {
	price := table.lookup(model)
	return float64(inputTokens)/1e6*price.InputPerMTok +
		float64(outputTokens)/1e6*price.OutputPerMTok
}

func (table PriceTable) lookup(model string) ModelPrice {
	if price, ok := table[model]; ok {
		return price
	}

	// Strip an aggregator org qualifier and retry.
	if slash := strings.LastIndex(model, "/"); slash >= 0 {
		if price, ok := table[model[slash+1:]]; ok {
			return price
		}
		model = model[slash+1:]
	}

	// Longest prefix entry wins: "claude-sonnet-4" matches
	// "claude-sonnet-4-20250514".
	var best string
	for candidate := range table {
		if candidate != "default" && strings.HasPrefix(model, candidate) && len(candidate) > len(best) {
			best = candidate
		}
	}
	if best != "" {
		return table[best]
	}
	return table["default"]
}

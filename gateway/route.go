// Copyright 2026 The OpenSeed Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import "strings"

// ProviderKind identifies an upstream provider family.
type ProviderKind string

const (
	KindAnthropic  ProviderKind = "anthropic"
	KindOpenAI     ProviderKind = "openai"
	KindGemini     ProviderKind = "gemini"
	KindOpenRouter ProviderKind = "openrouter"
)

// Route maps a model identifier to its provider. Pure function; rule
// order matters. Any identifier containing a path separator routes to
// the aggregator unconditionally, before the prefix rules: an
// org-qualified identifier like "openai/o3-mini" hits OpenRouter even
// though its suffix matches a direct-provider prefix. Unmatched
// identifiers fall open to Anthropic, which is assumed always
// configured.
func Route(model string) ProviderKind {
	if strings.Contains(model, "/") {
		return KindOpenRouter
	}
	switch {
	case strings.HasPrefix(model, "claude-"):
		return KindAnthropic
	case strings.HasPrefix(model, "gpt-"),
		strings.HasPrefix(model, "o3"),
		strings.HasPrefix(model, "o4"):
		return KindOpenAI
	case strings.HasPrefix(model, "gemini-"):
		return KindGemini
	default:
		return KindAnthropic
	}
}

// Copyright 2026 The OpenSeed Authors
// SPDX-License-Identifier: Apache-2.0

// Package gateway receives every LLM call from every creature in one
// canonical block-based wire format, infers the upstream provider from
// the requested model identifier, translates the request and response,
// and enforces the creature's daily budget before and after each call.
//
// The canonical format is the Anthropic Messages shape: system
// instructions, an ordered list of user/assistant turns, each turn's
// content either plain text or typed blocks (text, tool_use,
// tool_result, image). [Anthropic] is therefore a pass-through;
// [OpenRouter], [OpenAI], and [Gemini] translate to their structurally
// different wire formats and normalize responses back to the canonical
// `{id, role, content[], model, stop_reason, usage}` shape.
//
// The gateway never retries upstream failures; retry and backoff are
// the calling creature's responsibility. Upstream HTTP errors pass
// through with their original status; translation failures surface as
// 502.
package gateway

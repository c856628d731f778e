// Copyright 2026 The OpenSeed Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAnthropicPassThrough(t *testing.T) {
	var received map[string]any
	upstream := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/v1/messages" {
			t.Errorf("path = %q", request.URL.Path)
		}
		if got := request.Header.Get("x-api-key"); got != "sk-ant-test" {
			t.Errorf("api key header = %q", got)
		}
		if got := request.Header.Get("anthropic-version"); got != anthropicVersion {
			t.Errorf("version header = %q", got)
		}
		if err := json.NewDecoder(request.Body).Decode(&received); err != nil {
			t.Errorf("decoding forwarded body: %v", err)
		}
		writer.Header().Set("Content-Type", "application/json")
		writer.Write([]byte(`{
			"id": "msg_01",
			"role": "assistant",
			"model": "claude-sonnet-4-5",
			"content": [{"type": "text", "text": "hello"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 3, "output_tokens": 2}
		}`))
	}))
	defer upstream.Close()

	provider := NewAnthropic("sk-ant-test", upstream.URL)
	response, err := provider.Complete(context.Background(), &Request{
		Model:     "claude-sonnet-4-5",
		System:    "be nice",
		MaxTokens: 64,
		Messages:  []Message{{Role: RoleUser, Content: Content{TextBlock("hi")}}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	// The request body is the canonical format itself, unchanged.
	if received["model"] != "claude-sonnet-4-5" || received["system"] != "be nice" {
		t.Errorf("forwarded body = %v", received)
	}
	if received["max_tokens"] != float64(64) {
		t.Errorf("forwarded max_tokens = %v", received["max_tokens"])
	}

	if response.ID != "msg_01" || response.StopReason != "end_turn" {
		t.Errorf("response = %+v", response)
	}
	if response.Usage.InputTokens != 3 || response.Usage.OutputTokens != 2 {
		t.Errorf("usage = %+v", response.Usage)
	}
}

func TestAnthropicUpstreamErrorPassThrough(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(529)
	}))
	defer upstream.Close()

	provider := NewAnthropic("sk-ant-test", upstream.URL)
	_, err := provider.Complete(context.Background(), &Request{
		Model:    "claude-sonnet-4-5",
		Messages: []Message{{Role: RoleUser, Content: Content{TextBlock("hi")}}},
	})

	var upstreamError *UpstreamError
	if !errors.As(err, &upstreamError) {
		t.Fatalf("error = %v, want *UpstreamError", err)
	}
	if upstreamError.StatusCode != 529 {
		t.Errorf("status = %d, want 529", upstreamError.StatusCode)
	}
}

// Copyright 2026 The OpenSeed Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/openseed-dev/openseed/lib/budget"
	"github.com/openseed-dev/openseed/lib/clock"
	"github.com/openseed-dev/openseed/lib/creaturetoken"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

// stubProvider answers every completion with a fixed response or error
// and remembers the last request it saw.
type stubProvider struct {
	kind     ProviderKind
	response *Response
	err      error
	last     *Request
}

func (stub *stubProvider) Kind() ProviderKind { return stub.kind }

func (stub *stubProvider) Complete(_ context.Context, request *Request) (*Response, error) {
	stub.last = request
	if stub.err != nil {
		return nil, stub.err
	}
	return stub.response, nil
}

func textResponse(model, text string, input, output int64) *Response {
	return &Response{
		ID:         "msg_stub",
		Role:       "assistant",
		Model:      model,
		Content:    []Block{TextBlock(text)},
		StopReason: "end_turn",
		Usage:      Usage{InputTokens: input, OutputTokens: output},
	}
}

func newTestTracker(config budget.Config) *budget.Tracker {
	return budget.NewTracker(config, budget.DefaultPrices(), "",
		clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)), discardLogger())
}

// postMessages routes a canonical request through the handler. The
// synthetic RemoteAddr from httptest.NewRequest is not loopback, so
// the token path is exercised unless the test overrides it.
func postMessages(t *testing.T, server *Server, request *Request, decorate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(request)
	if err != nil {
		t.Fatalf("marshaling request: %v", err)
	}
	httpRequest := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(string(body)))
	if decorate != nil {
		decorate(httpRequest)
	}
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, httpRequest)
	return recorder
}

func asCreature(name string, secret []byte) func(*http.Request) {
	return func(request *http.Request) {
		request.Header.Set("Authorization", "Bearer "+creaturetoken.Derive(secret, name))
		request.Header.Set(creaturetoken.IdentityHeader, name)
	}
}

func TestServerRequiresToken(t *testing.T) {
	server := NewServer(nil, newTestTracker(budget.Config{}), testSecret, "blob", nil, discardLogger())

	recorder := postMessages(t, server, &Request{Model: "claude-sonnet-4-5"}, nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", recorder.Code)
	}
}

func TestServerRejectsForgedToken(t *testing.T) {
	server := NewServer(nil, newTestTracker(budget.Config{}), testSecret, "blob", nil, discardLogger())

	recorder := postMessages(t, server, &Request{Model: "claude-sonnet-4-5"}, func(request *http.Request) {
		request.Header.Set("Authorization", "Bearer deadbeef")
		request.Header.Set(creaturetoken.IdentityHeader, "blob")
	})
	if recorder.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", recorder.Code)
	}
}

func TestServerAllowsLoopbackWithoutToken(t *testing.T) {
	anthropic := &stubProvider{kind: KindAnthropic, response: textResponse("claude-sonnet-4-5", "hi", 1, 1)}
	server := NewServer(map[ProviderKind]Provider{KindAnthropic: anthropic},
		newTestTracker(budget.Config{}), testSecret, "blob", nil, discardLogger())

	recorder := postMessages(t, server, &Request{
		Model:    "claude-sonnet-4-5",
		Messages: []Message{{Role: RoleUser, Content: Content{TextBlock("hi")}}},
	}, func(request *http.Request) {
		request.RemoteAddr = "127.0.0.1:61000"
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", recorder.Code, recorder.Body)
	}
}

func TestServerDispatchesByModel(t *testing.T) {
	anthropic := &stubProvider{kind: KindAnthropic, response: textResponse("claude-sonnet-4-5", "a", 1, 1)}
	openrouter := &stubProvider{kind: KindOpenRouter, response: textResponse("x/y", "r", 1, 1)}
	server := NewServer(map[ProviderKind]Provider{
		KindAnthropic:  anthropic,
		KindOpenRouter: openrouter,
	}, newTestTracker(budget.Config{}), testSecret, "blob", nil, discardLogger())

	postMessages(t, server, &Request{
		Model:    "claude-sonnet-4-5",
		Messages: []Message{{Role: RoleUser, Content: Content{TextBlock("hi")}}},
	}, asCreature("blob", testSecret))
	if anthropic.last == nil {
		t.Error("claude- model did not reach the anthropic provider")
	}

	postMessages(t, server, &Request{
		Model:    "x/y",
		Messages: []Message{{Role: RoleUser, Content: Content{TextBlock("hi")}}},
	}, asCreature("blob", testSecret))
	if openrouter.last == nil {
		t.Error("org-qualified model did not reach the aggregator")
	}
}

func TestServerRejectsUnconfiguredProvider(t *testing.T) {
	server := NewServer(map[ProviderKind]Provider{}, newTestTracker(budget.Config{}),
		testSecret, "blob", nil, discardLogger())

	recorder := postMessages(t, server, &Request{
		Model:    "gemini-2.5-pro",
		Messages: []Message{{Role: RoleUser, Content: Content{TextBlock("hi")}}},
	}, asCreature("blob", testSecret))
	if recorder.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", recorder.Code)
	}
}

func TestServerUpstreamErrorPassesThrough(t *testing.T) {
	anthropic := &stubProvider{kind: KindAnthropic, err: &UpstreamError{
		Provider:   KindAnthropic,
		StatusCode: 529,
		Type:       "overloaded_error",
		Message:    "try later",
	}}
	server := NewServer(map[ProviderKind]Provider{KindAnthropic: anthropic},
		newTestTracker(budget.Config{}), testSecret, "blob", nil, discardLogger())

	recorder := postMessages(t, server, &Request{
		Model:    "claude-sonnet-4-5",
		Messages: []Message{{Role: RoleUser, Content: Content{TextBlock("hi")}}},
	}, asCreature("blob", testSecret))

	if recorder.Code != 529 {
		t.Fatalf("status = %d, want 529", recorder.Code)
	}
	var envelope struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if envelope.Error.Type != "overloaded_error" || envelope.Error.Message != "try later" {
		t.Errorf("error envelope = %+v", envelope)
	}
}

func TestServerBudgetRejection(t *testing.T) {
	tracker := newTestTracker(budget.Config{DailyCapUSD: 10, Action: budget.ActionSleep})
	// Spend past the cap before the request arrives.
	tracker.Record("blob", "claude-opus-4", 1_000_000, 0)

	var sleptCreature, sleptReason string
	server := NewServer(map[ProviderKind]Provider{
		KindAnthropic: &stubProvider{kind: KindAnthropic, response: textResponse("claude-opus-4", "x", 1, 1)},
	}, tracker, testSecret, "blob", func(creature, reason string) {
		sleptCreature, sleptReason = creature, reason
	}, discardLogger())

	recorder := postMessages(t, server, &Request{
		Model:    "claude-opus-4",
		Messages: []Message{{Role: RoleUser, Content: Content{TextBlock("hi")}}},
	}, asCreature("blob", testSecret))

	if recorder.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "daily budget exhausted") {
		t.Errorf("body lacks a human-readable reason: %s", recorder.Body)
	}
	if sleptCreature != "blob" || !strings.Contains(sleptReason, "daily budget exhausted") {
		t.Errorf("sleep callback: creature=%q reason=%q", sleptCreature, sleptReason)
	}
}

func TestServerSleepsWhenCallCrossesCap(t *testing.T) {
	tracker := newTestTracker(budget.Config{DailyCapUSD: 1, Action: budget.ActionSleep})

	var slept bool
	server := NewServer(map[ProviderKind]Provider{
		// The completed call alone costs about $15 at opus input rates.
		KindAnthropic: &stubProvider{kind: KindAnthropic, response: textResponse("claude-opus-4", "x", 1_000_000, 0)},
	}, tracker, testSecret, "blob", func(creature, reason string) {
		slept = true
	}, discardLogger())

	recorder := postMessages(t, server, &Request{
		Model:    "claude-opus-4",
		Messages: []Message{{Role: RoleUser, Content: Content{TextBlock("hi")}}},
	}, asCreature("blob", testSecret))

	// The call itself succeeds; the side effect fires afterwards.
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}
	if !slept {
		t.Error("crossing the cap did not fire the sleep callback")
	}
}

func TestServerWarnActionProceeds(t *testing.T) {
	tracker := newTestTracker(budget.Config{DailyCapUSD: 1, Action: budget.ActionWarn})
	tracker.Record("blob", "claude-opus-4", 1_000_000, 0)

	server := NewServer(map[ProviderKind]Provider{
		KindAnthropic: &stubProvider{kind: KindAnthropic, response: textResponse("claude-opus-4", "x", 1, 1)},
	}, tracker, testSecret, "blob", nil, discardLogger())

	recorder := postMessages(t, server, &Request{
		Model:    "claude-opus-4",
		Messages: []Message{{Role: RoleUser, Content: Content{TextBlock("hi")}}},
	}, asCreature("blob", testSecret))
	if recorder.Code != http.StatusOK {
		t.Errorf("warn action blocked the call: status = %d", recorder.Code)
	}
}

func TestServerRejectsMissingModel(t *testing.T) {
	server := NewServer(nil, newTestTracker(budget.Config{}), testSecret, "blob", nil, discardLogger())

	recorder := postMessages(t, server, &Request{}, asCreature("blob", testSecret))
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", recorder.Code)
	}
}

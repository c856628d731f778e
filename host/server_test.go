// Copyright 2026 The OpenSeed Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openseed-dev/openseed/lib/creaturetoken"
	"github.com/openseed-dev/openseed/lib/eventlog"
)

var serverTestSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestServer(t *testing.T) (*harness, *Server) {
	t.Helper()
	h := newHarness(t, &fakeRepo{head: "abc123"})
	if err := h.supervisor.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.waitForEvent(t, eventlog.TypeHostSpawn)
	server := NewServer(h.supervisor, h.events, nil, serverTestSecret, "blob", h.clock, testLogger())
	return h, server
}

func TestStatusEndpoint(t *testing.T) {
	_, server := newTestServer(t)

	request := httptest.NewRequest(http.MethodGet, "/status", nil)
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	var status Status
	if err := json.Unmarshal(recorder.Body.Bytes(), &status); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	if status.CurrentRevision != "abc123" {
		t.Errorf("current_revision = %q", status.CurrentRevision)
	}
	if status.LastGoodRevision != "abc123" {
		t.Errorf("last_good_revision = %q", status.LastGoodRevision)
	}
	if status.PID == 0 {
		t.Error("pid missing from status")
	}
}

func TestStatusPage(t *testing.T) {
	_, server := newTestServer(t)

	request := httptest.NewRequest(http.MethodGet, "/", nil)
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, request)

	body := recorder.Body.String()
	for _, want := range []string{"blob", "abc123", "HEALTH_PENDING"} {
		if !strings.Contains(body, want) {
			t.Errorf("status page missing %q:\n%s", want, body)
		}
	}
}

func TestEventIngest(t *testing.T) {
	h, server := newTestServer(t)

	body := `{"type":"creature_thought","text":"i should refactor the parser"}`
	request := httptest.NewRequest(http.MethodPost, "/event", strings.NewReader(body))
	request.Header.Set("Authorization", "Bearer "+creaturetoken.Derive(serverTestSecret, "blob"))
	request.Header.Set(creaturetoken.IdentityHeader, "blob")
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", recorder.Code, recorder.Body)
	}

	thought := h.waitForEvent(t, eventlog.TypeCreatureThought)
	if thought.Text != "i should refactor the parser" {
		t.Errorf("ingested text = %q", thought.Text)
	}
}

func TestEventIngestRejectsHostTypes(t *testing.T) {
	_, server := newTestServer(t)

	request := httptest.NewRequest(http.MethodPost, "/event",
		strings.NewReader(`{"type":"host_promote","revision":"evil"}`))
	request.Header.Set("Authorization", "Bearer "+creaturetoken.Derive(serverTestSecret, "blob"))
	request.Header.Set(creaturetoken.IdentityHeader, "blob")
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, request)

	if recorder.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", recorder.Code)
	}
}

func TestEventIngestAuth(t *testing.T) {
	_, server := newTestServer(t)
	body := func() *strings.Reader {
		return strings.NewReader(`{"type":"creature_thought","text":"x"}`)
	}

	// No token from a non-loopback origin: unauthorized.
	request := httptest.NewRequest(http.MethodPost, "/event", body())
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, request)
	if recorder.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", recorder.Code)
	}

	// A valid token for a different creature: forbidden.
	request = httptest.NewRequest(http.MethodPost, "/event", body())
	request.Header.Set("Authorization", "Bearer "+creaturetoken.Derive(serverTestSecret, "imp"))
	request.Header.Set(creaturetoken.IdentityHeader, "imp")
	recorder = httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, request)
	if recorder.Code != http.StatusForbidden {
		t.Errorf("wrong creature: status = %d, want 403", recorder.Code)
	}

	// Loopback needs no token.
	request = httptest.NewRequest(http.MethodPost, "/event", body())
	request.RemoteAddr = "127.0.0.1:50000"
	recorder = httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Errorf("loopback: status = %d, want 200", recorder.Code)
	}
}

func TestRestartEndpoint(t *testing.T) {
	h, server := newTestServer(t)
	h.repo.setHead("def456")

	request := httptest.NewRequest(http.MethodPost, "/restart",
		strings.NewReader(`{"revision":"def456"}`))
	request.Header.Set("Authorization", "Bearer "+creaturetoken.Derive(serverTestSecret, "blob"))
	request.Header.Set(creaturetoken.IdentityHeader, "blob")
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, request)

	if recorder.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", recorder.Code, recorder.Body)
	}

	// The request is durably logged before the respawn.
	restart := h.waitForEvent(t, eventlog.TypeCreatureRestart)
	if restart.Revision != "def456" {
		t.Errorf("restart event revision = %q", restart.Revision)
	}
	respawn := h.waitForEvent(t, eventlog.TypeHostSpawn)
	if respawn.Revision != "def456" {
		t.Errorf("respawn revision = %q", respawn.Revision)
	}
}

func TestEventStreamReplaysThenTails(t *testing.T) {
	h, server := newTestServer(t)
	httpServer := httptest.NewServer(server.Handler())
	defer httpServer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, httpServer.URL+"/events", nil)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("GET /events: %v", err)
	}
	defer response.Body.Close()

	if got := response.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("content type = %q", got)
	}

	scanner := bufio.NewScanner(response.Body)
	readEvent := func() eventlog.Event {
		t.Helper()
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var event eventlog.Event
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
				t.Fatalf("decoding SSE event: %v", err)
			}
			return event
		}
		t.Fatalf("stream ended: %v", scanner.Err())
		return eventlog.Event{}
	}

	// Replay: boot and first spawn are already in the log.
	if event := readEvent(); event.Type != eventlog.TypeHostBoot {
		t.Errorf("first replayed event = %q, want host_boot", event.Type)
	}
	if event := readEvent(); event.Type != eventlog.TypeHostSpawn {
		t.Errorf("second replayed event = %q, want host_spawn", event.Type)
	}

	// Live tail: an event appended after connect is streamed.
	if _, err := h.events.Append(eventlog.CreatureBoot("abc123")); err != nil {
		t.Fatalf("appending: %v", err)
	}
	if event := readEvent(); event.Type != eventlog.TypeCreatureBoot {
		t.Errorf("tailed event = %q, want creature_boot", event.Type)
	}
}

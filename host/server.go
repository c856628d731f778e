// Copyright 2026 The OpenSeed Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/openseed-dev/openseed/lib/budget"
	"github.com/openseed-dev/openseed/lib/clock"
	"github.com/openseed-dev/openseed/lib/creaturetoken"
	"github.com/openseed-dev/openseed/lib/eventlog"
)

// Server is the supervisor's HTTP control surface. Reads are open to
// anyone who can reach the port; creature-originated writes (/event,
// /restart) carry the creature token contract: loopback is trusted, a
// valid token for another creature is forbidden, everything else is
// unauthorized.
type Server struct {
	supervisor *Supervisor
	events     *eventlog.Log
	tracker    *budget.Tracker
	secret     []byte
	creature   string
	clock      clock.Clock
	logger     *slog.Logger
	startedAt  time.Time
}

// NewServer assembles the control surface. tracker may be nil when
// budget display is not wanted.
func NewServer(supervisor *Supervisor, events *eventlog.Log, tracker *budget.Tracker, secret []byte, creature string, clk clock.Clock, logger *slog.Logger) *Server {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		supervisor: supervisor,
		events:     events,
		tracker:    tracker,
		secret:     secret,
		creature:   creature,
		clock:      clk,
		logger:     logger,
		startedAt:  clk.Now(),
	}
}

// Handler returns the host's HTTP mux.
func (server *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", server.handleIndex)
	mux.HandleFunc("GET /status", server.handleStatus)
	mux.HandleFunc("GET /events", server.handleEvents)
	mux.HandleFunc("POST /event", server.handleEventIngest)
	mux.HandleFunc("POST /restart", server.handleRestart)
	return mux
}

// handleIndex is the human-facing status page.
func (server *Server) handleIndex(writer http.ResponseWriter, request *http.Request) {
	if request.URL.Path != "/" {
		http.NotFound(writer, request)
		return
	}
	status := server.supervisor.Status()

	var page strings.Builder
	fmt.Fprintf(&page, "creature:  %s\n", status.Name)
	fmt.Fprintf(&page, "state:     %s\n", status.State)
	fmt.Fprintf(&page, "healthy:   %t\n", status.Healthy)
	fmt.Fprintf(&page, "pid:       %d\n", status.PID)
	fmt.Fprintf(&page, "revision:  %s\n", status.CurrentRevision)
	fmt.Fprintf(&page, "last-good: %s\n", status.LastGoodRevision)
	fmt.Fprintf(&page, "up:        %s\n", humanize.RelTime(server.startedAt, server.clock.Now(), "", ""))
	if server.tracker != nil {
		fmt.Fprintf(&page, "spend:     $%s today\n",
			humanize.FormatFloat("#,###.##", server.tracker.SpendToday(server.creature)))
	}

	writer.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(writer, page.String())
}

func (server *Server) handleStatus(writer http.ResponseWriter, request *http.Request) {
	writer.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(writer).Encode(server.supervisor.Status()); err != nil {
		server.logger.Error("encoding status", "error", err)
	}
}

// handleEvents streams the full log as server-sent events: a replay of
// everything already appended, then the live tail until the client
// disconnects.
func (server *Server) handleEvents(writer http.ResponseWriter, request *http.Request) {
	flusher, ok := writer.(http.Flusher)
	if !ok {
		http.Error(writer, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Subscribe before replaying so no event falls between the two.
	live, cancel := server.events.Subscribe(256)
	defer cancel()

	replay, err := server.events.Replay()
	if err != nil {
		http.Error(writer, "replaying events: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writer.Header().Set("Content-Type", "text/event-stream")
	writer.Header().Set("Cache-Control", "no-cache")
	writer.WriteHeader(http.StatusOK)

	var lastSeq int64
	for _, event := range replay {
		if !server.writeEvent(writer, event) {
			return
		}
		lastSeq = event.Seq
	}
	flusher.Flush()

	for {
		select {
		case <-request.Context().Done():
			return
		case event, open := <-live:
			if !open {
				return
			}
			if event.Seq <= lastSeq {
				continue
			}
			if !server.writeEvent(writer, event) {
				return
			}
			flusher.Flush()
		}
	}
}

func (server *Server) writeEvent(writer http.ResponseWriter, event eventlog.Event) bool {
	data, err := json.Marshal(event)
	if err != nil {
		server.logger.Error("encoding event", "seq", event.Seq, "error", err)
		return true
	}
	_, err = fmt.Fprintf(writer, "data: %s\n\n", data)
	return err == nil
}

// handleEventIngest appends a creature-originated event. Host event
// types are reserved for the supervisor itself.
func (server *Server) handleEventIngest(writer http.ResponseWriter, request *http.Request) {
	if !server.authorize(writer, request) {
		return
	}

	var event eventlog.Event
	if err := json.NewDecoder(request.Body).Decode(&event); err != nil {
		http.Error(writer, "decoding event: "+err.Error(), http.StatusBadRequest)
		return
	}
	if !strings.HasPrefix(string(event.Type), "creature_") {
		http.Error(writer, "event type is not creature-originated", http.StatusBadRequest)
		return
	}

	appended, err := server.events.Append(event)
	if err != nil {
		http.Error(writer, "appending event: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writer.Header().Set("Content-Type", "application/json")
	json.NewEncoder(writer).Encode(map[string]int64{"seq": appended.Seq})
}

// handleRestart is the creature asking to be respawned at a revision it
// has just committed. The request is logged as an event before the
// respawn, so a self-modification that immediately crashes still shows
// its own provenance in the log.
func (server *Server) handleRestart(writer http.ResponseWriter, request *http.Request) {
	if !server.authorize(writer, request) {
		return
	}

	var body struct {
		Revision string `json:"revision"`
	}
	if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
		http.Error(writer, "decoding restart request: "+err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := server.events.Append(eventlog.CreatureRestart(body.Revision)); err != nil {
		server.logger.Error("appending restart event", "error", err)
	}
	if err := server.supervisor.Restart(request.Context()); err != nil {
		http.Error(writer, "restart: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writer.WriteHeader(http.StatusAccepted)
}

// authorize enforces the creature token contract on mutating routes.
func (server *Server) authorize(writer http.ResponseWriter, request *http.Request) bool {
	switch creaturetoken.Authorize(request, server.secret, server.creature) {
	case creaturetoken.Unauthorized:
		http.Error(writer, "missing or invalid creature token", http.StatusUnauthorized)
		return false
	case creaturetoken.Forbidden:
		http.Error(writer, "token is not valid for creature "+server.creature, http.StatusForbidden)
		return false
	}
	return true
}

// Copyright 2026 The OpenSeed Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/openseed-dev/openseed/lib/budget"
	"github.com/openseed-dev/openseed/lib/creaturetoken"
)

// SleepFunc puts a creature to sleep when its daily budget runs out.
// The gateway fires it both on pre-call rejection and when the call
// that just completed crossed the cap. Nil disables the side effect.
type SleepFunc func(creature, reason string)

// Server terminates the canonical protocol on POST /v1/messages:
// authenticates the calling creature, enforces its budget, routes the
// model identifier to a provider, and relays the normalized response.
type Server struct {
	providers       map[ProviderKind]Provider
	tracker         *budget.Tracker
	secret          []byte
	defaultCreature string
	sleep           SleepFunc
	logger          *slog.Logger
}

// NewServer assembles the gateway. providers maps each configured
// upstream; a request routed to an absent provider is rejected rather
// than retried elsewhere. defaultCreature is the identity assumed for
// requests that omit the identity header (the single-creature case).
func NewServer(providers map[ProviderKind]Provider, tracker *budget.Tracker, secret []byte, defaultCreature string, sleep SleepFunc, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		providers:       providers,
		tracker:         tracker,
		secret:          secret,
		defaultCreature: defaultCreature,
		sleep:           sleep,
		logger:          logger,
	}
}

// Handler returns the gateway's HTTP mux.
func (server *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/messages", server.handleMessages)
	return mux
}

func (server *Server) handleMessages(writer http.ResponseWriter, request *http.Request) {
	creature := request.Header.Get(creaturetoken.IdentityHeader)
	if creature == "" {
		creature = server.defaultCreature
	}

	switch creaturetoken.Authorize(request, server.secret, creature) {
	case creaturetoken.Unauthorized:
		writeError(writer, http.StatusUnauthorized, "authentication_error", "missing or invalid creature token")
		return
	case creaturetoken.Forbidden:
		writeError(writer, http.StatusForbidden, "permission_error", "token is not valid for creature "+creature)
		return
	}

	var canonicalRequest Request
	if err := json.NewDecoder(request.Body).Decode(&canonicalRequest); err != nil {
		writeError(writer, http.StatusBadRequest, "invalid_request_error", "decoding request: "+err.Error())
		return
	}
	if canonicalRequest.Model == "" {
		writeError(writer, http.StatusBadRequest, "invalid_request_error", "model is required")
		return
	}

	if err := server.tracker.Check(creature); err != nil {
		var overBudget *budget.ErrOverBudget
		if errors.As(err, &overBudget) {
			server.logger.Warn("budget exhausted, rejecting call",
				"creature", creature, "spent_usd", overBudget.SpentUSD, "cap_usd", overBudget.CapUSD)
			server.fireSleep(creature, overBudget.Error())
			writeError(writer, http.StatusTooManyRequests, "rate_limit_error", overBudget.Error())
			return
		}
		writeError(writer, http.StatusInternalServerError, "api_error", err.Error())
		return
	}

	kind := Route(canonicalRequest.Model)
	provider, ok := server.providers[kind]
	if !ok {
		writeError(writer, http.StatusBadGateway, "api_error",
			fmt.Sprintf("provider %s is not configured (missing API key)", kind))
		return
	}

	response, err := provider.Complete(request.Context(), &canonicalRequest)
	if err != nil {
		var upstreamError *UpstreamError
		if errors.As(err, &upstreamError) {
			// Upstream errors pass through with their original status.
			server.logger.Warn("upstream error",
				"provider", kind, "status", upstreamError.StatusCode, "message", upstreamError.Message)
			writeError(writer, upstreamError.StatusCode, upstreamError.Type, upstreamError.Message)
			return
		}
		server.logger.Error("provider call failed", "provider", kind, "error", err)
		writeError(writer, http.StatusBadGateway, "api_error", err.Error())
		return
	}

	if overCap := server.tracker.Record(creature, canonicalRequest.Model,
		response.Usage.InputTokens, response.Usage.OutputTokens); overCap {
		server.fireSleep(creature, "daily budget crossed by completed call")
	}

	server.logger.Info("completion",
		"creature", creature,
		"provider", kind,
		"model", canonicalRequest.Model,
		"input_tokens", response.Usage.InputTokens,
		"output_tokens", response.Usage.OutputTokens,
		"stop_reason", response.StopReason)

	writer.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(writer).Encode(response); err != nil {
		server.logger.Error("encoding response", "error", err)
	}
}

func (server *Server) fireSleep(creature, reason string) {
	if server.sleep != nil {
		server.sleep(creature, reason)
	}
}

// writeError emits the {"error":{"type","message"}} envelope the
// canonical protocol uses for every failure.
func writeError(writer http.ResponseWriter, statusCode int, errorType, message string) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(statusCode)
	json.NewEncoder(writer).Encode(map[string]any{
		"error": map[string]string{
			"type":    errorType,
			"message": message,
		},
	})
}

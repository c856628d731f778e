// Copyright 2026 The OpenSeed Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// HTTPProbe polls the creature's GET /healthz endpoint. The creature
// answers 200 once booted and 503 before; anything else, including
// connection refusal while the process is still starting, is an
// unhealthy poll.
type HTTPProbe struct {
	client *http.Client
	url    string
}

// NewHTTPProbe builds a probe against the creature's base URL, e.g.
// "http://127.0.0.1:4610".
func NewHTTPProbe(baseURL string) *HTTPProbe {
	return &HTTPProbe{
		client: &http.Client{Timeout: time.Second},
		url:    baseURL + "/healthz",
	}
}

// Check performs one poll.
func (probe *HTTPProbe) Check(ctx context.Context) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, probe.url, nil)
	if err != nil {
		return fmt.Errorf("host: building health request: %w", err)
	}
	response, err := probe.client.Do(request)
	if err != nil {
		return fmt.Errorf("host: health poll: %w", err)
	}
	response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("host: health poll: HTTP %d", response.StatusCode)
	}
	return nil
}

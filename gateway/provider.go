// Copyright 2026 The OpenSeed Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Provider is one upstream LLM API. Implementations translate between
// the canonical types and the vendor's wire format; the gateway calls
// them with a fully validated canonical request.
type Provider interface {
	// Kind identifies the provider family for routing and logging.
	Kind() ProviderKind

	// Complete sends one request and blocks for the full response.
	Complete(ctx context.Context, request *Request) (*Response, error)
}

// newUpstreamClient is the HTTP client shared by provider
// implementations. No overall timeout: long completions are bounded by
// the caller's context instead.
func newUpstreamClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// doUpstreamRequest marshals wireRequest as JSON, POSTs it to endpoint
// with the given headers, and returns the response body bytes. Non-200
// statuses become an *UpstreamError parsed from the common
// {"error":{"type","message"}} envelope, falling back to the raw body.
func doUpstreamRequest(ctx context.Context, client *http.Client, kind ProviderKind, endpoint string, headers map[string]string, wireRequest any) ([]byte, error) {
	body, err := json.Marshal(wireRequest)
	if err != nil {
		return nil, fmt.Errorf("gateway/%s: marshaling request: %w", kind, err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gateway/%s: creating request: %w", kind, err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	for name, value := range headers {
		httpRequest.Header.Set(name, value)
	}

	httpResponse, err := client.Do(httpRequest)
	if err != nil {
		return nil, fmt.Errorf("gateway/%s: sending request: %w", kind, err)
	}
	defer httpResponse.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(httpResponse.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("gateway/%s: reading response: %w", kind, err)
	}

	if httpResponse.StatusCode != http.StatusOK {
		return nil, readUpstreamError(kind, httpResponse.StatusCode, responseBody)
	}
	return responseBody, nil
}

// readUpstreamError parses an error body in the envelope shared by
// Anthropic, OpenAI, and compatible APIs. Extra fields are ignored;
// unparseable bodies are carried verbatim.
func readUpstreamError(kind ProviderKind, statusCode int, body []byte) error {
	var wireError struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &wireError) == nil && wireError.Error.Message != "" {
		return &UpstreamError{
			Provider:   kind,
			StatusCode: statusCode,
			Type:       wireError.Error.Type,
			Message:    wireError.Error.Message,
		}
	}
	return &UpstreamError{
		Provider:   kind,
		StatusCode: statusCode,
		Message:    string(body),
	}
}

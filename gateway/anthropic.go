// Copyright 2026 The OpenSeed Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// anthropicVersion is the API version header value the Messages API
// requires.
const anthropicVersion = "2023-06-01"

// Anthropic is the primary provider. Creatures already speak the
// Messages API shape, so requests pass through without translation;
// only the usage pair is read for billing.
type Anthropic struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewAnthropic creates the pass-through provider. baseURL defaults to
// the public API endpoint; tests point it at a local server.
func NewAnthropic(apiKey, baseURL string) *Anthropic {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	return &Anthropic{
		client:  newUpstreamClient(),
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

// Kind identifies the provider family.
func (provider *Anthropic) Kind() ProviderKind { return KindAnthropic }

// Complete forwards the canonical request unchanged and decodes the
// canonical response.
func (provider *Anthropic) Complete(ctx context.Context, request *Request) (*Response, error) {
	body, err := doUpstreamRequest(ctx, provider.client, KindAnthropic,
		provider.baseURL+"/v1/messages",
		map[string]string{
			"x-api-key":         provider.apiKey,
			"anthropic-version": anthropicVersion,
		},
		request)
	if err != nil {
		return nil, err
	}

	var response Response
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("gateway/anthropic: decoding response: %w", err)
	}
	if response.ID == "" {
		response.ID = "msg_" + uuid.NewString()
	}
	if response.Role == "" {
		response.Role = string(RoleAssistant)
	}
	return &response, nil
}

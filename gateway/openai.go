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

// OpenAI is the item-based direct provider (the Responses API). The
// system prompt becomes a top-level instructions field, and every
// content block becomes one entry in a flat, ordered list of typed
// input items: input text and images grouped into message items,
// function calls and their outputs as standalone items, rather than
// nested per-turn content.
type OpenAI struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewOpenAI creates the item-based provider. baseURL defaults to the
// public endpoint; tests point it at a local server.
func NewOpenAI(apiKey, baseURL string) *OpenAI {
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	return &OpenAI{
		client:  newUpstreamClient(),
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

// Kind identifies the provider family.
func (provider *OpenAI) Kind() ProviderKind { return KindOpenAI }

// Complete translates to the item-based format, calls the upstream,
// and normalizes the response to the canonical shape.
func (provider *OpenAI) Complete(ctx context.Context, request *Request) (*Response, error) {
	body, err := doUpstreamRequest(ctx, provider.client, KindOpenAI,
		provider.baseURL+"/v1/responses",
		map[string]string{"Authorization": "Bearer " + provider.apiKey},
		buildResponsesRequest(request))
	if err != nil {
		return nil, err
	}

	var wireResponse responsesResponse
	if err := json.Unmarshal(body, &wireResponse); err != nil {
		return nil, fmt.Errorf("gateway/openai: decoding response: %w", err)
	}
	return wireResponse.toResponse(), nil
}

// --- Responses API wire types ---

type responsesRequest struct {
	Model           string          `json:"model"`
	Instructions    string          `json:"instructions,omitempty"`
	Input           []responsesItem `json:"input"`
	Tools           []responsesTool `json:"tools,omitempty"`
	MaxOutputTokens int             `json:"max_output_tokens,omitempty"`
}

// responsesItem is one entry in the flat input (or output) list. The
// type field selects the variant: "message" carries role and content
// parts; "function_call" and "function_call_output" are standalone.
type responsesItem struct {
	Type    string          `json:"type"`
	Role    string          `json:"role,omitempty"`
	Content []responsesPart `json:"content,omitempty"`

	// function_call / function_call_output.
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	Output    string `json:"output,omitempty"`
}

type responsesPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

type responsesTool struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type responsesResponse struct {
	ID     string          `json:"id"`
	Model  string          `json:"model"`
	Output []responsesItem `json:"output"`
	Usage  struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

// --- request translation ---

// buildResponsesRequest flattens the canonical conversation into the
// ordered item list. Runs of text and image blocks within one turn
// become a single message item; tool invocations and tool results
// interrupt the run as standalone items, preserving block order.
func buildResponsesRequest(request *Request) responsesRequest {
	wire := responsesRequest{
		Model:           request.Model,
		Instructions:    request.System,
		MaxOutputTokens: request.MaxTokens,
	}

	for _, message := range request.Messages {
		wire.Input = append(wire.Input, toResponsesItems(message)...)
	}
	if wire.Input == nil {
		wire.Input = []responsesItem{}
	}

	for _, tool := range request.Tools {
		wire.Tools = append(wire.Tools, responsesTool{
			Type:        "function",
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  tool.InputSchema,
		})
	}
	return wire
}

func toResponsesItems(message Message) []responsesItem {
	var items []responsesItem
	var parts []responsesPart

	// Assistant text parts are output_text on replay; user parts are
	// input_text / input_image.
	textType := "input_text"
	if message.Role == RoleAssistant {
		textType = "output_text"
	}

	flush := func() {
		if len(parts) == 0 {
			return
		}
		items = append(items, responsesItem{
			Type:    "message",
			Role:    string(message.Role),
			Content: parts,
		})
		parts = nil
	}

	for _, block := range message.Content {
		switch block.Type {
		case BlockText:
			parts = append(parts, responsesPart{Type: textType, Text: block.Text})
		case BlockImage:
			if url, ok := chatImageURL(block.Source); ok {
				parts = append(parts, responsesPart{Type: "input_image", ImageURL: url})
			}
		case BlockToolUse:
			flush()
			items = append(items, responsesItem{
				Type:      "function_call",
				CallID:    block.ID,
				Name:      block.Name,
				Arguments: string(block.Input),
			})
		case BlockToolResult:
			flush()
			items = append(items, responsesItem{
				Type:   "function_call_output",
				CallID: block.ToolUseID,
				Output: block.Content,
			})
		}
	}
	flush()
	return items
}

// --- response translation ---

func (wireResponse *responsesResponse) toResponse() *Response {
	response := &Response{
		ID:    wireResponse.ID,
		Role:  string(RoleAssistant),
		Model: wireResponse.Model,
		Usage: Usage{
			InputTokens:  wireResponse.Usage.InputTokens,
			OutputTokens: wireResponse.Usage.OutputTokens,
		},
	}
	if response.ID == "" {
		response.ID = "msg_" + uuid.NewString()
	}

	for _, item := range wireResponse.Output {
		switch item.Type {
		case "message":
			for _, part := range item.Content {
				if part.Type == "output_text" && part.Text != "" {
					response.Content = append(response.Content, TextBlock(part.Text))
				}
			}
		case "function_call":
			id := item.CallID
			if id == "" {
				id = "call_" + uuid.NewString()
			}
			response.Content = append(response.Content, ToolUseBlock(
				id, item.Name, parseArguments(item.Arguments)))
		}
	}

	response.StopReason = inferStopReason(response.Content)
	return response
}

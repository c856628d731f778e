// Copyright 2026 The OpenSeed Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// OpenRouter is the aggregation provider, reached by any org-qualified
// model identifier ("openai/o3-mini", "meta-llama/llama-4"). It speaks
// the turn-based chat-completions format: the system prompt becomes a
// leading turn, tool invocations become assistant tool_calls, tool
// results become dedicated role:"tool" turns, and consecutive
// same-role content is accumulated into single turns because some
// aggregated upstreams reject consecutive same-role messages.
type OpenRouter struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewOpenRouter creates the aggregator provider. baseURL defaults to
// the public endpoint; tests point it at a local server.
func NewOpenRouter(apiKey, baseURL string) *OpenRouter {
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api"
	}
	return &OpenRouter{
		client:  newUpstreamClient(),
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

// Kind identifies the provider family.
func (provider *OpenRouter) Kind() ProviderKind { return KindOpenRouter }

// Complete translates to chat-completions format, calls the upstream,
// and normalizes the response to the canonical shape.
func (provider *OpenRouter) Complete(ctx context.Context, request *Request) (*Response, error) {
	body, err := doUpstreamRequest(ctx, provider.client, KindOpenRouter,
		provider.baseURL+"/v1/chat/completions",
		map[string]string{"Authorization": "Bearer " + provider.apiKey},
		buildChatRequest(request))
	if err != nil {
		return nil, err
	}

	var wireResponse chatResponse
	if err := json.Unmarshal(body, &wireResponse); err != nil {
		return nil, fmt.Errorf("gateway/openrouter: decoding response: %w", err)
	}
	return wireResponse.toResponse(), nil
}

// --- chat-completions wire types ---

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	Tools     []chatTool    `json:"tools,omitempty"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content,omitempty"`
	ToolCalls  []chatToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

type chatToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function chatToolFunction `json:"function"`
}

type chatToolFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatTool struct {
	Type     string             `json:"type"`
	Function chatToolDefinition `json:"function"`
}

type chatToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
}

// --- request translation ---

// buildChatRequest converts a canonical request into the chat
// completions shape. One canonical message can expand into several
// wire messages (tool results become individual role:"tool" turns);
// afterwards consecutive same-role user/assistant turns are merged.
func buildChatRequest(request *Request) chatRequest {
	wire := chatRequest{
		Model:     request.Model,
		MaxTokens: request.MaxTokens,
	}

	if request.System != "" {
		wire.Messages = append(wire.Messages, chatMessage{
			Role:    "system",
			Content: chatTextContent(request.System),
		})
	}

	for _, message := range request.Messages {
		wire.Messages = append(wire.Messages, toChatMessages(message)...)
	}
	wire.Messages = mergeSameRoleTurns(wire.Messages)

	for _, tool := range request.Tools {
		wire.Tools = append(wire.Tools, chatTool{
			Type: "function",
			Function: chatToolDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.InputSchema,
			},
		})
	}
	return wire
}

// toChatMessages expands one canonical message into wire messages.
func toChatMessages(message Message) []chatMessage {
	if message.Role == RoleAssistant {
		return []chatMessage{toChatAssistantMessage(message)}
	}

	var messages []chatMessage
	var parts []chatContentPart

	flush := func() {
		if len(parts) == 0 {
			return
		}
		messages = append(messages, chatMessage{Role: "user", Content: marshalChatParts(parts)})
		parts = nil
	}

	for _, block := range message.Content {
		switch block.Type {
		case BlockText:
			parts = append(parts, chatContentPart{Type: "text", Text: block.Text})
		case BlockImage:
			if url, ok := chatImageURL(block.Source); ok {
				parts = append(parts, chatContentPart{Type: "image_url", ImageURL: &chatImageRef{URL: url}})
			}
		case BlockToolResult:
			// Tool results are dedicated turns referencing the call id.
			flush()
			messages = append(messages, chatMessage{
				Role:       "tool",
				Content:    chatTextContent(block.Content),
				ToolCallID: block.ToolUseID,
			})
		}
	}
	flush()

	if len(messages) == 0 {
		messages = append(messages, chatMessage{Role: "user", Content: chatTextContent("")})
	}
	return messages
}

// toChatAssistantMessage splits assistant text from tool invocations.
func toChatAssistantMessage(message Message) chatMessage {
	wire := chatMessage{Role: "assistant"}

	var textParts []string
	for _, block := range message.Content {
		switch block.Type {
		case BlockText:
			textParts = append(textParts, block.Text)
		case BlockToolUse:
			wire.ToolCalls = append(wire.ToolCalls, chatToolCall{
				ID:   block.ID,
				Type: "function",
				Function: chatToolFunction{
					Name:      block.Name,
					Arguments: string(block.Input),
				},
			})
		}
	}
	if len(textParts) > 0 {
		wire.Content = chatTextContent(strings.Join(textParts, ""))
	}
	return wire
}

// mergeSameRoleTurns accumulates consecutive same-role user and
// assistant turns into single turns. Tool turns are never merged: each
// references its own call id.
func mergeSameRoleTurns(messages []chatMessage) []chatMessage {
	var merged []chatMessage
	for _, message := range messages {
		if len(merged) == 0 || message.Role == "tool" {
			merged = append(merged, message)
			continue
		}
		previous := &merged[len(merged)-1]
		if previous.Role != message.Role || previous.Role == "tool" {
			merged = append(merged, message)
			continue
		}

		previous.Content = joinChatContent(previous.Content, message.Content)
		previous.ToolCalls = append(previous.ToolCalls, message.ToolCalls...)
	}
	return merged
}

// --- content part helpers ---

type chatContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageRef `json:"image_url,omitempty"`
}

type chatImageRef struct {
	URL string `json:"url"`
}

// chatTextContent serializes text as the JSON string form of the
// polymorphic content field.
func chatTextContent(text string) json.RawMessage {
	data, _ := json.Marshal(text)
	return data
}

// marshalChatParts serializes content parts as the array form. A single
// text part collapses to the plain string form.
func marshalChatParts(parts []chatContentPart) json.RawMessage {
	if len(parts) == 1 && parts[0].Type == "text" {
		return chatTextContent(parts[0].Text)
	}
	data, _ := json.Marshal(parts)
	return data
}

// joinChatContent concatenates two polymorphic content values into the
// array form, keeping part order.
func joinChatContent(first, second json.RawMessage) json.RawMessage {
	parts := append(unmarshalChatParts(first), unmarshalChatParts(second)...)
	if len(parts) == 0 {
		return nil
	}
	return marshalChatParts(parts)
}

// unmarshalChatParts parses a polymorphic content value into parts.
func unmarshalChatParts(content json.RawMessage) []chatContentPart {
	if len(content) == 0 {
		return nil
	}
	var text string
	if json.Unmarshal(content, &text) == nil {
		if text == "" {
			return nil
		}
		return []chatContentPart{{Type: "text", Text: text}}
	}
	var parts []chatContentPart
	if json.Unmarshal(content, &parts) == nil {
		return parts
	}
	return nil
}

// chatImageURL converts an image source to a chat image URL: direct
// for URL sources, a data URI for inline base64.
func chatImageURL(source *ImageSource) (string, bool) {
	if source == nil {
		return "", false
	}
	switch source.Type {
	case "url":
		return source.URL, source.URL != ""
	case "base64":
		if source.Data == "" {
			return "", false
		}
		return fmt.Sprintf("data:%s;base64,%s", source.MediaType, source.Data), true
	}
	return "", false
}

// --- response translation ---

func (wireResponse *chatResponse) toResponse() *Response {
	response := &Response{
		ID:    wireResponse.ID,
		Role:  string(RoleAssistant),
		Model: wireResponse.Model,
		Usage: Usage{
			InputTokens:  wireResponse.Usage.PromptTokens,
			OutputTokens: wireResponse.Usage.CompletionTokens,
		},
	}
	if response.ID == "" {
		response.ID = "msg_" + uuid.NewString()
	}

	if len(wireResponse.Choices) > 0 {
		message := wireResponse.Choices[0].Message
		for _, part := range unmarshalChatParts(message.Content) {
			if part.Type == "text" && part.Text != "" {
				response.Content = append(response.Content, TextBlock(part.Text))
			}
		}
		for _, toolCall := range message.ToolCalls {
			id := toolCall.ID
			if id == "" {
				id = "call_" + uuid.NewString()
			}
			response.Content = append(response.Content, ToolUseBlock(
				id, toolCall.Function.Name, parseArguments(toolCall.Function.Arguments)))
		}
	}

	response.StopReason = inferStopReason(response.Content)
	return response
}

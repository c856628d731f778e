// Copyright 2026 The OpenSeed Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"encoding/json"
	"fmt"
)

// Request is the canonical request every creature sends, regardless of
// which upstream provider will serve it.
type Request struct {
	Model     string    `json:"model"`
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
	Tools     []Tool    `json:"tools,omitempty"`
	MaxTokens int       `json:"max_tokens"`
}

// Response is the canonical response every creature receives,
// regardless of which upstream produced it.
type Response struct {
	ID         string  `json:"id"`
	Role       string  `json:"role"`
	Content    []Block `json:"content"`
	Model      string  `json:"model"`
	StopReason string  `json:"stop_reason"`
	Usage      Usage   `json:"usage"`
}

// Usage is the canonical billing pair. Upstream usage fields are
// renamed to these regardless of the provider's own naming.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Role is a conversation turn role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation turn.
type Message struct {
	Role    Role    `json:"role"`
	Content Content `json:"content"`
}

// Content is a turn's content: a list of typed blocks. On the wire a
// plain JSON string is also accepted and decodes as a single text
// block, matching what creatures actually send for simple turns.
type Content []Block

// UnmarshalJSON accepts either a JSON string or an array of blocks.
func (content *Content) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*content = Content{TextBlock(text)}
		return nil
	}
	var blocks []Block
	if err := json.Unmarshal(data, &blocks); err != nil {
		return fmt.Errorf("content is neither a string nor a block list: %w", err)
	}
	*content = blocks
	return nil
}

// BlockType discriminates content block variants.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
	BlockImage      BlockType = "image"
)

// Block is one typed content block. Exactly one variant's fields are
// set, selected by Type.
type Block struct {
	Type BlockType `json:"type"`

	// Text block.
	Text string `json:"text,omitempty"`

	// Tool invocation request: Input is always a parsed JSON object,
	// never a string-encoded one.
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// Tool result, referencing the invocation it answers.
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`

	// Image.
	Source *ImageSource `json:"source,omitempty"`
}

// ImageSource carries image data either inline (base64) or by URL.
type ImageSource struct {
	Type      string `json:"type"` // "base64" or "url"
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

// Tool is a tool definition offered to the model.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// TextBlock returns a text content block.
func TextBlock(text string) Block {
	return Block{Type: BlockText, Text: text}
}

// ToolUseBlock returns a tool invocation block.
func ToolUseBlock(id, name string, input json.RawMessage) Block {
	return Block{Type: BlockToolUse, ID: id, Name: name, Input: input}
}

// ToolResultBlock returns a tool result block.
func ToolResultBlock(toolUseID, content string, isError bool) Block {
	return Block{Type: BlockToolResult, ToolUseID: toolUseID, Content: content, IsError: isError}
}

// parseArguments normalizes a tool call's argument payload. Upstreams
// return arguments as a JSON-encoded string; the canonical format
// carries the parsed object. Malformed JSON must not crash translation:
// it becomes an empty argument object.
func parseArguments(raw string) json.RawMessage {
	trimmed := []byte(raw)
	if json.Valid(trimmed) && len(raw) > 0 {
		return trimmed
	}
	return json.RawMessage("{}")
}

// inferStopReason is the canonical stop reason rule: "tool_use" when
// any tool invocation block is present, else "end_turn".
func inferStopReason(content []Block) string {
	for _, block := range content {
		if block.Type == BlockToolUse {
			return "tool_use"
		}
	}
	return "end_turn"
}

// UpstreamError is an HTTP error response from a provider. It passes
// through the gateway with its original status code; the gateway never
// retries.
type UpstreamError struct {
	Provider   ProviderKind
	StatusCode int
	Type       string
	Message    string
}

func (err *UpstreamError) Error() string {
	if err.Type != "" {
		return fmt.Sprintf("gateway/%s: HTTP %d: %s: %s", err.Provider, err.StatusCode, err.Type, err.Message)
	}
	return fmt.Sprintf("gateway/%s: HTTP %d: %s", err.Provider, err.StatusCode, err.Message)
}

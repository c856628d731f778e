// Copyright 2026 The OpenSeed Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/google/uuid"
)

// Gemini is the contents/parts direct provider. The system prompt
// becomes a dedicated system_instruction object, the assistant role is
// renamed "model", tool invocations become functionCall parts and tool
// results functionResponse parts keyed by call id. Inline base64
// images are embedded directly; URL-referenced images are unsupported
// and dropped with a logged warning.
//
// The upstream API identifies function calls by name rather than id,
// so call ids are carried in the functionResponse name field and
// synthesized for returned functionCall parts.
type Gemini struct {
	client  *http.Client
	baseURL string
	apiKey  string
	logger  *slog.Logger
}

// NewGemini creates the contents/parts provider. baseURL defaults to
// the public endpoint; tests point it at a local server.
func NewGemini(apiKey, baseURL string, logger *slog.Logger) *Gemini {
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gemini{
		client:  newUpstreamClient(),
		baseURL: baseURL,
		apiKey:  apiKey,
		logger:  logger,
	}
}

// Kind identifies the provider family.
func (provider *Gemini) Kind() ProviderKind { return KindGemini }

// Complete translates to the contents/parts format, calls the
// upstream, and normalizes the response to the canonical shape.
func (provider *Gemini) Complete(ctx context.Context, request *Request) (*Response, error) {
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent",
		provider.baseURL, url.PathEscape(request.Model))

	body, err := doUpstreamRequest(ctx, provider.client, KindGemini, endpoint,
		map[string]string{"x-goog-api-key": provider.apiKey},
		provider.buildRequest(request))
	if err != nil {
		return nil, err
	}

	var wireResponse geminiResponse
	if err := json.Unmarshal(body, &wireResponse); err != nil {
		return nil, fmt.Errorf("gateway/gemini: decoding response: %w", err)
	}
	return wireResponse.toResponse(request.Model), nil
}

// --- Gemini wire types ---

type geminiRequest struct {
	SystemInstruction *geminiContent         `json:"system_instruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	Tools             []geminiToolsEntry     `json:"tools,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generation_config"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text             string                  `json:"text,omitempty"`
	InlineData       *geminiInlineData       `json:"inline_data,omitempty"`
	FunctionCall     *geminiFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResponse `json:"functionResponse,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiFunctionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

type geminiFunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiToolsEntry struct {
	FunctionDeclarations []geminiFunctionDeclaration `json:"function_declarations"`
}

type geminiFunctionDeclaration struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int `json:"max_output_tokens,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int64 `json:"promptTokenCount"`
		CandidatesTokenCount int64 `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// --- request translation ---

func (provider *Gemini) buildRequest(request *Request) geminiRequest {
	wire := geminiRequest{
		GenerationConfig: geminiGenerationConfig{MaxOutputTokens: request.MaxTokens},
	}

	if request.System != "" {
		wire.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: request.System}},
		}
	}

	for _, message := range request.Messages {
		role := "user"
		if message.Role == RoleAssistant {
			role = "model"
		}

		var parts []geminiPart
		for _, block := range message.Content {
			switch block.Type {
			case BlockText:
				parts = append(parts, geminiPart{Text: block.Text})
			case BlockImage:
				if part, ok := provider.imagePart(block.Source); ok {
					parts = append(parts, part)
				}
			case BlockToolUse:
				parts = append(parts, geminiPart{FunctionCall: &geminiFunctionCall{
					Name: block.Name,
					Args: block.Input,
				}})
			case BlockToolResult:
				// The call id keys the response to its invocation.
				parts = append(parts, geminiPart{FunctionResponse: &geminiFunctionResponse{
					Name:     block.ToolUseID,
					Response: map[string]any{"content": block.Content, "is_error": block.IsError},
				}})
			}
		}
		if len(parts) == 0 {
			continue
		}
		wire.Contents = append(wire.Contents, geminiContent{Role: role, Parts: parts})
	}

	if len(request.Tools) > 0 {
		entry := geminiToolsEntry{}
		for _, tool := range request.Tools {
			entry.FunctionDeclarations = append(entry.FunctionDeclarations, geminiFunctionDeclaration{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.InputSchema,
			})
		}
		wire.Tools = []geminiToolsEntry{entry}
	}
	return wire
}

// imagePart converts an inline base64 image to an inline_data part.
// URL-referenced images have no Gemini equivalent and are dropped.
func (provider *Gemini) imagePart(source *ImageSource) (geminiPart, bool) {
	if source == nil {
		return geminiPart{}, false
	}
	if source.Type != "base64" || source.Data == "" {
		provider.logger.Warn("dropping URL-referenced image, gemini requires inline data",
			"url", source.URL)
		return geminiPart{}, false
	}
	return geminiPart{InlineData: &geminiInlineData{
		MimeType: source.MediaType,
		Data:     source.Data,
	}}, true
}

// --- response translation ---

func (wireResponse *geminiResponse) toResponse(model string) *Response {
	response := &Response{
		ID:    "msg_" + uuid.NewString(),
		Role:  string(RoleAssistant),
		Model: model,
		Usage: Usage{
			InputTokens:  wireResponse.UsageMetadata.PromptTokenCount,
			OutputTokens: wireResponse.UsageMetadata.CandidatesTokenCount,
		},
	}

	if len(wireResponse.Candidates) > 0 {
		for _, part := range wireResponse.Candidates[0].Content.Parts {
			switch {
			case part.FunctionCall != nil:
				// Gemini does not assign call ids; synthesize one so
				// the creature can key its tool result.
				arguments := parseArguments(string(part.FunctionCall.Args))
				response.Content = append(response.Content, ToolUseBlock(
					"call_"+uuid.NewString(), part.FunctionCall.Name, arguments))
			case part.Text != "":
				response.Content = append(response.Content, TextBlock(part.Text))
			}
		}
	}

	response.StopReason = inferStopReason(response.Content)
	return response
}

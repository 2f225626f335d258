// Package model (this file) adapts Client to the OpenAI Chat Completions
// API, grounded on the shape of features/model/openai's client.go but
// targeting github.com/openai/openai-go rather than the teacher's chosen
// OpenAI SDK.
package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ChatCompletions captures the subset of the OpenAI SDK used by the adapter.
type ChatCompletions interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAIOptions configures the OpenAI adapter.
type OpenAIOptions struct {
	DefaultModel string
}

// OpenAIClient implements Client via the OpenAI Chat Completions API.
type OpenAIClient struct {
	chat  ChatCompletions
	model string
}

// NewOpenAIClient builds an adapter from an injected chat completions client.
func NewOpenAIClient(chat ChatCompletions, opts OpenAIOptions) (*OpenAIClient, error) {
	if chat == nil {
		return nil, errors.New("openai client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("default model is required")
	}
	return &OpenAIClient{chat: chat, model: opts.DefaultModel}, nil
}

// NewOpenAIClientFromAPIKey constructs a client authenticated with the given
// API key, which must be non-empty.
func NewOpenAIClientFromAPIKey(apiKey, defaultModel string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	c := openai.NewClient(option.WithAPIKey(apiKey))
	return NewOpenAIClient(&c.Chat.Completions, OpenAIOptions{DefaultModel: defaultModel})
}

func (c *OpenAIClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("openai: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.model
	}
	messages, err := encodeOpenAIMessages(req)
	if err != nil {
		return nil, err
	}
	params := openai.ChatCompletionNewParams{
		Model:    modelID,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(float64(req.Temperature))
	}
	if tools := encodeOpenAITools(req.Tools); len(tools) > 0 {
		params.Tools = tools
	}
	resp, err := c.chat.New(ctx, params)
	if err != nil {
		if isOpenAIRateLimited(err) {
			return nil, fmt.Errorf("%w: %w", ErrRateLimited, err)
		}
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	return translateOpenAIResponse(resp)
}

// Stream is not implemented: this adapter favors fidelity of the non-streaming request/response
// mapping over reproducing OpenAI's SSE delta format.
func (c *OpenAIClient) Stream(ctx context.Context, req *Request) (Streamer, error) {
	return nil, ErrStreamingUnsupported
}

func encodeOpenAIMessages(req *Request) ([]openai.ChatCompletionMessageParamUnion, error) {
	var out []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		out = append(out, openai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		for _, p := range m.Parts {
			switch part := p.(type) {
			case TextPart:
				switch m.Role {
				case RoleUser:
					out = append(out, openai.UserMessage(part.Text))
				case RoleAssistant:
					out = append(out, openai.AssistantMessage(part.Text))
				case RoleSystem:
					out = append(out, openai.SystemMessage(part.Text))
				}
			case ToolResultPart:
				out = append(out, openai.ToolMessage(part.Content, part.ToolUseID))
			}
		}
	}
	return out, nil
}

func encodeOpenAITools(defs []*ToolDefinition) []openai.ChatCompletionToolUnionParam {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(defs))
	for _, d := range defs {
		out = append(out, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        d.Name,
			Description: openai.String(d.Description),
			Parameters:  openai.FunctionParameters(toJSONObject(d.InputSchema)),
		}))
	}
	return out
}

func toJSONObject(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func translateOpenAIResponse(resp *openai.ChatCompletion) (*Response, error) {
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: response has no choices")
	}
	choice := resp.Choices[0]
	out := &Response{
		StopReason: string(choice.FinishReason),
		Usage: TokenUsage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
	}
	if text := choice.Message.Content; text != "" {
		out.Content = []Message{{Role: RoleAssistant, Parts: []Part{TextPart{Text: text}}}}
	}
	for _, call := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:      call.ID,
			Name:    call.Function.Name,
			Payload: json.RawMessage(call.Function.Arguments),
		})
	}
	return out, nil
}

func isOpenAIRateLimited(err error) bool {
	var apiErr *openai.Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == 429
}

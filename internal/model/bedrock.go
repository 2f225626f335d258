// Package model (this file) adapts Client to the AWS Bedrock Converse API,
// grounded on features/model/bedrock's client.go: split messages, encode
// tool schemas into Bedrock's ToolConfiguration, translate Converse output
// back into the generic Response shape.
package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"
)

// BedrockRuntime mirrors the subset of the AWS Bedrock runtime client the
// adapter needs; satisfied by *bedrockruntime.Client.
type BedrockRuntime interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockOptions configures the Bedrock adapter.
type BedrockOptions struct {
	DefaultModel string
	HighModel    string
	SmallModel   string
	MaxTokens    int
	Temperature  float32
}

// BedrockClient implements Client on top of AWS Bedrock Converse.
type BedrockClient struct {
	runtime      BedrockRuntime
	defaultModel string
	highModel    string
	smallModel   string
	maxTok       int
	temp         float32
}

// NewBedrockClient builds an adapter from an injected Bedrock runtime client.
func NewBedrockClient(runtime BedrockRuntime, opts BedrockOptions) (*BedrockClient, error) {
	if runtime == nil {
		return nil, errors.New("bedrock runtime client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("default model identifier is required")
	}
	return &BedrockClient{
		runtime:      runtime,
		defaultModel: opts.DefaultModel,
		highModel:    opts.HighModel,
		smallModel:   opts.SmallModel,
		maxTok:       opts.MaxTokens,
		temp:         opts.Temperature,
	}, nil
}

func (c *BedrockClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	input, err := c.prepareInput(req)
	if err != nil {
		return nil, err
	}
	out, err := c.runtime.Converse(ctx, input)
	if err != nil {
		if isBedrockThrottled(err) {
			return nil, fmt.Errorf("%w: %w", ErrRateLimited, err)
		}
		return nil, fmt.Errorf("bedrock converse: %w", err)
	}
	return translateBedrockOutput(out)
}

// Stream is not implemented: ConverseStream's event-stream decoding adds
// substantial adapter surface beyond what the planner's non-streaming
// fallback (SPEC_FULL.md §4.4) requires for a Bedrock-routed model class.
func (c *BedrockClient) Stream(ctx context.Context, req *Request) (Streamer, error) {
	return nil, ErrStreamingUnsupported
}

func (c *BedrockClient) resolveModelID(req *Request) string {
	if req.Model != "" {
		return req.Model
	}
	switch req.ModelClass {
	case ModelClassHighReasoning:
		if c.highModel != "" {
			return c.highModel
		}
	case ModelClassSmall:
		if c.smallModel != "" {
			return c.smallModel
		}
	}
	return c.defaultModel
}

func (c *BedrockClient) prepareInput(req *Request) (*bedrockruntime.ConverseInput, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("bedrock: messages are required")
	}
	modelID := c.resolveModelID(req)
	if modelID == "" {
		return nil, errors.New("bedrock: model identifier is required")
	}
	msgs, err := encodeBedrockMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(modelID),
		Messages: msgs,
	}
	if req.System != "" {
		input.System = []brtypes.SystemContentBlock{&brtypes.SystemContentBlockMemberText{Value: req.System}}
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTok
	}
	temp := req.Temperature
	if temp <= 0 {
		temp = c.temp
	}
	if maxTokens > 0 || temp > 0 {
		cfg := &brtypes.InferenceConfiguration{}
		if maxTokens > 0 {
			cfg.MaxTokens = aws.Int32(int32(maxTokens))
		}
		if temp > 0 {
			cfg.Temperature = aws.Float32(temp)
		}
		input.InferenceConfig = cfg
	}
	if tools, err := encodeBedrockTools(req.Tools); err != nil {
		return nil, err
	} else if len(tools) > 0 {
		input.ToolConfig = &brtypes.ToolConfiguration{Tools: tools}
	}
	return input, nil
}

func encodeBedrockMessages(msgs []*Message) ([]brtypes.Message, error) {
	out := make([]brtypes.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == RoleSystem {
			continue
		}
		var blocks []brtypes.ContentBlock
		for _, p := range m.Parts {
			switch part := p.(type) {
			case TextPart:
				blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: part.Text})
			case ToolUsePart:
				var input any
				if err := json.Unmarshal(part.Input, &input); err != nil {
					return nil, fmt.Errorf("bedrock: decode tool use input: %w", err)
				}
				blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{
					Value: brtypes.ToolUseBlock{ToolUseId: aws.String(part.ID), Name: aws.String(part.Name), Input: document.NewLazyDocument(input)},
				})
			case ToolResultPart:
				status := brtypes.ToolResultStatusSuccess
				if part.IsError {
					status = brtypes.ToolResultStatusError
				}
				blocks = append(blocks, &brtypes.ContentBlockMemberToolResult{
					Value: brtypes.ToolResultBlock{
						ToolUseId: aws.String(part.ToolUseID),
						Status:    status,
						Content:   []brtypes.ToolResultContentBlock{&brtypes.ToolResultContentBlockMemberText{Value: part.Content}},
					},
				})
			}
		}
		role := brtypes.ConversationRoleUser
		if m.Role == RoleAssistant {
			role = brtypes.ConversationRoleAssistant
		}
		out = append(out, brtypes.Message{Role: role, Content: blocks})
	}
	return out, nil
}

func encodeBedrockTools(defs []*ToolDefinition) ([]brtypes.Tool, error) {
	out := make([]brtypes.Tool, 0, len(defs))
	for _, d := range defs {
		schema, ok := d.InputSchema.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("bedrock: tool %q schema must be a JSON object", d.Name)
		}
		out = append(out, &brtypes.ToolMemberToolSpec{
			Value: brtypes.ToolSpecification{
				Name:        aws.String(d.Name),
				Description: aws.String(d.Description),
				InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
			},
		})
	}
	return out, nil
}

func translateBedrockOutput(out *bedrockruntime.ConverseOutput) (*Response, error) {
	resp := &Response{StopReason: string(out.StopReason)}
	if out.Usage != nil {
		resp.Usage = TokenUsage{
			InputTokens:  int(aws.ToInt32(out.Usage.InputTokens)),
			OutputTokens: int(aws.ToInt32(out.Usage.OutputTokens)),
			TotalTokens:  int(aws.ToInt32(out.Usage.TotalTokens)),
		}
	}
	msgOutput, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return resp, nil
	}
	var parts []Part
	for _, block := range msgOutput.Value.Content {
		switch b := block.(type) {
		case *brtypes.ContentBlockMemberText:
			parts = append(parts, TextPart{Text: b.Value})
		case *brtypes.ContentBlockMemberToolUse:
			var raw map[string]any
			if err := b.Value.Input.UnmarshalSmithyDocument(&raw); err != nil {
				return nil, fmt.Errorf("bedrock: decode tool use input: %w", err)
			}
			payload, err := json.Marshal(raw)
			if err != nil {
				return nil, fmt.Errorf("bedrock: encode tool use payload: %w", err)
			}
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:      aws.ToString(b.Value.ToolUseId),
				Name:    aws.ToString(b.Value.Name),
				Payload: payload,
			})
		}
	}
	if len(parts) > 0 {
		resp.Content = []Message{{Role: RoleAssistant, Parts: parts}}
	}
	return resp, nil
}

func isBedrockThrottled(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ThrottlingException"
}

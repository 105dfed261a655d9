package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
)

type AnthropicProvider struct {
	client anthropic.Client
}

func NewAnthropicProvider(apiKey, baseURL string) *AnthropicProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicProvider{client: anthropic.NewClient(opts...)}
}

func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		MaxTokens:   int64(req.MaxTokens),
		Messages:    toAnthropicMessages(req.Messages),
		Temperature: anthropic.Float(float64(req.Temperature)),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = toAnthropicTools(req)
		switch {
		case req.NoToolUse:
			none := anthropic.NewToolChoiceNoneParam()
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfNone: &none}
		case req.ForceTool != "":
			params.ToolChoice = anthropic.ToolChoiceParamOfTool(req.ForceTool)
		}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic complete: %w", err)
	}

	var text strings.Builder
	out := &Response{}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: string(block.Input),
			})
		}
	}
	out.Content = text.String()
	return out, nil
}

// toAnthropicMessages folds tool results into user turns and merges
// consecutive user turns, as the Messages API expects alternating roles.
func toAnthropicMessages(messages []Message) []anthropic.MessageParam {
	var result []anthropic.MessageParam
	var userBlocks []anthropic.ContentBlockParamUnion

	flushUser := func() {
		if len(userBlocks) > 0 {
			result = append(result, anthropic.NewUserMessage(userBlocks...))
			userBlocks = nil
		}
	}

	for _, m := range messages {
		switch m.Role {
		case RoleAssistant:
			flushUser()
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, json.RawMessage(tc.Arguments), tc.Name))
			}
			result = append(result, anthropic.NewAssistantMessage(blocks...))
		case RoleTool:
			userBlocks = append(userBlocks, anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false))
		default:
			userBlocks = append(userBlocks, anthropic.NewTextBlock(m.Content))
		}
	}
	flushUser()
	return result
}

func toAnthropicTools(req Request) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, 0, len(req.Tools))
	for _, t := range req.Tools {
		var schema struct {
			Properties any      `json:"properties"`
			Required   []string `json:"required"`
		}
		data, err := json.Marshal(t.Parameters())
		if err == nil {
			json.Unmarshal(data, &schema) //nolint:errcheck
		}

		tp := anthropic.ToolUnionParamOfTool(
			anthropic.ToolInputSchemaParam{
				Properties: schema.Properties,
				Required:   schema.Required,
			},
			t.Name(),
		)
		tp.OfTool.Description = param.NewOpt(t.Description())
		result = append(result, tp)
	}
	return result
}

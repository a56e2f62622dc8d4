package llm

import (
	"context"
	"encoding/json"
	"log"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/becomeliminal/aide/config"
)

// anthropicProvider talks to the Anthropic Messages API with native
// tool use.
type anthropicProvider struct {
	client      anthropic.Client
	model       string
	temperature float64
	maxTokens   int
}

func newAnthropic(apiKey, model string, temperature float64, maxTokens int) *anthropicProvider {
	return &anthropicProvider{
		client:      anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
	}
}

func (p *anthropicProvider) Name() string {
	return config.ProviderAnthropic
}

func (p *anthropicProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   int64(pickInt(req.MaxTokens, p.maxTokens)),
		Messages:    convertAnthropicMessages(req.Messages),
		Temperature: anthropic.Float(pick(req.Temperature, p.temperature)),
	}

	if req.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.System},
		}
	}

	if len(req.Tools) > 0 {
		toolParams := make([]anthropic.ToolParam, len(req.Tools))
		for i, tool := range req.Tools {
			toolParams[i] = anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: convertAnthropicSchema(tool.InputSchema),
			}
		}
		apiTools := make([]anthropic.ToolUnionParam, len(toolParams))
		for i := range toolParams {
			apiTools[i] = anthropic.ToolUnionParam{OfTool: &toolParams[i]}
		}
		params.Tools = apiTools
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, &ProviderError{Provider: config.ProviderAnthropic, Err: err}
	}

	out := &Response{
		Usage: Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			out.Text += block.Text
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: string(block.Input),
			})
		}
	}

	if out.Text == "" && len(out.ToolCalls) == 0 {
		return nil, &ProviderError{Provider: config.ProviderAnthropic, Err: ErrNoContent}
	}

	log.Printf("[LLM] anthropic responded (%d in / %d out tokens, %d tool calls)",
		resp.Usage.InputTokens, resp.Usage.OutputTokens, len(out.ToolCalls))

	return out, nil
}

// convertAnthropicMessages rebuilds the conversation in Anthropic's
// block format. Tool results must arrive as a single user message
// immediately after the assistant turn that issued the tool_use
// blocks, so consecutive RoleTool messages are grouped.
func convertAnthropicMessages(messages []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))

	for i := 0; i < len(messages); i++ {
		msg := &messages[i]

		switch msg.Role {
		case RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))

		case RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				if msg.Content != "" {
					out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
				}
				continue
			}

			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				var input map[string]any
				if err := json.Unmarshal([]byte(call.Arguments), &input); err != nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    call.ID,
						Input: input,
						Name:  call.Name,
					},
				})
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))

		case RoleTool:
			var results []anthropic.ContentBlockParamUnion
			for i < len(messages) && messages[i].Role == RoleTool {
				results = append(results, anthropic.NewToolResultBlock(
					messages[i].ToolCallID, messages[i].Content, false))
				i++
			}
			i--
			out = append(out, anthropic.NewUserMessage(results...))
		}
	}

	return out
}

func convertAnthropicSchema(schema map[string]interface{}) anthropic.ToolInputSchemaParam {
	out := anthropic.ToolInputSchemaParam{
		Properties: schema["properties"],
	}
	if required, ok := schema["required"].([]string); ok {
		out.Required = required
	}
	return out
}

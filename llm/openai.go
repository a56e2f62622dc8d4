package llm

import (
	"context"
	"log"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/shared"
)

// openAIProvider serves any OpenAI-compatible chat completions API.
// DeepSeek reuses it with a different base URL and model.
type openAIProvider struct {
	name        string
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int
}

func newOpenAI(name, apiKey, baseURL, model string, temperature float64, maxTokens int) *openAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &openAIProvider{
		name:        name,
		client:      openai.NewClient(opts...),
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
	}
}

func (p *openAIProvider) Name() string {
	return p.name
}

func (p *openAIProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	params := openai.ChatCompletionNewParams{
		Model:       p.model,
		Messages:    p.convertMessages(req),
		Temperature: openai.Float(pick(req.Temperature, p.temperature)),
	}

	if maxTokens := pickInt(req.MaxTokens, p.maxTokens); maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}

	if len(req.Tools) > 0 {
		toolsParam := make([]openai.ChatCompletionToolUnionParam, len(req.Tools))
		for i, tool := range req.Tools {
			toolsParam[i] = openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: openai.String(tool.Description),
				Parameters:  shared.FunctionParameters(tool.InputSchema),
			})
		}
		params.Tools = toolsParam
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, &ProviderError{Provider: p.name, Err: err}
	}

	if len(resp.Choices) == 0 {
		return nil, &ProviderError{Provider: p.name, Err: ErrNoContent}
	}

	msg := resp.Choices[0].Message
	out := &Response{
		Text: msg.Content,
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}
	for _, call := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}

	if out.Text == "" && len(out.ToolCalls) == 0 {
		return nil, &ProviderError{Provider: p.name, Err: ErrNoContent}
	}

	log.Printf("[LLM] %s responded (%d in / %d out tokens, %d tool calls)",
		p.name, out.Usage.InputTokens, out.Usage.OutputTokens, len(out.ToolCalls))

	return out, nil
}

func (p *openAIProvider) convertMessages(req *Request) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)

	if req.System != "" {
		out = append(out, openai.SystemMessage(req.System))
	}

	for i := range req.Messages {
		msg := &req.Messages[i]

		switch msg.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))

		case RoleUser:
			out = append(out, openai.UserMessage(msg.Content))

		case RoleAssistant:
			assistant := openai.ChatCompletionAssistantMessageParam{}
			if msg.Content != "" {
				assistant.Content.OfString = param.NewOpt(msg.Content)
			}
			if len(msg.ToolCalls) > 0 {
				calls := make([]openai.ChatCompletionMessageToolCallUnionParam, len(msg.ToolCalls))
				for j, call := range msg.ToolCalls {
					calls[j] = openai.ChatCompletionMessageToolCallUnionParam{
						OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
							ID: call.ID,
							Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
								Name:      call.Name,
								Arguments: call.Arguments,
							},
						},
					}
				}
				assistant.ToolCalls = calls
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})

		case RoleTool:
			tool := openai.ChatCompletionToolMessageParam{ToolCallID: msg.ToolCallID}
			tool.Content.OfString = param.NewOpt(msg.Content)
			out = append(out, openai.ChatCompletionMessageParamUnion{OfTool: &tool})
		}
	}

	return out
}

// pick returns the override when set, otherwise the configured default.
func pick(override, fallback float64) float64 {
	if override != 0 {
		return override
	}
	return fallback
}

func pickInt(override, fallback int) int {
	if override != 0 {
		return override
	}
	return fallback
}

package llm

import (
	"context"
	"fmt"
	"log"

	"google.golang.org/genai"

	"github.com/becomeliminal/aide/config"
)

// geminiProvider talks to the Gemini API natively. It does not bind
// tools: tool-carrying requests get ErrToolsUnsupported and the caller
// falls back to a plain completion.
type geminiProvider struct {
	client      *genai.Client
	model       string
	temperature float64
	maxTokens   int
}

func newGemini(ctx context.Context, apiKey, model string, temperature float64, maxTokens int) (*geminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &geminiProvider{
		client:      client,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
	}, nil
}

func (p *geminiProvider) Name() string {
	return config.ProviderGemini
}

func (p *geminiProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	if len(req.Tools) > 0 {
		return nil, ErrToolsUnsupported
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(pick(req.Temperature, p.temperature))),
	}
	if maxTokens := pickInt(req.MaxTokens, p.maxTokens); maxTokens > 0 {
		cfg.MaxOutputTokens = int32(maxTokens)
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromParts(
			[]*genai.Part{genai.NewPartFromText(req.System)}, genai.RoleUser)
	}

	contents := make([]*genai.Content, 0, len(req.Messages))
	for i := range req.Messages {
		msg := &req.Messages[i]
		if msg.Content == "" {
			continue
		}

		role := genai.Role(genai.RoleUser)
		if msg.Role == RoleAssistant {
			role = genai.RoleModel
		}

		contents = append(contents, genai.NewContentFromParts(
			[]*genai.Part{genai.NewPartFromText(msg.Content)}, role))
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, cfg)
	if err != nil {
		return nil, &ProviderError{Provider: config.ProviderGemini, Err: err}
	}

	var text string
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			text += part.Text
		}
		break
	}

	if text == "" {
		return nil, &ProviderError{Provider: config.ProviderGemini, Err: ErrNoContent}
	}

	out := &Response{Text: text}
	if resp.UsageMetadata != nil {
		out.Usage = Usage{
			InputTokens:  int64(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int64(resp.UsageMetadata.CandidatesTokenCount),
		}
	}

	log.Printf("[LLM] gemini responded (%d in / %d out tokens)",
		out.Usage.InputTokens, out.Usage.OutputTokens)

	return out, nil
}

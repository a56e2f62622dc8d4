// Package llm normalizes multiple chat-completion backends behind a
// single Provider interface so the rest of the assistant never touches
// provider-specific types.
//
// Supported backends:
//   - openai: the OpenAI chat completions API
//   - deepseek: OpenAI-compatible API at a different base URL
//   - gemini: Google Gemini native API (no tool calling)
//   - anthropic: Anthropic Messages API
//
// Providers that cannot perform native tool calling return
// ErrToolsUnsupported for requests carrying tools; callers retry the
// same request without tools.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/becomeliminal/aide/config"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string
	Content string

	// ToolCalls carries the assistant's tool invocations when Role is
	// RoleAssistant.
	ToolCalls []ToolCall

	// ToolCallID links a RoleTool message to the call it answers.
	ToolCallID string
}

// Tool describes a function the model may call. InputSchema is a JSON
// Schema object ("type": "object" at the top level).
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// ToolCall is a model-requested tool invocation. Arguments is the raw
// JSON argument object as returned by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Usage reports token consumption for one request.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Request is a provider-neutral completion request. Zero Temperature
// and MaxTokens fall back to the values the provider was configured
// with.
type Request struct {
	System      string
	Messages    []Message
	Tools       []Tool
	Temperature float64
	MaxTokens   int
}

// Response is the normalized completion result. Either Text or
// ToolCalls is populated; both empty is reported as ErrNoContent by
// the provider.
type Response struct {
	Text      string
	ToolCalls []ToolCall
	Usage     Usage
}

// Provider generates completions. Implementations:
//   - openAIProvider (openai, deepseek)
//   - geminiProvider
//   - anthropicProvider
type Provider interface {
	// Name identifies the backend for logs and error messages.
	Name() string

	// Generate performs one completion round trip. It never returns
	// both a response and an error.
	Generate(ctx context.Context, req *Request) (*Response, error)
}

var (
	// ErrToolsUnsupported signals that the provider cannot do native
	// tool calling. The request was not sent; retry without tools.
	ErrToolsUnsupported = errors.New("provider does not support tool calling")

	// ErrNoContent signals a completion with neither text nor tool
	// calls.
	ErrNoContent = errors.New("provider returned no content")
)

// ProviderError wraps a backend failure with the provider name.
type ProviderError struct {
	Provider string
	Err      error
}

var _ error = &ProviderError{}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// deepseekBaseURL is the OpenAI-compatible endpoint DeepSeek exposes.
const deepseekBaseURL = "https://api.deepseek.com/v1"

// New builds the configured provider. The context is only used by
// backends whose SDK requires one at construction time.
func New(ctx context.Context, cfg *config.Config) (Provider, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return newOpenAI(cfg.Provider, cfg.OpenAIKey, "", cfg.OpenAIModel, cfg.Temperature, cfg.MaxTokens), nil
	case config.ProviderDeepSeek:
		return newOpenAI(cfg.Provider, cfg.DeepSeekKey, deepseekBaseURL, cfg.DeepSeekModel, cfg.Temperature, cfg.MaxTokens), nil
	case config.ProviderGemini:
		return newGemini(ctx, cfg.GeminiKey, cfg.GeminiModel, cfg.Temperature, cfg.MaxTokens)
	case config.ProviderAnthropic:
		return newAnthropic(cfg.AnthropicKey, cfg.AnthropicModel, cfg.Temperature, cfg.MaxTokens), nil
	}
	return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
}

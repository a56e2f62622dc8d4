// Package config loads assistant configuration from built-in defaults,
// an optional YAML file, and the process environment, in that order of
// precedence. A .env file in the working directory is folded into the
// environment first when present.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Provider names accepted for the LLM backend.
const (
	ProviderOpenAI    = "openai"
	ProviderDeepSeek  = "deepseek"
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

// Embedding provider names. "auto" picks the first backend with a key,
// falling back to "mock". "none" disables embeddings entirely so
// retrieval uses keyword scoring. "onnx" requires a binary built with
// the onnx tag and a local model.
const (
	EmbeddingAuto   = "auto"
	EmbeddingOpenAI = "openai"
	EmbeddingGemini = "gemini"
	EmbeddingMock   = "mock"
	EmbeddingNone   = "none"
	EmbeddingONNX   = "onnx"
)

// Config holds every runtime setting. Instances are plain values with
// no hidden globals; construct via Load and pass explicitly.
type Config struct {
	// Provider selects the LLM backend: openai, deepseek, gemini or
	// anthropic.
	Provider string

	OpenAIKey    string
	DeepSeekKey  string
	GeminiKey    string
	AnthropicKey string

	OpenAIModel    string
	DeepSeekModel  string
	GeminiModel    string
	AnthropicModel string

	Temperature float64
	MaxTokens   int

	// RepoURL is the remote memory repository. Empty means the local
	// RepoPath is used without sync.
	RepoURL   string
	RepoToken string
	RepoPath  string

	// EmbeddingModel is optional; when empty each embedding provider
	// falls back to its own default model.
	EmbeddingProvider string
	EmbeddingModel    string

	// ONNX paths apply only when EmbeddingProvider is "onnx" and the
	// binary was built with the onnx tag.
	ONNXModelPath     string
	ONNXTokenizerPath string
	ONNXLibraryPath   string

	GoogleSearchKey string
	GoogleCSEID     string

	GitHubToken string

	FeishuWebhookURL string

	LLMTimeout  time.Duration
	HTTPTimeout time.Duration
	GitTimeout  time.Duration
}

// MissingKeysError reports every missing required setting at once so a
// misconfigured deployment surfaces all gaps in a single run.
type MissingKeysError struct {
	Missing []string
}

var _ error = &MissingKeysError{}

func (e *MissingKeysError) Error() string {
	return "missing required configuration: " + strings.Join(e.Missing, ", ")
}

// Load builds a Config. When path is not empty the YAML file there is
// layered between the defaults and the environment; a missing .env file
// is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Provider:          ProviderDeepSeek,
		OpenAIModel:       "gpt-4o-mini",
		DeepSeekModel:     "deepseek-chat",
		GeminiModel:       "gemini-2.5-flash",
		AnthropicModel:    "claude-sonnet-4-5",
		Temperature:       0.1,
		MaxTokens:         10000,
		RepoPath:          "./memory_repo",
		EmbeddingProvider: EmbeddingMock,
		LLMTimeout:        120 * time.Second,
		HTTPTimeout:       10 * time.Second,
		GitTimeout:        60 * time.Second,
	}
}

// configFile is the YAML schema. Unknown keys are rejected so typos
// fail loudly instead of silently keeping a default.
type configFile struct {
	Provider    string   `yaml:"provider"`
	Keys        keysFile `yaml:"keys"`
	Models      keysFile `yaml:"models"`
	Temperature *float64 `yaml:"temperature"`
	MaxTokens   *int     `yaml:"max_tokens"`

	Memory struct {
		RepoURL           string `yaml:"repo_url"`
		RepoToken         string `yaml:"repo_token"`
		RepoPath          string `yaml:"repo_path"`
		EmbeddingProvider string `yaml:"embedding_provider"`
		EmbeddingModel    string `yaml:"embedding_model"`
		ONNXModelPath     string `yaml:"onnx_model_path"`
		ONNXTokenizerPath string `yaml:"onnx_tokenizer_path"`
		ONNXLibraryPath   string `yaml:"onnx_library_path"`
	} `yaml:"memory"`

	Search struct {
		APIKey string `yaml:"api_key"`
		CSEID  string `yaml:"cse_id"`
	} `yaml:"search"`

	GitHub struct {
		Token string `yaml:"token"`
	} `yaml:"github"`

	Feishu struct {
		WebhookURL string `yaml:"webhook_url"`
	} `yaml:"feishu"`

	Timeouts struct {
		LLM  *int `yaml:"llm"`
		HTTP *int `yaml:"http"`
		Git  *int `yaml:"git"`
	} `yaml:"timeouts"`
}

type keysFile struct {
	OpenAI    string `yaml:"openai"`
	DeepSeek  string `yaml:"deepseek"`
	Gemini    string `yaml:"gemini"`
	Anthropic string `yaml:"anthropic"`
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	data = []byte(os.ExpandEnv(string(data)))

	var file configFile

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(&file); err != nil {
		return err
	}

	setStr(&c.Provider, file.Provider)
	setStr(&c.OpenAIKey, file.Keys.OpenAI)
	setStr(&c.DeepSeekKey, file.Keys.DeepSeek)
	setStr(&c.GeminiKey, file.Keys.Gemini)
	setStr(&c.AnthropicKey, file.Keys.Anthropic)
	setStr(&c.OpenAIModel, file.Models.OpenAI)
	setStr(&c.DeepSeekModel, file.Models.DeepSeek)
	setStr(&c.GeminiModel, file.Models.Gemini)
	setStr(&c.AnthropicModel, file.Models.Anthropic)

	if file.Temperature != nil {
		c.Temperature = *file.Temperature
	}
	if file.MaxTokens != nil {
		c.MaxTokens = *file.MaxTokens
	}

	setStr(&c.RepoURL, file.Memory.RepoURL)
	setStr(&c.RepoToken, file.Memory.RepoToken)
	setStr(&c.RepoPath, file.Memory.RepoPath)
	setStr(&c.EmbeddingProvider, file.Memory.EmbeddingProvider)
	setStr(&c.EmbeddingModel, file.Memory.EmbeddingModel)
	setStr(&c.ONNXModelPath, file.Memory.ONNXModelPath)
	setStr(&c.ONNXTokenizerPath, file.Memory.ONNXTokenizerPath)
	setStr(&c.ONNXLibraryPath, file.Memory.ONNXLibraryPath)
	setStr(&c.GoogleSearchKey, file.Search.APIKey)
	setStr(&c.GoogleCSEID, file.Search.CSEID)
	setStr(&c.GitHubToken, file.GitHub.Token)
	setStr(&c.FeishuWebhookURL, file.Feishu.WebhookURL)

	if file.Timeouts.LLM != nil {
		c.LLMTimeout = time.Duration(*file.Timeouts.LLM) * time.Second
	}
	if file.Timeouts.HTTP != nil {
		c.HTTPTimeout = time.Duration(*file.Timeouts.HTTP) * time.Second
	}
	if file.Timeouts.Git != nil {
		c.GitTimeout = time.Duration(*file.Timeouts.Git) * time.Second
	}

	return nil
}

func (c *Config) applyEnv() error {
	setEnv(&c.Provider, "LLM_PROVIDER")
	setEnv(&c.OpenAIKey, "OPENAI_API_KEY")
	setEnv(&c.DeepSeekKey, "DEEPSEEK_API_KEY")
	setEnv(&c.GeminiKey, "GEMINI_API_KEY")
	setEnv(&c.AnthropicKey, "ANTHROPIC_API_KEY")
	setEnv(&c.OpenAIModel, "OPENAI_MODEL")
	setEnv(&c.DeepSeekModel, "DEEPSEEK_MODEL")
	setEnv(&c.GeminiModel, "GEMINI_MODEL")
	setEnv(&c.AnthropicModel, "ANTHROPIC_MODEL")
	setEnv(&c.RepoURL, "MEMORY_REPO_URL")
	setEnv(&c.RepoToken, "MEMORY_REPO_TOKEN")
	setEnv(&c.RepoPath, "MEMORY_REPO_PATH")
	setEnv(&c.EmbeddingProvider, "EMBEDDING_PROVIDER")
	setEnv(&c.EmbeddingModel, "OPENAI_EMBEDDING_MODEL")
	setEnv(&c.ONNXModelPath, "ONNX_MODEL_PATH")
	setEnv(&c.ONNXTokenizerPath, "ONNX_TOKENIZER_PATH")
	setEnv(&c.ONNXLibraryPath, "ONNX_LIBRARY_PATH")
	setEnv(&c.GoogleSearchKey, "GOOGLE_API_KEY")
	setEnv(&c.GoogleCSEID, "GOOGLE_CSE_ID")
	setEnv(&c.FeishuWebhookURL, "FEISHU_WEBHOOK_URL")

	// GH_TOKEN wins over GITHUB_TOKEN, matching the gh CLI convention.
	setEnv(&c.GitHubToken, "GITHUB_TOKEN")
	setEnv(&c.GitHubToken, "GH_TOKEN")

	if v := os.Getenv("TEMPERATURE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid TEMPERATURE %q: %w", v, err)
		}
		c.Temperature = f
	}

	if v := os.Getenv("MAX_TOKENS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MAX_TOKENS %q: %w", v, err)
		}
		c.MaxTokens = n
	}

	for _, t := range []struct {
		key string
		dst *time.Duration
	}{
		{"LLM_TIMEOUT", &c.LLMTimeout},
		{"HTTP_TIMEOUT", &c.HTTPTimeout},
		{"GIT_TIMEOUT", &c.GitTimeout},
	} {
		v := os.Getenv(t.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", t.key, v, err)
		}
		*t.dst = time.Duration(n) * time.Second
	}

	return nil
}

// Validate checks the settings needed for a run and reports every
// missing key at once. The repository token is only required when a
// remote URL is configured.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderOpenAI, ProviderDeepSeek, ProviderGemini, ProviderAnthropic:
	default:
		return fmt.Errorf("unknown LLM provider %q", c.Provider)
	}

	var missing []string

	if c.APIKey() == "" {
		missing = append(missing, keyName(c.Provider))
	}
	if c.FeishuWebhookURL == "" {
		missing = append(missing, "FEISHU_WEBHOOK_URL")
	}
	if c.RepoURL != "" && c.RepoToken == "" {
		missing = append(missing, "MEMORY_REPO_TOKEN (required for private repos)")
	}

	if len(missing) > 0 {
		return &MissingKeysError{Missing: missing}
	}

	return nil
}

// APIKey returns the key for the active provider.
func (c *Config) APIKey() string {
	switch c.Provider {
	case ProviderOpenAI:
		return c.OpenAIKey
	case ProviderDeepSeek:
		return c.DeepSeekKey
	case ProviderGemini:
		return c.GeminiKey
	case ProviderAnthropic:
		return c.AnthropicKey
	}
	return ""
}

// Model returns the model name for the active provider.
func (c *Config) Model() string {
	switch c.Provider {
	case ProviderOpenAI:
		return c.OpenAIModel
	case ProviderDeepSeek:
		return c.DeepSeekModel
	case ProviderGemini:
		return c.GeminiModel
	case ProviderAnthropic:
		return c.AnthropicModel
	}
	return ""
}

func keyName(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderDeepSeek:
		return "DEEPSEEK_API_KEY"
	case ProviderGemini:
		return "GEMINI_API_KEY"
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	}
	return "API key"
}

func setStr(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

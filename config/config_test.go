package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// clearEnv blanks every variable Load reads so tests are hermetic
// regardless of the host environment.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LLM_PROVIDER", "OPENAI_API_KEY", "DEEPSEEK_API_KEY", "GEMINI_API_KEY",
		"ANTHROPIC_API_KEY", "OPENAI_MODEL", "DEEPSEEK_MODEL", "GEMINI_MODEL",
		"ANTHROPIC_MODEL", "TEMPERATURE", "MAX_TOKENS", "MEMORY_REPO_URL",
		"MEMORY_REPO_TOKEN", "MEMORY_REPO_PATH", "EMBEDDING_PROVIDER",
		"OPENAI_EMBEDDING_MODEL", "ONNX_MODEL_PATH", "ONNX_TOKENIZER_PATH",
		"ONNX_LIBRARY_PATH", "GOOGLE_API_KEY", "GOOGLE_CSE_ID",
		"GH_TOKEN", "GITHUB_TOKEN", "FEISHU_WEBHOOK_URL",
		"LLM_TIMEOUT", "HTTP_TIMEOUT", "GIT_TIMEOUT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Provider != ProviderDeepSeek {
		t.Errorf("default provider = %q, want %q", cfg.Provider, ProviderDeepSeek)
	}
	if cfg.Model() != "deepseek-chat" {
		t.Errorf("default model = %q, want deepseek-chat", cfg.Model())
	}
	if cfg.Temperature != 0.1 {
		t.Errorf("default temperature = %v, want 0.1", cfg.Temperature)
	}
	if cfg.MaxTokens != 10000 {
		t.Errorf("default max tokens = %d, want 10000", cfg.MaxTokens)
	}
	if cfg.RepoPath != "./memory_repo" {
		t.Errorf("default repo path = %q", cfg.RepoPath)
	}
	if cfg.EmbeddingProvider != EmbeddingMock {
		t.Errorf("default embedding provider = %q, want mock", cfg.EmbeddingProvider)
	}
	if cfg.LLMTimeout != 120*time.Second {
		t.Errorf("default LLM timeout = %v", cfg.LLMTimeout)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_MODEL", "gpt-4o")
	t.Setenv("TEMPERATURE", "0.7")
	t.Setenv("GIT_TIMEOUT", "5")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Provider != ProviderOpenAI {
		t.Errorf("provider = %q, want openai", cfg.Provider)
	}
	if cfg.APIKey() != "sk-test" {
		t.Errorf("APIKey = %q, want sk-test", cfg.APIKey())
	}
	if cfg.Model() != "gpt-4o" {
		t.Errorf("Model = %q, want gpt-4o", cfg.Model())
	}
	if cfg.Temperature != 0.7 {
		t.Errorf("temperature = %v, want 0.7", cfg.Temperature)
	}
	if cfg.GitTimeout != 5*time.Second {
		t.Errorf("git timeout = %v, want 5s", cfg.GitTimeout)
	}
}

func TestLoadInvalidNumericEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEMPERATURE", "hot")

	if _, err := Load(""); err == nil {
		t.Fatal("expected error for invalid TEMPERATURE")
	}
}

func TestLoadFileAndPrecedence(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "aide.yaml")
	data := `provider: gemini
temperature: 0.5
memory:
  repo_path: /tmp/memories
  embedding_provider: auto
feishu:
  webhook_url: https://example.com/hook
timeouts:
  http: 3
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	// Environment still wins over the file.
	t.Setenv("LLM_PROVIDER", "anthropic")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Provider != ProviderAnthropic {
		t.Errorf("provider = %q, env should override file", cfg.Provider)
	}
	if cfg.Temperature != 0.5 {
		t.Errorf("temperature = %v, want 0.5 from file", cfg.Temperature)
	}
	if cfg.RepoPath != "/tmp/memories" {
		t.Errorf("repo path = %q, want /tmp/memories", cfg.RepoPath)
	}
	if cfg.EmbeddingProvider != EmbeddingAuto {
		t.Errorf("embedding provider = %q, want auto", cfg.EmbeddingProvider)
	}
	if cfg.FeishuWebhookURL != "https://example.com/hook" {
		t.Errorf("webhook = %q", cfg.FeishuWebhookURL)
	}
	if cfg.HTTPTimeout != 3*time.Second {
		t.Errorf("http timeout = %v, want 3s", cfg.HTTPTimeout)
	}
}

func TestLoadFileExpandsEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_HOOK_URL", "https://example.com/expanded")

	path := filepath.Join(t.TempDir(), "aide.yaml")
	data := "feishu:\n  webhook_url: ${TEST_HOOK_URL}\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.FeishuWebhookURL != "https://example.com/expanded" {
		t.Errorf("webhook = %q, want expanded value", cfg.FeishuWebhookURL)
	}
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "aide.yaml")
	if err := os.WriteFile(path, []byte("providr: openai\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown key in config file")
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)

	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestGitHubTokenPrecedence(t *testing.T) {
	clearEnv(t)
	t.Setenv("GITHUB_TOKEN", "gh-low")
	t.Setenv("GH_TOKEN", "gh-high")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.GitHubToken != "gh-high" {
		t.Errorf("GitHubToken = %q, GH_TOKEN should win", cfg.GitHubToken)
	}
}

func TestValidateCollectsAllMissing(t *testing.T) {
	cfg := defaults()
	cfg.RepoURL = "https://github.com/user/memories.git"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}

	var missing *MissingKeysError
	if !errors.As(err, &missing) {
		t.Fatalf("error type = %T, want *MissingKeysError", err)
	}

	want := map[string]bool{
		"DEEPSEEK_API_KEY":   false,
		"FEISHU_WEBHOOK_URL": false,
		"MEMORY_REPO_TOKEN (required for private repos)": false,
	}
	for _, key := range missing.Missing {
		if _, ok := want[key]; !ok {
			t.Errorf("unexpected missing key %q", key)
			continue
		}
		want[key] = true
	}
	for key, seen := range want {
		if !seen {
			t.Errorf("missing key %q not reported", key)
		}
	}
}

func TestValidateRepoTokenOptionalWithoutURL(t *testing.T) {
	cfg := defaults()
	cfg.DeepSeekKey = "sk-test"
	cfg.FeishuWebhookURL = "https://example.com/hook"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestValidateUnknownProvider(t *testing.T) {
	cfg := defaults()
	cfg.Provider = "mistral"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

package cmd

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/becomeliminal/aide/config"
)

func executeCLI(args ...string) (string, string, error) {
	root := newRootCmd()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

// pinEnv forces a known configuration environment so ambient variables
// cannot leak into a test. Empty values read as unset by the loader.
func pinEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LLM_PROVIDER",
		"DEEPSEEK_API_KEY",
		"FEISHU_WEBHOOK_URL",
		"MEMORY_REPO_URL",
		"MEMORY_REPO_TOKEN",
		"TEMPERATURE",
		"MAX_TOKENS",
		"LLM_TIMEOUT",
		"HTTP_TIMEOUT",
		"GIT_TIMEOUT",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("LLM_PROVIDER", "deepseek")
}

func TestAskRequiresQuestionUserAndTime(t *testing.T) {
	pinEnv(t)

	_, _, err := executeCLI("ask")
	if err == nil {
		t.Fatal("ask without flags succeeded")
	}
	for _, flag := range []string{"question", "user", "time"} {
		if !strings.Contains(err.Error(), flag) {
			t.Errorf("error %q does not mention missing flag %q", err, flag)
		}
	}
}

func TestAskRejectsMalformedTime(t *testing.T) {
	pinEnv(t)

	_, _, err := executeCLI("ask", "--question", "hi there", "--user", "jack", "--time", "yesterday")
	if err == nil {
		t.Fatal("malformed --time accepted")
	}
	if !strings.Contains(err.Error(), "invalid --time") || !strings.Contains(err.Error(), askTimeLayout) {
		t.Errorf("error = %v, want the expected layout named", err)
	}
}

func TestAskReportsAllMissingConfiguration(t *testing.T) {
	pinEnv(t)

	_, _, err := executeCLI("ask", "--question", "hi", "--user", "jack", "--time", "2025-06-01 09:30:00")
	if err == nil {
		t.Fatal("ask succeeded without configuration")
	}

	var missing *config.MissingKeysError
	if !errors.As(err, &missing) {
		t.Fatalf("error = %T (%v), want MissingKeysError", err, err)
	}
	for _, key := range []string{"DEEPSEEK_API_KEY", "FEISHU_WEBHOOK_URL"} {
		found := false
		for _, m := range missing.Missing {
			if strings.Contains(m, key) {
				found = true
			}
		}
		if !found {
			t.Errorf("missing keys %v do not include %s", missing.Missing, key)
		}
	}
}

func TestMaintainRequiresRepoURL(t *testing.T) {
	pinEnv(t)
	t.Setenv("DEEPSEEK_API_KEY", "test-key")
	t.Setenv("FEISHU_WEBHOOK_URL", "https://open.feishu.example/hook")

	_, _, err := executeCLI("maintain")
	if err == nil {
		t.Fatal("maintain succeeded without a repository URL")
	}
	if !strings.Contains(err.Error(), "MEMORY_REPO_URL") {
		t.Errorf("error = %v, want MEMORY_REPO_URL named", err)
	}
}

func TestUnknownCommand(t *testing.T) {
	_, _, err := executeCLI("frobnicate")
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("error = %v, want unknown command", err)
	}
}

func TestVersionFlag(t *testing.T) {
	stdout, _, err := executeCLI("--version")
	if err != nil {
		t.Fatalf("--version: %v", err)
	}
	if !strings.Contains(stdout, "aide version") {
		t.Errorf("stdout = %q, want version line", stdout)
	}
}

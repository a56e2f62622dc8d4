package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/aide/config"
	"github.com/becomeliminal/aide/engine"
	"github.com/becomeliminal/aide/feishu"
	"github.com/becomeliminal/aide/llm"
	"github.com/becomeliminal/aide/memory"
	"github.com/becomeliminal/aide/memory/embedder/cache"
	geminiembed "github.com/becomeliminal/aide/memory/embedder/gemini"
	"github.com/becomeliminal/aide/memory/embedder/mock"
	"github.com/becomeliminal/aide/memory/embedder/onnx"
	openaiembed "github.com/becomeliminal/aide/memory/embedder/openai"
	"github.com/becomeliminal/aide/memory/repository"
	"github.com/becomeliminal/aide/memory/store/chromem"
	"github.com/becomeliminal/aide/tools"
)

// askTimeLayout is the timestamp format the chat workflow passes in.
const askTimeLayout = "2006-01-02 15:04:05"

func newAskCmd(configPath *string) *cobra.Command {
	var (
		question string
		user     string
		askedAt  string
	)

	cmd := &cobra.Command{
		Use:   "ask --question <text> --user <name> --time <timestamp>",
		Short: "Answer one question and deliver the response to Feishu",
		RunE: func(cmd *cobra.Command, _ []string) error {
			when, err := time.Parse(askTimeLayout, askedAt)
			if err != nil {
				return fmt.Errorf("invalid --time %q: expected format %q", askedAt, askTimeLayout)
			}
			return runAsk(cmd.Context(), *configPath, question, user, when)
		},
	}

	cmd.Flags().StringVar(&question, "question", "", "Question content")
	cmd.Flags().StringVar(&user, "user", "", "Asking user")
	cmd.Flags().StringVar(&askedAt, "time", "", "Time of the question (YYYY-MM-DD HH:MM:SS)")
	for _, name := range []string{"question", "user", "time"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

// runAsk processes one question end to end. The answer, or the apology
// for a failed run, is delivered to Feishu before any error reaches
// the caller. Configuration errors abort before anything is sent.
func runAsk(ctx context.Context, configPath, question, user string, askedAt time.Time) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	notifier := feishu.New(cfg.FeishuWebhookURL, cfg.HTTPTimeout)

	answer, runErr := answerQuestion(ctx, cfg, question, user, askedAt)
	stamp := time.Now().Format(askTimeLayout)
	if runErr != nil {
		log.Printf("[CLI] Processing failed: %v", runErr)
		if sendErr := notifier.SendError(ctx, question, runErr, stamp); sendErr != nil {
			log.Printf("[CLI] Could not deliver the error notice: %v", sendErr)
		}
		return runErr
	}

	if err := notifier.Send(ctx, "Personal Assistant Response", answer, stamp); err != nil {
		return fmt.Errorf("deliver answer: %w", err)
	}

	fmt.Println("Processing completed successfully")
	return nil
}

// answerQuestion builds the engine from configuration and runs it.
func answerQuestion(ctx context.Context, cfg *config.Config, question, user string, askedAt time.Time) (string, error) {
	provider, err := llm.New(ctx, cfg)
	if err != nil {
		return "", err
	}
	log.Printf("[CLI] Using LLM provider %s", provider.Name())

	opts := []engine.Option{
		engine.WithMemory(buildIndex(ctx, cfg)),
		engine.WithAnalyzer(memory.NewAnalyzer(provider)),
	}

	if cfg.RepoURL != "" {
		opts = append(opts, engine.WithRepository(repository.New(repository.Config{
			URL:     cfg.RepoURL,
			Token:   cfg.RepoToken,
			Path:    cfg.RepoPath,
			Timeout: cfg.GitTimeout,
		})))
	}

	searchReady := cfg.GoogleSearchKey != "" && cfg.GoogleCSEID != ""
	if searchReady {
		opts = append(opts, engine.WithSearch(
			tools.NewDecider(provider),
			tools.NewSearchClient(cfg.GoogleSearchKey, cfg.GoogleCSEID),
		))
	}

	githubReady := cfg.GitHubToken != ""
	if githubReady {
		opts = append(opts, engine.WithGitHub(tools.NewGitHubClient(cfg.GitHubToken)))
	}

	if defs := toolDefs(searchReady, githubReady); len(defs) > 0 {
		opts = append(opts, engine.WithTools(defs))
	}

	resp, err := engine.New(provider, opts...).Run(ctx, &engine.Request{
		Question: question,
		User:     user,
		AskedAt:  askedAt,
	})
	if err != nil {
		return "", err
	}

	if len(resp.Degraded) > 0 {
		log.Printf("[CLI] Degraded capabilities this run: %v", resp.Degraded)
	}

	answer := resp.Answer
	if answer == "" {
		answer = "I apologize, but I couldn't generate a response."
	}
	return answer, nil
}

// toolDefs filters the advertised tool set down to the configured
// capabilities so the model is never offered a tool that cannot run.
func toolDefs(search, github bool) []llm.Tool {
	var defs []llm.Tool
	for _, def := range tools.Definitions() {
		switch def.Name {
		case "google_search":
			if search {
				defs = append(defs, def)
			}
		case "github_operations":
			if github {
				defs = append(defs, def)
			}
		}
	}
	return defs
}

// buildIndex assembles the per-request memory index. Failures here
// degrade retrieval to keyword scoring instead of blocking the run.
func buildIndex(ctx context.Context, cfg *config.Config) *memory.Manager {
	embedder := buildEmbedder(ctx, cfg)
	if embedder == nil {
		return memory.NewManager()
	}

	if cached, err := cache.New(embedder, 0); err != nil {
		log.Printf("[CLI] Embedding cache unavailable: %v", err)
	} else {
		embedder = cached
	}

	store, err := chromem.New()
	if err != nil {
		log.Printf("[CLI] Vector store unavailable, retrieval falls back to keywords: %v", err)
		return memory.NewManager()
	}

	return memory.NewManager(memory.WithEmbedder(embedder), memory.WithVectorStore(store))
}

// buildEmbedder picks the embedding backend from configuration. Nil
// means embeddings are off and retrieval scores by keyword overlap.
func buildEmbedder(ctx context.Context, cfg *config.Config) memory.Embedder {
	switch cfg.EmbeddingProvider {
	case config.EmbeddingNone:
		log.Printf("[CLI] Embeddings disabled")
		return nil

	case config.EmbeddingOpenAI:
		return openaiEmbedder(cfg)

	case config.EmbeddingGemini:
		return geminiEmbedder(ctx, cfg)

	case config.EmbeddingONNX:
		emb, err := onnx.New(onnx.Config{
			ModelPath:     cfg.ONNXModelPath,
			TokenizerPath: cfg.ONNXTokenizerPath,
			LibraryPath:   cfg.ONNXLibraryPath,
		})
		if err != nil {
			log.Printf("[CLI] Local embedder unavailable: %v", err)
			return nil
		}
		return emb

	case config.EmbeddingAuto:
		if cfg.OpenAIKey != "" {
			return openaiEmbedder(cfg)
		}
		if cfg.GeminiKey != "" {
			if emb := geminiEmbedder(ctx, cfg); emb != nil {
				return emb
			}
		}
		log.Printf("[CLI] No embedding API key configured, using the mock embedder")
		return mock.New()

	case config.EmbeddingMock:
		return mock.New()

	default:
		log.Printf("[CLI] Unknown embedding provider %q, using the mock embedder", cfg.EmbeddingProvider)
		return mock.New()
	}
}

func openaiEmbedder(cfg *config.Config) memory.Embedder {
	model := cfg.EmbeddingModel
	if model == "" {
		model = "text-embedding-3-small"
	}
	return openaiembed.New(cfg.OpenAIKey, "", model)
}

func geminiEmbedder(ctx context.Context, cfg *config.Config) memory.Embedder {
	emb, err := geminiembed.New(ctx, cfg.GeminiKey, cfg.EmbeddingModel)
	if err != nil {
		log.Printf("[CLI] Gemini embedder unavailable: %v", err)
		return nil
	}
	return emb
}

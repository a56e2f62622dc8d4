package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/aide/config"
	"github.com/becomeliminal/aide/llm"
	"github.com/becomeliminal/aide/maintenance"
	"github.com/becomeliminal/aide/memory/repository"
)

func newMaintainCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "maintain",
		Short: "Consolidate simple talk memories into the dynamic memory document",
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := runMaintain(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return fmt.Errorf("encode report: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func runMaintain(ctx context.Context, configPath string) (*maintenance.Report, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.RepoURL == "" {
		return nil, errors.New("MEMORY_REPO_URL is required for maintenance")
	}

	provider, err := llm.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	log.Printf("[CLI] Using LLM provider %s", provider.Name())

	repo := repository.New(repository.Config{
		URL:     cfg.RepoURL,
		Token:   cfg.RepoToken,
		Path:    cfg.RepoPath,
		Timeout: cfg.GitTimeout,
	})

	return maintenance.New(provider, repo).Run(ctx)
}

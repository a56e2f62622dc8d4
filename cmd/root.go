// Package cmd implements the aide command line interface. It wires
// configuration into the LLM provider, the memory index, the tools and
// the engine, and delivers results over the Feishu webhook.
package cmd

import "github.com/spf13/cobra"

// version is stamped at build time via
// -ldflags "-X github.com/becomeliminal/aide/cmd.version=...".
var version = "dev"

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "aide",
		Short: "Personal assistant with a git-backed memory",
		Long: "aide answers questions using a git-backed memory repository,\n" +
			"optional Google search and a configurable LLM provider, and\n" +
			"delivers each answer to a Feishu webhook.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Optional YAML config file")

	rootCmd.AddCommand(
		newAskCmd(&configPath),
		newMaintainCmd(&configPath),
	)

	return rootCmd
}

// Command codesm is the CLI entry point: an interactive chat shell, an
// HTTP server mode, and session management.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"codesm/internal/shared/config"
	"codesm/internal/shared/logging"
)

var (
	flagConfig  string
	flagModel   string
	flagWorkDir string
)

func main() {
	root := &cobra.Command{
		Use:           "codesm",
		Short:         "AI coding agent for your workspace",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "config file path")
	root.PersistentFlags().StringVarP(&flagModel, "model", "m", "", "model identifier or alias")
	root.PersistentFlags().StringVarP(&flagWorkDir, "workdir", "w", "", "workspace directory (default: cwd)")

	root.AddCommand(newChatCmd(), newServeCmd(), newSessionsCmd(), newConfigCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig resolves config plus the global flag overrides.
func loadConfig() (config.Config, string, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return config.Config{}, "", err
	}
	if flagModel != "" {
		cfg.Model = flagModel
	}
	workDir := flagWorkDir
	if workDir == "" {
		workDir, err = os.Getwd()
		if err != nil {
			return config.Config{}, "", err
		}
	}
	if err := logging.Configure(cfg.LogFile, logging.ParseLevel(cfg.LogLevel)); err != nil {
		return config.Config{}, "", err
	}
	return cfg, workDir, nil
}

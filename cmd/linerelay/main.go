// Package main is the entry point for the linerelay service and its
// maintenance commands.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/antoniostano/linerelay/internal/config"
	"github.com/antoniostano/linerelay/internal/observability"
)

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

var envFiles []string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "linerelay",
		Short: "LINE chat relay backed by a language model",
		Long: `linerelay receives LINE webhook events, answers text and image
messages with a language model, and keeps a short per-user conversation
history that survives restarts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv(envFiles...)
		},
	}

	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "Env files to load before reading configuration (default .env if present)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newHistoryCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// loadConfig reads configuration and builds the process logger from it.
func loadConfig(stderr io.Writer) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("config error: %w", err)
	}
	logger := observability.NewLogger(stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

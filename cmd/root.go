// Package cmd defines the CLI commands for the ranktracker executable.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/blogboost/ranktracker/internal/config"
	"github.com/blogboost/ranktracker/internal/logging"
	"github.com/blogboost/ranktracker/internal/metrics"
)

var cfgFile string

type cfgKeyType struct{}

var cfgKey cfgKeyType

// newRootCmd creates and configures the root command. Config loading and
// logger initialization happen here so every subcommand starts from the
// same state.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ranktracker",
		Short: "Collects and tracks blog search rankings",
		Long: `ranktracker queries the Naver blog search API once per keyword per
calendar day, persists the ranked results as immutable snapshots, and
serves per-blog rank histories for tracked keywords.`,

		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logging.InitLogger(cfg.Logging.Development)
			metrics.Init()
			cmd.SetContext(context.WithValue(cmd.Context(), cfgKey, cfg))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (environment variables apply either way)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCollectCmd())
	cmd.AddCommand(newTaskCmd())

	return cmd
}

// resolveConfig returns the config stashed by the root command.
func resolveConfig(ctx context.Context) (config.Config, error) {
	cfg, ok := ctx.Value(cfgKey).(config.Config)
	if !ok {
		return config.Config{}, errors.New("configuration not initialized")
	}
	return cfg, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		logging.L.Fatal("command execution failed", zap.Error(err))
	}
}

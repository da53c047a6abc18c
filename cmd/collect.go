package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/blogboost/ranktracker/internal/logging"
)

// newCollectCmd creates the 'collect' subcommand for one-off collection
// runs outside the scheduler, typically for backfills or smoke tests.
func newCollectCmd() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "collect <keyword> [keyword...]",
		Short: "Collects today's ranks for the given keywords",
		Long: `Queries the search provider once per keyword and persists today's
snapshot. Keywords already collected today are reported without touching
the provider.`,
		Args: cobra.MinimumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(cmd, args, count)
		},
	}
	cmd.Flags().IntVar(&count, "count", 0, "results to request per keyword (default from config)")
	return cmd
}

func runCollect(cmd *cobra.Command, keywords []string, count int) error {
	cfg, err := resolveConfig(cmd.Context())
	if err != nil {
		return err
	}
	logger := logging.L

	svc, err := buildServices(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	var failed int
	for _, keyword := range keywords {
		if err := svc.pacer.Wait(cmd.Context()); err != nil {
			return err
		}
		result, err := svc.collector.CollectRanks(cmd.Context(), keyword, count)
		if err != nil {
			failed++
			logger.Error("collection failed", zap.String("keyword", keyword), zap.Error(err))
			continue
		}
		logger.Info("keyword collected",
			zap.String("keyword", result.Snapshot.Keyword),
			zap.String("date", result.Snapshot.Date),
			zap.Bool("new", result.New),
			zap.Int("ranked", result.Ranked))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d keywords failed", failed, len(keywords))
	}
	return nil
}

package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/recipegate/recipegate/internal/config"
	apperrors "github.com/recipegate/recipegate/internal/errors"
	"github.com/recipegate/recipegate/internal/observability"
	"github.com/recipegate/recipegate/internal/output"
	"github.com/recipegate/recipegate/internal/quota"
)

var (
	statsOutput  string
	statsTimeout time.Duration
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show quota decision counters from Redis",
	Long: `Show how many requests each quota rule allowed, denied, committed and
rolled back. Requires stats.enabled and a reachable Redis.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if !cfg.Stats.Enabled {
			return apperrors.NewConfigInvalidError("stats are disabled (set stats.enabled)")
		}

		// The CLI waits for the whole --timeout, not the per-request bound.
		redisCfg := cfg.Stats
		redisCfg.Timeout = statsTimeout
		rdb := newRedisClient(redisCfg)
		defer rdb.Close() // nolint:errcheck // best-effort cleanup

		store := quota.NewRedisStats(rdb,
			quota.WithStatsPrefix(cfg.Stats.Prefix),
			quota.WithStatsTTL(cfg.Stats.TTL),
		)

		ctx, cancel := context.WithTimeout(cmd.Context(), statsTimeout)
		defer cancel()

		if err := renderStats(ctx, cmd.OutOrStdout(), cfg, store, statsOutput); err != nil {
			observability.CLILogger.Error("Failed to read quota stats",
				zap.String("redis_addr", cfg.Stats.RedisAddr), zap.Error(err))
			ExitWithCode(observability.CLILogger, foundry.ExitExternalServiceUnavailable, "Redis unavailable", err)
		}
		return nil
	},
}

func renderStats(ctx context.Context, w io.Writer, cfg *config.Config, store *quota.RedisStats, formatName string) error {
	format, err := output.ParseFormat(formatName)
	if err != nil {
		return err
	}

	rules, err := cfg.Rules()
	if err != nil {
		return err
	}

	rows := make([]output.StatsRow, 0, len(rules)+1)
	for name := range rules {
		counters, err := store.RuleTotals(ctx, name)
		if err != nil {
			return err
		}
		rows = append(rows, output.NewStatsRow(name, counters))
	}

	totals, err := store.Totals(ctx)
	if err != nil {
		return err
	}
	rows = append(rows, output.NewStatsRow(output.TotalRow, totals))
	output.SortStatsRows(rows)

	rendered, err := output.NewFormatter(format).FormatStats(rows)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, rendered)
	return err
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().StringVarP(&statsOutput, "output-format", "o", "table", "output format: table, json, yaml, markdown")
	statsCmd.Flags().DurationVar(&statsTimeout, "timeout", 5*time.Second, "Redis timeout")
}

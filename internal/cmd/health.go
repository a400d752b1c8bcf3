package cmd

import (
	"context"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	apperrors "github.com/recipegate/recipegate/internal/errors"
	"github.com/recipegate/recipegate/internal/observability"
	"github.com/recipegate/recipegate/internal/quota"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long:  "Check that the configuration is valid, an API key is present and, when stats are enabled, Redis answers.",
	Run: func(cmd *cobra.Command, args []string) {
		logger := observability.CLILogger
		logger.Info("Running health check...")

		cfg, err := loadConfig()
		if err != nil {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Configuration invalid", apperrors.WrapConfigInvalid(cmd.Context(), err, "configuration invalid"))
			return
		}
		logger.Info("✅ Configuration valid")

		rules, _ := cfg.Rules()
		for _, rule := range quota.SortedRules(rules) {
			logger.Debug("Quota rule", zap.String("rule", rule.Name), zap.String("limit", rule.Description()))
		}

		if cfg.Upstream.APIKey == "" {
			logger.Warn("⚠️  No upstream API key (RECIPEGATE_API_KEY / SPOONACULAR_KEY); upstream calls will be rejected")
		} else {
			logger.Info("✅ Upstream API key present")
		}

		if cfg.Stats.Enabled {
			redisCfg := cfg.Stats
			redisCfg.Timeout = 3 * time.Second
			rdb := newRedisClient(redisCfg)
			defer rdb.Close() // nolint:errcheck // best-effort cleanup

			ctx, cancel := context.WithTimeout(cmd.Context(), 3*time.Second)
			defer cancel()
			if err := quota.NewRedisStats(rdb).Ping(ctx); err != nil {
				ExitWithCode(logger, foundry.ExitExternalServiceUnavailable, "Redis stats store unreachable", err)
				return
			}
			logger.Info("✅ Redis stats store reachable", zap.String("addr", cfg.Stats.RedisAddr))
		}

		logger.Info("")
		logger.Info("✅ All health checks passed")
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

package cmd

import (
	"fmt"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/recipegate/recipegate/internal/observability"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display environment, configuration and version information. The API key is never printed.",
	Run: func(cmd *cobra.Command, args []string) {
		log := observability.CLILogger
		version := crucible.GetVersion()

		log.Info("=== recipegate Environment Information ===")
		log.Info("")

		log.Info("Application:")
		log.Info("  Name:       " + AppName)
		log.Info("  Version:    " + versionInfo.Version)
		log.Info("  Commit:     " + versionInfo.Commit)
		log.Info("  Built:      " + versionInfo.BuildDate)
		log.Info("")

		log.Info("SSOT:")
		log.Info("  Gofulmen:   "+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
		log.Info("  Crucible:   "+version.Crucible, zap.String("crucible_version", version.Crucible))
		log.Info("")

		log.Info("Runtime:")
		log.Info("  Go Version: "+runtime.Version(), zap.String("go_version", runtime.Version()))
		log.Info("  GOOS:       "+runtime.GOOS, zap.String("goos", runtime.GOOS))
		log.Info("  GOARCH:     "+runtime.GOARCH, zap.String("goarch", runtime.GOARCH))
		log.Info(fmt.Sprintf("  NumCPU:     %d", runtime.NumCPU()), zap.Int("num_cpu", runtime.NumCPU()))
		log.Info("")

		cfg, err := loadConfig()
		if err != nil {
			log.Warn("Config load failed", zap.Error(err))
			return
		}

		log.Info("Configuration:")
		log.Info("  Config File:    " + valueOr(viper.ConfigFileUsed(), "(none)"))
		log.Info(fmt.Sprintf("  Listen:         %s:%d", cfg.Server.Host, cfg.Server.Port))
		log.Info(fmt.Sprintf("  Trust Proxy:    %t", cfg.Server.TrustProxy))
		log.Info("  Upstream:       " + cfg.Upstream.BaseURL)
		log.Info("  Upstream Key:   " + setOrNot(cfg.Upstream.APIKey))
		log.Info("  Log Level:      " + cfg.Logging.Level)
		log.Info(fmt.Sprintf("  Metrics:        %t (port %d)", cfg.Metrics.Enabled, cfg.Metrics.Port))
		log.Info(fmt.Sprintf("  Stats:          %t", cfg.Stats.Enabled))
		if cfg.Stats.Enabled {
			log.Info("  Stats Redis:    " + cfg.Stats.RedisAddr)
		}
		log.Info("  Admin Endpoint: " + setOrNot(cfg.Admin.Token))
		log.Info("")

		log.Info("=== End Environment Information ===")
	},
}

func setOrNot(secret string) string {
	if secret == "" {
		return "(not set)"
	}
	return "(set)"
}

func valueOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}

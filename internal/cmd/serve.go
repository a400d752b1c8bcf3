package cmd

import (
	"context"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/recipegate/recipegate/internal/config"
	apperrors "github.com/recipegate/recipegate/internal/errors"
	"github.com/recipegate/recipegate/internal/metrics"
	"github.com/recipegate/recipegate/internal/observability"
	"github.com/recipegate/recipegate/internal/server"
)

var (
	serverPort int
	serverHost string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway",
	Long: `Start the recipe API gateway with graceful shutdown support.

Routes:
  GET  /api/search        recipe search (1 successful call per minute per client)
  POST /api/ingredients   ingredient parsing (15 successful calls per minute per client)

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Re-read config file (log level only; restart for other changes)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := loadConfig()
		if err != nil {
			return apperrors.WrapConfigInvalid(ctx, err, "invalid configuration")
		}

		observability.InitServerLogger(observability.ServerLoggerOptions{
			Service:     AppName,
			Level:       cfg.Logging.Level,
			Environment: cfg.Logging.Environment,
			Format:      cfg.Logging.Format,
		})
		logger := observability.ServerLogger

		if cfg.Metrics.Enabled {
			if err := observability.InitMetrics(AppName, cfg.Metrics.Port); err != nil {
				logger.Error("Failed to initialize metrics", zap.Error(err))
				return apperrors.WrapInternal(ctx, err, "metrics initialization failed")
			}
			metrics.SetServerStartTime(time.Now().Unix())
		}

		c, err := buildComponents(cfg)
		if err != nil {
			return apperrors.WrapConfigInvalid(ctx, err, "failed to build gateway")
		}
		if !c.client.HasCredential() {
			logger.Warn("No upstream API key configured; set RECIPEGATE_API_KEY or SPOONACULAR_KEY")
		}

		srv := server.New(server.Config{
			Host:         cfg.Server.Host,
			Port:         cfg.Server.Port,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
			TrustProxy:   cfg.Server.TrustProxy,
			AdminToken:   cfg.Admin.Token,
			Version:      versionInfo.Version,
		}, c.gateway)
		c.registerChecks(srv.Health())

		janitorCtx, stopJanitor := context.WithCancel(context.Background())
		c.startJanitor(janitorCtx, cfg.Quota.CleanupInterval)

		logRules(logger, cfg)
		logger.Info("Initializing server",
			zap.String("service", AppName),
			zap.String("version", versionInfo.Version),
			zap.String("addr", srv.Addr()),
			zap.String("upstream", cfg.Upstream.BaseURL),
			zap.Bool("stats_enabled", cfg.Stats.Enabled),
			zap.Int("metrics_port", observability.GetMetricsPort()))

		registerShutdown(srv, c, stopJanitor, cfg.Server.ShutdownTimeout)
		registerReload()

		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
		}

		errChan := make(chan error, 1)
		go func() {
			if err := srv.Start(); err != nil {
				errChan <- err
			}
		}()

		go func() {
			if err := signals.Listen(ctx); err != nil {
				logger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		if err := <-errChan; err != nil {
			return apperrors.WrapInternal(ctx, err, "server error")
		}
		return nil
	},
}

// registerShutdown installs handlers in LIFO order: the HTTP server stops
// first so in-flight reservations settle before stats and logs are flushed.
func registerShutdown(srv *server.Server, c *components, stopJanitor context.CancelFunc, timeout time.Duration) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	signals.OnShutdown(func(ctx context.Context) error {
		logger := observability.ServerLogger
		logger.Info("Flushing logger...")
		if err := observability.SyncLoggers(); err != nil {
			logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
		}
		return nil
	})

	signals.OnShutdown(func(ctx context.Context) error {
		logger := observability.ServerLogger
		stopJanitor()
		if err := observability.ShutdownMetrics(); err != nil {
			logger.Warn("Metrics exporter stop failed", zap.Error(err))
		}
		if err := c.close(); err != nil {
			logger.Warn("Redis close failed", zap.Error(err))
		}
		return nil
	})

	signals.OnShutdown(func(ctx context.Context) error {
		shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return apperrors.WrapInternal(ctx, err, "server shutdown failed")
		}
		observability.ServerLogger.Info("HTTP server stopped gracefully")
		return nil
	})
}

func registerReload() {
	signals.OnReload(func(ctx context.Context) error {
		logger := observability.ServerLogger
		logger.Info("Received SIGHUP: attempting config reload")

		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				logger.Info("No config file found - using defaults and environment variables")
				return nil
			}
			logger.Error("Failed to reload config file",
				zap.String("file", viper.ConfigFileUsed()),
				zap.Error(err))
			return apperrors.WrapConfigInvalid(ctx, err, "config reload failed")
		}

		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			logger.Error("Reloaded config is invalid, keeping previous settings", zap.Error(err))
			return apperrors.WrapConfigInvalid(ctx, err, "config reload failed")
		}

		// Quota rules and listeners are fixed for the life of the process.
		observability.InitServerLogger(observability.ServerLoggerOptions{
			Service:     AppName,
			Level:       cfg.Logging.Level,
			Environment: cfg.Logging.Environment,
			Format:      cfg.Logging.Format,
		})
		observability.ServerLogger.Info("Configuration reloaded",
			zap.String("file", viper.ConfigFileUsed()),
			zap.String("log_level", cfg.Logging.Level))
		return nil
	})
}

func logRules(logger *logging.Logger, cfg *config.Config) {
	rules, err := cfg.Rules()
	if err != nil {
		return
	}
	for name, rule := range rules {
		logger.Info("Quota rule",
			zap.String("rule", name),
			zap.String("limit", rule.Description()),
			zap.String("deduct", string(rule.Deduct)))
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}

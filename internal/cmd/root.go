package cmd

import (
	"errors"
	"os"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/recipegate/recipegate/internal/config"
	"github.com/recipegate/recipegate/internal/observability"
)

// AppName is the binary and config directory name.
const AppName = "recipegate"

var (
	cfgFile string
	verbose bool

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var rootCmd = &cobra.Command{
	Use:   AppName,
	Short: "Recipe API gateway with per-client quotas",
	Long: `recipegate forwards recipe search and ingredient parsing requests to the
Spoonacular API. It holds the API key server-side, enforces per-client quotas
that only count successful calls, and returns JSON error envelopes.

Use the subcommands to perform specific operations.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Keep gofulmen's global telemetry quiet until serve installs the exporter.
	if sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: false}); err == nil {
		telemetry.SetGlobalSystem(sys)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/recipegate/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	observability.InitCLILogger(AppName, verbose)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		if dir := gfconfig.GetAppConfigDir(AppName); dir != "" {
			viper.AddConfigPath(dir)
		} else if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath("./config")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	config.SetDefaults(viper.GetViper())
	if err := config.BindEnv(viper.GetViper()); err != nil {
		ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Failed to bind environment", err)
	}

	if err := viper.ReadInConfig(); err == nil {
		observability.CLILogger.Debug("Using config file", zap.String("path", viper.ConfigFileUsed()))
	} else {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound):
			observability.CLILogger.Debug("No config file found, using defaults and environment variables")
		case cfgFile != "":
			ExitWithCode(observability.CLILogger, foundry.ExitFileNotFound, "Failed to read config file", err)
		default:
			observability.CLILogger.Warn("Error reading config file", zap.Error(err))
		}
	}
}

// loadConfig decodes and validates the viper state.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

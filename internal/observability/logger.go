package observability

import (
	"fmt"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
)

var (
	// CLILogger is used by one-shot commands (SIMPLE profile)
	CLILogger *logging.Logger

	// ServerLogger is used by the gateway process (STRUCTURED profile)
	ServerLogger *logging.Logger
)

// ServerLoggerOptions configures the structured server logger.
type ServerLoggerOptions struct {
	Service     string
	Level       string
	Environment string
	// Format is "json" or "console".
	Format string
}

// InitCLILogger initializes the CLI logger with SIMPLE profile
func InitCLILogger(serviceName string, verbose bool) {
	logger, err := logging.NewCLI(serviceName)
	if err != nil {
		exitWithCodeStderr(foundry.ExitConfigInvalid, "Failed to initialize CLI logger", err)
	}

	if verbose {
		logger.SetLevel(logging.DEBUG)
	}

	CLILogger = logger
}

// InitServerLogger initializes the server logger with STRUCTURED profile and
// correlation middleware.
func InitServerLogger(opts ServerLoggerOptions) {
	logger, err := NewServerLogger(opts)
	if err != nil {
		exitWithCodeStderr(foundry.ExitConfigInvalid, "Failed to initialize server logger", err)
	}
	ServerLogger = logger
}

// NewServerLogger builds a structured logger without touching the package globals.
func NewServerLogger(opts ServerLoggerOptions) (*logging.Logger, error) {
	env := opts.Environment
	if env == "" {
		env = "production"
	}
	format := strings.ToLower(opts.Format)
	if format != "console" {
		format = "json"
	}

	config := &logging.LoggerConfig{
		Profile:      logging.ProfileStructured,
		DefaultLevel: parseLogLevel(opts.Level),
		Service:      opts.Service,
		Environment:  env,
		Middleware: []logging.MiddlewareConfig{
			{
				Name:    "correlation",
				Enabled: true,
				Order:   100,
				Config:  make(map[string]any),
			},
		},
		Sinks: []logging.SinkConfig{
			{
				Type:   "console",
				Format: format,
				Console: &logging.ConsoleSinkConfig{
					Stream:   "stderr",
					Colorize: false,
				},
			},
		},
		EnableCaller:     true,
		EnableStacktrace: true,
	}

	return logging.New(config)
}

// SyncLoggers flushes whichever loggers were initialized. Sync errors on
// stderr are common at exit and are returned for the caller to ignore or log.
func SyncLoggers() error {
	var firstErr error
	for _, logger := range []*logging.Logger{ServerLogger, CLILogger} {
		if logger == nil {
			continue
		}
		if err := logger.Sync(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func parseLogLevel(levelStr string) string {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "trace":
		return "TRACE"
	case "debug":
		return "DEBUG"
	case "warn", "warning":
		return "WARN"
	case "error":
		return "ERROR"
	default:
		return "INFO"
	}
}

// exitWithCodeStderr is used before any logger exists.
func exitWithCodeStderr(exitCode foundry.ExitCode, msg string, err error) {
	info, ok := foundry.GetExitCodeInfo(exitCode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "FATAL: %s\n", msg)
	}
	if !ok {
		os.Exit(int(exitCode))
	}
	fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
	os.Exit(info.Code)
}

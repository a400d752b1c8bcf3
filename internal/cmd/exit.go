package cmd

import (
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"
)

// ExitWithCode logs err with foundry exit code metadata and exits.
// logger may be nil for failures before logging is set up.
func ExitWithCode(logger *logging.Logger, exitCode foundry.ExitCode, msg string, err error) {
	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok {
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v (exit code: %d)\n", msg, err, exitCode)
		os.Exit(int(exitCode))
	}

	if logger == nil {
		ExitWithCodeStderr(exitCode, msg, err)
		return
	}

	fields := []zap.Field{
		zap.Int("exit_code", info.Code),
		zap.String("exit_name", info.Name),
		zap.String("exit_category", info.Category),
	}
	fields = append(fields, envelopeFields(err)...)
	logger.Error(msg, fields...)

	os.Exit(info.Code)
}

// ExitWithCodeStderr is a variant that writes to stderr without a logger.
func ExitWithCodeStderr(exitCode foundry.ExitCode, msg string, err error) {
	switch envelope, ok := err.(*errors.ErrorEnvelope); {
	case ok:
		fmt.Fprintf(os.Stderr, "FATAL: %s [%s]: %s (correlation: %s)\n",
			msg, envelope.Code, envelope.Message, envelope.CorrelationID)
		if original, ok := envelope.Original.(error); ok && original != nil {
			fmt.Fprintf(os.Stderr, "Underlying error: %v\n", original)
		}
	case err != nil:
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", msg, err)
	default:
		fmt.Fprintf(os.Stderr, "FATAL: %s\n", msg)
	}

	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok {
		os.Exit(int(exitCode))
	}
	fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
	os.Exit(info.Code)
}

func envelopeFields(err error) []zap.Field {
	envelope, ok := err.(*errors.ErrorEnvelope)
	if !ok {
		return []zap.Field{zap.Error(err)}
	}

	fields := []zap.Field{
		zap.String("error_code", envelope.Code),
		zap.String("error_message", envelope.Message),
		zap.String("correlation_id", envelope.CorrelationID),
	}
	if envelope.Context != nil {
		fields = append(fields, zap.Any("error_context", envelope.Context))
	}
	if original, ok := envelope.Original.(error); ok && original != nil {
		fields = append(fields, zap.Error(original))
	}
	return fields
}

// Package logger configures the process-wide zerolog logger.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogConfig holds logging configuration
type LogConfig struct {
	Level      string // trace, debug, info, warn, error, fatal, panic
	Format     string // json, console
	TimeFormat string // RFC3339, Unix, or custom layout
	Output     string // stdout, stderr, or file path
}

func DefaultConfig() LogConfig {
	return LogConfig{
		Level:      "info",
		Format:     "console",
		TimeFormat: time.RFC3339,
		Output:     "stdout",
	}
}

// Setup initializes the global logger with the provided configuration
func Setup(config LogConfig) error {
	level, err := zerolog.ParseLevel(strings.ToLower(config.Level))
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)

	output, err := openOutput(config.Output)
	if err != nil {
		return err
	}
	if strings.ToLower(config.Format) != "json" {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: config.TimeFormat}
	}

	log.Logger = zerolog.New(output).With().
		Timestamp().
		Str("service", "fakturierung-recurring").
		Logger()

	switch config.TimeFormat {
	case "":
	case "Unix":
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	default:
		zerolog.TimeFieldFormat = config.TimeFormat
	}
	return nil
}

func openOutput(output string) (io.Writer, error) {
	switch output {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	return os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// GetLogger returns the global logger.
func GetLogger() zerolog.Logger {
	return log.Logger
}

// WithComponent returns a logger with a component field
func WithComponent(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}

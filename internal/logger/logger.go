// Package logger provides the process-wide leveled logger.
//
// The API is printf-style so call sites stay compact; output formatting,
// level filtering and destination selection are delegated to zerolog.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var log = newLogger("text", os.Stdout)

func newLogger(format string, out io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	if format == "json" {
		return zerolog.New(out).With().Timestamp().Logger()
	}
	console := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	return zerolog.New(console).With().Timestamp().Logger()
}

// SetLevel sets the minimum level that will be emitted.
// Accepted values: DEBUG, INFO, WARN, ERROR (case-insensitive).
func SetLevel(level string) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "INFO":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "WARN":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "ERROR":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	}
}

// Configure rebuilds the logger from the given format ("text" or "json")
// and output ("stdout", "stderr", or a file path). Called once at startup.
func Configure(format, output string) error {
	var out io.Writer
	switch output {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open log output: %w", err)
		}
		out = f
	}

	log = newLogger(format, out)
	return nil
}

func Debug(format string, v ...any) {
	log.Debug().Msgf(format, v...)
}

func Info(format string, v ...any) {
	log.Info().Msgf(format, v...)
}

func Warn(format string, v ...any) {
	log.Warn().Msgf(format, v...)
}

func Error(format string, v ...any) {
	log.Error().Msgf(format, v...)
}

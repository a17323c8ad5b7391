// Package logging provides structured logging for neowatch using zerolog.
// Console output is used on terminals and JSON everywhere else.
//
// Components take a *zerolog.Logger and fall back to Default. Request-scoped
// loggers travel in the context:
//
//	ctx = logging.WithEventID(ctx, id)
//	logging.FromContext(ctx).Info().Msg("Event updated")
package logging

import (
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var defaultLogger atomic.Pointer[zerolog.Logger]

func init() {
	logger := createDefaultLogger()
	defaultLogger.Store(&logger)
}

// createDefaultLogger honours NEOWATCH_LOG_LEVEL and NEOWATCH_LOG_FORMAT so
// that packages used outside the CLI still log sensibly.
func createDefaultLogger() zerolog.Logger {
	var writer io.Writer = os.Stderr
	if isTerminal(os.Stderr) && os.Getenv("NEOWATCH_LOG_FORMAT") != "json" {
		writer = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.Kitchen,
			NoColor:    os.Getenv("NO_COLOR") != "",
		}
	}

	return zerolog.New(writer).
		Level(ParseLevel(os.Getenv("NEOWATCH_LOG_LEVEL"))).
		With().
		Timestamp().
		Logger()
}

// Default returns the process-wide logger.
func Default() *zerolog.Logger {
	return defaultLogger.Load()
}

// SetDefault replaces the process-wide logger. The CLI calls it once the
// configuration is known.
func SetDefault(logger zerolog.Logger) {
	defaultLogger.Store(&logger)
}

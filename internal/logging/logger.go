// Package logging provides the structured logger shared by every component
// of the vault backend.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ComponentLogger binds a component name to a zerolog.Logger so every line
// that component emits carries consistent context.
type ComponentLogger struct {
	logger zerolog.Logger
}

// New creates a component-specific logger. It configures the global zerolog
// level from LOG_LEVEL and switches to a console writer outside of
// production (ENVIRONMENT=production uses raw JSON, suitable for log
// aggregation).
func New(component string) *ComponentLogger {
	zerolog.TimeFieldFormat = time.RFC3339

	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if os.Getenv("ENVIRONMENT") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		})
	}

	return &ComponentLogger{logger: log.With().Str("component", component).Logger()}
}

func (c *ComponentLogger) Info() *zerolog.Event  { return c.logger.Info() }
func (c *ComponentLogger) Warn() *zerolog.Event  { return c.logger.Warn() }
func (c *ComponentLogger) Error() *zerolog.Event { return c.logger.Error() }
func (c *ComponentLogger) Debug() *zerolog.Event { return c.logger.Debug() }

// Raw exposes the underlying zerolog.Logger for callers that need it
// (e.g. to pass into a library that accepts a zerolog.Logger directly).
func (c *ComponentLogger) Raw() zerolog.Logger { return c.logger }

// Package logging configures the zerolog logger shared by all services.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup builds the root logger for a service and installs it as the global
// zerolog logger so packages using zerolog/log pick it up.
func Setup(service, level string) zerolog.Logger {
	return setup(os.Stdout, service, level)
}

func setup(w io.Writer, service, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	logger := zerolog.New(w).Level(lvl).With().Timestamp().Str("service", service).Logger()
	log.Logger = logger
	return logger
}

// Component returns a child logger tagged with the component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

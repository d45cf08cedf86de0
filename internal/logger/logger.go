package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New creates and configures a new zerolog logger
func New(logLevel string) zerolog.Logger {
	// Set global log level
	level, err := zerolog.ParseLevel(strings.ToLower(logLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Configure console writer for human-readable output in development
	if os.Getenv("API_ENV") == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}

	// Create structured logger with common fields
	logger := zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("service", "turfpoints").
		Logger()

	return logger
}

// WithComponent adds a component name to logger context
func WithComponent(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

// WithUser adds a user ID to logger context
func WithUser(logger zerolog.Logger, userID uint) zerolog.Logger {
	return logger.With().Uint("user_id", userID).Logger()
}

// WithSpot adds a spot ID to logger context
func WithSpot(logger zerolog.Logger, spotID uint) zerolog.Logger {
	return logger.With().Uint("spot_id", spotID).Logger()
}

// WithVisit adds a visit ID to logger context
func WithVisit(logger zerolog.Logger, visitID uint) zerolog.Logger {
	return logger.With().Uint("visit_id", visitID).Logger()
}

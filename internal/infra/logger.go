package infra

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const serviceName = "listify"

// NewLogger constructs a zerolog.Logger for the service. level falls back
// to debug in development and info elsewhere when it does not parse.
func NewLogger(appEnv, level string) zerolog.Logger {
	dev := appEnv == "development"
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
		if dev {
			lvl = zerolog.DebugLevel
		}
	}

	logger := zerolog.New(os.Stdout).
		Level(lvl).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()

	if dev {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	return logger
}

// Logger aliases zerolog.Logger so packages can accept a *infra.Logger in
// their options without naming the third-party module.
type Logger = zerolog.Logger

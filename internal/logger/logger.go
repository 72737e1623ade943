package logger

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New returns a service-wide logger writing JSON to stderr. Unknown
// levels fall back to info.
func New(level, service string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	return zerolog.New(os.Stderr).
		Level(lvl).
		With().
		Timestamp().
		Str("service", service).
		Logger()
}

package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds the process logger. Local runs get a human-readable console
// writer; everything else logs JSON lines.
func New(level string, local bool, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stderr
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if local {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(out)
	}
	return logger.Level(lvl).With().Timestamp().Logger()
}

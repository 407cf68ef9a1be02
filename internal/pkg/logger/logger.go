package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds the application logger. Dev mode writes human readable
// console output, prod writes JSON lines.
func New(mode, level string) zerolog.Logger {
	return NewWithWriter(os.Stdout, mode, level)
}

// NewWithWriter is New with an explicit destination
func NewWithWriter(out io.Writer, mode, level string) zerolog.Logger {
	w := out
	if mode != "prod" {
		w = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
		if mode != "prod" {
			lvl = zerolog.DebugLevel
		}
	}

	return zerolog.New(w).Level(lvl).With().
		Timestamp().
		Str("mode", mode).
		Logger()
}

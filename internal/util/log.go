package util

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

func NewLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil { lvl = zerolog.InfoLevel }
	return zerolog.New(os.Stdout).With().Timestamp().Logger().Level(lvl)
}

// NewLoggerWithRing builds the process logger and tees every event into a
// RingBuffer so the dashboard can fetch recent entries.
func NewLoggerWithRing(level string, ring *RingBuffer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil { lvl = zerolog.InfoLevel }
	out := zerolog.MultiLevelWriter(os.Stdout, ring)
	return zerolog.New(out).With().Timestamp().Logger().Level(lvl)
}

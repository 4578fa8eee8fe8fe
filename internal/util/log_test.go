package util

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLoggerLevel(t *testing.T) {
	logger := NewLogger("debug")
	if logger.GetLevel() != zerolog.DebugLevel {
		t.Fatalf("expected debug level, got %s", logger.GetLevel())
	}

	logger = NewLogger("invalid")
	if logger.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("expected info fallback, got %s", logger.GetLevel())
	}
}

func TestRingBufferRetention(t *testing.T) {
	ring := NewRingBuffer(3)
	logger := NewLoggerWithRing("info", ring)

	for i := 0; i < 5; i++ {
		logger.Info().Int("i", i).Msg("event")
	}

	recent := ring.Recent()
	if len(recent) != 3 {
		t.Fatalf("expected 3 retained entries, got %d", len(recent))
	}
	if last := string(recent[len(recent)-1]); !strings.Contains(last, `"i":4`) {
		t.Fatalf("expected newest entry to be the last written, got %s", last)
	}
}

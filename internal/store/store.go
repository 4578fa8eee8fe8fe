// Package store persists relayed signals and rolling stats to a local
// JSON file. Best effort: a broken or missing file means starting fresh,
// never a crashed relay.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tvcornix-go/internal/signal"
)

// Stats tracks the counters the dashboard displays. Errors24h counts
// relay failures in the trailing 24 hours; older ones age out.
type Stats struct {
	TotalSignals int `json:"totalSignals"`
	TodaySignals int `json:"todaySignals"`
	Errors24h    int `json:"errors24h"`
}

const errorWindow = 24 * time.Hour

type fileState struct {
	Signals    []signal.Record `json:"signals"`
	Stats      Stats           `json:"stats"`
	ErrorTimes []time.Time     `json:"errorTimes,omitempty"`
}

// Store is a mutex-guarded signal history with an on-disk JSON mirror.
type Store struct {
	mu        sync.Mutex
	flushMu   sync.Mutex
	state     fileState
	path      string
	maxRecent int
	retention time.Duration
	log       zerolog.Logger
	now       func() time.Time
}

// Option configures Store construction.
type Option func(*Store)

// WithClock substitutes the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLimits overrides the recent-record cap and the age cutoff applied at
// load time.
func WithLimits(maxRecent, retentionDays int) Option {
	return func(s *Store) {
		if maxRecent > 0 {
			s.maxRecent = maxRecent
		}
		if retentionDays > 0 {
			s.retention = time.Duration(retentionDays) * 24 * time.Hour
		}
	}
}

// Open loads existing history from path, pruning records older than the
// retention window. A missing or corrupt file starts an empty store.
func Open(path string, log zerolog.Logger, opts ...Option) *Store {
	s := &Store{
		path:      path,
		maxRecent: 100,
		retention: 7 * 24 * time.Hour,
		log:       log,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", path).Msg("could not read signal store, starting fresh")
		}
		return s
	}
	if err := json.Unmarshal(data, &s.state); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("corrupt signal store, starting fresh")
		s.state = fileState{}
		return s
	}

	cutoff := s.now().Add(-s.retention)
	kept := s.state.Signals[:0]
	for _, rec := range s.state.Signals {
		if rec.Timestamp.After(cutoff) {
			kept = append(kept, rec)
		}
	}
	s.state.Signals = kept
	s.pruneErrors(s.now())
	log.Info().Int("signals", len(kept)).Int("total", s.state.Stats.TotalSignals).Msg("signal store loaded")
	return s
}

// pruneErrors drops error marks outside the 24h window and refreshes the
// counter. Assumes s.mu is held (or the store is not yet shared).
func (s *Store) pruneErrors(now time.Time) {
	cutoff := now.Add(-errorWindow)
	kept := s.state.ErrorTimes[:0]
	for _, mark := range s.state.ErrorTimes {
		if mark.After(cutoff) {
			kept = append(kept, mark)
		}
	}
	s.state.ErrorTimes = kept
	s.state.Stats.Errors24h = len(kept)
}

// Append records one relayed signal, assigns it an id and timestamp,
// updates the stats, and flushes to disk. Returns the stored record.
func (s *Store) Append(rec signal.Record) signal.Record {
	s.mu.Lock()
	now := s.now()
	rec.ID = uuid.NewString()
	rec.Timestamp = now

	s.state.Signals = append([]signal.Record{rec}, s.state.Signals...)
	if len(s.state.Signals) > s.maxRecent {
		s.state.Signals = s.state.Signals[:s.maxRecent]
	}

	s.state.Stats.TotalSignals++
	s.state.Stats.TodaySignals = s.countSince(startOfDay(now))
	s.mu.Unlock()

	s.Flush()
	return rec
}

// countSince assumes s.mu is held.
func (s *Store) countSince(t time.Time) int {
	count := 0
	for _, rec := range s.state.Signals {
		if !rec.Timestamp.Before(t) {
			count++
		}
	}
	return count
}

// RecordError marks one relay failure for the rolling 24h counter shown
// on the dashboard.
func (s *Store) RecordError() {
	s.mu.Lock()
	now := s.now()
	s.state.ErrorTimes = append(s.state.ErrorTimes, now)
	s.pruneErrors(now)
	s.mu.Unlock()
}

// Recent returns the stored records, newest first.
func (s *Store) Recent() []signal.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]signal.Record, len(s.state.Signals))
	copy(out, s.state.Signals)
	return out
}

// Snapshot returns the current stats with the error window brought up to
// date.
func (s *Store) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneErrors(s.now())
	return s.state.Stats
}

// Flush writes the state to disk via a temp file and rename, so readers
// never see a partial write. flushMu serializes whole flushes: the last
// snapshot renamed into place is always the newest one marshaled, even
// when an append-triggered flush races the periodic one. Failures are
// logged, not fatal.
func (s *Store) Flush() {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	data, err := json.MarshalIndent(s.state, "", "  ")
	s.mu.Unlock()
	if err != nil {
		s.log.Error().Err(err).Msg("encode signal store")
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		s.log.Error().Err(err).Str("path", s.path).Msg("create store directory")
		return
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		s.log.Error().Err(err).Str("path", s.path).Msg("write signal store")
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.log.Error().Err(err).Str("path", s.path).Msg("replace signal store")
	}
}

// FlushEvery persists the store on the given interval until stop closes.
// Run it as a background goroutine.
func (s *Store) FlushEvery(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			s.Flush()
			return
		case <-ticker.C:
			s.Flush()
		}
	}
}

func startOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

package util

import (
	"encoding/json"
	"sync"
)

// RingBuffer keeps the most recent log lines in memory so the dashboard
// can display them without reading from disk. It is an io.Writer suitable
// for zerolog's MultiLevelWriter.
type RingBuffer struct {
	mu      sync.Mutex
	entries []json.RawMessage
	max     int
}

// NewRingBuffer allocates a buffer that retains up to max entries.
func NewRingBuffer(max int) *RingBuffer {
	if max <= 0 {
		max = 200
	}
	return &RingBuffer{max: max}
}

// Write stores one log event. zerolog hands each event as a single line.
func (r *RingBuffer) Write(p []byte) (int, error) {
	entry := make(json.RawMessage, len(p))
	copy(entry, p)

	r.mu.Lock()
	r.entries = append(r.entries, entry)
	if len(r.entries) > r.max {
		r.entries = r.entries[len(r.entries)-r.max:]
	}
	r.mu.Unlock()
	return len(p), nil
}

// Recent returns the retained entries, newest last.
func (r *RingBuffer) Recent() []json.RawMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]json.RawMessage, len(r.entries))
	copy(out, r.entries)
	return out
}

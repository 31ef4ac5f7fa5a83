package event

import (
	"slices"
	"time"
)

// HistoryEntry records one publish.
type HistoryEntry struct {
	Type           Type
	Timestamp      time.Time
	ProcessingTime time.Duration

	// Handlers lists each invoked handler with its outcome and duration,
	// e.g. "Player:hero/on-hit ok 0.12ms".
	Handlers []string
}

// History keeps the most recent publishes, newest first.
type History struct {
	entries []HistoryEntry
	max     int
}

func newHistory(max int) *History {
	return &History{max: max}
}

func (h *History) add(e HistoryEntry) {
	if h.max <= 0 {
		return
	}
	h.entries = slices.Insert(h.entries, 0, e)
	if len(h.entries) > h.max {
		clear(h.entries[h.max:])
		h.entries = h.entries[:h.max]
	}
}

func (h *History) resize(max int) {
	h.max = max
	if max < 0 {
		max = 0
	}
	if len(h.entries) > max {
		h.entries = h.entries[:max]
	}
}

// Entries returns a copy of the entries, newest first.
func (h *History) Entries() []HistoryEntry {
	return slices.Clone(h.entries)
}

// Len returns the number of stored entries.
func (h *History) Len() int {
	return len(h.entries)
}

func (h *History) reset() {
	h.entries = nil
}

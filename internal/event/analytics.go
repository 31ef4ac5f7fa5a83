package event

import (
	"slices"
	"time"
)

// DefaultSlowThreshold is one frame at 60 FPS.
const DefaultSlowThreshold = 16 * time.Millisecond

// TypeCount pairs an event type with a count.
type TypeCount struct {
	Type  Type
	Count int
}

// SubscriptionCounts returns the number of active subscriptions per type.
// Types with none are omitted.
func (b *Bus) SubscriptionCounts() map[Type]int {
	counts := make(map[Type]int)
	for _, typ := range b.registry.Types() {
		if n := b.registry.Count(typ); n > 0 {
			counts[typ] = n
		}
	}
	return counts
}

// SlowHandlers returns history entries whose processing time exceeded
// threshold, newest first. A zero threshold uses the configured one.
func (b *Bus) SlowHandlers(threshold time.Duration) []HistoryEntry {
	if threshold <= 0 {
		threshold = b.settings.slowThreshold()
	}
	var out []HistoryEntry
	for _, e := range b.history.entries {
		if e.ProcessingTime > threshold {
			out = append(out, e)
		}
	}
	return out
}

// MostFrequent returns the n most published types in history, most frequent
// first, ties broken by type name.
func (b *Bus) MostFrequent(n int) []TypeCount {
	counts := make(map[Type]int)
	for _, e := range b.history.entries {
		counts[e.Type]++
	}
	out := make([]TypeCount, 0, len(counts))
	for typ, c := range counts {
		out = append(out, TypeCount{Type: typ, Count: c})
	}
	slices.SortFunc(out, func(a, b TypeCount) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		if a.Type < b.Type {
			return -1
		}
		if a.Type > b.Type {
			return 1
		}
		return 0
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Orphaned returns types published at least once in history that currently
// have no active subscribers, sorted by name.
func (b *Bus) Orphaned() []Type {
	seen := make(map[Type]struct{})
	var out []Type
	for _, e := range b.history.entries {
		if _, ok := seen[e.Type]; ok {
			continue
		}
		seen[e.Type] = struct{}{}
		if b.registry.Count(e.Type) == 0 {
			out = append(out, e.Type)
		}
	}
	slices.Sort(out)
	return out
}

// Package dedup tracks which games have already been seen during a run.
//
// Two identity schemes exist and are deliberately kept apart:
//   - MergeKey: exact (Date, White, Black, EndTime) tuple, used when merging
//     raw files into a corpus.
//   - AnnotationKey: "Date_White_Black" string, used when building the
//     dataset. It ignores EndTime, so it may collapse games the merge kept.
package dedup

import (
	"strings"
	"sync"
)

// Stats counts ShouldKeep decisions.
type Stats struct {
	Seen int64 // keys offered
	Kept int64 // keys accepted on first sight
}

// Dropped returns the number of repeats rejected.
func (s Stats) Dropped() int64 { return s.Seen - s.Kept }

// Set is a run-scoped seen-set. Keys are only ever added.
type Set[K comparable] struct {
	mu    sync.Mutex
	seen  map[K]struct{}
	stats Stats
}

// NewSet returns an empty set.
func NewSet[K comparable]() *Set[K] {
	return &Set[K]{seen: make(map[K]struct{})}
}

// ShouldKeep reports whether key is new, registering it if so.
func (s *Set[K]) ShouldKeep(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Seen++
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = struct{}{}
	s.stats.Kept++
	return true
}

// Len returns the number of distinct keys registered.
func (s *Set[K]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// Stats returns a snapshot of the counters.
func (s *Set[K]) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Headers is the subset of a game record needed to derive identity keys.
type Headers interface {
	Tag(name string) string
}

// MergeIdentity identifies a game during the merge stage.
type MergeIdentity struct {
	Date    string
	White   string
	Black   string
	EndTime string
}

// MergeKey returns the merge-stage identity of a game. Header values are used
// verbatim; absent headers contribute "".
func MergeKey(h Headers) MergeIdentity {
	return MergeIdentity{
		Date:    h.Tag("Date"),
		White:   h.Tag("White"),
		Black:   h.Tag("Black"),
		EndTime: h.Tag("EndTime"),
	}
}

// NormalizeDate converts a PGN date ("2024.03.01") to dash form ("2024-03-01").
func NormalizeDate(date string) string {
	return strings.ReplaceAll(date, ".", "-")
}

// AnnotationKey returns the annotation-stage identity of a game, which also
// serves as its game_id: Date_White_Black with the date dash-separated and
// spaces replaced by underscores.
func AnnotationKey(h Headers) string {
	id := NormalizeDate(h.Tag("Date")) + "_" + h.Tag("White") + "_" + h.Tag("Black")
	return strings.ReplaceAll(id, " ", "_")
}

// Package race correlates detections of the same entity across sources and
// resolves which source reported it first.
//
// All state lives in a Table. Every mutation goes through RecordDetection, which
// holds one mutex for the whole read-modify-write: two sources may report the
// same entity at nearly the same instant, and the quorum check must see both.
// The critical section only touches in-memory maps and slices.
package race

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	// ErrUnknownSource is returned for a detection from a source the Table was not built with.
	ErrUnknownSource = errors.New("unknown source")
	// ErrDuplicateDetection is returned when a source reports an entity it already
	// reported within the same pending entry. The detection is dropped.
	ErrDuplicateDetection = errors.New("duplicate detection")
	// ErrClosed is returned once the Table stopped accepting detections.
	ErrClosed = errors.New("table closed")
)

// pendingEntry holds the detections of one entity that has not reached quorum.
type pendingEntry struct {
	records []Detection
}

// Table is the correlation table and aggregator shared by all listeners.
type Table struct {
	mu sync.Mutex

	// index maps a source name to its position in stats.
	index   map[string]int
	stats   []SourceStats
	pending map[string]*pendingEntry

	totalRaces int64
	expired    int
	closed     bool
}

// New creates a Table expecting one detection per entity from each of the given sources.
// The order of sources is kept in every Stats snapshot.
func New(sources []string) (*Table, error) {
	if len(sources) == 0 {
		return nil, errors.New("at least one source is required")
	}

	t := &Table{
		index:   make(map[string]int, len(sources)),
		stats:   make([]SourceStats, len(sources)),
		pending: make(map[string]*pendingEntry),
	}

	for i, name := range sources {
		if name == "" {
			return nil, fmt.Errorf("source at position %d has an empty name", i)
		}
		if _, dup := t.index[name]; dup {
			return nil, fmt.Errorf("source %q is listed more than once", name)
		}
		t.index[name] = i
		t.stats[i].Name = name
	}

	return t, nil
}

// RecordDetection records that source observed the entity identified by key at the given time.
//
// When this detection completes the quorum, the race is resolved, its result is
// folded into the aggregates, the entry is removed and the Result is returned.
// Otherwise the returned Result is nil.
func (t *Table) RecordDetection(key, source string, at time.Time) (*Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrClosed
	}

	idx, ok := t.index[source]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}

	entry, exists := t.pending[key]
	if !exists {
		entry = &pendingEntry{records: make([]Detection, 0, len(t.stats))}
		t.pending[key] = entry
	}

	for _, rec := range entry.records {
		if rec.Source == source {
			t.stats[idx].Duplicates++
			return nil, fmt.Errorf("%w: %q already reported %s", ErrDuplicateDetection, source, key)
		}
	}

	entry.records = append(entry.records, Detection{Source: source, ObservedAt: at})
	if len(entry.records) < len(t.stats) {
		return nil, nil
	}

	result := t.resolve(key, entry.records)
	delete(t.pending, key)
	return result, nil
}

// resolve computes the race result from a complete set of records and updates
// the aggregates. The caller must hold t.mu.
func (t *Table) resolve(key string, records []Detection) *Result {
	// Stable, so equal timestamps keep insertion order and the earliest insert wins.
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].ObservedAt.Before(records[j].ObservedAt)
	})

	winner := records[0]
	result := &Result{Key: key, Winner: winner.Source, Delays: make([]Delay, 0, len(records)-1)}

	var sum time.Duration
	for _, rec := range records[1:] {
		delay := rec.ObservedAt.Sub(winner.ObservedAt)
		sum += delay
		result.Delays = append(result.Delays, Delay{Source: rec.Source, Delay: delay})

		loser := &t.stats[t.index[rec.Source]]
		loser.Lags = append(loser.Lags, delay)
	}
	if len(result.Delays) > 0 {
		result.AverageDelayNanos = float64(sum.Nanoseconds()) / float64(len(result.Delays))
	}

	w := &t.stats[t.index[winner.Source]]
	w.Wins++
	w.CumulativeDelayNanos += result.AverageDelayNanos
	t.totalRaces++

	return result
}

// Pending returns a copy of the detections recorded so far for key, and whether
// an entry for key is currently pending.
func (t *Table) Pending(key string) ([]Detection, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.pending[key]
	if !ok {
		return nil, false
	}
	out := make([]Detection, len(entry.records))
	copy(out, entry.records)
	return out, true
}

// Len returns the number of entities currently short of quorum.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Prune removes pending entries whose first detection happened before cutoff
// and returns how many were removed. Such entries can no longer resolve when a
// source has stopped reporting.
func (t *Table) Prune(cutoff time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	var removed int
	for key, entry := range t.pending {
		if entry.records[0].ObservedAt.Before(cutoff) {
			delete(t.pending, key)
			removed++
		}
	}
	t.expired += removed
	return removed
}

// Close stops the Table from accepting detections. Aggregates are frozen from
// this point on. Calling Close more than once is harmless.
func (t *Table) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
}

// Snapshot returns a deep copy of the aggregates.
func (t *Table) Snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	sources := make([]SourceStats, len(t.stats))
	for i, s := range t.stats {
		sources[i] = s
		sources[i].Lags = append([]time.Duration(nil), s.Lags...)
	}

	return Stats{
		TotalRaces: t.totalRaces,
		Sources:    sources,
		Pending:    len(t.pending),
		Expired:    t.expired,
	}
}

package race

import (
	"time"
)

// Detection is one observed occurrence of an entity on one source.
// It is created once per (entity, source) pair and never modified.
type Detection struct {
	Source     string
	ObservedAt time.Time
}

// Delay is how far a losing source trailed the winner of a race.
type Delay struct {
	Source string
	Delay  time.Duration
}

// Result describes one resolved race. It is computed at quorum and handed back
// to the caller that completed it; the Table itself keeps only the aggregates.
type Result struct {
	Key    string
	Winner string
	// Delays holds one entry per losing source, ordered by arrival.
	Delays []Delay
	// AverageDelayNanos is the mean of Delays, zero when there are no losers.
	AverageDelayNanos float64
}

// SourceStats is the aggregate view of a single source.
type SourceStats struct {
	Name string
	// Wins is the number of races this source reported first.
	Wins int64
	// CumulativeDelayNanos is the sum, over races won, of the average delay of the losers.
	CumulativeDelayNanos float64
	// Lags holds, for every race this source lost, how far it trailed the winner.
	Lags []time.Duration
	// Duplicates counts detections rejected because this source had already
	// reported the same entity within the pending entry.
	Duplicates int64
}

// Stats is a point-in-time copy of the aggregates.
type Stats struct {
	TotalRaces int64
	// Sources is in configuration order.
	Sources []SourceStats
	// Pending is the number of entities still short of quorum.
	Pending int
	// Expired is the number of pending entries purged by Prune.
	Expired int
}

// Recorder accepts detections from listeners. *Table implements it.
type Recorder interface {
	RecordDetection(key, source string, at time.Time) (*Result, error)
}

package bench

import (
	"sort"
	"time"
)

// Durations is a sample of latencies, for example how far one source trailed
// the winner across all the races it lost.
type Durations []time.Duration

// Average calculates the mean of a slice of time.Duration values.
func (ds Durations) Average() time.Duration {
	if len(ds) == 0 {
		return 0
	}

	var total time.Duration
	for _, d := range ds {
		total += d
	}
	return total / time.Duration(len(ds))
}

// Minimum finds the smallest time.Duration in the slice.
func (ds Durations) Minimum() time.Duration {
	if len(ds) == 0 {
		return 0
	}

	m := ds[0]
	for _, d := range ds {
		if d < m {
			m = d
		}
	}
	return m
}

// Median finds the middle value of a sorted slice of time.Duration.
func (ds Durations) Median() time.Duration {
	if len(ds) == 0 {
		return 0
	}

	sorted := ds.sorted()
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// Maximum finds the largest time.Duration in the slice.
func (ds Durations) Maximum() time.Duration {
	if len(ds) == 0 {
		return 0
	}

	m := ds[0]
	for _, d := range ds {
		if d > m {
			m = d
		}
	}
	return m
}

// Percentile calculates the Pxx value for a slice of time.Duration.
// Given percentile should be between 0 and 100.
func (ds Durations) Percentile(percentile float64) time.Duration {
	if len(ds) == 0 || percentile < 0 || percentile > 100 {
		return 0
	}

	sorted := ds.sorted()
	index := int(float64(len(sorted)-1) * (percentile / 100.0))
	return sorted[index]
}

// sorted returns an ascending copy, leaving the receiver untouched.
func (ds Durations) sorted() []time.Duration {
	out := make([]time.Duration, len(ds))
	copy(out, ds)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

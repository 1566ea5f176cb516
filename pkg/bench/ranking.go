package bench

import (
	"errors"
	"sort"
	"time"

	"github.com/shivanshkc/feedrace/pkg/race"
)

// ErrNoRaces is returned by Ranking when not a single race was resolved.
var ErrNoRaces = errors.New("no transactions detected")

// Rank is one row of the final ranking.
type Rank struct {
	Position int    `json:"position"`
	Name     string `json:"name"`
	Wins     int64  `json:"wins"`
	// WinRate is a percentage of all resolved races.
	WinRate float64 `json:"win_rate"`
	// AverageDelayMs is how far, on average, the other sources trailed this
	// one in the races it won.
	AverageDelayMs float64 `json:"average_delay_ms"`
	// LagP50 and LagP90 describe how far this source trailed the winner in the races it lost.
	LagP50     time.Duration `json:"lag_p50_ns"`
	LagP90     time.Duration `json:"lag_p90_ns"`
	Losses     int           `json:"losses"`
	Duplicates int64         `json:"duplicates"`
}

// Ranking orders the sources by wins, most first. Sources with equal wins keep
// their configuration order.
func Ranking(stats race.Stats) ([]Rank, error) {
	if stats.TotalRaces == 0 {
		return nil, ErrNoRaces
	}

	ranks := make([]Rank, len(stats.Sources))
	for i, src := range stats.Sources {
		var avgDelayMs float64
		if src.Wins > 0 {
			avgDelayMs = (src.CumulativeDelayNanos / float64(src.Wins)) / 1e6
		}

		lags := Durations(src.Lags)
		ranks[i] = Rank{
			Name:           src.Name,
			Wins:           src.Wins,
			WinRate:        float64(src.Wins) / float64(stats.TotalRaces) * 100,
			AverageDelayMs: avgDelayMs,
			LagP50:         lags.Percentile(50),
			LagP90:         lags.Percentile(90),
			Losses:         len(lags),
			Duplicates:     src.Duplicates,
		}
	}

	sort.SliceStable(ranks, func(i, j int) bool { return ranks[i].Wins > ranks[j].Wins })
	for i := range ranks {
		ranks[i].Position = i + 1
	}

	return ranks, nil
}

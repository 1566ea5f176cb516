package bench_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shivanshkc/feedrace/pkg/bench"
	"github.com/shivanshkc/feedrace/pkg/race"
)

func TestRanking(t *testing.T) {
	t.Run("No Races", func(t *testing.T) {
		ranks, err := bench.Ranking(race.Stats{Sources: []race.SourceStats{{Name: "a"}, {Name: "b"}}})
		assert.ErrorIs(t, err, bench.ErrNoRaces)
		assert.Nil(t, ranks)
	})

	t.Run("Single Loser Delay In Milliseconds", func(t *testing.T) {
		stats := race.Stats{
			TotalRaces: 1,
			Sources: []race.SourceStats{
				{Name: "A", Wins: 1, CumulativeDelayNanos: 50},
				{Name: "B", Lags: []time.Duration{50}},
			},
		}

		ranks, err := bench.Ranking(stats)
		require.NoError(t, err)
		require.Len(t, ranks, 2)

		assert.Equal(t, "A", ranks[0].Name)
		assert.Equal(t, 1, ranks[0].Position)
		assert.Equal(t, 100.0, ranks[0].WinRate)
		assert.InDelta(t, 0.00005, ranks[0].AverageDelayMs, 1e-12)

		assert.Equal(t, "B", ranks[1].Name)
		assert.Zero(t, ranks[1].AverageDelayMs, "zero wins must not divide by zero")
		assert.Equal(t, time.Duration(50), ranks[1].LagP50)
		assert.Equal(t, 1, ranks[1].Losses)
	})

	t.Run("Orders By Wins And Keeps Configuration Order On Ties", func(t *testing.T) {
		stats := race.Stats{
			TotalRaces: 10,
			Sources: []race.SourceStats{
				{Name: "first", Wins: 2},
				{Name: "second", Wins: 6},
				{Name: "third", Wins: 2},
				{Name: "fourth", Wins: 0},
			},
		}

		ranks, err := bench.Ranking(stats)
		require.NoError(t, err)

		var names []string
		for _, r := range ranks {
			names = append(names, r.Name)
		}
		assert.Equal(t, []string{"second", "first", "third", "fourth"}, names)
		assert.Equal(t, 60.0, ranks[0].WinRate)
		assert.Equal(t, 4, ranks[3].Position)
	})

	t.Run("Win Rates Sum To One Hundred", func(t *testing.T) {
		stats := race.Stats{
			TotalRaces: 3,
			Sources:    []race.SourceStats{{Name: "a", Wins: 1}, {Name: "b", Wins: 2}},
		}

		ranks, err := bench.Ranking(stats)
		require.NoError(t, err)
		assert.InDelta(t, 100.0, ranks[0].WinRate+ranks[1].WinRate, 1e-9)
	})
}

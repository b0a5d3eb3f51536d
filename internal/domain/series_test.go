package domain

import (
	"math"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestSeriesDedup(t *testing.T) {
	t.Run("keep first wins on collision", func(t *testing.T) {
		s := Series{Code: "A"}
		s.Append(day(2020, 1, 2), 2.0)
		s.Append(day(2020, 1, 1), 1.0)
		s.Append(day(2020, 1, 2), 99.0)

		s.Dedup(KeepFirst)

		require.Equal(t, 2, s.Len())
		assert.Equal(t, []float64{1.0, 2.0}, s.Values())
		assert.Equal(t, []time.Time{day(2020, 1, 1), day(2020, 1, 2)}, s.Dates())
	})

	t.Run("keep last overrides", func(t *testing.T) {
		s := Series{Code: "A"}
		s.Append(day(2020, 1, 2), 2.0)
		s.Append(day(2020, 1, 2), 99.0)

		s.Dedup(KeepLast)

		require.Equal(t, 1, s.Len())
		assert.Equal(t, 99.0, s.Points[0].Value)
	})

	t.Run("dates strictly increasing after dedup", func(t *testing.T) {
		s := Series{Code: "A"}
		for _, d := range []int{5, 3, 3, 1, 5, 2} {
			s.Append(day(2020, 1, d), float64(d))
		}
		s.Dedup(KeepFirst)

		for i := 1; i < s.Len(); i++ {
			assert.True(t, s.Points[i-1].Date.Before(s.Points[i].Date))
		}
	})
}

func TestMerge(t *testing.T) {
	fake := clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	SetClock(fake)
	t.Cleanup(func() { SetClock(nil) })

	t.Run("row index is sorted union without duplicates", func(t *testing.T) {
		a := Series{Code: "A"}
		a.Append(day(2020, 1, 1), 1)
		a.Append(day(2020, 1, 3), 3)
		a.Append(day(2020, 1, 3), 30) // provider duplicate

		b := Series{Code: "B"}
		b.Append(day(2020, 1, 2), 2)
		b.Append(day(2020, 1, 4), 4)

		table := Merge(KeepFirst, a, b)

		require.Equal(t, []string{"A", "B"}, table.Columns)
		require.Equal(t, []time.Time{
			day(2020, 1, 1), day(2020, 1, 2), day(2020, 1, 3), day(2020, 1, 4),
		}, table.Dates)

		assert.Equal(t, 1.0, table.Values[0][0])
		assert.True(t, math.IsNaN(table.Values[0][1]))
		assert.True(t, math.IsNaN(table.Values[1][0]))
		assert.Equal(t, 2.0, table.Values[1][1])
		assert.Equal(t, 3.0, table.Values[2][0])
		assert.Equal(t, 4.0, table.Values[3][1])
		assert.Equal(t, fake.Now().UTC(), table.GeneratedAt)
	})

	t.Run("missing combinations are NaN, never dropped", func(t *testing.T) {
		a := Series{Code: "A"}
		a.Append(day(2020, 1, 1), 1)
		b := Series{Code: "B"}
		b.Append(day(2020, 2, 1), 2)

		table := Merge(KeepFirst, a, b)

		require.Len(t, table.Dates, 2)
		assert.True(t, math.IsNaN(table.Values[0][1]))
		assert.True(t, math.IsNaN(table.Values[1][0]))
	})

	t.Run("column round-trip", func(t *testing.T) {
		a := Series{Code: "A"}
		a.Append(day(2020, 1, 1), 1)
		table := Merge(KeepFirst, a)

		got, ok := table.Column("A")
		require.True(t, ok)
		assert.Equal(t, []float64{1.0}, got.Values())

		_, ok = table.Column("missing")
		assert.False(t, ok)
	})

	t.Run("empty input", func(t *testing.T) {
		table := Merge(KeepFirst)
		assert.Empty(t, table.Dates)
		assert.Empty(t, table.Columns)
	})
}

func TestSplitRange(t *testing.T) {
	t.Run("one year cap splits into disjoint abutting ranges", func(t *testing.T) {
		ranges := SplitRange(day(2019, 3, 10), day(2021, 7, 1), 1, 0, 0)

		require.Len(t, ranges, 3)
		assert.Equal(t, day(2019, 3, 10), ranges[0].Start)
		assert.Equal(t, day(2020, 3, 9), ranges[0].End)
		assert.Equal(t, day(2020, 3, 10), ranges[1].Start)
		assert.Equal(t, day(2021, 3, 9), ranges[1].End)
		assert.Equal(t, day(2021, 3, 10), ranges[2].Start)
		assert.Equal(t, day(2021, 7, 1), ranges[2].End)
	})

	t.Run("range shorter than cap is one request", func(t *testing.T) {
		ranges := SplitRange(day(2020, 1, 1), day(2020, 1, 31), 1, 0, 0)
		require.Len(t, ranges, 1)
		assert.Equal(t, day(2020, 1, 1), ranges[0].Start)
		assert.Equal(t, day(2020, 1, 31), ranges[0].End)
	})

	t.Run("inverted range", func(t *testing.T) {
		assert.Nil(t, SplitRange(day(2020, 2, 1), day(2020, 1, 1), 1, 0, 0))
	})
}

func TestDaysInMonth(t *testing.T) {
	assert.Equal(t, 29, DaysInMonth(day(2020, 2, 1))) // leap year
	assert.Equal(t, 28, DaysInMonth(day(2021, 2, 1)))
	assert.Equal(t, 31, DaysInMonth(day(2020, 1, 15)))
	assert.Equal(t, 30, DaysInMonth(day(2020, 4, 1)))
}

func TestNewInventory(t *testing.T) {
	inv := NewInventory([]Station{
		{Code: "100", Kind: StreamGauge},
		{Code: "200", Kind: RainGauge},
		{Code: "100", Kind: RainGauge}, // duplicate code, first wins
	})

	require.Equal(t, 2, inv.Len())
	s, ok := inv.Lookup("100")
	require.True(t, ok)
	assert.Equal(t, StreamGauge, s.Kind)
	assert.Equal(t, []string{"100", "200"}, inv.Codes())
}

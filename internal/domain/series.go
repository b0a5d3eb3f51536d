package domain

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Point is one dated observation. A NaN value marks a missing observation.
type Point struct {
	Date  time.Time
	Value float64
}

// Series is the ordered sequence of observations for one station and one
// variable. Dates are strictly increasing after Dedup.
type Series struct {
	Code   string
	Points []Point
}

// Append adds an observation to the series.
func (s *Series) Append(date time.Time, value float64) {
	s.Points = append(s.Points, Point{Date: date.UTC(), Value: value})
}

// Len returns the number of observations.
func (s Series) Len() int { return len(s.Points) }

// SortAsc orders observations chronologically. The sort is stable so that,
// for a duplicated date, the original response order is preserved and the
// dedup policy picks deterministically.
func (s *Series) SortAsc() {
	sort.SliceStable(s.Points, func(i, j int) bool {
		return s.Points[i].Date.Before(s.Points[j].Date)
	})
}

// Dedup sorts the series and resolves duplicate dates per policy, leaving
// dates strictly increasing. The duplicate-date anomaly is provider-side
// and of unconfirmed cause, so the policy is explicit rather than hidden.
func (s *Series) Dedup(policy DedupPolicy) {
	s.SortAsc()
	if len(s.Points) < 2 {
		return
	}
	out := s.Points[:1]
	for _, p := range s.Points[1:] {
		last := &out[len(out)-1]
		if p.Date.Equal(last.Date) {
			if policy == KeepLast {
				last.Value = p.Value
			}
			continue
		}
		out = append(out, p)
	}
	s.Points = out
}

// Values returns the observation values in series order.
func (s Series) Values() []float64 {
	vals := make([]float64, len(s.Points))
	for i, p := range s.Points {
		vals[i] = p.Value
	}
	return vals
}

// Dates returns the observation dates in series order.
func (s Series) Dates() []time.Time {
	dates := make([]time.Time, len(s.Points))
	for i, p := range s.Points {
		dates[i] = p.Date
	}
	return dates
}

// DedupPolicy selects which observation survives a duplicated date.
type DedupPolicy int

const (
	// KeepFirst keeps the first occurrence at a duplicated date. Default.
	KeepFirst DedupPolicy = iota
	// KeepLast keeps the last occurrence at a duplicated date.
	KeepLast
)

func (p DedupPolicy) String() string {
	switch p {
	case KeepFirst:
		return "keep-first"
	case KeepLast:
		return "keep-last"
	default:
		return fmt.Sprintf("DedupPolicy(%d)", int(p))
	}
}

// MonthlyStat carries the per-month aggregates the ANA discharge endpoint
// reports alongside daily values.
type MonthlyStat struct {
	Month       time.Time // first day of the month
	Max         float64
	Min         float64
	Mean        float64
	Consistency int // 1 = raw, 2 = validated
}

// WideTable is a date-indexed table with one column per station. Cells with
// no observation hold NaN; combinations are never silently dropped.
type WideTable struct {
	Dates       []time.Time
	Columns     []string
	Values      [][]float64 // Values[row][col], row-aligned with Dates
	GeneratedAt time.Time
}

// Merge concatenates per-station series column-wise into a WideTable.
// Each input is deduplicated per policy first so concatenation never sees a
// non-unique row index; the row index is the sorted union of all dates.
// Column order follows input order.
func Merge(policy DedupPolicy, series ...Series) WideTable {
	table := WideTable{GeneratedAt: clock.Now().UTC()}
	if len(series) == 0 {
		return table
	}

	dateSet := make(map[int64]time.Time)
	for i := range series {
		series[i].Dedup(policy)
		for _, p := range series[i].Points {
			dateSet[p.Date.Unix()] = p.Date
		}
	}

	keys := make([]int64, 0, len(dateSet))
	for k := range dateSet {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	rowOf := make(map[int64]int, len(keys))
	table.Dates = make([]time.Time, len(keys))
	for i, k := range keys {
		table.Dates[i] = dateSet[k]
		rowOf[k] = i
	}

	table.Columns = make([]string, len(series))
	table.Values = make([][]float64, len(keys))
	for i := range table.Values {
		row := make([]float64, len(series))
		for j := range row {
			row[j] = math.NaN()
		}
		table.Values[i] = row
	}

	for j := range series {
		table.Columns[j] = series[j].Code
		for _, p := range series[j].Points {
			table.Values[rowOf[p.Date.Unix()]][j] = p.Value
		}
	}
	return table
}

// Column returns the named column as a Series.
func (t WideTable) Column(code string) (Series, bool) {
	col := -1
	for j, c := range t.Columns {
		if c == code {
			col = j
			break
		}
	}
	if col < 0 {
		return Series{}, false
	}
	s := Series{Code: code}
	for i, d := range t.Dates {
		s.Append(d, t.Values[i][col])
	}
	return s, true
}

// DateRange is a closed interval of days.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// SplitRange cuts [start, end] into consecutive chronological sub-ranges no
// longer than the span given in calendar units, for providers that cap the
// queryable span. Sub-ranges are disjoint and abut at day granularity, so
// concatenating the per-range responses equals a single fetch of the whole
// range.
func SplitRange(start, end time.Time, years, months, days int) []DateRange {
	if end.Before(start) {
		return nil
	}
	var ranges []DateRange
	for cur := start; !cur.After(end); {
		stop := cur.AddDate(years, months, days).AddDate(0, 0, -1)
		if stop.After(end) {
			stop = end
		}
		ranges = append(ranges, DateRange{Start: cur, End: stop})
		cur = stop.AddDate(0, 0, 1)
	}
	return ranges
}

// DaysInMonth returns the true day count of the month containing t (28-31,
// leap-aware).
func DaysInMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

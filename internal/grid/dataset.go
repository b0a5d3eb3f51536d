// Package grid holds the in-memory gridded-precipitation dataset and its
// spatial reductions.
package grid

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/hidrodados/coletor/internal/domain"
	"github.com/hidrodados/coletor/internal/geo"
)

// Dataset is a time-stacked precipitation grid. Values is indexed
// [time][lat][lon], aligned with Times, Lats and Lons; NaN marks a missing
// or masked cell.
type Dataset struct {
	Variable string
	Lons     []float64
	Lats     []float64
	Times    []time.Time
	Values   [][][]float64
}

// Empty reports whether the dataset has no cells or no time steps.
func (d Dataset) Empty() bool {
	return len(d.Times) == 0 || len(d.Lats) == 0 || len(d.Lons) == 0
}

// NormalizeLongitudes rewrites the longitude axis from [0,360) convention to
// [-180,180) and re-sorts it ascending, reordering the value columns to
// match. Applying it to an already-normalized dataset is a no-op, so the
// operation is idempotent.
func (d *Dataset) NormalizeLongitudes() {
	type col struct {
		lon float64
		idx int
	}
	cols := make([]col, len(d.Lons))
	for i, lon := range d.Lons {
		m := math.Mod(lon+180, 360)
		if m < 0 {
			m += 360
		}
		cols[i] = col{lon: m - 180, idx: i}
	}
	sort.SliceStable(cols, func(i, j int) bool { return cols[i].lon < cols[j].lon })

	lons := make([]float64, len(cols))
	for i, c := range cols {
		lons[i] = c.lon
	}
	values := make([][][]float64, len(d.Values))
	for t := range d.Values {
		values[t] = make([][]float64, len(d.Values[t]))
		for y := range d.Values[t] {
			row := make([]float64, len(cols))
			for i, c := range cols {
				row[i] = d.Values[t][y][c.idx]
			}
			values[t][y] = row
		}
	}
	d.Lons = lons
	d.Values = values
}

// Clip masks every cell whose center lies outside the boundary and trims the
// grid to the rows and columns that keep at least one unmasked cell. Call
// NormalizeLongitudes first; containment in [0,360) convention is undefined.
func (d Dataset) Clip(b *geo.Boundary) Dataset {
	inside := make([][]bool, len(d.Lats))
	keepRow := make([]bool, len(d.Lats))
	keepCol := make([]bool, len(d.Lons))
	for y, lat := range d.Lats {
		inside[y] = make([]bool, len(d.Lons))
		for x, lon := range d.Lons {
			if b.Contains(lon, lat) {
				inside[y][x] = true
				keepRow[y] = true
				keepCol[x] = true
			}
		}
	}

	out := Dataset{Variable: d.Variable, Times: d.Times}
	var rows, cols []int
	for y, keep := range keepRow {
		if keep {
			rows = append(rows, y)
			out.Lats = append(out.Lats, d.Lats[y])
		}
	}
	for x, keep := range keepCol {
		if keep {
			cols = append(cols, x)
			out.Lons = append(out.Lons, d.Lons[x])
		}
	}

	out.Values = make([][][]float64, len(d.Times))
	for t := range d.Times {
		out.Values[t] = make([][]float64, len(rows))
		for i, y := range rows {
			row := make([]float64, len(cols))
			for j, x := range cols {
				if inside[y][x] {
					row[j] = d.Values[t][y][x]
				} else {
					row[j] = math.NaN()
				}
			}
			out.Values[t][i] = row
		}
	}
	return out
}

// AreaMean collapses the spatial dimensions to one scalar per time step, the
// arithmetic mean of the unmasked cells.
func (d Dataset) AreaMean() domain.Series {
	s := domain.Series{Code: "merge"}
	for t, stamp := range d.Times {
		sum, n := 0.0, 0
		for y := range d.Values[t] {
			for _, v := range d.Values[t][y] {
				if !math.IsNaN(v) {
					sum += v
					n++
				}
			}
		}
		if n == 0 {
			s.Append(stamp, math.NaN())
			continue
		}
		s.Append(stamp, sum/float64(n))
	}
	return s
}

// VirtualStations treats every cell that survives the clip as a synthetic
// station, one column per cell. Identifiers derive from the rounded cell
// coordinates, e.g. prefix "PMERGE" at (-45.05, -20.5) → PMERGE-45_05-20_5.
// Cells masked at every time step are excluded, not returned as all-missing.
func (d Dataset) VirtualStations(prefix string) domain.WideTable {
	var series []domain.Series
	for y, lat := range d.Lats {
		for x, lon := range d.Lons {
			s := domain.Series{Code: cellName(prefix, lon, lat)}
			masked := true
			for t, stamp := range d.Times {
				v := d.Values[t][y][x]
				if !math.IsNaN(v) {
					masked = false
				}
				s.Append(stamp, v)
			}
			if !masked {
				series = append(series, s)
			}
		}
	}
	return domain.Merge(domain.KeepFirst, series...)
}

func cellName(prefix string, lon, lat float64) string {
	format := func(v float64) string {
		return strings.ReplaceAll(fmt.Sprintf("%g", math.Round(v*100)/100), ".", "_")
	}
	return prefix + format(lon) + format(lat)
}

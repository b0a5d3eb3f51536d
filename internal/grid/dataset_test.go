package grid

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hidrodados/coletor/internal/geo"
)

func boundary(t *testing.T, x0, y0, x1, y1 float64) *geo.Boundary {
	t.Helper()
	b, err := geo.NewBoundary(orb.Polygon{
		{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0}},
	}, "")
	require.NoError(t, err)
	return b
}

// grid3x3 builds one time step over lats/lons {0,1,2} with Values[y][x] = 10y+x.
func grid3x3() Dataset {
	values := [][]float64{
		{0, 1, 2},
		{10, 11, 12},
		{20, 21, 22},
	}
	return Dataset{
		Variable: "prec",
		Lons:     []float64{0, 1, 2},
		Lats:     []float64{0, 1, 2},
		Times:    []time.Time{time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)},
		Values:   [][][]float64{values},
	}
}

func TestNormalizeLongitudes(t *testing.T) {
	t.Run("converts 0-360 and re-sorts ascending", func(t *testing.T) {
		d := Dataset{
			Lons:  []float64{0, 90, 180, 270},
			Lats:  []float64{0},
			Times: []time.Time{time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)},
			Values: [][][]float64{
				{{1, 2, 3, 4}},
			},
		}
		d.NormalizeLongitudes()

		assert.Equal(t, []float64{-180, -90, 0, 90}, d.Lons)
		assert.Equal(t, []float64{3, 4, 1, 2}, d.Values[0][0])
	})

	t.Run("idempotent on a normalized grid", func(t *testing.T) {
		d := Dataset{
			Lons:  []float64{-170.5, -45, 0, 12.25},
			Lats:  []float64{0},
			Times: []time.Time{time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)},
			Values: [][][]float64{
				{{1, 2, 3, 4}},
			},
		}
		d.NormalizeLongitudes()
		lons := append([]float64(nil), d.Lons...)
		vals := append([]float64(nil), d.Values[0][0]...)

		d.NormalizeLongitudes()

		if diff := cmp.Diff(lons, d.Lons); diff != "" {
			t.Fatalf("longitudes changed (-first +second):\n%s", diff)
		}
		assert.Equal(t, vals, d.Values[0][0])
	})
}

func TestClip(t *testing.T) {
	t.Run("fully inside keeps everything", func(t *testing.T) {
		d := grid3x3().Clip(boundary(t, -1, -1, 3, 3))
		assert.Equal(t, []float64{0, 1, 2}, d.Lons)
		assert.Equal(t, []float64{0, 1, 2}, d.Lats)
		assert.Equal(t, 2.0, d.Values[0][0][2])
	})

	t.Run("outside cells masked, empty rows and cols trimmed", func(t *testing.T) {
		// Covers only the lower-left 2x2 block.
		d := grid3x3().Clip(boundary(t, -0.5, -0.5, 1.5, 1.5))

		assert.Equal(t, []float64{0, 1}, d.Lons)
		assert.Equal(t, []float64{0, 1}, d.Lats)
		assert.Equal(t, 0.0, d.Values[0][0][0])
		assert.Equal(t, 11.0, d.Values[0][1][1])
	})

	t.Run("no overlap yields empty dataset", func(t *testing.T) {
		d := grid3x3().Clip(boundary(t, 50, 50, 60, 60))
		assert.True(t, d.Empty())
	})
}

func TestAreaMean(t *testing.T) {
	t.Run("3x3 grid fully inside equals plain mean", func(t *testing.T) {
		d := grid3x3().Clip(boundary(t, -1, -1, 3, 3))
		s := d.AreaMean()

		require.Equal(t, 1, s.Len())
		assert.InDelta(t, 11.0, s.Points[0].Value, 1e-9) // mean of 0..2,10..12,20..22
	})

	t.Run("masked cells are ignored", func(t *testing.T) {
		d := grid3x3()
		d.Values[0][0][0] = math.NaN()
		s := d.AreaMean()
		assert.InDelta(t, (1+2+10+11+12+20+21+22)/8.0, s.Points[0].Value, 1e-9)
	})

	t.Run("all masked is NaN", func(t *testing.T) {
		d := grid3x3()
		for y := range d.Values[0] {
			for x := range d.Values[0][y] {
				d.Values[0][y][x] = math.NaN()
			}
		}
		s := d.AreaMean()
		assert.True(t, math.IsNaN(s.Points[0].Value))
	})
}

func TestVirtualStations(t *testing.T) {
	t.Run("one column per surviving cell", func(t *testing.T) {
		d := grid3x3().Clip(boundary(t, -0.5, -0.5, 1.5, 1.5))
		table := d.VirtualStations("PMERGE")

		require.Len(t, table.Columns, 4)
		assert.Contains(t, table.Columns, "PMERGE00")
		assert.Contains(t, table.Columns, "PMERGE11")
		require.Len(t, table.Dates, 1)
	})

	t.Run("fully masked cell excluded", func(t *testing.T) {
		d := grid3x3()
		for t0 := range d.Times {
			d.Values[t0][2][2] = math.NaN()
		}
		table := d.VirtualStations("P")
		assert.NotContains(t, table.Columns, "P22")
		assert.Len(t, table.Columns, 8)
	})

	t.Run("fractional coordinates use underscores", func(t *testing.T) {
		assert.Equal(t, "P-45_05-20_5", cellName("P", -45.05, -20.5))
	})
}

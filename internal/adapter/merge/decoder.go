package merge

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/nilsmagnus/grib/griblib"

	"github.com/hidrodados/coletor/internal/grid"
)

// layer is one day's decoded field on a regular lat/lon grid.
type layer struct {
	Lons   []float64
	Lats   []float64
	Values [][]float64 // [lat][lon]
}

// Decoder turns daily MERGE grib2 files into a stacked grid.Dataset.
type Decoder struct {
	logger *slog.Logger
	decode func(r io.Reader) (layer, error)
}

func NewDecoder(logger *slog.Logger) *Decoder {
	return &Decoder{logger: logger, decode: decodeGrib}
}

// LoadRange reads one file per calendar day in [start, end] from dir and
// stacks the decoded fields along the time axis. Days whose file is absent
// are logged and skipped, so a partially successful download batch still
// yields a usable dataset.
func (d *Decoder) LoadRange(dir string, start, end time.Time) (grid.Dataset, error) {
	ds := grid.Dataset{Variable: "prec"}
	for date := start; !date.After(end); date = date.AddDate(0, 0, 1) {
		path := filepath.Join(dir, FileName(date))
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				d.logger.Warn("grid file missing, skipping day",
					"date", date.Format("2006-01-02"), "path", path)
				continue
			}
			return grid.Dataset{}, fmt.Errorf("open %s: %w", path, err)
		}
		lay, err := d.decode(f)
		f.Close()
		if err != nil {
			return grid.Dataset{}, fmt.Errorf("decode %s: %w", path, err)
		}
		if ds.Empty() {
			ds.Lons = lay.Lons
			ds.Lats = lay.Lats
		} else if len(lay.Lons) != len(ds.Lons) || len(lay.Lats) != len(ds.Lats) {
			return grid.Dataset{}, fmt.Errorf("decode %s: grid shape %dx%d does not match %dx%d",
				path, len(lay.Lats), len(lay.Lons), len(ds.Lats), len(ds.Lons))
		}
		ds.Times = append(ds.Times, date)
		ds.Values = append(ds.Values, lay.Values)
	}
	return ds, nil
}

// decodeGrib reads the first grib2 message with a regular lat/lon grid
// (template 3.0) and returns its field. Coordinates are scaled from the
// micro-degree units of the grid definition.
func decodeGrib(r io.Reader) (layer, error) {
	messages, err := griblib.ReadMessages(r)
	if err != nil {
		return layer{}, fmt.Errorf("read messages: %w", err)
	}
	for _, msg := range messages {
		def, ok := msg.Section3.Definition.(*griblib.Grid0)
		if !ok {
			continue
		}
		ni, nj := int(def.Ni), int(def.Nj)
		if ni <= 0 || nj <= 0 {
			return layer{}, fmt.Errorf("grid definition has no points")
		}
		if len(msg.Section7.Data) < ni*nj {
			return layer{}, fmt.Errorf("data section has %d points, grid needs %d",
				len(msg.Section7.Data), ni*nj)
		}

		lay := layer{
			Lons:   axis(float64(def.Lo1)*1e-6, float64(def.Lo2)*1e-6, ni),
			Lats:   axis(float64(def.La1)*1e-6, float64(def.La2)*1e-6, nj),
			Values: make([][]float64, nj),
		}
		for y := 0; y < nj; y++ {
			row := make([]float64, ni)
			for x := 0; x < ni; x++ {
				row[x] = float64(msg.Section7.Data[y*ni+x])
			}
			lay.Values[y] = row
		}
		// Scanning starts at La1; flip so latitude ascends.
		if len(lay.Lats) > 1 && lay.Lats[0] > lay.Lats[len(lay.Lats)-1] {
			reverse(lay.Lats)
			for i, j := 0, len(lay.Values)-1; i < j; i, j = i+1, j-1 {
				lay.Values[i], lay.Values[j] = lay.Values[j], lay.Values[i]
			}
		}
		return lay, nil
	}
	return layer{}, fmt.Errorf("no regular lat/lon grid in file")
}

func axis(first, last float64, n int) []float64 {
	out := make([]float64, n)
	if n == 1 {
		out[0] = first
		return out
	}
	step := (last - first) / float64(n-1)
	for i := range out {
		out[i] = first + float64(i)*step
	}
	// Guard against accumulated error on the closing point.
	if math.Abs(out[n-1]-last) < math.Abs(step) {
		out[n-1] = last
	}
	return out
}

func reverse(s []float64) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

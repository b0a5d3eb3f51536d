package hydro

import (
	"math"
	"sort"

	"github.com/hidrodados/coletor/internal/domain"
)

// DefaultOutlierLimit is the upper bound applied to rainfall series when no
// explicit limit is given: no Brazilian gauge records 400 mm in a day.
const DefaultOutlierLimit = 400.0

// Mean averages the valid values of a slice, skipping NaN. An all-NaN or
// empty slice yields NaN.
func Mean(values []float64) float64 {
	sum, n := 0.0, 0
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// Percentile returns the p-quantile (0 ≤ p ≤ 1) of the series' valid values
// with linear interpolation between order statistics. NaN when no valid
// value exists.
func Percentile(s domain.Series, p float64) float64 {
	var valid []float64
	for _, v := range s.Values() {
		if !math.IsNaN(v) {
			valid = append(valid, v)
		}
	}
	if len(valid) == 0 {
		return math.NaN()
	}
	sort.Float64s(valid)
	if p <= 0 {
		return valid[0]
	}
	if p >= 1 {
		return valid[len(valid)-1]
	}
	h := p * float64(len(valid)-1)
	lo := int(math.Floor(h))
	frac := h - float64(lo)
	if lo+1 == len(valid) {
		return valid[lo]
	}
	return valid[lo] + frac*(valid[lo+1]-valid[lo])
}

// RemoveOutliers replaces values above limit with NaN, returning a new
// series. Pass DefaultOutlierLimit for daily rainfall.
func RemoveOutliers(s domain.Series, limit float64) domain.Series {
	out := domain.Series{Code: s.Code, Points: make([]domain.Point, len(s.Points))}
	for i, p := range s.Points {
		if p.Value > limit {
			p.Value = math.NaN()
		}
		out.Points[i] = p
	}
	return out
}

// DropNegatives replaces negative values with NaN, returning a new series.
func DropNegatives(s domain.Series) domain.Series {
	out := domain.Series{Code: s.Code, Points: make([]domain.Point, len(s.Points))}
	for i, p := range s.Points {
		if p.Value < 0 {
			p.Value = math.NaN()
		}
		out.Points[i] = p
	}
	return out
}

// FailureRate returns the fraction of the series that is missing (NaN),
// from 0 to 1. An empty series has no failures.
func FailureRate(s domain.Series) float64 {
	if len(s.Points) == 0 {
		return 0
	}
	missing := 0
	for _, p := range s.Points {
		if math.IsNaN(p.Value) {
			missing++
		}
	}
	return float64(missing) / float64(len(s.Points))
}

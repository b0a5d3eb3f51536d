// Package hydro implements basin-response and series statistics used on the
// collected data: unit-hydrograph convolution, the rational method, rating
// curve fitting, long-term means and reservoir sizing.
package hydro

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/hidrodados/coletor/internal/domain"
)

// unitPulseMM is the rainfall depth the unit hydrograph ordinates refer to.
const unitPulseMM = 10.0

// Convolve computes a basin's response hydrograph from effective rainfall
// blocks (mm) and the discrete unit hydrograph (m³/s per 10 mm pulse). The
// result has len(rain)+len(unitHydrograph)-1 ordinates; ordinate t sums the
// contribution of every rain block still flowing at interval t.
func Convolve(rain, unitHydrograph []float64) []float64 {
	if len(rain) == 0 || len(unitHydrograph) == 0 {
		return nil
	}
	out := make([]float64, len(rain)+len(unitHydrograph)-1)
	for i, uh := range unitHydrograph {
		for j, r := range rain {
			out[i+j] += (r / unitPulseMM) * uh
		}
	}
	return out
}

// RationalPeakFlow returns the peak surface discharge (m³/s) by the rational
// method: runoff coefficient c, rainfall intensity in mm/h at the time of
// concentration, and drainage area in km². Valid for small basins only.
func RationalPeakFlow(c, intensity, areaKm2 float64) float64 {
	return 0.278 * c * intensity * areaKm2
}

// SuspendedSolidsLoad returns the suspended-solids discharge in ton/day from
// the mean concentration (mg/L) and the station discharge series (m³/s). NaN
// points are ignored in the mean.
func SuspendedSolidsLoad(concentration float64, s domain.Series) float64 {
	return 0.0864 * Mean(s.Values()) * concentration
}

// FitRatingCurve fits a polynomial rating curve of the given degree to
// stage/discharge pairs by least squares. It returns the coefficients in
// ascending power order and the fitted discharge for each input stage.
func FitRatingCurve(stages, discharges []float64, degree int) (coefs, fitted []float64, err error) {
	if len(stages) != len(discharges) {
		return nil, nil, fmt.Errorf("rating curve: %d stages vs %d discharges", len(stages), len(discharges))
	}
	if degree < 1 {
		return nil, nil, fmt.Errorf("rating curve: degree %d", degree)
	}
	if len(stages) < degree+1 {
		return nil, nil, fmt.Errorf("rating curve: need at least %d pairs for degree %d", degree+1, degree)
	}

	n := len(stages)
	vander := mat.NewDense(n, degree+1, nil)
	for i, x := range stages {
		p := 1.0
		for j := 0; j <= degree; j++ {
			vander.Set(i, j, p)
			p *= x
		}
	}

	var qr mat.QR
	qr.Factorize(vander)
	var sol mat.Dense
	if err := qr.SolveTo(&sol, false, mat.NewDense(n, 1, discharges)); err != nil {
		return nil, nil, fmt.Errorf("rating curve: %w", err)
	}

	coefs = make([]float64, degree+1)
	for j := range coefs {
		coefs[j] = sol.At(j, 0)
	}
	fitted = make([]float64, n)
	for i, x := range stages {
		fitted[i] = Polyval(coefs, x)
	}
	return coefs, fitted, nil
}

// Polyval evaluates a polynomial with ascending-power coefficients at x.
func Polyval(coefs []float64, x float64) float64 {
	y := 0.0
	for j := len(coefs) - 1; j >= 0; j-- {
		y = y*x + coefs[j]
	}
	return y
}

// LongTermMonthlyMean returns the mean of the series per calendar month,
// keyed January through December. Months with no valid point map to NaN.
func LongTermMonthlyMean(s domain.Series) map[time.Month]float64 {
	sums := make(map[time.Month]float64, 12)
	counts := make(map[time.Month]int, 12)
	for _, p := range s.Points {
		if math.IsNaN(p.Value) {
			continue
		}
		sums[p.Date.Month()] += p.Value
		counts[p.Date.Month()]++
	}
	out := make(map[time.Month]float64, 12)
	for m := time.January; m <= time.December; m++ {
		if counts[m] == 0 {
			out[m] = math.NaN()
			continue
		}
		out[m] = sums[m] / float64(counts[m])
	}
	return out
}

// MonthlyAnomaly returns a series of each point's departure from the
// long-term mean of its calendar month.
func MonthlyAnomaly(s domain.Series) domain.Series {
	mlt := LongTermMonthlyMean(s)
	out := domain.Series{Code: s.Code}
	for _, p := range s.Points {
		out.Points = append(out.Points, domain.Point{
			Date:  p.Date,
			Value: p.Value - mlt[p.Date.Month()],
		})
	}
	return out
}

// RipplStorage sizes a reservoir by the mass-curve (sequent peak) method:
// the largest cumulative deficit of inflow against a constant demand, both
// in the series' flow unit. NaN inflows are treated as zero inflow, the
// conservative choice for sizing.
func RipplStorage(s domain.Series, demand float64) float64 {
	deficit, worst := 0.0, 0.0
	for _, p := range s.Points {
		inflow := p.Value
		if math.IsNaN(inflow) {
			inflow = 0
		}
		deficit += demand - inflow
		if deficit < 0 {
			deficit = 0
		}
		if deficit > worst {
			worst = deficit
		}
	}
	return worst
}

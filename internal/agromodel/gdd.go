// Package agromodel computes growing-degree-day accumulation from daily
// min/max temperature series, plus threshold alert scans over the same
// series. The sine methods follow the standard horizontal-cutoff degree-day
// integration: the daily temperature curve is approximated by a sinusoid
// between min and max and the area between the base and upper thresholds is
// integrated in closed form.
package agromodel

import (
	"fmt"
	"math"

	"github.com/agrosight/agrosight/internal/domain"
)

// Thresholds are the degree-day integration bounds in °C.
type Thresholds struct {
	Base  float64 `json:"base"`
	Upper float64 `json:"upper"`
}

// Validate rejects inverted or degenerate bounds.
func (t Thresholds) Validate() error {
	if t.Base >= t.Upper {
		return &domain.ModelError{
			Kind:    domain.ModelInvalidThresholds,
			Message: fmt.Sprintf("base %.1f must be below upper %.1f", t.Base, t.Upper),
		}
	}
	return nil
}

// GDD computes the degree-day series for fused daily records. carryIn seeds
// the cumulative total for mid-season starts. Gap days produce a null
// increment while the cumulative total holds its last valid value; they are
// never treated as zero heat. Increments are always >= 0 and the cumulative
// series is non-decreasing.
//
// Thresholds are validated before any output: an invalid pair produces no
// partial series.
func GDD(records []domain.DailyRecord, th Thresholds, method domain.GDDMethod, carryIn float64) ([]domain.GDDRecord, error) {
	if err := th.Validate(); err != nil {
		return nil, err
	}
	switch method {
	case domain.MethodAverage, domain.MethodSingleSine, domain.MethodDoubleSine:
	case "":
		method = domain.MethodAverage
	default:
		return nil, &domain.ModelError{
			Kind:    domain.ModelUnknownMethod,
			Message: fmt.Sprintf("unknown GDD method %q", method),
		}
	}

	out := make([]domain.GDDRecord, 0, len(records))
	cumulative := carryIn
	for i, r := range records {
		rec := domain.GDDRecord{
			Date:      r.Date,
			BaseTemp:  th.Base,
			UpperTemp: th.Upper,
			Method:    method,
		}

		if r.Gap || r.MinTemp == nil || r.MaxTemp == nil {
			rec.Gap = true
			rec.Cumulative = cumulative
			out = append(out, rec)
			continue
		}

		var inc float64
		switch method {
		case domain.MethodAverage:
			inc = averageIncrement(*r.MinTemp, *r.MaxTemp, th)
		case domain.MethodSingleSine:
			inc = singleSine(*r.MinTemp, *r.MaxTemp, th)
		case domain.MethodDoubleSine:
			nextMin := *r.MinTemp
			if j := i + 1; j < len(records) && !records[j].Gap && records[j].MinTemp != nil {
				nextMin = *records[j].MinTemp
			}
			inc = doubleSine(*r.MinTemp, *r.MaxTemp, nextMin, th)
		}

		if inc < 0 {
			inc = 0
		}
		cumulative += inc
		rec.Increment = domain.Float(inc)
		rec.Cumulative = cumulative
		out = append(out, rec)
	}
	return out, nil
}

// averageIncrement clamps the daily mean into [base, upper] and measures the
// excess over base. Below-base days contribute zero, never negative heat.
func averageIncrement(minT, maxT float64, th Thresholds) float64 {
	mean := (minT + maxT) / 2
	if mean < th.Base {
		mean = th.Base
	}
	if mean > th.Upper {
		mean = th.Upper
	}
	return mean - th.Base
}

// singleSine integrates one full sine day between min and max, clipped to
// [base, upper].
func singleSine(minT, maxT float64, th Thresholds) float64 {
	if maxT < minT {
		minT, maxT = maxT, minT
	}
	mid := (maxT + minT) / 2
	amp := (maxT - minT) / 2

	switch {
	case maxT <= th.Base:
		return 0
	case minT >= th.Upper:
		return th.Upper - th.Base
	case minT >= th.Base && maxT <= th.Upper:
		return mid - th.Base
	case amp == 0:
		// Flat day outside the simple cases can only be fully above upper
		// or fully below base, both handled above.
		return clampFlat(mid, th)
	case minT < th.Base && maxT <= th.Upper:
		// Curve crosses the base threshold only.
		theta := math.Asin(clampSin((th.Base - mid) / amp))
		return ((mid-th.Base)*(math.Pi/2-theta) + amp*math.Cos(theta)) / math.Pi
	case minT >= th.Base && maxT > th.Upper:
		// Curve crosses the upper threshold only.
		theta := math.Asin(clampSin((th.Upper - mid) / amp))
		return ((mid-th.Base)*(theta+math.Pi/2) +
			(th.Upper-th.Base)*(math.Pi/2-theta) -
			amp*math.Cos(theta)) / math.Pi
	default:
		// Curve crosses both thresholds.
		theta1 := math.Asin(clampSin((th.Base - mid) / amp))
		theta2 := math.Asin(clampSin((th.Upper - mid) / amp))
		return ((mid-th.Base)*(theta2-theta1) +
			amp*(math.Cos(theta1)-math.Cos(theta2)) +
			(th.Upper-th.Base)*(math.Pi/2-theta2)) / math.Pi
	}
}

// doubleSine models the asymmetric day/night curve as two half-day sines:
// the rise from this morning's min to the max, and the fall from the max to
// the next morning's min. Each half contributes half of a full sine day with
// its own amplitude, which is what makes the method more accurate near
// threshold crossings than a single symmetric curve.
func doubleSine(minT, maxT, nextMin float64, th Thresholds) float64 {
	rise := singleSine(minT, maxT, th) / 2
	fall := singleSine(nextMin, maxT, th) / 2
	return rise + fall
}

func clampFlat(t float64, th Thresholds) float64 {
	if t <= th.Base {
		return 0
	}
	if t >= th.Upper {
		return th.Upper - th.Base
	}
	return t - th.Base
}

// clampSin keeps asin arguments in [-1, 1] against floating drift.
func clampSin(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

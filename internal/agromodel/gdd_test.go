package agromodel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrosight/agrosight/internal/domain"
)

var (
	day1 = time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	day2 = time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC)
	day3 = time.Date(2025, 4, 3, 0, 0, 0, 0, time.UTC)
)

func rec(date time.Time, minT, maxT float64) domain.DailyRecord {
	return domain.DailyRecord{
		Date:    date,
		MinTemp: domain.Float(minT),
		MaxTemp: domain.Float(maxT),
	}
}

func gapRec(date time.Time) domain.DailyRecord {
	return domain.DailyRecord{Date: date, Gap: true}
}

var th10_30 = Thresholds{Base: 10, Upper: 30}

// --- average method ---

func TestGDD_AverageIncrements(t *testing.T) {
	tests := []struct {
		name       string
		minT, maxT float64
		want       float64
	}{
		{name: "mean within thresholds", minT: 12, maxT: 22, want: 7},
		{name: "mean below base", minT: 5, maxT: 8, want: 0},
		{name: "mean above upper is capped", minT: 30, maxT: 40, want: 20},
		{name: "mean exactly at base", minT: 8, maxT: 12, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := GDD([]domain.DailyRecord{rec(day1, tt.minT, tt.maxT)},
				th10_30, domain.MethodAverage, 0)
			require.NoError(t, err)
			require.Len(t, out, 1)
			require.NotNil(t, out[0].Increment)
			assert.InDelta(t, tt.want, *out[0].Increment, 1e-9)
		})
	}
}

func TestGDD_EmptyMethodDefaultsToAverage(t *testing.T) {
	out, err := GDD([]domain.DailyRecord{rec(day1, 12, 22)}, th10_30, "", 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, domain.MethodAverage, out[0].Method)
	assert.InDelta(t, 7, *out[0].Increment, 1e-9)
}

// --- single sine method ---

func TestGDD_SingleSineIncrements(t *testing.T) {
	tests := []struct {
		name       string
		minT, maxT float64
		want       float64
	}{
		// Curve entirely inside the thresholds reduces to mid minus base.
		{name: "within thresholds", minT: 12, maxT: 22, want: 7},
		{name: "entirely below base", minT: 0, maxT: 9, want: 0},
		{name: "entirely above upper", minT: 31, maxT: 40, want: 20},
		// mid = base: the positive half-sine contributes amp/pi.
		{name: "crosses base only", minT: 5, maxT: 15, want: 5 / 3.14159265358979},
		// mid = upper: 20 - 10/pi.
		{name: "crosses upper only", minT: 20, maxT: 40, want: 20 - 10/3.14159265358979},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := GDD([]domain.DailyRecord{rec(day1, tt.minT, tt.maxT)},
				th10_30, domain.MethodSingleSine, 0)
			require.NoError(t, err)
			require.NotNil(t, out[0].Increment)
			assert.InDelta(t, tt.want, *out[0].Increment, 1e-6)
		})
	}
}

func TestGDD_SingleSineBetweenAverageBounds(t *testing.T) {
	// With the min below base, the sine method credits the above-base part of
	// the curve that the average method misses entirely.
	avg, err := GDD([]domain.DailyRecord{rec(day1, 4, 14)}, th10_30, domain.MethodAverage, 0)
	require.NoError(t, err)
	sine, err := GDD([]domain.DailyRecord{rec(day1, 4, 14)}, th10_30, domain.MethodSingleSine, 0)
	require.NoError(t, err)

	assert.InDelta(t, 0, *avg[0].Increment, 1e-9)
	assert.Positive(t, *sine[0].Increment)
}

// --- double sine method ---

func TestGDD_DoubleSineUsesNextDayMin(t *testing.T) {
	records := []domain.DailyRecord{
		rec(day1, 10, 20),
		rec(day2, 14, 24),
	}

	out, err := GDD(records, th10_30, domain.MethodDoubleSine, 0)
	require.NoError(t, err)
	require.Len(t, out, 2)

	// Day 1: rise half from (10,20) contributes 5/2, fall half toward the
	// next morning's 14 contributes 7/2.
	assert.InDelta(t, 6, *out[0].Increment, 1e-6)
}

func TestGDD_DoubleSineLastDayFallsBackToOwnMin(t *testing.T) {
	single, err := GDD([]domain.DailyRecord{rec(day1, 12, 22)}, th10_30, domain.MethodSingleSine, 0)
	require.NoError(t, err)
	double, err := GDD([]domain.DailyRecord{rec(day1, 12, 22)}, th10_30, domain.MethodDoubleSine, 0)
	require.NoError(t, err)

	// With no next day the fall half mirrors the rise half.
	assert.InDelta(t, *single[0].Increment, *double[0].Increment, 1e-9)
}

func TestGDD_DoubleSineEqualsAverageOnFlatDay(t *testing.T) {
	avg, err := GDD([]domain.DailyRecord{rec(day1, 15, 15)}, th10_30, domain.MethodAverage, 0)
	require.NoError(t, err)
	double, err := GDD([]domain.DailyRecord{rec(day1, 15, 15)}, th10_30, domain.MethodDoubleSine, 0)
	require.NoError(t, err)

	assert.InDelta(t, *avg[0].Increment, *double[0].Increment, 1e-9)
}

// --- gaps, accumulation, validation ---

func TestGDD_GapHoldsCumulative(t *testing.T) {
	records := []domain.DailyRecord{
		rec(day1, 12, 22), // +7
		gapRec(day2),
		rec(day3, 14, 26), // +10
	}

	out, err := GDD(records, th10_30, domain.MethodAverage, 0)
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.InDelta(t, 7, out[0].Cumulative, 1e-9)

	assert.True(t, out[1].Gap)
	assert.Nil(t, out[1].Increment)
	assert.InDelta(t, 7, out[1].Cumulative, 1e-9)

	assert.InDelta(t, 17, out[2].Cumulative, 1e-9)
}

func TestGDD_CumulativeNonDecreasingAcrossMethods(t *testing.T) {
	records := []domain.DailyRecord{
		rec(day1, -5, 2),
		rec(day2, 3, 18),
		gapRec(day3),
		rec(day3.AddDate(0, 0, 1), 16, 33),
		rec(day3.AddDate(0, 0, 2), 8, 12),
	}

	for _, method := range []domain.GDDMethod{domain.MethodAverage, domain.MethodSingleSine, domain.MethodDoubleSine} {
		t.Run(string(method), func(t *testing.T) {
			out, err := GDD(records, th10_30, method, 0)
			require.NoError(t, err)
			prev := 0.0
			for _, r := range out {
				assert.GreaterOrEqual(t, r.Cumulative, prev)
				if r.Increment != nil {
					assert.GreaterOrEqual(t, *r.Increment, 0.0)
				}
				prev = r.Cumulative
			}
		})
	}
}

func TestGDD_CarryInSeedsCumulative(t *testing.T) {
	out, err := GDD([]domain.DailyRecord{rec(day1, 12, 22)}, th10_30, domain.MethodAverage, 100)
	require.NoError(t, err)
	assert.InDelta(t, 107, out[0].Cumulative, 1e-9)
}

func TestGDD_InvalidThresholds(t *testing.T) {
	for _, th := range []Thresholds{{Base: 30, Upper: 10}, {Base: 10, Upper: 10}} {
		out, err := GDD([]domain.DailyRecord{rec(day1, 12, 22)}, th, domain.MethodAverage, 0)
		var modelErr *domain.ModelError
		require.ErrorAs(t, err, &modelErr)
		assert.Equal(t, domain.ModelInvalidThresholds, modelErr.Kind)
		assert.Nil(t, out, "no partial series on invalid thresholds")
	}
}

func TestGDD_UnknownMethod(t *testing.T) {
	_, err := GDD([]domain.DailyRecord{rec(day1, 12, 22)}, th10_30, "triangle", 0)
	var modelErr *domain.ModelError
	require.ErrorAs(t, err, &modelErr)
	assert.Equal(t, domain.ModelUnknownMethod, modelErr.Kind)
}

// --- alert scan ---

func TestScanAlerts(t *testing.T) {
	records := []domain.DailyRecord{
		rec(day1, -2, 8),  // frost
		rec(day2, 20, 37), // heat
		gapRec(day3),
		rec(day3.AddDate(0, 0, 1), 0, 35), // exactly at thresholds: no alert
	}

	alerts := ScanAlerts(records, DefaultAlertThresholds())
	require.Len(t, alerts, 2)
	assert.Equal(t, domain.WarnFrostRisk, alerts[0].Code)
	assert.Equal(t, domain.WarnHeatStress, alerts[1].Code)
}

func TestScanAlerts_SameDayBothAlerts(t *testing.T) {
	alerts := ScanAlerts([]domain.DailyRecord{rec(day1, -1, 36)}, DefaultAlertThresholds())
	require.Len(t, alerts, 2)
}

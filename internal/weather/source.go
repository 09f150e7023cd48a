package weather

import (
	"context"
	"time"

	"github.com/agrosight/agrosight/internal/domain"
)

// UnitDay is one day of raw scalar variables for a single grid cell or
// sample point, tagged with its provenance by the source adapter.
type UnitDay struct {
	UnitID        string
	Date          time.Time
	MinTemp       float64
	MaxTemp       float64
	Precipitation float64
	CloudFraction float64
	Source        domain.Provenance
}

// RawSeries is the unprocessed payload of one source fetch. A gridded source
// fills Cells; a point-based source fills Points. Days reference units by ID.
type RawSeries struct {
	Cells  []domain.GridCell
	Points []domain.SamplePoint
	Days   []UnitDay
}

// Gridded reports whether the series carries cell footprints.
func (s RawSeries) Gridded() bool { return len(s.Cells) > 0 }

// Source supplies raw weather series for a bounding box. Implementations own
// provenance tagging: historical fetches tag SourceHistorical, forecast
// fetches SourceForecast.
type Source interface {
	// FetchHistorical returns archive data covering the box for the range.
	FetchHistorical(ctx context.Context, box domain.BBox, dates domain.DateRange) (RawSeries, error)

	// FetchForecast returns forecast data covering the box for up to
	// horizonDays days ahead of the current day.
	FetchForecast(ctx context.Context, box domain.BBox, horizonDays int) (RawSeries, error)
}

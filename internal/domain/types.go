package domain

import (
	"fmt"
	"time"
)

// LatLon is a WGS-84 coordinate pair in degrees.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// BBox is a latitude/longitude axis-aligned bounding box.
type BBox struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// Contains reports whether the point lies inside or on the box.
func (b BBox) Contains(p LatLon) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lon >= b.MinLon && p.Lon <= b.MaxLon
}

// Center returns the midpoint of the box.
func (b BBox) Center() LatLon {
	return LatLon{Lat: (b.MinLat + b.MaxLat) / 2, Lon: (b.MinLon + b.MaxLon) / 2}
}

// Polygon is a user-drawn field boundary. The ring is stored open; operations
// treat it as closed. Polygons are read-only for the engine: every transform
// returns a new value.
type Polygon struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Ring      []LatLon  `json:"ring"`
	CreatedAt time.Time `json:"created_at"`
}

// GridCell is one weather-data unit with a rectangular geographic footprint.
type GridCell struct {
	ID     string `json:"id"`
	Bounds BBox   `json:"bounds"`
}

// SamplePoint is a point-based weather-data unit for sources without a grid.
type SamplePoint struct {
	ID  string `json:"id"`
	Loc LatLon `json:"loc"`
}

// WeightedIntersection relates a polygon to a grid cell it overlaps.
// Weight is intersection area over polygon area, in (0, 1].
type WeightedIntersection struct {
	PolygonID string  `json:"polygon_id"`
	CellID    string  `json:"cell_id"`
	Weight    float64 `json:"weight"`
}

// DateRange is an inclusive range of calendar days (midnight UTC).
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Day truncates a timestamp to midnight UTC.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// NewDateRange builds a range from two timestamps, normalized to days.
func NewDateRange(start, end time.Time) DateRange {
	return DateRange{Start: Day(start), End: Day(end)}
}

// Validate rejects empty or inverted ranges.
func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("date range: start and end are required")
	}
	if r.End.Before(r.Start) {
		return fmt.Errorf("date range: end %s before start %s",
			r.End.Format("2006-01-02"), r.Start.Format("2006-01-02"))
	}
	return nil
}

// Days enumerates every calendar day in the range, inclusive.
func (r DateRange) Days() []time.Time {
	if r.End.Before(r.Start) {
		return nil
	}
	days := make([]time.Time, 0, int(r.End.Sub(r.Start).Hours()/24)+1)
	for d := Day(r.Start); !d.After(r.End); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// Contains reports whether the day falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	d := Day(t)
	return !d.Before(r.Start) && !d.After(r.End)
}

// Provenance tags a daily record with the series it came from.
type Provenance string

const (
	SourceHistorical Provenance = "historical"
	SourceForecast   Provenance = "forecast"
)

// FillPolicy controls how gaps inside a weather series are treated.
// The default is FillNone: gaps are never silently interpolated.
type FillPolicy string

const (
	FillNone         FillPolicy = "none"
	FillLinear       FillPolicy = "linear"
	FillCarryForward FillPolicy = "carry-forward"
)

// DailyRecord is one polygon-day (or point-day) of fused weather data.
// Scalar fields are nil when the day is a gap. Records are immutable once
// computed and recomputed on each request.
type DailyRecord struct {
	Date          time.Time  `json:"date"`
	MinTemp       *float64   `json:"min_temp,omitempty"`
	MaxTemp       *float64   `json:"max_temp,omitempty"`
	MeanTemp      *float64   `json:"mean_temp,omitempty"`
	Precipitation *float64   `json:"precipitation,omitempty"`
	CloudFraction *float64   `json:"cloud_fraction,omitempty"`
	IsSunny       *bool      `json:"is_sunny,omitempty"`
	Source        Provenance `json:"source,omitempty"`
	Gap           bool       `json:"gap"`
	Filled        FillPolicy `json:"filled,omitempty"` // set when a fill policy produced the values
}

// ObservationState names the terminal state of the per-date imagery state
// machine, answering "why is this date's NDVI null" without re-running it.
type ObservationState string

const (
	StateNoScene       ObservationState = "no_scene"        // no scene acquired on this date
	StateAllFiltered   ObservationState = "all_filtered"    // every scene exceeded the cloud threshold
	StateLowPixelCount ObservationState = "low_pixel_count" // composite had too few valid pixels
	StateReduced       ObservationState = "reduced"         // a value was produced
)

// NDVIObservation is one polygon-date vegetation index observation.
// NDVI is nil for a gap; the State field records why.
type NDVIObservation struct {
	Date            time.Time        `json:"date"`
	NDVI            *float64         `json:"ndvi"`
	CloudFraction   float64          `json:"cloud_fraction"`
	PixelCountValid int              `json:"pixel_count_valid"`
	FracAboveThresh *float64         `json:"frac_above_thresh,omitempty"`
	State           ObservationState `json:"state"`
}

// GDDMethod selects the degree-day integration method.
type GDDMethod string

const (
	MethodAverage    GDDMethod = "average"
	MethodSingleSine GDDMethod = "single_sine"
	MethodDoubleSine GDDMethod = "double_sine"
)

// GDDRecord is one day of growing-degree-day accumulation. Increment is nil
// when the input day was a gap; Cumulative then holds the last valid total.
type GDDRecord struct {
	Date       time.Time `json:"date"`
	Increment  *float64  `json:"increment"`
	Cumulative float64   `json:"cumulative"`
	BaseTemp   float64   `json:"base_temp"`
	UpperTemp  float64   `json:"upper_temp"`
	Method     GDDMethod `json:"method"`
	Gap        bool      `json:"gap"`
}

// Float returns a pointer to v. Convenience for the nullable record fields.
func Float(v float64) *float64 { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }

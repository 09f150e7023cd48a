// Package weather fuses historical and forecast series and reduces them to
// one record per polygon (or point) per calendar day. Reduction over a grid
// is weight-weighted by spatial overlap; min/max temperature are the weighted
// means of the per-cell extremes, so cells with higher intersection weight
// dominate, rather than a simple min/max over cell extremes.
package weather

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/agrosight/agrosight/internal/domain"
	"github.com/agrosight/agrosight/internal/geometry"
	"github.com/agrosight/agrosight/internal/grid"
)

// SourcePolicy resolves the historical/forecast overlap.
type SourcePolicy string

const (
	// PolicyHistoricalWins treats archive data as ground truth wherever both
	// series cover a date. The default.
	PolicyHistoricalWins SourcePolicy = "historical-wins"

	// PolicyForecastOnly ignores the archive entirely.
	PolicyForecastOnly SourcePolicy = "forecast-only"
)

// Config holds the aggregator's derivation thresholds.
type Config struct {
	// SunnyCloudMax is the cloud fraction below which a dry day counts as sunny.
	SunnyCloudMax float64

	// SunnyPrecipMax is the precipitation (mm) at or below which a day can
	// still count as sunny.
	SunnyPrecipMax float64

	// MaxPointDistanceKm bounds the nearest-point fallback for point sources.
	MaxPointDistanceKm float64
}

// DefaultConfig mirrors the conventional "clear day" derivation: cloud cover
// under 20 percent and no precipitation.
func DefaultConfig() Config {
	return Config{SunnyCloudMax: 0.2, SunnyPrecipMax: 0, MaxPointDistanceKm: grid.DefaultMaxPointDistanceKm}
}

// Options select per-request aggregation behavior.
type Options struct {
	Policy SourcePolicy
	Fill   domain.FillPolicy
}

func (o Options) policy() SourcePolicy {
	if o.Policy == "" {
		return PolicyHistoricalWins
	}
	return o.Policy
}

func (o Options) fill() domain.FillPolicy {
	if o.Fill == "" {
		return domain.FillNone
	}
	return o.Fill
}

// Aggregator performs zonal reduction of raw weather series.
type Aggregator struct {
	source Source
	cfg    Config
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewAggregator wires an aggregator to its weather source.
func NewAggregator(source Source, cfg Config, clock clockwork.Clock, logger *slog.Logger) *Aggregator {
	return &Aggregator{source: source, cfg: cfg, clock: clock, logger: logger}
}

// Config returns the aggregator's tuning, for callers that derive combined
// series with the same sunny-day thresholds.
func (a *Aggregator) Config() Config {
	return a.cfg
}

// AggregatePolygon produces the fused daily series for one polygon.
func (a *Aggregator) AggregatePolygon(ctx context.Context, p domain.Polygon, dates domain.DateRange, opts Options) ([]domain.DailyRecord, []domain.Warning, error) {
	if err := dates.Validate(); err != nil {
		return nil, nil, err
	}

	box := geometry.BoundingBox(p)
	raw, err := a.fetch(ctx, box, dates, opts.policy())
	if err != nil {
		return nil, nil, err
	}

	var warnings []domain.Warning
	weights, err := a.polygonWeights(p, raw, &warnings)
	if err != nil {
		return nil, nil, err
	}

	records := a.reduce(raw, weights, dates, opts.policy())
	records, warnings = a.finish(records, warnings, opts.fill())
	return records, warnings, nil
}

// AggregatePoint produces the fused daily series for a bare coordinate.
// Gridded sources use the containing cell; point sources the nearest sample
// point within the configured distance.
func (a *Aggregator) AggregatePoint(ctx context.Context, pt domain.LatLon, dates domain.DateRange, opts Options) ([]domain.DailyRecord, []domain.Warning, error) {
	if err := dates.Validate(); err != nil {
		return nil, nil, err
	}

	box := domain.BBox{MinLat: pt.Lat, MaxLat: pt.Lat, MinLon: pt.Lon, MaxLon: pt.Lon}
	raw, err := a.fetch(ctx, box, dates, opts.policy())
	if err != nil {
		return nil, nil, err
	}

	var unitID string
	if raw.Gridded() {
		cell, err := grid.CellForPoint(pt, raw.Cells)
		if err != nil {
			return nil, nil, err
		}
		unitID = cell.ID
	} else {
		sp, err := grid.NearestPoint(pt, raw.Points, a.cfg.MaxPointDistanceKm)
		if err != nil {
			return nil, nil, err
		}
		unitID = sp.ID
	}

	weights := map[string]float64{unitID: 1}
	records := a.reduce(raw, weights, dates, opts.policy())
	records, warnings := a.finish(records, nil, opts.fill())
	return records, warnings, nil
}

// fetch retrieves both series and merges them into one RawSeries. The
// historical-overrides-forecast resolution happens later, in reduce, only
// after both series are fully retrieved.
func (a *Aggregator) fetch(ctx context.Context, box domain.BBox, dates domain.DateRange, policy SourcePolicy) (RawSeries, error) {
	var merged RawSeries

	if policy != PolicyForecastOnly {
		hist, err := a.source.FetchHistorical(ctx, box, dates)
		if err != nil {
			return RawSeries{}, fmt.Errorf("fetch historical: %w", err)
		}
		merged = hist
	}

	today := domain.Day(a.clock.Now())
	if horizon := int(dates.End.Sub(today).Hours()/24) + 1; horizon > 0 || policy == PolicyForecastOnly {
		if horizon < 1 {
			horizon = 1
		}
		fc, err := a.source.FetchForecast(ctx, box, horizon)
		if err != nil {
			return RawSeries{}, fmt.Errorf("fetch forecast: %w", err)
		}
		if merged.Cells == nil && merged.Points == nil {
			merged.Cells = fc.Cells
			merged.Points = fc.Points
		}
		merged.Days = append(merged.Days, fc.Days...)
	}

	return merged, nil
}

// polygonWeights maps the polygon onto the series' spatial units.
func (a *Aggregator) polygonWeights(p domain.Polygon, raw RawSeries, warnings *[]domain.Warning) (map[string]float64, error) {
	if raw.Gridded() {
		ix, err := grid.Intersect(p, raw.Cells)
		if err != nil {
			return nil, err
		}
		if ix.Partial() {
			*warnings = append(*warnings, domain.Warningf(domain.WarnPartialCoverage,
				"grid covers %.1f%% of polygon %q", ix.Coverage*100, p.ID))
		}
		weights := make(map[string]float64, len(ix.Weights))
		for _, w := range ix.Weights {
			weights[w.CellID] = w.Weight
		}
		return weights, nil
	}

	sp, err := grid.NearestPoint(geometry.Centroid(p), raw.Points, a.cfg.MaxPointDistanceKm)
	if err != nil {
		return nil, err
	}
	return map[string]float64{sp.ID: 1}, nil
}

// reduce runs the weighted zonal reduction for every day in the range.
func (a *Aggregator) reduce(raw RawSeries, weights map[string]float64, dates domain.DateRange, policy SourcePolicy) []domain.DailyRecord {
	type key struct {
		unit string
		day  time.Time
	}
	historical := make(map[key]UnitDay)
	forecast := make(map[key]UnitDay)
	for _, d := range raw.Days {
		k := key{unit: d.UnitID, day: domain.Day(d.Date)}
		switch d.Source {
		case domain.SourceForecast:
			forecast[k] = d
		default:
			historical[k] = d
		}
	}

	records := make([]domain.DailyRecord, 0, len(dates.Days()))
	for _, day := range dates.Days() {
		var (
			sumW, minT, maxT, precip, cloud float64
			source                          domain.Provenance
		)

		for unit, w := range weights {
			d, ok := UnitDay{}, false
			if policy != PolicyForecastOnly {
				d, ok = historical[key{unit: unit, day: day}]
			}
			if !ok {
				d, ok = forecast[key{unit: unit, day: day}]
			}
			if !ok {
				continue
			}
			// A mixed day resolves to historical: archive cells override
			// forecast cells, and the record keeps the stronger provenance.
			if d.Source == domain.SourceHistorical || source == "" {
				source = d.Source
			}
			sumW += w
			minT += w * d.MinTemp
			maxT += w * d.MaxTemp
			precip += w * d.Precipitation
			cloud += w * d.CloudFraction
		}

		if sumW == 0 {
			records = append(records, domain.DailyRecord{Date: day, Gap: true})
			continue
		}

		// Renormalize over the units that reported this day.
		minT, maxT, precip, cloud = minT/sumW, maxT/sumW, precip/sumW, cloud/sumW
		mean := (minT + maxT) / 2
		sunny := cloud < a.cfg.SunnyCloudMax && precip <= a.cfg.SunnyPrecipMax

		records = append(records, domain.DailyRecord{
			Date:          day,
			MinTemp:       domain.Float(minT),
			MaxTemp:       domain.Float(maxT),
			MeanTemp:      domain.Float(mean),
			Precipitation: domain.Float(precip),
			CloudFraction: domain.Float(cloud),
			IsSunny:       domain.Bool(sunny),
			Source:        source,
		})
	}
	return records
}

// finish applies the fill policy and attaches the gap warning.
func (a *Aggregator) finish(records []domain.DailyRecord, warnings []domain.Warning, fill domain.FillPolicy) ([]domain.DailyRecord, []domain.Warning) {
	gaps := 0
	for _, r := range records {
		if r.Gap {
			gaps++
		}
	}
	if gaps > 0 {
		warnings = append(warnings, domain.Warningf(domain.WarnGapDays,
			"%d of %d days have no data", gaps, len(records)))
	}
	if fill != domain.FillNone && gaps > 0 {
		records = Fill(records, fill)
	}
	return records, warnings
}

// SunnyDayCount counts the derived sunny flags over a series.
func SunnyDayCount(records []domain.DailyRecord) int {
	n := 0
	for _, r := range records {
		if r.IsSunny != nil && *r.IsSunny {
			n++
		}
	}
	return n
}

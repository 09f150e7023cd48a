// Package imagery turns a satellite image collection into a per-polygon NDVI
// time series. Each acquisition date moves through a small state machine:
// scenes queried, candidates filtered by scene-level cloud fraction, a best
// pixel composited across overlapping candidates, cloud-masked NDVI reduced
// to one statistic. The reached state is recorded on every observation so a
// null value is always explainable.
package imagery

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/agrosight/agrosight/internal/domain"
	"github.com/agrosight/agrosight/internal/geometry"
)

// Config holds the pipeline's quality thresholds.
type Config struct {
	// MinValidPixels is the pixel count under which an observation's NDVI
	// is null rather than a noisy estimate.
	MinValidPixels int

	// CloudProbMask is the per-pixel cloud probability above which a pixel
	// is masked out.
	CloudProbMask float64
}

// DefaultConfig uses a 10-pixel floor and a 0.4 cloud-probability mask.
func DefaultConfig() Config {
	return Config{MinValidPixels: 10, CloudProbMask: 0.4}
}

// Options select per-request pipeline behavior.
type Options struct {
	// MaxCloudFraction discards scenes whose scene-level cloud fraction
	// exceeds it. Zero means 1.0 (keep everything).
	MaxCloudFraction float64

	// HealthyThreshold, when set, adds the fraction of valid pixels whose
	// NDVI exceeds it to each observation.
	HealthyThreshold *float64
}

func (o Options) maxCloud() float64 {
	if o.MaxCloudFraction <= 0 {
		return 1.0
	}
	return o.MaxCloudFraction
}

// Pipeline computes NDVI series against an imagery source.
type Pipeline struct {
	source Source
	cfg    Config
	logger *slog.Logger
}

// NewPipeline wires a pipeline to its imagery source.
func NewPipeline(source Source, cfg Config, logger *slog.Logger) *Pipeline {
	return &Pipeline{source: source, cfg: cfg, logger: logger}
}

// NDVISeries produces one observation per day in the range, ordered by date.
// Days with no acquisition carry the no_scene state; dates whose scenes were
// all too cloudy, or whose composite had too few valid pixels inside the
// polygon, yield a null NDVI with the state that explains it. A range with no
// scenes at all returns an empty series and a no-scenes warning; it is not an
// error.
func (pl *Pipeline) NDVISeries(ctx context.Context, p domain.Polygon, dates domain.DateRange, opts Options) ([]domain.NDVIObservation, []domain.Warning, error) {
	if err := dates.Validate(); err != nil {
		return nil, nil, err
	}

	box := geometry.BoundingBox(p)
	scenes, err := pl.source.QueryScenes(ctx, box, dates)
	if err != nil {
		return nil, nil, fmt.Errorf("query scenes: %w", err)
	}

	if len(scenes) == 0 {
		return nil, []domain.Warning{domain.Warningf(domain.WarnNoScenes,
			"no scenes acquired for polygon %q between %s and %s",
			p.ID, dates.Start.Format("2006-01-02"), dates.End.Format("2006-01-02"))}, nil
	}

	byDate := make(map[time.Time][]SceneHandle)
	for _, s := range scenes {
		day := domain.Day(s.Date)
		byDate[day] = append(byDate[day], s)
	}

	var (
		series   []domain.NDVIObservation
		warnings []domain.Warning
		lowCount int
	)
	for _, day := range dates.Days() {
		obs, err := pl.resolveDate(ctx, p, box, day, byDate[day], opts)
		if err != nil {
			return nil, nil, err
		}
		if obs.State == domain.StateLowPixelCount {
			lowCount++
		}
		series = append(series, obs)
	}

	if lowCount > 0 {
		warnings = append(warnings, domain.Warningf(domain.WarnLowPixelCount,
			"%d observation(s) dropped below the %d valid-pixel minimum", lowCount, pl.cfg.MinValidPixels))
	}
	return series, warnings, nil
}

// resolveDate runs the per-date state machine for one nominal acquisition
// date. No forward-fill happens here or anywhere downstream.
func (pl *Pipeline) resolveDate(ctx context.Context, p domain.Polygon, box domain.BBox, day time.Time, scenes []SceneHandle, opts Options) (domain.NDVIObservation, error) {
	obs := domain.NDVIObservation{Date: day, State: domain.StateNoScene}
	if len(scenes) == 0 {
		return obs, nil
	}

	// Scene-level cloud filter.
	minCloud := math.MaxFloat64
	var candidates []SceneHandle
	for _, s := range scenes {
		minCloud = math.Min(minCloud, s.CloudFraction)
		if s.CloudFraction <= opts.maxCloud() {
			candidates = append(candidates, s)
		}
	}
	obs.CloudFraction = minCloud
	if len(candidates) == 0 {
		obs.State = domain.StateAllFiltered
		return obs, nil
	}

	// Deterministic composite input order.
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })

	composite, err := pl.composite(ctx, box, candidates)
	if err != nil {
		return domain.NDVIObservation{}, err
	}

	values := pl.reduce(p, composite)
	obs.PixelCountValid = len(values)
	if len(values) < pl.cfg.MinValidPixels {
		obs.State = domain.StateLowPixelCount
		return obs, nil
	}

	mean, err := stats.Mean(values)
	if err != nil {
		return domain.NDVIObservation{}, fmt.Errorf("reduce ndvi pixels: %w", err)
	}
	obs.NDVI = domain.Float(mean)
	obs.State = domain.StateReduced

	if opts.HealthyThreshold != nil {
		above := 0
		for _, v := range values {
			if v > *opts.HealthyThreshold {
				above++
			}
		}
		obs.FracAboveThresh = domain.Float(float64(above) / float64(len(values)))
	}
	return obs, nil
}

// bandSet holds the three aligned rasters of one scene read.
type bandSet struct {
	red, nir, cloud Raster
}

// composite merges overlapping same-date scenes per pixel by lowest cloud
// probability. Scenes with different cloud states are never averaged: each
// output pixel comes from exactly one scene.
func (pl *Pipeline) composite(ctx context.Context, box domain.BBox, scenes []SceneHandle) (bandSet, error) {
	var out bandSet
	for i, scene := range scenes {
		red, err := pl.source.ReadBand(ctx, scene, BandRed, box)
		if err != nil {
			return bandSet{}, fmt.Errorf("read band %s of scene %s: %w", BandRed, scene.ID, err)
		}
		nir, err := pl.source.ReadBand(ctx, scene, BandNIR, box)
		if err != nil {
			return bandSet{}, fmt.Errorf("read band %s of scene %s: %w", BandNIR, scene.ID, err)
		}
		cloud, err := pl.source.ReadBand(ctx, scene, BandCloudProb, box)
		if err != nil {
			return bandSet{}, fmt.Errorf("read band %s of scene %s: %w", BandCloudProb, scene.ID, err)
		}

		if i == 0 {
			out = bandSet{red: cloneRaster(red), nir: cloneRaster(nir), cloud: cloneRaster(cloud)}
			continue
		}
		if red.Width != out.red.Width || red.Height != out.red.Height {
			pl.logger.Warn("scene raster grid mismatch, skipping scene in composite",
				"scene_id", scene.ID, "width", red.Width, "height", red.Height)
			continue
		}
		for idx := range out.cloud.Values {
			candidate := cloud.Values[idx]
			current := out.cloud.Values[idx]
			// Take the candidate pixel when it has data and is less cloudy.
			if math.IsNaN(candidate) || math.IsNaN(red.Values[idx]) || math.IsNaN(nir.Values[idx]) {
				continue
			}
			holeInCurrent := math.IsNaN(current) ||
				math.IsNaN(out.red.Values[idx]) || math.IsNaN(out.nir.Values[idx])
			if holeInCurrent || candidate < current {
				out.cloud.Values[idx] = candidate
				out.red.Values[idx] = red.Values[idx]
				out.nir.Values[idx] = nir.Values[idx]
			}
		}
	}
	return out, nil
}

// reduce masks clouds, computes per-pixel NDVI, and keeps pixels whose
// centers fall inside the polygon.
func (pl *Pipeline) reduce(p domain.Polygon, bands bandSet) []float64 {
	var values []float64
	for y := 0; y < bands.red.Height; y++ {
		for x := 0; x < bands.red.Width; x++ {
			if !bands.red.Valid(x, y) || !bands.nir.Valid(x, y) {
				continue
			}
			if bands.cloud.Valid(x, y) && bands.cloud.At(x, y) > pl.cfg.CloudProbMask {
				continue
			}
			if !geometry.ContainsPoint(p, bands.red.Center(x, y)) {
				continue
			}
			red := bands.red.At(x, y)
			nir := bands.nir.At(x, y)
			if red+nir == 0 {
				continue
			}
			values = append(values, (nir-red)/(nir+red))
		}
	}
	return values
}

func cloneRaster(r Raster) Raster {
	values := make([]float64, len(r.Values))
	copy(values, r.Values)
	r.Values = values
	return r
}

// Package orchestrator coordinates the weather, imagery, and degree-day
// branches of an analysis request, with result caching and partial delivery
// when a branch fails or the request deadline passes.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/agrosight/agrosight/internal/agromodel"
	"github.com/agrosight/agrosight/internal/cache"
	"github.com/agrosight/agrosight/internal/domain"
	"github.com/agrosight/agrosight/internal/geometry"
	"github.com/agrosight/agrosight/internal/imagery"
	"github.com/agrosight/agrosight/internal/observability"
	"github.com/agrosight/agrosight/internal/store"
	"github.com/agrosight/agrosight/internal/weather"
)

// BranchStatus reports how a sub-computation ended.
type BranchStatus string

const (
	BranchOK       BranchStatus = "ok"
	BranchFailed   BranchStatus = "failed"
	BranchTimedOut BranchStatus = "timed_out"
)

// WeatherSpec selects the weather branch and its options.
type WeatherSpec struct {
	Policy weather.SourcePolicy `json:"policy,omitempty"`
	Fill   domain.FillPolicy    `json:"fill,omitempty"`
}

// NDVISpec selects the imagery branch and its options.
type NDVISpec struct {
	MaxCloudFraction float64  `json:"max_cloud_fraction,omitempty" validate:"gte=0,lte=1"`
	HealthyThreshold *float64 `json:"healthy_threshold,omitempty" validate:"omitempty,gte=-1,lte=1"`
}

// GDDSpec selects the degree-day branch. Setting it implies the weather
// branch, which supplies the daily temperature series.
type GDDSpec struct {
	Base    float64          `json:"base"`
	Upper   float64          `json:"upper"`
	Method  domain.GDDMethod `json:"method,omitempty"`
	CarryIn float64          `json:"carry_in,omitempty"`
}

// Request describes one analysis. Exactly one of FieldID or Point targets
// the computation; nil branch specs are skipped.
type Request struct {
	FieldID string           `json:"field_id,omitempty"`
	Point   *domain.LatLon   `json:"point,omitempty"`
	Dates   domain.DateRange `json:"dates" validate:"required"`
	Weather *WeatherSpec     `json:"weather,omitempty"`
	NDVI    *NDVISpec        `json:"ndvi,omitempty" validate:"omitempty"`
	GDD     *GDDSpec         `json:"gdd,omitempty" validate:"omitempty"`
}

// WeatherResult is the weather branch output.
type WeatherResult struct {
	Status    BranchStatus         `json:"status"`
	Records   []domain.DailyRecord `json:"records,omitempty"`
	SunnyDays int                  `json:"sunny_days"`
	Error     string               `json:"error,omitempty"`
}

// NDVIResult is the imagery branch output.
type NDVIResult struct {
	Status       BranchStatus             `json:"status"`
	Observations []domain.NDVIObservation `json:"observations,omitempty"`
	Error        string                   `json:"error,omitempty"`
}

// GDDResult is the degree-day branch output.
type GDDResult struct {
	Status  BranchStatus       `json:"status"`
	Records []domain.GDDRecord `json:"records,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// Result is a complete or partial analysis. Partial is true when any
// requested branch did not finish with BranchOK.
type Result struct {
	FieldID     string           `json:"field_id,omitempty"`
	Point       *domain.LatLon   `json:"point,omitempty"`
	Dates       domain.DateRange `json:"dates"`
	GeneratedAt time.Time        `json:"generated_at"`
	Weather     *WeatherResult   `json:"weather,omitempty"`
	NDVI        *NDVIResult      `json:"ndvi,omitempty"`
	GDD         *GDDResult       `json:"gdd,omitempty"`
	Warnings    []domain.Warning `json:"warnings,omitempty"`
	Partial     bool             `json:"partial"`
}

// Config tunes the orchestrator.
type Config struct {
	RequestTimeout time.Duration
	CacheEntries   int
	CacheTTL       time.Duration
	Alerts         agromodel.AlertThresholds
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		RequestTimeout: 30 * time.Second,
		CacheEntries:   512,
		CacheTTL:       15 * time.Minute,
		Alerts:         agromodel.DefaultAlertThresholds(),
	}
}

// Orchestrator runs analysis requests against the wired branches.
type Orchestrator struct {
	fields   store.PolygonStore
	weather  *weather.Aggregator
	imagery  *imagery.Pipeline
	logger   *slog.Logger
	metrics  *observability.Metrics
	clock    clockwork.Clock
	cfg      Config
	ready    atomic.Bool

	weatherCache *cache.Store[weatherPayload]
	ndviCache    *cache.Store[ndviPayload]
}

type weatherPayload struct {
	records  []domain.DailyRecord
	warnings []domain.Warning
}

type ndviPayload struct {
	observations []domain.NDVIObservation
	warnings     []domain.Warning
}

// New creates an Orchestrator with the given branches and observability.
func New(fields store.PolygonStore, agg *weather.Aggregator, img *imagery.Pipeline, cfg Config, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Orchestrator {
	o := &Orchestrator{
		fields:       fields,
		weather:      agg,
		imagery:      img,
		logger:       logger,
		metrics:      metrics,
		clock:        clock,
		cfg:          cfg,
		weatherCache: cache.New[weatherPayload](cfg.CacheEntries, cfg.CacheTTL, clock),
		ndviCache:    cache.New[ndviPayload](cfg.CacheEntries, cfg.CacheTTL, clock),
	}
	o.ready.Store(true)
	return o
}

// CheckReadiness returns nil once the orchestrator is wired and serving.
func (o *Orchestrator) CheckReadiness(_ context.Context) error {
	if !o.ready.Load() {
		return fmt.Errorf("orchestrator is shut down")
	}
	return nil
}

// Shutdown marks the orchestrator not ready. In-flight requests finish.
func (o *Orchestrator) Shutdown() {
	o.ready.Store(false)
}

// Run executes one analysis request. Validation failures are returned as
// errors; branch failures after validation produce a partial Result instead.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Result, error) {
	start := time.Now()

	target, err := o.validate(req)
	if err != nil {
		o.metrics.AnalysisRequests.WithLabelValues("rejected").Inc()
		return Result{}, err
	}

	if o.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.RequestTimeout)
		defer cancel()
	}

	res := Result{
		FieldID:     req.FieldID,
		Point:       req.Point,
		Dates:       req.Dates,
		GeneratedAt: o.clock.Now().UTC(),
	}

	needWeather := req.Weather != nil || req.GDD != nil

	var weatherCh chan weatherOutcome
	var ndviCh chan ndviOutcome
	if needWeather {
		weatherCh = make(chan weatherOutcome, 1)
		go func() { weatherCh <- o.runWeather(ctx, target, req) }()
	}
	if req.NDVI != nil {
		ndviCh = make(chan ndviOutcome, 1)
		go func() { ndviCh <- o.runNDVI(ctx, target, req) }()
	}

	if needWeather {
		out, done := awaitBranch(ctx, weatherCh)
		if !done {
			res.Weather = &WeatherResult{Status: BranchTimedOut}
			if req.GDD != nil {
				res.GDD = &GDDResult{Status: BranchTimedOut}
			}
			res.Warnings = append(res.Warnings, domain.Warningf(domain.WarnTimeout, "weather branch exceeded the request deadline"))
			o.observeBranch("weather", BranchTimedOut, start)
		} else {
			res.Weather = out.weather
			res.GDD = out.gdd
			res.Warnings = append(res.Warnings, out.warnings...)
			o.observeBranch("weather", out.weather.Status, start)
			if out.gdd != nil {
				o.observeBranch("gdd", out.gdd.Status, start)
			}
		}
	}

	if req.NDVI != nil {
		out, done := awaitBranch(ctx, ndviCh)
		if !done {
			res.NDVI = &NDVIResult{Status: BranchTimedOut}
			res.Warnings = append(res.Warnings, domain.Warningf(domain.WarnTimeout, "ndvi branch exceeded the request deadline"))
			o.observeBranch("ndvi", BranchTimedOut, start)
		} else {
			res.NDVI = out.result
			res.Warnings = append(res.Warnings, out.warnings...)
			o.observeBranch("ndvi", out.result.Status, start)
		}
	}

	res.Partial = isPartial(res)
	outcome := "ok"
	if res.Partial {
		outcome = "partial"
	}
	o.metrics.AnalysisRequests.WithLabelValues(outcome).Inc()
	o.metrics.AnalysisDuration.Observe(time.Since(start).Seconds())
	o.logger.Info("analysis complete",
		"field_id", req.FieldID,
		"partial", res.Partial,
		"duration", time.Since(start),
	)
	return res, nil
}

// target carries the resolved computation target for one request.
type target struct {
	polygon *domain.Polygon
	point   *domain.LatLon
}

func (t target) key() string {
	if t.polygon != nil {
		return "field:" + t.polygon.ID
	}
	return fmt.Sprintf("point:%.5f,%.5f", t.point.Lat, t.point.Lon)
}

func (o *Orchestrator) validate(req Request) (target, error) {
	if (req.FieldID == "") == (req.Point == nil) {
		return target{}, fmt.Errorf("request: exactly one of field_id or point is required")
	}
	if err := req.Dates.Validate(); err != nil {
		return target{}, err
	}
	if req.Weather == nil && req.NDVI == nil && req.GDD == nil {
		return target{}, fmt.Errorf("request: at least one of weather, ndvi, or gdd is required")
	}
	if req.NDVI != nil && req.Point != nil {
		return target{}, fmt.Errorf("request: ndvi requires a field polygon, not a point")
	}
	if req.GDD != nil {
		th := agromodel.Thresholds{Base: req.GDD.Base, Upper: req.GDD.Upper}
		if err := th.Validate(); err != nil {
			return target{}, err
		}
		switch req.GDD.Method {
		case "", domain.MethodAverage, domain.MethodSingleSine, domain.MethodDoubleSine:
		default:
			return target{}, &domain.ModelError{Kind: domain.ModelUnknownMethod, Message: fmt.Sprintf("unknown gdd method %q", req.GDD.Method)}
		}
	}

	if req.Point != nil {
		return target{point: req.Point}, nil
	}
	p, err := o.fields.Load(req.FieldID)
	if err != nil {
		return target{}, err
	}
	norm, err := geometry.Normalize(p)
	if err != nil {
		return target{}, err
	}
	return target{polygon: &norm}, nil
}

type weatherOutcome struct {
	weather  *WeatherResult
	gdd      *GDDResult
	warnings []domain.Warning
}

type ndviOutcome struct {
	result   *NDVIResult
	warnings []domain.Warning
}

// awaitBranch waits for the branch result or the request deadline, then
// drains a result that landed just as the deadline passed.
func awaitBranch[T any](ctx context.Context, ch chan T) (T, bool) {
	select {
	case out := <-ch:
		return out, true
	case <-ctx.Done():
		select {
		case out := <-ch:
			return out, true
		default:
			var zero T
			return zero, false
		}
	}
}

func (o *Orchestrator) runWeather(ctx context.Context, t target, req Request) weatherOutcome {
	spec := req.Weather
	if spec == nil {
		spec = &WeatherSpec{}
	}
	key := fmt.Sprintf("weather|%s|%s|%s|%s|%s",
		t.key(),
		req.Dates.Start.Format("2006-01-02"), req.Dates.End.Format("2006-01-02"),
		spec.Policy, spec.Fill)

	payload, hit, err := o.weatherCache.GetOrCompute(ctx, key, func(ctx context.Context) (weatherPayload, error) {
		opts := weather.Options{Policy: spec.Policy, Fill: spec.Fill}
		var (
			records  []domain.DailyRecord
			warnings []domain.Warning
			err      error
		)
		if t.polygon != nil {
			records, warnings, err = o.weather.AggregatePolygon(ctx, *t.polygon, req.Dates, opts)
		} else {
			records, warnings, err = o.weather.AggregatePoint(ctx, *t.point, req.Dates, opts)
		}
		if err != nil {
			return weatherPayload{}, err
		}
		return weatherPayload{records: records, warnings: warnings}, nil
	})
	o.observeCache("weather", hit)
	if err != nil {
		o.logger.Error("weather branch failed", "field_id", req.FieldID, "error", err)
		out := weatherOutcome{weather: &WeatherResult{Status: BranchFailed, Error: err.Error()}}
		if req.GDD != nil {
			out.gdd = &GDDResult{Status: BranchFailed, Error: "weather data unavailable"}
		}
		return out
	}

	out := weatherOutcome{
		weather: &WeatherResult{
			Status:    BranchOK,
			Records:   payload.records,
			SunnyDays: weather.SunnyDayCount(payload.records),
		},
		warnings: payload.warnings,
	}
	out.warnings = append(out.warnings, agromodel.ScanAlerts(payload.records, o.cfg.Alerts)...)

	if req.GDD != nil {
		th := agromodel.Thresholds{Base: req.GDD.Base, Upper: req.GDD.Upper}
		gdd, err := agromodel.GDD(payload.records, th, req.GDD.Method, req.GDD.CarryIn)
		if err != nil {
			out.gdd = &GDDResult{Status: BranchFailed, Error: err.Error()}
		} else {
			out.gdd = &GDDResult{Status: BranchOK, Records: gdd}
		}
	}
	return out
}

func (o *Orchestrator) runNDVI(ctx context.Context, t target, req Request) ndviOutcome {
	spec := req.NDVI
	key := fmt.Sprintf("ndvi|%s|%s|%s|%.3f|%s",
		t.key(),
		req.Dates.Start.Format("2006-01-02"), req.Dates.End.Format("2006-01-02"),
		spec.MaxCloudFraction, formatThreshold(spec.HealthyThreshold))

	payload, hit, err := o.ndviCache.GetOrCompute(ctx, key, func(ctx context.Context) (ndviPayload, error) {
		opts := imagery.Options{
			MaxCloudFraction: spec.MaxCloudFraction,
			HealthyThreshold: spec.HealthyThreshold,
		}
		obs, warnings, err := o.imagery.NDVISeries(ctx, *t.polygon, req.Dates, opts)
		if err != nil {
			return ndviPayload{}, err
		}
		return ndviPayload{observations: obs, warnings: warnings}, nil
	})
	o.observeCache("ndvi", hit)
	if err != nil {
		o.logger.Error("ndvi branch failed", "field_id", req.FieldID, "error", err)
		return ndviOutcome{result: &NDVIResult{Status: BranchFailed, Error: err.Error()}}
	}
	return ndviOutcome{
		result:   &NDVIResult{Status: BranchOK, Observations: payload.observations},
		warnings: payload.warnings,
	}
}

func (o *Orchestrator) observeBranch(branch string, status BranchStatus, start time.Time) {
	o.metrics.BranchRuns.WithLabelValues(branch, string(status)).Inc()
	o.metrics.BranchDuration.WithLabelValues(branch).Observe(time.Since(start).Seconds())
}

func (o *Orchestrator) observeCache(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	o.metrics.CacheLookups.WithLabelValues(kind, result).Inc()
}

func isPartial(res Result) bool {
	if res.Weather != nil && res.Weather.Status != BranchOK {
		return true
	}
	if res.NDVI != nil && res.NDVI.Status != BranchOK {
		return true
	}
	if res.GDD != nil && res.GDD.Status != BranchOK {
		return true
	}
	return false
}

func formatThreshold(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.3f", *v)
}

// Package openmeteo adapts the Open-Meteo archive and forecast APIs to the
// engine's weather source interface. Both endpoints serve a single
// coordinate, so the adapter samples a small point lattice over the request
// box and exposes each sample as a point-based weather unit; zonal reduction
// then weights those points like any other source.
package openmeteo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"github.com/agrosight/agrosight/internal/domain"
	"github.com/agrosight/agrosight/internal/observability"
	"github.com/agrosight/agrosight/internal/weather"
)

const (
	defaultArchiveURL  = "https://archive-api.open-meteo.com/v1/archive"
	defaultForecastURL = "https://api.open-meteo.com/v1/forecast"

	// dailyVars are the Open-Meteo daily variables the aggregator consumes.
	dailyVars = "temperature_2m_max,temperature_2m_min,precipitation_sum,cloudcover_mean"
)

// Config controls the client's endpoints and resilience behavior.
type Config struct {
	ArchiveURL  string
	ForecastURL string
	Timeout     time.Duration

	// MaxSamplePoints caps the lattice sampled over a request box.
	MaxSamplePoints int

	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultConfig mirrors the upstream rate limits: short timeout, three
// retries, nine sample points.
func DefaultConfig() Config {
	return Config{
		ArchiveURL:      defaultArchiveURL,
		ForecastURL:     defaultForecastURL,
		Timeout:         30 * time.Second,
		MaxSamplePoints: 9,
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	}
}

// Client implements weather.Source against Open-Meteo.
type Client struct {
	cfg        Config
	httpClient *http.Client
	circuit    *gobreaker.CircuitBreaker
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates an Open-Meteo client with its own circuit breaker.
func NewClient(cfg Config, logger *slog.Logger, metrics *observability.Metrics) *Client {
	if cfg.ArchiveURL == "" {
		cfg.ArchiveURL = defaultArchiveURL
	}
	if cfg.ForecastURL == "" {
		cfg.ForecastURL = defaultForecastURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxSamplePoints <= 0 {
		cfg.MaxSamplePoints = 9
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openmeteo",
		MaxRequests: 5,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		circuit:    cb,
		logger:     logger,
		metrics:    metrics,
	}
}

// FetchHistorical reads the archive endpoint for every sample point in the
// box, tagging records as historical ground truth.
func (c *Client) FetchHistorical(ctx context.Context, box domain.BBox, dates domain.DateRange) (weather.RawSeries, error) {
	params := url.Values{
		"start_date": {dates.Start.Format("2006-01-02")},
		"end_date":   {dates.End.Format("2006-01-02")},
		"daily":      {dailyVars},
		"timezone":   {"UTC"},
	}
	return c.fetch(ctx, c.cfg.ArchiveURL, params, box, domain.SourceHistorical)
}

// FetchForecast reads the forecast endpoint for every sample point in the box.
func (c *Client) FetchForecast(ctx context.Context, box domain.BBox, horizonDays int) (weather.RawSeries, error) {
	params := url.Values{
		"forecast_days": {fmt.Sprintf("%d", horizonDays)},
		"daily":         {dailyVars},
		"timezone":      {"UTC"},
	}
	return c.fetch(ctx, c.cfg.ForecastURL, params, box, domain.SourceForecast)
}

func (c *Client) fetch(ctx context.Context, baseURL string, params url.Values, box domain.BBox, prov domain.Provenance) (weather.RawSeries, error) {
	points := samplePoints(box, c.cfg.MaxSamplePoints)

	series := weather.RawSeries{Points: points}
	perPoint := make([][]weather.UnitDay, len(points))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, pt := range points {
		g.Go(func() error {
			payload, err := c.fetchPoint(gctx, baseURL, params, pt.Loc)
			if err != nil {
				return fmt.Errorf("point %s: %w", pt.ID, err)
			}
			perPoint[i] = payload.unitDays(pt.ID, prov)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return weather.RawSeries{}, err
	}

	for _, days := range perPoint {
		series.Days = append(series.Days, days...)
	}
	return series, nil
}

// fetchPoint performs one request with retries, exponential backoff, and the
// shared circuit breaker.
func (c *Client) fetchPoint(ctx context.Context, baseURL string, params url.Values, loc domain.LatLon) (*dailyPayload, error) {
	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("latitude", fmt.Sprintf("%.6f", loc.Lat))
	q.Set("longitude", fmt.Sprintf("%.6f", loc.Lon))
	fullURL := baseURL + "?" + q.Encode()

	backoff := c.cfg.InitialInterval
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		payload, err := c.doRequest(ctx, fullURL)
		if err == nil {
			return payload, nil
		}
		lastErr = err

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}
		if attempt == c.cfg.MaxRetries {
			break
		}

		c.logger.Warn("openmeteo request failed, retrying",
			"attempt", attempt+1, "backoff", backoff, "error", err)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		if backoff *= 2; c.cfg.MaxInterval > 0 && backoff > c.cfg.MaxInterval {
			backoff = c.cfg.MaxInterval
		}
	}

	return nil, &domain.SourceUnavailableError{
		Source:   "openmeteo",
		Attempts: c.cfg.MaxRetries + 1,
		Err:      lastErr,
	}
}

func (c *Client) doRequest(ctx context.Context, fullURL string) (*dailyPayload, error) {
	start := time.Now()
	result, err := c.circuit.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, fmt.Errorf("openmeteo API error: status %d: %s", resp.StatusCode, body)
		}

		var payload dailyPayload
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return &payload, nil
	})

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	c.metrics.SourceRequests.WithLabelValues("openmeteo", outcome).Inc()
	c.metrics.SourceDuration.WithLabelValues("openmeteo").Observe(time.Since(start).Seconds())

	if err != nil {
		return nil, err
	}
	return result.(*dailyPayload), nil
}

// dailyPayload is the subset of the Open-Meteo response the engine consumes.
// Daily arrays are positional: index i of every array belongs to Time[i].
type dailyPayload struct {
	Daily struct {
		Time             []string   `json:"time"`
		TempMax          []*float64 `json:"temperature_2m_max"`
		TempMin          []*float64 `json:"temperature_2m_min"`
		PrecipitationSum []*float64 `json:"precipitation_sum"`
		CloudCoverMean   []*float64 `json:"cloudcover_mean"`
	} `json:"daily"`
}

// unitDays maps the positional arrays into unit-day records, skipping days
// where the API returned null temperatures. Cloud cover arrives in percent
// and is normalized to a fraction.
func (p *dailyPayload) unitDays(unitID string, prov domain.Provenance) []weather.UnitDay {
	d := p.Daily
	out := make([]weather.UnitDay, 0, len(d.Time))
	for i, ts := range d.Time {
		date, err := time.Parse("2006-01-02", ts)
		if err != nil {
			continue
		}
		if i >= len(d.TempMin) || i >= len(d.TempMax) || d.TempMin[i] == nil || d.TempMax[i] == nil {
			continue
		}
		day := weather.UnitDay{
			UnitID:  unitID,
			Date:    date.UTC(),
			MinTemp: *d.TempMin[i],
			MaxTemp: *d.TempMax[i],
			Source:  prov,
		}
		if i < len(d.PrecipitationSum) && d.PrecipitationSum[i] != nil {
			day.Precipitation = *d.PrecipitationSum[i]
		}
		if i < len(d.CloudCoverMean) && d.CloudCoverMean[i] != nil {
			day.CloudFraction = *d.CloudCoverMean[i] / 100
		}
		out = append(out, day)
	}
	return out
}

// samplePoints lays an n×n lattice over the box, n chosen so the point count
// stays at or below maxPoints. A degenerate box collapses to its center.
func samplePoints(box domain.BBox, maxPoints int) []domain.SamplePoint {
	if box.MaxLat-box.MinLat < 1e-9 && box.MaxLon-box.MinLon < 1e-9 {
		return []domain.SamplePoint{{ID: "p0", Loc: box.Center()}}
	}

	n := 1
	for (n+1)*(n+1) <= maxPoints {
		n++
	}

	var points []domain.SamplePoint
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var lat, lon float64
			if n == 1 {
				lat, lon = (box.MinLat+box.MaxLat)/2, (box.MinLon+box.MaxLon)/2
			} else {
				lat = box.MinLat + (box.MaxLat-box.MinLat)*float64(i)/float64(n-1)
				lon = box.MinLon + (box.MaxLon-box.MinLon)*float64(j)/float64(n-1)
			}
			points = append(points, domain.SamplePoint{
				ID:  fmt.Sprintf("p%d_%d", i, j),
				Loc: domain.LatLon{Lat: lat, Lon: lon},
			})
		}
	}
	return points
}

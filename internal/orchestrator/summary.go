package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/agrosight/agrosight/internal/domain"
	"github.com/agrosight/agrosight/internal/geometry"
	"github.com/agrosight/agrosight/internal/weather"
)

// SummaryRequest asks for an area-weighted weather roll-up over several fields.
type SummaryRequest struct {
	FieldIDs []string         `json:"field_ids"`
	Dates    domain.DateRange `json:"dates"`
	Weather  WeatherSpec      `json:"weather,omitempty"`
}

// FieldStatus reports the per-field outcome inside a summary.
type FieldStatus struct {
	FieldID string       `json:"field_id"`
	Status  BranchStatus `json:"status"`
	AreaM2  float64      `json:"area_m2,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// Summary is the combined roll-up. Fields that failed are excluded from the
// combination and listed with their error.
type Summary struct {
	Fields      []FieldStatus        `json:"fields"`
	Records     []domain.DailyRecord `json:"records,omitempty"`
	SunnyDays   int                  `json:"sunny_days"`
	GeneratedAt time.Time            `json:"generated_at"`
	Warnings    []domain.Warning     `json:"warnings,omitempty"`
	Partial     bool                 `json:"partial"`
}

// Summarize aggregates weather for each field and combines the series
// weighted by field area. At least one field must succeed.
func (o *Orchestrator) Summarize(ctx context.Context, req SummaryRequest) (Summary, error) {
	if len(req.FieldIDs) == 0 {
		o.metrics.AnalysisRequests.WithLabelValues("rejected").Inc()
		return Summary{}, fmt.Errorf("summary: at least one field_id is required")
	}
	if err := req.Dates.Validate(); err != nil {
		o.metrics.AnalysisRequests.WithLabelValues("rejected").Inc()
		return Summary{}, err
	}

	if o.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.RequestTimeout)
		defer cancel()
	}

	sum := Summary{GeneratedAt: o.clock.Now().UTC()}
	series := make([]weather.FieldSeries, 0, len(req.FieldIDs))

	for _, id := range req.FieldIDs {
		fs, warnings, err := o.fieldSeries(ctx, id, req)
		if err != nil {
			sum.Fields = append(sum.Fields, FieldStatus{FieldID: id, Status: BranchFailed, Error: err.Error()})
			sum.Partial = true
			o.logger.Warn("summary field skipped", "field_id", id, "error", err)
			continue
		}
		sum.Fields = append(sum.Fields, FieldStatus{FieldID: id, Status: BranchOK, AreaM2: fs.AreaM2})
		sum.Warnings = append(sum.Warnings, warnings...)
		series = append(series, fs)
	}

	if len(series) == 0 {
		o.metrics.AnalysisRequests.WithLabelValues("error").Inc()
		return Summary{}, fmt.Errorf("summary: no field produced data")
	}

	sum.Records = weather.CombineFields(series, o.weather.Config())
	sum.SunnyDays = weather.SunnyDayCount(sum.Records)

	outcome := "ok"
	if sum.Partial {
		outcome = "partial"
	}
	o.metrics.AnalysisRequests.WithLabelValues(outcome).Inc()
	return sum, nil
}

func (o *Orchestrator) fieldSeries(ctx context.Context, id string, req SummaryRequest) (weather.FieldSeries, []domain.Warning, error) {
	p, err := o.fields.Load(id)
	if err != nil {
		return weather.FieldSeries{}, nil, err
	}
	norm, err := geometry.Normalize(p)
	if err != nil {
		return weather.FieldSeries{}, nil, err
	}
	area, err := geometry.Area(norm, geometry.AreaOptions{})
	if err != nil {
		return weather.FieldSeries{}, nil, err
	}

	out := o.runWeather(ctx, target{polygon: &norm}, Request{
		FieldID: id,
		Dates:   req.Dates,
		Weather: &req.Weather,
	})
	if out.weather.Status != BranchOK {
		return weather.FieldSeries{}, nil, fmt.Errorf("weather: %s", out.weather.Error)
	}
	return weather.FieldSeries{
		PolygonID: id,
		AreaM2:    area,
		Records:   out.weather.Records,
	}, out.warnings, nil
}

package weather

import (
	"sort"
	"time"

	"github.com/agrosight/agrosight/internal/domain"
)

// FieldSeries pairs one field's aggregated daily records with its area, the
// weight it contributes to a multi-field summary.
type FieldSeries struct {
	PolygonID string
	AreaM2    float64
	Records   []domain.DailyRecord
}

// CombineFields merges per-field series into one "all fields" series,
// weighting each field by its own area rather than averaging naively. For a
// given day only fields with data participate, renormalized by their areas;
// a day missing everywhere stays a gap. The operation is associative with
// single-field zonal reduction: aggregating the union of two disjoint
// polygons equals the area-weighted combination of aggregating each.
func CombineFields(fields []FieldSeries, cfg Config) []domain.DailyRecord {
	if len(fields) == 0 {
		return nil
	}

	type acc struct {
		area, minT, maxT, precip, cloud float64
		source                          domain.Provenance
	}
	byDay := make(map[time.Time]*acc)

	for _, f := range fields {
		if f.AreaM2 <= 0 {
			continue
		}
		for _, r := range f.Records {
			day := domain.Day(r.Date)
			a, ok := byDay[day]
			if !ok {
				a = &acc{}
				byDay[day] = a
			}
			if r.Gap || r.MinTemp == nil || r.MaxTemp == nil {
				continue
			}
			a.area += f.AreaM2
			a.minT += f.AreaM2 * *r.MinTemp
			a.maxT += f.AreaM2 * *r.MaxTemp
			if r.Precipitation != nil {
				a.precip += f.AreaM2 * *r.Precipitation
			}
			if r.CloudFraction != nil {
				a.cloud += f.AreaM2 * *r.CloudFraction
			}
			if r.Source == domain.SourceHistorical || a.source == "" {
				a.source = r.Source
			}
		}
	}

	days := make([]time.Time, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	out := make([]domain.DailyRecord, 0, len(days))
	for _, day := range days {
		a := byDay[day]
		if a.area == 0 {
			out = append(out, domain.DailyRecord{Date: day, Gap: true})
			continue
		}
		minT := a.minT / a.area
		maxT := a.maxT / a.area
		precip := a.precip / a.area
		cloud := a.cloud / a.area
		out = append(out, domain.DailyRecord{
			Date:          day,
			MinTemp:       domain.Float(minT),
			MaxTemp:       domain.Float(maxT),
			MeanTemp:      domain.Float((minT + maxT) / 2),
			Precipitation: domain.Float(precip),
			CloudFraction: domain.Float(cloud),
			IsSunny:       domain.Bool(cloud < cfg.SunnyCloudMax && precip <= cfg.SunnyPrecipMax),
			Source:        a.source,
		})
	}
	return out
}

package weather

import "github.com/agrosight/agrosight/internal/domain"

// Fill applies an explicit gap-fill policy to a daily series. Leading gaps
// stay gaps under every policy; linear additionally leaves trailing gaps,
// since interpolation needs a valid neighbor on both sides. Filled records
// drop the gap flag and carry the policy that produced them.
func Fill(records []domain.DailyRecord, policy domain.FillPolicy) []domain.DailyRecord {
	switch policy {
	case domain.FillLinear:
		return fillLinear(records)
	case domain.FillCarryForward:
		return fillCarryForward(records)
	default:
		return records
	}
}

func fillCarryForward(records []domain.DailyRecord) []domain.DailyRecord {
	out := make([]domain.DailyRecord, len(records))
	copy(out, records)

	last := -1
	for i := range out {
		if !out[i].Gap {
			last = i
			continue
		}
		if last < 0 {
			continue // leading gap, nothing to carry
		}
		src := out[last]
		out[i] = domain.DailyRecord{
			Date:          out[i].Date,
			MinTemp:       copyFloat(src.MinTemp),
			MaxTemp:       copyFloat(src.MaxTemp),
			MeanTemp:      copyFloat(src.MeanTemp),
			Precipitation: copyFloat(src.Precipitation),
			CloudFraction: copyFloat(src.CloudFraction),
			IsSunny:       copyBool(src.IsSunny),
			Source:        src.Source,
			Filled:        domain.FillCarryForward,
		}
	}
	return out
}

func fillLinear(records []domain.DailyRecord) []domain.DailyRecord {
	out := make([]domain.DailyRecord, len(records))
	copy(out, records)

	prev := -1
	for i := 0; i < len(out); i++ {
		if !out[i].Gap {
			prev = i
			continue
		}
		if prev < 0 {
			continue // leading gap
		}
		next := -1
		for j := i + 1; j < len(out); j++ {
			if !out[j].Gap {
				next = j
				break
			}
		}
		if next < 0 {
			break // trailing gaps stay gaps
		}

		for g := i; g < next; g++ {
			t := float64(g-prev) / float64(next-prev)
			out[g] = domain.DailyRecord{
				Date:          out[g].Date,
				MinTemp:       lerp(out[prev].MinTemp, out[next].MinTemp, t),
				MaxTemp:       lerp(out[prev].MaxTemp, out[next].MaxTemp, t),
				MeanTemp:      lerp(out[prev].MeanTemp, out[next].MeanTemp, t),
				Precipitation: lerp(out[prev].Precipitation, out[next].Precipitation, t),
				CloudFraction: lerp(out[prev].CloudFraction, out[next].CloudFraction, t),
				Source:        out[prev].Source,
				Filled:        domain.FillLinear,
			}
		}
		i = next
		prev = next
	}
	return out
}

func lerp(a, b *float64, t float64) *float64 {
	if a == nil || b == nil {
		return nil
	}
	return domain.Float(*a + t*(*b-*a))
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return domain.Float(*v)
}

func copyBool(v *bool) *bool {
	if v == nil {
		return nil
	}
	return domain.Bool(*v)
}

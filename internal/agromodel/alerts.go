package agromodel

import (
	"github.com/agrosight/agrosight/internal/domain"
)

// AlertThresholds configure the advisory temperature scan.
type AlertThresholds struct {
	// FrostBelow flags days whose minimum falls below it (°C).
	FrostBelow float64 `json:"frost_below"`

	// HeatAbove flags days whose maximum rises above it (°C).
	HeatAbove float64 `json:"heat_above"`
}

// DefaultAlertThresholds suit temperate orchard crops: frost risk below
// 0 °C, heat stress above 35 °C.
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{FrostBelow: 0, HeatAbove: 35}
}

// ScanAlerts walks a daily series and returns advisory warnings for frost
// and heat days. Gap days are skipped; alerts never fail a request.
func ScanAlerts(records []domain.DailyRecord, th AlertThresholds) []domain.Warning {
	var alerts []domain.Warning
	for _, r := range records {
		if r.Gap {
			continue
		}
		if r.MinTemp != nil && *r.MinTemp < th.FrostBelow {
			alerts = append(alerts, domain.Warningf(domain.WarnFrostRisk,
				"%s: minimum %.1f°C below frost threshold %.1f°C",
				r.Date.Format("2006-01-02"), *r.MinTemp, th.FrostBelow))
		}
		if r.MaxTemp != nil && *r.MaxTemp > th.HeatAbove {
			alerts = append(alerts, domain.Warningf(domain.WarnHeatStress,
				"%s: maximum %.1f°C above heat threshold %.1f°C",
				r.Date.Format("2006-01-02"), *r.MaxTemp, th.HeatAbove))
		}
	}
	return alerts
}

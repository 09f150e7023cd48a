package domain

import "fmt"

// WarningCode identifies a non-fatal degradation attached to a sub-result.
type WarningCode string

const (
	WarnPartialCoverage   WarningCode = "partial_coverage"
	WarnGapDays           WarningCode = "gap_days"
	WarnLowPixelCount     WarningCode = "low_pixel_count"
	WarnNoScenes          WarningCode = "no_scenes"
	WarnSourceUnavailable WarningCode = "source_unavailable"
	WarnTimeout           WarningCode = "timeout"
	WarnFrostRisk         WarningCode = "frost_risk"
	WarnHeatStress        WarningCode = "heat_stress"
)

// Warning is a machine-readable degradation note with a human-readable cause.
// Warnings never fail a request; they let the caller render partial results
// and explain blanks without encoding domain logic itself.
type Warning struct {
	Code    WarningCode `json:"code"`
	Message string      `json:"message"`
}

// Warningf formats a warning.
func Warningf(code WarningCode, format string, args ...any) Warning {
	return Warning{Code: code, Message: fmt.Sprintf(format, args...)}
}

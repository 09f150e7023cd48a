package domain

import "fmt"

// GeometryKind is the machine-readable reason a polygon was rejected.
type GeometryKind string

const (
	GeometryTooFewVertices   GeometryKind = "too_few_vertices"
	GeometrySelfIntersection GeometryKind = "self_intersection"
	GeometryOutOfRange       GeometryKind = "out_of_range"
	GeometryZeroArea         GeometryKind = "zero_area"
	GeometryPrecisionRisk    GeometryKind = "precision_risk"
)

// GeometryError reports an invalid or imprecise polygon. Fatal for a request.
type GeometryError struct {
	Kind    GeometryKind
	Message string
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("geometry error (%s): %s", e.Kind, e.Message)
}

// NoDataError reports that no grid cell, sample point, or scene covers the
// requested area. Degrades to a warning on an otherwise-successful sub-result.
type NoDataError struct {
	Reason string
}

func (e *NoDataError) Error() string {
	return fmt.Sprintf("no data: %s", e.Reason)
}

// ModelKind is the machine-readable reason model parameters were rejected.
type ModelKind string

const (
	ModelInvalidThresholds ModelKind = "invalid_thresholds"
	ModelUnknownMethod     ModelKind = "unknown_method"
)

// ModelError reports invalid agronomic parameters. Fatal for a request.
type ModelError struct {
	Kind    ModelKind
	Message string
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("model error (%s): %s", e.Kind, e.Message)
}

// SourceUnavailableError reports a remote fetch that exhausted its retries.
// It fails only the sub-result it belongs to, never the whole request.
type SourceUnavailableError struct {
	Source   string
	Attempts int
	Err      error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("source %s unavailable after %d attempts: %v", e.Source, e.Attempts, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

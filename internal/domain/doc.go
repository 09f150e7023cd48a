// Package domain holds the core value types of the aggregation engine:
// polygons, grid cells, daily weather records, NDVI observations, and GDD
// records, together with the error taxonomy shared by every component.
//
// # Conventions
//
// Coordinates are WGS-84 latitude/longitude in degrees. Polygon rings are
// stored open (first vertex not repeated); every operation treats the ring
// as closed. Dates are calendar days represented as midnight UTC.
//
// # Gap semantics
//
// A missing data point is always an explicit gap, never a zero. DailyRecord
// carries a Gap flag and nil scalar pointers; NDVIObservation carries a nil
// NDVI value together with the pipeline state that produced it; GDDRecord
// carries a nil increment while the cumulative total holds its last valid
// value. Downstream consumers can therefore distinguish "no cloud-free data"
// from "zero vegetation" and "no reading" from "0.0 degrees".
//
// # Provenance
//
// Each daily weather record is tagged with its source (historical archive or
// forecast model). When both sources cover the same day, historical data wins:
// it is treated as ground truth and the forecast value is discarded, never
// blended. Resolution happens only after both series are fully retrieved.
package domain

// Package grid maps polygons onto weather-grid cells and sample points.
// Its core product is the weighted intersection list driving zonal reduction:
// one weight per overlapped cell, weight = intersection area / polygon area.
package grid

import (
	"fmt"
	"math"
	"sort"

	"github.com/agrosight/agrosight/internal/domain"
	"github.com/agrosight/agrosight/internal/geometry"
)

const (
	// WeightTolerance is the floating tolerance on the full-coverage
	// invariant: weights over a fully covered polygon sum to 1 within it.
	WeightTolerance = 1e-6

	// DefaultMaxPointDistanceKm bounds the nearest-point fallback for
	// point-based weather sources.
	DefaultMaxPointDistanceKm = 50.0
)

// Intersections is the ordered result of mapping one polygon onto a grid.
type Intersections struct {
	Weights []domain.WeightedIntersection

	// Coverage is the weight sum: 1.0 for a fully covered polygon, less
	// when parts of the polygon fall outside the grid.
	Coverage float64
}

// Partial reports whether grid coverage of the polygon is incomplete.
func (ix Intersections) Partial() bool {
	return ix.Coverage < 1-WeightTolerance
}

// Intersect computes the weighted intersections of a polygon with a set of
// grid cells. Polygons spanning the antimeridian are split at ±180° first.
// The result is ordered by weight descending, ties broken by cell ID, so
// repeated runs are deterministic. Zero coverage fails with a NoDataError.
func Intersect(p domain.Polygon, cells []domain.GridCell) (Intersections, error) {
	if len(p.Ring) < 3 {
		return Intersections{}, &domain.GeometryError{
			Kind:    domain.GeometryTooFewVertices,
			Message: "intersect requires a normalized polygon",
		}
	}

	// One shared meter scale keeps all areas in the same projection, so the
	// weights are exact ratios regardless of the approximation error.
	box := geometry.BoundingBox(p)
	midLat := (box.MinLat + box.MaxLat) / 2

	parts := geometry.SplitAtAntimeridian(p)

	var totalArea float64
	for _, part := range parts {
		totalArea += ringAreaM2(part.Ring, midLat)
	}
	if totalArea <= 0 {
		return Intersections{}, &domain.GeometryError{
			Kind:    domain.GeometryZeroArea,
			Message: fmt.Sprintf("polygon %q has zero projected area", p.ID),
		}
	}

	byCell := make(map[string]float64)
	for _, part := range parts {
		for _, cell := range cells {
			clipped := clipToBox(part.Ring, cell.Bounds)
			if len(clipped) < 3 {
				continue
			}
			if a := ringAreaM2(clipped, midLat); a > 0 {
				byCell[cell.ID] += a
			}
		}
	}

	if len(byCell) == 0 {
		return Intersections{}, &domain.NoDataError{
			Reason: fmt.Sprintf("polygon %q overlaps no grid cell", p.ID),
		}
	}

	ix := Intersections{Weights: make([]domain.WeightedIntersection, 0, len(byCell))}
	for id, area := range byCell {
		w := area / totalArea
		if w > 1 {
			w = 1
		}
		ix.Weights = append(ix.Weights, domain.WeightedIntersection{
			PolygonID: p.ID, CellID: id, Weight: w,
		})
		ix.Coverage += w
	}

	sort.Slice(ix.Weights, func(i, j int) bool {
		if ix.Weights[i].Weight != ix.Weights[j].Weight {
			return ix.Weights[i].Weight > ix.Weights[j].Weight
		}
		return ix.Weights[i].CellID < ix.Weights[j].CellID
	})

	return ix, nil
}

// CellForPoint returns the grid cell containing the point, for point-target
// aggregation over gridded sources.
func CellForPoint(pt domain.LatLon, cells []domain.GridCell) (domain.GridCell, error) {
	for _, cell := range cells {
		if cell.Bounds.Contains(pt) {
			return cell, nil
		}
	}
	return domain.GridCell{}, &domain.NoDataError{
		Reason: fmt.Sprintf("no grid cell contains point (%.4f, %.4f)", pt.Lat, pt.Lon),
	}
}

// NearestPoint finds the closest sample point to the target within
// maxDistanceKm (DefaultMaxPointDistanceKm when zero). Beyond that distance
// the source has no usable data for the target.
func NearestPoint(target domain.LatLon, points []domain.SamplePoint, maxDistanceKm float64) (domain.SamplePoint, error) {
	if maxDistanceKm <= 0 {
		maxDistanceKm = DefaultMaxPointDistanceKm
	}

	best := -1
	bestDist := math.MaxFloat64
	for i, sp := range points {
		d := haversineKm(target, sp.Loc)
		if d < bestDist {
			best = i
			bestDist = d
		}
	}

	if best < 0 || bestDist > maxDistanceKm {
		return domain.SamplePoint{}, &domain.NoDataError{
			Reason: fmt.Sprintf("no sample point within %.0f km of (%.4f, %.4f)",
				maxDistanceKm, target.Lat, target.Lon),
		}
	}
	return points[best], nil
}

// haversineKm is the great-circle distance between two coordinates.
func haversineKm(a, b domain.LatLon) float64 {
	const earthRadiusKm = 6371.0
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// ringAreaM2 is the shoelace area of a ring in square meters using the local
// equirectangular scale at midLat.
func ringAreaM2(ring []domain.LatLon, midLat float64) float64 {
	latRad := midLat * math.Pi / 180
	kx := 111132.92 - 559.82*math.Cos(2*latRad)
	ky := 111412.84 * math.Cos(latRad)

	var sum float64
	n := len(ring)
	for i := 0; i < n; i++ {
		a := ring[i]
		b := ring[(i+1)%n]
		sum += (a.Lon * ky) * (b.Lat * kx)
		sum -= (b.Lon * ky) * (a.Lat * kx)
	}
	return math.Abs(sum) / 2
}

// clipToBox clips a ring against a rectangular cell footprint by successive
// half-plane clips (Sutherland–Hodgman).
func clipToBox(ring []domain.LatLon, box domain.BBox) []domain.LatLon {
	out := clipHalfPlane(ring,
		func(v domain.LatLon) bool { return v.Lat >= box.MinLat },
		func(a, b domain.LatLon) domain.LatLon { return crossLat(a, b, box.MinLat) })
	out = clipHalfPlane(out,
		func(v domain.LatLon) bool { return v.Lat <= box.MaxLat },
		func(a, b domain.LatLon) domain.LatLon { return crossLat(a, b, box.MaxLat) })
	out = clipHalfPlane(out,
		func(v domain.LatLon) bool { return v.Lon >= box.MinLon },
		func(a, b domain.LatLon) domain.LatLon { return crossLon(a, b, box.MinLon) })
	out = clipHalfPlane(out,
		func(v domain.LatLon) bool { return v.Lon <= box.MaxLon },
		func(a, b domain.LatLon) domain.LatLon { return crossLon(a, b, box.MaxLon) })
	return out
}

func clipHalfPlane(ring []domain.LatLon, inside func(domain.LatLon) bool, cross func(a, b domain.LatLon) domain.LatLon) []domain.LatLon {
	if len(ring) == 0 {
		return nil
	}
	var out []domain.LatLon
	n := len(ring)
	for i := 0; i < n; i++ {
		a := ring[i]
		b := ring[(i+1)%n]
		switch {
		case inside(a) && inside(b):
			out = append(out, b)
		case inside(a) && !inside(b):
			out = append(out, cross(a, b))
		case !inside(a) && inside(b):
			out = append(out, cross(a, b), b)
		}
	}
	return out
}

func crossLat(a, b domain.LatLon, lat float64) domain.LatLon {
	t := (lat - a.Lat) / (b.Lat - a.Lat)
	return domain.LatLon{Lat: lat, Lon: a.Lon + t*(b.Lon-a.Lon)}
}

func crossLon(a, b domain.LatLon, lon float64) domain.LatLon {
	t := (lon - a.Lon) / (b.Lon - a.Lon)
	return domain.LatLon{Lat: a.Lat + t*(b.Lat-a.Lat), Lon: lon}
}

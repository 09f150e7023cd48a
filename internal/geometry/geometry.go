// Package geometry implements the polygon store's pure functions: ring
// normalization, validity checks, planar area, and antimeridian splitting.
// Nothing here mutates its input; every function returns a new value.
package geometry

import (
	"fmt"
	"math"

	"github.com/agrosight/agrosight/internal/domain"
)

const (
	// vertexEpsilon is the degree distance under which two vertices collapse.
	vertexEpsilon = 1e-9

	// DefaultMaxExtentKm is the bounding-box extent above which the planar
	// area approximation is refused without an explicit opt-in. Local
	// equirectangular scaling drifts past roughly one percent beyond this.
	DefaultMaxExtentKm = 200.0
)

// AreaOptions controls the area computation.
type AreaOptions struct {
	// MaxExtentKm caps the polygon bounding-box extent for the planar
	// approximation. Zero means DefaultMaxExtentKm.
	MaxExtentKm float64

	// AllowApproximate accepts the planar result above MaxExtentKm instead
	// of failing with a precision-risk error.
	AllowApproximate bool
}

// Normalize validates a polygon and returns a canonical copy: open ring,
// no duplicate consecutive vertices, counterclockwise orientation.
func Normalize(p domain.Polygon) (domain.Polygon, error) {
	ring := dropClosingVertex(p.Ring)
	ring = dedupeConsecutive(ring)

	if len(ring) < 3 {
		return domain.Polygon{}, &domain.GeometryError{
			Kind:    domain.GeometryTooFewVertices,
			Message: fmt.Sprintf("polygon %q has %d distinct vertices, need at least 3", p.ID, len(ring)),
		}
	}

	for _, v := range ring {
		if v.Lat < -90 || v.Lat > 90 || v.Lon < -180 || v.Lon > 180 {
			return domain.Polygon{}, &domain.GeometryError{
				Kind:    domain.GeometryOutOfRange,
				Message: fmt.Sprintf("vertex (%.6f, %.6f) outside valid latitude/longitude range", v.Lat, v.Lon),
			}
		}
	}

	if selfIntersects(ring) {
		return domain.Polygon{}, &domain.GeometryError{
			Kind:    domain.GeometrySelfIntersection,
			Message: fmt.Sprintf("polygon %q ring crosses itself", p.ID),
		}
	}

	if math.Abs(signedAreaDeg(ring)) < vertexEpsilon {
		return domain.Polygon{}, &domain.GeometryError{
			Kind:    domain.GeometryZeroArea,
			Message: fmt.Sprintf("polygon %q is degenerate (zero area)", p.ID),
		}
	}

	// Canonical orientation is counterclockwise (positive signed area).
	if signedAreaDeg(ring) < 0 {
		ring = reverse(ring)
	}

	out := p
	out.Ring = ring
	return out, nil
}

// Area computes the polygon area in square meters using a local
// equirectangular projection with latitude-dependent scale factors.
// Above the configured extent it fails with a precision-risk geometry error
// unless AllowApproximate is set.
func Area(p domain.Polygon, opts AreaOptions) (float64, error) {
	if len(p.Ring) < 3 {
		return 0, &domain.GeometryError{
			Kind:    domain.GeometryTooFewVertices,
			Message: "area requires a normalized polygon",
		}
	}

	maxExtent := opts.MaxExtentKm
	if maxExtent <= 0 {
		maxExtent = DefaultMaxExtentKm
	}

	box := BoundingBox(p)
	kx, ky := meterScale((box.MinLat + box.MaxLat) / 2)
	latExtentM := (box.MaxLat - box.MinLat) * kx
	lonExtentM := (box.MaxLon - box.MinLon) * ky
	if math.Max(latExtentM, lonExtentM) > maxExtent*1000 && !opts.AllowApproximate {
		return 0, &domain.GeometryError{
			Kind: domain.GeometryPrecisionRisk,
			Message: fmt.Sprintf("polygon %q extent %.0f km exceeds planar limit %.0f km",
				p.ID, math.Max(latExtentM, lonExtentM)/1000, maxExtent),
		}
	}

	var sum float64
	n := len(p.Ring)
	for i := 0; i < n; i++ {
		a := p.Ring[i]
		b := p.Ring[(i+1)%n]
		sum += (a.Lon * ky) * (b.Lat * kx)
		sum -= (b.Lon * ky) * (a.Lat * kx)
	}
	return math.Abs(sum) / 2, nil
}

// meterScale returns meters per degree of latitude and longitude at the given
// latitude, from the standard series expansion of the WGS-84 ellipsoid.
func meterScale(latDeg float64) (latMeters, lonMeters float64) {
	latRad := latDeg * math.Pi / 180
	latMeters = 111132.92 - 559.82*math.Cos(2*latRad)
	lonMeters = 111412.84 * math.Cos(latRad)
	return latMeters, lonMeters
}

// BoundingBox returns the axis-aligned bounds of the ring.
func BoundingBox(p domain.Polygon) domain.BBox {
	box := domain.BBox{MinLat: 90, MinLon: 180, MaxLat: -90, MaxLon: -180}
	for _, v := range p.Ring {
		box.MinLat = math.Min(box.MinLat, v.Lat)
		box.MaxLat = math.Max(box.MaxLat, v.Lat)
		box.MinLon = math.Min(box.MinLon, v.Lon)
		box.MaxLon = math.Max(box.MaxLon, v.Lon)
	}
	return box
}

// Centroid returns the arithmetic mean of the ring vertices. Good enough for
// nearest-point lookups; not an area-weighted centroid.
func Centroid(p domain.Polygon) domain.LatLon {
	var lat, lon float64
	for _, v := range p.Ring {
		lat += v.Lat
		lon += v.Lon
	}
	n := float64(len(p.Ring))
	return domain.LatLon{Lat: lat / n, Lon: lon / n}
}

// ContainsPoint reports whether the point lies inside the ring, by ray
// casting. Points exactly on an edge may land on either side.
func ContainsPoint(p domain.Polygon, pt domain.LatLon) bool {
	inside := false
	n := len(p.Ring)
	for i := 0; i < n; i++ {
		a := p.Ring[i]
		b := p.Ring[(i+1)%n]
		if (a.Lat > pt.Lat) != (b.Lat > pt.Lat) {
			x := (b.Lon-a.Lon)*(pt.Lat-a.Lat)/(b.Lat-a.Lat+1e-12) + a.Lon
			if pt.Lon < x {
				inside = !inside
			}
		}
	}
	return inside
}

// SpansAntimeridian reports whether any ring edge crosses the ±180° line.
func SpansAntimeridian(p domain.Polygon) bool {
	n := len(p.Ring)
	for i := 0; i < n; i++ {
		a := p.Ring[i]
		b := p.Ring[(i+1)%n]
		if math.Abs(a.Lon-b.Lon) > 180 {
			return true
		}
	}
	return false
}

// SplitAtAntimeridian cuts a polygon at the ±180° line, returning one part
// per hemisphere side. Polygons that do not span the line come back unchanged
// as a single-element slice. Part IDs get a "/e" or "/w" suffix so weights
// stay deterministic downstream.
func SplitAtAntimeridian(p domain.Polygon) []domain.Polygon {
	if !SpansAntimeridian(p) {
		return []domain.Polygon{p}
	}

	// Unwrap to a continuous ring in (0, 360], split at lon=180, then wrap
	// the far side back to (-180, -180+x].
	unwrapped := make([]domain.LatLon, len(p.Ring))
	for i, v := range p.Ring {
		lon := v.Lon
		if lon < 0 {
			lon += 360
		}
		unwrapped[i] = domain.LatLon{Lat: v.Lat, Lon: lon}
	}

	east := clipLon(unwrapped, 180, false) // lon <= 180
	west := clipLon(unwrapped, 180, true)  // lon >= 180

	var parts []domain.Polygon
	if len(east) >= 3 {
		parts = append(parts, domain.Polygon{
			ID: p.ID + "/e", Name: p.Name, Ring: east, CreatedAt: p.CreatedAt,
		})
	}
	if len(west) >= 3 {
		for i, v := range west {
			west[i] = domain.LatLon{Lat: v.Lat, Lon: v.Lon - 360}
		}
		parts = append(parts, domain.Polygon{
			ID: p.ID + "/w", Name: p.Name, Ring: west, CreatedAt: p.CreatedAt,
		})
	}
	if len(parts) == 0 {
		return []domain.Polygon{p}
	}
	return parts
}

// clipLon clips the ring against a vertical longitude line, keeping the side
// selected by keepAbove (Sutherland–Hodgman against a half plane).
func clipLon(ring []domain.LatLon, lon float64, keepAbove bool) []domain.LatLon {
	inside := func(v domain.LatLon) bool {
		if keepAbove {
			return v.Lon >= lon
		}
		return v.Lon <= lon
	}
	cross := func(a, b domain.LatLon) domain.LatLon {
		t := (lon - a.Lon) / (b.Lon - a.Lon)
		return domain.LatLon{Lat: a.Lat + t*(b.Lat-a.Lat), Lon: lon}
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
	return dedupeConsecutive(out)
}

func dropClosingVertex(ring []domain.LatLon) []domain.LatLon {
	if len(ring) > 1 && sameVertex(ring[0], ring[len(ring)-1]) {
		return ring[:len(ring)-1]
	}
	return ring
}

func dedupeConsecutive(ring []domain.LatLon) []domain.LatLon {
	if len(ring) == 0 {
		return nil
	}
	out := make([]domain.LatLon, 0, len(ring))
	for _, v := range ring {
		if len(out) == 0 || !sameVertex(out[len(out)-1], v) {
			out = append(out, v)
		}
	}
	if len(out) > 1 && sameVertex(out[0], out[len(out)-1]) {
		out = out[:len(out)-1]
	}
	return out
}

func sameVertex(a, b domain.LatLon) bool {
	return math.Abs(a.Lat-b.Lat) < vertexEpsilon && math.Abs(a.Lon-b.Lon) < vertexEpsilon
}

func reverse(ring []domain.LatLon) []domain.LatLon {
	out := make([]domain.LatLon, len(ring))
	for i, v := range ring {
		out[len(ring)-1-i] = v
	}
	return out
}

// signedAreaDeg is the shoelace sum in degree space. Sign carries orientation:
// positive for counterclockwise rings.
func signedAreaDeg(ring []domain.LatLon) float64 {
	var sum float64
	n := len(ring)
	for i := 0; i < n; i++ {
		a := ring[i]
		b := ring[(i+1)%n]
		sum += a.Lon*b.Lat - b.Lon*a.Lat
	}
	return sum / 2
}

// selfIntersects checks every non-adjacent edge pair for a proper crossing.
// O(n²), fine for hand-drawn field boundaries.
func selfIntersects(ring []domain.LatLon) bool {
	n := len(ring)
	for i := 0; i < n; i++ {
		a1 := ring[i]
		a2 := ring[(i+1)%n]
		for j := i + 1; j < n; j++ {
			// Skip adjacent edges (they share a vertex by construction).
			if j == i || (j+1)%n == i || (i+1)%n == j {
				continue
			}
			b1 := ring[j]
			b2 := ring[(j+1)%n]
			if segmentsCross(a1, a2, b1, b2) {
				return true
			}
		}
	}
	return false
}

func segmentsCross(p1, p2, p3, p4 domain.LatLon) bool {
	d1 := direction(p3, p4, p1)
	d2 := direction(p3, p4, p2)
	d3 := direction(p1, p2, p3)
	d4 := direction(p1, p2, p4)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

func direction(a, b, c domain.LatLon) float64 {
	return (b.Lon-a.Lon)*(c.Lat-a.Lat) - (b.Lat-a.Lat)*(c.Lon-a.Lon)
}

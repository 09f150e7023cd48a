package imagery

import (
	"context"
	"math"
	"time"

	"github.com/agrosight/agrosight/internal/domain"
)

// Band names the spectral layers the pipeline reads.
type Band string

const (
	BandRed       Band = "red"
	BandNIR       Band = "nir"
	BandCloudProb Band = "cloud_prob" // per-pixel cloud probability in [0,1]
)

// SceneHandle references one acquired scene with its scene-level cloud
// metadata, as returned by the imagery catalog.
type SceneHandle struct {
	ID            string    `json:"id"`
	Date          time.Time `json:"date"` // nominal acquisition date
	CloudFraction float64   `json:"cloud_fraction"`
}

// Raster is a row-major pixel grid over a geographic footprint. NaN marks
// nodata. Rasters for the same request bbox share one pixel grid, so pixels
// align across bands and across overlapping scenes.
type Raster struct {
	Bounds domain.BBox
	Width  int
	Height int
	Values []float64
}

// At returns the pixel at column x, row y (row 0 is the northern edge).
func (r Raster) At(x, y int) float64 {
	return r.Values[y*r.Width+x]
}

// Valid reports whether the pixel holds data.
func (r Raster) Valid(x, y int) bool {
	return !math.IsNaN(r.At(x, y))
}

// Center returns the geographic center of pixel (x, y).
func (r Raster) Center(x, y int) domain.LatLon {
	dLat := (r.Bounds.MaxLat - r.Bounds.MinLat) / float64(r.Height)
	dLon := (r.Bounds.MaxLon - r.Bounds.MinLon) / float64(r.Width)
	return domain.LatLon{
		Lat: r.Bounds.MaxLat - (float64(y)+0.5)*dLat,
		Lon: r.Bounds.MinLon + (float64(x)+0.5)*dLon,
	}
}

// Source is the imagery collaborator: a scene catalog plus band reader.
// Credential handling and provider setup live outside the engine.
type Source interface {
	// QueryScenes lists scenes intersecting the box within the date range,
	// with scene-level cloud metadata.
	QueryScenes(ctx context.Context, box domain.BBox, dates domain.DateRange) ([]SceneHandle, error)

	// ReadBand reads one band of a scene clipped to the box. All reads for
	// one box come back on the same pixel grid.
	ReadBand(ctx context.Context, scene SceneHandle, band Band, box domain.BBox) (Raster, error)
}

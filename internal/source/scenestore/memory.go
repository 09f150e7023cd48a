// Package scenestore provides an in-process imagery source backed by scenes
// held in memory, plus raster builders for synthetic data. It serves tests
// and local runs where no imagery provider is configured.
package scenestore

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/agrosight/agrosight/internal/domain"
	"github.com/agrosight/agrosight/internal/imagery"
)

// Scene couples a catalog handle with its band rasters. All bands of one
// scene share a pixel grid.
type Scene struct {
	Handle imagery.SceneHandle
	Bands  map[imagery.Band]imagery.Raster
}

// NewScene builds a scene from its handle parts and bands.
func NewScene(id string, date time.Time, cloudFraction float64, bands map[imagery.Band]imagery.Raster) Scene {
	return Scene{
		Handle: imagery.SceneHandle{ID: id, Date: date, CloudFraction: cloudFraction},
		Bands:  bands,
	}
}

// Memory is an imagery.Source over a fixed scene set. Rasters are returned
// as stored, so callers should query with the box the scenes were built for.
type Memory struct {
	mu     sync.RWMutex
	scenes []Scene
}

// NewMemory creates a store holding the given scenes.
func NewMemory(scenes ...Scene) *Memory {
	return &Memory{scenes: scenes}
}

// Add appends a scene to the catalog.
func (m *Memory) Add(s Scene) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scenes = append(m.scenes, s)
}

// QueryScenes lists scenes whose date falls in the range and whose footprint
// overlaps the box.
func (m *Memory) QueryScenes(_ context.Context, box domain.BBox, dates domain.DateRange) ([]imagery.SceneHandle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []imagery.SceneHandle
	for _, s := range m.scenes {
		if !dates.Contains(domain.Day(s.Handle.Date)) {
			continue
		}
		if !overlaps(sceneBounds(s), box) {
			continue
		}
		out = append(out, s.Handle)
	}
	return out, nil
}

// ReadBand returns the stored raster for the scene and band.
func (m *Memory) ReadBand(_ context.Context, scene imagery.SceneHandle, band imagery.Band, _ domain.BBox) (imagery.Raster, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.scenes {
		if s.Handle.ID != scene.ID {
			continue
		}
		r, ok := s.Bands[band]
		if !ok {
			return imagery.Raster{}, fmt.Errorf("scene %s: band %s not stored", scene.ID, band)
		}
		return r, nil
	}
	return imagery.Raster{}, fmt.Errorf("scene %s not found", scene.ID)
}

func sceneBounds(s Scene) domain.BBox {
	for _, r := range s.Bands {
		return r.Bounds
	}
	return domain.BBox{}
}

func overlaps(a, b domain.BBox) bool {
	if a == (domain.BBox{}) {
		return true
	}
	return a.MinLon <= b.MaxLon && b.MinLon <= a.MaxLon &&
		a.MinLat <= b.MaxLat && b.MinLat <= a.MaxLat
}

// UniformRaster builds a w×h raster over box filled with v.
func UniformRaster(box domain.BBox, w, h int, v float64) imagery.Raster {
	values := make([]float64, w*h)
	for i := range values {
		values[i] = v
	}
	return imagery.Raster{Bounds: box, Width: w, Height: h, Values: values}
}

// RasterFromValues builds a raster from row-major values. Panics if the
// value count does not match w×h, since that is a test-construction bug.
func RasterFromValues(box domain.BBox, w, h int, values []float64) imagery.Raster {
	if len(values) != w*h {
		panic(fmt.Sprintf("raster values: got %d, want %d", len(values), w*h))
	}
	return imagery.Raster{Bounds: box, Width: w, Height: h, Values: values}
}

// NodataRaster builds a w×h raster over box with every pixel marked nodata.
func NodataRaster(box domain.BBox, w, h int) imagery.Raster {
	return UniformRaster(box, w, h, math.NaN())
}

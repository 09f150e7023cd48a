package scenestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrosight/agrosight/internal/domain"
	"github.com/agrosight/agrosight/internal/imagery"
)

var (
	boxWest = domain.BBox{MinLat: 38.0, MinLon: -120.0, MaxLat: 38.1, MaxLon: -119.9}
	boxEast = domain.BBox{MinLat: 38.0, MinLon: -100.0, MaxLat: 38.1, MaxLon: -99.9}

	jun1 = time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)
	jun5 = time.Date(2025, 6, 5, 10, 30, 0, 0, time.UTC)
)

func westScene(id string, date time.Time) Scene {
	return NewScene(id, date, 0.1, map[imagery.Band]imagery.Raster{
		imagery.BandRed: UniformRaster(boxWest, 2, 2, 0.2),
	})
}

func TestQueryScenes_FiltersByDateRange(t *testing.T) {
	m := NewMemory(westScene("in-range", jun1), westScene("too-late", jun5))

	scenes, err := m.QueryScenes(context.Background(), boxWest,
		domain.NewDateRange(jun1, jun1.AddDate(0, 0, 2)))
	require.NoError(t, err)
	require.Len(t, scenes, 1)
	assert.Equal(t, "in-range", scenes[0].ID)
}

func TestQueryScenes_FiltersByFootprint(t *testing.T) {
	m := NewMemory(westScene("west", jun1))

	scenes, err := m.QueryScenes(context.Background(), boxEast, domain.NewDateRange(jun1, jun1))
	require.NoError(t, err)
	assert.Empty(t, scenes)

	scenes, err = m.QueryScenes(context.Background(), boxWest, domain.NewDateRange(jun1, jun1))
	require.NoError(t, err)
	assert.Len(t, scenes, 1)
}

func TestReadBand(t *testing.T) {
	m := NewMemory(westScene("s1", jun1))
	handle := imagery.SceneHandle{ID: "s1"}

	r, err := m.ReadBand(context.Background(), handle, imagery.BandRed, boxWest)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Width)
	assert.InDelta(t, 0.2, r.At(0, 0), 1e-9)

	_, err = m.ReadBand(context.Background(), handle, imagery.BandNIR, boxWest)
	assert.Error(t, err, "band not stored for the scene")

	_, err = m.ReadBand(context.Background(), imagery.SceneHandle{ID: "ghost"}, imagery.BandRed, boxWest)
	assert.Error(t, err)
}

func TestAdd(t *testing.T) {
	m := NewMemory()
	m.Add(westScene("s1", jun1))

	scenes, err := m.QueryScenes(context.Background(), boxWest, domain.NewDateRange(jun1, jun1))
	require.NoError(t, err)
	assert.Len(t, scenes, 1)
}

func TestRasterFromValues_CountMismatchPanics(t *testing.T) {
	assert.Panics(t, func() {
		RasterFromValues(boxWest, 2, 2, []float64{1, 2, 3})
	})
}

package imagery_test

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrosight/agrosight/internal/domain"
	"github.com/agrosight/agrosight/internal/imagery"
	"github.com/agrosight/agrosight/internal/source/scenestore"
)

var (
	jun1 = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	jun2 = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	fieldBox = domain.BBox{MinLat: 38.0, MinLon: -120.0, MaxLat: 38.01, MaxLon: -119.99}
)

func testField() domain.Polygon {
	return domain.Polygon{
		ID: "f1",
		Ring: []domain.LatLon{
			{Lat: 38.0, Lon: -120.0},
			{Lat: 38.0, Lon: -119.99},
			{Lat: 38.01, Lon: -119.99},
			{Lat: 38.01, Lon: -120.0},
		},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// clearScene builds a cloud-free 4x4 scene with uniform red and nir values.
func clearScene(id string, date time.Time, sceneCloud, red, nir float64) scenestore.Scene {
	return scenestore.NewScene(id, date, sceneCloud, map[imagery.Band]imagery.Raster{
		imagery.BandRed:       scenestore.UniformRaster(fieldBox, 4, 4, red),
		imagery.BandNIR:       scenestore.UniformRaster(fieldBox, 4, 4, nir),
		imagery.BandCloudProb: scenestore.UniformRaster(fieldBox, 4, 4, 0),
	})
}

func newTestPipeline(scenes ...scenestore.Scene) *imagery.Pipeline {
	return imagery.NewPipeline(scenestore.NewMemory(scenes...), imagery.DefaultConfig(), testLogger())
}

func TestNDVISeries_NoScenesWarnsNotErrors(t *testing.T) {
	pl := newTestPipeline()

	series, warnings, err := pl.NDVISeries(context.Background(), testField(),
		domain.NewDateRange(jun1, jun2), imagery.Options{})
	require.NoError(t, err)
	assert.Empty(t, series)
	require.Len(t, warnings, 1)
	assert.Equal(t, domain.WarnNoScenes, warnings[0].Code)
}

func TestNDVISeries_InvalidRange(t *testing.T) {
	pl := newTestPipeline()

	_, _, err := pl.NDVISeries(context.Background(), testField(),
		domain.NewDateRange(jun2, jun1), imagery.Options{})
	assert.Error(t, err)
}

func TestNDVISeries_ReducesClearScene(t *testing.T) {
	// red 0.2, nir 0.6: NDVI = (0.6-0.2)/(0.6+0.2) = 0.5 at every pixel.
	pl := newTestPipeline(clearScene("s1", jun1, 0.05, 0.2, 0.6))

	series, warnings, err := pl.NDVISeries(context.Background(), testField(),
		domain.NewDateRange(jun1, jun1), imagery.Options{})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, series, 1)

	obs := series[0]
	assert.Equal(t, domain.StateReduced, obs.State)
	require.NotNil(t, obs.NDVI)
	assert.InDelta(t, 0.5, *obs.NDVI, 1e-9)
	assert.Equal(t, 16, obs.PixelCountValid)
	assert.InDelta(t, 0.05, obs.CloudFraction, 1e-9)
}

func TestNDVISeries_SceneCloudFilter(t *testing.T) {
	pl := newTestPipeline(clearScene("s1", jun1, 0.8, 0.2, 0.6))

	series, _, err := pl.NDVISeries(context.Background(), testField(),
		domain.NewDateRange(jun1, jun1), imagery.Options{MaxCloudFraction: 0.3})
	require.NoError(t, err)
	require.Len(t, series, 1)

	obs := series[0]
	assert.Equal(t, domain.StateAllFiltered, obs.State)
	assert.Nil(t, obs.NDVI)
	assert.InDelta(t, 0.8, obs.CloudFraction, 1e-9, "least cloudy scene seen is still recorded")
}

func TestNDVISeries_PixelCloudMaskTriggersLowPixelCount(t *testing.T) {
	// Half the pixels sit above the 0.4 cloud-probability mask, leaving 8
	// valid pixels under the 10-pixel default minimum.
	cloud := make([]float64, 16)
	for i := range cloud {
		if i%2 == 0 {
			cloud[i] = 0.9
		}
	}
	scene := scenestore.NewScene("s1", jun1, 0.1, map[imagery.Band]imagery.Raster{
		imagery.BandRed:       scenestore.UniformRaster(fieldBox, 4, 4, 0.2),
		imagery.BandNIR:       scenestore.UniformRaster(fieldBox, 4, 4, 0.6),
		imagery.BandCloudProb: scenestore.RasterFromValues(fieldBox, 4, 4, cloud),
	})
	pl := newTestPipeline(scene)

	series, warnings, err := pl.NDVISeries(context.Background(), testField(),
		domain.NewDateRange(jun1, jun1), imagery.Options{})
	require.NoError(t, err)
	require.Len(t, series, 1)

	obs := series[0]
	assert.Equal(t, domain.StateLowPixelCount, obs.State)
	assert.Nil(t, obs.NDVI)
	assert.Equal(t, 8, obs.PixelCountValid)

	require.Len(t, warnings, 1)
	assert.Equal(t, domain.WarnLowPixelCount, warnings[0].Code)
}

func TestNDVISeries_CompositePicksLeastCloudyPixels(t *testing.T) {
	// Scene a is clear but hazy per pixel (0.3), scene b is cleaner (0.1)
	// with a different red band. Every composite pixel should come from b.
	a := scenestore.NewScene("a", jun1, 0.2, map[imagery.Band]imagery.Raster{
		imagery.BandRed:       scenestore.UniformRaster(fieldBox, 4, 4, 0.2),
		imagery.BandNIR:       scenestore.UniformRaster(fieldBox, 4, 4, 0.6),
		imagery.BandCloudProb: scenestore.UniformRaster(fieldBox, 4, 4, 0.3),
	})
	b := scenestore.NewScene("b", jun1, 0.2, map[imagery.Band]imagery.Raster{
		imagery.BandRed:       scenestore.UniformRaster(fieldBox, 4, 4, 0.4),
		imagery.BandNIR:       scenestore.UniformRaster(fieldBox, 4, 4, 0.6),
		imagery.BandCloudProb: scenestore.UniformRaster(fieldBox, 4, 4, 0.1),
	})
	pl := newTestPipeline(a, b)

	series, _, err := pl.NDVISeries(context.Background(), testField(),
		domain.NewDateRange(jun1, jun1), imagery.Options{})
	require.NoError(t, err)
	require.Len(t, series, 1)

	// (0.6-0.4)/(0.6+0.4) = 0.2, the value scene b produces.
	require.NotNil(t, series[0].NDVI)
	assert.InDelta(t, 0.2, *series[0].NDVI, 1e-9)
}

func TestNDVISeries_CompositeSkipsNodataPixels(t *testing.T) {
	// Scene a has half its pixels nodata, scene b fills them in despite a
	// higher cloud probability.
	nirA := make([]float64, 16)
	for i := range nirA {
		nirA[i] = 0.6
		if i < 8 {
			nirA[i] = math.NaN()
		}
	}
	a := scenestore.NewScene("a", jun1, 0.1, map[imagery.Band]imagery.Raster{
		imagery.BandRed:       scenestore.UniformRaster(fieldBox, 4, 4, 0.2),
		imagery.BandNIR:       scenestore.RasterFromValues(fieldBox, 4, 4, nirA),
		imagery.BandCloudProb: scenestore.UniformRaster(fieldBox, 4, 4, 0.1),
	})
	b := clearScene("b", jun1, 0.1, 0.2, 0.6)
	pl := newTestPipeline(a, b)

	series, _, err := pl.NDVISeries(context.Background(), testField(),
		domain.NewDateRange(jun1, jun1), imagery.Options{})
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, 16, series[0].PixelCountValid)
	assert.InDelta(t, 0.5, *series[0].NDVI, 1e-9)
}

func TestNDVISeries_FracAboveThreshold(t *testing.T) {
	// Half the pixels at NDVI 0.5, half at 0.1.
	red := make([]float64, 16)
	nir := make([]float64, 16)
	for i := range red {
		if i < 8 {
			red[i], nir[i] = 0.2, 0.6 // NDVI 0.5
		} else {
			red[i], nir[i] = 0.45, 0.55 // NDVI 0.1
		}
	}
	scene := scenestore.NewScene("s1", jun1, 0.1, map[imagery.Band]imagery.Raster{
		imagery.BandRed:       scenestore.RasterFromValues(fieldBox, 4, 4, red),
		imagery.BandNIR:       scenestore.RasterFromValues(fieldBox, 4, 4, nir),
		imagery.BandCloudProb: scenestore.UniformRaster(fieldBox, 4, 4, 0),
	})
	pl := newTestPipeline(scene)

	series, _, err := pl.NDVISeries(context.Background(), testField(),
		domain.NewDateRange(jun1, jun1), imagery.Options{HealthyThreshold: domain.Float(0.3)})
	require.NoError(t, err)
	require.Len(t, series, 1)
	require.NotNil(t, series[0].FracAboveThresh)
	assert.InDelta(t, 0.5, *series[0].FracAboveThresh, 1e-9)
}

func TestNDVISeries_DayWithoutAcquisitionIsNoScene(t *testing.T) {
	pl := newTestPipeline(clearScene("s1", jun1, 0.05, 0.2, 0.6))

	series, warnings, err := pl.NDVISeries(context.Background(), testField(),
		domain.NewDateRange(jun1, jun2), imagery.Options{})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, series, 2)

	assert.Equal(t, domain.StateReduced, series[0].State)

	assert.Equal(t, jun2, series[1].Date)
	assert.Equal(t, domain.StateNoScene, series[1].State)
	assert.Nil(t, series[1].NDVI)
	assert.Zero(t, series[1].PixelCountValid)
}

func TestNDVISeries_OrderedByDate(t *testing.T) {
	pl := newTestPipeline(
		clearScene("later", jun2, 0.1, 0.2, 0.6),
		clearScene("earlier", jun1, 0.1, 0.3, 0.6),
	)

	series, _, err := pl.NDVISeries(context.Background(), testField(),
		domain.NewDateRange(jun1, jun2), imagery.Options{})
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, jun1, series[0].Date)
	assert.Equal(t, jun2, series[1].Date)
	assert.True(t, *series[0].NDVI < *series[1].NDVI)
}

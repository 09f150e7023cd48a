package openmeteo

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrosight/agrosight/internal/domain"
	"github.com/agrosight/agrosight/internal/observability"
)

var pointBox = domain.BBox{MinLat: 38.5, MinLon: -120.5, MaxLat: 38.5, MaxLon: -120.5}

const dailyBody = `{
  "daily": {
    "time": ["2025-07-01", "2025-07-02", "2025-07-03"],
    "temperature_2m_max": [22.0, null, 28.5],
    "temperature_2m_min": [12.0, 13.0, 15.5],
    "precipitation_sum": [0.0, 1.2, null],
    "cloudcover_mean": [40.0, 10.0, 95.0]
  }
}`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(archiveURL, forecastURL string) Config {
	return Config{
		ArchiveURL:      archiveURL,
		ForecastURL:     forecastURL,
		Timeout:         time.Second,
		MaxSamplePoints: 1,
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}
}

func newTestClient(serverURL string) *Client {
	return NewClient(testConfig(serverURL, serverURL), testLogger(), observability.NewMetricsForTesting())
}

func TestFetchHistorical_DecodesDailyArrays(t *testing.T) {
	var gotQuery atomic.Pointer[http.Request]
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r)
		w.Write([]byte(dailyBody)) //nolint:errcheck
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	series, err := c.FetchHistorical(context.Background(), pointBox, domain.DateRange{
		Start: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 7, 3, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	q := gotQuery.Load().URL.Query()
	assert.Equal(t, "2025-07-01", q.Get("start_date"))
	assert.Equal(t, "2025-07-03", q.Get("end_date"))
	assert.Equal(t, "38.500000", q.Get("latitude"))
	assert.Equal(t, "UTC", q.Get("timezone"))
	assert.Contains(t, q.Get("daily"), "temperature_2m_min")

	require.Len(t, series.Points, 1)
	assert.Equal(t, "p0", series.Points[0].ID)

	// The null-temperature day is dropped, not zero-filled.
	require.Len(t, series.Days, 2)

	first := series.Days[0]
	assert.Equal(t, time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC), first.Date)
	assert.InDelta(t, 12.0, first.MinTemp, 1e-9)
	assert.InDelta(t, 22.0, first.MaxTemp, 1e-9)
	assert.InDelta(t, 0.4, first.CloudFraction, 1e-9, "cloud cover percent becomes a fraction")
	assert.Equal(t, domain.SourceHistorical, first.Source)

	// A null precipitation entry leaves the field at zero.
	assert.InDelta(t, 0, series.Days[1].Precipitation, 1e-9)
	assert.Equal(t, time.Date(2025, 7, 3, 0, 0, 0, 0, time.UTC), series.Days[1].Date)
}

func TestFetchForecast_TagsForecastProvenance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.URL.Query().Get("forecast_days"))
		w.Write([]byte(dailyBody)) //nolint:errcheck
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	series, err := c.FetchForecast(context.Background(), pointBox, 5)
	require.NoError(t, err)
	require.NotEmpty(t, series.Days)
	for _, d := range series.Days {
		assert.Equal(t, domain.SourceForecast, d.Source)
	}
}

func TestFetchHistorical_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			http.Error(w, "upstream hiccup", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(dailyBody)) //nolint:errcheck
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	series, err := c.FetchHistorical(context.Background(), pointBox, domain.DateRange{
		Start: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 7, 3, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.NotEmpty(t, series.Days)
}

func TestFetchHistorical_ExhaustedRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.FetchHistorical(context.Background(), pointBox, domain.DateRange{
		Start: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
	})

	var srcErr *domain.SourceUnavailableError
	require.ErrorAs(t, err, &srcErr)
	assert.Equal(t, "openmeteo", srcErr.Source)
	assert.Equal(t, 3, srcErr.Attempts)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetch_ObservesSourceMetrics(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "hiccup", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(dailyBody)) //nolint:errcheck
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.FetchHistorical(context.Background(), pointBox, domain.DateRange{
		Start: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.InDelta(t, 1, testutil.ToFloat64(c.metrics.SourceRequests.WithLabelValues("openmeteo", "error")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(c.metrics.SourceRequests.WithLabelValues("openmeteo", "success")), 1e-9)
}

func TestFetchHistorical_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestClient(srv.URL)
	_, err := c.FetchHistorical(ctx, pointBox, domain.DateRange{
		Start: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
	})
	require.Error(t, err)
}

// --- sample lattice ---

func TestSamplePoints_DegenerateBoxCollapsesToCenter(t *testing.T) {
	pts := samplePoints(pointBox, 9)
	require.Len(t, pts, 1)
	assert.Equal(t, "p0", pts[0].ID)
	assert.InDelta(t, 38.5, pts[0].Loc.Lat, 1e-9)
}

func TestSamplePoints_LatticeStaysUnderCap(t *testing.T) {
	box := domain.BBox{MinLat: 38, MinLon: -121, MaxLat: 39, MaxLon: -120}

	tests := []struct {
		maxPoints int
		want      int
	}{
		{maxPoints: 1, want: 1},
		{maxPoints: 4, want: 4},
		{maxPoints: 9, want: 9},
		{maxPoints: 10, want: 9},
		{maxPoints: 25, want: 25},
	}

	for _, tt := range tests {
		pts := samplePoints(box, tt.maxPoints)
		assert.Len(t, pts, tt.want, "maxPoints=%d", tt.maxPoints)
	}
}

func TestSamplePoints_CornersOnBoxEdges(t *testing.T) {
	box := domain.BBox{MinLat: 38, MinLon: -121, MaxLat: 39, MaxLon: -120}
	pts := samplePoints(box, 4)
	require.Len(t, pts, 4)

	assert.InDelta(t, 38, pts[0].Loc.Lat, 1e-9)
	assert.InDelta(t, -121, pts[0].Loc.Lon, 1e-9)
	assert.InDelta(t, 39, pts[3].Loc.Lat, 1e-9)
	assert.InDelta(t, -120, pts[3].Loc.Lon, 1e-9)
}

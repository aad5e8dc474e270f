package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yegors/co-track/internal/physics"
	"github.com/yegors/co-track/internal/track"
	"github.com/yegors/co-track/pkg/logger"
)

func TestClient_FetchIncremental(t *testing.T) {
	var gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(Batch{
			RouteID: "route-1",
			Points:  []track.Sample{{Lat: 46.9, Lon: 7.4, Heading: 90, Altitude: 3000}},
		})
	}))
	defer ts.Close()

	c := NewClient(ts.URL+"/", time.Second, HeadingTrue, logger.NewNop())
	batch, err := c.Fetch(context.Background(), 5)
	require.NoError(t, err)

	assert.Equal(t, "/position/5", gotPath)
	assert.Equal(t, "route-1", batch.RouteID)
	require.Len(t, batch.Points, 1)
	assert.Equal(t, 90.0, batch.Points[0].Heading)
}

func TestClient_NoData(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"not found", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) }},
		{"no content", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }},
		{"empty object", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{}`)) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(tt.handler)
			defer ts.Close()

			c := NewClient(ts.URL, time.Second, HeadingTrue, logger.NewNop())
			_, err := c.Fetch(context.Background(), 0)
			assert.ErrorIs(t, err, ErrNoData)
		})
	}
}

func TestClient_Errors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/position/0" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`not json`))
	}))
	defer ts.Close()

	c := NewClient(ts.URL, time.Second, HeadingTrue, logger.NewNop())

	_, err := c.Fetch(context.Background(), 0)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoData)

	_, err = c.Fetch(context.Background(), 1)
	assert.ErrorContains(t, err, "failed to parse JSON")
}

func TestClient_MagneticHeadingCorrected(t *testing.T) {
	sample := track.Sample{Lat: 46.9, Lon: 7.4, Heading: 90, Altitude: 3000}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Batch{RouteID: "r", Points: []track.Sample{sample}})
	}))
	defer ts.Close()

	date := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	c := NewClient(ts.URL, time.Second, HeadingMagnetic, logger.NewNop())
	c.now = func() time.Time { return date }

	batch, err := c.Fetch(context.Background(), 0)
	require.NoError(t, err)

	want := physics.MagneticToTrue(90, sample.Lat, sample.Lon, sample.Altitude, date)
	assert.InDelta(t, want, batch.Points[0].Heading, 1e-9)
}

func TestParseHeadingReference(t *testing.T) {
	ref, err := ParseHeadingReference("")
	require.NoError(t, err)
	assert.Equal(t, HeadingTrue, ref)

	ref, err = ParseHeadingReference("magnetic")
	require.NoError(t, err)
	assert.Equal(t, HeadingMagnetic, ref)

	_, err = ParseHeadingReference("grid")
	assert.Error(t, err)
}

func testSimConfig() SimulatorConfig {
	return SimulatorConfig{
		StartLat:       46.9,
		StartLon:       7.4,
		StartAltitude:  1000,
		Heading:        0,
		Speed:          120,
		ClimbRate:      600,
		CruiseAltitude: 2000,
	}
}

func TestSimulator_Step(t *testing.T) {
	sim := NewSimulator(testSimConfig(), logger.NewNop())

	// 120 kts for one minute northbound is 2 NM, 1/30 degree of latitude
	s := sim.Step(60)
	assert.InDelta(t, 46.9+2.0/60, s.Lat, 1e-6)
	assert.InDelta(t, 7.4, s.Lon, 1e-6)
	assert.InDelta(t, 1600, s.Altitude, 1e-6)

	// climb stops at cruise
	s = sim.Step(600)
	assert.Equal(t, 2000.0, s.Altitude)
}

func TestSimulator_Turn(t *testing.T) {
	cfg := testSimConfig()
	cfg.TurnRate = 3
	sim := NewSimulator(cfg, logger.NewNop())

	s := sim.Step(30)
	assert.InDelta(t, 90, s.Heading, 1e-9)

	s = sim.Step(100)
	assert.InDelta(t, 30, s.Heading, 1e-9)
}

func TestSimulator_FetchAndReset(t *testing.T) {
	sim := NewSimulator(testSimConfig(), logger.NewNop())
	clock := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	sim.now = func() time.Time { return clock }

	first, err := sim.Fetch(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, first.Points, 1)
	assert.Equal(t, 46.9, first.Points[0].Lat)

	clock = clock.Add(60 * time.Second)
	second, err := sim.Fetch(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, first.RouteID, second.RouteID)
	assert.Greater(t, second.Points[0].Lat, first.Points[0].Lat)

	sim.Reset()
	third, err := sim.Fetch(context.Background(), 0)
	require.NoError(t, err)
	assert.NotEqual(t, first.RouteID, third.RouteID)
	assert.Equal(t, 46.9, third.Points[0].Lat)
}

func TestSimulator_FetchCancelled(t *testing.T) {
	sim := NewSimulator(testSimConfig(), logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sim.Fetch(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

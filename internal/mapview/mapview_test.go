package mapview

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yegors/co-track/internal/follow"
	"github.com/yegors/co-track/internal/management"
	"github.com/yegors/co-track/internal/markers"
	"github.com/yegors/co-track/internal/render"
	"github.com/yegors/co-track/internal/telemetry"
	"github.com/yegors/co-track/internal/track"
	"github.com/yegors/co-track/pkg/logger"
)

func testOptions() Options {
	return Options{
		Track: track.Options{
			BucketWidth: 1000,
			Low:         0x00ff00,
			High:        0xff0000,
			MinAltitude: 0,
			MaxAltitude: 10000,
			StrokeWidth: 5,
		},
		FollowEnabled:  true,
		ShowRoute:      true,
		PlaneIcon:      "plane.png",
		PlaneIconScale: 1,
		Markers: markers.Options{
			Icons:       map[markers.FacilityType]string{markers.SmallAirport: "small.png"},
			DefaultIcon: "default.png",
		},
		PollInterval:    10 * time.Millisecond,
		AirportRadiusNM: 20,
	}
}

func newScene() *render.Scene {
	return render.NewScene(render.View{Center: orb.Point{7, 46}, Zoom: 10, Width: 800, Height: 600}, Layers, logger.NewNop())
}

func sample(lat, lon, alt, hdg float64) track.Sample {
	return track.Sample{Lat: lat, Lon: lon, Altitude: alt, Heading: hdg}
}

type fakeLookup struct {
	mu      sync.Mutex
	calls   int
	results map[int][]markers.Record
	block   map[int]chan struct{}
	entered chan int
	err     error
}

func (f *fakeLookup) Lookup(ctx context.Context, lat, lon, radiusNM float64) ([]markers.Record, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	wait := f.block[n]
	res := f.results[n]
	err := f.err
	f.mu.Unlock()

	if f.entered != nil {
		f.entered <- n
	}
	if wait != nil {
		<-wait
	}
	return res, err
}

type fakeCommander struct {
	mu   sync.Mutex
	sent []management.Command
}

func (f *fakeCommander) Send(ctx context.Context, cmd management.Command) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, cmd)
}

func TestMapView_ApplyBuildsRoute(t *testing.T) {
	scene := newScene()
	v := New(testOptions(), scene, nil, nil, nil, logger.NewNop())

	v.Apply(sample(46.0, 7.0, 1000, 0))
	v.Apply(sample(46.1, 7.1, 1050, 45))
	v.Apply(sample(46.2, 7.2, 2200, 90))

	route := scene.Features(LayerRoute)
	require.Len(t, route, 2)
	assert.Equal(t, orb.LineString{{7.0, 46.0}, {7.1, 46.1}}, route[0].Geometry)
	assert.Equal(t, orb.LineString{{7.1, 46.1}, {7.2, 46.2}}, route[1].Geometry)
	assert.NotEqual(t, route[0].Style.StrokeColor, route[1].Style.StrokeColor)

	plane := scene.Features(LayerPlane)
	require.Len(t, plane, 1)
	assert.Equal(t, orb.Point{7.2, 46.2}, plane[0].Geometry)
	assert.InDelta(t, math.Pi/2, plane[0].Style.Rotation, 1e-9)
	assert.True(t, plane[0].Style.RotateWithView)
}

func TestMapView_ExtendsActiveFeature(t *testing.T) {
	scene := newScene()
	v := New(testOptions(), scene, nil, nil, nil, logger.NewNop())

	v.Apply(sample(46.0, 7.0, 3100, 0))
	handle := scene.Features(LayerRoute)[0].Handle
	v.Apply(sample(46.1, 7.1, 3200, 0))
	v.Apply(sample(46.2, 7.2, 3300, 0))

	route := scene.Features(LayerRoute)
	require.Len(t, route, 1)
	assert.Equal(t, handle, route[0].Handle)
	assert.Len(t, route[0].Geometry, 3)
}

func TestMapView_FollowPauseAndResume(t *testing.T) {
	scene := newScene()
	v := New(testOptions(), scene, nil, nil, nil, logger.NewNop())

	v.Apply(sample(46.5, 7.5, 1000, 0))
	assert.Equal(t, orb.Point{7.5, 46.5}, scene.View().Center)

	scene.Dispatch(render.PointerDrag, orb.Point{10, 10})
	_, state := v.FollowState()
	assert.Equal(t, follow.Paused, state)

	v.Apply(sample(46.6, 7.6, 1000, 0))
	assert.Equal(t, orb.Point{7.5, 46.5}, scene.View().Center, "camera stays while paused")
	assert.Equal(t, orb.Point{7.6, 46.6}, scene.Features(LayerPlane)[0].Geometry, "marker always follows")

	v.ResumeFollow()
	assert.Equal(t, orb.Point{7.6, 46.6}, scene.View().Center)
}

func TestMapView_FollowDisabled(t *testing.T) {
	opts := testOptions()
	opts.FollowEnabled = false
	scene := newScene()
	v := New(opts, scene, nil, nil, nil, logger.NewNop())

	v.Apply(sample(46.5, 7.5, 1000, 0))
	assert.Equal(t, orb.Point{7, 46}, scene.View().Center)

	v.SetFollowEnabled(true)
	assert.Equal(t, orb.Point{7.5, 46.5}, scene.View().Center)
}

func TestMapView_UpdatePositionOnEmptyRoute(t *testing.T) {
	scene := newScene()
	v := New(testOptions(), scene, nil, nil, nil, logger.NewNop())

	v.UpdatePosition()
	v.UpdateVisualRoute()

	assert.Equal(t, orb.Point{0, 0}, scene.Features(LayerPlane)[0].Geometry)
	assert.Empty(t, scene.Features(LayerRoute))
	assert.Equal(t, orb.Point{7, 46}, scene.View().Center)
}

func TestMapView_ClearRoute(t *testing.T) {
	scene := newScene()
	v := New(testOptions(), scene, nil, nil, nil, logger.NewNop())
	v.Apply(sample(46.0, 7.0, 1000, 0))
	v.Apply(sample(46.1, 7.1, 5000, 0))
	id := v.RouteID()

	v.ClearRoute()
	assert.Empty(t, scene.Features(LayerRoute))
	assert.NotEqual(t, id, v.RouteID())
	_, ok := v.Position()
	assert.False(t, ok)

	v.Apply(sample(47.0, 8.0, 1000, 0))
	route := scene.Features(LayerRoute)
	require.Len(t, route, 1)
	assert.Equal(t, orb.LineString{{8.0, 47.0}}, route[0].Geometry)
}

type resettableSource struct {
	resets int
}

func (s *resettableSource) Fetch(ctx context.Context, known int) (telemetry.Batch, error) {
	return telemetry.Batch{}, telemetry.ErrNoData
}

func (s *resettableSource) Reset() { s.resets++ }

func TestMapView_ResetRoute(t *testing.T) {
	scene := newScene()
	cmds := &fakeCommander{}
	src := &resettableSource{}
	v := New(testOptions(), scene, nil, src, cmds, logger.NewNop())
	v.Apply(sample(46.0, 7.0, 1000, 0))

	v.ResetRoute()
	assert.Empty(t, scene.Features(LayerRoute))
	assert.Equal(t, []management.Command{management.ResetRoute}, cmds.sent)
	assert.Equal(t, 1, src.resets)
}

func TestMapView_ResetRouteAdoptsNextUpstreamID(t *testing.T) {
	scene := newScene()
	v := New(testOptions(), scene, nil, nil, nil, logger.NewNop())
	v.applyBatch(telemetry.Batch{RouteID: "a", Points: []track.Sample{sample(46.0, 7.0, 1000, 0)}}, nil)

	v.ResetRoute()
	v.applyBatch(telemetry.Batch{RouteID: "b", Points: []track.Sample{sample(46.1, 7.1, 1000, 0)}}, nil)

	assert.Len(t, v.PointsSince(0), 1)
	assert.Equal(t, 1, v.upstreamKnown)
	assert.Len(t, scene.Features(LayerRoute), 1)
}

func TestMapView_ToggleRoute(t *testing.T) {
	opts := testOptions()
	opts.ShowRoute = false
	scene := newScene()
	v := New(opts, scene, nil, nil, nil, logger.NewNop())
	assert.False(t, scene.LayerVisible(LayerRoute))

	v.ToggleRoute(true)
	assert.True(t, scene.LayerVisible(LayerRoute))
	assert.True(t, v.RouteVisible())
}

func TestMapView_MarkAirportsAndPopup(t *testing.T) {
	scene := newScene()
	lookup := &fakeLookup{results: map[int][]markers.Record{
		1: {{ID: 1, Ident: "LSZB", Name: "Bern", Type: markers.SmallAirport, Lat: 46.5, Lon: 7.5}},
	}}
	v := New(testOptions(), scene, lookup, nil, nil, logger.NewNop())

	// nothing to search around yet
	v.MarkAirports(10)
	assert.Equal(t, 0, lookup.calls)

	v.Apply(sample(46.4, 7.4, 1000, 0))
	v.MarkAirports(10)

	airports := scene.Features(LayerAirports)
	require.Len(t, airports, 1)
	assert.Equal(t, "small.png", airports[0].Style.Icon)

	px := scene.ProjectToScreen(orb.Point{7.5, 46.5})
	scene.Dispatch(render.PointerMove, px)
	assert.Equal(t, render.CursorPointer, scene.Cursor())

	scene.Dispatch(render.PointerClick, px)
	assert.True(t, scene.Popup().Visible)
	assert.Contains(t, scene.Popup().Content, "Bern")

	v.ClearAirports()
	assert.Empty(t, scene.Features(LayerAirports))
	assert.False(t, scene.Popup().Visible)
}

func TestMapView_MarkAirportsLookupError(t *testing.T) {
	scene := newScene()
	lookup := &fakeLookup{err: errors.New("db down")}
	v := New(testOptions(), scene, lookup, nil, nil, logger.NewNop())
	v.Apply(sample(46.4, 7.4, 1000, 0))

	v.MarkAirports(10)
	assert.Empty(t, scene.Features(LayerAirports))
}

func TestMapView_StaleAirportLookupIgnored(t *testing.T) {
	scene := newScene()
	release := make(chan struct{})
	lookup := &fakeLookup{
		results: map[int][]markers.Record{
			1: {{ID: 1, Ident: "OLD", Type: markers.SmallAirport, Lat: 46.5, Lon: 7.5}},
			2: {{ID: 2, Ident: "NEW", Type: markers.SmallAirport, Lat: 46.6, Lon: 7.6}},
		},
		block:   map[int]chan struct{}{1: release},
		entered: make(chan int, 4),
	}
	v := New(testOptions(), scene, lookup, nil, nil, logger.NewNop())
	v.Apply(sample(46.4, 7.4, 1000, 0))

	require.NoError(t, v.Start(context.Background()))
	defer v.Stop()

	ctx := context.Background()
	require.NoError(t, v.Call(ctx, func() { v.MarkAirports(10) }))
	assert.Equal(t, 1, <-lookup.entered)
	require.NoError(t, v.Call(ctx, func() { v.MarkAirports(10) }))

	idents := func() []string {
		var out []string
		_ = v.Call(ctx, func() {
			for _, r := range v.Airports() {
				out = append(out, r.Ident)
			}
		})
		return out
	}

	require.Eventually(t, func() bool {
		got := idents()
		return len(got) == 1 && got[0] == "NEW"
	}, 2*time.Second, 10*time.Millisecond)

	close(release)
	assert.Never(t, func() bool {
		got := idents()
		return len(got) != 1 || got[0] != "NEW"
	}, 200*time.Millisecond, 10*time.Millisecond)
}

func TestMapView_ApplyBatchRouteChange(t *testing.T) {
	scene := newScene()
	v := New(testOptions(), scene, nil, nil, nil, logger.NewNop())

	v.applyBatch(telemetry.Batch{RouteID: "a", Points: []track.Sample{
		sample(46.0, 7.0, 1000, 0), sample(46.1, 7.1, 1000, 0),
	}}, nil)
	v.applyBatch(telemetry.Batch{RouteID: "a", Points: []track.Sample{sample(46.2, 7.2, 1000, 0)}}, nil)
	assert.Equal(t, 3, v.upstreamKnown)
	assert.Len(t, v.PointsSince(0), 3)
	assert.Len(t, v.PointsSince(2), 1)

	id := v.RouteID()
	v.applyBatch(telemetry.Batch{RouteID: "b", Points: []track.Sample{sample(50, 8, 1000, 0)}}, nil)
	assert.Equal(t, 0, v.upstreamKnown)
	assert.Empty(t, v.PointsSince(0))
	assert.NotEqual(t, id, v.RouteID())
	assert.Empty(t, scene.Features(LayerRoute))

	v.applyBatch(telemetry.Batch{}, errors.New("boom"))
	v.applyBatch(telemetry.Batch{}, telemetry.ErrNoData)
	assert.Empty(t, v.PointsSince(0))
}

type stepSource struct {
	mu    sync.Mutex
	lat   float64
	known []int
}

func (s *stepSource) Fetch(ctx context.Context, known int) (telemetry.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.known = append(s.known, known)
	s.lat += 0.01
	return telemetry.Batch{RouteID: "sim", Points: []track.Sample{sample(46+s.lat, 7, 1000, 0)}}, nil
}

func TestMapView_LoopPollsSource(t *testing.T) {
	scene := newScene()
	src := &stepSource{}
	v := New(testOptions(), scene, nil, src, nil, logger.NewNop())

	require.NoError(t, v.Start(context.Background()))
	assert.Error(t, v.Start(context.Background()))

	ctx := context.Background()
	require.Eventually(t, func() bool {
		n := 0
		_ = v.Call(ctx, func() { n = len(v.PointsSince(0)) })
		return n >= 3
	}, 2*time.Second, 10*time.Millisecond)

	v.Stop()
	assert.ErrorIs(t, v.Call(ctx, func() {}), ErrStopped)

	src.mu.Lock()
	defer src.mu.Unlock()
	for i, k := range src.known {
		assert.Equal(t, i, k, "each fetch asks for the points after the ones already held")
	}
}

// gatedSource returns scripted batches and can hold individual fetches
type gatedSource struct {
	mu      sync.Mutex
	calls   int
	batches map[int]telemetry.Batch
	gates   map[int]chan struct{}
	entered chan int
}

func (s *gatedSource) Fetch(ctx context.Context, known int) (telemetry.Batch, error) {
	s.mu.Lock()
	s.calls++
	n := s.calls
	batch, ok := s.batches[n]
	gate := s.gates[n]
	s.mu.Unlock()

	select {
	case s.entered <- n:
	default:
	}
	if gate != nil {
		<-gate
	}
	if !ok {
		return telemetry.Batch{}, telemetry.ErrNoData
	}
	return batch, nil
}

func TestMapView_FetchInFlightDuringResetIsDiscarded(t *testing.T) {
	scene := newScene()
	release := make(chan struct{})
	src := &gatedSource{
		batches: map[int]telemetry.Batch{
			1: {RouteID: "old", Points: []track.Sample{sample(46.0, 7.0, 1000, 0)}},
			2: {RouteID: "old", Points: []track.Sample{sample(46.2, 7.2, 1000, 0)}},
		},
		gates:   map[int]chan struct{}{2: release},
		entered: make(chan int, 8),
	}
	v := New(testOptions(), scene, nil, src, nil, logger.NewNop())

	require.NoError(t, v.Start(context.Background()))
	defer v.Stop()

	assert.Equal(t, 1, <-src.entered)
	assert.Equal(t, 2, <-src.entered)

	ctx := context.Background()
	points := func() []track.Sample {
		var out []track.Sample
		require.NoError(t, v.Call(ctx, func() { out = v.PointsSince(0) }))
		return out
	}

	require.NoError(t, v.Call(ctx, v.ResetRoute))
	assert.Empty(t, points())

	close(release)
	// the third fetch only starts once the held one has been handled
	assert.Equal(t, 3, <-src.entered)

	assert.Empty(t, points())
	assert.Empty(t, scene.Features(LayerRoute))
}

func TestMapView_ContextCancelStopsLoop(t *testing.T) {
	v := New(testOptions(), newScene(), nil, nil, nil, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, v.Start(ctx))
	cancel()

	require.Eventually(t, func() bool {
		return errors.Is(v.Call(context.Background(), func() {}), ErrStopped)
	}, 2*time.Second, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 300; i++ {
			v.Post(func() {})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Post blocked after the loop exited")
	}

	v.Stop()
}

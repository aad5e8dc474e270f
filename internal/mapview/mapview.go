package mapview

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/yegors/co-track/internal/follow"
	"github.com/yegors/co-track/internal/hittest"
	"github.com/yegors/co-track/internal/management"
	"github.com/yegors/co-track/internal/markers"
	"github.com/yegors/co-track/internal/physics"
	"github.com/yegors/co-track/internal/render"
	"github.com/yegors/co-track/internal/telemetry"
	"github.com/yegors/co-track/internal/track"
	"github.com/yegors/co-track/pkg/logger"
)

// Layer names, bottom first
const (
	LayerRoute    = "route"
	LayerAirports = "airports"
	LayerPlane    = "plane"
)

// Layers is the drawing order of the map
var Layers = []string{LayerRoute, LayerAirports, LayerPlane}

// ErrStopped is returned by Call once the loop has shut down
var ErrStopped = errors.New("map view stopped")

// AirportLookup finds airports around a position
type AirportLookup interface {
	Lookup(ctx context.Context, lat, lon, radiusNM float64) ([]markers.Record, error)
}

// Commander forwards management commands upstream
type Commander interface {
	Send(ctx context.Context, cmd management.Command)
}

// Options configures a MapView
type Options struct {
	Track          track.Options
	HitTolerance   float64
	FollowEnabled  bool
	ShowRoute      bool
	PlaneIcon      string
	PlaneIconScale float64
	Markers        markers.Options

	PollInterval    time.Duration
	FetchTimeout    time.Duration
	AirportRadiusNM float64
	AirportRefresh  time.Duration // 0 disables periodic refresh
}

const (
	stateIdle int32 = iota
	stateRunning
	stateStopped
)

// MapView ties the track core to a render surface. All state is owned by
// one loop goroutine once Start has been called; before that the caller's
// goroutine owns it.
type MapView struct {
	opts      Options
	surface   render.Surface
	segmenter *track.Segmenter
	follow    *follow.Controller
	markers   *markers.Layer
	hits      *hittest.Adapter
	airports  AirportLookup
	source    telemetry.Source
	commands  Commander
	logger    *logger.Logger

	plane        render.Handle
	routeHandles []render.Handle
	routeID      string
	routeVisible bool

	upstreamID    string
	upstreamKnown int
	fetching      bool
	routeGen      uint64
	airportGen    uint64

	state    atomic.Int32
	posts    chan func()
	loopCtx  context.Context
	cancel   context.CancelFunc
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a MapView and installs its layers and pointer handlers on surface.
// airports, source and commands may be nil.
func New(opts Options, surface render.Surface, airports AirportLookup, source telemetry.Source, commands Commander, log *logger.Logger) *MapView {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 5 * time.Second
	}
	if opts.PlaneIconScale <= 0 {
		opts.PlaneIconScale = 1
	}
	opts.Markers.Layer = LayerAirports

	v := &MapView{
		opts:         opts,
		surface:      surface,
		segmenter:    track.NewSegmenter(opts.Track),
		follow:       follow.NewController(opts.FollowEnabled),
		hits:         hittest.NewAdapter(surface, opts.HitTolerance),
		airports:     airports,
		source:       source,
		commands:     commands,
		logger:       log.Named("mapview"),
		routeID:      uuid.NewString(),
		routeVisible: opts.ShowRoute,
		posts:        make(chan func(), 256),
		loopCtx:      context.Background(),
		stopCh:       make(chan struct{}),
	}
	v.markers = markers.NewLayer(surface, opts.Markers, log)

	surface.SetLayerVisible(LayerRoute, opts.ShowRoute)
	v.plane = surface.AddFeature(LayerPlane, orb.Point{0, 0}, v.planeStyle(0), "")

	surface.OnPointerEvent(render.PointerDrag, func(orb.Point) {
		v.post(v.follow.Drag)
	})
	surface.OnPointerEvent(render.PointerClick, func(px orb.Point) {
		v.post(func() { v.hits.Click(px) })
	})
	surface.OnPointerEvent(render.PointerMove, func(px orb.Point) {
		v.post(func() { v.hits.PointerMove(px) })
	})

	return v
}

func (v *MapView) planeStyle(rotation float64) render.Style {
	return render.Style{
		Icon:           v.opts.PlaneIcon,
		IconScale:      v.opts.PlaneIconScale,
		Rotation:       rotation,
		RotateWithView: true,
	}
}

// Apply ingests one position sample
func (v *MapView) Apply(sample track.Sample) {
	v.segmenter.Append(sample)
	v.UpdateVisualRoute()
	v.UpdatePosition()
}

// UpdateVisualRoute mirrors the active segment onto the surface
func (v *MapView) UpdateVisualRoute() {
	seg, idx, ok := v.segmenter.Active()
	if !ok {
		return
	}

	if idx >= len(v.routeHandles) {
		h := v.surface.AddFeature(LayerRoute, seg.Points, seg.Style, "")
		v.routeHandles = append(v.routeHandles, h)
		return
	}
	v.surface.SetGeometry(v.routeHandles[idx], seg.Points)
}

// UpdatePosition moves the plane marker to the latest sample and recenters
// the camera when following
func (v *MapView) UpdatePosition() {
	last, ok := v.segmenter.Last()
	if !ok {
		return
	}

	p := last.Point()
	v.surface.SetGeometry(v.plane, p)
	v.surface.SetStyle(v.plane, v.planeStyle(physics.DegToRad(last.Heading)))

	if v.follow.ShouldRecenter() {
		v.surface.SetViewCenter(p)
	}
}

// ClearRoute drops the local route and starts a new route id. A fetch
// still in flight is discarded when it completes.
func (v *MapView) ClearRoute() {
	v.routeGen++
	v.segmenter.Clear()
	for _, h := range v.routeHandles {
		v.surface.RemoveFeature(h)
	}
	v.routeHandles = nil
	v.routeID = uuid.NewString()
	v.logger.Info("Route cleared", logger.String("route_id", v.routeID))
}

// ResetRoute clears the route locally and asks the source to do the same
func (v *MapView) ResetRoute() {
	v.ClearRoute()
	// adopt whatever route id the source reports next without clearing again
	v.upstreamID = ""
	v.upstreamKnown = 0
	if r, ok := v.source.(telemetry.Resetter); ok {
		r.Reset()
	}
	if v.commands != nil {
		v.commands.Send(v.loopCtx, management.ResetRoute)
	}
}

// ToggleRoute shows or hides the route layer
func (v *MapView) ToggleRoute(show bool) {
	v.routeVisible = show
	v.surface.SetLayerVisible(LayerRoute, show)
}

// RouteVisible reports the route layer visibility
func (v *MapView) RouteVisible() bool {
	return v.routeVisible
}

// MarkAirports replaces the airport markers with the airports around the
// current position. Once the loop runs the lookup happens in the background
// and its result is dropped if another MarkAirports or ClearAirports happens first.
func (v *MapView) MarkAirports(radiusNM float64) {
	v.ClearAirports()

	if v.airports == nil {
		return
	}
	pos, ok := v.segmenter.Last()
	if !ok {
		v.logger.Debug("No position yet, skipping airport lookup")
		return
	}
	if radiusNM <= 0 {
		radiusNM = v.opts.AirportRadiusNM
	}

	gen := v.airportGen
	if v.state.Load() == stateIdle {
		records, err := v.airports.Lookup(v.loopCtx, pos.Lat, pos.Lon, radiusNM)
		v.applyAirports(gen, records, err)
		return
	}

	ctx := v.loopCtx
	go func() {
		records, err := v.airports.Lookup(ctx, pos.Lat, pos.Lon, radiusNM)
		v.post(func() { v.applyAirports(gen, records, err) })
	}()
}

func (v *MapView) applyAirports(gen uint64, records []markers.Record, err error) {
	if gen != v.airportGen {
		v.logger.Debug("Discarding stale airport lookup")
		return
	}
	if err != nil {
		v.logger.Warn("Airport lookup failed", logger.Error(err))
		return
	}
	if err := v.markers.ReplaceAll(records); err != nil {
		v.logger.Error("Failed to place airport markers", logger.Error(err))
	}
}

// ClearAirports removes the markers, hides the popup and invalidates
// outstanding lookups
func (v *MapView) ClearAirports() {
	v.airportGen++
	v.markers.ClearAll()
	v.hits.Hide()
}

// Airports returns the markers currently shown
func (v *MapView) Airports() []markers.Record {
	return v.markers.Records()
}

// ResumeFollow returns the camera to the aircraft
func (v *MapView) ResumeFollow() {
	v.follow.Resume()
	v.UpdatePosition()
}

// SetFollowEnabled toggles following at runtime
func (v *MapView) SetFollowEnabled(enabled bool) {
	v.follow.SetEnabled(enabled)
	if enabled {
		v.UpdatePosition()
	}
}

// FollowState returns whether following is enabled and its runtime state
func (v *MapView) FollowState() (bool, follow.State) {
	return v.follow.Enabled(), v.follow.State()
}

// Position returns the latest sample
func (v *MapView) Position() (track.Sample, bool) {
	return v.segmenter.Last()
}

// PointsSince returns the route samples after the first known ones
func (v *MapView) PointsSince(known int) []track.Sample {
	return v.segmenter.Since(known)
}

// RouteID identifies the current route; it changes on every clear
func (v *MapView) RouteID() string {
	return v.routeID
}

// Segments returns the current route segments
func (v *MapView) Segments() []track.Segment {
	return v.segmenter.Segments()
}

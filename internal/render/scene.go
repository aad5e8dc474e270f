package render

import (
	"math"
	"sync"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/project"
	"github.com/yegors/co-track/pkg/logger"
)

const (
	// Web Mercator ground resolution at zoom 0 for 256px tiles (m/px)
	mercatorResolutionZ0 = 156543.03392804097

	// Half extent of an icon at scale 1, used for point hit testing
	iconRadiusPx = 12.0
)

// View is the camera state of the scene
type View struct {
	Center orb.Point `json:"center"` // lon, lat
	Zoom   float64   `json:"zoom"`
	Width  int       `json:"width"`
	Height int       `json:"height"`
}

// Popup is the overlay shown for a clicked feature
type Popup struct {
	Visible bool      `json:"visible"`
	Anchor  orb.Point `json:"anchor"`
	Content string    `json:"content"`
}

type layer struct {
	name     string
	visible  bool
	features []*Feature
}

// Scene is an in-process Surface. It keeps the feature graph, camera,
// popup and cursor state and reports every mutation to a Listener.
type Scene struct {
	mu       sync.RWMutex
	layers   []*layer
	index    map[Handle]*Feature
	view     View
	popup    Popup
	cursor   Cursor
	handlers map[PointerKind][]PointerHandler
	listener Listener
	logger   *logger.Logger
}

var _ Surface = (*Scene)(nil)

// NewScene creates a scene with the given layers, bottom first
func NewScene(view View, layerNames []string, log *logger.Logger) *Scene {
	s := &Scene{
		index:    make(map[Handle]*Feature),
		view:     view,
		handlers: make(map[PointerKind][]PointerHandler),
		logger:   log.Named("scene"),
	}
	for _, name := range layerNames {
		s.layers = append(s.layers, &layer{name: name, visible: true})
	}
	return s
}

// SetListener registers the receiver of scene changes
func (s *Scene) SetListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = l
}

func (s *Scene) notify(l Listener, c Change) {
	if l != nil {
		l.SceneChanged(c)
	}
}

// layerLocked returns the named layer, creating it on top if missing
func (s *Scene) layerLocked(name string) *layer {
	for _, l := range s.layers {
		if l.name == name {
			return l
		}
	}
	l := &layer{name: name, visible: true}
	s.layers = append(s.layers, l)
	return l
}

// AddFeature adds a feature on top of its layer
func (s *Scene) AddFeature(layerName string, geom orb.Geometry, style Style, label string) Handle {
	s.mu.Lock()
	f := &Feature{
		Handle:   Handle(uuid.NewString()),
		Layer:    layerName,
		Geometry: geom,
		Style:    style,
		Label:    label,
	}
	l := s.layerLocked(layerName)
	l.features = append(l.features, f)
	s.index[f.Handle] = f
	snapshot := *f
	listener := s.listener
	s.mu.Unlock()

	s.notify(listener, Change{Kind: FeatureAdded, Feature: &snapshot})
	return snapshot.Handle
}

// RemoveFeature removes a feature. Unknown handles are ignored.
func (s *Scene) RemoveFeature(h Handle) {
	s.mu.Lock()
	f, ok := s.index[h]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.index, h)
	l := s.layerLocked(f.Layer)
	for i, candidate := range l.features {
		if candidate.Handle == h {
			l.features = append(l.features[:i], l.features[i+1:]...)
			break
		}
	}
	listener := s.listener
	s.mu.Unlock()

	s.notify(listener, Change{Kind: FeatureRemoved, Handle: h, Layer: f.Layer})
}

// SetStyle replaces the style of a feature
func (s *Scene) SetStyle(h Handle, style Style) {
	s.update(h, func(f *Feature) { f.Style = style })
}

// SetGeometry replaces the geometry of a feature
func (s *Scene) SetGeometry(h Handle, geom orb.Geometry) {
	s.update(h, func(f *Feature) { f.Geometry = geom })
}

func (s *Scene) update(h Handle, fn func(f *Feature)) {
	s.mu.Lock()
	f, ok := s.index[h]
	if !ok {
		s.mu.Unlock()
		s.logger.Debug("Update on unknown feature", logger.String("handle", string(h)))
		return
	}
	fn(f)
	snapshot := *f
	listener := s.listener
	s.mu.Unlock()

	s.notify(listener, Change{Kind: FeatureUpdated, Feature: &snapshot})
}

// SetLayerVisible shows or hides a whole layer
func (s *Scene) SetLayerVisible(layerName string, visible bool) {
	s.mu.Lock()
	l := s.layerLocked(layerName)
	if l.visible == visible {
		s.mu.Unlock()
		return
	}
	l.visible = visible
	listener := s.listener
	s.mu.Unlock()

	s.notify(listener, Change{Kind: LayerVisibility, Layer: layerName, Visible: visible})
}

// LayerVisible reports whether a layer is drawn
func (s *Scene) LayerVisible(layerName string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.layers {
		if l.name == layerName {
			return l.visible
		}
	}
	return false
}

// Features returns the features of a layer in drawing order
func (s *Scene) Features(layerName string) []Feature {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.layers {
		if l.name == layerName {
			out := make([]Feature, 0, len(l.features))
			for _, f := range l.features {
				out = append(out, *f)
			}
			return out
		}
	}
	return nil
}

// Feature looks up a feature by handle
func (s *Scene) Feature(h Handle) (Feature, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.index[h]
	if !ok {
		return Feature{}, false
	}
	return *f, true
}

// ProjectToScreen converts a lon/lat point to a pixel of the current viewport
func (s *Scene) ProjectToScreen(p orb.Point) orb.Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return projectToScreen(s.view, p)
}

func projectToScreen(v View, p orb.Point) orb.Point {
	res := mercatorResolutionZ0 / math.Pow(2, v.Zoom)
	m := project.WGS84.ToMercator(p)
	c := project.WGS84.ToMercator(v.Center)
	return orb.Point{
		(m.X()-c.X())/res + float64(v.Width)/2,
		(c.Y()-m.Y())/res + float64(v.Height)/2,
	}
}

// screenGeometry projects a geographic geometry into pixel space
func screenGeometry(v View, g orb.Geometry) orb.Geometry {
	switch geom := g.(type) {
	case orb.Point:
		return projectToScreen(v, geom)
	case orb.LineString:
		out := make(orb.LineString, len(geom))
		for i, p := range geom {
			out[i] = projectToScreen(v, p)
		}
		return out
	case orb.MultiPoint:
		out := make(orb.MultiPoint, len(geom))
		for i, p := range geom {
			out[i] = projectToScreen(v, p)
		}
		return out
	default:
		return nil
	}
}

// OnPointerEvent registers a handler for a pointer event kind
func (s *Scene) OnPointerEvent(kind PointerKind, handler PointerHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[kind] = append(s.handlers[kind], handler)
}

// Dispatch delivers a pointer event to the registered handlers.
// Handlers run outside the scene lock so they may call back into it.
func (s *Scene) Dispatch(kind PointerKind, px orb.Point) {
	s.mu.RLock()
	handlers := append([]PointerHandler(nil), s.handlers[kind]...)
	s.mu.RUnlock()

	for _, h := range handlers {
		h(px)
	}
}

// QueryFeatureAtPixel returns the topmost visible feature within
// tolerance pixels of px.
func (s *Scene) QueryFeatureAtPixel(px orb.Point, tolerance float64) (Feature, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for li := len(s.layers) - 1; li >= 0; li-- {
		l := s.layers[li]
		if !l.visible {
			continue
		}
		for fi := len(l.features) - 1; fi >= 0; fi-- {
			f := l.features[fi]
			if s.hitLocked(f, px, tolerance) {
				return *f, true
			}
		}
	}
	return Feature{}, false
}

func (s *Scene) hitLocked(f *Feature, px orb.Point, tolerance float64) bool {
	g := screenGeometry(s.view, f.Geometry)
	if g == nil {
		return false
	}

	switch sg := g.(type) {
	case orb.Point:
		scale := f.Style.IconScale
		if scale <= 0 {
			scale = 1
		}
		return planar.Distance(sg, px) <= tolerance+iconRadiusPx*scale
	case orb.LineString:
		if len(sg) == 1 {
			return planar.Distance(sg[0], px) <= tolerance+f.Style.StrokeWidth/2
		}
		return planar.DistanceFrom(sg, px) <= tolerance+f.Style.StrokeWidth/2
	default:
		return planar.DistanceFrom(sg, px) <= tolerance
	}
}

// SetViewCenter moves the camera
func (s *Scene) SetViewCenter(p orb.Point) {
	s.mu.Lock()
	if s.view.Center.Equal(p) {
		s.mu.Unlock()
		return
	}
	s.view.Center = p
	view := s.view
	listener := s.listener
	s.mu.Unlock()

	s.notify(listener, Change{Kind: ViewChanged, View: &view})
}

// SetViewport updates the pixel size and zoom reported by the client
func (s *Scene) SetViewport(width, height int, zoom float64) {
	s.mu.Lock()
	if width > 0 {
		s.view.Width = width
	}
	if height > 0 {
		s.view.Height = height
	}
	if zoom > 0 {
		s.view.Zoom = zoom
	}
	view := s.view
	listener := s.listener
	s.mu.Unlock()

	s.notify(listener, Change{Kind: ViewChanged, View: &view})
}

// View returns the current camera state
func (s *Scene) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// ShowPopup shows the overlay at anchor with the given content
func (s *Scene) ShowPopup(anchor orb.Point, content string) {
	s.setPopup(Popup{Visible: true, Anchor: anchor, Content: content})
}

// HidePopup hides the overlay
func (s *Scene) HidePopup() {
	s.setPopup(Popup{})
}

func (s *Scene) setPopup(p Popup) {
	s.mu.Lock()
	if s.popup == p {
		s.mu.Unlock()
		return
	}
	s.popup = p
	listener := s.listener
	s.mu.Unlock()

	s.notify(listener, Change{Kind: PopupChanged, Popup: &p})
}

// Popup returns the overlay state
func (s *Scene) Popup() Popup {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.popup
}

// SetCursor changes the pointer affordance
func (s *Scene) SetCursor(c Cursor) {
	s.mu.Lock()
	if s.cursor == c {
		s.mu.Unlock()
		return
	}
	s.cursor = c
	listener := s.listener
	s.mu.Unlock()

	s.notify(listener, Change{Kind: CursorChanged, Cursor: c})
}

// Cursor returns the pointer affordance
func (s *Scene) Cursor() Cursor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor
}

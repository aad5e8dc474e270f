package render

import (
	"github.com/paulmach/orb"
)

// Handle is an opaque reference to a feature owned by a Surface
type Handle string

// PointerKind identifies a pointer event dispatched by the surface
type PointerKind int

const (
	PointerDrag PointerKind = iota
	PointerClick
	PointerMove
)

// String returns the wire name of the pointer kind
func (k PointerKind) String() string {
	switch k {
	case PointerDrag:
		return "drag"
	case PointerClick:
		return "click"
	case PointerMove:
		return "move"
	default:
		return "unknown"
	}
}

// ParsePointerKind maps a wire name back to a PointerKind
func ParsePointerKind(s string) (PointerKind, bool) {
	switch s {
	case "drag":
		return PointerDrag, true
	case "click":
		return PointerClick, true
	case "move":
		return PointerMove, true
	default:
		return 0, false
	}
}

// PointerHandler receives the pixel position of a pointer event
type PointerHandler func(px orb.Point)

// Cursor is the pointer affordance shown over the map
type Cursor string

const (
	CursorDefault Cursor = ""
	CursorPointer Cursor = "pointer"
)

// Style describes how a feature is drawn. Lines use the stroke fields,
// points use the icon fields.
type Style struct {
	StrokeColor    string  `json:"stroke_color,omitempty"`
	StrokeWidth    float64 `json:"stroke_width,omitempty"`
	Icon           string  `json:"icon,omitempty"`
	IconScale      float64 `json:"icon_scale,omitempty"`
	Rotation       float64 `json:"rotation,omitempty"` // radians
	RotateWithView bool    `json:"rotate_with_view,omitempty"`
}

// Feature is a read-only view of a feature on the surface
type Feature struct {
	Handle   Handle
	Layer    string
	Geometry orb.Geometry
	Style    Style
	Label    string
}

// Surface is the capability set the map core needs from a rendering library.
// The core only passes geographic (lon, lat) coordinates; projection to
// device pixels stays inside the surface.
type Surface interface {
	AddFeature(layer string, geom orb.Geometry, style Style, label string) Handle
	RemoveFeature(h Handle)
	SetStyle(h Handle, style Style)
	SetGeometry(h Handle, geom orb.Geometry)
	SetLayerVisible(layer string, visible bool)

	ProjectToScreen(p orb.Point) orb.Point
	OnPointerEvent(kind PointerKind, handler PointerHandler)
	QueryFeatureAtPixel(px orb.Point, tolerance float64) (Feature, bool)

	SetViewCenter(p orb.Point)
	ShowPopup(anchor orb.Point, content string)
	HidePopup()
	SetCursor(c Cursor)
}

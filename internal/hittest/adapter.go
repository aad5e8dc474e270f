package hittest

import (
	"github.com/paulmach/orb"
	"github.com/yegors/co-track/internal/render"
)

// DefaultTolerance is the hit radius in pixels
const DefaultTolerance = 7.0

// PopupState is the visibility of the popup overlay
type PopupState int

const (
	Hidden PopupState = iota
	Visible
)

// Adapter turns pointer positions into cursor and popup feedback
type Adapter struct {
	surface   render.Surface
	tolerance float64
	popup     PopupState
}

// NewAdapter creates an adapter. A non-positive tolerance uses DefaultTolerance.
func NewAdapter(surface render.Surface, tolerance float64) *Adapter {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Adapter{surface: surface, tolerance: tolerance}
}

// FeatureAt returns the topmost feature under px
func (a *Adapter) FeatureAt(px orb.Point) (render.Feature, bool) {
	return a.surface.QueryFeatureAtPixel(px, a.tolerance)
}

// PointerMove shows a pointer cursor over labeled features
func (a *Adapter) PointerMove(px orb.Point) {
	f, ok := a.FeatureAt(px)
	if ok && f.Label != "" {
		a.surface.SetCursor(render.CursorPointer)
		return
	}
	a.surface.SetCursor(render.CursorDefault)
}

// Click opens the popup on a labeled point feature, or hides it
func (a *Adapter) Click(px orb.Point) {
	f, ok := a.FeatureAt(px)
	if ok && f.Label != "" {
		if p, isPoint := f.Geometry.(orb.Point); isPoint {
			a.surface.ShowPopup(p, f.Label)
			a.popup = Visible
			return
		}
	}
	a.Hide()
}

// Hide hides the popup
func (a *Adapter) Hide() {
	a.surface.HidePopup()
	a.popup = Hidden
}

// Popup returns the outcome of the latest click
func (a *Adapter) Popup() PopupState {
	return a.popup
}

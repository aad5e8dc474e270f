package render

import (
	"github.com/paulmach/orb/geojson"
)

// ChangeKind identifies a scene mutation
type ChangeKind string

const (
	FeatureAdded    ChangeKind = "feature_added"
	FeatureUpdated  ChangeKind = "feature_updated"
	FeatureRemoved  ChangeKind = "feature_removed"
	LayerVisibility ChangeKind = "layer_visibility"
	ViewChanged     ChangeKind = "view_changed"
	PopupChanged    ChangeKind = "popup_changed"
	CursorChanged   ChangeKind = "cursor_changed"
)

// Change describes one scene mutation. Only the fields relevant to Kind are set.
type Change struct {
	Kind    ChangeKind
	Feature *Feature
	Handle  Handle
	Layer   string
	Visible bool
	View    *View
	Popup   *Popup
	Cursor  Cursor
}

// Listener receives scene changes
type Listener interface {
	SceneChanged(c Change)
}

// ListenerFunc adapts a function to a Listener
type ListenerFunc func(c Change)

// SceneChanged implements Listener
func (f ListenerFunc) SceneChanged(c Change) { f(c) }

// ToGeoJSON converts a feature to a GeoJSON feature carrying its layer,
// label and style as properties.
func ToGeoJSON(f Feature) *geojson.Feature {
	gf := geojson.NewFeature(f.Geometry)
	gf.ID = string(f.Handle)
	gf.Properties["layer"] = f.Layer
	if f.Label != "" {
		gf.Properties["label"] = f.Label
	}
	gf.Properties["style"] = f.Style
	return gf
}

// Snapshot is the full scene state sent to newly connected clients
type Snapshot struct {
	Features *geojson.FeatureCollection `json:"features"`
	Hidden   []string                   `json:"hidden_layers"`
	View     View                       `json:"view"`
	Popup    Popup                      `json:"popup"`
	Cursor   Cursor                     `json:"cursor"`
}

// Snapshot captures the scene in drawing order
func (s *Scene) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fc := geojson.NewFeatureCollection()
	hidden := []string{}
	for _, l := range s.layers {
		if !l.visible {
			hidden = append(hidden, l.name)
		}
		for _, f := range l.features {
			fc.Append(ToGeoJSON(*f))
		}
	}

	return Snapshot{
		Features: fc,
		Hidden:   hidden,
		View:     s.view,
		Popup:    s.popup,
		Cursor:   s.cursor,
	}
}

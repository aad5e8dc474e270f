package mapview

import (
	"context"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/yegors/co-track/internal/render"
	"github.com/yegors/co-track/internal/websocket"
	"github.com/yegors/co-track/pkg/logger"
)

// Broadcaster pushes a message to every connected client
type Broadcaster interface {
	Broadcast(message *websocket.Message)
}

// Bridge mirrors the scene to websocket clients and feeds their input
// back into the map view
type Bridge struct {
	view   *MapView
	scene  *render.Scene
	hub    Broadcaster
	logger *logger.Logger
}

var _ websocket.MessageHandler = (*Bridge)(nil)
var _ render.Listener = (*Bridge)(nil)

// NewBridge creates a bridge. Register it as the scene listener and as the
// hub's message and connect handler.
func NewBridge(view *MapView, scene *render.Scene, hub Broadcaster, log *logger.Logger) *Bridge {
	return &Bridge{
		view:   view,
		scene:  scene,
		hub:    hub,
		logger: log.Named("ws-bridge"),
	}
}

// SceneChanged broadcasts a scene mutation
func (b *Bridge) SceneChanged(c render.Change) {
	b.hub.Broadcast(ChangeMessage(c))
}

// ChangeMessage encodes a scene change for the front-end
func ChangeMessage(c render.Change) *websocket.Message {
	data := map[string]any{}
	switch c.Kind {
	case render.FeatureAdded, render.FeatureUpdated:
		data["feature"] = render.ToGeoJSON(*c.Feature)
	case render.FeatureRemoved:
		data["id"] = string(c.Handle)
		data["layer"] = c.Layer
	case render.LayerVisibility:
		data["layer"] = c.Layer
		data["visible"] = c.Visible
	case render.ViewChanged:
		data["view"] = *c.View
	case render.PopupChanged:
		data["popup"] = *c.Popup
	case render.CursorChanged:
		data["cursor"] = c.Cursor
	}
	return &websocket.Message{Type: string(c.Kind), Data: data}
}

// SnapshotMessage captures the whole scene plus the follow and route state
func (b *Bridge) SnapshotMessage(ctx context.Context) *websocket.Message {
	data := map[string]any{"scene": b.scene.Snapshot()}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	err := b.view.Call(ctx, func() {
		enabled, state := b.view.FollowState()
		data["follow_enabled"] = enabled
		data["follow_state"] = state.String()
		data["route_id"] = b.view.RouteID()
		data["route_visible"] = b.view.RouteVisible()
	})
	if err != nil {
		b.logger.Debug("Snapshot without view state", logger.Error(err))
	}

	return &websocket.Message{Type: websocket.MessageTypeSnapshot, Data: data}
}

// Resync broadcasts a full snapshot so clients that missed changes catch up
func (b *Bridge) Resync() {
	b.hub.Broadcast(b.SnapshotMessage(context.Background()))
}

// OnConnect sends a snapshot to a newly connected client
func (b *Bridge) OnConnect(client *websocket.Client) {
	go client.SendMessage(b.SnapshotMessage(context.Background()))
}

// HandleMessage implements websocket.MessageHandler
func (b *Bridge) HandleMessage(client *websocket.Client, messageType string, data map[string]any) error {
	switch messageType {
	case websocket.MessageTypePointer:
		name, _ := data["kind"].(string)
		kind, ok := render.ParsePointerKind(name)
		if !ok {
			return fmt.Errorf("unknown pointer kind %q", name)
		}
		x, okX := number(data, "x")
		y, okY := number(data, "y")
		if !okX || !okY {
			return fmt.Errorf("pointer event without coordinates")
		}
		b.scene.Dispatch(kind, orb.Point{x, y})

	case websocket.MessageTypeViewport:
		width, _ := number(data, "width")
		height, _ := number(data, "height")
		zoom, _ := number(data, "zoom")
		b.scene.SetViewport(int(width), int(height), zoom)
		lon, okLon := number(data, "lon")
		lat, okLat := number(data, "lat")
		if okLon && okLat {
			b.scene.SetViewCenter(orb.Point{lon, lat})
		}

	case websocket.MessageTypeResumeFollow:
		b.view.Post(b.view.ResumeFollow)

	case websocket.MessageTypeSetFollow:
		enabled, ok := data["enabled"].(bool)
		if !ok {
			return fmt.Errorf("set_follow requires a boolean 'enabled'")
		}
		b.view.Post(func() { b.view.SetFollowEnabled(enabled) })

	case websocket.MessageTypeResetRoute:
		b.view.Post(b.view.ResetRoute)

	case websocket.MessageTypeToggleRoute:
		show, explicit := data["show"].(bool)
		b.view.Post(func() {
			if !explicit {
				show = !b.view.RouteVisible()
			}
			b.view.ToggleRoute(show)
		})

	case websocket.MessageTypeMarkAirports:
		radius, _ := number(data, "radius_nm")
		b.view.Post(func() { b.view.MarkAirports(radius) })

	case websocket.MessageTypeClearAirports:
		b.view.Post(b.view.ClearAirports)

	case websocket.MessageTypeSnapshotRequest:
		client.SendMessage(b.SnapshotMessage(context.Background()))

	default:
		return fmt.Errorf("unknown message type %q", messageType)
	}
	return nil
}

func number(data map[string]any, key string) (float64, bool) {
	switch n := data[key].(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

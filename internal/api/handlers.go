package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/yegors/co-track/internal/config"
	"github.com/yegors/co-track/internal/management"
	"github.com/yegors/co-track/internal/mapview"
	"github.com/yegors/co-track/internal/markers"
	"github.com/yegors/co-track/internal/telemetry"
	"github.com/yegors/co-track/internal/track"
	"github.com/yegors/co-track/pkg/logger"
)

const callTimeout = 2 * time.Second

// Handler contains the API handlers
type Handler struct {
	view     *mapview.MapView
	bridge   *mapview.Bridge
	airports mapview.AirportLookup
	clients  func() int
	shutdown func()
	config   *config.Config
	logger   *logger.Logger
}

// NewHandler creates a new API handler. shutdown is invoked by the
// Shutdown management command.
func NewHandler(view *mapview.MapView, bridge *mapview.Bridge, airports mapview.AirportLookup, clients func() int, shutdown func(), cfg *config.Config, log *logger.Logger) *Handler {
	return &Handler{
		view:     view,
		bridge:   bridge,
		airports: airports,
		clients:  clients,
		shutdown: shutdown,
		config:   cfg,
		logger:   log.Named("api-handler"),
	}
}

// call runs fn on the map view loop with a request-scoped timeout
func (h *Handler) call(r *http.Request, fn func()) error {
	ctx, cancel := context.WithTimeout(r.Context(), callTimeout)
	defer cancel()
	return h.view.Call(ctx, fn)
}

// GetPosition returns the latest sample, or an empty object before the first one
func (h *Handler) GetPosition(w http.ResponseWriter, r *http.Request) {
	var (
		pos track.Sample
		ok  bool
	)
	if err := h.call(r, func() { pos, ok = h.view.Position() }); err != nil {
		h.unavailable(w, err)
		return
	}

	if !ok {
		WriteJSON(w, http.StatusOK, map[string]any{})
		return
	}
	WriteJSON(w, http.StatusOK, pos)
}

// GetPositionsSince returns the route id and every sample after {known}
func (h *Handler) GetPositionsSince(w http.ResponseWriter, r *http.Request) {
	known, err := strconv.Atoi(chi.URLParam(r, "known"))
	if err != nil || known < 0 {
		WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "known must be a non-negative integer"})
		return
	}

	var batch telemetry.Batch
	if err := h.call(r, func() {
		batch = telemetry.Batch{RouteID: h.view.RouteID(), Points: h.view.PointsSince(known)}
	}); err != nil {
		h.unavailable(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, batch)
}

// GetAirports returns airports within {radius} NM of {lat},{lon}, nearest first
func (h *Handler) GetAirports(w http.ResponseWriter, r *http.Request) {
	if h.airports == nil {
		WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "airport database not configured"})
		return
	}

	lat, errLat := strconv.ParseFloat(chi.URLParam(r, "lat"), 64)
	lon, errLon := strconv.ParseFloat(chi.URLParam(r, "lon"), 64)
	radius, errRadius := strconv.ParseFloat(chi.URLParam(r, "radius"), 64)
	if errLat != nil || errLon != nil || errRadius != nil {
		WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "lat, lon and radius must be numbers"})
		return
	}

	records, err := h.airports.Lookup(r.Context(), lat, lon, radius)
	if err != nil {
		h.logger.Warn("Airport lookup failed", logger.Error(err))
		WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if records == nil {
		records = []markers.Record{}
	}
	WriteJSON(w, http.StatusOK, records)
}

// PostManagement executes a ResetRoute or Shutdown command
func (h *Handler) PostManagement(w http.ResponseWriter, r *http.Request) {
	var req management.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	cmd, err := management.ParseCommand(string(req.Command))
	if err != nil {
		WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	h.logger.Info("Management command received", logger.String("command", string(cmd)))

	switch cmd {
	case management.ResetRoute:
		h.view.Post(h.view.ResetRoute)
	case management.Shutdown:
		if h.shutdown != nil {
			go h.shutdown()
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetScene returns the full scene snapshot
func (h *Handler) GetScene(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.bridge.SnapshotMessage(r.Context()).Data)
}

// GetHealth returns the health status of the API
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{"status": "ok"}
	if err := h.call(r, func() {
		response["route_id"] = h.view.RouteID()
		response["points"] = len(h.view.PointsSince(0))
	}); err != nil {
		h.unavailable(w, err)
		return
	}
	if h.clients != nil {
		response["clients"] = h.clients()
	}

	WriteJSON(w, http.StatusOK, response)
}

// GetConfig returns the public configuration used by the front-end
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	publicConfig := map[string]any{
		"track": map[string]any{
			"bucket_width_ft":    h.config.Track.BucketWidthFt,
			"low_color":          h.config.Track.LowColor,
			"high_color":         h.config.Track.HighColor,
			"follow_enabled":     h.config.Track.FollowEnabled,
			"show_route_enabled": h.config.Track.ShowRouteEnabled,
			"initial_zoom":       h.config.Track.InitialZoom,
		},
		"telemetry": map[string]any{
			"source_type":      h.config.Telemetry.SourceType,
			"poll_interval_ms": h.config.Telemetry.PollIntervalMs,
		},
		"airports": map[string]any{
			"search_radius_nm": h.config.Airports.SearchRadiusNM,
		},
	}

	WriteJSON(w, http.StatusOK, publicConfig)
}

func (h *Handler) unavailable(w http.ResponseWriter, err error) {
	status := http.StatusServiceUnavailable
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	WriteJSON(w, status, map[string]string{"error": err.Error()})
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

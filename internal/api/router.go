package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/yegors/co-track/internal/websocket"
	"github.com/yegors/co-track/pkg/logger"
)

// Router wires handlers to routes
type Router struct {
	handler  *Handler
	wsServer *websocket.Server
	static   http.Handler
	logger   *logger.Logger
}

// NewRouter creates a new router. wsServer and static may be nil.
func NewRouter(handler *Handler, wsServer *websocket.Server, staticDir string, log *logger.Logger) *Router {
	r := &Router{
		handler:  handler,
		wsServer: wsServer,
		logger:   log.Named("router"),
	}
	if staticDir != "" {
		r.static = NewStaticFileHandler(staticDir, log)
	}
	return r
}

// Routes returns the HTTP handler for the whole server
func (rt *Router) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	h := rt.handler

	// Position server surface
	r.Get("/position", h.GetPosition)
	r.Get("/position/{known}", h.GetPositionsSince)
	r.Get("/airports/{lat}/{lon}/{radius}", h.GetAirports)
	r.Post("/management", h.PostManagement)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.GetHealth)
		r.Get("/config", h.GetConfig)
		r.Get("/scene", h.GetScene)
	})

	if rt.wsServer != nil {
		r.Get("/ws", rt.wsServer.HandleConnection)
	}

	if rt.static != nil {
		r.Handle("/*", rt.static)
	}

	return r
}

// corsMiddleware allows the map front-end to be served from another origin
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

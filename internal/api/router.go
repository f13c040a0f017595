package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/skyfence/airtrack/internal/config"
	"github.com/skyfence/airtrack/internal/storage/sqlite"
	"github.com/skyfence/airtrack/internal/tracking"
	"github.com/skyfence/airtrack/internal/websocket"
	"github.com/skyfence/airtrack/pkg/logger"
)

// Router assembles the HTTP surface of the server
type Router struct {
	handler *Handler
	config  *config.Config
	logger  *logger.Logger
}

// NewRouter creates a new API router
func NewRouter(trackingService *tracking.Service, trackStorage *sqlite.TrackStorage, cfg *config.Config, log *logger.Logger, wsServer *websocket.Server) *Router {
	return &Router{
		handler: NewHandler(trackingService, trackStorage, cfg, log, wsServer),
		config:  cfg,
		logger:  log.Named("api-router"),
	}
}

// Routes builds the chi route tree
func (rt *Router) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	allowedOrigins := rt.config.Server.CORSAllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", rt.handler.GetHealth)

	r.Route("/api/v1", func(r chi.Router) {
		// The websocket upgrade must not go through the timeout middleware,
		// it would kill long-lived connections.
		r.Get("/ws", rt.handler.HandleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Get("/tracks", rt.handler.GetTracks)
			r.Get("/tracks/{id}", rt.handler.GetTrackByID)
			r.Get("/tracks/{id}/history", rt.handler.GetTrackHistory)
			r.Get("/events", rt.handler.GetEvents)
			r.Get("/stats", rt.handler.GetStats)
			r.Post("/detections", rt.handler.SubmitDetections)
		})
	})

	return r
}

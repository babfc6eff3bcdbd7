// Package api exposes the backend over HTTP and WebSocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/bujo/bujo/internal/analytics"
	"github.com/bujo/bujo/internal/core"
	"github.com/bujo/bujo/internal/logging"
	"github.com/bujo/bujo/internal/storage"
	bujosync "github.com/bujo/bujo/internal/sync"
)

// Config bundles the server's dependencies.
type Config struct {
	Host string
	Port int

	Provider           bujosync.Provider
	CalendarID         string
	ServiceAccountFile string
	Timezone           string

	Reconciler *bujosync.Reconciler
	Engine     *analytics.Engine
	Events     *storage.EventStore
	Ideas      *storage.IdeaStore
	Inbox      *storage.InboxStore
}

// Server is the HTTP API server.
type Server struct {
	cfg    Config
	router *chi.Mux
	hub    *WebSocketHub
	http   *http.Server
}

// NewServer creates the server and mounts all routes.
func NewServer(cfg Config) *Server {
	s := &Server{
		cfg: cfg,
		hub: NewWebSocketHub(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.hub.HandleWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/calendar", func(r chi.Router) {
			r.Get("/events", s.handleListEvents)
			r.Post("/events", s.handleCreateEvent)
			r.Get("/events/{id}", s.handleGetEvent)
			r.Put("/events/{id}", s.handleUpdateEvent)
			r.Patch("/events/{id}", s.handleUpdateEvent)
			r.Delete("/events/{id}", s.handleDeleteEvent)
			r.Delete("/events/{id}/sync", s.handleDeleteEventSync)
			r.Post("/events/{id}/push", s.handlePushEvent)

			r.Get("/sync/today", s.handleSync("today"))
			r.Get("/sync/week", s.handleSync("week"))
			r.Get("/sync/month", s.handleSync("month"))
			r.Get("/sync/critical", s.handleSyncCritical)

			r.Get("/categories", s.handleCategories)
			r.Get("/health", s.handleCalendarHealth)
		})

		r.Route("/analytics", func(r chi.Router) {
			r.Get("/time-by-category", s.handleTimeByCategory)
			r.Get("/time-by-priority", s.handleTimeByPriority)
			r.Get("/event-count-by-category", s.handleEventCount)
			r.Get("/daily-summary", s.handleDailySummary)
			r.Get("/weekly-summary", s.handleWeeklySummary)
			r.Get("/category-breakdown", s.handleCategoryBreakdown)
			r.Get("/productivity-metrics", s.handleProductivityMetrics)
			r.Get("/trends", s.handleTrends)
			r.Get("/this-week", s.handleThisWeek)
			r.Get("/this-month", s.handleThisMonth)

			r.Route("/ideas", func(r chi.Router) {
				r.Get("/total", s.handleIdeasTotal)
				r.Get("/daily", s.handleIdeasDaily)
				r.Get("/weekly", s.handleIdeasWeekly)
				r.Get("/this-week", s.handleIdeasThisWeek)
				r.Get("/this-month", s.handleIdeasThisMonth)
			})

			r.Route("/inbox", func(r chi.Router) {
				r.Get("/total", s.handleInboxTotal)
				r.Get("/by-status", s.handleInboxByStatus)
				r.Get("/by-source", s.handleInboxBySource)
				r.Get("/daily", s.handleInboxDaily)
				r.Get("/weekly", s.handleInboxWeekly)
				r.Get("/this-week", s.handleInboxThisWeek)
				r.Get("/this-month", s.handleInboxThisMonth)
			})
		})

		r.Route("/ideas", func(r chi.Router) {
			r.Get("/", s.handleListIdeas)
			r.Post("/", s.handleCreateIdea)
			r.Get("/{id}", s.handleGetIdea)
		})

		r.Route("/inbox", func(r chi.Router) {
			r.Get("/", s.handleListInbox)
			r.Post("/", s.handleCreateInboxItem)
			r.Get("/{id}", s.handleGetInboxItem)
		})
	})

	s.router = r
	return s
}

// Router exposes the handler tree. Used by tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Hub returns the websocket hub.
func (s *Server) Hub() *WebSocketHub {
	return s.hub
}

// Start begins serving and blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	go s.hub.Run()

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	logging.WithField("addr", addr).Info("API server listening")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	count, err := s.cfg.Events.Count()
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":             "ok",
		"provider_available": s.cfg.Provider != nil && s.cfg.Provider.Available(),
		"calendar_id":        s.cfg.CalendarID,
		"cached_events":      count,
		"ws_clients":         s.hub.ClientCount(),
	})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			logging.Error("failed to encode response: %v", err)
		}
	}
}

// respondError maps domain sentinels to HTTP statuses.
func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, core.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, core.ErrEventNotFound),
		errors.Is(err, core.ErrIdeaNotFound),
		errors.Is(err, core.ErrInboxItemNotFound):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrDuplicateExternalID):
		status = http.StatusConflict
	case errors.Is(err, core.ErrProviderUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, core.ErrProviderRequest),
		errors.Is(err, core.ErrSyncPushFailed):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		logging.Error("request failed: %v", err)
	}
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

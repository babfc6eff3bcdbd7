package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bujo/bujo/internal/core"
	"github.com/bujo/bujo/internal/gcal"
	"github.com/bujo/bujo/internal/storage"
	bujosync "github.com/bujo/bujo/internal/sync"
)

// eventCreate is the payload for creating a local cache row. A missing
// external id gets a synthetic local placeholder.
type eventCreate struct {
	ExternalID    string    `json:"external_id"`
	Summary       string    `json:"summary"`
	Description   string    `json:"description"`
	Location      string    `json:"location"`
	StartDatetime time.Time `json:"start_datetime"`
	EndDatetime   time.Time `json:"end_datetime"`
	AllDay        bool      `json:"all_day"`
	Status        string    `json:"status"`
	Priority      string    `json:"priority"`
	Category      string    `json:"category"`
}

// eventUpdate carries only the fields the client wants changed. Nil means
// keep the current value; PUT and PATCH share these semantics.
type eventUpdate struct {
	Summary       *string    `json:"summary"`
	Description   *string    `json:"description"`
	Location      *string    `json:"location"`
	StartDatetime *time.Time `json:"start_datetime"`
	EndDatetime   *time.Time `json:"end_datetime"`
	AllDay        *bool      `json:"all_day"`
	Status        *string    `json:"status"`
	Priority      *string    `json:"priority"`
	Category      *string    `json:"category"`
}

func (req *eventUpdate) apply(ev *core.CalendarEvent) {
	if req.Summary != nil {
		ev.Summary = *req.Summary
	}
	if req.Description != nil {
		ev.Description = *req.Description
	}
	if req.Location != nil {
		ev.Location = *req.Location
	}
	if req.StartDatetime != nil {
		ev.StartDatetime = *req.StartDatetime
	}
	if req.EndDatetime != nil {
		ev.EndDatetime = *req.EndDatetime
	}
	if req.AllDay != nil {
		ev.AllDay = *req.AllDay
	}
	if req.Status != nil {
		ev.Status = *req.Status
	}
	if req.Priority != nil {
		ev.Priority = *req.Priority
	}
	if req.Category != nil {
		ev.Category = *req.Category
	}
}

func parseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid id", core.ErrValidation)
	}
	return id, nil
}

func parseTimeParam(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		// Accept bare dates too.
		t, err = time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be RFC3339 or YYYY-MM-DD", core.ErrValidation, name)
		}
	}
	return &t, nil
}

func parseIntParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	startAfter, err := parseTimeParam(r, "start_date")
	if err != nil {
		respondError(w, err)
		return
	}
	endBefore, err := parseTimeParam(r, "end_date")
	if err != nil {
		respondError(w, err)
		return
	}

	events, err := s.cfg.Events.Query(storage.Filter{
		Category:   r.URL.Query().Get("category"),
		Priority:   r.URL.Query().Get("priority"),
		Search:     r.URL.Query().Get("search"),
		StartAfter: startAfter,
		EndBefore:  endBefore,
		Limit:      parseIntParam(r, "limit", 100),
		Offset:     parseIntParam(r, "skip", 0),
	})
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, events)
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		respondError(w, err)
		return
	}

	ev, err := s.cfg.Events.GetByID(id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ev)
}

// handleCreateEvent stores a new local event. The row is cache-only until it
// is pushed or a pull overwrites it.
func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req eventCreate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, fmt.Errorf("%w: %v", core.ErrValidation, err))
		return
	}

	ev := &core.CalendarEvent{
		ExternalID:    req.ExternalID,
		Summary:       req.Summary,
		Description:   req.Description,
		Location:      req.Location,
		StartDatetime: req.StartDatetime,
		EndDatetime:   req.EndDatetime,
		AllDay:        req.AllDay,
		Status:        req.Status,
		Priority:      req.Priority,
		Category:      req.Category,
	}
	if ev.ExternalID == "" {
		ev.ExternalID = core.NewLocalID()
	}
	if ev.Status == "" {
		ev.Status = core.StatusConfirmed
	}

	if err := ev.Validate(); err != nil {
		respondError(w, err)
		return
	}
	if err := s.cfg.Events.Create(ev); err != nil {
		respondError(w, err)
		return
	}

	s.hub.Broadcast("event.created", ev)
	respondJSON(w, http.StatusCreated, ev)
}

// handleUpdateEvent applies the provided fields to a cached event. Bound
// changes are validated against the values that remain.
func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		respondError(w, err)
		return
	}

	ev, err := s.cfg.Events.GetByID(id)
	if err != nil {
		respondError(w, err)
		return
	}

	var req eventUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, fmt.Errorf("%w: %v", core.ErrValidation, err))
		return
	}
	req.apply(ev)

	if err := ev.Validate(); err != nil {
		respondError(w, err)
		return
	}
	if err := s.cfg.Events.Update(ev); err != nil {
		respondError(w, err)
		return
	}

	s.hub.Broadcast("event.updated", ev)
	respondJSON(w, http.StatusOK, ev)
}

// handleDeleteEvent removes an event from the local cache only. The provider
// copy, if any, is untouched.
func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		respondError(w, err)
		return
	}

	if err := s.cfg.Events.Delete(id); err != nil {
		respondError(w, err)
		return
	}

	s.hub.Broadcast("event.deleted", map[string]int64{"id": id})
	respondJSON(w, http.StatusOK, map[string]any{"deleted": true, "id": id})
}

// handleDeleteEventSync removes an event from the provider and the cache.
func (s *Server) handleDeleteEventSync(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		respondError(w, err)
		return
	}

	if s.cfg.Provider == nil || !s.cfg.Provider.Available() {
		respondError(w, core.ErrProviderUnavailable)
		return
	}

	if err := s.cfg.Reconciler.Delete(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}

	s.hub.Broadcast("event.deleted", map[string]int64{"id": id})
	respondJSON(w, http.StatusOK, map[string]any{"deleted": true, "id": id})
}

func (s *Server) handlePushEvent(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		respondError(w, err)
		return
	}

	if s.cfg.Provider == nil || !s.cfg.Provider.Available() {
		respondError(w, core.ErrProviderUnavailable)
		return
	}

	pushed, err := s.cfg.Reconciler.Push(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}

	s.hub.Broadcast("event.updated", pushed)
	respondJSON(w, http.StatusOK, pushed)
}

func (s *Server) handleSync(window string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var result *bujosync.PullResult
		var err error

		switch window {
		case "today":
			result, err = s.cfg.Reconciler.PullToday(r.Context())
		case "week":
			result, err = s.cfg.Reconciler.PullWeek(r.Context())
		default:
			result, err = s.cfg.Reconciler.PullMonth(r.Context())
		}
		if err != nil {
			respondError(w, err)
			return
		}

		s.hub.Broadcast("event.synced", result)
		respondJSON(w, http.StatusOK, result)
	}
}

func (s *Server) handleSyncCritical(w http.ResponseWriter, r *http.Request) {
	days := parseIntParam(r, "days_ahead", 7)

	result, err := s.cfg.Reconciler.PullCritical(r.Context(), days)
	if err != nil {
		respondError(w, err)
		return
	}

	s.hub.Broadcast("event.synced", result)
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, gcal.Categories())
}

// handleCalendarHealth reports the provider configuration state without
// touching the provider itself.
func (s *Server) handleCalendarHealth(w http.ResponseWriter, r *http.Request) {
	initialized := s.cfg.Provider != nil && s.cfg.Provider.Available()

	credentialsExist := false
	if s.cfg.ServiceAccountFile != "" {
		if _, err := os.Stat(s.cfg.ServiceAccountFile); err == nil {
			credentialsExist = true
		}
	}

	message := "Google Calendar service is configured and ready"
	switch {
	case !credentialsExist:
		message = fmt.Sprintf("service account file not found: %s", s.cfg.ServiceAccountFile)
	case !initialized:
		message = "Google Calendar service failed to initialize, check credentials and API access"
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"configured":          credentialsExist && initialized,
		"calendar_id":         s.cfg.CalendarID,
		"timezone":            s.cfg.Timezone,
		"credentials_file":    s.cfg.ServiceAccountFile,
		"credentials_exist":   credentialsExist,
		"service_initialized": initialized,
		"message":             message,
	})
}

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/bujo/bujo/internal/core"
)

func (s *Server) handleListIdeas(w http.ResponseWriter, r *http.Request) {
	ideas, err := s.cfg.Ideas.List(parseIntParam(r, "limit", 100), parseIntParam(r, "offset", 0))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ideas": ideas, "count": len(ideas)})
}

func (s *Server) handleGetIdea(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		respondError(w, err)
		return
	}

	idea, err := s.cfg.Ideas.GetByID(id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, idea)
}

func (s *Server) handleCreateIdea(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, fmt.Errorf("%w: %v", core.ErrValidation, err))
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		respondError(w, fmt.Errorf("%w: content is required", core.ErrValidation))
		return
	}

	idea := &core.Idea{Content: req.Content}
	if err := s.cfg.Ideas.Create(idea); err != nil {
		respondError(w, err)
		return
	}

	s.hub.Broadcast("idea.created", idea)
	respondJSON(w, http.StatusCreated, idea)
}

func (s *Server) handleListInbox(w http.ResponseWriter, r *http.Request) {
	items, err := s.cfg.Inbox.List(parseIntParam(r, "limit", 100), parseIntParam(r, "offset", 0))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (s *Server) handleGetInboxItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		respondError(w, err)
		return
	}

	item, err := s.cfg.Inbox.GetByID(id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func (s *Server) handleCreateInboxItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content  string `json:"content"`
		StatusID *int64 `json:"status_id"`
		Source   string `json:"source"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, fmt.Errorf("%w: %v", core.ErrValidation, err))
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		respondError(w, fmt.Errorf("%w: content is required", core.ErrValidation))
		return
	}

	item := &core.InboxItem{
		Content:  req.Content,
		StatusID: req.StatusID,
		Source:   req.Source,
	}
	if err := s.cfg.Inbox.Create(item); err != nil {
		respondError(w, err)
		return
	}

	s.hub.Broadcast("inbox.created", item)
	respondJSON(w, http.StatusCreated, item)
}

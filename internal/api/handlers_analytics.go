package api

import (
	"net/http"
	"time"

	"github.com/bujo/bujo/internal/analytics"
)

func (s *Server) handleTimeByCategory(w http.ResponseWriter, r *http.Request) {
	start, end, err := rangeParams(r)
	if err != nil {
		respondError(w, err)
		return
	}

	hours, err := s.cfg.Engine.TimeByCategory(start, end)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, hours)
}

func (s *Server) handleTimeByPriority(w http.ResponseWriter, r *http.Request) {
	start, end, err := rangeParams(r)
	if err != nil {
		respondError(w, err)
		return
	}

	hours, err := s.cfg.Engine.TimeByPriority(start, end)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, hours)
}

func (s *Server) handleEventCount(w http.ResponseWriter, r *http.Request) {
	start, end, err := rangeParams(r)
	if err != nil {
		respondError(w, err)
		return
	}

	counts, err := s.cfg.Engine.EventCountByCategory(start, end)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, counts)
}

func (s *Server) handleDailySummary(w http.ResponseWriter, r *http.Request) {
	start, end, err := rangeParams(r)
	if err != nil {
		respondError(w, err)
		return
	}

	days, err := s.cfg.Engine.DailySummary(start, end)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, days)
}

func (s *Server) handleWeeklySummary(w http.ResponseWriter, r *http.Request) {
	start, end, err := rangeParams(r)
	if err != nil {
		respondError(w, err)
		return
	}

	weeks, err := s.cfg.Engine.WeeklySummary(start, end)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, weeks)
}

func (s *Server) handleCategoryBreakdown(w http.ResponseWriter, r *http.Request) {
	start, end, err := rangeParams(r)
	if err != nil {
		respondError(w, err)
		return
	}

	breakdown, err := s.cfg.Engine.CategoryBreakdown(start, end)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, breakdown)
}

func (s *Server) handleProductivityMetrics(w http.ResponseWriter, r *http.Request) {
	start, end, err := rangeParams(r)
	if err != nil {
		respondError(w, err)
		return
	}

	metrics, err := s.cfg.Engine.ProductivityMetrics(start, end)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, metrics)
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	days := parseIntParam(r, "days", 30)

	trends, err := s.cfg.Engine.TimeUsageTrends(days)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, trends)
}

// handleThisWeek rolls up the current Monday-to-Sunday week: breakdown plus
// productivity metrics in one response.
func (s *Server) handleThisWeek(w http.ResponseWriter, r *http.Request) {
	start, end := s.cfg.Engine.WindowWeek()
	s.rollup(w, start, end, "week")
}

// handleThisMonth is the same rollup for the current calendar month.
func (s *Server) handleThisMonth(w http.ResponseWriter, r *http.Request) {
	start, end := s.cfg.Engine.WindowMonth()
	s.rollup(w, start, end, "month")
}

func (s *Server) rollup(w http.ResponseWriter, start, end time.Time, period string) {
	breakdown, err := s.cfg.Engine.CategoryBreakdown(&start, &end)
	if err != nil {
		respondError(w, err)
		return
	}
	metrics, err := s.cfg.Engine.ProductivityMetrics(&start, &end)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"period":       map[string]any{"name": period, "start": start, "end": end},
		"breakdown":    breakdown,
		"productivity": metrics,
	})
}

func (s *Server) handleIdeasTotal(w http.ResponseWriter, r *http.Request) {
	start, end, err := rangeParams(r)
	if err != nil {
		respondError(w, err)
		return
	}

	total, err := s.cfg.Engine.IdeasTotal(start, end)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"total_ideas": total})
}

func (s *Server) handleIdeasDaily(w http.ResponseWriter, r *http.Request) {
	start, end, err := rangeParams(r)
	if err != nil {
		respondError(w, err)
		return
	}

	daily, err := s.cfg.Engine.IdeasDaily(start, end)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, daily)
}

func (s *Server) handleIdeasWeekly(w http.ResponseWriter, r *http.Request) {
	start, end, err := rangeParams(r)
	if err != nil {
		respondError(w, err)
		return
	}

	weekly, err := s.cfg.Engine.IdeasWeekly(start, end)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, weekly)
}

func (s *Server) handleIdeasThisWeek(w http.ResponseWriter, r *http.Request) {
	start, end := s.cfg.Engine.WindowWeek()
	s.ideasPeriod(w, start, end, false)
}

func (s *Server) handleIdeasThisMonth(w http.ResponseWriter, r *http.Request) {
	start, end := s.cfg.Engine.WindowMonth()
	s.ideasPeriod(w, start, end, true)
}

func (s *Server) ideasPeriod(w http.ResponseWriter, start, end time.Time, withWeekly bool) {
	total, err := s.cfg.Engine.IdeasTotal(&start, &end)
	if err != nil {
		respondError(w, err)
		return
	}
	daily, err := s.cfg.Engine.IdeasDaily(&start, &end)
	if err != nil {
		respondError(w, err)
		return
	}

	body := map[string]any{
		"period":          analytics.Period{Start: start, End: end},
		"total_ideas":     total,
		"daily_breakdown": daily,
	}
	if withWeekly {
		weekly, err := s.cfg.Engine.IdeasWeekly(&start, &end)
		if err != nil {
			respondError(w, err)
			return
		}
		body["weekly_breakdown"] = weekly
	}
	respondJSON(w, http.StatusOK, body)
}

func (s *Server) handleInboxTotal(w http.ResponseWriter, r *http.Request) {
	start, end, err := rangeParams(r)
	if err != nil {
		respondError(w, err)
		return
	}

	total, err := s.cfg.Engine.InboxTotal(start, end)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"total_inbox": total})
}

func (s *Server) handleInboxByStatus(w http.ResponseWriter, r *http.Request) {
	start, end, err := rangeParams(r)
	if err != nil {
		respondError(w, err)
		return
	}

	counts, err := s.cfg.Engine.InboxByStatus(start, end)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, counts)
}

func (s *Server) handleInboxBySource(w http.ResponseWriter, r *http.Request) {
	start, end, err := rangeParams(r)
	if err != nil {
		respondError(w, err)
		return
	}

	counts, err := s.cfg.Engine.InboxBySource(start, end)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, counts)
}

func (s *Server) handleInboxDaily(w http.ResponseWriter, r *http.Request) {
	start, end, err := rangeParams(r)
	if err != nil {
		respondError(w, err)
		return
	}

	daily, err := s.cfg.Engine.InboxDaily(start, end)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, daily)
}

func (s *Server) handleInboxWeekly(w http.ResponseWriter, r *http.Request) {
	start, end, err := rangeParams(r)
	if err != nil {
		respondError(w, err)
		return
	}

	weekly, err := s.cfg.Engine.InboxWeekly(start, end)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, weekly)
}

func (s *Server) handleInboxThisWeek(w http.ResponseWriter, r *http.Request) {
	start, end := s.cfg.Engine.WindowWeek()
	s.inboxPeriod(w, start, end, false)
}

func (s *Server) handleInboxThisMonth(w http.ResponseWriter, r *http.Request) {
	start, end := s.cfg.Engine.WindowMonth()
	s.inboxPeriod(w, start, end, true)
}

func (s *Server) inboxPeriod(w http.ResponseWriter, start, end time.Time, withWeekly bool) {
	total, err := s.cfg.Engine.InboxTotal(&start, &end)
	if err != nil {
		respondError(w, err)
		return
	}
	byStatus, err := s.cfg.Engine.InboxByStatus(&start, &end)
	if err != nil {
		respondError(w, err)
		return
	}
	bySource, err := s.cfg.Engine.InboxBySource(&start, &end)
	if err != nil {
		respondError(w, err)
		return
	}
	daily, err := s.cfg.Engine.InboxDaily(&start, &end)
	if err != nil {
		respondError(w, err)
		return
	}

	body := map[string]any{
		"period":          analytics.Period{Start: start, End: end},
		"total_inbox":     total,
		"by_status":       byStatus,
		"by_source":       bySource,
		"daily_breakdown": daily,
	}
	if withWeekly {
		weekly, err := s.cfg.Engine.InboxWeekly(&start, &end)
		if err != nil {
			respondError(w, err)
			return
		}
		body["weekly_breakdown"] = weekly
	}
	respondJSON(w, http.StatusOK, body)
}

func rangeParams(r *http.Request) (*time.Time, *time.Time, error) {
	start, err := parseTimeParam(r, "start_date")
	if err != nil {
		return nil, nil, err
	}
	end, err := parseTimeParam(r, "end_date")
	if err != nil {
		return nil, nil, err
	}
	return start, end, nil
}

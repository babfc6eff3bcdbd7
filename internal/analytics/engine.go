// Package analytics aggregates cached events, ideas and inbox items.
// Aggregations fold cached rows in memory; only plain counts are pushed down
// to SQL. Event filters are inclusive on both bounds: an event contributes
// when it lies entirely inside the requested range.
package analytics

import (
	"sort"
	"strconv"
	"time"

	"github.com/bujo/bujo/internal/core"
	"github.com/bujo/bujo/internal/storage"
)

// Engine computes aggregations over the cached rows.
type Engine struct {
	events *storage.EventStore
	ideas  *storage.IdeaStore
	inbox  *storage.InboxStore
	loc    *time.Location
	now    func() time.Time
}

// NewEngine creates an analytics engine. Day and week boundaries are computed
// in loc.
func NewEngine(events *storage.EventStore, ideas *storage.IdeaStore, inbox *storage.InboxStore, loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{
		events: events,
		ideas:  ideas,
		inbox:  inbox,
		loc:    loc,
		now:    time.Now,
	}
}

// TimeByCategory sums event hours per category. Events without a category are
// bucketed under the fallback key.
func (e *Engine) TimeByCategory(start, end *time.Time) (map[string]float64, error) {
	events, err := e.events.InRange(start, end)
	if err != nil {
		return nil, err
	}

	hours := make(map[string]float64)
	for _, ev := range events {
		category := ev.Category
		if category == "" {
			category = core.NoCategory
		}
		hours[category] += ev.Hours()
	}
	return hours, nil
}

// TimeByPriority sums event hours per priority.
func (e *Engine) TimeByPriority(start, end *time.Time) (map[string]float64, error) {
	events, err := e.events.InRange(start, end)
	if err != nil {
		return nil, err
	}

	hours := make(map[string]float64)
	for _, ev := range events {
		priority := ev.Priority
		if priority == "" {
			priority = core.NoPriority
		}
		hours[priority] += ev.Hours()
	}
	return hours, nil
}

// EventCountByCategory counts events per category via a grouped query.
func (e *Engine) EventCountByCategory(start, end *time.Time) (map[string]int, error) {
	return e.events.CountByCategory(start, end)
}

// DailyEntry is one calendar day of event activity.
type DailyEntry struct {
	Date       string  `json:"date"`
	TotalHours float64 `json:"total_hours"`
	EventCount int     `json:"event_count"`
}

// DailySummary groups events by their start date in the configured zone,
// ordered by date ascending.
func (e *Engine) DailySummary(start, end *time.Time) ([]DailyEntry, error) {
	events, err := e.events.InRange(start, end)
	if err != nil {
		return nil, err
	}

	days := make(map[string]*DailyEntry)
	for _, ev := range events {
		key := ev.StartDatetime.In(e.loc).Format("2006-01-02")
		day, ok := days[key]
		if !ok {
			day = &DailyEntry{Date: key}
			days[key] = day
		}
		day.TotalHours += ev.Hours()
		day.EventCount++
	}

	result := make([]DailyEntry, 0, len(days))
	for _, day := range days {
		result = append(result, *day)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date < result[j].Date })
	return result, nil
}

// WeeklyEntry is one ISO week of event activity.
type WeeklyEntry struct {
	Year       int     `json:"year"`
	Week       int     `json:"week"`
	TotalHours float64 `json:"total_hours"`
	EventCount int     `json:"event_count"`
}

// WeeklySummary groups events by the ISO week of their start date, ordered by
// (year, week) ascending.
func (e *Engine) WeeklySummary(start, end *time.Time) ([]WeeklyEntry, error) {
	events, err := e.events.InRange(start, end)
	if err != nil {
		return nil, err
	}

	weeks := make(map[[2]int]*WeeklyEntry)
	for _, ev := range events {
		year, week := ev.StartDatetime.In(e.loc).ISOWeek()
		key := [2]int{year, week}
		bucket, ok := weeks[key]
		if !ok {
			bucket = &WeeklyEntry{Year: year, Week: week}
			weeks[key] = bucket
		}
		bucket.TotalHours += ev.Hours()
		bucket.EventCount++
	}

	result := make([]WeeklyEntry, 0, len(weeks))
	for _, bucket := range weeks {
		result = append(result, *bucket)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Year != result[j].Year {
			return result[i].Year < result[j].Year
		}
		return result[i].Week < result[j].Week
	})
	return result, nil
}

// CategoryStat combines the hour and count views of one category.
type CategoryStat struct {
	TotalHours        float64 `json:"total_hours"`
	EventCount        int     `json:"event_count"`
	AvgHoursPerEvent  float64 `json:"avg_hours_per_event"`
	PercentageOfTotal float64 `json:"percentage_of_total"`
}

// CategoryBreakdown merges time and count aggregations over the union of
// their category keys. Empty denominators yield zero rather than an error.
func (e *Engine) CategoryBreakdown(start, end *time.Time) (map[string]*CategoryStat, error) {
	hours, err := e.TimeByCategory(start, end)
	if err != nil {
		return nil, err
	}
	counts, err := e.EventCountByCategory(start, end)
	if err != nil {
		return nil, err
	}

	var totalHours float64
	for _, h := range hours {
		totalHours += h
	}

	keys := make(map[string]bool, len(hours)+len(counts))
	for category := range hours {
		keys[category] = true
	}
	for category := range counts {
		keys[category] = true
	}

	breakdown := make(map[string]*CategoryStat, len(keys))
	for category := range keys {
		stat := &CategoryStat{
			TotalHours: hours[category],
			EventCount: counts[category],
		}
		if stat.EventCount > 0 {
			stat.AvgHoursPerEvent = stat.TotalHours / float64(stat.EventCount)
		}
		if totalHours > 0 {
			stat.PercentageOfTotal = stat.TotalHours / totalHours * 100
		}
		breakdown[category] = stat
	}
	return breakdown, nil
}

// ProductivityMetrics summarizes the categories the journal method treats as
// signal, with each share expressed as a percentage of total hours.
type ProductivityMetrics struct {
	TotalHours             float64 `json:"total_hours"`
	TrabajoHours           float64 `json:"trabajo_hours"`
	SaludHours             float64 `json:"salud_hours"`
	OcioHours              float64 `json:"ocio_hours"`
	TrabajoPercentage      float64 `json:"trabajo_percentage"`
	SaludPercentage        float64 `json:"salud_percentage"`
	OcioPercentage         float64 `json:"ocio_percentage"`
	HighPriorityHours      float64 `json:"high_priority_hours"`
	HighPriorityPercentage float64 `json:"high_priority_percentage"`
}

// ProductivityMetrics computes the headline metrics for a range. High
// priority combines the high and critical buckets.
func (e *Engine) ProductivityMetrics(start, end *time.Time) (*ProductivityMetrics, error) {
	byCategory, err := e.TimeByCategory(start, end)
	if err != nil {
		return nil, err
	}
	byPriority, err := e.TimeByPriority(start, end)
	if err != nil {
		return nil, err
	}

	m := &ProductivityMetrics{
		TrabajoHours:      byCategory[core.CategoryTrabajo],
		SaludHours:        byCategory[core.CategorySalud],
		OcioHours:         byCategory[core.CategoryOcio],
		HighPriorityHours: byPriority[core.PriorityHigh] + byPriority[core.PriorityCritical],
	}
	for _, h := range byCategory {
		m.TotalHours += h
	}
	if m.TotalHours > 0 {
		m.TrabajoPercentage = m.TrabajoHours / m.TotalHours * 100
		m.SaludPercentage = m.SaludHours / m.TotalHours * 100
		m.OcioPercentage = m.OcioHours / m.TotalHours * 100
		m.HighPriorityPercentage = m.HighPriorityHours / m.TotalHours * 100
	}
	return m, nil
}

// Trend compares a metric against the preceding period of the same length.
type Trend struct {
	Value            float64 `json:"value"`
	Change           float64 `json:"change"`
	ChangePercentage float64 `json:"change_percentage"`
}

// Period marks the bounds of the window a report covers.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Trends holds the per-metric comparison for the trend report.
type Trends struct {
	PeriodDays        int    `json:"period_days"`
	CurrentPeriod     Period `json:"current_period"`
	TotalHours        Trend  `json:"total_hours"`
	TrabajoHours      Trend  `json:"trabajo_hours"`
	SaludHours        Trend  `json:"salud_hours"`
	OcioHours         Trend  `json:"ocio_hours"`
	HighPriorityHours Trend  `json:"high_priority_hours"`
}

// trendOf keeps a flat zero-change entry when the previous period is empty,
// so a metric's first appearance never reports an infinite jump.
func trendOf(current, previous float64) Trend {
	if previous == 0 {
		return Trend{Value: current}
	}
	change := current - previous
	return Trend{
		Value:            current,
		Change:           change,
		ChangePercentage: change / previous * 100,
	}
}

// TimeUsageTrends compares the last N days of productivity metrics against
// the N days before them.
func (e *Engine) TimeUsageTrends(days int) (*Trends, error) {
	if days < 1 {
		days = 30
	}

	now := e.now().In(e.loc)
	periodStart := now.AddDate(0, 0, -days)
	previousStart := periodStart.AddDate(0, 0, -days)

	current, err := e.ProductivityMetrics(&periodStart, &now)
	if err != nil {
		return nil, err
	}
	previous, err := e.ProductivityMetrics(&previousStart, &periodStart)
	if err != nil {
		return nil, err
	}

	return &Trends{
		PeriodDays:        days,
		CurrentPeriod:     Period{Start: periodStart, End: now},
		TotalHours:        trendOf(current.TotalHours, previous.TotalHours),
		TrabajoHours:      trendOf(current.TrabajoHours, previous.TrabajoHours),
		SaludHours:        trendOf(current.SaludHours, previous.SaludHours),
		OcioHours:         trendOf(current.OcioHours, previous.OcioHours),
		HighPriorityHours: trendOf(current.HighPriorityHours, previous.HighPriorityHours),
	}, nil
}

// DateCount is a per-day capture count.
type DateCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// WeekCount is a per-ISO-week capture count.
type WeekCount struct {
	Year  int `json:"year"`
	Week  int `json:"week"`
	Count int `json:"count"`
}

// IdeasTotal counts ideas created within the optional bounds.
func (e *Engine) IdeasTotal(start, end *time.Time) (int, error) {
	return e.ideas.CountBetween(start, end)
}

// IdeasDaily counts ideas per creation date, ordered ascending.
func (e *Engine) IdeasDaily(start, end *time.Time) ([]DateCount, error) {
	ideas, err := e.ideas.ListBetween(start, end)
	if err != nil {
		return nil, err
	}

	times := make([]time.Time, len(ideas))
	for i, idea := range ideas {
		times[i] = idea.CreatedAt
	}
	return e.foldDaily(times), nil
}

// IdeasWeekly counts ideas per ISO week of creation, ordered ascending.
func (e *Engine) IdeasWeekly(start, end *time.Time) ([]WeekCount, error) {
	ideas, err := e.ideas.ListBetween(start, end)
	if err != nil {
		return nil, err
	}

	times := make([]time.Time, len(ideas))
	for i, idea := range ideas {
		times[i] = idea.CreatedAt
	}
	return e.foldWeekly(times), nil
}

// InboxTotal counts inbox items created within the optional bounds.
func (e *Engine) InboxTotal(start, end *time.Time) (int, error) {
	return e.inbox.CountBetween(start, end)
}

// InboxByStatus counts inbox items per triage status id. Untriaged items
// count under the fallback key.
func (e *Engine) InboxByStatus(start, end *time.Time) (map[string]int, error) {
	items, err := e.inbox.ListBetween(start, end)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, item := range items {
		status := core.NoStatus
		if item.StatusID != nil {
			status = strconv.FormatInt(*item.StatusID, 10)
		}
		counts[status]++
	}
	return counts, nil
}

// InboxBySource counts inbox items per capture source. Items with no recorded
// source count as unknown.
func (e *Engine) InboxBySource(start, end *time.Time) (map[string]int, error) {
	items, err := e.inbox.ListBetween(start, end)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, item := range items {
		source := item.Source
		if source == "" {
			source = core.NoSource
		}
		counts[source]++
	}
	return counts, nil
}

// InboxDaily counts inbox items per creation date, ordered ascending.
func (e *Engine) InboxDaily(start, end *time.Time) ([]DateCount, error) {
	items, err := e.inbox.ListBetween(start, end)
	if err != nil {
		return nil, err
	}

	times := make([]time.Time, len(items))
	for i, item := range items {
		times[i] = item.CreatedAt
	}
	return e.foldDaily(times), nil
}

// InboxWeekly counts inbox items per ISO week of creation, ordered ascending.
func (e *Engine) InboxWeekly(start, end *time.Time) ([]WeekCount, error) {
	items, err := e.inbox.ListBetween(start, end)
	if err != nil {
		return nil, err
	}

	times := make([]time.Time, len(items))
	for i, item := range items {
		times[i] = item.CreatedAt
	}
	return e.foldWeekly(times), nil
}

func (e *Engine) foldDaily(times []time.Time) []DateCount {
	counts := make(map[string]int)
	for _, t := range times {
		counts[t.In(e.loc).Format("2006-01-02")]++
	}

	result := make([]DateCount, 0, len(counts))
	for date, count := range counts {
		result = append(result, DateCount{Date: date, Count: count})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date < result[j].Date })
	return result
}

func (e *Engine) foldWeekly(times []time.Time) []WeekCount {
	counts := make(map[[2]int]int)
	for _, t := range times {
		year, week := t.In(e.loc).ISOWeek()
		counts[[2]int{year, week}]++
	}

	result := make([]WeekCount, 0, len(counts))
	for key, count := range counts {
		result = append(result, WeekCount{Year: key[0], Week: key[1], Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Year != result[j].Year {
			return result[i].Year < result[j].Year
		}
		return result[i].Week < result[j].Week
	})
	return result
}

// WindowWeek returns Monday 00:00 through Sunday 23:59:59 of the current week
// in the configured zone.
func (e *Engine) WindowWeek() (time.Time, time.Time) {
	now := e.now().In(e.loc)
	offset := (int(now.Weekday()) + 6) % 7
	monday := time.Date(now.Year(), now.Month(), now.Day()-offset, 0, 0, 0, 0, e.loc)
	end := time.Date(monday.Year(), monday.Month(), monday.Day()+6, 23, 59, 59, 0, e.loc)
	return monday, end
}

// WindowMonth returns the first instant of the current month through one
// second before the next month begins.
func (e *Engine) WindowMonth() (time.Time, time.Time) {
	now := e.now().In(e.loc)
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, e.loc)
	end := start.AddDate(0, 1, 0).Add(-time.Second)
	return start, end
}

// Package sync reconciles the local event cache with the calendar provider.
// Pulls are upsert-only: provider state wins for every row it returns, and
// rows the provider no longer knows about are left alone.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bujo/bujo/internal/core"
	"github.com/bujo/bujo/internal/logging"
	"github.com/bujo/bujo/internal/storage"
)

// Provider is the calendar backend the reconciler talks to.
type Provider interface {
	Available() bool
	EventsInRange(ctx context.Context, start, end time.Time) ([]core.CalendarEvent, error)
	CreateEvent(ctx context.Context, ev *core.CalendarEvent) (string, error)
	UpdateEvent(ctx context.Context, externalID string, ev *core.CalendarEvent) error
	DeleteEvent(ctx context.Context, externalID string) (bool, error)
}

// PullResult summarizes one pull run.
type PullResult struct {
	Window  string                `json:"window"`
	Fetched int                   `json:"fetched"`
	Synced  int                   `json:"synced"`
	Created int                   `json:"created"`
	Updated int                   `json:"updated"`
	Events  []*core.CalendarEvent `json:"events"`
}

// Reconciler coordinates pulls and pushes between the provider and the cache.
type Reconciler struct {
	provider Provider
	events   *storage.EventStore
	loc      *time.Location
	now      func() time.Time
}

// NewReconciler creates a reconciler. Window boundaries are computed in loc.
func NewReconciler(provider Provider, events *storage.EventStore, loc *time.Location) *Reconciler {
	if loc == nil {
		loc = time.UTC
	}
	return &Reconciler{
		provider: provider,
		events:   events,
		loc:      loc,
		now:      time.Now,
	}
}

// WindowToday returns the bounds of the current day in the configured zone.
func (r *Reconciler) WindowToday() (time.Time, time.Time) {
	now := r.now().In(r.loc)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, r.loc)
	end := time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 59, 999999000, r.loc)
	return start, end
}

// WindowWeek returns Monday 00:00 through Sunday 23:59:59 of the current week.
func (r *Reconciler) WindowWeek() (time.Time, time.Time) {
	now := r.now().In(r.loc)
	offset := (int(now.Weekday()) + 6) % 7
	monday := time.Date(now.Year(), now.Month(), now.Day()-offset, 0, 0, 0, 0, r.loc)
	end := time.Date(monday.Year(), monday.Month(), monday.Day()+6, 23, 59, 59, 0, r.loc)
	return monday, end
}

// WindowMonth returns the first instant of the current month through one
// second before the next month begins. December rolls over to January.
func (r *Reconciler) WindowMonth() (time.Time, time.Time) {
	now := r.now().In(r.loc)
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, r.loc)
	end := start.AddDate(0, 1, 0).Add(-time.Second)
	return start, end
}

// WindowCritical returns [now, now+days]. days is clamped to 1..30.
func (r *Reconciler) WindowCritical(days int) (time.Time, time.Time) {
	if days < 1 {
		days = 1
	}
	if days > 30 {
		days = 30
	}
	now := r.now().In(r.loc)
	return now, now.AddDate(0, 0, days)
}

// Pull fetches provider events in [start, end] and upserts each into the
// cache. One bad row does not abort the run; a failed fetch does.
func (r *Reconciler) Pull(ctx context.Context, window string, start, end time.Time) (*PullResult, error) {
	candidates, err := r.provider.EventsInRange(ctx, start, end)
	if err != nil {
		return nil, err
	}

	result := &PullResult{Window: window, Fetched: len(candidates)}
	syncedAt := r.now().UTC()

	for i := range candidates {
		ev, created, err := r.events.Upsert(&candidates[i], syncedAt)
		if err != nil {
			logging.WithField("external_id", candidates[i].ExternalID).Error("failed to cache pulled event: %v", err)
			continue
		}
		result.Synced++
		if created {
			result.Created++
		} else {
			result.Updated++
		}
		result.Events = append(result.Events, ev)
	}

	logging.WithFields(map[string]interface{}{
		"window":  window,
		"fetched": result.Fetched,
		"synced":  result.Synced,
	}).Info("pull complete")

	return result, nil
}

// PullToday syncs the current day.
func (r *Reconciler) PullToday(ctx context.Context) (*PullResult, error) {
	start, end := r.WindowToday()
	return r.Pull(ctx, "today", start, end)
}

// PullWeek syncs the current Monday-to-Sunday week.
func (r *Reconciler) PullWeek(ctx context.Context) (*PullResult, error) {
	start, end := r.WindowWeek()
	return r.Pull(ctx, "week", start, end)
}

// PullMonth syncs the current calendar month.
func (r *Reconciler) PullMonth(ctx context.Context) (*PullResult, error) {
	start, end := r.WindowMonth()
	return r.Pull(ctx, "month", start, end)
}

// PullCritical syncs the next N days starting now.
func (r *Reconciler) PullCritical(ctx context.Context, days int) (*PullResult, error) {
	start, end := r.WindowCritical(days)
	return r.Pull(ctx, "critical", start, end)
}

// Push sends a cached event to the provider. A local-only event is created
// remotely and its placeholder id is swapped for the provider id; everything
// else is a full remote replace. The cache row is only touched on success.
func (r *Reconciler) Push(ctx context.Context, id int64) (*core.CalendarEvent, error) {
	ev, err := r.events.GetByID(id)
	if err != nil {
		return nil, err
	}

	if ev.IsLocal() {
		externalID, err := r.provider.CreateEvent(ctx, ev)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrSyncPushFailed, err)
		}
		ev.ExternalID = externalID
	} else {
		if err := r.provider.UpdateEvent(ctx, ev.ExternalID, ev); err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrSyncPushFailed, err)
		}
	}

	ev.SyncedAt = r.now().UTC()
	if err := r.events.Update(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// Delete removes an event locally and, when it has a provider id, remotely.
// Remote failures are logged; the local row is always removed.
func (r *Reconciler) Delete(ctx context.Context, id int64) error {
	ev, err := r.events.GetByID(id)
	if err != nil {
		return err
	}

	if !ev.IsLocal() {
		deleted, err := r.provider.DeleteEvent(ctx, ev.ExternalID)
		if err != nil && !errors.Is(err, core.ErrProviderUnavailable) {
			logging.WithField("external_id", ev.ExternalID).Error("remote delete failed: %v", err)
		}
		if err == nil && !deleted {
			logging.WithField("external_id", ev.ExternalID).Warn("event already absent at provider")
		}
	}

	return r.events.Delete(id)
}

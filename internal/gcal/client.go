// Package gcal wraps the Google Calendar API for the event cache.
// Authentication uses a service account, which fits a single-user backend.
package gcal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/bujo/bujo/internal/core"
	"github.com/bujo/bujo/internal/logging"
	"github.com/bujo/bujo/internal/metadata"
)

// requestTimeout bounds every provider call so a stalled API cannot hang a
// sync run.
const requestTimeout = 30 * time.Second

const maxResults = 100

// ColorMap maps categories to Google Calendar color ids.
// https://developers.google.com/calendar/api/v3/reference/colors
var ColorMap = map[string]string{
	core.CategoryTrabajo:  "9",  // Arándano
	core.CategorySalud:    "10", // Albahaca
	core.CategoryOcio:     "11", // Tomate
	core.CategoryRutina:   "5",  // Banana
	core.CategoryPersonal: "1",  // Lavanda
	core.CategoryEstudio:  "7",  // Pavo real
	core.CategoryFamilia:  "4",  // Flamingo
	core.CategorySocial:   "3",  // Uva
}

// DefaultColor is used for unmapped or absent categories.
const DefaultColor = "8" // Grafito

var colorNames = map[string]string{
	"1":  "Lavanda",
	"2":  "Salvia",
	"3":  "Uva",
	"4":  "Flamingo",
	"5":  "Banana",
	"6":  "Mandarina",
	"7":  "Pavo real",
	"8":  "Grafito",
	"9":  "Arándano",
	"10": "Albahaca",
	"11": "Tomate",
}

// Config for creating a calendar client
type Config struct {
	ServiceAccountFile string
	CalendarID         string
	Location           *time.Location
}

// Client wraps the Google Calendar API. A client whose credentials could not
// be loaded stays permanently disabled: every operation fails fast with
// core.ErrProviderUnavailable until the configuration changes.
type Client struct {
	service    *calendar.Service
	calendarID string
	loc        *time.Location
}

// New creates a calendar client from service account credentials. Credential
// problems disable the client rather than failing construction, so the rest
// of the backend keeps working without a calendar.
func New(ctx context.Context, cfg Config) *Client {
	c := &Client{
		calendarID: cfg.CalendarID,
		loc:        cfg.Location,
	}
	if c.calendarID == "" {
		c.calendarID = "primary"
	}
	if c.loc == nil {
		c.loc = time.UTC
	}

	data, err := os.ReadFile(cfg.ServiceAccountFile)
	if err != nil {
		logging.Error("Google Calendar: cannot read service account file %s: %v", cfg.ServiceAccountFile, err)
		return c
	}

	creds, err := google.JWTConfigFromJSON(data, calendar.CalendarScope)
	if err != nil {
		logging.Error("Google Calendar: invalid service account credentials: %v", err)
		return c
	}

	service, err := calendar.NewService(ctx, option.WithTokenSource(creds.TokenSource(ctx)))
	if err != nil {
		logging.Error("Google Calendar: failed to create service: %v", err)
		return c
	}

	c.service = service
	logging.WithFields(map[string]interface{}{
		"calendar_id": c.calendarID,
		"timezone":    c.loc.String(),
	}).Info("Google Calendar service initialized")
	return c
}

// NewFromService wires an already-constructed calendar service. Used by tests
// to point the client at a fake endpoint.
func NewFromService(service *calendar.Service, calendarID string, loc *time.Location) *Client {
	if calendarID == "" {
		calendarID = "primary"
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Client{service: service, calendarID: calendarID, loc: loc}
}

// Available reports whether the client was successfully initialized.
func (c *Client) Available() bool {
	return c.service != nil
}

// CalendarID returns the configured calendar identifier.
func (c *Client) CalendarID() string {
	return c.calendarID
}

// Location returns the zone used for window and payload formatting.
func (c *Client) Location() *time.Location {
	return c.loc
}

// EventsInRange fetches events overlapping [start, end], parsed into cache
// row candidates and ordered by start time ascending.
func (c *Client) EventsInRange(ctx context.Context, start, end time.Time) ([]core.CalendarEvent, error) {
	if c.service == nil {
		return nil, core.ErrProviderUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	result, err := c.service.Events.List(c.calendarID).
		Context(ctx).
		TimeMin(start.In(c.loc).Format(time.RFC3339)).
		TimeMax(end.In(c.loc).Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(maxResults).
		Do()
	if err != nil {
		return nil, fmt.Errorf("%w: list events: %v", core.ErrProviderRequest, err)
	}

	events := make([]core.CalendarEvent, 0, len(result.Items))
	for _, item := range result.Items {
		ev, err := c.parseEvent(item)
		if err != nil {
			logging.WithField("event_id", item.Id).Warn("skipping unparseable event: %v", err)
			continue
		}
		events = append(events, ev)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].StartDatetime.Before(events[j].StartDatetime)
	})

	return events, nil
}

// CreateEvent creates the event at the provider and returns the assigned id.
func (c *Client) CreateEvent(ctx context.Context, ev *core.CalendarEvent) (string, error) {
	if c.service == nil {
		return "", core.ErrProviderUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	created, err := c.service.Events.Insert(c.calendarID, c.formatEvent(ev)).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("%w: create event: %v", core.ErrProviderRequest, err)
	}

	logging.WithField("external_id", created.Id).Info("event created in Google Calendar")
	return created.Id, nil
}

// UpdateEvent replaces the provider event identified by externalID with the
// full current field set.
func (c *Client) UpdateEvent(ctx context.Context, externalID string, ev *core.CalendarEvent) error {
	if c.service == nil {
		return core.ErrProviderUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	_, err := c.service.Events.Update(c.calendarID, externalID, c.formatEvent(ev)).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%w: update event %s: %v", core.ErrProviderRequest, externalID, err)
	}

	logging.WithField("external_id", externalID).Info("event updated in Google Calendar")
	return nil
}

// DeleteEvent removes the provider event. An already-absent remote event is
// reported as a false return, not an error; other failures carry the error.
func (c *Client) DeleteEvent(ctx context.Context, externalID string) (bool, error) {
	if c.service == nil {
		return false, core.ErrProviderUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	err := c.service.Events.Delete(c.calendarID, externalID).Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == 404 {
			logging.WithField("external_id", externalID).Warn("event not found in Google Calendar")
			return false, nil
		}
		return false, fmt.Errorf("%w: delete event %s: %v", core.ErrProviderRequest, externalID, err)
	}

	logging.WithField("external_id", externalID).Info("event deleted from Google Calendar")
	return true, nil
}

// CategoryColor describes the provider color bound to a category.
type CategoryColor struct {
	ColorID   string `json:"color_id"`
	ColorName string `json:"color_name"`
}

// Categories lists every category with its color, plus the fallback entry.
func Categories() map[string]CategoryColor {
	categories := make(map[string]CategoryColor, len(ColorMap)+1)
	for category, colorID := range ColorMap {
		categories[category] = CategoryColor{ColorID: colorID, ColorName: colorNames[colorID]}
	}
	categories[core.NoCategory] = CategoryColor{ColorID: DefaultColor, ColorName: colorNames[DefaultColor]}
	return categories
}

// parseEvent converts a raw provider event into a cache row candidate.
// All-day events carry date-only bounds; timed events carry RFC3339.
func (c *Client) parseEvent(item *calendar.Event) (core.CalendarEvent, error) {
	var ev core.CalendarEvent

	if item.Start == nil || item.End == nil {
		return ev, fmt.Errorf("event %s has no start or end", item.Id)
	}

	allDay := item.Start.Date != ""

	var start, end time.Time
	var err error
	if allDay {
		start, err = time.ParseInLocation("2006-01-02", item.Start.Date, c.loc)
		if err != nil {
			return ev, fmt.Errorf("bad start date %q: %w", item.Start.Date, err)
		}
		end, err = time.ParseInLocation("2006-01-02", item.End.Date, c.loc)
		if err != nil {
			return ev, fmt.Errorf("bad end date %q: %w", item.End.Date, err)
		}
	} else {
		start, err = time.Parse(time.RFC3339, item.Start.DateTime)
		if err != nil {
			return ev, fmt.Errorf("bad start datetime %q: %w", item.Start.DateTime, err)
		}
		end, err = time.Parse(time.RFC3339, item.End.DateTime)
		if err != nil {
			return ev, fmt.Errorf("bad end datetime %q: %w", item.End.DateTime, err)
		}
	}

	if !end.After(start) {
		return ev, fmt.Errorf("event %s: end %v not after start %v", item.Id, end, start)
	}

	summary := item.Summary
	if summary == "" {
		summary = "Sin título"
	}
	status := item.Status
	if status == "" {
		status = "confirmed"
	}

	extra := metadata.Decode(item.Description)
	priority, category := metadata.Fields(extra)

	ev = core.CalendarEvent{
		ExternalID:    item.Id,
		Summary:       summary,
		Description:   item.Description,
		Location:      item.Location,
		StartDatetime: start,
		EndDatetime:   end,
		AllDay:        allDay,
		Status:        status,
		Priority:      priority,
		Category:      category,
		ExtraData:     extra,
	}
	return ev, nil
}

// formatEvent converts a cache row into the provider payload. The metadata
// block is regenerated from the current priority and category on every push.
func (c *Client) formatEvent(ev *core.CalendarEvent) *calendar.Event {
	summary := ev.Summary
	if summary == "" {
		summary = "Sin título"
	}
	status := ev.Status
	if status == "" {
		status = "confirmed"
	}

	colorID := DefaultColor
	if id, ok := ColorMap[ev.Category]; ok {
		colorID = id
	}

	payload := &calendar.Event{
		Summary:     summary,
		Location:    ev.Location,
		Status:      status,
		ColorId:     colorID,
		Description: metadata.Append(ev.Description, metadata.Encode(ev.Priority, ev.Category)),
	}

	if ev.AllDay {
		payload.Start = &calendar.EventDateTime{Date: ev.StartDatetime.In(c.loc).Format("2006-01-02")}
		payload.End = &calendar.EventDateTime{Date: ev.EndDatetime.In(c.loc).Format("2006-01-02")}
	} else {
		payload.Start = &calendar.EventDateTime{
			DateTime: ev.StartDatetime.In(c.loc).Format(time.RFC3339),
			TimeZone: c.loc.String(),
		}
		payload.End = &calendar.EventDateTime{
			DateTime: ev.EndDatetime.In(c.loc).Format(time.RFC3339),
			TimeZone: c.loc.String(),
		}
	}

	return payload
}

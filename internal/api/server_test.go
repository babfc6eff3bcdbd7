package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bujo/bujo/internal/analytics"
	"github.com/bujo/bujo/internal/core"
	"github.com/bujo/bujo/internal/storage"
	bujosync "github.com/bujo/bujo/internal/sync"
)

type stubProvider struct {
	available bool
	events    []core.CalendarEvent
	listErr   error
	createID  string
	createErr error

	deletedCalls []string
}

func (p *stubProvider) Available() bool { return p.available }

func (p *stubProvider) EventsInRange(ctx context.Context, start, end time.Time) ([]core.CalendarEvent, error) {
	if p.listErr != nil {
		return nil, p.listErr
	}
	return p.events, nil
}

func (p *stubProvider) CreateEvent(ctx context.Context, ev *core.CalendarEvent) (string, error) {
	if p.createErr != nil {
		return "", p.createErr
	}
	if p.createID == "" {
		return "prov_generated", nil
	}
	return p.createID, nil
}

func (p *stubProvider) UpdateEvent(ctx context.Context, externalID string, ev *core.CalendarEvent) error {
	return nil
}

func (p *stubProvider) DeleteEvent(ctx context.Context, externalID string) (bool, error) {
	p.deletedCalls = append(p.deletedCalls, externalID)
	return true, nil
}

func testServer(t *testing.T, provider bujosync.Provider) (*Server, *storage.EventStore) {
	t.Helper()

	db, err := storage.Open(storage.Config{InMemory: true})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	events := storage.NewEventStore(db)
	ideas := storage.NewIdeaStore(db)
	inbox := storage.NewInboxStore(db)

	srv := NewServer(Config{
		Provider:   provider,
		CalendarID: "primary",
		Timezone:   "America/Lima",
		Reconciler: bujosync.NewReconciler(provider, events, time.UTC),
		Engine:     analytics.NewEngine(events, ideas, inbox, time.UTC),
		Events:     events,
		Ideas:      ideas,
		Inbox:      inbox,
	})

	go srv.Hub().Run()
	t.Cleanup(func() { srv.Hub().Close() })

	return srv, events
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(dest); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func eventBody(summary string) map[string]any {
	return map[string]any{
		"summary":        summary,
		"start_datetime": "2025-03-05T09:00:00Z",
		"end_datetime":   "2025-03-05T10:00:00Z",
		"category":       core.CategoryTrabajo,
		"priority":       core.PriorityHigh,
	}
}

func TestHealth(t *testing.T) {
	srv, _ := testServer(t, &stubProvider{available: true})

	w := doJSON(t, srv, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body map[string]any
	decodeBody(t, w, &body)
	if body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
	if body["provider_available"] != true {
		t.Errorf("provider_available = %v, want true", body["provider_available"])
	}
}

func TestCreateEventIsLocalOnly(t *testing.T) {
	provider := &stubProvider{available: true}
	srv, store := testServer(t, provider)

	w := doJSON(t, srv, http.MethodPost, "/api/v1/calendar/events", eventBody("Reunión"))
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}

	var ev core.CalendarEvent
	decodeBody(t, w, &ev)
	if !strings.HasPrefix(ev.ExternalID, core.LocalIDPrefix) {
		t.Errorf("external id = %q, want local placeholder", ev.ExternalID)
	}
	if ev.ID == 0 {
		t.Error("event missing surrogate id")
	}
	if ev.Status != core.StatusConfirmed {
		t.Errorf("status = %q, want confirmed default", ev.Status)
	}

	if _, err := store.GetByID(ev.ID); err != nil {
		t.Fatalf("failed to reload event: %v", err)
	}
}

func TestCreateEventDuplicateExternalID(t *testing.T) {
	srv, _ := testServer(t, &stubProvider{available: true})

	body := eventBody("Primera")
	body["external_id"] = "prov_dup"
	if w := doJSON(t, srv, http.MethodPost, "/api/v1/calendar/events", body); w.Code != http.StatusCreated {
		t.Fatalf("first create status = %d: %s", w.Code, w.Body.String())
	}

	body["summary"] = "Segunda"
	if w := doJSON(t, srv, http.MethodPost, "/api/v1/calendar/events", body); w.Code != http.StatusConflict {
		t.Errorf("duplicate create status = %d, want 409", w.Code)
	}
}

func TestCreateEventValidation(t *testing.T) {
	srv, _ := testServer(t, &stubProvider{available: true})

	w := doJSON(t, srv, http.MethodPost, "/api/v1/calendar/events", map[string]any{"summary": ""})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}

	bad := eventBody("Al revés")
	bad["end_datetime"] = "2025-03-05T08:00:00Z"
	w = doJSON(t, srv, http.MethodPost, "/api/v1/calendar/events", bad)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for end before start", w.Code)
	}
}

func TestGetEventNotFound(t *testing.T) {
	srv, _ := testServer(t, &stubProvider{available: true})

	w := doJSON(t, srv, http.MethodGet, "/api/v1/calendar/events/999", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestPartialUpdate(t *testing.T) {
	srv, store := testServer(t, &stubProvider{available: true})

	w := doJSON(t, srv, http.MethodPost, "/api/v1/calendar/events", eventBody("Original"))
	var ev core.CalendarEvent
	decodeBody(t, w, &ev)

	w = doJSON(t, srv, http.MethodPatch, fmt.Sprintf("/api/v1/calendar/events/%d", ev.ID), map[string]any{"summary": "Renombrado"})
	if w.Code != http.StatusOK {
		t.Fatalf("patch status = %d: %s", w.Code, w.Body.String())
	}

	updated, err := store.GetByID(ev.ID)
	if err != nil {
		t.Fatalf("failed to reload event: %v", err)
	}
	if updated.Summary != "Renombrado" {
		t.Errorf("summary = %q, want Renombrado", updated.Summary)
	}
	if updated.Category != core.CategoryTrabajo {
		t.Errorf("category = %q, untouched fields must survive", updated.Category)
	}

	// Moving only the end before the stored start must be rejected.
	w = doJSON(t, srv, http.MethodPut, fmt.Sprintf("/api/v1/calendar/events/%d", ev.ID), map[string]any{"end_datetime": "2025-03-05T08:00:00Z"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("put status = %d, want 400 for end before stored start", w.Code)
	}
}

func TestDeleteEventLocalOnly(t *testing.T) {
	provider := &stubProvider{available: true}
	srv, store := testServer(t, provider)

	ev := &core.CalendarEvent{
		ExternalID:    "prov_keep",
		Summary:       "Remota",
		Status:        core.StatusConfirmed,
		StartDatetime: time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC),
		EndDatetime:   time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC),
	}
	if err := store.Create(ev); err != nil {
		t.Fatalf("failed to seed event: %v", err)
	}

	w := doJSON(t, srv, http.MethodDelete, fmt.Sprintf("/api/v1/calendar/events/%d", ev.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}
	if len(provider.deletedCalls) != 0 {
		t.Errorf("local delete reached the provider: %v", provider.deletedCalls)
	}
	if _, err := store.GetByID(ev.ID); err == nil {
		t.Error("event still present after delete")
	}
}

func TestDeleteEventSyncCascades(t *testing.T) {
	provider := &stubProvider{available: true}
	srv, store := testServer(t, provider)

	ev := &core.CalendarEvent{
		ExternalID:    "prov_gone",
		Summary:       "Cancelada",
		Status:        core.StatusConfirmed,
		StartDatetime: time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC),
		EndDatetime:   time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC),
	}
	if err := store.Create(ev); err != nil {
		t.Fatalf("failed to seed event: %v", err)
	}

	w := doJSON(t, srv, http.MethodDelete, fmt.Sprintf("/api/v1/calendar/events/%d/sync", ev.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("cascade delete status = %d: %s", w.Code, w.Body.String())
	}
	if len(provider.deletedCalls) != 1 || provider.deletedCalls[0] != "prov_gone" {
		t.Errorf("provider delete calls = %v, want [prov_gone]", provider.deletedCalls)
	}
	if _, err := store.GetByID(ev.ID); err == nil {
		t.Error("event still present after cascade delete")
	}
}

func TestDeleteEventSyncProviderDown(t *testing.T) {
	srv, store := testServer(t, &stubProvider{available: false})

	ev := &core.CalendarEvent{
		ExternalID:    "prov_x",
		Summary:       "Inalcanzable",
		Status:        core.StatusConfirmed,
		StartDatetime: time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC),
		EndDatetime:   time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC),
	}
	if err := store.Create(ev); err != nil {
		t.Fatalf("failed to seed event: %v", err)
	}

	w := doJSON(t, srv, http.MethodDelete, fmt.Sprintf("/api/v1/calendar/events/%d/sync", ev.ID), nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
	if _, err := store.GetByID(ev.ID); err != nil {
		t.Error("event should survive a refused cascade delete")
	}
}

func TestPushEvent(t *testing.T) {
	srv, store := testServer(t, &stubProvider{available: true, createID: "prov_new"})

	w := doJSON(t, srv, http.MethodPost, "/api/v1/calendar/events", eventBody("Pendiente"))
	var ev core.CalendarEvent
	decodeBody(t, w, &ev)

	w = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/v1/calendar/events/%d/push", ev.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("push status = %d: %s", w.Code, w.Body.String())
	}

	var pushed core.CalendarEvent
	decodeBody(t, w, &pushed)
	if pushed.ExternalID != "prov_new" {
		t.Errorf("external id = %q, want provider id after push", pushed.ExternalID)
	}

	row, _ := store.GetByID(ev.ID)
	if row.SyncedAt.IsZero() {
		t.Error("push did not stamp synced_at")
	}
}

func TestPushProviderUnavailable(t *testing.T) {
	srv, store := testServer(t, &stubProvider{available: false})

	ev := &core.CalendarEvent{
		ExternalID:    core.NewLocalID(),
		Summary:       "Sin conexión",
		Status:        core.StatusConfirmed,
		StartDatetime: time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC),
		EndDatetime:   time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC),
	}
	if err := store.Create(ev); err != nil {
		t.Fatalf("failed to seed event: %v", err)
	}

	w := doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/v1/calendar/events/%d/push", ev.ID), nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}

	row, _ := store.GetByID(ev.ID)
	if !strings.HasPrefix(row.ExternalID, core.LocalIDPrefix) {
		t.Errorf("refused push touched the row: %q", row.ExternalID)
	}
}

func TestSyncWeek(t *testing.T) {
	provider := &stubProvider{
		available: true,
		events: []core.CalendarEvent{
			{
				ExternalID:    "prov_a",
				Summary:       "Pulled",
				Status:        core.StatusConfirmed,
				StartDatetime: time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC),
				EndDatetime:   time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC),
			},
		},
	}
	srv, store := testServer(t, provider)

	w := doJSON(t, srv, http.MethodGet, "/api/v1/calendar/sync/week", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var result bujosync.PullResult
	decodeBody(t, w, &result)
	if result.Fetched != 1 || result.Synced != 1 {
		t.Errorf("result = %+v, want 1 fetched / 1 synced", result)
	}

	if _, err := store.FindByExternalID("prov_a"); err != nil {
		t.Errorf("pulled event not cached: %v", err)
	}
}

func TestSyncProviderUnavailable(t *testing.T) {
	srv, _ := testServer(t, &stubProvider{listErr: core.ErrProviderUnavailable})

	w := doJSON(t, srv, http.MethodGet, "/api/v1/calendar/sync/today", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestCategories(t *testing.T) {
	srv, _ := testServer(t, &stubProvider{available: true})

	w := doJSON(t, srv, http.MethodGet, "/api/v1/calendar/categories", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var categories map[string]struct {
		ColorID   string `json:"color_id"`
		ColorName string `json:"color_name"`
	}
	decodeBody(t, w, &categories)
	if categories[core.CategoryTrabajo].ColorID != "9" {
		t.Errorf("TRABAJO color = %q, want 9", categories[core.CategoryTrabajo].ColorID)
	}
}

func TestCalendarHealth(t *testing.T) {
	srv, _ := testServer(t, &stubProvider{available: false})

	w := doJSON(t, srv, http.MethodGet, "/api/v1/calendar/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var body map[string]any
	decodeBody(t, w, &body)
	if body["configured"] != false {
		t.Errorf("configured = %v, want false", body["configured"])
	}
	if body["service_initialized"] != false {
		t.Errorf("service_initialized = %v, want false", body["service_initialized"])
	}
	if body["calendar_id"] != "primary" {
		t.Errorf("calendar_id = %v", body["calendar_id"])
	}
	if body["timezone"] != "America/Lima" {
		t.Errorf("timezone = %v", body["timezone"])
	}
}

func TestAnalyticsDailySummary(t *testing.T) {
	srv, store := testServer(t, &stubProvider{available: true})

	ev := &core.CalendarEvent{
		ExternalID:    "prov_x",
		Summary:       "Trabajo profundo",
		Category:      core.CategoryTrabajo,
		Status:        core.StatusConfirmed,
		StartDatetime: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		EndDatetime:   time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC),
	}
	if err := store.Create(ev); err != nil {
		t.Fatalf("failed to seed event: %v", err)
	}

	w := doJSON(t, srv, http.MethodGet, "/api/v1/analytics/daily-summary", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var days []struct {
		Date       string  `json:"date"`
		TotalHours float64 `json:"total_hours"`
		EventCount int     `json:"event_count"`
	}
	decodeBody(t, w, &days)
	if len(days) != 1 {
		t.Fatalf("got %d days, want 1", len(days))
	}
	if days[0].Date != "2025-03-01" || days[0].EventCount != 1 || days[0].TotalHours != 2 {
		t.Errorf("day = %+v, want 2025-03-01 / 1 event / 2h", days[0])
	}
}

func TestAnalyticsBadRange(t *testing.T) {
	srv, _ := testServer(t, &stubProvider{available: true})

	w := doJSON(t, srv, http.MethodGet, "/api/v1/analytics/time-by-category?start_date=garbage", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestIdeasAndInbox(t *testing.T) {
	srv, _ := testServer(t, &stubProvider{available: true})

	w := doJSON(t, srv, http.MethodPost, "/api/v1/ideas/", map[string]string{"content": "una idea"})
	if w.Code != http.StatusCreated {
		t.Fatalf("idea create status = %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, srv, http.MethodPost, "/api/v1/ideas/", map[string]string{"content": "   "})
	if w.Code != http.StatusBadRequest {
		t.Errorf("blank idea status = %d, want 400", w.Code)
	}

	w = doJSON(t, srv, http.MethodPost, "/api/v1/inbox/", map[string]string{"content": "revisar correo", "source": core.SourceCLI})
	if w.Code != http.StatusCreated {
		t.Fatalf("inbox create status = %d: %s", w.Code, w.Body.String())
	}

	var item core.InboxItem
	decodeBody(t, w, &item)
	if item.Source != core.SourceCLI {
		t.Errorf("source = %q, want cli", item.Source)
	}

	w = doJSON(t, srv, http.MethodGet, "/api/v1/analytics/ideas/total", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ideas total status = %d", w.Code)
	}
	var ideas map[string]int
	decodeBody(t, w, &ideas)
	if ideas["total_ideas"] != 1 {
		t.Errorf("total_ideas = %d, want 1", ideas["total_ideas"])
	}

	w = doJSON(t, srv, http.MethodGet, "/api/v1/analytics/inbox/by-source", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("inbox by-source status = %d", w.Code)
	}
	var bySource map[string]int
	decodeBody(t, w, &bySource)
	if bySource[core.SourceCLI] != 1 {
		t.Errorf("by-source = %v, want cli:1", bySource)
	}
}

func TestWebSocketBroadcast(t *testing.T) {
	srv, _ := testServer(t, &stubProvider{available: true})

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	// Connection registers asynchronously with the hub.
	deadline := time.Now().Add(2 * time.Second)
	for srv.Hub().ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if srv.Hub().ClientCount() == 0 {
		t.Fatal("client never registered")
	}

	resp, err := http.Post(ts.URL+"/api/v1/ideas/", "application/json", strings.NewReader(`{"content":"ping"}`))
	if err != nil {
		t.Fatalf("failed to create idea: %v", err)
	}
	resp.Body.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("failed to read broadcast: %v", err)
	}
	if msg.Type != "idea.created" {
		t.Errorf("message type = %q, want idea.created", msg.Type)
	}
}

func TestConcurrentBroadcasts(t *testing.T) {
	srv, _ := testServer(t, &stubProvider{available: true})

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for srv.Hub().ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if srv.Hub().ClientCount() == 0 {
		t.Fatal("client never registered")
	}

	// Broadcasts from many request goroutines must serialize onto the
	// connection; gorilla allows a single concurrent writer.
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			srv.Hub().Broadcast("event.synced", map[string]int{"n": n})
		}(i)
	}
	wg.Wait()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("failed to read broadcast: %v", err)
	}
	if msg.Type != "event.synced" {
		t.Errorf("message type = %q, want event.synced", msg.Type)
	}
	if srv.Hub().ClientCount() != 1 {
		t.Errorf("client count = %d, want 1 after broadcasts", srv.Hub().ClientCount())
	}
}

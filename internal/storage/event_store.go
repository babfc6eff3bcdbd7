// Package storage provides persistence for bujo.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bujo/bujo/internal/core"
)

// EventStore owns the calendar event cache table. Upserts are keyed by the
// provider-assigned external id.
type EventStore struct {
	db *DB
}

// NewEventStore creates a new event store
func NewEventStore(db *DB) *EventStore {
	return &EventStore{db: db}
}

const eventColumns = `
	id, external_id, summary, description, location,
	start_datetime, end_datetime, all_day,
	status, priority, category, extra_data,
	created_at, updated_at, synced_at`

// Filter narrows Query results. Zero values mean "no constraint".
type Filter struct {
	Category   string
	Priority   string
	Search     string // case-insensitive match against summary or description
	StartAfter *time.Time
	EndBefore  *time.Time
	Limit      int
	Offset     int
}

// Create inserts a locally-created event. The external id must be unique;
// callers without a provider id should pass a core.NewLocalID placeholder.
func (s *EventStore) Create(ev *core.CalendarEvent) error {
	if _, err := s.FindByExternalID(ev.ExternalID); err == nil {
		return fmt.Errorf("%w: %s", core.ErrDuplicateExternalID, ev.ExternalID)
	} else if !errors.Is(err, core.ErrEventNotFound) {
		return err
	}

	now := time.Now().UTC()
	ev.CreatedAt = now
	ev.UpdatedAt = now
	if ev.SyncedAt.IsZero() {
		ev.SyncedAt = now
	}

	res, err := s.db.conn.Exec(`
		INSERT INTO calendar_events (
		    external_id, summary, description, location,
		    start_datetime, end_datetime, all_day,
		    status, priority, category, extra_data,
		    created_at, updated_at, synced_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ev.ExternalID, ev.Summary, ev.Description, ev.Location,
		ev.StartDatetime.UTC(), ev.EndDatetime.UTC(), ev.AllDay,
		ev.Status, ev.Priority, ev.Category, marshalExtra(ev.ExtraData),
		ev.CreatedAt, ev.UpdatedAt, ev.SyncedAt,
	)
	if err != nil {
		return err
	}

	ev.ID, err = res.LastInsertId()
	return err
}

// GetByID returns an event by its local surrogate key
func (s *EventStore) GetByID(id int64) (*core.CalendarEvent, error) {
	row := s.db.conn.QueryRow(`SELECT`+eventColumns+` FROM calendar_events WHERE id = ?`, id)
	return scanEvent(row)
}

// FindByExternalID returns the cache row joined to a provider event
func (s *EventStore) FindByExternalID(externalID string) (*core.CalendarEvent, error) {
	row := s.db.conn.QueryRow(`SELECT`+eventColumns+` FROM calendar_events WHERE external_id = ?`, externalID)
	return scanEvent(row)
}

// Update persists every mutable field, including a swapped external id after
// a successful push.
func (s *EventStore) Update(ev *core.CalendarEvent) error {
	ev.UpdatedAt = time.Now().UTC()

	res, err := s.db.conn.Exec(`
		UPDATE calendar_events SET
		    external_id = ?, summary = ?, description = ?, location = ?,
		    start_datetime = ?, end_datetime = ?, all_day = ?,
		    status = ?, priority = ?, category = ?, extra_data = ?,
		    updated_at = ?, synced_at = ?
		WHERE id = ?
	`,
		ev.ExternalID, ev.Summary, ev.Description, ev.Location,
		ev.StartDatetime.UTC(), ev.EndDatetime.UTC(), ev.AllDay,
		ev.Status, ev.Priority, ev.Category, marshalExtra(ev.ExtraData),
		ev.UpdatedAt, ev.SyncedAt,
		ev.ID,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrEventNotFound
	}
	return nil
}

// Delete removes an event from the cache
func (s *EventStore) Delete(id int64) error {
	res, err := s.db.conn.Exec(`DELETE FROM calendar_events WHERE id = ?`, id)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrEventNotFound
	}
	return nil
}

// Upsert applies a pulled provider event to the cache. An existing row keyed
// by the same external id keeps its id and created_at; every other field is
// overwritten. syncedAt stamps the reconciliation time on both paths.
func (s *EventStore) Upsert(candidate *core.CalendarEvent, syncedAt time.Time) (*core.CalendarEvent, bool, error) {
	var result *core.CalendarEvent
	var created bool

	err := s.db.Transaction(func(tx *sql.Tx) error {
		row := tx.QueryRow(`SELECT id, created_at FROM calendar_events WHERE external_id = ?`, candidate.ExternalID)

		var id int64
		var createdAt time.Time
		err := row.Scan(&id, &createdAt)

		switch {
		case err == sql.ErrNoRows:
			now := time.Now().UTC()
			res, err := tx.Exec(`
				INSERT INTO calendar_events (
				    external_id, summary, description, location,
				    start_datetime, end_datetime, all_day,
				    status, priority, category, extra_data,
				    created_at, updated_at, synced_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`,
				candidate.ExternalID, candidate.Summary, candidate.Description, candidate.Location,
				candidate.StartDatetime.UTC(), candidate.EndDatetime.UTC(), candidate.AllDay,
				candidate.Status, candidate.Priority, candidate.Category, marshalExtra(candidate.ExtraData),
				now, now, syncedAt.UTC(),
			)
			if err != nil {
				return err
			}
			newID, err := res.LastInsertId()
			if err != nil {
				return err
			}

			ev := *candidate
			ev.ID = newID
			ev.CreatedAt = now
			ev.UpdatedAt = now
			ev.SyncedAt = syncedAt.UTC()
			result = &ev
			created = true
			return nil

		case err != nil:
			return err

		default:
			now := time.Now().UTC()
			_, err := tx.Exec(`
				UPDATE calendar_events SET
				    summary = ?, description = ?, location = ?,
				    start_datetime = ?, end_datetime = ?, all_day = ?,
				    status = ?, priority = ?, category = ?, extra_data = ?,
				    updated_at = ?, synced_at = ?
				WHERE id = ?
			`,
				candidate.Summary, candidate.Description, candidate.Location,
				candidate.StartDatetime.UTC(), candidate.EndDatetime.UTC(), candidate.AllDay,
				candidate.Status, candidate.Priority, candidate.Category, marshalExtra(candidate.ExtraData),
				now, syncedAt.UTC(),
				id,
			)
			if err != nil {
				return err
			}

			ev := *candidate
			ev.ID = id
			ev.CreatedAt = createdAt
			ev.UpdatedAt = now
			ev.SyncedAt = syncedAt.UTC()
			result = &ev
			return nil
		}
	})
	if err != nil {
		return nil, false, err
	}

	return result, created, nil
}

// Query returns cached events matching the filter, ordered by start time
func (s *EventStore) Query(f Filter) ([]*core.CalendarEvent, error) {
	query := `SELECT` + eventColumns + ` FROM calendar_events WHERE 1=1`
	var args []any

	if f.Category != "" {
		query += ` AND category = ?`
		args = append(args, f.Category)
	}
	if f.Priority != "" {
		query += ` AND priority = ?`
		args = append(args, f.Priority)
	}
	if f.Search != "" {
		query += ` AND (summary LIKE ? COLLATE NOCASE OR description LIKE ? COLLATE NOCASE)`
		pattern := "%" + f.Search + "%"
		args = append(args, pattern, pattern)
	}
	if f.StartAfter != nil {
		query += ` AND start_datetime >= ?`
		args = append(args, f.StartAfter.UTC())
	}
	if f.EndBefore != nil {
		query += ` AND end_datetime <= ?`
		args = append(args, f.EndBefore.UTC())
	}

	query += ` ORDER BY start_datetime ASC`

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, f.Offset)

	rows, err := s.db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

// InRange returns all events with start >= start and end <= end. Either bound
// may be nil. Used by analytics, which folds rows in memory.
func (s *EventStore) InRange(start, end *time.Time) ([]*core.CalendarEvent, error) {
	query := `SELECT` + eventColumns + ` FROM calendar_events WHERE 1=1`
	var args []any

	if start != nil {
		query += ` AND start_datetime >= ?`
		args = append(args, start.UTC())
	}
	if end != nil {
		query += ` AND end_datetime <= ?`
		args = append(args, end.UTC())
	}

	rows, err := s.db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

// CountByCategory counts events per category with a grouped query; empty
// categories are bucketed under the fallback key.
func (s *EventStore) CountByCategory(start, end *time.Time) (map[string]int, error) {
	query := `SELECT category, COUNT(id) FROM calendar_events WHERE 1=1`
	var args []any

	if start != nil {
		query += ` AND start_datetime >= ?`
		args = append(args, start.UTC())
	}
	if end != nil {
		query += ` AND end_datetime <= ?`
		args = append(args, end.UTC())
	}
	query += ` GROUP BY category`

	rows, err := s.db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, err
		}
		if category == "" {
			category = core.NoCategory
		}
		counts[category] += count
	}

	return counts, rows.Err()
}

// Count returns total cached event count
func (s *EventStore) Count() (int, error) {
	var count int
	err := s.db.conn.QueryRow("SELECT COUNT(*) FROM calendar_events").Scan(&count)
	return count, err
}

func marshalExtra(extra map[string]any) any {
	if len(extra) == 0 {
		return nil
	}
	data, err := json.Marshal(extra)
	if err != nil {
		return nil
	}
	return string(data)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEventRow(row rowScanner) (*core.CalendarEvent, error) {
	ev := &core.CalendarEvent{}
	var extra sql.NullString

	err := row.Scan(
		&ev.ID, &ev.ExternalID, &ev.Summary, &ev.Description, &ev.Location,
		&ev.StartDatetime, &ev.EndDatetime, &ev.AllDay,
		&ev.Status, &ev.Priority, &ev.Category, &extra,
		&ev.CreatedAt, &ev.UpdatedAt, &ev.SyncedAt,
	)
	if err != nil {
		return nil, err
	}

	if extra.Valid && extra.String != "" {
		json.Unmarshal([]byte(extra.String), &ev.ExtraData)
	}

	return ev, nil
}

func scanEvent(row *sql.Row) (*core.CalendarEvent, error) {
	ev, err := scanEventRow(row)
	if err == sql.ErrNoRows {
		return nil, core.ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func scanEvents(rows *sql.Rows) ([]*core.CalendarEvent, error) {
	var events []*core.CalendarEvent
	for rows.Next() {
		ev, err := scanEventRow(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Package storage provides persistence for bujo.
package storage

import (
	"database/sql"
	"time"

	"github.com/bujo/bujo/internal/core"
)

// InboxStore handles inbox item persistence
type InboxStore struct {
	db *DB
}

// NewInboxStore creates a new inbox store
func NewInboxStore(db *DB) *InboxStore {
	return &InboxStore{db: db}
}

// Create inserts a new inbox item
func (s *InboxStore) Create(item *core.InboxItem) error {
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	if item.Source == "" {
		item.Source = core.SourceManual
	}

	res, err := s.db.conn.Exec(
		`INSERT INTO inbox (content, status_id, source, created_at) VALUES (?, ?, ?, ?)`,
		item.Content, item.StatusID, item.Source, item.CreatedAt.UTC(),
	)
	if err != nil {
		return err
	}

	item.ID, err = res.LastInsertId()
	return err
}

// GetByID returns an inbox item by ID
func (s *InboxStore) GetByID(id int64) (*core.InboxItem, error) {
	row := s.db.conn.QueryRow(
		`SELECT id, content, status_id, source, created_at FROM inbox WHERE id = ?`, id,
	)

	item, err := scanInboxItem(row)
	if err == sql.ErrNoRows {
		return nil, core.ErrInboxItemNotFound
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// List returns recent inbox items, newest first
func (s *InboxStore) List(limit, offset int) ([]*core.InboxItem, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.conn.Query(
		`SELECT id, content, status_id, source, created_at FROM inbox ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanInboxItems(rows)
}

// ListBetween returns inbox items created within the optional bounds
func (s *InboxStore) ListBetween(start, end *time.Time) ([]*core.InboxItem, error) {
	query := `SELECT id, content, status_id, source, created_at FROM inbox WHERE 1=1`
	var args []any

	if start != nil {
		query += ` AND created_at >= ?`
		args = append(args, start.UTC())
	}
	if end != nil {
		query += ` AND created_at <= ?`
		args = append(args, end.UTC())
	}

	rows, err := s.db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanInboxItems(rows)
}

// CountBetween counts inbox items created within the optional bounds
func (s *InboxStore) CountBetween(start, end *time.Time) (int, error) {
	query := `SELECT COUNT(id) FROM inbox WHERE 1=1`
	var args []any

	if start != nil {
		query += ` AND created_at >= ?`
		args = append(args, start.UTC())
	}
	if end != nil {
		query += ` AND created_at <= ?`
		args = append(args, end.UTC())
	}

	var count int
	err := s.db.conn.QueryRow(query, args...).Scan(&count)
	return count, err
}

func scanInboxItem(row rowScanner) (*core.InboxItem, error) {
	item := &core.InboxItem{}
	var statusID sql.NullInt64

	err := row.Scan(&item.ID, &item.Content, &statusID, &item.Source, &item.CreatedAt)
	if err != nil {
		return nil, err
	}

	if statusID.Valid {
		item.StatusID = &statusID.Int64
	}
	return item, nil
}

func scanInboxItems(rows *sql.Rows) ([]*core.InboxItem, error) {
	var items []*core.InboxItem
	for rows.Next() {
		item, err := scanInboxItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

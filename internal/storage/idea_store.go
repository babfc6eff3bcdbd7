// Package storage provides persistence for bujo.
package storage

import (
	"database/sql"
	"time"

	"github.com/bujo/bujo/internal/core"
)

// IdeaStore handles idea persistence
type IdeaStore struct {
	db *DB
}

// NewIdeaStore creates a new idea store
func NewIdeaStore(db *DB) *IdeaStore {
	return &IdeaStore{db: db}
}

// Create inserts a new idea
func (s *IdeaStore) Create(idea *core.Idea) error {
	if idea.CreatedAt.IsZero() {
		idea.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.conn.Exec(
		`INSERT INTO ideas (content, created_at) VALUES (?, ?)`,
		idea.Content, idea.CreatedAt.UTC(),
	)
	if err != nil {
		return err
	}

	idea.ID, err = res.LastInsertId()
	return err
}

// GetByID returns an idea by ID
func (s *IdeaStore) GetByID(id int64) (*core.Idea, error) {
	idea := &core.Idea{}
	err := s.db.conn.QueryRow(
		`SELECT id, content, created_at FROM ideas WHERE id = ?`, id,
	).Scan(&idea.ID, &idea.Content, &idea.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, core.ErrIdeaNotFound
	}
	if err != nil {
		return nil, err
	}
	return idea, nil
}

// List returns recent ideas, newest first
func (s *IdeaStore) List(limit, offset int) ([]*core.Idea, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.conn.Query(
		`SELECT id, content, created_at FROM ideas ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ideas []*core.Idea
	for rows.Next() {
		idea := &core.Idea{}
		if err := rows.Scan(&idea.ID, &idea.Content, &idea.CreatedAt); err != nil {
			return nil, err
		}
		ideas = append(ideas, idea)
	}
	return ideas, rows.Err()
}

// ListBetween returns ideas created within the optional bounds
func (s *IdeaStore) ListBetween(start, end *time.Time) ([]*core.Idea, error) {
	query := `SELECT id, content, created_at FROM ideas WHERE 1=1`
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

	var ideas []*core.Idea
	for rows.Next() {
		idea := &core.Idea{}
		if err := rows.Scan(&idea.ID, &idea.Content, &idea.CreatedAt); err != nil {
			return nil, err
		}
		ideas = append(ideas, idea)
	}
	return ideas, rows.Err()
}

// CountBetween counts ideas created within the optional bounds
func (s *IdeaStore) CountBetween(start, end *time.Time) (int, error) {
	query := `SELECT COUNT(id) FROM ideas WHERE 1=1`
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

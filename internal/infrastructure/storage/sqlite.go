package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vitos/loki_dashboard/internal/domain"
)

// SQLiteStore persists the dashboard auth session. Trading data is never
// written here; it is re-fetched from the bot every session.
type SQLiteStore struct {
	db *sql.DB
}

var _ domain.SessionStore = (*SQLiteStore)(nil)

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	// Single-row table, serialize access.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS auth_session (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			token TEXT NOT NULL,
			expires_at INTEGER NOT NULL,
			created_at DATETIME NOT NULL
		);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

func (s *SQLiteStore) LoadSession(ctx context.Context) (*domain.AuthSession, error) {
	var (
		token     string
		expiresMs int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT token, expires_at FROM auth_session WHERE id = 1`).Scan(&token, &expiresMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return &domain.AuthSession{Token: token, ExpiresAt: time.UnixMilli(expiresMs).UTC()}, nil
}

func (s *SQLiteStore) SaveSession(ctx context.Context, session *domain.AuthSession) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO auth_session (id, token, expires_at, created_at) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET token = excluded.token, expires_at = excluded.expires_at, created_at = excluded.created_at`,
		session.Token, session.ExpiresAt.UnixMilli(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ClearSession(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM auth_session`); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Package archive keeps a SQLite record of every closed session. Only the
// terminal state is stored, never the messages.
package archive

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"talkbot/internal/dispatch"
	"talkbot/internal/logger"
)

//go:embed schema.sql
var schema string

type Record struct {
	ID       string    `json:"id"`
	Source   string    `json:"source"`
	Turns    int       `json:"turns"`
	Reason   string    `json:"reason"`
	OpenedAt time.Time `json:"openedAt"`
	ClosedAt time.Time `json:"closedAt"`
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create archive dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	logger.Infof("Session archive opened at %s", path)
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts a record, replacing any earlier record with the same id.
func (s *Store) Save(ctx context.Context, r Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sessions (id, source, turns, reason, opened_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.ID, r.Source, r.Turns, r.Reason, r.OpenedAt.UTC(), r.ClosedAt.UTC())
	if err != nil {
		return fmt.Errorf("save session %s: %w", r.ID, err)
	}
	return nil
}

// List returns the most recently closed sessions first.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, turns, reason, opened_at, closed_at
		FROM sessions ORDER BY closed_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Source, &r.Turns, &r.Reason, &r.OpenedAt, &r.ClosedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// For returns an archiver that tags records with the transport name.
func (s *Store) For(source string) dispatch.Archiver {
	return &sourced{store: s, source: source}
}

type sourced struct {
	store  *Store
	source string
}

func (a *sourced) ArchiveSession(id string, opened time.Time, state dispatch.ConversationState, reason string) error {
	return a.store.Save(context.Background(), Record{
		ID:       id,
		Source:   a.source,
		Turns:    state.TurnCount,
		Reason:   reason,
		OpenedAt: opened,
		ClosedAt: a.store.now(),
	})
}

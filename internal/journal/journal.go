// Package journal mirrors event-log entries into a local SQLite table so past
// connectivity episodes can be listed without parsing the text log.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"portal-keeper/internal/logs"
)

type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

type row struct {
	Seq      int64  `db:"seq"`
	ID       string `db:"id"`
	LoggedAt string `db:"logged_at"`
	Event    string `db:"event"`
	Message  string `db:"message"`
}

// Record appends one entry. Rows are never updated or deleted.
func (s *Store) Record(ctx context.Context, e logs.Entry) error {
	q := s.db.Rebind(`
INSERT INTO event_journal (
  id,
  logged_at,
  event,
  message
) VALUES (
  ?,
  ?,
  ?,
  ?
)`)
	if _, err := s.db.ExecContext(ctx, q, uuid.NewString(), e.Time.Format(time.RFC3339Nano), string(e.Event), e.Message); err != nil {
		return fmt.Errorf("insert event_journal: %w", err)
	}
	return nil
}

// Recent returns up to limit newest entries, oldest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]logs.Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows []row
	q := s.db.Rebind(`
SELECT seq, id, logged_at, event, message
FROM event_journal
ORDER BY seq DESC
LIMIT ?`)
	if err := s.db.SelectContext(ctx, &rows, q, limit); err != nil {
		return nil, fmt.Errorf("select event_journal: %w", err)
	}

	out := make([]logs.Entry, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		r := rows[i]
		at, err := time.Parse(time.RFC3339Nano, r.LoggedAt)
		if err != nil {
			return nil, fmt.Errorf("parse logged_at of %s: %w", r.ID, err)
		}
		out = append(out, logs.Entry{
			Time:    at.Local(),
			Event:   logs.Event(r.Event),
			Message: r.Message,
		})
	}
	return out, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

package audit

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"taskmill/internal/domain"
)

type sqliteStore struct{ db *sql.DB }

// NewSQLiteStore returns a Store backed by the audit_log table.
func NewSQLiteStore(db *sql.DB) Store { return &sqliteStore{db: db} }

func (s *sqliteStore) Create(ctx context.Context, e Entry) (uuid.UUID, error) {
	id := e.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO audit_log (id,task_name,task_group,fire_time,run_time_ms,outcome,log,detail,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,CURRENT_TIMESTAMP,CURRENT_TIMESTAMP)`,
		id.String(), e.TaskName, e.TaskGroup, e.FireTime, e.RunTimeMS, string(e.Outcome), nullableStr(e.Log), nullableStr(e.Detail))
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

const entryColumns = `id,task_name,task_group,fire_time,run_time_ms,outcome,log,detail,created_at,updated_at`

func (s *sqliteStore) FindAll(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+entryColumns+` FROM audit_log ORDER BY fire_time DESC`)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

func (s *sqliteStore) Find(ctx context.Context, taskName, taskGroup string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+entryColumns+` FROM audit_log
WHERE task_name=? AND task_group=? ORDER BY fire_time DESC`, taskName, taskGroup)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

func (s *sqliteStore) MostRecent(ctx context.Context, taskName, taskGroup string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT `+entryColumns+` FROM audit_log
WHERE task_name=? AND task_group=? ORDER BY fire_time DESC LIMIT 1`, taskName, taskGroup)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *sqliteStore) Count(ctx context.Context, taskName, taskGroup string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM audit_log WHERE task_name=? AND task_group=?`, taskName, taskGroup).Scan(&n)
	return n, err
}

type rowScanner interface{ Scan(dest ...any) error }

func scanEntry(row rowScanner) (Entry, error) {
	var (
		e        Entry
		id       string
		outcome  string
		logMsg   sql.NullString
		detail   sql.NullString
		fireTime time.Time
	)
	if err := row.Scan(&id, &e.TaskName, &e.TaskGroup, &fireTime, &e.RunTimeMS, &outcome, &logMsg, &detail, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return Entry{}, err
	}
	e.ID, _ = uuid.Parse(id)
	e.FireTime = fireTime
	e.Outcome = domain.TaskOutcome(outcome)
	e.Log = logMsg.String
	e.Detail = detail.String
	return e, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullableStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

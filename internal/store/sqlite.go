package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"taskmill/internal/domain"
)

// EnsureSchema creates tables if they don't exist.
func EnsureSchema(db *sql.DB) error {
	schema := `
PRAGMA journal_mode=WAL;
CREATE TABLE IF NOT EXISTS tasks (
  name TEXT NOT NULL,
  task_group TEXT NOT NULL,
  consumer_type TEXT NOT NULL,
  schedule TEXT NOT NULL,
  properties BLOB NOT NULL,
  state TEXT NOT NULL CHECK(state IN ('scheduled','paused','firing','completed')) DEFAULT 'scheduled',
  next_run DATETIME,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY (name, task_group)
);
CREATE INDEX IF NOT EXISTS idx_tasks_group ON tasks(task_group);
CREATE TABLE IF NOT EXISTS audit_log (
  id TEXT PRIMARY KEY,
  task_name TEXT NOT NULL,
  task_group TEXT NOT NULL,
  fire_time DATETIME NOT NULL,
  run_time_ms INTEGER NOT NULL DEFAULT 0,
  outcome TEXT NOT NULL CHECK(outcome IN ('success','error')),
  log TEXT,
  detail TEXT,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_audit_task ON audit_log(task_name, task_group, fire_time DESC);
`
	_, err := db.Exec(schema)
	return err
}

// TaskStore is the durable task registry. The engine mirrors registrations
// and state transitions here so a restart resumes pending schedules.
type TaskStore interface {
	Save(ctx context.Context, t domain.Task) error
	UpdateState(ctx context.Context, key domain.TaskKey, state domain.TaskState, nextRun time.Time) error
	Delete(ctx context.Context, key domain.TaskKey) error
	LoadAll(ctx context.Context) ([]domain.Task, error)
}

type sqliteStore struct{ db *sql.DB }

func NewSQLiteStore(db *sql.DB) TaskStore { return &sqliteStore{db: db} }

func (s *sqliteStore) Save(ctx context.Context, t domain.Task) error {
	props, err := json.Marshal(t.Properties)
	if err != nil {
		return fmt.Errorf("encode properties: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO tasks (name,task_group,consumer_type,schedule,properties,state,next_run,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,CURRENT_TIMESTAMP,CURRENT_TIMESTAMP)
ON CONFLICT(name,task_group) DO UPDATE SET
  consumer_type=excluded.consumer_type,
  schedule=excluded.schedule,
  properties=excluded.properties,
  state=excluded.state,
  next_run=excluded.next_run,
  updated_at=CURRENT_TIMESTAMP
`, t.Key.Name, t.Key.Group, t.ConsumerType, t.Schedule.String(), props, string(t.State), nullableTime(t.NextRun))
	return err
}

func (s *sqliteStore) UpdateState(ctx context.Context, key domain.TaskKey, state domain.TaskState, nextRun time.Time) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE tasks SET state=?, next_run=?, updated_at=CURRENT_TIMESTAMP WHERE name=? AND task_group=?`,
		string(state), nullableTime(nextRun), key.Name, key.Group)
	return err
}

func (s *sqliteStore) Delete(ctx context.Context, key domain.TaskKey) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE name=? AND task_group=?`, key.Name, key.Group)
	return err
}

func (s *sqliteStore) LoadAll(ctx context.Context) ([]domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT name,task_group,consumer_type,schedule,properties,state,next_run,created_at,updated_at
FROM tasks`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		var (
			t        domain.Task
			schedule string
			props    []byte
			state    string
			nextRun  sql.NullTime
		)
		if err := rows.Scan(&t.Key.Name, &t.Key.Group, &t.ConsumerType, &schedule, &props, &state, &nextRun, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		if t.Schedule, err = domain.ParseSchedule(schedule); err != nil {
			return nil, fmt.Errorf("task %s: %w", t.Key, err)
		}
		if err := json.Unmarshal(props, &t.Properties); err != nil {
			return nil, fmt.Errorf("task %s: decode properties: %w", t.Key, err)
		}
		t.State = domain.TaskState(state)
		if nextRun.Valid {
			t.NextRun = nextRun.Time
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

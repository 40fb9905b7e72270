package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"taskmill/internal/domain"
)

func newTestStore(t *testing.T) TaskStore {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)
	if err := EnsureSchema(db); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return NewSQLiteStore(db)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	every, _ := domain.Every(0, 0, 30)
	task := domain.Task{
		Key:          domain.TaskKey{Name: "n1", Group: "g1"},
		ConsumerType: "email",
		Schedule:     every,
		Properties:   map[string]any{"TEMPLATE": "welcome", "SUBJECT": "hi"},
		State:        domain.StateScheduled,
		NextRun:      time.Now().Add(30 * time.Minute).UTC(),
	}
	if err := s.Save(ctx, task); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("got %d tasks, want 1", len(loaded))
	}
	got := loaded[0]
	if got.Key != task.Key || got.ConsumerType != "email" || got.State != domain.StateScheduled {
		t.Fatalf("loaded task mismatch: %+v", got)
	}
	if got.Schedule.String() != task.Schedule.String() {
		t.Fatalf("schedule = %q, want %q", got.Schedule.String(), task.Schedule.String())
	}
	if got.Properties["TEMPLATE"] != "welcome" {
		t.Fatalf("properties lost: %+v", got.Properties)
	}
	if got.NextRun.IsZero() {
		t.Fatal("next_run not persisted")
	}
}

func TestSaveUpserts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task := domain.Task{
		Key:          domain.TaskKey{Name: "n1", Group: "g1"},
		ConsumerType: "email",
		Schedule:     domain.Immediate(),
		Properties:   map[string]any{},
		State:        domain.StateScheduled,
	}
	if err := s.Save(ctx, task); err != nil {
		t.Fatalf("save: %v", err)
	}
	task.State = domain.StatePaused
	if err := s.Save(ctx, task); err != nil {
		t.Fatalf("second save: %v", err)
	}

	loaded, _ := s.LoadAll(ctx)
	if len(loaded) != 1 || loaded[0].State != domain.StatePaused {
		t.Fatalf("upsert failed: %+v", loaded)
	}
}

func TestUpdateStateAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := domain.TaskKey{Name: "n1", Group: "g1"}

	task := domain.Task{
		Key:          key,
		ConsumerType: "chat",
		Schedule:     domain.Immediate(),
		Properties:   map[string]any{},
		State:        domain.StateScheduled,
		NextRun:      time.Now().UTC(),
	}
	if err := s.Save(ctx, task); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := s.UpdateState(ctx, key, domain.StateCompleted, time.Time{}); err != nil {
		t.Fatalf("updateState: %v", err)
	}
	loaded, _ := s.LoadAll(ctx)
	if loaded[0].State != domain.StateCompleted || !loaded[0].NextRun.IsZero() {
		t.Fatalf("state update not applied: %+v", loaded[0])
	}

	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	loaded, _ = s.LoadAll(ctx)
	if len(loaded) != 0 {
		t.Fatalf("task still present after delete: %+v", loaded)
	}
}

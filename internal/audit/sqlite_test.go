package audit

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"taskmill/internal/domain"
	"taskmill/internal/store"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)
	if err := store.EnsureSchema(db); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return NewSQLiteStore(db)
}

func TestCreateAndFindOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := s.Create(ctx, Entry{
			TaskName:  "welcome",
			TaskGroup: "req-1",
			FireTime:  base.Add(time.Duration(i) * time.Minute),
			RunTimeMS: int64(10 * (i + 1)),
			Outcome:   domain.OutcomeSuccess,
		})
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	entries, err := s.Find(ctx, "welcome", "req-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].FireTime.After(entries[i-1].FireTime) {
			t.Fatalf("entries not most-recent-first: %s before %s",
				entries[i-1].FireTime, entries[i].FireTime)
		}
	}
}

func TestFindFiltersByTaskIdentity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	seed := []Entry{
		{TaskName: "a", TaskGroup: "g1", FireTime: now, Outcome: domain.OutcomeSuccess},
		{TaskName: "a", TaskGroup: "g2", FireTime: now, Outcome: domain.OutcomeError, Log: "boom"},
		{TaskName: "b", TaskGroup: "g1", FireTime: now, Outcome: domain.OutcomeSuccess},
	}
	for _, e := range seed {
		if _, err := s.Create(ctx, e); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	entries, err := s.Find(ctx, "a", "g2")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(entries) != 1 || entries[0].Log != "boom" || entries[0].Outcome != domain.OutcomeError {
		t.Fatalf("unexpected entries: %+v", entries)
	}

	all, err := s.FindAll(ctx)
	if err != nil {
		t.Fatalf("findAll: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("findAll = %d entries, want 3", len(all))
	}
}

func TestMostRecentAndCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Empty result is valid, not an error.
	entry, err := s.MostRecent(ctx, "none", "g")
	if err != nil || entry != nil {
		t.Fatalf("mostRecent on empty: entry=%v err=%v", entry, err)
	}
	if n, err := s.Count(ctx, "none", "g"); err != nil || n != 0 {
		t.Fatalf("count on empty: n=%d err=%v", n, err)
	}

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		_, err := s.Create(ctx, Entry{
			TaskName:  "t",
			TaskGroup: "g",
			FireTime:  base.Add(time.Duration(i) * time.Hour),
			RunTimeMS: int64(i),
			Outcome:   domain.OutcomeSuccess,
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	entry, err = s.MostRecent(ctx, "t", "g")
	if err != nil || entry == nil {
		t.Fatalf("mostRecent: entry=%v err=%v", entry, err)
	}
	if entry.RunTimeMS != 1 {
		t.Fatalf("mostRecent returned older entry: %+v", entry)
	}
	if n, _ := s.Count(ctx, "t", "g"); n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}
}

func TestCreateAssignsID(t *testing.T) {
	s := newTestStore(t)
	id, err := s.Create(context.Background(), Entry{
		TaskName: "t", TaskGroup: "g", FireTime: time.Now().UTC(), Outcome: domain.OutcomeSuccess,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id.String() == "00000000-0000-0000-0000-000000000000" {
		t.Fatal("create returned nil id")
	}

	// Entries are immutable, so both timestamps are set at insert and equal.
	entry, err := s.MostRecent(context.Background(), "t", "g")
	if err != nil || entry == nil {
		t.Fatalf("mostRecent: entry=%v err=%v", entry, err)
	}
	if entry.CreatedAt.IsZero() || !entry.UpdatedAt.Equal(entry.CreatedAt) {
		t.Fatalf("timestamps: created=%s updated=%s, want equal and set",
			entry.CreatedAt, entry.UpdatedAt)
	}
}

// Package audit persists one immutable record per task firing and exposes
// the query surface over them. Entries are append-only; retention is an
// external concern.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"taskmill/internal/domain"
)

// Entry is one firing's outcome. Immutable once written, so UpdatedAt
// always equals CreatedAt.
type Entry struct {
	ID        uuid.UUID          `json:"id"`
	TaskName  string             `json:"task_name"`
	TaskGroup string             `json:"task_group"`
	FireTime  time.Time          `json:"fire_time"`
	RunTimeMS int64              `json:"run_time_ms"`
	Outcome   domain.TaskOutcome `json:"outcome"`
	Log       string             `json:"log,omitempty"`
	Detail    string             `json:"detail,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Store is the durable audit log. All reads return entries ordered by
// fire time descending; an empty result is valid, not an error.
type Store interface {
	Create(ctx context.Context, e Entry) (uuid.UUID, error)
	FindAll(ctx context.Context) ([]Entry, error)
	Find(ctx context.Context, taskName, taskGroup string) ([]Entry, error)
	MostRecent(ctx context.Context, taskName, taskGroup string) (*Entry, error)
	Count(ctx context.Context, taskName, taskGroup string) (int, error)
}

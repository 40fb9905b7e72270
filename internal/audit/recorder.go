package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"taskmill/internal/domain"
	"taskmill/internal/scheduler"
	"taskmill/internal/telemetry"
)

// Recorder is the engine's firing listener. It appends one audit entry per
// firing and updates firing metrics. A failed audit write is logged and
// counted but never surfaces to the scheduler: audit failure is non-fatal
// to scheduling.
type Recorder struct {
	log   zerolog.Logger
	store Store
}

func NewRecorder(log zerolog.Logger, store Store) *Recorder {
	return &Recorder{log: log.With().Str("component", "audit").Logger(), store: store}
}

var _ scheduler.FiringListener = (*Recorder)(nil)

func (r *Recorder) TaskFired(ctx context.Context, rec scheduler.FiringRecord) {
	telemetry.FiringsTotal.Inc()
	telemetry.FiringDuration.Observe(rec.RunTime.Seconds())
	if rec.Outcome == domain.OutcomeError {
		telemetry.FiringFailures.Inc()
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	entry := Entry{
		TaskName:  rec.Key.Name,
		TaskGroup: rec.Key.Group,
		FireTime:  rec.FireTime,
		RunTimeMS: rec.RunTime.Milliseconds(),
		Outcome:   rec.Outcome,
		Log:       rec.Log,
		Detail:    rec.Detail,
	}
	if _, err := r.store.Create(ctx, entry); err != nil {
		telemetry.AuditWriteFailures.Inc()
		r.log.Error().Err(err).Stringer("task", rec.Key).Msg("audit write failed")
	}
}

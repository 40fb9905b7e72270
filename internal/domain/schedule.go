package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ScheduleKind discriminates the schedule union.
type ScheduleKind string

const (
	// KindImmediate fires once, as soon as the clock observes the task.
	KindImmediate ScheduleKind = "immediate"
	// KindAt fires once at a given time. Times already in the past are
	// valid and fire on the next clock evaluation (misfire policy).
	KindAt ScheduleKind = "at"
	// KindEvery fires repeatedly at a fixed interval of at least one minute.
	KindEvery ScheduleKind = "every"
	// KindCron fires on a standard cron expression.
	KindCron ScheduleKind = "cron"
)

// Schedule describes when a task fires.
type Schedule struct {
	Kind  ScheduleKind
	At    time.Time
	Every time.Duration
	Cron  string
}

// Immediate returns a one-shot schedule due right away.
func Immediate() Schedule { return Schedule{Kind: KindImmediate} }

// At returns a one-shot schedule due at t.
func At(t time.Time) Schedule { return Schedule{Kind: KindAt, At: t} }

// Every returns a recurring interval schedule. The interval collapses to
// total minutes and must be at least one minute.
func Every(days, hours, minutes int) (Schedule, error) {
	total := time.Duration(days)*24*time.Hour +
		time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute
	if total < time.Minute {
		return Schedule{}, fmt.Errorf("%w: interval must total at least one minute", ErrInvalidSchedule)
	}
	return Schedule{Kind: KindEvery, Every: total}, nil
}

// Cron returns a recurring schedule from a standard cron expression.
func Cron(expr string) (Schedule, error) {
	if _, err := cron.ParseStandard(expr); err != nil {
		return Schedule{}, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	return Schedule{Kind: KindCron, Cron: expr}, nil
}

// Recurring reports whether the schedule fires more than once.
func (s Schedule) Recurring() bool { return s.Kind == KindEvery || s.Kind == KindCron }

// FirstRun returns the first due time for a newly registered task.
func (s Schedule) FirstRun(now time.Time) time.Time {
	switch s.Kind {
	case KindAt:
		return s.At // may be in the past; fires on the next evaluation
	case KindEvery:
		return now.Add(s.Every)
	case KindCron:
		next, _ := s.Next(now)
		return next
	default:
		return now
	}
}

// Next returns the due time following now, or false for an exhausted
// one-shot schedule.
func (s Schedule) Next(now time.Time) (time.Time, bool) {
	switch s.Kind {
	case KindEvery:
		return now.Add(s.Every), true
	case KindCron:
		sched, err := cron.ParseStandard(s.Cron)
		if err != nil {
			return time.Time{}, false
		}
		return sched.Next(now), true
	default:
		return time.Time{}, false
	}
}

// String renders the schedule as its storage descriptor.
func (s Schedule) String() string {
	switch s.Kind {
	case KindAt:
		return fmt.Sprintf("at %s", s.At.Format(time.RFC3339))
	case KindEvery:
		return fmt.Sprintf("every %s", s.Every)
	case KindCron:
		return fmt.Sprintf("cron %s", s.Cron)
	default:
		return string(KindImmediate)
	}
}

// ParseSchedule parses a storage descriptor produced by String.
func ParseSchedule(descriptor string) (Schedule, error) {
	descriptor = strings.TrimSpace(descriptor)
	switch {
	case descriptor == string(KindImmediate):
		return Immediate(), nil
	case strings.HasPrefix(descriptor, "at "):
		t, err := time.Parse(time.RFC3339, strings.TrimPrefix(descriptor, "at "))
		if err != nil {
			return Schedule{}, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
		}
		return At(t), nil
	case strings.HasPrefix(descriptor, "every "):
		d, err := time.ParseDuration(strings.TrimPrefix(descriptor, "every "))
		if err != nil || d < time.Minute {
			return Schedule{}, fmt.Errorf("%w: bad interval %q", ErrInvalidSchedule, descriptor)
		}
		return Schedule{Kind: KindEvery, Every: d}, nil
	case strings.HasPrefix(descriptor, "cron "):
		return Cron(strings.TrimPrefix(descriptor, "cron "))
	default:
		return Schedule{}, fmt.Errorf("%w: unknown descriptor %q", ErrInvalidSchedule, descriptor)
	}
}

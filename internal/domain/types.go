package domain

import "time"

// TaskKey uniquely identifies a task in the scheduler.
// The (Name, Group) pair is unique among live registrations; a key may be
// reused after the task carrying it has been deleted.
type TaskKey struct {
	Name  string `json:"name"`
	Group string `json:"group"`
}

func (k TaskKey) String() string { return k.Group + "/" + k.Name }

// TaskState is the lifecycle state of a registered task.
type TaskState string

const (
	StateScheduled TaskState = "scheduled"
	StatePaused    TaskState = "paused"
	StateFiring    TaskState = "firing"
	StateCompleted TaskState = "completed" // one-shot tasks only
	StateDeleted   TaskState = "deleted"
)

// TaskOutcome is the result of a single firing attempt.
type TaskOutcome string

const (
	OutcomeSuccess TaskOutcome = "success"
	OutcomeError   TaskOutcome = "error"
)

// Task is an engine-owned registration record.
type Task struct {
	Key          TaskKey
	ConsumerType string
	Schedule     Schedule
	Properties   map[string]any
	State        TaskState
	NextRun      time.Time // zero when no further firing is due
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TaskSummary is the read model returned by task introspection queries.
type TaskSummary struct {
	Name         string    `json:"name"`
	Group        string    `json:"group"`
	ConsumerType string    `json:"consumer_type"`
	Schedule     string    `json:"schedule"`
	State        TaskState `json:"state"`
	NextRun      time.Time `json:"next_run,omitempty"`
}

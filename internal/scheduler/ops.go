package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"taskmill/internal/domain"
	"taskmill/internal/telemetry"
)

// Schedule registers a new task. The key must not already exist in a
// non-deleted state; use Resend to re-fire an existing task. At schedules
// in the past are accepted and fire on the next clock evaluation.
func (e *Engine) Schedule(ctx context.Context, req Request) (domain.TaskKey, error) {
	if req.Key.Name == "" || req.Key.Group == "" {
		return domain.TaskKey{}, fmt.Errorf("%w: task name and group are required", domain.ErrInvalidSchedule)
	}
	if !e.consumers.Has(req.ConsumerType) {
		return domain.TaskKey{}, fmt.Errorf("%w: unknown consumer type %q", domain.ErrInvalidSchedule, req.ConsumerType)
	}

	now := time.Now()
	task := domain.Task{
		Key:          req.Key,
		ConsumerType: req.ConsumerType,
		Schedule:     req.Schedule,
		Properties:   req.Properties,
		State:        domain.StateScheduled,
		NextRun:      req.Schedule.FirstRun(now),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	e.mu.Lock()
	if _, exists := e.tasks[req.Key]; exists {
		e.mu.Unlock()
		return domain.TaskKey{}, fmt.Errorf("%w: %s", domain.ErrDuplicateTask, req.Key)
	}
	e.tasks[req.Key] = &taskEntry{task: task}
	total := len(e.tasks)
	e.mu.Unlock()
	telemetry.RegisteredTasks.Set(float64(total))

	if err := e.store.Save(ctx, task); err != nil {
		e.mu.Lock()
		delete(e.tasks, req.Key)
		total = len(e.tasks)
		e.mu.Unlock()
		telemetry.RegisteredTasks.Set(float64(total))
		return domain.TaskKey{}, fmt.Errorf("persist task: %w", err)
	}

	e.log.Info().Stringer("task", req.Key).Str("consumer", req.ConsumerType).
		Str("schedule", req.Schedule.String()).Time("next_run", task.NextRun).Msg("task scheduled")
	return req.Key, nil
}

// Pause suspends future firings for the task. Pausing an already-paused
// task is a no-op. A firing in flight completes before the pause applies.
func (e *Engine) Pause(ctx context.Context, name, group string) (domain.TaskState, error) {
	return e.transition(ctx, domain.TaskKey{Name: name, Group: group}, domain.StatePaused)
}

// Resume reactivates a paused task on its original cadence. Resuming an
// active task is a no-op.
func (e *Engine) Resume(ctx context.Context, name, group string) (domain.TaskState, error) {
	return e.transition(ctx, domain.TaskKey{Name: name, Group: group}, domain.StateScheduled)
}

func (e *Engine) transition(ctx context.Context, key domain.TaskKey, target domain.TaskState) (domain.TaskState, error) {
	e.mu.Lock()
	entry, ok := e.tasks[key]
	if !ok {
		e.mu.Unlock()
		return "", fmt.Errorf("%w: %s", domain.ErrTaskNotFound, key)
	}

	current := entry.task.State
	switch {
	case current == target:
		e.mu.Unlock()
		return current, nil
	case current == domain.StateCompleted:
		e.mu.Unlock()
		return current, nil
	case entry.firing:
		// Honored once the in-flight firing returns. Resuming clears a
		// pending pause.
		if target == domain.StatePaused {
			entry.pending = domain.StatePaused
		} else {
			entry.pending = ""
		}
		e.mu.Unlock()
		return domain.StateFiring, nil
	}

	entry.task.State = target
	entry.task.UpdatedAt = time.Now()
	nextRun := entry.task.NextRun
	e.mu.Unlock()

	if err := e.store.UpdateState(ctx, key, target, nextRun); err != nil {
		e.log.Error().Err(err).Stringer("task", key).Msg("persist task state failed")
	}
	e.log.Info().Stringer("task", key).Str("state", string(target)).Msg("task state changed")
	return target, nil
}

// Delete removes the task and returns the number removed (0 when absent).
// A firing in flight completes; only future firings are prevented.
func (e *Engine) Delete(ctx context.Context, name, group string) (int, error) {
	key := domain.TaskKey{Name: name, Group: group}

	e.mu.Lock()
	entry, ok := e.tasks[key]
	if !ok {
		e.mu.Unlock()
		return 0, nil
	}
	if entry.firing {
		if entry.pending == domain.StateDeleted {
			// Already marked by an earlier Delete; nothing left to count.
			e.mu.Unlock()
			return 0, nil
		}
		entry.pending = domain.StateDeleted
		entry.task.State = domain.StateFiring
	} else {
		delete(e.tasks, key)
	}
	total := len(e.tasks)
	e.mu.Unlock()
	telemetry.RegisteredTasks.Set(float64(total))

	if err := e.store.Delete(ctx, key); err != nil {
		e.log.Error().Err(err).Stringer("task", key).Msg("delete task row failed")
	}
	e.log.Info().Stringer("task", key).Msg("task deleted")
	return 1, nil
}

// DeleteAll removes every registered task and returns the count removed.
func (e *Engine) DeleteAll(ctx context.Context) (int, error) {
	e.mu.Lock()
	keys := make([]domain.TaskKey, 0, len(e.tasks))
	for key := range e.tasks {
		keys = append(keys, key)
	}
	e.mu.Unlock()

	removed := 0
	for _, key := range keys {
		n, _ := e.Delete(ctx, key.Name, key.Group)
		removed += n
	}
	return removed, nil
}

// Resend fires the task immediately with its original properties, outside
// its normal cadence; the next scheduled fire time is unchanged. Returns
// ErrTaskRunning when a firing for the key is already in flight, and a
// plain error when the engine is stopped.
func (e *Engine) Resend(ctx context.Context, name, group string) error {
	if !e.started.Load() {
		return fmt.Errorf("scheduler is not started")
	}
	key := domain.TaskKey{Name: name, Group: group}

	e.mu.Lock()
	entry, ok := e.tasks[key]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrTaskNotFound, key)
	}
	if entry.firing {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrTaskRunning, key)
	}
	entry.firing = true
	e.mu.Unlock()

	now := time.Now()
	e.wg.Add(1)
	e.sem <- struct{}{}
	go func() {
		defer e.wg.Done()
		defer func() { <-e.sem }()
		e.fireOffCadence(entry, now)
	}()

	e.log.Info().Stringer("task", key).Msg("task resent")
	return nil
}

// ListTasks returns summaries for every task, optionally filtered by group,
// ordered by group then name.
func (e *Engine) ListTasks(group string) []domain.TaskSummary {
	e.mu.Lock()
	summaries := make([]domain.TaskSummary, 0, len(e.tasks))
	for _, entry := range e.tasks {
		if group != "" && entry.task.Key.Group != group {
			continue
		}
		summaries = append(summaries, domain.TaskSummary{
			Name:         entry.task.Key.Name,
			Group:        entry.task.Key.Group,
			ConsumerType: entry.task.ConsumerType,
			Schedule:     entry.task.Schedule.String(),
			State:        entry.task.State,
			NextRun:      entry.task.NextRun,
		})
	}
	e.mu.Unlock()

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].Group != summaries[j].Group {
			return summaries[i].Group < summaries[j].Group
		}
		return summaries[i].Name < summaries[j].Name
	})
	return summaries
}

// ListGroups returns the distinct task groups, sorted.
func (e *Engine) ListGroups() []string {
	e.mu.Lock()
	seen := make(map[string]struct{})
	for key := range e.tasks {
		seen[key.Group] = struct{}{}
	}
	e.mu.Unlock()

	groups := make([]string, 0, len(seen))
	for g := range seen {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}

// PauseAll suspends dispatching engine-wide without touching per-task state.
func (e *Engine) PauseAll() {
	if !e.paused.Swap(true) {
		e.log.Info().Msg("scheduler paused")
	}
}

// ResumeAll reverses PauseAll.
func (e *Engine) ResumeAll() {
	if e.paused.Swap(false) {
		e.log.Info().Msg("scheduler resumed")
	}
}

// IsStarted reports whether the clock is running.
func (e *Engine) IsStarted() bool { return e.started.Load() }

// IsPaused reports whether dispatching is suspended engine-wide.
func (e *Engine) IsPaused() bool { return e.paused.Load() }

// TotalTasks returns the number of registered tasks.
func (e *Engine) TotalTasks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tasks)
}

// Package scheduler owns the clock-driven task registry and the task
// lifecycle state machine. One Engine is the single scheduling authority
// for a deployment; it is constructed explicitly and injected into the
// components that need it.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"taskmill/internal/consumer"
	"taskmill/internal/domain"
	"taskmill/internal/store"
	"taskmill/internal/telemetry"
)

// FiringRecord describes one completed firing attempt. The engine emits
// exactly one record per firing, success or not.
type FiringRecord struct {
	Key          domain.TaskKey
	ConsumerType string
	FireTime     time.Time
	RunTime      time.Duration
	Outcome      domain.TaskOutcome
	Log          string // consumer fault message, empty on success
	Detail       string // rendered property map
}

// FiringListener is invoked after every firing, before the worker returns.
// Listener failures must never affect scheduling.
type FiringListener interface {
	TaskFired(ctx context.Context, rec FiringRecord)
}

// Request is a scheduling request handed to Schedule.
type Request struct {
	Key          domain.TaskKey
	ConsumerType string
	Schedule     domain.Schedule
	Properties   map[string]any
}

type taskEntry struct {
	task    domain.Task
	firing  bool
	pending domain.TaskState // state to apply once an in-flight firing returns
}

// Engine schedules tasks and fires them through registered consumers.
//
// A single clock goroutine scans the in-memory registry; due tasks are
// dispatched onto a bounded worker pool so a slow consumer never delays
// unrelated firings. Store and consumer I/O always happen off the clock
// goroutine. Overlap policy is skip: at most one in-flight firing per key.
type Engine struct {
	log       zerolog.Logger
	store     store.TaskStore
	consumers *consumer.Registry
	listener  FiringListener
	poll      time.Duration
	sem       chan struct{}

	mu    sync.Mutex
	tasks map[domain.TaskKey]*taskEntry

	started atomic.Bool
	paused  atomic.Bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// Options tune the engine. Zero values fall back to defaults.
type Options struct {
	PollInterval time.Duration // clock evaluation interval, default 1s
	MaxWorkers   int           // bound on concurrent firings, default 8
	Listener     FiringListener
}

func NewEngine(log zerolog.Logger, ts store.TaskStore, consumers *consumer.Registry, opts Options) *Engine {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 8
	}
	return &Engine{
		log:       log.With().Str("component", "scheduler").Logger(),
		store:     ts,
		consumers: consumers,
		listener:  opts.Listener,
		poll:      opts.PollInterval,
		sem:       make(chan struct{}, opts.MaxWorkers),
		tasks:     make(map[domain.TaskKey]*taskEntry),
		stop:      make(chan struct{}),
	}
}

// Start loads durable registrations and starts the clock goroutine.
// Tasks persisted mid-firing are requeued (at-least-once semantics).
// A stopped engine may be started again.
func (e *Engine) Start(ctx context.Context) error {
	if e.started.Swap(true) {
		return nil
	}
	tasks, err := e.store.LoadAll(ctx)
	if err != nil {
		e.started.Store(false)
		return fmt.Errorf("load task registry: %w", err)
	}

	e.mu.Lock()
	for _, t := range tasks {
		if t.State == domain.StateFiring {
			// Interrupted by a restart; fire again as soon as possible.
			t.State = domain.StateScheduled
			if t.NextRun.IsZero() {
				t.NextRun = time.Now()
			}
		}
		e.tasks[t.Key] = &taskEntry{task: t}
	}
	total := len(e.tasks)
	e.mu.Unlock()
	telemetry.RegisteredTasks.Set(float64(total))

	// Fresh channel per start; Shutdown closed the previous one.
	e.stop = make(chan struct{})
	e.wg.Add(1)
	go e.run()
	e.log.Info().Int("tasks", total).Dur("poll", e.poll).Msg("scheduler started")
	return nil
}

// Shutdown stops the clock and waits for in-flight firings to finish.
func (e *Engine) Shutdown(ctx context.Context) error {
	if !e.started.Swap(false) {
		return nil
	}
	close(e.stop)
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		e.log.Info().Msg("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) run() {
	defer e.wg.Done()
	t := time.NewTicker(e.poll)
	defer t.Stop()
	for {
		select {
		case <-e.stop:
			return
		case now := <-t.C:
			if e.paused.Load() {
				continue
			}
			e.dispatchDue(now)
		}
	}
}

// dispatchDue runs on the clock goroutine. It only touches the in-memory
// registry; all I/O happens on firing workers.
func (e *Engine) dispatchDue(now time.Time) {
	e.mu.Lock()
	var due []*taskEntry
	for _, entry := range e.tasks {
		if entry.task.State != domain.StateScheduled || entry.task.NextRun.IsZero() {
			continue
		}
		if entry.firing {
			// Previous firing still in flight: skip this tick.
			e.log.Debug().Stringer("task", entry.task.Key).Msg("firing overlap, tick skipped")
			continue
		}
		if !entry.task.NextRun.After(now) {
			entry.firing = true
			entry.task.State = domain.StateFiring
			due = append(due, entry)
		}
	}
	e.mu.Unlock()

	for _, entry := range due {
		e.wg.Add(1)
		e.sem <- struct{}{}
		go func(entry *taskEntry, fireTime time.Time) {
			defer e.wg.Done()
			defer func() { <-e.sem }()
			e.fire(entry, fireTime, true)
		}(entry, now)
	}
}

// fireOffCadence is the resend path: one extra firing with the original
// properties, leaving the normal cadence untouched.
func (e *Engine) fireOffCadence(entry *taskEntry, fireTime time.Time) {
	e.fire(entry, fireTime, false)
}

// fire executes one firing attempt and applies the post-firing transition.
// Runs on a worker goroutine.
func (e *Engine) fire(entry *taskEntry, fireTime time.Time, onCadence bool) {
	e.mu.Lock()
	task := entry.task
	e.mu.Unlock()

	started := time.Now()
	err := e.invoke(task)
	elapsed := time.Since(started)

	outcome := domain.OutcomeSuccess
	logMsg := ""
	if err != nil {
		outcome = domain.OutcomeError
		logMsg = err.Error()
		e.log.Error().Err(err).Stringer("task", task.Key).Dur("run_time", elapsed).Msg("task failed")
	} else {
		e.log.Debug().Stringer("task", task.Key).Dur("run_time", elapsed).Msg("task executed")
	}

	if e.listener != nil {
		e.listener.TaskFired(context.Background(), FiringRecord{
			Key:          task.Key,
			ConsumerType: task.ConsumerType,
			FireTime:     fireTime,
			RunTime:      elapsed,
			Outcome:      outcome,
			Log:          logMsg,
			Detail:       fmt.Sprintf("%v", task.Properties),
		})
	}

	e.completeFiring(entry, fireTime, onCadence)
}

// invoke runs the bound consumer, converting panics into faults so one
// task's failure never reaches the clock goroutine.
func (e *Engine) invoke(task domain.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("consumer panic: %v\n%s", r, debug.Stack())
		}
	}()
	c, err := e.consumers.New(task.ConsumerType)
	if err != nil {
		return err
	}
	return c.Start(context.Background(), task.Properties)
}

// completeFiring transitions the entry out of the firing state, honoring
// any pause/delete requested while the consumer was running. Off-cadence
// firings leave the task's state and next fire time untouched.
func (e *Engine) completeFiring(entry *taskEntry, fireTime time.Time, onCadence bool) {
	e.mu.Lock()
	entry.firing = false
	key := entry.task.Key

	switch {
	case entry.pending == domain.StateDeleted:
		delete(e.tasks, key)
		total := len(e.tasks)
		e.mu.Unlock()
		telemetry.RegisteredTasks.Set(float64(total))
		// Row already removed by Delete.
		return
	case entry.pending == domain.StatePaused:
		entry.pending = ""
		entry.task.State = domain.StatePaused
	case !onCadence:
		// Resend: cadence unchanged.
		e.mu.Unlock()
		return
	case entry.task.Schedule.Recurring():
		next, _ := entry.task.Schedule.Next(fireTime)
		entry.task.State = domain.StateScheduled
		entry.task.NextRun = next
	default:
		entry.task.State = domain.StateCompleted
		entry.task.NextRun = time.Time{}
	}
	state, nextRun := entry.task.State, entry.task.NextRun
	e.mu.Unlock()

	e.persistState(key, state, nextRun)
}

func (e *Engine) persistState(key domain.TaskKey, state domain.TaskState, nextRun time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.store.UpdateState(ctx, key, state, nextRun); err != nil {
		e.log.Error().Err(err).Stringer("task", key).Msg("persist task state failed")
	}
}

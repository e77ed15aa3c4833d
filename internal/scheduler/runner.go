// Package scheduler drives everything in AdhanCompanion that happens on a
// clock: the prayer-time loop, the remembrance interval and the daily table
// refresh. The Runner owns the timers; loops register tasks with it.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// ===== SCHEDULE TYPE DEFINITIONS =====

// ScheduleType defines how a task is triggered.
type ScheduleType string

const (
	ScheduleTypeInterval ScheduleType = "interval" // Fixed delay between runs
	ScheduleTypeCron     ScheduleType = "cron"     // Cron expression with seconds field
)

// Schedule contains the trigger configuration for a task.
type Schedule struct {
	Type     ScheduleType  `json:"type"`
	Interval time.Duration `json:"interval,omitempty"`
	CronExpr string        `json:"cronExpr,omitempty"` // "5 0 0 * * *"
}

// Every builds an interval schedule.
func Every(d time.Duration) Schedule {
	return Schedule{Type: ScheduleTypeInterval, Interval: d}
}

// Cron builds a cron schedule. Expressions carry a leading seconds field.
func Cron(expr string) Schedule {
	return Schedule{Type: ScheduleTypeCron, CronExpr: expr}
}

// ===== TASK DEFINITIONS =====

// TaskFunc is the work a task performs on each trigger.
type TaskFunc func(ctx context.Context) error

// Task is a registered unit of work with execution statistics.
type Task struct {
	ID       string   `json:"id"`
	Schedule Schedule `json:"schedule"`

	LastRun   *time.Time `json:"lastRun,omitempty"`
	NextRun   *time.Time `json:"nextRun,omitempty"`
	RunCount  int        `json:"runCount"`
	FailCount int        `json:"failCount"`
	LastError string     `json:"lastError,omitempty"`

	fn        TaskFunc
	cronEntry cron.EntryID
	stopChan  chan struct{}
}

// ===== RUNNER IMPLEMENTATION =====

// Runner owns every timer in the process. Stopping it cancels all tasks.
type Runner struct {
	mutex    sync.Mutex
	tasks    map[string]*Task
	cron     *cron.Cron
	ctx      context.Context
	cancel   context.CancelFunc
	location *time.Location
}

// NewRunner creates a runner in the given timezone; empty means local time.
func NewRunner(timezone string) (*Runner, error) {
	location := time.Local
	if timezone != "" {
		loc, err := time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %s: %w", timezone, err)
		}
		location = loc
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Runner{
		tasks: make(map[string]*Task),
		cron: cron.New(
			cron.WithLocation(location),
			cron.WithSeconds(),
			cron.WithLogger(cronLogger{}),
		),
		ctx:      ctx,
		cancel:   cancel,
		location: location,
	}, nil
}

// Start begins firing cron tasks. Interval tasks start as soon as added.
func (r *Runner) Start() {
	r.cron.Start()
	log.Info().Msg("scheduler started")
}

// Stop cancels every task and waits for running cron jobs to return.
func (r *Runner) Stop() {
	r.cancel()
	<-r.cron.Stop().Done()

	r.mutex.Lock()
	for _, task := range r.tasks {
		r.unscheduleTask(task)
	}
	r.tasks = make(map[string]*Task)
	r.mutex.Unlock()

	log.Info().Msg("scheduler stopped")
}

// ===== TASK MANAGEMENT =====

// AddTask registers fn under id.
func (r *Runner) AddTask(id string, schedule Schedule, fn TaskFunc) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.ctx.Err() != nil {
		return fmt.Errorf("scheduler stopped")
	}
	if _, exists := r.tasks[id]; exists {
		return fmt.Errorf("task %s already exists", id)
	}

	task := &Task{
		ID:       id,
		Schedule: schedule,
		fn:       fn,
		stopChan: make(chan struct{}),
	}
	if err := r.scheduleTask(task); err != nil {
		return fmt.Errorf("failed to schedule task %s: %w", id, err)
	}
	r.tasks[id] = task

	log.Info().
		Str("task", id).
		Str("type", string(schedule.Type)).
		Dur("interval", schedule.Interval).
		Str("cron", schedule.CronExpr).
		Msg("task added")
	return nil
}

// ReplaceTask removes any task registered under id and adds the new one.
// This is the restart path: timers are recreated, never adjusted in place.
func (r *Runner) ReplaceTask(id string, schedule Schedule, fn TaskFunc) error {
	r.RemoveTask(id)
	return r.AddTask(id, schedule, fn)
}

// RemoveTask stops and forgets a task. Unknown ids are ignored and reported
// through the return value.
func (r *Runner) RemoveTask(id string) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	task, exists := r.tasks[id]
	if !exists {
		return false
	}
	r.unscheduleTask(task)
	delete(r.tasks, id)

	log.Info().Str("task", id).Msg("task removed")
	return true
}

// HasTask reports whether id is registered.
func (r *Runner) HasTask(id string) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	_, ok := r.tasks[id]
	return ok
}

// RunTaskNow executes a task once in the background, bypassing its schedule.
func (r *Runner) RunTaskNow(id string) error {
	r.mutex.Lock()
	task, exists := r.tasks[id]
	r.mutex.Unlock()

	if !exists {
		return fmt.Errorf("task %s not found", id)
	}
	go r.executeTask(task)
	return nil
}

// GetTask returns a snapshot of a task.
func (r *Runner) GetTask(id string) (Task, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	task, exists := r.tasks[id]
	if !exists {
		return Task{}, false
	}
	return snapshot(task), true
}

// ListTasks returns snapshots of all tasks.
func (r *Runner) ListTasks() []Task {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	tasks := make([]Task, 0, len(r.tasks))
	for _, task := range r.tasks {
		tasks = append(tasks, snapshot(task))
	}
	return tasks
}

func snapshot(task *Task) Task {
	cp := *task
	cp.fn = nil
	cp.stopChan = nil
	return cp
}

// ===== SCHEDULE IMPLEMENTATION =====

func (r *Runner) scheduleTask(task *Task) error {
	switch task.Schedule.Type {
	case ScheduleTypeInterval:
		return r.scheduleIntervalTask(task)
	case ScheduleTypeCron:
		return r.scheduleCronTask(task)
	default:
		return fmt.Errorf("unsupported schedule type: %s", task.Schedule.Type)
	}
}

func (r *Runner) scheduleIntervalTask(task *Task) error {
	interval := task.Schedule.Interval
	if interval <= 0 {
		return fmt.Errorf("invalid interval %s", interval)
	}

	task.NextRun = timePtr(time.Now().Add(interval))
	go r.runIntervalTask(task, interval, task.stopChan)
	return nil
}

// runIntervalTask fires on a fixed delay. A run that overlaps the next tick
// simply delays it; ticks never queue up.
func (r *Runner) runIntervalTask(task *Task, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			select {
			case <-stop:
				return
			default:
			}
			r.executeTask(task)
			r.mutex.Lock()
			task.NextRun = timePtr(time.Now().Add(interval))
			r.mutex.Unlock()
		case <-stop:
			return
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *Runner) scheduleCronTask(task *Task) error {
	entryID, err := r.cron.AddFunc(task.Schedule.CronExpr, func() {
		r.executeTask(task)
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %s: %w", task.Schedule.CronExpr, err)
	}
	task.cronEntry = entryID

	if entry := r.cron.Entry(entryID); entry.ID != 0 && !entry.Next.IsZero() {
		task.NextRun = timePtr(entry.Next)
	}
	return nil
}

// unscheduleTask must be called with r.mutex held.
func (r *Runner) unscheduleTask(task *Task) {
	if task.cronEntry != 0 {
		r.cron.Remove(task.cronEntry)
		task.cronEntry = 0
	}

	if task.stopChan != nil {
		select {
		case <-task.stopChan:
		default:
			close(task.stopChan)
		}
	}
	task.NextRun = nil
}

// ===== TASK EXECUTION =====

// executeTask runs a task and records its outcome. Panics are contained so a
// failing handler never kills the loop that drives it.
func (r *Runner) executeTask(task *Task) {
	startTime := time.Now()
	var runErr error

	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Str("task", task.ID).
				Interface("panic", rec).
				Msg("task panicked")
			runErr = fmt.Errorf("panic: %v", rec)
		}

		r.mutex.Lock()
		task.LastRun = &startTime
		task.RunCount++
		if runErr != nil {
			task.FailCount++
			task.LastError = runErr.Error()
		} else {
			task.LastError = ""
		}
		r.mutex.Unlock()
	}()

	runErr = task.fn(r.ctx)
	if runErr != nil {
		log.Error().
			Str("task", task.ID).
			Err(runErr).
			Msg("task failed")
		return
	}
	log.Debug().
		Str("task", task.ID).
		Dur("duration", time.Since(startTime)).
		Msg("task completed")
}

// ===== UTILITY FUNCTIONS =====

func timePtr(t time.Time) *time.Time {
	return &t
}

// cronLogger routes robfig/cron's logging onto zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Interface("data", keysAndValues).Msg(msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Interface("data", keysAndValues).Msg(msg)
}

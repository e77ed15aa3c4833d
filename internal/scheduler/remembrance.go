package scheduler

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// RemembranceTaskID is the runner id of the remembrance interval.
const RemembranceTaskID = "remembrance"

const (
	MinRemembranceInterval     = 1
	DefaultRemembranceInterval = 15
)

// RemembranceWindow shows and hides the remembrance overlay.
type RemembranceWindow interface {
	ShowRemembrance(ctx context.Context, item Zikr) error
	HideRemembrance(ctx context.Context) error
}

// Remembrance periodically shows a random zikr. The enabled check is made on
// every fire rather than captured at Start, so turning the feature off
// suppresses the next fire even if Stop is never called.
type Remembrance struct {
	runner  *Runner
	window  RemembranceWindow
	enabled func() bool
	items   []Zikr
	pick    func(n int) int

	mu       sync.Mutex
	interval time.Duration
}

// NewRemembrance wires the scheduler. enabled is read fresh on every fire.
func NewRemembrance(runner *Runner, window RemembranceWindow, enabled func() bool) *Remembrance {
	return &Remembrance{
		runner:  runner,
		window:  window,
		enabled: enabled,
		items:   DefaultAzkar,
		pick:    rand.IntN,
	}
}

// Start (re)creates the repeating timer. Any previous timer is discarded.
func (r *Remembrance) Start(intervalMinutes int) error {
	if intervalMinutes < MinRemembranceInterval {
		return fmt.Errorf("remembrance interval must be at least %d minute", MinRemembranceInterval)
	}
	return r.startEvery(time.Duration(intervalMinutes) * time.Minute)
}

func (r *Remembrance) startEvery(d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.runner.ReplaceTask(RemembranceTaskID, Every(d), r.fire); err != nil {
		return err
	}
	r.interval = d

	log.Info().Dur("interval", d).Msg("remembrance scheduler started")
	return nil
}

// Stop clears the timer and force-closes the remembrance overlay.
func (r *Remembrance) Stop(ctx context.Context) error {
	r.mu.Lock()
	r.runner.RemoveTask(RemembranceTaskID)
	r.interval = 0
	r.mu.Unlock()

	log.Info().Msg("remembrance scheduler stopped")
	return r.window.HideRemembrance(ctx)
}

// Running reports whether a timer is active.
func (r *Remembrance) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interval > 0
}

// Interval returns the active interval, zero when stopped.
func (r *Remembrance) Interval() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interval
}

// Apply reacts to a settings change. Disabling stops; enabling or changing
// the interval restarts with the new cadence. fallbackMinutes is used when
// enabling without an explicit interval.
func (r *Remembrance) Apply(ctx context.Context, intervalMinutes *int, enabled *bool, fallbackMinutes int) error {
	if enabled != nil && !*enabled {
		if !r.Running() {
			return nil
		}
		return r.Stop(ctx)
	}

	running := r.Running()
	current := int(r.Interval() / time.Minute)

	switch {
	case intervalMinutes != nil && (!running || *intervalMinutes != current):
		if !running && enabled == nil {
			// Interval edited while the feature is off: nothing to restart.
			return nil
		}
		return r.Start(*intervalMinutes)
	case enabled != nil && *enabled && !running:
		if fallbackMinutes < MinRemembranceInterval {
			fallbackMinutes = DefaultRemembranceInterval
		}
		return r.Start(fallbackMinutes)
	}
	return nil
}

// ShowNow shows a random zikr immediately, outside the interval.
func (r *Remembrance) ShowNow(ctx context.Context) error {
	return r.fire(ctx)
}

// fire is the task body.
func (r *Remembrance) fire(ctx context.Context) error {
	if r.enabled != nil && !r.enabled() {
		log.Debug().Msg("remembrance disabled; skipping fire")
		return nil
	}
	if len(r.items) == 0 {
		return nil
	}

	item := r.items[r.pick(len(r.items))]
	log.Info().Str("zikr", item.ID).Msg("showing remembrance")
	return r.window.ShowRemembrance(ctx, item)
}

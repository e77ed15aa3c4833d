package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"AdhanCompanion/internal/prayer"

	"github.com/rs/zerolog/log"
)

// PrayerTaskID is the runner id of the prayer tick.
const PrayerTaskID = "prayer-tick"

// DecisionKind is what a tick decided to do for one prayer.
type DecisionKind int

const (
	FireAdhan DecisionKind = iota + 1
	FirePreAlert
)

func (k DecisionKind) String() string {
	switch k {
	case FireAdhan:
		return "adhan"
	case FirePreAlert:
		return "pre-alert"
	default:
		return "none"
	}
}

// Decision is one action produced by Evaluate.
type Decision struct {
	Kind            DecisionKind
	Prayer          prayer.Name
	CountdownTarget time.Time // Set for FirePreAlert only
}

// RuntimeState is the loop's memory between ticks.
type RuntimeState struct {
	// LastProcessedMinute is minutes since midnight of the last evaluated
	// minute, -1 before the first evaluation.
	LastProcessedMinute int
}

// NewRuntimeState returns the never-evaluated state.
func NewRuntimeState() RuntimeState {
	return RuntimeState{LastProcessedMinute: -1}
}

// Evaluate decides what to fire at now. It marks the minute processed before
// returning any decision, so at most one call per calendar minute yields
// decisions. Disabled notifications leave the state untouched. Prayers are
// visited in prayer.AlertOrder; entries that are missing or unparsable are
// skipped.
func Evaluate(now time.Time, table prayer.Table, cfg prayer.Config, state *RuntimeState) []Decision {
	if !cfg.NotificationsEnabled {
		return nil
	}

	current := prayer.MinutesOf(now)
	if current == state.LastProcessedMinute {
		return nil
	}
	state.LastProcessedMinute = current

	var decisions []Decision
	for _, name := range prayer.AlertOrder {
		raw, ok := table[name]
		if !ok || raw == "" {
			continue
		}
		minutes, err := prayer.ParseClock(raw)
		if err != nil {
			log.Debug().Err(err).Str("prayer", string(name)).Msg("skipping unparsable prayer time")
			continue
		}

		diff := prayer.CircularDiff(minutes, current)
		switch {
		case diff == 0:
			decisions = append(decisions, Decision{Kind: FireAdhan, Prayer: name})
		case cfg.PreAlertEnabled && diff == cfg.PreAlertLeadMinutes:
			decisions = append(decisions, Decision{
				Kind:            FirePreAlert,
				Prayer:          name,
				CountdownTarget: prayer.NextOccurrence(now, minutes),
			})
		}
	}
	return decisions
}

// Owner is the main window the loop reports to. Without a live owner every
// tick is a silent no-op.
type Owner interface {
	Alive() bool
}

// Dispatcher carries decisions out.
type Dispatcher interface {
	FireAdhan(ctx context.Context, name prayer.Name) error
	FirePreAlert(ctx context.Context, name prayer.Name, target time.Time) error
}

// PrayerLoop is the thin driver around Evaluate.
type PrayerLoop struct {
	clock      *prayer.Clock
	owner      Owner
	dispatcher Dispatcher
	now        func() time.Time

	mu    sync.Mutex
	state RuntimeState
}

// NewPrayerLoop wires a loop to its collaborators.
func NewPrayerLoop(clock *prayer.Clock, owner Owner, dispatcher Dispatcher) *PrayerLoop {
	return &PrayerLoop{
		clock:      clock,
		owner:      owner,
		dispatcher: dispatcher,
		now:        time.Now,
		state:      NewRuntimeState(),
	}
}

// Register adds the loop to the runner at the given cadence.
func (l *PrayerLoop) Register(r *Runner, every time.Duration) error {
	return r.ReplaceTask(PrayerTaskID, Every(every), l.Tick)
}

// LastProcessedMinute exposes the de-duplication state for status reporting.
func (l *PrayerLoop) LastProcessedMinute() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.LastProcessedMinute
}

// Tick runs one evaluation. Dispatch failures are logged and joined into the
// returned error for the runner's statistics; they never stop the loop.
func (l *PrayerLoop) Tick(ctx context.Context) error {
	if l.owner == nil || !l.owner.Alive() {
		return nil
	}

	now := l.now()
	table := l.clock.Table()
	cfg := l.clock.Config()

	l.mu.Lock()
	decisions := Evaluate(now, table, cfg, &l.state)
	l.mu.Unlock()

	var errs []error
	for _, d := range decisions {
		if l.owner == nil || !l.owner.Alive() {
			break
		}

		logger := log.With().
			Str("prayer", string(d.Prayer)).
			Str("decision", d.Kind.String()).
			Int("minute", prayer.MinutesOf(now)).
			Logger()

		var err error
		switch d.Kind {
		case FireAdhan:
			err = l.dispatcher.FireAdhan(ctx, d.Prayer)
		case FirePreAlert:
			err = l.dispatcher.FirePreAlert(ctx, d.Prayer, d.CountdownTarget)
		}
		if err != nil {
			logger.Error().Err(err).Msg("dispatch failed")
			errs = append(errs, err)
			continue
		}
		logger.Info().Time("target", d.CountdownTarget).Msg("prayer alert dispatched")
	}
	return errors.Join(errs...)
}

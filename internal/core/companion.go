// Package core wires the prayer clock, scheduler loop, remembrance scheduler
// and widget registry into one owned instance, and exposes the command set
// the IPC façade and tray call into.
package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"AdhanCompanion/internal/audio"
	"AdhanCompanion/internal/config"
	"AdhanCompanion/internal/ipc"
	"AdhanCompanion/internal/notify"
	"AdhanCompanion/internal/prayer"
	"AdhanCompanion/internal/scheduler"
	"AdhanCompanion/internal/screen"
	"AdhanCompanion/internal/settings"
	"AdhanCompanion/internal/widget"

	"github.com/rs/zerolog/log"
)

// ===== CONSTANTS AND CONFIGURATION =====

const (
	// PreAlertAutoClose is how long a countdown overlay stays up.
	PreAlertAutoClose = 30 * time.Second
	// DuaAutoClose is how long the post-adhan supplication stays up.
	DuaAutoClose = 120 * time.Second
	// TestPreAlertLead is the simulated countdown of a test pre-alert.
	TestPreAlertLead = 15 * time.Minute
	// DefaultZikrDuration is the remembrance overlay lifetime in seconds.
	DefaultZikrDuration = 30

	// DailyRefreshTaskID asks the view layer for a fresh table after midnight.
	DailyRefreshTaskID = "daily-refresh"
	DailyRefreshCron   = "5 0 0 * * *"
)

var (
	// ErrFeatureDisabled is returned for direct requests to a feature the
	// user has turned off.
	ErrFeatureDisabled = errors.New("feature is disabled")
	ErrInvalidInput    = errors.New("invalid input")
)

// Main window states accepted by SetWindowState.
var windowStates = []string{"maximized", "restored", "minimized", "normal", "fullscreen"}

// ===== COMPANION =====

// Options are the collaborators a Companion is built from. Host, Bus and
// Store are required; the rest may be nil.
type Options struct {
	Config   *config.Config
	Store    settings.Store
	Bus      *ipc.Bus
	Host     widget.Host
	Screens  *screen.Provider
	Sounds   *audio.Catalog
	Notifier notify.Notifier
}

// Companion owns every stateful component of the daemon.
type Companion struct {
	conf     *config.Config
	store    settings.Store
	bus      *ipc.Bus
	screens  *screen.Provider
	sounds   *audio.Catalog
	notifier notify.Notifier

	clock       *prayer.Clock
	registry    *widget.Registry
	runner      *scheduler.Runner
	loop        *scheduler.PrayerLoop
	remembrance *scheduler.Remembrance
	alerts      *AlertLog

	now func() time.Time

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// New builds a companion. Nothing runs until Start.
func New(opts Options) (*Companion, error) {
	if opts.Store == nil || opts.Bus == nil || opts.Host == nil {
		return nil, errors.New("companion requires a store, a bus and a window host")
	}
	if opts.Config == nil {
		opts.Config = &config.Config{TickInterval: config.DefaultTickInterval, PreAlertSound: config.DefaultPreAlertSound}
	}
	if opts.Screens == nil {
		opts.Screens = screen.NewProvider()
	}

	runner, err := scheduler.NewRunner("")
	if err != nil {
		return nil, fmt.Errorf("create task runner: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Companion{
		conf:     opts.Config,
		store:    opts.Store,
		bus:      opts.Bus,
		screens:  opts.Screens,
		sounds:   opts.Sounds,
		notifier: opts.Notifier,
		clock:    prayer.NewClock(prayer.DefaultConfig()),
		runner:   runner,
		alerts:   NewAlertLog(),
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}

	c.registry = widget.NewRegistry(opts.Host, opts.Screens, opts.Store)
	c.loop = scheduler.NewPrayerLoop(c.clock, opts.Bus, c)
	c.remembrance = scheduler.NewRemembrance(runner, c, c.remembranceEnabled)

	c.clock.SetConfig(c.configFromSettings())
	return c, nil
}

// Start launches the runner, the prayer tick, the daily refresh and, when
// enabled, the remembrance interval.
func (c *Companion) Start() error {
	c.runner.Start()

	if err := c.loop.Register(c.runner, c.conf.TickInterval); err != nil {
		return fmt.Errorf("register prayer loop: %w", err)
	}

	err := c.runner.AddTask(DailyRefreshTaskID, scheduler.Cron(DailyRefreshCron), func(context.Context) error {
		c.bus.Publish(ipc.EventPrayerTimesRequested, map[string]string{
			"date": c.now().Format(time.DateOnly),
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("register daily refresh: %w", err)
	}

	if c.remembranceEnabled() {
		if err := c.remembrance.Start(c.zikrInterval()); err != nil {
			log.Error().Err(err).Msg("failed to start remembrance scheduler")
		}
	}

	log.Info().
		Dur("tick", c.conf.TickInterval).
		Bool("remembrance", c.remembrance.Running()).
		Msg("companion started")
	return nil
}

// Close stops every timer and closes all widgets.
func (c *Companion) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.runner.Stop()
		c.registry.CloseAll(context.Background())
		log.Info().Msg("companion stopped")
	})
}

// Registry exposes the widget registry for status and tests.
func (c *Companion) Registry() *widget.Registry { return c.registry }

// Clock exposes the prayer clock.
func (c *Companion) Clock() *prayer.Clock { return c.clock }

// Alerts exposes the dispatch history.
func (c *Companion) Alerts() *AlertLog { return c.alerts }

// ===== VIEW LIFECYCLE =====

// OnViewConnected runs when the main window opens its event stream. The mini
// clock is restored here rather than at Start because windows can only be
// created once a view is attached.
func (c *Companion) OnViewConnected(ctx context.Context) {
	// A fresh view recomputes the table rather than waiting for midnight.
	if c.runner.HasTask(DailyRefreshTaskID) {
		if err := c.runner.RunTaskNow(DailyRefreshTaskID); err != nil {
			log.Warn().Err(err).Msg("failed to request prayer times")
		}
	}

	if !settings.Bool(c.store, settings.KeyShowMiniWidget, false) {
		return
	}
	if c.registry.IsOpen(widget.SlotMiniClock) {
		return
	}
	if err := c.registry.Open(ctx, widget.SlotMiniClock, widget.OpenParams{}); err != nil {
		log.Warn().Err(err).Msg("failed to restore mini clock")
	}
}

// HandleSettingsChanged reacts to keys the view layer rewrote in the
// settings file.
func (c *Companion) HandleSettingsChanged(keys []string) {
	has := func(candidates ...string) bool {
		for _, k := range candidates {
			if slices.Contains(keys, k) {
				return true
			}
		}
		return false
	}

	if has(settings.KeyNotificationsEnabled, settings.KeyShowPreAdhan, settings.KeyPreAdhanMinutes, settings.KeySelectedAdhan) {
		c.clock.SetConfig(c.configFromSettings())
		log.Debug().Interface("config", c.clock.Config()).Msg("prayer config reloaded from settings")
	}

	if has(settings.KeyZikrEnabled, settings.KeyZikrInterval) {
		enabled := c.remembranceEnabled()
		interval := c.zikrInterval()
		if err := c.remembrance.Apply(c.ctx, &interval, &enabled, interval); err != nil {
			log.Error().Err(err).Msg("failed to apply remembrance settings")
		}
	}

	if has(settings.KeyShowMiniWidget) {
		var err error
		if settings.Bool(c.store, settings.KeyShowMiniWidget, false) {
			err = c.registry.Open(c.ctx, widget.SlotMiniClock, widget.OpenParams{})
		} else {
			err = c.registry.Close(c.ctx, widget.SlotMiniClock)
		}
		if err != nil {
			log.Warn().Err(err).Msg("failed to apply mini clock visibility")
		}
	}
}

// ===== SETTINGS HELPERS =====

// configFromSettings reads the persisted preferences that feed the clock.
// Keys that were never written keep the clock's current value.
func (c *Companion) configFromSettings() prayer.ConfigUpdate {
	var u prayer.ConfigUpdate

	var enabled bool
	if ok, err := c.store.Get(settings.KeyNotificationsEnabled, &enabled); ok && err == nil {
		u.NotificationsEnabled = &enabled
	}
	var pre bool
	if ok, err := c.store.Get(settings.KeyShowPreAdhan, &pre); ok && err == nil {
		u.PreAlertEnabled = &pre
	}
	var lead float64
	if ok, err := c.store.Get(settings.KeyPreAdhanMinutes, &lead); ok && err == nil {
		minutes := int(lead)
		u.PreAlertLeadMinutes = &minutes
	}
	if selected := settings.String(c.store, settings.KeySelectedAdhan, ""); selected != "" {
		u.AlertSoundPath = &selected
	}
	return u
}

func (c *Companion) remembranceEnabled() bool {
	return settings.Bool(c.store, settings.KeyZikrEnabled, false)
}

func (c *Companion) zikrInterval() int {
	minutes := settings.Int(c.store, settings.KeyZikrInterval, scheduler.DefaultRemembranceInterval)
	if minutes < scheduler.MinRemembranceInterval {
		return scheduler.DefaultRemembranceInterval
	}
	return minutes
}

func (c *Companion) zikrDuration() time.Duration {
	seconds := settings.Int(c.store, settings.KeyZikrDuration, DefaultZikrDuration)
	if seconds <= 0 {
		seconds = DefaultZikrDuration
	}
	return time.Duration(seconds) * time.Second
}

// adhanSound resolves the configured sound against the audio catalog.
func (c *Companion) adhanSound() string {
	selected := c.clock.Config().AlertSoundPath
	if c.sounds == nil {
		return selected
	}
	return c.sounds.Resolve(selected)
}

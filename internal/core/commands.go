package core

import (
	"context"
	"fmt"
	"slices"
	"time"

	"AdhanCompanion/internal/audio"
	"AdhanCompanion/internal/ipc"
	"AdhanCompanion/internal/prayer"
	"AdhanCompanion/internal/scheduler"
	"AdhanCompanion/internal/screen"
	"AdhanCompanion/internal/settings"
	"AdhanCompanion/internal/widget"

	"github.com/rs/zerolog/log"
)

// ===== PAYLOADS =====

// PrayerTimesUpdate is the partial update pushed by the view layer.
type PrayerTimesUpdate struct {
	Table prayer.Table `json:"table"`
	prayer.ConfigUpdate
}

// RemembranceUpdate carries the optional remembrance settings.
type RemembranceUpdate struct {
	IntervalMinutes *int  `json:"intervalMinutes,omitempty"`
	Enabled         *bool `json:"enabled,omitempty"`
}

// AudioPayload is the playAudio event body.
type AudioPayload struct {
	Path string `json:"path"`
}

// Status is the snapshot served by the status endpoint.
type Status struct {
	Now                 time.Time           `json:"now"`
	ViewConnected       bool                `json:"viewConnected"`
	LastProcessedMinute int                 `json:"lastProcessedMinute"`
	NextTick            *time.Time          `json:"nextTick,omitempty"`
	Table               prayer.Table        `json:"table"`
	Config              prayer.Config       `json:"config"`
	Widgets             []widget.SlotStatus `json:"widgets"`
	Remembrance         RemembranceStatus   `json:"remembrance"`
	Tasks               []scheduler.Task    `json:"tasks"`
	RecentAlerts        []AlertStatus       `json:"recentAlerts"`
}

// RemembranceStatus reports the interval scheduler.
type RemembranceStatus struct {
	Enabled         bool `json:"enabled"`
	Running         bool `json:"running"`
	IntervalMinutes int  `json:"intervalMinutes"`
}

// ===== PRAYER COMMANDS =====

// UpdatePrayerTimes merges a partial update into the clock. A nil table keeps
// the current one.
func (c *Companion) UpdatePrayerTimes(u PrayerTimesUpdate) {
	if u.Table != nil {
		c.clock.SetTable(u.Table)
	}
	if !u.ConfigUpdate.Empty() {
		c.clock.SetConfig(u.ConfigUpdate)
	}
	log.Info().
		Int("entries", len(u.Table)).
		Interface("config", c.clock.Config()).
		Msg("prayer times updated")
}

// RequestTestAdhan opens the adhan overlay for name outside the schedule.
func (c *Companion) RequestTestAdhan(ctx context.Context, name string) error {
	if name == "" {
		name = string(prayer.Fajr)
	}
	log.Info().Str("prayer", name).Msg("test adhan requested")
	return c.openAdhan(ctx, name, true)
}

// RequestTestPreAlert opens a countdown to TestPreAlertLead from now.
func (c *Companion) RequestTestPreAlert(ctx context.Context) error {
	target := c.now().Add(TestPreAlertLead).Truncate(time.Second)
	log.Info().Time("target", target).Msg("test pre-alert requested")
	return c.openPreAlert(ctx, "Test", target, true)
}

// AdhanFinished is reported by the adhan overlay when its audio ends. The
// overlay closes and the supplication follows, unless turned off.
func (c *Companion) AdhanFinished(ctx context.Context) error {
	if err := c.registry.Close(ctx, widget.SlotAdhanAlert); err != nil {
		return err
	}
	if !settings.Bool(c.store, settings.KeyDuaWidgetEnabled, true) {
		return nil
	}
	return c.registry.Open(ctx, widget.SlotDuaAfterAdhan, widget.OpenParams{AutoClose: DuaAutoClose})
}

// ===== WIDGET COMMANDS =====

// ParseSlot validates a slot name from a request.
func ParseSlot(name string) (widget.Slot, error) {
	slot := widget.Slot(name)
	switch slot {
	case widget.SlotAdhanAlert, widget.SlotDuaAfterAdhan, widget.SlotRemembrance, widget.SlotMiniClock:
		return slot, nil
	default:
		return "", fmt.Errorf("%w: %q", widget.ErrUnknownSlot, name)
	}
}

// OpenSlot opens slot on request. Remembrance is picked from the content set
// like a scheduled fire.
func (c *Companion) OpenSlot(ctx context.Context, slot widget.Slot) error {
	if err := c.checkEnabled(slot); err != nil {
		return err
	}
	switch slot {
	case widget.SlotRemembrance:
		return c.remembrance.ShowNow(ctx)
	case widget.SlotAdhanAlert:
		return c.RequestTestAdhan(ctx, "")
	case widget.SlotDuaAfterAdhan:
		return c.registry.Open(ctx, slot, widget.OpenParams{AutoClose: DuaAutoClose})
	default:
		return c.registry.Open(ctx, slot, widget.OpenParams{})
	}
}

// CloseSlot closes slot on request.
func (c *Companion) CloseSlot(ctx context.Context, slot widget.Slot) error {
	return c.registry.Close(ctx, slot)
}

// ToggleSlot toggles slot and returns whether it is now shown.
func (c *Companion) ToggleSlot(ctx context.Context, slot widget.Slot) (bool, error) {
	return c.registry.Toggle(ctx, slot)
}

// SetMiniClockScale resizes the mini clock and returns the applied scale.
func (c *Companion) SetMiniClockScale(scale float64) (float64, error) {
	return c.registry.SetMiniClockScale(scale)
}

func (c *Companion) checkEnabled(slot widget.Slot) error {
	switch slot {
	case widget.SlotRemembrance:
		if !c.remembranceEnabled() {
			return fmt.Errorf("%w: remembrance", ErrFeatureDisabled)
		}
	case widget.SlotDuaAfterAdhan:
		if !settings.Bool(c.store, settings.KeyDuaWidgetEnabled, true) {
			return fmt.Errorf("%w: dua after adhan", ErrFeatureDisabled)
		}
	}
	return nil
}

// ===== REMEMBRANCE COMMANDS =====

// UpdateRemembranceSettings persists the provided fields and applies them to
// the interval scheduler.
func (c *Companion) UpdateRemembranceSettings(ctx context.Context, u RemembranceUpdate) error {
	if u.IntervalMinutes != nil {
		if *u.IntervalMinutes < scheduler.MinRemembranceInterval {
			return fmt.Errorf("%w: remembrance interval must be at least %d minute", ErrInvalidInput, scheduler.MinRemembranceInterval)
		}
		if err := c.store.Set(settings.KeyZikrInterval, *u.IntervalMinutes); err != nil {
			return fmt.Errorf("persist remembrance interval: %w", err)
		}
	}
	if u.Enabled != nil {
		if err := c.store.Set(settings.KeyZikrEnabled, *u.Enabled); err != nil {
			return fmt.Errorf("persist remembrance toggle: %w", err)
		}
	}
	return c.remembrance.Apply(ctx, u.IntervalMinutes, u.Enabled, c.zikrInterval())
}

// ToggleRemembrance flips the remembrance feature. Used by the tray.
func (c *Companion) ToggleRemembrance(ctx context.Context) (bool, error) {
	enabled := !c.remembranceEnabled()
	return enabled, c.UpdateRemembranceSettings(ctx, RemembranceUpdate{Enabled: &enabled})
}

// ===== MAIN WINDOW AND AUDIO =====

// SetWindowState forwards a main window state change to the view.
func (c *Companion) SetWindowState(state string) error {
	if !slices.Contains(windowStates, state) {
		return fmt.Errorf("%w: unknown window state %q", ErrInvalidInput, state)
	}
	c.bus.Publish(ipc.EventWindowStateChanged, map[string]string{"state": state})
	return nil
}

// StopAudio tells every window to stop playback.
func (c *Companion) StopAudio() {
	c.bus.Publish(ipc.EventStopAudio, nil)
}

// MuteAudio tells every window to mute or unmute.
func (c *Companion) MuteAudio(muted bool) {
	c.bus.Publish(ipc.EventMuteAudio, map[string]bool{"muted": muted})
}

// PlayAudio asks the main window to play path.
func (c *Companion) PlayAudio(path string) {
	c.bus.Publish(ipc.EventPlayAudio, AudioPayload{Path: path})
}

// ===== DISPLAYS AND SOUNDS =====

// SetDisplays records the display geometry reported by the view.
func (c *Companion) SetDisplays(displays []screen.Display) {
	c.screens.SetDisplays(displays)
	log.Info().Int("displays", len(displays)).Msg("display geometry updated")
}

// Displays returns the known displays.
func (c *Companion) Displays() []screen.Display {
	return c.screens.Displays()
}

// Sounds lists the available adhan sounds.
func (c *Companion) Sounds() ([]audio.Sound, error) {
	if c.sounds == nil {
		return nil, nil
	}
	return c.sounds.List()
}

// ===== STATUS =====

// Status returns a snapshot for the status endpoint.
func (c *Companion) Status() Status {
	var nextTick *time.Time
	if task, ok := c.runner.GetTask(scheduler.PrayerTaskID); ok {
		nextTick = task.NextRun
	}
	return Status{
		Now:                 c.now(),
		ViewConnected:       c.bus.Alive(),
		LastProcessedMinute: c.loop.LastProcessedMinute(),
		NextTick:            nextTick,
		Table:               c.clock.Table(),
		Config:              c.clock.Config(),
		Widgets:             c.registry.Status(),
		Remembrance: RemembranceStatus{
			Enabled:         c.remembranceEnabled(),
			Running:         c.remembrance.Running(),
			IntervalMinutes: int(c.remembrance.Interval() / time.Minute),
		},
		Tasks:        c.runner.ListTasks(),
		RecentAlerts: c.alerts.Recent(),
	}
}

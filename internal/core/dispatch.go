package core

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"AdhanCompanion/internal/ipc"
	"AdhanCompanion/internal/notify"
	"AdhanCompanion/internal/prayer"
	"AdhanCompanion/internal/scheduler"
	"AdhanCompanion/internal/settings"
	"AdhanCompanion/internal/widget"

	"github.com/rs/zerolog/log"
)

// ===== PRAYER DISPATCH =====

// FireAdhan opens the adhan overlay with the configured sound. The overlay
// plays the sound itself and stays open until dismissed or AdhanFinished.
func (c *Companion) FireAdhan(ctx context.Context, name prayer.Name) error {
	return c.openAdhan(ctx, string(name), false)
}

// FirePreAlert opens the adhan overlay in countdown mode without sound, asks
// the main window to play the pre-alert sound, and closes after
// PreAlertAutoClose.
func (c *Companion) FirePreAlert(ctx context.Context, name prayer.Name, target time.Time) error {
	return c.openPreAlert(ctx, string(name), target, false)
}

func (c *Companion) openAdhan(ctx context.Context, name string, test bool) error {
	sound := c.adhanSound()
	query := url.Values{
		"mode":   {"adhan"},
		"prayer": {name},
	}
	if sound != "" {
		query.Set("audio", sound)
	}

	err := c.registry.Open(ctx, widget.SlotAdhanAlert, widget.OpenParams{Query: query})
	c.recordAlert(notify.KindAdhan, name, test, err)
	if err != nil {
		return fmt.Errorf("open adhan for %s: %w", name, err)
	}

	c.notify(ctx, notify.Notice{Kind: notify.KindAdhan, Prayer: name, At: c.now(), Test: test})
	return nil
}

func (c *Companion) openPreAlert(ctx context.Context, name string, target time.Time, test bool) error {
	query := url.Values{
		"mode":   {"countdown"},
		"prayer": {name},
		"target": {target.Format(time.RFC3339)},
	}

	err := c.registry.Open(ctx, widget.SlotAdhanAlert, widget.OpenParams{
		Query:     query,
		AutoClose: PreAlertAutoClose,
	})
	c.recordAlert(notify.KindPreAlert, name, test, err)
	if err != nil {
		return fmt.Errorf("open pre-alert for %s: %w", name, err)
	}

	if sound := c.conf.PreAlertSound; sound != "" {
		c.bus.Publish(ipc.EventPlayAudio, AudioPayload{Path: sound})
	}
	c.notify(ctx, notify.Notice{Kind: notify.KindPreAlert, Prayer: name, At: c.now(), Target: target, Test: test})
	return nil
}

// notify is best effort: the overlay already opened.
func (c *Companion) notify(ctx context.Context, n notify.Notice) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Notify(ctx, n); err != nil {
		log.Warn().Err(err).Str("prayer", n.Prayer).Str("kind", string(n.Kind)).Msg("notification delivery failed")
	}
}

func (c *Companion) recordAlert(kind notify.Kind, name string, test bool, err error) {
	status := AlertStatus{
		Timestamp: c.now(),
		Prayer:    name,
		Kind:      string(kind),
		Test:      test,
		Success:   err == nil,
	}
	if err != nil {
		status.Info = err.Error()
	}
	c.alerts.Record(status)
}

// ===== REMEMBRANCE WINDOW =====

// ShowRemembrance opens the remembrance overlay at the configured corner.
func (c *Companion) ShowRemembrance(ctx context.Context, item scheduler.Zikr) error {
	query := url.Values{
		"id":              {item.ID},
		"arabic":          {item.Arabic},
		"transliteration": {item.Transliteration},
		"translation":     {item.Translation},
	}
	return c.registry.Open(ctx, widget.SlotRemembrance, widget.OpenParams{
		Query:     query,
		AutoClose: c.zikrDuration(),
		Corner:    widget.ParseCorner(settings.String(c.store, settings.KeyZikrPosition, "")),
	})
}

// HideRemembrance closes the remembrance overlay.
func (c *Companion) HideRemembrance(ctx context.Context) error {
	return c.registry.Close(ctx, widget.SlotRemembrance)
}

// Package notify fans prayer alerts out to channels outside the overlay
// windows: native desktop notifications and an optional MQTT bridge.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gen2brain/beeep"
	"github.com/rs/zerolog/log"
)

// Kind is the alert that produced a notice.
type Kind string

const (
	KindAdhan    Kind = "adhan"
	KindPreAlert Kind = "pre-alert"
)

// Notice is one alert.
type Notice struct {
	Kind   Kind      `json:"kind"`
	Prayer string    `json:"prayer"`
	At     time.Time `json:"at"`              // When the notice was raised
	Target time.Time `json:"target,omitzero"` // Prayer time for pre-alerts
	Test   bool      `json:"test,omitempty"`  // Raised from a test request
}

// Title is the notification headline.
func (n Notice) Title() string {
	if n.Kind == KindPreAlert {
		return fmt.Sprintf("%s is coming up", n.Prayer)
	}
	return fmt.Sprintf("Time for %s", n.Prayer)
}

// Message is the notification body.
func (n Notice) Message() string {
	if n.Kind == KindPreAlert && !n.Target.IsZero() {
		return fmt.Sprintf("%s prayer at %s", n.Prayer, n.Target.Format("15:04"))
	}
	return fmt.Sprintf("It is time for %s prayer", n.Prayer)
}

// Notifier delivers a notice somewhere.
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// Multi delivers to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notice) error {
	var errs []error
	for _, notifier := range m {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ===== DESKTOP =====

// Desktop shows native notifications through beeep.
type Desktop struct {
	icon string
	send func(title, message, icon string) error
}

// NewDesktop returns a desktop notifier using icon, which may be empty.
func NewDesktop(icon string) *Desktop {
	return &Desktop{
		icon: icon,
		send: func(title, message, icon string) error {
			return beeep.Notify(title, message, icon)
		},
	}
}

func (d *Desktop) Notify(_ context.Context, n Notice) error {
	if err := d.send(n.Title(), n.Message(), d.icon); err != nil {
		return fmt.Errorf("desktop notification: %w", err)
	}
	log.Debug().Str("kind", string(n.Kind)).Str("prayer", n.Prayer).Msg("desktop notification shown")
	return nil
}

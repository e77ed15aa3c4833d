// Package prayer holds today's prayer-time table and the alert preferences
// the scheduler reads on every tick. It has no timers of its own.
package prayer

import (
	"fmt"
	"sync"
	"time"
)

// Name identifies one of the daily prayer times.
type Name string

const (
	Fajr    Name = "Fajr"
	Sunrise Name = "Sunrise"
	Dhuhr   Name = "Dhuhr"
	Asr     Name = "Asr"
	Maghrib Name = "Maghrib"
	Isha    Name = "Isha"
)

// MinutesPerDay is the modulus for circular time-of-day arithmetic.
const MinutesPerDay = 24 * 60

// AlertOrder is the fixed evaluation order for alerting. Sunrise is listed
// in the table but never alerted.
var AlertOrder = []Name{Fajr, Dhuhr, Asr, Maghrib, Isha}

// AllNames lists every name a table may carry, in day order.
var AllNames = []Name{Fajr, Sunrise, Dhuhr, Asr, Maghrib, Isha}

// Valid reports whether n is a known prayer name.
func (n Name) Valid() bool {
	for _, known := range AllNames {
		if n == known {
			return true
		}
	}
	return false
}

// Table maps prayer names to local "HH:mm" strings.
type Table map[Name]string

// Config is the scheduler-facing slice of user preferences.
type Config struct {
	AlertSoundPath       string `json:"alertSoundPath"`
	NotificationsEnabled bool   `json:"notificationsEnabled"`
	PreAlertEnabled      bool   `json:"preAlertEnabled"`
	PreAlertLeadMinutes  int    `json:"preAlertLeadMinutes"`
}

// DefaultConfig matches the view layer's first-run defaults.
func DefaultConfig() Config {
	return Config{
		NotificationsEnabled: true,
		PreAlertEnabled:      true,
		PreAlertLeadMinutes:  15,
	}
}

// ConfigUpdate is a partial Config; nil fields keep their current value.
type ConfigUpdate struct {
	AlertSoundPath       *string `json:"alertSoundPath,omitempty"`
	NotificationsEnabled *bool   `json:"notificationsEnabled,omitempty"`
	PreAlertEnabled      *bool   `json:"preAlertEnabled,omitempty"`
	PreAlertLeadMinutes  *int    `json:"preAlertLeadMinutes,omitempty"`
}

// Empty reports whether the update carries no fields.
func (u ConfigUpdate) Empty() bool {
	return u.AlertSoundPath == nil && u.NotificationsEnabled == nil &&
		u.PreAlertEnabled == nil && u.PreAlertLeadMinutes == nil
}

// Clock is the current table plus config. One instance per process, owned
// by the companion and shared with the scheduler loop.
type Clock struct {
	mu     sync.RWMutex
	table  Table
	config Config
}

// NewClock returns a clock with an empty table.
func NewClock(config Config) *Clock {
	return &Clock{table: Table{}, config: config}
}

// SetTable replaces the active table. The scheduler sees it on its next tick.
func (c *Clock) SetTable(table Table) {
	cp := make(Table, len(table))
	for k, v := range table {
		cp[k] = v
	}
	c.mu.Lock()
	c.table = cp
	c.mu.Unlock()
}

// SetConfig shallow-merges the provided fields.
func (c *Clock) SetConfig(u ConfigUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if u.AlertSoundPath != nil {
		c.config.AlertSoundPath = *u.AlertSoundPath
	}
	if u.NotificationsEnabled != nil {
		c.config.NotificationsEnabled = *u.NotificationsEnabled
	}
	if u.PreAlertEnabled != nil {
		c.config.PreAlertEnabled = *u.PreAlertEnabled
	}
	if u.PreAlertLeadMinutes != nil {
		c.config.PreAlertLeadMinutes = *u.PreAlertLeadMinutes
	}
}

// Config returns the current config.
func (c *Clock) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config
}

// Table returns a copy of the current table.
func (c *Clock) Table() Table {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cp := make(Table, len(c.table))
	for k, v := range c.table {
		cp[k] = v
	}
	return cp
}

// ===== TIME-OF-DAY ARITHMETIC =====

// ParseClock converts "HH:mm" to minutes since midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// MinutesOf returns minutes since local midnight for t.
func MinutesOf(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// CircularDiff is the forward distance in minutes from current to prayer,
// wrapping at midnight: a prayer ten minutes ago reads 1430, now reads 0.
func CircularDiff(prayerMinutes, currentMinutes int) int {
	return ((prayerMinutes-currentMinutes)%MinutesPerDay + MinutesPerDay) % MinutesPerDay
}

// NextOccurrence returns today's wall-clock time at minutes, or tomorrow's
// when that moment has already passed.
func NextOccurrence(now time.Time, minutes int) time.Time {
	y, m, d := now.Date()
	at := time.Date(y, m, d, minutes/60, minutes%60, 0, 0, now.Location())
	if at.Before(now) {
		at = time.Date(y, m, d+1, minutes/60, minutes%60, 0, 0, now.Location())
	}
	return at
}

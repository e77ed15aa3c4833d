package core

import (
	"encoding/json"
	"sync"
	"time"
)

// alertHistorySize is how many dispatches the status endpoint remembers.
const alertHistorySize = 20

// ===== ALERT STATUS TRACKING =====

// AlertStatus records one adhan or pre-alert dispatch for status display.
type AlertStatus struct {
	Timestamp time.Time `json:"timestamp"`      // When the alert was dispatched
	Prayer    string    `json:"prayer"`         // Prayer the alert was for
	Kind      string    `json:"kind"`           // "adhan" or "pre-alert"
	Test      bool      `json:"test,omitempty"` // Raised from a test request
	Success   bool      `json:"success"`        // Whether the window opened
	Info      string    `json:"info,omitempty"` // Error details on failure
}

// String returns a JSON representation for debugging
func (s AlertStatus) String() string {
	data, _ := json.Marshal(s)
	return string(data)
}

// AlertLog is a bounded, newest-last history of dispatches.
type AlertLog struct {
	mu      sync.Mutex
	entries []AlertStatus
	last    map[string]AlertStatus // prayer -> latest
}

// NewAlertLog returns an empty log.
func NewAlertLog() *AlertLog {
	return &AlertLog{last: make(map[string]AlertStatus)}
}

// Record appends status, evicting the oldest entry when full.
func (l *AlertLog) Record(status AlertStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) == alertHistorySize {
		copy(l.entries, l.entries[1:])
		l.entries = l.entries[:alertHistorySize-1]
	}
	l.entries = append(l.entries, status)
	l.last[status.Prayer] = status
}

// Last returns the most recent dispatch for prayer.
func (l *AlertLog) Last(prayer string) (AlertStatus, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	status, ok := l.last[prayer]
	return status, ok
}

// Recent returns a copy of the history, oldest first.
func (l *AlertLog) Recent() []AlertStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]AlertStatus(nil), l.entries...)
}

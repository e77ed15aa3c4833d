//go:build !windows

// Package tray provides the system tray menu for AdhanCompanion. This file is
// the stub used where no tray is available; Run blocks until Quit so the
// caller's lifecycle is the same on every platform.
package tray

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// ===== BUILD CONFIGURATION =====

// WindowsBuild indicates whether the Windows tray implementation is compiled in.
var WindowsBuild = false

// ===== CALLBACK FUNCTION TYPES =====

// Callbacks connects the tray to the companion.
type Callbacks struct {
	OnToggleMiniClock   func()
	MiniClockShown      func() bool
	OnToggleRemembrance func()
	RemembranceEnabled  func() bool
	OnTestAdhan         func()
	OnTestPreAlert      func()
	OnStopAudio         func()
	OnQuit              func()
}

var (
	quitOnce sync.Once
	quitCh   = make(chan struct{})
)

// ===== PLATFORM-SPECIFIC IMPLEMENTATION =====

// Run logs that no tray is available and blocks until Quit.
func Run(icon []byte, callbacks Callbacks) {
	log.Info().
		Str("platform", "non-windows").
		Int("icon_bytes", len(icon)).
		Msg("system tray functionality not available on this platform")

	logCallbackAvailability(callbacks)

	<-quitCh
}

// Quit releases Run.
func Quit() {
	quitOnce.Do(func() { close(quitCh) })
}

// ===== UTILITY FUNCTIONS =====

func logCallbackAvailability(callbacks Callbacks) {
	callbackStatus := map[string]bool{
		"OnToggleMiniClock":   callbacks.OnToggleMiniClock != nil,
		"OnToggleRemembrance": callbacks.OnToggleRemembrance != nil,
		"OnTestAdhan":         callbacks.OnTestAdhan != nil,
		"OnTestPreAlert":      callbacks.OnTestPreAlert != nil,
		"OnStopAudio":         callbacks.OnStopAudio != nil,
		"OnQuit":              callbacks.OnQuit != nil,
	}

	log.Debug().
		Interface("callbacks", callbackStatus).
		Msg("tray callback availability")
}

// IsValidICO checks if the provided icon data has a valid ICO header.
func IsValidICO(icon []byte) bool {
	return len(icon) >= 4 && icon[0] == 0x00 && icon[1] == 0x00 && icon[2] == 0x01 && icon[3] == 0x00
}

// IsSupported returns whether system tray functionality is supported on the current platform
func IsSupported() bool {
	return false
}

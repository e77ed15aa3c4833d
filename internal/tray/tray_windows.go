//go:build windows

// Package tray provides the system tray menu for AdhanCompanion on Windows.
// Every menu item calls back into the same command set the HTTP API uses.
package tray

import (
	"time"

	"github.com/getlantern/systray"
	"github.com/rs/zerolog/log"
)

// ===== BUILD CONFIGURATION =====

// WindowsBuild indicates whether the Windows tray implementation is compiled in.
var WindowsBuild = true

// ===== CONSTANTS AND CONFIGURATION =====

const (
	AppTitle   = "Adhan Companion"
	AppTooltip = "Adhan Companion - prayer times and reminders"

	// Menu item labels
	MenuMiniClock   = "Mini clock"
	MenuRemembrance = "Remembrance reminders"
	MenuTestAdhan   = "Test adhan"
	MenuTestPre     = "Test pre-adhan countdown"
	MenuStopAudio   = "Stop audio"
	MenuQuit        = "Quit"

	// Menu item descriptions
	DescMiniClock   = "Show or hide the floating prayer clock"
	DescRemembrance = "Enable or disable periodic remembrance"
	DescTestAdhan   = "Open the adhan overlay now"
	DescTestPre     = "Open a 15 minute countdown overlay now"
	DescStopAudio   = "Stop any playing adhan"
	DescQuit        = "Quit the application"

	// ICO file header signature for icon validation
	ICOHeaderByte0 = 0x00
	ICOHeaderByte1 = 0x00
	ICOHeaderByte2 = 0x01
	ICOHeaderByte3 = 0x00

	// StateRefreshInterval re-reads checkbox state changed elsewhere (view
	// layer or HTTP API).
	StateRefreshInterval = 5 * time.Second
)

// ===== TYPE DEFINITIONS =====

// Callbacks connects the tray to the companion.
type Callbacks struct {
	// OnToggleMiniClock shows or hides the mini clock.
	OnToggleMiniClock func()
	// MiniClockShown reports the mini clock checkbox state.
	MiniClockShown func() bool

	// OnToggleRemembrance flips the remembrance feature.
	OnToggleRemembrance func()
	// RemembranceEnabled reports the remembrance checkbox state.
	RemembranceEnabled func() bool

	OnTestAdhan    func()
	OnTestPreAlert func()
	OnStopAudio    func()

	// OnQuit runs before the tray exits.
	OnQuit func()
}

// ===== TRAY MANAGEMENT STRUCTURE =====

type trayManager struct {
	callbacks Callbacks

	miniClockItem   *systray.MenuItem
	remembranceItem *systray.MenuItem
	testAdhanItem   *systray.MenuItem
	testPreItem     *systray.MenuItem
	stopAudioItem   *systray.MenuItem
	quitItem        *systray.MenuItem
}

// ===== MAIN ENTRY POINT =====

// Run starts the tray and blocks until it is closed.
func Run(icon []byte, callbacks Callbacks) {
	log.Info().Msg("starting Windows system tray")

	systray.Run(
		func() { onReady(icon, callbacks) },
		func() { onExit() },
	)
}

// Quit closes the tray from outside the menu, e.g. on a shutdown signal.
func Quit() {
	systray.Quit()
}

// ===== SYSTRAY LIFECYCLE HANDLERS =====

func onReady(icon []byte, callbacks Callbacks) {
	log.Debug().Msg("system tray ready, initializing")

	manager := &trayManager{callbacks: callbacks}

	setupTrayProperties(icon)
	manager.createMainMenu()
	manager.startEventHandlers()
	manager.startPeriodicUpdates()

	log.Info().Msg("system tray initialized successfully")
}

func onExit() {
	log.Info().Msg("system tray shutting down")
}

// ===== TRAY SETUP FUNCTIONS =====

func setupTrayProperties(icon []byte) {
	systray.SetTitle(AppTitle)
	systray.SetTooltip(AppTooltip)

	if IsValidICO(icon) {
		systray.SetIcon(icon)
		log.Debug().Msg("tray icon set successfully")
	} else if len(icon) > 0 {
		log.Warn().Msg("provided icon is not in ICO format, using default icon")
	} else {
		log.Debug().Msg("no icon provided, using default system icon")
	}
}

// IsValidICO checks if the provided icon data has a valid ICO header.
func IsValidICO(icon []byte) bool {
	if len(icon) < 4 {
		return false
	}

	return icon[0] == ICOHeaderByte0 &&
		icon[1] == ICOHeaderByte1 &&
		icon[2] == ICOHeaderByte2 &&
		icon[3] == ICOHeaderByte3
}

// ===== MENU CREATION =====

func (tm *trayManager) createMainMenu() {
	tm.miniClockItem = systray.AddMenuItemCheckbox(MenuMiniClock, DescMiniClock, state(tm.callbacks.MiniClockShown))
	tm.remembranceItem = systray.AddMenuItemCheckbox(MenuRemembrance, DescRemembrance, state(tm.callbacks.RemembranceEnabled))

	systray.AddSeparator()
	tm.testAdhanItem = systray.AddMenuItem(MenuTestAdhan, DescTestAdhan)
	tm.testPreItem = systray.AddMenuItem(MenuTestPre, DescTestPre)
	tm.stopAudioItem = systray.AddMenuItem(MenuStopAudio, DescStopAudio)

	systray.AddSeparator()
	tm.quitItem = systray.AddMenuItem(MenuQuit, DescQuit)

	log.Debug().Msg("main menu structure created")
}

// ===== EVENT HANDLING =====

func (tm *trayManager) startEventHandlers() {
	go tm.handleToggle(tm.miniClockItem, "mini clock", tm.callbacks.OnToggleMiniClock, tm.callbacks.MiniClockShown)
	go tm.handleToggle(tm.remembranceItem, "remembrance", tm.callbacks.OnToggleRemembrance, tm.callbacks.RemembranceEnabled)
	go tm.handleClicks(tm.testAdhanItem, "test adhan", tm.callbacks.OnTestAdhan)
	go tm.handleClicks(tm.testPreItem, "test pre-alert", tm.callbacks.OnTestPreAlert)
	go tm.handleClicks(tm.stopAudioItem, "stop audio", tm.callbacks.OnStopAudio)
	go tm.handleQuitClicks()

	log.Debug().Msg("event handlers started")
}

func (tm *trayManager) handleClicks(item *systray.MenuItem, name string, fn func()) {
	for range item.ClickedCh {
		log.Info().Str("item", name).Msg("tray: clicked")
		if fn == nil {
			log.Warn().Str("item", name).Msg("tray callback not provided")
			continue
		}
		fn()
	}
}

// handleToggle runs fn and then re-reads the real state, since the action
// can fail or be overridden.
func (tm *trayManager) handleToggle(item *systray.MenuItem, name string, fn func(), current func() bool) {
	for range item.ClickedCh {
		log.Info().Str("item", name).Bool("was_checked", item.Checked()).Msg("tray: toggle clicked")
		if fn == nil {
			log.Warn().Str("item", name).Msg("tray callback not provided")
			continue
		}
		fn()
		syncCheck(item, state(current))
	}
}

func (tm *trayManager) handleQuitClicks() {
	for range tm.quitItem.ClickedCh {
		log.Info().Msg("tray: Quit clicked")

		if tm.callbacks.OnQuit != nil {
			tm.callbacks.OnQuit()
		}

		systray.Quit()
		return
	}
}

// ===== STATE REFRESH =====

func (tm *trayManager) startPeriodicUpdates() {
	if tm.callbacks.MiniClockShown == nil && tm.callbacks.RemembranceEnabled == nil {
		log.Debug().Msg("no state callbacks provided, skipping periodic updates")
		return
	}

	go func() {
		ticker := time.NewTicker(StateRefreshInterval)
		defer ticker.Stop()

		for range ticker.C {
			syncCheck(tm.miniClockItem, state(tm.callbacks.MiniClockShown))
			syncCheck(tm.remembranceItem, state(tm.callbacks.RemembranceEnabled))
		}
	}()
}

func syncCheck(item *systray.MenuItem, checked bool) {
	if item.Checked() == checked {
		return
	}
	if checked {
		item.Check()
	} else {
		item.Uncheck()
	}
}

func state(fn func() bool) bool {
	return fn != nil && fn()
}

// ===== UTILITY FUNCTIONS =====

// IsSupported returns whether system tray functionality is supported on Windows
func IsSupported() bool {
	return true
}

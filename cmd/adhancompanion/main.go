// Package main is the entry point of the AdhanCompanion daemon. It loads
// configuration, wires the companion core to the IPC server, and runs either
// under the system tray or headless.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"AdhanCompanion/internal/api"
	"AdhanCompanion/internal/audio"
	cfg "AdhanCompanion/internal/config"
	"AdhanCompanion/internal/core"
	"AdhanCompanion/internal/ipc"
	"AdhanCompanion/internal/logging"
	"AdhanCompanion/internal/notify"
	"AdhanCompanion/internal/settings"
	"AdhanCompanion/internal/tray"
	"AdhanCompanion/internal/widget"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ===== BUILD INFORMATION =====

// version is set during build time
var version = "0.1.0"

// ===== CONFIGURATION CONSTANTS =====

const (
	TrayIconAsset         = "icon.ico"
	NotificationIconAsset = "icon.png"
)

// ===== COMMAND LINE CONFIGURATION =====

type options struct {
	Listen     string // Overrides the configured listen address
	ConfigPath string // Path to config.yaml
	NoTray     bool   // Run headless
	Console    bool   // Mirror logs to stderr
}

// app holds everything that has to be shut down.
type app struct {
	companion  *core.Companion
	server     *api.Server
	httpServer *http.Server
	mqtt       *notify.MQTT
}

// ===== MAIN APPLICATION ENTRY POINT =====

func main() {
	defer func() {
		if r := recover(); r != nil {
			execPath, _ := os.Executable()
			crashFile := filepath.Join(filepath.Dir(execPath), "crash.log")
			crashMsg := fmt.Sprintf("PANIC at %s: %v\n", time.Now().Format(time.RFC3339), r)
			_ = os.WriteFile(crashFile, []byte(crashMsg), 0o644)
			panic(r)
		}
	}()

	opts := parseCommandLineArgs()

	paths, err := initializePaths(opts.ConfigPath)
	if err != nil {
		exitWithError("resolve paths", err)
	}

	logConf := logging.DefaultConfig(paths.LogsDir)
	logConf.ConsoleOut = opts.Console
	logConf.PrettyLog = opts.Console
	if _, err := logging.SetupWithConfig(logConf); err != nil {
		exitWithError("logging setup", err)
	}

	conf, err := cfg.Load(paths)
	if err != nil {
		exitWithError("load config", err)
	}
	if opts.Listen != "" {
		conf.Listen = opts.Listen
	}
	logging.SetLogLevel(logging.ParseLevel(conf.LogLevel))

	logStartupDiagnostics(paths, conf)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, conf)
	if err != nil {
		exitWithError("start", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if a.mqtt != nil {
		g.Go(func() error {
			if err := a.mqtt.Connect(gctx); err != nil {
				log.Warn().Err(err).Msg("MQTT bridge unavailable; continuing without it")
			}
			return nil
		})
	}

	if opts.NoTray {
		log.Info().Msg("running in headless mode (no system tray)")
		<-ctx.Done()
	} else {
		log.Info().Msg("running with system tray integration")
		g.Go(func() error {
			<-gctx.Done()
			tray.Quit()
			return nil
		})
		tray.Run(loadTrayIcon(conf.AssetsDir), createTrayCallbacks(a))
	}
	stop()

	a.shutdown()
	_ = g.Wait()
}

// ===== INITIALIZATION FUNCTIONS =====

func parseCommandLineArgs() options {
	var opts options

	flag.StringVar(&opts.Listen, "listen", "",
		"HTTP listen address, e.g. "+cfg.DefaultListen+" (overrides config)")
	flag.StringVar(&opts.ConfigPath, "config", "",
		"Path to config.yaml (optional)")
	flag.BoolVar(&opts.NoTray, "no-tray", false,
		"Disable system tray icon")
	flag.BoolVar(&opts.Console, "console", false,
		"Also log to stderr")

	flag.Parse()
	return opts
}

func initializePaths(configPath string) (cfg.Paths, error) {
	paths, err := cfg.ResolvePaths(configPath)
	if err != nil {
		return paths, err
	}
	if err := cfg.EnsureDirs(paths); err != nil {
		return paths, err
	}
	return paths, nil
}

// buildApp wires the settings store, event bus, window host, notifiers,
// companion and HTTP server, and starts everything that runs in the
// background.
func buildApp(ctx context.Context, conf *cfg.Config) (*app, error) {
	store, err := settings.Open(conf.SettingsFile)
	if err != nil {
		return nil, fmt.Errorf("open settings: %w", err)
	}

	bus := ipc.NewBus()
	host := ipc.NewRemoteHost(bus, ipc.DefaultCreateTimeout)

	a := &app{}
	var notifiers notify.Multi
	if conf.Notifications.Desktop {
		notifiers = append(notifiers, notify.NewDesktop(filepath.Join(conf.AssetsDir, NotificationIconAsset)))
	}
	if conf.MQTT.Broker != "" {
		a.mqtt = notify.NewMQTT(conf.MQTT)
		notifiers = append(notifiers, a.mqtt)
	}

	companion, err := core.New(core.Options{
		Config:   conf,
		Store:    store,
		Bus:      bus,
		Host:     host,
		Sounds:   audio.NewCatalog(conf.AssetsDir),
		Notifier: notifiers,
	})
	if err != nil {
		return nil, err
	}
	a.companion = companion

	store.OnChange(companion.HandleSettingsChanged)
	if err := store.Watch(ctx); err != nil {
		log.Warn().Err(err).Msg("settings watch unavailable; external edits apply on restart")
	}

	if err := companion.Start(); err != nil {
		companion.Close()
		return nil, err
	}

	a.server = api.NewServer(conf, companion, host, bus)
	a.httpServer = a.server.StartHTTP(conf.Listen)
	return a, nil
}

func logStartupDiagnostics(paths cfg.Paths, conf *cfg.Config) {
	log.Info().
		Str("version", version).
		Str("listen", conf.Listen).
		Str("config", paths.ConfigFile).
		Str("settings", conf.SettingsFile).
		Str("assets", conf.AssetsDir).
		Bool("mqtt", conf.MQTT.Broker != "").
		Str("goos", runtime.GOOS).
		Str("goarch", runtime.GOARCH).
		Bool("tray_windows", tray.WindowsBuild).
		Msg("starting " + cfg.AppName)
}

// ===== TRAY =====

// loadTrayIcon reads the tray icon from the assets directory. A missing or
// invalid icon leaves the platform default.
func loadTrayIcon(assetsDir string) []byte {
	path := filepath.Join(assetsDir, TrayIconAsset)
	icon, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Warn().Str("asset", path).Msg("tray icon asset missing; tray will show default placeholder")
		return nil
	case err != nil:
		log.Warn().Err(err).Str("asset", path).Msg("failed to read tray icon")
		return nil
	}

	if !tray.IsValidICO(icon) {
		log.Warn().Str("asset", path).Msg("tray icon asset is not a valid .ico; icon will be skipped")
		return nil
	}
	log.Info().Str("asset", path).Int("bytes", len(icon)).Msg("tray icon loaded")
	return icon
}

func createTrayCallbacks(a *app) tray.Callbacks {
	ctx := context.Background()
	logIfErr := func(action string, err error) {
		if err != nil {
			log.Error().Err(err).Str("action", action).Msg("tray action failed")
		}
	}

	return tray.Callbacks{
		OnToggleMiniClock: func() {
			_, err := a.companion.ToggleSlot(ctx, widget.SlotMiniClock)
			logIfErr("toggle mini clock", err)
		},
		MiniClockShown: func() bool {
			return a.companion.Registry().IsOpen(widget.SlotMiniClock)
		},
		OnToggleRemembrance: func() {
			_, err := a.companion.ToggleRemembrance(ctx)
			logIfErr("toggle remembrance", err)
		},
		RemembranceEnabled: func() bool {
			return a.companion.Status().Remembrance.Enabled
		},
		OnTestAdhan: func() {
			logIfErr("test adhan", a.companion.RequestTestAdhan(ctx, ""))
		},
		OnTestPreAlert: func() {
			logIfErr("test pre-alert", a.companion.RequestTestPreAlert(ctx))
		},
		OnStopAudio: a.companion.StopAudio,
		OnQuit: func() {
			log.Info().Msg("quit triggered from tray")
		},
	}
}

// ===== SHUTDOWN MANAGEMENT =====

func (a *app) shutdown() {
	log.Info().Msg("initiating graceful shutdown")

	a.server.ShutdownHTTP(a.httpServer)
	a.companion.Close()
	if a.mqtt != nil {
		a.mqtt.Close()
	}

	log.Info().Msg("graceful shutdown completed")
}

func exitWithError(stage string, err error) {
	log.Error().Err(err).Str("stage", stage).Msg("fatal")
	fmt.Fprintf(os.Stderr, "%s: %v\n", stage, err)
	os.Exit(1)
}

// Package config provides configuration management for AdhanCompanion.
// Static daemon settings live in config.yaml next to the settings store;
// an optional .env in the same directory overrides a handful of fields.
// User preferences (sound, toggles, widget geometry) are not kept here: they
// belong to the settings store shared with the view layer.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ===== CONSTANTS =====

// AppName is used for directory naming across different platforms
const AppName = "AdhanCompanion"

const (
	DefaultListen        = "127.0.0.1:47800"
	DefaultTickInterval  = 10 * time.Second
	DefaultPreAlertSound = "sounds/pre-adhan.mp3"
	DefaultMQTTPrefix    = "adhan-companion"
	DefaultSettingsFile  = "settings.json"
	DefaultConfigFile    = "config.yaml"
	envFileName          = ".env"
)

// Environment overrides
const (
	EnvListen     = "ADHAN_LISTEN"
	EnvLogLevel   = "ADHAN_LOG_LEVEL"
	EnvMQTTBroker = "ADHAN_MQTT_BROKER"
)

// ===== CONFIGURATION STRUCTURES =====

// Config is the daemon configuration persisted as YAML.
type Config struct {
	Listen        string        `yaml:"listen"`
	LogLevel      string        `yaml:"logLevel"`
	TickInterval  time.Duration `yaml:"tickInterval"`  // Scheduler loop cadence
	AssetsDir     string        `yaml:"assetsDir"`     // Root of bundled adhan sounds
	PreAlertSound string        `yaml:"preAlertSound"` // Played by the main window before adhan
	SettingsFile  string        `yaml:"settingsFile"`  // Key-value store shared with the view layer

	Notifications NotificationsConfig `yaml:"notifications"`
	MQTT          MQTTConfig          `yaml:"mqtt"`
	CORS          CORSConfig          `yaml:"cors"`
}

// NotificationsConfig toggles native desktop notifications.
type NotificationsConfig struct {
	Desktop bool `yaml:"desktop"`
}

// MQTTConfig configures the optional event bridge. An empty broker disables it.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"clientId"`
	TopicPrefix string `yaml:"topicPrefix"`
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
}

// CORSConfig lists origins allowed to call the IPC API. Empty allows any
// localhost origin.
type CORSConfig struct {
	AllowOrigins []string `yaml:"allowOrigins"`
}

// ===== PATH MANAGEMENT =====

// Paths holds resolved directories used by the application.
type Paths struct {
	ConfigDir  string // Directory containing configuration files
	ConfigFile string // Full path to config.yaml
	LogsDir    string // Directory for log file storage
}

// ResolvePaths follows platform conventions (XDG on Linux, AppData on
// Windows). A non-empty configOverride pins everything next to that file.
func ResolvePaths(configOverride string) (Paths, error) {
	if configOverride != "" {
		abs, err := filepath.Abs(configOverride)
		if err != nil {
			return Paths{}, fmt.Errorf("failed to resolve config override path: %w", err)
		}
		return Paths{
			ConfigDir:  filepath.Dir(abs),
			ConfigFile: abs,
			LogsDir:    filepath.Join(filepath.Dir(abs), "logs"),
		}, nil
	}

	var dir string
	if runtime.GOOS == "windows" {
		base := os.Getenv("AppData")
		if base == "" {
			base = xdg.ConfigHome
		}
		dir = filepath.Join(base, AppName)
	} else {
		dir = filepath.Join(xdg.ConfigHome, "adhan-companion")
	}

	return Paths{
		ConfigDir:  dir,
		ConfigFile: filepath.Join(dir, DefaultConfigFile),
		LogsDir:    filepath.Join(xdg.StateHome, "adhan-companion", "logs"),
	}, nil
}

// EnsureDirs creates the config and log directories.
func EnsureDirs(paths Paths) error {
	if err := os.MkdirAll(paths.ConfigDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.MkdirAll(paths.LogsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}
	return nil
}

// ===== CONFIGURATION PERSISTENCE =====

// Load reads config.yaml, applies .env overrides and defaults, and validates.
// A missing file yields the default configuration.
func Load(paths Paths) (*Config, error) {
	conf := createDefaultConfig()

	data, err := os.ReadFile(paths.ConfigFile)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, conf); err != nil {
			return nil, fmt.Errorf("invalid config YAML: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := applyEnvFile(filepath.Join(paths.ConfigDir, envFileName), conf); err != nil {
		return nil, err
	}

	applyDefaults(conf, paths)
	if err := validateConfig(conf); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return conf, nil
}

// Save writes the configuration atomically.
func Save(path string, conf *Config) error {
	tempPath := path + ".tmp"

	data, err := yaml.Marshal(conf)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp config file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename config file: %w", err)
	}
	return nil
}

// ===== CONFIGURATION UTILITIES =====

func createDefaultConfig() *Config {
	return &Config{
		Listen:        DefaultListen,
		LogLevel:      "info",
		TickInterval:  DefaultTickInterval,
		PreAlertSound: DefaultPreAlertSound,
		Notifications: NotificationsConfig{Desktop: true},
		MQTT:          MQTTConfig{TopicPrefix: DefaultMQTTPrefix},
	}
}

// applyEnvFile reads the optional .env file without touching the process
// environment, then lets real environment variables win over both.
func applyEnvFile(path string, conf *Config) error {
	values, err := godotenv.Read(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if values == nil {
		values = map[string]string{}
	}

	lookup := func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return values[key]
	}

	if v := strings.TrimSpace(lookup(EnvListen)); v != "" {
		conf.Listen = v
	}
	if v := strings.TrimSpace(lookup(EnvLogLevel)); v != "" {
		conf.LogLevel = v
	}
	if v := strings.TrimSpace(lookup(EnvMQTTBroker)); v != "" {
		conf.MQTT.Broker = v
	}
	return nil
}

func applyDefaults(conf *Config, paths Paths) {
	if conf.Listen == "" {
		conf.Listen = DefaultListen
	}
	if conf.TickInterval <= 0 {
		conf.TickInterval = DefaultTickInterval
	}
	if conf.PreAlertSound == "" {
		conf.PreAlertSound = DefaultPreAlertSound
	}
	if conf.AssetsDir == "" {
		conf.AssetsDir = filepath.Join(paths.ConfigDir, "assets")
	}
	if conf.SettingsFile == "" {
		conf.SettingsFile = filepath.Join(paths.ConfigDir, DefaultSettingsFile)
	} else if !filepath.IsAbs(conf.SettingsFile) {
		conf.SettingsFile = filepath.Join(paths.ConfigDir, conf.SettingsFile)
	}
	if conf.MQTT.TopicPrefix == "" {
		conf.MQTT.TopicPrefix = DefaultMQTTPrefix
	}
	if conf.MQTT.ClientID == "" {
		conf.MQTT.ClientID = "adhan-companion"
	}
}

func validateConfig(conf *Config) error {
	if conf.TickInterval < time.Second || conf.TickInterval > time.Minute {
		return fmt.Errorf("tickInterval %s must be between 1s and 1m", conf.TickInterval)
	}
	if conf.MQTT.Broker != "" && !strings.Contains(conf.MQTT.Broker, "://") {
		return fmt.Errorf("mqtt broker %q must include a scheme, e.g. tcp://host:1883", conf.MQTT.Broker)
	}
	return nil
}

// Package logging sets up the process-wide zerolog logger for AdhanCompanion.
// Log files rotate through lumberjack; console output is optional and only
// useful when the daemon is started from a terminal.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ===== LOGGING CONFIGURATION CONSTANTS =====

const (
	DefaultLogFileName = "adhan-companion.log"
	DefaultMaxSizeMB   = 5  // Maximum size per log file in megabytes
	DefaultMaxBackups  = 3  // Number of old log files to retain
	DefaultMaxAgeDays  = 14 // Maximum age of log files in days

	LogDirPermissions = 0o755
)

// ===== LOGGING CONFIGURATION STRUCTURES =====

// Config holds logging configuration options.
type Config struct {
	LogsDir    string        // Directory where log files will be stored
	FileName   string        // Name of the main log file
	MaxSizeMB  int           // Maximum size per log file in megabytes
	MaxBackups int           // Number of old log files to retain
	MaxAgeDays int           // Maximum age of log files in days
	Compress   bool          // Whether to compress rotated log files
	Level      zerolog.Level // Minimum log level to output
	ConsoleOut bool          // Whether to mirror output to stderr
	PrettyLog  bool          // Human readable console output instead of JSON
}

// DefaultConfig returns the file-only configuration used by the tray build.
func DefaultConfig(logsDir string) *Config {
	return &Config{
		LogsDir:    logsDir,
		FileName:   DefaultLogFileName,
		MaxSizeMB:  DefaultMaxSizeMB,
		MaxBackups: DefaultMaxBackups,
		MaxAgeDays: DefaultMaxAgeDays,
		Compress:   true,
		Level:      zerolog.InfoLevel,
	}
}

// ===== LOGGING SETUP FUNCTIONS =====

// SetupWithConfig builds the global logger from config and returns it.
func SetupWithConfig(config *Config) (zerolog.Logger, error) {
	if err := os.MkdirAll(config.LogsDir, LogDirPermissions); err != nil {
		return log.Logger, err
	}

	writers := []io.Writer{newFileWriter(config)}
	if config.ConsoleOut {
		writers = append(writers, newConsoleWriter(config.PrettyLog))
	}

	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(config.Level)

	logger := zerolog.New(io.MultiWriter(writers...)).
		With().
		Timestamp().
		Caller().
		Logger().
		Level(config.Level)

	log.Logger = logger

	logger.Info().
		Str("logs_dir", config.LogsDir).
		Str("log_file", config.FileName).
		Str("level", config.Level.String()).
		Bool("console_output", config.ConsoleOut).
		Msg("logging configured")

	return logger, nil
}

// ===== HELPER FUNCTIONS =====

func newFileWriter(config *Config) io.Writer {
	return &lumberjack.Logger{
		Filename:   filepath.Join(config.LogsDir, config.FileName),
		MaxSize:    config.MaxSizeMB,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAgeDays,
		Compress:   config.Compress,
	}
}

func newConsoleWriter(pretty bool) io.Writer {
	if pretty {
		return zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}
	return os.Stderr
}

// ParseLevel converts a config string to a level, falling back to info for
// empty or unknown values.
func ParseLevel(level string) zerolog.Level {
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || parsed == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return parsed
}

// SetLogLevel changes the global log level at runtime.
func SetLogLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
	log.Info().Str("new_level", level.String()).Msg("log level changed")
}

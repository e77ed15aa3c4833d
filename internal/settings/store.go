// Package settings implements the key-value store shared between the daemon
// and the view layer. Values are JSON documents kept in a single file; the
// file is watched so keys written by the view layer show up without restart.
package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Keys used by the core. The view layer owns the feature toggles; the core
// owns the geometry keys.
const (
	KeyNotificationsEnabled = "prayer-notifications-enabled"
	KeyShowPreAdhan         = "show-pre-adhan"
	KeyPreAdhanMinutes      = "pre-adhan-minutes"
	KeySelectedAdhan        = "selected-adhan"
	KeyShowMiniWidget       = "show-mini-widget"
	KeyMiniWidgetSize       = "mini-widget-size"
	KeyMiniWidgetBounds     = "mini-widget-bounds"
	KeyMiniWidgetOnTop      = "mini-widget-always-on-top"
	KeyAdhanWidgetBounds    = "widget-bounds"
	KeyDuaWidgetBounds      = "dua-widget-bounds"
	KeyDuaWidgetEnabled     = "dua-widget-enabled"
	KeyZikrInterval         = "zikr-interval"
	KeyZikrDuration         = "zikr-duration"
	KeyZikrEnabled          = "azkar-widget-enabled"
	KeyZikrPosition         = "zikr-position"
)

const (
	writeRetryInitial = 50 * time.Millisecond
	writeRetryMax     = 2 * time.Second
	reloadDebounce    = 150 * time.Millisecond
)

// ChangeFunc receives the keys whose values differ after an external reload.
type ChangeFunc func(keys []string)

// Store is the read/write surface the rest of the daemon depends on.
type Store interface {
	Get(key string, v any) (bool, error)
	Set(key string, v any) error
}

// FileStore persists the map to one JSON file.
type FileStore struct {
	path string

	mu        sync.RWMutex
	values    map[string]json.RawMessage
	listeners []ChangeFunc
}

// Open loads path, creating an empty store when the file does not exist.
func Open(path string) (*FileStore, error) {
	s := &FileStore{
		path:   path,
		values: make(map[string]json.RawMessage),
	}
	values, err := s.readFile()
	if err != nil {
		return nil, err
	}
	s.values = values
	return s, nil
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

// Get decodes the value stored under key into v.
func (s *FileStore) Get(key string, v any) (bool, error) {
	s.mu.RLock()
	raw, ok := s.values[key]
	s.mu.RUnlock()

	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("decode setting %q: %w", key, err)
	}
	return true, nil
}

// Set stores v under key and writes the file. The on-disk copy is used as
// the base so keys written by the view layer since the last reload survive,
// and those keys are reported to listeners as if Reload had seen them. The
// in-memory map only changes once the write succeeded.
func (s *FileStore) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode setting %q: %w", key, err)
	}

	s.mu.Lock()
	next, readErr := s.readFile()
	if readErr != nil {
		next = maps.Clone(s.values)
	}
	external := slices.DeleteFunc(diffKeys(s.values, next), func(k string) bool { return k == key })
	next[key] = raw

	if err := writeWithRetry(s.path, next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.values = next
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	s.notify(listeners, external)
	return nil
}

// Keys returns the stored keys in sorted order.
func (s *FileStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// OnChange registers a listener for external modifications.
func (s *FileStore) OnChange(fn ChangeFunc) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Reload re-reads the file and notifies listeners of changed keys.
func (s *FileStore) Reload() error {
	values, err := s.readFile()
	if err != nil {
		return err
	}

	s.mu.Lock()
	changed := diffKeys(s.values, values)
	s.values = values
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	s.notify(listeners, changed)
	return nil
}

func (s *FileStore) notify(listeners []ChangeFunc, changed []string) {
	if len(changed) == 0 {
		return
	}
	log.Debug().Strs("keys", changed).Msg("settings changed externally")
	for _, fn := range listeners {
		fn(changed)
	}
}

// Watch reloads the store whenever the backing file changes, until ctx ends.
// The directory is watched rather than the file because writers replace it
// through rename.
func (s *FileStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()

		var pending *time.Timer
		defer func() {
			if pending != nil {
				pending.Stop()
			}
		}()

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(s.path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if pending != nil {
					pending.Stop()
				}
				pending = time.AfterFunc(reloadDebounce, func() {
					if err := s.Reload(); err != nil {
						log.Warn().Err(err).Str("file", s.path).Msg("settings reload failed")
					}
				})

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Error().Err(err).Msg("settings watcher")

			case <-ctx.Done():
				return
			}
		}
	}()

	log.Info().Str("file", s.path).Msg("watching settings file")
	return nil
}

// ===== FILE I/O =====

func (s *FileStore) readFile() (map[string]json.RawMessage, error) {
	values := make(map[string]json.RawMessage)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return values, nil
		}
		return nil, fmt.Errorf("read settings: %w", err)
	}
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("invalid settings JSON: %w", err)
	}
	// Compact so values compare equal to what Set marshals, whatever
	// indentation the file was written with.
	for k, v := range values {
		var buf bytes.Buffer
		if err := json.Compact(&buf, v); err == nil {
			values[k] = buf.Bytes()
		}
	}
	return values, nil
}

func writeWithRetry(path string, values map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	strategy := backoff.NewExponentialBackOff()
	strategy.InitialInterval = writeRetryInitial
	strategy.MaxElapsedTime = writeRetryMax

	return backoff.Retry(func() error {
		return writeAtomic(path, data)
	}, strategy)
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return backoff.Permanent(fmt.Errorf("create settings dir: %w", err))
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp settings file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("rename settings file: %w", err)
	}
	return nil
}

func diffKeys(old, updated map[string]json.RawMessage) []string {
	var changed []string
	for k, v := range updated {
		if prev, ok := old[k]; !ok || string(prev) != string(v) {
			changed = append(changed, k)
		}
	}
	for k := range old {
		if _, ok := updated[k]; !ok {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return changed
}

// ===== TYPED HELPERS =====

// Bool reads a boolean key, returning def when absent or malformed.
func Bool(s Store, key string, def bool) bool {
	var v bool
	if ok, err := s.Get(key, &v); !ok || err != nil {
		return def
	}
	return v
}

// Int reads a numeric key, returning def when absent or malformed. JSON
// numbers written by the view layer may carry a fraction; it is truncated.
func Int(s Store, key string, def int) int {
	var v float64
	if ok, err := s.Get(key, &v); !ok || err != nil {
		return def
	}
	return int(v)
}

// Float reads a numeric key, returning def when absent or malformed.
func Float(s Store, key string, def float64) float64 {
	var v float64
	if ok, err := s.Get(key, &v); !ok || err != nil {
		return def
	}
	return v
}

// String reads a string key, returning def when absent, empty or malformed.
func String(s Store, key string, def string) string {
	var v string
	if ok, err := s.Get(key, &v); !ok || err != nil || v == "" {
		return def
	}
	return v
}

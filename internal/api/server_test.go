package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"AdhanCompanion/internal/config"
	"AdhanCompanion/internal/core"
	"AdhanCompanion/internal/ipc"
	"AdhanCompanion/internal/settings"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	server    *Server
	router    *gin.Engine
	bus       *ipc.Bus
	host      *ipc.RemoteHost
	companion *core.Companion
	store     *settings.FileStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := settings.Open(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, err)

	conf := &config.Config{TickInterval: time.Second, PreAlertSound: config.DefaultPreAlertSound}
	bus := ipc.NewBus()
	host := ipc.NewRemoteHost(bus, 500*time.Millisecond)
	companion, err := core.New(core.Options{Config: conf, Store: store, Bus: bus, Host: host})
	require.NoError(t, err)
	t.Cleanup(companion.Close)

	server := NewServer(conf, companion, host, bus)
	return &testEnv{
		server:    server,
		router:    server.Router(),
		bus:       bus,
		host:      host,
		companion: companion,
		store:     store,
	}
}

// attachView plays the view layer: it holds an event subscription and acks
// every window.create.
func (e *testEnv) attachView(t *testing.T) {
	t.Helper()
	events, cancel := e.bus.Subscribe(64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			if ev.Type == ipc.EventWindowCreate {
				_ = e.host.Ready(ev.Payload.(ipc.CreatePayload).ID)
			}
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// ===== HEALTH / STATUS =====

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestPrayerTimesUpdate(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/prayer-times", map[string]any{
		"table":               map[string]string{"Fajr": "05:01", "Maghrib": "18:00"},
		"preAlertLeadMinutes": 10,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	status := decode[core.Status](t, env.do(t, http.MethodGet, "/api/status", nil))
	assert.Equal(t, "18:00", status.Table["Maghrib"])
	assert.Equal(t, 10, status.Config.PreAlertLeadMinutes)
	assert.True(t, status.Config.PreAlertEnabled)
	assert.Equal(t, -1, status.LastProcessedMinute)
}

func TestPrayerTimesRejectsUnknownPrayer(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/prayer-times", map[string]any{
		"table": map[string]string{"Brunch": "11:00"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSoundsEmpty(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/sounds", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

// ===== WIDGETS =====

func TestWidgetErrorsMapToStatusCodes(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/api/widgets/settings/open", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/api/widgets/miniClock/explode", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/widgets/adhanAlert/toggle", nil).Code)
	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPost, "/api/widgets/remembrance/open", nil).Code)
}

func TestOpenWithoutViewIsUnavailable(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/test/adhan", map[string]string{"name": "Fajr"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestWidgetLifecycleThroughView(t *testing.T) {
	env := newTestEnv(t)
	env.attachView(t)

	w := env.do(t, http.MethodPost, "/api/widgets/miniClock/open", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, decode[map[string]any](t, w)["open"])

	status := decode[core.Status](t, env.do(t, http.MethodGet, "/api/status", nil))
	mini := status.Widgets[3]
	require.True(t, mini.Open)
	id := mini.WindowID

	w = env.do(t, http.MethodPost, "/api/windows/"+id+"/moved", map[string]int{"x": 100, "y": 100, "width": 220, "height": 90})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodPost, "/api/windows/"+id+"/closed", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.False(t, env.companion.Registry().IsOpen("miniClock"))

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/api/windows/"+id+"/ready", nil).Code)
}

func TestToggleMiniClock(t *testing.T) {
	env := newTestEnv(t)
	env.attachView(t)

	w := env.do(t, http.MethodPost, "/api/widgets/miniClock/toggle", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode[map[string]any](t, w)["open"])
	assert.True(t, settings.Bool(env.store, settings.KeyShowMiniWidget, false))

	w = env.do(t, http.MethodPost, "/api/widgets/miniClock/toggle", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode[map[string]any](t, w)["open"])
}

func TestMiniClockScale(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPut, "/api/widgets/miniClock/scale", map[string]float64{"scale": 2.0})
	require.Equal(t, http.StatusOK, w.Code)
	assert.InDelta(t, 1.5, decode[map[string]float64](t, w)["scale"], 1e-9)

	w = env.do(t, http.MethodPut, "/api/widgets/miniClock/scale", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ===== REMEMBRANCE / AUDIO / WINDOW STATE =====

func TestRemembranceSettings(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPut, "/api/remembrance", map[string]any{"intervalMinutes": 5, "enabled": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	status := decode[core.RemembranceStatus](t, w)
	assert.True(t, status.Running)
	assert.Equal(t, 5, status.IntervalMinutes)

	w = env.do(t, http.MethodPut, "/api/remembrance", map[string]any{"intervalMinutes": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWindowState(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/main-window/state", map[string]string{"state": "maximized"}).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/main-window/state", map[string]string{"state": "sideways"}).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/main-window/state", map[string]string{}).Code)
}

func TestAudioCommands(t *testing.T) {
	env := newTestEnv(t)
	events, cancel := env.bus.Subscribe(8)
	defer cancel()

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/audio/stop", nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/audio/mute", map[string]bool{"muted": true}).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/audio/mute", map[string]any{}).Code)

	assert.Equal(t, ipc.EventStopAudio, (<-events).Type)
	assert.Equal(t, ipc.EventMuteAudio, (<-events).Type)
}

func TestDisplays(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPut, "/api/displays", []map[string]any{
		{"id": "left", "bounds": map[string]int{"x": -1280, "y": 0, "width": 1280, "height": 1024}},
		{"id": "main", "primary": true, "bounds": map[string]int{"x": 0, "y": 0, "width": 2560, "height": 1440}},
	})
	require.Equal(t, http.StatusOK, w.Code)

	displays := decode[[]map[string]any](t, env.do(t, http.MethodGet, "/api/displays", nil))
	require.Len(t, displays, 2)
	assert.Equal(t, true, displays[1]["primary"])
}

// ===== EVENT STREAM =====

func TestEventStream(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	require.NoError(t, err)

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", strings.Split(resp.Header.Get("Content-Type"), ";")[0])

	require.Eventually(t, env.bus.Alive, time.Second, 5*time.Millisecond)
	env.companion.StopAudio()

	scanner := bufio.NewScanner(resp.Body)
	found := false
	for scanner.Scan() {
		if scanner.Text() == "event:"+ipc.EventStopAudio {
			found = true
			break
		}
	}
	assert.True(t, found)

	cancel()
	assert.Eventually(t, func() bool { return !env.bus.Alive() }, time.Second, 5*time.Millisecond)
}

func TestIsLocalOrigin(t *testing.T) {
	assert.True(t, isLocalOrigin("http://localhost:5173"))
	assert.True(t, isLocalOrigin("http://127.0.0.1:47800"))
	assert.True(t, isLocalOrigin("tauri://localhost"))
	assert.False(t, isLocalOrigin("https://example.com"))
	assert.False(t, isLocalOrigin("::bad"))
}

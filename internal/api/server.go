// Package api is the localhost IPC façade: JSON commands in over HTTP,
// events out over Server-Sent Events.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"AdhanCompanion/internal/audio"
	"AdhanCompanion/internal/config"
	"AdhanCompanion/internal/core"
	"AdhanCompanion/internal/ipc"
	"AdhanCompanion/internal/screen"
	"AdhanCompanion/internal/widget"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// ===== CONSTANTS =====

const (
	// heartbeatInterval keeps idle event streams from being reaped.
	heartbeatInterval = 25 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// ===== SERVER TYPES AND STRUCTURES =====

// Server binds the HTTP surface to the companion and the remote window host.
type Server struct {
	conf      *config.Config
	companion *core.Companion
	host      *ipc.RemoteHost
	bus       *ipc.Bus
	heartbeat time.Duration
}

// NewServer returns a server for the given collaborators.
func NewServer(conf *config.Config, companion *core.Companion, host *ipc.RemoteHost, bus *ipc.Bus) *Server {
	return &Server{
		conf:      conf,
		companion: companion,
		host:      host,
		bus:       bus,
		heartbeat: heartbeatInterval,
	}
}

// ===== SERVER LIFECYCLE MANAGEMENT =====

// Router builds the gin engine with every route mounted.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logRequest())
	r.Use(cors.New(s.corsConfig()))

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	api := r.Group("/api")
	{
		api.GET("/events", s.handleEvents)
		api.GET("/status", s.handleStatus)
		api.GET("/sounds", s.handleSounds)

		api.POST("/prayer-times", s.handlePrayerTimes)
		api.POST("/test/adhan", s.handleTestAdhan)
		api.POST("/test/pre-alert", s.handleTestPreAlert)
		api.POST("/adhan/finished", s.handleAdhanFinished)

		api.POST("/widgets/:slot/:action", s.handleWidgetAction)
		api.PUT("/widgets/miniClock/scale", s.handleMiniClockScale)
		api.PUT("/remembrance", s.handleRemembrance)

		api.POST("/main-window/state", s.handleWindowState)
		api.POST("/audio/stop", s.handleStopAudio)
		api.POST("/audio/mute", s.handleMuteAudio)

		api.GET("/displays", s.handleGetDisplays)
		api.PUT("/displays", s.handleSetDisplays)

		api.POST("/windows/:id/:action", s.handleWindowAck)
	}
	return r
}

// StartHTTP starts serving on listen in the background.
func (s *Server) StartHTTP(listen string) *http.Server {
	hs := &http.Server{
		Addr:              listen,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("listen", listen).Msg("http server starting")
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server")
		}
	}()
	return hs
}

// ShutdownHTTP gracefully shuts down the HTTP server.
func (s *Server) ShutdownHTTP(hs *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = hs.Shutdown(ctx)
}

func (s *Server) corsConfig() cors.Config {
	conf := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Cache-Control", "Last-Event-ID"},
		ExposeHeaders: []string{"Content-Length"},
	}
	if s.conf != nil && len(s.conf.CORS.AllowOrigins) > 0 {
		conf.AllowOrigins = s.conf.CORS.AllowOrigins
	} else {
		conf.AllowOriginFunc = isLocalOrigin
	}
	return conf
}

// isLocalOrigin admits the webview shell, which loads from a local scheme or
// a loopback dev server.
func isLocalOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "file", "app", "tauri", "wails":
		return true
	case "http", "https":
		host := u.Hostname()
		return host == "localhost" || host == "127.0.0.1" || host == "::1"
	}
	return false
}

// ===== HTTP MIDDLEWARE =====

// logRequest logs each request; the event stream is logged on disconnect.
func logRequest() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("dur", time.Since(start)).
			Msg("http")
	}
}

// ===== EVENT STREAM =====

// handleEvents streams bus events. The main window keeps this stream open,
// so a connected stream is what marks it alive for the prayer loop.
func (s *Server) handleEvents(c *gin.Context) {
	events, cancel := s.bus.Subscribe(ipc.DefaultBuffer)
	defer cancel()

	if s.bus.Subscribers() == 1 {
		go s.companion.OnViewConnected(context.Background())
	}

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()
	ctx := c.Request.Context()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(ev.Type, ev)
			return true
		case <-heartbeat.C:
			c.SSEvent("ping", gin.H{"at": time.Now()})
			return true
		case <-ctx.Done():
			return false
		}
	})
}

// ===== API HANDLERS =====

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.companion.Status())
}

func (s *Server) handleSounds(c *gin.Context) {
	sounds, err := s.companion.Sounds()
	if err != nil {
		writeError(c, err)
		return
	}
	if sounds == nil {
		sounds = []audio.Sound{}
	}
	c.JSON(http.StatusOK, sounds)
}

func (s *Server) handlePrayerTimes(c *gin.Context) {
	var req core.PrayerTimesUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for name := range req.Table {
		if !name.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown prayer " + string(name)})
			return
		}
	}

	s.companion.UpdatePrayerTimes(req)
	c.JSON(http.StatusOK, gin.H{"table": s.companion.Clock().Table(), "config": s.companion.Clock().Config()})
}

func (s *Server) handleTestAdhan(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.companion.RequestTestAdhan(c.Request.Context(), req.Name); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "opened"})
}

func (s *Server) handleTestPreAlert(c *gin.Context) {
	if err := s.companion.RequestTestPreAlert(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "opened"})
}

func (s *Server) handleAdhanFinished(c *gin.Context) {
	if err := s.companion.AdhanFinished(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "closed"})
}

func (s *Server) handleWidgetAction(c *gin.Context) {
	slot, err := core.ParseSlot(c.Param("slot"))
	if err != nil {
		writeError(c, err)
		return
	}
	ctx := c.Request.Context()

	switch c.Param("action") {
	case "open":
		err = s.companion.OpenSlot(ctx, slot)
	case "close":
		err = s.companion.CloseSlot(ctx, slot)
	case "toggle":
		var shown bool
		shown, err = s.companion.ToggleSlot(ctx, slot)
		if err == nil {
			c.JSON(http.StatusOK, gin.H{"slot": slot, "open": shown})
			return
		}
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown action"})
		return
	}

	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slot": slot, "open": s.companion.Registry().IsOpen(slot)})
}

func (s *Server) handleMiniClockScale(c *gin.Context) {
	var req struct {
		Scale *float64 `json:"scale" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	applied, err := s.companion.SetMiniClockScale(*req.Scale)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scale": applied})
}

func (s *Server) handleRemembrance(c *gin.Context) {
	var req core.RemembranceUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.companion.UpdateRemembranceSettings(c.Request.Context(), req); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.companion.Status().Remembrance)
}

func (s *Server) handleWindowState(c *gin.Context) {
	var req struct {
		State string `json:"state" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.companion.SetWindowState(req.State); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": req.State})
}

func (s *Server) handleStopAudio(c *gin.Context) {
	s.companion.StopAudio()
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

func (s *Server) handleMuteAudio(c *gin.Context) {
	var req struct {
		Muted *bool `json:"muted" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.companion.MuteAudio(*req.Muted)
	c.JSON(http.StatusOK, gin.H{"muted": *req.Muted})
}

func (s *Server) handleGetDisplays(c *gin.Context) {
	c.JSON(http.StatusOK, s.companion.Displays())
}

func (s *Server) handleSetDisplays(c *gin.Context) {
	var displays []screen.Display
	if err := c.ShouldBindJSON(&displays); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.companion.SetDisplays(displays)
	c.JSON(http.StatusOK, s.companion.Displays())
}

// handleWindowAck receives lifecycle reports for windows created through
// window.create.
func (s *Server) handleWindowAck(c *gin.Context) {
	id := c.Param("id")

	var err error
	switch c.Param("action") {
	case "ready":
		err = s.host.Ready(id)
	case "failed":
		var req struct {
			Reason string `json:"reason"`
		}
		if bindErr := bindOptionalJSON(c, &req); bindErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": bindErr.Error()})
			return
		}
		err = s.host.Failed(id, req.Reason)
	case "moved":
		var bounds screen.Rect
		if bindErr := c.ShouldBindJSON(&bounds); bindErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": bindErr.Error()})
			return
		}
		err = s.host.Moved(id, bounds)
	case "closed":
		err = s.host.Closed(id)
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown action"})
		return
	}

	if err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ===== UTILITY FUNCTIONS =====

// bindOptionalJSON binds a body when one was sent.
func bindOptionalJSON(c *gin.Context, v any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(v)
}

// writeError maps domain errors onto status codes.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrFeatureDisabled):
		status = http.StatusConflict
	case errors.Is(err, widget.ErrUnknownSlot), errors.Is(err, ipc.ErrUnknownWindow):
		status = http.StatusNotFound
	case errors.Is(err, widget.ErrNotToggleable), errors.Is(err, core.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, ipc.ErrNoView):
		status = http.StatusServiceUnavailable
	case errors.Is(err, widget.ErrCreateFailed):
		status = http.StatusBadGateway
	}

	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

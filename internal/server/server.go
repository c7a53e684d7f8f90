// Package server runs the local panel: a gin HTTP server exposing the login
// redirect sink, the session API, the gated interpretation endpoint, the
// local history cache, and the websocket event stream the page mirrors its
// sign-in affordances from.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/lz-215/Dream-Dictionary/internal/bootstrap"
	"github.com/lz-215/Dream-Dictionary/internal/config"
	"github.com/lz-215/Dream-Dictionary/internal/gate"
	"github.com/lz-215/Dream-Dictionary/internal/history"
	"github.com/lz-215/Dream-Dictionary/internal/interpret"
	"github.com/lz-215/Dream-Dictionary/internal/logging"
	"github.com/lz-215/Dream-Dictionary/internal/metrics"
	"github.com/lz-215/Dream-Dictionary/internal/session"
	"github.com/lz-215/Dream-Dictionary/internal/ui"
)

// Server is the local panel HTTP server.
type Server struct {
	engine      *gin.Engine
	httpServer  *http.Server
	cfg         *config.Config
	store       *session.Store
	pipeline    *bootstrap.Pipeline
	throttle    *gate.Throttle
	interpreter *interpret.Client
	history     *history.Store
	hub         *ui.Hub
	logout      func() error
}

// Options carries the collaborators the panel exposes. History and Hub may
// be nil; the matching routes degrade gracefully.
type Options struct {
	Config      *config.Config
	Store       *session.Store
	Pipeline    *bootstrap.Pipeline
	Throttle    *gate.Throttle
	Interpreter *interpret.Client
	History     *history.Store
	Hub         *ui.Hub
	// Logout clears the session through the orchestrator so the UI is
	// reconciled too.
	Logout func() error
}

// New builds the panel server and registers its routes.
func New(opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(logging.GinLogrusLogger(), logging.GinLogrusRecovery())
	if opts.Config.Metrics {
		metrics.SetMetricsEnabled(true)
		metrics.RegisterMetrics()
		engine.Use(metrics.PrometheusMiddleware())
	}

	s := &Server{
		engine:      engine,
		cfg:         opts.Config,
		store:       opts.Store,
		pipeline:    opts.Pipeline,
		throttle:    opts.Throttle,
		interpreter: opts.Interpreter,
		history:     opts.History,
		hub:         opts.Hub,
		logout:      opts.Logout,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		logging.SkipGinRequestLogging(c)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authGroup := s.engine.Group("/auth")
	{
		authGroup.GET("/callback", s.handleCallback)
		authGroup.GET("/session", s.handleSession)
		authGroup.POST("/logout", s.handleLogout)
	}

	apiGroup := s.engine.Group("/api")
	{
		apiGroup.POST("/interpret", s.handleInterpret)
		apiGroup.GET("/history", s.handleHistory)
		apiGroup.GET("/stats", s.handleStats)
	}

	if s.hub != nil {
		s.engine.GET("/events", s.handleEvents)
	}
	if s.cfg.Metrics {
		s.engine.GET("/metrics", metrics.MetricsHandler())
	}
}

// handleCallback is the redirect sink: the provider sends the browser here,
// the bootstrap pipeline consumes whatever the URL carries, and the browser
// is sent on to the cleaned address. The redirect happens for every outcome,
// so reloading the landing page cannot replay the sign-in.
func (s *Server) handleCallback(c *gin.Context) {
	rawURL := "http://" + c.Request.Host + c.Request.URL.RequestURI()
	outcome, _ := s.pipeline.Run(c.Request.Context(), rawURL)
	log.WithField("outcome", outcome).Debug("login callback processed")
	c.Redirect(http.StatusFound, "/auth/session")
}

// handleSession reports the current sign-in state.
func (s *Server) handleSession(c *gin.Context) {
	sess, ok := s.store.Load()
	if !ok {
		c.JSON(http.StatusOK, gin.H{
			"authenticated": false,
			"usageCount":    s.store.UsageCount(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"session":       sess,
	})
}

func (s *Server) handleLogout(c *gin.Context) {
	if err := s.logout(); err != nil {
		log.WithField("error", err).Error("logout failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"authenticated": false})
}

type interpretBody struct {
	DreamText string `json:"dream_text" binding:"required"`
	UseML     bool   `json:"use_ml"`
}

// handleInterpret is the gated action. Every call goes through the usage
// throttle first; the response carries the prompt decision alongside the
// interpretation so the page can show the sign-in nudge in the same paint.
func (s *Server) handleInterpret(c *gin.Context) {
	var body interpretBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "dream_text is required"})
		return
	}

	decision := s.throttle.RecordUse()

	userID := interpret.AnonymousUserID
	if sess, ok := s.store.Load(); ok {
		userID = sess.UserID
	}

	result, err := s.interpreter.Interpret(c.Request.Context(), body.DreamText, userID, body.UseML)
	if err != nil {
		log.WithField("error", err).Warn("interpretation failed")
		c.JSON(http.StatusBadGateway, gin.H{
			"error":      "interpretation is unavailable right now",
			"showPrompt": decision.Prompted,
		})
		return
	}

	if s.history != nil {
		if err = s.history.Record(userID, body.DreamText, result.Interpretations); err != nil {
			log.WithField("error", err).Warn("failed to record interpretation in history")
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"result":     result,
		"showPrompt": decision.Prompted,
		"usageCount": decision.Count,
	})
}

func (s *Server) handleHistory(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history cache is unavailable"})
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	result, err := s.history.List(page, perPage, c.Query("user_id"))
	if err != nil {
		log.WithField("error", err).Error("failed to list history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read history"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleStats(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history cache is unavailable"})
		return
	}
	stats, err := s.history.Stats()
	if err != nil {
		log.WithField("error", err).Error("failed to compute stats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read history"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleEvents(c *gin.Context) {
	logging.SkipGinRequestLogging(c)
	if err := s.hub.Serve(c.Writer, c.Request); err != nil {
		log.WithField("error", err).Debug("events upgrade failed")
	}
}

// Handler exposes the route tree for httptest-based tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start runs the server until ctx is done, then shuts it down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.GetPort()),
		Handler: s.engine,
	}

	errChan := make(chan error, 1)
	go func() {
		log.WithField("addr", s.httpServer.Addr).Info("panel server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("panel server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if s.hub != nil {
		s.hub.Close()
	}
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("panel server shutdown failed: %w", err)
	}
	return nil
}

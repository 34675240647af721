// Package server exposes the ntropiq collaborators and stored sessions over HTTP with gin.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"ntropiq/internal/clock"
	"ntropiq/internal/logger"
	"ntropiq/internal/observability"
	"ntropiq/internal/store"
	"ntropiq/internal/version"
)

// Defaults for Config.
const (
	DefaultRequestTimeout  = 60 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// timestampLayout matches the ISO-8601 millisecond format of the original API.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Config wires a Server. Store may be nil, in which case the session routes are not mounted.
type Config struct {
	Collaborators  observability.Collaborators
	Store          *store.Store
	Metrics        *observability.Metrics
	Clock          clock.Clock
	RequestTimeout time.Duration
	// RateLimit is the sustained requests per second allowed on /api. Zero disables limiting.
	RateLimit float64
	Burst     int
}

// Server is the ntropiq HTTP API.
type Server struct {
	collab  observability.Collaborators
	store   *store.Store
	metrics *observability.Metrics
	clock   clock.Clock
	timeout time.Duration
	limiter *rate.Limiter
	logger  *log.Logger
	engine  *gin.Engine
}

// New builds the router.
func New(cfg Config) *Server {
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NewMetrics()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	s := &Server{
		collab:  cfg.Metrics.Instrument(cfg.Collaborators),
		store:   cfg.Store,
		metrics: cfg.Metrics,
		clock:   cfg.Clock,
		timeout: cfg.RequestTimeout,
		logger:  logger.NewStyledLogger("Server"),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = int(cfg.RateLimit) + 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	s.engine = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.observe())

	router.GET("/health", s.health)
	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := router.Group("/api", s.rateLimit())
	api.POST("/chat", s.chat)
	api.POST("/notebook/insights", s.insights)
	api.POST("/notebook/analyze", s.analyze)
	api.POST("/voice/tts", s.tts)

	if s.store != nil {
		api.GET("/chats", listHandler(s, s.store.Conversations))
		api.GET("/chats/:id", getHandler(s, s.store.Conversations))
		api.DELETE("/chats/:id", deleteHandler(s, s.store.Conversations))
		api.GET("/notebooks", listHandler(s, s.store.Notebooks))
		api.GET("/notebooks/:id", getHandler(s, s.store.Notebooks))
		api.DELETE("/notebooks/:id", deleteHandler(s, s.store.Notebooks))
	}
	return router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	s.logger.Info("Shutting down", "addr", addr)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"version":   version.Version,
		"timestamp": s.timestamp(),
		"collaborators": gin.H{
			"reply":    s.collab.Reply != nil,
			"insights": s.collab.Insights != nil,
			"analysis": s.collab.Analyzer != nil,
			"speech":   s.collab.Speech != nil,
		},
		"sessions": s.store != nil,
	})
}

func (s *Server) timestamp() string {
	return s.clock.Now().UTC().Format(timestampLayout)
}

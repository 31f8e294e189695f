// Package server exposes the Telegram webhook, health probes and metrics over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const readinessTimeout = 3 * time.Second

// UpdateHandler consumes decoded Telegram updates.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update tgbotapi.Update)
}

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

type Options struct {
	Addr string
	// WebhookPath is the secret path Telegram posts updates to. Empty disables the route.
	WebhookPath string
	Handler     UpdateHandler
	Checks      map[string]Check
	Logger      *zap.Logger
}

// Server serves HTTP and tracks the updates it dispatched in the background.
type Server struct {
	http    *http.Server
	handler UpdateHandler
	checks  map[string]Check
	logger  *zap.Logger
	webhook string

	// updates outlive the request that delivered them.
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		handler: opts.Handler,
		checks:  opts.Checks,
		logger:  opts.Logger,
		webhook: opts.WebhookPath,
		baseCtx: ctx,
		cancel:  cancel,
	}
	s.http = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.router(opts.WebhookPath),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) router(webhookPath string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/health", s.liveness)
	r.GET("/health/ready", s.readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if webhookPath != "" && s.handler != nil {
		r.POST(webhookPath, s.handleWebhook)
	}
	return r
}

// Start serves until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight updates.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("Shutdown timed out with updates still running")
	}
	s.cancel()
	return err
}

func (s *Server) handleWebhook(c *gin.Context) {
	var update tgbotapi.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		s.logger.Warn("Error decoding webhook update", zap.Error(err))
		c.Status(http.StatusBadRequest)
		return
	}

	// Reply fast so Telegram does not redeliver; the update runs in the background.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.handler.HandleUpdate(s.baseCtx, update)
	}()
	c.Status(http.StatusOK)
}

func (s *Server) liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type dependencyStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	deps := make(map[string]dependencyStatus, len(names))
	healthy := true
	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			healthy = false
			deps[name] = dependencyStatus{Status: "down", Error: err.Error()}
			continue
		}
		deps[name] = dependencyStatus{Status: "up"}
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "dependencies": deps})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route != "" && route == s.webhook {
			route = "/webhook/***"
		}
		s.logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

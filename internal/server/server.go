// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/mbd888/dexguard/internal/alerts"
	"github.com/mbd888/dexguard/internal/anomaly"
	"github.com/mbd888/dexguard/internal/config"
	"github.com/mbd888/dexguard/internal/detect"
	"github.com/mbd888/dexguard/internal/idgen"
	"github.com/mbd888/dexguard/internal/logging"
	"github.com/mbd888/dexguard/internal/metrics"
	"github.com/mbd888/dexguard/internal/ratelimit"
	"github.com/mbd888/dexguard/internal/risk"
	"github.com/mbd888/dexguard/internal/security"
	"github.com/mbd888/dexguard/internal/validation"
)

// Server wraps the HTTP server and the risk engine dependencies
type Server struct {
	cfg        *config.Config
	engine     *risk.Engine
	scorer     *anomaly.Adapter
	dispatcher *alerts.Dispatcher
	assessed   risk.Store
	alertStore alerts.Store
	natsSink   *alerts.NATSSink // nil unless NATS is the configured sink
	db         *sql.DB          // nil if using in-memory
	router     *gin.Engine
	httpSrv    *http.Server
	logger     *slog.Logger

	rateLimiter *ratelimit.Limiter

	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a new server instance with the given tuning parameters.
func New(cfg *config.Config, params config.RiskParams, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, cfg.LogFormat),
	}

	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.assessed = risk.NewPostgresStore(db)
		s.alertStore = alerts.NewPostgresStore(db)
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		s.assessed = risk.NewMemoryStore()
		s.alertStore = alerts.NewMemoryStore()
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	// Alert sink: NATS wins over webhook; fall back to log-only delivery.
	var sink alerts.Sink
	switch {
	case cfg.NATSURL != "":
		ns, err := alerts.NewNATSSink(ctx, cfg.NATSURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create nats sink: %w", err)
		}
		s.natsSink = ns
		sink = ns
		s.logger.Info("alert delivery via NATS JetStream", "url", cfg.NATSURL)
	case cfg.WebhookURL != "":
		sink = alerts.NewWebhookSink(cfg.WebhookURL, cfg.WebhookSecret)
		s.logger.Info("alert delivery via webhook", "url", cfg.WebhookURL)
	default:
		sink = &logSink{logger: s.logger}
		s.logger.Info("no alert sink configured, alerts will be logged only")
	}

	s.dispatcher = alerts.NewDispatcher(sink, params.Alerts).
		WithStore(s.alertStore).
		WithRecorder(metrics.PromRecorder{}).
		WithLogger(s.logger)

	// The anomaly model starts unfitted; scoring degrades to neutral until
	// one is swapped in.
	s.scorer = anomaly.New(nil)

	s.engine = risk.NewEngine(detect.All(params.Detectors), s.scorer).
		WithStore(s.assessed).
		WithRecorder(metrics.PromRecorder{}).
		WithNotifier(s.dispatcher).
		WithLogger(s.logger).
		WithWeights(params.Weights).
		WithScoreTimeout(cfg.ScoreTimeout)

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// Engine exposes the risk engine (for embedding and tests).
func (s *Server) Engine() *risk.Engine {
	return s.engine
}

// Scorer exposes the anomaly adapter so a fitted model can be swapped in.
func (s *Server) Scorer() *anomaly.Adapter {
	return s.scorer
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// logSink is the fallback alert sink when neither NATS nor a webhook is
// configured. Delivery always succeeds.
type logSink struct {
	logger *slog.Logger
}

func (l *logSink) Deliver(_ context.Context, a *alerts.Alert) error {
	l.logger.Warn("risk alert",
		"id", a.ID,
		"tx_hash", a.TxHash,
		"alert_type", string(a.Kind),
		"severity", string(a.Severity),
		"risk_score", a.Score,
		"risk_level", a.Level,
	)
	return nil
}

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting by client IP
	s.rateLimiter = ratelimit.New(ratelimit.DefaultConfig())
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = idgen.WithPrefix("req_")
		}

		ctx := logging.WithLogger(c.Request.Context(), s.logger.With("request_id", requestID))
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/healthz", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// API info
	s.router.GET("/api", s.infoHandler)

	v1 := s.router.Group("/v1")
	{
		v1.POST("/assess", s.assessHandler)
		v1.GET("/assessments/:hash", validation.TxHashParamMiddleware(), s.assessmentsHandler)
		v1.GET("/alerts", s.alertsHandler)
		v1.POST("/admin/reload", s.reloadHandler)
	}
}

// Run starts the HTTP server and the alert delivery worker, then blocks until
// a shutdown signal, a server error, or context cancellation.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start alert delivery worker
	go s.dispatcher.Run(runCtx)

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the delivery worker and any other background goroutines
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	if s.natsSink != nil {
		s.natsSink.Close()
		s.logger.Info("nats connection closed")
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		}
	}

	s.logger.Info("shutdown complete")
	return nil
}

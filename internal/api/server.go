package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/FairForge/drfailover/internal/config"
	"github.com/FairForge/drfailover/internal/ha"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Invoker runs one failover invocation. Implemented by *ha.DROrchestrator.
type Invoker interface {
	Execute(ctx context.Context, event json.RawMessage) (*ha.Report, error)
}

// TriggerObserver records how alarm notifications were answered
type TriggerObserver interface {
	ObserveTrigger(status int)
}

// Server accepts SNS-delivered alarm notifications and runs the failover
// runbook for each alarm.
type Server struct {
	config     *config.Config
	logger     *zap.Logger
	router     chi.Router
	httpServer *http.Server
	invoker    Invoker
	limiter    *TriggerLimiter
	auth       *TokenAuth
	observer   TriggerObserver
	metrics    http.Handler
	startTime  time.Time

	invocationTimeout time.Duration
}

// scalingMargin bounds the node group calls that follow the writer poll
const scalingMargin = 2 * time.Minute

// NewServer wires the routes. metricsHandler and observer may be nil.
func NewServer(cfg *config.Config, logger *zap.Logger, invoker Invoker, observer TriggerObserver, metricsHandler http.Handler) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		config:    cfg,
		logger:    logger,
		router:    chi.NewRouter(),
		invoker:   invoker,
		limiter:   NewTriggerLimiter(cfg.Server.TriggerRate, cfg.Server.TriggerBurst),
		auth:      NewTokenAuth(cfg.Server.WebhookSecret),
		observer:  observer,
		metrics:   metricsHandler,
		startTime: time.Now(),
	}

	s.setupRoutes()

	// An invocation is bounded by the full promotion poll plus scaling.
	s.invocationTimeout = time.Duration(cfg.Failover.PollAttempts)*cfg.Failover.PollInterval + scalingMargin

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      s.invocationTimeout,
		IdleTimeout:       120 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.loggingMiddleware)

	s.router.Get("/health", s.handleHealth)
	if s.metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.metrics)
	}

	s.router.Group(func(r chi.Router) {
		r.Use(s.auth.Middleware)
		r.Post("/v1/alarms", s.handleAlarm)
	})
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("starting alarm trigger server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight invocations
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"uptime":         time.Since(s.startTime).Seconds(),
		"global_cluster": s.config.Failover.GlobalClusterID,
		"target_region":  s.config.Failover.TargetRegion,
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

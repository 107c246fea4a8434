// Package main is the entry point for the Swellchain operations engine: an
// HTTP service that executes transfers, bridges, swaps, vault operations and
// price lookups, and serves the Swellchain yield opportunity catalog.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/yourorg/swell-ops-ea/internal/chain"
	"github.com/yourorg/swell-ops-ea/internal/circuitbreaker"
	"github.com/yourorg/swell-ops-ea/internal/config"
	"github.com/yourorg/swell-ops-ea/internal/journal"
	"github.com/yourorg/swell-ops-ea/internal/model"
	"github.com/yourorg/swell-ops-ea/internal/opportunity"
	"github.com/yourorg/swell-ops-ea/internal/otel"
	"github.com/yourorg/swell-ops-ea/internal/report"
)

// startTime records when the service was initialized for uptime reporting
var startTime = time.Now()

const version = "1.0.0"

// operationRunner executes operation requests and exposes their journal.
type operationRunner interface {
	Execute(ctx context.Context, req model.OperationRequest) model.Result
	Journal() journal.Store
}

// opportunityCatalog answers catalog queries.
type opportunityCatalog interface {
	FetchAll(ctx context.Context) ([]model.Opportunity, error)
	Filter(ctx context.Context, c opportunity.Criteria) ([]model.Opportunity, error)
	List(ctx context.Context, q opportunity.Query) ([]model.Opportunity, error)
	TopByApr(ctx context.Context, limit int) ([]model.Opportunity, error)
	ByID(ctx context.Context, id string) (model.Opportunity, bool, error)
	FetchedAt() time.Time
}

// dependencies are the components a Server routes requests to.
type dependencies struct {
	ops      operationRunner
	catalog  opportunityCatalog
	wallets  []chain.Wallet
	breakers []*circuitbreaker.CircuitBreaker
	reporter report.Reporter
	webhook  *report.WebhookReporter
	closers  []func()
}

// Server represents the engine's HTTP server instance
type Server struct {
	config config.Config
	deps   dependencies

	// HTTP server instance
	server *http.Server

	// Metrics registry
	metrics *serverMetrics

	rateLimit *rate.Limiter
}

// serverMetrics holds Prometheus metrics for the server
type serverMetrics struct {
	requestCounter    *prometheus.CounterVec
	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	approvalCounter   *prometheus.CounterVec
	upstreamErrors    *prometheus.CounterVec
	circuitBreaker    *prometheus.GaugeVec
	opportunityCount  prometheus.Gauge
}

// registerMetrics sets up Prometheus metrics collection
func registerMetrics(reg prometheus.Registerer) *serverMetrics {
	m := &serverMetrics{
		requestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swellops_requests_total",
				Help: "Total number of HTTP requests processed",
			},
			[]string{"endpoint", "status"},
		),
		operationCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swellops_operations_total",
				Help: "Total number of orchestrated operations",
			},
			[]string{"kind", "result", "error_kind"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swellops_operation_duration_seconds",
				Help:    "Operation duration in seconds, including confirmation waits",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"kind"},
		),
		approvalCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swellops_approvals_total",
				Help: "Approval transactions submitted ahead of a primary transaction",
			},
			[]string{"kind"},
		),
		upstreamErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swellops_circuit_trips_total",
				Help: "Number of times an upstream circuit breaker opened",
			},
			[]string{"upstream"},
		),
		circuitBreaker: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "swellops_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"upstream"},
		),
		opportunityCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "swellops_opportunities_cached",
				Help: "Number of opportunities in the catalog cache",
			},
		),
	}

	reg.MustRegister(
		m.requestCounter,
		m.operationCounter,
		m.operationDuration,
		m.approvalCounter,
		m.upstreamErrors,
		m.circuitBreaker,
		m.opportunityCount,
	)

	return m
}

// main is the entry point for the application
func main() {
	if err := config.LoadDotEnv(os.Getenv("ENV_FILE")); err != nil {
		logrus.Fatalf("Failed to read env file: %v", err)
	}

	cfg := config.Load()
	setupLogging(cfg.LogLevel, cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}

	shutdownTracer := otel.InitTracer(cfg.OtelEndpoint)
	defer shutdownTracer()

	metrics := registerMetrics(prometheus.DefaultRegisterer)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	deps, err := buildDependencies(ctx, cfg, metrics)
	cancel()
	if err != nil {
		logrus.Fatalf("Failed to initialize: %v", err)
	}

	server := NewServer(cfg, deps, metrics)
	server.Start()
}

// setupLogging configures the logging for the application
func setupLogging(level, format string) {
	switch format {
	case "text":
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	default:
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	switch level {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "warn", "warning":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}

	logrus.Info("Logging configured")
}

// NewServer creates a new server instance over deps
func NewServer(cfg config.Config, deps dependencies, metrics *serverMetrics) *Server {
	if deps.reporter == nil {
		deps.reporter = report.LogReporter{}
	}

	s := &Server{
		config:  cfg,
		deps:    deps,
		metrics: metrics,
	}

	if cfg.RateLimitEnabled {
		s.rateLimit = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
		logrus.Infof("Rate limiting initialized: %v req/s, burst: %d", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	logrus.WithFields(logrus.Fields{
		"port":     cfg.Port,
		"profile":  cfg.Profile,
		"wallets":  len(deps.wallets),
		"breakers": len(deps.breakers),
		"webhook":  deps.webhook != nil,
	}).Info("Server initialized")

	return s
}

// routes registers every endpoint on a new mux
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /operations", s.handleOperation)
	mux.HandleFunc("GET /operations/pending", s.handlePendingOperations)
	mux.HandleFunc("GET /operations/{id}", s.handleGetOperation)

	mux.HandleFunc("GET /opportunities", s.handleOpportunities)
	mux.HandleFunc("GET /opportunities/top", s.handleTopOpportunities)
	mux.HandleFunc("GET /opportunities/summary", s.handleOpportunitySummary)
	mux.HandleFunc("GET /opportunities/{id}", s.handleOpportunity)
	mux.HandleFunc("POST /opportunities/refresh", s.handleRefreshOpportunities)

	mux.HandleFunc("GET /wallets", s.handleWallets)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("/circuit", s.handleCircuitStatus)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	return mux
}

// Start begins the HTTP server and sets up graceful shutdown
func (s *Server) Start() {
	s.server = &http.Server{
		Addr:        ":" + s.config.Port,
		Handler:     s.routes(),
		ReadTimeout: 15 * time.Second,
		// operations block until their receipts are mined
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("Server starting on port %s", s.config.Port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Error starting server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		logrus.Errorf("Server shutdown failed: %v", err)
	}
	s.close(ctx)

	logrus.Info("Server stopped")
}

// close flushes reporters and releases connections
func (s *Server) close(ctx context.Context) {
	if s.deps.webhook != nil {
		if err := s.deps.webhook.Stop(ctx); err != nil {
			logrus.WithError(err).Warn("Failed to flush pending reports")
		}
	}
	for _, c := range s.deps.closers {
		c()
	}
}

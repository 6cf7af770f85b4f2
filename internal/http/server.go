// Package http serves the ledger as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"fintrack/internal/cache"
	applog "fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/services"
)

// Config tunes the server. Zero values select defaults.
type Config struct {
	Addr              string
	RequestsPerMinute int
	CacheCleanup      time.Duration
	// ReadyCheck backs /readyz, typically a storage ping.
	ReadyCheck func(context.Context) error
}

type Server struct {
	http.Server
	ledger   *services.Ledger
	queries  *QueryCache
	logger   *applog.Logger
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
	caches   *cache.Manager
	ready    func(context.Context) error

	startedAt    time.Time
	shutdownOnce sync.Once
}

// NewServer wires routes and middleware. queries must be registered as a
// notifier of ledger so that writes invalidate cached reads.
func NewServer(cfg Config, ledger *services.Ledger, queries *QueryCache, logger *applog.Logger) *Server {
	if cfg.CacheCleanup <= 0 {
		cfg.CacheCleanup = 10 * time.Minute
	}
	logger = logger.WithComponent(applog.ComponentHTTP)
	mux := http.NewServeMux()

	s := &Server{
		ledger:    ledger,
		queries:   queries,
		logger:    logger,
		limiter:   ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RequestsPerMinute}),
		detector:  security.NewDetector(logger.Slog()),
		caches:    cache.NewManager(logger.Slog()),
		ready:     cfg.ReadyCheck,
		startedAt: time.Now(),
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ClientIP)
	s.caches.Register(queries.Results())
	s.caches.StartCleanup(cfg.CacheCleanup)

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /api/signup", s.handleSignup)
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/login/biometric", s.handleBiometricLogin)
	mux.HandleFunc("POST /api/logout", s.handleLogout)
	mux.HandleFunc("PUT /api/password", s.handleChangePassword)
	mux.HandleFunc("GET /api/session", s.handleSession)

	mux.HandleFunc("PUT /api/salary", s.handleSetSalary)
	mux.HandleFunc("GET /api/transactions", s.handleListTransactions)
	mux.HandleFunc("POST /api/transactions", s.handleAddTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", s.handleDeleteTransaction)
	mux.HandleFunc("GET /api/emis", s.handleListEMIs)
	mux.HandleFunc("POST /api/emis", s.handleAddEMI)
	mux.HandleFunc("POST /api/emis/{id}/close", s.handleCloseEMI)
	mux.HandleFunc("GET /api/emis/upcoming", s.handleUpcomingDues)

	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("GET /api/series", s.handleSeries)
	mux.HandleFunc("GET /api/report", s.handleReport)
	mux.HandleFunc("GET /api/year", s.handleYear)
	mux.HandleFunc("GET /api/categories", s.handleCategories)

	mux.HandleFunc("POST /api/import", s.handleImport)
	mux.HandleFunc("GET /api/export", s.handleExport)

	var handler http.Handler = mux
	handler = s.limiter.Middleware(s.detector.ClientIP, s.handleRateLimited,
		http.MethodPost, http.MethodPut, http.MethodDelete)(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.detector.Middleware(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

// Shutdown stops background cleanup and drains the listener. Safe to call
// more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.detector.ClientIP(r),
		applog.FieldMethod, r.Method,
		applog.FieldPath, r.URL.Path)
	writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded, try again later"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"ledger": "ok", "storage": "ok"}
	status, code := "ready", http.StatusOK

	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.WarnContext(ctx, "Readiness check failed", applog.FieldError, err)
			checks["storage"] = "failed: " + err.Error()
			status, code = "not_ready", http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, map[string]any{
		"status":        status,
		"checks":        checks,
		"cached":        s.queries.Results().Size(),
		"rate_limited":  s.limiter.Hits(),
		"suspicious":    s.detector.Suspicious(),
		"requests_seen": s.tracer.TotalRequests(),
	})
}

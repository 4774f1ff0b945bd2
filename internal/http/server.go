package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"carteira/internal/log"
	"carteira/internal/middleware/ratelimit"
	"carteira/internal/middleware/security"
	"carteira/internal/middleware/trace"
	"carteira/internal/repository"
	"carteira/internal/services"
)

// OutboxStats reports the relay backlog for /metrics.
type OutboxStats interface {
	Stats(ctx context.Context) (repository.OutboxStats, error)
}

// Realtime is the websocket feed mounted at /ws.
type Realtime interface {
	http.Handler
	Count() int
}

// Deps are the collaborators the API serves.
type Deps struct {
	Ledger    *services.Ledger
	Summaries *services.Summaries
	Store     repository.Store

	// Optional
	Realtime Realtime
	Outbox   OutboxStats
}

// Config holds the server settings taken from the environment.
type Config struct {
	Addr               string
	RateLimitPerMinute int
}

type Server struct {
	http.Server
	ledger    *services.Ledger
	summaries *services.Summaries
	store     repository.Store
	realtime  Realtime
	outbox    OutboxStats

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	logger           *log.Logger

	startedAt    time.Time
	now          func() time.Time
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(cfg Config, deps Deps, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		Server: http.Server{
			Addr:              cfg.Addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		ledger:    deps.Ledger,
		summaries: deps.Summaries,
		store:     deps.Store,
		realtime:  deps.Realtime,
		outbox:    deps.Outbox,
		logger:    logger,
		startedAt: time.Now(),
		now:       time.Now,
	}

	s.securityDetector = security.NewDetector(logger)
	s.traceMiddleware = trace.NewMiddleware(s.securityDetector.ExtractClientIP, logger)
	s.rateLimiter = ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: cfg.RateLimitPerMinute,
		CleanupInterval:   5 * time.Minute,
	}, logger)

	s.Handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.traceMiddleware.Handler)
	r.Use(middleware.Recoverer)
	r.Use(s.securityDetector.Middleware)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusNotFound, CodeRouteNotFound, "route not found").Write(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusMethodNotAllowed, CodeMethodNotAllowed, "method not allowed").Write(w)
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", s.handleMetrics)
	if s.realtime != nil {
		r.Get("/ws", s.realtime.ServeHTTP)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(security.NoStore)
		r.Use(s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
			ErrorResponse(http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded, try again later").Write(w)
		}))

		r.Route("/wallets", func(r chi.Router) {
			r.Get("/", s.handleListWallets)
			r.Post("/", s.handleCreateWallet)
			r.Get("/{id}", s.handleGetWallet)
			r.Patch("/{id}", s.handleUpdateWallet)
			r.Delete("/{id}", s.handleDeleteWallet)
			r.Get("/{id}/transfers", s.handleWalletTransfers)
		})

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", s.handleListCategories)
			r.Post("/", s.handleCreateCategory)
			r.Get("/{id}", s.handleGetCategory)
			r.Patch("/{id}", s.handleUpdateCategory)
			r.Delete("/{id}", s.handleDeleteCategory)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", s.handleListTransactions)
			r.Post("/", s.handleCreateTransaction)
			r.Post("/execute", s.handleExecuteTransactions)
			r.Get("/pending-recurring", s.handlePendingRecurring)
			r.Get("/groups/{groupId}", s.handleTransactionGroup)
			r.Get("/{id}", s.handleGetTransaction)
			r.Patch("/{id}", s.handleUpdateTransaction)
			r.Delete("/{id}", s.handleDeleteTransaction)
		})

		r.Route("/transfers", func(r chi.Router) {
			r.Get("/", s.handleListTransfers)
			r.Post("/", s.handleCreateTransfer)
			r.Get("/{id}", s.handleGetTransfer)
		})

		r.Route("/summary", func(r chi.Router) {
			r.Get("/month", s.handleMonthSummary)
			r.Get("/wallets", s.handleWalletsSummary)
		})
	})

	return r
}

// Shutdown gracefully shuts down the server and the rate limiter cleanup.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// found turns a (nil, nil) repository lookup into a NotFound error.
func found[T any](v *T, err error, notFound func(string) error, id string) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, notFound(id)
	}
	return *v, nil
}

// idParam reads a sanitized chi URL parameter.
func idParam(r *http.Request, name string) string {
	return sanitizeInput(chi.URLParam(r, name))
}

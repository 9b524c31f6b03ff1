package api

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tokens.hh/internal/engine"
)

type Server struct {
	engine      *engine.Engine
	authToken   string
	logger      *slog.Logger
	corsOrigins []string
	health      func(ctx context.Context) error
}

type Option func(*Server)

func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.corsOrigins = origins
		}
	}
}

// WithHealthCheck sets the check behind /healthz, typically a database ping.
func WithHealthCheck(fn func(ctx context.Context) error) Option {
	return func(s *Server) {
		s.health = fn
	}
}

func NewServer(eng *engine.Engine, authToken string, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		engine:      eng,
		authToken:   authToken,
		logger:      logger,
		corsOrigins: []string{"*"},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
	}))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/plans", s.handleCreatePlan)

		r.Route("/companies", func(r chi.Router) {
			r.Post("/", s.handleCreateCompany)
			r.Get("/{id}", s.handleGetCompany)
			r.Get("/{id}/balance", s.handleCompanyBalance)
		})

		r.Route("/users", func(r chi.Router) {
			r.Post("/", s.handleCreateUser)
			r.Get("/{id}/balance", s.handleDesignerBalance)
		})

		r.Route("/tickets", func(r chi.Router) {
			r.Post("/", s.handleCreateTicket)
			r.Get("/{id}", s.handleGetTicket)
			r.Post("/{id}/complete", s.handleCompleteTicket)
		})

		r.Post("/subscriptions/credit", s.handleCreditSubscription)
		r.Post("/adjustments", s.handleAdjustment)

		r.Route("/withdrawals", func(r chi.Router) {
			r.Post("/", s.handleCreateWithdrawal)
			r.Get("/", s.handleListWithdrawals)
			r.Get("/{id}", s.handleGetWithdrawal)
			r.Post("/{id}/approve", s.handleApproveWithdrawal)
			r.Post("/{id}/reject", s.handleRejectWithdrawal)
			r.Post("/{id}/pay", s.handlePayWithdrawal)
		})

		r.Route("/ledger", func(r chi.Router) {
			r.Get("/", s.handleListEntries)
			r.Get("/summary", s.handleSummary)
			r.Get("/audit", s.handleAudit)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			s.logger.ErrorContext(r.Context(), "health check failed", slog.Any("error", err))
			writeError(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r.Header.Get("Authorization"))
		if !secureCompare(token, s.authToken) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func secureCompare(a, b string) bool {
	if len(a) != len(b) || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

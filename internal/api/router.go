package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sunrayhq/control-plane/internal/audit"
	"github.com/sunrayhq/control-plane/internal/session"
	"github.com/sunrayhq/control-plane/internal/snapshot"
	"github.com/sunrayhq/control-plane/internal/store"
	"github.com/sunrayhq/control-plane/internal/token"
	"github.com/sunrayhq/control-plane/internal/worker"
)

// Server holds every dependency the REST surface needs. It is deliberately
// thin: all domain logic lives in the internal/token, internal/session,
// internal/worker, and internal/snapshot packages; handlers only translate
// HTTP <-> those APIs.
type Server struct {
	store     store.Store
	audit     *audit.Logger
	setup     *token.Issuer
	email     *token.EmailIssuer
	sessions  *session.Engine
	workers   *worker.Registrar
	snapshots *snapshot.Builder
	metrics   *Metrics
	startedAt time.Time
}

func NewServer(s store.Store, a *audit.Logger, setup *token.Issuer, email *token.EmailIssuer, sessions *session.Engine, workers *worker.Registrar, snapshots *snapshot.Builder, metrics *Metrics) *Server {
	return &Server{
		store:     s,
		audit:     a,
		setup:     setup,
		email:     email,
		sessions:  sessions,
		workers:   workers,
		snapshots: snapshots,
		metrics:   metrics,
		startedAt: time.Now().UTC(),
	}
}

// Router builds the full chi.Router for spec.md §6's REST surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(RequestSizeLimit)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}

	r.Route("/sunray-srvr/v1", func(r chi.Router) {
		r.Get("/status", ErrorHandler(s.handleStatus))
		if s.metrics != nil {
			r.Handle("/metrics", s.metrics.Handler())
		}

		r.Group(func(r chi.Router) {
			r.Use(BearerAuth(s.store))

			r.Get("/health", ErrorHandler(s.handleHealth))
			r.Get("/config", ErrorHandler(s.handleConfigSnapshot))

			r.Post("/users/check", ErrorHandler(s.handleUsersCheck))
			r.Post("/users/validate", ErrorHandler(s.handleUsersValidate))
			r.Post("/setup-tokens/validate", ErrorHandler(s.handleSetupTokenValidate))
			r.Post("/email-otp/request", ErrorHandler(s.handleEmailOTPRequest))
			r.Post("/email-otp/validate", ErrorHandler(s.handleEmailOTPValidate))
			r.Post("/users/{username}/passkeys", ErrorHandler(s.handlePasskeyReport))
			r.Post("/auth/verify", ErrorHandler(s.handleAuthVerify))

			r.Post("/sessions", ErrorHandler(s.handleCreateSession))
			r.Post("/sessions/remote", ErrorHandler(s.handleCreateRemoteSession))
			r.Get("/sessions/list/{user_id}", ErrorHandler(s.handleListSessions))
			r.Delete("/sessions/{session_id}", ErrorHandler(s.handleTerminateSession))
			r.Post("/sessions/{session_id}/revoke", ErrorHandler(s.handleRevokeSession))

			r.Post("/security-events", ErrorHandler(s.handleSecurityEvent))
			r.Post("/webhooks/track-usage", ErrorHandler(s.handleWebhookTrackUsage))

			r.Post("/workers/register", ErrorHandler(s.handleRegisterWorker))
		})
	})

	return r
}

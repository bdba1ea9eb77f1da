package app

import (
	"context"
	"net/http"

	"github.com/aliuyar1234/inviteguard/internal/apperrors"
	"github.com/aliuyar1234/inviteguard/internal/audit"
	"github.com/aliuyar1234/inviteguard/internal/auth"
	"github.com/aliuyar1234/inviteguard/internal/config"
	"github.com/aliuyar1234/inviteguard/internal/invitations"
	"github.com/aliuyar1234/inviteguard/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Pinger reports storage readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterDeps are the collaborators the HTTP surface needs.
type RouterDeps struct {
	Config      *config.Config
	Invitations *invitations.Service
	Auditor     *audit.Writer
	Metrics     *metrics.Recorder
	Store       Pinger
}

// NewRouter creates and configures the Chi router with all middleware and routes
func NewRouter(deps RouterDeps) *chi.Mux {
	cfg := deps.Config
	svc := deps.Invitations
	auditor := deps.Auditor

	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(apperrors.RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins(),
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(auth.AuthMiddleware(cfg.JWTSecret))

	r.Get("/healthz", handleHealthz)
	r.Get("/readyz", handleReadyz(deps.Store))
	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	r.Route("/api/v1/invitations", func(r chi.Router) {
		r.Use(NoCacheMiddleware)

		// Public: the token is the credential.
		r.With(AcceptRateLimitMiddleware(cfg.AcceptRateLimitRPM)).Post("/accept", invitations.HandleAccept(svc, auditor))

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth)

			r.Post("/", invitations.HandleCreate(svc, auditor))
			r.Get("/", invitations.HandleList(svc))
			r.Get("/{invitation_id}", invitations.HandleGet(svc))
			r.Post("/{invitation_id}/resend", invitations.HandleResend(svc, auditor))
			r.Delete("/{invitation_id}", invitations.HandleRevoke(svc, auditor))
		})
	})

	return r
}

// handleHealthz returns a simple liveness check
func handleHealthz(w http.ResponseWriter, r *http.Request) {
	apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleReadyz returns 200 when the store answers, 503 otherwise
func handleReadyz(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			apperrors.WriteServiceUnavailable(w, r, "Database connection failed")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
			"status": "ready",
			"db":     "ok",
		})
	}
}

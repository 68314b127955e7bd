package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wildcommand/wildcommand/internal/apperrors"
	"github.com/wildcommand/wildcommand/internal/audit"
	"github.com/wildcommand/wildcommand/internal/bookings"
	"github.com/wildcommand/wildcommand/internal/config"
	"github.com/wildcommand/wildcommand/internal/huntlogs"
	"github.com/wildcommand/wildcommand/internal/identity"
	"github.com/wildcommand/wildcommand/internal/invites"
	"github.com/wildcommand/wildcommand/internal/mailer"
	"github.com/wildcommand/wildcommand/internal/outfitters"
	"github.com/wildcommand/wildcommand/internal/profiles"
)

// NewRouter creates and configures the Chi router with all middleware and routes
func NewRouter(pool *pgxpool.Pool, cfg *config.Config, provider identity.Provider, sender mailer.Sender) *chi.Mux {
	r := chi.NewRouter()

	isProduction := !cfg.IsDev()

	// Middleware stack
	r.Use(middleware.RealIP)
	r.Use(apperrors.RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.BaseURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(identity.AuthMiddleware(cfg.JWTSecret))

	// Shared services
	auditor := audit.NewWriter(pool)
	auditReader := audit.NewReader(pool)
	store := profiles.NewPGStore(pool)
	outfitterSvc := outfitters.NewService(pool, provider)
	workflow := invites.NewWorkflow(provider, store, sender, outfitterSvc, cfg.BaseURL)
	bookingSvc := bookings.NewService(pool, sender)
	huntLogStore := huntlogs.NewPGStore(pool)

	// Health check routes (no authentication required)
	r.Get("/healthz", handleHealthz)
	r.Get("/readyz", handleReadyz(pool))

	// API routes - Authentication
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(NoCacheMiddleware)

		// Password login with rate limiting
		r.With(CSRFMiddleware(isProduction), RateLimitByIP(cfg.LoginRateRPM)).
			Post("/login", identity.HandleLogin(provider, auditor, cfg.JWTSecret, cfg.SessionDays, isProduction))

		// One-time sign-in link redemption. The member arrives from an
		// email link with no prior cookies, so no CSRF check here.
		r.With(RateLimitByIP(cfg.RedeemRateRPM)).
			Post("/redeem", invites.HandleRedeem(workflow, auditor, cfg.JWTSecret, cfg.SessionDays, isProduction))

		r.With(CSRFMiddleware(isProduction), identity.RequireAuth).
			Post("/logout", http.HandlerFunc(identity.HandleLogout))
	})

	// API routes - Outfitters
	r.Route("/api/v1/outfitters", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(CSRFMiddleware(isProduction))

		// Unauthenticated: signup and the landing-page slug lookup.
		r.Post("/", outfitters.HandleSignup(outfitterSvc, auditor, cfg.JWTSecret, cfg.SessionDays, isProduction))
		r.Get("/by-slug/{slug}", outfitters.HandleGetBySlug(outfitterSvc))

		r.Group(func(r chi.Router) {
			r.Use(identity.RequireAuth)

			r.Get("/{outfitter_id}", outfitters.HandleGet(outfitterSvc))
			r.Get("/{outfitter_id}/audit", outfitters.HandleListAudit(auditReader))

			// Member invitations
			r.Post("/{outfitter_id}/invites", invites.HandleIssue(workflow, auditor))
			r.Post("/{outfitter_id}/invites/resend", invites.HandleResend(workflow, auditor))

			// Member roster
			r.Get("/{outfitter_id}/members/{collection}", invites.HandleListMembers(workflow))
			r.Get("/{outfitter_id}/members/{collection}/{member_id}", invites.HandleGetMember(workflow))
			r.Patch("/{outfitter_id}/members/{collection}/{member_id}", invites.HandleUpdateMember(workflow, auditor))
			r.Delete("/{outfitter_id}/members/{collection}/{member_id}", invites.HandleDeactivateMember(workflow, auditor))

			// Bookings
			r.Post("/{outfitter_id}/bookings", bookings.HandleCreate(bookingSvc, auditor))
			r.Get("/{outfitter_id}/bookings", bookings.HandleList(bookingSvc, store))
			r.Get("/{outfitter_id}/bookings/{booking_id}", bookings.HandleGet(bookingSvc, store))
			r.Delete("/{outfitter_id}/bookings/{booking_id}", bookings.HandleCancel(bookingSvc, auditor))

			// Hunt logs
			r.Post("/{outfitter_id}/huntlogs", huntlogs.HandleCreate(huntLogStore, store, auditor))
			r.Get("/{outfitter_id}/huntlogs", huntlogs.HandleList(huntLogStore, store))
		})
	})

	// API routes - Own profile
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(CSRFMiddleware(isProduction))
		r.Use(identity.RequireAuth)

		r.Get("/me", invites.HandleMe(workflow))
		r.Post("/profile/complete", invites.HandleComplete(workflow, auditor))
	})

	return r
}

// handleHealthz returns a simple liveness check
// Always returns 200 OK if the service is running
func handleHealthz(w http.ResponseWriter, r *http.Request) {
	apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleReadyz returns a readiness check that includes database connectivity
// Returns 200 OK if service is ready to accept traffic, 503 if not
func handleReadyz(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			apperrors.WriteServiceUnavailable(w, r, "Database connection failed")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
			"status": "ready",
			"db":     "ok",
		})
	}
}

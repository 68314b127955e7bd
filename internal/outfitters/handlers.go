package outfitters

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/wildcommand/wildcommand/internal/apperrors"
	"github.com/wildcommand/wildcommand/internal/audit"
	"github.com/wildcommand/wildcommand/internal/identity"
	"github.com/wildcommand/wildcommand/internal/validation"
)

type SignupRequest struct {
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignupResponse struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Slug string    `json:"slug"`
}

// PublicOutfitter is the subset of an outfitter visible without a session.
type PublicOutfitter struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Slug string    `json:"slug"`
}

// HandleSignup handles POST /api/v1/outfitters: a new outfitter with its
// administrator account in one step.
func HandleSignup(service *Service, auditor *audit.Writer, jwtSecret string, sessionDays int, isProduction bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req SignupRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		if req.Name == "" {
			apperrors.WriteBadRequest(w, r, "Outfitter name is required")
			return
		}
		req.Slug = validation.NormalizeSlug(req.Slug)
		if err := validation.ValidateSlug(req.Slug); err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}
		email, err := validation.NormalizeEmail(req.Email)
		if err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}
		if len(req.Password) < 8 {
			apperrors.WriteBadRequest(w, r, "Password must be at least 8 characters")
			return
		}

		outfitter, session, err := service.Signup(ctx, req.Name, req.Slug, email, req.Password)
		if err != nil {
			if errors.Is(err, ErrSlugConflict) {
				apperrors.WriteConflict(w, r, "Outfitter slug already exists")
				return
			}
			if errors.Is(err, ErrEmailTaken) {
				apperrors.WriteConflict(w, r, "Email address already registered")
				return
			}
			log.Error().Err(err).Msg("Failed to create outfitter")
			apperrors.WriteInternalError(w, r, "Failed to create outfitter")
			return
		}

		if err := auditor.LogOutfitterSignup(ctx, outfitter.ID, session.AccountID, outfitter.Slug); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		token, err := identity.CreateSessionToken(session, jwtSecret, sessionDays)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create session token")
			apperrors.WriteInternalError(w, r, "Failed to create session")
			return
		}
		identity.SetSessionCookie(w, token, sessionDays, isProduction)

		csrfToken, err := identity.GenerateCSRFToken()
		if err != nil {
			log.Error().Err(err).Msg("Failed to generate CSRF token")
			apperrors.WriteInternalError(w, r, "Failed to create session")
			return
		}
		identity.SetCSRFCookie(w, csrfToken, isProduction)

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"outfitter": SignupResponse{
				ID:   outfitter.ID,
				Name: outfitter.Name,
				Slug: outfitter.Slug,
			},
		})
	}
}

// HandleGet handles GET /api/v1/outfitters/{outfitter_id}
func HandleGet(service *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		session := identity.SessionFromContext(ctx)

		outfitterID, err := uuid.Parse(chi.URLParam(r, "outfitter_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid outfitter ID")
			return
		}

		// Members see only their own outfitter.
		if session.Claims.IsZero() || session.Claims.OutfitterID != outfitterID {
			apperrors.WriteNotFound(w, r, "Outfitter not found")
			return
		}

		outfitter, err := service.GetByID(ctx, outfitterID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				apperrors.WriteNotFound(w, r, "Outfitter not found")
				return
			}
			log.Error().Err(err).Msg("Failed to load outfitter")
			apperrors.WriteInternalError(w, r, "Failed to load outfitter")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"outfitter": outfitter,
		})
	}
}

// HandleGetBySlug handles GET /api/v1/outfitters/by-slug/{slug}. The route
// is public and backs the sign-in landing page, so it exposes only the
// outfitter's public identity.
func HandleGetBySlug(service *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		slug := chi.URLParam(r, "slug")
		if err := validation.ValidateSlug(slug); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid slug")
			return
		}

		outfitter, err := service.GetBySlug(ctx, validation.NormalizeSlug(slug))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				apperrors.WriteNotFound(w, r, "Outfitter not found")
				return
			}
			log.Error().Err(err).Msg("Failed to load outfitter")
			apperrors.WriteInternalError(w, r, "Failed to load outfitter")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"outfitter": PublicOutfitter{
				ID:   outfitter.ID,
				Name: outfitter.Name,
				Slug: outfitter.Slug,
			},
		})
	}
}

package identity

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/wildcommand/wildcommand/internal/apperrors"
	"github.com/wildcommand/wildcommand/internal/audit"
	"github.com/wildcommand/wildcommand/internal/validation"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
}

// HandleLogin processes email/password authentication.
func HandleLogin(provider Provider, auditor *audit.Writer, jwtSecret string, sessionDays int, isProduction bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		email, err := validation.NormalizeEmail(req.Email)
		if err != nil || req.Password == "" {
			apperrors.WriteUnauthorized(w, r, "Invalid credentials")
			return
		}

		session, err := provider.Authenticate(ctx, email, req.Password)
		if err != nil {
			switch {
			case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrAccountNotFound):
				log.Debug().Str("email", email).Msg("Login failed")
				if auditErr := auditor.LogLoginFailed(ctx, email, r.RemoteAddr); auditErr != nil {
					log.Error().Err(auditErr).Msg("Failed to log audit event")
				}
				apperrors.WriteUnauthorized(w, r, "Invalid credentials")
			case errors.Is(err, ErrAccountDisabled):
				apperrors.WriteForbidden(w, r, "Account is disabled")
			default:
				log.Error().Err(err).Msg("Login failed")
				apperrors.WriteInternalError(w, r, "Login failed")
			}
			return
		}

		token, err := CreateSessionToken(session, jwtSecret, sessionDays)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create session token")
			apperrors.WriteInternalError(w, r, "Failed to create session")
			return
		}
		SetSessionCookie(w, token, sessionDays, isProduction)

		csrfToken, err := GenerateCSRFToken()
		if err != nil {
			log.Error().Err(err).Msg("Failed to generate CSRF token")
			apperrors.WriteInternalError(w, r, "Failed to create session")
			return
		}
		SetCSRFCookie(w, csrfToken, isProduction)

		log.Info().
			Str("account_id", session.AccountID.String()).
			Msg("Login succeeded")

		apperrors.WriteSuccess(w, r, http.StatusOK, LoginResponse{
			AccountID: session.AccountID.String(),
			Email:     session.Email,
			Role:      session.Claims.Role,
		})
	}
}

// HandleLogout clears the session.
func HandleLogout(w http.ResponseWriter, r *http.Request) {
	ClearSessionCookie(w)

	if session := SessionFromContext(r.Context()); session != nil {
		log.Info().Str("account_id", session.AccountID.String()).Msg("Logged out")
	}

	apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
		"logged_out": true,
	})
}

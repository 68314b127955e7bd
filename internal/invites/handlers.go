package invites

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/wildcommand/wildcommand/internal/apperrors"
	"github.com/wildcommand/wildcommand/internal/audit"
	"github.com/wildcommand/wildcommand/internal/identity"
	"github.com/wildcommand/wildcommand/internal/profiles"
	"github.com/wildcommand/wildcommand/internal/validation"
)

type IssueInviteRequest struct {
	Role        string `json:"role"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Phone       string `json:"phone"`
}

type ResendInviteRequest struct {
	Role  string `json:"role"`
	Email string `json:"email"`
}

type RedeemRequest struct {
	Token string `json:"token"`
	Email string `json:"email"`
}

type RedeemResponse struct {
	SetupComplete          bool           `json:"setup_complete"`
	NeedsProfile           bool           `json:"needs_profile"`
	ReconciliationConflict bool           `json:"reconciliation_conflict"`
	MemberPath             *profiles.Path `json:"member_path,omitempty"`
}

type CompleteProfileRequest struct {
	DisplayName      string `json:"display_name"`
	Phone            string `json:"phone"`
	Address          string `json:"address"`
	City             string `json:"city"`
	State            string `json:"state"`
	Country          string `json:"country"`
	LicenseNumber    string `json:"license_number"`
	LicenseState     string `json:"license_state"`
	LicenseValidDate string `json:"license_valid_date"`
	ProfileImageURL  string `json:"profile_image_url"`
	Password         string `json:"password"`
}

// HandleIssue handles POST /api/v1/outfitters/{outfitter_id}/invites
func HandleIssue(wf *Workflow, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		session := identity.SessionFromContext(ctx)

		outfitterID, err := uuid.Parse(chi.URLParam(r, "outfitter_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid outfitter ID")
			return
		}

		var req IssueInviteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		email, err := validation.NormalizeEmail(req.Email)
		if err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}
		role := identity.Role(req.Role)

		stub, err := wf.Issue(ctx, session, IssueRequest{
			OutfitterID: outfitterID,
			Role:        role,
			Email:       email,
			DisplayName: req.DisplayName,
			Phone:       req.Phone,
		})
		if err != nil {
			writeWorkflowError(w, r, err, "Failed to invite member")
			return
		}

		if err := auditor.LogMemberInvited(ctx, outfitterID, session.AccountID, stub.MemberID, stub.Email, string(role)); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"member": stub,
		})
	}
}

// HandleResend handles POST /api/v1/outfitters/{outfitter_id}/invites/resend
func HandleResend(wf *Workflow, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		session := identity.SessionFromContext(ctx)

		outfitterID, err := uuid.Parse(chi.URLParam(r, "outfitter_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid outfitter ID")
			return
		}

		var req ResendInviteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		email, err := validation.NormalizeEmail(req.Email)
		if err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}

		stub, err := wf.Resend(ctx, session, outfitterID, identity.Role(req.Role), email)
		if err != nil {
			writeWorkflowError(w, r, err, "Failed to resend invitation")
			return
		}

		if err := auditor.LogInviteResent(ctx, outfitterID, session.AccountID, stub.MemberID, stub.Email); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"member": stub,
		})
	}
}

// HandleRedeem handles POST /api/v1/auth/redeem. The token arrives in the
// request body rather than the URL so it stays out of access logs.
func HandleRedeem(wf *Workflow, auditor *audit.Writer, jwtSecret string, sessionDays int, isProduction bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req RedeemRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		if !identity.ValidateLinkTokenFormat(req.Token) {
			apperrors.WriteBadRequest(w, r, "Invalid sign-in link")
			return
		}
		email, err := validation.NormalizeEmail(req.Email)
		if err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}

		result, err := wf.Redeem(ctx, req.Token, email)
		if err != nil {
			switch {
			case errors.Is(err, identity.ErrLinkNotFound),
				errors.Is(err, identity.ErrLinkEmailMismatch):
				apperrors.WriteUnauthorized(w, r, "Invalid sign-in link")
			case errors.Is(err, identity.ErrLinkExpired):
				apperrors.WriteUnauthorized(w, r, "Sign-in link has expired")
			case errors.Is(err, identity.ErrLinkAlreadyUsed):
				apperrors.WriteUnauthorized(w, r, "Sign-in link has already been used")
			case errors.Is(err, identity.ErrAccountDisabled):
				apperrors.WriteForbidden(w, r, "Account is disabled")
			default:
				writeWorkflowError(w, r, err, "Failed to redeem sign-in link")
			}
			return
		}

		token, err := identity.CreateSessionToken(result.Session, jwtSecret, sessionDays)
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

		var outfitterID *uuid.UUID
		if result.MemberPath != nil {
			outfitterID = &result.MemberPath.OutfitterID
		}
		if err := auditor.LogLinkRedeemed(ctx, outfitterID, result.Session.AccountID, result.SetupComplete); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}
		if result.ReconciliationConflict {
			if err := auditor.LogReconciliationConflict(ctx, result.Session.AccountID, result.Session.Email); err != nil {
				log.Error().Err(err).Msg("Failed to log audit event")
			}
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, RedeemResponse{
			SetupComplete:          result.SetupComplete,
			NeedsProfile:           result.NeedsProfile,
			ReconciliationConflict: result.ReconciliationConflict,
			MemberPath:             result.MemberPath,
		})
	}
}

// HandleComplete handles POST /api/v1/profile/complete
func HandleComplete(wf *Workflow, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		session := identity.SessionFromContext(ctx)

		var req CompleteProfileRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		var licenseValid *time.Time
		if req.LicenseValidDate != "" {
			t, err := time.Parse("2006-01-02", req.LicenseValidDate)
			if err != nil {
				apperrors.WriteBadRequest(w, r, "Invalid license valid date, expected YYYY-MM-DD")
				return
			}
			licenseValid = &t
		}
		if req.Password != "" && len(req.Password) < 8 {
			apperrors.WriteBadRequest(w, r, "Password must be at least 8 characters")
			return
		}

		stub, err := wf.Complete(ctx, session, CompleteRequest{
			DisplayName:      req.DisplayName,
			Phone:            req.Phone,
			Address:          req.Address,
			City:             req.City,
			State:            req.State,
			Country:          req.Country,
			LicenseNumber:    req.LicenseNumber,
			LicenseState:     req.LicenseState,
			LicenseValidDate: licenseValid,
			ProfileImageURL:  req.ProfileImageURL,
			Password:         req.Password,
		})
		if err != nil {
			writeWorkflowError(w, r, err, "Failed to complete profile")
			return
		}

		if err := auditor.LogSetupCompleted(ctx, stub.OutfitterID, session.AccountID); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"profile": stub,
		})
	}
}

// HandleMe handles GET /api/v1/me
func HandleMe(wf *Workflow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		session := identity.SessionFromContext(ctx)

		stub, err := wf.OwnProfile(ctx, session)
		if err != nil && !errors.Is(err, ErrNoProfile) {
			log.Error().Err(err).Msg("Failed to load own profile")
			apperrors.WriteInternalError(w, r, "Failed to load profile")
			return
		}

		resp := map[string]any{
			"account_id":   session.AccountID,
			"email":        session.Email,
			"role":         session.Claims.Role,
			"outfitter_id": nil,
		}
		if !session.Claims.IsZero() {
			resp["outfitter_id"] = session.Claims.OutfitterID
		}
		if stub != nil {
			resp["profile"] = stub
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, resp)
	}
}

// writeWorkflowError maps invitation workflow errors to HTTP responses.
// Partial failures carry the side-effect boundary in the message so an
// administrator knows what already committed.
func writeWorkflowError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, ErrUnauthorized):
		apperrors.WriteForbidden(w, r, "Administrator scope required for this outfitter")
	case errors.Is(err, ErrInvalidRole):
		apperrors.WriteBadRequest(w, r, "Invalid member role")
	case errors.Is(err, ErrAlreadyInvited):
		apperrors.WriteConflict(w, r, "An invitation for this email is already pending")
	case errors.Is(err, ErrAlreadyActive):
		apperrors.WriteConflict(w, r, "This member has already completed setup")
	case errors.Is(err, ErrNotInvited):
		apperrors.WriteNotFound(w, r, "No pending invitation for this email")
	case errors.Is(err, ErrNoProfile):
		apperrors.WriteConflict(w, r, "No outfitter scope assigned yet, redeem your sign-in link first")
	case errors.Is(err, identity.ErrStaleClaims):
		apperrors.WriteUnauthorized(w, r, "Session claims are out of date, sign in again")
	case errors.Is(err, profiles.ErrStubNotFound):
		apperrors.WriteNotFound(w, r, "Member not found")
	default:
		if step, ok := FailedStep(err); ok {
			log.Error().Err(err).Str("step", string(step)).Msg(fallback)
			if step == StepNotify {
				// Everything before notification committed; a resend
				// recovers without re-creating anything.
				apperrors.WriteError(w, r, http.StatusBadGateway, "NOTIFY_FAILED",
					"Invitation recorded but the email could not be sent, use resend")
				return
			}
			apperrors.WriteInternalError(w, r, fallback)
			return
		}
		log.Error().Err(err).Msg(fallback)
		apperrors.WriteInternalError(w, r, fallback)
	}
}

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
)

type UpdateMemberRequest struct {
	DisplayName      *string `json:"display_name"`
	Phone            *string `json:"phone"`
	Address          *string `json:"address"`
	City             *string `json:"city"`
	State            *string `json:"state"`
	Country          *string `json:"country"`
	LicenseNumber    *string `json:"license_number"`
	LicenseState     *string `json:"license_state"`
	LicenseValidDate *string `json:"license_valid_date"`
	ProfileImageURL  *string `json:"profile_image_url"`
}

// memberPathFromRequest parses the {outfitter_id}/{collection}/{member_id}
// URL params into a profile path.
func memberPathFromRequest(r *http.Request) (profiles.Path, error) {
	outfitterID, err := uuid.Parse(chi.URLParam(r, "outfitter_id"))
	if err != nil {
		return profiles.Path{}, errors.New("invalid outfitter ID")
	}
	collection := chi.URLParam(r, "collection")
	if _, ok := identity.RoleForCollection(collection); !ok {
		return profiles.Path{}, errors.New("invalid member collection")
	}
	memberID, err := uuid.Parse(chi.URLParam(r, "member_id"))
	if err != nil {
		return profiles.Path{}, errors.New("invalid member ID")
	}
	return profiles.Path{OutfitterID: outfitterID, RoleCollection: collection, MemberID: memberID}, nil
}

// HandleListMembers handles GET /api/v1/outfitters/{outfitter_id}/members/{collection}
func HandleListMembers(wf *Workflow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		session := identity.SessionFromContext(ctx)

		outfitterID, err := uuid.Parse(chi.URLParam(r, "outfitter_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid outfitter ID")
			return
		}
		collection := chi.URLParam(r, "collection")
		role, ok := identity.RoleForCollection(collection)
		if !ok {
			apperrors.WriteBadRequest(w, r, "Invalid member collection")
			return
		}

		members, err := wf.ListMembers(ctx, session, outfitterID, role)
		if err != nil {
			writeWorkflowError(w, r, err, "Failed to list members")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"members": members,
		})
	}
}

// HandleGetMember handles GET /api/v1/outfitters/{outfitter_id}/members/{collection}/{member_id}
func HandleGetMember(wf *Workflow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		session := identity.SessionFromContext(ctx)

		path, err := memberPathFromRequest(r)
		if err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}

		stub, err := wf.Member(ctx, session, path)
		if err != nil {
			writeWorkflowError(w, r, err, "Failed to load member")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"member": stub,
		})
	}
}

// HandleUpdateMember handles PATCH /api/v1/outfitters/{outfitter_id}/members/{collection}/{member_id}
func HandleUpdateMember(wf *Workflow, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		session := identity.SessionFromContext(ctx)

		path, err := memberPathFromRequest(r)
		if err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}

		var req UpdateMemberRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		fields := profiles.Fields{
			DisplayName:     req.DisplayName,
			Phone:           req.Phone,
			Address:         req.Address,
			City:            req.City,
			State:           req.State,
			Country:         req.Country,
			LicenseNumber:   req.LicenseNumber,
			LicenseState:    req.LicenseState,
			ProfileImageURL: req.ProfileImageURL,
		}
		if req.LicenseValidDate != nil {
			t, err := time.Parse("2006-01-02", *req.LicenseValidDate)
			if err != nil {
				apperrors.WriteBadRequest(w, r, "Invalid license valid date, expected YYYY-MM-DD")
				return
			}
			fields.LicenseValidDate = &t
		}

		stub, err := wf.UpdateMember(ctx, session, path, fields)
		if err != nil {
			writeWorkflowError(w, r, err, "Failed to update member")
			return
		}

		if err := auditor.LogMemberUpdated(ctx, path.OutfitterID, session.AccountID, path.MemberID); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"member": stub,
		})
	}
}

// HandleDeactivateMember handles DELETE /api/v1/outfitters/{outfitter_id}/members/{collection}/{member_id}
func HandleDeactivateMember(wf *Workflow, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		session := identity.SessionFromContext(ctx)

		path, err := memberPathFromRequest(r)
		if err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}

		if err := wf.Deactivate(ctx, session, path); err != nil {
			writeWorkflowError(w, r, err, "Failed to deactivate member")
			return
		}

		if err := auditor.LogMemberDeactivated(ctx, path.OutfitterID, session.AccountID, path.MemberID); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"deactivated": true,
		})
	}
}

package huntlogs

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
	"github.com/wildcommand/wildcommand/internal/profiles"
)

type CreateHuntLogRequest struct {
	ClientName string `json:"client_name"`
	Outcome    string `json:"outcome"`
	Location   string `json:"location"`
}

// HandleCreate handles POST /api/v1/outfitters/{outfitter_id}/huntlogs.
// Only guides submit hunt logs; the log is attributed to the guide's
// profile stub within the outfitter.
func HandleCreate(store Store, profStore profiles.Store, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		session := identity.SessionFromContext(ctx)

		outfitterID, err := uuid.Parse(chi.URLParam(r, "outfitter_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid outfitter ID")
			return
		}
		if session.Claims.IsZero() || session.Claims.OutfitterID != outfitterID {
			apperrors.WriteForbidden(w, r, "No scope for this outfitter")
			return
		}
		if session.Claims.Role != identity.RoleGuide {
			apperrors.WriteForbidden(w, r, "Guide scope required")
			return
		}

		var req CreateHuntLogRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}
		if req.ClientName == "" {
			apperrors.WriteBadRequest(w, r, "Client name is required")
			return
		}
		if req.Outcome == "" {
			apperrors.WriteBadRequest(w, r, "Outcome is required")
			return
		}
		if req.Location == "" {
			apperrors.WriteBadRequest(w, r, "Location is required")
			return
		}

		stub, err := profStore.FindByIdentity(ctx, outfitterID, session.AccountID)
		if err != nil {
			if errors.Is(err, profiles.ErrStubNotFound) {
				apperrors.WriteForbidden(w, r, "No guide profile for this outfitter")
				return
			}
			log.Error().Err(err).Msg("Failed to resolve guide profile")
			apperrors.WriteInternalError(w, r, "Failed to record hunt log")
			return
		}

		huntLog := &HuntLog{
			ID:            uuid.New(),
			OutfitterID:   outfitterID,
			GuideMemberID: stub.MemberID,
			ClientName:    req.ClientName,
			Outcome:       req.Outcome,
			Location:      req.Location,
		}
		if err := store.Create(ctx, huntLog); err != nil {
			log.Error().Err(err).Msg("Failed to record hunt log")
			apperrors.WriteInternalError(w, r, "Failed to record hunt log")
			return
		}

		if err := auditor.LogHuntLogCreated(ctx, outfitterID, session.AccountID, huntLog.ID, huntLog.ClientName); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"hunt_log": huntLog,
		})
	}
}

// HandleList handles GET /api/v1/outfitters/{outfitter_id}/huntlogs.
// Administrators see every log; guides see only their own.
func HandleList(store Store, profStore profiles.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		session := identity.SessionFromContext(ctx)

		outfitterID, err := uuid.Parse(chi.URLParam(r, "outfitter_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid outfitter ID")
			return
		}
		if session.Claims.IsZero() || session.Claims.OutfitterID != outfitterID {
			apperrors.WriteForbidden(w, r, "No scope for this outfitter")
			return
		}

		var logs []HuntLog
		switch session.Claims.Role {
		case identity.RoleOutfitter:
			logs, err = store.ListByOutfitter(ctx, outfitterID)
		case identity.RoleGuide:
			var stub *profiles.Stub
			stub, err = profStore.FindByIdentity(ctx, outfitterID, session.AccountID)
			if errors.Is(err, profiles.ErrStubNotFound) {
				apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
					"hunt_logs": []HuntLog{},
				})
				return
			}
			if err == nil {
				logs, err = store.ListByGuide(ctx, outfitterID, stub.MemberID)
			}
		default:
			apperrors.WriteForbidden(w, r, "Guide or administrator scope required")
			return
		}
		if err != nil {
			log.Error().Err(err).Msg("Failed to list hunt logs")
			apperrors.WriteInternalError(w, r, "Failed to list hunt logs")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"hunt_logs": logs,
		})
	}
}

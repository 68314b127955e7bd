package outfitters

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/wildcommand/wildcommand/internal/apperrors"
	"github.com/wildcommand/wildcommand/internal/audit"
	"github.com/wildcommand/wildcommand/internal/identity"
)

// HandleListAudit handles GET /api/v1/outfitters/{outfitter_id}/audit
func HandleListAudit(reader *audit.Reader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		session := identity.SessionFromContext(ctx)

		outfitterID, err := uuid.Parse(chi.URLParam(r, "outfitter_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid outfitter ID")
			return
		}

		if !session.Claims.IsAdminFor(outfitterID) {
			apperrors.WriteForbidden(w, r, "Administrator scope required for this outfitter")
			return
		}

		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				apperrors.WriteBadRequest(w, r, "Invalid limit")
				return
			}
			limit = n
		}

		events, err := reader.ListByOutfitter(ctx, outfitterID, limit)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list audit events")
			apperrors.WriteInternalError(w, r, "Failed to list audit events")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"events": events,
		})
	}
}

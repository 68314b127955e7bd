package bookings

import (
	"context"
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

// resolveMemberPath locates the caller's own profile stub within the
// outfitter. Bookings key participants on the stub's member id, which can
// differ from the account id when a pre-created stub was reconciled by
// email, so the stub is the authority on which participant the caller is.
func resolveMemberPath(ctx context.Context, store profiles.Store, outfitterID uuid.UUID, session *identity.Session) (profiles.Path, error) {
	stub, err := store.FindByIdentity(ctx, outfitterID, session.AccountID)
	if err != nil {
		return profiles.Path{}, err
	}
	return stub.Path(), nil
}

type CreateBookingRequest struct {
	HuntType     string               `json:"hunt_type"`
	Location     string               `json:"location"`
	HuntDate     string               `json:"hunt_date"`
	StartTime    string               `json:"start_time"`
	Notes        string               `json:"notes"`
	Participants []ParticipantRequest `json:"participants"`
}

type ParticipantRequest struct {
	Collection string    `json:"collection"`
	MemberID   uuid.UUID `json:"member_id"`
}

// HandleCreate handles POST /api/v1/outfitters/{outfitter_id}/bookings
func HandleCreate(service *Service, auditor *audit.Writer) http.HandlerFunc {
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

		var req CreateBookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		if req.HuntType == "" {
			apperrors.WriteBadRequest(w, r, "Hunt type is required")
			return
		}
		if req.Location == "" {
			apperrors.WriteBadRequest(w, r, "Location is required")
			return
		}
		huntDate, err := time.Parse("2006-01-02", req.HuntDate)
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid hunt date, expected YYYY-MM-DD")
			return
		}

		participants := make([]Participant, 0, len(req.Participants))
		for _, p := range req.Participants {
			if _, ok := identity.RoleForCollection(p.Collection); !ok {
				apperrors.WriteBadRequest(w, r, "Invalid participant collection")
				return
			}
			participants = append(participants, Participant{
				RoleCollection: p.Collection,
				MemberID:       p.MemberID,
			})
		}

		booking, err := service.Create(ctx, CreateParams{
			OutfitterID:        outfitterID,
			HuntType:           req.HuntType,
			Location:           req.Location,
			HuntDate:           huntDate,
			StartTime:          req.StartTime,
			Notes:              req.Notes,
			CreatedByAccountID: session.AccountID,
			Participants:       participants,
		})
		if err != nil {
			if errors.Is(err, ErrUnknownParticipant) {
				apperrors.WriteBadRequest(w, r, "One or more participants are not members of this outfitter")
				return
			}
			log.Error().Err(err).Msg("Failed to create booking")
			apperrors.WriteInternalError(w, r, "Failed to create booking")
			return
		}

		if err := auditor.LogBookingCreated(ctx, outfitterID, session.AccountID, booking.ID, booking.HuntType); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"booking": booking,
		})
	}
}

// HandleList handles GET /api/v1/outfitters/{outfitter_id}/bookings.
// Administrators see every booking; guides and hunters see only theirs.
func HandleList(service *Service, store profiles.Store) http.HandlerFunc {
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

		var bookings []Booking
		if session.Claims.Role == identity.RoleOutfitter {
			bookings, err = service.ListByOutfitter(ctx, outfitterID)
		} else {
			var path profiles.Path
			path, err = resolveMemberPath(ctx, store, outfitterID, session)
			if errors.Is(err, profiles.ErrStubNotFound) {
				apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
					"bookings": []Booking{},
				})
				return
			}
			if err == nil {
				bookings, err = service.ListForMember(ctx, outfitterID, path.RoleCollection, path.MemberID)
			}
		}
		if err != nil {
			log.Error().Err(err).Msg("Failed to list bookings")
			apperrors.WriteInternalError(w, r, "Failed to list bookings")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"bookings": bookings,
		})
	}
}

// HandleGet handles GET /api/v1/outfitters/{outfitter_id}/bookings/{booking_id}
func HandleGet(service *Service, store profiles.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		session := identity.SessionFromContext(ctx)

		outfitterID, err := uuid.Parse(chi.URLParam(r, "outfitter_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid outfitter ID")
			return
		}
		bookingID, err := uuid.Parse(chi.URLParam(r, "booking_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid booking ID")
			return
		}
		if session.Claims.IsZero() || session.Claims.OutfitterID != outfitterID {
			apperrors.WriteForbidden(w, r, "No scope for this outfitter")
			return
		}

		booking, err := service.Get(ctx, outfitterID, bookingID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				apperrors.WriteNotFound(w, r, "Booking not found")
				return
			}
			log.Error().Err(err).Msg("Failed to load booking")
			apperrors.WriteInternalError(w, r, "Failed to load booking")
			return
		}

		// Non-admins may only see bookings they participate in.
		if session.Claims.Role != identity.RoleOutfitter {
			path, err := resolveMemberPath(ctx, store, outfitterID, session)
			if err != nil {
				if errors.Is(err, profiles.ErrStubNotFound) {
					apperrors.WriteNotFound(w, r, "Booking not found")
					return
				}
				log.Error().Err(err).Msg("Failed to resolve member profile")
				apperrors.WriteInternalError(w, r, "Failed to load booking")
				return
			}
			if !booking.HasParticipant(path.RoleCollection, path.MemberID) {
				apperrors.WriteNotFound(w, r, "Booking not found")
				return
			}
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"booking": booking,
		})
	}
}

// HandleCancel handles DELETE /api/v1/outfitters/{outfitter_id}/bookings/{booking_id}
func HandleCancel(service *Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		session := identity.SessionFromContext(ctx)

		outfitterID, err := uuid.Parse(chi.URLParam(r, "outfitter_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid outfitter ID")
			return
		}
		bookingID, err := uuid.Parse(chi.URLParam(r, "booking_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid booking ID")
			return
		}
		if !session.Claims.IsAdminFor(outfitterID) {
			apperrors.WriteForbidden(w, r, "Administrator scope required for this outfitter")
			return
		}

		booking, err := service.Cancel(ctx, outfitterID, bookingID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				apperrors.WriteNotFound(w, r, "Booking not found")
				return
			}
			if errors.Is(err, ErrCancelled) {
				apperrors.WriteConflict(w, r, "Booking is already cancelled")
				return
			}
			log.Error().Err(err).Msg("Failed to cancel booking")
			apperrors.WriteInternalError(w, r, "Failed to cancel booking")
			return
		}

		if err := auditor.LogBookingCancelled(ctx, outfitterID, session.AccountID, booking.ID); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"booking": booking,
		})
	}
}

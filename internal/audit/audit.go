package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const (
	EventOutfitterSignup        = "outfitter.signup"
	EventLoginFailed            = "auth.login_failed"
	EventMemberInvited          = "member.invited"
	EventInviteResent           = "member.invite_resent"
	EventLinkRedeemed           = "member.link_redeemed"
	EventReconciliationConflict = "member.reconciliation_conflict"
	EventSetupCompleted         = "member.setup_completed"
	EventMemberUpdated          = "member.updated"
	EventMemberDeactivated      = "member.deactivated"
	EventBookingCreated         = "booking.created"
	EventBookingCancelled       = "booking.cancelled"
	EventHuntLogCreated         = "huntlog.created"
)

// Event represents an audit log entry.
type Event struct {
	ID             int64                  `db:"id" json:"id"`
	OutfitterID    uuid.NullUUID          `db:"outfitter_id" json:"outfitter_id"`
	ActorAccountID uuid.NullUUID          `db:"actor_account_id" json:"actor_account_id"`
	Action         string                 `db:"action" json:"action"`
	Meta           map[string]interface{} `db:"meta" json:"meta"`
	CreatedAt      time.Time              `db:"created_at" json:"created_at"`
}

// Writer provides methods to write audit log entries.
type Writer struct {
	pool *pgxpool.Pool
}

func NewWriter(pool *pgxpool.Pool) *Writer {
	return &Writer{pool: pool}
}

// LogParams contains parameters for logging an audit event.
type LogParams struct {
	OutfitterID    *uuid.UUID
	ActorAccountID *uuid.UUID
	Action         string
	Meta           map[string]interface{}
}

func (w *Writer) Log(ctx context.Context, params LogParams) error {
	metaJSON := []byte("{}")
	if params.Meta != nil {
		b, err := json.Marshal(params.Meta)
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal audit meta")
			return err
		}
		metaJSON = b
	}

	query := `
		INSERT INTO audit_log (outfitter_id, actor_account_id, action, meta)
		VALUES ($1, $2, $3, $4)
	`

	_, err := w.pool.Exec(ctx, query,
		toNullUUID(params.OutfitterID), toNullUUID(params.ActorAccountID),
		params.Action, metaJSON)
	if err != nil {
		log.Error().Err(err).Str("action", params.Action).Msg("Failed to write audit log")
		return err
	}

	log.Info().
		Str("action", params.Action).
		Interface("outfitter_id", params.OutfitterID).
		Interface("actor_account_id", params.ActorAccountID).
		Msg("Audit event logged")

	return nil
}

func toNullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func (w *Writer) LogOutfitterSignup(ctx context.Context, outfitterID, accountID uuid.UUID, slug string) error {
	return w.Log(ctx, LogParams{
		OutfitterID:    &outfitterID,
		ActorAccountID: &accountID,
		Action:         EventOutfitterSignup,
		Meta: map[string]interface{}{
			"slug": slug,
		},
	})
}

func (w *Writer) LogLoginFailed(ctx context.Context, email, ip string) error {
	return w.Log(ctx, LogParams{
		Action: EventLoginFailed,
		Meta: map[string]interface{}{
			"email": email,
			"ip":    ip,
		},
	})
}

func (w *Writer) LogMemberInvited(ctx context.Context, outfitterID, actorAccountID, memberID uuid.UUID, email, role string) error {
	return w.Log(ctx, LogParams{
		OutfitterID:    &outfitterID,
		ActorAccountID: &actorAccountID,
		Action:         EventMemberInvited,
		Meta: map[string]interface{}{
			"member_id": memberID.String(),
			"email":     email,
			"role":      role,
		},
	})
}

func (w *Writer) LogInviteResent(ctx context.Context, outfitterID, actorAccountID, memberID uuid.UUID, email string) error {
	return w.Log(ctx, LogParams{
		OutfitterID:    &outfitterID,
		ActorAccountID: &actorAccountID,
		Action:         EventInviteResent,
		Meta: map[string]interface{}{
			"member_id": memberID.String(),
			"email":     email,
		},
	})
}

func (w *Writer) LogLinkRedeemed(ctx context.Context, outfitterID *uuid.UUID, accountID uuid.UUID, setupComplete bool) error {
	return w.Log(ctx, LogParams{
		OutfitterID:    outfitterID,
		ActorAccountID: &accountID,
		Action:         EventLinkRedeemed,
		Meta: map[string]interface{}{
			"setup_complete": setupComplete,
		},
	})
}

func (w *Writer) LogReconciliationConflict(ctx context.Context, accountID uuid.UUID, email string) error {
	return w.Log(ctx, LogParams{
		ActorAccountID: &accountID,
		Action:         EventReconciliationConflict,
		Meta: map[string]interface{}{
			"email": email,
		},
	})
}

func (w *Writer) LogSetupCompleted(ctx context.Context, outfitterID, accountID uuid.UUID) error {
	return w.Log(ctx, LogParams{
		OutfitterID:    &outfitterID,
		ActorAccountID: &accountID,
		Action:         EventSetupCompleted,
		Meta:           map[string]interface{}{},
	})
}

func (w *Writer) LogMemberUpdated(ctx context.Context, outfitterID, actorAccountID, memberID uuid.UUID) error {
	return w.Log(ctx, LogParams{
		OutfitterID:    &outfitterID,
		ActorAccountID: &actorAccountID,
		Action:         EventMemberUpdated,
		Meta: map[string]interface{}{
			"member_id": memberID.String(),
		},
	})
}

func (w *Writer) LogMemberDeactivated(ctx context.Context, outfitterID, actorAccountID, memberID uuid.UUID) error {
	return w.Log(ctx, LogParams{
		OutfitterID:    &outfitterID,
		ActorAccountID: &actorAccountID,
		Action:         EventMemberDeactivated,
		Meta: map[string]interface{}{
			"member_id": memberID.String(),
		},
	})
}

func (w *Writer) LogBookingCreated(ctx context.Context, outfitterID, actorAccountID, bookingID uuid.UUID, huntType string) error {
	return w.Log(ctx, LogParams{
		OutfitterID:    &outfitterID,
		ActorAccountID: &actorAccountID,
		Action:         EventBookingCreated,
		Meta: map[string]interface{}{
			"booking_id": bookingID.String(),
			"hunt_type":  huntType,
		},
	})
}

func (w *Writer) LogBookingCancelled(ctx context.Context, outfitterID, actorAccountID, bookingID uuid.UUID) error {
	return w.Log(ctx, LogParams{
		OutfitterID:    &outfitterID,
		ActorAccountID: &actorAccountID,
		Action:         EventBookingCancelled,
		Meta: map[string]interface{}{
			"booking_id": bookingID.String(),
		},
	})
}

func (w *Writer) LogHuntLogCreated(ctx context.Context, outfitterID, actorAccountID, huntLogID uuid.UUID, clientName string) error {
	return w.Log(ctx, LogParams{
		OutfitterID:    &outfitterID,
		ActorAccountID: &actorAccountID,
		Action:         EventHuntLogCreated,
		Meta: map[string]interface{}{
			"hunt_log_id": huntLogID.String(),
			"client_name": clientName,
		},
	})
}

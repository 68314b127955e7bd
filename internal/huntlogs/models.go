package huntlogs

import (
	"time"

	"github.com/google/uuid"
)

// HuntLog is a guide's field report for a completed hunt.
type HuntLog struct {
	ID            uuid.UUID `db:"id" json:"id"`
	OutfitterID   uuid.UUID `db:"outfitter_id" json:"outfitter_id"`
	GuideMemberID uuid.UUID `db:"guide_member_id" json:"guide_member_id"`
	ClientName    string    `db:"client_name" json:"client_name"`
	Outcome       string    `db:"outcome" json:"outcome"`
	Location      string    `db:"location" json:"location"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

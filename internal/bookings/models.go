package bookings

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound indicates the booking does not exist.
	ErrNotFound = errors.New("booking not found")

	// ErrCancelled indicates the booking was already cancelled.
	ErrCancelled = errors.New("booking is cancelled")

	// ErrUnknownParticipant indicates a participant is not a member of the
	// outfitter.
	ErrUnknownParticipant = errors.New("participant is not a member of this outfitter")
)

// Booking is a scheduled hunt for an outfitter.
type Booking struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	OutfitterID        uuid.UUID  `db:"outfitter_id" json:"outfitter_id"`
	HuntType           string     `db:"hunt_type" json:"hunt_type"`
	Location           string     `db:"location" json:"location"`
	HuntDate           time.Time  `db:"hunt_date" json:"hunt_date"`
	StartTime          string     `db:"start_time" json:"start_time"`
	Notes              string     `db:"notes" json:"notes"`
	CreatedByAccountID uuid.UUID  `db:"created_by_account_id" json:"created_by_account_id"`
	CancelledAt        *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`

	Participants []Participant `json:"participants,omitempty"`
}

// HasParticipant reports whether the member at (roleCollection, memberID) is
// attached to the booking.
func (b *Booking) HasParticipant(roleCollection string, memberID uuid.UUID) bool {
	for _, p := range b.Participants {
		if p.RoleCollection == roleCollection && p.MemberID == memberID {
			return true
		}
	}
	return false
}

// Participant identifies a member attached to a booking.
type Participant struct {
	RoleCollection string    `db:"role_collection" json:"role_collection"`
	MemberID       uuid.UUID `db:"member_id" json:"member_id"`
	DisplayName    string    `json:"display_name,omitempty"`
	Email          string    `json:"email,omitempty"`
}

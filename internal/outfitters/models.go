package outfitters

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when an outfitter is not found
	ErrNotFound = errors.New("outfitter not found")

	// ErrSlugConflict is returned when an outfitter slug already exists
	ErrSlugConflict = errors.New("outfitter slug already exists")

	// ErrEmailTaken is returned when a signup email is already registered
	ErrEmailTaken = errors.New("email address already registered")
)

// Outfitter is an organization: the scope every member, invitation, and
// booking lives under.
type Outfitter struct {
	ID                 uuid.UUID `db:"id" json:"id"`
	Name               string    `db:"name" json:"name"`
	Slug               string    `db:"slug" json:"slug"`
	CreatedByAccountID uuid.UUID `db:"created_by_account_id" json:"created_by_account_id"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

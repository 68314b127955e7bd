package profiles

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrStubNotFound is returned when no profile stub exists at a path
	ErrStubNotFound = errors.New("profile stub not found")

	// ErrStubExists is returned when a stub already occupies a (outfitter, collection, email) slot
	ErrStubExists = errors.New("profile stub already exists for this email")

	// ErrIdentityConflict is returned when a stub's identity back-reference is
	// already set to a different account. The back-reference is write-once.
	ErrIdentityConflict = errors.New("profile stub is linked to a different identity")
)

// Path addresses a profile stub: outfitter scope, role collection, member id.
type Path struct {
	OutfitterID    uuid.UUID
	RoleCollection string
	MemberID       uuid.UUID
}

func (p Path) String() string {
	return fmt.Sprintf("%s/%s/%s", p.OutfitterID, p.RoleCollection, p.MemberID)
}

// Stub is a member's outfitter-scoped profile record. IdentityID is the
// back-reference to the member's account; once set it never changes.
type Stub struct {
	OutfitterID      uuid.UUID  `db:"outfitter_id" json:"outfitter_id"`
	RoleCollection   string     `db:"role_collection" json:"role_collection"`
	MemberID         uuid.UUID  `db:"member_id" json:"member_id"`
	DisplayName      string     `db:"display_name" json:"display_name"`
	Email            string     `db:"email" json:"email"`
	Phone            string     `db:"phone" json:"phone"`
	Address          string     `db:"address" json:"address"`
	City             string     `db:"city" json:"city"`
	State            string     `db:"state" json:"state"`
	Country          string     `db:"country" json:"country"`
	LicenseNumber    string     `db:"license_number" json:"license_number"`
	LicenseState     string     `db:"license_state" json:"license_state"`
	LicenseValidDate *time.Time `db:"license_valid_date" json:"license_valid_date,omitempty"`
	ProfileImageURL  string     `db:"profile_image_url" json:"profile_image_url"`
	IdentityID       *uuid.UUID `db:"identity_id" json:"identity_id,omitempty"`
	SetupComplete    bool       `db:"setup_complete" json:"setup_complete"`
	Active           bool       `db:"active" json:"active"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// Path returns the stub's profile-store path.
func (s *Stub) Path() Path {
	return Path{OutfitterID: s.OutfitterID, RoleCollection: s.RoleCollection, MemberID: s.MemberID}
}

// Fields are the mutable profile fields. Nil pointers are left untouched on
// merge writes.
type Fields struct {
	DisplayName      *string
	Phone            *string
	Address          *string
	City             *string
	State            *string
	Country          *string
	LicenseNumber    *string
	LicenseState     *string
	LicenseValidDate *time.Time
	ProfileImageURL  *string
}

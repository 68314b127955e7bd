package identity

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrAccountNotFound is returned when no account exists for a lookup
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountDisabled is returned when the account has been deactivated
	ErrAccountDisabled = errors.New("account is disabled")

	// ErrInvalidCredentials is returned on a failed password check
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrLinkNotFound is returned when a sign-in link token does not resolve
	ErrLinkNotFound = errors.New("sign-in link not found")

	// ErrLinkExpired is returned when a sign-in link is past its validity window
	ErrLinkExpired = errors.New("sign-in link expired")

	// ErrLinkAlreadyUsed is returned when a sign-in link was redeemed by a different account
	ErrLinkAlreadyUsed = errors.New("sign-in link already used")

	// ErrLinkEmailMismatch is returned when the presented email does not match the link
	ErrLinkEmailMismatch = errors.New("sign-in link email does not match")

	// ErrStaleClaims is returned when a session's claims snapshot is behind the
	// account's current claims. Transient: retry with a forced refresh.
	ErrStaleClaims = errors.New("session claims are stale")
)

// Role is a member's role within an outfitter.
type Role string

const (
	RoleOutfitter Role = "outfitter"
	RoleGuide     Role = "guide"
	RoleHunter    Role = "hunter"
)

// IsValid reports whether the role is one of the known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleOutfitter, RoleGuide, RoleHunter:
		return true
	}
	return false
}

// Collection returns the profile-store collection name for the role.
// Outfitter administrators have no member collection.
func (r Role) Collection() string {
	switch r {
	case RoleGuide:
		return "guides"
	case RoleHunter:
		return "hunters"
	}
	return ""
}

// RoleForCollection maps a profile-store collection name back to a role.
func RoleForCollection(collection string) (Role, bool) {
	switch collection {
	case "guides":
		return RoleGuide, true
	case "hunters":
		return RoleHunter, true
	}
	return "", false
}

// Claims is the role/scope metadata attached to an account. Version increases
// every time the claims change; sessions carry the version they were issued
// with, which is how stale snapshots are detected.
type Claims struct {
	Role        Role      `json:"role"`
	OutfitterID uuid.UUID `json:"outfitter_id"`
	Version     int       `json:"claims_version"`
}

// IsZero reports whether no claims have ever been attached.
func (c Claims) IsZero() bool {
	return c.Role == "" && c.OutfitterID == uuid.Nil
}

// IsAdminFor reports whether the claims grant administrator scope for the
// given outfitter.
func (c Claims) IsAdminFor(outfitterID uuid.UUID) bool {
	return c.Role == RoleOutfitter && c.OutfitterID == outfitterID
}

// Session is an authenticated caller. Workflow operations take a Session
// explicitly; there is no ambient current-user state.
type Session struct {
	AccountID uuid.UUID
	Email     string
	Claims    Claims
}

// Account is an identity known to the provider.
type Account struct {
	ID            uuid.UUID `db:"id"`
	Email         string    `db:"email"`
	Role          Role      `db:"role"`
	OutfitterID   uuid.UUID `db:"outfitter_id"`
	ClaimsVersion int       `db:"claims_version"`
	Disabled      bool      `db:"disabled"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// Claims returns the account's current claims.
func (a *Account) CurrentClaims() Claims {
	return Claims{Role: a.Role, OutfitterID: a.OutfitterID, Version: a.ClaimsVersion}
}

// LinkDestination is the return destination encoded into a one-time sign-in
// link: the outfitter scope and the profile stub the link should resolve to.
type LinkDestination struct {
	OutfitterID    uuid.UUID
	RoleCollection string
	MemberID       uuid.UUID
}

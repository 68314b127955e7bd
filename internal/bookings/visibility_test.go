package bookings

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/wildcommand/wildcommand/internal/identity"
	"github.com/wildcommand/wildcommand/internal/profiles"
)

// stubDirectory is an in-memory profiles.Store that only serves identity
// lookups. Bookings key participants on stub member ids, so handlers must
// resolve the caller through it rather than trusting the account id.
type stubDirectory struct {
	stubs []*profiles.Stub
}

func (d *stubDirectory) FindByIdentity(ctx context.Context, outfitterID, identityID uuid.UUID) (*profiles.Stub, error) {
	for _, s := range d.stubs {
		if s.OutfitterID == outfitterID && s.IdentityID != nil && *s.IdentityID == identityID {
			return s, nil
		}
	}
	return nil, profiles.ErrStubNotFound
}

func (d *stubDirectory) Create(ctx context.Context, stub *profiles.Stub) error { return nil }
func (d *stubDirectory) Read(ctx context.Context, path profiles.Path) (*profiles.Stub, error) {
	return nil, profiles.ErrStubNotFound
}
func (d *stubDirectory) Merge(ctx context.Context, path profiles.Path, fields profiles.Fields) error {
	return nil
}
func (d *stubDirectory) FindByEmail(ctx context.Context, outfitterID uuid.UUID, roleCollection, email string) (*profiles.Stub, error) {
	return nil, profiles.ErrStubNotFound
}
func (d *stubDirectory) SetIdentity(ctx context.Context, path profiles.Path, identityID uuid.UUID) error {
	return nil
}
func (d *stubDirectory) SetSetupComplete(ctx context.Context, path profiles.Path) error { return nil }
func (d *stubDirectory) SetActive(ctx context.Context, path profiles.Path, active bool) error {
	return nil
}
func (d *stubDirectory) ListByCollection(ctx context.Context, outfitterID uuid.UUID, roleCollection string) ([]profiles.Stub, error) {
	return nil, nil
}

func TestResolveMemberPath_UsesStubMemberIDNotAccountID(t *testing.T) {
	ctx := context.Background()
	outfitterID := uuid.New()

	// A stub pre-created before the member ever signed in. Email-based
	// reconciliation attached the account to it without rewriting the
	// member id, so the two ids differ.
	accountID := uuid.New()
	legacyMemberID := uuid.New()
	require.NotEqual(t, accountID, legacyMemberID)

	dir := &stubDirectory{stubs: []*profiles.Stub{{
		OutfitterID:    outfitterID,
		RoleCollection: "hunters",
		MemberID:       legacyMemberID,
		Email:          "hunter@example.com",
		IdentityID:     &accountID,
	}}}

	session := &identity.Session{
		AccountID: accountID,
		Claims:    identity.Claims{Role: identity.RoleHunter, OutfitterID: outfitterID},
	}

	path, err := resolveMemberPath(ctx, dir, outfitterID, session)
	require.NoError(t, err)
	require.Equal(t, legacyMemberID, path.MemberID)
	require.Equal(t, "hunters", path.RoleCollection)

	booking := &Booking{
		ID:          uuid.New(),
		OutfitterID: outfitterID,
		Participants: []Participant{
			{RoleCollection: "hunters", MemberID: legacyMemberID},
		},
	}

	// The stub's member id matches the participant row; the account id
	// alone matches nothing.
	require.True(t, booking.HasParticipant(path.RoleCollection, path.MemberID))
	require.False(t, booking.HasParticipant("hunters", session.AccountID))
}

func TestResolveMemberPath_NoStubInOutfitter(t *testing.T) {
	ctx := context.Background()
	dir := &stubDirectory{}

	session := &identity.Session{
		AccountID: uuid.New(),
		Claims:    identity.Claims{Role: identity.RoleGuide, OutfitterID: uuid.New()},
	}

	_, err := resolveMemberPath(ctx, dir, session.Claims.OutfitterID, session)
	require.ErrorIs(t, err, profiles.ErrStubNotFound)
}

func TestHasParticipant_MatchesCollectionAndMember(t *testing.T) {
	memberID := uuid.New()
	booking := &Booking{Participants: []Participant{
		{RoleCollection: "guides", MemberID: memberID},
	}}

	require.True(t, booking.HasParticipant("guides", memberID))
	require.False(t, booking.HasParticipant("hunters", memberID))
	require.False(t, booking.HasParticipant("guides", uuid.New()))
}

package invites

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/wildcommand/wildcommand/internal/identity"
	"github.com/wildcommand/wildcommand/internal/profiles"
)

type workflowFixture struct {
	provider  *fakeProvider
	store     *fakeStore
	sender    *fakeSender
	workflow  *Workflow
	outfitter uuid.UUID
	admin     *identity.Session
}

func newWorkflowFixture(t *testing.T) *workflowFixture {
	t.Helper()
	ctx := context.Background()

	provider := newFakeProvider()
	store := newFakeStore()
	sender := &fakeSender{}
	outfitterID := uuid.New()

	adminID, err := provider.CreateAccount(ctx, "admin@bigskyoutfitters.com")
	require.NoError(t, err)
	require.NoError(t, provider.AttachClaims(ctx, adminID, identity.RoleOutfitter, outfitterID))
	admin, err := provider.AccountByEmail(ctx, "admin@bigskyoutfitters.com")
	require.NoError(t, err)

	workflow := NewWorkflow(provider, store, sender, &fakeDirectory{name: "Big Sky Outfitters"}, "https://app.example.com")

	return &workflowFixture{
		provider:  provider,
		store:     store,
		sender:    sender,
		workflow:  workflow,
		outfitter: outfitterID,
		admin: &identity.Session{
			AccountID: admin.ID,
			Email:     admin.Email,
			Claims:    admin.CurrentClaims(),
		},
	}
}

func (f *workflowFixture) invite(t *testing.T, role identity.Role, email, name string) *profiles.Stub {
	t.Helper()
	stub, err := f.workflow.Issue(context.Background(), f.admin, IssueRequest{
		OutfitterID: f.outfitter,
		Role:        role,
		Email:       email,
		DisplayName: name,
	})
	require.NoError(t, err)
	return stub
}

func TestIssue_CreatesIdentityClaimsStubAndLink(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	stub := f.invite(t, identity.RoleHunter, "Jane.Hunter@Example.com ", "Jane Hunter")

	require.Equal(t, f.outfitter, stub.OutfitterID)
	require.Equal(t, "hunters", stub.RoleCollection)
	require.Equal(t, "jane.hunter@example.com", stub.Email)
	require.Equal(t, "Jane Hunter", stub.DisplayName)
	require.False(t, stub.SetupComplete)
	require.True(t, stub.Active)
	require.Nil(t, stub.IdentityID)

	// Identity exists with member claims before redemption.
	account, err := f.provider.AccountByEmail(ctx, "jane.hunter@example.com")
	require.NoError(t, err)
	require.Equal(t, account.ID, stub.MemberID)
	require.Equal(t, identity.RoleHunter, account.Role)
	require.Equal(t, f.outfitter, account.OutfitterID)

	// One welcome email carrying the one-time link.
	require.Equal(t, 1, f.sender.count())
	require.Equal(t, "jane.hunter@example.com", f.sender.sent[0].to)
	token := f.provider.openTokenFor("jane.hunter@example.com")
	require.NotEmpty(t, token)
	require.Contains(t, f.sender.sent[0].body, token)
}

func TestIssue_PendingInviteIsIdempotent(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	first := f.invite(t, identity.RoleHunter, "jane@example.com", "Jane")

	again, err := f.workflow.Issue(ctx, f.admin, IssueRequest{
		OutfitterID: f.outfitter,
		Role:        identity.RoleHunter,
		Email:       "jane@example.com",
	})
	require.ErrorIs(t, err, ErrAlreadyInvited)
	require.Equal(t, first.MemberID, again.MemberID)

	// No duplicate stub, no second email.
	members, err := f.store.ListByCollection(ctx, f.outfitter, "hunters")
	require.NoError(t, err)
	require.Len(t, members, 1)
	require.Equal(t, 1, f.sender.count())
}

func TestIssue_AlreadyActiveMember(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	stub := f.invite(t, identity.RoleGuide, "guide@example.com", "Gus")
	require.NoError(t, f.store.SetSetupComplete(ctx, stub.Path()))

	_, err := f.workflow.Issue(ctx, f.admin, IssueRequest{
		OutfitterID: f.outfitter,
		Role:        identity.RoleGuide,
		Email:       "guide@example.com",
	})
	require.ErrorIs(t, err, ErrAlreadyActive)
}

func TestIssue_RejectsOutfitterRole(t *testing.T) {
	f := newWorkflowFixture(t)

	_, err := f.workflow.Issue(context.Background(), f.admin, IssueRequest{
		OutfitterID: f.outfitter,
		Role:        identity.RoleOutfitter,
		Email:       "second-admin@example.com",
	})
	require.ErrorIs(t, err, ErrInvalidRole)
}

func TestIssue_DeniesForeignOutfitter(t *testing.T) {
	f := newWorkflowFixture(t)

	_, err := f.workflow.Issue(context.Background(), f.admin, IssueRequest{
		OutfitterID: uuid.New(),
		Role:        identity.RoleHunter,
		Email:       "jane@example.com",
	})
	require.ErrorIs(t, err, ErrUnauthorized)
	require.Equal(t, 0, f.sender.count())
}

func TestIssue_StaleSessionClaimsRefreshOnce(t *testing.T) {
	f := newWorkflowFixture(t)

	// Session issued before the admin claims were attached; the snapshot is
	// empty but the provider knows better.
	stale := &identity.Session{
		AccountID: f.admin.AccountID,
		Email:     f.admin.Email,
	}

	stub, err := f.workflow.Issue(context.Background(), stale, IssueRequest{
		OutfitterID: f.outfitter,
		Role:        identity.RoleHunter,
		Email:       "jane@example.com",
	})
	require.NoError(t, err)
	require.NotNil(t, stub)
	require.True(t, stale.Claims.IsAdminFor(f.outfitter))
}

func TestIssue_NotifyFailureReportsStep(t *testing.T) {
	f := newWorkflowFixture(t)
	f.sender.fail = errors.New("relay down")

	stub, err := f.workflow.Issue(context.Background(), f.admin, IssueRequest{
		OutfitterID: f.outfitter,
		Role:        identity.RoleHunter,
		Email:       "jane@example.com",
	})
	require.Error(t, err)
	step, ok := FailedStep(err)
	require.True(t, ok)
	require.Equal(t, StepNotify, step)

	// Everything before notification committed: stub and link exist, so a
	// resend recovers without re-creating anything.
	require.NotNil(t, stub)
	_, readErr := f.store.Read(context.Background(), stub.Path())
	require.NoError(t, readErr)
	require.NotEmpty(t, f.provider.openTokenFor("jane@example.com"))
}

func TestResend_ReplacesOpenLink(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	f.invite(t, identity.RoleHunter, "jane@example.com", "Jane")
	firstToken := f.provider.openTokenFor("jane@example.com")

	stub, err := f.workflow.Resend(ctx, f.admin, f.outfitter, identity.RoleHunter, "jane@example.com")
	require.NoError(t, err)
	require.Equal(t, "jane@example.com", stub.Email)

	secondToken := f.provider.openTokenFor("jane@example.com")
	require.NotEqual(t, firstToken, secondToken)
	require.Equal(t, 2, f.sender.count())

	// The first link was revoked by the re-issue.
	_, _, err = f.provider.RedeemLink(ctx, firstToken, "jane@example.com")
	require.ErrorIs(t, err, identity.ErrLinkNotFound)

	// Still exactly one stub.
	members, err := f.store.ListByCollection(ctx, f.outfitter, "hunters")
	require.NoError(t, err)
	require.Len(t, members, 1)
}

func TestResend_NotInvited(t *testing.T) {
	f := newWorkflowFixture(t)

	_, err := f.workflow.Resend(context.Background(), f.admin, f.outfitter, identity.RoleHunter, "stranger@example.com")
	require.ErrorIs(t, err, ErrNotInvited)
}

func TestResend_AlreadyActive(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	stub := f.invite(t, identity.RoleHunter, "jane@example.com", "Jane")
	require.NoError(t, f.store.SetSetupComplete(ctx, stub.Path()))

	_, err := f.workflow.Resend(ctx, f.admin, f.outfitter, identity.RoleHunter, "jane@example.com")
	require.ErrorIs(t, err, ErrAlreadyActive)
}

func TestRedeem_ReconcilesStubAndPropagatesClaims(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	stub := f.invite(t, identity.RoleHunter, "jane@example.com", "Jane")
	token := f.provider.openTokenFor("jane@example.com")

	result, err := f.workflow.Redeem(ctx, token, "jane@example.com")
	require.NoError(t, err)
	require.True(t, result.NeedsProfile)
	require.False(t, result.SetupComplete)
	require.False(t, result.ReconciliationConflict)
	require.NotNil(t, result.MemberPath)
	require.Equal(t, stub.Path(), *result.MemberPath)

	// Write-once back-reference now points at the account.
	linked, err := f.store.Read(ctx, stub.Path())
	require.NoError(t, err)
	require.NotNil(t, linked.IdentityID)
	require.Equal(t, result.Session.AccountID, *linked.IdentityID)

	// The session carries confirmed hunter claims for the outfitter.
	require.Equal(t, identity.RoleHunter, result.Session.Claims.Role)
	require.Equal(t, f.outfitter, result.Session.Claims.OutfitterID)
}

func TestRedeem_SecondRedemptionByHolderIsNoOp(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	stub := f.invite(t, identity.RoleHunter, "jane@example.com", "Jane")
	token := f.provider.openTokenFor("jane@example.com")

	first, err := f.workflow.Redeem(ctx, token, "jane@example.com")
	require.NoError(t, err)

	// Double click or second device: same token, same member, same outcome.
	second, err := f.workflow.Redeem(ctx, token, "jane@example.com")
	require.NoError(t, err)
	require.Equal(t, first.Session.AccountID, second.Session.AccountID)
	require.Equal(t, *first.MemberPath, *second.MemberPath)

	linked, err := f.store.Read(ctx, stub.Path())
	require.NoError(t, err)
	require.Equal(t, first.Session.AccountID, *linked.IdentityID)
}

func TestRedeem_EmailMismatch(t *testing.T) {
	f := newWorkflowFixture(t)

	f.invite(t, identity.RoleHunter, "jane@example.com", "Jane")
	token := f.provider.openTokenFor("jane@example.com")

	_, err := f.workflow.Redeem(context.Background(), token, "mallory@example.com")
	require.ErrorIs(t, err, identity.ErrLinkEmailMismatch)
}

func TestRedeem_ExpiredLink(t *testing.T) {
	f := newWorkflowFixture(t)

	f.invite(t, identity.RoleHunter, "jane@example.com", "Jane")
	token := f.provider.openTokenFor("jane@example.com")
	f.provider.expireLinks()

	_, err := f.workflow.Redeem(context.Background(), token, "jane@example.com")
	require.ErrorIs(t, err, identity.ErrLinkExpired)
}

func TestRedeem_UnknownToken(t *testing.T) {
	f := newWorkflowFixture(t)

	_, err := f.workflow.Redeem(context.Background(), "wcl_does-not-exist", "jane@example.com")
	require.ErrorIs(t, err, identity.ErrLinkNotFound)
}

func TestRedeem_ConflictingBackReference(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	stub := f.invite(t, identity.RoleHunter, "jane@example.com", "Jane")
	token := f.provider.openTokenFor("jane@example.com")

	// Someone else already claimed the stub.
	require.NoError(t, f.store.SetIdentity(ctx, stub.Path(), uuid.New()))

	result, err := f.workflow.Redeem(ctx, token, "jane@example.com")
	require.NoError(t, err)
	require.True(t, result.ReconciliationConflict)
	require.True(t, result.NeedsProfile)
	require.Nil(t, result.MemberPath)

	// The stub keeps its original back-reference; first write won.
	after, err := f.store.Read(ctx, stub.Path())
	require.NoError(t, err)
	require.NotEqual(t, result.Session.AccountID, *after.IdentityID)
}

func TestRedeem_ConcurrentClaimsSerializeOnBackReference(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	stub := f.invite(t, identity.RoleHunter, "jane@example.com", "Jane")
	janeToken := f.provider.openTokenFor("jane@example.com")

	// A second link pointing at the same stub, issued to a different
	// email. Both redemptions race to write the back-reference.
	johnToken, err := f.provider.IssueLoginLink(ctx, "john@example.com", identity.LinkDestination{
		OutfitterID:    stub.OutfitterID,
		RoleCollection: stub.RoleCollection,
		MemberID:       stub.MemberID,
	})
	require.NoError(t, err)

	results := make([]*RedeemResult, 2)
	errs := make([]error, 2)

	var wg sync.WaitGroup
	wg.Add(2)
	redeem := func(i int, token, email string) {
		defer wg.Done()
		results[i], errs[i] = f.workflow.Redeem(ctx, token, email)
	}
	go redeem(0, janeToken, "jane@example.com")
	go redeem(1, johnToken, "john@example.com")
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	// Exactly one redemption reconciles; the other reports a conflict and
	// gets no scope.
	winners := 0
	var winner *RedeemResult
	for _, res := range results {
		if res.ReconciliationConflict {
			require.True(t, res.NeedsProfile)
			require.Nil(t, res.MemberPath)
		} else {
			winners++
			winner = res
			require.NotNil(t, res.MemberPath)
		}
	}
	require.Equal(t, 1, winners)

	after, err := f.store.Read(ctx, stub.Path())
	require.NoError(t, err)
	require.NotNil(t, after.IdentityID)
	require.Equal(t, winner.Session.AccountID, *after.IdentityID)
}

func TestRedeem_MissingStubFallsBackToProfileCreation(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	// A link that points nowhere: the stub was never written (partial
	// failure) or was removed out of band.
	accountID, err := f.provider.CreateAccount(ctx, "jane@example.com")
	require.NoError(t, err)
	token, err := f.provider.IssueLoginLink(ctx, "jane@example.com", identity.LinkDestination{
		OutfitterID:    f.outfitter,
		RoleCollection: "hunters",
		MemberID:       accountID,
	})
	require.NoError(t, err)

	result, err := f.workflow.Redeem(ctx, token, "jane@example.com")
	require.NoError(t, err)
	require.True(t, result.NeedsProfile)
	require.Nil(t, result.MemberPath)
	require.False(t, result.ReconciliationConflict)
}

func TestRedeem_ResolvesStubByEmailWhenIDMisses(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	// Stub keyed by a legacy member id that does not match the link's.
	legacyID := uuid.New()
	stub := &profiles.Stub{
		OutfitterID:    f.outfitter,
		RoleCollection: "hunters",
		MemberID:       legacyID,
		Email:          "jane@example.com",
		Active:         true,
	}
	require.NoError(t, f.store.Create(ctx, stub))

	accountID, err := f.provider.CreateAccount(ctx, "jane@example.com")
	require.NoError(t, err)
	token, err := f.provider.IssueLoginLink(ctx, "jane@example.com", identity.LinkDestination{
		OutfitterID:    f.outfitter,
		RoleCollection: "hunters",
		MemberID:       accountID,
	})
	require.NoError(t, err)

	result, err := f.workflow.Redeem(ctx, token, "jane@example.com")
	require.NoError(t, err)
	require.NotNil(t, result.MemberPath)
	require.Equal(t, legacyID, result.MemberPath.MemberID)

	linked, err := f.store.Read(ctx, stub.Path())
	require.NoError(t, err)
	require.Equal(t, result.Session.AccountID, *linked.IdentityID)
}

func TestComplete_MergesFieldsSetsPasswordAndFlipsSetup(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	f.invite(t, identity.RoleHunter, "jane@example.com", "Jane")
	token := f.provider.openTokenFor("jane@example.com")
	result, err := f.workflow.Redeem(ctx, token, "jane@example.com")
	require.NoError(t, err)

	licenseDate := time.Date(2027, 3, 31, 0, 0, 0, 0, time.UTC)
	updated, err := f.workflow.Complete(ctx, result.Session, CompleteRequest{
		DisplayName:      "Jane Hunter",
		Phone:            "406-555-0147",
		City:             "Bozeman",
		State:            "MT",
		Country:          "USA",
		LicenseNumber:    "MT-2027-00123",
		LicenseState:     "MT",
		LicenseValidDate: &licenseDate,
		Password:         "correct horse battery",
	})
	require.NoError(t, err)
	require.True(t, updated.SetupComplete)
	require.Equal(t, "Jane Hunter", updated.DisplayName)
	require.Equal(t, "MT-2027-00123", updated.LicenseNumber)
	require.NotNil(t, updated.LicenseValidDate)

	// The password works for future logins.
	session, err := f.provider.Authenticate(ctx, "jane@example.com", "correct horse battery")
	require.NoError(t, err)
	require.Equal(t, result.Session.AccountID, session.AccountID)
}

func TestComplete_ResubmissionOverwritesWithoutDuplicating(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	f.invite(t, identity.RoleHunter, "jane@example.com", "Jane")
	token := f.provider.openTokenFor("jane@example.com")
	result, err := f.workflow.Redeem(ctx, token, "jane@example.com")
	require.NoError(t, err)

	_, err = f.workflow.Complete(ctx, result.Session, CompleteRequest{Phone: "406-555-0147"})
	require.NoError(t, err)

	updated, err := f.workflow.Complete(ctx, result.Session, CompleteRequest{Phone: "406-555-0199"})
	require.NoError(t, err)
	require.Equal(t, "406-555-0199", updated.Phone)
	require.True(t, updated.SetupComplete)

	members, err := f.store.ListByCollection(ctx, f.outfitter, "hunters")
	require.NoError(t, err)
	require.Len(t, members, 1)
}

func TestComplete_WithoutScope(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	accountID, err := f.provider.CreateAccount(ctx, "nobody@example.com")
	require.NoError(t, err)
	session := &identity.Session{AccountID: accountID, Email: "nobody@example.com"}

	_, err = f.workflow.Complete(ctx, session, CompleteRequest{DisplayName: "Nobody"})
	require.ErrorIs(t, err, ErrNoProfile)
}

func TestComplete_CreatesStubAfterFallbackRedemption(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	// Redemption found no stub but still granted hunter scope via the
	// account's attached claims.
	accountID, err := f.provider.CreateAccount(ctx, "jane@example.com")
	require.NoError(t, err)
	require.NoError(t, f.provider.AttachClaims(ctx, accountID, identity.RoleHunter, f.outfitter))
	account, err := f.provider.AccountByEmail(ctx, "jane@example.com")
	require.NoError(t, err)
	session := &identity.Session{AccountID: account.ID, Email: account.Email, Claims: account.CurrentClaims()}

	updated, err := f.workflow.Complete(ctx, session, CompleteRequest{DisplayName: "Jane Hunter"})
	require.NoError(t, err)
	require.True(t, updated.SetupComplete)
	require.Equal(t, accountID, updated.MemberID)
	require.NotNil(t, updated.IdentityID)
	require.Equal(t, accountID, *updated.IdentityID)
}

func TestDeactivate_MarksInactiveAndDisablesAccount(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	stub := f.invite(t, identity.RoleGuide, "gus@example.com", "Gus")
	token := f.provider.openTokenFor("gus@example.com")
	result, err := f.workflow.Redeem(ctx, token, "gus@example.com")
	require.NoError(t, err)
	_, err = f.workflow.Complete(ctx, result.Session, CompleteRequest{Password: "gus-password-1"})
	require.NoError(t, err)

	require.NoError(t, f.workflow.Deactivate(ctx, f.admin, stub.Path()))

	// Stub survives, marked inactive.
	after, err := f.store.Read(ctx, stub.Path())
	require.NoError(t, err)
	require.False(t, after.Active)

	// The account no longer authenticates.
	_, err = f.provider.Authenticate(ctx, "gus@example.com", "gus-password-1")
	require.ErrorIs(t, err, identity.ErrAccountDisabled)
}

func TestListMembers_RequiresAdminScope(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	f.invite(t, identity.RoleHunter, "jane@example.com", "Jane")

	members, err := f.workflow.ListMembers(ctx, f.admin, f.outfitter, identity.RoleHunter)
	require.NoError(t, err)
	require.Len(t, members, 1)

	// A hunter's session cannot list the roster.
	token := f.provider.openTokenFor("jane@example.com")
	result, err := f.workflow.Redeem(ctx, token, "jane@example.com")
	require.NoError(t, err)

	_, err = f.workflow.ListMembers(ctx, result.Session, f.outfitter, identity.RoleHunter)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestOwnProfile(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	f.invite(t, identity.RoleHunter, "jane@example.com", "Jane")
	token := f.provider.openTokenFor("jane@example.com")
	result, err := f.workflow.Redeem(ctx, token, "jane@example.com")
	require.NoError(t, err)

	stub, err := f.workflow.OwnProfile(ctx, result.Session)
	require.NoError(t, err)
	require.Equal(t, "jane@example.com", stub.Email)
}

package invites

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wildcommand/wildcommand/internal/identity"
	"github.com/wildcommand/wildcommand/internal/mailer"
	"github.com/wildcommand/wildcommand/internal/profiles"
	"github.com/wildcommand/wildcommand/internal/validation"
)

// OutfitterDirectory resolves outfitter display names for email bodies.
type OutfitterDirectory interface {
	OutfitterName(ctx context.Context, outfitterID uuid.UUID) (string, error)
}

// Workflow orchestrates the identity provider, profile store, and
// notification sender to move a member from invited to active. Every
// operation takes the caller's session explicitly; nothing reads ambient
// auth state.
type Workflow struct {
	provider   identity.Provider
	store      profiles.Store
	sender     mailer.Sender
	outfitters OutfitterDirectory
	baseURL    string
}

// NewWorkflow creates the invitation workflow.
func NewWorkflow(provider identity.Provider, store profiles.Store, sender mailer.Sender, outfitters OutfitterDirectory, baseURL string) *Workflow {
	return &Workflow{
		provider:   provider,
		store:      store,
		sender:     sender,
		outfitters: outfitters,
		baseURL:    baseURL,
	}
}

// IssueRequest is an administrator's request to invite a new member.
type IssueRequest struct {
	OutfitterID uuid.UUID
	Role        identity.Role
	Email       string
	DisplayName string
	Phone       string
}

// authorize checks that the session holds administrator scope for the
// outfitter. A failed check against the session's claims snapshot triggers
// one forced refresh before the caller is rejected: claims attached after
// the session was issued are "not yet visible", not "not authorized".
func (w *Workflow) authorize(ctx context.Context, session *identity.Session, outfitterID uuid.UUID) error {
	claims, err := w.provider.GetClaims(ctx, session, false)
	if err != nil {
		return stepErr(StepClaims, err)
	}
	if claims.IsAdminFor(outfitterID) {
		return nil
	}

	fresh, err := w.provider.GetClaims(ctx, session, true)
	if err != nil {
		return stepErr(StepClaims, err)
	}
	if fresh.IsAdminFor(outfitterID) {
		session.Claims = fresh
		return nil
	}
	return ErrUnauthorized
}

// Issue invites a new member: create the identity, attach claims, write the
// profile stub, issue a one-time sign-in link, and hand the welcome email to
// the sender. Steps are individually idempotent; a retry after a partial
// failure will not duplicate state. The returned StepError names which step
// failed so the caller knows what committed.
func (w *Workflow) Issue(ctx context.Context, session *identity.Session, req IssueRequest) (*profiles.Stub, error) {
	email, err := validation.NormalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if !req.Role.IsValid() || req.Role == identity.RoleOutfitter {
		return nil, ErrInvalidRole
	}
	collection := req.Role.Collection()

	if err := w.authorize(ctx, session, req.OutfitterID); err != nil {
		return nil, err
	}

	if existing, err := w.store.FindByEmail(ctx, req.OutfitterID, collection, email); err == nil {
		if existing.SetupComplete {
			return existing, ErrAlreadyActive
		}
		return existing, ErrAlreadyInvited
	} else if !errors.Is(err, profiles.ErrStubNotFound) {
		return nil, stepErr(StepProfile, err)
	}

	accountID, err := w.provider.CreateAccount(ctx, email)
	if err != nil {
		return nil, stepErr(StepIdentity, err)
	}

	if err := w.provider.AttachClaims(ctx, accountID, req.Role, req.OutfitterID); err != nil {
		return nil, stepErr(StepClaims, err)
	}

	stub := &profiles.Stub{
		OutfitterID:    req.OutfitterID,
		RoleCollection: collection,
		MemberID:       accountID,
		DisplayName:    req.DisplayName,
		Email:          email,
		Phone:          req.Phone,
		SetupComplete:  false,
		Active:         true,
	}
	if err := w.store.Create(ctx, stub); err != nil {
		if errors.Is(err, profiles.ErrStubExists) {
			// Lost a race with a concurrent invite for the same email.
			existing, readErr := w.store.FindByEmail(ctx, req.OutfitterID, collection, email)
			if readErr != nil {
				return nil, stepErr(StepProfile, readErr)
			}
			if existing.SetupComplete {
				return existing, ErrAlreadyActive
			}
			return existing, ErrAlreadyInvited
		}
		return nil, stepErr(StepProfile, err)
	}

	if err := w.sendLink(ctx, stub); err != nil {
		return stub, err
	}

	log.Info().
		Str("outfitter_id", req.OutfitterID.String()).
		Str("member_id", accountID.String()).
		Str("role", string(req.Role)).
		Msg("Member invited")

	return stub, nil
}

// Resend re-issues the one-time sign-in link for a pending member. The
// profile store is untouched: no duplicate stub, at most one more link.
func (w *Workflow) Resend(ctx context.Context, session *identity.Session, outfitterID uuid.UUID, role identity.Role, email string) (*profiles.Stub, error) {
	email, err := validation.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if !role.IsValid() || role == identity.RoleOutfitter {
		return nil, ErrInvalidRole
	}

	if err := w.authorize(ctx, session, outfitterID); err != nil {
		return nil, err
	}

	stub, err := w.store.FindByEmail(ctx, outfitterID, role.Collection(), email)
	if err != nil {
		if errors.Is(err, profiles.ErrStubNotFound) {
			return nil, ErrNotInvited
		}
		return nil, stepErr(StepProfile, err)
	}
	if stub.SetupComplete {
		return stub, ErrAlreadyActive
	}

	if err := w.sendLink(ctx, stub); err != nil {
		return stub, err
	}

	return stub, nil
}

// sendLink issues a fresh one-time link for the stub and mails it.
func (w *Workflow) sendLink(ctx context.Context, stub *profiles.Stub) error {
	token, err := w.provider.IssueLoginLink(ctx, stub.Email, identity.LinkDestination{
		OutfitterID:    stub.OutfitterID,
		RoleCollection: stub.RoleCollection,
		MemberID:       stub.MemberID,
	})
	if err != nil {
		return stepErr(StepLink, err)
	}

	outfitterName, err := w.outfitters.OutfitterName(ctx, stub.OutfitterID)
	if err != nil {
		outfitterName = "your outfitter"
	}

	linkURL := fmt.Sprintf("%s/redeem?token=%s&email=%s",
		w.baseURL, url.QueryEscape(token), url.QueryEscape(stub.Email))

	subject, body := mailer.WelcomeMessage(stub.DisplayName, outfitterName, linkURL)
	if err := w.sender.Send(ctx, stub.Email, subject, body); err != nil {
		// Identity, claims, profile, and link state have all committed by
		// now; only delivery failed. The step tag tells the caller that.
		return stepErr(StepNotify, err)
	}

	return nil
}

// RedeemResult reports the outcome of a one-time link redemption.
type RedeemResult struct {
	Session *identity.Session

	// MemberPath locates the reconciled profile stub; nil when no stub was
	// found and the member needs full profile creation.
	MemberPath *profiles.Path

	// SetupComplete is true when onboarding already finished: proceed to
	// normal use instead of the profile-completion step.
	SetupComplete bool

	// NeedsProfile is true when the member must complete (or create) their
	// profile before normal use.
	NeedsProfile bool

	// ReconciliationConflict is true when the resolved stub was already
	// linked to a different identity. The member is treated as needing
	// fresh setup; an administrator has to review the conflict. No scope is
	// granted from the conflicting stub.
	ReconciliationConflict bool
}

// Redeem completes onboarding from a one-time sign-in link: verify and
// consume the link, establish a session, reconcile the identity with its
// profile stub, and propagate claims. Resolution order is fixed: the member
// id embedded in the link first, then an email search bounded to the
// outfitter the link authorizes. A missing stub is never fatal and never a
// denial; the member falls back to full profile creation.
func (w *Workflow) Redeem(ctx context.Context, rawToken, email string) (*RedeemResult, error) {
	session, dest, err := w.provider.RedeemLink(ctx, rawToken, email)
	if err != nil {
		return nil, err
	}

	stub, err := w.resolveStub(ctx, session, dest)
	if err != nil {
		return nil, err
	}
	if stub == nil {
		// Defensive default: no stub anywhere the caller is authorized to
		// look. Treat as needing full profile creation, not as a denial.
		log.Warn().
			Str("account_id", session.AccountID.String()).
			Msg("Link redeemed with no matching profile stub; falling back to profile creation")
		return &RedeemResult{Session: session, NeedsProfile: true}, nil
	}

	path := stub.Path()
	if err := w.store.SetIdentity(ctx, path, session.AccountID); err != nil {
		if errors.Is(err, profiles.ErrIdentityConflict) {
			// First write won and it wasn't us. Do not pick a winner and do
			// not grant the stub's scope; surface for administrative review.
			log.Warn().
				Str("account_id", session.AccountID.String()).
				Str("stub_path", path.String()).
				Msg("Redemption hit a profile stub linked to a different identity")
			return &RedeemResult{
				Session:                session,
				NeedsProfile:           true,
				ReconciliationConflict: true,
			}, nil
		}
		return nil, stepErr(StepProfile, err)
	}

	role, ok := identity.RoleForCollection(stub.RoleCollection)
	if !ok {
		return nil, fmt.Errorf("unknown role collection %q", stub.RoleCollection)
	}

	claims := session.Claims
	if claims.Role != role || claims.OutfitterID != stub.OutfitterID {
		if err := w.provider.AttachClaims(ctx, session.AccountID, role, stub.OutfitterID); err != nil {
			return nil, stepErr(StepClaims, err)
		}
	}

	// Claim propagation must be confirmed with a forced refresh before
	// anything trusts the session's role/scope.
	fresh, err := w.provider.GetClaims(ctx, session, true)
	if err != nil {
		return nil, stepErr(StepClaims, err)
	}
	if fresh.Role != role || fresh.OutfitterID != stub.OutfitterID {
		return nil, identity.ErrStaleClaims
	}
	session.Claims = fresh

	return &RedeemResult{
		Session:       session,
		MemberPath:    &path,
		SetupComplete: stub.SetupComplete,
		NeedsProfile:  !stub.SetupComplete,
	}, nil
}

// resolveStub locates the profile stub a freshly authenticated identity
// belongs to. Preference order: direct id match from the link destination,
// then email search bounded to the outfitter the link (or the session's own
// claims) authorizes. No cross-tenant scanning.
func (w *Workflow) resolveStub(ctx context.Context, session *identity.Session, dest *identity.LinkDestination) (*profiles.Stub, error) {
	if dest != nil && dest.MemberID != uuid.Nil {
		stub, err := w.store.Read(ctx, profiles.Path{
			OutfitterID:    dest.OutfitterID,
			RoleCollection: dest.RoleCollection,
			MemberID:       dest.MemberID,
		})
		if err == nil {
			return stub, nil
		}
		if !errors.Is(err, profiles.ErrStubNotFound) {
			return nil, stepErr(StepProfile, err)
		}
	}

	var outfitterID uuid.UUID
	var collections []string
	switch {
	case dest != nil:
		outfitterID = dest.OutfitterID
		collections = []string{dest.RoleCollection}
		if other := otherCollection(dest.RoleCollection); other != "" {
			collections = append(collections, other)
		}
	case !session.Claims.IsZero():
		outfitterID = session.Claims.OutfitterID
		collections = []string{session.Claims.Role.Collection()}
	default:
		return nil, nil
	}

	for _, collection := range collections {
		if collection == "" {
			continue
		}
		stub, err := w.store.FindByEmail(ctx, outfitterID, collection, session.Email)
		if err == nil {
			return stub, nil
		}
		if !errors.Is(err, profiles.ErrStubNotFound) {
			return nil, stepErr(StepProfile, err)
		}
	}

	return nil, nil
}

func otherCollection(collection string) string {
	switch collection {
	case "guides":
		return "hunters"
	case "hunters":
		return "guides"
	}
	return ""
}

// CompleteRequest carries the outstanding profile fields a member submits to
// finish onboarding. Empty strings leave the stored value untouched.
type CompleteRequest struct {
	DisplayName      string
	Phone            string
	Address          string
	City             string
	State            string
	Country          string
	LicenseNumber    string
	LicenseState     string
	LicenseValidDate *time.Time
	ProfileImageURL  string

	// Password, when set, becomes the member's password for future logins.
	Password string
}

// Complete finishes onboarding for the caller's own profile stub and flips
// setup-complete. Only the stub whose identity back-reference matches the
// session is touched; resubmission overwrites fields and never creates a
// second stub. When no stub exists (the redemption fallback path) one is
// created under the caller's claimed outfitter scope.
func (w *Workflow) Complete(ctx context.Context, session *identity.Session, req CompleteRequest) (*profiles.Stub, error) {
	claims, err := w.provider.GetClaims(ctx, session, false)
	if err != nil {
		return nil, stepErr(StepClaims, err)
	}
	if claims.IsZero() {
		fresh, err := w.provider.GetClaims(ctx, session, true)
		if err != nil {
			return nil, stepErr(StepClaims, err)
		}
		claims = fresh
		session.Claims = fresh
	}
	if claims.IsZero() || claims.Role.Collection() == "" {
		return nil, ErrNoProfile
	}

	stub, err := w.store.FindByIdentity(ctx, claims.OutfitterID, session.AccountID)
	if errors.Is(err, profiles.ErrStubNotFound) {
		// Redemption fell back to full profile creation; make the stub now,
		// keyed by the account and linked immediately.
		accountID := session.AccountID
		stub = &profiles.Stub{
			OutfitterID:    claims.OutfitterID,
			RoleCollection: claims.Role.Collection(),
			MemberID:       accountID,
			DisplayName:    req.DisplayName,
			Email:          session.Email,
			IdentityID:     &accountID,
			Active:         true,
		}
		if err := w.store.Create(ctx, stub); err != nil && !errors.Is(err, profiles.ErrStubExists) {
			return nil, stepErr(StepProfile, err)
		}
	} else if err != nil {
		return nil, stepErr(StepProfile, err)
	}

	path := stub.Path()
	if err := w.store.Merge(ctx, path, fieldsFromRequest(req)); err != nil {
		return nil, stepErr(StepProfile, err)
	}

	if req.Password != "" {
		if err := w.provider.SetPassword(ctx, session.AccountID, req.Password); err != nil {
			return nil, stepErr(StepIdentity, err)
		}
	}

	if err := w.store.SetSetupComplete(ctx, path); err != nil {
		return nil, stepErr(StepProfile, err)
	}

	updated, err := w.store.Read(ctx, path)
	if err != nil {
		return nil, stepErr(StepProfile, err)
	}

	log.Info().
		Str("stub_path", path.String()).
		Msg("Member setup completed")

	return updated, nil
}

// OwnProfile returns the caller's own profile stub, located through the
// identity back-reference within their claimed outfitter scope.
func (w *Workflow) OwnProfile(ctx context.Context, session *identity.Session) (*profiles.Stub, error) {
	claims, err := w.provider.GetClaims(ctx, session, false)
	if err != nil {
		return nil, stepErr(StepClaims, err)
	}
	if claims.IsZero() {
		return nil, ErrNoProfile
	}

	stub, err := w.store.FindByIdentity(ctx, claims.OutfitterID, session.AccountID)
	if err != nil {
		if errors.Is(err, profiles.ErrStubNotFound) {
			return nil, ErrNoProfile
		}
		return nil, stepErr(StepProfile, err)
	}
	return stub, nil
}

// ListMembers returns all profile stubs in one of the outfitter's role
// collections, pending invitations included.
func (w *Workflow) ListMembers(ctx context.Context, session *identity.Session, outfitterID uuid.UUID, role identity.Role) ([]profiles.Stub, error) {
	if !role.IsValid() || role == identity.RoleOutfitter {
		return nil, ErrInvalidRole
	}
	if err := w.authorize(ctx, session, outfitterID); err != nil {
		return nil, err
	}
	return w.store.ListByCollection(ctx, outfitterID, role.Collection())
}

// Member reads a single member's profile stub on behalf of an
// administrator.
func (w *Workflow) Member(ctx context.Context, session *identity.Session, path profiles.Path) (*profiles.Stub, error) {
	if err := w.authorize(ctx, session, path.OutfitterID); err != nil {
		return nil, err
	}
	return w.store.Read(ctx, path)
}

// UpdateMember merges profile fields into a member's stub on behalf of an
// administrator.
func (w *Workflow) UpdateMember(ctx context.Context, session *identity.Session, path profiles.Path, fields profiles.Fields) (*profiles.Stub, error) {
	if err := w.authorize(ctx, session, path.OutfitterID); err != nil {
		return nil, err
	}
	if err := w.store.Merge(ctx, path, fields); err != nil {
		return nil, stepErr(StepProfile, err)
	}
	return w.store.Read(ctx, path)
}

// Deactivate marks a member inactive and disables their account. The
// profile stub is never deleted.
func (w *Workflow) Deactivate(ctx context.Context, session *identity.Session, path profiles.Path) error {
	if err := w.authorize(ctx, session, path.OutfitterID); err != nil {
		return err
	}

	stub, err := w.store.Read(ctx, path)
	if err != nil {
		return err
	}

	if err := w.store.SetActive(ctx, path, false); err != nil {
		return stepErr(StepProfile, err)
	}

	if stub.IdentityID != nil {
		if err := w.provider.Disable(ctx, *stub.IdentityID); err != nil && !errors.Is(err, identity.ErrAccountNotFound) {
			return stepErr(StepIdentity, err)
		}
	}

	return nil
}

func fieldsFromRequest(req CompleteRequest) profiles.Fields {
	fields := profiles.Fields{LicenseValidDate: req.LicenseValidDate}
	setIf := func(dst **string, v string) {
		if v != "" {
			s := v
			*dst = &s
		}
	}
	setIf(&fields.DisplayName, req.DisplayName)
	setIf(&fields.Phone, req.Phone)
	setIf(&fields.Address, req.Address)
	setIf(&fields.City, req.City)
	setIf(&fields.State, req.State)
	setIf(&fields.Country, req.Country)
	setIf(&fields.LicenseNumber, req.LicenseNumber)
	setIf(&fields.LicenseState, req.LicenseState)
	setIf(&fields.ProfileImageURL, req.ProfileImageURL)
	return fields
}

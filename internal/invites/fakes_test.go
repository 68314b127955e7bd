package invites

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wildcommand/wildcommand/internal/identity"
	"github.com/wildcommand/wildcommand/internal/profiles"
)

// fakeProvider is an in-memory identity.Provider with the same claims and
// link semantics as the Postgres implementation.
type fakeProvider struct {
	mu       sync.Mutex
	accounts  map[uuid.UUID]*identity.Account
	byEmail   map[string]uuid.UUID
	passwords map[uuid.UUID]string
	links     map[string]*fakeLink
	linkTTL   time.Duration
}

type fakeLink struct {
	email      string
	dest       identity.LinkDestination
	expiresAt  time.Time
	redeemedBy *uuid.UUID
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		accounts:  map[uuid.UUID]*identity.Account{},
		byEmail:   map[string]uuid.UUID{},
		passwords: map[uuid.UUID]string{},
		links:     map[string]*fakeLink{},
		linkTTL:   time.Hour,
	}
}

func (p *fakeProvider) CreateAccount(ctx context.Context, email string) (uuid.UUID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	email = strings.ToLower(email)
	if id, ok := p.byEmail[email]; ok {
		return id, nil
	}
	account := &identity.Account{ID: uuid.New(), Email: email}
	p.accounts[account.ID] = account
	p.byEmail[email] = account.ID
	return account.ID, nil
}

func (p *fakeProvider) AttachClaims(ctx context.Context, accountID uuid.UUID, role identity.Role, outfitterID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	account, ok := p.accounts[accountID]
	if !ok {
		return identity.ErrAccountNotFound
	}
	if account.Role == role && account.OutfitterID == outfitterID {
		return nil
	}
	account.Role = role
	account.OutfitterID = outfitterID
	account.ClaimsVersion++
	return nil
}

func (p *fakeProvider) GetClaims(ctx context.Context, session *identity.Session, forceRefresh bool) (identity.Claims, error) {
	if !forceRefresh {
		return session.Claims, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	account, ok := p.accounts[session.AccountID]
	if !ok {
		return identity.Claims{}, identity.ErrAccountNotFound
	}
	return account.CurrentClaims(), nil
}

func (p *fakeProvider) IssueLoginLink(ctx context.Context, email string, dest identity.LinkDestination) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	email = strings.ToLower(email)
	for token, link := range p.links {
		if link.email == email && link.dest.OutfitterID == dest.OutfitterID && link.redeemedBy == nil {
			delete(p.links, token)
		}
	}
	token, _, err := identity.GenerateLinkToken()
	if err != nil {
		return "", err
	}
	p.links[token] = &fakeLink{
		email:     email,
		dest:      dest,
		expiresAt: time.Now().Add(p.linkTTL),
	}
	return token, nil
}

func (p *fakeProvider) RedeemLink(ctx context.Context, rawToken, email string) (*identity.Session, *identity.LinkDestination, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	email = strings.ToLower(email)

	link, ok := p.links[rawToken]
	if !ok {
		return nil, nil, identity.ErrLinkNotFound
	}
	if !strings.EqualFold(link.email, email) {
		return nil, nil, identity.ErrLinkEmailMismatch
	}
	if !link.expiresAt.After(time.Now()) {
		return nil, nil, identity.ErrLinkExpired
	}

	account, ok := p.accounts[p.byEmail[email]]
	if !ok {
		account = &identity.Account{ID: uuid.New(), Email: email}
		p.accounts[account.ID] = account
		p.byEmail[email] = account.ID
	}
	if account.Disabled {
		return nil, nil, identity.ErrAccountDisabled
	}

	if link.redeemedBy != nil {
		if *link.redeemedBy != account.ID {
			return nil, nil, identity.ErrLinkAlreadyUsed
		}
	} else {
		id := account.ID
		link.redeemedBy = &id
	}

	dest := link.dest
	return &identity.Session{
		AccountID: account.ID,
		Email:     account.Email,
		Claims:    account.CurrentClaims(),
	}, &dest, nil
}

func (p *fakeProvider) Authenticate(ctx context.Context, email, password string) (*identity.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, identity.ErrAccountNotFound
	}
	account := p.accounts[id]
	if account.Disabled {
		return nil, identity.ErrAccountDisabled
	}
	if stored, ok := p.passwords[account.ID]; !ok || stored != password {
		return nil, identity.ErrInvalidCredentials
	}
	return &identity.Session{
		AccountID: account.ID,
		Email:     account.Email,
		Claims:    account.CurrentClaims(),
	}, nil
}

func (p *fakeProvider) SetPassword(ctx context.Context, accountID uuid.UUID, password string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.accounts[accountID]; !ok {
		return identity.ErrAccountNotFound
	}
	p.passwords[accountID] = password
	return nil
}

func (p *fakeProvider) Disable(ctx context.Context, accountID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	account, ok := p.accounts[accountID]
	if !ok {
		return identity.ErrAccountNotFound
	}
	account.Disabled = true
	return nil
}

func (p *fakeProvider) AccountByEmail(ctx context.Context, email string) (*identity.Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, identity.ErrAccountNotFound
	}
	copied := *p.accounts[id]
	return &copied, nil
}

// openTokenFor returns the unredeemed link token for an email, if any.
func (p *fakeProvider) openTokenFor(email string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	for token, link := range p.links {
		if link.email == strings.ToLower(email) && link.redeemedBy == nil {
			return token
		}
	}
	return ""
}

// expireLinks backdates every open link past its expiry.
func (p *fakeProvider) expireLinks() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, link := range p.links {
		link.expiresAt = time.Now().Add(-time.Minute)
	}
}

// fakeStore is an in-memory profiles.Store.
type fakeStore struct {
	mu    sync.Mutex
	stubs map[profiles.Path]*profiles.Stub
}

func newFakeStore() *fakeStore {
	return &fakeStore{stubs: map[profiles.Path]*profiles.Stub{}}
}

func (s *fakeStore) Create(ctx context.Context, stub *profiles.Stub) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := stub.Path()
	if _, ok := s.stubs[path]; ok {
		return profiles.ErrStubExists
	}
	for _, existing := range s.stubs {
		if existing.OutfitterID == stub.OutfitterID &&
			existing.RoleCollection == stub.RoleCollection &&
			strings.EqualFold(existing.Email, stub.Email) {
			return profiles.ErrStubExists
		}
	}
	copied := *stub
	copied.CreatedAt = time.Now()
	copied.UpdatedAt = copied.CreatedAt
	s.stubs[path] = &copied
	return nil
}

func (s *fakeStore) Read(ctx context.Context, path profiles.Path) (*profiles.Stub, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stub, ok := s.stubs[path]
	if !ok {
		return nil, profiles.ErrStubNotFound
	}
	copied := *stub
	return &copied, nil
}

func (s *fakeStore) Merge(ctx context.Context, path profiles.Path, fields profiles.Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stub, ok := s.stubs[path]
	if !ok {
		return profiles.ErrStubNotFound
	}
	apply := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	apply(&stub.DisplayName, fields.DisplayName)
	apply(&stub.Phone, fields.Phone)
	apply(&stub.Address, fields.Address)
	apply(&stub.City, fields.City)
	apply(&stub.State, fields.State)
	apply(&stub.Country, fields.Country)
	apply(&stub.LicenseNumber, fields.LicenseNumber)
	apply(&stub.LicenseState, fields.LicenseState)
	apply(&stub.ProfileImageURL, fields.ProfileImageURL)
	if fields.LicenseValidDate != nil {
		d := *fields.LicenseValidDate
		stub.LicenseValidDate = &d
	}
	stub.UpdatedAt = time.Now()
	return nil
}

func (s *fakeStore) FindByEmail(ctx context.Context, outfitterID uuid.UUID, roleCollection, email string) (*profiles.Stub, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, stub := range s.stubs {
		if stub.OutfitterID == outfitterID &&
			stub.RoleCollection == roleCollection &&
			strings.EqualFold(stub.Email, email) {
			copied := *stub
			return &copied, nil
		}
	}
	return nil, profiles.ErrStubNotFound
}

func (s *fakeStore) FindByIdentity(ctx context.Context, outfitterID, identityID uuid.UUID) (*profiles.Stub, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, stub := range s.stubs {
		if stub.OutfitterID == outfitterID && stub.IdentityID != nil && *stub.IdentityID == identityID {
			copied := *stub
			return &copied, nil
		}
	}
	return nil, profiles.ErrStubNotFound
}

func (s *fakeStore) SetIdentity(ctx context.Context, path profiles.Path, identityID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stub, ok := s.stubs[path]
	if !ok {
		return profiles.ErrStubNotFound
	}
	if stub.IdentityID != nil {
		if *stub.IdentityID == identityID {
			return nil
		}
		return profiles.ErrIdentityConflict
	}
	id := identityID
	stub.IdentityID = &id
	stub.UpdatedAt = time.Now()
	return nil
}

func (s *fakeStore) SetSetupComplete(ctx context.Context, path profiles.Path) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stub, ok := s.stubs[path]
	if !ok {
		return profiles.ErrStubNotFound
	}
	stub.SetupComplete = true
	stub.UpdatedAt = time.Now()
	return nil
}

func (s *fakeStore) SetActive(ctx context.Context, path profiles.Path, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stub, ok := s.stubs[path]
	if !ok {
		return profiles.ErrStubNotFound
	}
	stub.Active = active
	stub.UpdatedAt = time.Now()
	return nil
}

func (s *fakeStore) ListByCollection(ctx context.Context, outfitterID uuid.UUID, roleCollection string) ([]profiles.Stub, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []profiles.Stub
	for _, stub := range s.stubs {
		if stub.OutfitterID == outfitterID && stub.RoleCollection == roleCollection {
			out = append(out, *stub)
		}
	}
	return out, nil
}

// fakeSender records sent messages and can be told to fail.
type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	fail error
}

type sentMessage struct {
	to      string
	subject string
	body    string
}

func (s *fakeSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.sent = append(s.sent, sentMessage{to: to, subject: subject, body: htmlBody})
	return nil
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type fakeDirectory struct{ name string }

func (d *fakeDirectory) OutfitterName(ctx context.Context, outfitterID uuid.UUID) (string, error) {
	return d.name, nil
}

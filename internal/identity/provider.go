package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Provider is the identity-provider contract the invitation workflow is
// written against. The production implementation is Postgres-backed; tests
// substitute an in-memory fake.
type Provider interface {
	// CreateAccount creates an account for the email, or returns the existing
	// account's ID. Idempotent by email.
	CreateAccount(ctx context.Context, email string) (uuid.UUID, error)

	// AttachClaims sets the role/outfitter scope on the account and bumps the
	// claims version. Sessions issued before the bump carry a stale snapshot
	// until refreshed.
	AttachClaims(ctx context.Context, accountID uuid.UUID, role Role, outfitterID uuid.UUID) error

	// GetClaims returns the caller's claims. With forceRefresh=false the
	// session's snapshot is returned as-is; with forceRefresh=true the
	// account row is re-read, which is the only way to observe a claims
	// change made after the session was issued.
	GetClaims(ctx context.Context, session *Session, forceRefresh bool) (Claims, error)

	// IssueLoginLink creates a one-time sign-in link for the email and
	// returns the raw token. Any open links for the same email+outfitter are
	// revoked first.
	IssueLoginLink(ctx context.Context, email string, dest LinkDestination) (string, error)

	// RedeemLink verifies and consumes a one-time link, creating the account
	// on first sign-in if it was never pre-created, and returns an
	// authenticated session together with the link's return destination.
	// Re-redemption by the same account within the validity window succeeds
	// (the user clicking the link twice is not an error); redemption by a
	// different account fails.
	RedeemLink(ctx context.Context, rawToken, email string) (*Session, *LinkDestination, error)

	// Authenticate verifies an email/password pair.
	Authenticate(ctx context.Context, email, password string) (*Session, error)

	// SetPassword sets the account's password.
	SetPassword(ctx context.Context, accountID uuid.UUID, password string) error

	// Disable deactivates the account. Disabled accounts cannot authenticate
	// or redeem links.
	Disable(ctx context.Context, accountID uuid.UUID) error

	// AccountByEmail looks up an account by email.
	AccountByEmail(ctx context.Context, email string) (*Account, error)
}

// PGProvider implements Provider on Postgres.
type PGProvider struct {
	pool    *pgxpool.Pool
	linkTTL time.Duration
}

// NewPGProvider creates a Postgres-backed identity provider.
func NewPGProvider(pool *pgxpool.Pool, linkTTL time.Duration) *PGProvider {
	return &PGProvider{pool: pool, linkTTL: linkTTL}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (p *PGProvider) CreateAccount(ctx context.Context, email string) (uuid.UUID, error) {
	email = normalizeEmail(email)
	accountID := uuid.New()

	_, err := p.pool.Exec(ctx, `
		INSERT INTO accounts (id, email)
		VALUES ($1, $2)
		ON CONFLICT (email) DO NOTHING
	`, accountID, email)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create account: %w", err)
	}

	// The insert may have been a no-op; read back the canonical ID either way.
	var id uuid.UUID
	err = p.pool.QueryRow(ctx, `SELECT id FROM accounts WHERE email = $1`, email).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to load account: %w", err)
	}

	return id, nil
}

func (p *PGProvider) AttachClaims(ctx context.Context, accountID uuid.UUID, role Role, outfitterID uuid.UUID) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE accounts
		SET role = $2,
		    outfitter_id = $3,
		    claims_version = claims_version + 1,
		    updated_at = NOW()
		WHERE id = $1
		  AND (role IS DISTINCT FROM $2 OR outfitter_id IS DISTINCT FROM $3)
	`, accountID, role, outfitterID)
	if err != nil {
		return fmt.Errorf("failed to attach claims: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the claims already match (idempotent re-attach) or the
		// account does not exist; distinguish the two.
		var exists bool
		if err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, accountID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check account: %w", err)
		}
		if !exists {
			return ErrAccountNotFound
		}
	}
	return nil
}

func (p *PGProvider) GetClaims(ctx context.Context, session *Session, forceRefresh bool) (Claims, error) {
	if !forceRefresh {
		return session.Claims, nil
	}

	account, err := p.accountByID(ctx, session.AccountID)
	if err != nil {
		return Claims{}, err
	}

	return account.CurrentClaims(), nil
}

func (p *PGProvider) IssueLoginLink(ctx context.Context, email string, dest LinkDestination) (string, error) {
	email = normalizeEmail(email)

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	// Revoke any open links for this email in the outfitter.
	_, err = tx.Exec(ctx, `
		DELETE FROM signin_links
		WHERE email = $1
		  AND outfitter_id = $2
		  AND redeemed_at IS NULL
	`, email, dest.OutfitterID)
	if err != nil {
		return "", fmt.Errorf("failed to revoke open links: %w", err)
	}

	for attempt := 0; attempt < 3; attempt++ {
		token, tokenHash, err := GenerateLinkToken()
		if err != nil {
			return "", err
		}

		expiresAt := time.Now().UTC().Add(p.linkTTL)

		_, err = tx.Exec(ctx, `
			INSERT INTO signin_links (
			  token_hash, email, outfitter_id, role_collection, member_id, expires_at
			)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, tokenHash, email, dest.OutfitterID, dest.RoleCollection, dest.MemberID, expiresAt)
		if err == nil {
			if err := tx.Commit(ctx); err != nil {
				return "", fmt.Errorf("failed to commit transaction: %w", err)
			}
			return token, nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Token hash collision (extremely unlikely); retry.
			continue
		}
		return "", fmt.Errorf("failed to create sign-in link: %w", err)
	}

	return "", fmt.Errorf("failed to create sign-in link: token collision retry exhausted")
}

func (p *PGProvider) RedeemLink(ctx context.Context, rawToken, email string) (*Session, *LinkDestination, error) {
	if !ValidateLinkTokenFormat(rawToken) {
		return nil, nil, ErrLinkNotFound
	}
	email = normalizeEmail(email)
	tokenHash := HashLinkToken(rawToken)

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var linkEmail string
	var dest LinkDestination
	var expiresAt time.Time
	var redeemedAt *time.Time
	var redeemedBy *uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT email, outfitter_id, role_collection, member_id, expires_at, redeemed_at, redeemed_by_account_id
		FROM signin_links
		WHERE token_hash = $1
		FOR UPDATE
	`, tokenHash).Scan(&linkEmail, &dest.OutfitterID, &dest.RoleCollection, &dest.MemberID, &expiresAt, &redeemedAt, &redeemedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrLinkNotFound
		}
		return nil, nil, fmt.Errorf("failed to load sign-in link: %w", err)
	}

	if !strings.EqualFold(linkEmail, email) {
		return nil, nil, ErrLinkEmailMismatch
	}
	if !expiresAt.After(time.Now().UTC()) {
		return nil, nil, ErrLinkExpired
	}

	// Find or create the account for the link's email.
	var account Account
	err = tx.QueryRow(ctx, `
		SELECT id, email, COALESCE(role, ''), COALESCE(outfitter_id, '00000000-0000-0000-0000-000000000000'::uuid), claims_version, disabled
		FROM accounts
		WHERE email = $1
	`, email).Scan(&account.ID, &account.Email, &account.Role, &account.OutfitterID, &account.ClaimsVersion, &account.Disabled)
	if errors.Is(err, pgx.ErrNoRows) {
		account = Account{ID: uuid.New(), Email: email}
		_, err = tx.Exec(ctx, `INSERT INTO accounts (id, email) VALUES ($1, $2)`, account.ID, account.Email)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve account: %w", err)
	}
	if account.Disabled {
		return nil, nil, ErrAccountDisabled
	}

	if redeemedAt != nil {
		// The same member opening the link twice (second device, double
		// click) is fine; a different account on a used link is not.
		if redeemedBy == nil || *redeemedBy != account.ID {
			return nil, nil, ErrLinkAlreadyUsed
		}
	} else {
		_, err = tx.Exec(ctx, `
			UPDATE signin_links
			SET redeemed_at = NOW(), redeemed_by_account_id = $2
			WHERE token_hash = $1
			  AND redeemed_at IS NULL
		`, tokenHash, account.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to mark link redeemed: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	session := &Session{
		AccountID: account.ID,
		Email:     account.Email,
		Claims:    account.CurrentClaims(),
	}
	return session, &dest, nil
}

func (p *PGProvider) Authenticate(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)

	var account Account
	var passwordHash *string
	err := p.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, COALESCE(role, ''), COALESCE(outfitter_id, '00000000-0000-0000-0000-000000000000'::uuid), claims_version, disabled
		FROM accounts
		WHERE email = $1
	`, email).Scan(&account.ID, &account.Email, &passwordHash, &account.Role, &account.OutfitterID, &account.ClaimsVersion, &account.Disabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to query account: %w", err)
	}

	if account.Disabled {
		return nil, ErrAccountDisabled
	}
	if passwordHash == nil {
		// Invite-only account that never completed setup; no password login.
		return nil, ErrInvalidCredentials
	}
	if err := VerifyPassword(*passwordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}

	return &Session{
		AccountID: account.ID,
		Email:     account.Email,
		Claims:    account.CurrentClaims(),
	}, nil
}

func (p *PGProvider) SetPassword(ctx context.Context, accountID uuid.UUID, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	tag, err := p.pool.Exec(ctx, `
		UPDATE accounts SET password_hash = $2, updated_at = NOW() WHERE id = $1
	`, accountID, hash)
	if err != nil {
		return fmt.Errorf("failed to set password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (p *PGProvider) Disable(ctx context.Context, accountID uuid.UUID) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE accounts SET disabled = TRUE, updated_at = NOW() WHERE id = $1
	`, accountID)
	if err != nil {
		return fmt.Errorf("failed to disable account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (p *PGProvider) AccountByEmail(ctx context.Context, email string) (*Account, error) {
	email = normalizeEmail(email)

	var account Account
	err := p.pool.QueryRow(ctx, `
		SELECT id, email, COALESCE(role, ''), COALESCE(outfitter_id, '00000000-0000-0000-0000-000000000000'::uuid), claims_version, disabled, created_at, updated_at
		FROM accounts
		WHERE email = $1
	`, email).Scan(&account.ID, &account.Email, &account.Role, &account.OutfitterID, &account.ClaimsVersion, &account.Disabled, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to query account: %w", err)
	}

	return &account, nil
}

func (p *PGProvider) accountByID(ctx context.Context, accountID uuid.UUID) (*Account, error) {
	var account Account
	err := p.pool.QueryRow(ctx, `
		SELECT id, email, COALESCE(role, ''), COALESCE(outfitter_id, '00000000-0000-0000-0000-000000000000'::uuid), claims_version, disabled, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`, accountID).Scan(&account.ID, &account.Email, &account.Role, &account.OutfitterID, &account.ClaimsVersion, &account.Disabled, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to query account: %w", err)
	}

	return &account, nil
}

// SweepExpiredLinks deletes expired, unredeemed sign-in links. Run from the
// hourly sweep job. Idempotent.
func (p *PGProvider) SweepExpiredLinks(ctx context.Context) (int64, error) {
	tag, err := p.pool.Exec(ctx, `
		DELETE FROM signin_links
		WHERE expires_at < NOW()
		  AND redeemed_at IS NULL
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired links: %w", err)
	}
	return tag.RowsAffected(), nil
}

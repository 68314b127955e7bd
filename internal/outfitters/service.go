package outfitters

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wildcommand/wildcommand/internal/identity"
)

// Service provides outfitter-related operations
type Service struct {
	pool     *pgxpool.Pool
	provider identity.Provider
}

// NewService creates a new outfitter service
func NewService(pool *pgxpool.Pool, provider identity.Provider) *Service {
	return &Service{pool: pool, provider: provider}
}

// GetByID retrieves an outfitter by ID
func (s *Service) GetByID(ctx context.Context, outfitterID uuid.UUID) (*Outfitter, error) {
	var o Outfitter

	err := s.pool.QueryRow(ctx, `
		SELECT id, name, slug, created_by_account_id, created_at, updated_at
		FROM outfitters
		WHERE id = $1
	`, outfitterID).Scan(&o.ID, &o.Name, &o.Slug, &o.CreatedByAccountID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get outfitter: %w", err)
	}

	return &o, nil
}

// GetBySlug retrieves an outfitter by slug
func (s *Service) GetBySlug(ctx context.Context, slug string) (*Outfitter, error) {
	var o Outfitter

	err := s.pool.QueryRow(ctx, `
		SELECT id, name, slug, created_by_account_id, created_at, updated_at
		FROM outfitters
		WHERE slug = $1
	`, slug).Scan(&o.ID, &o.Name, &o.Slug, &o.CreatedByAccountID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get outfitter: %w", err)
	}

	return &o, nil
}

// OutfitterName resolves an outfitter's display name. Satisfies the
// invitation workflow's directory dependency.
func (s *Service) OutfitterName(ctx context.Context, outfitterID uuid.UUID) (string, error) {
	o, err := s.GetByID(ctx, outfitterID)
	if err != nil {
		return "", err
	}
	return o.Name, nil
}

// Signup creates a new outfitter together with its administrator account and
// returns an authenticated session for the administrator. The account gets
// outfitter-role claims scoped to the new organization.
func (s *Service) Signup(ctx context.Context, name, slug, email, password string) (*Outfitter, *identity.Session, error) {
	if _, err := s.provider.AccountByEmail(ctx, email); err == nil {
		return nil, nil, ErrEmailTaken
	} else if !errors.Is(err, identity.ErrAccountNotFound) {
		return nil, nil, err
	}

	accountID, err := s.provider.CreateAccount(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create account: %w", err)
	}

	if err := s.provider.SetPassword(ctx, accountID, password); err != nil {
		return nil, nil, fmt.Errorf("failed to set password: %w", err)
	}

	var o Outfitter
	err = s.pool.QueryRow(ctx, `
		INSERT INTO outfitters (id, name, slug, created_by_account_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, slug, created_by_account_id, created_at, updated_at
	`, uuid.New(), name, slug, accountID).Scan(
		&o.ID, &o.Name, &o.Slug, &o.CreatedByAccountID, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return nil, nil, ErrSlugConflict
		}
		return nil, nil, fmt.Errorf("failed to create outfitter: %w", err)
	}

	if err := s.provider.AttachClaims(ctx, accountID, identity.RoleOutfitter, o.ID); err != nil {
		return nil, nil, fmt.Errorf("failed to attach administrator claims: %w", err)
	}

	// Read claims back so the session snapshot starts at the current version.
	account, err := s.provider.AccountByEmail(ctx, email)
	if err != nil {
		return nil, nil, err
	}

	session := &identity.Session{
		AccountID: account.ID,
		Email:     account.Email,
		Claims:    account.CurrentClaims(),
	}
	return &o, session, nil
}

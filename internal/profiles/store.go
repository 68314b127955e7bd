package profiles

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the profile-store contract the invitation workflow is written
// against: path-addressed reads and writes plus email lookup within a single
// outfitter's collection. The production implementation is Postgres-backed;
// tests substitute an in-memory fake.
type Store interface {
	Create(ctx context.Context, stub *Stub) error
	Read(ctx context.Context, path Path) (*Stub, error)
	Merge(ctx context.Context, path Path, fields Fields) error
	FindByEmail(ctx context.Context, outfitterID uuid.UUID, roleCollection, email string) (*Stub, error)
	FindByIdentity(ctx context.Context, outfitterID, identityID uuid.UUID) (*Stub, error)

	// SetIdentity writes the identity back-reference. First write wins:
	// setting the same identity again is a no-op, setting a different one
	// returns ErrIdentityConflict.
	SetIdentity(ctx context.Context, path Path, identityID uuid.UUID) error

	SetSetupComplete(ctx context.Context, path Path) error
	SetActive(ctx context.Context, path Path, active bool) error
	ListByCollection(ctx context.Context, outfitterID uuid.UUID, roleCollection string) ([]Stub, error)
}

// PGStore implements Store on Postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a Postgres-backed profile store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const stubColumns = `
	outfitter_id, role_collection, member_id, display_name, email, phone,
	address, city, state, country, license_number, license_state,
	license_valid_date, profile_image_url, identity_id, setup_complete,
	active, created_at, updated_at
`

func scanStub(row pgx.Row) (*Stub, error) {
	var s Stub
	err := row.Scan(
		&s.OutfitterID, &s.RoleCollection, &s.MemberID, &s.DisplayName,
		&s.Email, &s.Phone, &s.Address, &s.City, &s.State, &s.Country,
		&s.LicenseNumber, &s.LicenseState, &s.LicenseValidDate,
		&s.ProfileImageURL, &s.IdentityID, &s.SetupComplete, &s.Active,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (st *PGStore) Create(ctx context.Context, stub *Stub) error {
	_, err := st.pool.Exec(ctx, `
		INSERT INTO profile_stubs (
		  outfitter_id, role_collection, member_id, display_name, email, phone,
		  identity_id, setup_complete, active
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, stub.OutfitterID, stub.RoleCollection, stub.MemberID, stub.DisplayName,
		strings.ToLower(strings.TrimSpace(stub.Email)), stub.Phone,
		stub.IdentityID, stub.SetupComplete, true)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return ErrStubExists
		}
		return fmt.Errorf("failed to create profile stub: %w", err)
	}
	return nil
}

func (st *PGStore) Read(ctx context.Context, path Path) (*Stub, error) {
	row := st.pool.QueryRow(ctx, `
		SELECT `+stubColumns+`
		FROM profile_stubs
		WHERE outfitter_id = $1 AND role_collection = $2 AND member_id = $3
	`, path.OutfitterID, path.RoleCollection, path.MemberID)

	stub, err := scanStub(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStubNotFound
		}
		return nil, fmt.Errorf("failed to read profile stub: %w", err)
	}
	return stub, nil
}

// Merge overwrites only the fields that are set. Resubmission is an
// overwrite, never a second stub.
func (st *PGStore) Merge(ctx context.Context, path Path, fields Fields) error {
	tag, err := st.pool.Exec(ctx, `
		UPDATE profile_stubs
		SET display_name       = COALESCE($4, display_name),
		    phone              = COALESCE($5, phone),
		    address            = COALESCE($6, address),
		    city               = COALESCE($7, city),
		    state              = COALESCE($8, state),
		    country            = COALESCE($9, country),
		    license_number     = COALESCE($10, license_number),
		    license_state      = COALESCE($11, license_state),
		    license_valid_date = COALESCE($12, license_valid_date),
		    profile_image_url  = COALESCE($13, profile_image_url),
		    updated_at         = NOW()
		WHERE outfitter_id = $1 AND role_collection = $2 AND member_id = $3
	`, path.OutfitterID, path.RoleCollection, path.MemberID,
		fields.DisplayName, fields.Phone, fields.Address, fields.City,
		fields.State, fields.Country, fields.LicenseNumber,
		fields.LicenseState, fields.LicenseValidDate, fields.ProfileImageURL)
	if err != nil {
		return fmt.Errorf("failed to merge profile stub: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStubNotFound
	}
	return nil
}

func (st *PGStore) FindByEmail(ctx context.Context, outfitterID uuid.UUID, roleCollection, email string) (*Stub, error) {
	row := st.pool.QueryRow(ctx, `
		SELECT `+stubColumns+`
		FROM profile_stubs
		WHERE outfitter_id = $1 AND role_collection = $2 AND LOWER(email) = LOWER($3)
	`, outfitterID, roleCollection, strings.TrimSpace(email))

	stub, err := scanStub(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStubNotFound
		}
		return nil, fmt.Errorf("failed to find profile stub by email: %w", err)
	}
	return stub, nil
}

func (st *PGStore) FindByIdentity(ctx context.Context, outfitterID, identityID uuid.UUID) (*Stub, error) {
	row := st.pool.QueryRow(ctx, `
		SELECT `+stubColumns+`
		FROM profile_stubs
		WHERE outfitter_id = $1 AND identity_id = $2
	`, outfitterID, identityID)

	stub, err := scanStub(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStubNotFound
		}
		return nil, fmt.Errorf("failed to find profile stub by identity: %w", err)
	}
	return stub, nil
}

func (st *PGStore) SetIdentity(ctx context.Context, path Path, identityID uuid.UUID) error {
	tag, err := st.pool.Exec(ctx, `
		UPDATE profile_stubs
		SET identity_id = $4, updated_at = NOW()
		WHERE outfitter_id = $1 AND role_collection = $2 AND member_id = $3
		  AND identity_id IS NULL
	`, path.OutfitterID, path.RoleCollection, path.MemberID, identityID)
	if err != nil {
		return fmt.Errorf("failed to set identity back-reference: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Lost the race or the reference was set earlier. Same identity is a
	// no-op; a different one is a reconciliation conflict, never an overwrite.
	stub, err := st.Read(ctx, path)
	if err != nil {
		return err
	}
	if stub.IdentityID != nil && *stub.IdentityID == identityID {
		return nil
	}
	return ErrIdentityConflict
}

func (st *PGStore) SetSetupComplete(ctx context.Context, path Path) error {
	tag, err := st.pool.Exec(ctx, `
		UPDATE profile_stubs
		SET setup_complete = TRUE, updated_at = NOW()
		WHERE outfitter_id = $1 AND role_collection = $2 AND member_id = $3
	`, path.OutfitterID, path.RoleCollection, path.MemberID)
	if err != nil {
		return fmt.Errorf("failed to mark setup complete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStubNotFound
	}
	return nil
}

func (st *PGStore) SetActive(ctx context.Context, path Path, active bool) error {
	tag, err := st.pool.Exec(ctx, `
		UPDATE profile_stubs
		SET active = $4, updated_at = NOW()
		WHERE outfitter_id = $1 AND role_collection = $2 AND member_id = $3
	`, path.OutfitterID, path.RoleCollection, path.MemberID, active)
	if err != nil {
		return fmt.Errorf("failed to update active flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStubNotFound
	}
	return nil
}

func (st *PGStore) ListByCollection(ctx context.Context, outfitterID uuid.UUID, roleCollection string) ([]Stub, error) {
	rows, err := st.pool.Query(ctx, `
		SELECT `+stubColumns+`
		FROM profile_stubs
		WHERE outfitter_id = $1 AND role_collection = $2
		ORDER BY display_name ASC
	`, outfitterID, roleCollection)
	if err != nil {
		return nil, fmt.Errorf("failed to list profile stubs: %w", err)
	}
	defer rows.Close()

	var stubs []Stub
	for rows.Next() {
		stub, err := scanStub(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile stub: %w", err)
		}
		stubs = append(stubs, *stub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating profile stubs: %w", err)
	}

	return stubs, nil
}

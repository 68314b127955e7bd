package huntlogs

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists hunt logs.
type Store interface {
	Create(ctx context.Context, log *HuntLog) error
	ListByOutfitter(ctx context.Context, outfitterID uuid.UUID) ([]HuntLog, error)
	ListByGuide(ctx context.Context, outfitterID, guideMemberID uuid.UUID) ([]HuntLog, error)
}

// PGStore implements Store on Postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (st *PGStore) Create(ctx context.Context, hl *HuntLog) error {
	return st.pool.QueryRow(ctx, `
		INSERT INTO hunt_logs (id, outfitter_id, guide_member_id, client_name, outcome, location)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, hl.ID, hl.OutfitterID, hl.GuideMemberID, hl.ClientName, hl.Outcome, hl.Location).Scan(&hl.CreatedAt)
}

func (st *PGStore) ListByOutfitter(ctx context.Context, outfitterID uuid.UUID) ([]HuntLog, error) {
	rows, err := st.pool.Query(ctx, `
		SELECT id, outfitter_id, guide_member_id, client_name, outcome, location, created_at
		FROM hunt_logs
		WHERE outfitter_id = $1
		ORDER BY created_at DESC, id DESC
	`, outfitterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanHuntLogs(rows)
}

func (st *PGStore) ListByGuide(ctx context.Context, outfitterID, guideMemberID uuid.UUID) ([]HuntLog, error) {
	rows, err := st.pool.Query(ctx, `
		SELECT id, outfitter_id, guide_member_id, client_name, outcome, location, created_at
		FROM hunt_logs
		WHERE outfitter_id = $1 AND guide_member_id = $2
		ORDER BY created_at DESC, id DESC
	`, outfitterID, guideMemberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanHuntLogs(rows)
}

func scanHuntLogs(rows pgx.Rows) ([]HuntLog, error) {
	logs := []HuntLog{}
	for rows.Next() {
		var hl HuntLog
		if err := rows.Scan(&hl.ID, &hl.OutfitterID, &hl.GuideMemberID, &hl.ClientName, &hl.Outcome, &hl.Location, &hl.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, hl)
	}
	return logs, rows.Err()
}

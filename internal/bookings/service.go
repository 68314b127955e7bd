package bookings

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/wildcommand/wildcommand/internal/mailer"
)

// Service manages bookings and notifies participants by email.
type Service struct {
	pool   *pgxpool.Pool
	sender mailer.Sender
}

func NewService(pool *pgxpool.Pool, sender mailer.Sender) *Service {
	return &Service{pool: pool, sender: sender}
}

// CreateParams contains parameters for creating a booking.
type CreateParams struct {
	OutfitterID        uuid.UUID
	HuntType           string
	Location           string
	HuntDate           time.Time
	StartTime          string
	Notes              string
	CreatedByAccountID uuid.UUID
	Participants       []Participant
}

// Create records a booking with its participants and emails every
// participant that has an address on file. Notification failures do not
// roll back the booking.
func (s *Service) Create(ctx context.Context, params CreateParams) (*Booking, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	booking := &Booking{
		ID:                 uuid.New(),
		OutfitterID:        params.OutfitterID,
		HuntType:           params.HuntType,
		Location:           params.Location,
		HuntDate:           params.HuntDate,
		StartTime:          params.StartTime,
		Notes:              params.Notes,
		CreatedByAccountID: params.CreatedByAccountID,
	}

	query := `
		INSERT INTO bookings (id, outfitter_id, hunt_type, location, hunt_date, start_time, notes, created_by_account_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	err = tx.QueryRow(ctx, query,
		booking.ID, booking.OutfitterID, booking.HuntType, booking.Location,
		booking.HuntDate, booking.StartTime, booking.Notes, booking.CreatedByAccountID,
	).Scan(&booking.CreatedAt, &booking.UpdatedAt)
	if err != nil {
		return nil, err
	}

	for _, p := range params.Participants {
		_, err := tx.Exec(ctx, `
			INSERT INTO booking_participants (booking_id, outfitter_id, role_collection, member_id)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT DO NOTHING
		`, booking.ID, params.OutfitterID, p.RoleCollection, p.MemberID)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23503" { // foreign_key_violation
				return nil, ErrUnknownParticipant
			}
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	booking.Participants, err = s.loadParticipants(ctx, booking.ID)
	if err != nil {
		log.Error().Err(err).Str("booking_id", booking.ID.String()).Msg("Failed to load booking participants")
		booking.Participants = params.Participants
	}

	s.notifyParticipants(ctx, booking, false)

	return booking, nil
}

// Cancel marks a booking cancelled and notifies its participants.
func (s *Service) Cancel(ctx context.Context, outfitterID, bookingID uuid.UUID) (*Booking, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE bookings
		SET cancelled_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND outfitter_id = $2 AND cancelled_at IS NULL
	`, bookingID, outfitterID)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		booking, err := s.Get(ctx, outfitterID, bookingID)
		if err != nil {
			return nil, err
		}
		if booking.CancelledAt != nil {
			return nil, ErrCancelled
		}
		return nil, ErrNotFound
	}

	booking, err := s.Get(ctx, outfitterID, bookingID)
	if err != nil {
		return nil, err
	}

	s.notifyParticipants(ctx, booking, true)

	return booking, nil
}

// Get returns a booking with its participants.
func (s *Service) Get(ctx context.Context, outfitterID, bookingID uuid.UUID) (*Booking, error) {
	query := `
		SELECT id, outfitter_id, hunt_type, location, hunt_date, start_time, notes,
		       created_by_account_id, cancelled_at, created_at, updated_at
		FROM bookings
		WHERE id = $1 AND outfitter_id = $2
	`
	var b Booking
	err := s.pool.QueryRow(ctx, query, bookingID, outfitterID).Scan(
		&b.ID, &b.OutfitterID, &b.HuntType, &b.Location, &b.HuntDate, &b.StartTime,
		&b.Notes, &b.CreatedByAccountID, &b.CancelledAt, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	b.Participants, err = s.loadParticipants(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// ListByOutfitter returns the outfitter's bookings, most recent hunt first.
func (s *Service) ListByOutfitter(ctx context.Context, outfitterID uuid.UUID) ([]Booking, error) {
	query := `
		SELECT id, outfitter_id, hunt_type, location, hunt_date, start_time, notes,
		       created_by_account_id, cancelled_at, created_at, updated_at
		FROM bookings
		WHERE outfitter_id = $1
		ORDER BY hunt_date DESC, created_at DESC
	`
	rows, err := s.pool.Query(ctx, query, outfitterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bookings := []Booking{}
	for rows.Next() {
		var b Booking
		if err := rows.Scan(&b.ID, &b.OutfitterID, &b.HuntType, &b.Location, &b.HuntDate,
			&b.StartTime, &b.Notes, &b.CreatedByAccountID, &b.CancelledAt,
			&b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// ListForMember returns bookings the member participates in.
func (s *Service) ListForMember(ctx context.Context, outfitterID uuid.UUID, roleCollection string, memberID uuid.UUID) ([]Booking, error) {
	query := `
		SELECT b.id, b.outfitter_id, b.hunt_type, b.location, b.hunt_date, b.start_time, b.notes,
		       b.created_by_account_id, b.cancelled_at, b.created_at, b.updated_at
		FROM bookings b
		JOIN booking_participants bp ON bp.booking_id = b.id
		WHERE b.outfitter_id = $1 AND bp.role_collection = $2 AND bp.member_id = $3
		ORDER BY b.hunt_date DESC, b.created_at DESC
	`
	rows, err := s.pool.Query(ctx, query, outfitterID, roleCollection, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bookings := []Booking{}
	for rows.Next() {
		var b Booking
		if err := rows.Scan(&b.ID, &b.OutfitterID, &b.HuntType, &b.Location, &b.HuntDate,
			&b.StartTime, &b.Notes, &b.CreatedByAccountID, &b.CancelledAt,
			&b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func (s *Service) loadParticipants(ctx context.Context, bookingID uuid.UUID) ([]Participant, error) {
	query := `
		SELECT bp.role_collection, bp.member_id, ps.display_name, ps.email
		FROM booking_participants bp
		JOIN profile_stubs ps ON ps.outfitter_id = bp.outfitter_id
			AND ps.role_collection = bp.role_collection
			AND ps.member_id = bp.member_id
		WHERE bp.booking_id = $1
		ORDER BY bp.role_collection, ps.display_name
	`
	rows, err := s.pool.Query(ctx, query, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	participants := []Participant{}
	for rows.Next() {
		var p Participant
		if err := rows.Scan(&p.RoleCollection, &p.MemberID, &p.DisplayName, &p.Email); err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

// notifyParticipants fans the booking email out to every participant with an
// address on file. Failures are logged per recipient and never surfaced.
func (s *Service) notifyParticipants(ctx context.Context, booking *Booking, cancelled bool) {
	date := booking.HuntDate.Format("January 2, 2006")

	var subject, htmlBody string
	if cancelled {
		subject, htmlBody = mailer.CancellationMessage(booking.HuntType, booking.Location, date)
	} else {
		subject, htmlBody = mailer.BookingMessage(booking.HuntType, booking.Location, date, booking.StartTime, booking.Notes)
	}

	for _, p := range booking.Participants {
		if p.Email == "" {
			continue
		}
		if err := s.sender.Send(ctx, p.Email, subject, htmlBody); err != nil {
			log.Error().Err(err).
				Str("booking_id", booking.ID.String()).
				Str("member_id", p.MemberID.String()).
				Msg("Failed to send booking notification")
		}
	}
}

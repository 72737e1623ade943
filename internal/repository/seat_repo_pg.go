package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cchriscode/ticketcore/internal/domain"
)

type SeatRepository interface {
	GetByIDs(ctx context.Context, eventID int64, seatIDs []int64) ([]domain.Seat, error)
	ListByEvent(ctx context.Context, eventID int64) ([]domain.Seat, error)
}

type PGSeatRepository struct {
	db *pgxpool.Pool
}

func NewSeatRepository(db *pgxpool.Pool) SeatRepository {
	return &PGSeatRepository{db: db}
}

// GetByIDs returns the requested seats. Missing ids are an error: a
// reservation attempt against an unknown seat must not partially proceed.
func (r *PGSeatRepository) GetByIDs(ctx context.Context, eventID int64, seatIDs []int64) ([]domain.Seat, error) {
	rows, err := r.db.Query(ctx, `SELECT id, event_id, label, status, fencing_token, locked_by, version, price_cents
		FROM seats WHERE event_id=$1 AND id = ANY($2) ORDER BY id`, eventID, seatIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seats := make([]domain.Seat, 0, len(seatIDs))
	for rows.Next() {
		var s domain.Seat
		if err := rows.Scan(&s.ID, &s.EventID, &s.Label, &s.Status, &s.FencingToken, &s.LockedBy, &s.Version, &s.PriceCents); err != nil {
			return nil, err
		}
		seats = append(seats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(seats) != len(seatIDs) {
		return nil, fmt.Errorf("%d of %d seats unknown for event %d: %w", len(seatIDs)-len(seats), len(seatIDs), eventID, domain.ErrNotFound)
	}
	return seats, nil
}

func (r *PGSeatRepository) ListByEvent(ctx context.Context, eventID int64) ([]domain.Seat, error) {
	rows, err := r.db.Query(ctx, `SELECT id, event_id, label, status, fencing_token, locked_by, version, price_cents
		FROM seats WHERE event_id=$1 ORDER BY label`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seats := make([]domain.Seat, 0)
	for rows.Next() {
		var s domain.Seat
		if err := rows.Scan(&s.ID, &s.EventID, &s.Label, &s.Status, &s.FencingToken, &s.LockedBy, &s.Version, &s.PriceCents); err != nil {
			return nil, err
		}
		seats = append(seats, s)
	}
	return seats, rows.Err()
}

var _ SeatRepository = (*PGSeatRepository)(nil)

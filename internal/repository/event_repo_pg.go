package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cchriscode/ticketcore/internal/domain"
)

type EventRepository interface {
	List(ctx context.Context) ([]domain.Event, error)
	GetByID(ctx context.Context, id int64) (*domain.Event, error)
}

type PGEventRepository struct {
	db *pgxpool.Pool
}

func NewEventRepository(db *pgxpool.Pool) EventRepository {
	return &PGEventRepository{db: db}
}

func (r *PGEventRepository) List(ctx context.Context) ([]domain.Event, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, starts_at, total_seats, available_seats, created_at, updated_at FROM events ORDER BY starts_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]domain.Event, 0)
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.Name, &e.StartsAt, &e.TotalSeats, &e.AvailableSeats, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *PGEventRepository) GetByID(ctx context.Context, id int64) (*domain.Event, error) {
	row := r.db.QueryRow(ctx, `SELECT id, name, starts_at, total_seats, available_seats, created_at, updated_at FROM events WHERE id=$1`, id)
	var e domain.Event
	if err := row.Scan(&e.ID, &e.Name, &e.StartsAt, &e.TotalSeats, &e.AvailableSeats, &e.CreatedAt, &e.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("event %d: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}
	return &e, nil
}

var _ EventRepository = (*PGEventRepository)(nil)

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cchriscode/ticketcore/internal/domain"
)

type ReservationRepository interface {
	CreatePending(ctx context.Context, res *domain.Reservation) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Reservation, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Reservation, error)
	ConfirmPending(ctx context.Context, id uuid.UUID) (*domain.Reservation, bool, error)
	Cancel(ctx context.Context, id uuid.UUID) (*domain.Reservation, bool, error)
	ListExpiredCandidates(ctx context.Context, limit int) ([]uuid.UUID, error)
	ExpireOne(ctx context.Context, id uuid.UUID) (*domain.Reservation, bool, error)
	ListStuckPending(ctx context.Context, olderThan time.Time) ([]domain.Reservation, error)
}

type PGReservationRepository struct {
	db *pgxpool.Pool
}

func NewReservationRepository(db *pgxpool.Pool) ReservationRepository {
	return &PGReservationRepository{db: db}
}

// CreatePending persists the reservation and its items, flips every seated
// item's row AVAILABLE -> LOCKED and decrements the event's inventory, all
// in one transaction. Any seat that is no longer AVAILABLE fails the whole
// call with ErrConflict; no partial reservation is ever persisted.
func (r *PGReservationRepository) CreatePending(ctx context.Context, res *domain.Reservation) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	totalQty := 0
	for i := range res.Items {
		item := &res.Items[i]
		totalQty += item.Quantity
		if item.SeatID == nil {
			continue
		}
		cmd, err := tx.Exec(ctx, `UPDATE seats SET status=$1, locked_by=$2, fencing_token=$3, version=version+1
			WHERE id=$4 AND event_id=$5 AND status=$6`,
			domain.SeatStatusLocked, res.UserID, item.FencingToken, *item.SeatID, res.EventID, domain.SeatStatusAvailable)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return fmt.Errorf("seat %d not available: %w", *item.SeatID, domain.ErrConflict)
		}
	}

	cmd, err := tx.Exec(ctx, `UPDATE events SET available_seats = available_seats - $1, updated_at = now()
		WHERE id=$2 AND available_seats >= $1`, totalQty, res.EventID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("event %d inventory exhausted: %w", res.EventID, domain.ErrConflict)
	}

	res.Status = domain.ReservationStatusPending
	res.PaymentStatus = domain.PaymentStatusPending
	if err := tx.QueryRow(ctx, `INSERT INTO reservations (id, user_id, event_id, status, payment_status, total_cents, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		res.ID, res.UserID, res.EventID, res.Status, res.PaymentStatus, res.TotalCents, res.ExpiresAt).
		Scan(&res.CreatedAt, &res.UpdatedAt); err != nil {
		return err
	}

	for i := range res.Items {
		item := &res.Items[i]
		item.ReservationID = res.ID
		if err := tx.QueryRow(ctx, `INSERT INTO reservation_items (reservation_id, seat_id, sku, quantity, unit_cents, fencing_token)
			VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			item.ReservationID, item.SeatID, item.SKU, item.Quantity, item.UnitCents, item.FencingToken).
			Scan(&item.ID); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *PGReservationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	res, err := scanReservation(r.db.QueryRow(ctx, `SELECT id, user_id, event_id, status, payment_status, total_cents, expires_at, created_at, updated_at
		FROM reservations WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("reservation %s: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}

	items, err := r.loadItems(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	res.Items = items
	return res, nil
}

func (r *PGReservationRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Reservation, error) {
	rows, err := r.db.Query(ctx, `SELECT id, user_id, event_id, status, payment_status, total_cents, expires_at, created_at, updated_at
		FROM reservations WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Reservation, 0)
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

// ConfirmPending is the commit point of the state machine. The status flip
// is a compare-and-set on status=PENDING so a concurrent cancel or expiry
// resolves to exactly one winner; the loser sees zero rows. Seated items
// move LOCKED -> RESERVED guarded by holder and fencing token in the same
// transaction. Returns the updated reservation and whether this call
// performed the transition (false means it was already CONFIRMED).
func (r *PGReservationRepository) ConfirmPending(ctx context.Context, id uuid.UUID) (*domain.Reservation, bool, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	res, err := scanReservation(tx.QueryRow(ctx, `UPDATE reservations SET status=$1, payment_status=$2, updated_at=now()
		WHERE id=$3 AND status=$4
		RETURNING id, user_id, event_id, status, payment_status, total_cents, expires_at, created_at, updated_at`,
		domain.ReservationStatusConfirmed, domain.PaymentStatusCompleted, id, domain.ReservationStatusPending))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r.settleNoTransition(ctx, id)
		}
		return nil, false, err
	}

	items, err := r.loadItems(ctx, tx, id)
	if err != nil {
		return nil, false, err
	}
	res.Items = items

	for _, item := range items {
		if item.SeatID == nil {
			continue
		}
		cmd, err := tx.Exec(ctx, `UPDATE seats SET status=$1, version=version+1
			WHERE id=$2 AND status=$3 AND locked_by=$4 AND fencing_token=$5`,
			domain.SeatStatusReserved, *item.SeatID, domain.SeatStatusLocked, res.UserID, item.FencingToken)
		if err != nil {
			return nil, false, err
		}
		if cmd.RowsAffected() == 0 {
			return nil, false, fmt.Errorf("seat %d no longer held under token %d: %w", *item.SeatID, item.FencingToken, domain.ErrConflict)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return res, true, nil
}

// settleNoTransition resolves a failed CAS: already CONFIRMED is the
// idempotent success path, terminal CANCELLED/EXPIRED is a conflict.
func (r *PGReservationRepository) settleNoTransition(ctx context.Context, id uuid.UUID) (*domain.Reservation, bool, error) {
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if current.Status == domain.ReservationStatusConfirmed {
		return current, false, nil
	}
	return nil, false, fmt.Errorf("reservation %s is %s: %w", id, current.Status, domain.ErrConflict)
}

// Cancel moves PENDING or CONFIRMED to CANCELLED, refunding a completed
// payment, returning seats to AVAILABLE and restoring inventory. Returns
// whether this call performed the transition.
func (r *PGReservationRepository) Cancel(ctx context.Context, id uuid.UUID) (*domain.Reservation, bool, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	res, err := scanReservation(tx.QueryRow(ctx, `UPDATE reservations SET status=$1,
			payment_status = CASE WHEN payment_status=$2 THEN $3 ELSE payment_status END,
			updated_at=now()
		WHERE id=$4 AND status IN ($5, $6)
		RETURNING id, user_id, event_id, status, payment_status, total_cents, expires_at, created_at, updated_at`,
		domain.ReservationStatusCancelled, domain.PaymentStatusCompleted, domain.PaymentStatusRefunded,
		id, domain.ReservationStatusPending, domain.ReservationStatusConfirmed))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			current, getErr := r.GetByID(ctx, id)
			if getErr != nil {
				return nil, false, getErr
			}
			if current.Status == domain.ReservationStatusCancelled {
				return current, false, nil
			}
			return nil, false, fmt.Errorf("reservation %s is %s: %w", id, current.Status, domain.ErrConflict)
		}
		return nil, false, err
	}

	if err := r.releaseResources(ctx, tx, res); err != nil {
		return nil, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return res, true, nil
}

func (r *PGReservationRepository) ListExpiredCandidates(ctx context.Context, limit int) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM reservations WHERE status=$1 AND expires_at <= now() LIMIT $2`,
		domain.ReservationStatusPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ExpireOne expires a single overdue reservation. SKIP LOCKED makes a row
// claimed by another sweep instance invisible here, so two concurrent
// sweeps expire each reservation exactly once. Returns false when the row
// was claimed elsewhere or is no longer an overdue PENDING.
func (r *PGReservationRepository) ExpireOne(ctx context.Context, id uuid.UUID) (*domain.Reservation, bool, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	res, err := scanReservation(tx.QueryRow(ctx, `SELECT id, user_id, event_id, status, payment_status, total_cents, expires_at, created_at, updated_at
		FROM reservations WHERE id=$1 AND status=$2 AND expires_at <= now()
		FOR UPDATE SKIP LOCKED`, id, domain.ReservationStatusPending))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	if err := r.releaseResources(ctx, tx, res); err != nil {
		return nil, false, err
	}

	if _, err := tx.Exec(ctx, `UPDATE reservations SET status=$1, updated_at=now() WHERE id=$2`,
		domain.ReservationStatusExpired, id); err != nil {
		return nil, false, err
	}
	res.Status = domain.ReservationStatusExpired

	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return res, true, nil
}

func (r *PGReservationRepository) ListStuckPending(ctx context.Context, olderThan time.Time) ([]domain.Reservation, error) {
	rows, err := r.db.Query(ctx, `SELECT id, user_id, event_id, status, payment_status, total_cents, expires_at, created_at, updated_at
		FROM reservations WHERE status=$1 AND created_at <= $2 AND expires_at > now()
		ORDER BY created_at`, domain.ReservationStatusPending, olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Reservation, 0)
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

// releaseResources returns the reservation's seats to AVAILABLE with a
// version bump and restores the event inventory. Runs inside the caller's
// transaction; loads items as a side effect.
func (r *PGReservationRepository) releaseResources(ctx context.Context, tx pgx.Tx, res *domain.Reservation) error {
	items, err := r.loadItems(ctx, tx, res.ID)
	if err != nil {
		return err
	}
	res.Items = items

	totalQty := 0
	for _, item := range items {
		totalQty += item.Quantity
		if item.SeatID == nil {
			continue
		}
		if _, err := tx.Exec(ctx, `UPDATE seats SET status=$1, locked_by=NULL, version=version+1
			WHERE id=$2 AND status IN ($3, $4)`,
			domain.SeatStatusAvailable, *item.SeatID, domain.SeatStatusLocked, domain.SeatStatusReserved); err != nil {
			return err
		}
	}

	_, err = tx.Exec(ctx, `UPDATE events SET available_seats = available_seats + $1, updated_at = now() WHERE id=$2`,
		totalQty, res.EventID)
	return err
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *PGReservationRepository) loadItems(ctx context.Context, q queryer, id uuid.UUID) ([]domain.ReservationItem, error) {
	rows, err := q.Query(ctx, `SELECT id, reservation_id, seat_id, sku, quantity, unit_cents, fencing_token
		FROM reservation_items WHERE reservation_id=$1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.ReservationItem
	for rows.Next() {
		var item domain.ReservationItem
		if err := rows.Scan(&item.ID, &item.ReservationID, &item.SeatID, &item.SKU, &item.Quantity, &item.UnitCents, &item.FencingToken); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanReservation(row pgx.Row) (*domain.Reservation, error) {
	var res domain.Reservation
	if err := row.Scan(&res.ID, &res.UserID, &res.EventID, &res.Status, &res.PaymentStatus,
		&res.TotalCents, &res.ExpiresAt, &res.CreatedAt, &res.UpdatedAt); err != nil {
		return nil, err
	}
	return &res, nil
}

var _ ReservationRepository = (*PGReservationRepository)(nil)

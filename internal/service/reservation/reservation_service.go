package reservation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cchriscode/ticketcore/internal/domain"
	"github.com/cchriscode/ticketcore/internal/metrics"
	"github.com/cchriscode/ticketcore/internal/payment"
	"github.com/cchriscode/ticketcore/internal/repository"
)

type ReservationUseCase interface {
	Create(ctx context.Context, input CreateInput) (*domain.Reservation, error)
	Confirm(ctx context.Context, id uuid.UUID, method string) (*domain.Reservation, error)
	Cancel(ctx context.Context, id uuid.UUID) (*domain.Reservation, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Reservation, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Reservation, error)
	ExpireOverdue(ctx context.Context) (int, error)
	Reconcile(ctx context.Context, grace time.Duration) (int, error)
}

// LockManager is the distributed per-seat lock with fencing tokens.
type LockManager interface {
	Acquire(ctx context.Context, eventID, seatID int64, holder string, ttl time.Duration) (bool, int64, error)
	Release(ctx context.Context, eventID, seatID int64, holder string, token int64) (bool, error)
	Verify(ctx context.Context, eventID, seatID int64, holder string, token int64) (bool, error)
	Cleanup(ctx context.Context, eventID, seatID int64) error
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

// BonusAwarder grants loyalty points after a confirmation. Best-effort:
// a failed award never rolls back the confirmation.
type BonusAwarder interface {
	Award(ctx context.Context, userID uuid.UUID, amountCents int64) error
}

type CreateInput struct {
	UserID           uuid.UUID
	EventID          int64
	SeatIDs          []int64
	GeneralItems     []GeneralItem
	PaymentReference string
}

// GeneralItem is non-seated inventory (general admission SKUs).
type GeneralItem struct {
	SKU       string
	Quantity  int
	UnitCents int64
}

type Service struct {
	reservations repository.ReservationRepository
	seats        repository.SeatRepository
	locks        LockManager
	payments     payment.Client
	producer     Producer
	topic        string
	lockTTL      time.Duration
	lease        time.Duration
	bonus        BonusAwarder
	log          zerolog.Logger
}

type Option func(*Service)

func WithBonusAwarder(b BonusAwarder) Option {
	return func(s *Service) { s.bonus = b }
}

func NewService(
	reservations repository.ReservationRepository,
	seats repository.SeatRepository,
	locks LockManager,
	payments payment.Client,
	producer Producer,
	topic string,
	lockTTL, lease time.Duration,
	log zerolog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		reservations: reservations,
		seats:        seats,
		locks:        locks,
		payments:     payments,
		producer:     producer,
		topic:        topic,
		lockTTL:      lockTTL,
		lease:        lease,
		log:          log.With().Str("component", "reservation").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create acquires a lock per requested seat and persists a PENDING
// reservation. Partial acquisition is rolled back in full: either every
// seat is locked and the reservation exists, or nothing is held.
func (s *Service) Create(ctx context.Context, input CreateInput) (*domain.Reservation, error) {
	if len(input.SeatIDs) == 0 && len(input.GeneralItems) == 0 {
		return nil, fmt.Errorf("empty reservation: %w", domain.ErrConflict)
	}

	seats, err := s.seats.GetByIDs(ctx, input.EventID, input.SeatIDs)
	if err != nil {
		return nil, err
	}

	var total int64
	items := make([]domain.ReservationItem, 0, len(seats)+len(input.GeneralItems))
	for _, seat := range seats {
		seatID := seat.ID
		total += seat.PriceCents
		items = append(items, domain.ReservationItem{
			SeatID:       &seatID,
			SKU:          fmt.Sprintf("seat-%s", seat.Label),
			Quantity:     1,
			UnitCents:    seat.PriceCents,
			FencingToken: domain.InvalidFencingToken,
		})
	}
	for _, g := range input.GeneralItems {
		total += g.UnitCents * int64(g.Quantity)
		items = append(items, domain.ReservationItem{
			SKU:          g.SKU,
			Quantity:     g.Quantity,
			UnitCents:    g.UnitCents,
			FencingToken: domain.InvalidFencingToken,
		})
	}

	if input.PaymentReference != "" {
		validation, err := s.payments.Validate(ctx, input.PaymentReference, input.UserID.String())
		if err != nil {
			return nil, err
		}
		if validation.TotalCents != total {
			return nil, fmt.Errorf("amount mismatch: expected %d, authorized %d: %w",
				total, validation.TotalCents, domain.ErrConflict)
		}
	}

	holder := input.UserID.String()
	acquired := make([]domain.ReservationItem, 0, len(items))
	for i := range items {
		item := &items[i]
		if item.SeatID == nil {
			continue
		}
		granted, token, err := s.locks.Acquire(ctx, input.EventID, *item.SeatID, holder, s.lockTTL)
		if err != nil || !granted {
			s.releaseAll(ctx, input.EventID, holder, acquired)
			if err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("seat %d is held by another session: %w", *item.SeatID, domain.ErrConflict)
		}
		item.FencingToken = token
		acquired = append(acquired, *item)
	}

	res := &domain.Reservation{
		ID:         uuid.New(),
		UserID:     input.UserID,
		EventID:    input.EventID,
		TotalCents: total,
		ExpiresAt:  time.Now().Add(s.lease),
		Items:      items,
	}

	if err := s.reservations.CreatePending(ctx, res); err != nil {
		s.releaseAll(ctx, input.EventID, holder, acquired)
		return nil, err
	}

	s.publish(ctx, domain.EventReservationCreated, res, "")
	return res, nil
}

// Confirm is the irreversible commit. Every held lock is re-verified
// first: a lease lost to TTL or taken over by a later acquirer aborts
// with a conflict, so two parties can never both win one seat. Calling
// Confirm on an already-CONFIRMED reservation is a success no-op.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID, method string) (*domain.Reservation, error) {
	current, err := s.reservations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == domain.ReservationStatusConfirmed {
		return current, nil
	}
	if current.Status != domain.ReservationStatusPending {
		return nil, fmt.Errorf("reservation %s is %s: %w", id, current.Status, domain.ErrConflict)
	}

	holder := current.UserID.String()
	for _, item := range current.Items {
		if item.SeatID == nil {
			continue
		}
		ok, err := s.locks.Verify(ctx, current.EventID, *item.SeatID, holder, item.FencingToken)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("lock on seat %d lost before commit: %w", *item.SeatID, domain.ErrConflict)
		}
	}

	confirmed, transitioned, err := s.reservations.ConfirmPending(ctx, id)
	if err != nil {
		return nil, err
	}
	if !transitioned {
		// A concurrent confirm won the CAS; same terminal state, no second event.
		return confirmed, nil
	}

	s.releaseAll(ctx, confirmed.EventID, holder, confirmed.Items)

	s.publish(ctx, domain.EventReservationConfirmed, confirmed, method)

	if s.bonus != nil {
		if err := s.bonus.Award(ctx, confirmed.UserID, confirmed.TotalCents); err != nil {
			s.log.Warn().Err(err).Stringer("reservation_id", id).Msg("bonus award failed")
		}
	}

	return confirmed, nil
}

// Cancel moves the reservation to CANCELLED, refunding a completed
// payment, and releases whatever locks are still held. Cancelling an
// already-cancelled reservation is a success no-op.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	cancelled, transitioned, err := s.reservations.Cancel(ctx, id)
	if err != nil {
		return nil, err
	}
	if !transitioned {
		return cancelled, nil
	}

	s.releaseAll(ctx, cancelled.EventID, cancelled.UserID.String(), cancelled.Items)
	s.publish(ctx, domain.EventReservationCancelled, cancelled, "")
	return cancelled, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	return s.reservations.GetByID(ctx, id)
}

func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Reservation, error) {
	return s.reservations.ListByUser(ctx, userID)
}

const expiryBatchSize = 100

// ExpireOverdue expires PENDING reservations past their lease. Each
// reservation is its own transaction behind SKIP LOCKED, so concurrent
// sweep instances split the batch instead of double-processing it, and a
// failure on one reservation never aborts the rest.
func (s *Service) ExpireOverdue(ctx context.Context) (int, error) {
	candidates, err := s.reservations.ListExpiredCandidates(ctx, expiryBatchSize)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, id := range candidates {
		res, ok, err := s.reservations.ExpireOne(ctx, id)
		if err != nil {
			metrics.RecordSweepError("expiry")
			s.log.Error().Err(err).Stringer("reservation_id", id).Msg("expire failed, skipping")
			continue
		}
		if !ok {
			continue
		}
		expired++

		// The reservation is dead; drop its locks unconditionally. A
		// failed delete is reclaimed by the lock TTL.
		for _, item := range res.Items {
			if item.SeatID == nil {
				continue
			}
			if err := s.locks.Cleanup(ctx, res.EventID, *item.SeatID); err != nil {
				s.log.Warn().Err(err).Int64("seat_id", *item.SeatID).Msg("lock cleanup failed, ttl will reclaim")
			}
		}
	}

	metrics.RecordExpired(expired)
	return expired, nil
}

// Reconcile repairs reservations left PENDING by a lost confirmation
// event. The payment collaborator is the system of record: when it
// reports a completed charge, the reservation is driven through the same
// Confirm path the event route uses. No duplicate charge is possible as
// this is a read-repair, never a new payment.
func (s *Service) Reconcile(ctx context.Context, grace time.Duration) (int, error) {
	stuck, err := s.reservations.ListStuckPending(ctx, time.Now().Add(-grace))
	if err != nil {
		return 0, err
	}

	reconciled := 0
	for _, res := range stuck {
		status, err := s.payments.GetStatus(ctx, res.ID.String())
		if err != nil {
			metrics.RecordSweepError("reconcile")
			s.log.Warn().Err(err).Stringer("reservation_id", res.ID).Msg("payment status lookup failed, skipping")
			continue
		}
		if !status.Found || status.Status != payment.StatusCompleted {
			continue
		}

		if _, err := s.Confirm(ctx, res.ID, status.Method); err != nil {
			metrics.RecordSweepError("reconcile")
			s.log.Error().Err(err).Stringer("reservation_id", res.ID).Msg("reconcile confirm failed, skipping")
			continue
		}
		reconciled++
		metrics.RecordReconciled()
	}

	return reconciled, nil
}

// releaseAll drops held locks best-effort. Failures are logged, never
// fatal: the lock TTL is the backstop.
func (s *Service) releaseAll(ctx context.Context, eventID int64, holder string, items []domain.ReservationItem) {
	for _, item := range items {
		if item.SeatID == nil || item.FencingToken == domain.InvalidFencingToken {
			continue
		}
		if _, err := s.locks.Release(ctx, eventID, *item.SeatID, holder, item.FencingToken); err != nil {
			s.log.Warn().Err(err).Int64("seat_id", *item.SeatID).Msg("lock release failed, ttl will reclaim")
		}
	}
}

// publish emits the saga event for a committed transition. A publish
// failure is logged and absorbed: the local transition is already
// durable and the reconciliation sweep is the delivery backstop.
func (s *Service) publish(ctx context.Context, eventType string, res *domain.Reservation, reason string) {
	if s.producer == nil || s.topic == "" {
		return
	}

	subjects := make([]string, 0, len(res.Items)+1)
	subjects = append(subjects, res.UserID.String())
	for _, item := range res.Items {
		if item.SeatID != nil {
			subjects = append(subjects, strconv.FormatInt(*item.SeatID, 10))
		}
	}

	event := domain.DomainEvent{
		Type:          eventType,
		CorrelationID: res.ID.String(),
		SubjectIDs:    subjects,
		AmountCents:   res.TotalCents,
		Reason:        reason,
		Timestamp:     time.Now(),
	}
	if err := s.producer.Publish(ctx, s.topic, event.CorrelationID, event); err != nil {
		s.log.Warn().Err(err).Str("type", eventType).Stringer("reservation_id", res.ID).Msg("event publish failed")
	}
}

var _ ReservationUseCase = (*Service)(nil)

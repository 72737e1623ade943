package reservation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cchriscode/ticketcore/internal/domain"
	"github.com/cchriscode/ticketcore/internal/payment"
)

type MockReservationRepository struct {
	mock.Mock
}

func (m *MockReservationRepository) CreatePending(ctx context.Context, res *domain.Reservation) error {
	args := m.Called(ctx, res)
	return args.Error(0)
}

func (m *MockReservationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Reservation), args.Error(1)
}

func (m *MockReservationRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Reservation, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]domain.Reservation), args.Error(1)
}

func (m *MockReservationRepository) ConfirmPending(ctx context.Context, id uuid.UUID) (*domain.Reservation, bool, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*domain.Reservation), args.Bool(1), args.Error(2)
}

func (m *MockReservationRepository) Cancel(ctx context.Context, id uuid.UUID) (*domain.Reservation, bool, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*domain.Reservation), args.Bool(1), args.Error(2)
}

func (m *MockReservationRepository) ListExpiredCandidates(ctx context.Context, limit int) ([]uuid.UUID, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockReservationRepository) ExpireOne(ctx context.Context, id uuid.UUID) (*domain.Reservation, bool, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*domain.Reservation), args.Bool(1), args.Error(2)
}

func (m *MockReservationRepository) ListStuckPending(ctx context.Context, olderThan time.Time) ([]domain.Reservation, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).([]domain.Reservation), args.Error(1)
}

type MockSeatRepository struct {
	mock.Mock
}

func (m *MockSeatRepository) GetByIDs(ctx context.Context, eventID int64, seatIDs []int64) ([]domain.Seat, error) {
	args := m.Called(ctx, eventID, seatIDs)
	return args.Get(0).([]domain.Seat), args.Error(1)
}

func (m *MockSeatRepository) ListByEvent(ctx context.Context, eventID int64) ([]domain.Seat, error) {
	args := m.Called(ctx, eventID)
	return args.Get(0).([]domain.Seat), args.Error(1)
}

type MockLockManager struct {
	mock.Mock
}

func (m *MockLockManager) Acquire(ctx context.Context, eventID, seatID int64, holder string, ttl time.Duration) (bool, int64, error) {
	args := m.Called(ctx, eventID, seatID, holder, ttl)
	return args.Bool(0), args.Get(1).(int64), args.Error(2)
}

func (m *MockLockManager) Release(ctx context.Context, eventID, seatID int64, holder string, token int64) (bool, error) {
	args := m.Called(ctx, eventID, seatID, holder, token)
	return args.Bool(0), args.Error(1)
}

func (m *MockLockManager) Verify(ctx context.Context, eventID, seatID int64, holder string, token int64) (bool, error) {
	args := m.Called(ctx, eventID, seatID, holder, token)
	return args.Bool(0), args.Error(1)
}

func (m *MockLockManager) Cleanup(ctx context.Context, eventID, seatID int64) error {
	args := m.Called(ctx, eventID, seatID)
	return args.Error(0)
}

type MockPaymentClient struct {
	mock.Mock
}

func (m *MockPaymentClient) Validate(ctx context.Context, referenceID, userID string) (*payment.ValidationResult, error) {
	args := m.Called(ctx, referenceID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.ValidationResult), args.Error(1)
}

func (m *MockPaymentClient) GetStatus(ctx context.Context, reservationID string) (*payment.StatusResult, error) {
	args := m.Called(ctx, reservationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.StatusResult), args.Error(1)
}

type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) Publish(ctx context.Context, topic, key string, value interface{}) error {
	args := m.Called(ctx, topic, key, value)
	return args.Error(0)
}

type MockBonusAwarder struct {
	mock.Mock
}

func (m *MockBonusAwarder) Award(ctx context.Context, userID uuid.UUID, amountCents int64) error {
	args := m.Called(ctx, userID, amountCents)
	return args.Error(0)
}

type fixture struct {
	reservations *MockReservationRepository
	seats        *MockSeatRepository
	locks        *MockLockManager
	payments     *MockPaymentClient
	producer     *MockProducer
	bonus        *MockBonusAwarder
	service      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		reservations: &MockReservationRepository{},
		seats:        &MockSeatRepository{},
		locks:        &MockLockManager{},
		payments:     &MockPaymentClient{},
		producer:     &MockProducer{},
		bonus:        &MockBonusAwarder{},
	}
	f.service = NewService(
		f.reservations, f.seats, f.locks, f.payments, f.producer,
		"reservation-lifecycle", 5*time.Minute, 10*time.Minute,
		zerolog.Nop(),
		WithBonusAwarder(f.bonus),
	)
	return f
}

func seatPtr(id int64) *int64 { return &id }

func pendingReservation(userID uuid.UUID, token int64) *domain.Reservation {
	return &domain.Reservation{
		ID:         uuid.New(),
		UserID:     userID,
		EventID:    1,
		Status:     domain.ReservationStatusPending,
		TotalCents: 50000,
		ExpiresAt:  time.Now().Add(10 * time.Minute),
		Items: []domain.ReservationItem{
			{SeatID: seatPtr(42), SKU: "seat-A1", Quantity: 1, UnitCents: 50000, FencingToken: token},
		},
	}
}

func TestService_Create_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	f.seats.On("GetByIDs", ctx, int64(1), []int64{42}).Return([]domain.Seat{
		{ID: 42, EventID: 1, Label: "A1", Status: domain.SeatStatusAvailable, PriceCents: 50000},
	}, nil)
	f.payments.On("Validate", ctx, "ref-1", userID.String()).Return(&payment.ValidationResult{TotalCents: 50000}, nil)
	f.locks.On("Acquire", ctx, int64(1), int64(42), userID.String(), 5*time.Minute).Return(true, int64(1), nil)
	f.reservations.On("CreatePending", ctx, mock.AnythingOfType("*domain.Reservation")).Return(nil)
	f.producer.On("Publish", ctx, "reservation-lifecycle", mock.Anything, mock.Anything).Return(nil)

	res, err := f.service.Create(ctx, CreateInput{
		UserID:           userID,
		EventID:          1,
		SeatIDs:          []int64{42},
		PaymentReference: "ref-1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(50000), res.TotalCents)
	require.Len(t, res.Items, 1)
	assert.Equal(t, int64(1), res.Items[0].FencingToken)

	f.reservations.AssertExpectations(t)
	f.locks.AssertExpectations(t)
	f.producer.AssertExpectations(t)
}

func TestService_Create_SecondSeatContended_RollsBackFirstLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	f.seats.On("GetByIDs", ctx, int64(1), []int64{42, 43}).Return([]domain.Seat{
		{ID: 42, EventID: 1, Label: "A1", PriceCents: 25000},
		{ID: 43, EventID: 1, Label: "A2", PriceCents: 25000},
	}, nil)
	f.locks.On("Acquire", ctx, int64(1), int64(42), userID.String(), mock.Anything).Return(true, int64(7), nil)
	f.locks.On("Acquire", ctx, int64(1), int64(43), userID.String(), mock.Anything).Return(false, int64(0), nil)
	f.locks.On("Release", ctx, int64(1), int64(42), userID.String(), int64(7)).Return(true, nil)

	_, err := f.service.Create(ctx, CreateInput{UserID: userID, EventID: 1, SeatIDs: []int64{42, 43}})
	assert.ErrorIs(t, err, domain.ErrConflict)

	f.locks.AssertExpectations(t)
	f.reservations.AssertNotCalled(t, "CreatePending", mock.Anything, mock.Anything)
}

func TestService_Create_AmountMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	f.seats.On("GetByIDs", ctx, int64(1), []int64{42}).Return([]domain.Seat{
		{ID: 42, EventID: 1, Label: "A1", PriceCents: 50000},
	}, nil)
	f.payments.On("Validate", ctx, "ref-1", userID.String()).Return(&payment.ValidationResult{TotalCents: 10000}, nil)

	_, err := f.service.Create(ctx, CreateInput{
		UserID: userID, EventID: 1, SeatIDs: []int64{42}, PaymentReference: "ref-1",
	})
	assert.ErrorIs(t, err, domain.ErrConflict)
	f.locks.AssertNotCalled(t, "Acquire", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestService_Create_PersistFailureReleasesLocks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	f.seats.On("GetByIDs", ctx, int64(1), []int64{42}).Return([]domain.Seat{
		{ID: 42, EventID: 1, Label: "A1", PriceCents: 50000},
	}, nil)
	f.locks.On("Acquire", ctx, int64(1), int64(42), userID.String(), mock.Anything).Return(true, int64(3), nil)
	f.reservations.On("CreatePending", ctx, mock.Anything).Return(errors.New("db down"))
	f.locks.On("Release", ctx, int64(1), int64(42), userID.String(), int64(3)).Return(true, nil)

	_, err := f.service.Create(ctx, CreateInput{UserID: userID, EventID: 1, SeatIDs: []int64{42}})
	assert.Error(t, err)
	f.locks.AssertExpectations(t)
}

func TestService_Confirm_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	pending := pendingReservation(userID, 1)

	confirmed := *pending
	confirmed.Status = domain.ReservationStatusConfirmed
	confirmed.PaymentStatus = domain.PaymentStatusCompleted

	f.reservations.On("GetByID", ctx, pending.ID).Return(pending, nil)
	f.locks.On("Verify", ctx, int64(1), int64(42), userID.String(), int64(1)).Return(true, nil)
	f.reservations.On("ConfirmPending", ctx, pending.ID).Return(&confirmed, true, nil)
	f.locks.On("Release", ctx, int64(1), int64(42), userID.String(), int64(1)).Return(true, nil)
	f.producer.On("Publish", ctx, "reservation-lifecycle", pending.ID.String(), mock.Anything).Return(nil)
	f.bonus.On("Award", ctx, userID, int64(50000)).Return(nil)

	res, err := f.service.Confirm(ctx, pending.ID, "card")
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusConfirmed, res.Status)
	assert.Equal(t, domain.PaymentStatusCompleted, res.PaymentStatus)

	f.locks.AssertExpectations(t)
	f.producer.AssertExpectations(t)
	f.bonus.AssertExpectations(t)
}

func TestService_Confirm_IdempotentOnConfirmed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	confirmed := pendingReservation(userID, 1)
	confirmed.Status = domain.ReservationStatusConfirmed
	confirmed.PaymentStatus = domain.PaymentStatusCompleted

	f.reservations.On("GetByID", ctx, confirmed.ID).Return(confirmed, nil)

	res, err := f.service.Confirm(ctx, confirmed.ID, "card")
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusConfirmed, res.Status)

	// No re-verification, no second event, no double bonus.
	f.locks.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.producer.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.bonus.AssertNotCalled(t, "Award", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_Confirm_StolenLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	pending := pendingReservation(userID, 1)

	f.reservations.On("GetByID", ctx, pending.ID).Return(pending, nil)
	// Another session acquired token 2 after this lease lapsed.
	f.locks.On("Verify", ctx, int64(1), int64(42), userID.String(), int64(1)).Return(false, nil)

	_, err := f.service.Confirm(ctx, pending.ID, "card")
	assert.ErrorIs(t, err, domain.ErrConflict)
	f.reservations.AssertNotCalled(t, "ConfirmPending", mock.Anything, mock.Anything)
}

func TestService_Confirm_BonusFailureDoesNotRollBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	pending := pendingReservation(userID, 1)

	confirmed := *pending
	confirmed.Status = domain.ReservationStatusConfirmed
	confirmed.PaymentStatus = domain.PaymentStatusCompleted

	f.reservations.On("GetByID", ctx, pending.ID).Return(pending, nil)
	f.locks.On("Verify", ctx, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(true, nil)
	f.reservations.On("ConfirmPending", ctx, pending.ID).Return(&confirmed, true, nil)
	f.locks.On("Release", ctx, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(true, nil)
	f.producer.On("Publish", ctx, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.bonus.On("Award", ctx, userID, int64(50000)).Return(errors.New("loyalty service down"))

	res, err := f.service.Confirm(ctx, pending.ID, "card")
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusConfirmed, res.Status)
}

func TestService_Cancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	res := pendingReservation(userID, 1)

	cancelled := *res
	cancelled.Status = domain.ReservationStatusCancelled
	cancelled.PaymentStatus = domain.PaymentStatusRefunded

	f.reservations.On("Cancel", ctx, res.ID).Return(&cancelled, true, nil)
	f.locks.On("Release", ctx, int64(1), int64(42), userID.String(), int64(1)).Return(true, nil)
	f.producer.On("Publish", ctx, "reservation-lifecycle", res.ID.String(), mock.Anything).Return(nil)

	out, err := f.service.Cancel(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusCancelled, out.Status)
	assert.Equal(t, domain.PaymentStatusRefunded, out.PaymentStatus)
	f.locks.AssertExpectations(t)
}

func TestService_Cancel_AlreadyCancelledIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := pendingReservation(uuid.New(), 1)
	res.Status = domain.ReservationStatusCancelled

	f.reservations.On("Cancel", ctx, res.ID).Return(res, false, nil)

	out, err := f.service.Cancel(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusCancelled, out.Status)
	f.producer.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestService_ExpireOverdue_SkipsFailedItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	good := pendingReservation(userID, 1)
	good.Status = domain.ReservationStatusExpired
	badID := uuid.New()

	f.reservations.On("ListExpiredCandidates", ctx, expiryBatchSize).Return([]uuid.UUID{good.ID, badID}, nil)
	f.reservations.On("ExpireOne", ctx, good.ID).Return(good, true, nil)
	f.reservations.On("ExpireOne", ctx, badID).Return(nil, false, errors.New("deadlock"))
	f.locks.On("Cleanup", ctx, int64(1), int64(42)).Return(nil)

	expired, err := f.service.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, expired, "a failed reservation must not abort the sweep")
	f.locks.AssertExpectations(t)
}

func TestService_ExpireOverdue_ClaimedElsewhereNotCounted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := uuid.New()

	f.reservations.On("ListExpiredCandidates", ctx, expiryBatchSize).Return([]uuid.UUID{id}, nil)
	// Another sweep instance holds the row; SKIP LOCKED hides it here.
	f.reservations.On("ExpireOne", ctx, id).Return(nil, false, nil)

	expired, err := f.service.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, expired)
	f.locks.AssertNotCalled(t, "Cleanup", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_Reconcile_DrivesStuckReservationToConfirmed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	stuck := pendingReservation(userID, 1)

	confirmed := *stuck
	confirmed.Status = domain.ReservationStatusConfirmed
	confirmed.PaymentStatus = domain.PaymentStatusCompleted

	f.reservations.On("ListStuckPending", ctx, mock.AnythingOfType("time.Time")).Return([]domain.Reservation{*stuck}, nil)
	f.payments.On("GetStatus", ctx, stuck.ID.String()).Return(&payment.StatusResult{Found: true, Status: payment.StatusCompleted, Method: "transfer"}, nil)
	f.reservations.On("GetByID", ctx, stuck.ID).Return(stuck, nil)
	f.locks.On("Verify", ctx, int64(1), int64(42), userID.String(), int64(1)).Return(true, nil)
	f.reservations.On("ConfirmPending", ctx, stuck.ID).Return(&confirmed, true, nil)
	f.locks.On("Release", ctx, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(true, nil)
	f.producer.On("Publish", ctx, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.bonus.On("Award", ctx, userID, int64(50000)).Return(nil)

	reconciled, err := f.service.Reconcile(ctx, 2*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, reconciled)
	f.reservations.AssertExpectations(t)
}

func TestService_Reconcile_PaymentStillPendingIsSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stuck := pendingReservation(uuid.New(), 1)

	f.reservations.On("ListStuckPending", ctx, mock.AnythingOfType("time.Time")).Return([]domain.Reservation{*stuck}, nil)
	f.payments.On("GetStatus", ctx, stuck.ID.String()).Return(&payment.StatusResult{Found: true, Status: payment.StatusPending}, nil)

	reconciled, err := f.service.Reconcile(ctx, 2*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, reconciled)
	f.reservations.AssertNotCalled(t, "ConfirmPending", mock.Anything, mock.Anything)
}

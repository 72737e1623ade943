package domain

import (
	"time"

	"github.com/google/uuid"
)

type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "PENDING"
	ReservationStatusConfirmed ReservationStatus = "CONFIRMED"
	ReservationStatusCancelled ReservationStatus = "CANCELLED"
	ReservationStatusExpired   ReservationStatus = "EXPIRED"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

type Reservation struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	EventID       int64
	Status        ReservationStatus
	PaymentStatus PaymentStatus
	TotalCents    int64
	ExpiresAt     time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Items         []ReservationItem
}

// ReservationItem is a line of a reservation. SeatID is nil for
// non-seated inventory (general admission SKUs).
type ReservationItem struct {
	ID            int64
	ReservationID uuid.UUID
	SeatID        *int64
	SKU           string
	Quantity      int
	UnitCents     int64
	// FencingToken is the token under which the seat was locked for this
	// item. Carried in memory between Create and Confirm; persisted so a
	// reconciliation pass can re-verify after a restart.
	FencingToken int64
}

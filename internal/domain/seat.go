package domain

import (
	"time"

	"github.com/google/uuid"
)

type SeatStatus string

const (
	SeatStatusAvailable SeatStatus = "AVAILABLE"
	SeatStatusLocked    SeatStatus = "LOCKED"
	SeatStatusReserved  SeatStatus = "RESERVED"
)

// InvalidFencingToken marks a seat that was never locked through the
// atomic path. Verification against it must always fail.
const InvalidFencingToken int64 = -1

type Seat struct {
	ID           int64
	EventID      int64
	Label        string
	Status       SeatStatus
	FencingToken int64
	LockedBy     *uuid.UUID
	Version      int
	PriceCents   int64
}

// Event is the catalog row backing the per-event inventory counter.
// Catalog metadata beyond the counter lives outside this service.
type Event struct {
	ID             int64
	Name           string
	StartsAt       time.Time
	TotalSeats     int
	AvailableSeats int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

package domain

import "time"

const (
	EventReservationCreated   = "reservation_created"
	EventReservationConfirmed = "reservation_confirmed"
	EventReservationCancelled = "reservation_cancelled"
	EventTransferCompleted    = "transfer_completed"
	EventMembershipActivated  = "membership_activated"
)

// DomainEvent is the outbound saga payload. CorrelationID keys the Kafka
// message so every event of one saga lands in the same partition.
type DomainEvent struct {
	Type          string    `json:"type"`
	CorrelationID string    `json:"correlation_id"`
	SubjectIDs    []string  `json:"subject_ids,omitempty"`
	AmountCents   int64     `json:"amount_cents,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// PaymentEvent is what the payment collaborator publishes when a charge
// settles or is refunded. EventKey is its unique id for deduplication.
type PaymentEvent struct {
	EventKey      string    `json:"event_key"`
	Type          string    `json:"type"` // payment_completed, payment_refunded
	ReservationID string    `json:"reservation_id"`
	UserID        string    `json:"user_id"`
	Method        string    `json:"method"` // card, transfer, membership
	AmountCents   int64     `json:"amount_cents"`
	Timestamp     time.Time `json:"timestamp"`
}

const (
	PaymentEventCompleted = "payment_completed"
	PaymentEventRefunded  = "payment_refunded"
)

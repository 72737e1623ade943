package domain

import "time"

type QueueEntryStatus string

const (
	QueueStatusWaiting  QueueEntryStatus = "WAITING"
	QueueStatusAdmitted QueueEntryStatus = "ADMITTED"
	QueueStatusLeft     QueueEntryStatus = "LEFT"
	QueueStatusExpired  QueueEntryStatus = "EXPIRED"
)

// QueueStatusInfo is what a waiter sees when polling the queue.
type QueueStatusInfo struct {
	Status        QueueEntryStatus
	Rank          int64
	EstimatedWait time.Duration
	AdmittedUntil time.Time
}

package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/cchriscode/ticketcore/internal/metrics"
	"github.com/cchriscode/ticketcore/internal/repository"
)

// Expirer is the slice of the reservation service the expiry sweep
// needs.
type Expirer interface {
	ExpireOverdue(ctx context.Context) (int, error)
}

// Reconciler re-checks stuck pending reservations against the payment
// collaborator.
type Reconciler interface {
	Reconcile(ctx context.Context, grace time.Duration) (int, error)
}

// AdmissionSweeper is the slice of the queue controller the queue sweep
// needs.
type AdmissionSweeper interface {
	Sweep(ctx context.Context, eventID int64) (int64, error)
	Admit(ctx context.Context, eventID int64, capacity int) ([]string, error)
}

// ExpiryJob releases seats held by reservations whose payment lease ran
// out.
func ExpiryJob(svc Expirer, interval time.Duration, log zerolog.Logger) Job {
	return Job{
		Name:     "expiry",
		Interval: interval,
		Run: func(ctx context.Context) error {
			n, err := svc.ExpireOverdue(ctx)
			if n > 0 {
				log.Info().Int("expired", n).Msg("expiry sweep released reservations")
			}
			return err
		},
	}
}

// ReconcileJob settles reservations whose confirm was lost in flight.
func ReconcileJob(svc Reconciler, grace, interval time.Duration, log zerolog.Logger) Job {
	return Job{
		Name:     "reconcile",
		Interval: interval,
		Run: func(ctx context.Context) error {
			n, err := svc.Reconcile(ctx, grace)
			if n > 0 {
				log.Info().Int("reconciled", n).Msg("reconcile sweep settled reservations")
			}
			return err
		},
	}
}

// QueueSweepJob prunes lapsed queue members for every known event, then
// backfills the freed admission slots from the head of the line.
func QueueSweepJob(queue AdmissionSweeper, events repository.EventRepository, capacity int, interval time.Duration, log zerolog.Logger) Job {
	return Job{
		Name:     "queue-sweep",
		Interval: interval,
		Run: func(ctx context.Context) error {
			list, err := events.List(ctx)
			if err != nil {
				return err
			}
			for _, event := range list {
				if _, err := queue.Sweep(ctx, event.ID); err != nil {
					log.Warn().Err(err).Int64("event_id", event.ID).Msg("queue sweep failed")
					metrics.RecordSweepError("queue")
					continue
				}
				promoted, err := queue.Admit(ctx, event.ID, capacity)
				if err != nil {
					log.Warn().Err(err).Int64("event_id", event.ID).Msg("queue admit failed")
					metrics.RecordSweepError("queue")
					continue
				}
				if len(promoted) > 0 {
					log.Info().Int64("event_id", event.ID).Int("admitted", len(promoted)).Msg("queue admitted waiters")
				}
			}
			return nil
		},
	}
}

// LedgerPurgeJob trims the processed-event dedup ledger; keys older than
// the retention window can no longer collide with a live redelivery.
func LedgerPurgeJob(ledger repository.ProcessedEventRepository, retention, interval time.Duration, log zerolog.Logger) Job {
	return Job{
		Name:     "ledger-purge",
		Interval: interval,
		Run: func(ctx context.Context) error {
			n, err := ledger.PurgeOlderThan(ctx, time.Now().Add(-retention))
			if err != nil {
				return err
			}
			if n > 0 {
				log.Info().Int64("purged", n).Msg("ledger purge removed rows")
			}
			return nil
		},
	}
}

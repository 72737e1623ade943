package saga

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	kafkaGo "github.com/segmentio/kafka-go"

	"github.com/cchriscode/ticketcore/internal/domain"
	"github.com/cchriscode/ticketcore/internal/metrics"
	"github.com/cchriscode/ticketcore/internal/repository"
)

// ReservationCommands is the slice of the state machine the gateway
// drives. Both commands are idempotent, which is what makes redelivery
// after a crash-between-commit-and-ack safe.
type ReservationCommands interface {
	Confirm(ctx context.Context, id uuid.UUID, method string) (*domain.Reservation, error)
	Cancel(ctx context.Context, id uuid.UUID) (*domain.Reservation, error)
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
	PublishWithRetry(ctx context.Context, topic, key string, value interface{}, maxRetries int) error
}

// Ledger runs fn at most once per event key. Implementations insert the
// key and apply fn in the same unit of work, so a redelivered event is a
// success no-op and a failed fn leaves the key unclaimed for retry.
type Ledger interface {
	RunOnce(ctx context.Context, eventKey string, fn func(ctx context.Context) error) (bool, error)
}

// PGLedger implements Ledger over the processed_events table.
type PGLedger struct {
	db     *pgxpool.Pool
	ledger repository.ProcessedEventRepository
}

func NewPGLedger(db *pgxpool.Pool, ledger repository.ProcessedEventRepository) *PGLedger {
	return &PGLedger{db: db, ledger: ledger}
}

func (l *PGLedger) RunOnce(ctx context.Context, eventKey string, fn func(ctx context.Context) error) (bool, error) {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	inserted, err := l.ledger.MarkProcessed(ctx, tx, eventKey)
	if err != nil {
		return false, err
	}
	if !inserted {
		return false, tx.Commit(ctx)
	}

	if err := fn(ctx); err != nil {
		// Rollback releases the key so a retry can claim it again.
		return false, err
	}

	return true, tx.Commit(ctx)
}

// Topics groups the outbound lifecycle topics the gateway publishes
// method-specific follow-ups to.
type Topics struct {
	Transfers   string
	Memberships string
	DeadLetter  string
}

// CompletionHandler applies the side effects of a settled payment for
// one payment method.
type CompletionHandler func(ctx context.Context, event domain.PaymentEvent) error

// Gateway consumes the payment collaborator's lifecycle events. Each
// event key passes through the dedup ledger exactly once; messages that
// keep failing after bounded retries with backoff go to the dead-letter
// topic instead of blocking the partition.
type Gateway struct {
	reservations ReservationCommands
	ledger       Ledger
	producer     Producer
	topics       Topics
	handlers     map[string]CompletionHandler
	maxRetries   int
	backoffBase  time.Duration
	log          zerolog.Logger
}

func NewGateway(
	reservations ReservationCommands,
	ledger Ledger,
	producer Producer,
	topics Topics,
	maxRetries int,
	log zerolog.Logger,
) *Gateway {
	if maxRetries <= 0 {
		maxRetries = 1
	}

	g := &Gateway{
		reservations: reservations,
		ledger:       ledger,
		producer:     producer,
		topics:       topics,
		maxRetries:   maxRetries,
		backoffBase:  200 * time.Millisecond,
		log:          log.With().Str("component", "saga").Logger(),
	}

	// Completion handlers are dispatched by the payment method string.
	g.handlers = map[string]CompletionHandler{
		"card":       g.completeCard,
		"transfer":   g.completeTransfer,
		"membership": g.completeMembership,
	}
	return g
}

// HandleMessage is plugged into the consumer loop. It never returns an
// error for a bad message; doing so would stall the partition.
func (g *Gateway) HandleMessage(ctx context.Context, msg kafkaGo.Message) error {
	var event domain.PaymentEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		// Parsing cannot succeed on retry; dead-letter immediately.
		g.log.Error().Err(err).Str("key", string(msg.Key)).Msg("malformed payment event")
		g.deadLetter(ctx, msg, err)
		return nil
	}

	delay := g.backoffBase
	var lastErr error
	for attempt := 0; attempt < g.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		if lastErr = g.process(ctx, event); lastErr == nil {
			return nil
		}
		g.log.Warn().Err(lastErr).Str("event_key", event.EventKey).Int("attempt", attempt+1).Msg("payment event processing failed")
	}

	g.log.Error().Err(lastErr).Str("event_key", event.EventKey).Msg("payment event exhausted retries")
	g.deadLetter(ctx, msg, lastErr)
	return nil
}

func (g *Gateway) process(ctx context.Context, event domain.PaymentEvent) error {
	applied, err := g.ledger.RunOnce(ctx, event.EventKey, func(ctx context.Context) error {
		return g.apply(ctx, event)
	})
	if err != nil {
		return err
	}
	if !applied {
		g.log.Debug().Str("event_key", event.EventKey).Msg("duplicate payment event absorbed")
	}
	return nil
}

func (g *Gateway) apply(ctx context.Context, event domain.PaymentEvent) error {
	switch event.Type {
	case domain.PaymentEventCompleted:
		handler, ok := g.handlers[event.Method]
		if !ok {
			return fmt.Errorf("unknown payment method %q", event.Method)
		}
		return handler(ctx, event)
	case domain.PaymentEventRefunded:
		return g.refund(ctx, event)
	default:
		return fmt.Errorf("unknown payment event type %q", event.Type)
	}
}

func (g *Gateway) completeCard(ctx context.Context, event domain.PaymentEvent) error {
	_, err := g.confirm(ctx, event)
	return err
}

func (g *Gateway) completeTransfer(ctx context.Context, event domain.PaymentEvent) error {
	res, err := g.confirm(ctx, event)
	if err != nil {
		return err
	}
	g.publishFollowUp(ctx, g.topics.Transfers, domain.EventTransferCompleted, res, event)
	return nil
}

func (g *Gateway) completeMembership(ctx context.Context, event domain.PaymentEvent) error {
	res, err := g.confirm(ctx, event)
	if err != nil {
		return err
	}
	g.publishFollowUp(ctx, g.topics.Memberships, domain.EventMembershipActivated, res, event)
	return nil
}

func (g *Gateway) confirm(ctx context.Context, event domain.PaymentEvent) (*domain.Reservation, error) {
	id, err := uuid.Parse(event.ReservationID)
	if err != nil {
		return nil, fmt.Errorf("bad reservation id %q: %w", event.ReservationID, err)
	}
	return g.reservations.Confirm(ctx, id, event.Method)
}

func (g *Gateway) refund(ctx context.Context, event domain.PaymentEvent) error {
	id, err := uuid.Parse(event.ReservationID)
	if err != nil {
		return fmt.Errorf("bad reservation id %q: %w", event.ReservationID, err)
	}
	_, err = g.reservations.Cancel(ctx, id)
	return err
}

func (g *Gateway) publishFollowUp(ctx context.Context, topic, eventType string, res *domain.Reservation, src domain.PaymentEvent) {
	if topic == "" {
		return
	}
	out := domain.DomainEvent{
		Type:          eventType,
		CorrelationID: res.ID.String(),
		SubjectIDs:    []string{src.UserID},
		AmountCents:   src.AmountCents,
		Timestamp:     time.Now(),
	}
	if err := g.producer.Publish(ctx, topic, out.CorrelationID, out); err != nil {
		g.log.Warn().Err(err).Str("type", eventType).Msg("follow-up event publish failed")
	}
}

// deadLetterEnvelope carries the original payload as a string so that a
// payload that failed to parse can still be dead-lettered.
type deadLetterEnvelope struct {
	Original  string    `json:"original"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

func (g *Gateway) deadLetter(ctx context.Context, msg kafkaGo.Message, cause error) {
	if g.topics.DeadLetter == "" {
		return
	}
	envelope := deadLetterEnvelope{
		Original:  string(msg.Value),
		Error:     cause.Error(),
		Timestamp: time.Now(),
	}
	if err := g.producer.PublishWithRetry(ctx, g.topics.DeadLetter, string(msg.Key), envelope, 3); err != nil {
		g.log.Error().Err(err).Msg("dead-letter publish failed, message dropped")
		return
	}
	metrics.RecordDeadLetter()
}

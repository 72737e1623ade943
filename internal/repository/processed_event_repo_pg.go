package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProcessedEventRepository is the dedup ledger for externally-consumed
// events. A key is inserted in the same transaction as the side effect it
// guards; redelivered events see the existing row and become no-ops.
type ProcessedEventRepository interface {
	MarkProcessed(ctx context.Context, tx pgx.Tx, eventKey string) (bool, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type PGProcessedEventRepository struct {
	db *pgxpool.Pool
}

func NewProcessedEventRepository(db *pgxpool.Pool) *PGProcessedEventRepository {
	return &PGProcessedEventRepository{db: db}
}

// MarkProcessed inserts the key, reporting false if it was already there.
func (r *PGProcessedEventRepository) MarkProcessed(ctx context.Context, tx pgx.Tx, eventKey string) (bool, error) {
	cmd, err := tx.Exec(ctx, `INSERT INTO processed_events (event_key) VALUES ($1) ON CONFLICT (event_key) DO NOTHING`, eventKey)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

// PurgeOlderThan drops ledger rows past the retention window. The
// upstream log's own retention bounds how late a redelivery can arrive.
func (r *PGProcessedEventRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	cmd, err := r.db.Exec(ctx, `DELETE FROM processed_events WHERE processed_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

var _ ProcessedEventRepository = (*PGProcessedEventRepository)(nil)

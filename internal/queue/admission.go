package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/cchriscode/ticketcore/internal/domain"
	"github.com/cchriscode/ticketcore/internal/metrics"
)

// Controller is the per-event virtual waiting queue. Rank is FIFO by a
// monotonic join sequence, not wall clock, so clock skew between workers
// cannot reorder waiters. Every operation is one Lua script; scripts
// serialize on the Redis side, which is what makes Admit and the stale
// sweep atomic against concurrent joins and heartbeats.
//
// Admission only grants the right to attempt a reservation within the
// admission window; it holds no seats.
type Controller struct {
	client          *redis.Client
	heartbeatTTL    time.Duration
	admissionWindow time.Duration
	perSlotEstimate time.Duration
	log             zerolog.Logger
}

func NewController(client *redis.Client, heartbeatTTL, admissionWindow, perSlotEstimate time.Duration, log zerolog.Logger) *Controller {
	return &Controller{
		client:          client,
		heartbeatTTL:    heartbeatTTL,
		admissionWindow: admissionWindow,
		perSlotEstimate: perSlotEstimate,
		log:             log.With().Str("component", "queue").Logger(),
	}
}

// Script replies: {0} not found, {1, rank} waiting, {2, admitted_until_ms} admitted.
const (
	replyNone     = 0
	replyWaiting  = 1
	replyAdmitted = 2
)

var joinScript = redis.NewScript(`
local adm = redis.call('ZSCORE', KEYS[3], ARGV[1])
if adm and tonumber(adm) > tonumber(ARGV[2]) then
    redis.call('ZADD', KEYS[4], ARGV[2], ARGV[1])
    return {2, tonumber(adm)}
end
local rank = redis.call('ZRANK', KEYS[2], ARGV[1])
if rank ~= false then
    redis.call('ZADD', KEYS[4], ARGV[2], ARGV[1])
    return {1, rank + 1}
end
local seq = redis.call('INCR', KEYS[1])
redis.call('ZADD', KEYS[2], seq, ARGV[1])
redis.call('ZADD', KEYS[4], ARGV[2], ARGV[1])
return {1, redis.call('ZRANK', KEYS[2], ARGV[1]) + 1}
`)

var heartbeatScript = redis.NewScript(`
local inw = redis.call('ZSCORE', KEYS[1], ARGV[1])
local ina = redis.call('ZSCORE', KEYS[2], ARGV[1])
if inw == false and ina == false then
    return {0, 0}
end
redis.call('ZADD', KEYS[3], ARGV[2], ARGV[1])
if ina ~= false and tonumber(ina) > tonumber(ARGV[3]) then
    return {2, tonumber(ina)}
end
if inw == false then
    return {0, 0}
end
return {1, redis.call('ZRANK', KEYS[1], ARGV[1]) + 1}
`)

var statusScript = redis.NewScript(`
local ina = redis.call('ZSCORE', KEYS[2], ARGV[1])
if ina ~= false and tonumber(ina) > tonumber(ARGV[2]) then
    return {2, tonumber(ina)}
end
local rank = redis.call('ZRANK', KEYS[1], ARGV[1])
if rank == false then
    return {0, 0}
end
return {1, rank + 1}
`)

// admitScript prunes lapsed admissions, counts live purchase sessions and
// promotes the oldest waiters into the remaining capacity, all in one
// atomic step so racing promotions can never exceed capacity.
var admitScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[2], '-inf', ARGV[2])
local live = redis.call('ZCARD', KEYS[2])
local slots = tonumber(ARGV[1]) - live
if slots <= 0 then
    return {}
end
local oldest = redis.call('ZRANGE', KEYS[1], 0, slots - 1)
local untilms = tonumber(ARGV[2]) + tonumber(ARGV[3])
for _, u in ipairs(oldest) do
    redis.call('ZREM', KEYS[1], u)
    redis.call('ZADD', KEYS[2], untilms, u)
end
return oldest
`)

// sweepScript demotes entries whose heartbeat predates the liveness
// cutoff. It reads the heartbeat set inside the script, so an entry that
// heartbeated after the sweep began is observed fresh and survives.
var sweepScript = redis.NewScript(`
local cutoff = tonumber(ARGV[1]) - tonumber(ARGV[2])
local stale = redis.call('ZRANGEBYSCORE', KEYS[3], '-inf', cutoff)
local removed = 0
for _, u in ipairs(stale) do
    removed = removed + redis.call('ZREM', KEYS[1], u)
    removed = removed + redis.call('ZREM', KEYS[2], u)
    redis.call('ZREM', KEYS[3], u)
end
return removed + redis.call('ZREMRANGEBYSCORE', KEYS[2], '-inf', ARGV[1])
`)

// Join adds the user to the tail of the event's queue. Re-joining is a
// no-op that refreshes the heartbeat: an already-admitted user gets their
// admission back, an already-waiting user their current rank.
func (c *Controller) Join(ctx context.Context, eventID int64, userID string) (*domain.QueueStatusInfo, error) {
	now := time.Now()
	res, err := joinScript.Run(ctx, c.client,
		[]string{seqKey(eventID), waitingKey(eventID), admittedKey(eventID), heartbeatKey(eventID)},
		userID, now.UnixMilli(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("queue join: %w: %w", domain.ErrUnavailable, err)
	}
	return c.toStatus(res)
}

// Heartbeat refreshes liveness. Entries that stop heartbeating are swept.
func (c *Controller) Heartbeat(ctx context.Context, eventID int64, userID string) (*domain.QueueStatusInfo, error) {
	now := time.Now()
	res, err := heartbeatScript.Run(ctx, c.client,
		[]string{waitingKey(eventID), admittedKey(eventID), heartbeatKey(eventID)},
		userID, now.UnixMilli(), now.UnixMilli(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("queue heartbeat: %w: %w", domain.ErrUnavailable, err)
	}
	return c.toStatus(res)
}

// Status returns rank and estimated wait, or the admission if one is live.
func (c *Controller) Status(ctx context.Context, eventID int64, userID string) (*domain.QueueStatusInfo, error) {
	res, err := statusScript.Run(ctx, c.client,
		[]string{waitingKey(eventID), admittedKey(eventID)},
		userID, time.Now().UnixMilli(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("queue status: %w: %w", domain.ErrUnavailable, err)
	}
	return c.toStatus(res)
}

// Admit promotes the oldest waiters so that at most capacity admissions
// are live at once. Returns the promoted user ids.
func (c *Controller) Admit(ctx context.Context, eventID int64, capacity int) ([]string, error) {
	admitted, err := admitScript.Run(ctx, c.client,
		[]string{waitingKey(eventID), admittedKey(eventID)},
		capacity, time.Now().UnixMilli(), c.admissionWindow.Milliseconds(),
	).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("queue admit: %w: %w", domain.ErrUnavailable, err)
	}
	if len(admitted) > 0 {
		metrics.RecordAdmitted(len(admitted))
		c.log.Info().Int64("event_id", eventID).Int("count", len(admitted)).Msg("admitted waiters")
	}
	return admitted, nil
}

// IsAdmitted reports whether the user holds a live admission for the event.
func (c *Controller) IsAdmitted(ctx context.Context, eventID int64, userID string) (bool, error) {
	info, err := c.Status(ctx, eventID, userID)
	if err != nil {
		return false, err
	}
	return info.Status == domain.QueueStatusAdmitted, nil
}

// Leave removes the entry regardless of state.
func (c *Controller) Leave(ctx context.Context, eventID int64, userID string) error {
	pipe := c.client.TxPipeline()
	pipe.ZRem(ctx, waitingKey(eventID), userID)
	pipe.ZRem(ctx, admittedKey(eventID), userID)
	pipe.ZRem(ctx, heartbeatKey(eventID), userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue leave: %w: %w", domain.ErrUnavailable, err)
	}
	return nil
}

// Clear drops the whole per-event queue. Admin-only, incident recovery.
func (c *Controller) Clear(ctx context.Context, eventID int64) error {
	err := c.client.Del(ctx, seqKey(eventID), waitingKey(eventID), admittedKey(eventID), heartbeatKey(eventID)).Err()
	if err != nil {
		return fmt.Errorf("queue clear: %w: %w", domain.ErrUnavailable, err)
	}
	return nil
}

// Sweep demotes waiting and admitted entries whose heartbeat is older
// than the liveness threshold, and admissions past their window.
func (c *Controller) Sweep(ctx context.Context, eventID int64) (int64, error) {
	removed, err := sweepScript.Run(ctx, c.client,
		[]string{waitingKey(eventID), admittedKey(eventID), heartbeatKey(eventID)},
		time.Now().UnixMilli(), c.heartbeatTTL.Milliseconds(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("queue sweep: %w: %w", domain.ErrUnavailable, err)
	}
	return removed, nil
}

func (c *Controller) toStatus(res []int64) (*domain.QueueStatusInfo, error) {
	if len(res) != 2 {
		return nil, fmt.Errorf("queue reply malformed: %w", domain.ErrUnavailable)
	}
	switch res[0] {
	case replyAdmitted:
		return &domain.QueueStatusInfo{
			Status:        domain.QueueStatusAdmitted,
			AdmittedUntil: time.UnixMilli(res[1]),
		}, nil
	case replyWaiting:
		return &domain.QueueStatusInfo{
			Status:        domain.QueueStatusWaiting,
			Rank:          res[1],
			EstimatedWait: time.Duration(res[1]) * c.perSlotEstimate,
		}, nil
	default:
		return nil, fmt.Errorf("queue entry: %w", domain.ErrNotFound)
	}
}

func seqKey(eventID int64) string       { return fmt.Sprintf("queue:event:%d:seq", eventID) }
func waitingKey(eventID int64) string   { return fmt.Sprintf("queue:event:%d:waiting", eventID) }
func admittedKey(eventID int64) string  { return fmt.Sprintf("queue:event:%d:admitted", eventID) }
func heartbeatKey(eventID int64) string { return fmt.Sprintf("queue:event:%d:heartbeat", eventID) }

package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cchriscode/ticketcore/internal/domain"
)

// Manager implements the per-seat distributed lock. Every operation is a
// single Lua script so there is no acquire-then-check race between
// workers. Fencing tokens come from a per-seat counter that is
// incremented on every successful acquire and never reset, so tokens
// stay strictly increasing across TTL expiries and releases.
type Manager struct {
	client *redis.Client
}

func NewManager(client *redis.Client) *Manager {
	return &Manager{client: client}
}

// acquireScript creates the lock iff none exists (an expired lock is gone
// by then, its key having been reclaimed by Redis).
var acquireScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
    return {0, 0}
end
local token = redis.call('INCR', KEYS[2])
redis.call('HSET', KEYS[1], 'holder', ARGV[1], 'token', token)
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return {1, token}
`)

var releaseScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'holder') == ARGV[1] and redis.call('HGET', KEYS[1], 'token') == ARGV[2] then
    redis.call('DEL', KEYS[1])
    return 1
end
return 0
`)

var verifyScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'holder') == ARGV[1] and redis.call('HGET', KEYS[1], 'token') == ARGV[2] then
    return 1
end
return 0
`)

// Acquire attempts to take the lock for (event, seat) on behalf of holder.
// On success it returns the fencing token issued for this lease. On
// contention it returns granted=false. Store failure never degrades to a
// grant.
func (m *Manager) Acquire(ctx context.Context, eventID, seatID int64, holder string, ttl time.Duration) (bool, int64, error) {
	res, err := acquireScript.Run(ctx, m.client,
		[]string{lockKey(eventID, seatID), fenceKey(eventID, seatID)},
		holder, ttl.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("acquire seat lock: %w: %w", domain.ErrUnavailable, err)
	}
	if len(res) != 2 || res[0] != 1 {
		return false, 0, nil
	}
	return true, res[1], nil
}

// Release deletes the lock iff it is still held by holder under token.
// A party that lost the lock cannot release a successor's lease.
func (m *Manager) Release(ctx context.Context, eventID, seatID int64, holder string, token int64) (bool, error) {
	res, err := releaseScript.Run(ctx, m.client,
		[]string{lockKey(eventID, seatID)},
		holder, token,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("release seat lock: %w: %w", domain.ErrUnavailable, err)
	}
	return res == 1, nil
}

// Verify reports whether the lock still exists, is held by holder and
// carries token. Called immediately before any irreversible commit; a
// lease lost to TTL or taken over by a later acquirer fails here.
func (m *Manager) Verify(ctx context.Context, eventID, seatID int64, holder string, token int64) (bool, error) {
	if token == domain.InvalidFencingToken {
		// Seat was locked through a legacy non-atomic path; never trust it.
		return false, nil
	}
	res, err := verifyScript.Run(ctx, m.client,
		[]string{lockKey(eventID, seatID)},
		holder, token,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("verify seat lock: %w: %w", domain.ErrUnavailable, err)
	}
	return res == 1, nil
}

// Cleanup unconditionally drops the lock. Used once a reservation is
// known dead; the fencing counter is left alone so tokens stay monotonic.
func (m *Manager) Cleanup(ctx context.Context, eventID, seatID int64) error {
	if err := m.client.Del(ctx, lockKey(eventID, seatID)).Err(); err != nil {
		return fmt.Errorf("cleanup seat lock: %w: %w", domain.ErrUnavailable, err)
	}
	return nil
}

func lockKey(eventID, seatID int64) string {
	return fmt.Sprintf("lock:event:%d:seat:%d", eventID, seatID)
}

func fenceKey(eventID, seatID int64) string {
	return fmt.Sprintf("fence:event:%d:seat:%d", eventID, seatID)
}

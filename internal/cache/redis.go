package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cchriscode/ticketcore/internal/domain"
)

const eventsKey = "cache:events"

// EventCache keeps the event catalog in Redis so the listing endpoint
// does not hammer Postgres during an on-sale spike.
type EventCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewEventCache(client *redis.Client, ttl time.Duration) *EventCache {
	return &EventCache{client: client, ttl: ttl}
}

// GetEvents returns the cached catalog, or nil on a miss.
func (c *EventCache) GetEvents(ctx context.Context) ([]domain.Event, error) {
	data, err := c.client.Get(ctx, eventsKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var events []domain.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (c *EventCache) SetEvents(ctx context.Context, events []domain.Event) error {
	payload, err := json.Marshal(events)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, eventsKey, payload, c.ttl).Err()
}

// Invalidate drops the cached catalog; the next listing repopulates it.
func (c *EventCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, eventsKey).Err()
}

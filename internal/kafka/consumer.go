package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	defaultHeartbeat      = 3 * time.Second
	defaultSessionTimeout = 30 * time.Second
)

type Consumer struct {
	reader *kafka.Reader
}

// NewConsumer joins the consumer group for one topic. Zero heartbeat or
// session values fall back to defaults; the session timeout bounds how
// long a crashed worker keeps its partitions assigned, which caps how
// long payment events can sit unprocessed after a crash.
func NewConsumer(brokers []string, groupID, topic string, heartbeat, sessionTimeout time.Duration) *Consumer {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	if sessionTimeout <= 0 {
		sessionTimeout = defaultSessionTimeout
	}

	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:           brokers,
			GroupID:           groupID,
			Topic:             topic,
			HeartbeatInterval: heartbeat,
			SessionTimeout:    sessionTimeout,
		}),
	}
}

func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

// Consume reads messages until the context is cancelled. ReadMessage
// commits the previous offset, so a handler error before the next read
// leaves the current message uncommitted for redelivery. The handler owns
// retry and dead-letter policy and returns nil for anything absorbed that
// way; an error returned here means the partition must stop.
func (c *Consumer) Consume(ctx context.Context, handler func(context.Context, kafka.Message) error) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			return err
		}

		if err := handler(ctx, msg); err != nil {
			return err
		}
	}
}

package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewConsumer_DefaultsZeroIntervals(t *testing.T) {
	c := NewConsumer([]string{"localhost:9092"}, "group", "topic", 0, 0)
	defer c.Close()

	cfg := c.reader.Config()
	assert.Equal(t, defaultHeartbeat, cfg.HeartbeatInterval)
	assert.Equal(t, defaultSessionTimeout, cfg.SessionTimeout)
}

func TestNewConsumer_HonorsConfiguredIntervals(t *testing.T) {
	c := NewConsumer([]string{"localhost:9092"}, "group", "topic", 5*time.Second, time.Minute)
	defer c.Close()

	cfg := c.reader.Config()
	assert.Equal(t, 5*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, time.Minute, cfg.SessionTimeout)
}

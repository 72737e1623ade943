package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockClock struct {
	now time.Time
}

func (m *mockClock) Now() time.Time { return m.now }

func failing() error { return errors.New("boom") }

func TestCircuitBreaker_TripsAtThreshold(t *testing.T) {
	clock := &mockClock{now: time.Now()}
	cb := NewCircuitBreaker("test", 3, 30*time.Second, WithClock(clock))

	for i := 0; i < 2; i++ {
		assert.Error(t, cb.Execute(failing))
	}
	assert.Equal(t, string(StateClosed), cb.State())

	assert.Error(t, cb.Execute(failing))
	assert.Equal(t, string(StateOpen), cb.State())

	err := cb.Execute(func() error { t.Fatal("must not run while open"); return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_HalfOpenProbeRecovers(t *testing.T) {
	clock := &mockClock{now: time.Now()}
	cb := NewCircuitBreaker("test", 1, 30*time.Second, WithClock(clock))

	require.Error(t, cb.Execute(failing))
	require.Equal(t, string(StateOpen), cb.State())

	clock.now = clock.now.Add(31 * time.Second)

	// The probe succeeds, the breaker closes again.
	assert.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, string(StateClosed), cb.State())
}

func TestCircuitBreaker_HalfOpenProbeFailureReopens(t *testing.T) {
	clock := &mockClock{now: time.Now()}
	cb := NewCircuitBreaker("test", 1, 30*time.Second, WithClock(clock))

	require.Error(t, cb.Execute(failing))
	clock.now = clock.now.Add(31 * time.Second)

	assert.Error(t, cb.Execute(failing))
	assert.Equal(t, string(StateOpen), cb.State())

	// Still within the new reset window: fail fast.
	assert.ErrorIs(t, cb.Execute(func() error { return nil }), ErrCircuitOpen)
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	clock := &mockClock{now: time.Now()}
	cb := NewCircuitBreaker("test", 3, 30*time.Second, WithClock(clock))

	assert.Error(t, cb.Execute(failing))
	assert.Error(t, cb.Execute(failing))
	assert.NoError(t, cb.Execute(func() error { return nil }))

	assert.Error(t, cb.Execute(failing))
	assert.Error(t, cb.Execute(failing))
	assert.Equal(t, string(StateClosed), cb.State())
}

func TestRetry_StopsOnSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 5, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return errors.New("permanent")
	})
	assert.ErrorContains(t, err, "failed after 3 attempts")
	assert.Equal(t, 3, calls)
}

func TestRetry_HonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	err := Retry(ctx, 10, time.Hour, func() error {
		calls++
		return errors.New("transient")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

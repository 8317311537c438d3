package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealClock(t *testing.T) {
	t.Parallel()

	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	assert.False(t, now.Before(before))
	assert.GreaterOrEqual(t, clock.Since(now.Add(-time.Second)), time.Second)

	ticker := clock.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Error("ticker did not fire")
	}
}

func TestMockClock_AdvanceAndSince(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)
	assert.Equal(t, start, clock.Now())

	clock.Advance(1500 * time.Millisecond)
	assert.Equal(t, start.Add(1500*time.Millisecond), clock.Now())
	assert.Equal(t, 1500*time.Millisecond, clock.Since(start))
}

func fired(ticker Ticker) bool {
	select {
	case <-ticker.C():
		return true
	default:
		return false
	}
}

func TestMockClock_Ticker(t *testing.T) {
	t.Parallel()

	clock := NewMockClock(time.Unix(0, 0))
	ticker := clock.NewTicker(3 * time.Second)

	clock.Advance(time.Second)
	assert.False(t, fired(ticker), "fired early")

	clock.Advance(2 * time.Second)
	assert.True(t, fired(ticker), "due at its interval")

	// Unread ticks are dropped rather than queued.
	clock.Advance(3 * time.Second)
	clock.Advance(3 * time.Second)
	assert.True(t, fired(ticker))
	assert.False(t, fired(ticker))

	ticker.Stop()
	clock.Advance(10 * time.Second)
	assert.False(t, fired(ticker), "stopped")
	require.Empty(t, clock.tickers)
}

package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_TripsAtLimit(t *testing.T) {
	cb := CircuitBreaker{MaxDailyLossBps: 500}

	cb, tripped := cb.RecordLoss(d("300"), d("10000"), t0)
	assert.False(t, tripped)
	assert.Equal(t, "NORMAL", cb.State())

	cb, tripped = cb.RecordLoss(d("200"), d("10000"), t0.Add(time.Hour))
	assert.True(t, tripped)
	assert.True(t, cb.IsTripped())
	assert.Contains(t, cb.TripReason, "500")
}

func TestCircuitBreaker_TripIsStickyAcrossWindows(t *testing.T) {
	cb := CircuitBreaker{MaxDailyLossBps: 100}
	cb, tripped := cb.RecordLoss(d("100"), d("10000"), t0)
	require.True(t, tripped)

	cb, rolled := cb.Roll(t0.Add(24 * time.Hour))
	assert.True(t, rolled)
	assert.True(t, cb.DailyLossBps.IsZero(), "accumulator resets on the boundary")
	assert.True(t, cb.IsTripped(), "trip survives the reset")

	cb = cb.Reset()
	assert.False(t, cb.IsTripped())
}

func TestCircuitBreaker_WindowResetsAccumulator(t *testing.T) {
	cb := CircuitBreaker{MaxDailyLossBps: 500}
	cb, _ = cb.RecordLoss(d("400"), d("10000"), t0)

	cb, tripped := cb.RecordLoss(d("400"), d("10000"), t0.Add(24*time.Hour))
	assert.False(t, tripped)
	assert.True(t, cb.DailyLossBps.Equal(d("400")))
}

func TestCircuitBreaker_IgnoresGains(t *testing.T) {
	cb := CircuitBreaker{MaxDailyLossBps: 500}
	cb, tripped := cb.RecordLoss(d("-100"), d("10000"), t0)
	assert.False(t, tripped)
	assert.True(t, cb.DailyLossBps.IsZero())
}

func TestWindowOpen_Timezone(t *testing.T) {
	at := time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), WindowOpen("", at))

	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), WindowOpen("Not/AZone", at), "unknown zone falls back to UTC")
}

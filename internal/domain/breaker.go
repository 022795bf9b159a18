package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CircuitBreaker tracks aggregate daily loss against the vault and suspends
// risk-increasing operations. A trip is sticky until an explicit reset.
type CircuitBreaker struct {
	MaxDailyLossBps int64
	Timezone        string
	WindowStart     time.Time
	DailyLossBps    decimal.Decimal
	TrippedAt       *time.Time
	TripReason      string
}

// IsTripped reports whether risk-increasing operations are suspended.
func (cb CircuitBreaker) IsTripped() bool { return cb.TrippedAt != nil }

// State is NORMAL or TRIPPED.
func (cb CircuitBreaker) State() string {
	if cb.IsTripped() {
		return "TRIPPED"
	}
	return "NORMAL"
}

// Roll resets the accumulator when now falls in a new window. The trip state is untouched.
func (cb CircuitBreaker) Roll(now time.Time) (CircuitBreaker, bool) {
	open := WindowOpen(cb.Timezone, now)
	if !cb.WindowStart.IsZero() && cb.WindowStart.Equal(open) {
		return cb, false
	}
	cb.WindowStart = open
	cb.DailyLossBps = decimal.Zero
	return cb, true
}

// RecordLoss adds a realized loss measured against the vault's assets and
// trips when the accumulator reaches the daily limit.
func (cb CircuitBreaker) RecordLoss(loss, totalAssets decimal.Decimal, now time.Time) (CircuitBreaker, bool) {
	cb, _ = cb.Roll(now)
	if !loss.IsPositive() {
		return cb, false
	}
	cb.DailyLossBps = cb.DailyLossBps.Add(RatioBps(loss, totalAssets))
	if !totalAssets.IsPositive() {
		// every loss against an empty vault is total
		cb.DailyLossBps = decimal.NewFromInt(BpsDenominator)
	}
	if cb.IsTripped() || cb.MaxDailyLossBps <= 0 {
		return cb, false
	}
	if cb.DailyLossBps.GreaterThanOrEqual(decimal.NewFromInt(cb.MaxDailyLossBps)) {
		t := now
		cb.TrippedAt = &t
		cb.TripReason = fmt.Sprintf("daily loss %s bps reached limit %d bps", cb.DailyLossBps.StringFixed(2), cb.MaxDailyLossBps)
		return cb, true
	}
	return cb, false
}

// Reset is the administrative TRIPPED→NORMAL transition.
func (cb CircuitBreaker) Reset() CircuitBreaker {
	cb.TrippedAt = nil
	cb.TripReason = ""
	return cb
}

// WindowOpen returns local midnight of now in tz (UTC when tz is empty or unknown).
func WindowOpen(tz string, now time.Time) time.Time {
	loc := time.UTC
	if tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

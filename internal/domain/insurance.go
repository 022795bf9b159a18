package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// InsuranceReserve absorbs losses beyond an executor's stake.
type InsuranceReserve struct {
	Balance   decimal.Decimal
	Target    decimal.Decimal
	UpdatedAt time.Time
}

// Credit adds profit skims or external deposits.
func (r InsuranceReserve) Credit(amount decimal.Decimal, now time.Time) (InsuranceReserve, error) {
	if amount.IsNegative() {
		return r, Invariant("negative reserve credit", "amount", amount)
	}
	r.Balance = r.Balance.Add(amount)
	r.UpdatedAt = now
	return r, nil
}

// Draw takes up to requested from the reserve and returns what was actually drawn.
func (r InsuranceReserve) Draw(requested decimal.Decimal, now time.Time) (InsuranceReserve, decimal.Decimal, error) {
	if requested.IsNegative() {
		return r, decimal.Zero, Invariant("negative reserve draw", "amount", requested)
	}
	drawn := decimal.Min(requested, r.Balance)
	r.Balance = r.Balance.Sub(drawn)
	r.UpdatedAt = now
	if r.Balance.IsNegative() {
		return r, drawn, Invariant("negative reserve balance", "balance", r.Balance)
	}
	return r, drawn, nil
}

// Coverage is balance/target (1 when no target is set).
func (r InsuranceReserve) Coverage() decimal.Decimal {
	if !r.Target.IsPositive() {
		return decimal.NewFromInt(1)
	}
	return r.Balance.DivRound(r.Target, 4)
}

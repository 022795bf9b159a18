package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// VaultState is the pooled capital ledger (ERC-4626 style share accounting).
// Utilization is always derived, never stored.
type VaultState struct {
	TotalAssets      decimal.Decimal
	AllocatedCapital decimal.Decimal
	TotalShares      decimal.Decimal
	UpdatedAt        time.Time
}

// ShareBalance is one depositor's claim on the vault.
type ShareBalance struct {
	Depositor string
	Shares    decimal.Decimal
	UpdatedAt time.Time
}

// Allocation is the capital currently lent to one execution right.
type Allocation struct {
	ERTID       string
	Amount      decimal.Decimal
	AllocatedAt time.Time
	ReleasedAt  *time.Time
}

// VaultInfo is the read model of getVaultInfo.
type VaultInfo struct {
	TotalAssets      decimal.Decimal `json:"total_assets"`
	AllocatedCapital decimal.Decimal `json:"allocated_capital"`
	AvailableCapital decimal.Decimal `json:"available_capital"`
	UtilizationRate  decimal.Decimal `json:"utilization_rate"`
	TotalShares      decimal.Decimal `json:"total_shares"`
	SharePrice       decimal.Decimal `json:"share_price"`
}

// Available is the capital that can be withdrawn or allocated.
func (v VaultState) Available() decimal.Decimal {
	return v.TotalAssets.Sub(v.AllocatedCapital)
}

// Utilization is allocated/total, 0 for an empty vault.
func (v VaultState) Utilization() decimal.Decimal {
	if !v.TotalAssets.IsPositive() {
		return decimal.Zero
	}
	return v.AllocatedCapital.DivRound(v.TotalAssets, USDPlaces)
}

// SharePrice is assets per share (1 for an empty vault).
func (v VaultState) SharePrice() decimal.Decimal {
	if !v.TotalShares.IsPositive() {
		return decimal.NewFromInt(1)
	}
	return v.TotalAssets.DivRound(v.TotalShares, SharePlaces)
}

// Info builds the read model.
func (v VaultState) Info() VaultInfo {
	return VaultInfo{
		TotalAssets:      v.TotalAssets,
		AllocatedCapital: v.AllocatedCapital,
		AvailableCapital: v.Available(),
		UtilizationRate:  v.Utilization(),
		TotalShares:      v.TotalShares,
		SharePrice:       v.SharePrice(),
	}
}

// Check verifies the ledger invariants.
func (v VaultState) Check() error {
	if v.TotalAssets.IsNegative() || v.AllocatedCapital.IsNegative() || v.TotalShares.IsNegative() {
		return Invariant("negative vault balance",
			"total_assets", v.TotalAssets, "allocated", v.AllocatedCapital, "total_shares", v.TotalShares)
	}
	if v.AllocatedCapital.GreaterThan(v.TotalAssets) {
		return Invariant("allocated capital exceeds total assets",
			"total_assets", v.TotalAssets, "allocated", v.AllocatedCapital)
	}
	return nil
}

// Deposit mints shares at the current exchange rate (1:1 for the first deposit).
func (v VaultState) Deposit(amount decimal.Decimal, now time.Time) (VaultState, decimal.Decimal, error) {
	if !amount.IsPositive() {
		return v, decimal.Zero, Validation("", "deposit amount must be positive", "amount", amount)
	}
	amount = USD(amount)
	shares := amount
	if v.TotalShares.IsPositive() {
		if !v.TotalAssets.IsPositive() {
			return v, decimal.Zero, Invariant("shares outstanding with no assets", "total_shares", v.TotalShares)
		}
		shares = amount.Mul(v.TotalShares).DivRound(v.TotalAssets, SharePlaces)
	}
	v.TotalAssets = v.TotalAssets.Add(amount)
	v.TotalShares = v.TotalShares.Add(shares)
	v.UpdatedAt = now
	return v, shares, nil
}

// ConvertToAssets previews a redemption, rounding down.
func (v VaultState) ConvertToAssets(shares decimal.Decimal) decimal.Decimal {
	if !v.TotalShares.IsPositive() {
		return decimal.Zero
	}
	return shares.Mul(v.TotalAssets).Div(v.TotalShares).Truncate(USDPlaces)
}

// ConvertToShares returns the shares that must be burned to receive amount, rounding up.
func (v VaultState) ConvertToShares(amount decimal.Decimal) decimal.Decimal {
	if !v.TotalAssets.IsPositive() {
		return decimal.Zero
	}
	q, r := amount.Mul(v.TotalShares).QuoRem(v.TotalAssets, SharePlaces)
	if !r.IsZero() {
		q = q.Add(decimal.New(1, -SharePlaces))
	}
	return q
}

// Withdraw burns shares and returns proportional assets, bounded by available capital.
func (v VaultState) Withdraw(shares, balance decimal.Decimal, now time.Time) (VaultState, decimal.Decimal, error) {
	if !shares.IsPositive() {
		return v, decimal.Zero, Validation("", "shares must be positive", "shares", shares)
	}
	if shares.GreaterThan(balance) {
		return v, decimal.Zero, Validation("", "insufficient shares", "requested", shares, "balance", balance)
	}
	amount := v.ConvertToAssets(shares)
	if amount.GreaterThan(v.Available()) {
		return v, decimal.Zero, Illiquid("insufficient vault liquidity",
			"requested", amount, "available", v.Available())
	}
	v.TotalAssets = v.TotalAssets.Sub(amount)
	v.TotalShares = v.TotalShares.Sub(shares)
	v.UpdatedAt = now
	return v, amount, v.Check()
}

// Allocate lends capital to an execution right.
func (v VaultState) Allocate(amount decimal.Decimal, now time.Time) (VaultState, error) {
	if !amount.IsPositive() {
		return v, Validation("", "allocation must be positive", "amount", amount)
	}
	if amount.GreaterThan(v.Available()) {
		return v, Illiquid("insufficient vault liquidity for allocation",
			"requested", amount, "available", v.Available())
	}
	v.AllocatedCapital = v.AllocatedCapital.Add(amount)
	v.UpdatedAt = now
	return v, v.Check()
}

// Release returns an allocation. loss is written off the vault's assets and
// income (fees) is credited to them.
func (v VaultState) Release(alloc Allocation, amount, loss, income decimal.Decimal, now time.Time) (VaultState, Allocation, error) {
	if amount.GreaterThan(alloc.Amount) {
		return v, alloc, Invariant("release exceeds allocation",
			"ert", alloc.ERTID, "release", amount, "allocated", alloc.Amount)
	}
	if amount.GreaterThan(v.AllocatedCapital) {
		return v, alloc, Invariant("release exceeds vault allocated capital",
			"release", amount, "allocated", v.AllocatedCapital)
	}
	if loss.IsNegative() || income.IsNegative() {
		return v, alloc, Invariant("negative release adjustment", "loss", loss, "income", income)
	}
	if loss.GreaterThan(amount) {
		return v, alloc, Invariant("write-off exceeds released capital",
			"ert", alloc.ERTID, "loss", loss, "release", amount)
	}
	v.AllocatedCapital = v.AllocatedCapital.Sub(amount)
	v.TotalAssets = v.TotalAssets.Sub(loss).Add(income)
	v.UpdatedAt = now

	alloc.Amount = alloc.Amount.Sub(amount)
	if alloc.Amount.IsZero() {
		t := now
		alloc.ReleasedAt = &t
	}
	return v, alloc, v.Check()
}

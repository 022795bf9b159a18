package domain

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// ERTStatus is the lifecycle of an execution right.
type ERTStatus string

const (
	ERTActive  ERTStatus = "ACTIVE"
	ERTExpired ERTStatus = "EXPIRED"
	ERTSettled ERTStatus = "SETTLED"
)

// Constraints bound what an executor may do with the allocated capital.
type Constraints struct {
	MaxLeverage        int64    `json:"max_leverage"`
	MaxDrawdownBps     int64    `json:"max_drawdown_bps"`
	MaxPositionSizeBps int64    `json:"max_position_size_bps"`
	AllowedAdapters    []string `json:"allowed_adapters"`
	AllowedAssets      []string `json:"allowed_assets"`
}

// Fees charged to the executor at settlement.
type Fees struct {
	BaseFeeAprBps  int64 `json:"base_fee_apr_bps"`
	ProfitShareBps int64 `json:"profit_share_bps"`
}

// ExecutionRight is a time-boxed, capital-bounded permission to trade vault capital.
// The capital stays owned by the vault until settlement.
type ExecutionRight struct {
	ID           string
	Owner        string
	CapitalLimit decimal.Decimal // USD, 6 decimals
	StakeAmount  decimal.Decimal // native units, 18 decimals
	Duration     time.Duration
	CreatedAt    time.Time
	Status       ERTStatus
	Constraints  Constraints
	Fees         Fees
	RealizedPnl  decimal.Decimal // frozen PnL of closed positions
	SettledAt    *time.Time
}

// ExpiresAt returns the end of the active window.
func (e ExecutionRight) ExpiresAt() time.Time {
	return e.CreatedAt.Add(e.Duration)
}

// IsExpired reports whether the right can no longer be settled normally.
func (e ExecutionRight) IsExpired(now time.Time) bool {
	if e.Status == ERTExpired {
		return true
	}
	return e.Status == ERTActive && !now.Before(e.ExpiresAt())
}

// Elapsed is the active time used for the pro-rata base fee, capped at expiry.
func (e ExecutionRight) Elapsed(now time.Time) time.Duration {
	end := now
	if exp := e.ExpiresAt(); end.After(exp) {
		end = exp
	}
	if end.Before(e.CreatedAt) {
		return 0
	}
	return end.Sub(e.CreatedAt)
}

// Expire applies the time-based ACTIVE→EXPIRED transition.
func (e ExecutionRight) Expire(now time.Time) (ExecutionRight, bool) {
	if e.Status != ERTActive || now.Before(e.ExpiresAt()) {
		return e, false
	}
	e.Status = ERTExpired
	return e, true
}

// MarkSettled applies the terminal transition.
func (e ExecutionRight) MarkSettled(now time.Time) (ExecutionRight, error) {
	if e.Status == ERTSettled {
		return e, Validation(CodeBadStatus, "execution right already settled", "ert", e.ID)
	}
	e.Status = ERTSettled
	t := now
	e.SettledAt = &t
	return e, nil
}

// AllowsAdapter reports whether the venue is whitelisted for this right.
func (e ExecutionRight) AllowsAdapter(adapter string) bool {
	return slices.Contains(e.Constraints.AllowedAdapters, adapter)
}

// AllowsAsset reports whether the asset is whitelisted for this right.
func (e ExecutionRight) AllowsAsset(asset string) bool {
	return slices.Contains(e.Constraints.AllowedAssets, asset)
}

// MintRequest is the input of mintERT.
type MintRequest struct {
	Owner        string          `json:"owner"`
	CapitalLimit decimal.Decimal `json:"capital_limit"`
	Duration     time.Duration   `json:"-"`
	StakeAmount  decimal.Decimal `json:"stake_amount"`
	Constraints  Constraints     `json:"constraints"`
	Fees         Fees            `json:"fees"`
}

// Validate checks the request shape. Tier limits are checked by the reputation ledger.
func (r MintRequest) Validate() error {
	switch {
	case r.Owner == "":
		return Validation("", "owner is required")
	case !r.CapitalLimit.IsPositive():
		return Validation("", "capital limit must be positive", "capital_limit", r.CapitalLimit)
	case !r.StakeAmount.IsPositive():
		return Validation("", "stake amount must be positive", "stake_amount", r.StakeAmount)
	case r.Duration <= 0:
		return Validation("", "duration must be positive", "duration", r.Duration)
	case r.Constraints.MaxLeverage < 1 || r.Constraints.MaxLeverage > MaxLeverage:
		return Validation("", "max leverage out of range", "max_leverage", r.Constraints.MaxLeverage, "max", MaxLeverage)
	case r.Constraints.MaxDrawdownBps <= 0 || r.Constraints.MaxDrawdownBps > BpsDenominator:
		return Validation("", "max drawdown out of range", "max_drawdown_bps", r.Constraints.MaxDrawdownBps)
	case r.Constraints.MaxPositionSizeBps <= 0 || r.Constraints.MaxPositionSizeBps > BpsDenominator*r.Constraints.MaxLeverage:
		return Validation("", "max position size out of range", "max_position_size_bps", r.Constraints.MaxPositionSizeBps)
	case len(r.Constraints.AllowedAdapters) == 0:
		return Validation("", "at least one adapter must be allowed")
	case len(r.Constraints.AllowedAssets) == 0:
		return Validation("", "at least one asset must be allowed")
	case r.Fees.BaseFeeAprBps < 0 || r.Fees.BaseFeeAprBps > BpsDenominator:
		return Validation("", "base fee out of range", "base_fee_apr_bps", r.Fees.BaseFeeAprBps)
	case r.Fees.ProfitShareBps < 0 || r.Fees.ProfitShareBps > BpsDenominator-InsuranceFeeBps:
		return Validation("", "profit share out of range", "profit_share_bps", r.Fees.ProfitShareBps,
			"max", BpsDenominator-InsuranceFeeBps)
	}
	return nil
}

// NewExecutionRight builds an ACTIVE right from a validated request.
func NewExecutionRight(id string, r MintRequest, now time.Time) ExecutionRight {
	return ExecutionRight{
		ID:           id,
		Owner:        r.Owner,
		CapitalLimit: r.CapitalLimit.Round(USDPlaces),
		StakeAmount:  r.StakeAmount.Round(NativePlaces),
		Duration:     r.Duration,
		CreatedAt:    now,
		Status:       ERTActive,
		Constraints:  r.Constraints,
		Fees:         r.Fees,
		RealizedPnl:  decimal.Zero,
	}
}

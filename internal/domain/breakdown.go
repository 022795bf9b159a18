package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// FeeInput is everything the fee breakdown depends on.
type FeeInput struct {
	CapitalLimit    decimal.Decimal
	StakeAmount     decimal.Decimal
	BaseFeeAprBps   int64
	ProfitShareBps  int64
	InsuranceFeeBps int64
	Elapsed         time.Duration
	TotalPnl        decimal.Decimal
	ReserveBalance  decimal.Decimal
}

// Breakdown is the deterministic distribution of one settlement.
type Breakdown struct {
	ERTID      string          `json:"ert_id"`
	Realized   decimal.Decimal `json:"realized_pnl"`
	Unrealized decimal.Decimal `json:"unrealized_pnl"`
	TotalPnl   decimal.Decimal `json:"total_pnl"`
	Elapsed    time.Duration   `json:"elapsed"`

	LPBaseFee      decimal.Decimal `json:"lp_base_fee"`
	LPProfitShare  decimal.Decimal `json:"lp_profit_share"`
	InsuranceFee   decimal.Decimal `json:"insurance_fee"`
	ExecutorProfit decimal.Decimal `json:"executor_profit"`

	StakeSlashed  decimal.Decimal `json:"stake_slashed"`
	StakeReturned decimal.Decimal `json:"stake_returned"`

	// Base fee not covered by PnL is taken from the stake left after loss
	// coverage; whatever the stake cannot cover is waived.
	FeeFromStake  decimal.Decimal `json:"fee_from_stake"`
	BaseFeeWaived decimal.Decimal `json:"base_fee_waived"`

	InsuranceDraw decimal.Decimal `json:"insurance_draw"`
	// UncoveredLoss is written off the vault and never exceeds the capital
	// allocated to the right. Anything beyond it is ExcessLoss.
	UncoveredLoss   decimal.Decimal `json:"uncovered_loss"`
	ExcessLoss      decimal.Decimal `json:"excess_loss"`
	CapitalReturned decimal.Decimal `json:"capital_returned"`
}

// VaultCredit is the fee income credited to vault assets.
func (b Breakdown) VaultCredit() decimal.Decimal {
	return b.LPBaseFee.Sub(b.BaseFeeWaived).Add(b.LPProfitShare)
}

// StakePayout is what is transferred back to the executor from the stake.
func (b Breakdown) StakePayout() decimal.Decimal {
	return b.StakeReturned.Sub(b.FeeFromStake)
}

// Loss is the realized trading loss (0 for profitable settlements).
func (b Breakdown) Loss() decimal.Decimal {
	if b.TotalPnl.IsNegative() {
		return b.TotalPnl.Neg()
	}
	return decimal.Zero
}

// CalculateFeeBreakdown is the pure settlement computation.
func CalculateFeeBreakdown(in FeeInput) Breakdown {
	zero := decimal.Zero
	pnl := USD(in.TotalPnl)
	b := Breakdown{
		TotalPnl:       pnl,
		Elapsed:        in.Elapsed,
		LPBaseFee:      ProRataAPR(in.CapitalLimit, in.BaseFeeAprBps, in.Elapsed),
		LPProfitShare:  zero,
		InsuranceFee:   zero,
		ExecutorProfit: zero,
		StakeSlashed:   zero,
		StakeReturned:  in.StakeAmount,
		FeeFromStake:   zero,
		BaseFeeWaived:  zero,
		InsuranceDraw:  zero,
		UncoveredLoss:  zero,
		ExcessLoss:     zero,
	}

	var shortfall decimal.Decimal
	if pnl.IsPositive() {
		b.InsuranceFee = ApplyBps(pnl, in.InsuranceFeeBps)
		b.LPProfitShare = ApplyBps(pnl, in.ProfitShareBps)
		rest := pnl.Sub(b.LPBaseFee).Sub(b.LPProfitShare).Sub(b.InsuranceFee)
		if rest.IsNegative() {
			shortfall = rest.Neg()
			rest = zero
		}
		b.ExecutorProfit = rest
	} else {
		loss := pnl.Neg()
		b.StakeSlashed = decimal.Min(loss, in.StakeAmount)
		b.StakeReturned = in.StakeAmount.Sub(b.StakeSlashed)
		if excess := loss.Sub(b.StakeSlashed); excess.IsPositive() {
			b.InsuranceDraw = decimal.Min(excess, decimal.Max(in.ReserveBalance, zero))
			rest := excess.Sub(b.InsuranceDraw)
			b.UncoveredLoss = decimal.Min(rest, in.CapitalLimit)
			b.ExcessLoss = rest.Sub(b.UncoveredLoss)
		}
		shortfall = b.LPBaseFee
	}

	if shortfall.IsPositive() {
		b.FeeFromStake = decimal.Min(shortfall, b.StakeReturned)
		b.BaseFeeWaived = shortfall.Sub(b.FeeFromStake)
	}
	b.CapitalReturned = in.CapitalLimit.Sub(b.UncoveredLoss)
	return b
}

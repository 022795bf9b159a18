package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tier is a reputation class determining stake requirements and capital ceilings.
type Tier int

const (
	TierUnverified Tier = iota
	TierNovice
	TierVerified
	TierEstablished
	TierElite
)

func (t Tier) String() string {
	switch t {
	case TierNovice:
		return "NOVICE"
	case TierVerified:
		return "VERIFIED"
	case TierEstablished:
		return "ESTABLISHED"
	case TierElite:
		return "ELITE"
	default:
		return "UNVERIFIED"
	}
}

// TierLimits holds the privileges of a tier and the gate to reach it.
type TierLimits struct {
	Tier           Tier
	MaxCapital     decimal.Decimal
	StakeBps       int64
	MaxDrawdownBps int64

	MinSettlements   int64
	MinVolumeUSD     decimal.Decimal
	MinProfitRateBps int64
}

var tierTable = [...]TierLimits{
	{Tier: TierUnverified, MaxCapital: decimal.NewFromInt(100), StakeBps: 5000, MaxDrawdownBps: 2000},
	{Tier: TierNovice, MaxCapital: decimal.NewFromInt(1_000), StakeBps: 2500, MaxDrawdownBps: 1500,
		MinSettlements: 3, MinProfitRateBps: 5000},
	{Tier: TierVerified, MaxCapital: decimal.NewFromInt(10_000), StakeBps: 1500, MaxDrawdownBps: 1000,
		MinSettlements: 10, MinVolumeUSD: decimal.NewFromInt(5_000), MinProfitRateBps: 6000},
	{Tier: TierEstablished, MaxCapital: decimal.NewFromInt(100_000), StakeBps: 1000, MaxDrawdownBps: 1000,
		MinSettlements: 25, MinVolumeUSD: decimal.NewFromInt(50_000), MinProfitRateBps: 6500},
	{Tier: TierElite, MaxCapital: decimal.NewFromInt(500_000), StakeBps: 500, MaxDrawdownBps: 1500,
		MinSettlements: 50, MinVolumeUSD: decimal.NewFromInt(500_000), MinProfitRateBps: 7000},
}

// LimitsFor returns the privileges of t.
func LimitsFor(t Tier) TierLimits {
	if t < TierUnverified || t > TierElite {
		return tierTable[TierUnverified]
	}
	return tierTable[t]
}

// ReputationRecord is the per-executor history.
type ReputationRecord struct {
	Executor              string
	TotalSettlements      int64
	ProfitableSettlements int64
	TotalVolumeUSD        decimal.Decimal
	LargestLossBps        int64
	Whitelisted           bool
	Banned                bool
	BanReason             string
	RegisteredAt          time.Time
	UpdatedAt             time.Time
}

// NewReputationRecord registers an executor at the bottom tier.
func NewReputationRecord(executor string, now time.Time) ReputationRecord {
	return ReputationRecord{
		Executor:       executor,
		TotalVolumeUSD: decimal.Zero,
		RegisteredAt:   now,
		UpdatedAt:      now,
	}
}

// ProfitRateBps is profitable/total settlements in basis points.
func (r ReputationRecord) ProfitRateBps() int64 {
	if r.TotalSettlements == 0 {
		return 0
	}
	return r.ProfitableSettlements * BpsDenominator / r.TotalSettlements
}

func (r ReputationRecord) meets(l TierLimits) bool {
	return r.TotalSettlements >= l.MinSettlements &&
		r.TotalVolumeUSD.GreaterThanOrEqual(l.MinVolumeUSD) &&
		r.ProfitRateBps() >= l.MinProfitRateBps
}

// Tier is recomputed from the counters on every call.
func (r ReputationRecord) Tier() Tier {
	if r.Whitelisted {
		return TierElite
	}
	for i := len(tierTable) - 1; i > 0; i-- {
		if r.meets(tierTable[i]) {
			return tierTable[i].Tier
		}
	}
	return TierUnverified
}

// Limits returns the privileges of the current tier.
func (r ReputationRecord) Limits() TierLimits { return LimitsFor(r.Tier()) }

// SettlementOutcome is surfaced to callers after a settlement is recorded.
type SettlementOutcome struct {
	PreviousTier Tier
	Tier         Tier
	LossBps      int64
	LargeLoss    bool
}

// RecordSettlement folds one settlement into the counters.
func (r ReputationRecord) RecordSettlement(pnl, volume, capital decimal.Decimal, now time.Time) (ReputationRecord, SettlementOutcome) {
	out := SettlementOutcome{PreviousTier: r.Tier()}

	r.TotalSettlements++
	if pnl.IsPositive() {
		r.ProfitableSettlements++
	}
	r.TotalVolumeUSD = r.TotalVolumeUSD.Add(volume)
	if pnl.IsNegative() {
		loss := pnl.Neg()
		out.LossBps = RatioBps(loss, capital).Ceil().IntPart()
		if out.LossBps > r.LargestLossBps {
			r.LargestLossBps = out.LossBps
		}
		out.LargeLoss = loss.GreaterThan(ApplyBps(capital, LargeLossBps))
	}
	r.UpdatedAt = now

	out.Tier = r.Tier()
	return r, out
}

// RequiredStake returns the stake needed for capital at this tier.
func (r ReputationRecord) RequiredStake(capital decimal.Decimal) decimal.Decimal {
	return capital.Mul(decimal.NewFromInt(r.Limits().StakeBps)).DivRound(bpsDenom, NativePlaces)
}

// AuthorizeMint checks tier privileges for a new execution right.
func (r ReputationRecord) AuthorizeMint(req MintRequest) error {
	if r.Banned {
		return Unauthorized(CodeBanned, "executor is banned", "executor", r.Executor, "reason", r.BanReason)
	}
	lim := r.Limits()
	if req.CapitalLimit.GreaterThan(lim.MaxCapital) {
		return Unauthorized("", "capital limit exceeds tier maximum",
			"tier", lim.Tier, "requested", req.CapitalLimit, "max", lim.MaxCapital)
	}
	if req.Constraints.MaxDrawdownBps > lim.MaxDrawdownBps {
		return Unauthorized("", "max drawdown exceeds tier maximum",
			"tier", lim.Tier, "requested_bps", req.Constraints.MaxDrawdownBps, "max_bps", lim.MaxDrawdownBps)
	}
	if need := r.RequiredStake(req.CapitalLimit); req.StakeAmount.LessThan(need) {
		return Unauthorized(CodeInsufficientStake, "stake below tier requirement",
			"tier", lim.Tier, "required", need, "provided", req.StakeAmount)
	}
	return nil
}

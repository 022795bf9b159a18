package httpapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/ertvault/internal/domain"
)

// ─── Requests ────────────────────────────────────────────────────────────────

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type sharesRequest struct {
	Shares decimal.Decimal `json:"shares"`
}

type mintRequest struct {
	domain.MintRequest
	DurationSeconds int64 `json:"duration_seconds"`
}

func (m mintRequest) toDomain(caller string) domain.MintRequest {
	req := m.MintRequest
	if req.Owner == "" {
		req.Owner = caller
	}
	req.Duration = time.Duration(m.DurationSeconds) * time.Second
	return req
}

type openPositionRequest struct {
	Adapter       string          `json:"adapter"`
	Asset         string          `json:"asset"`
	Side          domain.Side     `json:"side"`
	Size          decimal.Decimal `json:"size"`
	EntryValueUSD decimal.Decimal `json:"entry_value_usd"`
}

type executorRequest struct {
	Executor string `json:"executor"`
}

type banRequest struct {
	Reason string `json:"reason"`
}

// ─── Responses ───────────────────────────────────────────────────────────────

type ertDTO struct {
	ID              string             `json:"id"`
	Owner           string             `json:"owner"`
	CapitalLimit    decimal.Decimal    `json:"capital_limit"`
	StakeAmount     decimal.Decimal    `json:"stake_amount"`
	DurationSeconds int64              `json:"duration_seconds"`
	CreatedAt       time.Time          `json:"created_at"`
	ExpiresAt       time.Time          `json:"expires_at"`
	Status          domain.ERTStatus   `json:"status"`
	Constraints     domain.Constraints `json:"constraints"`
	Fees            domain.Fees        `json:"fees"`
	RealizedPnl     decimal.Decimal    `json:"realized_pnl"`
	SettledAt       *time.Time         `json:"settled_at,omitempty"`
}

func toERT(e domain.ExecutionRight) ertDTO {
	return ertDTO{
		ID:              e.ID,
		Owner:           e.Owner,
		CapitalLimit:    e.CapitalLimit,
		StakeAmount:     e.StakeAmount,
		DurationSeconds: int64(e.Duration / time.Second),
		CreatedAt:       e.CreatedAt,
		ExpiresAt:       e.ExpiresAt(),
		Status:          e.Status,
		Constraints:     e.Constraints,
		Fees:            e.Fees,
		RealizedPnl:     e.RealizedPnl,
		SettledAt:       e.SettledAt,
	}
}

type positionDTO struct {
	ID            string                `json:"id"`
	ERTID         string                `json:"ert_id"`
	Adapter       string                `json:"adapter"`
	Asset         string                `json:"asset"`
	Side          domain.Side           `json:"side"`
	Size          decimal.Decimal       `json:"size"`
	EntryValueUSD decimal.Decimal       `json:"entry_value_usd"`
	EntryPrice    decimal.Decimal       `json:"entry_price"`
	OpenedAt      time.Time             `json:"opened_at"`
	Status        domain.PositionStatus `json:"status"`
	ClosedAt      *time.Time            `json:"closed_at,omitempty"`
	ExitPrice     *decimal.Decimal      `json:"exit_price,omitempty"`
	RealizedPnl   *decimal.Decimal      `json:"realized_pnl,omitempty"`
}

func toPosition(p domain.Position) positionDTO {
	out := positionDTO{
		ID:            p.ID,
		ERTID:         p.ERTID,
		Adapter:       p.Adapter,
		Asset:         p.Asset,
		Side:          p.Side,
		Size:          p.Size,
		EntryValueUSD: p.EntryValueUSD,
		EntryPrice:    p.EntryPrice,
		OpenedAt:      p.OpenedAt,
		Status:        p.Status,
		ClosedAt:      p.ClosedAt,
	}
	if p.Status == domain.PositionClosed {
		exit, pnl := p.ExitPrice, p.RealizedPnl
		out.ExitPrice, out.RealizedPnl = &exit, &pnl
	}
	return out
}

func toPositions(ps []domain.Position) []positionDTO {
	out := make([]positionDTO, 0, len(ps))
	for _, p := range ps {
		out = append(out, toPosition(p))
	}
	return out
}

type breakdownDTO struct {
	domain.Breakdown
	ElapsedSeconds int64           `json:"elapsed_seconds"`
	VaultCredit    decimal.Decimal `json:"vault_credit"`
	StakePayout    decimal.Decimal `json:"stake_payout"`
}

func toBreakdown(b domain.Breakdown) breakdownDTO {
	return breakdownDTO{
		Breakdown:      b,
		ElapsedSeconds: int64(b.Elapsed / time.Second),
		VaultCredit:    b.VaultCredit(),
		StakePayout:    b.StakePayout(),
	}
}

type settlementDTO struct {
	ERTID        string       `json:"ert_id"`
	Executor     string       `json:"executor"`
	Breakdown    breakdownDTO `json:"breakdown"`
	PreviousTier string       `json:"previous_tier"`
	Tier         string       `json:"tier"`
	LossBps      int64        `json:"loss_bps"`
	LargeLoss    bool         `json:"large_loss"`
	Forced       bool         `json:"forced"`
	Tripped      bool         `json:"breaker_tripped"`
	SettledAt    time.Time    `json:"settled_at"`
	SettledBy    string       `json:"settled_by"`
}

func toSettlement(s domain.Settlement) settlementDTO {
	return settlementDTO{
		ERTID:        s.ERTID,
		Executor:     s.Executor,
		Breakdown:    toBreakdown(s.Breakdown),
		PreviousTier: s.Outcome.PreviousTier.String(),
		Tier:         s.Outcome.Tier.String(),
		LossBps:      s.Outcome.LossBps,
		LargeLoss:    s.Outcome.LargeLoss,
		Forced:       s.Forced,
		Tripped:      s.Tripped,
		SettledAt:    s.SettledAt,
		SettledBy:    s.SettledBy,
	}
}

type ertViewDTO struct {
	ERT        ertDTO         `json:"ert"`
	Positions  []positionDTO  `json:"positions"`
	Settlement *settlementDTO `json:"settlement,omitempty"`
}

type executorDTO struct {
	Executor              string          `json:"executor"`
	Tier                  string          `json:"tier"`
	TotalSettlements      int64           `json:"total_settlements"`
	ProfitableSettlements int64           `json:"profitable_settlements"`
	TotalVolumeUSD        decimal.Decimal `json:"total_volume_usd"`
	LargestLossBps        int64           `json:"largest_loss_bps"`
	Whitelisted           bool            `json:"whitelisted"`
	Banned                bool            `json:"banned"`
	BanReason             string          `json:"ban_reason,omitempty"`
	MaxCapital            decimal.Decimal `json:"max_capital"`
	StakeBps              int64           `json:"stake_bps"`
	MaxDrawdownBps        int64           `json:"max_drawdown_bps"`
	RegisteredAt          time.Time       `json:"registered_at"`
}

func toExecutor(r domain.ReputationRecord) executorDTO {
	l := r.Limits()
	return executorDTO{
		Executor:              r.Executor,
		Tier:                  r.Tier().String(),
		TotalSettlements:      r.TotalSettlements,
		ProfitableSettlements: r.ProfitableSettlements,
		TotalVolumeUSD:        r.TotalVolumeUSD,
		LargestLossBps:        r.LargestLossBps,
		Whitelisted:           r.Whitelisted,
		Banned:                r.Banned,
		BanReason:             r.BanReason,
		MaxCapital:            l.MaxCapital,
		StakeBps:              l.StakeBps,
		MaxDrawdownBps:        l.MaxDrawdownBps,
		RegisteredAt:          r.RegisteredAt,
	}
}

type pnlDTO struct {
	Realized   decimal.Decimal `json:"realized"`
	Unrealized decimal.Decimal `json:"unrealized"`
	Total      decimal.Decimal `json:"total"`
	PricedAt   time.Time       `json:"priced_at"`
}

type eventDTO struct {
	ID     string           `json:"id"`
	Kind   domain.EventKind `json:"kind"`
	Entity string           `json:"entity"`
	Amount decimal.Decimal  `json:"amount"`
	Detail string           `json:"detail,omitempty"`
	At     time.Time        `json:"at"`
}

type balanceDTO struct {
	Depositor string          `json:"depositor"`
	Shares    decimal.Decimal `json:"shares"`
	Value     decimal.Decimal `json:"value"`
}

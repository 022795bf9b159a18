// Package settlement is the orchestrator that turns an execution right into a
// final profit/loss distribution between the vault, the executor and the reserve.
package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/ertvault/internal/application/breaker"
	"github.com/alejandrodnm/ertvault/internal/application/engine"
	"github.com/alejandrodnm/ertvault/internal/application/insurance"
	"github.com/alejandrodnm/ertvault/internal/application/positions"
	"github.com/alejandrodnm/ertvault/internal/application/reputation"
	"github.com/alejandrodnm/ertvault/internal/application/vault"
	"github.com/alejandrodnm/ertvault/internal/domain"
	"github.com/alejandrodnm/ertvault/internal/observability"
	"github.com/alejandrodnm/ertvault/internal/ports"
)

// Config holds the settlement parameters.
type Config struct {
	InsuranceFeeBps int64
	// Controllers may settle any execution right on behalf of its owner.
	Controllers []string
}

// Deps groups the ledgers the engine coordinates.
type Deps struct {
	Store      ports.LedgerStore
	Locks      *engine.Locker
	Clock      engine.Clock
	Metrics    *observability.Metrics
	Positions  *positions.Service
	Vault      *vault.Service
	Reserve    *insurance.Service
	Breaker    *breaker.Service
	Reputation *reputation.Service
	Notifier   ports.SettlementNotifier // optional
}

// Engine settles execution rights.
type Engine struct {
	Deps
	cfg Config
}

// New creates the settlement engine.
func New(deps Deps, cfg Config) *Engine {
	if cfg.InsuranceFeeBps == 0 {
		cfg.InsuranceFeeBps = domain.InsuranceFeeBps
	}
	return &Engine{Deps: deps, cfg: cfg}
}

// CalculateFeeBreakdown is the pure distribution of pnl for ert after elapsed active time.
func (e *Engine) CalculateFeeBreakdown(ert domain.ExecutionRight, pnl domain.PnL, elapsed time.Duration, reserveBalance decimal.Decimal) domain.Breakdown {
	b := domain.CalculateFeeBreakdown(domain.FeeInput{
		CapitalLimit:    ert.CapitalLimit,
		StakeAmount:     ert.StakeAmount,
		BaseFeeAprBps:   ert.Fees.BaseFeeAprBps,
		ProfitShareBps:  ert.Fees.ProfitShareBps,
		InsuranceFeeBps: e.cfg.InsuranceFeeBps,
		Elapsed:         elapsed,
		TotalPnl:        pnl.Total(),
		ReserveBalance:  reserveBalance,
	})
	b.ERTID = ert.ID
	b.Realized = pnl.Realized
	b.Unrealized = pnl.Unrealized
	return b
}

// EstimateSettlement previews the breakdown without mutating anything.
// For a settled right it returns the persisted breakdown.
func (e *Engine) EstimateSettlement(ctx context.Context, ertID string) (domain.Breakdown, error) {
	now := e.Clock.Now()
	var (
		ert     domain.ExecutionRight
		list    []domain.Position
		reserve domain.InsuranceReserve
		stored  domain.Settlement
		settled bool
	)
	err := e.Store.View(ctx, func(tx ports.LedgerTx) (err error) {
		if ert, err = tx.GetERT(ertID); err != nil {
			return err
		}
		if ert.Status == domain.ERTSettled {
			stored, settled, err = tx.GetSettlement(ertID)
			if err == nil && !settled {
				err = domain.Invariant("settled execution right without settlement record", "ert", ertID)
			}
			return err
		}
		if list, err = tx.ListPositions(ertID); err != nil {
			return err
		}
		reserve, err = e.Reserve.LoadTx(tx)
		return err
	})
	if err != nil {
		return domain.Breakdown{}, err
	}
	if settled {
		return stored.Breakdown, nil
	}

	val, err := e.Positions.Valuate(ctx, ert, list)
	if err != nil {
		return domain.Breakdown{}, err
	}
	return e.CalculateFeeBreakdown(ert, val.PnL, ert.Elapsed(now), reserve.Balance), nil
}

// Settle closes an ACTIVE, unexpired right. Only its owner or a controller may
// call it, and never while the circuit breaker is tripped.
func (e *Engine) Settle(ctx context.Context, caller, ertID string) (domain.Settlement, error) {
	return e.settle(ctx, caller, ertID, false)
}

// ForceSettle closes an expired right. Any caller may trigger it and it is
// permitted while the breaker is tripped: expired capital must be recoverable.
func (e *Engine) ForceSettle(ctx context.Context, caller, ertID string) (domain.Settlement, error) {
	return e.settle(ctx, caller, ertID, true)
}

func (e *Engine) settle(ctx context.Context, caller, ertID string, forced bool) (domain.Settlement, error) {
	op := "settle"
	if forced {
		op = "force_settle"
	}
	s, err := e.run(ctx, caller, ertID, forced)
	if err != nil {
		e.Metrics.RecordRejection(op, err)
		if domain.KindOf(err) == domain.KindInvariant {
			slog.Error("settlement: invariant violation", "ert", ertID, "forced", forced, "err", err)
		}
		return domain.Settlement{}, err
	}
	return s, nil
}

func (e *Engine) run(ctx context.Context, caller, ertID string, forced bool) (domain.Settlement, error) {
	unlockERT := e.Locks.Lock(engine.ERTKey(ertID))
	defer unlockERT()

	now := e.Clock.Now()
	var ert domain.ExecutionRight
	var list []domain.Position
	err := e.Store.View(ctx, func(tx ports.LedgerTx) (err error) {
		if ert, err = tx.GetERT(ertID); err != nil {
			return err
		}
		if err := e.precheck(ert, caller, forced, now); err != nil {
			return err
		}
		if !forced {
			if err := e.Breaker.CheckTx(tx, "settlement", now); err != nil {
				return err
			}
		}
		list, err = tx.ListPositions(ertID)
		return err
	})
	if err != nil {
		return domain.Settlement{}, err
	}

	// valuation reads the oracle; no transaction is open here
	val, err := e.Positions.Valuate(ctx, ert, list)
	if err != nil {
		return domain.Settlement{}, err
	}

	unlock := e.Locks.Lock(engine.VaultKey, engine.ReserveKey, engine.BreakerKey, engine.ExecutorKey(ert.Owner))
	defer unlock()

	var (
		result  domain.Settlement
		vs      domain.VaultState
		reserve domain.InsuranceReserve
		cb      domain.CircuitBreaker
	)
	err = e.Store.Update(ctx, func(tx ports.LedgerTx) error {
		if !forced {
			if err := e.Breaker.CheckTx(tx, "settlement", now); err != nil {
				return err
			}
		}
		before, err := tx.GetVault()
		if err != nil {
			return err
		}
		if reserve, err = e.Reserve.LoadTx(tx); err != nil {
			return err
		}
		b := e.CalculateFeeBreakdown(ert, val.PnL, ert.Elapsed(now), reserve.Balance)
		entity := engine.ERTKey(ert.ID)

		counted := lossesCounted(list)
		closedPnl, err := closeAtMarks(tx, list, val.Marks, entity, now)
		if err != nil {
			return err
		}
		ert.RealizedPnl = ert.RealizedPnl.Add(closedPnl)
		if vs, err = e.Vault.ReleaseTx(tx, ert.ID, ert.CapitalLimit, b.UncoveredLoss, b.VaultCredit(), now); err != nil {
			return fmt.Errorf("settlement: release: %w", err)
		}
		if b.InsuranceFee.IsPositive() {
			if reserve, err = e.Reserve.CreditTx(tx, b.InsuranceFee, "profit skim "+entity, now); err != nil {
				return fmt.Errorf("settlement: reserve credit: %w", err)
			}
		}
		if b.InsuranceDraw.IsPositive() {
			var drawn decimal.Decimal
			if reserve, drawn, err = e.Reserve.DrawTx(tx, b.InsuranceDraw, "loss cover "+entity, now); err != nil {
				return fmt.Errorf("settlement: reserve draw: %w", err)
			}
			if !drawn.Equal(b.InsuranceDraw) {
				return domain.Invariant("reserve draw differs from breakdown", "drawn", drawn, "expected", b.InsuranceDraw)
			}
		}
		if err := tx.AppendEvents(stakeEvents(ert, b, now)...); err != nil {
			return err
		}

		outcome, err := e.Reputation.RecordSettlementTx(tx, ert.Owner, b.TotalPnl, val.Volume, ert.CapitalLimit, now)
		if err != nil {
			return fmt.Errorf("settlement: reputation: %w", err)
		}
		var tripped bool
		// closes at a loss already fed the breaker
		breakerLoss := decimal.Max(b.Loss().Sub(counted), decimal.Zero)
		if cb, tripped, err = e.Breaker.RecordLossTx(tx, breakerLoss, before.TotalAssets, entity, now); err != nil {
			return fmt.Errorf("settlement: breaker: %w", err)
		}

		if ert, err = ert.MarkSettled(now); err != nil {
			return err
		}
		if err := tx.SaveERT(ert); err != nil {
			return err
		}
		result = domain.Settlement{
			ERTID:     ert.ID,
			Executor:  ert.Owner,
			Breakdown: b,
			Outcome:   outcome,
			Forced:    forced,
			Tripped:   tripped,
			SettledAt: now,
			SettledBy: caller,
		}
		if err := tx.SaveSettlement(result); err != nil {
			return err
		}
		return tx.AppendEvents(domain.NewEvent(domain.EventSettle, entity, b.TotalPnl,
			fmt.Sprintf("forced=%t by=%s capital_returned=%s", forced, caller, b.CapitalReturned), now))
	})
	if err != nil {
		return domain.Settlement{}, err
	}

	e.Metrics.RecordSettlement(result)
	e.Vault.Observe(vs, "release", ert.CapitalLimit)
	e.Reserve.Observe(reserve)
	e.Breaker.Observe(cb)

	b := result.Breakdown
	slog.Info("settlement: settled", "ert", ert.ID, "executor", ert.Owner, "forced", forced,
		"pnl", b.TotalPnl, "lp_base_fee", b.LPBaseFee, "lp_profit_share", b.LPProfitShare,
		"insurance_fee", b.InsuranceFee, "executor_profit", b.ExecutorProfit,
		"stake_slashed", b.StakeSlashed, "insurance_draw", b.InsuranceDraw, "uncovered_loss", b.UncoveredLoss,
		"tier", result.Outcome.Tier)
	if b.ExcessLoss.IsPositive() {
		slog.Warn("settlement: loss exceeds allocated capital", "ert", ert.ID, "excess_loss", b.ExcessLoss)
	}
	if result.Tripped {
		slog.Warn("settlement: circuit breaker tripped", "ert", ert.ID, "reason", cb.TripReason)
	}
	if e.Notifier != nil {
		if err := e.Notifier.NotifySettlement(ctx, result); err != nil {
			slog.Warn("settlement: notify failed", "ert", ert.ID, "err", err)
		}
	}
	return result, nil
}

func (e *Engine) precheck(ert domain.ExecutionRight, caller string, forced bool, now time.Time) error {
	if ert.Status == domain.ERTSettled {
		return domain.Validation(domain.CodeBadStatus, "execution right already settled", "ert", ert.ID)
	}
	if forced {
		if !ert.IsExpired(now) {
			return domain.Validation(domain.CodeNotExpired, "force settlement requires an expired execution right",
				"ert", ert.ID, "expires_at", ert.ExpiresAt().Format(time.RFC3339))
		}
		return nil
	}
	if ert.IsExpired(now) {
		return domain.Validation(domain.CodeExpired, "execution right has expired, use force settlement",
			"ert", ert.ID, "expired_at", ert.ExpiresAt().Format(time.RFC3339))
	}
	if caller != ert.Owner && !e.IsController(caller) {
		return domain.Unauthorized(domain.CodeNotOwner, "caller is neither owner nor controller", "ert", ert.ID, "caller", caller)
	}
	return nil
}

// IsController reports whether addr is a configured controller.
func (e *Engine) IsController(addr string) bool {
	return addr != "" && slices.Contains(e.cfg.Controllers, addr)
}

// Settlement returns the persisted settlement of ertID.
func (e *Engine) Settlement(ctx context.Context, ertID string) (domain.Settlement, error) {
	var s domain.Settlement
	err := e.Store.View(ctx, func(tx ports.LedgerTx) error {
		var ok bool
		var err error
		if s, ok, err = tx.GetSettlement(ertID); err != nil {
			return err
		}
		if !ok {
			return domain.NotFound("settlement", ertID)
		}
		return nil
	})
	return s, err
}

// closeAtMarks freezes every open position at the valuation marks and returns
// the PnL realized by doing so.
func closeAtMarks(tx ports.LedgerTx, list []domain.Position, marks map[string]decimal.Decimal, entity string, now time.Time) (decimal.Decimal, error) {
	realized := decimal.Zero
	for _, p := range list {
		if p.Status != domain.PositionOpen {
			continue
		}
		mark, ok := marks[p.Asset]
		if !ok {
			return decimal.Zero, domain.Invariant("open position without valuation mark", "position", p.ID, "asset", p.Asset)
		}
		p = p.Close(mark, now)
		if err := tx.SavePosition(p); err != nil {
			return decimal.Zero, err
		}
		if err := tx.AppendEvents(domain.NewEvent(domain.EventPositionClose, entity, p.RealizedPnl,
			fmt.Sprintf("position=%s exit=%s at settlement", p.ID, mark), now)); err != nil {
			return decimal.Zero, err
		}
		realized = realized.Add(p.RealizedPnl)
	}
	return realized, nil
}

// lossesCounted sums the losses of positions closed before settlement.
func lossesCounted(list []domain.Position) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range list {
		if p.Status == domain.PositionClosed && p.RealizedPnl.IsNegative() {
			sum = sum.Sub(p.RealizedPnl)
		}
	}
	return sum
}

func stakeEvents(ert domain.ExecutionRight, b domain.Breakdown, now time.Time) []domain.LedgerEvent {
	entity := engine.ExecutorKey(ert.Owner)
	var events []domain.LedgerEvent
	if b.StakeSlashed.IsPositive() {
		events = append(events, domain.NewEvent(domain.EventStakeSlash, entity, b.StakeSlashed, "ert="+ert.ID, now))
	}
	if payout := b.StakePayout(); payout.IsPositive() {
		events = append(events, domain.NewEvent(domain.EventStakePayout, entity, payout,
			fmt.Sprintf("ert=%s fee_from_stake=%s", ert.ID, b.FeeFromStake), now))
	}
	if b.ExecutorProfit.IsPositive() {
		events = append(events, domain.NewEvent(domain.EventExecutorProfit, entity, b.ExecutorProfit, "ert="+ert.ID, now))
	}
	return events
}

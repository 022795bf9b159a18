// Package controller is the gateway API of the engine. It mints execution
// rights, sweeps expirations and fronts every ledger behind one surface that
// the HTTP and CLI layers consume.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/ertvault/internal/application/breaker"
	"github.com/alejandrodnm/ertvault/internal/application/engine"
	"github.com/alejandrodnm/ertvault/internal/application/insurance"
	"github.com/alejandrodnm/ertvault/internal/application/positions"
	"github.com/alejandrodnm/ertvault/internal/application/reputation"
	"github.com/alejandrodnm/ertvault/internal/application/settlement"
	"github.com/alejandrodnm/ertvault/internal/application/vault"
	"github.com/alejandrodnm/ertvault/internal/domain"
	"github.com/alejandrodnm/ertvault/internal/observability"
	"github.com/alejandrodnm/ertvault/internal/ports"
)

// Services groups the ledgers behind the controller.
type Services struct {
	Store      ports.LedgerStore
	Locks      *engine.Locker
	Clock      engine.Clock
	Metrics    *observability.Metrics
	Vault      *vault.Service
	Reputation *reputation.Service
	Reserve    *insurance.Service
	Breaker    *breaker.Service
	Positions  *positions.Service
	Settlement *settlement.Engine
}

// Controller is the engine's public API.
type Controller struct {
	Services
	admins []string
}

// New creates the controller. admins may run administrative operations.
func New(svc Services, admins []string) *Controller {
	return &Controller{Services: svc, admins: slices.Clone(admins)}
}

// ERTView is an execution right with its positions and, once settled, its settlement.
type ERTView struct {
	ERT        domain.ExecutionRight
	Positions  []domain.Position
	Settlement *domain.Settlement
}

// ─── Vault ───────────────────────────────────────────────────────────────────

func (c *Controller) Deposit(ctx context.Context, depositor string, amount decimal.Decimal) (decimal.Decimal, error) {
	return c.Vault.Deposit(ctx, depositor, amount)
}

func (c *Controller) Withdraw(ctx context.Context, depositor string, shares decimal.Decimal) (decimal.Decimal, error) {
	return c.Vault.Withdraw(ctx, depositor, shares)
}

func (c *Controller) Redeem(ctx context.Context, depositor string, amount decimal.Decimal) (decimal.Decimal, error) {
	return c.Vault.Redeem(ctx, depositor, amount)
}

func (c *Controller) VaultInfo(ctx context.Context) (domain.VaultInfo, error) {
	return c.Vault.Info(ctx)
}

func (c *Controller) Balance(ctx context.Context, depositor string) (domain.ShareBalance, decimal.Decimal, error) {
	return c.Vault.Balance(ctx, depositor)
}

// ─── Execution rights ────────────────────────────────────────────────────────

// MintERT authorizes req against the owner's tier, allocates the capital and
// creates an ACTIVE execution right, all in one transaction.
func (c *Controller) MintERT(ctx context.Context, req domain.MintRequest) (domain.ExecutionRight, error) {
	ert, err := c.mint(ctx, req)
	if err != nil {
		c.Metrics.RecordRejection("mint", err)
		return domain.ExecutionRight{}, err
	}
	return ert, nil
}

func (c *Controller) mint(ctx context.Context, req domain.MintRequest) (domain.ExecutionRight, error) {
	if err := req.Validate(); err != nil {
		return domain.ExecutionRight{}, err
	}
	id := uuid.NewString()
	unlock := c.Locks.Lock(engine.ERTKey(id), engine.ExecutorKey(req.Owner), engine.VaultKey)
	defer unlock()

	now := c.Clock.Now()
	var ert domain.ExecutionRight
	var vs domain.VaultState
	err := c.Store.Update(ctx, func(tx ports.LedgerTx) error {
		if err := c.Breaker.CheckTx(tx, "mint", now); err != nil {
			return err
		}
		rec, err := c.Reputation.AuthorizeMintTx(tx, req)
		if err != nil {
			return err
		}
		ert = domain.NewExecutionRight(id, req, now)
		if vs, err = c.Vault.AllocateTx(tx, id, ert.CapitalLimit, now); err != nil {
			return err
		}
		if err := tx.SaveERT(ert); err != nil {
			return err
		}
		return tx.AppendEvents(domain.NewEvent(domain.EventMint, engine.ERTKey(id), ert.CapitalLimit,
			fmt.Sprintf("owner=%s tier=%s stake=%s duration=%s", ert.Owner, rec.Tier(), ert.StakeAmount, ert.Duration), now))
	})
	if err != nil {
		return domain.ExecutionRight{}, err
	}

	c.Metrics.RecordMint()
	c.Vault.Observe(vs, "allocate", ert.CapitalLimit)
	slog.Info("controller: ert minted", "ert", ert.ID, "owner", ert.Owner,
		"capital", ert.CapitalLimit, "stake", ert.StakeAmount, "expires_at", ert.ExpiresAt())
	return ert, nil
}

// GetERT returns the execution right with its positions and settlement.
func (c *Controller) GetERT(ctx context.Context, id string) (ERTView, error) {
	var v ERTView
	err := c.Store.View(ctx, func(tx ports.LedgerTx) (err error) {
		if v.ERT, err = tx.GetERT(id); err != nil {
			return err
		}
		if v.Positions, err = tx.ListPositions(id); err != nil {
			return err
		}
		s, ok, err := tx.GetSettlement(id)
		if ok {
			v.Settlement = &s
		}
		return err
	})
	return v, err
}

// ListERTs lists execution rights by status ("" for all).
func (c *Controller) ListERTs(ctx context.Context, status domain.ERTStatus) ([]domain.ExecutionRight, error) {
	var out []domain.ExecutionRight
	err := c.Store.View(ctx, func(tx ports.LedgerTx) (err error) {
		out, err = tx.ListERTs(status)
		return err
	})
	return out, err
}

// ExpireDue moves every ACTIVE right past its expiry to EXPIRED.
// Returns how many were expired.
func (c *Controller) ExpireDue(ctx context.Context) (int, error) {
	now := c.Clock.Now()
	active, err := c.ListERTs(ctx, domain.ERTActive)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, e := range active {
		if !e.IsExpired(now) {
			continue
		}
		expired, err := c.expire(ctx, e.ID)
		if err != nil {
			return n, fmt.Errorf("controller.ExpireDue %s: %w", e.ID, err)
		}
		if expired {
			n++
		}
	}
	if n > 0 {
		c.Metrics.RecordExpired(n)
		slog.Info("controller: expired execution rights", "count", n)
	}
	return n, nil
}

func (c *Controller) expire(ctx context.Context, id string) (bool, error) {
	unlock := c.Locks.Lock(engine.ERTKey(id))
	defer unlock()

	now := c.Clock.Now()
	var changed bool
	err := c.Store.Update(ctx, func(tx ports.LedgerTx) error {
		e, err := tx.GetERT(id)
		if err != nil {
			return err
		}
		// settled in the meantime
		if e, changed = e.Expire(now); !changed {
			return nil
		}
		if err := tx.SaveERT(e); err != nil {
			return err
		}
		return tx.AppendEvents(domain.NewEvent(domain.EventExpire, engine.ERTKey(id), e.CapitalLimit, "", now))
	})
	return changed, err
}

// ─── Settlement ──────────────────────────────────────────────────────────────

func (c *Controller) EstimateSettlement(ctx context.Context, ertID string) (domain.Breakdown, error) {
	return c.Settlement.EstimateSettlement(ctx, ertID)
}

func (c *Controller) Settle(ctx context.Context, caller, ertID string) (domain.Settlement, error) {
	return c.Settlement.Settle(ctx, caller, ertID)
}

func (c *Controller) ForceSettle(ctx context.Context, caller, ertID string) (domain.Settlement, error) {
	return c.Settlement.ForceSettle(ctx, caller, ertID)
}

// ─── Positions ───────────────────────────────────────────────────────────────

func (c *Controller) OpenPosition(ctx context.Context, caller string, req positions.OpenRequest) (domain.Position, error) {
	return c.Positions.Open(ctx, caller, req)
}

func (c *Controller) ClosePosition(ctx context.Context, caller, positionID string) (domain.Position, error) {
	return c.Positions.Close(ctx, caller, positionID)
}

func (c *Controller) EstimatePnl(ctx context.Context, ertID string) (domain.PnL, error) {
	return c.Positions.EstimatePnl(ctx, ertID)
}

// ─── Executors ───────────────────────────────────────────────────────────────

func (c *Controller) RegisterExecutor(ctx context.Context, executor string) (domain.ReputationRecord, error) {
	return c.Reputation.Register(ctx, executor)
}

func (c *Controller) CheckExecutor(ctx context.Context, executor string) (reputation.Check, error) {
	return c.Reputation.CheckExecutor(ctx, executor)
}

func (c *Controller) Executor(ctx context.Context, executor string) (domain.ReputationRecord, error) {
	return c.Reputation.Get(ctx, executor)
}

// RequiredStake returns the stake executor must post to mint capital.
func (c *Controller) RequiredStake(ctx context.Context, executor string, capital decimal.Decimal) (decimal.Decimal, error) {
	if !capital.IsPositive() {
		return decimal.Zero, domain.Validation("", "capital must be positive", "capital", capital)
	}
	return c.Reputation.RequiredStake(ctx, executor, capital)
}

func (c *Controller) WhitelistExecutor(ctx context.Context, caller, executor string) (domain.ReputationRecord, error) {
	if err := c.requireAdmin(caller, "whitelist"); err != nil {
		return domain.ReputationRecord{}, err
	}
	return c.Reputation.Whitelist(ctx, executor)
}

func (c *Controller) BanExecutor(ctx context.Context, caller, executor, reason string) (domain.ReputationRecord, error) {
	if err := c.requireAdmin(caller, "ban"); err != nil {
		return domain.ReputationRecord{}, err
	}
	return c.Reputation.Ban(ctx, executor, reason)
}

func (c *Controller) UnbanExecutor(ctx context.Context, caller, executor string) (domain.ReputationRecord, error) {
	if err := c.requireAdmin(caller, "unban"); err != nil {
		return domain.ReputationRecord{}, err
	}
	return c.Reputation.Unban(ctx, executor)
}

// ─── Risk ────────────────────────────────────────────────────────────────────

func (c *Controller) BreakerStatus(ctx context.Context) (breaker.Status, error) {
	return c.Breaker.Status(ctx)
}

func (c *Controller) ResetBreaker(ctx context.Context, caller string) (breaker.Status, error) {
	if err := c.requireAdmin(caller, "reset_breaker"); err != nil {
		return breaker.Status{}, err
	}
	return c.Breaker.Reset(ctx, caller)
}

func (c *Controller) ReserveStatus(ctx context.Context) (insurance.Status, error) {
	return c.Reserve.Status(ctx)
}

// FundReserve credits an external deposit. Anyone may fund the reserve.
func (c *Controller) FundReserve(ctx context.Context, caller string, amount decimal.Decimal) (insurance.Status, error) {
	return c.Reserve.Fund(ctx, caller, amount)
}

// Events returns the audit trail of entity ("" for all), newest first.
func (c *Controller) Events(ctx context.Context, entity string, limit int) ([]domain.LedgerEvent, error) {
	var out []domain.LedgerEvent
	err := c.Store.View(ctx, func(tx ports.LedgerTx) (err error) {
		out, err = tx.ListEvents(entity, limit)
		return err
	})
	return out, err
}

// IsAdmin reports whether caller may run administrative operations.
func (c *Controller) IsAdmin(caller string) bool {
	return caller != "" && slices.Contains(c.admins, caller)
}

func (c *Controller) requireAdmin(caller, op string) error {
	if !c.IsAdmin(caller) {
		c.Metrics.RecordRejection(op, domain.ErrAuthorization)
		return domain.Unauthorized("", op+" requires an admin", "caller", caller)
	}
	return nil
}

// Package vault is the pooled capital ledger: LP deposits and withdrawals,
// and capital allocation to execution rights.
package vault

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/ertvault/internal/application/engine"
	"github.com/alejandrodnm/ertvault/internal/domain"
	"github.com/alejandrodnm/ertvault/internal/observability"
	"github.com/alejandrodnm/ertvault/internal/ports"
)

// Service owns every vault mutation. Allocation and release are only reachable
// from the controller and the settlement engine, inside their transactions.
type Service struct {
	store   ports.LedgerStore
	locks   *engine.Locker
	clock   engine.Clock
	metrics *observability.Metrics
}

// New creates the vault service.
func New(store ports.LedgerStore, locks *engine.Locker, clock engine.Clock, metrics *observability.Metrics) *Service {
	return &Service{store: store, locks: locks, clock: clock, metrics: metrics}
}

// Deposit mints shares for amount at the current exchange rate.
func (s *Service) Deposit(ctx context.Context, depositor string, amount decimal.Decimal) (decimal.Decimal, error) {
	if depositor == "" {
		return decimal.Zero, domain.Validation("", "depositor is required")
	}
	unlock := s.locks.Lock(engine.VaultKey, engine.DepositorKey(depositor))
	defer unlock()

	now := s.clock.Now()
	var shares decimal.Decimal
	var after domain.VaultState
	err := s.store.Update(ctx, func(tx ports.LedgerTx) error {
		v, err := tx.GetVault()
		if err != nil {
			return err
		}
		v, shares, err = v.Deposit(amount, now)
		if err != nil {
			return err
		}
		bal, err := tx.GetShares(depositor)
		if err != nil {
			return err
		}
		bal.Shares = bal.Shares.Add(shares)
		bal.UpdatedAt = now
		if err := tx.SaveShares(bal); err != nil {
			return err
		}
		if err := tx.SaveVault(v); err != nil {
			return err
		}
		after = v
		return tx.AppendEvents(domain.NewEvent(domain.EventDeposit, engine.DepositorKey(depositor), domain.USD(amount),
			fmt.Sprintf("shares=%s", shares), now))
	})
	if err != nil {
		s.metrics.RecordRejection("deposit", err)
		return decimal.Zero, err
	}

	s.metrics.RecordFlow("deposit", amount)
	s.metrics.ObserveVault(after.Info())
	slog.Info("vault: deposit", "depositor", depositor, "amount", amount, "shares", shares)
	return shares, nil
}

// Withdraw burns shares and returns the assets paid out.
func (s *Service) Withdraw(ctx context.Context, depositor string, shares decimal.Decimal) (decimal.Decimal, error) {
	amount, _, err := s.withdraw(ctx, "withdraw", depositor, func(domain.VaultState, domain.ShareBalance) (decimal.Decimal, error) {
		return shares, nil
	})
	return amount, err
}

// Redeem withdraws a target amount of assets, burning the shares it costs
// (rounded up). Returns the shares burned.
func (s *Service) Redeem(ctx context.Context, depositor string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, domain.Validation("", "redeem amount must be positive", "amount", amount)
	}
	_, burned, err := s.withdraw(ctx, "redeem", depositor, func(v domain.VaultState, bal domain.ShareBalance) (decimal.Decimal, error) {
		need := v.ConvertToShares(domain.USD(amount))
		if need.GreaterThan(bal.Shares) {
			return decimal.Zero, domain.Validation("", "insufficient shares", "requested", need, "balance", bal.Shares)
		}
		return need, nil
	})
	return burned, err
}

// withdraw is the single withdraw path; sharesFor picks how many shares to burn.
func (s *Service) withdraw(ctx context.Context, op, depositor string,
	sharesFor func(domain.VaultState, domain.ShareBalance) (decimal.Decimal, error),
) (decimal.Decimal, decimal.Decimal, error) {
	if depositor == "" {
		return decimal.Zero, decimal.Zero, domain.Validation("", "depositor is required")
	}
	unlock := s.locks.Lock(engine.VaultKey, engine.DepositorKey(depositor))
	defer unlock()

	now := s.clock.Now()
	var amount, shares decimal.Decimal
	var after domain.VaultState
	err := s.store.Update(ctx, func(tx ports.LedgerTx) error {
		v, err := tx.GetVault()
		if err != nil {
			return err
		}
		bal, err := tx.GetShares(depositor)
		if err != nil {
			return err
		}
		if shares, err = sharesFor(v, bal); err != nil {
			return err
		}
		v, amount, err = v.Withdraw(shares, bal.Shares, now)
		if err != nil {
			return err
		}
		bal.Shares = bal.Shares.Sub(shares)
		bal.UpdatedAt = now
		if err := tx.SaveShares(bal); err != nil {
			return err
		}
		if err := tx.SaveVault(v); err != nil {
			return err
		}
		after = v
		return tx.AppendEvents(domain.NewEvent(domain.EventWithdraw, engine.DepositorKey(depositor), amount,
			fmt.Sprintf("shares=%s", shares), now))
	})
	if err != nil {
		s.metrics.RecordRejection(op, err)
		return decimal.Zero, decimal.Zero, err
	}

	s.metrics.RecordFlow("withdraw", amount)
	s.metrics.ObserveVault(after.Info())
	slog.Info("vault: withdraw", "depositor", depositor, "shares", shares, "amount", amount)
	return amount, shares, nil
}

// Info returns the vault read model.
func (s *Service) Info(ctx context.Context) (domain.VaultInfo, error) {
	var v domain.VaultState
	err := s.store.View(ctx, func(tx ports.LedgerTx) (err error) {
		v, err = tx.GetVault()
		return err
	})
	if err != nil {
		return domain.VaultInfo{}, err
	}
	return v.Info(), nil
}

// Balance returns the shares held by depositor and their current value.
func (s *Service) Balance(ctx context.Context, depositor string) (domain.ShareBalance, decimal.Decimal, error) {
	var bal domain.ShareBalance
	var v domain.VaultState
	err := s.store.View(ctx, func(tx ports.LedgerTx) (err error) {
		if v, err = tx.GetVault(); err != nil {
			return err
		}
		bal, err = tx.GetShares(depositor)
		return err
	})
	if err != nil {
		return bal, decimal.Zero, err
	}
	return bal, v.ConvertToAssets(bal.Shares), nil
}

// AllocateTx lends amount to ertID. Callers hold the vault lock.
func (s *Service) AllocateTx(tx ports.LedgerTx, ertID string, amount decimal.Decimal, now time.Time) (domain.VaultState, error) {
	if _, exists, err := tx.GetAllocation(ertID); err != nil {
		return domain.VaultState{}, err
	} else if exists {
		return domain.VaultState{}, domain.Invariant("execution right already has an allocation", "ert", ertID)
	}
	v, err := tx.GetVault()
	if err != nil {
		return v, err
	}
	if v, err = v.Allocate(amount, now); err != nil {
		return v, err
	}
	if err := tx.SaveVault(v); err != nil {
		return v, err
	}
	alloc := domain.Allocation{ERTID: ertID, Amount: amount, AllocatedAt: now}
	if err := tx.SaveAllocation(alloc); err != nil {
		return v, err
	}
	return v, tx.AppendEvents(domain.NewEvent(domain.EventAllocate, engine.ERTKey(ertID), amount, "", now))
}

// ReleaseTx returns ertID's allocation. loss is written off vault assets and
// income is credited to them. Callers hold the vault lock.
func (s *Service) ReleaseTx(tx ports.LedgerTx, ertID string, amount, loss, income decimal.Decimal, now time.Time) (domain.VaultState, error) {
	alloc, ok, err := tx.GetAllocation(ertID)
	if err != nil {
		return domain.VaultState{}, err
	}
	if !ok {
		return domain.VaultState{}, domain.Invariant("release without allocation", "ert", ertID)
	}
	v, err := tx.GetVault()
	if err != nil {
		return v, err
	}
	v, alloc, err = v.Release(alloc, amount, loss, income, now)
	if err != nil {
		slog.Error("vault: release rejected", "ert", ertID, "err", err)
		return v, err
	}
	if err := tx.SaveVault(v); err != nil {
		return v, err
	}
	if err := tx.SaveAllocation(alloc); err != nil {
		return v, err
	}

	entity := engine.ERTKey(ertID)
	events := []domain.LedgerEvent{domain.NewEvent(domain.EventRelease, entity, amount, "", now)}
	if loss.IsPositive() {
		events = append(events, domain.NewEvent(domain.EventVaultLoss, entity, loss, "uncovered loss", now))
	}
	if income.IsPositive() {
		events = append(events, domain.NewEvent(domain.EventFeeIncome, entity, income, "", now))
	}
	return v, tx.AppendEvents(events...)
}

// Observe publishes v to the metrics gauges. Used by callers that mutate the
// vault inside their own transaction.
func (s *Service) Observe(v domain.VaultState, flow string, amount decimal.Decimal) {
	s.metrics.RecordFlow(flow, amount)
	s.metrics.ObserveVault(v.Info())
}

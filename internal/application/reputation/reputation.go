// Package reputation keeps per-executor history and derives tiers from it.
package reputation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/ertvault/internal/application/engine"
	"github.com/alejandrodnm/ertvault/internal/domain"
	"github.com/alejandrodnm/ertvault/internal/ports"
)

// Service is the reputation ledger.
type Service struct {
	store ports.LedgerStore
	locks *engine.Locker
	clock engine.Clock
}

// New creates the reputation service.
func New(store ports.LedgerStore, locks *engine.Locker, clock engine.Clock) *Service {
	return &Service{store: store, locks: locks, clock: clock}
}

// Register creates an UNVERIFIED record for executor.
func (s *Service) Register(ctx context.Context, executor string) (domain.ReputationRecord, error) {
	if executor == "" {
		return domain.ReputationRecord{}, domain.Validation("", "executor is required")
	}
	unlock := s.locks.Lock(engine.ExecutorKey(executor))
	defer unlock()

	now := s.clock.Now()
	rec := domain.NewReputationRecord(executor, now)
	err := s.store.Update(ctx, func(tx ports.LedgerTx) error {
		if _, ok, err := tx.GetReputation(executor); err != nil {
			return err
		} else if ok {
			return domain.Validation("", "executor already registered", "executor", executor)
		}
		if err := tx.SaveReputation(rec); err != nil {
			return err
		}
		return tx.AppendEvents(domain.NewEvent(domain.EventExecutorRegister, engine.ExecutorKey(executor), decimal.Zero, "", now))
	})
	if err != nil {
		return domain.ReputationRecord{}, err
	}
	slog.Info("reputation: executor registered", "executor", executor)
	return rec, nil
}

// Whitelist grants ELITE privileges regardless of history.
func (s *Service) Whitelist(ctx context.Context, executor string) (domain.ReputationRecord, error) {
	return s.mutate(ctx, executor, domain.EventWhitelist, "", func(r *domain.ReputationRecord) {
		r.Whitelisted = true
	})
}

// Ban blocks every authorization for executor until Unban.
func (s *Service) Ban(ctx context.Context, executor, reason string) (domain.ReputationRecord, error) {
	if reason == "" {
		return domain.ReputationRecord{}, domain.Validation("", "ban reason is required")
	}
	return s.mutate(ctx, executor, domain.EventBan, reason, func(r *domain.ReputationRecord) {
		r.Banned = true
		r.BanReason = reason
	})
}

// Unban lifts a ban. History is kept.
func (s *Service) Unban(ctx context.Context, executor string) (domain.ReputationRecord, error) {
	return s.mutate(ctx, executor, domain.EventUnban, "", func(r *domain.ReputationRecord) {
		r.Banned = false
		r.BanReason = ""
	})
}

func (s *Service) mutate(ctx context.Context, executor string, kind domain.EventKind, detail string, fn func(*domain.ReputationRecord)) (domain.ReputationRecord, error) {
	unlock := s.locks.Lock(engine.ExecutorKey(executor))
	defer unlock()

	now := s.clock.Now()
	var rec domain.ReputationRecord
	err := s.store.Update(ctx, func(tx ports.LedgerTx) error {
		var err error
		if rec, err = getTx(tx, executor); err != nil {
			return err
		}
		fn(&rec)
		rec.UpdatedAt = now
		if err := tx.SaveReputation(rec); err != nil {
			return err
		}
		return tx.AppendEvents(domain.NewEvent(kind, engine.ExecutorKey(executor), decimal.Zero, detail, now))
	})
	if err != nil {
		return domain.ReputationRecord{}, err
	}
	slog.Info("reputation: executor updated", "executor", executor, "event", kind, "tier", rec.Tier(), "banned", rec.Banned)
	return rec, nil
}

// Get returns the record of a registered executor.
func (s *Service) Get(ctx context.Context, executor string) (domain.ReputationRecord, error) {
	var rec domain.ReputationRecord
	err := s.store.View(ctx, func(tx ports.LedgerTx) (err error) {
		rec, err = getTx(tx, executor)
		return err
	})
	return rec, err
}

// Tier returns the current tier of executor.
func (s *Service) Tier(ctx context.Context, executor string) (domain.Tier, error) {
	rec, err := s.Get(ctx, executor)
	if err != nil {
		return domain.TierUnverified, err
	}
	return rec.Tier(), nil
}

// RequiredStakeBps returns the stake ratio executor must post.
func (s *Service) RequiredStakeBps(ctx context.Context, executor string) (int64, error) {
	rec, err := s.Get(ctx, executor)
	if err != nil {
		return 0, err
	}
	return rec.Limits().StakeBps, nil
}

// RequiredStake returns the stake executor must post for capital.
func (s *Service) RequiredStake(ctx context.Context, executor string, capital decimal.Decimal) (decimal.Decimal, error) {
	rec, err := s.Get(ctx, executor)
	if err != nil {
		return decimal.Zero, err
	}
	return rec.RequiredStake(capital), nil
}

// Check is the read model of checkExecutor.
type Check struct {
	Executor   string            `json:"executor"`
	Registered bool              `json:"registered"`
	Authorized bool              `json:"authorized"`
	Tier       string            `json:"tier"`
	Limits     domain.TierLimits `json:"-"`
	BanReason  string            `json:"ban_reason,omitempty"`
}

// CheckExecutor reports whether executor may currently mint, and at which tier.
// Unknown executors are reported, not rejected.
func (s *Service) CheckExecutor(ctx context.Context, executor string) (Check, error) {
	c := Check{Executor: executor, Tier: domain.TierUnverified.String(), Limits: domain.LimitsFor(domain.TierUnverified)}
	err := s.store.View(ctx, func(tx ports.LedgerTx) error {
		rec, ok, err := tx.GetReputation(executor)
		if err != nil || !ok {
			return err
		}
		c.Registered = true
		c.Authorized = !rec.Banned
		c.Tier = rec.Tier().String()
		c.Limits = rec.Limits()
		c.BanReason = rec.BanReason
		return nil
	})
	return c, err
}

// AuthorizeMintTx checks req against the owner's tier. Callers hold the executor lock.
func (s *Service) AuthorizeMintTx(tx ports.LedgerTx, req domain.MintRequest) (domain.ReputationRecord, error) {
	rec, ok, err := tx.GetReputation(req.Owner)
	if err != nil {
		return rec, err
	}
	if !ok {
		return rec, domain.Unauthorized("", "executor is not registered", "executor", req.Owner)
	}
	return rec, rec.AuthorizeMint(req)
}

// RecordSettlementTx folds a settlement into the executor's history.
// Callers hold the executor lock.
func (s *Service) RecordSettlementTx(tx ports.LedgerTx, executor string, pnl, volume, capital decimal.Decimal, now time.Time) (domain.SettlementOutcome, error) {
	rec, err := getTx(tx, executor)
	if err != nil {
		return domain.SettlementOutcome{}, err
	}
	rec, out := rec.RecordSettlement(pnl, volume, capital, now)
	if err := tx.SaveReputation(rec); err != nil {
		return out, err
	}

	if out.LargeLoss {
		slog.Warn("reputation: large loss", "executor", executor, "loss_bps", out.LossBps, "capital", capital)
	}
	if out.Tier != out.PreviousTier {
		slog.Info("reputation: tier changed", "executor", executor, "from", out.PreviousTier, "to", out.Tier)
	}
	detail := fmt.Sprintf("tier=%s prev=%s loss_bps=%d large_loss=%t", out.Tier, out.PreviousTier, out.LossBps, out.LargeLoss)
	return out, tx.AppendEvents(domain.NewEvent(domain.EventReputation, engine.ExecutorKey(executor), pnl, detail, now))
}

func getTx(tx ports.LedgerTx, executor string) (domain.ReputationRecord, error) {
	rec, ok, err := tx.GetReputation(executor)
	if err != nil {
		return rec, err
	}
	if !ok {
		return rec, domain.NotFound("executor", executor)
	}
	return rec, nil
}

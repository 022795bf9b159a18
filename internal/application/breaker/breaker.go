// Package breaker suspends risk-increasing operations after a bad day.
package breaker

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

// Config holds the breaker limits.
type Config struct {
	MaxDailyLossBps int64
	Timezone        string
}

// Status is the breaker read model.
type Status struct {
	State           string          `json:"state"`
	DailyLossBps    decimal.Decimal `json:"daily_loss_bps"`
	MaxDailyLossBps int64           `json:"max_daily_loss_bps"`
	WindowStart     time.Time       `json:"window_start"`
	TrippedAt       *time.Time      `json:"tripped_at,omitempty"`
	TripReason      string          `json:"trip_reason,omitempty"`
}

// Service owns the circuit breaker state.
type Service struct {
	store   ports.LedgerStore
	locks   *engine.Locker
	clock   engine.Clock
	metrics *observability.Metrics
	cfg     Config
}

// New creates the breaker service.
func New(store ports.LedgerStore, locks *engine.Locker, clock engine.Clock, metrics *observability.Metrics, cfg Config) *Service {
	return &Service{store: store, locks: locks, clock: clock, metrics: metrics, cfg: cfg}
}

// LoadTx reads the breaker, applies the configured limits and rolls the daily window.
func (s *Service) LoadTx(tx ports.LedgerTx, now time.Time) (domain.CircuitBreaker, error) {
	cb, err := tx.GetBreaker()
	if err != nil {
		return cb, err
	}
	cb.MaxDailyLossBps = s.cfg.MaxDailyLossBps
	cb.Timezone = s.cfg.Timezone
	cb, _ = cb.Roll(now)
	return cb, nil
}

// CheckTx fails with a CircuitBreakerTripped error while the breaker is open.
func (s *Service) CheckTx(tx ports.LedgerTx, op string, now time.Time) error {
	cb, err := s.LoadTx(tx, now)
	if err != nil {
		return err
	}
	if cb.IsTripped() {
		return domain.Tripped(op+" suspended while circuit breaker is tripped",
			"tripped_at", cb.TrippedAt.Format(time.RFC3339), "reason", cb.TripReason)
	}
	return nil
}

// RecordLossTx accumulates a realized loss measured against totalAssets
// (vault assets before the loss). Returns true when this loss tripped the breaker.
// Callers hold the breaker lock.
func (s *Service) RecordLossTx(tx ports.LedgerTx, loss, totalAssets decimal.Decimal, entity string, now time.Time) (domain.CircuitBreaker, bool, error) {
	cb, err := s.LoadTx(tx, now)
	if err != nil {
		return cb, false, err
	}
	cb, tripped := cb.RecordLoss(loss, totalAssets, now)
	if err := tx.SaveBreaker(cb); err != nil {
		return cb, false, err
	}
	if !tripped {
		return cb, false, nil
	}
	slog.Warn("breaker: tripped", "daily_loss_bps", cb.DailyLossBps, "max_bps", cb.MaxDailyLossBps, "trigger", entity)
	return cb, true, tx.AppendEvents(domain.NewEvent(domain.EventBreakerTrip, engine.BreakerKey, loss,
		fmt.Sprintf("%s trigger=%s", cb.TripReason, entity), now))
}

// Status returns the breaker read model with the window rolled to now.
func (s *Service) Status(ctx context.Context) (Status, error) {
	now := s.clock.Now()
	var cb domain.CircuitBreaker
	err := s.store.View(ctx, func(tx ports.LedgerTx) (err error) {
		cb, err = s.LoadTx(tx, now)
		return err
	})
	if err != nil {
		return Status{}, err
	}
	return statusOf(cb), nil
}

// Reset is the administrative TRIPPED→NORMAL transition. The daily
// accumulator is kept: a reset does not forgive the day's losses.
func (s *Service) Reset(ctx context.Context, by string) (Status, error) {
	unlock := s.locks.Lock(engine.BreakerKey)
	defer unlock()

	now := s.clock.Now()
	var cb domain.CircuitBreaker
	var was bool
	err := s.store.Update(ctx, func(tx ports.LedgerTx) (err error) {
		if cb, err = s.LoadTx(tx, now); err != nil {
			return err
		}
		was = cb.IsTripped()
		cb = cb.Reset()
		if err := tx.SaveBreaker(cb); err != nil {
			return err
		}
		if !was {
			return nil
		}
		return tx.AppendEvents(domain.NewEvent(domain.EventBreakerReset, engine.BreakerKey, decimal.Zero, "reset by "+by, now))
	})
	if err != nil {
		return Status{}, err
	}
	s.metrics.ObserveBreaker(cb)
	if was {
		slog.Info("breaker: reset", "by", by, "daily_loss_bps", cb.DailyLossBps)
	}
	return statusOf(cb), nil
}

// Observe publishes cb to the metrics gauges.
func (s *Service) Observe(cb domain.CircuitBreaker) { s.metrics.ObserveBreaker(cb) }

func statusOf(cb domain.CircuitBreaker) Status {
	return Status{
		State:           cb.State(),
		DailyLossBps:    cb.DailyLossBps,
		MaxDailyLossBps: cb.MaxDailyLossBps,
		WindowStart:     cb.WindowStart,
		TrippedAt:       cb.TrippedAt,
		TripReason:      cb.TripReason,
	}
}

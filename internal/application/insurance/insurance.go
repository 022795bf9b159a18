// Package insurance manages the reserve that absorbs losses beyond an executor's stake.
package insurance

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/ertvault/internal/application/engine"
	"github.com/alejandrodnm/ertvault/internal/domain"
	"github.com/alejandrodnm/ertvault/internal/observability"
	"github.com/alejandrodnm/ertvault/internal/ports"
)

// Status is the reserve read model.
type Status struct {
	Balance  decimal.Decimal `json:"balance"`
	Target   decimal.Decimal `json:"target"`
	Coverage decimal.Decimal `json:"coverage"`
}

// Service owns the insurance reserve.
type Service struct {
	store   ports.LedgerStore
	locks   *engine.Locker
	clock   engine.Clock
	metrics *observability.Metrics
	target  decimal.Decimal
}

// New creates the reserve service. target is the configured coverage goal (0 = none).
func New(store ports.LedgerStore, locks *engine.Locker, clock engine.Clock, metrics *observability.Metrics, target decimal.Decimal) *Service {
	return &Service{store: store, locks: locks, clock: clock, metrics: metrics, target: target}
}

// Fund credits an external deposit into the reserve.
func (s *Service) Fund(ctx context.Context, from string, amount decimal.Decimal) (Status, error) {
	if !amount.IsPositive() {
		return Status{}, domain.Validation("", "reserve funding must be positive", "amount", amount)
	}
	unlock := s.locks.Lock(engine.ReserveKey)
	defer unlock()

	now := s.clock.Now()
	var r domain.InsuranceReserve
	err := s.store.Update(ctx, func(tx ports.LedgerTx) (err error) {
		r, err = s.CreditTx(tx, domain.USD(amount), "funding from "+from, now)
		return err
	})
	if err != nil {
		s.metrics.RecordRejection("fund_reserve", err)
		return Status{}, err
	}
	s.metrics.ObserveReserve(r)
	slog.Info("insurance: reserve funded", "from", from, "amount", amount, "balance", r.Balance)
	return statusOf(r), nil
}

// Status returns the reserve balance and coverage.
func (s *Service) Status(ctx context.Context) (Status, error) {
	var r domain.InsuranceReserve
	err := s.store.View(ctx, func(tx ports.LedgerTx) (err error) {
		r, err = s.LoadTx(tx)
		return err
	})
	return statusOf(r), err
}

// LoadTx reads the reserve and applies the configured target.
func (s *Service) LoadTx(tx ports.LedgerTx) (domain.InsuranceReserve, error) {
	r, err := tx.GetReserve()
	if err != nil {
		return r, err
	}
	r.Target = s.target
	return r, nil
}

// CreditTx adds amount to the reserve. Callers hold the reserve lock.
func (s *Service) CreditTx(tx ports.LedgerTx, amount decimal.Decimal, detail string, now time.Time) (domain.InsuranceReserve, error) {
	r, err := s.LoadTx(tx)
	if err != nil {
		return r, err
	}
	if r, err = r.Credit(amount, now); err != nil {
		return r, err
	}
	if err := tx.SaveReserve(r); err != nil {
		return r, err
	}
	return r, tx.AppendEvents(domain.NewEvent(domain.EventReserveCredit, engine.ReserveKey, amount, detail, now))
}

// DrawTx takes up to requested from the reserve and returns the amount drawn.
// Callers hold the reserve lock.
func (s *Service) DrawTx(tx ports.LedgerTx, requested decimal.Decimal, detail string, now time.Time) (domain.InsuranceReserve, decimal.Decimal, error) {
	r, err := s.LoadTx(tx)
	if err != nil {
		return r, decimal.Zero, err
	}
	r, drawn, err := r.Draw(requested, now)
	if err != nil {
		slog.Error("insurance: draw rejected", "requested", requested, "err", err)
		return r, drawn, err
	}
	if err := tx.SaveReserve(r); err != nil {
		return r, drawn, err
	}
	if drawn.LessThan(requested) {
		slog.Warn("insurance: reserve exhausted", "requested", requested, "drawn", drawn)
	}
	return r, drawn, tx.AppendEvents(domain.NewEvent(domain.EventReserveDraw, engine.ReserveKey, drawn, detail, now))
}

// Observe publishes r to the metrics gauges.
func (s *Service) Observe(r domain.InsuranceReserve) { s.metrics.ObserveReserve(r) }

func statusOf(r domain.InsuranceReserve) Status {
	return Status{Balance: r.Balance, Target: r.Target, Coverage: r.Coverage()}
}

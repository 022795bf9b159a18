// Package positions is the position ledger: it opens and closes positions on
// trade adapters on behalf of an execution right and values them with the oracle.
package positions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/ertvault/internal/application/breaker"
	"github.com/alejandrodnm/ertvault/internal/application/engine"
	"github.com/alejandrodnm/ertvault/internal/domain"
	"github.com/alejandrodnm/ertvault/internal/observability"
	"github.com/alejandrodnm/ertvault/internal/ports"
)

// Config bounds oracle reads.
type Config struct {
	OracleTimeout time.Duration
	MaxPriceAge   time.Duration
}

// OpenRequest describes a new position. Exactly one of Size (asset units) or
// EntryValueUSD (notional at the current mark) must be set.
type OpenRequest struct {
	ERTID         string          `json:"ert_id"`
	Adapter       string          `json:"adapter"`
	Asset         string          `json:"asset"`
	Side          domain.Side     `json:"side"`
	Size          decimal.Decimal `json:"size"`
	EntryValueUSD decimal.Decimal `json:"entry_value_usd"`
}

func (r OpenRequest) validate() error {
	switch {
	case r.ERTID == "":
		return domain.Validation("", "ert id is required")
	case r.Adapter == "" || r.Asset == "":
		return domain.Validation("", "adapter and asset are required")
	case !r.Side.Valid():
		return domain.Validation("", "unknown side", "side", r.Side)
	case r.Size.IsNegative() || r.EntryValueUSD.IsNegative():
		return domain.Validation("", "size and entry value must not be negative", "size", r.Size, "entry_value_usd", r.EntryValueUSD)
	case r.Size.IsPositive() == r.EntryValueUSD.IsPositive():
		return domain.Validation("", "exactly one of size or entry value is required", "size", r.Size, "entry_value_usd", r.EntryValueUSD)
	}
	return nil
}

// Valuation is an execution right priced at the oracle marks.
type Valuation struct {
	PnL    domain.PnL
	Marks  map[string]decimal.Decimal // asset → mark used
	Volume decimal.Decimal            // entry value of every position
}

// Service is the position ledger.
type Service struct {
	store   ports.LedgerStore
	locks   *engine.Locker
	clock   engine.Clock
	metrics *observability.Metrics
	oracle  ports.PriceOracle
	breaker *breaker.Service
	venues  map[string]ports.TradeAdapter
	cfg     Config
}

// New creates the position ledger over the given trade adapters.
func New(store ports.LedgerStore, locks *engine.Locker, clock engine.Clock, metrics *observability.Metrics,
	oracle ports.PriceOracle, cb *breaker.Service, venues []ports.TradeAdapter, cfg Config,
) (*Service, error) {
	if cfg.OracleTimeout <= 0 {
		cfg.OracleTimeout = 3 * time.Second
	}
	if cfg.MaxPriceAge <= 0 {
		cfg.MaxPriceAge = 5 * time.Minute
	}
	byName := make(map[string]ports.TradeAdapter, len(venues))
	for _, v := range venues {
		if _, dup := byName[v.Name()]; dup {
			return nil, fmt.Errorf("positions.New: duplicate venue %q", v.Name())
		}
		byName[v.Name()] = v
	}
	return &Service{
		store:   store,
		locks:   locks,
		clock:   clock,
		metrics: metrics,
		oracle:  oracle,
		breaker: cb,
		venues:  byName,
		cfg:     cfg,
	}, nil
}

// Open executes req on its venue and records the position.
// Constraint checks run before any venue call.
func (s *Service) Open(ctx context.Context, caller string, req OpenRequest) (domain.Position, error) {
	p, err := s.open(ctx, caller, req)
	if err != nil {
		s.metrics.RecordRejection("open_position", err)
		return domain.Position{}, err
	}
	return p, nil
}

func (s *Service) open(ctx context.Context, caller string, req OpenRequest) (domain.Position, error) {
	if err := req.validate(); err != nil {
		return domain.Position{}, err
	}
	unlock := s.locks.Lock(engine.ERTKey(req.ERTID))
	defer unlock()

	now := s.clock.Now()
	var ert domain.ExecutionRight
	var open []domain.Position
	err := s.store.View(ctx, func(tx ports.LedgerTx) (err error) {
		if ert, err = tx.GetERT(req.ERTID); err != nil {
			return err
		}
		if err := checkTradable(ert, caller, now); err != nil {
			return err
		}
		if !ert.AllowsAdapter(req.Adapter) {
			return domain.Validation(domain.CodeAdapterNotAllowed, "adapter not allowed for this execution right",
				"adapter", req.Adapter, "allowed", ert.Constraints.AllowedAdapters)
		}
		if !ert.AllowsAsset(req.Asset) {
			return domain.Validation(domain.CodeAssetNotAllowed, "asset not allowed for this execution right",
				"asset", req.Asset, "allowed", ert.Constraints.AllowedAssets)
		}
		if err := s.breaker.CheckTx(tx, "open position", now); err != nil {
			return err
		}
		if open, err = tx.ListPositions(ert.ID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return domain.Position{}, err
	}
	v, ok := s.venues[req.Adapter]
	if !ok {
		return domain.Position{}, domain.Validation("", "adapter is not configured", "adapter", req.Adapter)
	}

	price, err := s.price(ctx, req.Asset)
	if err != nil {
		return domain.Position{}, err
	}
	mark := price.USD()
	size := req.Size
	if !size.IsPositive() {
		size = req.EntryValueUSD.DivRound(mark, domain.NativePlaces)
	}
	notional := domain.USD(size.Mul(mark))
	if err := s.checkLimits(ctx, ert, open, notional); err != nil {
		return domain.Position{}, err
	}

	fill, err := v.Open(ctx, domain.VenueOrder{Asset: req.Asset, Side: req.Side, Size: size, Mark: mark})
	if err != nil {
		return domain.Position{}, fmt.Errorf("positions.Open %s: %w", v.Name(), err)
	}
	pos := domain.Position{
		ID:            uuid.NewString(),
		ERTID:         ert.ID,
		Adapter:       v.Name(),
		Asset:         req.Asset,
		Side:          req.Side,
		Size:          fill.Size,
		EntryValueUSD: fill.ValueUSD,
		EntryPrice:    fill.Price,
		OpenedAt:      now,
		Status:        domain.PositionOpen,
		ExitPrice:     decimal.Zero,
		RealizedPnl:   decimal.Zero,
	}

	err = s.store.Update(ctx, func(tx ports.LedgerTx) error {
		// the breaker may have tripped while the order was in flight
		if err := s.breaker.CheckTx(tx, "open position", now); err != nil {
			return err
		}
		if err := tx.SavePosition(pos); err != nil {
			return err
		}
		return tx.AppendEvents(domain.NewEvent(domain.EventPositionOpen, engine.ERTKey(ert.ID), pos.EntryValueUSD,
			fmt.Sprintf("position=%s adapter=%s asset=%s side=%s size=%s price=%s", pos.ID, pos.Adapter, pos.Asset, pos.Side, pos.Size, pos.EntryPrice), now))
	})
	if err != nil {
		return domain.Position{}, err
	}

	s.metrics.RecordPosition(v.Kind(), true)
	slog.Info("positions: opened", "ert", ert.ID, "position", pos.ID, "adapter", pos.Adapter,
		"asset", pos.Asset, "side", pos.Side, "size", pos.Size, "value", pos.EntryValueUSD)
	return pos, nil
}

// checkLimits enforces position size, leverage and drawdown for a new notional.
func (s *Service) checkLimits(ctx context.Context, ert domain.ExecutionRight, positions []domain.Position, notional decimal.Decimal) error {
	c := ert.Constraints
	if limit := domain.ApplyBps(ert.CapitalLimit, c.MaxPositionSizeBps); notional.GreaterThan(limit) {
		return domain.Validation("", "position size exceeds limit", "notional", notional, "max", limit)
	}

	exposure := notional
	for _, p := range positions {
		if p.Status == domain.PositionOpen {
			exposure = exposure.Add(p.EntryValueUSD)
		}
	}
	if limit := ert.CapitalLimit.Mul(decimal.NewFromInt(c.MaxLeverage)); exposure.GreaterThan(limit) {
		return domain.Validation("", "gross exposure exceeds leverage limit",
			"exposure", exposure, "max", limit, "max_leverage", c.MaxLeverage)
	}

	val, err := s.Valuate(ctx, ert, positions)
	if err != nil {
		return err
	}
	if total := val.PnL.Total(); total.IsNegative() {
		limit := domain.ApplyBps(ert.CapitalLimit, c.MaxDrawdownBps)
		if loss := total.Neg(); loss.GreaterThan(limit) {
			return domain.Validation(domain.CodeDrawdownExceeded, "drawdown limit exceeded",
				"loss", loss, "limit", limit, "max_drawdown_bps", c.MaxDrawdownBps)
		}
	}
	return nil
}

// Close unwinds an open position at the current mark and freezes its PnL on the ERT.
// Positions of EXPIRED rights may still be closed.
func (s *Service) Close(ctx context.Context, caller, positionID string) (domain.Position, error) {
	p, err := s.close(ctx, caller, positionID)
	if err != nil {
		s.metrics.RecordRejection("close_position", err)
		return domain.Position{}, err
	}
	return p, nil
}

func (s *Service) close(ctx context.Context, caller, positionID string) (domain.Position, error) {
	var pos domain.Position
	err := s.store.View(ctx, func(tx ports.LedgerTx) (err error) {
		pos, err = tx.GetPosition(positionID)
		return err
	})
	if err != nil {
		return domain.Position{}, err
	}

	unlock := s.locks.Lock(engine.ERTKey(pos.ERTID))
	defer unlock()

	var ert domain.ExecutionRight
	err = s.store.View(ctx, func(tx ports.LedgerTx) (err error) {
		if pos, err = tx.GetPosition(positionID); err != nil {
			return err
		}
		ert, err = tx.GetERT(pos.ERTID)
		return err
	})
	if err != nil {
		return domain.Position{}, err
	}
	switch {
	case pos.Status != domain.PositionOpen:
		return domain.Position{}, domain.Validation(domain.CodeBadStatus, "position is not open", "position", pos.ID, "status", pos.Status)
	case ert.Status == domain.ERTSettled:
		return domain.Position{}, domain.Validation(domain.CodeBadStatus, "execution right already settled", "ert", ert.ID)
	case ert.Owner != caller:
		return domain.Position{}, domain.Unauthorized(domain.CodeNotOwner, "caller does not own this execution right", "ert", ert.ID, "caller", caller)
	}

	v, ok := s.venues[pos.Adapter]
	if !ok {
		return domain.Position{}, domain.Invariant("position on unknown adapter", "position", pos.ID, "adapter", pos.Adapter)
	}
	price, err := s.price(ctx, pos.Asset)
	if err != nil {
		return domain.Position{}, err
	}
	fill, err := v.Close(ctx, pos, price.USD())
	if err != nil {
		return domain.Position{}, fmt.Errorf("positions.Close %s: %w", v.Name(), err)
	}

	now := s.clock.Now()
	pos = pos.Close(fill.Price, now)
	loss := pos.RealizedPnl.Neg()
	if loss.IsPositive() {
		unlockShared := s.locks.Lock(engine.VaultKey, engine.BreakerKey)
		defer unlockShared()
	}

	var cb domain.CircuitBreaker
	var tripped bool
	err = s.store.Update(ctx, func(tx ports.LedgerTx) error {
		e, err := tx.GetERT(pos.ERTID)
		if err != nil {
			return err
		}
		if loss.IsPositive() {
			v, err := tx.GetVault()
			if err != nil {
				return err
			}
			if cb, tripped, err = s.breaker.RecordLossTx(tx, loss, v.TotalAssets, engine.ERTKey(e.ID), now); err != nil {
				return fmt.Errorf("positions.Close: breaker: %w", err)
			}
		}
		e.RealizedPnl = e.RealizedPnl.Add(pos.RealizedPnl)
		if err := tx.SaveERT(e); err != nil {
			return err
		}
		if err := tx.SavePosition(pos); err != nil {
			return err
		}
		return tx.AppendEvents(domain.NewEvent(domain.EventPositionClose, engine.ERTKey(e.ID), pos.RealizedPnl,
			fmt.Sprintf("position=%s exit=%s", pos.ID, pos.ExitPrice), now))
	})
	if err != nil {
		return domain.Position{}, err
	}

	s.metrics.RecordPosition(v.Kind(), false)
	if loss.IsPositive() {
		s.breaker.Observe(cb)
	}
	if tripped {
		slog.Warn("positions: circuit breaker tripped", "ert", pos.ERTID, "position", pos.ID, "reason", cb.TripReason)
	}
	slog.Info("positions: closed", "ert", pos.ERTID, "position", pos.ID, "exit", pos.ExitPrice, "pnl", pos.RealizedPnl)
	return pos, nil
}

// Positions lists every position of ertID.
func (s *Service) Positions(ctx context.Context, ertID string) ([]domain.Position, error) {
	var out []domain.Position
	err := s.store.View(ctx, func(tx ports.LedgerTx) (err error) {
		if _, err = tx.GetERT(ertID); err != nil {
			return err
		}
		out, err = tx.ListPositions(ertID)
		return err
	})
	return out, err
}

// EstimatePnl returns realized and unrealized PnL at the current marks.
func (s *Service) EstimatePnl(ctx context.Context, ertID string) (domain.PnL, error) {
	var ert domain.ExecutionRight
	var positions []domain.Position
	err := s.store.View(ctx, func(tx ports.LedgerTx) (err error) {
		if ert, err = tx.GetERT(ertID); err != nil {
			return err
		}
		positions, err = tx.ListPositions(ertID)
		return err
	})
	if err != nil {
		return domain.PnL{}, err
	}
	val, err := s.Valuate(ctx, ert, positions)
	return val.PnL, err
}

// Valuate prices every open position of ert. Fails closed on a stale price.
// Must not be called inside a storage transaction.
func (s *Service) Valuate(ctx context.Context, ert domain.ExecutionRight, positions []domain.Position) (Valuation, error) {
	val := Valuation{
		PnL:    domain.PnL{Realized: ert.RealizedPnl, Unrealized: decimal.Zero, PricedAt: s.clock.Now()},
		Marks:  make(map[string]decimal.Decimal),
		Volume: decimal.Zero,
	}
	for _, p := range positions {
		val.Volume = val.Volume.Add(p.EntryValueUSD)
		if p.Status != domain.PositionOpen {
			continue
		}
		mark, ok := val.Marks[p.Asset]
		if !ok {
			price, err := s.price(ctx, p.Asset)
			if err != nil {
				return Valuation{}, err
			}
			mark = price.USD()
			val.Marks[p.Asset] = mark
		}
		pnl := p.PnlAt(mark)
		if v, ok := s.venues[p.Adapter]; ok {
			pnl = v.Report(p, mark)
		}
		val.PnL.Unrealized = val.PnL.Unrealized.Add(pnl)
	}
	return val, nil
}

// price reads the oracle with a timeout and rejects quotes older than MaxPriceAge.
func (s *Service) price(ctx context.Context, asset string) (domain.Price, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.OracleTimeout)
	defer cancel()

	start := time.Now()
	p, err := s.oracle.GetPriceUSD(ctx, asset)
	s.metrics.ObserveOracle(asset, time.Since(start), err)
	if err != nil {
		return domain.Price{}, fmt.Errorf("positions.price %s: %w", asset, err)
	}
	if !p.USD().IsPositive() {
		return domain.Price{}, domain.Stale("oracle returned a non-positive price", "asset", asset, "price", p.USD())
	}
	now := s.clock.Now()
	if age := now.Sub(p.Timestamp); age > s.cfg.MaxPriceAge {
		s.metrics.RecordStalePrice(asset)
		slog.Warn("positions: stale price", "asset", asset, "age", age, "max_age", s.cfg.MaxPriceAge)
		return domain.Price{}, domain.Stale("oracle price too old", "asset", asset,
			"age", age.Truncate(time.Second), "max_age", s.cfg.MaxPriceAge)
	}
	return p, nil
}

// checkTradable rejects new risk on rights that are not ACTIVE, have run out, or belong to someone else.
func checkTradable(ert domain.ExecutionRight, caller string, now time.Time) error {
	if ert.Status != domain.ERTActive {
		return domain.Validation(domain.CodeBadStatus, "execution right is not active", "ert", ert.ID, "status", ert.Status)
	}
	if ert.IsExpired(now) {
		return domain.Validation(domain.CodeExpired, "execution right has expired", "ert", ert.ID, "expired_at", ert.ExpiresAt().Format(time.RFC3339))
	}
	if ert.Owner != caller {
		return domain.Unauthorized(domain.CodeNotOwner, "caller does not own this execution right", "ert", ert.ID, "caller", caller)
	}
	return nil
}

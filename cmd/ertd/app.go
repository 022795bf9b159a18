package main

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/ertvault/config"
	"github.com/alejandrodnm/ertvault/internal/adapters/notify"
	"github.com/alejandrodnm/ertvault/internal/adapters/oracle"
	"github.com/alejandrodnm/ertvault/internal/adapters/storage"
	"github.com/alejandrodnm/ertvault/internal/adapters/venue"
	"github.com/alejandrodnm/ertvault/internal/application/breaker"
	"github.com/alejandrodnm/ertvault/internal/application/controller"
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

// app agrupa todo lo que un comando necesita.
type app struct {
	cfg     *config.Config
	store   *storage.SQLiteStorage
	metrics *observability.Metrics
	console *notify.Console
	ctl     *controller.Controller
}

// buildApp abre el ledger y cablea los servicios. El llamador cierra con close().
func buildApp(cfg *config.Config) (*app, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		return nil, fmt.Errorf("open storage %q: %w", cfg.Storage.DSN, err)
	}

	target, err := decimal.NewFromString(cfg.Reserve.TargetUSD)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("reserve.target_usd: %w", err)
	}

	venues := make([]ports.TradeAdapter, 0, len(cfg.Venues))
	for _, vc := range cfg.Venues {
		v, err := venue.New(vc.Name, domain.VenueKind(vc.Kind), vc.SlippageBps)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("venue %s: %w", vc.Name, err)
		}
		venues = append(venues, v)
	}

	locks := engine.NewLocker()
	clock := engine.SystemClock{}
	metrics := observability.NewMetrics(cfg.Engine.MetricsNamespace)
	console := notify.NewConsole()
	prices := oracle.NewClient(cfg.Oracle.BaseURL, cfg.Oracle.RatePerSec)

	v := vault.New(store, locks, clock, metrics)
	rep := reputation.New(store, locks, clock)
	res := insurance.New(store, locks, clock, metrics, target)
	cb := breaker.New(store, locks, clock, metrics, breaker.Config{
		MaxDailyLossBps: cfg.Engine.MaxDailyLossBps,
		Timezone:        cfg.Engine.BreakerTimezone,
	})
	pos, err := positions.New(store, locks, clock, metrics, prices, cb, venues, positions.Config{
		OracleTimeout: cfg.OracleTimeout(),
		MaxPriceAge:   cfg.MaxPriceAge(),
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	eng := settlement.New(settlement.Deps{
		Store: store, Locks: locks, Clock: clock, Metrics: metrics,
		Positions: pos, Vault: v, Reserve: res, Breaker: cb, Reputation: rep,
		Notifier: console,
	}, settlement.Config{
		InsuranceFeeBps: cfg.Engine.InsuranceFeeBps,
		Controllers:     cfg.Engine.Controllers,
	})

	ctl := controller.New(controller.Services{
		Store: store, Locks: locks, Clock: clock, Metrics: metrics,
		Vault: v, Reputation: rep, Reserve: res, Breaker: cb, Positions: pos, Settlement: eng,
	}, cfg.Engine.Controllers)

	return &app{cfg: cfg, store: store, metrics: metrics, console: console, ctl: ctl}, nil
}

func (a *app) close() {
	a.store.Close()
}

// withApp carga config, construye la app y ejecuta fn.
func withApp(fn func(a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}

func parseAmount(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	return d, nil
}

// Package observability provides Prometheus metrics for the settlement engine.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/ertvault/internal/domain"
)

// Metrics holds all Prometheus metrics for the engine. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Vault metrics
	VaultTotalAssets prometheus.Gauge
	VaultAllocated   prometheus.Gauge
	VaultUtilization prometheus.Gauge
	VaultSharePrice  prometheus.Gauge
	VaultFlows       *prometheus.CounterVec

	// Execution right metrics
	ERTsMinted       prometheus.Counter
	ERTsExpired      prometheus.Counter
	PositionsOpened  *prometheus.CounterVec
	PositionsClosed  *prometheus.CounterVec
	Settlements      *prometheus.CounterVec
	SettlementPnlUSD prometheus.Histogram

	// Risk metrics
	ReserveBalance    prometheus.Gauge
	ReserveDraws      prometheus.Counter
	BreakerTripped    prometheus.Gauge
	BreakerDailyLoss  prometheus.Gauge
	OperationRejected *prometheus.CounterVec

	// Oracle metrics
	OracleLatency  *prometheus.HistogramVec
	OracleErrors   *prometheus.CounterVec
	StalePriceHits *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance registered on its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "ertvault"
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		VaultTotalAssets: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "total_assets_usd",
			Help:      "Total assets held by the vault in USD",
		}),
		VaultAllocated: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "allocated_capital_usd",
			Help:      "Capital currently allocated to execution rights in USD",
		}),
		VaultUtilization: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "utilization_ratio",
			Help:      "Allocated capital over total assets",
		}),
		VaultSharePrice: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "share_price_usd",
			Help:      "Assets per vault share",
		}),
		VaultFlows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "flows_usd_total",
			Help:      "Capital moved through the vault by direction",
		}, []string{"direction"}),

		ERTsMinted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ert",
			Name:      "minted_total",
			Help:      "Total number of execution rights minted",
		}),
		ERTsExpired: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ert",
			Name:      "expired_total",
			Help:      "Total number of execution rights moved to EXPIRED",
		}),
		PositionsOpened: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "opened_total",
			Help:      "Positions opened by venue kind",
		}, []string{"kind"}),
		PositionsClosed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "positions",
			Name:      "closed_total",
			Help:      "Positions closed by venue kind",
		}, []string{"kind"}),
		Settlements: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "total",
			Help:      "Settlements by outcome and mode",
		}, []string{"outcome", "mode"}),
		SettlementPnlUSD: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "pnl_usd",
			Help:      "Total PnL per settlement in USD",
			Buckets:   []float64{-10000, -1000, -100, -10, 0, 10, 100, 1000, 10000},
		}),

		ReserveBalance: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reserve",
			Name:      "balance_usd",
			Help:      "Insurance reserve balance in USD",
		}),
		ReserveDraws: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reserve",
			Name:      "draws_total",
			Help:      "Settlements that drew on the insurance reserve",
		}),
		BreakerTripped: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "breaker",
			Name:      "tripped",
			Help:      "1 while the circuit breaker is tripped",
		}),
		BreakerDailyLoss: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "breaker",
			Name:      "daily_loss_bps",
			Help:      "Accumulated realized loss in the current window, in bps of vault assets",
		}),
		OperationRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "rejected_total",
			Help:      "Rejected operations by operation and error kind",
		}, []string{"op", "kind"}),

		OracleLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "latency_seconds",
			Help:      "Oracle price lookup latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"asset"}),
		OracleErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "errors_total",
			Help:      "Oracle lookups that failed",
		}, []string{"asset"}),
		StalePriceHits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "stale_total",
			Help:      "Valuations rejected because the price was too old",
		}, []string{"asset"}),
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry (tests and extra collectors).
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveVault records the vault gauges.
func (m *Metrics) ObserveVault(info domain.VaultInfo) {
	if m == nil {
		return
	}
	m.VaultTotalAssets.Set(info.TotalAssets.InexactFloat64())
	m.VaultAllocated.Set(info.AllocatedCapital.InexactFloat64())
	m.VaultUtilization.Set(info.UtilizationRate.InexactFloat64())
	m.VaultSharePrice.Set(info.SharePrice.InexactFloat64())
}

// RecordFlow adds amount to the flow counter for direction (deposit, withdraw, allocate, release).
func (m *Metrics) RecordFlow(direction string, amount decimal.Decimal) {
	if m == nil || !amount.IsPositive() {
		return
	}
	m.VaultFlows.WithLabelValues(direction).Add(amount.InexactFloat64())
}

// RecordMint counts a minted execution right.
func (m *Metrics) RecordMint() {
	if m == nil {
		return
	}
	m.ERTsMinted.Inc()
}

// RecordExpired counts execution rights moved to EXPIRED.
func (m *Metrics) RecordExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ERTsExpired.Add(float64(n))
}

// RecordPosition counts a position transition for a venue kind.
func (m *Metrics) RecordPosition(kind domain.VenueKind, opened bool) {
	if m == nil {
		return
	}
	if opened {
		m.PositionsOpened.WithLabelValues(string(kind)).Inc()
		return
	}
	m.PositionsClosed.WithLabelValues(string(kind)).Inc()
}

// RecordSettlement counts a settlement and observes its PnL.
func (m *Metrics) RecordSettlement(s domain.Settlement) {
	if m == nil {
		return
	}
	outcome := "loss"
	if s.Breakdown.TotalPnl.IsPositive() {
		outcome = "profit"
	}
	mode := "normal"
	if s.Forced {
		mode = "forced"
	}
	m.Settlements.WithLabelValues(outcome, mode).Inc()
	m.SettlementPnlUSD.Observe(s.Breakdown.TotalPnl.InexactFloat64())
	if s.Breakdown.InsuranceDraw.IsPositive() {
		m.ReserveDraws.Inc()
	}
}

// ObserveReserve records the reserve balance.
func (m *Metrics) ObserveReserve(r domain.InsuranceReserve) {
	if m == nil {
		return
	}
	m.ReserveBalance.Set(r.Balance.InexactFloat64())
}

// ObserveBreaker records the breaker state.
func (m *Metrics) ObserveBreaker(cb domain.CircuitBreaker) {
	if m == nil {
		return
	}
	tripped := 0.0
	if cb.IsTripped() {
		tripped = 1
	}
	m.BreakerTripped.Set(tripped)
	m.BreakerDailyLoss.Set(cb.DailyLossBps.InexactFloat64())
}

// RecordRejection counts a failed operation by its error kind.
func (m *Metrics) RecordRejection(op string, err error) {
	if m == nil || err == nil {
		return
	}
	kind := string(domain.KindOf(err))
	if kind == "" {
		kind = "INTERNAL"
	}
	m.OperationRejected.WithLabelValues(op, kind).Inc()
}

// ObserveOracle records the latency and outcome of a price lookup.
func (m *Metrics) ObserveOracle(asset string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.OracleLatency.WithLabelValues(asset).Observe(elapsed.Seconds())
	if err != nil {
		m.OracleErrors.WithLabelValues(asset).Inc()
	}
}

// RecordStalePrice counts a stale price rejection.
func (m *Metrics) RecordStalePrice(asset string) {
	if m == nil {
		return
	}
	m.StalePriceHits.WithLabelValues(asset).Inc()
}

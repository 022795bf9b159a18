package observability_test

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/alejandrodnm/ertvault/internal/domain"
	"github.com/alejandrodnm/ertvault/internal/observability"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *observability.Metrics
	assert.NotPanics(t, func() {
		m.ObserveVault(domain.VaultInfo{})
		m.RecordFlow("deposit", decimal.NewFromInt(1))
		m.RecordSettlement(domain.Settlement{})
		m.RecordRejection("settle", errors.New("x"))
		m.ObserveOracle("ETH", time.Millisecond, nil)
		m.ObserveBreaker(domain.CircuitBreaker{})
	})
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a := observability.NewMetrics("test")
	b := observability.NewMetrics("test")

	a.RecordMint()
	a.RecordMint()
	b.RecordMint()

	assert.Equal(t, 2.0, testutil.ToFloat64(a.ERTsMinted))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.ERTsMinted))
}

func TestMetrics_SettlementLabels(t *testing.T) {
	m := observability.NewMetrics("test")
	m.RecordSettlement(domain.Settlement{
		Forced:    true,
		Breakdown: domain.Breakdown{TotalPnl: decimal.NewFromInt(-10), InsuranceDraw: decimal.NewFromInt(3)},
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Settlements.WithLabelValues("loss", "forced")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReserveDraws))
}

func TestMetrics_RejectionKind(t *testing.T) {
	m := observability.NewMetrics("test")
	m.RecordRejection("withdraw", domain.Illiquid("short"))
	m.RecordRejection("withdraw", errors.New("disk"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationRejected.WithLabelValues("withdraw", "LIQUIDITY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationRejected.WithLabelValues("withdraw", "INTERNAL")))
}

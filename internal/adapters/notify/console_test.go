package notify_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/ertvault/internal/adapters/notify"
	"github.com/alejandrodnm/ertvault/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func makeSettlement(forced, tripped bool) domain.Settlement {
	return domain.Settlement{
		ERTID:    "5f0c2a9e-1111-2222-3333-444455556666",
		Executor: "0xexec",
		Breakdown: domain.Breakdown{
			Realized:       d("2000"),
			TotalPnl:       d("2000"),
			Elapsed:        7 * 24 * time.Hour,
			LPBaseFee:      d("3.835616"),
			LPProfitShare:  d("400"),
			InsuranceFee:   d("40"),
			ExecutorProfit: d("1556.164384"),
			StakeReturned:  d("5000"),
		},
		Outcome:   domain.SettlementOutcome{PreviousTier: domain.TierUnverified, Tier: domain.TierNovice},
		Forced:    forced,
		Tripped:   tripped,
		SettledAt: time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC),
		SettledBy: "0xkeeper",
	}
}

func TestConsole_NotifySettlement(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf)

	require.NoError(t, n.NotifySettlement(context.Background(), makeSettlement(false, false)))

	out := buf.String()
	assert.Contains(t, out, "ert 5f0c2a9e settled by 0xkeeper")
	assert.Contains(t, out, "$1556.16")
	assert.Contains(t, out, "$403.84", "lp credit is base fee plus profit share")
	assert.Contains(t, out, "Executor profit")
	assert.Contains(t, out, "tier UNVERIFIED → NOVICE")
	assert.NotContains(t, out, "TRIPPED")
}

func TestConsole_NotifySettlement_ForcedAndTripped(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf)

	s := makeSettlement(true, true)
	s.Breakdown.TotalPnl = d("-8000")
	s.Breakdown.UncoveredLoss = d("2000")
	s.Outcome = domain.SettlementOutcome{LossBps: 8000, LargeLoss: true}
	require.NoError(t, n.NotifySettlement(context.Background(), s))

	out := buf.String()
	assert.Contains(t, out, "force-settled")
	assert.Contains(t, out, "-$8000.00")
	assert.Contains(t, out, "large loss: 8000 bps")
	assert.Contains(t, out, "circuit breaker TRIPPED")
}

func TestConsole_PrintVault(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf)

	n.PrintVault(domain.VaultInfo{
		TotalAssets:      d("20000"),
		AllocatedCapital: d("10000"),
		AvailableCapital: d("10000"),
		UtilizationRate:  d("0.5"),
		TotalShares:      d("20000"),
		SharePrice:       d("1"),
	})

	out := buf.String()
	assert.Contains(t, out, "$20000.00")
	assert.Contains(t, out, "50.00%")
	assert.Contains(t, out, "1.000000")
}

func TestConsole_PrintERT(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf)

	t0 := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	ert := domain.ExecutionRight{
		ID: "ert-1", Owner: "0xexec", CapitalLimit: d("10000"), StakeAmount: d("5000"),
		Duration: 24 * time.Hour, CreatedAt: t0, Status: domain.ERTActive,
		Constraints: domain.Constraints{MaxLeverage: 2, AllowedAdapters: []string{"uniswap"}, AllowedAssets: []string{"ETH"}},
	}

	n.PrintERT(ert, nil)
	assert.Contains(t, buf.String(), "no positions")

	buf.Reset()
	n.PrintERT(ert, []domain.Position{{
		ID: "pos-1", ERTID: "ert-1", Adapter: "uniswap", Asset: "ETH", Side: domain.Long,
		Size: d("0.25"), EntryValueUSD: d("500"), EntryPrice: d("2000"), Status: domain.PositionClosed,
		ExitPrice: d("2200"), RealizedPnl: d("50"),
	}})
	out := buf.String()
	assert.Contains(t, out, "ERT ert-1 [ACTIVE]")
	assert.Contains(t, out, "2026-03-03T10:00:00Z")
	assert.Contains(t, out, "uniswap")
	assert.Contains(t, out, "$50.00")
}

func TestConsole_PrintEvents_LongDetailTruncated(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf)

	n.PrintEvents([]domain.LedgerEvent{{
		ID: "01H", Kind: domain.EventMint, Entity: "ert:1", Amount: d("100"),
		Detail: strings.Repeat("A", 80), At: time.Now(),
	}})
	assert.Contains(t, buf.String(), "...")

	buf.Reset()
	n.PrintEvents(nil)
	assert.Contains(t, buf.String(), "no events")
}

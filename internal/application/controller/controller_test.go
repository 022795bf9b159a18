package controller_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newController(t *testing.T) (*controller.Controller, *engine.FixedClock, *oracle.Static) {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	locks := engine.NewLocker()
	clock := engine.NewFixedClock(t0)
	metrics := observability.NewMetrics("ert_test")
	prices := oracle.NewStatic()
	prices.Set("ETH", d("2000"), t0)
	uni, err := venue.New("uniswap", domain.VenueDEX, 0)
	require.NoError(t, err)

	v := vault.New(db, locks, clock, metrics)
	rep := reputation.New(db, locks, clock)
	res := insurance.New(db, locks, clock, metrics, decimal.Zero)
	cb := breaker.New(db, locks, clock, metrics, breaker.Config{MaxDailyLossBps: 500})
	pos, err := positions.New(db, locks, clock, metrics, prices, cb, []ports.TradeAdapter{uni},
		positions.Config{OracleTimeout: time.Second, MaxPriceAge: time.Hour})
	require.NoError(t, err)
	admins := []string{"0xadmin"}
	eng := settlement.New(settlement.Deps{
		Store: db, Locks: locks, Clock: clock, Metrics: metrics,
		Positions: pos, Vault: v, Reserve: res, Breaker: cb, Reputation: rep,
	}, settlement.Config{Controllers: admins})

	c := controller.New(controller.Services{
		Store: db, Locks: locks, Clock: clock, Metrics: metrics,
		Vault: v, Reputation: rep, Reserve: res, Breaker: cb, Positions: pos, Settlement: eng,
	}, admins)
	return c, clock, prices
}

func mintRequest(capital, stake string) domain.MintRequest {
	return domain.MintRequest{
		Owner:        "0xexec",
		CapitalLimit: d(capital),
		StakeAmount:  d(stake),
		Duration:     24 * time.Hour,
		Constraints: domain.Constraints{
			MaxLeverage:        1,
			MaxDrawdownBps:     2000,
			MaxPositionSizeBps: 10000,
			AllowedAdapters:    []string{"uniswap"},
			AllowedAssets:      []string{"ETH"},
		},
		Fees: domain.Fees{BaseFeeAprBps: 200, ProfitShareBps: 2000},
	}
}

func TestMintERT_Authorization(t *testing.T) {
	c, _, _ := newController(t)
	ctx := context.Background()
	_, err := c.Deposit(ctx, "0xlp", d("1000"))
	require.NoError(t, err)

	_, err = c.MintERT(ctx, mintRequest("100", "50"))
	assert.ErrorIs(t, err, domain.ErrAuthorization, "unregistered")

	_, err = c.RegisterExecutor(ctx, "0xexec")
	require.NoError(t, err)

	_, err = c.MintERT(ctx, mintRequest("101", "60"))
	assert.ErrorIs(t, err, domain.ErrAuthorization, "over UNVERIFIED capital cap")

	_, err = c.MintERT(ctx, mintRequest("100", "49"))
	var de *domain.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, domain.CodeInsufficientStake, de.Code)
	assert.Equal(t, "50", de.Fields["required"])
	assert.Equal(t, "49", de.Fields["provided"])

	req := mintRequest("100", "50")
	req.Constraints.AllowedAssets = nil
	_, err = c.MintERT(ctx, req)
	assert.ErrorIs(t, err, domain.ErrValidation)

	stake, err := c.RequiredStake(ctx, "0xexec", d("100"))
	require.NoError(t, err)
	assert.True(t, stake.Equal(d("50")))

	ert, err := c.MintERT(ctx, mintRequest("100", "50"))
	require.NoError(t, err)
	assert.Equal(t, domain.ERTActive, ert.Status)

	info, err := c.VaultInfo(ctx)
	require.NoError(t, err)
	assert.True(t, info.AllocatedCapital.Equal(d("100")))
	assert.True(t, info.UtilizationRate.Equal(d("0.1")))

	_, err = c.BanExecutor(ctx, "0xadmin", "0xexec", "wash trading")
	require.NoError(t, err)
	_, err = c.MintERT(ctx, mintRequest("100", "50"))
	require.ErrorAs(t, err, &de)
	assert.Equal(t, domain.CodeBanned, de.Code)
}

func TestMintERT_Liquidity(t *testing.T) {
	c, _, _ := newController(t)
	ctx := context.Background()
	_, err := c.RegisterExecutor(ctx, "0xexec")
	require.NoError(t, err)
	_, err = c.Deposit(ctx, "0xlp", d("50"))
	require.NoError(t, err)

	_, err = c.MintERT(ctx, mintRequest("100", "50"))
	assert.ErrorIs(t, err, domain.ErrLiquidity)

	erts, err := c.ListERTs(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, erts, "nothing minted on failure")
}

func TestWithdrawAndMint_Concurrent(t *testing.T) {
	c, _, _ := newController(t)
	ctx := context.Background()
	_, err := c.Deposit(ctx, "0xlp", d("1000"))
	require.NoError(t, err)
	_, err = c.RegisterExecutor(ctx, "0xexec")
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		withdrawn = decimal.Zero
		allocated = decimal.Zero
	)
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			amount, err := c.Withdraw(ctx, "0xlp", d("100"))
			if err != nil {
				assert.ErrorIs(t, err, domain.ErrLiquidity)
				return
			}
			mu.Lock()
			withdrawn = withdrawn.Add(amount)
			mu.Unlock()
		}()
		go func() {
			defer wg.Done()
			ert, err := c.MintERT(ctx, mintRequest("100", "50"))
			if err != nil {
				assert.ErrorIs(t, err, domain.ErrLiquidity)
				return
			}
			mu.Lock()
			allocated = allocated.Add(ert.CapitalLimit)
			mu.Unlock()
		}()
	}
	wg.Wait()

	info, err := c.VaultInfo(ctx)
	require.NoError(t, err)
	assert.True(t, info.AllocatedCapital.LessThanOrEqual(info.TotalAssets),
		"allocated %s > total %s", info.AllocatedCapital, info.TotalAssets)
	assert.True(t, withdrawn.Add(allocated).LessThanOrEqual(d("1000")),
		"withdrawn %s + allocated %s exceed deposits", withdrawn, allocated)
	assert.True(t, info.AllocatedCapital.Equal(allocated))
	assert.True(t, info.TotalAssets.Equal(d("1000").Sub(withdrawn)))
}

func TestFullLifecycle(t *testing.T) {
	c, clock, prices := newController(t)
	ctx := context.Background()
	_, err := c.Deposit(ctx, "0xlp", d("1000"))
	require.NoError(t, err)
	_, err = c.RegisterExecutor(ctx, "0xexec")
	require.NoError(t, err)
	ert, err := c.MintERT(ctx, mintRequest("100", "50"))
	require.NoError(t, err)

	pos, err := c.OpenPosition(ctx, "0xexec", positions.OpenRequest{
		ERTID: ert.ID, Adapter: "uniswap", Asset: "ETH", Side: domain.Long, EntryValueUSD: d("100"),
	})
	require.NoError(t, err)

	prices.Set("ETH", d("2100"), t0)
	pnl, err := c.EstimatePnl(ctx, ert.ID)
	require.NoError(t, err)
	assert.True(t, pnl.Unrealized.Equal(d("5")))

	_, err = c.ClosePosition(ctx, "0xexec", pos.ID)
	require.NoError(t, err)

	clock.Advance(12 * time.Hour)
	s, err := c.Settle(ctx, "0xexec", ert.ID)
	require.NoError(t, err)
	assert.True(t, s.Breakdown.TotalPnl.Equal(d("5")))
	assert.True(t, s.Breakdown.InsuranceFee.Equal(d("0.1")))
	assert.True(t, s.Breakdown.LPProfitShare.Equal(d("1")))

	view, err := c.GetERT(ctx, ert.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ERTSettled, view.ERT.Status)
	require.NotNil(t, view.Settlement)
	assert.Len(t, view.Positions, 1)

	reserve, err := c.ReserveStatus(ctx)
	require.NoError(t, err)
	assert.True(t, reserve.Balance.Equal(d("0.1")))

	events, err := c.Events(ctx, engine.ERTKey(ert.ID), 50)
	require.NoError(t, err)
	kinds := make([]domain.EventKind, 0, len(events))
	for _, e := range events {
		kinds = append(kinds, e.Kind)
	}
	assert.Contains(t, kinds, domain.EventMint)
	assert.Contains(t, kinds, domain.EventAllocate)
	assert.Contains(t, kinds, domain.EventPositionOpen)
	assert.Contains(t, kinds, domain.EventPositionClose)
	assert.Contains(t, kinds, domain.EventRelease)
	assert.Equal(t, domain.EventSettle, kinds[0], "newest first")

	// LP can take everything back, income included
	bal, value, err := c.Balance(ctx, "0xlp")
	require.NoError(t, err)
	amount, err := c.Withdraw(ctx, "0xlp", bal.Shares)
	require.NoError(t, err)
	assert.True(t, amount.Equal(value))
	assert.True(t, amount.GreaterThan(d("1000")))
}

func TestExpireDue(t *testing.T) {
	c, clock, _ := newController(t)
	ctx := context.Background()
	_, err := c.Deposit(ctx, "0xlp", d("1000"))
	require.NoError(t, err)
	_, err = c.RegisterExecutor(ctx, "0xexec")
	require.NoError(t, err)
	first, err := c.MintERT(ctx, mintRequest("100", "50"))
	require.NoError(t, err)
	clock.Advance(12 * time.Hour)
	second, err := c.MintERT(ctx, mintRequest("100", "50"))
	require.NoError(t, err)

	n, err := c.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	clock.Advance(13 * time.Hour)
	n, err = c.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	view, err := c.GetERT(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ERTExpired, view.ERT.Status)
	view, err = c.GetERT(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ERTActive, view.ERT.Status)

	// any keeper may recover expired capital
	s, err := c.ForceSettle(ctx, "0xkeeper", first.ID)
	require.NoError(t, err)
	assert.True(t, s.Forced)

	n, err = c.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "settled rights are never expired")
}

func TestAdminOperations(t *testing.T) {
	c, _, _ := newController(t)
	ctx := context.Background()
	_, err := c.RegisterExecutor(ctx, "0xexec")
	require.NoError(t, err)

	_, err = c.WhitelistExecutor(ctx, "0xexec", "0xexec")
	assert.ErrorIs(t, err, domain.ErrAuthorization)
	_, err = c.BanExecutor(ctx, "0xrando", "0xexec", "x")
	assert.ErrorIs(t, err, domain.ErrAuthorization)
	_, err = c.UnbanExecutor(ctx, "", "0xexec")
	assert.ErrorIs(t, err, domain.ErrAuthorization)
	_, err = c.ResetBreaker(ctx, "0xexec")
	assert.ErrorIs(t, err, domain.ErrAuthorization)

	rec, err := c.WhitelistExecutor(ctx, "0xadmin", "0xexec")
	require.NoError(t, err)
	assert.Equal(t, domain.TierElite, rec.Tier())

	check, err := c.CheckExecutor(ctx, "0xexec")
	require.NoError(t, err)
	assert.True(t, check.Authorized)
	assert.Equal(t, "ELITE", check.Tier)

	st, err := c.ResetBreaker(ctx, "0xadmin")
	require.NoError(t, err)
	assert.Equal(t, "NORMAL", st.State)

	res, err := c.FundReserve(ctx, "0xanyone", d("25"))
	require.NoError(t, err)
	assert.True(t, res.Balance.Equal(d("25")))

	_, err = c.RequiredStake(ctx, "0xexec", d("0"))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestMintERT_RejectedWhileTripped(t *testing.T) {
	c, clock, prices := newController(t)
	ctx := context.Background()
	_, err := c.Deposit(ctx, "0xlp", d("1000"))
	require.NoError(t, err)
	_, err = c.RegisterExecutor(ctx, "0xexec")
	require.NoError(t, err)
	ert, err := c.MintERT(ctx, mintRequest("100", "50"))
	require.NoError(t, err)
	_, err = c.OpenPosition(ctx, "0xexec", positions.OpenRequest{
		ERTID: ert.ID, Adapter: "uniswap", Asset: "ETH", Side: domain.Long, EntryValueUSD: d("100"),
	})
	require.NoError(t, err)

	// −50 on a 1,000 vault is 5%, the daily limit
	clock.Advance(time.Hour)
	prices.Set("ETH", d("1000"), clock.Now())
	s, err := c.Settle(ctx, "0xexec", ert.ID)
	require.NoError(t, err)
	require.True(t, s.Tripped)

	_, err = c.MintERT(ctx, mintRequest("100", "50"))
	assert.ErrorIs(t, err, domain.ErrCircuitTripped)

	_, err = c.ResetBreaker(ctx, "0xadmin")
	require.NoError(t, err)
	_, err = c.MintERT(ctx, mintRequest("100", "50"))
	assert.NoError(t, err)
}

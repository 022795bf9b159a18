package reputation_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/ertvault/internal/adapters/storage"
	"github.com/alejandrodnm/ertvault/internal/application/engine"
	"github.com/alejandrodnm/ertvault/internal/application/reputation"
	"github.com/alejandrodnm/ertvault/internal/domain"
	"github.com/alejandrodnm/ertvault/internal/ports"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newService(t *testing.T) (*reputation.Service, *storage.SQLiteStorage) {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return reputation.New(db, engine.NewLocker(), engine.NewFixedClock(t0)), db
}

func TestRegister(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	rec, err := svc.Register(ctx, "0xexec")
	require.NoError(t, err)
	assert.Equal(t, domain.TierUnverified, rec.Tier())

	_, err = svc.Register(ctx, "0xexec")
	assert.ErrorIs(t, err, domain.ErrValidation)

	bps, err := svc.RequiredStakeBps(ctx, "0xexec")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), bps)

	_, err = svc.Tier(ctx, "0xunknown")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWhitelistBanUnban(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "0xexec")
	require.NoError(t, err)

	_, err = svc.Whitelist(ctx, "0xexec")
	require.NoError(t, err)
	tier, err := svc.Tier(ctx, "0xexec")
	require.NoError(t, err)
	assert.Equal(t, domain.TierElite, tier)

	stake, err := svc.RequiredStake(ctx, "0xexec", d("10000"))
	require.NoError(t, err)
	assert.True(t, stake.Equal(d("500")))

	_, err = svc.Ban(ctx, "0xexec", "")
	assert.ErrorIs(t, err, domain.ErrValidation, "reason required")

	_, err = svc.Ban(ctx, "0xexec", "oracle manipulation")
	require.NoError(t, err)
	check, err := svc.CheckExecutor(ctx, "0xexec")
	require.NoError(t, err)
	assert.False(t, check.Authorized, "ban beats whitelist")
	assert.Equal(t, "ELITE", check.Tier)
	assert.Equal(t, "oracle manipulation", check.BanReason)

	_, err = svc.Unban(ctx, "0xexec")
	require.NoError(t, err)
	check, err = svc.CheckExecutor(ctx, "0xexec")
	require.NoError(t, err)
	assert.True(t, check.Authorized)

	_, err = svc.Whitelist(ctx, "0xghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCheckExecutor_Unknown(t *testing.T) {
	svc, _ := newService(t)
	check, err := svc.CheckExecutor(context.Background(), "0xnobody")
	require.NoError(t, err)
	assert.False(t, check.Registered)
	assert.False(t, check.Authorized)
	assert.Equal(t, "UNVERIFIED", check.Tier)
}

func TestAuthorizeMintTx(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	req := domain.MintRequest{Owner: "0xexec", CapitalLimit: d("100"), StakeAmount: d("50"),
		Constraints: domain.Constraints{MaxDrawdownBps: 2000}}

	err := db.View(ctx, func(tx ports.LedgerTx) error {
		_, err := svc.AuthorizeMintTx(tx, req)
		return err
	})
	require.ErrorIs(t, err, domain.ErrAuthorization, "unregistered executor")

	_, err = svc.Register(ctx, "0xexec")
	require.NoError(t, err)
	err = db.View(ctx, func(tx ports.LedgerTx) error {
		_, err := svc.AuthorizeMintTx(tx, req)
		return err
	})
	require.NoError(t, err)
}

// Scenario D through the ledger: 10 settlements, $5k, 6 wins → VERIFIED; one loss → NOVICE.
func TestRecordSettlementTx_Demotion(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "0xexec")
	require.NoError(t, err)

	record := func(pnl string) domain.SettlementOutcome {
		var out domain.SettlementOutcome
		require.NoError(t, db.Update(ctx, func(tx ports.LedgerTx) (err error) {
			out, err = svc.RecordSettlementTx(tx, "0xexec", d(pnl), d("500"), d("1000"), t0)
			return err
		}))
		return out
	}

	for i := 0; i < 6; i++ {
		record("10")
	}
	for i := 0; i < 4; i++ {
		record("-10")
	}
	tier, err := svc.Tier(ctx, "0xexec")
	require.NoError(t, err)
	require.Equal(t, domain.TierVerified, tier)

	out := record("-60")
	assert.Equal(t, domain.TierVerified, out.PreviousTier)
	assert.Equal(t, domain.TierNovice, out.Tier)
	assert.True(t, out.LargeLoss)
	assert.Equal(t, int64(600), out.LossBps)

	rec, err := svc.Get(ctx, "0xexec")
	require.NoError(t, err)
	assert.Equal(t, int64(11), rec.TotalSettlements)
	assert.Equal(t, int64(600), rec.LargestLossBps)

	var events []domain.LedgerEvent
	require.NoError(t, db.View(ctx, func(tx ports.LedgerTx) (err error) {
		events, err = tx.ListEvents(engine.ExecutorKey("0xexec"), 100)
		return err
	}))
	assert.Len(t, events, 12, "registration + 11 settlements")
}

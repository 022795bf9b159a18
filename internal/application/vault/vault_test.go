package vault_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/ertvault/internal/adapters/storage"
	"github.com/alejandrodnm/ertvault/internal/application/engine"
	"github.com/alejandrodnm/ertvault/internal/application/vault"
	"github.com/alejandrodnm/ertvault/internal/domain"
	"github.com/alejandrodnm/ertvault/internal/ports"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newVault(t *testing.T) (*vault.Service, *storage.SQLiteStorage) {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return vault.New(db, engine.NewLocker(), engine.NewFixedClock(t0), nil), db
}

func allocate(t *testing.T, svc *vault.Service, db ports.LedgerStore, ertID, amount string) {
	t.Helper()
	require.NoError(t, db.Update(context.Background(), func(tx ports.LedgerTx) error {
		_, err := svc.AllocateTx(tx, ertID, d(amount), t0)
		return err
	}))
}

func TestDeposit_ProportionalShares(t *testing.T) {
	svc, db := newVault(t)
	ctx := context.Background()

	shares, err := svc.Deposit(ctx, "0xa", d("1000"))
	require.NoError(t, err)
	assert.True(t, shares.Equal(d("1000")))

	// income raises the share price to 1.1
	require.NoError(t, db.Update(ctx, func(tx ports.LedgerTx) error {
		allocate := d("100")
		_, err := svc.AllocateTx(tx, "ert-1", allocate, t0)
		require.NoError(t, err)
		_, err = svc.ReleaseTx(tx, "ert-1", allocate, decimal.Zero, d("100"), t0)
		return err
	}))

	shares, err = svc.Deposit(ctx, "0xb", d("550"))
	require.NoError(t, err)
	assert.True(t, shares.Equal(d("500")), "shares = %s", shares)

	info, err := svc.Info(ctx)
	require.NoError(t, err)
	assert.True(t, info.TotalAssets.Equal(d("1650")))
	assert.True(t, info.TotalShares.Equal(d("1500")))
	assert.True(t, info.SharePrice.Equal(d("1.1")))
}

func TestWithdraw_LiquidityError(t *testing.T) {
	svc, db := newVault(t)
	ctx := context.Background()

	_, err := svc.Deposit(ctx, "0xa", d("1000"))
	require.NoError(t, err)
	allocate(t, svc, db, "ert-1", "900")

	_, err = svc.Withdraw(ctx, "0xa", d("200"))
	require.ErrorIs(t, err, domain.ErrLiquidity)
	var de *domain.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "200", de.Fields["requested"])
	assert.Equal(t, "100", de.Fields["available"])

	amount, err := svc.Withdraw(ctx, "0xa", d("100"))
	require.NoError(t, err)
	assert.True(t, amount.Equal(d("100")))

	bal, value, err := svc.Balance(ctx, "0xa")
	require.NoError(t, err)
	assert.True(t, bal.Shares.Equal(d("900")))
	assert.True(t, value.Equal(d("900")))

	info, err := svc.Info(ctx)
	require.NoError(t, err)
	assert.True(t, info.AllocatedCapital.LessThanOrEqual(info.TotalAssets))
	assert.True(t, info.UtilizationRate.Equal(d("1")))
}

func TestWithdraw_MoreThanBalance(t *testing.T) {
	svc, _ := newVault(t)
	ctx := context.Background()
	_, err := svc.Deposit(ctx, "0xa", d("10"))
	require.NoError(t, err)

	_, err = svc.Withdraw(ctx, "0xb", d("1"))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRedeem_RoundsSharesUp(t *testing.T) {
	svc, db := newVault(t)
	ctx := context.Background()
	_, err := svc.Deposit(ctx, "0xa", d("300"))
	require.NoError(t, err)

	// share price 301/300
	require.NoError(t, db.Update(ctx, func(tx ports.LedgerTx) error {
		_, err := svc.AllocateTx(tx, "ert-1", d("1"), t0)
		require.NoError(t, err)
		_, err = svc.ReleaseTx(tx, "ert-1", d("1"), decimal.Zero, d("1"), t0)
		return err
	}))

	burned, err := svc.Redeem(ctx, "0xa", d("100"))
	require.NoError(t, err)
	exact := d("100").Mul(d("300")).Div(d("301"))
	assert.True(t, burned.GreaterThanOrEqual(exact), "burned %s >= %s", burned, exact)

	_, err = svc.Redeem(ctx, "0xa", d("1000"))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestAllocateTx_Invariants(t *testing.T) {
	svc, db := newVault(t)
	ctx := context.Background()
	_, err := svc.Deposit(ctx, "0xa", d("500"))
	require.NoError(t, err)

	err = db.Update(ctx, func(tx ports.LedgerTx) error {
		_, err := svc.AllocateTx(tx, "ert-1", d("600"), t0)
		return err
	})
	require.ErrorIs(t, err, domain.ErrLiquidity)

	allocate(t, svc, db, "ert-1", "200")
	err = db.Update(ctx, func(tx ports.LedgerTx) error {
		_, err := svc.AllocateTx(tx, "ert-1", d("1"), t0)
		return err
	})
	require.ErrorIs(t, err, domain.ErrInvariant, "one allocation per execution right")

	err = db.Update(ctx, func(tx ports.LedgerTx) error {
		_, err := svc.ReleaseTx(tx, "ert-1", d("201"), decimal.Zero, decimal.Zero, t0)
		return err
	})
	require.ErrorIs(t, err, domain.ErrInvariant)

	info, err := svc.Info(ctx)
	require.NoError(t, err)
	assert.True(t, info.AllocatedCapital.Equal(d("200")), "failed release rolled back")
}

func TestDeposit_Concurrent(t *testing.T) {
	svc, _ := newVault(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			depositor := "0xa"
			if i%2 == 1 {
				depositor = "0xb"
			}
			_, err := svc.Deposit(ctx, depositor, d("10"))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	info, err := svc.Info(ctx)
	require.NoError(t, err)
	assert.True(t, info.TotalAssets.Equal(d("200")))
	assert.True(t, info.TotalShares.Equal(d("200")))
}

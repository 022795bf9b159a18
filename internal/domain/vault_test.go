package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVault_FirstDepositMintsOneToOne(t *testing.T) {
	v, shares, err := VaultState{}.Deposit(d("1000"), t0)
	require.NoError(t, err)
	assert.True(t, shares.Equal(d("1000")))
	assert.True(t, v.TotalAssets.Equal(d("1000")))
	assert.True(t, v.Utilization().IsZero())
}

func TestVault_DepositAtExchangeRate(t *testing.T) {
	v := VaultState{TotalAssets: d("1100"), TotalShares: d("1000"), AllocatedCapital: decimal.Zero}
	v, shares, err := v.Deposit(d("110"), t0)
	require.NoError(t, err)
	assert.True(t, shares.Equal(d("100")), "shares = %s", shares)
	assert.True(t, v.TotalShares.Equal(d("1100")))
}

func TestVault_DepositRejectsZero(t *testing.T) {
	_, _, err := VaultState{}.Deposit(decimal.Zero, t0)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestVault_WithdrawBoundedByAvailable(t *testing.T) {
	v, _, _ := VaultState{}.Deposit(d("1000"), t0)
	v, err := v.Allocate(d("800"), t0)
	require.NoError(t, err)

	_, _, err = v.Withdraw(d("300"), d("1000"), t0)
	require.ErrorIs(t, err, ErrLiquidity)

	v, amount, err := v.Withdraw(d("200"), d("1000"), t0)
	require.NoError(t, err)
	assert.True(t, amount.Equal(d("200")))
	assert.True(t, v.AllocatedCapital.LessThanOrEqual(v.TotalAssets))
}

func TestVault_WithdrawMoreSharesThanOwned(t *testing.T) {
	v, _, _ := VaultState{}.Deposit(d("1000"), t0)
	_, _, err := v.Withdraw(d("10"), d("5"), t0)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestVault_AllocateNeverExceedsAssets(t *testing.T) {
	v, _, _ := VaultState{}.Deposit(d("500"), t0)
	_, err := v.Allocate(d("500.000001"), t0)
	assert.ErrorIs(t, err, ErrLiquidity)

	v, err = v.Allocate(d("500"), t0)
	require.NoError(t, err)
	assert.True(t, v.Utilization().Equal(d("1")))
}

func TestVault_ReleaseMoreThanAllocatedIsInvariant(t *testing.T) {
	v, _, _ := VaultState{}.Deposit(d("500"), t0)
	v, _ = v.Allocate(d("100"), t0)
	alloc := Allocation{ERTID: "ert-1", Amount: d("100")}

	_, _, err := v.Release(alloc, d("101"), decimal.Zero, decimal.Zero, t0)
	assert.ErrorIs(t, err, ErrInvariant)
}

func TestVault_ReleaseWithLossAndIncome(t *testing.T) {
	v, _, _ := VaultState{}.Deposit(d("1000"), t0)
	v, _ = v.Allocate(d("400"), t0)
	alloc := Allocation{ERTID: "ert-1", Amount: d("400")}

	v, alloc, err := v.Release(alloc, d("400"), d("50"), d("10"), t0)
	require.NoError(t, err)
	assert.True(t, v.TotalAssets.Equal(d("960")))
	assert.True(t, v.AllocatedCapital.IsZero())
	assert.True(t, alloc.Amount.IsZero())
	assert.NotNil(t, alloc.ReleasedAt)
}

func TestVault_ReleaseWriteOffBoundedByAllocation(t *testing.T) {
	v, _, _ := VaultState{}.Deposit(d("1000"), t0)
	v, _ = v.Allocate(d("100"), t0)
	alloc := Allocation{ERTID: "ert-1", Amount: d("100")}

	_, _, err := v.Release(alloc, d("100"), d("101"), decimal.Zero, t0)
	assert.ErrorIs(t, err, ErrInvariant)
}

func TestVault_SharePriceAfterIncome(t *testing.T) {
	v, _, _ := VaultState{}.Deposit(d("1000"), t0)
	v.TotalAssets = v.TotalAssets.Add(d("100"))

	assert.True(t, v.ConvertToAssets(d("100")).Equal(d("110")))
	assert.True(t, v.ConvertToShares(d("110")).Equal(d("100")))
}

func TestVault_CheckDetectsOvercommit(t *testing.T) {
	v := VaultState{TotalAssets: d("10"), AllocatedCapital: d("11"), TotalShares: d("10")}
	assert.ErrorIs(t, v.Check(), ErrInvariant)
}

package domain

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validMint() MintRequest {
	return MintRequest{
		Owner:        "0xexec",
		CapitalLimit: d("100"),
		StakeAmount:  d("50"),
		Duration:     24 * time.Hour,
		Constraints: Constraints{
			MaxLeverage:        2,
			MaxDrawdownBps:     1000,
			MaxPositionSizeBps: 5000,
			AllowedAdapters:    []string{"uniswap"},
			AllowedAssets:      []string{"ETH"},
		},
		Fees: Fees{BaseFeeAprBps: 200, ProfitShareBps: 2000},
	}
}

func TestMintRequest_Validate(t *testing.T) {
	require.NoError(t, validMint().Validate())

	bad := []func(*MintRequest){
		func(r *MintRequest) { r.Owner = "" },
		func(r *MintRequest) { r.StakeAmount = d("0") },
		func(r *MintRequest) { r.CapitalLimit = d("-1") },
		func(r *MintRequest) { r.Duration = 0 },
		func(r *MintRequest) { r.Constraints.MaxLeverage = 0 },
		func(r *MintRequest) { r.Constraints.MaxLeverage = MaxLeverage + 1 },
		func(r *MintRequest) { r.Constraints.MaxLeverage = math.MaxInt64 / 2 },
		func(r *MintRequest) { r.Constraints.AllowedAssets = nil },
		func(r *MintRequest) { r.Constraints.AllowedAdapters = nil },
		func(r *MintRequest) { r.Fees.ProfitShareBps = 9900 },
	}
	for i, mutate := range bad {
		r := validMint()
		mutate(&r)
		assert.ErrorIs(t, r.Validate(), ErrValidation, "case %d", i)
	}
}

func TestMintRequest_Validate_LeverageBound(t *testing.T) {
	r := validMint()
	r.Constraints.MaxLeverage = MaxLeverage
	r.Constraints.MaxPositionSizeBps = BpsDenominator * MaxLeverage
	assert.NoError(t, r.Validate())
}

func TestExecutionRight_Lifecycle(t *testing.T) {
	e := NewExecutionRight("ert-1", validMint(), t0)
	assert.Equal(t, ERTActive, e.Status)
	assert.False(t, e.IsExpired(t0.Add(time.Hour)))

	_, changed := e.Expire(t0.Add(time.Hour))
	assert.False(t, changed)

	expired, changed := e.Expire(t0.Add(24 * time.Hour))
	require.True(t, changed)
	assert.Equal(t, ERTExpired, expired.Status)
	assert.Equal(t, 24*time.Hour, expired.Elapsed(t0.Add(48*time.Hour)), "elapsed capped at expiry")

	settled, err := expired.MarkSettled(t0.Add(25 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, ERTSettled, settled.Status)

	_, err = settled.MarkSettled(t0.Add(26 * time.Hour))
	assert.ErrorIs(t, err, ErrValidation)
	_, changed = settled.Expire(t0.Add(100 * time.Hour))
	assert.False(t, changed, "settled is terminal")
}

func TestPosition_PnlAt(t *testing.T) {
	long := Position{Side: Long, EntryPrice: d("2000"), EntryValueUSD: d("1000")}
	assert.True(t, long.PnlAt(d("2200")).Equal(d("100")))

	short := long
	short.Side = Short
	assert.True(t, short.PnlAt(d("2200")).Equal(d("-100")))

	closed := long.Close(d("1800"), t0)
	assert.Equal(t, PositionClosed, closed.Status)
	assert.True(t, closed.RealizedPnl.Equal(d("-100")))
}

func TestError_IsAndFields(t *testing.T) {
	err := Validation(CodeAdapterNotAllowed, "adapter not allowed", "adapter", "curve")
	assert.True(t, errors.Is(err, ErrValidation))
	assert.True(t, errors.Is(err, ErrAdapterNotAllowed))
	assert.False(t, errors.Is(err, ErrAssetNotAllowed))
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Contains(t, err.Error(), "adapter=curve")
	assert.Equal(t, Kind(""), KindOf(errors.New("boom")))
}

package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func recordWith(total, profitable int64, volume string) ReputationRecord {
	r := NewReputationRecord("0xexec", t0)
	r.TotalSettlements = total
	r.ProfitableSettlements = profitable
	r.TotalVolumeUSD = d(volume)
	return r
}

func TestTier_Thresholds(t *testing.T) {
	cases := []struct {
		name       string
		total, win int64
		volume     string
		want       Tier
	}{
		{"fresh", 0, 0, "0", TierUnverified},
		{"novice", 3, 2, "0", TierNovice},
		{"novice rate too low", 3, 1, "0", TierUnverified},
		{"verified", 10, 6, "5000", TierVerified},
		{"verified volume short", 10, 6, "4999.99", TierNovice},
		{"established", 25, 17, "50000", TierEstablished},
		{"elite by counters", 50, 35, "500000", TierElite},
		{"elite rate short", 50, 34, "500000", TierEstablished},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, recordWith(tc.total, tc.win, tc.volume).Tier())
		})
	}
}

func TestTier_WhitelistIsElite(t *testing.T) {
	r := recordWith(0, 0, "0")
	r.Whitelisted = true
	assert.Equal(t, TierElite, r.Tier())
	assert.Equal(t, int64(500), r.Limits().StakeBps)
}

// Scenario D: 10 settlements, $5k, 60% → VERIFIED; one more loss demotes to NOVICE.
func TestRecordSettlement_ScenarioD_Demotion(t *testing.T) {
	r := recordWith(10, 6, "5000")
	require.Equal(t, TierVerified, r.Tier())

	r, out := r.RecordSettlement(d("-50"), d("100"), d("1000"), t0)

	assert.Equal(t, TierVerified, out.PreviousTier)
	assert.Equal(t, TierNovice, out.Tier)
	assert.Equal(t, TierNovice, r.Tier())
	assert.Equal(t, int64(11), r.TotalSettlements)
	assert.Equal(t, int64(6), r.ProfitableSettlements)
}

func TestRecordSettlement_Counters(t *testing.T) {
	r := NewReputationRecord("0xexec", t0)

	r, out := r.RecordSettlement(d("10"), d("500"), d("100"), t0)
	assert.Equal(t, int64(1), r.ProfitableSettlements)
	assert.False(t, out.LargeLoss)
	assert.Zero(t, out.LossBps)

	r, out = r.RecordSettlement(d("-3"), d("200"), d("100"), t0)
	assert.Equal(t, int64(2), r.TotalSettlements)
	assert.Equal(t, int64(1), r.ProfitableSettlements)
	assert.Equal(t, int64(300), out.LossBps)
	assert.Equal(t, int64(300), r.LargestLossBps)
	assert.False(t, out.LargeLoss)
	assert.True(t, r.TotalVolumeUSD.Equal(d("700")))

	r, out = r.RecordSettlement(d("-6"), d("0"), d("100"), t0)
	assert.True(t, out.LargeLoss, "6% of capital is flagged")
	assert.Equal(t, int64(600), r.LargestLossBps)

	r, _ = r.RecordSettlement(d("-1"), d("0"), d("100"), t0)
	assert.Equal(t, int64(600), r.LargestLossBps, "largest loss is a running max")

	r, _ = r.RecordSettlement(d("0"), d("0"), d("100"), t0)
	assert.Equal(t, int64(1), r.ProfitableSettlements, "zero pnl is not profitable")
}

func TestAuthorizeMint(t *testing.T) {
	req := MintRequest{
		Owner:        "0xexec",
		CapitalLimit: d("100"),
		StakeAmount:  d("50"),
		Duration:     time.Hour,
		Constraints:  Constraints{MaxLeverage: 1, MaxDrawdownBps: 2000, MaxPositionSizeBps: 10000},
	}
	r := NewReputationRecord("0xexec", t0)
	require.NoError(t, r.AuthorizeMint(req))

	over := req
	over.CapitalLimit = d("101")
	over.StakeAmount = d("60")
	assert.ErrorIs(t, r.AuthorizeMint(over), ErrAuthorization)

	low := req
	low.StakeAmount = d("49.99")
	err := r.AuthorizeMint(low)
	require.ErrorIs(t, err, ErrAuthorization)
	var te *Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, CodeInsufficientStake, te.Code)
	assert.Equal(t, "50", te.Fields["required"])

	dd := req
	dd.Constraints.MaxDrawdownBps = 2100
	assert.ErrorIs(t, r.AuthorizeMint(dd), ErrAuthorization)

	r.Banned = true
	r.Whitelisted = true
	assert.ErrorIs(t, r.AuthorizeMint(req), ErrAuthorization, "ban beats whitelist")
}

func TestRequiredStake(t *testing.T) {
	r := recordWith(10, 6, "5000")
	assert.True(t, r.RequiredStake(d("10000")).Equal(d("1500")))
}

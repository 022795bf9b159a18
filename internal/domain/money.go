package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// BpsDenominator is 100% expressed in basis points.
	BpsDenominator = 10_000

	// MaxLeverage bounds the leverage an execution right may grant.
	MaxLeverage = 100

	// USDPlaces is the fixed-point precision of capital amounts.
	USDPlaces int32 = 6
	// NativePlaces is the fixed-point precision of stake amounts.
	NativePlaces int32 = 18
	// SharePlaces is the precision of vault shares.
	SharePlaces int32 = 18

	// InsuranceFeeBps is the fixed skim taken from profitable settlements.
	InsuranceFeeBps int64 = 200

	// LargeLossBps flags single settlements losing more than 5% of capital.
	LargeLossBps int64 = 500

	SecondsPerYear = 365 * 24 * 60 * 60
)

var bpsDenom = decimal.NewFromInt(BpsDenominator)

// ApplyBps returns amount × bps / 10000, rounded to USD precision.
func ApplyBps(amount decimal.Decimal, bps int64) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(bps)).DivRound(bpsDenom, USDPlaces)
}

// RatioBps expresses part/whole in basis points (0 when whole is not positive).
func RatioBps(part, whole decimal.Decimal) decimal.Decimal {
	if !whole.IsPositive() {
		return decimal.Zero
	}
	return part.Mul(bpsDenom).DivRound(whole, 4)
}

// ProRataAPR returns the fee accrued on capital at aprBps over elapsed time.
//
//	fee = capital × aprBps × seconds / (10000 × secondsPerYear)
func ProRataAPR(capital decimal.Decimal, aprBps int64, elapsed time.Duration) decimal.Decimal {
	if elapsed <= 0 || aprBps <= 0 {
		return decimal.Zero
	}
	secs := decimal.NewFromInt(int64(elapsed / time.Second))
	num := capital.Mul(decimal.NewFromInt(aprBps)).Mul(secs)
	den := bpsDenom.Mul(decimal.NewFromInt(SecondsPerYear))
	return num.DivRound(den, USDPlaces)
}

// USD rounds to capital precision.
func USD(d decimal.Decimal) decimal.Decimal { return d.Round(USDPlaces) }

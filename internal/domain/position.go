package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side of a position.
type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool { return s == Long || s == Short }

// PositionStatus is the lifecycle of a position.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "OPEN"
	PositionClosed PositionStatus = "CLOSED"
)

// VenueKind tags the closed set of venue types a trade adapter can be.
type VenueKind string

const (
	VenueDEX   VenueKind = "DEX"
	VenueYield VenueKind = "YIELD"
	VenuePerp  VenueKind = "PERP"
)

// Position belongs to exactly one execution right.
type Position struct {
	ID            string
	ERTID         string
	Adapter       string
	Asset         string
	Side          Side
	Size          decimal.Decimal
	EntryValueUSD decimal.Decimal
	EntryPrice    decimal.Decimal
	OpenedAt      time.Time
	Status        PositionStatus
	ClosedAt      *time.Time
	ExitPrice     decimal.Decimal
	RealizedPnl   decimal.Decimal
}

// PnlAt values the position at price:
//
//	pnl = (price − entry) / entry × entryValue, sign-flipped for SHORT
func (p Position) PnlAt(price decimal.Decimal) decimal.Decimal {
	if !p.EntryPrice.IsPositive() {
		return decimal.Zero
	}
	pnl := price.Sub(p.EntryPrice).Mul(p.EntryValueUSD).DivRound(p.EntryPrice, USDPlaces)
	if p.Side == Short {
		pnl = pnl.Neg()
	}
	return pnl
}

// Close freezes the realized PnL at the exit price.
func (p Position) Close(exitPrice decimal.Decimal, now time.Time) Position {
	p.Status = PositionClosed
	p.ExitPrice = exitPrice
	p.RealizedPnl = p.PnlAt(exitPrice)
	t := now
	p.ClosedAt = &t
	return p
}

// VenueOrder is what the position ledger sends to a trade adapter.
type VenueOrder struct {
	Asset string
	Side  Side
	Size  decimal.Decimal
	Mark  decimal.Decimal // oracle price at submission
}

// Fill is what a trade adapter reports back at open or close.
type Fill struct {
	Asset    string
	Side     Side
	Size     decimal.Decimal
	Price    decimal.Decimal
	ValueUSD decimal.Decimal
}

// PnL is the valuation of an execution right.
type PnL struct {
	Realized   decimal.Decimal
	Unrealized decimal.Decimal
	PricedAt   time.Time
}

// Total is realized + unrealized.
func (p PnL) Total() decimal.Decimal { return p.Realized.Add(p.Unrealized) }

// Price is an oracle quote: Value × 10^-Decimals USD.
type Price struct {
	Asset     string
	Value     decimal.Decimal
	Decimals  int32
	Timestamp time.Time
}

// USD returns the quote as a plain decimal.
func (p Price) USD() decimal.Decimal { return p.Value.Shift(-p.Decimals) }

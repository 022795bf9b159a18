package venue

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/ertvault/internal/domain"
	"github.com/alejandrodnm/ertvault/internal/ports"
)

// Venue es un adaptador simulado. El comportamiento depende de Kind:
// DEX y YIELD solo aceptan LONG; PERP acepta ambos lados.
// Las ejecuciones sufren SlippageBps en contra del executor.
type Venue struct {
	name        string
	kind        domain.VenueKind
	slippageBps int64
}

var _ ports.TradeAdapter = (*Venue)(nil)

// New crea un venue del tipo indicado.
func New(name string, kind domain.VenueKind, slippageBps int64) (*Venue, error) {
	switch kind {
	case domain.VenueDEX, domain.VenueYield, domain.VenuePerp:
	default:
		return nil, fmt.Errorf("venue.New %s: unknown kind %q", name, kind)
	}
	if name == "" {
		return nil, fmt.Errorf("venue.New: name is required")
	}
	if slippageBps < 0 || slippageBps >= domain.BpsDenominator {
		return nil, fmt.Errorf("venue.New %s: slippage %d bps out of range", name, slippageBps)
	}
	return &Venue{name: name, kind: kind, slippageBps: slippageBps}, nil
}

// ParseKind acepta "dex", "yield" o "perp" sin distinguir mayúsculas.
func ParseKind(s string) (domain.VenueKind, error) {
	k := domain.VenueKind(strings.ToUpper(strings.TrimSpace(s)))
	switch k {
	case domain.VenueDEX, domain.VenueYield, domain.VenuePerp:
		return k, nil
	}
	return "", fmt.Errorf("venue: unknown kind %q", s)
}

func (v *Venue) Name() string           { return v.name }
func (v *Venue) Kind() domain.VenueKind { return v.kind }

// Open ejecuta al mark desplazado por el slippage.
func (v *Venue) Open(ctx context.Context, order domain.VenueOrder) (domain.Fill, error) {
	if err := ctx.Err(); err != nil {
		return domain.Fill{}, err
	}
	if order.Side == domain.Short && v.kind != domain.VenuePerp {
		return domain.Fill{}, domain.Validation("", "venue is long-only",
			"venue", v.name, "kind", v.kind, "side", order.Side)
	}
	if !order.Mark.IsPositive() || !order.Size.IsPositive() {
		return domain.Fill{}, domain.Validation("", "order needs positive size and mark",
			"size", order.Size, "mark", order.Mark)
	}
	price := v.slip(order.Mark, order.Side == domain.Long)
	return domain.Fill{
		Asset:    order.Asset,
		Side:     order.Side,
		Size:     order.Size,
		Price:    price,
		ValueUSD: domain.USD(order.Size.Mul(price)),
	}, nil
}

// Close deshace la posición al mark desplazado por el slippage.
func (v *Venue) Close(ctx context.Context, p domain.Position, mark decimal.Decimal) (domain.Fill, error) {
	if err := ctx.Err(); err != nil {
		return domain.Fill{}, err
	}
	if !mark.IsPositive() {
		return domain.Fill{}, domain.Validation("", "close needs a positive mark", "mark", mark)
	}
	// cerrar un LONG es vender, cerrar un SHORT es comprar
	price := v.slip(mark, p.Side == domain.Short)
	return domain.Fill{
		Asset:    p.Asset,
		Side:     p.Side,
		Size:     p.Size,
		Price:    price,
		ValueUSD: domain.USD(p.Size.Mul(price)),
	}, nil
}

// Report valora la posición al mark sin slippage.
func (v *Venue) Report(p domain.Position, mark decimal.Decimal) decimal.Decimal {
	return p.PnlAt(mark)
}

func (v *Venue) slip(mark decimal.Decimal, buying bool) decimal.Decimal {
	if v.slippageBps == 0 {
		return mark
	}
	bps := v.slippageBps
	if !buying {
		bps = -bps
	}
	return mark.Add(mark.Mul(decimal.NewFromInt(bps)).Div(decimal.NewFromInt(domain.BpsDenominator)))
}

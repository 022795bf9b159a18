package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/ertvault/internal/domain"
)

// TradeAdapter es el contrato de un venue (DEX, yield, perp).
// El ledger de posiciones solo necesita abrir, cerrar y valorar.
type TradeAdapter interface {
	Name() string
	Kind() domain.VenueKind

	// Open ejecuta la orden al precio de referencia order.Mark.
	Open(ctx context.Context, order domain.VenueOrder) (domain.Fill, error)

	// Close deshace la posición al precio mark.
	Close(ctx context.Context, p domain.Position, mark decimal.Decimal) (domain.Fill, error)

	// Report devuelve el PnL no realizado de p a precio mark.
	Report(p domain.Position, mark decimal.Decimal) decimal.Decimal
}

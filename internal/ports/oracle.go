package ports

import (
	"context"

	"github.com/alejandrodnm/ertvault/internal/domain"
)

// PriceOracle es el feed de precios en USD que consume el motor.
type PriceOracle interface {
	// GetPriceUSD devuelve la última cotización del asset con su timestamp.
	// La frescura la valida el llamador.
	GetPriceUSD(ctx context.Context, asset string) (domain.Price, error)
}

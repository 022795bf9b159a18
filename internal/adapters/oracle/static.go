package oracle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/ertvault/internal/domain"
	"github.com/alejandrodnm/ertvault/internal/ports"
)

// Static es un feed en memoria para dry-run y tests. Los precios se fijan con Set.
type Static struct {
	mu     sync.RWMutex
	prices map[string]domain.Price
}

var _ ports.PriceOracle = (*Static)(nil)

// NewStatic crea un feed vacío.
func NewStatic() *Static {
	return &Static{prices: make(map[string]domain.Price)}
}

// Set publica price (en USD) para asset con timestamp at.
func (s *Static) Set(asset string, price decimal.Decimal, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[asset] = domain.Price{Asset: asset, Value: price, Decimals: 0, Timestamp: at}
}

// GetPriceUSD devuelve la última cotización publicada.
func (s *Static) GetPriceUSD(ctx context.Context, asset string) (domain.Price, error) {
	if err := ctx.Err(); err != nil {
		return domain.Price{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[asset]
	if !ok {
		return domain.Price{}, fmt.Errorf("oracle.Static: no price for %s", asset)
	}
	return p, nil
}

package ports

import (
	"context"

	"github.com/alejandrodnm/ertvault/internal/domain"
)

// SettlementNotifier presenta el resultado de cada liquidación.
// Se invoca después del commit: un error aquí no revierte nada.
type SettlementNotifier interface {
	NotifySettlement(ctx context.Context, s domain.Settlement) error
}

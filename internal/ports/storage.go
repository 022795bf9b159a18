package ports

import (
	"context"

	"github.com/alejandrodnm/ertvault/internal/domain"
)

// LedgerStore persiste el estado del motor. Toda mutación ocurre dentro de Update:
// si fn devuelve error, nada de lo escrito en la transacción queda aplicado.
type LedgerStore interface {
	// Update abre una transacción de escritura, ejecuta fn y hace commit si fn no falla.
	Update(ctx context.Context, fn func(tx LedgerTx) error) error

	// View abre una transacción de solo lectura. Lo escrito dentro de fn se descarta.
	View(ctx context.Context, fn func(tx LedgerTx) error) error

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}

// LedgerTx es la vista transaccional de cada entidad del ledger.
// Los Get de entidades con identidad devuelven domain.ErrNotFound si no existen;
// los singletons (vault, reserve, breaker) siempre existen.
type LedgerTx interface {
	GetERT(id string) (domain.ExecutionRight, error)
	SaveERT(e domain.ExecutionRight) error
	// ListERTs filtra por estado; "" devuelve todas.
	ListERTs(status domain.ERTStatus) ([]domain.ExecutionRight, error)

	GetPosition(id string) (domain.Position, error)
	SavePosition(p domain.Position) error
	ListPositions(ertID string) ([]domain.Position, error)

	// GetReputation devuelve ok=false si el executor nunca se registró.
	GetReputation(executor string) (domain.ReputationRecord, bool, error)
	SaveReputation(r domain.ReputationRecord) error

	GetVault() (domain.VaultState, error)
	SaveVault(v domain.VaultState) error
	// GetShares devuelve balance cero para depositantes desconocidos.
	GetShares(depositor string) (domain.ShareBalance, error)
	SaveShares(b domain.ShareBalance) error
	GetAllocation(ertID string) (domain.Allocation, bool, error)
	SaveAllocation(a domain.Allocation) error

	GetReserve() (domain.InsuranceReserve, error)
	SaveReserve(r domain.InsuranceReserve) error

	GetBreaker() (domain.CircuitBreaker, error)
	SaveBreaker(cb domain.CircuitBreaker) error

	SaveSettlement(s domain.Settlement) error
	GetSettlement(ertID string) (domain.Settlement, bool, error)

	AppendEvents(events ...domain.LedgerEvent) error
	// ListEvents devuelve los eventos más recientes primero; entity "" no filtra.
	ListEvents(entity string, limit int) ([]domain.LedgerEvent, error)
}

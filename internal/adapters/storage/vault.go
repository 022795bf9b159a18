package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/ertvault/internal/domain"
)

// ─── Vault ───────────────────────────────────────────────────────────────────

func (t *sqliteTx) GetVault() (domain.VaultState, error) {
	var v domain.VaultState
	var updatedAt int64
	err := t.tx.QueryRowContext(t.ctx, `
		SELECT total_assets, allocated_capital, total_shares, updated_at
		FROM vault_state WHERE id = 1
	`).Scan(&v.TotalAssets, &v.AllocatedCapital, &v.TotalShares, &updatedAt)
	if err != nil {
		return v, fmt.Errorf("storage.GetVault: %w", err)
	}
	v.UpdatedAt = fromNanos(updatedAt)
	return v, nil
}

func (t *sqliteTx) SaveVault(v domain.VaultState) error {
	return t.exec("SaveVault", `
		UPDATE vault_state SET total_assets = ?, allocated_capital = ?, total_shares = ?, updated_at = ?
		WHERE id = 1
	`, v.TotalAssets, v.AllocatedCapital, v.TotalShares, toNanos(v.UpdatedAt))
}

// GetShares devuelve balance cero si el depositante no existe.
func (t *sqliteTx) GetShares(depositor string) (domain.ShareBalance, error) {
	b := domain.ShareBalance{Depositor: depositor, Shares: decimal.Zero}
	var updatedAt int64
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT shares, updated_at FROM vault_shares WHERE depositor = ?`, depositor,
	).Scan(&b.Shares, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return b, nil
	}
	if err != nil {
		return b, fmt.Errorf("storage.GetShares %s: %w", depositor, err)
	}
	b.UpdatedAt = fromNanos(updatedAt)
	return b, nil
}

func (t *sqliteTx) SaveShares(b domain.ShareBalance) error {
	return t.exec("SaveShares", `
		INSERT INTO vault_shares (depositor, shares, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(depositor) DO UPDATE SET shares = excluded.shares, updated_at = excluded.updated_at
	`, b.Depositor, b.Shares, toNanos(b.UpdatedAt))
}

func (t *sqliteTx) GetAllocation(ertID string) (domain.Allocation, bool, error) {
	a := domain.Allocation{ERTID: ertID}
	var allocatedAt int64
	var releasedAt sql.NullInt64
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT amount, allocated_at, released_at FROM vault_allocations WHERE ert_id = ?`, ertID,
	).Scan(&a.Amount, &allocatedAt, &releasedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return a, false, nil
	}
	if err != nil {
		return a, false, fmt.Errorf("storage.GetAllocation %s: %w", ertID, err)
	}
	a.AllocatedAt = fromNanos(allocatedAt)
	a.ReleasedAt = ptrNanos(releasedAt)
	return a, true, nil
}

func (t *sqliteTx) SaveAllocation(a domain.Allocation) error {
	return t.exec("SaveAllocation", `
		INSERT INTO vault_allocations (ert_id, amount, allocated_at, released_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(ert_id) DO UPDATE SET amount = excluded.amount, released_at = excluded.released_at
	`, a.ERTID, a.Amount, toNanos(a.AllocatedAt), nullNanos(a.ReleasedAt))
}

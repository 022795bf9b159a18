package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alejandrodnm/ertvault/internal/domain"
)

// ─── Execution rights ────────────────────────────────────────────────────────

const ertColumns = `id, owner, capital_limit, stake_amount, duration_ns, created_at, status,
	constraints_json, fees_json, realized_pnl, settled_at`

func (t *sqliteTx) GetERT(id string) (domain.ExecutionRight, error) {
	row := t.tx.QueryRowContext(t.ctx, `SELECT `+ertColumns+` FROM erts WHERE id = ?`, id)
	e, err := scanERT(row)
	if errors.Is(err, sql.ErrNoRows) {
		return e, domain.NotFound("execution right", id)
	}
	if err != nil {
		return e, fmt.Errorf("storage.GetERT %s: %w", id, err)
	}
	return e, nil
}

func (t *sqliteTx) SaveERT(e domain.ExecutionRight) error {
	constraints, err := encodeJSON(e.Constraints)
	if err != nil {
		return fmt.Errorf("storage.SaveERT: %w", err)
	}
	fees, err := encodeJSON(e.Fees)
	if err != nil {
		return fmt.Errorf("storage.SaveERT: %w", err)
	}
	return t.exec("SaveERT", `
		INSERT INTO erts (`+ertColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status       = excluded.status,
			realized_pnl = excluded.realized_pnl,
			settled_at   = excluded.settled_at
	`,
		e.ID, e.Owner, e.CapitalLimit, e.StakeAmount, int64(e.Duration), toNanos(e.CreatedAt),
		string(e.Status), constraints, fees, e.RealizedPnl, nullNanos(e.SettledAt),
	)
}

func (t *sqliteTx) ListERTs(status domain.ERTStatus) ([]domain.ExecutionRight, error) {
	query := `SELECT ` + ertColumns + ` FROM erts`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at, id`

	rows, err := t.tx.QueryContext(t.ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage.ListERTs: query: %w", err)
	}
	defer rows.Close()

	var out []domain.ExecutionRight
	for rows.Next() {
		e, err := scanERT(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.ListERTs: scan row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanERT(row rowScanner) (domain.ExecutionRight, error) {
	var (
		e                 domain.ExecutionRight
		durationNs        int64
		createdAt         int64
		status            string
		constraints, fees string
		settledAt         sql.NullInt64
	)
	if err := row.Scan(
		&e.ID, &e.Owner, &e.CapitalLimit, &e.StakeAmount, &durationNs, &createdAt, &status,
		&constraints, &fees, &e.RealizedPnl, &settledAt,
	); err != nil {
		return e, err
	}
	if err := json.Unmarshal([]byte(constraints), &e.Constraints); err != nil {
		return e, fmt.Errorf("decode constraints: %w", err)
	}
	if err := json.Unmarshal([]byte(fees), &e.Fees); err != nil {
		return e, fmt.Errorf("decode fees: %w", err)
	}
	e.Duration = time.Duration(durationNs)
	e.CreatedAt = fromNanos(createdAt)
	e.Status = domain.ERTStatus(status)
	e.SettledAt = ptrNanos(settledAt)
	return e, nil
}

// ─── Positions ───────────────────────────────────────────────────────────────

const positionColumns = `id, ert_id, adapter, asset, side, size, entry_value_usd, entry_price,
	opened_at, status, closed_at, exit_price, realized_pnl`

func (t *sqliteTx) GetPosition(id string) (domain.Position, error) {
	row := t.tx.QueryRowContext(t.ctx, `SELECT `+positionColumns+` FROM positions WHERE id = ?`, id)
	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return p, domain.NotFound("position", id)
	}
	if err != nil {
		return p, fmt.Errorf("storage.GetPosition %s: %w", id, err)
	}
	return p, nil
}

func (t *sqliteTx) SavePosition(p domain.Position) error {
	return t.exec("SavePosition", `
		INSERT INTO positions (`+positionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status       = excluded.status,
			closed_at    = excluded.closed_at,
			exit_price   = excluded.exit_price,
			realized_pnl = excluded.realized_pnl
	`,
		p.ID, p.ERTID, p.Adapter, p.Asset, string(p.Side), p.Size, p.EntryValueUSD, p.EntryPrice,
		toNanos(p.OpenedAt), string(p.Status), nullNanos(p.ClosedAt), p.ExitPrice, p.RealizedPnl,
	)
}

func (t *sqliteTx) ListPositions(ertID string) ([]domain.Position, error) {
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT `+positionColumns+` FROM positions WHERE ert_id = ? ORDER BY opened_at, id`, ertID)
	if err != nil {
		return nil, fmt.Errorf("storage.ListPositions: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.ListPositions: scan row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPosition(row rowScanner) (domain.Position, error) {
	var (
		p            domain.Position
		side, status string
		openedAt     int64
		closedAt     sql.NullInt64
	)
	if err := row.Scan(
		&p.ID, &p.ERTID, &p.Adapter, &p.Asset, &side, &p.Size, &p.EntryValueUSD, &p.EntryPrice,
		&openedAt, &status, &closedAt, &p.ExitPrice, &p.RealizedPnl,
	); err != nil {
		return p, err
	}
	p.Side = domain.Side(side)
	p.Status = domain.PositionStatus(status)
	p.OpenedAt = fromNanos(openedAt)
	p.ClosedAt = ptrNanos(closedAt)
	return p, nil
}

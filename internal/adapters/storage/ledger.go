package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alejandrodnm/ertvault/internal/domain"
)

// ─── Settlements ─────────────────────────────────────────────────────────────

func (t *sqliteTx) SaveSettlement(s domain.Settlement) error {
	breakdown, err := encodeJSON(s.Breakdown)
	if err != nil {
		return fmt.Errorf("storage.SaveSettlement: %w", err)
	}
	outcome, err := encodeJSON(s.Outcome)
	if err != nil {
		return fmt.Errorf("storage.SaveSettlement: %w", err)
	}
	// Un ERT se liquida una sola vez: un segundo INSERT falla por la PK.
	return t.exec("SaveSettlement", `
		INSERT INTO settlements
			(ert_id, executor, breakdown_json, outcome_json, forced, tripped, settled_at, settled_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ERTID, s.Executor, breakdown, outcome, boolToInt(s.Forced), boolToInt(s.Tripped),
		toNanos(s.SettledAt), s.SettledBy)
}

func (t *sqliteTx) GetSettlement(ertID string) (domain.Settlement, bool, error) {
	s := domain.Settlement{ERTID: ertID}
	var breakdown, outcome string
	var forced, tripped int
	var settledAt int64
	err := t.tx.QueryRowContext(t.ctx, `
		SELECT executor, breakdown_json, outcome_json, forced, tripped, settled_at, settled_by
		FROM settlements WHERE ert_id = ?
	`, ertID).Scan(&s.Executor, &breakdown, &outcome, &forced, &tripped, &settledAt, &s.SettledBy)
	if errors.Is(err, sql.ErrNoRows) {
		return s, false, nil
	}
	if err != nil {
		return s, false, fmt.Errorf("storage.GetSettlement %s: %w", ertID, err)
	}
	if err := json.Unmarshal([]byte(breakdown), &s.Breakdown); err != nil {
		return s, false, fmt.Errorf("storage.GetSettlement %s: decode breakdown: %w", ertID, err)
	}
	if err := json.Unmarshal([]byte(outcome), &s.Outcome); err != nil {
		return s, false, fmt.Errorf("storage.GetSettlement %s: decode outcome: %w", ertID, err)
	}
	s.Forced = forced == 1
	s.Tripped = tripped == 1
	s.SettledAt = fromNanos(settledAt)
	return s, true, nil
}

// ─── Events ──────────────────────────────────────────────────────────────────

func (t *sqliteTx) AppendEvents(events ...domain.LedgerEvent) error {
	if len(events) == 0 {
		return nil
	}
	stmt, err := t.tx.PrepareContext(t.ctx,
		`INSERT INTO ledger_events (id, kind, entity, amount, detail, at) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("storage.AppendEvents: prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.ExecContext(t.ctx, e.ID, string(e.Kind), e.Entity, e.Amount, e.Detail, toNanos(e.At)); err != nil {
			return fmt.Errorf("storage.AppendEvents: insert %s: %w", e.ID, err)
		}
	}
	return nil
}

func (t *sqliteTx) ListEvents(entity string, limit int) ([]domain.LedgerEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, kind, entity, amount, detail, at FROM ledger_events`
	args := []any{}
	if entity != "" {
		query += ` WHERE entity = ?`
		args = append(args, entity)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := t.tx.QueryContext(t.ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage.ListEvents: query: %w", err)
	}
	defer rows.Close()

	var out []domain.LedgerEvent
	for rows.Next() {
		var e domain.LedgerEvent
		var kind string
		var at int64
		if err := rows.Scan(&e.ID, &kind, &e.Entity, &e.Amount, &e.Detail, &at); err != nil {
			return nil, fmt.Errorf("storage.ListEvents: scan row: %w", err)
		}
		e.Kind = domain.EventKind(kind)
		e.At = fromNanos(at)
		out = append(out, e)
	}
	return out, rows.Err()
}

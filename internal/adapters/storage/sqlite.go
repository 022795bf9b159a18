package storage

// sqlite.go: ledger persistente del motor de ERTs.
//
// Estrategia:
//   - Una tabla por entidad, con clave por identidad (ert, posición, executor, depositante).
//   - `vault_state`, `insurance_reserve` y `circuit_breaker` son singletons (id = 1),
//     sembrados con INSERT OR IGNORE al aplicar el schema.
//   - Importes como TEXT (decimal exacto), timestamps como INTEGER (unix nanos).
//   - Una sola conexión: SQLite es single-writer y cada Update es una transacción completa.

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/ertvault/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS erts (
    id               TEXT PRIMARY KEY,
    owner            TEXT    NOT NULL,
    capital_limit    TEXT    NOT NULL,
    stake_amount     TEXT    NOT NULL,
    duration_ns      INTEGER NOT NULL,
    created_at       INTEGER NOT NULL,
    status           TEXT    NOT NULL,
    constraints_json TEXT    NOT NULL,
    fees_json        TEXT    NOT NULL,
    realized_pnl     TEXT    NOT NULL DEFAULT '0',
    settled_at       INTEGER
);

CREATE INDEX IF NOT EXISTS idx_erts_status ON erts(status);
CREATE INDEX IF NOT EXISTS idx_erts_owner  ON erts(owner);

CREATE TABLE IF NOT EXISTS positions (
    id              TEXT PRIMARY KEY,
    ert_id          TEXT    NOT NULL,
    adapter         TEXT    NOT NULL,
    asset           TEXT    NOT NULL,
    side            TEXT    NOT NULL,   -- LONG / SHORT
    size            TEXT    NOT NULL,
    entry_value_usd TEXT    NOT NULL,
    entry_price     TEXT    NOT NULL,
    opened_at       INTEGER NOT NULL,
    status          TEXT    NOT NULL,   -- OPEN / CLOSED
    closed_at       INTEGER,
    exit_price      TEXT    NOT NULL DEFAULT '0',
    realized_pnl    TEXT    NOT NULL DEFAULT '0'
);

CREATE INDEX IF NOT EXISTS idx_positions_ert ON positions(ert_id);

CREATE TABLE IF NOT EXISTS reputation (
    executor               TEXT PRIMARY KEY,
    total_settlements      INTEGER NOT NULL DEFAULT 0,
    profitable_settlements INTEGER NOT NULL DEFAULT 0,
    total_volume_usd       TEXT    NOT NULL DEFAULT '0',
    largest_loss_bps       INTEGER NOT NULL DEFAULT 0,
    whitelisted            INTEGER NOT NULL DEFAULT 0,
    banned                 INTEGER NOT NULL DEFAULT 0,
    ban_reason             TEXT    NOT NULL DEFAULT '',
    registered_at          INTEGER NOT NULL,
    updated_at             INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS vault_state (
    id                INTEGER PRIMARY KEY DEFAULT 1,
    total_assets      TEXT    NOT NULL DEFAULT '0',
    allocated_capital TEXT    NOT NULL DEFAULT '0',
    total_shares      TEXT    NOT NULL DEFAULT '0',
    updated_at        INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS vault_shares (
    depositor  TEXT PRIMARY KEY,
    shares     TEXT    NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS vault_allocations (
    ert_id       TEXT PRIMARY KEY,
    amount       TEXT    NOT NULL,
    allocated_at INTEGER NOT NULL,
    released_at  INTEGER
);

CREATE TABLE IF NOT EXISTS insurance_reserve (
    id         INTEGER PRIMARY KEY DEFAULT 1,
    balance    TEXT    NOT NULL DEFAULT '0',
    target     TEXT    NOT NULL DEFAULT '0',
    updated_at INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS circuit_breaker (
    id                 INTEGER PRIMARY KEY DEFAULT 1,
    max_daily_loss_bps INTEGER NOT NULL DEFAULT 0,
    timezone           TEXT    NOT NULL DEFAULT '',
    window_start       INTEGER NOT NULL DEFAULT 0,
    daily_loss_bps     TEXT    NOT NULL DEFAULT '0',
    tripped_at         INTEGER,
    trip_reason        TEXT    NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS settlements (
    ert_id         TEXT PRIMARY KEY,
    executor       TEXT    NOT NULL,
    breakdown_json TEXT    NOT NULL,
    outcome_json   TEXT    NOT NULL,
    forced         INTEGER NOT NULL DEFAULT 0,
    tripped        INTEGER NOT NULL DEFAULT 0,
    settled_at     INTEGER NOT NULL,
    settled_by     TEXT    NOT NULL
);

-- Auditoría append-only; el id es un ULID, ordenable por tiempo
CREATE TABLE IF NOT EXISTS ledger_events (
    id     TEXT PRIMARY KEY,
    kind   TEXT    NOT NULL,
    entity TEXT    NOT NULL,
    amount TEXT    NOT NULL DEFAULT '0',
    detail TEXT    NOT NULL DEFAULT '',
    at     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_entity ON ledger_events(entity, id DESC);

INSERT OR IGNORE INTO vault_state (id) VALUES (1);
INSERT OR IGNORE INTO insurance_reserve (id) VALUES (1);
INSERT OR IGNORE INTO circuit_breaker (id) VALUES (1);
`

// SQLiteStorage implementa ports.LedgerStore usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
}

var _ ports.LedgerStore = (*SQLiteStorage)(nil)

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada y aplica el schema.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0) // ":memory:" vive lo que vive la conexión

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

// Update ejecuta fn en una transacción y hace commit solo si fn no falla.
func (s *SQLiteStorage) Update(ctx context.Context, fn func(tx ports.LedgerTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.Update: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqliteTx{ctx: ctx, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.Update: commit: %w", err)
	}
	return nil
}

// View ejecuta fn en una transacción que siempre se descarta.
func (s *SQLiteStorage) View(ctx context.Context, fn func(tx ports.LedgerTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.View: begin tx: %w", err)
	}
	defer tx.Rollback()

	return fn(&sqliteTx{ctx: ctx, tx: tx})
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// sqliteTx implementa ports.LedgerTx sobre una *sql.Tx abierta.
type sqliteTx struct {
	ctx context.Context
	tx  *sql.Tx
}

func (t *sqliteTx) exec(op, query string, args ...any) error {
	if _, err := t.tx.ExecContext(t.ctx, query, args...); err != nil {
		return fmt.Errorf("storage.%s: %w", op, err)
	}
	return nil
}

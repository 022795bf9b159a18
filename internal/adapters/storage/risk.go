package storage

// risk.go: reputación de executors, reserva de seguro y circuit breaker.

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/alejandrodnm/ertvault/internal/domain"
)

// ─── Reputation ──────────────────────────────────────────────────────────────

func (t *sqliteTx) GetReputation(executor string) (domain.ReputationRecord, bool, error) {
	r := domain.ReputationRecord{Executor: executor}
	var whitelisted, banned int
	var registeredAt, updatedAt int64
	err := t.tx.QueryRowContext(t.ctx, `
		SELECT total_settlements, profitable_settlements, total_volume_usd, largest_loss_bps,
		       whitelisted, banned, ban_reason, registered_at, updated_at
		FROM reputation WHERE executor = ?
	`, executor).Scan(
		&r.TotalSettlements, &r.ProfitableSettlements, &r.TotalVolumeUSD, &r.LargestLossBps,
		&whitelisted, &banned, &r.BanReason, &registeredAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return r, false, nil
	}
	if err != nil {
		return r, false, fmt.Errorf("storage.GetReputation %s: %w", executor, err)
	}
	r.Whitelisted = whitelisted == 1
	r.Banned = banned == 1
	r.RegisteredAt = fromNanos(registeredAt)
	r.UpdatedAt = fromNanos(updatedAt)
	return r, true, nil
}

func (t *sqliteTx) SaveReputation(r domain.ReputationRecord) error {
	return t.exec("SaveReputation", `
		INSERT INTO reputation
			(executor, total_settlements, profitable_settlements, total_volume_usd, largest_loss_bps,
			 whitelisted, banned, ban_reason, registered_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(executor) DO UPDATE SET
			total_settlements      = excluded.total_settlements,
			profitable_settlements = excluded.profitable_settlements,
			total_volume_usd       = excluded.total_volume_usd,
			largest_loss_bps       = excluded.largest_loss_bps,
			whitelisted            = excluded.whitelisted,
			banned                 = excluded.banned,
			ban_reason             = excluded.ban_reason,
			updated_at             = excluded.updated_at
	`,
		r.Executor, r.TotalSettlements, r.ProfitableSettlements, r.TotalVolumeUSD, r.LargestLossBps,
		boolToInt(r.Whitelisted), boolToInt(r.Banned), r.BanReason, toNanos(r.RegisteredAt), toNanos(r.UpdatedAt),
	)
}

// ─── Insurance reserve ───────────────────────────────────────────────────────

func (t *sqliteTx) GetReserve() (domain.InsuranceReserve, error) {
	var r domain.InsuranceReserve
	var updatedAt int64
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT balance, target, updated_at FROM insurance_reserve WHERE id = 1`,
	).Scan(&r.Balance, &r.Target, &updatedAt)
	if err != nil {
		return r, fmt.Errorf("storage.GetReserve: %w", err)
	}
	r.UpdatedAt = fromNanos(updatedAt)
	return r, nil
}

func (t *sqliteTx) SaveReserve(r domain.InsuranceReserve) error {
	return t.exec("SaveReserve",
		`UPDATE insurance_reserve SET balance = ?, target = ?, updated_at = ? WHERE id = 1`,
		r.Balance, r.Target, toNanos(r.UpdatedAt))
}

// ─── Circuit Breaker ─────────────────────────────────────────────────────────

func (t *sqliteTx) GetBreaker() (domain.CircuitBreaker, error) {
	var cb domain.CircuitBreaker
	var windowStart int64
	var trippedAt sql.NullInt64
	err := t.tx.QueryRowContext(t.ctx, `
		SELECT max_daily_loss_bps, timezone, window_start, daily_loss_bps, tripped_at, trip_reason
		FROM circuit_breaker WHERE id = 1
	`).Scan(&cb.MaxDailyLossBps, &cb.Timezone, &windowStart, &cb.DailyLossBps, &trippedAt, &cb.TripReason)
	if err != nil {
		return cb, fmt.Errorf("storage.GetBreaker: %w", err)
	}
	cb.WindowStart = fromNanos(windowStart)
	cb.TrippedAt = ptrNanos(trippedAt)
	return cb, nil
}

func (t *sqliteTx) SaveBreaker(cb domain.CircuitBreaker) error {
	return t.exec("SaveBreaker", `
		UPDATE circuit_breaker SET
			max_daily_loss_bps = ?,
			timezone           = ?,
			window_start       = ?,
			daily_loss_bps     = ?,
			tripped_at         = ?,
			trip_reason        = ?
		WHERE id = 1
	`, cb.MaxDailyLossBps, cb.Timezone, toNanos(cb.WindowStart), cb.DailyLossBps, nullNanos(cb.TrippedAt), cb.TripReason)
}

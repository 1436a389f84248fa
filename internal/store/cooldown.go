package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CooldownTryAcquire is the sole cross-process serialization point: an
// atomic check-and-set against the one-row-per-project cooldown table,
// executed as a single immediate transaction so two concurrent workers
// racing on the same sqlite file cannot both observe "not on cooldown".
//
// Returns true iff (no row exists) OR (row.last_summarize_unix + cooldownSecs < now
// AND row.last_message_hash != messageHash). On success, the new epoch and
// hash are written *before* returning — the "advance placeholder" that
// gates out a parallel worker even if this one is later killed mid-flight.
func (s *Store) CooldownTryAcquire(ctx context.Context, project, messageHash string, cooldownSecs int64, now int64) (bool, error) {
	var acquired bool
	err := retryOnBusy(ctx, 5, func() error {
		acquired = false
		tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		var lastSummarize int64
		var lastHash string
		selErr := tx.QueryRowContext(ctx, `SELECT last_summarize_unix, last_message_hash FROM cooldowns WHERE project = ?;`, project).Scan(&lastSummarize, &lastHash)

		switch {
		case errors.Is(selErr, sql.ErrNoRows):
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO cooldowns (project, last_summarize_unix, last_message_hash) VALUES (?, ?, ?);
			`, project, now, messageHash); err != nil {
				return err
			}
			acquired = true
			return tx.Commit()
		case selErr != nil:
			return selErr
		}

		eligible := lastSummarize+cooldownSecs < now && lastHash != messageHash
		if !eligible {
			acquired = false
			return tx.Commit()
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE cooldowns SET last_summarize_unix = ?, last_message_hash = ? WHERE project = ?;
		`, now, messageHash, project); err != nil {
			return err
		}
		acquired = true
		return tx.Commit()
	})
	if err != nil {
		return false, fmt.Errorf("cooldown try acquire: %w", err)
	}
	return acquired, nil
}

// GetCooldown returns the current cooldown row for project, or a zero
// row if none exists yet.
func (s *Store) GetCooldown(ctx context.Context, project string) (CooldownRow, error) {
	row := CooldownRow{Project: project}
	err := s.db.QueryRowContext(ctx, `SELECT last_summarize_unix, last_message_hash FROM cooldowns WHERE project = ?;`, project).
		Scan(&row.LastSummarizeUnix, &row.LastMessageHash)
	if errors.Is(err, sql.ErrNoRows) {
		return row, nil
	}
	if err != nil {
		return row, fmt.Errorf("get cooldown: %w", err)
	}
	return row, nil
}

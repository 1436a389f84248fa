package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// UpsertSummary replaces the prior row for (session, project), returning
// the prior content so the caller can build a "merge prior with new"
// prompt. At most one summary exists per (session, project).
func (s *Store) UpsertSummary(ctx context.Context, summary SessionSummary) (prior SessionSummary, hadPrior bool, err error) {
	err = retryOnBusy(ctx, 5, func() error {
		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return txErr
		}
		defer func() { _ = tx.Rollback() }()

		var existing SessionSummary
		selErr := tx.QueryRowContext(ctx, `
			SELECT session_id, project, request, completed, decisions, learned, next_steps, preferences, discovery_tokens, updated_at_unix
			FROM session_summaries WHERE session_id = ? AND project = ?;
		`, summary.SessionID, summary.Project).Scan(
			&existing.SessionID, &existing.Project, &existing.Request, &existing.Completed,
			&existing.Decisions, &existing.Learned, &existing.NextSteps, &existing.Preferences,
			&existing.DiscoveryTokens, &existing.UpdatedAtUnix,
		)
		switch {
		case selErr == nil:
			prior = existing
			hadPrior = true
		case errors.Is(selErr, sql.ErrNoRows):
			hadPrior = false
		default:
			return selErr
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO session_summaries (session_id, project, request, completed, decisions, learned, next_steps, preferences, discovery_tokens, updated_at_unix)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(session_id, project) DO UPDATE SET
				request = excluded.request,
				completed = excluded.completed,
				decisions = excluded.decisions,
				learned = excluded.learned,
				next_steps = excluded.next_steps,
				preferences = excluded.preferences,
				discovery_tokens = excluded.discovery_tokens,
				updated_at_unix = excluded.updated_at_unix;
		`, summary.SessionID, summary.Project, summary.Request, summary.Completed,
			summary.Decisions, summary.Learned, summary.NextSteps, summary.Preferences,
			summary.DiscoveryTokens, summary.UpdatedAtUnix)
		if err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return SessionSummary{}, false, fmt.Errorf("upsert summary: %w", err)
	}
	return prior, hadPrior, nil
}

// RecentSummaries returns the most recent session summaries for project,
// newest first, up to limit.
func (s *Store) RecentSummaries(ctx context.Context, project string, limit int) ([]SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, project, request, completed, decisions, learned, next_steps, preferences, discovery_tokens, updated_at_unix
		FROM session_summaries WHERE project = ?
		ORDER BY updated_at_unix DESC LIMIT ?;
	`, project, limit)
	if err != nil {
		return nil, fmt.Errorf("recent summaries: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var sm SessionSummary
		if err := rows.Scan(&sm.SessionID, &sm.Project, &sm.Request, &sm.Completed, &sm.Decisions,
			&sm.Learned, &sm.NextSteps, &sm.Preferences, &sm.DiscoveryTokens, &sm.UpdatedAtUnix); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}

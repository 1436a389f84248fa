package store

import (
	"context"
	"fmt"
)

// EnqueueEvent inserts one pending row. Pending rows grow monotonically
// within a session until a batch flush deletes them.
func (s *Store) EnqueueEvent(ctx context.Context, ev Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_events (session_id, project, tool_name, tool_input, tool_response, created_at_unix)
		VALUES (?, ?, ?, ?, ?, ?);
	`, ev.SessionID, ev.Project, ev.ToolName, ev.ToolInput, ev.ToolResponse, ev.CreatedAtUnix)
	if err != nil {
		return fmt.Errorf("enqueue event: %w", err)
	}
	return nil
}

// ClaimPending returns up to limit oldest pending rows for the session,
// ordered by creation epoch. Callers delete them via DeletePending after
// a successful distill; no row-locking is required because only the
// worker for that session mutates them.
func (s *Store) ClaimPending(ctx context.Context, sessionID string, limit int) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, project, tool_name, tool_input, tool_response, created_at_unix
		FROM pending_events
		WHERE session_id = ?
		ORDER BY created_at_unix ASC, id ASC
		LIMIT ?;
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("claim pending: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.Project, &ev.ToolName, &ev.ToolInput, &ev.ToolResponse, &ev.CreatedAtUnix); err != nil {
			return nil, fmt.Errorf("scan pending event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// DeletePending removes the given pending rows by id.
func (s *Store) DeletePending(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return retryOnBusy(ctx, 5, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		stmt, err := tx.PrepareContext(ctx, `DELETE FROM pending_events WHERE id = ?;`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, id := range ids {
			if _, err := stmt.ExecContext(ctx, id); err != nil {
				return fmt.Errorf("delete pending %d: %w", id, err)
			}
		}
		return tx.Commit()
	})
}

// CountPending returns the number of pending rows for a session (used by
// the summarizer's minimum-activity gate).
func (s *Store) CountPending(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_events WHERE session_id = ?;`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return n, nil
}

// ListStalePendingSessions returns the distinct session ids in project
// that have at least one pending row older than olderThanUnix. Used by
// session-init's stale-pending recovery: the caller distills each
// returned session so low-activity sessions don't leak events forever.
func (s *Store) ListStalePendingSessions(ctx context.Context, project string, olderThanUnix int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT session_id FROM pending_events
		WHERE project = ? AND created_at_unix < ?;
	`, project, olderThanUnix)
	if err != nil {
		return nil, fmt.Errorf("list stale pending sessions: %w", err)
	}
	defer rows.Close()

	var sessions []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stale pending session: %w", err)
		}
		sessions = append(sessions, id)
	}
	return sessions, rows.Err()
}

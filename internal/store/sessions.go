package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// GetOrCreateSession maps a host content-session id to a stable memory
// session id and project. First-seen creates; subsequent lookups return
// the existing id.
func (s *Store) GetOrCreateSession(ctx context.Context, contentSessionID, project string) (memoryID string, isNew bool, err error) {
	err = retryOnBusy(ctx, 5, func() error {
		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return txErr
		}
		defer func() { _ = tx.Rollback() }()

		var existing string
		selErr := tx.QueryRowContext(ctx, `SELECT memory_session_id FROM session_map WHERE content_session_id = ?;`, contentSessionID).Scan(&existing)
		switch {
		case selErr == nil:
			memoryID = existing
			isNew = false
			_, incErr := tx.ExecContext(ctx, `UPDATE session_map SET prompt_count = prompt_count + 1 WHERE content_session_id = ?;`, contentSessionID)
			if incErr != nil {
				return incErr
			}
			return tx.Commit()
		case errors.Is(selErr, sql.ErrNoRows):
			memoryID = uuid.NewString()
			isNew = true
			_, insErr := tx.ExecContext(ctx, `
				INSERT INTO session_map (content_session_id, memory_session_id, project, prompt_count, created_at_unix)
				VALUES (?, ?, ?, 1, ?);
			`, contentSessionID, memoryID, project, unixNow())
			if insErr != nil {
				return insErr
			}
			return tx.Commit()
		default:
			return selErr
		}
	})
	if err != nil {
		return "", false, fmt.Errorf("get or create session: %w", err)
	}
	return memoryID, isNew, nil
}

// PromptCount returns the current prompt-submit counter for a content
// session, or 0 if unseen.
func (s *Store) PromptCount(ctx context.Context, contentSessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT prompt_count FROM session_map WHERE content_session_id = ?;`, contentSessionID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("prompt count: %w", err)
	}
	return n, nil
}

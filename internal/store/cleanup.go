package store

import (
	"context"
	"fmt"
)

const (
	pendingMaxAgeSeconds    = 3600
	compressedMaxAgeSeconds = 90 * 24 * 3600
)

// CleanupResult reports how many rows each cleanup pass removed, for
// logging and audit purposes.
type CleanupResult struct {
	OrphanSummariesDeleted int64
	DuplicateSummariesKept int64
	StalePendingDeleted    int64
	CompressedDeleted      int64
}

// Cleanup deletes orphan summaries (session with no memories), pending
// rows older than one hour, and compressed memories older than 90 days.
// Duplicate summaries per (session, project) cannot exist, so there is
// no duplicate pass and DuplicateSummariesKept stays zero.
func (s *Store) Cleanup(ctx context.Context, now int64) (CleanupResult, error) {
	var result CleanupResult
	err := retryOnBusy(ctx, 5, func() error {
		result = CleanupResult{}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.ExecContext(ctx, `
			DELETE FROM session_summaries
			WHERE NOT EXISTS (
				SELECT 1 FROM memories m
				WHERE m.session_id = session_summaries.session_id
				AND m.project = session_summaries.project
			);
		`)
		if err != nil {
			return fmt.Errorf("delete orphan summaries: %w", err)
		}
		result.OrphanSummariesDeleted, _ = res.RowsAffected()

		// The schema's PRIMARY KEY (session_id, project) already forbids
		// duplicates at the row level; ON CONFLICT upserts keep the newest,
		// so no separate duplicate-summary pass runs here.

		res, err = tx.ExecContext(ctx, `DELETE FROM pending_events WHERE created_at_unix < ?;`, now-pendingMaxAgeSeconds)
		if err != nil {
			return fmt.Errorf("delete stale pending: %w", err)
		}
		result.StalePendingDeleted, _ = res.RowsAffected()

		res, err = tx.ExecContext(ctx, `DELETE FROM memories WHERE status = 'compressed' AND created_at_unix < ?;`, now-compressedMaxAgeSeconds)
		if err != nil {
			return fmt.Errorf("delete old compressed memories: %w", err)
		}
		result.CompressedDeleted, _ = res.RowsAffected()

		return tx.Commit()
	})
	if err != nil {
		return CleanupResult{}, err
	}
	return result, nil
}

// ListProjects returns the distinct project names with any stored state,
// used by the maintenance scheduler to iterate known projects.
func (s *Store) ListProjects(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project FROM memories
		UNION
		SELECT project FROM pending_events
		UNION
		SELECT project FROM cooldowns;
	`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

func marshalList(items []string) string {
	if items == nil {
		items = []string{}
	}
	b, _ := json.Marshal(items)
	return string(b)
}

func unmarshalList(raw string) []string {
	if raw == "" {
		return nil
	}
	var items []string
	_ = json.Unmarshal([]byte(raw), &items)
	return items
}

// InsertMemories inserts memories (status defaults to active when
// unset) in one transaction and returns
// their assigned ids in order; the FTS index is maintained entirely by
// triggers, so this does no direct FTS writes.
func (s *Store) InsertMemories(ctx context.Context, memories []Memory) ([]int64, error) {
	if len(memories) == 0 {
		return nil, nil
	}
	var ids []int64
	err := retryOnBusy(ctx, 5, func() error {
		ids = nil
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO memories (
				session_id, project, kind, title, subtitle, narrative,
				facts, concepts, files_read, files_modified,
				status, discovery_tokens, user_authored, created_at_unix
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, m := range memories {
			status := m.Status
			if status == "" {
				status = StatusActive
			}
			res, err := stmt.ExecContext(ctx,
				m.SessionID, m.Project, string(m.Kind), m.Title, m.Subtitle, m.Narrative,
				marshalList(m.Facts), marshalList(m.Concepts), marshalList(m.FilesRead), marshalList(m.FilesModified),
				string(status), m.DiscoveryTokens, boolToInt(m.UserAuthored), m.CreatedAtUnix,
			)
			if err != nil {
				return fmt.Errorf("insert memory %q: %w", m.Title, err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// MarkStaleByFileOverlap sets status=stale on prior active memories in
// project whose files_modified intersects filesModified, excluding
// excludeIDs (the just-inserted memories). The Distiller calls it right
// after InsertMemories for the same batch; it runs in its own
// transaction, so the insert and the staling are not atomic together.
func (s *Store) MarkStaleByFileOverlap(ctx context.Context, project string, filesModified []string, excludeIDs []int64) error {
	if len(filesModified) == 0 {
		return nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, files_modified, user_authored FROM memories
		WHERE project = ? AND status = 'active';
	`, project)
	if err != nil {
		return fmt.Errorf("mark stale: query active memories: %w", err)
	}

	exclude := make(map[int64]bool, len(excludeIDs))
	for _, id := range excludeIDs {
		exclude[id] = true
	}
	changed := make([]int64, 0, len(filesModified))
	modifiedSet := make(map[string]bool, len(filesModified))
	for _, f := range filesModified {
		modifiedSet[f] = true
	}

	for rows.Next() {
		var id int64
		var filesRaw string
		var userAuthored int
		if err := rows.Scan(&id, &filesRaw, &userAuthored); err != nil {
			rows.Close()
			return fmt.Errorf("mark stale: scan row: %w", err)
		}
		if exclude[id] || userAuthored == 1 {
			// save_memory-created memories are exempt from stale-by-file-overlap.
			continue
		}
		for _, f := range unmarshalList(filesRaw) {
			if modifiedSet[f] {
				changed = append(changed, id)
				break
			}
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	if len(changed) == 0 {
		return nil
	}

	return retryOnBusy(ctx, 5, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		stmt, err := tx.PrepareContext(ctx, `UPDATE memories SET status = 'stale' WHERE id = ?;`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, id := range changed {
			if _, err := stmt.ExecContext(ctx, id); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// ActiveCount returns the number of active memories in project.
func (s *Store) ActiveCount(ctx context.Context, project string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories WHERE project = ? AND status = 'active';`, project).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("active count: %w", err)
	}
	return n, nil
}

// OldestActiveBeyondNewest returns the ids of the oldest active memories
// in project beyond the newest keepNewest, up to compactCount of them —
// the candidate set for compaction.
func (s *Store) OldestActiveBeyondNewest(ctx context.Context, project string, keepNewest, compactCount int) ([]Memory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, project, kind, title, subtitle, narrative,
			facts, concepts, files_read, files_modified, status, discovery_tokens, user_authored, created_at_unix
		FROM memories
		WHERE project = ? AND status = 'active'
		ORDER BY created_at_unix DESC
		LIMIT -1 OFFSET ?;
	`, project, keepNewest)
	if err != nil {
		return nil, fmt.Errorf("oldest active: %w", err)
	}
	defer rows.Close()

	var candidates []Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// candidates are newest-first among the "beyond keepNewest" slice;
	// the oldest compactCount are at the tail.
	if len(candidates) > compactCount {
		candidates = candidates[len(candidates)-compactCount:]
	}
	return candidates, nil
}

// CompactFunc collapses a batch of oldest memories into 1-2 merged
// memories; supplied by the Distiller (it owns the LM call), not the
// Store, which performs no policy.
type CompactFunc func(ctx context.Context, project string, oldest []Memory) ([]Memory, error)

// CompactOldest runs compaction when active count exceeds 100: the 30
// oldest active memories beyond the newest 50 are asked of compactor,
// marked compressed, and the 1-2 produced memories are inserted as
// active, all inside one transaction-equivalent sequence.
func (s *Store) CompactOldest(ctx context.Context, project string, keepNewest, compactCount int, compactor CompactFunc) ([]int64, error) {
	count, err := s.ActiveCount(ctx, project)
	if err != nil {
		return nil, err
	}
	if count <= 100 {
		return nil, nil
	}

	oldest, err := s.OldestActiveBeyondNewest(ctx, project, keepNewest, compactCount)
	if err != nil {
		return nil, err
	}
	if len(oldest) == 0 {
		return nil, nil
	}

	merged, err := compactor(ctx, project, oldest)
	if err != nil {
		return nil, fmt.Errorf("compact oldest: %w", err)
	}

	var newIDs []int64
	err = retryOnBusy(ctx, 5, func() error {
		newIDs = nil
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		stmtUpdate, err := tx.PrepareContext(ctx, `UPDATE memories SET status = 'compressed' WHERE id = ?;`)
		if err != nil {
			return err
		}
		defer stmtUpdate.Close()
		for _, m := range oldest {
			if _, err := stmtUpdate.ExecContext(ctx, m.ID); err != nil {
				return err
			}
		}

		stmtInsert, err := tx.PrepareContext(ctx, `
			INSERT INTO memories (
				session_id, project, kind, title, subtitle, narrative,
				facts, concepts, files_read, files_modified,
				status, discovery_tokens, user_authored, created_at_unix
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'active', ?, 0, ?);
		`)
		if err != nil {
			return err
		}
		defer stmtInsert.Close()
		for _, m := range merged {
			res, err := stmtInsert.ExecContext(ctx,
				m.SessionID, project, string(m.Kind), m.Title, m.Subtitle, m.Narrative,
				marshalList(m.Facts), marshalList(m.Concepts), marshalList(m.FilesRead), marshalList(m.FilesModified),
				m.DiscoveryTokens, m.CreatedAtUnix,
			)
			if err != nil {
				return err
			}
			id, err := res.LastInsertId()
			if err != nil {
				return err
			}
			newIDs = append(newIDs, id)
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}
	return newIDs, nil
}

func scanMemory(rows *sql.Rows) (Memory, error) {
	var m Memory
	var kind, status string
	var factsRaw, conceptsRaw, filesReadRaw, filesModifiedRaw string
	var userAuthored int
	err := rows.Scan(&m.ID, &m.SessionID, &m.Project, &kind, &m.Title, &m.Subtitle, &m.Narrative,
		&factsRaw, &conceptsRaw, &filesReadRaw, &filesModifiedRaw, &status, &m.DiscoveryTokens, &userAuthored, &m.CreatedAtUnix)
	if err != nil {
		return m, fmt.Errorf("scan memory: %w", err)
	}
	m.Kind = Kind(kind)
	m.Status = MemoryStatus(status)
	m.Facts = unmarshalList(factsRaw)
	m.Concepts = unmarshalList(conceptsRaw)
	m.FilesRead = unmarshalList(filesReadRaw)
	m.FilesModified = unmarshalList(filesModifiedRaw)
	m.UserAuthored = userAuthored == 1
	return m, nil
}

// GetMemories returns full memory records for the given ids.
func (s *Store) GetMemories(ctx context.Context, ids []int64) ([]Memory, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(`
		SELECT id, session_id, project, kind, title, subtitle, narrative,
			facts, concepts, files_read, files_modified, status, discovery_tokens, user_authored, created_at_unix
		FROM memories WHERE id IN (%s);
	`, strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get memories: %w", err)
	}
	defer rows.Close()

	var out []Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Timeline returns memories bracketing anchorID in the same project: up
// to `before` immediately preceding and `after` immediately following,
// ordered by creation epoch.
func (s *Store) Timeline(ctx context.Context, anchorID int64, before, after int) ([]Memory, error) {
	var project string
	var anchorCreated int64
	err := s.db.QueryRowContext(ctx, `SELECT project, created_at_unix FROM memories WHERE id = ?;`, anchorID).Scan(&project, &anchorCreated)
	if err != nil {
		return nil, fmt.Errorf("timeline: anchor lookup: %w", err)
	}

	beforeRows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, project, kind, title, subtitle, narrative,
			facts, concepts, files_read, files_modified, status, discovery_tokens, user_authored, created_at_unix
		FROM memories WHERE project = ? AND created_at_unix < ?
		ORDER BY created_at_unix DESC LIMIT ?;
	`, project, anchorCreated, before)
	if err != nil {
		return nil, fmt.Errorf("timeline: before query: %w", err)
	}
	var beforeList []Memory
	for beforeRows.Next() {
		m, err := scanMemory(beforeRows)
		if err != nil {
			beforeRows.Close()
			return nil, err
		}
		beforeList = append(beforeList, m)
	}
	beforeRows.Close()
	// reverse so chronological ascending
	for i, j := 0, len(beforeList)-1; i < j; i, j = i+1, j-1 {
		beforeList[i], beforeList[j] = beforeList[j], beforeList[i]
	}

	anchor, err := s.GetMemories(ctx, []int64{anchorID})
	if err != nil {
		return nil, err
	}

	afterRows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, project, kind, title, subtitle, narrative,
			facts, concepts, files_read, files_modified, status, discovery_tokens, user_authored, created_at_unix
		FROM memories WHERE project = ? AND created_at_unix > ?
		ORDER BY created_at_unix ASC LIMIT ?;
	`, project, anchorCreated, after)
	if err != nil {
		return nil, fmt.Errorf("timeline: after query: %w", err)
	}
	defer afterRows.Close()
	var afterList []Memory
	for afterRows.Next() {
		m, err := scanMemory(afterRows)
		if err != nil {
			return nil, err
		}
		afterList = append(afterList, m)
	}

	out := append(beforeList, anchor...)
	out = append(out, afterList...)
	return out, nil
}

// SearchFTS runs a full-text search ranked by bm25 combined with a
// time-decay factor; stale entries are additionally penalized.
func (s *Store) SearchFTS(ctx context.Context, query string, project string, kinds []Kind, limit int) ([]SearchHit, error) {
	args := []interface{}{query}
	conds := []string{"memories_fts MATCH ?"}
	if project != "" {
		conds = append(conds, "m.project = ?")
		args = append(args, project)
	}
	if len(kinds) > 0 {
		placeholders := make([]string, len(kinds))
		for i, k := range kinds {
			placeholders[i] = "?"
			args = append(args, string(k))
		}
		conds = append(conds, fmt.Sprintf("m.kind IN (%s)", strings.Join(placeholders, ",")))
	}
	args = append(args, limit)

	sqlQuery := fmt.Sprintf(`
		SELECT m.id, m.title, snippet(memories_fts, 2, '[', ']', '...', 10), m.kind, m.project,
			bm25(memories_fts) * (CASE WHEN m.status = 'stale' THEN 0.5 ELSE 1.0 END) *
			(1.0 / (1.0 + (%d - m.created_at_unix) / 86400.0)) AS score,
			m.created_at_unix
		FROM memories_fts
		JOIN memories m ON m.id = memories_fts.rowid
		WHERE %s
		ORDER BY score ASC
		LIMIT ?;
	`, unixNow(), strings.Join(conds, " AND "))

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("search fts: %w", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var h SearchHit
		var kind string
		if err := rows.Scan(&h.ID, &h.Title, &h.Snippet, &kind, &h.Project, &h.Rank, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		h.Kind = Kind(kind)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

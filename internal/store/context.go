package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// ListContext loads the raw data behind a rendered context document:
// active memories (ordered by kind priority then time descending, with
// stale memories capped at 20% of active shown), and the most recent
// session summaries. The Store performs no formatting — that is the
// Context Renderer's job.
func (s *Store) ListContext(ctx context.Context, project string, opts ContextOptions) (ContextResult, error) {
	total := opts.TotalMemories
	if total <= 0 {
		total = 50
	}
	sessionCount := opts.SessionCount
	if sessionCount <= 0 {
		sessionCount = 10
	}

	kindFilter := ""
	args := []interface{}{project}
	if len(opts.Kinds) > 0 {
		placeholders := make([]string, len(opts.Kinds))
		for i, k := range opts.Kinds {
			placeholders[i] = "?"
			args = append(args, string(k))
		}
		kindFilter = fmt.Sprintf("AND kind IN (%s)", strings.Join(placeholders, ","))
	}

	activeQuery := fmt.Sprintf(`
		SELECT id, session_id, project, kind, title, subtitle, narrative,
			facts, concepts, files_read, files_modified, status, discovery_tokens, user_authored, created_at_unix
		FROM memories
		WHERE project = ? AND status = 'active' %s
		ORDER BY created_at_unix DESC;
	`, kindFilter)

	activeRows, err := s.db.QueryContext(ctx, activeQuery, args...)
	if err != nil {
		return ContextResult{}, fmt.Errorf("list context: active query: %w", err)
	}
	var active []Memory
	for activeRows.Next() {
		m, err := scanMemory(activeRows)
		if err != nil {
			activeRows.Close()
			return ContextResult{}, err
		}
		active = append(active, m)
	}
	if err := activeRows.Err(); err != nil {
		activeRows.Close()
		return ContextResult{}, err
	}
	activeRows.Close()

	sort.SliceStable(active, func(i, j int) bool {
		pi, pj := KindPriority(active[i].Kind), KindPriority(active[j].Kind)
		if pi != pj {
			return pi < pj
		}
		return active[i].CreatedAtUnix > active[j].CreatedAtUnix
	})
	if len(active) > total {
		active = active[:total]
	}

	staleCap := len(active) / 5
	staleArgs := append([]interface{}{project}, args[1:]...)
	staleQuery := fmt.Sprintf(`
		SELECT id, session_id, project, kind, title, subtitle, narrative,
			facts, concepts, files_read, files_modified, status, discovery_tokens, user_authored, created_at_unix
		FROM memories
		WHERE project = ? AND status = 'stale' %s
		ORDER BY created_at_unix DESC
		LIMIT ?;
	`, kindFilter)
	staleArgs = append(staleArgs, staleCap)

	var stale []Memory
	if staleCap > 0 {
		staleRows, err := s.db.QueryContext(ctx, staleQuery, staleArgs...)
		if err != nil {
			return ContextResult{}, fmt.Errorf("list context: stale query: %w", err)
		}
		for staleRows.Next() {
			m, err := scanMemory(staleRows)
			if err != nil {
				staleRows.Close()
				return ContextResult{}, err
			}
			stale = append(stale, m)
		}
		if err := staleRows.Err(); err != nil {
			staleRows.Close()
			return ContextResult{}, err
		}
		staleRows.Close()
	}

	summaries, err := s.RecentSummaries(ctx, project, sessionCount)
	if err != nil {
		return ContextResult{}, err
	}

	activeTotal, err := s.ActiveCount(ctx, project)
	if err != nil {
		return ContextResult{}, err
	}
	var staleTotal int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories WHERE project = ? AND status = 'stale';`, project).Scan(&staleTotal); err != nil {
		return ContextResult{}, fmt.Errorf("list context: stale count: %w", err)
	}

	return ContextResult{
		Memories:  append(active, stale...),
		Summaries: summaries,
		Totals:    Totals{ActiveCount: activeTotal, StaleCount: staleTotal},
	}, nil
}

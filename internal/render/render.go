// Package render turns the Store's raw context query into the markdown
// document a session-start hook prints to standard output for the host
// to inject as context.
package render

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/basket/remem/internal/config"
	"github.com/basket/remem/internal/store"
)

// Render produces the markdown context document for project. Returns
// a one-line "no previous sessions" notice when the project has no
// memories or summaries at all.
func Render(ctx context.Context, s *store.Store, project string, opts config.RenderOptions) (string, error) {
	kinds := kindsFromStrings(opts.Kinds)
	result, err := s.ListContext(ctx, project, store.ContextOptions{
		TotalMemories: opts.TotalMemories,
		SessionCount:  opts.SessionCount,
		Kinds:         kinds,
	})
	if err != nil {
		return "", fmt.Errorf("list context: %w", err)
	}

	if len(result.Memories) == 0 && len(result.Summaries) == 0 {
		return fmt.Sprintf("No previous sessions for %s.\n", project), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Memory for %s\n\n", project)

	if opts.ShowLastSummary && len(result.Summaries) > 0 {
		renderSummary(&sb, result.Summaries[0])
	}

	fullCount := opts.FullCount
	if fullCount <= 0 {
		fullCount = 10
	}
	renderMemoryGroups(&sb, result.Memories, fullCount)

	renderTokenEconomics(&sb, sb.Len(), result.Memories, opts)

	return sb.String(), nil
}

func renderSummary(sb *strings.Builder, s store.SessionSummary) {
	sb.WriteString("## Last session summary\n\n")
	fmt.Fprintf(sb, "- **Request:** %s\n", orDash(s.Request))
	fmt.Fprintf(sb, "- **Completed:** %s\n", orDash(s.Completed))
	if s.Decisions != "" {
		fmt.Fprintf(sb, "- **Decisions:** %s\n", s.Decisions)
	}
	if s.Learned != "" {
		fmt.Fprintf(sb, "- **Learned:** %s\n", s.Learned)
	}
	if s.NextSteps != "" {
		fmt.Fprintf(sb, "- **Next steps:** %s\n", s.NextSteps)
	}
	if s.Preferences != "" {
		fmt.Fprintf(sb, "- **Preferences:** %s\n", s.Preferences)
	}
	sb.WriteString("\n")
}

// renderMemoryGroups groups memories by date then by session, emitting
// a markdown table per group. Groups appear in order of their first
// memory in selection order (kind-priority-then-time-descending, per
// Store.ListContext); the first fullCount memories in that group-by-group
// rendering order get their full narrative; the rest render as a
// title+subtitle table row.
func renderMemoryGroups(sb *strings.Builder, memories []store.Memory, fullCount int) {
	type group struct {
		date     string
		session  string
		memories []store.Memory
	}
	var groups []*group
	index := make(map[string]*group)
	for _, m := range memories {
		date := time.Unix(m.CreatedAtUnix, 0).UTC().Format("2006-01-02")
		key := date + "|" + m.SessionID
		g, ok := index[key]
		if !ok {
			g = &group{date: date, session: m.SessionID}
			index[key] = g
			groups = append(groups, g)
		}
		g.memories = append(g.memories, m)
	}

	rendered := 0
	for _, g := range groups {
		fmt.Fprintf(sb, "## %s — session %s\n\n", g.date, shortID(g.session))
		for _, m := range g.memories {
			if rendered < fullCount {
				renderFullMemory(sb, m)
			} else {
				renderMemoryRow(sb, m)
			}
			rendered++
		}
		sb.WriteString("\n")
	}
}

func renderFullMemory(sb *strings.Builder, m store.Memory) {
	stale := ""
	if m.Status == store.StatusStale {
		stale = " (stale)"
	}
	fmt.Fprintf(sb, "### [%s] %s%s\n\n%s\n\n", m.Kind, m.Title, stale, m.Narrative)
}

func renderMemoryRow(sb *strings.Builder, m store.Memory) {
	stale := ""
	if m.Status == store.StatusStale {
		stale = " (stale)"
	}
	fmt.Fprintf(sb, "- **[%s] %s%s** — %s\n", m.Kind, m.Title, stale, m.Subtitle)
}

// renderTokenEconomics compares the bytes of the rendered document so
// far (the "read" cost a future session pays to ingest this context)
// against the cumulative LM cost already spent producing the memories
// it contains (the "work"/discovery cost).
func renderTokenEconomics(sb *strings.Builder, renderedBytes int, memories []store.Memory, opts config.RenderOptions) {
	if !opts.ShowReadTokens && !opts.ShowWorkTokens {
		return
	}
	sb.WriteString("## Token economics\n\n")
	if opts.ShowReadTokens {
		fmt.Fprintf(sb, "- Rendered context: %d bytes (~%d tokens to read)\n", renderedBytes, renderedBytes/4)
	}
	if opts.ShowWorkTokens {
		var totalTokens int64
		for _, m := range memories {
			totalTokens += m.DiscoveryTokens
		}
		fmt.Fprintf(sb, "- Cumulative discovery cost: %d tokens across %d memories\n", totalTokens, len(memories))
	}
}

func kindsFromStrings(kinds []string) []store.Kind {
	if len(kinds) == 0 {
		return nil
	}
	out := make([]store.Kind, len(kinds))
	for i, k := range kinds {
		out[i] = store.Kind(k)
	}
	return out
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

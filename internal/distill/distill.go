// Package distill turns a batch of pending tool-use events into
// structured memories via one LM completion call.
package distill

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/basket/remem/internal/llm"
	"github.com/basket/remem/internal/store"
)

const (
	batchLimit    = 15
	deltaContextN = 10
	callTimeout   = 90 * time.Second
	compactKeep   = 50
	compactCount  = 30
)

// memorySchema constrains the LM's batch-distill response to an array
// of memory records typed with one of the enumerated kinds.
var memorySchema = json.RawMessage(`{
	"type": "array",
	"items": {
		"type": "object",
		"required": ["kind", "title", "narrative"],
		"properties": {
			"kind": {"type": "string", "enum": ["bugfix", "feature", "refactor", "discovery", "decision", "change", "other"]},
			"title": {"type": "string"},
			"subtitle": {"type": "string"},
			"narrative": {"type": "string"},
			"facts": {"type": "array", "items": {"type": "string"}},
			"concepts": {"type": "array", "items": {"type": "string"}},
			"files_read": {"type": "array", "items": {"type": "string"}},
			"files_modified": {"type": "array", "items": {"type": "string"}}
		}
	}
}`)

// memoryRecord mirrors one item of the LM's distill response, decoded
// before being turned into a store.Memory.
type memoryRecord struct {
	Kind          string   `json:"kind"`
	Title         string   `json:"title"`
	Subtitle      string   `json:"subtitle"`
	Narrative     string   `json:"narrative"`
	Facts         []string `json:"facts"`
	Concepts      []string `json:"concepts"`
	FilesRead     []string `json:"files_read"`
	FilesModified []string `json:"files_modified"`
}

// Distiller batches a session's pending events, calls the LM once, and
// records the resulting memories.
type Distiller struct {
	Store     *store.Store
	Executor  llm.Executor
	Validator *llm.Validator
	Model     string
}

// New builds a Distiller, compiling the memory-array response schema
// once for repeated use.
func New(s *store.Store, executor llm.Executor, model string) (*Distiller, error) {
	v, err := llm.NewValidator(memorySchema)
	if err != nil {
		return nil, fmt.Errorf("compile memory schema: %w", err)
	}
	return &Distiller{Store: s, Executor: executor, Validator: v, Model: model}, nil
}

// Result reports what a Distill call produced, for the Summarizer to
// feed into its own prompt and for the CLI to log.
type Result struct {
	MemoryIDs       []int64
	DiscoveryTokens int64
	EventsClaimed   int
}

// Distill claims up to 15 pending events for sessionID, asks the LM to
// turn them into structured memories, inserts the result, marks
// superseded memories stale, deletes the claimed events, and triggers
// compaction if the project has crossed the active-memory threshold.
//
// On an LM timeout or malformed response the claimed pending rows are
// left in place (ClaimPending does not delete), so the batch retries
// on the next distill call.
func (d *Distiller) Distill(ctx context.Context, sessionID, project string) (*Result, error) {
	events, err := d.Store.ClaimPending(ctx, sessionID, batchLimit)
	if err != nil {
		return nil, fmt.Errorf("claim pending: %w", err)
	}
	if len(events) == 0 {
		return &Result{}, nil
	}

	recent, err := d.recentActiveMemories(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("load delta context: %w", err)
	}

	prompt := buildDistillPrompt(recent, events)

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	text, usage, err := d.Executor.Complete(callCtx, d.Model, prompt)
	if err != nil {
		return nil, fmt.Errorf("distill completion: %w", err)
	}

	jsonText, err := d.Validator.Validate(text)
	if err != nil {
		return nil, fmt.Errorf("distill response validation: %w", err)
	}

	var records []memoryRecord
	if err := json.Unmarshal([]byte(jsonText), &records); err != nil {
		return nil, fmt.Errorf("decode distill response: %w", err)
	}

	discoveryTokens := usage.InputTokens + usage.OutputTokens
	now := time.Now().Unix()
	memories := make([]store.Memory, 0, len(records))
	var allFilesModified []string
	for _, r := range records {
		m := store.Memory{
			SessionID:       sessionID,
			Project:         project,
			Kind:            store.Kind(r.Kind),
			Title:           r.Title,
			Subtitle:        r.Subtitle,
			Narrative:       r.Narrative,
			Facts:           r.Facts,
			Concepts:        r.Concepts,
			FilesRead:       r.FilesRead,
			FilesModified:   r.FilesModified,
			Status:          store.StatusActive,
			DiscoveryTokens: discoveryTokens,
			CreatedAtUnix:   now,
		}
		memories = append(memories, m)
		allFilesModified = append(allFilesModified, r.FilesModified...)
	}

	ids, err := d.Store.InsertMemories(ctx, memories)
	if err != nil {
		return nil, fmt.Errorf("insert memories: %w", err)
	}

	if err := d.Store.MarkStaleByFileOverlap(ctx, project, allFilesModified, ids); err != nil {
		return nil, fmt.Errorf("mark stale: %w", err)
	}

	ids64 := make([]int64, len(events))
	for i, ev := range events {
		ids64[i] = ev.ID
	}
	if err := d.Store.DeletePending(ctx, ids64); err != nil {
		return nil, fmt.Errorf("delete pending: %w", err)
	}

	if _, err := d.Store.CompactOldest(ctx, project, compactKeep, compactCount, d.compact); err != nil {
		return nil, fmt.Errorf("compact oldest: %w", err)
	}

	return &Result{MemoryIDs: ids, DiscoveryTokens: discoveryTokens, EventsClaimed: len(events)}, nil
}

// recentActiveMemories loads the 10 most-recent active memories for
// project as the "delta context" so the LM can avoid re-describing
// already-known facts.
func (d *Distiller) recentActiveMemories(ctx context.Context, project string) ([]store.Memory, error) {
	opts := store.ContextOptions{TotalMemories: math.MaxInt32}
	result, err := d.Store.ListContext(ctx, project, opts)
	if err != nil {
		return nil, err
	}
	var active []store.Memory
	for _, m := range result.Memories {
		if m.Status == store.StatusActive {
			active = append(active, m)
		}
	}
	sort.SliceStable(active, func(i, j int) bool { return active[i].CreatedAtUnix > active[j].CreatedAtUnix })
	if len(active) > deltaContextN {
		return active[:deltaContextN], nil
	}
	return active, nil
}

// compact asks the LM to collapse oldest into 1-2 merged memories;
// supplied to store.CompactOldest as the caller-provided compactor
// since the Store performs no LM calls itself.
func (d *Distiller) compact(ctx context.Context, project string, oldest []store.Memory) ([]store.Memory, error) {
	prompt := buildCompactionPrompt(project, oldest)

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	text, usage, err := d.Executor.Complete(callCtx, d.Model, prompt)
	if err != nil {
		return nil, fmt.Errorf("compaction completion: %w", err)
	}

	jsonText, err := d.Validator.Validate(text)
	if err != nil {
		return nil, fmt.Errorf("compaction response validation: %w", err)
	}

	var records []memoryRecord
	if err := json.Unmarshal([]byte(jsonText), &records); err != nil {
		return nil, fmt.Errorf("decode compaction response: %w", err)
	}

	now := time.Now().Unix()
	merged := make([]store.Memory, 0, len(records))
	for _, r := range records {
		merged = append(merged, store.Memory{
			Project:         project,
			Kind:            store.Kind(r.Kind),
			Title:           r.Title,
			Subtitle:        r.Subtitle,
			Narrative:       r.Narrative,
			Facts:           r.Facts,
			Concepts:        r.Concepts,
			FilesRead:       r.FilesRead,
			FilesModified:   r.FilesModified,
			DiscoveryTokens: usage.InputTokens + usage.OutputTokens,
			CreatedAtUnix:   now,
		})
	}
	return merged, nil
}

func buildDistillPrompt(delta []store.Memory, events []store.Event) string {
	var sb strings.Builder
	sb.WriteString("You distill raw coding-tool events into structured long-term memories.\n")
	sb.WriteString("Respond with a JSON array only, matching the given schema.\n\n")
	if len(delta) > 0 {
		sb.WriteString("Known memories for this project (avoid duplicating these facts):\n")
		for _, m := range delta {
			fmt.Fprintf(&sb, "- [%s] %s: %s\n", m.Kind, m.Title, m.Subtitle)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("New events to distill, in order:\n")
	for _, ev := range events {
		fmt.Fprintf(&sb, "- tool=%s input=%s response=%s\n", ev.ToolName, ev.ToolInput, ev.ToolResponse)
	}
	return sb.String()
}

func buildCompactionPrompt(project string, oldest []store.Memory) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Collapse the following %d memories for project %q into 1-2 concise merged memories.\n", len(oldest), project)
	sb.WriteString("Respond with a JSON array only, matching the given schema.\n\n")
	for _, m := range oldest {
		fmt.Fprintf(&sb, "- [%s] %s: %s\n%s\n", m.Kind, m.Title, m.Subtitle, m.Narrative)
	}
	return sb.String()
}

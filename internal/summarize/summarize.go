// Package summarize owns the three-layer rate-limit gate that decides
// whether a session-end deserves a summary, and the detached worker
// that runs the Distiller and produces one when it does.
package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/basket/remem/internal/distill"
	"github.com/basket/remem/internal/llm"
	"github.com/basket/remem/internal/shared"
	"github.com/basket/remem/internal/store"
)

const (
	minActivityThreshold = 3
	cooldownSeconds      = 300
	workerTimeout        = 180 * time.Second
	stalePendingAge      = 10 * time.Minute
)

// GateOutcome reports which gate (if any) skipped the session-stop.
type GateOutcome string

const (
	GateSkippedActivity GateOutcome = "skipped_low_activity"
	GateSkippedCooldown GateOutcome = "skipped_cooldown"
	GatePassed          GateOutcome = "passed"
)

// Dispatcher evaluates the two gates at session-stop time and, if
// both pass, detaches a worker process and returns immediately — it
// never itself runs the Distiller or calls the LM, so the hook process
// that owns it exits in well under the host's wait budget.
type Dispatcher struct {
	Store        *store.Store
	WorkerBinary string // path to the CLI re-invoked as __worker-summarize
}

// Evaluate runs Gate 1 (minimum activity) and a non-mutating peek at
// Gate 2 (project cooldown) and, if both look likely to pass, spawns a
// detached worker. The dispatcher deliberately does NOT perform the
// atomic cooldown acquire itself — that mutation belongs to the worker
// (see Worker.Run), so that two session-stop hooks racing on the same
// project each spawn a worker, but only one worker's CooldownTryAcquire
// actually succeeds. Returns which gate outcome applied so the caller
// can audit-log it.
func (d *Dispatcher) Evaluate(ctx context.Context, contentSessionID, project, finalMessage string) (GateOutcome, error) {
	memorySessionID, _, err := d.Store.GetOrCreateSession(ctx, contentSessionID, project)
	if err != nil {
		return "", fmt.Errorf("get or create session: %w", err)
	}

	pendingCount, err := d.Store.CountPending(ctx, memorySessionID)
	if err != nil {
		return "", fmt.Errorf("count pending: %w", err)
	}
	if pendingCount < minActivityThreshold {
		return GateSkippedActivity, nil
	}

	hash := shared.MessageHash(finalMessage)
	cooldown, err := d.Store.GetCooldown(ctx, project)
	if err != nil {
		return "", fmt.Errorf("get cooldown: %w", err)
	}
	now := time.Now().Unix()
	eligible := cooldown.LastSummarizeUnix == 0 ||
		(cooldown.LastSummarizeUnix+cooldownSeconds < now && cooldown.LastMessageHash != hash)
	if !eligible {
		return GateSkippedCooldown, nil
	}

	if err := d.spawnWorker(memorySessionID, project, hash); err != nil {
		return "", fmt.Errorf("spawn worker: %w", err)
	}
	return GatePassed, nil
}

// spawnWorker launches the hidden worker subcommand as a fully
// detached process: new session (Setsid) so it outlives the hook
// process, no inherited stdio.
func (d *Dispatcher) spawnWorker(memorySessionID, project, messageHash string) error {
	binary := d.WorkerBinary
	if binary == "" {
		binary = os.Args[0]
	}
	cmd := exec.Command(binary, "__worker-summarize", "--session", memorySessionID, "--project", project, "--hash", messageHash)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return err
	}
	// Detach fully: do not wait, let init/the process group reap it.
	go func() { _ = cmd.Process.Release() }()
	return nil
}

// RecoverStalePending distills any session in project whose pending
// rows are older than 10 minutes, so a low-activity session that never
// triggers enough events for its own distill batch doesn't leak
// pending rows indefinitely. Called from the session-init hook path,
// synchronously — unlike the session-stop worker, this runs inline
// since it is expected to be rare and cheap (usually zero sessions).
func RecoverStalePending(ctx context.Context, d *distill.Distiller, project string) error {
	sessions, err := d.Store.ListStalePendingSessions(ctx, project, time.Now().Add(-stalePendingAge).Unix())
	if err != nil {
		return fmt.Errorf("list stale pending sessions: %w", err)
	}
	for _, sessionID := range sessions {
		if _, err := d.Distill(ctx, sessionID, project); err != nil {
			return fmt.Errorf("recover stale pending for session %s: %w", sessionID, err)
		}
	}
	return nil
}

// Worker runs inside the detached process spawned by Dispatcher: it
// re-checks the gates (another worker may have already acquired the
// cooldown between spawn and now), runs the Distiller, merges with any
// prior session summary, and upserts the result. A hard wall-clock
// ceiling covers both steps; on timeout the process is killed by its
// caller (cmd/remem's __worker-summarize entry point wraps this call
// in context.WithTimeout) and the cooldown placeholder already written
// by Run's CooldownTryAcquire stands — a failing project backs off
// automatically rather than retrying immediately.
type Worker struct {
	Store     *store.Store
	Distiller *distill.Distiller
	Executor  llm.Executor
	Model     string
	validator *llm.Validator
}

// NewWorker compiles the summary-response schema once for repeated use.
func NewWorker(s *store.Store, d *distill.Distiller, executor llm.Executor, model string) (*Worker, error) {
	v, err := llm.NewValidator(summarySchema)
	if err != nil {
		return nil, fmt.Errorf("compile summary schema: %w", err)
	}
	return &Worker{Store: s, Distiller: d, Executor: executor, Model: model, validator: v}, nil
}

// Run re-verifies the cooldown, distills, merges the session summary,
// and upserts it. Call within a context carrying the 180s deadline.
func (w *Worker) Run(ctx context.Context, memorySessionID, project, messageHash string) error {
	acquired, err := w.Store.CooldownTryAcquire(ctx, project, messageHash, cooldownSeconds, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("worker cooldown re-check: %w", err)
	}
	if !acquired {
		// A parallel worker already advanced the placeholder; this one
		// exits quietly rather than duplicating the summarize call.
		return nil
	}

	if _, err := w.Distiller.Distill(ctx, memorySessionID, project); err != nil {
		return fmt.Errorf("worker distill: %w", err)
	}

	return w.summarize(ctx, memorySessionID, project)
}

func (w *Worker) summarize(ctx context.Context, memorySessionID, project string) error {
	priorSummaries, err := w.Store.RecentSummaries(ctx, project, -1)
	if err != nil {
		return fmt.Errorf("load prior summary: %w", err)
	}
	var prior *store.SessionSummary
	for i := range priorSummaries {
		if priorSummaries[i].SessionID == memorySessionID {
			prior = &priorSummaries[i]
			break
		}
	}

	recent, err := w.Store.ListContext(ctx, project, store.ContextOptions{TotalMemories: 20})
	if err != nil {
		return fmt.Errorf("load recent memories: %w", err)
	}

	prompt := buildSummaryPrompt(prior, recent.Memories)

	callCtx, cancel := context.WithTimeout(ctx, workerTimeout)
	defer cancel()
	text, usage, err := w.Executor.Complete(callCtx, w.Model, prompt)
	if err != nil {
		return fmt.Errorf("summary completion: %w", err)
	}

	jsonText, err := w.validator.Validate(text)
	if err != nil {
		return fmt.Errorf("summary response validation: %w", err)
	}

	var record summaryRecord
	if err := json.Unmarshal([]byte(jsonText), &record); err != nil {
		return fmt.Errorf("decode summary response: %w", err)
	}

	_, _, err = w.Store.UpsertSummary(ctx, store.SessionSummary{
		SessionID:       memorySessionID,
		Project:         project,
		Request:         record.Request,
		Completed:       record.Completed,
		Decisions:       record.Decisions,
		Learned:         record.Learned,
		NextSteps:       record.NextSteps,
		Preferences:     record.Preferences,
		DiscoveryTokens: usage.InputTokens + usage.OutputTokens,
		UpdatedAtUnix:   time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("upsert summary: %w", err)
	}
	return nil
}

var summarySchema = json.RawMessage(`{
	"type": "object",
	"required": ["request", "completed"],
	"properties": {
		"request": {"type": "string"},
		"completed": {"type": "string"},
		"decisions": {"type": "string"},
		"learned": {"type": "string"},
		"next_steps": {"type": "string"},
		"preferences": {"type": "string"}
	}
}`)

type summaryRecord struct {
	Request     string `json:"request"`
	Completed   string `json:"completed"`
	Decisions   string `json:"decisions"`
	Learned     string `json:"learned"`
	NextSteps   string `json:"next_steps"`
	Preferences string `json:"preferences"`
}

func buildSummaryPrompt(prior *store.SessionSummary, memories []store.Memory) string {
	var sb strings.Builder
	sb.WriteString("Merge the prior session summary with new memories into one updated summary.\n")
	sb.WriteString("Respond with a JSON object only, matching the given schema.\n\n")
	if prior != nil {
		fmt.Fprintf(&sb, "Prior summary:\nrequest: %s\ncompleted: %s\ndecisions: %s\nlearned: %s\nnext_steps: %s\npreferences: %s\n\n",
			prior.Request, prior.Completed, prior.Decisions, prior.Learned, prior.NextSteps, prior.Preferences)
	}
	sb.WriteString("New memories from this session:\n")
	for _, m := range memories {
		fmt.Fprintf(&sb, "- [%s] %s: %s\n", m.Kind, m.Title, m.Narrative)
	}
	return sb.String()
}

// Package audit writes an append-only JSONL trail of the events its
// callers record (session-stop gate decisions and summarize-worker
// outcomes), independent of the structured slog output. Grounded on the teacher's
// internal/audit package: a single mutex-guarded file sink plus atomic
// counters for cheap aggregate stats.
package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/basket/remem/internal/shared"
)

type entry struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Project   string `json:"project,omitempty"`
	Outcome   string `json:"outcome"`
	Reason    string `json:"reason,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

var (
	mu         sync.Mutex
	file       *os.File
	gateSkips  atomic.Int64
	lmFailures atomic.Int64
)

// Init opens (creating if needed) the audit log under homeDir/logs/remem-audit.jsonl.
// Safe to call more than once; subsequent calls are no-ops.
func Init(homeDir string) error {
	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		return nil
	}
	logDir := filepath.Join(homeDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(logDir, "remem-audit.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	file = f
	return nil
}

// Close releases the underlying file handle.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if file == nil {
		return nil
	}
	err := file.Close()
	file = nil
	return err
}

// GateSkipCount returns the number of session-stop invocations skipped by
// a gate since process start.
func GateSkipCount() int64 { return gateSkips.Load() }

// LMFailureCount returns the number of failed LM completion calls since
// process start.
func LMFailureCount() int64 { return lmFailures.Load() }

// Record appends one audit entry. outcome is typically "ok", "skipped", or
// "failed"; reason and detail are free text and are redacted before
// persistence.
func Record(event, project, outcome, reason, detail string) {
	switch {
	case outcome == "skipped":
		gateSkips.Add(1)
	case event == "lm_call" && outcome == "failed":
		lmFailures.Add(1)
	}

	reason = shared.Redact(reason)
	detail = shared.Redact(detail)

	mu.Lock()
	defer mu.Unlock()
	if file == nil {
		return
	}
	ev := entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Event:     event,
		Project:   project,
		Outcome:   outcome,
		Reason:    reason,
		Detail:    detail,
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_, _ = file.Write(append(b, '\n'))
}

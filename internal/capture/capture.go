// Package capture turns one host tool-use record into a pending event
// row, or discards it. This is the only component on the hot path of
// every tool call the host makes, so it does no LM calls and at most
// one database insert.
package capture

import (
	"context"
	"strings"
	"time"

	"github.com/basket/remem/internal/shared"
	"github.com/basket/remem/internal/store"
)

// maxResponseBytes caps the stored tool response; bigger ones are
// truncated, not rejected, since a truncated Edit/Write response still
// carries the file path the Distiller needs.
const maxResponseBytes = 4096

// writeTools is the allow-list: everything else is read-only and
// ignored. A package var, not a switch, so it stays the single place
// this contract lives, matching the teacher's policy-table style of
// declaring decision data apart from control flow.
var writeTools = map[string]bool{
	"Write":        true,
	"Edit":         true,
	"NotebookEdit": true,
	"Bash":         true,
}

// readOnlyBashPrefixes lists Bash commands known to never mutate
// project state. Extensible: add a prefix here to silence a new
// read-only or install-only command without touching capture logic.
var readOnlyBashPrefixes = []string{
	"git status",
	"git log",
	"git diff",
	"ls",
	"cat",
	"npm install",
	"cargo build",
	"pwd",
	"echo",
	"which",
	"go build",
	"go vet",
	"go test",
}

// Record is one tool-use event as reported by the host, before any
// filtering decision has been made.
type Record struct {
	SessionID    string
	WorkingDir   string
	ToolName     string
	ToolInput    string
	ToolResponse string
}

// Capture filters rec and, if it survives, enqueues it as a pending
// row. A false return means the event was filtered, not an error; err
// is only non-nil on a genuine storage failure, and the caller is
// still expected to exit 0 (spec: errors log and never block the
// host).
func Capture(ctx context.Context, s *store.Store, rec Record) (bool, error) {
	if !writeTools[rec.ToolName] {
		return false, nil
	}
	if rec.ToolName == "Bash" && isReadOnlyBash(rec.ToolInput) {
		return false, nil
	}

	response := rec.ToolResponse
	if len(response) > maxResponseBytes {
		response = response[:maxResponseBytes]
	}

	ev := store.Event{
		SessionID:     rec.SessionID,
		Project:       shared.ProjectFromDir(rec.WorkingDir),
		ToolName:      rec.ToolName,
		ToolInput:     rec.ToolInput,
		ToolResponse:  response,
		CreatedAtUnix: time.Now().Unix(),
	}
	if err := s.EnqueueEvent(ctx, ev); err != nil {
		return false, err
	}
	return true, nil
}

// isReadOnlyBash reports whether command is one of the known
// read-only or install-only shells that should never trigger a
// memory distillation.
func isReadOnlyBash(command string) bool {
	trimmed := strings.TrimSpace(command)
	for _, prefix := range readOnlyBashPrefixes {
		if trimmed == prefix || strings.HasPrefix(trimmed, prefix+" ") {
			return true
		}
	}
	return false
}

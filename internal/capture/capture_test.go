package capture_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/basket/remem/internal/capture"
	"github.com/basket/remem/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "remem.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCaptureAcceptsWriteTools(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, tool := range []string{"Write", "Edit", "NotebookEdit"} {
		ok, err := capture.Capture(ctx, s, capture.Record{
			SessionID:    "sess-1",
			WorkingDir:   "/home/user/work/myrepo",
			ToolName:     tool,
			ToolInput:    `{"file_path":"main.go"}`,
			ToolResponse: "wrote file",
		})
		if err != nil {
			t.Fatalf("capture %s: %v", tool, err)
		}
		if !ok {
			t.Fatalf("expected %s to be captured", tool)
		}
	}

	n, err := s.CountPending(ctx, "sess-1")
	if err != nil {
		t.Fatalf("count pending: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 pending rows, got %d", n)
	}
}

func TestCaptureRejectsReadOnlyTools(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, tool := range []string{"Read", "Glob", "Grep", "WebFetch"} {
		ok, err := capture.Capture(ctx, s, capture.Record{
			SessionID:  "sess-1",
			WorkingDir: "/home/user/work/myrepo",
			ToolName:   tool,
			ToolInput:  "{}",
		})
		if err != nil {
			t.Fatalf("capture %s: %v", tool, err)
		}
		if ok {
			t.Fatalf("expected %s to be rejected", tool)
		}
	}
}

func TestCaptureRejectsReadOnlyBashCommands(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	readOnly := []string{
		"git status",
		"git log --oneline",
		"git diff HEAD~1",
		"ls -la",
		"cat README.md",
		"npm install",
		"cargo build --release",
	}
	for _, cmd := range readOnly {
		ok, err := capture.Capture(ctx, s, capture.Record{
			SessionID:  "sess-1",
			WorkingDir: "/home/user/work/myrepo",
			ToolName:   "Bash",
			ToolInput:  cmd,
		})
		if err != nil {
			t.Fatalf("capture %q: %v", cmd, err)
		}
		if ok {
			t.Fatalf("expected %q to be rejected as read-only", cmd)
		}
	}
}

func TestCaptureAcceptsMutatingBashCommands(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ok, err := capture.Capture(ctx, s, capture.Record{
		SessionID:  "sess-1",
		WorkingDir: "/home/user/work/myrepo",
		ToolName:   "Bash",
		ToolInput:  "rm -rf build/",
	})
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if !ok {
		t.Fatal("expected mutating bash command to be captured")
	}
}

func TestCaptureTruncatesLargeResponses(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	big := strings.Repeat("x", 10_000)
	ok, err := capture.Capture(ctx, s, capture.Record{
		SessionID:    "sess-1",
		WorkingDir:   "/home/user/work/myrepo",
		ToolName:     "Write",
		ToolInput:    `{"file_path":"big.txt"}`,
		ToolResponse: big,
	})
	if err != nil || !ok {
		t.Fatalf("capture: ok=%v err=%v", ok, err)
	}

	events, err := s.ClaimPending(ctx, "sess-1", 1)
	if err != nil {
		t.Fatalf("claim pending: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 claimed event, got %d", len(events))
	}
	if len(events[0].ToolResponse) > 4096 {
		t.Fatalf("expected response truncated to 4096 bytes, got %d", len(events[0].ToolResponse))
	}
}

func TestCaptureDerivesProjectFromLastTwoPathSegments(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ok, err := capture.Capture(ctx, s, capture.Record{
		SessionID:  "sess-1",
		WorkingDir: "/home/user/work/myrepo",
		ToolName:   "Edit",
		ToolInput:  "{}",
	})
	if err != nil || !ok {
		t.Fatalf("capture: ok=%v err=%v", ok, err)
	}

	events, err := s.ClaimPending(ctx, "sess-1", 10)
	if err != nil {
		t.Fatalf("claim pending: %v", err)
	}
	if len(events) != 1 || events[0].Project != "work/myrepo" {
		t.Fatalf("expected one event with project work/myrepo, got %+v", events)
	}
}

func BenchmarkCapture(b *testing.B) {
	dir := b.TempDir()
	s, err := store.Open(filepath.Join(dir, "remem.db"))
	if err != nil {
		b.Fatalf("open store: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := capture.Capture(ctx, s, capture.Record{
			SessionID:    "bench-session",
			WorkingDir:   "/home/user/work/myrepo",
			ToolName:     "Edit",
			ToolInput:    `{"file_path":"f.go"}`,
			ToolResponse: "ok",
		})
		if err != nil {
			b.Fatalf("capture: %v", err)
		}
	}
}

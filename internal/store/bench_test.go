package store_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/basket/remem/internal/store"
)

// BenchmarkOpen measures cold-start time: Open + schema migration.
func BenchmarkOpen(b *testing.B) {
	for i := 0; i < b.N; i++ {
		dir := b.TempDir()
		s, err := store.Open(filepath.Join(dir, "remem.db"))
		if err != nil {
			b.Fatalf("open: %v", err)
		}
		_ = s.Close()
	}
}

// BenchmarkEnqueueEvent measures the hot path Event Capture runs on
// every tool-use invocation; it needs to stay well under a millisecond.
func BenchmarkEnqueueEvent(b *testing.B) {
	dir := b.TempDir()
	s, err := store.Open(filepath.Join(dir, "remem.db"))
	if err != nil {
		b.Fatalf("open: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ev := store.Event{
			SessionID:     "bench-session",
			Project:       "bench/project",
			ToolName:      "Edit",
			ToolInput:     fmt.Sprintf(`{"file":"f%d.go"}`, i),
			ToolResponse:  "ok",
			CreatedAtUnix: int64(i),
		}
		if err := s.EnqueueEvent(ctx, ev); err != nil {
			b.Fatalf("enqueue: %v", err)
		}
	}
}

package store_test

import (
	"context"
	"testing"

	"github.com/basket/remem/internal/store"
)

func TestCleanupDeletesOrphanSummaries(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, _, err := s.UpsertSummary(ctx, store.SessionSummary{SessionID: "ghost", Project: "p", UpdatedAtUnix: 1}); err != nil {
		t.Fatalf("upsert summary: %v", err)
	}

	result, err := s.Cleanup(ctx, 10)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if result.OrphanSummariesDeleted != 1 {
		t.Fatalf("expected 1 orphan summary deleted, got %d", result.OrphanSummariesDeleted)
	}

	recent, err := s.RecentSummaries(ctx, "p", 10)
	if err != nil {
		t.Fatalf("recent summaries: %v", err)
	}
	if len(recent) != 0 {
		t.Fatalf("expected orphan summary gone, got %+v", recent)
	}
}

func TestCleanupDeletesStalePending(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.EnqueueEvent(ctx, store.Event{SessionID: "s1", Project: "p", ToolName: "Edit", CreatedAtUnix: 1}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	now := int64(1 + 3600 + 1)
	result, err := s.Cleanup(ctx, now)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if result.StalePendingDeleted != 1 {
		t.Fatalf("expected 1 stale pending row deleted, got %d", result.StalePendingDeleted)
	}
}

func TestCleanupDeletesOldCompressedMemories(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ids, err := s.InsertMemories(ctx, []store.Memory{
		{SessionID: "s1", Project: "p", Kind: store.KindChange, Title: "old", Status: store.StatusCompressed, CreatedAtUnix: 1},
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	now := int64(1 + 90*24*3600 + 1)
	result, err := s.Cleanup(ctx, now)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if result.CompressedDeleted != 1 {
		t.Fatalf("expected 1 compressed memory deleted, got %d", result.CompressedDeleted)
	}

	got, err := s.GetMemories(ctx, ids)
	if err != nil {
		t.Fatalf("get memories: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected compressed memory to be gone, got %+v", got)
	}
}

func TestCleanupLeavesFreshStateUntouched(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.EnqueueEvent(ctx, store.Event{SessionID: "s1", Project: "p", ToolName: "Edit", CreatedAtUnix: 100}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	result, err := s.Cleanup(ctx, 101)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if result.StalePendingDeleted != 0 {
		t.Fatalf("expected fresh pending row to survive cleanup, got %d deleted", result.StalePendingDeleted)
	}
}

func TestListProjects(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if _, err := s.InsertMemories(ctx, []store.Memory{
		{SessionID: "s1", Project: "work/api", Kind: store.KindChange, Title: "m", CreatedAtUnix: 1},
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	projects, err := s.ListProjects(ctx)
	if err != nil {
		t.Fatalf("list projects: %v", err)
	}
	found := false
	for _, p := range projects {
		if p == "work/api" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected work/api among known projects, got %v", projects)
	}
}

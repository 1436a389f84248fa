package store_test

import (
	"context"
	"testing"

	"github.com/basket/remem/internal/store"
)

func TestUpsertSummaryCreatesWithNoPrior(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, hadPrior, err := s.UpsertSummary(ctx, store.SessionSummary{
		SessionID: "sess-1", Project: "p", Request: "fix bug", UpdatedAtUnix: 1,
	})
	if err != nil {
		t.Fatalf("upsert summary: %v", err)
	}
	if hadPrior {
		t.Fatal("expected no prior summary on first upsert")
	}
}

func TestUpsertSummaryReplacesAndReturnsPrior(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, _, err := s.UpsertSummary(ctx, store.SessionSummary{
		SessionID: "sess-1", Project: "p", Request: "fix bug", Completed: "fixed", UpdatedAtUnix: 1,
	}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	prior, hadPrior, err := s.UpsertSummary(ctx, store.SessionSummary{
		SessionID: "sess-1", Project: "p", Request: "fix bug and add tests", Completed: "fixed, tested", UpdatedAtUnix: 2,
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if !hadPrior {
		t.Fatal("expected prior summary on second upsert")
	}
	if prior.Completed != "fixed" {
		t.Fatalf("expected prior content for merge context, got %q", prior.Completed)
	}

	recent, err := s.RecentSummaries(ctx, "p", 10)
	if err != nil {
		t.Fatalf("recent summaries: %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("expected at most one summary per (session,project), got %d", len(recent))
	}
	if recent[0].Completed != "fixed, tested" {
		t.Fatalf("expected latest content, got %q", recent[0].Completed)
	}
}

func TestRecentSummariesOrderedNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i, sess := range []string{"s1", "s2", "s3"} {
		if _, _, err := s.UpsertSummary(ctx, store.SessionSummary{
			SessionID: sess, Project: "p", UpdatedAtUnix: int64(i),
		}); err != nil {
			t.Fatalf("upsert %s: %v", sess, err)
		}
	}

	recent, err := s.RecentSummaries(ctx, "p", 10)
	if err != nil {
		t.Fatalf("recent summaries: %v", err)
	}
	if len(recent) != 3 || recent[0].SessionID != "s3" {
		t.Fatalf("expected newest-first ordering, got %+v", recent)
	}
}

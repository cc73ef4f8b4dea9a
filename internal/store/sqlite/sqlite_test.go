package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/huddlechat/huddle-server/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := New(filepath.Join(t.TempDir(), "calls.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordAndRecentCalls(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	recs := []store.CallRecord{
		{Identity: "alice", Peer: "Bob", Direction: store.CallDirectionOutgoing, Outcome: store.CallOutcomeMissed},
		{Identity: "bob", Peer: "Alice", Direction: store.CallDirectionIncoming, Outcome: store.CallOutcomeMissed},
		{Identity: "alice", Peer: "Bob", Direction: store.CallDirectionOutgoing, Outcome: store.CallOutcomeEnded, DurationSeconds: 73},
	}
	for _, rec := range recs {
		if err := s.RecordCall(ctx, rec); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	got, err := s.RecentCalls(ctx, "alice", 0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records for alice, got %d", len(got))
	}
	// Newest first.
	if got[0].Outcome != store.CallOutcomeEnded || got[0].DurationSeconds != 73 {
		t.Fatalf("unexpected newest record: %+v", got[0])
	}
	if got[1].Outcome != store.CallOutcomeMissed {
		t.Fatalf("unexpected oldest record: %+v", got[1])
	}
	if got[0].CreatedAt.IsZero() {
		t.Fatalf("created_at not populated")
	}

	got, err = s.RecentCalls(ctx, "nobody", 0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no records, got %v", got)
	}
}

func TestRecentCallsLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		rec := store.CallRecord{
			Identity:  "alice",
			Peer:      "Bob",
			Direction: store.CallDirectionOutgoing,
			Outcome:   store.CallOutcomeEnded,
		}
		if err := s.RecordCall(ctx, rec); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	got, err := s.RecentCalls(ctx, "alice", 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
}

package app

import (
	"context"
	"testing"
	"time"
)

func TestMemoryDedupWindow_CheckAndMark(t *testing.T) {
	now := criterionTestNow
	window := NewMemoryDedupWindow(time.Hour)
	window.nowFn = func() time.Time { return now }
	ctx := context.Background()

	seen, err := window.Check(ctx, 100)
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if seen {
		t.Fatal("expected an unmarked id to be unseen")
	}

	// Check alone must not record the id; a nacked delivery has to stay
	// eligible for redelivery.
	if seen, _ := window.Check(ctx, 100); seen {
		t.Fatal("expected repeated checks without a mark to stay unseen")
	}

	if err := window.Mark(ctx, 100); err != nil {
		t.Fatalf("Mark returned error: %v", err)
	}

	seen, err = window.Check(ctx, 100)
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if !seen {
		t.Fatal("expected a marked id to be seen within the window")
	}

	if seen, _ := window.Check(ctx, 101); seen {
		t.Fatal("expected a different id to be unseen")
	}
}

func TestMemoryDedupWindow_ExpiresAfterTTL(t *testing.T) {
	now := criterionTestNow
	window := NewMemoryDedupWindow(time.Hour)
	window.nowFn = func() time.Time { return now }
	ctx := context.Background()

	if err := window.Mark(ctx, 100); err != nil {
		t.Fatalf("Mark returned error: %v", err)
	}

	now = now.Add(2 * time.Hour)
	seen, err := window.Check(ctx, 100)
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if seen {
		t.Fatal("expected the id to be forgotten after the window lapsed")
	}
}

func TestNewMemoryDedupWindow_DefaultsNonPositiveTTL(t *testing.T) {
	window := NewMemoryDedupWindow(0)
	if window.ttl != time.Hour {
		t.Fatalf("expected default TTL of one hour, got %s", window.ttl)
	}
}

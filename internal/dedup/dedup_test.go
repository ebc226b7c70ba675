package dedup

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"cryptopost_bot/internal/model"
	"cryptopost_bot/internal/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestClaimIsExclusive(t *testing.T) {
	d := New(nil, time.Hour, discardLogger())

	if !d.Claim("msg-1", model.KindNews) {
		t.Fatal("first claim should succeed")
	}
	if d.Claim("msg-1", model.KindNews) {
		t.Error("second claim for same key should fail")
	}
	if !d.Claim("msg-2", model.KindNews) {
		t.Error("claim for different key should succeed")
	}
}

func TestConcurrentClaimExactlyOneWins(t *testing.T) {
	d := New(nil, time.Hour, discardLogger())

	const callers = 50
	var wg sync.WaitGroup
	wins := make(chan struct{}, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d.Claim("contested", model.KindNews) {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	got := 0
	for range wins {
		got++
	}
	if got != 1 {
		t.Errorf("want exactly 1 winning claim, got %d", got)
	}
}

func TestReleaseAllowsRetry(t *testing.T) {
	d := New(nil, time.Hour, discardLogger())

	if !d.Claim("msg-1", model.KindNews) {
		t.Fatal("claim failed")
	}
	d.Release("msg-1")
	if !d.Claim("msg-1", model.KindNews) {
		t.Error("claim after release should succeed")
	}
}

func TestReleaseKeepsPublishedKeys(t *testing.T) {
	ctx := context.Background()
	d := New(nil, time.Hour, discardLogger())

	if !d.Claim("msg-1", model.KindNews) {
		t.Fatal("claim failed")
	}
	if err := d.MarkPublished(ctx, "msg-1", model.KindNews); err != nil {
		t.Fatalf("mark published: %v", err)
	}
	d.Release("msg-1")
	if d.Claim("msg-1", model.KindNews) {
		t.Error("release must not unclaim a published key")
	}
}

func TestWarmFromStorage(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	first := New(store, 7*24*time.Hour, discardLogger())
	if !first.Claim("msg-1", model.KindNews) {
		t.Fatal("claim failed")
	}
	if err := first.MarkPublished(ctx, "msg-1", model.KindNews); err != nil {
		t.Fatalf("mark published: %v", err)
	}

	// Simulate restart with the same backing store.
	second := New(store, 7*24*time.Hour, discardLogger())
	if err := second.Warm(ctx); err != nil {
		t.Fatalf("warm: %v", err)
	}
	if second.Claim("msg-1", model.KindNews) {
		t.Error("key published by previous run should stay claimed after warm")
	}
	if !second.IsPublished("msg-1") {
		t.Error("warmed key should report published")
	}
}

func TestPruneEvictsOldEntries(t *testing.T) {
	ctx := context.Background()
	d := New(nil, time.Hour, discardLogger())

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	d.SetClock(func() time.Time { return now })

	if !d.Claim("old", model.KindNews) {
		t.Fatal("claim failed")
	}

	now = base.Add(2 * time.Hour)
	if !d.Claim("fresh", model.KindNews) {
		t.Fatal("claim failed")
	}

	d.Prune(ctx)

	if !d.Claim("old", model.KindNews) {
		t.Error("entry past retention should have been evicted")
	}
	if d.Claim("fresh", model.KindNews) {
		t.Error("entry within retention should survive prune")
	}
}

func TestContentKeyNormalizes(t *testing.T) {
	a := ContentKey("TON  pump\nincoming")
	b := ContentKey("ton pump incoming")
	if a != b {
		t.Errorf("normalized variants should share a key: %q vs %q", a, b)
	}
	if a == ContentKey("different text") {
		t.Error("different text should produce a different key")
	}
}

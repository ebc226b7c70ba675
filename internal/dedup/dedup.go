// Package dedup tracks which source messages, content hashes, and digest
// slots have already produced a publication.
package dedup

import (
	"context"
	"crypto/md5" //nolint:gosec // fingerprint only, not security
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"cryptopost_bot/internal/model"
	"cryptopost_bot/internal/storage"
)

type entry struct {
	kind      model.PublicationKind
	claimedAt time.Time
	published bool
}

// Deduplicator owns the claim table. Claim is a single compare-and-set
// under one mutex, so two concurrent callers with the same key cannot both
// win. The optional storage backend warms the table on restart and records
// published keys for the next run; it never participates in the claim path.
type Deduplicator struct {
	mu        sync.Mutex
	claims    map[string]entry
	retention time.Duration
	store     storage.Storage
	log       *slog.Logger
	now       func() time.Time
}

// New creates a Deduplicator. store may be nil (pure in-memory operation).
func New(store storage.Storage, retention time.Duration, log *slog.Logger) *Deduplicator {
	return &Deduplicator{
		claims:    make(map[string]entry),
		retention: retention,
		store:     store,
		log:       log,
		now:       time.Now,
	}
}

// SetClock overrides the time source for deterministic tests.
func (d *Deduplicator) SetClock(now func() time.Time) {
	d.now = now
}

// Warm preloads published keys from storage so a restart cannot repost
// items published by the previous run.
func (d *Deduplicator) Warm(ctx context.Context) error {
	if d.store == nil {
		return nil
	}
	recs, err := d.store.ListPublishedSince(ctx, d.now().Add(-d.retention))
	if err != nil {
		return fmt.Errorf("warm dedup table: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, rec := range recs {
		d.claims[rec.DedupKey] = entry{kind: rec.Kind, claimedAt: rec.PublishedAt, published: true}
	}
	d.log.Info("dedup table warmed", "keys", len(recs))
	return nil
}

// Claim atomically tests whether key is unclaimed and, if so, marks it
// claimed. Returns false when the key is already taken.
func (d *Deduplicator) Claim(key string, kind model.PublicationKind) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, taken := d.claims[key]; taken {
		return false
	}
	d.claims[key] = entry{kind: kind, claimedAt: d.now()}
	return true
}

// Release reverts an unpublished claim so a later cycle may retry the key.
// Published keys stay claimed.
func (d *Deduplicator) Release(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.claims[key]; ok && !e.published {
		delete(d.claims, key)
	}
}

// MarkPublished finalizes a claim and records it in storage. The in-memory
// mark happens even if persistence fails; the worst case of a failed write
// is a duplicate after restart, which the publish gate logs.
func (d *Deduplicator) MarkPublished(ctx context.Context, key string, kind model.PublicationKind) error {
	now := d.now()

	d.mu.Lock()
	d.claims[key] = entry{kind: kind, claimedAt: now, published: true}
	d.mu.Unlock()

	if d.store == nil {
		return nil
	}
	rec := model.PublicationRecord{
		Kind:        kind,
		DedupKey:    key,
		PublishedAt: now,
		Status:      model.StatusPublished,
	}
	if err := d.store.SavePublication(ctx, rec); err != nil {
		return fmt.Errorf("persist publication: %w", err)
	}
	return nil
}

// IsPublished reports whether key has already reached published state.
func (d *Deduplicator) IsPublished(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.claims[key]
	return ok && e.published
}

// Prune evicts entries older than the retention window from memory and
// storage. Called periodically by the scheduler to bound growth.
func (d *Deduplicator) Prune(ctx context.Context) {
	cutoff := d.now().Add(-d.retention)

	d.mu.Lock()
	evicted := 0
	for key, e := range d.claims {
		if e.claimedAt.Before(cutoff) {
			delete(d.claims, key)
			evicted++
		}
	}
	d.mu.Unlock()

	if d.store != nil {
		if n, err := d.store.PruneBefore(ctx, cutoff); err != nil {
			d.log.Error("prune stored publications", "error", err)
		} else if n > 0 {
			d.log.Debug("pruned stored publications", "count", n)
		}
	}
	if evicted > 0 {
		d.log.Debug("evicted dedup entries", "count", evicted)
	}
}

// Len reports the current claim table size, for /status.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.claims)
}

// ContentKey fingerprints post text so the same completion cannot be
// published twice even when it came from different source messages.
// Normalization collapses whitespace and case before hashing.
func ContentKey(text string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(text), " "))
	return fmt.Sprintf("post:%x", md5.Sum([]byte(normalized))) //nolint:gosec
}

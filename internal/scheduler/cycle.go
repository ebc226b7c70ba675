package scheduler

import (
	"context"
	"time"

	"cryptopost_bot/internal/dedup"
	"cryptopost_bot/internal/gate"
	"cryptopost_bot/internal/model"
)

// runNewsCheck pulls one batch and processes it item by item. The cursor
// advances only after the whole batch has been walked, so a crash or
// cancellation mid-batch re-delivers the tail on the next cycle.
func (s *Scheduler) runNewsCheck(ctx context.Context) {
	s.mu.Lock()
	since := s.state.LastNewsCheck
	s.mu.Unlock()

	pullCtx, cancel := context.WithTimeout(ctx, s.pullTimeout)
	items, err := s.source.Pull(pullCtx, since)
	cancel()
	if err != nil {
		items, err = s.retryPull(ctx, since, err)
		if err != nil {
			s.log.Error("news check abandoned", "error", err)
			s.mu.Lock()
			s.stats.cyclesFailed++
			s.mu.Unlock()
			return
		}
	}
	if len(items) == 0 {
		s.log.Debug("no new items", "since", since)
		return
	}

	var latest time.Time
	for _, item := range items {
		if ctx.Err() != nil {
			// Cursor stays put: unprocessed items come back next cycle.
			return
		}
		s.processItem(ctx, item)
		if item.SourceTimestamp.After(latest) {
			latest = item.SourceTimestamp
		}
	}

	s.mu.Lock()
	if latest.After(s.state.LastNewsCheck) {
		s.state.LastNewsCheck = latest
	}
	s.mu.Unlock()
}

func (s *Scheduler) retryPull(ctx context.Context, since time.Time, first error) ([]model.NewsItem, error) {
	err := first
	s.setState(StateBackoff)
	defer s.setState(StateCheckingNews)

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		s.log.Warn("source pull failed, backing off",
			"attempt", attempt, "delay", s.backoffDelay, "error", err)
		if !s.pause(ctx, s.backoffDelay) {
			return nil, err
		}
		pullCtx, cancel := context.WithTimeout(ctx, s.pullTimeout)
		items, retryErr := s.source.Pull(pullCtx, since)
		cancel()
		if retryErr == nil {
			return items, nil
		}
		err = retryErr
	}
	return nil, err
}

// processItem runs one item through the pipeline. Failures release the
// dedup claim and never block sibling items.
func (s *Scheduler) processItem(ctx context.Context, item model.NewsItem) {
	relevant, matched := s.filter.Match(item.RawText)
	if !relevant {
		return
	}
	item.MatchedKeywords = matched

	if !s.dedup.Claim(item.SourceID, model.KindNews) {
		s.log.Debug("duplicate item skipped", "source_id", item.SourceID)
		s.mu.Lock()
		s.stats.itemsSkipped++
		s.mu.Unlock()
		return
	}

	synthCtx, cancel := context.WithTimeout(ctx, s.llmTimeout)
	text, err := s.synth.NewsPost(synthCtx, item)
	cancel()
	if err != nil {
		s.dedup.Release(item.SourceID)
		s.log.Warn("synthesis failed", "source_id", item.SourceID, "error", err)
		return
	}

	// The model occasionally drifts off topic even with a relevant input;
	// such output is dropped rather than published.
	if s.recheck && !s.filter.IsRelevant(text) {
		s.dedup.Release(item.SourceID)
		s.log.Info("generated post rejected as off-topic", "source_id", item.SourceID)
		s.mu.Lock()
		s.stats.itemsSkipped++
		s.mu.Unlock()
		return
	}

	// Different source IDs can carry the same story; the content hash
	// catches those before they reach the channel.
	contentKey := dedup.ContentKey(text)
	if !s.dedup.Claim(contentKey, model.KindNews) {
		s.dedup.Release(item.SourceID)
		s.log.Debug("duplicate content skipped", "source_id", item.SourceID)
		s.mu.Lock()
		s.stats.itemsSkipped++
		s.mu.Unlock()
		return
	}

	if err := s.gate.Publish(ctx, gate.Content{Text: text}); err != nil {
		s.dedup.Release(contentKey)
		s.dedup.Release(item.SourceID)
		s.log.Error("publish failed", "source_id", item.SourceID, "error", err)
		return
	}

	if err := s.dedup.MarkPublished(ctx, item.SourceID, model.KindNews); err != nil {
		s.log.Warn("dedup persistence failed", "key", item.SourceID, "error", err)
	}
	if err := s.dedup.MarkPublished(ctx, contentKey, model.KindNews); err != nil {
		s.log.Warn("dedup persistence failed", "key", contentKey, "error", err)
	}
	s.mu.Lock()
	s.stats.newsPublished++
	s.mu.Unlock()
	s.log.Info("news post published",
		"source_id", item.SourceID, "keywords", matched)
}

// runDigest emits the digest for slot, at most once per calendar day.
func (s *Scheduler) runDigest(ctx context.Context, slot model.DigestSlot) {
	day := s.now().In(s.loc)
	dayStr := day.Format("2006-01-02")
	key := slot.DedupKey(day)

	s.mu.Lock()
	already := s.state.LastDigestEmitted[slot] == dayStr
	s.mu.Unlock()
	if already {
		return
	}
	if !s.dedup.Claim(key, slot.Kind()) {
		// Published earlier today, likely before a restart.
		s.mu.Lock()
		s.state.LastDigestEmitted[slot] = dayStr
		s.mu.Unlock()
		return
	}

	err := s.attemptDigest(ctx, slot)
	for attempt := 1; err != nil && !model.IsPermanent(err) && attempt <= s.maxRetries; attempt++ {
		s.setState(StateBackoff)
		s.log.Warn("digest attempt failed, backing off",
			"slot", slot, "attempt", attempt, "delay", s.backoffDelay, "error", err)
		if !s.pause(ctx, s.backoffDelay) {
			s.dedup.Release(key)
			return
		}
		s.setState(StateEmittingDigest)
		err = s.attemptDigest(ctx, slot)
	}
	if err != nil {
		s.dedup.Release(key)
		s.mu.Lock()
		s.stats.cyclesFailed++
		s.mu.Unlock()
		s.log.Error("digest abandoned for today", "slot", slot, "error", err)
		return
	}

	if err := s.dedup.MarkPublished(ctx, key, slot.Kind()); err != nil {
		s.log.Warn("dedup persistence failed", "key", key, "error", err)
	}
	s.mu.Lock()
	s.state.LastDigestEmitted[slot] = dayStr
	s.stats.digestsPublished++
	s.mu.Unlock()
	s.log.Info("digest published", "slot", slot, "day", dayStr)
}

func (s *Scheduler) attemptDigest(ctx context.Context, slot model.DigestSlot) error {
	buildCtx := ctx
	if s.priceTimeout > 0 {
		var cancel context.CancelFunc
		buildCtx, cancel = context.WithTimeout(ctx, s.priceTimeout)
		defer cancel()
	}
	d, err := s.digests.Build(buildCtx, slot)
	if err != nil {
		return err
	}

	synthCtx, cancel := context.WithTimeout(ctx, s.llmTimeout)
	text, err := s.synth.PricePost(synthCtx, d.Snapshot, slot)
	cancel()
	if err != nil {
		if !model.IsPermanent(err) {
			return err
		}
		// No language model available: the plain builder summary is
		// still a complete, correct digest.
		s.log.Warn("digest synthesis unavailable, using plain summary",
			"slot", slot, "error", err)
		text = d.Summary
	}

	return s.gate.Publish(ctx, gate.Content{Text: text})
}

// pause sleeps for d, returning false if ctx was cancelled first.
func (s *Scheduler) pause(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

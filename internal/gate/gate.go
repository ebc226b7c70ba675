// Package gate serializes all outbound publication attempts.
package gate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"cryptopost_bot/internal/model"
)

// Content is one outbound post: text plus optional media reference.
type Content struct {
	Text     string
	MediaURL string
}

// Sink delivers formatted content to the target channel.
type Sink interface {
	Send(ctx context.Context, channelID int64, content Content) error
}

// Gate owns the sole in-flight publish slot. At most one publish executes
// at a time regardless of caller count, so post order matches decision
// order and the sink's own rate limits are respected. Transient failures
// retry with exponential backoff up to maxRetries; permanent failures
// report immediately.
type Gate struct {
	mu        sync.Mutex
	sink      Sink
	channelID int64
	maxRetry  uint64
	baseDelay time.Duration
	timeout   time.Duration
	log       *slog.Logger
}

// New creates a Gate in front of sink.
func New(sink Sink, channelID int64, maxRetries int, baseDelay, timeout time.Duration, log *slog.Logger) *Gate {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Gate{
		sink:      sink,
		channelID: channelID,
		maxRetry:  uint64(maxRetries),
		baseDelay: baseDelay,
		timeout:   timeout,
		log:       log,
	}
}

// Publish delivers content through the serialized slot. A nil return means
// the sink accepted the post; any error means the post did not go out and
// the caller should release its dedup claim.
func (g *Gate) Publish(ctx context.Context, content Content) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	backoff := retry.WithMaxRetries(g.maxRetry, retry.NewExponential(g.baseDelay))

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++

		sendCtx := ctx
		if g.timeout > 0 {
			var cancel context.CancelFunc
			sendCtx, cancel = context.WithTimeout(ctx, g.timeout)
			defer cancel()
		}

		sendErr := g.sink.Send(sendCtx, g.channelID, content)
		if sendErr == nil {
			return nil
		}
		if model.IsPermanent(sendErr) {
			g.log.Warn("publish rejected", "attempt", attempt, "error", sendErr)
			return sendErr
		}
		g.log.Warn("publish attempt failed", "attempt", attempt, "error", sendErr)
		return retry.RetryableError(sendErr)
	})

	if err != nil {
		g.log.Error("publish failed", "attempts", attempt, "error", err)
		return err
	}
	g.log.Info("published", "attempts", attempt, "chars", len(content.Text))
	return nil
}

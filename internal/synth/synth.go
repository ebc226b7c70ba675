// Package synth converts news items and price snapshots into finished post
// text using the generation capability and a fixed persona contract.
package synth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"cryptopost_bot/internal/llm"
	"cryptopost_bot/internal/model"
)

// Synthesizer wraps a Generator with the channel persona. It owns prompt
// assembly and payload truncation; it never decides whether to publish.
type Synthesizer struct {
	gen        llm.Generator
	persona    string
	maxPayload int
	now        func() time.Time
}

// New creates a Synthesizer. maxPayload bounds the news excerpt length in
// runes before the generation call, to bound cost and latency.
func New(gen llm.Generator, persona string, maxPayload int) *Synthesizer {
	return &Synthesizer{
		gen:        gen,
		persona:    persona,
		maxPayload: maxPayload,
		now:        time.Now,
	}
}

// SetClock overrides the time source for deterministic tests.
func (s *Synthesizer) SetClock(now func() time.Time) {
	s.now = now
}

// NewsPost rewrites a source message into a channel post.
func (s *Synthesizer) NewsPost(ctx context.Context, item model.NewsItem) (string, error) {
	excerpt := truncateRunes(strings.TrimSpace(item.RawText), s.maxPayload)
	if excerpt == "" {
		return "", &model.SynthesisError{Kind: model.KindNews, Err: fmt.Errorf("empty payload for %s", item.SourceID)}
	}

	user := fmt.Sprintf(`Here is today's source material:

%s

Rewrite it as one post in your own voice. Keep every name, number and fact.
Add one short reaction of your own at the end. Output only the post text.`, excerpt)

	text, err := s.generate(ctx, user)
	if err != nil {
		return "", &model.SynthesisError{Kind: model.KindNews, Err: err}
	}
	return text, nil
}

// PricePost turns a price snapshot into a daily digest post.
func (s *Synthesizer) PricePost(ctx context.Context, snap model.PriceSnapshot, slot model.DigestSlot) (string, error) {
	sign := ""
	if snap.Change24h >= 0 {
		sign = "+"
	}
	user := fmt.Sprintf(`Current %s market data (%s digest):
- price: $%.4f
- 24h change: %s%.2f%%
- 24h volume: $%.0f

Write one short post stating the price and the 24h change, then one line of
your own reaction. No financial advice. Output only the post text.`,
		snap.Symbol, slot, snap.Current, sign, snap.Change24h, snap.Volume24h)

	text, err := s.generate(ctx, user)
	if err != nil {
		return "", &model.SynthesisError{Kind: slot.Kind(), Err: err}
	}
	return text, nil
}

// generate runs one independent conversation. The conversation stamp keeps
// the upstream model from latching onto phrasing it produced for earlier
// posts when the provider caches by prompt prefix.
func (s *Synthesizer) generate(ctx context.Context, user string) (string, error) {
	stamp := fmt.Sprintf("\n\n[conversation %s at %s — no prior history exists]",
		uuid.NewString()[:8], s.now().UTC().Format("20060102150405"))

	text, err := s.gen.Generate(ctx, s.persona+stamp, user)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", &model.GenerationError{Kind: model.FailRejected, Err: fmt.Errorf("blank completion")}
	}
	return strings.TrimSpace(text), nil
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

package synth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"cryptopost_bot/internal/model"
)

type mockGenerator struct {
	reply      string
	err        error
	lastSystem string
	lastUser   string
	calls      int
}

func (m *mockGenerator) Generate(_ context.Context, system, user string) (string, error) {
	m.calls++
	m.lastSystem = system
	m.lastUser = user
	if m.err != nil {
		return "", m.err
	}
	return m.reply, nil
}

func newsItem(text string) model.NewsItem {
	return model.NewsItem{
		SourceID:        "msg-1",
		RawText:         text,
		SourceTimestamp: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
	}
}

func TestNewsPost(t *testing.T) {
	gen := &mockGenerator{reply: "ton pumped again, classic"}
	s := New(gen, "persona text", 4000)

	got, err := s.NewsPost(context.Background(), newsItem("TON price surges past resistance"))
	if err != nil {
		t.Fatalf("news post: %v", err)
	}
	if got != "ton pumped again, classic" {
		t.Errorf("got %q", got)
	}
	if !strings.HasPrefix(gen.lastSystem, "persona text") {
		t.Error("system prompt should start with the persona")
	}
	if !strings.Contains(gen.lastUser, "TON price surges") {
		t.Error("user prompt should carry the payload")
	}
}

func TestNewsPostTruncatesPayload(t *testing.T) {
	gen := &mockGenerator{reply: "ok"}
	s := New(gen, "p", 50)

	long := strings.Repeat("кит ", 100)
	if _, err := s.NewsPost(context.Background(), newsItem(long)); err != nil {
		t.Fatalf("news post: %v", err)
	}

	// 50 runes of payload plus the ellipsis, embedded in the template.
	if strings.Contains(gen.lastUser, strings.Repeat("кит ", 20)) {
		t.Error("payload was not truncated before the generation call")
	}
	if !strings.Contains(gen.lastUser, "...") {
		t.Error("truncated payload should be marked with an ellipsis")
	}
}

func TestNewsPostEmptyPayload(t *testing.T) {
	gen := &mockGenerator{reply: "ok"}
	s := New(gen, "p", 4000)

	_, err := s.NewsPost(context.Background(), newsItem("   "))
	var se *model.SynthesisError
	if !errors.As(err, &se) {
		t.Fatalf("want SynthesisError, got %v", err)
	}
	if gen.calls != 0 {
		t.Error("empty payload must not reach the generator")
	}
}

func TestNewsPostWrapsGenerationError(t *testing.T) {
	genErr := &model.GenerationError{Kind: model.FailQuota, Err: errors.New("quota")}
	s := New(&mockGenerator{err: genErr}, "p", 4000)

	_, err := s.NewsPost(context.Background(), newsItem("bitcoin news"))
	var se *model.SynthesisError
	if !errors.As(err, &se) {
		t.Fatalf("want SynthesisError, got %v", err)
	}
	var ge *model.GenerationError
	if !errors.As(err, &ge) || ge.Kind != model.FailQuota {
		t.Error("SynthesisError should wrap the underlying GenerationError")
	}
}

func TestPricePost(t *testing.T) {
	gen := &mockGenerator{reply: "ton at 5.20, +4.00%, whatever"}
	s := New(gen, "p", 4000)

	snap := model.PriceSnapshot{
		Symbol:    "TON",
		Current:   5.20,
		Reference: 5.00,
		Change24h: 4.00,
		Volume24h: 120_000_000,
		AsOf:      time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
	}
	got, err := s.PricePost(context.Background(), snap, model.SlotMorning)
	if err != nil {
		t.Fatalf("price post: %v", err)
	}
	if got == "" {
		t.Fatal("expected non-empty post")
	}
	if !strings.Contains(gen.lastUser, "$5.2000") {
		t.Errorf("user prompt should carry the price, got:\n%s", gen.lastUser)
	}
	if !strings.Contains(gen.lastUser, "+4.00%") {
		t.Errorf("user prompt should carry the signed change, got:\n%s", gen.lastUser)
	}
}

func TestConversationsAreIndependent(t *testing.T) {
	gen := &mockGenerator{reply: "ok"}
	s := New(gen, "p", 4000)

	if _, err := s.NewsPost(context.Background(), newsItem("first")); err != nil {
		t.Fatalf("news post: %v", err)
	}
	first := gen.lastSystem
	if _, err := s.NewsPost(context.Background(), newsItem("second")); err != nil {
		t.Fatalf("news post: %v", err)
	}
	if first == gen.lastSystem {
		t.Error("each call should get a distinct conversation stamp")
	}
}

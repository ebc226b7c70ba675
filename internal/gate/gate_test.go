package gate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"cryptopost_bot/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockSink struct {
	mu       sync.Mutex
	failures int
	err      error
	inFlight int
	maxSeen  int
	sent     []string
}

func (m *mockSink) Send(_ context.Context, _ int64, content Content) error {
	m.mu.Lock()
	m.inFlight++
	if m.inFlight > m.maxSeen {
		m.maxSeen = m.inFlight
	}
	m.mu.Unlock()

	time.Sleep(time.Millisecond)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight--

	if m.failures > 0 {
		m.failures--
		return m.err
	}
	m.sent = append(m.sent, content.Text)
	return nil
}

func newGate(sink Sink, maxRetries int) *Gate {
	return New(sink, 42, maxRetries, time.Millisecond, 0, discardLogger())
}

func TestPublishRetriesTransient(t *testing.T) {
	sink := &mockSink{
		failures: 2,
		err:      &model.PublishError{Kind: model.FailRateLimited, Err: errors.New("429")},
	}
	g := newGate(sink, 3)

	if err := g.Publish(context.Background(), Content{Text: "post"}); err != nil {
		t.Fatalf("publish should succeed within the retry cap: %v", err)
	}
	if len(sink.sent) != 1 {
		t.Errorf("want 1 delivered post, got %d", len(sink.sent))
	}
}

func TestPublishExhaustsRetryCap(t *testing.T) {
	sink := &mockSink{
		failures: 10,
		err:      &model.PublishError{Kind: model.FailNetwork, Err: errors.New("down")},
	}
	g := newGate(sink, 2)

	err := g.Publish(context.Background(), Content{Text: "post"})
	if err == nil {
		t.Fatal("publish should fail after exhausting retries")
	}
	var pe *model.PublishError
	if !errors.As(err, &pe) {
		t.Errorf("caller should see the sink error, got %v", err)
	}
	if len(sink.sent) != 0 {
		t.Error("nothing should have been delivered")
	}
}

func TestPublishPermanentFailsImmediately(t *testing.T) {
	sink := &mockSink{
		failures: 10,
		err:      &model.PublishError{Kind: model.FailInvalid, Err: errors.New("bad channel")},
	}
	g := newGate(sink, 5)

	if err := g.Publish(context.Background(), Content{Text: "post"}); err == nil {
		t.Fatal("permanent failure should be reported")
	}
	// failures counts down once per attempt; a single attempt leaves 9.
	if sink.failures != 9 {
		t.Errorf("permanent failure must not retry, %d failures consumed", 10-sink.failures)
	}
}

func TestPublishSerializes(t *testing.T) {
	sink := &mockSink{}
	g := newGate(sink, 0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = g.Publish(context.Background(), Content{Text: "post"})
		}()
	}
	wg.Wait()

	if sink.maxSeen != 1 {
		t.Errorf("at most one publish may be in flight, saw %d", sink.maxSeen)
	}
	if len(sink.sent) != 8 {
		t.Errorf("all posts should be delivered, got %d", len(sink.sent))
	}
}

func TestPublishHonorsContext(t *testing.T) {
	sink := &mockSink{
		failures: 100,
		err:      &model.PublishError{Kind: model.FailNetwork, Err: errors.New("down")},
	}
	g := New(sink, 42, 50, 10*time.Millisecond, 0, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()

	if err := g.Publish(ctx, Content{Text: "post"}); err == nil {
		t.Fatal("cancelled publish should fail")
	}
}

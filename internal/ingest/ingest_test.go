package ingest

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type mockTransport struct {
	body       string
	statusCode int
	err        error
}

func (m *mockTransport) Do(_ *http.Request) (*http.Response, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &http.Response{
		StatusCode: m.statusCode,
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
	}, nil
}

func loadFixture(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile("testdata/sample.xml")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return string(data)
}

func TestPull(t *testing.T) {
	xml := loadFixture(t)
	since := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	p := New(&mockTransport{body: xml, statusCode: 200}, []string{"https://example.com/feed"}, 100)
	items, err := p.Pull(context.Background(), since)
	if err != nil {
		t.Fatalf("pull: %v", err)
	}

	// 6 fixture items: one is older than since, one is a bare-link service
	// message. Both are dropped before filtering.
	wantIDs := []string{"msg-101", "msg-102", "msg-103"}
	var gotIDs []string
	for _, it := range items[:3] {
		gotIDs = append(gotIDs, it.SourceID)
	}
	if diff := cmp.Diff(wantIDs, gotIDs); diff != "" {
		t.Errorf("item order mismatch (-want +got):\n%s", diff)
	}
	if len(items) != 4 {
		t.Fatalf("want 4 items, got %d", len(items))
	}

	// The item without a GUID falls back to a content hash.
	last := items[3]
	if !strings.HasPrefix(last.SourceID, "sha256:") {
		t.Errorf("missing GUID should hash, got %q", last.SourceID)
	}

	for i := 1; i < len(items); i++ {
		if items[i].SourceTimestamp.Before(items[i-1].SourceTimestamp) {
			t.Fatalf("items not in timestamp order at %d", i)
		}
	}
}

func TestPullSinceCursorAdvances(t *testing.T) {
	xml := loadFixture(t)
	p := New(&mockTransport{body: xml, statusCode: 200}, []string{"https://example.com/feed"}, 100)

	since := time.Date(2026, 3, 2, 10, 20, 0, 0, time.UTC)
	items, err := p.Pull(context.Background(), since)
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("want 1 item after cursor, got %d", len(items))
	}
	if !items[0].SourceTimestamp.After(since) {
		t.Error("returned item should be strictly newer than the cursor")
	}
}

func TestPullErrors(t *testing.T) {
	tests := []struct {
		name      string
		transport *mockTransport
	}{
		{name: "http error status", transport: &mockTransport{body: "gone", statusCode: 502}},
		{name: "network error", transport: &mockTransport{err: io.ErrUnexpectedEOF}},
		{name: "invalid xml", transport: &mockTransport{body: "not xml at all", statusCode: 200}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.transport, []string{"https://example.com/feed"}, 100)
			if _, err := p.Pull(context.Background(), time.Time{}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestPullLimit(t *testing.T) {
	xml := loadFixture(t)
	p := New(&mockTransport{body: xml, statusCode: 200}, []string{"https://example.com/feed"}, 2)

	items, err := p.Pull(context.Background(), time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("limit 2 should cap the batch, got %d items", len(items))
	}
}

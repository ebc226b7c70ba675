// Package ingest pulls raw messages from the monitored source channels.
//
// Source channels are consumed through their RSS bridge endpoints, so one
// puller covers Telegram mirror feeds, news site feeds, and anything else
// that speaks RSS. Resumption is by timestamp cursor: each Pull returns only
// items newer than the since argument.
package ingest

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"cryptopost_bot/internal/model"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Source produces batches of raw messages from the monitored channels.
type Source interface {
	Pull(ctx context.Context, since time.Time) ([]model.NewsItem, error)
}

// Puller implements Source over a set of RSS bridge URLs.
type Puller struct {
	client HTTPClient
	feeds  []string
	limit  int
}

// New creates a Puller for the given feed URLs. limit caps how many items
// one Pull may return across all feeds.
func New(client HTTPClient, feeds []string, limit int) *Puller {
	return &Puller{client: client, feeds: feeds, limit: limit}
}

// Pull fetches every source feed and returns items published after since,
// oldest first. A feed that fails poisons the whole pull with an
// IngestError so the scheduler backs off instead of silently narrowing its
// input; empty results are not an error.
func (p *Puller) Pull(ctx context.Context, since time.Time) ([]model.NewsItem, error) {
	var items []model.NewsItem

	for _, url := range p.feeds {
		feed, err := p.fetch(ctx, url)
		if err != nil {
			return nil, &model.IngestError{Source: url, Err: err}
		}
		for _, raw := range feed.Items {
			item, ok := toNewsItem(url, raw, since)
			if ok {
				items = append(items, item)
			}
		}
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].SourceTimestamp.Before(items[j].SourceTimestamp)
	})
	if p.limit > 0 && len(items) > p.limit {
		items = items[:p.limit]
	}
	return items, nil
}

func (p *Puller) fetch(ctx context.Context, url string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "CryptoPostBot/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	parser := gofeed.NewParser()
	feed, err := parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}

func toNewsItem(source string, raw *gofeed.Item, since time.Time) (model.NewsItem, bool) {
	ts := itemTime(raw)
	if ts.IsZero() || !ts.After(since) {
		return model.NewsItem{}, false
	}

	text := strings.TrimSpace(raw.Title)
	if desc := strings.TrimSpace(raw.Description); desc != "" {
		if text != "" {
			text += "\n"
		}
		text += desc
	}
	if isServiceText(text) {
		return model.NewsItem{}, false
	}

	return model.NewsItem{
		SourceID:        itemID(source, raw),
		RawText:         text,
		SourceTimestamp: ts,
	}, true
}

func itemTime(raw *gofeed.Item) time.Time {
	if raw.PublishedParsed != nil {
		return raw.PublishedParsed.UTC()
	}
	if raw.UpdatedParsed != nil {
		return raw.UpdatedParsed.UTC()
	}
	return time.Time{}
}

// itemID returns the dedup key for an item. If the feed carries no GUID, a
// SHA-256 hash of source+title+link is used.
func itemID(source string, raw *gofeed.Item) string {
	if raw.GUID != "" {
		return raw.GUID
	}
	h := sha256.Sum256([]byte(source + "|" + raw.Title + "|" + raw.Link))
	return fmt.Sprintf("sha256:%x", h[:16])
}

// isServiceText drops messages with no usable content: empty bodies and
// bare short links.
func isServiceText(text string) bool {
	if text == "" {
		return true
	}
	if (strings.HasPrefix(text, "http://") || strings.HasPrefix(text, "https://")) &&
		len(text) < 100 && !strings.ContainsAny(text, " \n") {
		return true
	}
	return false
}

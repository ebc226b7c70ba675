// Package price provides the market-data capability via the CoinGecko
// simple-price API.
package price

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"cryptopost_bot/internal/model"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Source returns current and day-over-day price for the tracked asset.
type Source interface {
	GetPrice(ctx context.Context) (model.PriceSnapshot, error)
}

// Client implements Source against the CoinGecko simple-price endpoint.
type Client struct {
	apiURL     string
	assetID    string
	symbol     string
	httpClient HTTPClient
	now        func() time.Time
}

// New creates a Client. assetID is the CoinGecko coin ID
// (e.g. "the-open-network"); symbol is the display ticker.
func New(client HTTPClient, apiURL, assetID, symbol string) *Client {
	return &Client{
		apiURL:     apiURL,
		assetID:    assetID,
		symbol:     symbol,
		httpClient: client,
		now:        time.Now,
	}
}

// SetClock overrides the time source for deterministic tests.
func (c *Client) SetClock(now func() time.Time) {
	c.now = now
}

// GetPrice fetches the current USD price with 24h change and volume.
// The reference price is derived from the 24h change so one request covers
// both figures.
func (c *Client) GetPrice(ctx context.Context) (model.PriceSnapshot, error) {
	q := url.Values{}
	q.Set("ids", c.assetID)
	q.Set("vs_currencies", "usd")
	q.Set("include_24hr_change", "true")
	q.Set("include_24hr_vol", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"?"+q.Encode(), nil)
	if err != nil {
		return model.PriceSnapshot{}, &model.PriceFetchError{Kind: model.FailInvalid, Err: fmt.Errorf("create request: %w", err)}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		kind := model.FailNetwork
		if errors.Is(err, context.DeadlineExceeded) {
			kind = model.FailTimeout
		}
		return model.PriceSnapshot{}, &model.PriceFetchError{Kind: kind, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return model.PriceSnapshot{}, &model.PriceFetchError{Kind: model.FailRateLimited, Err: fmt.Errorf("status %s", resp.Status)}
	default:
		return model.PriceSnapshot{}, &model.PriceFetchError{Kind: model.FailNetwork, Err: fmt.Errorf("status %s", resp.Status)}
	}

	var parsed map[string]struct {
		USD          float64 `json:"usd"`
		USD24hChange float64 `json:"usd_24h_change"`
		USD24hVol    float64 `json:"usd_24h_vol"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&parsed); err != nil {
		return model.PriceSnapshot{}, &model.PriceFetchError{Kind: model.FailMalformed, Err: fmt.Errorf("decode response: %w", err)}
	}

	data, ok := parsed[c.assetID]
	if !ok {
		return model.PriceSnapshot{}, &model.PriceFetchError{Kind: model.FailMalformed, Err: fmt.Errorf("asset %q missing in response", c.assetID)}
	}
	if data.USD <= 0 {
		return model.PriceSnapshot{}, &model.PriceFetchError{Kind: model.FailMalformed, Err: fmt.Errorf("non-positive price %v", data.USD)}
	}

	return model.PriceSnapshot{
		Symbol:    c.symbol,
		Current:   data.USD,
		Reference: data.USD / (1 + data.USD24hChange/100),
		Change24h: data.USD24hChange,
		Volume24h: data.USD24hVol,
		AsOf:      c.now().UTC(),
	}, nil
}

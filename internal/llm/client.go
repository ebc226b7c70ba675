// Package llm provides the text-generation capability over an
// OpenAI-compatible chat completions API.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cryptopost_bot/internal/model"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Generator accepts a prompt pair and returns a text completion.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// Client talks to an OpenAI-compatible chat completions endpoint
// (DeepSeek, OpenAI, or any proxy that speaks the same wire format).
type Client struct {
	endpoint    string
	modelName   string
	apiKey      string
	maxTokens   int
	temperature float64
	httpClient  HTTPClient
}

// New creates a Client. maxTokens bounds the completion length.
func New(client HTTPClient, endpoint, modelName, apiKey string, maxTokens int) *Client {
	return &Client{
		endpoint:    endpoint,
		modelName:   modelName,
		apiKey:      apiKey,
		maxTokens:   maxTokens,
		temperature: 1.0,
		httpClient:  client,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Generate sends one system+user message pair as an independent
// conversation and returns the completion text.
func (c *Client) Generate(ctx context.Context, system, user string) (string, error) {
	if c.apiKey == "" {
		return "", &model.GenerationError{Kind: model.FailRejected, Err: errors.New("api key not configured")}
	}

	body, err := json.Marshal(chatRequest{
		Model: c.modelName,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", &model.GenerationError{Kind: model.FailRejected, Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &model.GenerationError{Kind: model.FailRejected, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		kind := model.FailNetwork
		if errors.Is(err, context.DeadlineExceeded) {
			kind = model.FailTimeout
		}
		return "", &model.GenerationError{Kind: kind, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", &model.GenerationError{Kind: model.FailQuota, Err: apiError(resp)}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return "", &model.GenerationError{Kind: model.FailRejected, Err: apiError(resp)}
	default:
		return "", &model.GenerationError{Kind: model.FailNetwork, Err: apiError(resp)}
	}

	var parsed chatResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1024*1024)).Decode(&parsed); err != nil {
		return "", &model.GenerationError{Kind: model.FailNetwork, Err: fmt.Errorf("decode response: %w", err)}
	}
	if parsed.Error != nil {
		return "", &model.GenerationError{Kind: model.FailRejected, Err: fmt.Errorf("api error: %s", parsed.Error.Message)}
	}
	if len(parsed.Choices) == 0 {
		return "", &model.GenerationError{Kind: model.FailRejected, Err: errors.New("empty choices in response")}
	}

	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", &model.GenerationError{Kind: model.FailRejected, Err: errors.New("empty completion")}
	}
	return content, nil
}

func apiError(resp *http.Response) error {
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("api status %s: %s", resp.Status, strings.TrimSpace(string(payload)))
}

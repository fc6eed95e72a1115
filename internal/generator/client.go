package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultMaxTokens = 1200

// ErrNotConfigured is returned when no generation endpoint is set.
var ErrNotConfigured = errors.New("generator endpoint not configured")

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
}

// response accepts the plain {"text": ...} shape and, for OpenAI-compatible
// endpoints, the first choice's message.
type response struct {
	Text    string `json:"text"`
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Client posts a conversation to a text-generation endpoint.
type Client struct {
	endpoint   string
	apiKey     string
	model      string
	maxTokens  int
	httpClient *http.Client
}

func NewClient(endpoint, apiKey, model string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		endpoint:   endpoint,
		apiKey:     apiKey,
		model:      model,
		maxTokens:  defaultMaxTokens,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Model() string { return c.model }

// Generate returns the raw text the model produced.
func (c *Client) Generate(ctx context.Context, messages []Message) (string, error) {
	if c == nil || c.endpoint == "" {
		return "", ErrNotConfigured
	}

	body, err := json.Marshal(request{Model: c.model, Messages: messages, MaxTokens: c.maxTokens})
	if err != nil {
		return "", fmt.Errorf("marshal generation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("generator error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var out response
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&out); err != nil {
		return "", fmt.Errorf("decode generation response: %w", err)
	}
	text := out.Text
	if text == "" && len(out.Choices) > 0 {
		text = out.Choices[0].Message.Content
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New("generator returned empty text")
	}
	return text, nil
}

package textgen

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

const (
	DefaultEndpoint  = "https://api.anthropic.com/v1/messages"
	DefaultModel     = "claude-3-haiku-20240307"
	apiVersion       = "2023-06-01"
	defaultMaxTokens = 150
)

var ErrEmptyCompletion = errors.New("textgen_empty_completion")

// Client calls the Messages API with a single user turn and returns the
// first text block of the reply.
type Client struct {
	apiKey    string
	model     string
	endpoint  string
	maxTokens int
	client    *http.Client
}

func NewClient(apiKey, model string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("textgen api key required")
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}
	return &Client{
		apiKey:    apiKey,
		model:     model,
		endpoint:  DefaultEndpoint,
		maxTokens: defaultMaxTokens,
		client:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if c == nil {
		return "", fmt.Errorf("textgen client not configured")
	}
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("textgen prompt required")
	}
	body, err := json.Marshal(messagesRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages:  []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal textgen payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build textgen request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("content-type", "application/json")
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send textgen request: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read textgen response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", errorFromResponse(resp.StatusCode, rawBody)
	}

	var out messagesResponse
	if err := json.Unmarshal(rawBody, &out); err != nil {
		return "", fmt.Errorf("decode textgen response: %w", err)
	}
	if len(out.Content) == 0 {
		return "", ErrEmptyCompletion
	}
	text := strings.TrimSpace(out.Content[0].Text)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func errorFromResponse(status int, body []byte) error {
	var resp errorResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Error.Message == "" {
		return fmt.Errorf("textgen failed: status %d: %s", status, string(body))
	}
	return fmt.Errorf("textgen failed: status %d: %s: %s", status, resp.Error.Type, resp.Error.Message)
}

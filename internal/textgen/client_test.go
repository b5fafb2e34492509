package textgen

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

type captureTransport struct {
	req    *http.Request
	body   []byte
	status int
	reply  string
}

func (t *captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.req = req
	t.body, _ = io.ReadAll(req.Body)
	_ = req.Body.Close()
	status := t.status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(t.reply)),
		Header:     make(http.Header),
	}, nil
}

func newTestClient(rt http.RoundTripper) *Client {
	return &Client{
		apiKey:    "key-1",
		model:     DefaultModel,
		endpoint:  DefaultEndpoint,
		maxTokens: defaultMaxTokens,
		client:    &http.Client{Transport: rt},
	}
}

func TestCompleteSendsMessagesRequest(t *testing.T) {
	rt := &captureTransport{reply: `{"content":[{"type":"text","text":"  You are a night owl.  \n"}]}`}
	c := newTestClient(rt)

	got, err := c.Complete(context.Background(), "describe me")
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if got != "You are a night owl." {
		t.Fatalf("unexpected text: %q", got)
	}

	if rt.req.Method != http.MethodPost || rt.req.URL.String() != DefaultEndpoint {
		t.Fatalf("unexpected request: %s %s", rt.req.Method, rt.req.URL)
	}
	if rt.req.Header.Get("x-api-key") != "key-1" {
		t.Fatalf("missing api key header")
	}
	if rt.req.Header.Get("anthropic-version") != "2023-06-01" {
		t.Fatalf("unexpected version header: %q", rt.req.Header.Get("anthropic-version"))
	}

	var payload map[string]any
	if err := json.Unmarshal(rt.body, &payload); err != nil {
		t.Fatalf("unmarshal request body: %v", err)
	}
	if payload["model"] != DefaultModel {
		t.Fatalf("unexpected model: %v", payload["model"])
	}
	if payload["max_tokens"] != float64(150) {
		t.Fatalf("unexpected max_tokens: %v", payload["max_tokens"])
	}
	msgs, _ := payload["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("expected one message, got %v", payload["messages"])
	}
	msg, _ := msgs[0].(map[string]any)
	if msg["role"] != "user" || msg["content"] != "describe me" {
		t.Fatalf("unexpected message: %v", msg)
	}
}

func TestCompleteNon200(t *testing.T) {
	rt := &captureTransport{
		status: http.StatusTooManyRequests,
		reply:  `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`,
	}
	_, err := newTestClient(rt).Complete(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "rate_limit_error") || !strings.Contains(err.Error(), "429") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCompleteEmptyContent(t *testing.T) {
	rt := &captureTransport{reply: `{"content":[]}`}
	_, err := newTestClient(rt).Complete(context.Background(), "x")
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("expected ErrEmptyCompletion, got %v", err)
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(" ", ""); err == nil {
		t.Fatalf("expected error")
	}
	c, err := NewClient("k", "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.model != DefaultModel {
		t.Fatalf("model=%q", c.model)
	}
}

package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"greatreads/internal/auth"
	"greatreads/internal/live"
	"greatreads/internal/service"
	"greatreads/internal/store/memory"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	h     http.Handler
	mem   *memory.Store
	hub   *live.Hub
	rels  *service.RelationshipStore
	books *service.BooksService
	reg   *prometheus.Registry
}

func newTestEnv(t *testing.T, tweak ...func(*RouterOpts)) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := func() time.Time { return fixedNow }

	mem := memory.New()
	hub := live.NewHub(logger)
	rels := &service.RelationshipStore{Store: mem, Hub: hub, Logger: logger, Now: now}
	books := &service.BooksService{Store: mem, Logger: logger, Now: now}
	reg := prometheus.NewRegistry()

	opts := RouterOpts{
		Logger:        logger,
		Verifier:      auth.DevVerifier{},
		Relationships: rels,
		Books:         books,
		Hub:           hub,
		Feed:          &service.FeedAggregator{Books: mem, Profiles: rels, Logger: logger, Now: func() time.Time { return fixedNow.Add(3 * time.Hour) }},
		Registry:      reg,
		MetricsUser:   "prom",
		MetricsPass:   "secret",
	}
	for _, fn := range tweak {
		fn(&opts)
	}
	return &testEnv{h: NewRouter(opts), mem: mem, hub: hub, rels: rels, books: books, reg: reg}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) signUp(t *testing.T, id, username string) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/v1/users/me", id, map[string]string{"username": username, "email": username + "@example.com"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("sign up %s: status %d body %s", id, rec.Code, rec.Body.String())
	}
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d (%s)", status, rec.Code, rec.Body.String())
	}
	env := decodeBody[errorEnvelope](t, rec)
	if env.Error.Code != code {
		t.Fatalf("expected error code %q, got %q", code, env.Error.Code)
	}
}

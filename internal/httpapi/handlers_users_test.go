package httpapi

import (
	"net/http"
	"testing"
	"time"

	"greatreads/internal/domain"
)

type (
	availability struct {
		Available bool `json:"available"`
	}
	emailLookup struct {
		Email string `json:"email"`
	}
	searchResults struct {
		Users []domain.UserSummary `json:"users"`
	}
	feedPage struct {
		Entries []feedItem `json:"entries"`
	}
)

func TestUsersSignUpAndMe(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, "u1", "alice")

	rec := env.do(t, http.MethodGet, "/v1/users/me", "u1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me: status %d", rec.Code)
	}
	me := decodeBody[domain.UserProfile](t, rec)
	if me.Username != "alice" || me.Email != "alice@example.com" {
		t.Fatalf("unexpected profile: %+v", me)
	}
	if got, ok := env.hub.Latest("u1"); !ok || got.Username != "alice" {
		t.Fatalf("profile not published to hub")
	}

	rec = env.do(t, http.MethodPost, "/v1/users/me", "u2", map[string]string{"username": "alice"})
	expectError(t, rec, http.StatusConflict, "username_taken")

	rec = env.do(t, http.MethodPost, "/v1/users/me", "u3", map[string]string{"username": "x"})
	expectError(t, rec, http.StatusBadRequest, "validation_error")
	if body := decodeBody[errorEnvelope](t, rec); body.Error.Fields["username"] == "" {
		t.Fatalf("expected username field error, got %+v", body.Error)
	}

	rec = env.do(t, http.MethodPost, "/v1/users/me", "u3", map[string]string{"username": "carol", "nickname": "c"})
	expectError(t, rec, http.StatusBadRequest, "bad_json")

	expectError(t, env.do(t, http.MethodGet, "/v1/users/me", "ghost", nil), http.StatusNotFound, "not_found")
}

func TestUsersPublicLookups(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, "u1", "alice")

	rec := env.do(t, http.MethodGet, "/v1/users/username-available?username=alice", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("available: status %d", rec.Code)
	}
	if decodeBody[availability](t, rec).Available {
		t.Fatalf("alice must be taken")
	}
	rec = env.do(t, http.MethodGet, "/v1/users/username-available?username=Alice", "", nil)
	if !decodeBody[availability](t, rec).Available {
		t.Fatalf("usernames are case-sensitive")
	}

	rec = env.do(t, http.MethodGet, "/v1/users/email?username=alice", "", nil)
	if got := decodeBody[emailLookup](t, rec).Email; got != "alice@example.com" {
		t.Fatalf("email=%q", got)
	}
	expectError(t, env.do(t, http.MethodGet, "/v1/users/email?username=nobody", "", nil), http.StatusNotFound, "not_found")
	expectError(t, env.do(t, http.MethodGet, "/v1/users/email", "", nil), http.StatusBadRequest, "validation_error")
}

func TestUsersSearchAndGet(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, "u1", "alice")
	env.signUp(t, "u2", "alina")
	env.signUp(t, "u3", "bob")

	rec := env.do(t, http.MethodGet, "/v1/users/search?q=al", "u1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("search: status %d", rec.Code)
	}
	res := decodeBody[searchResults](t, rec)
	if len(res.Users) != 1 || res.Users[0].ID != "u2" {
		t.Fatalf("expected only alina, got %+v", res.Users)
	}

	env.do(t, http.MethodPost, "/v1/friends/requests/u3", "u1", nil)
	rec = env.do(t, http.MethodGet, "/v1/users/u3", "u1", nil)
	got := decodeBody[userResponse](t, rec)
	if got.Username != "bob" || got.State != domain.RelationRequestSent {
		t.Fatalf("unexpected user response: %+v", got)
	}
}

func TestFeedOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, "u1", "alice")
	env.signUp(t, "u2", "bob")
	env.do(t, http.MethodPost, "/v1/friends/requests/u2", "u1", nil)
	env.do(t, http.MethodPost, "/v1/friends/requests/u1/accept", "u2", nil)

	rec := env.do(t, http.MethodPost, "/v1/books", "u2", map[string]any{"title": "Dune", "author": "Frank Herbert", "tags": []string{"scifi"}})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add book: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/v1/feed", "u1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("feed: status %d body %s", rec.Code, rec.Body.String())
	}
	feed := decodeBody[feedPage](t, rec)
	if len(feed.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(feed.Entries))
	}
	e := feed.Entries[0]
	if e.Book.Title != "Dune" || e.Owner == nil || e.Owner.Username != "bob" {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if e.TimeAgo != "3 hours ago" {
		t.Fatalf("time_ago=%q", e.TimeAgo)
	}
	if !e.Book.CreatedAt.Equal(fixedNow) {
		t.Fatalf("created_at=%s", e.Book.CreatedAt.Format(time.RFC3339))
	}

	rec = env.do(t, http.MethodGet, "/v1/feed", "u2", nil)
	if got := decodeBody[feedPage](t, rec); len(got.Entries) != 0 {
		t.Fatalf("own books must not appear in own feed: %+v", got.Entries)
	}
}

func TestFeedOwnerCacheSpansRequests(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, "u1", "alice")
	env.signUp(t, "u2", "bob")
	env.do(t, http.MethodPost, "/v1/friends/requests/u2", "u1", nil)
	env.do(t, http.MethodPost, "/v1/friends/requests/u1/accept", "u2", nil)
	env.do(t, http.MethodPost, "/v1/books", "u2", map[string]any{"title": "Dune", "author": "Frank Herbert"})

	env.mem.ResetCalls()
	if rec := env.do(t, http.MethodGet, "/v1/feed", "u1", nil); rec.Code != http.StatusOK {
		t.Fatalf("first feed: status %d", rec.Code)
	}
	first := env.mem.Calls("get", "users")

	env.mem.ResetCalls()
	rec := env.do(t, http.MethodGet, "/v1/feed", "u1", nil)
	second := env.mem.Calls("get", "users")

	// Each request reads the actor; only the first also resolves the owner.
	if first != 2 || second != 1 {
		t.Fatalf("users gets: first=%d second=%d", first, second)
	}
	if got := decodeBody[feedPage](t, rec); len(got.Entries) != 1 || got.Entries[0].Owner == nil || got.Entries[0].Owner.Username != "bob" {
		t.Fatalf("cached owner missing: %+v", got.Entries)
	}
}

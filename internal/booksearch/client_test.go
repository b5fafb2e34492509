package booksearch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"google.golang.org/api/option"

	"greatreads/internal/domain"
)

const volumesJSON = `{
  "totalItems": 2,
  "items": [
    {
      "id": "vol-1",
      "volumeInfo": {
        "title": "Dune",
        "authors": ["Frank Herbert"],
        "publisher": "Ace",
        "publishedDate": "1990",
        "description": "Spice.",
        "pageCount": 535,
        "categories": ["Fiction / Science Fiction / General"],
        "imageLinks": {"smallThumbnail": "http://img/small", "thumbnail": "http://img/large"},
        "industryIdentifiers": [
          {"type": "ISBN_10", "identifier": "0441172717"},
          {"type": "ISBN_13", "identifier": "9780441172719"}
        ]
      }
    },
    {
      "id": "vol-2",
      "volumeInfo": {"title": "Untitled"}
    }
  ]
}`

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(context.Background(), "", option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestSearch(t *testing.T) {
	var gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/books/v1/volumes") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, volumesJSON)
	})

	got, err := c.Search(context.Background(), "  Frank Herbert ")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, want := range []string{"q=inauthor%3AFrank+Herbert", "maxResults=20", "printType=books"} {
		if !strings.Contains(gotQuery, want) {
			t.Fatalf("query %q missing %q", gotQuery, want)
		}
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}

	d := got[0]
	if d.GoogleBooksID != "vol-1" || d.Title != "Dune" || d.Publisher != "Ace" {
		t.Fatalf("unexpected candidate: %+v", d)
	}
	if d.CoverImageURL != "https://img/large" {
		t.Fatalf("cover=%q", d.CoverImageURL)
	}
	if d.ISBN13 != "9780441172719" || d.ISBN10 != "0441172717" {
		t.Fatalf("isbn13=%q isbn10=%q", d.ISBN13, d.ISBN10)
	}
	if d.PageCount == nil || *d.PageCount != 535 {
		t.Fatalf("pageCount=%v", d.PageCount)
	}
	if !reflect.DeepEqual(d.SuggestedTags, []string{"literature", "scifi"}) {
		t.Fatalf("tags=%v", d.SuggestedTags)
	}

	u := got[1]
	if u.Authors == nil || len(u.Authors) != 0 || u.PageCount != nil || u.CoverImageURL != "" {
		t.Fatalf("sparse volume not mapped cleanly: %+v", u)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no request expected")
	})
	got, err := c.Search(context.Background(), "   ")
	if err != nil || got == nil || len(got) != 0 {
		t.Fatalf("got=%v err=%v", got, err)
	}
}

func TestSearchFailureIsRemote(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":403,"message":"quota exceeded"}}`, http.StatusForbidden)
	})
	_, err := c.Search(context.Background(), "dune")
	if !errors.Is(err, domain.ErrRemoteUnavailable) {
		t.Fatalf("expected ErrRemoteUnavailable, got %v", err)
	}
}

func TestGet(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/volumes/vol-1"):
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"id":"vol-1","volumeInfo":{"title":"Dune","imageLinks":{"smallThumbnail":"http://img/s"}}}`)
		default:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":{"code":404,"message":"The volume ID could not be found."}}`)
		}
	})

	got, err := c.Get(context.Background(), "vol-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "Dune" || got.CoverImageURL != "https://img/s" {
		t.Fatalf("unexpected: %+v", got)
	}

	if _, err := c.Get(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var ve *domain.ValidationError
	if _, err := c.Get(context.Background(), " "); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestFormatSearchQuery(t *testing.T) {
	cases := map[string]string{
		"Stephen King":             "inauthor:Stephen King",
		"Ursula K. Le Guin":        "inauthor:Ursula K. Le Guin",
		"The Hobbit":               "The Hobbit",
		"stephen king":             "stephen king",
		"Dune":                     "Dune",
		"Harry Potter and the Cup": "Harry Potter and the Cup",
		"A Tale Of Two":            "A Tale Of Two",
	}
	for in, want := range cases {
		if got := formatSearchQuery(in); got != want {
			t.Errorf("formatSearchQuery(%q)=%q want %q", in, got, want)
		}
	}
}

func TestSuggestedTags(t *testing.T) {
	cases := []struct {
		categories []string
		want       []string
	}{
		{nil, []string{}},
		{[]string{"Juvenile Nonfiction"}, []string{"children", "nonfiction"}},
		{[]string{"Cooking / Regional"}, []string{"cookbook"}},
		{[]string{"Science"}, []string{"science"}},
		{[]string{"Self-Help", "Self Help"}, []string{"selfHelp"}},
		{[]string{"Young Adult Fiction", "Fantasy"}, []string{"literature", "ya", "fantasy"}},
	}
	for _, c := range cases {
		got := suggestedTags(c.categories)
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("suggestedTags(%v)=%v want %v", c.categories, got, c.want)
		}
		for _, tag := range got {
			if !domain.IsKnownTag(tag) {
				t.Errorf("unknown tag %q", tag)
			}
		}
	}
}

func TestCoverURL(t *testing.T) {
	if got := coverURL("", "http://x/y"); got != "https://x/y" {
		t.Fatalf("got %q", got)
	}
	if got := coverURL("https://a", "http://b"); got != "https://a" {
		t.Fatalf("got %q", got)
	}
	if got := coverURL("", ""); got != "" {
		t.Fatalf("got %q", got)
	}
}

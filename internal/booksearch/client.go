package booksearch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"unicode"

	books "google.golang.org/api/books/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"greatreads/internal/domain"
)

const maxResults = 20

// Candidate is a search hit the client can turn into a ReadingEntry.
type Candidate struct {
	GoogleBooksID string   `json:"google_books_id"`
	Title         string   `json:"title"`
	Authors       []string `json:"authors"`
	Publisher     string   `json:"publisher,omitempty"`
	PublishedDate string   `json:"published_date,omitempty"`
	Description   string   `json:"description,omitempty"`
	PageCount     *int     `json:"page_count,omitempty"`
	CoverImageURL string   `json:"cover_image_url,omitempty"`
	ISBN13        string   `json:"isbn13,omitempty"`
	ISBN10        string   `json:"isbn10,omitempty"`
	SuggestedTags []string `json:"suggested_tags"`
}

type Client struct {
	svc    *books.Service
	Logger *slog.Logger
}

// NewClient builds a Books API client. apiKey may be empty; extra options
// are passed through (tests point it at a local server).
func NewClient(ctx context.Context, apiKey string, opts ...option.ClientOption) (*Client, error) {
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	} else if len(opts) == 0 {
		opts = append(opts, option.WithoutAuthentication())
	}
	svc, err := books.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("init books service: %w", err)
	}
	return &Client{svc: svc}, nil
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *Client) Search(ctx context.Context, query string) ([]Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Candidate{}, nil
	}
	q := formatSearchQuery(query)

	res, err := c.svc.Volumes.List(q).
		MaxResults(maxResults).
		PrintType("books").
		Context(ctx).
		Do()
	if err != nil {
		c.logger().Warn("booksearch: search failed", "err", err, "query", q)
		return nil, domain.Remote("search books", mapError(err))
	}

	out := make([]Candidate, 0, len(res.Items))
	for _, v := range res.Items {
		if v == nil || v.VolumeInfo == nil {
			continue
		}
		out = append(out, toCandidate(v))
	}
	return out, nil
}

func (c *Client) Get(ctx context.Context, id string) (Candidate, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Candidate{}, &domain.ValidationError{Fields: map[string]string{"id": "required"}}
	}
	v, err := c.svc.Volumes.Get(id).Context(ctx).Do()
	if err != nil {
		return Candidate{}, domain.Remote("get book", mapError(err))
	}
	if v.VolumeInfo == nil {
		return Candidate{}, domain.ErrNotFound
	}
	return toCandidate(v), nil
}

func mapError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return domain.ErrNotFound
	}
	return err
}

func toCandidate(v *books.Volume) Candidate {
	info := v.VolumeInfo
	c := Candidate{
		GoogleBooksID: v.Id,
		Title:         info.Title,
		Authors:       info.Authors,
		Publisher:     info.Publisher,
		PublishedDate: info.PublishedDate,
		Description:   info.Description,
		SuggestedTags: suggestedTags(info.Categories),
	}
	if c.Authors == nil {
		c.Authors = []string{}
	}
	if info.PageCount > 0 {
		n := int(info.PageCount)
		c.PageCount = &n
	}
	if info.ImageLinks != nil {
		c.CoverImageURL = coverURL(info.ImageLinks.Thumbnail, info.ImageLinks.SmallThumbnail)
	}
	for _, id := range info.IndustryIdentifiers {
		if id == nil {
			continue
		}
		switch id.Type {
		case "ISBN_13":
			if c.ISBN13 == "" {
				c.ISBN13 = id.Identifier
			}
		case "ISBN_10":
			if c.ISBN10 == "" {
				c.ISBN10 = id.Identifier
			}
		}
	}
	return c
}

// coverURL prefers the larger thumbnail and forces https.
func coverURL(thumbnail, small string) string {
	u := thumbnail
	if u == "" {
		u = small
	}
	if strings.HasPrefix(u, "http://") {
		u = "https://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

var commonTitleWords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "and": true,
	"in": true, "on": true, "at": true, "to": true, "for": true,
}

// formatSearchQuery turns queries that look like a person's name (2 to 4
// words, capitalised, no common title words) into an author search.
func formatSearchQuery(query string) string {
	trimmed := strings.TrimSpace(query)
	words := strings.Fields(trimmed)
	if len(words) < 2 || len(words) > 4 {
		return trimmed
	}
	first := []rune(words[0])
	if !unicode.IsUpper(first[0]) {
		return trimmed
	}
	for _, w := range words {
		if commonTitleWords[strings.ToLower(w)] {
			return trimmed
		}
	}
	return "inauthor:" + trimmed
}

var tagRules = []struct {
	tag     string
	matches func(c string) bool
}{
	{"literature", func(c string) bool { return strings.Contains(c, "fiction") && !strings.Contains(c, "non") }},
	{"fantasy", containsAny("fantasy")},
	{"scifi", containsAny("science fiction", "sci-fi")},
	{"romance", containsAny("romance")},
	{"ya", containsAny("young adult")},
	{"horror", containsAny("horror")},
	{"history", containsAny("history")},
	{"mystery", containsAny("mystery", "detective")},
	{"thriller", containsAny("thriller", "suspense")},
	{"cookbook", containsAny("cooking", "recipe")},
	{"science", func(c string) bool { return strings.Contains(c, "science") && !strings.Contains(c, "fiction") }},
	{"selfHelp", containsAny("self-help", "self help")},
	{"travel", containsAny("travel")},
	{"photography", containsAny("photography")},
	{"business", containsAny("business")},
	{"art", containsAny("art")},
	{"education", containsAny("education")},
	{"religion", containsAny("religion")},
	{"children", containsAny("children", "juvenile")},
	{"gardening", containsAny("garden")},
	{"fashion", containsAny("fashion")},
	{"beauty", containsAny("beauty")},
	{"design", containsAny("design")},
	{"nonfiction", containsAny("non-fiction", "nonfiction")},
}

func containsAny(subs ...string) func(string) bool {
	return func(c string) bool {
		for _, s := range subs {
			if strings.Contains(c, s) {
				return true
			}
		}
		return false
	}
}

// suggestedTags maps Books API categories onto the tag vocabulary, first
// occurrence order, no duplicates.
func suggestedTags(categories []string) []string {
	tags := []string{}
	seen := map[string]bool{}
	for _, category := range categories {
		c := strings.ToLower(category)
		for _, r := range tagRules {
			if !seen[r.tag] && r.matches(c) {
				seen[r.tag] = true
				tags = append(tags, r.tag)
			}
		}
	}
	return tags
}

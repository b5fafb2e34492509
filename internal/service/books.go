package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"greatreads/internal/domain"
	"greatreads/internal/store"
)

type exampleBook struct {
	title  string
	author string
	tags   []string
}

var exampleBooks = []exampleBook{
	{"The Midnight Library", "Matt Haig", []string{"literature", "fantasy"}},
	{"Project Hail Mary", "Andy Weir", []string{"scifi", "thriller"}},
	{"Tomorrow, and Tomorrow, and Tomorrow", "Gabrielle Zevin", []string{"literature", "romance"}},
	{"The Seven Husbands of Evelyn Hugo", "Taylor Jenkins Reid", []string{"romance", "literature"}},
	{"Anxious People", "Fredrik Backman", []string{"literature"}},
	{"The Silent Patient", "Alex Michaelides", []string{"thriller", "mystery"}},
	{"Educated", "Tara Westover", []string{"nonfiction", "history"}},
	{"Where the Crawdads Sing", "Delia Owens", []string{"mystery", "romance"}},
	{"The House in the Cerulean Sea", "TJ Klune", []string{"fantasy", "romance"}},
	{"Mexican Gothic", "Silvia Moreno-Garcia", []string{"horror", "mystery"}},
}

type BooksService struct {
	Store  store.Store
	Logger *slog.Logger
	Now    func() time.Time
}

func (s *BooksService) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *BooksService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func (s *BooksService) AddBook(ctx context.Context, ownerID string, in domain.NewReadingEntry) (domain.ReadingEntry, error) {
	if ownerID == "" {
		return domain.ReadingEntry{}, domain.ErrNoCurrentUser
	}
	e, err := newEntry(ownerID, in)
	if err != nil {
		return domain.ReadingEntry{}, err
	}
	e.CreatedAt = s.now()
	return s.insert(ctx, e)
}

func (s *BooksService) insert(ctx context.Context, e domain.ReadingEntry) (domain.ReadingEntry, error) {
	id, err := s.Store.Add(ctx, domain.CollectionBooks, domain.EncodeReadingEntry(e))
	if err != nil {
		s.logger().Error("books: add failed", "user_id", e.OwnerID, "err", err)
		return domain.ReadingEntry{}, domain.Remote("add book", err)
	}
	e.ID = id
	return e, nil
}

func newEntry(ownerID string, in domain.NewReadingEntry) (domain.ReadingEntry, error) {
	fields := map[string]string{}
	title := strings.TrimSpace(in.Title)
	author := strings.TrimSpace(in.Author)
	if title == "" {
		fields["title"] = "required"
	}
	if author == "" {
		fields["author"] = "required"
	}
	tags := make([]string, 0, len(in.Tags))
	for _, t := range in.Tags {
		t = strings.TrimSpace(t)
		if !domain.IsKnownTag(t) {
			fields["tags"] = "unknown tag " + t
			continue
		}
		tags = append(tags, t)
	}
	if in.PageCount != nil && *in.PageCount < 0 {
		fields["page_count"] = "must not be negative"
	}
	if len(fields) > 0 {
		return domain.ReadingEntry{}, domain.NewValidationError(fields)
	}
	return domain.ReadingEntry{
		OwnerID:         ownerID,
		Title:           title,
		Author:          author,
		Tags:            tags,
		BookDescription: strings.TrimSpace(in.BookDescription),
		CoverImageURL:   strings.TrimSpace(in.CoverImageURL),
		ISBN:            strings.TrimSpace(in.ISBN),
		PageCount:       in.PageCount,
		PublishedDate:   strings.TrimSpace(in.PublishedDate),
		Publisher:       strings.TrimSpace(in.Publisher),
		GoogleBooksID:   strings.TrimSpace(in.GoogleBooksID),
		DateRead:        in.DateRead,
		Review:          strings.TrimSpace(in.Review),
	}, nil
}

// DeleteBook removes one of the actor's own entries.
func (s *BooksService) DeleteBook(ctx context.Context, actorID, bookID string) error {
	if actorID == "" {
		return domain.ErrNoCurrentUser
	}
	if bookID == "" {
		return domain.NewValidationError(map[string]string{"id": "required"})
	}
	raw, err := s.Store.Get(ctx, domain.CollectionBooks, bookID)
	if err != nil {
		return domain.Remote("get book", err)
	}
	if domain.DecodeReadingEntry(bookID, raw).OwnerID != actorID {
		return domain.ErrForbidden
	}
	if err := s.Store.Delete(ctx, domain.CollectionBooks, bookID); err != nil {
		s.logger().Error("books: delete failed", "user_id", actorID, "book_id", bookID, "err", err)
		return domain.Remote("delete book", err)
	}
	return nil
}

// ListUserBooks returns every entry of owner, newest first.
func (s *BooksService) ListUserBooks(ctx context.Context, ownerID string) ([]domain.ReadingEntry, error) {
	return s.RecentBooks(ctx, ownerID, 0)
}

// RecentBooks returns the newest n entries of owner; n <= 0 means all.
func (s *BooksService) RecentBooks(ctx context.Context, ownerID string, n int) ([]domain.ReadingEntry, error) {
	if ownerID == "" {
		return nil, domain.ErrNoCurrentUser
	}
	q := store.From(domain.CollectionBooks).
		Where(domain.FieldUserID, store.OpEqual, ownerID).
		OrderByDesc(domain.FieldCreatedAt)
	if n > 0 {
		q = q.Take(n)
	}
	docs, err := s.Store.Query(ctx, q)
	if err != nil {
		return nil, domain.Remote("list books", err)
	}
	out := make([]domain.ReadingEntry, 0, len(docs))
	for _, d := range docs {
		out = append(out, domain.DecodeReadingEntry(d.ID, d.Data))
	}
	return out, nil
}

// AddExampleBooksIfNeeded seeds a new account with a starter shelf. It does
// nothing when the owner already has at least one entry and returns how
// many entries were added.
func (s *BooksService) AddExampleBooksIfNeeded(ctx context.Context, ownerID string) (int, error) {
	if ownerID == "" {
		return 0, domain.ErrNoCurrentUser
	}
	existing, err := s.Store.Query(ctx, store.From(domain.CollectionBooks).
		Where(domain.FieldUserID, store.OpEqual, ownerID).
		Take(1))
	if err != nil {
		return 0, domain.Remote("check books", err)
	}
	if len(existing) > 0 {
		return 0, nil
	}

	// Later examples are newer so the shelf lists them in reverse.
	base := s.now().Add(-time.Duration(len(exampleBooks)) * time.Second)
	added := 0
	for i, b := range exampleBooks {
		e := domain.ReadingEntry{
			OwnerID:   ownerID,
			Title:     b.title,
			Author:    b.author,
			Tags:      append([]string(nil), b.tags...),
			CreatedAt: base.Add(time.Duration(i+1) * time.Second),
		}
		if _, err := s.insert(ctx, e); err != nil {
			return added, err
		}
		added++
	}
	s.logger().Info("books: example shelf added", "user_id", ownerID, "count", added)
	return added, nil
}

package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"greatreads/internal/domain"
	"greatreads/internal/store"
)

const (
	vibeBookWindow     = 10
	vibeSummaryMaxRune = 200
)

type Generator interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type RecentBooksLister interface {
	RecentBooks(ctx context.Context, ownerID string, n int) ([]domain.ReadingEntry, error)
}

// VibeService turns a user's recent reading into a one-sentence description
// stored on their profile.
type VibeService struct {
	Books     RecentBooksLister
	Store     store.Store
	Profiles  ProfileFetcher
	Generator Generator
	Hub       Publisher
	Logger    *slog.Logger
	Now       func() time.Time
}

func (s *VibeService) Generate(ctx context.Context, actorID string) (domain.UserProfile, error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if actorID == "" {
		return domain.UserProfile{}, domain.ErrNoCurrentUser
	}
	if s.Generator == nil {
		return domain.UserProfile{}, fmt.Errorf("vibe generation not configured: %w", domain.ErrRemoteUnavailable)
	}

	recent, err := s.Books.RecentBooks(ctx, actorID, vibeBookWindow)
	if err != nil {
		return domain.UserProfile{}, err
	}
	described := make([]domain.ReadingEntry, 0, len(recent))
	for _, b := range recent {
		if strings.TrimSpace(b.BookDescription) != "" {
			described = append(described, b)
		}
	}
	if len(described) == 0 {
		return domain.UserProfile{}, domain.ErrNoBooks
	}

	vibe, err := s.Generator.Complete(ctx, BuildVibePrompt(described))
	if err != nil {
		logger.Error("vibe: generation failed", "user_id", actorID, "books", len(described), "err", err)
		return domain.UserProfile{}, domain.Remote("generate vibe", err)
	}

	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now().UTC()
	}
	if err := s.Store.Update(ctx, domain.CollectionUsers, actorID, store.Record{
		domain.FieldCurrentVibe:     vibe,
		domain.FieldVibeGeneratedAt: now,
	}); err != nil {
		logger.Error("vibe: save failed", "user_id", actorID, "err", err)
		return domain.UserProfile{}, domain.Remote("save vibe", err)
	}

	u, err := s.Profiles.GetUser(ctx, actorID)
	if err != nil {
		return domain.UserProfile{}, err
	}
	if s.Hub != nil {
		s.Hub.PublishProfile(u)
	}
	return u, nil
}

// BuildVibePrompt lists the books with the first 200 characters of each
// description.
func BuildVibePrompt(books []domain.ReadingEntry) string {
	var list strings.Builder
	for i, b := range books {
		fmt.Fprintf(&list, "\n%d. %s by %s", i+1, b.Title, b.Author)
		if b.BookDescription != "" {
			desc := []rune(b.BookDescription)
			if len(desc) > vibeSummaryMaxRune {
				desc = desc[:vibeSummaryMaxRune]
			}
			fmt.Fprintf(&list, "\nSummary: %s...\n", string(desc))
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Based on these %d books that someone has read recently, write a 1-sentence poetic \"vibe\" that captures their reading personality and taste.\n", len(books))
	b.WriteString("\n")
	b.WriteString("The vibe should be:\n")
	b.WriteString("- Written in second person \"You are ... \"\n")
	b.WriteString("- Describe their reading personality/aesthetic based on the books\n")
	b.WriteString("- be specific to the stories, don't write something too vague.\n")
	b.WriteString("- NOT a list of genres or book titles\n")
	b.WriteString("- Creative and evocative\n")
	b.WriteString("- NOT contain any book titles\n")
	b.WriteString("\n\n")
	b.WriteString("Here are their recent books:\n")
	b.WriteString(list.String())
	b.WriteString("\n\n")
	b.WriteString("Generate the 1-sentence vibe now (ONLY the vibe, no other text):")
	return b.String()
}

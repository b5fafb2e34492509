package service

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"greatreads/internal/domain"
	"greatreads/internal/store"
)

const (
	searchLimit = 10
	// prefixEnd sorts after every other code point, so [q, q+prefixEnd] is a
	// prefix range.
	prefixEnd = "\uf8ff"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.]{3,30}$`)

func (s *RelationshipStore) GetUser(ctx context.Context, id string) (domain.UserProfile, error) {
	if id == "" {
		return domain.UserProfile{}, domain.NewValidationError(map[string]string{"user_id": "required"})
	}
	raw, err := s.Store.Get(ctx, domain.CollectionUsers, id)
	if err != nil {
		return domain.UserProfile{}, domain.Remote("get user", err)
	}
	return domain.DecodeUserProfile(id, raw), nil
}

// LoadProfile reads the actor's profile and publishes it.
func (s *RelationshipStore) LoadProfile(ctx context.Context, actorID string) (domain.UserProfile, error) {
	if actorID == "" {
		return domain.UserProfile{}, domain.ErrNoCurrentUser
	}
	u, err := s.GetUser(ctx, actorID)
	if err != nil {
		return domain.UserProfile{}, err
	}
	s.publishProfile(u)
	return u, nil
}

// CreateProfile writes users/{actorID} for a freshly signed-up account. The
// availability check and the write are separate calls; two sign-ups racing
// for one username can both succeed.
func (s *RelationshipStore) CreateProfile(ctx context.Context, actorID, email, username string) (domain.UserProfile, error) {
	if actorID == "" {
		return domain.UserProfile{}, domain.ErrNoCurrentUser
	}
	username = strings.TrimSpace(username)
	if !usernamePattern.MatchString(username) {
		return domain.UserProfile{}, domain.NewValidationError(map[string]string{"username": "must be 3-30 letters, digits, '_' or '.'"})
	}

	if _, err := s.Store.Get(ctx, domain.CollectionUsers, actorID); err == nil {
		return domain.UserProfile{}, domain.NewValidationError(map[string]string{"user_id": "profile already exists"})
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.UserProfile{}, domain.Remote("create profile", err)
	}

	ok, err := s.IsUsernameAvailable(ctx, username)
	if err != nil {
		return domain.UserProfile{}, err
	}
	if !ok {
		return domain.UserProfile{}, domain.ErrUsernameTaken
	}

	u := domain.UserProfile{
		ID:                     actorID,
		Username:               username,
		Email:                  strings.TrimSpace(email),
		CreatedAt:              s.now(),
		Friends:                []string{},
		SentFriendRequests:     []string{},
		ReceivedFriendRequests: []string{},
	}
	if err := s.Store.Set(ctx, domain.CollectionUsers, actorID, domain.EncodeUserProfile(u)); err != nil {
		s.logger().Error("relationships: create profile failed", "user_id", actorID, "err", err)
		return domain.UserProfile{}, domain.Remote("create profile", err)
	}
	s.logger().Info("relationships: profile created", "user_id", actorID, "username", username)
	s.publishProfile(u)
	return u, nil
}

// IsUsernameAvailable is an exact, case-sensitive match.
func (s *RelationshipStore) IsUsernameAvailable(ctx context.Context, username string) (bool, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return false, domain.NewValidationError(map[string]string{"username": "required"})
	}
	docs, err := s.Store.Query(ctx, store.From(domain.CollectionUsers).
		Where(domain.FieldUsername, store.OpEqual, username).
		Take(1))
	if err != nil {
		return false, domain.Remote("username availability", err)
	}
	return len(docs) == 0, nil
}

// EmailForUsername resolves a username to the email the auth provider signs
// in with.
func (s *RelationshipStore) EmailForUsername(ctx context.Context, username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", domain.NewValidationError(map[string]string{"username": "required"})
	}
	docs, err := s.Store.Query(ctx, store.From(domain.CollectionUsers).
		Where(domain.FieldUsername, store.OpEqual, username).
		Take(1))
	if err != nil {
		return "", domain.Remote("email for username", err)
	}
	if len(docs) == 0 {
		return "", domain.ErrNotFound
	}
	email := domain.DecodeUserProfile(docs[0].ID, docs[0].Data).Email
	if email == "" {
		return "", domain.ErrNotFound
	}
	return email, nil
}

// SearchUsers returns up to ten users whose username starts with q, in store
// order, without the actor.
func (s *RelationshipStore) SearchUsers(ctx context.Context, actorID, q string) ([]domain.UserSummary, error) {
	if actorID == "" {
		return nil, domain.ErrNoCurrentUser
	}
	q = strings.TrimSpace(q)
	out := []domain.UserSummary{}
	if q == "" {
		return out, nil
	}
	// The limit applies before the actor is dropped, so a query matching the
	// actor yields at most searchLimit-1 users.
	docs, err := s.Store.Query(ctx, store.From(domain.CollectionUsers).
		Where(domain.FieldUsername, store.OpGreaterOrEqual, q).
		Where(domain.FieldUsername, store.OpLessOrEqual, q+prefixEnd).
		Take(searchLimit))
	if err != nil {
		return nil, domain.Remote("search users", err)
	}
	for _, d := range docs {
		if d.ID == actorID {
			continue
		}
		out = append(out, domain.DecodeUserProfile(d.ID, d.Data).Summary())
	}
	return out, nil
}

func (s *RelationshipStore) FetchFriends(ctx context.Context, u domain.UserProfile) ([]domain.UserProfile, error) {
	return s.fetchProfiles(ctx, u.Friends)
}

func (s *RelationshipStore) FetchSentRequests(ctx context.Context, u domain.UserProfile) ([]domain.UserProfile, error) {
	return s.fetchProfiles(ctx, u.SentFriendRequests)
}

func (s *RelationshipStore) FetchReceivedRequests(ctx context.Context, u domain.UserProfile) ([]domain.UserProfile, error) {
	return s.fetchProfiles(ctx, u.ReceivedFriendRequests)
}

// Overview resolves all three sets of the actor into summaries.
func (s *RelationshipStore) Overview(ctx context.Context, actorID string) (domain.FriendsOverview, error) {
	if actorID == "" {
		return domain.FriendsOverview{}, domain.ErrNoCurrentUser
	}
	u, err := s.GetUser(ctx, actorID)
	if err != nil {
		return domain.FriendsOverview{}, err
	}
	friends, err := s.FetchFriends(ctx, u)
	if err != nil {
		return domain.FriendsOverview{}, err
	}
	incoming, err := s.FetchReceivedRequests(ctx, u)
	if err != nil {
		return domain.FriendsOverview{}, err
	}
	outgoing, err := s.FetchSentRequests(ctx, u)
	if err != nil {
		return domain.FriendsOverview{}, err
	}
	return domain.FriendsOverview{
		Friends:  summaries(friends),
		Incoming: summaries(incoming),
		Outgoing: summaries(outgoing),
	}, nil
}

// fetchProfiles resolves ids in batches of store.MaxInValues. Ids without a
// record are skipped; the result follows the order of ids.
func (s *RelationshipStore) fetchProfiles(ctx context.Context, ids []string) ([]domain.UserProfile, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return []domain.UserProfile{}, nil
	}
	byID := make(map[string]domain.UserProfile, len(ids))
	for _, batch := range store.Chunk(ids, store.MaxInValues) {
		docs, err := s.Store.Query(ctx, store.From(domain.CollectionUsers).
			Where(store.DocumentID, store.OpIn, batch))
		if err != nil {
			return nil, domain.Remote("fetch profiles", err)
		}
		for _, d := range docs {
			byID[d.ID] = domain.DecodeUserProfile(d.ID, d.Data)
		}
	}
	out := make([]domain.UserProfile, 0, len(byID))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func summaries(users []domain.UserProfile) []domain.UserSummary {
	out := make([]domain.UserSummary, 0, len(users))
	for _, u := range users {
		out = append(out, u.Summary())
	}
	return out
}

// uniqueIDs drops empty and repeated ids, keeping first occurrences.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

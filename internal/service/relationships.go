package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"greatreads/internal/domain"
	"greatreads/internal/store"
)

// Publisher receives refreshed state after every relationship change.
type Publisher interface {
	PublishProfile(u domain.UserProfile)
	PublishFriends(userID string, friends []domain.UserProfile)
}

// RelationshipStore owns the friend-request lifecycle. Every transition is
// a sequence of single-document array writes on users/{id}; there is no
// multi-document transaction, so a failure part way leaves the pair
// inconsistent until Reconcile runs or the operation is retried.
type RelationshipStore struct {
	Store  store.Store
	Hub    Publisher
	Logger *slog.Logger
	Now    func() time.Time
}

type arrayWrite struct {
	userID string
	field  string
	value  string
	add    bool
}

func (s *RelationshipStore) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *RelationshipStore) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func checkPair(actorID, otherID string) error {
	if actorID == "" {
		return domain.ErrNoCurrentUser
	}
	if otherID == "" {
		return domain.NewValidationError(map[string]string{"user_id": "required"})
	}
	if actorID == otherID {
		return domain.NewValidationError(map[string]string{"user_id": "cannot target yourself"})
	}
	return nil
}

// SendRequest records a pending request from actor to target. Sending to a
// user who already asked the actor accepts their request instead.
func (s *RelationshipStore) SendRequest(ctx context.Context, actorID, targetID string) (domain.UserProfile, error) {
	if err := checkPair(actorID, targetID); err != nil {
		return domain.UserProfile{}, err
	}
	actor, target, err := s.loadPair(ctx, actorID, targetID)
	if err != nil {
		return domain.UserProfile{}, err
	}
	if actor.HasFriend(targetID) && target.HasFriend(actorID) {
		return domain.UserProfile{}, domain.ErrFriendshipExists
	}
	if actor.HasReceivedFrom(targetID) || target.HasSentTo(actorID) {
		return s.AcceptRequest(ctx, actorID, targetID)
	}

	if err := s.apply(ctx, "send request", []arrayWrite{
		{userID: actorID, field: domain.FieldSentFriendRequests, value: targetID, add: true},
		{userID: targetID, field: domain.FieldReceivedFriendRequests, value: actorID, add: true},
	}, false); err != nil {
		return domain.UserProfile{}, err
	}
	return s.refresh(ctx, actorID, false)
}

// AcceptRequest turns the request from requester into a friendship. With no
// pending request it changes nothing and returns the current profile.
func (s *RelationshipStore) AcceptRequest(ctx context.Context, actorID, requesterID string) (domain.UserProfile, error) {
	if err := checkPair(actorID, requesterID); err != nil {
		return domain.UserProfile{}, err
	}
	actor, requester, err := s.loadPair(ctx, actorID, requesterID)
	if err != nil {
		return domain.UserProfile{}, err
	}
	if !actor.HasReceivedFrom(requesterID) && !requester.HasSentTo(actorID) {
		s.logger().Debug("relationships: accept without pending request", "user_id", actorID, "other_id", requesterID)
		return s.refresh(ctx, actorID, false)
	}

	if err := s.apply(ctx, "accept request", []arrayWrite{
		{userID: actorID, field: domain.FieldReceivedFriendRequests, value: requesterID},
		{userID: requesterID, field: domain.FieldSentFriendRequests, value: actorID},
		{userID: actorID, field: domain.FieldFriends, value: requesterID, add: true},
		{userID: requesterID, field: domain.FieldFriends, value: actorID, add: true},
	}, false); err != nil {
		return domain.UserProfile{}, err
	}
	return s.refresh(ctx, actorID, true)
}

func (s *RelationshipStore) DeclineRequest(ctx context.Context, actorID, requesterID string) (domain.UserProfile, error) {
	if err := checkPair(actorID, requesterID); err != nil {
		return domain.UserProfile{}, err
	}
	if err := s.apply(ctx, "decline request", []arrayWrite{
		{userID: actorID, field: domain.FieldReceivedFriendRequests, value: requesterID},
		{userID: requesterID, field: domain.FieldSentFriendRequests, value: actorID},
	}, true); err != nil {
		return domain.UserProfile{}, err
	}
	return s.refresh(ctx, actorID, false)
}

func (s *RelationshipStore) CancelRequest(ctx context.Context, actorID, targetID string) (domain.UserProfile, error) {
	if err := checkPair(actorID, targetID); err != nil {
		return domain.UserProfile{}, err
	}
	if err := s.apply(ctx, "cancel request", []arrayWrite{
		{userID: actorID, field: domain.FieldSentFriendRequests, value: targetID},
		{userID: targetID, field: domain.FieldReceivedFriendRequests, value: actorID},
	}, true); err != nil {
		return domain.UserProfile{}, err
	}
	return s.refresh(ctx, actorID, false)
}

func (s *RelationshipStore) RemoveFriend(ctx context.Context, actorID, friendID string) (domain.UserProfile, error) {
	if err := checkPair(actorID, friendID); err != nil {
		return domain.UserProfile{}, err
	}
	if err := s.apply(ctx, "remove friend", []arrayWrite{
		{userID: actorID, field: domain.FieldFriends, value: friendID},
		{userID: friendID, field: domain.FieldFriends, value: actorID},
	}, true); err != nil {
		return domain.UserProfile{}, err
	}
	return s.refresh(ctx, actorID, true)
}

// Relation classifies the pair from both records, reporting
// RelationInconsistent when they disagree.
func (s *RelationshipStore) Relation(ctx context.Context, actorID, otherID string) (domain.RelationState, error) {
	if err := checkPair(actorID, otherID); err != nil {
		return "", err
	}
	a, b, err := s.loadPair(ctx, actorID, otherID)
	if err != nil {
		return "", err
	}
	return domain.ClassifyRelation(a, b), nil
}

// apply issues the writes in order and stops at the first failure. Removes
// may tolerate a missing record since there is nothing left to remove.
func (s *RelationshipStore) apply(ctx context.Context, op string, writes []arrayWrite, tolerateMissing bool) error {
	for _, w := range writes {
		var err error
		if w.add {
			err = s.Store.ArrayUnion(ctx, domain.CollectionUsers, w.userID, w.field, w.value)
		} else {
			err = s.Store.ArrayRemove(ctx, domain.CollectionUsers, w.userID, w.field, w.value)
		}
		if err == nil {
			continue
		}
		if tolerateMissing && !w.add && errors.Is(err, domain.ErrNotFound) {
			continue
		}
		s.logger().Error("relationships: write failed", "op", op, "user_id", w.userID, "field", w.field, "err", err)
		return domain.Remote(op, err)
	}
	return nil
}

func (s *RelationshipStore) loadPair(ctx context.Context, aID, bID string) (domain.UserProfile, domain.UserProfile, error) {
	a, err := s.GetUser(ctx, aID)
	if err != nil {
		return domain.UserProfile{}, domain.UserProfile{}, err
	}
	b, err := s.GetUser(ctx, bID)
	if err != nil {
		return domain.UserProfile{}, domain.UserProfile{}, err
	}
	return a, b, nil
}

// refresh re-reads the actor and publishes it. The friends list is
// republished best effort after friendship changes.
func (s *RelationshipStore) refresh(ctx context.Context, actorID string, withFriends bool) (domain.UserProfile, error) {
	u, err := s.GetUser(ctx, actorID)
	if err != nil {
		s.logger().Error("relationships: refresh failed", "user_id", actorID, "err", err)
		return domain.UserProfile{}, err
	}
	s.publishProfile(u)
	if !withFriends {
		return u, nil
	}
	friends, err := s.FetchFriends(ctx, u)
	if err != nil {
		s.logger().Warn("relationships: friends refresh failed", "user_id", actorID, "err", err)
		return u, nil
	}
	if s.Hub != nil {
		s.Hub.PublishFriends(actorID, friends)
	}
	return u, nil
}

func (s *RelationshipStore) publishProfile(u domain.UserProfile) {
	if s.Hub != nil {
		s.Hub.PublishProfile(u)
	}
}

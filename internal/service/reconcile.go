package service

import (
	"context"

	"greatreads/internal/domain"
)

// Reconcile re-converges the two user records to one consistent state and
// returns it. Only memberships that disagree with the target are written,
// so running it on a consistent pair issues no writes and running it twice
// is the same as running it once.
func (s *RelationshipStore) Reconcile(ctx context.Context, actorID, otherID string) (domain.RelationState, error) {
	if err := checkPair(actorID, otherID); err != nil {
		return "", err
	}
	a, b, err := s.loadPair(ctx, actorID, otherID)
	if err != nil {
		return "", err
	}

	target := domain.ReconcileTarget(a, b)
	var (
		writes         []arrayWrite
		friendsChanged bool
	)
	for _, m := range domain.MembershipsFor(a.ID, b.ID, target) {
		if m.Holds(a, b) {
			continue
		}
		writes = append(writes, arrayWrite{userID: m.UserID, field: m.Field, value: m.Value, add: m.Present})
		friendsChanged = friendsChanged || m.Field == domain.FieldFriends
	}
	if len(writes) == 0 {
		return target, nil
	}

	s.logger().Info("relationships: reconciling pair",
		"user_id", actorID,
		"other_id", otherID,
		"from", domain.ClassifyRelation(a, b),
		"to", target,
		"writes", len(writes),
	)
	// Removals first so an interrupted repair never widens the inconsistency.
	ordered := make([]arrayWrite, 0, len(writes))
	for _, w := range writes {
		if !w.add {
			ordered = append(ordered, w)
		}
	}
	for _, w := range writes {
		if w.add {
			ordered = append(ordered, w)
		}
	}
	if err := s.apply(ctx, "reconcile", ordered, false); err != nil {
		return "", err
	}
	if _, err := s.refresh(ctx, actorID, friendsChanged); err != nil {
		return "", err
	}
	return target, nil
}

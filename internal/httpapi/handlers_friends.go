package httpapi

import (
	"context"
	"net/http"
	"strings"

	"greatreads/internal/domain"
)

func (a *api) handleFriendsList(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	out, err := a.rels.Overview(r.Context(), u.UserID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, out)
}

type relationResponse struct {
	UserID string               `json:"user_id"`
	State  domain.RelationState `json:"state"`
}

func (a *api) handleFriendsState(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	state, err := a.rels.Relation(r.Context(), u.UserID, id)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, relationResponse{UserID: id, State: state})
}

func (a *api) handleFriendsReconcile(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	state, err := a.rels.Reconcile(r.Context(), u.UserID, id)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, relationResponse{UserID: id, State: state})
}

type transition func(ctx context.Context, actorID, otherID string) (domain.UserProfile, error)

// friendTransition runs one relationship operation and answers with the
// actor's refreshed profile.
func (a *api) friendTransition(status int, op transition) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := CurrentUser(r.Context())
		if !ok {
			WriteDomainError(w, domain.ErrUnauthorized)
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		profile, err := op(r.Context(), u.UserID, id)
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		WriteJSON(w, status, profile)
	}
}

func (a *api) handleFriendsSend(w http.ResponseWriter, r *http.Request) {
	a.friendTransition(http.StatusCreated, a.rels.SendRequest)(w, r)
}

func (a *api) handleFriendsAccept(w http.ResponseWriter, r *http.Request) {
	a.friendTransition(http.StatusOK, a.rels.AcceptRequest)(w, r)
}

func (a *api) handleFriendsDecline(w http.ResponseWriter, r *http.Request) {
	a.friendTransition(http.StatusOK, a.rels.DeclineRequest)(w, r)
}

func (a *api) handleFriendsCancel(w http.ResponseWriter, r *http.Request) {
	a.friendTransition(http.StatusOK, a.rels.CancelRequest)(w, r)
}

func (a *api) handleFriendsRemove(w http.ResponseWriter, r *http.Request) {
	a.friendTransition(http.StatusOK, a.rels.RemoveFriend)(w, r)
}

func pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		WriteDomainError(w, domain.NewValidationError(map[string]string{"id": "required"}))
		return "", false
	}
	return id, true
}

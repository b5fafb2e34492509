package httpapi

import (
	"net/http"

	"greatreads/internal/domain"
)

type feedItem struct {
	Book    domain.ReadingEntry `json:"book"`
	Owner   *domain.UserSummary `json:"owner"`
	TimeAgo string              `json:"time_ago"`
}

func (a *api) handleFeed(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	me, err := a.rels.GetUser(r.Context(), u.UserID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	entries, err := a.feed.FetchFriendActivity(r.Context(), me.Friends)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	items := make([]feedItem, 0, len(entries))
	for _, e := range entries {
		item := feedItem{Book: e.Entry, TimeAgo: e.TimeAgo}
		if e.Owner != nil {
			s := e.Owner.Summary()
			item.Owner = &s
		}
		items = append(items, item)
	}
	WriteJSON(w, http.StatusOK, struct {
		Entries []feedItem `json:"entries"`
	}{Entries: items})
}

func (a *api) handleVibeGenerate(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	profile, err := a.vibeSvc.Generate(r.Context(), u.UserID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, profile)
}

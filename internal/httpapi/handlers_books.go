package httpapi

import (
	"net/http"
	"strings"

	"greatreads/internal/booksearch"
	"greatreads/internal/domain"
)

type booksResponse struct {
	Books []domain.ReadingEntry `json:"books"`
}

// handleBooksList lists the actor's shelf, or another user's with ?user_id=.
func (a *api) handleBooksList(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	owner := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if owner == "" {
		owner = u.UserID
	}
	books, err := a.booksSvc.ListUserBooks(r.Context(), owner)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	if books == nil {
		books = []domain.ReadingEntry{}
	}
	WriteJSON(w, http.StatusOK, booksResponse{Books: books})
}

func (a *api) handleBooksCreate(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	var req domain.NewReadingEntry
	if err := decodeJSONAllowUnknownFields(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}

	entry, err := a.booksSvc.AddBook(r.Context(), u.UserID, req)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, entry)
}

func (a *api) handleBooksDelete(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := a.booksSvc.DeleteBook(r.Context(), u.UserID, id); err != nil {
		WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) handleBooksExamples(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	n, err := a.booksSvc.AddExampleBooksIfNeeded(r.Context(), u.UserID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, struct {
		Added int `json:"added"`
	}{Added: n})
}

func (a *api) handleBooksSearch(w http.ResponseWriter, r *http.Request) {
	results, err := a.bookSearch.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, struct {
		Results []booksearch.Candidate `json:"results"`
	}{Results: results})
}

func (a *api) handleBooksSearchGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	c, err := a.bookSearch.Get(r.Context(), id)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, c)
}

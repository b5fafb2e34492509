package httpapi

import (
	"net/http"
	"strings"

	"greatreads/internal/domain"
)

type createProfileRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

func (a *api) handleUsersMeCreate(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	var req createProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_json", "invalid json")
		return
	}

	email := u.Email
	if email == "" {
		email = strings.TrimSpace(strings.ToLower(req.Email))
	}
	profile, err := a.rels.CreateProfile(r.Context(), u.UserID, email, strings.TrimSpace(req.Username))
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, profile)
}

func (a *api) handleUsersMe(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	profile, err := a.rels.LoadProfile(r.Context(), u.UserID)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, profile)
}

type userResponse struct {
	domain.UserSummary
	State domain.RelationState `json:"state"`
}

func (a *api) handleUsersGet(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	other, err := a.rels.GetUser(r.Context(), id)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	state := domain.RelationNone
	if id != u.UserID {
		state, err = a.rels.Relation(r.Context(), u.UserID, id)
		if err != nil {
			WriteDomainError(w, err)
			return
		}
	}
	WriteJSON(w, http.StatusOK, userResponse{UserSummary: other.Summary(), State: state})
}

func (a *api) handleUsersSearch(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}

	out, err := a.rels.SearchUsers(r.Context(), u.UserID, r.URL.Query().Get("q"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, struct {
		Users []domain.UserSummary `json:"users"`
	}{Users: out})
}

func (a *api) handleUsernameAvailable(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if username == "" {
		WriteDomainError(w, domain.NewValidationError(map[string]string{"username": "required"}))
		return
	}

	available, err := a.rels.IsUsernameAvailable(r.Context(), username)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, struct {
		Username  string `json:"username"`
		Available bool   `json:"available"`
	}{Username: username, Available: available})
}

func (a *api) handleEmailForUsername(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if username == "" {
		WriteDomainError(w, domain.NewValidationError(map[string]string{"username": "required"}))
		return
	}

	email, err := a.rels.EmailForUsername(r.Context(), username)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, struct {
		Email string `json:"email"`
	}{Email: email})
}

func (a *api) handleUsersMeStream(w http.ResponseWriter, r *http.Request) {
	u, ok := CurrentUser(r.Context())
	if !ok {
		WriteDomainError(w, domain.ErrUnauthorized)
		return
	}
	a.hub.ServeStream(w, r, u.UserID)
}

package live

import (
	"log/slog"
	"sync"

	"greatreads/internal/domain"
)

const defaultBuffer = 16

type Kind string

const (
	KindProfile Kind = "profile"
	KindFriends Kind = "friends"
)

// Update is one message fanned out to a user's subscribers.
type Update struct {
	Kind    Kind                 `json:"kind"`
	UserID  string               `json:"user_id"`
	Profile *domain.UserProfile  `json:"profile,omitempty"`
	Friends []domain.UserSummary `json:"friends,omitempty"`
}

// Hub holds the last published state per user and delivers new state to
// subscribers. Slow subscribers miss updates rather than block publishers.
type Hub struct {
	Logger *slog.Logger
	Buffer int

	mu      sync.RWMutex
	subs map[string]map[chan Update]struct{}
	// latest and friends are never evicted; they hold one entry per user
	// published since start.
	latest  map[string]domain.UserProfile
	friends map[string][]domain.UserSummary
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{Logger: logger}
}

func (h *Hub) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *Hub) init() {
	if h.subs == nil {
		h.subs = make(map[string]map[chan Update]struct{})
		h.latest = make(map[string]domain.UserProfile)
		h.friends = make(map[string][]domain.UserSummary)
	}
}

func (h *Hub) PublishProfile(u domain.UserProfile) {
	if u.ID == "" {
		return
	}
	h.mu.Lock()
	h.init()
	h.latest[u.ID] = u
	h.mu.Unlock()

	p := u
	h.deliver(u.ID, Update{Kind: KindProfile, UserID: u.ID, Profile: &p})
}

func (h *Hub) PublishFriends(userID string, friends []domain.UserProfile) {
	if userID == "" {
		return
	}
	summaries := make([]domain.UserSummary, 0, len(friends))
	for _, f := range friends {
		summaries = append(summaries, f.Summary())
	}

	h.mu.Lock()
	h.init()
	h.friends[userID] = summaries
	h.mu.Unlock()

	h.deliver(userID, Update{Kind: KindFriends, UserID: userID, Friends: summaries})
}

func (h *Hub) deliver(userID string, upd Update) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[userID] {
		select {
		case ch <- upd:
		default:
			h.logger().Warn("live: dropped update for slow subscriber", "user_id", userID, "kind", upd.Kind)
		}
	}
}

// Subscribe registers a listener for userID. The returned cancel func closes
// the channel and may be called more than once.
func (h *Hub) Subscribe(userID string) (<-chan Update, func()) {
	size := h.Buffer
	if size <= 0 {
		size = defaultBuffer
	}
	ch := make(chan Update, size)

	h.mu.Lock()
	h.init()
	m, ok := h.subs[userID]
	if !ok {
		m = make(map[chan Update]struct{})
		h.subs[userID] = m
	}
	m[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if m, ok := h.subs[userID]; ok {
				delete(m, ch)
				if len(m) == 0 {
					delete(h.subs, userID)
				}
			}
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (h *Hub) Latest(userID string) (domain.UserProfile, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	u, ok := h.latest[userID]
	return u, ok
}

func (h *Hub) LatestFriends(userID string) ([]domain.UserSummary, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	f, ok := h.friends[userID]
	return f, ok
}

func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

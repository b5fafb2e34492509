package live

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"greatreads/internal/domain"
)

func TestPublishKeepsLatestAndFansOut(t *testing.T) {
	h := NewHub(nil)
	a, cancelA := h.Subscribe("u1")
	defer cancelA()
	b, cancelB := h.Subscribe("u1")
	defer cancelB()
	other, cancelOther := h.Subscribe("u2")
	defer cancelOther()

	h.PublishProfile(domain.UserProfile{ID: "u1", Username: "ada"})

	for _, ch := range []<-chan Update{a, b} {
		select {
		case upd := <-ch:
			assert.Equal(t, KindProfile, upd.Kind)
			require.NotNil(t, upd.Profile)
			assert.Equal(t, "ada", upd.Profile.Username)
		default:
			t.Fatalf("expected an update")
		}
	}
	select {
	case upd := <-other:
		t.Fatalf("u2 must not see u1 updates: %+v", upd)
	default:
	}

	got, ok := h.Latest("u1")
	require.True(t, ok)
	assert.Equal(t, "ada", got.Username)
	_, ok = h.Latest("u2")
	assert.False(t, ok)
}

func TestPublishFriendsSummaries(t *testing.T) {
	h := NewHub(nil)
	h.PublishFriends("u1", []domain.UserProfile{{ID: "u2", Username: "bo", Email: "bo@example.com"}})

	f, ok := h.LatestFriends("u1")
	require.True(t, ok)
	require.Len(t, f, 1)
	assert.Equal(t, domain.UserSummary{ID: "u2", Username: "bo"}, f[0])
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	h := &Hub{Buffer: 1}
	ch, cancel := h.Subscribe("u1")
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			h.PublishProfile(domain.UserProfile{ID: "u1", Username: strings.Repeat("x", i+1)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publish blocked on a full subscriber")
	}

	upd := <-ch
	assert.Equal(t, "x", upd.Profile.Username)
	latest, _ := h.Latest("u1")
	assert.Equal(t, "xxxxx", latest.Username)
}

func TestCancelIsIdempotent(t *testing.T) {
	h := NewHub(nil)
	ch, cancel := h.Subscribe("u1")
	assert.Equal(t, 1, h.Subscribers("u1"))
	cancel()
	cancel()
	assert.Equal(t, 0, h.Subscribers("u1"))
	_, open := <-ch
	assert.False(t, open)

	h.PublishProfile(domain.UserProfile{ID: "u1"})
}

func TestLatestOutlivesSubscribers(t *testing.T) {
	h := NewHub(nil)
	_, cancel := h.Subscribe("u1")
	h.PublishProfile(domain.UserProfile{ID: "u1", Username: "ada"})
	h.PublishFriends("u1", []domain.UserProfile{{ID: "u2", Username: "bo"}})
	cancel()

	assert.Equal(t, 0, h.Subscribers("u1"))
	got, ok := h.Latest("u1")
	require.True(t, ok)
	assert.Equal(t, "ada", got.Username)
	friends, ok := h.LatestFriends("u1")
	require.True(t, ok)
	require.Len(t, friends, 1)
	assert.Equal(t, "bo", friends[0].Username)
}

func TestServeStream(t *testing.T) {
	h := NewHub(nil)
	h.PublishProfile(domain.UserProfile{ID: "u1", Username: "ada"})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeStream(w, r, "u1")
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var snap Update
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, KindProfile, snap.Kind)
	require.NotNil(t, snap.Profile)
	assert.Equal(t, "ada", snap.Profile.Username)

	h.PublishProfile(domain.UserProfile{ID: "u1", Username: "ada", CurrentVibe: "quiet"})

	var next Update
	require.NoError(t, conn.ReadJSON(&next))
	require.NotNil(t, next.Profile)
	assert.Equal(t, "quiet", next.Profile.CurrentVibe)
}

package live

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeStream upgrades the request and streams userID's updates as JSON
// until the client goes away. The current snapshot, if any, is sent first.
func (h *Hub) ServeStream(w http.ResponseWriter, r *http.Request, userID string) {
	updates, cancel := h.Subscribe(userID)
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger().Warn("live: upgrade failed", "err", err, "user_id", userID)
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.logger().Debug("live: read ended", "err", err, "user_id", userID)
				}
				return
			}
		}
	}()

	if u, ok := h.Latest(userID); ok {
		p := u
		if !h.write(conn, Update{Kind: KindProfile, UserID: userID, Profile: &p}) {
			return
		}
	}
	if f, ok := h.LatestFriends(userID); ok {
		if !h.write(conn, Update{Kind: KindFriends, UserID: userID, Friends: f}) {
			return
		}
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case upd, ok := <-updates:
			if !ok {
				return
			}
			if !h.write(conn, upd) {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		}
	}
}

func (h *Hub) write(conn *websocket.Conn, upd Update) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(upd); err != nil {
		h.logger().Debug("live: write failed", "err", err, "user_id", upd.UserID)
		return false
	}
	return true
}

package httpapi

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"greatreads/internal/auth"
	"greatreads/internal/domain"
)

type authCtxKey int

const authIdentityKey authCtxKey = iota

func (a *api) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			WriteDomainError(w, domain.ErrUnauthorized)
			return
		}

		id, err := a.verifier.Verify(r.Context(), token)
		if err != nil {
			a.logger.Info("auth: token rejected", "err", err, "ip", clientIP(r, a.trustProxy))
			WriteDomainError(w, domain.ErrUnauthorized)
			return
		}
		if id.UserID == "" {
			WriteDomainError(w, domain.ErrUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), authIdentityKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// bearerToken reads the Authorization header. Browsers cannot set headers on
// websocket handshakes, so upgrades may pass access_token in the query.
func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	if websocket.IsWebSocketUpgrade(r) {
		return strings.TrimSpace(r.URL.Query().Get("access_token"))
	}
	return ""
}

func CurrentUser(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(authIdentityKey).(auth.Identity)
	return id, ok
}

// clientIP reads X-Forwarded-For only when trustProxy is set; otherwise a
// client could pick its own rate limit key.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

package httpapi

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"greatreads/internal/auth"
	"greatreads/internal/booksearch"
	"greatreads/internal/live"
	"greatreads/internal/ratelimit"
	"greatreads/internal/service"
)

type bookSearcher interface {
	Search(ctx context.Context, query string) ([]booksearch.Candidate, error)
	Get(ctx context.Context, id string) (booksearch.Candidate, error)
}

type RouterOpts struct {
	Logger *slog.Logger
	IsProd bool

	StorePing func(context.Context) error

	Verifier      auth.Verifier
	Relationships *service.RelationshipStore
	Books         *service.BooksService
	BookSearch    bookSearcher
	Vibe          *service.VibeService
	Hub           *live.Hub

	// Feed is shared by all requests; its owner cache lives as long as the
	// process.
	Feed *service.FeedAggregator

	Limiter ratelimit.Limiter
	// TrustProxy keys rate limiting on the first X-Forwarded-For hop. Only
	// set it behind a proxy that overwrites that header.
	TrustProxy bool

	Registry    *prometheus.Registry
	MetricsUser string
	MetricsPass string
}

func NewRouter(opts RouterOpts) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	api := &api{
		logger:     logger,
		isProd:     opts.IsProd,
		storePing:  opts.StorePing,
		verifier:   opts.Verifier,
		rels:       opts.Relationships,
		booksSvc:   opts.Books,
		bookSearch: opts.BookSearch,
		vibeSvc:    opts.Vibe,
		hub:        opts.Hub,
		feed:       opts.Feed,
		trustProxy: opts.TrustProxy,
	}

	publicMux := http.NewServeMux()
	apiMux := http.NewServeMux()

	publicMux.HandleFunc("GET /healthz", api.handleHealthz)
	if opts.Registry != nil && opts.MetricsUser != "" {
		metrics := promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{})
		publicMux.Handle("GET /metrics", basicAuth(opts.MetricsUser, opts.MetricsPass, metrics))
	}

	if api.verifier == nil || api.rels == nil {
		apiMux.HandleFunc("GET /v1/users/me", handleNotImplemented)
	} else {
		apiMux.HandleFunc("GET /v1/users/username-available", api.handleUsernameAvailable)
		apiMux.HandleFunc("GET /v1/users/email", api.handleEmailForUsername)
		apiMux.HandleFunc("POST /v1/users/me", api.requireAuth(api.handleUsersMeCreate))
		apiMux.HandleFunc("GET /v1/users/me", api.requireAuth(api.handleUsersMe))
		apiMux.HandleFunc("GET /v1/users/search", api.requireAuth(api.handleUsersSearch))
		apiMux.HandleFunc("GET /v1/users/{id}", api.requireAuth(api.handleUsersGet))
		if api.hub != nil {
			apiMux.HandleFunc("GET /v1/users/me/stream", api.requireAuth(api.handleUsersMeStream))
		}

		apiMux.HandleFunc("GET /v1/friends", api.requireAuth(api.handleFriendsList))
		apiMux.HandleFunc("GET /v1/friends/{id}/state", api.requireAuth(api.handleFriendsState))
		apiMux.HandleFunc("POST /v1/friends/requests/{id}", api.requireAuth(api.handleFriendsSend))
		apiMux.HandleFunc("POST /v1/friends/requests/{id}/accept", api.requireAuth(api.handleFriendsAccept))
		apiMux.HandleFunc("POST /v1/friends/requests/{id}/decline", api.requireAuth(api.handleFriendsDecline))
		apiMux.HandleFunc("POST /v1/friends/requests/{id}/cancel", api.requireAuth(api.handleFriendsCancel))
		apiMux.HandleFunc("DELETE /v1/friends/{id}", api.requireAuth(api.handleFriendsRemove))
		apiMux.HandleFunc("POST /v1/friends/reconcile/{id}", api.requireAuth(api.handleFriendsReconcile))

		if api.feed != nil {
			apiMux.HandleFunc("GET /v1/feed", api.requireAuth(api.handleFeed))
		}

		if api.booksSvc != nil {
			apiMux.HandleFunc("GET /v1/books", api.requireAuth(api.handleBooksList))
			apiMux.HandleFunc("POST /v1/books", api.requireAuth(api.handleBooksCreate))
			apiMux.HandleFunc("DELETE /v1/books/{id}", api.requireAuth(api.handleBooksDelete))
			apiMux.HandleFunc("POST /v1/books/examples", api.requireAuth(api.handleBooksExamples))
		}
		if api.bookSearch != nil {
			apiMux.HandleFunc("GET /v1/books/search", api.requireAuth(api.handleBooksSearch))
			apiMux.HandleFunc("GET /v1/books/search/{id}", api.requireAuth(api.handleBooksSearchGet))
		}
		if api.vibeSvc != nil {
			apiMux.HandleFunc("POST /v1/vibe", api.requireAuth(api.handleVibeGenerate))
		}
	}

	apiHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, pattern := apiMux.Handler(r); pattern == "" {
			handleV1NotFound(w, r)
			return
		}
		apiMux.ServeHTTP(w, r)
	})

	root := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/v1/") || r.URL.Path == "/v1" {
			apiHandler.ServeHTTP(w, r)
			return
		}
		publicMux.ServeHTTP(w, r)
	})

	var h http.Handler = root
	h = RateLimit(opts.Limiter, opts.TrustProxy, logger)(h)
	if opts.Registry != nil {
		h = Metrics(NewHTTPMetrics(opts.Registry))(h)
	}
	h = RequestLogger(logger)(h)
	h = RequestID()(h)
	h = Recoverer(logger, opts.IsProd)(h)
	return h
}

func handleNotImplemented(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, http.StatusNotImplemented, "not_implemented", "not implemented")
}

func handleV1NotFound(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, http.StatusNotFound, "not_found", "not found")
}

func basicAuth(user, pass string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 ||
			subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="metrics"`)
			WriteError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type api struct {
	logger *slog.Logger
	isProd bool

	storePing func(context.Context) error

	verifier   auth.Verifier
	rels       *service.RelationshipStore
	booksSvc   *service.BooksService
	bookSearch bookSearcher
	vibeSvc    *service.VibeService
	hub        *live.Hub
	feed       *service.FeedAggregator
	trustProxy bool
}

func (a *api) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if a.storePing != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
		defer cancel()
		if err := a.storePing(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("store down"))
			return
		}
	}

	_, _ = w.Write([]byte("ok"))
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"greatreads/internal/auth"
	"greatreads/internal/booksearch"
	"greatreads/internal/config"
	"greatreads/internal/httpapi"
	"greatreads/internal/live"
	"greatreads/internal/ratelimit"
	"greatreads/internal/service"
	"greatreads/internal/store"
	"greatreads/internal/store/firestore"
	"greatreads/internal/store/memory"
	"greatreads/internal/store/postgres"
	"greatreads/internal/textgen"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	var app *firebase.App
	if cfg.NeedsFirebase() {
		a, err := firestore.OpenApp(ctx, firestore.AppConfig{
			ProjectID:       cfg.FirebaseProjectID,
			CredentialsJSON: cfg.FirebaseCredentialsJSON,
			CredentialsFile: cfg.FirebaseCredentialsFile,
		})
		if err != nil {
			return err
		}
		app = a
	}

	docs, storePing, closeStore, err := openStore(ctx, cfg, app)
	if err != nil {
		return err
	}
	defer closeStore()

	verifier, err := newVerifier(ctx, cfg, app)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	feedMetrics := service.NewFeedMetrics(reg)

	hub := live.NewHub(logger)
	rels := &service.RelationshipStore{Store: docs, Hub: hub, Logger: logger}
	books := &service.BooksService{Store: docs, Logger: logger}

	search, err := booksearch.NewClient(ctx, cfg.BooksAPIKey)
	if err != nil {
		return err
	}
	search.Logger = logger

	var vibe *service.VibeService
	if cfg.VibeAPIKey != "" {
		gen, err := textgen.NewClient(cfg.VibeAPIKey, cfg.VibeModel)
		if err != nil {
			return err
		}
		vibe = &service.VibeService{
			Books:     books,
			Store:     docs,
			Profiles:  rels,
			Generator: gen,
			Hub:       hub,
			Logger:    logger,
		}
	} else {
		logger.Info("vibe generation disabled", "reason", "APP_VIBE_API_KEY not set")
	}

	limiter, err := newLimiter(ctx, cfg, logger)
	if err != nil {
		return err
	}

	router := httpapi.NewRouter(httpapi.RouterOpts{
		Logger:        logger,
		IsProd:        cfg.IsProd(),
		StorePing:     storePing,
		Verifier:      verifier,
		Relationships: rels,
		Books:         books,
		BookSearch:    search,
		Vibe:          vibe,
		Hub:           hub,
		Feed:          &service.FeedAggregator{Books: docs, Profiles: rels, Logger: logger, Metrics: feedMetrics},
		Limiter:       limiter,
		TrustProxy:    cfg.TrustProxy,
		Registry:      reg,
		MetricsUser:   cfg.MetricsUser,
		MetricsPass:   cfg.MetricsPass,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "env", cfg.Env, "addr", cfg.Addr, "store", cfg.Store, "auth", cfg.AuthProvider)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func openStore(ctx context.Context, cfg config.Config, app *firebase.App) (store.Store, func(context.Context) error, func(), error) {
	switch cfg.Store {
	case config.StorePostgres:
		pool, err := postgres.Open(ctx, cfg.DBDSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("db open: %w", err)
		}
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("db schema: %w", err)
		}
		return postgres.NewDocumentsStore(pool), pool.Ping, pool.Close, nil
	case config.StoreFirestore:
		fs, err := firestore.Open(ctx, app)
		if err != nil {
			return nil, nil, nil, err
		}
		return fs, nil, func() { _ = fs.Close() }, nil
	default:
		return memory.New(), nil, func() {}, nil
	}
}

func newVerifier(ctx context.Context, cfg config.Config, app *firebase.App) (auth.Verifier, error) {
	switch cfg.AuthProvider {
	case config.AuthFirebase:
		return auth.NewFirebaseVerifier(ctx, app)
	case config.AuthGoogle:
		return auth.NewGoogleVerifier(cfg.GoogleClientID)
	case config.AuthApple:
		return auth.NewAppleVerifier(cfg.AppleServiceID)
	default:
		slog.Warn("auth: dev verifier trusts bearer tokens as user ids")
		return auth.DevVerifier{}, nil
	}
}

func newLimiter(ctx context.Context, cfg config.Config, logger *slog.Logger) (ratelimit.Limiter, error) {
	if cfg.RedisURL != "" {
		client, err := ratelimit.Open(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		go func() {
			<-ctx.Done()
			_ = client.Close()
		}()
		l := ratelimit.NewRedis(client, cfg.RateLimitBurst, time.Duration(float64(cfg.RateLimitBurst)/cfg.RateLimitRPS*float64(time.Second)))
		l.Logger = logger
		return l, nil
	}
	m := ratelimit.NewMemory(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go m.Run(ctx, time.Minute)
	return m, nil
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.IsProd() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

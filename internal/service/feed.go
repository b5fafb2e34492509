package service

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"greatreads/internal/domain"
	"greatreads/internal/store"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	feedBatchLimit    = 50
	feedLimit         = 50
	enrichConcurrency = 8
)

type ProfileFetcher interface {
	GetUser(ctx context.Context, id string) (domain.UserProfile, error)
}

type FeedMetrics struct {
	BatchQueries  prometheus.Counter
	CacheHits     prometheus.Counter
	CacheMisses   prometheus.Counter
	OwnerFailures prometheus.Counter
}

// NewFeedMetrics builds the feed counters and registers them when reg is
// non-nil.
func NewFeedMetrics(reg prometheus.Registerer) *FeedMetrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "greatreads",
			Subsystem: "feed",
			Name:      name,
			Help:      help,
		})
	}
	m := &FeedMetrics{
		BatchQueries:  counter("batch_queries_total", "Reading-entry batch queries issued."),
		CacheHits:     counter("owner_cache_hits_total", "Owner lookups served from the profile cache."),
		CacheMisses:   counter("owner_cache_misses_total", "Owner lookups that went to the store."),
		OwnerFailures: counter("owner_failures_total", "Owner lookups that failed; the entry is kept without an owner."),
	}
	if reg != nil {
		reg.MustRegister(m.BatchQueries, m.CacheHits, m.CacheMisses, m.OwnerFailures)
	}
	return m
}

func (m *FeedMetrics) batchQuery() {
	if m != nil {
		m.BatchQueries.Inc()
	}
}

func (m *FeedMetrics) cacheHit() {
	if m != nil {
		m.CacheHits.Inc()
	}
}

func (m *FeedMetrics) cacheMiss() {
	if m != nil {
		m.CacheMisses.Inc()
	}
}

func (m *FeedMetrics) ownerFailure() {
	if m != nil {
		m.OwnerFailures.Inc()
	}
}

// FeedAggregator builds the friend activity feed. Owner profiles are cached
// for the lifetime of the aggregator and never invalidated; only successful
// lookups are cached.
type FeedAggregator struct {
	Books    store.Store
	Profiles ProfileFetcher
	Logger   *slog.Logger
	Now      func() time.Time
	Metrics  *FeedMetrics

	mu    sync.Mutex
	cache map[string]domain.UserProfile
	group singleflight.Group
}

func (f *FeedAggregator) logger() *slog.Logger {
	if f.Logger == nil {
		return slog.Default()
	}
	return f.Logger
}

// FetchFriendActivity returns the 50 most recent entries owned by friendIDs,
// newest first. A failed batch fails the whole call; a failed owner lookup
// only leaves that entry's Owner nil.
func (f *FeedAggregator) FetchFriendActivity(ctx context.Context, friendIDs []string) ([]domain.FeedEntry, error) {
	ids := uniqueIDs(friendIDs)
	if len(ids) == 0 {
		return []domain.FeedEntry{}, nil
	}

	batches := store.Chunk(ids, store.MaxInValues)
	results := make([][]domain.ReadingEntry, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	for i, batch := range batches {
		g.Go(func() error {
			f.Metrics.batchQuery()
			docs, err := f.Books.Query(gctx, store.From(domain.CollectionBooks).
				Where(domain.FieldUserID, store.OpIn, batch).
				OrderByDesc(domain.FieldCreatedAt).
				Take(feedBatchLimit))
			if err != nil {
				return domain.Remote("feed batch", err)
			}
			entries := make([]domain.ReadingEntry, 0, len(docs))
			for _, d := range docs {
				entries = append(entries, domain.DecodeReadingEntry(d.ID, d.Data))
			}
			results[i] = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		f.logger().Error("feed: batch query failed", "friends", len(ids), "err", err)
		return []domain.FeedEntry{}, err
	}

	var entries []domain.ReadingEntry
	for _, r := range results {
		entries = append(entries, r...)
	}
	slices.SortStableFunc(entries, func(a, b domain.ReadingEntry) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if len(entries) > feedLimit {
		entries = entries[:feedLimit]
	}

	owners := f.resolveOwners(ctx, entries)
	now := time.Now()
	if f.Now != nil {
		now = f.Now()
	}
	out := make([]domain.FeedEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, domain.FeedEntry{
			Entry:   e,
			Owner:   owners[e.OwnerID],
			TimeAgo: humanize.RelTime(e.CreatedAt, now, "ago", "from now"),
		})
	}
	return out, nil
}

func (f *FeedAggregator) resolveOwners(ctx context.Context, entries []domain.ReadingEntry) map[string]*domain.UserProfile {
	ownerIDs := make([]string, 0, len(entries))
	for _, e := range entries {
		ownerIDs = append(ownerIDs, e.OwnerID)
	}
	ownerIDs = uniqueIDs(ownerIDs)

	var (
		mu     sync.Mutex
		owners = make(map[string]*domain.UserProfile, len(ownerIDs))
		g      errgroup.Group
	)
	g.SetLimit(enrichConcurrency)
	for _, id := range ownerIDs {
		g.Go(func() error {
			u := f.owner(ctx, id)
			mu.Lock()
			owners[id] = u
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return owners
}

// owner returns the cached profile for id, fetching it at most once at a
// time across concurrent callers.
func (f *FeedAggregator) owner(ctx context.Context, id string) *domain.UserProfile {
	if u, ok := f.cached(id); ok {
		f.Metrics.cacheHit()
		return &u
	}
	v, err, _ := f.group.Do(id, func() (any, error) {
		if u, ok := f.cached(id); ok {
			return u, nil
		}
		f.Metrics.cacheMiss()
		u, err := f.Profiles.GetUser(ctx, id)
		if err != nil {
			return nil, err
		}
		f.mu.Lock()
		if f.cache == nil {
			f.cache = make(map[string]domain.UserProfile)
		}
		f.cache[id] = u
		f.mu.Unlock()
		return u, nil
	})
	if err != nil {
		f.Metrics.ownerFailure()
		f.logger().Warn("feed: owner lookup failed", "user_id", id, "err", err)
		return nil
	}
	u := v.(domain.UserProfile)
	return &u
}

func (f *FeedAggregator) cached(id string) (domain.UserProfile, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.cache[id]
	return u, ok
}

package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"greatreads/internal/domain"
	"greatreads/internal/store/memory"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingFetcher struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]bool
}

func (f *countingFetcher) GetUser(ctx context.Context, id string) (domain.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[id]++
	if f.fail[id] {
		return domain.UserProfile{}, errors.New("profile backend down")
	}
	return domain.UserProfile{ID: id, Username: "name_" + id}, nil
}

func (f *countingFetcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name && len(mf.GetMetric()) > 0 {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s not registered", name)
	return 0
}

// seedShelves gives every friend perEach entries with distinct creation
// times and returns all times.
func seedShelves(t *testing.T, mem *memory.Store, friends, perEach int) ([]string, []time.Time) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var (
		ids   []string
		times []time.Time
	)
	n := 0
	for i := range friends {
		id := fmt.Sprintf("friend%02d", i)
		ids = append(ids, id)
		for j := range perEach {
			// Interleave owners so the newest entries span every batch.
			at := base.Add(time.Duration(j*friends+i) * time.Minute)
			e := domain.ReadingEntry{OwnerID: id, Title: fmt.Sprintf("book %d", n), Author: "someone", CreatedAt: at}
			_, err := mem.Add(ctx, domain.CollectionBooks, domain.EncodeReadingEntry(e))
			require.NoError(t, err)
			times = append(times, at)
			n++
		}
	}
	return ids, times
}

func TestFeedBatchesAndOrdersGlobally(t *testing.T) {
	mem := memory.New()
	ids, times := seedShelves(t, mem, 23, 3)
	require.Len(t, times, 69)

	f := &FeedAggregator{Books: mem, Profiles: &countingFetcher{}}
	got, err := f.FetchFriendActivity(context.Background(), ids)
	require.NoError(t, err)

	assert.Equal(t, 3, mem.Calls("query", domain.CollectionBooks))
	require.Len(t, got, 50)

	sort.Slice(times, func(i, j int) bool { return times[i].After(times[j]) })
	for i, e := range got {
		assert.True(t, e.Entry.CreatedAt.Equal(times[i]), "entry %d: got %v want %v", i, e.Entry.CreatedAt, times[i])
		if i > 0 {
			assert.True(t, got[i-1].Entry.CreatedAt.After(e.Entry.CreatedAt), "entry %d not strictly older", i)
		}
		require.NotNil(t, e.Owner)
		assert.Equal(t, e.Entry.OwnerID, e.Owner.ID)
	}
}

func TestFeedCachesOwnersAcrossCalls(t *testing.T) {
	mem := memory.New()
	ids, _ := seedShelves(t, mem, 2, 2)
	fetcher := &countingFetcher{}
	f := &FeedAggregator{Books: mem, Profiles: fetcher}

	for range 2 {
		_, err := f.FetchFriendActivity(context.Background(), ids)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, fetcher.calls["friend00"])
	assert.Equal(t, 1, fetcher.calls["friend01"])
}

func TestFeedPartialEnrichment(t *testing.T) {
	mem := memory.New()
	ids, _ := seedShelves(t, mem, 3, 2)
	fetcher := &countingFetcher{fail: map[string]bool{"friend01": true}}
	reg := prometheus.NewRegistry()
	f := &FeedAggregator{Books: mem, Profiles: fetcher, Metrics: NewFeedMetrics(reg)}

	got, err := f.FetchFriendActivity(context.Background(), ids)
	require.NoError(t, err)
	require.Len(t, got, 6)
	for _, e := range got {
		if e.Entry.OwnerID == "friend01" {
			assert.Nil(t, e.Owner)
			continue
		}
		require.NotNil(t, e.Owner)
		assert.Equal(t, "name_"+e.Entry.OwnerID, e.Owner.Username)
	}
	assert.Equal(t, float64(1), counterValue(t, reg, "greatreads_feed_owner_failures_total"))

	// Failures are not cached, so the next call retries the owner.
	_, err = f.FetchFriendActivity(context.Background(), ids)
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.calls["friend01"])
	assert.Equal(t, 1, fetcher.calls["friend00"])
}

func TestFeedEmptyInput(t *testing.T) {
	mem := memory.New()
	fetcher := &countingFetcher{}
	f := &FeedAggregator{Books: mem, Profiles: fetcher}

	for _, in := range [][]string{nil, {}, {""}} {
		got, err := f.FetchFriendActivity(context.Background(), in)
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	}
	assert.Zero(t, mem.Calls("query", domain.CollectionBooks))
	assert.Zero(t, fetcher.total())
}

func TestFeedBatchFailure(t *testing.T) {
	mem := memory.New()
	ids, _ := seedShelves(t, mem, 12, 1)
	mem.SetFault(func(op, collection, id string) error {
		if op == "query" {
			return errors.New("unavailable")
		}
		return nil
	})
	fetcher := &countingFetcher{}
	f := &FeedAggregator{Books: mem, Profiles: fetcher}

	got, err := f.FetchFriendActivity(context.Background(), ids)
	require.ErrorIs(t, err, domain.ErrRemoteUnavailable)
	assert.Empty(t, got)
	assert.Zero(t, fetcher.total())
}

func TestFeedRelativeTime(t *testing.T) {
	mem := memory.New()
	now := time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC)
	e := domain.ReadingEntry{OwnerID: "f", Title: "t", Author: "a", CreatedAt: now.Add(-3 * time.Hour)}
	_, err := mem.Add(context.Background(), domain.CollectionBooks, domain.EncodeReadingEntry(e))
	require.NoError(t, err)

	f := &FeedAggregator{Books: mem, Profiles: &countingFetcher{}, Now: func() time.Time { return now }}
	got, err := f.FetchFriendActivity(context.Background(), []string{"f", "f"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "3 hours ago", got[0].TimeAgo)
}

func TestFeedConcurrentCallsShareOwnerFetch(t *testing.T) {
	mem := memory.New()
	ids, _ := seedShelves(t, mem, 1, 1)
	fetcher := &countingFetcher{}
	f := &FeedAggregator{Books: mem, Profiles: fetcher}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.FetchFriendActivity(context.Background(), ids)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, fetcher.calls["friend00"])
}

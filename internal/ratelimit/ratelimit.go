package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter decides whether one more request for key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Memory is a per-key token bucket kept in process.
type Memory struct {
	Limit rate.Limit
	Burst int
	TTL   time.Duration
	Now   func() time.Time

	mu       sync.Mutex
	visitors map[string]*visitor
}

func NewMemory(rps float64, burst int) *Memory {
	return &Memory{
		Limit:    rate.Limit(rps),
		Burst:    burst,
		TTL:      3 * time.Minute,
		visitors: make(map[string]*visitor),
	}
}

func (m *Memory) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *Memory) Allow(ctx context.Context, key string) (bool, error) {
	now := m.now()

	m.mu.Lock()
	if m.visitors == nil {
		m.visitors = make(map[string]*visitor)
	}
	v, ok := m.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(m.Limit, m.Burst)}
		m.visitors[key] = v
	}
	v.lastSeen = now
	m.mu.Unlock()

	return v.limiter.AllowN(now, 1), nil
}

// Cleanup drops keys idle for longer than TTL and returns how many it removed.
func (m *Memory) Cleanup() int {
	cutoff := m.now().Add(-m.TTL)

	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for key, v := range m.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(m.visitors, key)
			n++
		}
	}
	return n
}

// Run calls Cleanup every interval until ctx is done.
func (m *Memory) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Cleanup()
		}
	}
}

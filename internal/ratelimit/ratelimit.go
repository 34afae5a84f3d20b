// Package ratelimit throttles outbound API calls, either in process or
// across processes through a shared domain.RateLimiter.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/etherfuse-arb/internal/domain"
)

// Local admits at most requests calls in any window inside one process. It
// remembers the start time of each admitted call and makes callers sleep
// until the oldest one leaves the window.
type Local struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	stamps []time.Time
	now    func() time.Time
}

// NewLocal creates a sliding-window Local limiter.
func NewLocal(requests int, window time.Duration) *Local {
	if requests <= 0 {
		requests = 1
	}
	return &Local{
		limit:  requests,
		window: window,
		stamps: make([]time.Time, 0, requests),
		now:    time.Now,
	}
}

// Wait blocks until one more request is allowed.
func (l *Local) Wait(ctx context.Context) error {
	for {
		wait := l.reserve()
		if wait <= 0 {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("ratelimit: wait: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

// reserve records a request and returns zero when the window has room, or
// how long until the oldest request expires otherwise.
func (l *Local) reserve() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	expired := 0
	for expired < len(l.stamps) && now.Sub(l.stamps[expired]) >= l.window {
		expired++
	}
	l.stamps = append(l.stamps[:0], l.stamps[expired:]...)

	if len(l.stamps) < l.limit {
		l.stamps = append(l.stamps, now)
		return 0
	}
	return l.stamps[0].Add(l.window).Sub(now)
}

// maxKeyed bounds the number of per-key buckets a Keyed limiter keeps.
const maxKeyed = 10_000

// Keyed is an in-process domain.RateLimiter with one token bucket per key.
// It stands in for the Redis limiter when Redis is disabled.
type Keyed struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyed creates an empty Keyed limiter.
func NewKeyed() *Keyed {
	return &Keyed{buckets: make(map[string]*bucket), now: time.Now}
}

// Allow reports whether key may make one more request. Each key refills
// limit tokens evenly over window.
func (k *Keyed) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return false, nil
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	b, ok := k.buckets[key]
	if !ok || b.limiter.Burst() != limit {
		if len(k.buckets) >= maxKeyed {
			k.evictIdle(now, window)
		}
		b = &bucket{limiter: rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)}
		k.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1), nil
}

// evictIdle drops buckets unused for a full window; they are full again by
// then, so forgetting them changes nothing.
func (k *Keyed) evictIdle(now time.Time, window time.Duration) {
	for key, b := range k.buckets {
		if now.Sub(b.lastSeen) >= window {
			delete(k.buckets, key)
		}
	}
}

const defaultPollInterval = 50 * time.Millisecond

// Shared waits on a limiter shared between processes, polling until the
// sliding window has room.
type Shared struct {
	limiter domain.RateLimiter
	key     string
	limit   int
	window  time.Duration
	poll    time.Duration
}

// NewShared creates a Shared waiter for key.
func NewShared(limiter domain.RateLimiter, key string, limit int, window time.Duration) *Shared {
	return &Shared{limiter: limiter, key: key, limit: limit, window: window, poll: defaultPollInterval}
}

// Wait blocks until the shared limiter admits one more request.
func (s *Shared) Wait(ctx context.Context) error {
	for {
		ok, err := s.limiter.Allow(ctx, s.key, s.limit, s.window)
		if err != nil {
			return fmt.Errorf("ratelimit: %s: %w", s.key, err)
		}
		if ok {
			return nil
		}

		timer := time.NewTimer(s.poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("ratelimit: wait %s: %w", s.key, ctx.Err())
		case <-timer.C:
		}
	}
}

var (
	_ domain.Waiter      = (*Local)(nil)
	_ domain.Waiter      = (*Shared)(nil)
	_ domain.RateLimiter = (*Keyed)(nil)
)

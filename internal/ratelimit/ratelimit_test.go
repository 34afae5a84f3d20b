package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBurstThenWaitsForWindow(t *testing.T) {
	l := NewLocal(3, 300*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(ctx))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond, "burst is immediate")

	require.NoError(t, l.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 290*time.Millisecond, "fourth call waits for the oldest to leave the window")
}

func TestLocalNeverExceedsWindow(t *testing.T) {
	l := NewLocal(3, 300*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 290*time.Millisecond)
	defer cancel()

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for l.Wait(ctx) == nil {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(3), admitted.Load())
}

func TestLocalReserveSlidesWindow(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	l := NewLocal(2, 10*time.Second)
	l.now = func() time.Time { return now }

	assert.Zero(t, l.reserve())
	now = now.Add(4 * time.Second)
	assert.Zero(t, l.reserve())

	now = now.Add(time.Second)
	assert.Equal(t, 5*time.Second, l.reserve(), "full until the first call is 10s old")

	now = now.Add(5 * time.Second)
	assert.Zero(t, l.reserve())
	assert.Equal(t, 4*time.Second, l.reserve(), "second call now leads the window")
}

func TestLocalHonoursContext(t *testing.T) {
	l := NewLocal(1, time.Hour)
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx))
}

type scriptedLimiter struct {
	mu      sync.Mutex
	answers []bool
	calls   int
	err     error
}

func (s *scriptedLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	ok := s.answers[min(s.calls, len(s.answers)-1)]
	s.calls++
	return ok, nil
}

func TestSharedPollsUntilAllowed(t *testing.T) {
	lim := &scriptedLimiter{answers: []bool{false, false, true}}
	s := NewShared(lim, "jupiter", 10, 10*time.Second)
	s.poll = time.Millisecond

	require.NoError(t, s.Wait(context.Background()))
	assert.Equal(t, 3, lim.calls)
}

func TestSharedPropagatesErrors(t *testing.T) {
	s := NewShared(&scriptedLimiter{err: errors.New("down")}, "jupiter", 10, time.Second)
	assert.ErrorContains(t, s.Wait(context.Background()), "down")
}

func TestSharedHonoursContext(t *testing.T) {
	s := NewShared(&scriptedLimiter{answers: []bool{false}}, "jupiter", 1, time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Wait(ctx), context.DeadlineExceeded)
}

func TestKeyedAllowsPerKey(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	k := NewKeyed()
	k.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := k.Allow(ctx, "api:10.0.0.1", 2, time.Second)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := k.Allow(ctx, "api:10.0.0.1", 2, time.Second)
	assert.False(t, ok)

	ok, _ = k.Allow(ctx, "api:10.0.0.2", 2, time.Second)
	assert.True(t, ok, "keys are independent")

	now = now.Add(500 * time.Millisecond)
	ok, _ = k.Allow(ctx, "api:10.0.0.1", 2, time.Second)
	assert.True(t, ok, "one token refilled")

	ok, _ = k.Allow(ctx, "api:10.0.0.3", 0, time.Second)
	assert.False(t, ok)
}

func TestKeyedEvictsIdleBuckets(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	k := NewKeyed()
	k.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < maxKeyed; i++ {
		_, err := k.Allow(ctx, fmt.Sprintf("ip-%d", i), 5, time.Minute)
		require.NoError(t, err)
	}
	require.Len(t, k.buckets, maxKeyed)

	now = now.Add(time.Minute)
	_, err := k.Allow(ctx, "fresh", 5, time.Minute)
	require.NoError(t, err)
	assert.Len(t, k.buckets, 1)
}

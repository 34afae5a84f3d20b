package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/etherfuse-arb/internal/domain"
)

// releaseLua deletes the lock only while it still holds the caller's token.
const releaseLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// refreshLua extends the lock's expiry only while it still holds the
// caller's token.
const refreshLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`

// LockManager hands out expiring locks so only one runner trades a mint at a
// time.
type LockManager struct {
	rdb     *redis.Client
	release *redis.Script
	refresh *redis.Script
}

// NewLockManager creates a LockManager backed by c.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{
		rdb:     c.Underlying(),
		release: redis.NewScript(releaseLua),
		refresh: redis.NewScript(refreshLua),
	}
}

func lockKey(key string) string {
	return keyPrefix + "lock:" + key
}

// Acquire takes the lock for key with the given ttl. It returns
// domain.ErrLockHeld when another holder owns it. While held, the lock's
// expiry is pushed back to ttl every ttl/2, so a holder that outlives ttl
// keeps it. The returned unlock func stops the refresh and releases the
// lock; it may be called more than once.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	k := lockKey(key)

	ok, err := lm.rdb.SetNX(ctx, k, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("redis: lock %s: %w", key, domain.ErrLockHeld)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	if ttl > 0 {
		go lm.keepAlive(k, token, ttl, stop, done)
	} else {
		close(done)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = lm.release.Run(ctx, lm.rdb, []string{k}, token).Err()
		})
	}, nil
}

// keepAlive refreshes the lock until stop closes, the lock is found to
// belong to someone else, or refreshes have failed for a whole ttl.
func (lm *LockManager) keepAlive(k, token string, ttl time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := max(ttl/2, time.Millisecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastOK := time.Now()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			n, err := lm.refresh.Run(ctx, lm.rdb, []string{k}, token, ttl.Milliseconds()).Int()
			cancel()
			switch {
			case err == nil && n == 0:
				return
			case err == nil:
				lastOK = now
			case now.Sub(lastOK) >= ttl:
				return
			}
		}
	}
}

var _ domain.LockManager = (*LockManager)(nil)

package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/efreitasn/predictx/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// unlockLua deletes the lock key only if it still holds the caller's token.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

const (
	minBackoff = 5 * time.Millisecond
	maxBackoff = 200 * time.Millisecond
)

// MarketLocker is a distributed lock per market, shared by every process
// pointed at the same Redis. A holder that dies releases the lock when its
// TTL expires.
type MarketLocker struct {
	rdb      *redis.Client
	unlockSc *redis.Script
	ttl      time.Duration
	wait     time.Duration
}

// NewMarketLocker creates a MarketLocker. ttl bounds how long a lock
// survives its holder; wait bounds how long Lock polls before giving up.
func NewMarketLocker(c *Client, ttl, wait time.Duration) *MarketLocker {
	return &MarketLocker{
		rdb:      c.Underlying(),
		unlockSc: redis.NewScript(unlockLua),
		ttl:      ttl,
		wait:     wait,
	}
}

func lockKey(marketID string) string {
	return "predictx:lock:market:" + marketID
}

// Lock polls SETNX with backoff until the lock is acquired, the wait budget
// is spent or ctx is done.
func (l *MarketLocker) Lock(ctx context.Context, marketID string) (func(), error) {
	token := uuid.New().String()
	key := lockKey(marketID)

	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	backoff := minBackoff
	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("redis: acquire lock %s: %w", marketID, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("market %s: %w: %w", marketID, domain.ErrLockTimeout, ctx.Err())
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			// The caller's context may already be cancelled.
			unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = l.unlockSc.Run(unlockCtx, l.rdb, []string{key}, token).Err()
		})
	}
	return unlock, nil
}

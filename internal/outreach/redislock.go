package outreach

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const lockKeyPrefix = "outreach:lock:"

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker is a Locker shared by every bot instance using the same Redis.
// The TTL must outlive one session (reply timeout plus sends) so a crashed holder
// eventually frees the member.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisLocker creates a Redis-backed per-member lock.
func NewRedisLocker(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{client: client, ttl: ttl, logger: logger}
}

// TryLock implements Locker.
func (l *RedisLocker) TryLock(ctx context.Context, memberID string) (func(), bool, error) {
	key := lockKeyPrefix + memberID
	token := uuid.New().String()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("setnx %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	unlock := func() {
		// The session context may already be cancelled; release on a fresh one.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
			l.logger.Warn("release member lock failed", zap.String("member_id", memberID), zap.Error(err))
		}
	}
	return unlock, true, nil
}

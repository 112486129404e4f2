package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired 租约已被其他实例持有
var ErrNotAcquired = errors.New("lease not acquired")

// Locker 互斥租约
type Locker interface {
	// Acquire 获取租约，返回释放函数
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

// 只删除自己持有的租约
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLease 基于 SET NX PX 的租约
type RedisLease struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisLease 创建 Redis 租约
func NewRedisLease(rdb redis.UniversalClient, prefix string) *RedisLease {
	return &RedisLease{rdb: rdb, prefix: prefix}
}

// Acquire 获取租约
func (l *RedisLease) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	fullKey := l.prefix + key
	token := uuid.New().String()

	ok, err := l.rdb.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lease %s: %w", fullKey, err)
	}
	if !ok {
		return nil, ErrNotAcquired
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.rdb, []string{fullKey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("failed to release lease %s: %w", fullKey, err)
		}
		return nil
	}
	return release, nil
}

// NoopLocker 不做互斥，单实例部署使用
type NoopLocker struct{}

// Acquire 总是成功
func (NoopLocker) Acquire(context.Context, string, time.Duration) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}

package cron

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultLockTTL = 5 * time.Minute

// Lock gives one worker instance exclusive use of a cron cycle.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// RedisLock is a SETNX lease. The stored value is "<holder>/<token>" so
// operators can see which instance owns the cycle. The TTL must outlast the
// slowest cycle or a second worker may start reconciling the same payments.
type RedisLock struct {
	client redisStore
	key    string
	ttl    time.Duration
	holder string
	token  string
}

// NewRedisLock builds a lease on key. holder names this process in the lock value.
func NewRedisLock(client redisStore, key string, ttl time.Duration, holder string) (*RedisLock, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if strings.TrimSpace(key) == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	holder = strings.TrimSpace(holder)
	if holder == "" {
		holder = "unknown"
	}
	return &RedisLock{client: client, key: key, ttl: ttl, holder: holder}, nil
}

// Acquire takes the lease if nobody holds it.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	token := l.holder + "/" + uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", l.key, err)
	}
	if ok {
		l.token = token
	}
	return ok, nil
}

// Release drops the lease when this lock still owns it. An expired or stolen
// lease is left alone.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	defer func() { l.token = "" }()

	current, err := l.client.Get(ctx, l.key)
	switch {
	case errors.Is(err, redis.Nil):
		return nil
	case err != nil:
		return fmt.Errorf("read lock owner: %w", err)
	case current != l.token:
		return nil
	}
	if err := l.client.Del(ctx, l.key); err != nil {
		return fmt.Errorf("delete lock: %w", err)
	}
	return nil
}

// Holder reports the instance currently holding the lease, or "" when free.
func (l *RedisLock) Holder(ctx context.Context) (string, error) {
	current, err := l.client.Get(ctx, l.key)
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	holder, _, _ := strings.Cut(current, "/")
	return holder, nil
}

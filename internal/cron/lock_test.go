package cron

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryRedis struct {
	values map[string]string
	ttls   map[string]time.Duration
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryRedis) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryRedis) Get(_ context.Context, key string) (string, error) {
	value, ok := m.values[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (m *memoryRedis) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

func TestRedisLockIsExclusive(t *testing.T) {
	store := newMemoryRedis()
	first, err := NewRedisLock(store, "escrowpay:lock:cron-worker", 0, "worker.1")
	require.NoError(t, err)
	second, err := NewRedisLock(store, "escrowpay:lock:cron-worker", 0, "worker.2")
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, defaultLockTTL, store.ttls["escrowpay:lock:cron-worker"])

	holder, err := second.Holder(ctx)
	require.NoError(t, err)
	assert.Equal(t, "worker.1", holder)

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, second.Release(ctx))
	assert.Contains(t, store.values, "escrowpay:lock:cron-worker", "non-owner must not release")

	require.NoError(t, first.Release(ctx))
	assert.NotContains(t, store.values, "escrowpay:lock:cron-worker")

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLockLeavesStolenLease(t *testing.T) {
	store := newMemoryRedis()
	lock, err := NewRedisLock(store, "k", time.Minute, "worker.1")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = lock.Acquire(ctx)
	require.NoError(t, err)

	// lease expired and another instance took it
	store.values["k"] = "worker.2/other-token"
	require.NoError(t, lock.Release(ctx))
	assert.Equal(t, "worker.2/other-token", store.values["k"])
}

func TestRedisLockHolderWhenFree(t *testing.T) {
	lock, err := NewRedisLock(newMemoryRedis(), "k", time.Minute, "")
	require.NoError(t, err)

	holder, err := lock.Holder(context.Background())
	require.NoError(t, err)
	assert.Empty(t, holder)
}

func TestNewRedisLockValidates(t *testing.T) {
	_, err := NewRedisLock(nil, "k", time.Minute, "w")
	assert.Error(t, err)
	_, err = NewRedisLock(newMemoryRedis(), " ", time.Minute, "w")
	assert.Error(t, err)
}

package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/escrowpay-backend/pkg/config"
)

type fakeCommands struct {
	values  map[string]string
	counts  map[string]int64
	ttls    map[string]time.Duration
	expires int
}

func newFakeCommands() *fakeCommands {
	return &fakeCommands{
		values: map[string]string{},
		counts: map[string]int64{},
		ttls:   map[string]time.Duration{},
	}
}

func (f *fakeCommands) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeCommands) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	f.values[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeCommands) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeCommands) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, ok := f.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.values[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeCommands) Incr(_ context.Context, key string) *redis.IntCmd {
	f.counts[key]++
	return redis.NewIntResult(f.counts[key], nil)
}

func (f *fakeCommands) Expire(_ context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	f.expires++
	f.ttls[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (f *fakeCommands) TTL(_ context.Context, key string) *redis.DurationCmd {
	ttl, ok := f.ttls[key]
	if !ok {
		return redis.NewDurationResult(-1, nil)
	}
	return redis.NewDurationResult(ttl, nil)
}

func (f *fakeCommands) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(f.values, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func TestFixedWindowAllowCountsWithinWindow(t *testing.T) {
	ctx := context.Background()
	fake := newFakeCommands()
	client := &Client{cmd: fake}

	for i := 1; i <= 2; i++ {
		allowed, count, err := client.FixedWindowAllow(ctx, "payments:initiate:user-1", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.EqualValues(t, i, count)
	}
	allowed, count, err := client.FixedWindowAllow(ctx, "payments:initiate:user-1", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.EqualValues(t, 3, count)
	assert.Equal(t, 1, fake.expires, "expiry is set once per window")
}

func TestIncrWithTTLHealsCounterWithoutExpiry(t *testing.T) {
	ctx := context.Background()
	fake := newFakeCommands()
	fake.counts["escrowpay:rate_limit:x"] = 4
	client := &Client{cmd: fake}

	count, err := client.IncrWithTTL(ctx, "escrowpay:rate_limit:x", time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 5, count)
	assert.Equal(t, time.Minute, fake.ttls["escrowpay:rate_limit:x"])
}

func TestSetNXFirstWriterWins(t *testing.T) {
	ctx := context.Background()
	client := &Client{cmd: newFakeCommands()}
	key := client.IdempotencyKey("payment", "order-1:initiate")

	won, err := client.SetNX(ctx, key, "first", time.Hour)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = client.SetNX(ctx, key, "second", time.Hour)
	require.NoError(t, err)
	assert.False(t, won)

	value, err := client.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "first", value)

	require.NoError(t, client.Del(ctx, key))
	_, err = client.Get(ctx, key)
	assert.ErrorIs(t, err, redis.Nil)
}

func TestKeys(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "escrowpay:idem:payment:order-1", client.IdempotencyKey("payment", "order-1"))
	assert.Equal(t, "escrowpay:rate_limit:login", client.RateLimitKey(" login "))
	assert.Equal(t, "escrowpay:webhook:payments:tx-1:completed", client.WebhookReplayKey("payments", "tx-1:completed"))
	assert.Equal(t, "escrowpay:lock", client.LockKey(""))
}

func TestUninitializedClient(t *testing.T) {
	var client *Client
	_, err := client.Get(context.Background(), "k")
	assert.ErrorIs(t, err, errNotInitialized)
	assert.ErrorIs(t, client.Ping(context.Background()), errNotInitialized)
	assert.NoError(t, client.Close())
}

func TestBuildOptions(t *testing.T) {
	_, err := buildOptions(config.RedisConfig{})
	require.Error(t, err)

	opts, err := buildOptions(config.RedisConfig{URL: "redis://localhost:6379/3", PoolSize: 20, DialTimeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, 3, opts.DB)
	assert.Equal(t, 20, opts.PoolSize)
	assert.Equal(t, time.Second, opts.DialTimeout)

	opts, err = buildOptions(config.RedisConfig{Address: "cache:6379", DB: 2})
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
}

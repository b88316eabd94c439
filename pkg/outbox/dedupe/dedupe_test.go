package dedupe

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu   sync.Mutex
	keys map[string]time.Duration
	err  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{keys: map[string]time.Duration{}}
}

func (m *memoryStore) SetNX(_ context.Context, key string, _ any, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = ttl
	return true, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.keys, key)
	}
	return nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "escrowpay:idem:" + scope + ":" + id
}

func TestClaimIsFirstWins(t *testing.T) {
	store := newMemoryStore()
	claims, err := New(store, 0)
	require.NoError(t, err)
	ctx := context.Background()
	eventID := uuid.New()

	first, err := claims.Claim(ctx, "money-notifications", eventID)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := claims.Claim(ctx, "money-notifications", eventID)
	require.NoError(t, err)
	assert.False(t, again)

	other, err := claims.Claim(ctx, "settlement-analytics", eventID)
	require.NoError(t, err)
	assert.True(t, other, "consumers claim independently")

	key := "escrowpay:idem:evt:money-notifications:" + eventID.String()
	assert.Equal(t, DefaultTTL, store.keys[key])
}

func TestReleaseAllowsRetry(t *testing.T) {
	claims, err := New(newMemoryStore(), time.Hour)
	require.NoError(t, err)
	ctx := context.Background()
	eventID := uuid.New()

	_, err = claims.Claim(ctx, "money-notifications", eventID)
	require.NoError(t, err)
	require.NoError(t, claims.Release(ctx, "money-notifications", eventID))

	retry, err := claims.Claim(ctx, "money-notifications", eventID)
	require.NoError(t, err)
	assert.True(t, retry)
}

func TestClaimConcurrentDeliveries(t *testing.T) {
	claims, err := New(newMemoryStore(), time.Hour)
	require.NoError(t, err)
	eventID := uuid.New()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := claims.Claim(context.Background(), "settlement-analytics", eventID)
			if err == nil && ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}

func TestClaimValidation(t *testing.T) {
	store := newMemoryStore()
	claims, err := New(store, time.Hour)
	require.NoError(t, err)

	_, err = claims.Claim(context.Background(), "  ", uuid.New())
	assert.Error(t, err)
	_, err = claims.Claim(context.Background(), "money-notifications", uuid.Nil)
	assert.Error(t, err)

	store.err = errors.New("redis down")
	_, err = claims.Claim(context.Background(), "money-notifications", uuid.New())
	assert.EqualError(t, err, "redis down")

	_, err = New(nil, time.Hour)
	assert.Error(t, err)
	_, err = New(store, -time.Second)
	assert.Error(t, err)
}

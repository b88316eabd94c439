package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/escrowpay-backend/pkg/errors"
)

type memoryStore struct {
	values  map[string]string
	ttls    map[string]time.Duration
	getErr  error
	setErr  error
	nxErr   error
	setKeys []string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	if m.getErr != nil {
		return "", m.getErr
	}
	value, ok := m.values[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.setKeys = append(m.setKeys, key)
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if m.nxErr != nil {
		return false, m.nxErr
	}
	if _, held := m.values[key]; held {
		return false, nil
	}
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "escrowpay:idem:" + scope + ":" + id
}

type initResult struct {
	PaymentID string `json:"paymentId"`
	Status    string `json:"status"`
}

func TestCacheStoresAndReplaysResponse(t *testing.T) {
	store := newMemoryStore()
	cache, err := NewCache(store, time.Hour, nil, nil)
	require.NoError(t, err)
	ctx := context.Background()
	key := Key{ResourceType: "order", ResourceID: "o-1", Operation: "mobilemoney"}

	_, found, err := cache.Check(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)

	cache.Store(ctx, key, initResult{PaymentID: "p-1", Status: "processing"})
	require.Equal(t, []string{"escrowpay:idem:order:o-1:mobilemoney"}, store.setKeys)
	assert.Equal(t, time.Hour, store.ttls["escrowpay:idem:order:o-1:mobilemoney"])

	var replay initResult
	found, err = cache.Lookup(ctx, key, &replay)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, initResult{PaymentID: "p-1", Status: "processing"}, replay)
}

func TestCacheTreatsExpiredEntriesAsAbsent(t *testing.T) {
	store := newMemoryStore()
	cache, err := NewCache(store, time.Minute, nil, nil)
	require.NoError(t, err)
	ctx := context.Background()
	key := Key{ResourceType: "order", ResourceID: "o-2", Operation: "card"}

	cache.now = func() time.Time { return time.Now().Add(-2 * time.Minute) }
	cache.Store(ctx, key, initResult{PaymentID: "p-2"})
	cache.now = time.Now

	_, found, err := cache.Check(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCacheCheckFailsClosedOnStoreError(t *testing.T) {
	store := newMemoryStore()
	store.getErr = errors.New("connection refused")
	cache, err := NewCache(store, 0, nil, nil)
	require.NoError(t, err)

	_, found, err := cache.Check(context.Background(), Key{ResourceType: "order", ResourceID: "o-3", Operation: "mobilemoney"})
	assert.False(t, found)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeDependency), "got %v", err)
}

func TestCacheStoreFailureIsSwallowed(t *testing.T) {
	store := newMemoryStore()
	store.setErr = errors.New("read only replica")
	cache, err := NewCache(store, 0, nil, nil)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		cache.Store(context.Background(), Key{ResourceType: "order", ResourceID: "o-4", Operation: "mobilemoney"}, initResult{})
	})
	assert.Empty(t, store.values)
}

func TestCacheIgnoresCorruptEntries(t *testing.T) {
	store := newMemoryStore()
	store.values["escrowpay:idem:order:o-5:mobilemoney"] = "not-json"
	cache, err := NewCache(store, 0, nil, nil)
	require.NoError(t, err)

	_, found, err := cache.Check(context.Background(), Key{ResourceType: "order", ResourceID: "o-5", Operation: "mobilemoney"})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCacheRejectsIncompleteKey(t *testing.T) {
	cache, err := NewCache(newMemoryStore(), 0, nil, nil)
	require.NoError(t, err)

	_, _, err = cache.Check(context.Background(), Key{ResourceType: "order"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInternal), "got %v", err)
}

func TestClaimAdmitsOneHolderUntilReleased(t *testing.T) {
	store := newMemoryStore()
	cache, err := NewCache(store, time.Hour, nil, nil)
	require.NoError(t, err)
	ctx := context.Background()
	key := Key{ResourceType: "payment", ResourceID: "p-9", Operation: "refund"}

	release, err := cache.Claim(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, ClaimTTL, store.ttls["escrowpay:idem:payment:p-9:refund:claim"])

	_, err = cache.Claim(ctx, key)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInProgress), "got %v", err)

	other, err := cache.Claim(ctx, Key{ResourceType: "payment", ResourceID: "p-10", Operation: "refund"})
	require.NoError(t, err)
	other()

	release()
	assert.NotContains(t, store.values, "escrowpay:idem:payment:p-9:refund:claim")

	again, err := cache.Claim(ctx, key)
	require.NoError(t, err)
	again()
}

func TestClaimFailsClosedOnStoreError(t *testing.T) {
	store := newMemoryStore()
	store.nxErr = errors.New("connection refused")
	cache, err := NewCache(store, 0, nil, nil)
	require.NoError(t, err)

	release, err := cache.Claim(context.Background(), Key{ResourceType: "order", ResourceID: "o-6", Operation: "mobilemoney"})
	assert.Nil(t, release)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeDependency), "got %v", err)
}

package webhooks

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/escrowpay-backend/internal/webhooks"
	"github.com/angelmondragon/escrowpay-backend/pkg/logger"
)

type memoryReplayStore struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newMemoryReplayStore() *memoryReplayStore {
	return &memoryReplayStore{keys: map[string]struct{}{}}
}

func (s *memoryReplayStore) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return false, nil
	}
	s.keys[key] = struct{}{}
	return true, nil
}

func (s *memoryReplayStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.keys, key)
	}
	return nil
}

func (s *memoryReplayStore) WebhookReplayKey(source, deliveryID string) string {
	return "webhook:" + source + ":" + deliveryID
}

func (s *memoryReplayStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[key]
	return ok
}

type recordedRejections struct {
	reasons []string
}

func (r *recordedRejections) IncWebhookRejected(source, reason string) {
	r.reasons = append(r.reasons, source+":"+reason)
}

func newGuard(t *testing.T, store *memoryReplayStore, source string) *webhooks.ReplayGuard {
	t.Helper()
	guard, err := webhooks.NewReplayGuard(store, time.Hour, source)
	require.NoError(t, err)
	return guard
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func httptestBody(body string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(body))
}

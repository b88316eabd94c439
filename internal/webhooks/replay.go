package webhooks

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ReplayStore is the redis surface the replay guard needs.
type ReplayStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	WebhookReplayKey(source, deliveryID string) string
}

// ReplayGuard suppresses duplicate deliveries of the same webhook.
type ReplayGuard struct {
	store  ReplayStore
	ttl    time.Duration
	source string
}

func NewReplayGuard(store ReplayStore, ttl time.Duration, source string) (*ReplayGuard, error) {
	if store == nil {
		return nil, errors.New("replay store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if source == "" {
		return nil, errors.New("source is required")
	}
	return &ReplayGuard{store: store, ttl: ttl, source: source}, nil
}

// CheckAndMark records deliveryID and reports whether it was seen before.
func (g *ReplayGuard) CheckAndMark(ctx context.Context, deliveryID string) (bool, error) {
	if deliveryID == "" {
		return false, errors.New("delivery id is required")
	}
	set, err := g.store.SetNX(ctx, g.store.WebhookReplayKey(g.source, deliveryID), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set replay key: %w", err)
	}
	return !set, nil
}

// Delete forgets deliveryID so a failed delivery can be retried by the provider.
func (g *ReplayGuard) Delete(ctx context.Context, deliveryID string) error {
	if deliveryID == "" {
		return errors.New("delivery id is required")
	}
	return g.store.Del(ctx, g.store.WebhookReplayKey(g.source, deliveryID))
}

// Package dedupe lets Pub/Sub consumers process each outbox event once.
// Delivery is at-least-once, so a consumer claims an event id before acting
// on it and releases the claim when its side effects failed.
package dedupe

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL outlives the longest Pub/Sub retention, so a redelivered event
// always finds its claim.
const DefaultTTL = 7 * 24 * time.Hour

// Store is the slice of the redis client claims need.
type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Claims records which consumer has handled which event.
type Claims struct {
	store Store
	ttl   time.Duration
}

// New builds claims kept for ttl; zero selects DefaultTTL.
func New(store Store, ttl time.Duration) (*Claims, error) {
	if store == nil {
		return nil, errors.New("dedupe store is required")
	}
	if ttl < 0 {
		return nil, errors.New("dedupe ttl must not be negative")
	}
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return &Claims{store: store, ttl: ttl}, nil
}

// Claim reports whether this delivery is the first for consumer and eventID.
// False means another delivery already claimed it.
func (c *Claims) Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	key, err := c.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	return c.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), c.ttl)
}

// Release drops a claim so the next delivery retries the event.
func (c *Claims) Release(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := c.key(consumer, eventID)
	if err != nil {
		return err
	}
	return c.store.Del(ctx, key)
}

func (c *Claims) key(consumer string, eventID uuid.UUID) (string, error) {
	consumer = strings.TrimSpace(consumer)
	switch {
	case consumer == "":
		return "", errors.New("consumer name is required")
	case eventID == uuid.Nil:
		return "", errors.New("event id is required")
	}
	return c.store.IdempotencyKey("evt:"+consumer, eventID.String()), nil
}

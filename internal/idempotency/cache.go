// Package idempotency caches the outcome of money-moving operations so a
// retried request replays the first result instead of repeating the side effect.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/angelmondragon/escrowpay-backend/pkg/errors"
	"github.com/angelmondragon/escrowpay-backend/pkg/logger"
	"github.com/angelmondragon/escrowpay-backend/pkg/metrics"
)

const (
	DefaultTTL = 24 * time.Hour
	// ClaimTTL bounds how long a crashed holder blocks the key. It stays above
	// the gateway call timeout.
	ClaimTTL = 2 * time.Minute

	claimSuffix    = ":claim"
	releaseTimeout = 2 * time.Second
)

// Store is the redis surface the cache needs.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Key identifies one operation on one resource, e.g. (order, <id>, mobilemoney).
type Key struct {
	ResourceType string
	ResourceID   string
	Operation    string
}

func (k Key) validate() error {
	if strings.TrimSpace(k.ResourceType) == "" || strings.TrimSpace(k.ResourceID) == "" || strings.TrimSpace(k.Operation) == "" {
		return pkgerrors.New(pkgerrors.CodeInternal, "idempotency key incomplete")
	}
	return nil
}

type record struct {
	Response  json.RawMessage `json:"response"`
	CreatedAt time.Time       `json:"created_at"`
}

// Cache stores serialized operation results under idem:{type}:{id}:{operation}.
type Cache struct {
	store   Store
	ttl     time.Duration
	logg    *logger.Logger
	metrics *metrics.MoneyMetrics
	now     func() time.Time
}

// NewCache builds a cache; a non-positive ttl falls back to DefaultTTL.
func NewCache(store Store, ttl time.Duration, logg *logger.Logger, m *metrics.MoneyMetrics) (*Cache, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{store: store, ttl: ttl, logg: logg, metrics: m, now: time.Now}, nil
}

// Check returns the cached response for key. Missing, expired or unreadable
// entries report found=false. A store outage is returned as a dependency error
// so callers do not repeat a financial side effect blind.
func (c *Cache) Check(ctx context.Context, key Key) (json.RawMessage, bool, error) {
	if err := key.validate(); err != nil {
		return nil, false, err
	}
	raw, err := c.store.Get(ctx, c.redisKey(key))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.metrics.IncIdempotency("miss")
			return nil, false, nil
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency cache")
	}
	if raw == "" {
		c.metrics.IncIdempotency("miss")
		return nil, false, nil
	}

	var rec record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		c.warn(ctx, key, "idempotency.decode_failed", err)
		c.metrics.IncIdempotency("miss")
		return nil, false, nil
	}
	if !rec.CreatedAt.IsZero() && c.now().Sub(rec.CreatedAt) > c.ttl {
		c.metrics.IncIdempotency("expired")
		return nil, false, nil
	}
	c.metrics.IncIdempotency("hit")
	return rec.Response, true, nil
}

// Lookup decodes a cached response into out. It reports whether a value was found.
func (c *Cache) Lookup(ctx context.Context, key Key, out any) (bool, error) {
	payload, found, err := c.Check(ctx, key)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal(payload, out); err != nil {
		c.warn(ctx, key, "idempotency.decode_failed", err)
		return false, nil
	}
	return true, nil
}

// Store saves response under key. Failures are logged and swallowed; the
// operation that produced the response has already committed.
func (c *Cache) Store(ctx context.Context, key Key, response any) {
	if err := key.validate(); err != nil {
		c.warn(ctx, key, "idempotency.invalid_key", err)
		return
	}
	body, err := json.Marshal(response)
	if err != nil {
		c.warn(ctx, key, "idempotency.encode_failed", err)
		c.metrics.IncIdempotency("store_failed")
		return
	}
	payload, err := json.Marshal(record{Response: body, CreatedAt: c.now().UTC()})
	if err != nil {
		c.warn(ctx, key, "idempotency.encode_failed", err)
		c.metrics.IncIdempotency("store_failed")
		return
	}
	if err := c.store.Set(ctx, c.redisKey(key), string(payload), c.ttl); err != nil {
		c.warn(ctx, key, "idempotency.store_failed", err)
		c.metrics.IncIdempotency("store_failed")
		return
	}
	c.metrics.IncIdempotency("stored")
}

// Claim reserves key while the caller performs the side effect. A key held by
// another caller yields REQUEST_IN_PROGRESS. A store outage fails closed.
// The returned release frees the claim and is safe to defer.
func (c *Cache) Claim(ctx context.Context, key Key) (func(), error) {
	if err := key.validate(); err != nil {
		return nil, err
	}
	claimKey := c.redisKey(key) + claimSuffix
	won, err := c.store.SetNX(ctx, claimKey, c.now().UTC().Format(time.RFC3339Nano), ClaimTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key")
	}
	if !won {
		c.metrics.IncIdempotency("in_progress")
		return nil, pkgerrors.New(pkgerrors.CodeInProgress, fmt.Sprintf("%s already in progress for %s", key.Operation, key.ResourceType)).
			WithDetails(map[string]any{"resource_id": key.ResourceID})
	}
	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if err := c.store.Del(releaseCtx, claimKey); err != nil {
			c.warn(ctx, key, "idempotency.release_failed", err)
		}
	}
	return release, nil
}

func (c *Cache) redisKey(key Key) string {
	return c.store.IdempotencyKey(key.ResourceType, fmt.Sprintf("%s:%s", key.ResourceID, key.Operation))
}

func (c *Cache) warn(ctx context.Context, key Key, msg string, err error) {
	if c.logg == nil {
		return
	}
	ctx = c.logg.WithFields(ctx, map[string]any{
		"resource_type": key.ResourceType,
		"resource_id":   key.ResourceID,
		"operation":     key.Operation,
		"error":         err.Error(),
	})
	c.logg.Warn(ctx, msg)
}

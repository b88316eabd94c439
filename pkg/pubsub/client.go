package pubsub

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/escrowpay-backend/pkg/config"
	"github.com/angelmondragon/escrowpay-backend/pkg/logger"
)

type resourceKind string

const (
	kindTopic        resourceKind = "topics"
	kindSubscription resourceKind = "subscriptions"
)

var errProjectIDRequired = errors.New("gcp project id is required")

// Client owns the Pub/Sub connection for the money-events topic and the
// subscriptions fed from it. Publishers are created once per topic with
// message ordering on, so events for one aggregate arrive in commit order.
type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// NewClient connects and checks that every configured subscription exists
// and is attached to the money-events topic.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	if strings.TrimSpace(cfg.MoneyEventsTopic) == "" {
		return nil, errors.New("money events topic is required")
	}

	raw, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	c := &Client{
		client:     raw,
		projectID:  projectID,
		cfg:        cfg,
		publishers: map[string]*pubsub.Publisher{},
	}
	if err := c.checkSubscriptions(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "topic", c.resourceName(kindTopic, cfg.MoneyEventsTopic)), "pubsub client ready")
	}
	return c, nil
}

func (c *Client) configuredSubscriptions() []string {
	var names []string
	for _, name := range []string{c.cfg.NotificationSubscription, c.cfg.AnalyticsSubscription} {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func (c *Client) checkSubscriptions(ctx context.Context) error {
	names := c.configuredSubscriptions()
	if len(names) == 0 {
		return errors.New("at least one pubsub subscription is required")
	}
	wantTopic := c.resourceName(kindTopic, c.cfg.MoneyEventsTopic)
	for _, name := range names {
		sub, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{
			Subscription: c.resourceName(kindSubscription, name),
		})
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("subscription %q does not exist", name)
		}
		if err != nil {
			return fmt.Errorf("get subscription %q: %w", name, err)
		}
		if got := sub.GetTopic(); got != wantTopic {
			return fmt.Errorf("subscription %q is attached to %s, want %s", name, got, wantTopic)
		}
	}
	return nil
}

// Subscription returns a subscriber for a subscription ID or full resource name.
func (c *Client) Subscription(name string) *pubsub.Subscriber {
	if c == nil || c.client == nil || strings.TrimSpace(name) == "" {
		return nil
	}
	return c.client.Subscriber(c.resourceName(kindSubscription, name))
}

// NotificationSubscription feeds the notification consumer.
func (c *Client) NotificationSubscription() *pubsub.Subscriber {
	return c.Subscription(c.cfg.NotificationSubscription)
}

// AnalyticsSubscription feeds the settlement analytics writer.
func (c *Client) AnalyticsSubscription() *pubsub.Subscriber {
	return c.Subscription(c.cfg.AnalyticsSubscription)
}

// Publisher returns the cached ordered publisher for topic.
func (c *Client) Publisher(topic string) *pubsub.Publisher {
	if c == nil || c.client == nil || strings.TrimSpace(topic) == "" {
		return nil
	}
	name := c.resourceName(kindTopic, topic)

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.publishers[name]; ok {
		return p
	}
	p := c.client.Publisher(name)
	p.EnableMessageOrdering = true
	c.publishers[name] = p
	return p
}

// MoneyEventsPublisher publishes to the topic every outbox event is routed to.
func (c *Client) MoneyEventsPublisher() *pubsub.Publisher {
	return c.Publisher(c.cfg.MoneyEventsTopic)
}

// Ping re-checks the configured subscriptions.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	return c.checkSubscriptions(ctx)
}

// Close flushes pending publishes and closes the connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	for name, p := range c.publishers {
		p.Stop()
		delete(c.publishers, name)
	}
	c.mu.Unlock()
	return c.client.Close()
}

// resourceName expands a short ID to projects/<p>/<kind>/<id>. Names that are
// already fully qualified pass through.
func (c *Client) resourceName(kind resourceKind, name string) string {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/"+string(kind)+"/") {
		return name
	}
	return path.Join("projects", c.projectID, string(kind), name)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrowpay-backend/pkg/config"
	"github.com/angelmondragon/escrowpay-backend/pkg/db/models"
	"github.com/angelmondragon/escrowpay-backend/pkg/logger"
	"github.com/angelmondragon/escrowpay-backend/pkg/metrics"
	"github.com/angelmondragon/escrowpay-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type backlogCounter interface {
	CountPending(ctx context.Context, maxAttempts int) (int64, error)
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// ServiceParams wire the publisher loop.
type ServiceParams struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         dbClient
	Broker     broker
	Repository outboxRepository
	Registry   registryResolver
	DLQ        dlqRepository
	// Metrics and Backlog are optional.
	Metrics *metrics.OutboxMetrics
	Backlog backlogCounter
}

// Service drains outbox_events to Pub/Sub. Rows are claimed with SKIP LOCKED
// inside one transaction per batch, so several publishers can run at once.
type Service struct {
	logg         *logger.Logger
	db           dbClient
	broker       broker
	repo         outboxRepository
	registry     registryResolver
	dlq          dlqRepository
	metrics      *metrics.OutboxMetrics
	backlog      backlogCounter
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
}

// NewService validates params and applies outbox defaults.
func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.Broker == nil:
		return nil, errors.New("pubsub broker is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.DLQ == nil:
		return nil, errors.New("dlq repository is required")
	}

	cfg := params.Config.Outbox
	s := &Service{
		logg:         params.Logger,
		db:           params.DB,
		broker:       params.Broker,
		repo:         params.Repository,
		registry:     params.Registry,
		dlq:          params.DLQ,
		metrics:      params.Metrics,
		backlog:      params.Backlog,
		batchSize:    cfg.BatchSize,
		maxAttempts:  cfg.MaxAttempts,
		pollInterval: time.Duration(cfg.PollIntervalMS) * time.Millisecond,
	}
	if s.batchSize <= 0 {
		s.batchSize = defaultBatchSize
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = defaultMaxAttempts
	}
	if s.pollInterval <= 0 {
		s.pollInterval = defaultPollInterval
	}
	return s, nil
}

// Run polls until ctx ends. Empty polls wait the poll interval; failing
// batches back off exponentially up to maxBackoff.
func (s *Service) Run(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{
		"database": s.db.Ping,
		"pubsub":   s.broker.Ping,
	} {
		if err := ping(ctx); err != nil {
			return fmt.Errorf("%s not ready: %w", name, err)
		}
	}

	var backoff retry.Backoff
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		stats, err := s.processBatch(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox batch failed", err)
			if backoff == nil {
				backoff = s.errorBackoff()
			}
			wait, _ = backoff.Next()
		case stats.claimed == 0:
			backoff = nil
			s.metrics.SetBacklog(0)
			wait = s.idleWait()
		default:
			backoff = nil
			s.record(ctx, stats)
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// record exports batch outcomes and refreshes the backlog gauge. A failed
// count only costs the gauge one refresh.
func (s *Service) record(ctx context.Context, stats batchStats) {
	s.metrics.AddRows(metrics.OutboxOutcomePublished, stats.published)
	s.metrics.AddRows(metrics.OutboxOutcomeRetried, stats.retried)
	s.metrics.AddRows(metrics.OutboxOutcomeDead, stats.dead)

	fields := stats.fields()
	if s.backlog != nil {
		pending, err := s.backlog.CountPending(ctx, s.maxAttempts)
		if err != nil {
			s.logg.Error(ctx, "outbox backlog count failed", err)
		} else {
			s.metrics.SetBacklog(pending)
			fields["backlog"] = pending
		}
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), "outbox batch done")
}

func (s *Service) errorBackoff() retry.Backoff {
	b := retry.NewExponential(s.pollInterval)
	b = retry.WithJitter(jitterWindow, b)
	return retry.WithCappedDuration(maxBackoff, b)
}

func (s *Service) idleWait() time.Duration {
	return s.pollInterval + rand.N(jitterWindow)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

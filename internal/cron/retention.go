package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/escrowpay-backend/pkg/logger"
)

const (
	defaultOutboxRetention       = 30 * 24 * time.Hour
	defaultNotificationRetention = 90 * 24 * time.Hour
	retentionBatchSize           = 500
	retentionMaxBatches          = 20
)

// pruneFunc deletes at most limit rows older than cutoff and reports how many
// went.
type pruneFunc func(ctx context.Context, cutoff time.Time, limit int) (int64, error)

// retentionJob deletes expired rows in bounded batches. A run stops after
// retentionMaxBatches so a large backlog drains over several cycles instead
// of holding the cron lock.
type retentionJob struct {
	name      string
	logg      *logger.Logger
	prune     pruneFunc
	retention time.Duration
	batch     int
	now       func() time.Time
}

func newRetentionJob(name string, logg *logger.Logger, prune pruneFunc, retention, fallback time.Duration) *retentionJob {
	if retention <= 0 {
		retention = fallback
	}
	return &retentionJob{
		name:      name,
		logg:      logg,
		prune:     prune,
		retention: retention,
		batch:     retentionBatchSize,
		now:       time.Now,
	}
}

func (j *retentionJob) Name() string { return j.name }

func (j *retentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var (
		deleted int64
		batches int
	)
	for batches < retentionMaxBatches {
		rows, err := j.prune(ctx, cutoff, j.batch)
		if err != nil {
			return fmt.Errorf("%s: %w", j.name, err)
		}
		batches++
		deleted += rows
		if rows < int64(j.batch) {
			break
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"retention":    j.retention.String(),
		"rows_deleted": deleted,
		"batches":      batches,
	}), "retention sweep complete")
	return nil
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	Repository outboxRetentionRepo
	Retention  time.Duration
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// NewOutboxRetentionJob prunes published outbox rows. Unpublished rows are
// never touched regardless of age.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	return newRetentionJob("outbox-retention", params.Logger, params.Repository.DeletePublishedBefore, params.Retention, defaultOutboxRetention), nil
}

type NotificationCleanupJobParams struct {
	Logger     *logger.Logger
	Repository notificationsCleanupRepo
	Retention  time.Duration
}

type notificationsCleanupRepo interface {
	DeleteReadBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// NewNotificationCleanupJob removes notifications read before the retention
// window. Unread notifications are kept.
func NewNotificationCleanupJob(params NotificationCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	return newRetentionJob("notification-cleanup", params.Logger, params.Repository.DeleteReadBefore, params.Retention, defaultNotificationRetention), nil
}

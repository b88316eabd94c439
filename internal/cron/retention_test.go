package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePruner struct {
	cutoffs []time.Time
	limits  []int
	results []int64
	err     error
}

func (f *fakePruner) prune(_ context.Context, cutoff time.Time, limit int) (int64, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	f.limits = append(f.limits, limit)
	if f.err != nil {
		return 0, f.err
	}
	if len(f.results) == 0 {
		return 0, nil
	}
	rows := f.results[0]
	f.results = f.results[1:]
	return rows, nil
}

func (f *fakePruner) DeletePublishedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	return f.prune(ctx, cutoff, limit)
}

func (f *fakePruner) DeleteReadBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	return f.prune(ctx, cutoff, limit)
}

func TestRetentionJobsUseTheirDefaults(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

	outboxRepo := &fakePruner{results: []int64{7}}
	outboxJob, err := NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: quietLogger(), Repository: outboxRepo})
	require.NoError(t, err)
	outboxJob.(*retentionJob).now = func() time.Time { return now }

	notifRepo := &fakePruner{results: []int64{3}}
	notifJob, err := NewNotificationCleanupJob(NotificationCleanupJobParams{Logger: quietLogger(), Repository: notifRepo})
	require.NoError(t, err)
	notifJob.(*retentionJob).now = func() time.Time { return now }

	require.NoError(t, outboxJob.Run(context.Background()))
	require.NoError(t, notifJob.Run(context.Background()))

	assert.Equal(t, "outbox-retention", outboxJob.Name())
	assert.Equal(t, "notification-cleanup", notifJob.Name())
	assert.Equal(t, []time.Time{now.Add(-defaultOutboxRetention)}, outboxRepo.cutoffs)
	assert.Equal(t, []time.Time{now.Add(-defaultNotificationRetention)}, notifRepo.cutoffs)
	assert.Equal(t, []int{retentionBatchSize}, notifRepo.limits)
}

func TestRetentionJobDrainsFullBatches(t *testing.T) {
	repo := &fakePruner{results: []int64{3, 3, 1}}
	job := newRetentionJob("test", quietLogger(), repo.prune, time.Hour, time.Hour)
	job.batch = 3

	require.NoError(t, job.Run(context.Background()))
	assert.Len(t, repo.cutoffs, 3)
	assert.Equal(t, repo.cutoffs[0], repo.cutoffs[2], "cutoff is fixed for the whole run")
}

func TestRetentionJobStopsAtBatchCap(t *testing.T) {
	results := make([]int64, retentionMaxBatches+5)
	for i := range results {
		results[i] = 2
	}
	repo := &fakePruner{results: results}
	job := newRetentionJob("test", quietLogger(), repo.prune, time.Hour, time.Hour)
	job.batch = 2

	require.NoError(t, job.Run(context.Background()))
	assert.Len(t, repo.cutoffs, retentionMaxBatches)
}

func TestRetentionJobWrapsErrors(t *testing.T) {
	repo := &fakePruner{err: errors.New("boom")}
	job, err := NewNotificationCleanupJob(NotificationCleanupJobParams{Logger: quietLogger(), Repository: repo, Retention: time.Hour})
	require.NoError(t, err)

	err = job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notification-cleanup")
}

func TestRetentionJobConstructorsValidate(t *testing.T) {
	_, err := NewOutboxRetentionJob(OutboxRetentionJobParams{Repository: &fakePruner{}})
	assert.Error(t, err)
	_, err = NewNotificationCleanupJob(NotificationCleanupJobParams{Logger: quietLogger()})
	assert.Error(t, err)
}

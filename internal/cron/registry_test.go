package cron

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsOrderAndCopies(t *testing.T) {
	reconcile := &stubJob{name: "payment-reconcile"}
	cleanup := &stubJob{name: "notification-cleanup"}
	registry := NewRegistry(reconcile, nil)
	require.NoError(t, registry.Register(cleanup))

	jobs := registry.Jobs()
	require.Len(t, jobs, 2)
	assert.Same(t, reconcile, jobs[0])
	assert.Same(t, cleanup, jobs[1])

	jobs[0] = nil
	assert.NotNil(t, registry.Jobs()[0])
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	registry := NewRegistry(&stubJob{name: "payout-stale"})
	assert.Error(t, registry.Register(&stubJob{name: "payout-stale"}))
	assert.Len(t, registry.Jobs(), 1)

	assert.Panics(t, func() {
		NewRegistry(&stubJob{name: "a"}, &stubJob{name: "a"})
	})
}

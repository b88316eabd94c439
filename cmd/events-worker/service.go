package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/escrowpay-backend/pkg/config"
	"github.com/angelmondragon/escrowpay-backend/pkg/logger"
)

// runner is a long-lived consumer loop.
type runner interface {
	Run(ctx context.Context) error
}

type dependency struct {
	name string
	ping func(context.Context) error
}

type ServiceParams struct {
	Config               *config.Config
	Logger               *logger.Logger
	Dependencies         []dependency
	NotificationConsumer runner
	AnalyticsConsumer    runner
}

// Service runs the notification and analytics consumers side by side. Either
// stopping with an error stops the whole worker.
type Service struct {
	cfg          *config.Config
	logg         *logger.Logger
	dependencies []dependency
	consumers    map[string]runner
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.NotificationConsumer == nil {
		return nil, errors.New("notification consumer is required")
	}
	if params.AnalyticsConsumer == nil {
		return nil, errors.New("analytics consumer is required")
	}

	return &Service{
		cfg:          params.Config,
		logg:         params.Logger,
		dependencies: params.Dependencies,
		consumers: map[string]runner{
			"notifications": params.NotificationConsumer,
			"analytics":     params.AnalyticsConsumer,
		},
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	for _, dep := range s.dependencies {
		if err := pingDependency(ctx, s.logg, dep.name, dep.ping); err != nil {
			return err
		}
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		name string
		err  error
	}
	results := make(chan result, len(s.consumers))
	for name, consumer := range s.consumers {
		go func() {
			results <- result{name: name, err: consumer.Run(runCtx)}
		}()
	}

	var firstErr error
	for range s.consumers {
		res := <-results
		if res.err != nil && !errors.Is(res.err, context.Canceled) {
			s.logg.Error(s.logg.WithField(ctx, "consumer", res.name), "consumer stopped unexpectedly", res.err)
			if firstErr == nil {
				firstErr = res.err
			}
		}
		cancel()
	}

	if firstErr != nil {
		return firstErr
	}
	if ctx.Err() != nil {
		s.logg.Info(ctx, "worker context canceled")
		return ctx.Err()
	}
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/joho/godotenv"

	"github.com/angelmondragon/escrowpay-backend/internal/analytics/router"
	"github.com/angelmondragon/escrowpay-backend/internal/analytics/types"
	"github.com/angelmondragon/escrowpay-backend/internal/analytics/worker"
	"github.com/angelmondragon/escrowpay-backend/internal/analytics/writer"
	"github.com/angelmondragon/escrowpay-backend/internal/notifications"
	"github.com/angelmondragon/escrowpay-backend/pkg/bigquery"
	"github.com/angelmondragon/escrowpay-backend/pkg/config"
	"github.com/angelmondragon/escrowpay-backend/pkg/db"
	"github.com/angelmondragon/escrowpay-backend/pkg/instance"
	"github.com/angelmondragon/escrowpay-backend/pkg/logger"
	"github.com/angelmondragon/escrowpay-backend/pkg/migrate"
	"github.com/angelmondragon/escrowpay-backend/pkg/outbox/dedupe"
	"github.com/angelmondragon/escrowpay-backend/pkg/pubsub"
	"github.com/angelmondragon/escrowpay-backend/pkg/redis"
	"github.com/angelmondragon/escrowpay-backend/pkg/sms"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "events-worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "events-worker"

	logg = logger.New(logger.Options{
		ServiceName: "events-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "failed to close database", err)
		}
	}()

	err = migrate.MaybeRunDev(ctx, cfg, logg, dbClient)
	requireResource(ctx, logg, "dev migrations", err)

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "failed to close redis client", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "failed to close pubsub client", err)
		}
	}()

	settlementSchema, err := cbigquery.InferSchema(types.SettlementEventRow{})
	requireResource(ctx, logg, "settlement schema", err)
	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg,
		bigquery.WithTableSchema(cfg.BigQuery.SettlementEventsTable, settlementSchema))
	requireResource(ctx, logg, "bigquery client", err)
	defer func() {
		if err := bqClient.Close(); err != nil {
			logg.Error(ctx, "failed to close bigquery client", err)
		}
	}()

	notificationSub := pubsubClient.NotificationSubscription()
	if notificationSub == nil {
		requireResource(ctx, logg, "notification subscription", errors.New("subscription not configured"))
	}
	analyticsSub := pubsubClient.AnalyticsSubscription()
	if analyticsSub == nil {
		requireResource(ctx, logg, "analytics subscription", errors.New("subscription not configured"))
	}

	claims, err := dedupe.New(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	requireResource(ctx, logg, "event dedupe", err)

	var dispatcher notifications.Dispatcher
	if cfg.SMS.Enabled() {
		smsClient, err := sms.NewClient(cfg.SMS, cfg.Webhooks.SMSCallbackURL, logg)
		requireResource(ctx, logg, "sms client", err)
		dispatcher = smsClient
	} else {
		logg.Warn(ctx, "sms provider not configured; notifications stay in-app")
	}

	notificationConsumer, err := notifications.NewConsumer(
		notifications.NewRepository(dbClient.DB()),
		notificationSub,
		claims,
		dispatcher,
		logg,
	)
	requireResource(ctx, logg, "notification consumer", err)

	analyticsWriter, err := writer.New(bqClient, writer.Config{
		SettlementTable: bqClient.SettlementTable(),
	})
	requireResource(ctx, logg, "analytics bigquery writer", err)

	routingHandler, err := router.NewRouter(analyticsWriter, logg, nil)
	requireResource(ctx, logg, "analytics router", err)

	analyticsConsumer, err := worker.NewService(analyticsSub, routingHandler, claims, logg)
	requireResource(ctx, logg, "analytics worker service", err)

	service, err := NewService(ServiceParams{
		Config: cfg,
		Logger: logg,
		Dependencies: []dependency{
			{name: "database", ping: dbClient.Ping},
			{name: "redis", ping: redisClient.Ping},
			{name: "pubsub", ping: pubsubClient.Ping},
			{name: "bigquery", ping: bqClient.Ping},
		},
		NotificationConsumer: notificationConsumer,
		AnalyticsConsumer:    analyticsConsumer,
	})
	requireResource(ctx, logg, "events worker service", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})
	logg.Info(runCtx, "events worker ready")

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "events worker failed", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "events worker shutting down gracefully")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}

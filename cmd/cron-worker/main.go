package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/escrowpay-backend/internal/cron"
	"github.com/angelmondragon/escrowpay-backend/internal/disputes"
	"github.com/angelmondragon/escrowpay-backend/internal/escrow"
	"github.com/angelmondragon/escrowpay-backend/internal/idempotency"
	"github.com/angelmondragon/escrowpay-backend/internal/notifications"
	"github.com/angelmondragon/escrowpay-backend/internal/orders"
	"github.com/angelmondragon/escrowpay-backend/internal/payments"
	"github.com/angelmondragon/escrowpay-backend/internal/payouts"
	"github.com/angelmondragon/escrowpay-backend/pkg/config"
	"github.com/angelmondragon/escrowpay-backend/pkg/db"
	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
	"github.com/angelmondragon/escrowpay-backend/pkg/gateway"
	"github.com/angelmondragon/escrowpay-backend/pkg/instance"
	"github.com/angelmondragon/escrowpay-backend/pkg/logger"
	"github.com/angelmondragon/escrowpay-backend/pkg/metrics"
	"github.com/angelmondragon/escrowpay-backend/pkg/migrate"
	"github.com/angelmondragon/escrowpay-backend/pkg/outbox"
	"github.com/angelmondragon/escrowpay-backend/pkg/redis"
	"github.com/angelmondragon/escrowpay-backend/pkg/square"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	err = migrate.MaybeRunDev(ctx, cfg, logg, dbClient)
	requireResource(ctx, logg, "dev migrations", err)

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	moneyMetrics := metrics.NewMoneyMetrics(prometheus.DefaultRegisterer)
	cronMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)

	gormDB := dbClient.DB()
	outboxRepo := outbox.NewRepository(gormDB)
	outboxService := outbox.NewService(outboxRepo, logg)
	defaultCurrency := enums.Currency(cfg.Escrow.DefaultCurrency)

	paymentService, payoutService := buildMoneyServices(ctx, cfg, logg, dbClient, redisClient, outboxService, moneyMetrics, defaultCurrency)

	reconcileJob, err := cron.NewPaymentReconcileJob(cron.PaymentReconcileJobParams{
		Logger:     logg,
		Payments:   paymentService,
		StaleAfter: cfg.Cron.PaymentStaleAfter,
		BatchSize:  cfg.Cron.PaymentBatchSize,
	})
	requireResource(ctx, logg, "payment reconcile job", err)

	payoutJob, err := cron.NewPayoutStaleJob(cron.PayoutStaleJobParams{
		Logger:     logg,
		Payouts:    payoutService,
		StaleAfter: cfg.Cron.PayoutStaleAfter,
	})
	requireResource(ctx, logg, "payout stale job", err)

	outboxJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		Repository: outboxRepo,
		Retention:  cfg.Outbox.Retention,
	})
	requireResource(ctx, logg, "outbox retention job", err)

	notificationJob, err := cron.NewNotificationCleanupJob(cron.NotificationCleanupJobParams{
		Logger:     logg,
		Repository: notifications.NewRepository(gormDB),
	})
	requireResource(ctx, logg, "notification cleanup job", err)

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker"), cfg.Cron.LockTTL, instance.GetID())
	requireResource(ctx, logg, "cron lock", err)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   cron.NewRegistry(reconcileJob, payoutJob, outboxJob, notificationJob),
		Lock:       lock,
		Metrics:    cronMetrics,
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	requireResource(ctx, logg, "cron service", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})
	logg.Info(runCtx, "starting cron worker")

	go func() {
		if err := metrics.Serve(runCtx, cfg.Metrics.Addr, prometheus.DefaultGatherer, logg); err != nil {
			logg.Error(runCtx, "metrics listener stopped", err)
		}
	}()

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(runCtx, "cron worker shutting down gracefully")
}

// buildMoneyServices wires the payment and payout services the reconcile jobs
// drive. Reconciled payments settle escrow the same way webhooks do.
func buildMoneyServices(
	ctx context.Context,
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	outboxService *outbox.Service,
	moneyMetrics *metrics.MoneyMetrics,
	currency enums.Currency,
) (payments.Service, payouts.Service) {
	gormDB := dbClient.DB()
	maxAmount := cfg.Escrow.MaxAmountDecimal()

	gatewayClient, err := gateway.NewClient(cfg.Gateway, gateway.WithMetrics(moneyMetrics))
	requireResource(ctx, logg, "payment gateway client", err)

	var cards payments.CardProcessor
	if cfg.Square.Enabled() {
		squareClient, err := square.NewClient(ctx, cfg.Square, logg)
		requireResource(ctx, logg, "square client", err)
		cards = squareClient
	}

	cache, err := idempotency.NewCache(redisClient, cfg.Idempotency.TTL, logg, moneyMetrics)
	requireResource(ctx, logg, "idempotency cache", err)

	disputeService, err := disputes.NewService(disputes.NewRepository(gormDB))
	requireResource(ctx, logg, "dispute bridge", err)

	escrowService, err := escrow.NewService(escrow.Params{
		Repository:      escrow.NewRepository(gormDB),
		Tx:              dbClient,
		Outbox:          outboxService,
		Disputes:        disputeService,
		Metrics:         moneyMetrics,
		Logger:          logg,
		MaxAmount:       maxAmount,
		DefaultCurrency: currency,
	})
	requireResource(ctx, logg, "escrow ledger", err)

	payoutService, err := payouts.NewService(payouts.Params{
		Repository:      payouts.NewRepository(gormDB),
		Tx:              dbClient,
		Outbox:          outboxService,
		Metrics:         moneyMetrics,
		Logger:          logg,
		Minimum:         cfg.Payouts.MinimumDecimal(),
		DefaultCurrency: currency,
	})
	requireResource(ctx, logg, "payout processor", err)

	orderService, err := orders.NewService(orders.NewRepository(gormDB), dbClient, outboxService, escrowService, payoutService, maxAmount)
	requireResource(ctx, logg, "order service", err)

	paymentService, err := payments.NewService(payments.Params{
		Repository:      payments.NewRepository(gormDB),
		Tx:              dbClient,
		Outbox:          outboxService,
		Gateway:         gatewayClient,
		Cards:           cards,
		Escrow:          escrowService,
		Orders:          orderService,
		Cache:           cache,
		Logger:          logg,
		Production:      cfg.App.IsProd(),
		MaxAmount:       maxAmount,
		DefaultCurrency: currency,
	})
	requireResource(ctx, logg, "payment orchestrator", err)

	return paymentService, payoutService
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}

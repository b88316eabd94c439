package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/escrowpay-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/escrowpay-backend/api/controllers/webhooks"
	"github.com/angelmondragon/escrowpay-backend/api/routes"
	"github.com/angelmondragon/escrowpay-backend/internal/disputes"
	"github.com/angelmondragon/escrowpay-backend/internal/escrow"
	"github.com/angelmondragon/escrowpay-backend/internal/escrow/releases"
	"github.com/angelmondragon/escrowpay-backend/internal/idempotency"
	"github.com/angelmondragon/escrowpay-backend/internal/notifications"
	"github.com/angelmondragon/escrowpay-backend/internal/orders"
	"github.com/angelmondragon/escrowpay-backend/internal/payments"
	"github.com/angelmondragon/escrowpay-backend/internal/payouts"
	"github.com/angelmondragon/escrowpay-backend/internal/webhooks"
	squarewebhook "github.com/angelmondragon/escrowpay-backend/internal/webhooks/square"
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

const shutdownTimeout = 15 * time.Second

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	moneyMetrics := metrics.NewMoneyMetrics(registry)

	gatewayClient, err := gateway.NewClient(cfg.Gateway, gateway.WithMetrics(moneyMetrics))
	requireResource(ctx, logg, "payment gateway client", err)
	if !gatewayClient.Configured() {
		logg.Warn(ctx, "payment gateway not configured; mobile money runs simulated outside production")
	}

	var (
		cards        payments.CardProcessor
		squareSigner webhookcontrollers.SquareSigner
	)
	if cfg.Square.Enabled() {
		squareClient, err := square.NewClient(ctx, cfg.Square, logg)
		requireResource(ctx, logg, "square client", err)
		cards = squareClient
		squareSigner = squareClient
	} else {
		logg.Warn(ctx, "square not configured; card payments disabled")
	}

	cache, err := idempotency.NewCache(redisClient, cfg.Idempotency.TTL, logg, moneyMetrics)
	requireResource(ctx, logg, "idempotency cache", err)

	gormDB := dbClient.DB()
	outboxService := outbox.NewService(outbox.NewRepository(gormDB), logg)
	defaultCurrency := enums.Currency(cfg.Escrow.DefaultCurrency)
	maxAmount := cfg.Escrow.MaxAmountDecimal()

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
		DefaultCurrency: defaultCurrency,
	})
	requireResource(ctx, logg, "escrow ledger", err)

	releaseService, err := releases.NewService(releases.NewRepository(gormDB), dbClient, escrowService, logg)
	requireResource(ctx, logg, "release workflow", err)

	payoutService, err := payouts.NewService(payouts.Params{
		Repository:      payouts.NewRepository(gormDB),
		Tx:              dbClient,
		Outbox:          outboxService,
		Metrics:         moneyMetrics,
		Logger:          logg,
		Minimum:         cfg.Payouts.MinimumDecimal(),
		DefaultCurrency: defaultCurrency,
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
		DefaultCurrency: defaultCurrency,
	})
	requireResource(ctx, logg, "payment orchestrator", err)

	notificationService, err := notifications.NewService(notifications.NewRepository(gormDB))
	requireResource(ctx, logg, "notification service", err)

	paymentGuard, err := webhooks.NewReplayGuard(redisClient, cfg.Webhooks.ReplayTTL, "payments")
	requireResource(ctx, logg, "payment webhook replay guard", err)
	squareGuard, err := webhooks.NewReplayGuard(redisClient, cfg.Webhooks.ReplayTTL, "square")
	requireResource(ctx, logg, "square webhook replay guard", err)
	squareWebhooks, err := squarewebhook.NewService(paymentService, logg)
	requireResource(ctx, logg, "square webhook service", err)

	handler := routes.NewRouter(routes.Dependencies{
		Config: cfg,
		Logger: logg,
		Cache:  redisClient,
		Readiness: []controllers.ReadinessCheck{
			{Name: "database", Ping: dbClient.Ping},
			{Name: "redis", Ping: redisClient.Ping},
		},
		Metrics:             promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Payments:            paymentService,
		Escrow:              escrowService,
		Releases:            releaseService,
		Orders:              orderService,
		Payouts:             payoutService,
		Notifications:       notificationService,
		PaymentWebhookGuard: paymentGuard,
		SquareWebhooks:      squareWebhooks,
		SquareSigner:        squareSigner,
		SquareWebhookGuard:  squareGuard,
		WebhookRejections:   moneyMetrics,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	runCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(runCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logg.Info(runCtx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(runCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(runCtx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(runCtx, "api server shutdown failed", err)
		}
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}

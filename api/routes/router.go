package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/escrowpay-backend/api/controllers"
	ordercontrollers "github.com/angelmondragon/escrowpay-backend/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/escrowpay-backend/api/controllers/webhooks"
	"github.com/angelmondragon/escrowpay-backend/api/middleware"
	"github.com/angelmondragon/escrowpay-backend/internal/escrow"
	"github.com/angelmondragon/escrowpay-backend/internal/escrow/releases"
	"github.com/angelmondragon/escrowpay-backend/internal/notifications"
	"github.com/angelmondragon/escrowpay-backend/internal/orders"
	"github.com/angelmondragon/escrowpay-backend/internal/payments"
	"github.com/angelmondragon/escrowpay-backend/internal/payouts"
	"github.com/angelmondragon/escrowpay-backend/pkg/config"
	"github.com/angelmondragon/escrowpay-backend/pkg/enums"
	"github.com/angelmondragon/escrowpay-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/escrowpay-backend/pkg/redis"
)

// Cache is the redis surface the HTTP layer needs for idempotent replays and
// rate limiting.
type Cache interface {
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Dependencies carries everything the router hands to controllers. Nil
// services make their routes answer 500; a nil Cache disables idempotent
// replays and rate limiting.
type Dependencies struct {
	Config *config.Config
	Logger *logger.Logger
	Cache  Cache

	Readiness []controllers.ReadinessCheck
	Metrics   http.Handler

	Payments      payments.Service
	Escrow        escrow.Service
	Releases      releases.Service
	Orders        orders.Service
	Payouts       payouts.Service
	Notifications notifications.Service

	PaymentWebhookGuard webhookcontrollers.DeliveryGuard
	SquareWebhooks      webhookcontrollers.SquareWebhookService
	SquareSigner        webhookcontrollers.SquareSigner
	SquareWebhookGuard  webhookcontrollers.DeliveryGuard
	WebhookRejections   webhookcontrollers.RejectionRecorder
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	rateLimit := func(name string, limit int) func(http.Handler) http.Handler {
		return middleware.RateLimit(middleware.NewRateLimitPolicy(name, cfg.RateLimit.Window, limit), deps.Cache, logg)
	}
	// Money-moving routes keep their replay longer than housekeeping ones.
	idempotent := middleware.Idempotency(deps.Cache, cfg.Idempotency.TTL, logg)
	critical := middleware.Idempotency(deps.Cache, cfg.Idempotency.CriticalTTL, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Readiness...))
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Use(rateLimit("webhooks", cfg.RateLimit.WebhookRequests))
		r.Post("/payments", webhookcontrollers.PaymentGatewayWebhook(deps.Payments, cfg.Webhooks, deps.PaymentWebhookGuard, deps.WebhookRejections, logg))
		r.Post("/sms", webhookcontrollers.SMSDeliveryWebhook(deps.Notifications, cfg.Webhooks, deps.WebhookRejections, logg))
		r.Post("/square", webhookcontrollers.SquareWebhook(deps.SquareWebhooks, deps.SquareSigner, deps.SquareWebhookGuard, deps.WebhookRejections, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/payments", func(r chi.Router) {
			r.Use(rateLimit("payments", cfg.RateLimit.PaymentRequests))
			r.With(middleware.RequireRole(logg, enums.ActorRoleBuyer), critical).Post("/mobile-money", controllers.InitiateMobileMoneyPayment(deps.Payments, logg))
			r.With(middleware.RequireRole(logg, enums.ActorRoleBuyer), critical).Post("/card", controllers.InitiateCardPayment(deps.Payments, logg))
			r.Get("/{paymentId}", controllers.GetPayment(deps.Payments, logg))
			r.With(middleware.RequireRole(logg, enums.ActorRoleAdmin), critical).Post("/{paymentId}/refund", controllers.RefundPayment(deps.Payments, logg))
		})

		r.Route("/escrow", func(r chi.Router) {
			r.With(middleware.RequireRole(logg, enums.ActorRoleBuyer, enums.ActorRoleAdmin), idempotent).Post("/accounts", controllers.CreateEscrowAccount(deps.Escrow, deps.Orders, logg))
			r.Get("/accounts/{accountId}", controllers.GetEscrowAccount(deps.Escrow, logg))
			r.Get("/orders/{orderId}", controllers.GetEscrowByOrder(deps.Escrow, logg))
			r.Get("/accounts/{accountId}/transactions", controllers.ListEscrowTransactions(deps.Escrow, logg))
			r.Get("/accounts/{accountId}/releases", controllers.ListEscrowReleases(deps.Releases, deps.Escrow, logg))
			r.With(idempotent).Post("/accounts/{accountId}/releases", controllers.RequestEscrowRelease(deps.Releases, deps.Escrow, logg))
			r.With(idempotent).Post("/accounts/{accountId}/disputes", controllers.OpenEscrowDispute(deps.Escrow, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(logg, enums.ActorRoleAdmin))
				r.With(critical).Post("/releases/{releaseId}/approve", controllers.ApproveEscrowRelease(deps.Releases, logg))
				r.With(idempotent).Post("/releases/{releaseId}/reject", controllers.RejectEscrowRelease(deps.Releases, logg))
				r.With(critical).Post("/accounts/{accountId}/disputes/resolve", controllers.ResolveEscrowDispute(deps.Escrow, logg))
			})
		})

		r.Route("/orders", func(r chi.Router) {
			r.With(middleware.RequireRole(logg, enums.ActorRoleBuyer), critical).Post("/", ordercontrollers.Create(deps.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
			r.With(middleware.RequireRole(logg, enums.ActorRoleAdmin), critical).Post("/{orderId}/complete", ordercontrollers.Complete(deps.Orders, logg))
		})

		r.Route("/vendors/me", func(r chi.Router) {
			r.Use(middleware.RequireVendor(logg))
			r.Get("/wallet", controllers.VendorWallet(deps.Payouts, logg))
			r.Get("/payouts", controllers.VendorPayouts(deps.Payouts, logg))
			r.With(rateLimit("payouts", cfg.RateLimit.PayoutRequests), critical).Post("/payouts", controllers.RequestVendorPayout(deps.Payouts, logg))
			r.With(idempotent).Post("/payouts/{payoutId}/cancel", controllers.CancelVendorPayout(deps.Payouts, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleAdmin))
			r.With(critical).Post("/payouts/{payoutId}/process", controllers.ProcessPayout(deps.Payouts, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(deps.Notifications, logg))
			r.With(idempotent).Post("/read-all", controllers.MarkAllNotificationsRead(deps.Notifications, logg))
			r.With(idempotent).Post("/{notificationId}/read", controllers.MarkNotificationRead(deps.Notifications, logg))
		})
	})

	return r
}

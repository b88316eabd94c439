package config

const (
	EnvPrefix = "ESCROWPAY"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv = "ESCROWPAY_APP_ENV"
	EnvPort   = "ESCROWPAY_APP_PORT"

	EnvDBDSN  = "ESCROWPAY_DB_DSN"
	EnvDBHost = "ESCROWPAY_DB_HOST"
	EnvDBUser = "ESCROWPAY_DB_USER"
	EnvDBName = "ESCROWPAY_DB_NAME"

	EnvRedisURL = "ESCROWPAY_REDIS_URL"

	EnvJWTSecret = "ESCROWPAY_JWT_SECRET"
	EnvJWTIssuer = "ESCROWPAY_JWT_ISSUER"

	EnvGCPProjectID = "ESCROWPAY_GCP_PROJECT_ID"

	EnvPubSubMoneyEventsTopic    = "ESCROWPAY_PUBSUB_MONEY_EVENTS_TOPIC"
	EnvPubSubNotificationSub     = "ESCROWPAY_PUBSUB_NOTIFICATION_SUBSCRIPTION"
	EnvPubSubAnalyticsSub        = "ESCROWPAY_PUBSUB_ANALYTICS_SUBSCRIPTION"
	EnvGatewayBaseURL            = "ESCROWPAY_GATEWAY_BASE_URL"
	EnvGatewayAPIKey             = "ESCROWPAY_GATEWAY_API_KEY"
	EnvGatewayMerchantID         = "ESCROWPAY_GATEWAY_MERCHANT_ID"
	EnvGatewayTimeout            = "ESCROWPAY_GATEWAY_TIMEOUT"
	EnvEscrowMaxAmount           = "ESCROWPAY_ESCROW_MAX_AMOUNT"
	EnvPayoutMinimum             = "ESCROWPAY_PAYOUT_MINIMUM"
	EnvWebhookPaymentSecret      = "ESCROWPAY_WEBHOOK_PAYMENT_SECRET"
	EnvIdempotencyTTL            = "ESCROWPAY_IDEMPOTENCY_TTL"
	EnvCronPaymentStaleAfter     = "ESCROWPAY_CRON_PAYMENT_STALE_AFTER"
	EnvSquareAccessToken         = "ESCROWPAY_SQUARE_ACCESS_TOKEN"
	EnvSquareLocationID          = "ESCROWPAY_SQUARE_LOCATION_ID"
	EnvWebhookTimestampTolerance = "ESCROWPAY_WEBHOOK_TIMESTAMP_TOLERANCE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

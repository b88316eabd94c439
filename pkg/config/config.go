package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
	Gateway      GatewayConfig
	Square       SquareConfig
	Webhooks     WebhookConfig
	SMS          SMSConfig
	Escrow       EscrowConfig
	Payouts      PayoutConfig
	Idempotency  IdempotencyConfig
	Cron         CronConfig
	RateLimit    RateLimitConfig
	Metrics      MetricsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Payouts.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Escrow.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"ESCROWPAY_APP_ENV" required:"true"`
	Port         string   `envconfig:"ESCROWPAY_APP_PORT" required:"true"`
	PublicURL    string   `envconfig:"ESCROWPAY_APP_PUBLIC_URL" default:"http://localhost:8080"`
	LogLevel     string   `envconfig:"ESCROWPAY_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"ESCROWPAY_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"ESCROWPAY_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"ESCROWPAY_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"ESCROWPAY_DB_DSN"`
	Driver string `envconfig:"ESCROWPAY_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"ESCROWPAY_DB_HOST"`
	LegacyPort     int    `envconfig:"ESCROWPAY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ESCROWPAY_DB_USER"`
	LegacyPassword string `envconfig:"ESCROWPAY_DB_PASSWORD"`
	LegacyName     string `envconfig:"ESCROWPAY_DB_NAME"`
	LegacySSLMode  string `envconfig:"ESCROWPAY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ESCROWPAY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ESCROWPAY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ESCROWPAY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ESCROWPAY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ESCROWPAY_REDIS_URL" required:"true"`
	Address      string        `envconfig:"ESCROWPAY_REDIS_ADDR"`
	Password     string        `envconfig:"ESCROWPAY_REDIS_PASSWORD"`
	DB           int           `envconfig:"ESCROWPAY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ESCROWPAY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ESCROWPAY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ESCROWPAY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ESCROWPAY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ESCROWPAY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies bearer tokens minted by the identity service.
type JWTConfig struct {
	Secret string `envconfig:"ESCROWPAY_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"ESCROWPAY_JWT_ISSUER" required:"true"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"ESCROWPAY_AUTO_MIGRATE" default:"false"`
	// SimulateGateway lets non-production environments run without gateway credentials.
	SimulateGateway bool `envconfig:"ESCROWPAY_SIMULATE_GATEWAY" default:"true"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"ESCROWPAY_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"ESCROWPAY_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"ESCROWPAY_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"ESCROWPAY_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	MoneyEventsTopic         string `envconfig:"ESCROWPAY_PUBSUB_MONEY_EVENTS_TOPIC" required:"true"`
	NotificationSubscription string `envconfig:"ESCROWPAY_PUBSUB_NOTIFICATION_SUBSCRIPTION" required:"true"`
	AnalyticsSubscription    string `envconfig:"ESCROWPAY_PUBSUB_ANALYTICS_SUBSCRIPTION" required:"true"`
}

type BigQueryConfig struct {
	Dataset               string `envconfig:"ESCROWPAY_BIGQUERY_DATASET" default:"escrowpay"`
	SettlementEventsTable string `envconfig:"ESCROWPAY_BIGQUERY_SETTLEMENT_TABLE" default:"settlement_events"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"ESCROWPAY_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"ESCROWPAY_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"ESCROWPAY_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"ESCROWPAY_OUTBOX_RETENTION" default:"720h"`
}

// GatewayConfig describes the mobile-money payment gateway.
type GatewayConfig struct {
	BaseURL      string        `envconfig:"ESCROWPAY_GATEWAY_BASE_URL"`
	APIKey       string        `envconfig:"ESCROWPAY_GATEWAY_API_KEY"`
	MerchantID   string        `envconfig:"ESCROWPAY_GATEWAY_MERCHANT_ID"`
	CallbackURL  string        `envconfig:"ESCROWPAY_GATEWAY_CALLBACK_URL"`
	Timeout      time.Duration `envconfig:"ESCROWPAY_GATEWAY_TIMEOUT" default:"30s"`
	MaxRetries   uint64        `envconfig:"ESCROWPAY_GATEWAY_MAX_RETRIES" default:"3"`
	RetryBackoff time.Duration `envconfig:"ESCROWPAY_GATEWAY_RETRY_BACKOFF" default:"200ms"`
	MaxBackoff   time.Duration `envconfig:"ESCROWPAY_GATEWAY_MAX_BACKOFF" default:"5s"`
}

// Configured reports whether enough settings exist to reach the gateway.
func (g GatewayConfig) Configured() bool {
	return strings.TrimSpace(g.BaseURL) != "" && strings.TrimSpace(g.APIKey) != "" && strings.TrimSpace(g.MerchantID) != ""
}

// SquareConfig holds the card processor credentials.
type SquareConfig struct {
	AccessToken string `envconfig:"ESCROWPAY_SQUARE_ACCESS_TOKEN"`
	LocationID  string `envconfig:"ESCROWPAY_SQUARE_LOCATION_ID"`
	Env         string `envconfig:"ESCROWPAY_SQUARE_ENV" default:"sandbox"`
	// WebhookSignatureKey verifies Square webhook deliveries.
	WebhookSignatureKey string `envconfig:"ESCROWPAY_SQUARE_WEBHOOK_SIGNATURE_KEY"`
	WebhookURL          string `envconfig:"ESCROWPAY_SQUARE_WEBHOOK_URL"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

// Enabled reports whether card payments can be taken.
func (s SquareConfig) Enabled() bool {
	return strings.TrimSpace(s.AccessToken) != "" && strings.TrimSpace(s.LocationID) != ""
}

type WebhookConfig struct {
	PaymentSecret      string        `envconfig:"ESCROWPAY_WEBHOOK_PAYMENT_SECRET"`
	SMSAuthToken       string        `envconfig:"ESCROWPAY_WEBHOOK_SMS_AUTH_TOKEN"`
	SMSCallbackURL     string        `envconfig:"ESCROWPAY_WEBHOOK_SMS_CALLBACK_URL"`
	TimestampTolerance time.Duration `envconfig:"ESCROWPAY_WEBHOOK_TIMESTAMP_TOLERANCE" default:"5m"`
	ReplayTTL          time.Duration `envconfig:"ESCROWPAY_WEBHOOK_REPLAY_TTL" default:"720h"`
}

// SMSConfig reaches the SMS provider's Messages API. Delivery reports come back
// on Webhooks.SMSCallbackURL.
type SMSConfig struct {
	BaseURL    string        `envconfig:"ESCROWPAY_SMS_BASE_URL"`
	AccountSID string        `envconfig:"ESCROWPAY_SMS_ACCOUNT_SID"`
	AuthToken  string        `envconfig:"ESCROWPAY_SMS_AUTH_TOKEN"`
	FromNumber string        `envconfig:"ESCROWPAY_SMS_FROM_NUMBER"`
	Timeout    time.Duration `envconfig:"ESCROWPAY_SMS_TIMEOUT" default:"10s"`
}

// Enabled reports whether outbound SMS can be sent.
func (s SMSConfig) Enabled() bool {
	return strings.TrimSpace(s.BaseURL) != "" && strings.TrimSpace(s.AccountSID) != "" &&
		strings.TrimSpace(s.AuthToken) != "" && strings.TrimSpace(s.FromNumber) != ""
}

type EscrowConfig struct {
	MaxAmount       string `envconfig:"ESCROWPAY_ESCROW_MAX_AMOUNT" default:"100000000"`
	DefaultCurrency string `envconfig:"ESCROWPAY_ESCROW_DEFAULT_CURRENCY" default:"TZS"`
}

// MaxAmountDecimal returns the escrow ceiling as a decimal.
func (e EscrowConfig) MaxAmountDecimal() decimal.Decimal {
	value, err := decimal.NewFromString(strings.TrimSpace(e.MaxAmount))
	if err != nil {
		return decimal.Zero
	}
	return value
}

func (e EscrowConfig) validate() error {
	if _, err := decimal.NewFromString(strings.TrimSpace(e.MaxAmount)); err != nil {
		return fmt.Errorf("%s must be a decimal: %w", EnvEscrowMaxAmount, err)
	}
	return nil
}

type PayoutConfig struct {
	MinimumAmount string `envconfig:"ESCROWPAY_PAYOUT_MINIMUM" default:"10000"`
}

// MinimumDecimal returns the smallest payout the platform processes.
func (p PayoutConfig) MinimumDecimal() decimal.Decimal {
	value, err := decimal.NewFromString(strings.TrimSpace(p.MinimumAmount))
	if err != nil {
		return decimal.Zero
	}
	return value
}

func (p PayoutConfig) validate() error {
	if _, err := decimal.NewFromString(strings.TrimSpace(p.MinimumAmount)); err != nil {
		return fmt.Errorf("%s must be a decimal: %w", EnvPayoutMinimum, err)
	}
	return nil
}

type IdempotencyConfig struct {
	TTL         time.Duration `envconfig:"ESCROWPAY_IDEMPOTENCY_TTL" default:"24h"`
	CriticalTTL time.Duration `envconfig:"ESCROWPAY_IDEMPOTENCY_CRITICAL_TTL" default:"168h"`
}

type CronConfig struct {
	Interval          time.Duration `envconfig:"ESCROWPAY_CRON_INTERVAL" default:"1m"`
	LockTTL           time.Duration `envconfig:"ESCROWPAY_CRON_LOCK_TTL" default:"5m"`
	JobTimeout        time.Duration `envconfig:"ESCROWPAY_CRON_JOB_TIMEOUT" default:"2m"`
	PaymentStaleAfter time.Duration `envconfig:"ESCROWPAY_CRON_PAYMENT_STALE_AFTER" default:"15m"`
	PaymentBatchSize  int           `envconfig:"ESCROWPAY_CRON_PAYMENT_BATCH_SIZE" default:"100"`
	PayoutStaleAfter  time.Duration `envconfig:"ESCROWPAY_CRON_PAYOUT_STALE_AFTER" default:"72h"`
}

// RateLimitConfig sets fixed-window request budgets per caller.
type RateLimitConfig struct {
	Window          time.Duration `envconfig:"ESCROWPAY_RATE_LIMIT_WINDOW" default:"1m"`
	PaymentRequests int           `envconfig:"ESCROWPAY_RATE_LIMIT_PAYMENTS" default:"20"`
	PayoutRequests  int           `envconfig:"ESCROWPAY_RATE_LIMIT_PAYOUTS" default:"10"`
	WebhookRequests int           `envconfig:"ESCROWPAY_RATE_LIMIT_WEBHOOKS" default:"600"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}

// MetricsConfig controls the /metrics listener background workers start. The
// API serves metrics on its own router instead.
type MetricsConfig struct {
	Addr string `envconfig:"ESCROWPAY_METRICS_ADDR" default:":9090"`
}

package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Stripe       StripeConfig
	Cron         CronConfig
	Reconcile    ReconcileConfig
	Webhook      WebhookConfig
	PlanCatalog  PlanCatalogConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"VOWVENDORS_APP_ENV" required:"true"`
	Port         string `envconfig:"VOWVENDORS_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"VOWVENDORS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"VOWVENDORS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"VOWVENDORS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"VOWVENDORS_DB_DSN"`
	Driver string `envconfig:"VOWVENDORS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"VOWVENDORS_DB_HOST"`
	LegacyPort     int    `envconfig:"VOWVENDORS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"VOWVENDORS_DB_USER"`
	LegacyPassword string `envconfig:"VOWVENDORS_DB_PASSWORD"`
	LegacyName     string `envconfig:"VOWVENDORS_DB_NAME"`
	LegacySSLMode  string `envconfig:"VOWVENDORS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"VOWVENDORS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"VOWVENDORS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"VOWVENDORS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"VOWVENDORS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"VOWVENDORS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"VOWVENDORS_REDIS_ADDR"`
	Password     string        `envconfig:"VOWVENDORS_REDIS_PASSWORD"`
	DB           int           `envconfig:"VOWVENDORS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"VOWVENDORS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"VOWVENDORS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"VOWVENDORS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"VOWVENDORS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"VOWVENDORS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"VOWVENDORS_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"VOWVENDORS_JWT_ISSUER" default:"vowvendors"`
	ExpirationMinutes int    `envconfig:"VOWVENDORS_JWT_EXPIRATION_MINUTES" default:"60"`
}

// Expiration returns the access token lifetime.
func (j JWTConfig) Expiration() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"VOWVENDORS_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"VOWVENDORS_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	VendorEventsTopic string `envconfig:"VOWVENDORS_PUBSUB_VENDOR_EVENTS_TOPIC" default:"vendor-subscription-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"VOWVENDORS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"VOWVENDORS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"VOWVENDORS_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"VOWVENDORS_OUTBOX_RETENTION_DAYS" default:"30"`
}

type StripeConfig struct {
	APIKey         string        `envconfig:"VOWVENDORS_STRIPE_API_KEY"`
	WebhookSecret  string        `envconfig:"VOWVENDORS_STRIPE_WEBHOOK_SECRET"`
	Env            string        `envconfig:"VOWVENDORS_STRIPE_ENV" default:"test"`
	RequestTimeout time.Duration `envconfig:"VOWVENDORS_STRIPE_REQUEST_TIMEOUT" default:"10s"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// Validate fails when the billing credentials are absent. Binaries that talk
// to Stripe call it at startup so a missing secret never reaches a request.
func (s StripeConfig) Validate() error {
	var missing []string
	if strings.TrimSpace(s.APIKey) == "" {
		missing = append(missing, EnvStripeAPIKey)
	}
	if strings.TrimSpace(s.WebhookSecret) == "" {
		missing = append(missing, EnvStripeWebhookSecret)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing billing configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

type CronConfig struct {
	Schedule string        `envconfig:"VOWVENDORS_CRON_SCHEDULE" default:"@daily"`
	LockTTL  time.Duration `envconfig:"VOWVENDORS_CRON_LOCK_TTL" default:"30m"`
}

type ReconcileConfig struct {
	VendorTimeout time.Duration `envconfig:"VOWVENDORS_RECONCILE_VENDOR_TIMEOUT" default:"15s"`
	StampSkew     time.Duration `envconfig:"VOWVENDORS_RECONCILE_STAMP_SKEW" default:"2s"`
}

type WebhookConfig struct {
	IdempotencyTTL time.Duration `envconfig:"VOWVENDORS_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
	MaxBodyBytes   int64         `envconfig:"VOWVENDORS_WEBHOOK_MAX_BODY_BYTES" default:"65536"`
}

type PlanCatalogConfig struct {
	CacheTTL time.Duration `envconfig:"VOWVENDORS_PLAN_CACHE_TTL" default:"10m"`
}

var errDSNRequired = errors.New("database dsn is required")

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
		return fmt.Errorf("%w: set %s or %s", errDSNRequired, EnvDBDSN, strings.Join(missing, ", "))
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

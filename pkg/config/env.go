package config

// EnvPrefix is handed to envconfig; each field also names its full key.
const EnvPrefix = "VOWVENDORS"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "VOWVENDORS_APP_ENV"
	EnvPort     = "VOWVENDORS_APP_PORT"
	EnvLogLevel = "VOWVENDORS_LOG_LEVEL"

	EnvDBDSN  = "VOWVENDORS_DB_DSN"
	EnvDBHost = "VOWVENDORS_DB_HOST"
	EnvDBUser = "VOWVENDORS_DB_USER"
	EnvDBName = "VOWVENDORS_DB_NAME"

	EnvRedisURL  = "VOWVENDORS_REDIS_URL"
	EnvJWTSecret = "VOWVENDORS_JWT_SECRET"

	EnvStripeAPIKey        = "VOWVENDORS_STRIPE_API_KEY"
	EnvStripeWebhookSecret = "VOWVENDORS_STRIPE_WEBHOOK_SECRET"
	EnvStripeEnv           = "VOWVENDORS_STRIPE_ENV"

	EnvCronSchedule = "VOWVENDORS_CRON_SCHEDULE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

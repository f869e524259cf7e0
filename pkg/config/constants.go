package config

const (
	EnvPrefix = "STOREFRONT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	OutboxTransportPubSub = "pubsub"
	OutboxTransportKafka  = "kafka"
)

const (
	EnvAppEnv   = "STOREFRONT_APP_ENV"
	EnvPort     = "STOREFRONT_APP_PORT"
	EnvLogLevel = "STOREFRONT_LOG_LEVEL"

	EnvDBDSN  = "STOREFRONT_DB_DSN"
	EnvDBHost = "STOREFRONT_DB_HOST"
	EnvDBUser = "STOREFRONT_DB_USER"
	EnvDBName = "STOREFRONT_DB_NAME"

	EnvRedisURL = "STOREFRONT_REDIS_URL"

	EnvJWTSecret = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer = "STOREFRONT_JWT_ISSUER"

	EnvWebhookSecret = "STOREFRONT_PAYMENT_WEBHOOK_SECRET"

	EnvDefaultCommission = "STOREFRONT_SETTLEMENT_DEFAULT_COMMISSION_PERCENT"
	EnvReturnWindow      = "STOREFRONT_SETTLEMENT_RETURN_WINDOW"

	EnvGCPProjectID       = "STOREFRONT_GCP_PROJECT_ID"
	EnvPubSubDomainTopic  = "STOREFRONT_PUBSUB_DOMAIN_TOPIC"
	EnvCronInterval       = "STOREFRONT_CRON_INTERVAL"
	EnvOutboxPollInterval = "STOREFRONT_OUTBOX_PUBLISH_POLL_MS"
	EnvOutboxTransport    = "STOREFRONT_OUTBOX_TRANSPORT"
	EnvKafkaBrokers       = "STOREFRONT_KAFKA_BROKERS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

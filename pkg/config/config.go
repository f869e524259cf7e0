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
	App        AppConfig
	Service    ServiceConfig
	DB         DBConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Webhook    WebhookConfig
	Settlement SettlementConfig
	GCP        GCPConfig
	PubSub     PubSubConfig
	Kafka      KafkaConfig
	Outbox     OutboxConfig
	Cron       CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Settlement.validate(); err != nil {
		return nil, err
	}
	if err := cfg.validateOutboxTransport(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string   `envconfig:"STOREFRONT_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
	AutoMigrate  bool     `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
	CORSOrigins  []string `envconfig:"STOREFRONT_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"STOREFRONT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"STOREFRONT_DB_DSN"`
	Driver string `envconfig:"STOREFRONT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STOREFRONT_DB_HOST"`
	LegacyPort     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOREFRONT_DB_USER"`
	LegacyPassword string `envconfig:"STOREFRONT_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOREFRONT_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies bearer tokens issued by the identity service.
type JWTConfig struct {
	Secret string `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"STOREFRONT_JWT_ISSUER" required:"true"`
	// TTL applies to tokens minted locally by tooling and tests.
	TTL time.Duration `envconfig:"STOREFRONT_JWT_TTL" default:"15m"`
}

type WebhookConfig struct {
	PaymentSecret string `envconfig:"STOREFRONT_PAYMENT_WEBHOOK_SECRET"`
}

type SettlementConfig struct {
	DefaultCommissionPercent decimal.Decimal `envconfig:"STOREFRONT_SETTLEMENT_DEFAULT_COMMISSION_PERCENT" default:"10"`
	ReturnWindow             time.Duration   `envconfig:"STOREFRONT_SETTLEMENT_RETURN_WINDOW" default:"336h"`
	PaymentIdempotencyTTL    time.Duration   `envconfig:"STOREFRONT_SETTLEMENT_PAYMENT_IDEMPOTENCY_TTL" default:"72h"`
	HTTPIdempotencyTTL       time.Duration   `envconfig:"STOREFRONT_SETTLEMENT_HTTP_IDEMPOTENCY_TTL" default:"24h"`
	PromotionBatchSize       int             `envconfig:"STOREFRONT_SETTLEMENT_PROMOTION_BATCH_SIZE" default:"200"`
	UnpaidOrderTTL           time.Duration   `envconfig:"STOREFRONT_SETTLEMENT_UNPAID_ORDER_TTL" default:"48h"`
}

func (s SettlementConfig) validate() error {
	if s.DefaultCommissionPercent.IsNegative() || s.DefaultCommissionPercent.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%s must be between 0 and 100", EnvDefaultCommission)
	}
	if s.ReturnWindow < 0 {
		return fmt.Errorf("%s must not be negative", EnvReturnWindow)
	}
	return nil
}

type GCPConfig struct {
	ProjectID              string `envconfig:"STOREFRONT_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"STOREFRONT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"STOREFRONT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DomainTopic string `envconfig:"STOREFRONT_PUBSUB_DOMAIN_TOPIC" default:"storefront-settlement-events"`
}

// KafkaConfig is read only when STOREFRONT_OUTBOX_TRANSPORT=kafka.
type KafkaConfig struct {
	Brokers      []string      `envconfig:"STOREFRONT_KAFKA_BROKERS"`
	ClientID     string        `envconfig:"STOREFRONT_KAFKA_CLIENT_ID" default:"storefront-settlement"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_KAFKA_WRITE_TIMEOUT" default:"10s"`
}

type OutboxConfig struct {
	Transport      string        `envconfig:"STOREFRONT_OUTBOX_TRANSPORT" default:"pubsub"`
	BatchSize      int           `envconfig:"STOREFRONT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"STOREFRONT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"STOREFRONT_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"STOREFRONT_OUTBOX_RETENTION" default:"720h"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"STOREFRONT_CRON_INTERVAL" default:"15m"`
	LockTTL  time.Duration `envconfig:"STOREFRONT_CRON_LOCK_TTL" default:"10m"`
	// Cadences for the individual settlement jobs; each runs at most once per
	// its value on top of the base Interval tick.
	PromotionEvery      time.Duration `envconfig:"STOREFRONT_CRON_PROMOTION_EVERY" default:"1h"`
	ReconciliationEvery time.Duration `envconfig:"STOREFRONT_CRON_RECONCILIATION_EVERY" default:"6h"`
	ExpiryEvery         time.Duration `envconfig:"STOREFRONT_CRON_EXPIRY_EVERY" default:"30m"`
	RetentionEvery      time.Duration `envconfig:"STOREFRONT_CRON_RETENTION_EVERY" default:"24h"`
	JobTimeout          time.Duration `envconfig:"STOREFRONT_CRON_JOB_TIMEOUT" default:"5m"`
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

func (c *Config) validateOutboxTransport() error {
	switch strings.ToLower(strings.TrimSpace(c.Outbox.Transport)) {
	case "", OutboxTransportPubSub:
		c.Outbox.Transport = OutboxTransportPubSub
	case OutboxTransportKafka:
		c.Outbox.Transport = OutboxTransportKafka
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("%s is required when %s=%s", EnvKafkaBrokers, EnvOutboxTransport, OutboxTransportKafka)
		}
	default:
		return fmt.Errorf("%s must be %q or %q", EnvOutboxTransport, OutboxTransportPubSub, OutboxTransportKafka)
	}
	return nil
}

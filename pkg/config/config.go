package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App       AppConfig
	Service   ServiceConfig
	DB        DBConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Password  PasswordConfig
	Inventory InventoryConfig
	Counter   CounterConfig
	Gateway   GatewayConfig
	GCP       GCPConfig
	PubSub    PubSubConfig
	Outbox    OutboxConfig
	Cron      CronConfig
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
	Env          string `envconfig:"LOJAPOS_APP_ENV" required:"true"`
	Port         string `envconfig:"LOJAPOS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"LOJAPOS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LOJAPOS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"LOJAPOS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"LOJAPOS_DB_DSN"`
	Driver string `envconfig:"LOJAPOS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"LOJAPOS_DB_HOST"`
	LegacyPort     int    `envconfig:"LOJAPOS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LOJAPOS_DB_USER"`
	LegacyPassword string `envconfig:"LOJAPOS_DB_PASSWORD"`
	LegacyName     string `envconfig:"LOJAPOS_DB_NAME"`
	LegacySSLMode  string `envconfig:"LOJAPOS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LOJAPOS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LOJAPOS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LOJAPOS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LOJAPOS_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	AutoMigrate bool `envconfig:"LOJAPOS_AUTO_MIGRATE" default:"false"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LOJAPOS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"LOJAPOS_REDIS_ADDR"`
	Password     string        `envconfig:"LOJAPOS_REDIS_PASSWORD"`
	DB           int           `envconfig:"LOJAPOS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LOJAPOS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LOJAPOS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LOJAPOS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LOJAPOS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LOJAPOS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"LOJAPOS_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"LOJAPOS_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"LOJAPOS_JWT_EXPIRATION_MINUTES" default:"480"`
}

// Expiration returns the access token lifetime.
func (j JWTConfig) Expiration() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"LOJAPOS_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"LOJAPOS_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"LOJAPOS_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"LOJAPOS_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"LOJAPOS_ARGON_KEY_LEN" default:"32"`
}

type InventoryConfig struct {
	CartReservationTTL    time.Duration `envconfig:"LOJAPOS_CART_RESERVATION_TTL" default:"30m"`
	MovementRetentionDays int           `envconfig:"LOJAPOS_MOVEMENT_RETENTION_DAYS" default:"90"`
}

type CounterConfig struct {
	ClaimAttempts int    `envconfig:"LOJAPOS_COUNTER_CLAIM_ATTEMPTS" default:"8"`
	Channel       string `envconfig:"LOJAPOS_COUNTER_CHANNEL" default:"order_number_claims"`
}

type GatewayConfig struct {
	BaseURL       string        `envconfig:"LOJAPOS_GATEWAY_BASE_URL"`
	AccessToken   string        `envconfig:"LOJAPOS_GATEWAY_ACCESS_TOKEN"`
	WebhookSecret string        `envconfig:"LOJAPOS_GATEWAY_WEBHOOK_SECRET"`
	Timeout       time.Duration `envconfig:"LOJAPOS_GATEWAY_TIMEOUT" default:"10s"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"LOJAPOS_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"LOJAPOS_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	StockTopic         string `envconfig:"LOJAPOS_PUBSUB_STOCK_TOPIC" default:"lp-stock-movements"`
	OrdersTopic        string `envconfig:"LOJAPOS_PUBSUB_ORDERS_TOPIC" default:"lp-order-events"`
	StockSubscription  string `envconfig:"LOJAPOS_PUBSUB_STOCK_SUBSCRIPTION"`
	OrdersSubscription string `envconfig:"LOJAPOS_PUBSUB_ORDERS_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"LOJAPOS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"LOJAPOS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"LOJAPOS_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"LOJAPOS_OUTBOX_RETENTION_DAYS" default:"30"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"LOJAPOS_CRON_INTERVAL" default:"1m"`
	LockTTL  time.Duration `envconfig:"LOJAPOS_CRON_LOCK_TTL" default:"5m"`
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

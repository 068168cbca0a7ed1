package config

import (
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/samueldng/cash-back-phone-link/internal/queue"
	"github.com/samueldng/cash-back-phone-link/pkg/logger"
	"github.com/samueldng/cash-back-phone-link/pkg/pg"
	"github.com/samueldng/cash-back-phone-link/pkg/redis"
)

const (
	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	LockBackendMemory = "memory"
	LockBackendRedis  = "redis"
)

var config *Config

// Config holds every configuration value of the binaries. Nothing else reads
// the environment directly.
type Config struct {
	AppEnv              string `env:"APP_ENV"`
	AppName             string `env:"APP_NAME"`
	AppDebugMetricsAddr string `env:"APP_DEBUG_METRIC_ADDR"`
	AppDebugMetricsURI  string `env:"APP_DEBUG_METRIC_URI"`

	HttpListenAddr     string        `env:"HTTP_LISTEN_ADDR"`
	HttpBaseRequestUrl string        `env:"HTTP_BASE_REQUEST_URI"`
	HttpRequestTimeout time.Duration `env:"HTTP_REQUEST_TIMEOUT"`
	HttpCorsOrigin     string        `env:"HTTP_CORS_ORIGIN"`

	DBDriver   string `env:"DB_DRIVER"`
	SQLitePath string `env:"SQLITE_PATH"`

	PostgresReadHost     string `env:"POSTGRES_READ_HOST"`
	PostgresReadPort     string `env:"POSTGRES_READ_PORT"`
	PostgresReadUser     string `env:"POSTGRES_READ_USER"`
	PostgresReadPassword string `env:"POSTGRES_READ_PASSWORD"`
	PostgresReadDatabase string `env:"POSTGRES_READ_DBNAME"`

	PostgresWriteHost     string `env:"POSTGRES_WRITE_HOST"`
	PostgresWritePort     string `env:"POSTGRES_WRITE_PORT"`
	PostgresWriteUser     string `env:"POSTGRES_WRITE_USER"`
	PostgresWritePassword string `env:"POSTGRES_WRITE_PASSWORD"`
	PostgresWriteDatabase string `env:"POSTGRES_WRITE_DBNAME"`

	RedisAddr               string `env:"REDIS_ADDR"`
	RedisUsername           string `env:"REDIS_USER"`
	RedisPassword           string `env:"REDIS_PASS"`
	RedisDatabase           int    `env:"REDIS_DATABASE"`
	RedisUniversalKeyPrefix string `env:"REDIS_UNIVERSAL_KEY_PREFIX"`

	PromNamespace string `env:"PROM_NAMESPACE"`

	LogLevel string `env:"LOG_LEVEL"`

	CashbackDefaultPercentage        string `env:"CASHBACK_DEFAULT_PERCENTAGE"`
	CashbackDefaultMinimumRedemption string `env:"CASHBACK_DEFAULT_MINIMUM_REDEMPTION"`
	CashbackDefaultCategories        string `env:"CASHBACK_DEFAULT_CATEGORIES"`
	CashbackEligibilityMode          string `env:"CASHBACK_ELIGIBILITY_MODE"`

	LedgerLockBackend string        `env:"LEDGER_LOCK_BACKEND"`
	LedgerLockTTL     time.Duration `env:"LEDGER_LOCK_TTL"`

	NotificationsEnabled bool `env:"NOTIFICATIONS_ENABLED"`

	QueueName              string        `env:"QUEUE_NAME"`
	QueueConsumerGroup     string        `env:"QUEUE_CONSUMER_GROUP"`
	QueueConsumerName      string        `env:"QUEUE_CONSUMER_NAME"`
	QueueConsumers         int           `env:"QUEUE_CONSUMERS"`
	QueueWorkers           int           `env:"QUEUE_WORKERS"`
	QueueMaxRetries        int           `env:"QUEUE_MAX_RETRIES"`
	QueueVisibilityTimeout time.Duration `env:"QUEUE_VISIBILITY_TIMEOUT"`
	QueuePollInterval      time.Duration `env:"QUEUE_POLL_INTERVAL"`
	QueueBatchSize         int64         `env:"QUEUE_BATCH_SIZE"`
	QueueMaxLen            int64         `env:"QUEUE_MAX_LEN"`
	QueueEnableDLQ         bool          `env:"QUEUE_ENABLE_DLQ"`

	TwilioAccountSID string `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `env:"TWILIO_AUTH_TOKEN"`
	TwilioFromNumber string `env:"TWILIO_PHONE_NUMBER"`
	SMSCountryCode   string `env:"SMS_COUNTRY_CODE"`

	ProviderPrimaryUrl   string `env:"PROVIDER_PRIMARY_URL"`
	ProviderSecondaryUrl string `env:"PROVIDER_SECONDARY_URL"`
	ProviderBackupUrl    string `env:"PROVIDER_BACKUP_URL"`
}

func Load(path string) error {
	logger.Info("loading configs..", "path", path)
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return errors.Wrapf(err, "failed to load configuration file %s", path)
		}
	}

	c := &Config{}
	if _, err := env.UnmarshalFromEnviron(c); err != nil {
		return errors.Wrap(err, "failed to map env variables to configuration")
	}
	c.applyDefaults()

	if err := c.validate(); err != nil {
		return err
	}

	config = c
	return nil
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}

// Set replaces the loaded configuration.
func Set(c *Config) {
	config = c
}

func (c *Config) applyDefaults() {
	setDefault(&c.AppEnv, "dev")
	setDefault(&c.AppName, "cashback_ledger")
	setDefault(&c.HttpListenAddr, ":8080")
	setDefault(&c.HttpBaseRequestUrl, "/api/v1")
	setDefault(&c.DBDriver, DBDriverPostgres)
	setDefault(&c.SQLitePath, "cashback.db")
	setDefault(&c.PromNamespace, "cashback")
	setDefault(&c.LogLevel, "info")

	setDefault(&c.CashbackDefaultPercentage, "5")
	setDefault(&c.CashbackDefaultMinimumRedemption, "15")
	setDefault(&c.CashbackDefaultCategories, "acessorios")
	setDefault(&c.CashbackEligibilityMode, "allow_list")
	setDefault(&c.LedgerLockBackend, LockBackendMemory)

	setDefault(&c.QueueName, "cashback:notifications")
	setDefault(&c.QueueConsumerGroup, "sms")
	setDefault(&c.QueueConsumerName, "processor")
	setDefault(&c.SMSCountryCode, "55")
	setDefault(&c.ProviderPrimaryUrl, "https://api.twilio.com")

	if c.HttpRequestTimeout == 0 {
		c.HttpRequestTimeout = 5 * time.Second
	}
	if c.LedgerLockTTL == 0 {
		c.LedgerLockTTL = 10 * time.Second
	}
	if c.QueueConsumers == 0 {
		c.QueueConsumers = 2
	}
	if c.QueueWorkers == 0 {
		c.QueueWorkers = 10
	}
	if c.QueueMaxRetries == 0 {
		c.QueueMaxRetries = 5
	}
}

func (c *Config) validate() error {
	switch c.DBDriver {
	case DBDriverPostgres, DBDriverSQLite:
	default:
		return errors.Errorf("unknown DB_DRIVER %q", c.DBDriver)
	}
	switch c.LedgerLockBackend {
	case LockBackendMemory, LockBackendRedis:
	default:
		return errors.Errorf("unknown LEDGER_LOCK_BACKEND %q", c.LedgerLockBackend)
	}
	if c.LedgerLockBackend == LockBackendRedis && c.RedisAddr == "" {
		return errors.New("LEDGER_LOCK_BACKEND=redis requires REDIS_ADDR")
	}
	if c.NotificationsEnabled && c.RedisAddr == "" {
		return errors.New("NOTIFICATIONS_ENABLED requires REDIS_ADDR")
	}
	return nil
}

// DefaultCategories splits CASHBACK_DEFAULT_CATEGORIES on commas.
func (c *Config) DefaultCategories() []string {
	var out []string
	for _, part := range strings.Split(c.CashbackDefaultCategories, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

type SMSProvider struct {
	Name   string
	URL    string
	Weight int
}

// SMSProviders returns the configured provider base URLs, highest priority first.
func (c *Config) SMSProviders() []SMSProvider {
	var out []SMSProvider
	for _, p := range []SMSProvider{
		{Name: "primary", URL: c.ProviderPrimaryUrl, Weight: 100},
		{Name: "secondary", URL: c.ProviderSecondaryUrl, Weight: 80},
		{Name: "backup", URL: c.ProviderBackupUrl, Weight: 60},
	} {
		if p.URL != "" {
			out = append(out, p)
		}
	}
	return out
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

func (c *Config) PostgresRead() pg.Config {
	return pg.Config{
		User:     c.PostgresReadUser,
		Host:     c.PostgresReadHost,
		Port:     c.PostgresReadPort,
		Password: c.PostgresReadPassword,
		Database: c.PostgresReadDatabase,
	}
}

func (c *Config) PostgresWrite() pg.Config {
	return pg.Config{
		User:     c.PostgresWriteUser,
		Host:     c.PostgresWriteHost,
		Port:     c.PostgresWritePort,
		Password: c.PostgresWritePassword,
		Database: c.PostgresWriteDatabase,
	}
}

func (c *Config) RedisOptions(clientName string) *redis.Options {
	return &redis.Options{
		Addrs:      []string{c.RedisAddr},
		ClientName: clientName,
		DB:         c.RedisDatabase,
		Username:   c.RedisUsername,
		Password:   c.RedisPassword,
	}
}

func (c *Config) NotificationQueue() queue.QueueConfig {
	return queue.QueueConfig{
		Name:              c.QueueName,
		ConsumerGroup:     c.QueueConsumerGroup,
		ConsumerName:      c.QueueConsumerName,
		MaxRetries:        c.QueueMaxRetries,
		VisibilityTimeout: c.QueueVisibilityTimeout,
		PollInterval:      c.QueuePollInterval,
		BatchSize:         c.QueueBatchSize,
		MaxLen:            c.QueueMaxLen,
		EnableDLQ:         c.QueueEnableDLQ,
	}
}

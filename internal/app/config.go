package app

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/service/loyalty"
	"github.com/vladislavdragonenkov/storefront/internal/service/shipping"
)

// EnvPrefix — префикс переменных окружения сервиса.
const EnvPrefix = "SHOP"

// Поддерживаемые драйверы хранилища.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска витрины. Теги envconfig задают имена переменных без префикса SHOP_.
type Config struct {
	GRPCAddr    string `envconfig:"GRPC_ADDR" default:":50051"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"text"`

	StorageDriver       string `envconfig:"STORAGE_DRIVER" default:"memory"`
	PostgresDSN         string `envconfig:"POSTGRES_DSN"`
	PostgresAutoMigrate bool   `envconfig:"POSTGRES_AUTO_MIGRATE" default:"true"`

	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"storefront.order.events"`

	OutboxPollInterval  time.Duration `envconfig:"OUTBOX_POLL_INTERVAL" default:"1s"`
	OutboxBatchSize     int           `envconfig:"OUTBOX_BATCH_SIZE" default:"100"`
	OutboxMaxAttempts   int           `envconfig:"OUTBOX_MAX_ATTEMPTS" default:"3"`
	OutboxRetryDelay    time.Duration `envconfig:"OUTBOX_RETRY_DELAY" default:"100ms"`
	OutboxMaxPendingAge time.Duration `envconfig:"OUTBOX_MAX_PENDING_AGE" default:"5m"`

	NodeID       int64  `envconfig:"NODE_ID" default:"1"`
	Currency     string `envconfig:"CURRENCY" default:"VND"`
	SeedDemoData bool   `envconfig:"SEED_DEMO_DATA" default:"true"`

	LoyaltyPointValue  int64           `envconfig:"LOYALTY_POINT_VALUE" default:"100"`
	LoyaltyAccrualRate decimal.Decimal `envconfig:"LOYALTY_ACCRUAL_RATE" default:"0.0001"`
	TierSilver         int64           `envconfig:"TIER_SILVER" default:"5000000"`
	TierGold           int64           `envconfig:"TIER_GOLD" default:"20000000"`
	TierPlatinum       int64           `envconfig:"TIER_PLATINUM" default:"50000000"`

	ShippingBaseFee       int64 `envconfig:"SHIPPING_BASE_FEE" default:"30000"`
	ShippingPerKgFee      int64 `envconfig:"SHIPPING_PER_KG_FEE" default:"5000"`
	ShippingFreeThreshold int64 `envconfig:"SHIPPING_FREE_THRESHOLD" default:"0"`
}

// DefaultConfig возвращает значения по умолчанию; совпадает с LoadConfig при пустом окружении.
func DefaultConfig() Config {
	policy := loyalty.DefaultPolicy()
	rate := shipping.DefaultFlatRate()

	return Config{
		GRPCAddr:    ":50051",
		MetricsAddr: ":9090",
		LogLevel:    "info",
		LogFormat:   "text",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,

		KafkaTopic: kafka.TopicEvents,

		OutboxPollInterval:  time.Second,
		OutboxBatchSize:     100,
		OutboxMaxAttempts:   3,
		OutboxRetryDelay:    100 * time.Millisecond,
		OutboxMaxPendingAge: 5 * time.Minute,

		NodeID:       1,
		Currency:     "VND",
		SeedDemoData: true,

		LoyaltyPointValue:  policy.PointValueMinor,
		LoyaltyAccrualRate: policy.AccrualRate,
		TierSilver:         policy.Tiers.SilverMinor,
		TierGold:           policy.Tiers.GoldMinor,
		TierPlatinum:       policy.Tiers.PlatinumMinor,

		ShippingBaseFee:       rate.BaseFeeMinor,
		ShippingPerKgFee:      rate.PerKgFeeMinor,
		ShippingFreeThreshold: rate.FreeThresholdMinor,
	}
}

// LoadConfig читает переменные SHOP_* и проверяет результат.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "process env config")
	}
	cfg.StorageDriver = strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate отклоняет конфигурацию, с которой сервис не сможет корректно стартовать.
func (c Config) Validate() error {
	switch {
	case c.GRPCAddr == "":
		return errors.New("config: grpc address is required")
	case c.MetricsAddr == "":
		return errors.New("config: metrics address is required")
	case c.NodeID < 0 || c.NodeID > 1023:
		return errors.Newf("config: node id must be within [0, 1023], got %d", c.NodeID)
	case strings.TrimSpace(c.Currency) == "":
		return errors.New("config: currency is required")
	case c.OutboxBatchSize <= 0:
		return errors.Newf("config: outbox batch size must be positive, got %d", c.OutboxBatchSize)
	case c.OutboxMaxAttempts <= 0:
		return errors.Newf("config: outbox max attempts must be positive, got %d", c.OutboxMaxAttempts)
	case c.OutboxPollInterval <= 0:
		return errors.Newf("config: outbox poll interval must be positive, got %s", c.OutboxPollInterval)
	case c.OutboxRetryDelay < 0:
		return errors.Newf("config: outbox retry delay must not be negative, got %s", c.OutboxRetryDelay)
	}

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return errors.New("config: postgres dsn is required for postgres storage")
		}
	default:
		return errors.Newf("config: unsupported storage driver %q", c.StorageDriver)
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "config: log level")
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return errors.Newf("config: log format must be text or json, got %q", c.LogFormat)
	}

	if err := c.LoyaltyPolicy().Validate(); err != nil {
		return errors.Wrap(err, "config: loyalty policy")
	}
	if err := c.ShippingRate().Validate(); err != nil {
		return errors.Wrap(err, "config: shipping rate")
	}
	return nil
}

// LoyaltyPolicy собирает политику лояльности из настроек.
func (c Config) LoyaltyPolicy() loyalty.Policy {
	return loyalty.Policy{
		PointValueMinor: c.LoyaltyPointValue,
		AccrualRate:     c.LoyaltyAccrualRate,
		Tiers: loyalty.TierPolicy{
			SilverMinor:   c.TierSilver,
			GoldMinor:     c.TierGold,
			PlatinumMinor: c.TierPlatinum,
		},
	}
}

// ShippingRate собирает тариф доставки из настроек.
func (c Config) ShippingRate() shipping.FlatRate {
	return shipping.FlatRate{
		BaseFeeMinor:       c.ShippingBaseFee,
		PerKgFeeMinor:      c.ShippingPerKgFee,
		FreeThresholdMinor: c.ShippingFreeThreshold,
	}
}

// ConfigureLogger применяет уровень и формат логов к стандартному логгеру logrus.
func ConfigureLogger(c Config) {
	if c.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

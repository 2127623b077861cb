package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"chronos/internal/domain/regime"
	"chronos/pkg/errors"
)

type Config struct {
	App           AppConfig
	HTTP          HTTPConfig
	ClickHouse    ClickHouseConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Telegram      TelegramConfig
	MarketData    MarketDataConfig
	ErrorTracking ErrorTrackingConfig
	Workers       WorkerConfig
	Regime        RegimeConfig
	Audit         AuditConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"chronos"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`
}

type HTTPConfig struct {
	Addr            string        `envconfig:"HTTP_ADDR" default:":8080"`
	ReadTimeout     time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"10s"`
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"15s"`
}

type ClickHouseConfig struct {
	Enabled  bool   `envconfig:"CLICKHOUSE_ENABLED" default:"false"`
	Host     string `envconfig:"CLICKHOUSE_HOST" default:"localhost"`
	Port     int    `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	User     string `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password string `envconfig:"CLICKHOUSE_PASSWORD"`
	Database string `envconfig:"CLICKHOUSE_DB" default:"chronos"`
}

type RedisConfig struct {
	Enabled  bool   `envconfig:"REDIS_ENABLED" default:"false"`
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`

	SnapshotTTL time.Duration `envconfig:"REDIS_SNAPSHOT_TTL" default:"15m"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type KafkaConfig struct {
	Enabled bool     `envconfig:"KAFKA_ENABLED" default:"false"`
	Brokers []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	GroupID string   `envconfig:"KAFKA_GROUP_ID" default:"chronos"`
}

type TelegramConfig struct {
	Enabled  bool    `envconfig:"TELEGRAM_ENABLED" default:"false"`
	BotToken string  `envconfig:"TELEGRAM_BOT_TOKEN"`
	ChatIDs  []int64 `envconfig:"TELEGRAM_CHAT_IDS"`
}

type MarketDataConfig struct {
	Symbols []string `envconfig:"MARKET_DATA_SYMBOLS" default:"BTCUSDT,ETHUSDT"`

	BinanceWSEnabled bool   `envconfig:"BINANCE_WS_ENABLED" default:"false"`
	BinanceWSURL     string `envconfig:"BINANCE_WS_URL" default:"wss://stream.binance.com:9443/ws"`
	KlineInterval    string `envconfig:"BINANCE_KLINE_INTERVAL" default:"5m"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"false"`
	Provider    string `envconfig:"ERROR_TRACKING_PROVIDER" default:"sentry"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// WorkerConfig contains intervals for the background workers.
type WorkerConfig struct {
	StalenessSweepInterval time.Duration `envconfig:"WORKER_STALENESS_SWEEP_INTERVAL" default:"5m"`
	StalenessMaxAge        time.Duration `envconfig:"WORKER_STALENESS_MAX_AGE" default:"15m"`
	SnapshotFlushInterval  time.Duration `envconfig:"WORKER_SNAPSHOT_FLUSH_INTERVAL" default:"1m"`
}

// RegimeConfig mirrors regime.Config with env bindings.
type RegimeConfig struct {
	VWAPSlopeTrendingThreshold  float64 `envconfig:"REGIME_VWAP_SLOPE_TRENDING" default:"0.001"`
	VWAPSlopeRangingThreshold   float64 `envconfig:"REGIME_VWAP_SLOPE_RANGING" default:"0.0005"`
	VWAPSlopeWindow             int     `envconfig:"REGIME_VWAP_SLOPE_WINDOW" default:"20"`
	ATRHighVolatilityPercentile float64 `envconfig:"REGIME_ATR_HIGH_VOL_PERCENTILE" default:"0.8"`
	ATRLowVolatilityPercentile  float64 `envconfig:"REGIME_ATR_LOW_VOL_PERCENTILE" default:"0.3"`
	VolatilityRatioHigh         float64 `envconfig:"REGIME_VOLATILITY_RATIO_HIGH" default:"1.5"`
	VolatilityRatioLow          float64 `envconfig:"REGIME_VOLATILITY_RATIO_LOW" default:"0.7"`
	MomentumTrendingThreshold   float64 `envconfig:"REGIME_MOMENTUM_TRENDING" default:"0.02"`
	MomentumRangingThreshold    float64 `envconfig:"REGIME_MOMENTUM_RANGING" default:"0.005"`
	VolumeTrendThreshold        float64 `envconfig:"REGIME_VOLUME_TREND" default:"0.1"`
	ATRPeriod                   int     `envconfig:"REGIME_ATR_PERIOD" default:"14"`
	VolatilityWindow            int     `envconfig:"REGIME_VOLATILITY_WINDOW" default:"20"`
	MomentumWindow              int     `envconfig:"REGIME_MOMENTUM_WINDOW" default:"20"`
	VolumeWindow                int     `envconfig:"REGIME_VOLUME_WINDOW" default:"10"`
	MaxHistoryBars              int     `envconfig:"REGIME_MAX_HISTORY_BARS" default:"8640"`
}

// Domain converts the env-bound section into the domain config.
func (c RegimeConfig) Domain() regime.Config {
	return regime.Config{
		VWAPSlopeTrendingThreshold:  c.VWAPSlopeTrendingThreshold,
		VWAPSlopeRangingThreshold:   c.VWAPSlopeRangingThreshold,
		VWAPSlopeWindow:             c.VWAPSlopeWindow,
		ATRHighVolatilityPercentile: c.ATRHighVolatilityPercentile,
		ATRLowVolatilityPercentile:  c.ATRLowVolatilityPercentile,
		VolatilityRatioHigh:         c.VolatilityRatioHigh,
		VolatilityRatioLow:          c.VolatilityRatioLow,
		MomentumTrendingThreshold:   c.MomentumTrendingThreshold,
		MomentumRangingThreshold:    c.MomentumRangingThreshold,
		VolumeTrendThreshold:        c.VolumeTrendThreshold,
		ATRPeriod:                   c.ATRPeriod,
		VolatilityWindow:            c.VolatilityWindow,
		MomentumWindow:              c.MomentumWindow,
		VolumeWindow:                c.VolumeWindow,
		MaxHistoryBars:              c.MaxHistoryBars,
	}
}

type AuditConfig struct {
	QueueSize    int    `envconfig:"AUDIT_QUEUE_SIZE" default:"1024"`
	CSVDirectory string `envconfig:"AUDIT_CSV_DIR"`
}

// Load reads configuration from environment variables. A .env file is loaded
// first when present, for local development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	if err := cfg.Regime.Domain().Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

/**
 * @description
 * This package handles the configuration management for the promotion-service.
 * It uses the Viper library to read configuration from environment variables,
 * providing a centralized and straightforward way to manage application
 * settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the promotion-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                string `mapstructure:"SERVER_PORT"`
	DatabaseURL               string `mapstructure:"DATABASE_URL"`
	RedisURL                  string `mapstructure:"REDIS_URL"`
	RedisDedupPrefix          string `mapstructure:"REDIS_DEDUP_PREFIX"`
	RabbitMQURL               string `mapstructure:"RABBITMQ_URL"`
	EventExchange             string `mapstructure:"EVENT_EXCHANGE"`
	TransactionEventQueue     string `mapstructure:"TRANSACTION_EVENT_QUEUE"`
	TransactionRoutingKey     string `mapstructure:"TRANSACTION_ROUTING_KEY"`
	LedgerAPIBaseURL          string `mapstructure:"LEDGER_API_BASE_URL"`
	LedgerAPIKey              string `mapstructure:"LEDGER_API_KEY"`
	InternalAPIKey            string `mapstructure:"INTERNAL_API_KEY"`
	CursorSourceName          string `mapstructure:"CURSOR_SOURCE_NAME"`
	PollIntervalSeconds       int    `mapstructure:"POLL_INTERVAL_SECONDS"`
	PollBatchSize             int    `mapstructure:"POLL_BATCH_SIZE"`
	DedupWindowSeconds        int    `mapstructure:"DEDUP_WINDOW_SECONDS"`
	SnapshotRefreshSeconds    int    `mapstructure:"SNAPSHOT_REFRESH_SECONDS"`
	ExpirySweepSchedule       string `mapstructure:"EXPIRY_SWEEP_SCHEDULE"`
	ReconcileSweepSchedule    string `mapstructure:"RECONCILE_SWEEP_SCHEDULE"`
	ReconcileGraceSeconds     int    `mapstructure:"RECONCILE_GRACE_SECONDS"`
	LedgerRequestTimeoutSecs  int    `mapstructure:"LEDGER_REQUEST_TIMEOUT_SECONDS"`
	EvaluatorTimeoutSeconds   int    `mapstructure:"EVALUATOR_TIMEOUT_SECONDS"`
}

// PollInterval returns the poller tick cadence.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// DedupWindow returns how long a transaction id is remembered by the
// subscriber's deduplication window.
func (c Config) DedupWindow() time.Duration {
	return time.Duration(c.DedupWindowSeconds) * time.Second
}

// SnapshotRefresh returns the cadence at which the active-promotion snapshot
// is reloaded from the store.
func (c Config) SnapshotRefresh() time.Duration {
	return time.Duration(c.SnapshotRefreshSeconds) * time.Second
}

// ReconcileGrace returns how long a QUALIFIED enrollment may sit before the
// reconciliation sweep retries reward issuance for it.
func (c Config) ReconcileGrace() time.Duration {
	return time.Duration(c.ReconcileGraceSeconds) * time.Second
}

// EvaluatorTimeout bounds a single event's evaluation, including store and
// ledger round-trips.
func (c Config) EvaluatorTimeout() time.Duration {
	return time.Duration(c.EvaluatorTimeoutSeconds) * time.Second
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8086")
	viper.SetDefault("EVENT_EXCHANGE", "ledger.events")
	viper.SetDefault("TRANSACTION_EVENT_QUEUE", "promotion_service.transaction_events")
	viper.SetDefault("TRANSACTION_ROUTING_KEY", "transaction.posted")
	viper.SetDefault("CURSOR_SOURCE_NAME", "ledger-db")
	viper.SetDefault("POLL_INTERVAL_SECONDS", 5)
	viper.SetDefault("POLL_BATCH_SIZE", 200)
	viper.SetDefault("DEDUP_WINDOW_SECONDS", 3600)
	viper.SetDefault("SNAPSHOT_REFRESH_SECONDS", 60)
	viper.SetDefault("EXPIRY_SWEEP_SCHEDULE", "*/10 * * * *")
	viper.SetDefault("RECONCILE_SWEEP_SCHEDULE", "*/5 * * * *")
	viper.SetDefault("RECONCILE_GRACE_SECONDS", 300)
	viper.SetDefault("LEDGER_REQUEST_TIMEOUT_SECONDS", 15)
	viper.SetDefault("EVALUATOR_TIMEOUT_SECONDS", 30)
	viper.SetDefault("REDIS_DEDUP_PREFIX", "promotion:dedup")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_DEDUP_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENT_EXCHANGE")
	_ = viper.BindEnv("TRANSACTION_EVENT_QUEUE")
	_ = viper.BindEnv("TRANSACTION_ROUTING_KEY")
	_ = viper.BindEnv("LEDGER_API_BASE_URL")
	_ = viper.BindEnv("LEDGER_API_KEY")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "PROMOTION_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("CURSOR_SOURCE_NAME")
	_ = viper.BindEnv("POLL_INTERVAL_SECONDS")
	_ = viper.BindEnv("POLL_BATCH_SIZE")
	_ = viper.BindEnv("DEDUP_WINDOW_SECONDS")
	_ = viper.BindEnv("SNAPSHOT_REFRESH_SECONDS")
	_ = viper.BindEnv("EXPIRY_SWEEP_SCHEDULE")
	_ = viper.BindEnv("RECONCILE_SWEEP_SCHEDULE")
	_ = viper.BindEnv("RECONCILE_GRACE_SECONDS")
	_ = viper.BindEnv("LEDGER_REQUEST_TIMEOUT_SECONDS")
	_ = viper.BindEnv("EVALUATOR_TIMEOUT_SECONDS")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisDedupPrefix = strings.TrimSpace(config.RedisDedupPrefix)
	if config.RedisDedupPrefix == "" {
		config.RedisDedupPrefix = "promotion:dedup"
	}
	if strings.TrimSpace(config.CursorSourceName) == "" {
		config.CursorSourceName = "ledger-db"
	}

	if config.PollIntervalSeconds <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive poll interval configured; using default\" seconds=%d", config.PollIntervalSeconds)
		config.PollIntervalSeconds = 5
	}
	if config.PollBatchSize <= 0 {
		config.PollBatchSize = 200
	}
	if config.DedupWindowSeconds <= 0 {
		config.DedupWindowSeconds = 3600
	}
	if config.SnapshotRefreshSeconds <= 0 {
		config.SnapshotRefreshSeconds = 60
	}
	if config.ReconcileGraceSeconds <= 0 {
		config.ReconcileGraceSeconds = 300
	}
	if config.LedgerRequestTimeoutSecs <= 0 {
		config.LedgerRequestTimeoutSecs = 15
	}
	if config.EvaluatorTimeoutSeconds <= 0 {
		config.EvaluatorTimeoutSeconds = 30
	}

	return
}

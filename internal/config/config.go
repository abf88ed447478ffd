/**
 * @description
 * This package handles the configuration management for the adapter. It uses
 * the Viper library to read configuration from environment variables,
 * providing a centralized and straightforward way to manage application
 * settings.
 *
 * The three credentials the adapter cannot run without (Rehive URL and token,
 * BlockCypher token) are validated here so a misconfigured deployment fails
 * at startup instead of on the first webhook.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the bitcoin adapter.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                string        `mapstructure:"SERVER_PORT"`
	DatabaseURL               string        `mapstructure:"DATABASE_URL"`
	RedisURL                  string        `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix      string        `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL               string        `mapstructure:"RABBITMQ_URL"`
	WebhookEventQueue         string        `mapstructure:"WEBHOOK_EVENT_QUEUE"`
	RehiveAPIURL              string        `mapstructure:"REHIVE_API_URL"`
	RehiveAPIToken            string        `mapstructure:"REHIVE_API_TOKEN"`
	BlockCypherAPIURL         string        `mapstructure:"BLOCKCYPHER_API_URL"`
	BlockCypherToken          string        `mapstructure:"BLOCKCYPHER_TOKEN"`
	AdapterSecretKey          string        `mapstructure:"ADAPTER_SECRET_KEY"`
	Currency                  string        `mapstructure:"CURRENCY"`
	Issuer                    string        `mapstructure:"ISSUER"`
	CoinPrecision             int           `mapstructure:"COIN_PRECISION"`
	ConfidenceThreshold       float64       `mapstructure:"CONFIDENCE_THRESHOLD"`
	LedgerSyncMaxAttempts     int           `mapstructure:"LEDGER_SYNC_MAX_ATTEMPTS"`
	LedgerSyncRetryDelay      time.Duration `mapstructure:"LEDGER_SYNC_RETRY_DELAY"`
	ReconcileSchedule         string        `mapstructure:"RECONCILE_SCHEDULE"`
	WebhookRateLimitPerMinute int           `mapstructure:"WEBHOOK_RATE_LIMIT_PER_MINUTE"`
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
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("WEBHOOK_EVENT_QUEUE", "bitcoin_adapter.webhook_events")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "adapter:rate_limit")
	viper.SetDefault("CURRENCY", "XBT")
	viper.SetDefault("ISSUER", "")
	viper.SetDefault("COIN_PRECISION", 8)
	viper.SetDefault("CONFIDENCE_THRESHOLD", 0.9)
	viper.SetDefault("LEDGER_SYNC_MAX_ATTEMPTS", 24)
	viper.SetDefault("LEDGER_SYNC_RETRY_DELAY", "1h")
	viper.SetDefault("RECONCILE_SCHEDULE", "@every 1h")
	viper.SetDefault("WEBHOOK_RATE_LIMIT_PER_MINUTE", 120)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("WEBHOOK_EVENT_QUEUE")
	_ = viper.BindEnv("REHIVE_API_URL")
	_ = viper.BindEnv("REHIVE_API_TOKEN")
	_ = viper.BindEnv("BLOCKCYPHER_API_URL")
	_ = viper.BindEnv("BLOCKCYPHER_TOKEN")
	_ = viper.BindEnv("ADAPTER_SECRET_KEY")
	_ = viper.BindEnv("CURRENCY")
	_ = viper.BindEnv("ISSUER")
	_ = viper.BindEnv("COIN_PRECISION")
	_ = viper.BindEnv("CONFIDENCE_THRESHOLD")
	_ = viper.BindEnv("LEDGER_SYNC_MAX_ATTEMPTS")
	_ = viper.BindEnv("LEDGER_SYNC_RETRY_DELAY")
	_ = viper.BindEnv("RECONCILE_SCHEDULE")
	_ = viper.BindEnv("WEBHOOK_RATE_LIMIT_PER_MINUTE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RehiveAPIURL = strings.TrimRight(strings.TrimSpace(config.RehiveAPIURL), "/")
	config.RehiveAPIToken = strings.TrimSpace(config.RehiveAPIToken)
	config.BlockCypherToken = strings.TrimSpace(config.BlockCypherToken)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "adapter:rate_limit"
	}

	if config.CoinPrecision < 0 {
		log.Printf("level=warn component=config msg=\"negative coin precision configured; coercing to 8\" precision=%d", config.CoinPrecision)
		config.CoinPrecision = 8
	}
	if config.ConfidenceThreshold <= 0 || config.ConfidenceThreshold > 1 {
		log.Printf("level=warn component=config msg=\"confidence threshold out of range; coercing to 0.9\" threshold=%f", config.ConfidenceThreshold)
		config.ConfidenceThreshold = 0.9
	}
	if config.LedgerSyncMaxAttempts < 1 {
		config.LedgerSyncMaxAttempts = 24
	}
	if config.LedgerSyncRetryDelay <= 0 {
		config.LedgerSyncRetryDelay = time.Hour
	}
	if config.WebhookRateLimitPerMinute < 0 {
		config.WebhookRateLimitPerMinute = 0
	}

	err = config.validate()
	return
}

// validate enforces the credentials the adapter cannot operate without.
func (c Config) validate() error {
	missing := make([]string, 0, 3)
	if c.RehiveAPIURL == "" {
		missing = append(missing, "REHIVE_API_URL")
	}
	if c.RehiveAPIToken == "" {
		missing = append(missing, "REHIVE_API_TOKEN")
	}
	if c.BlockCypherToken == "" {
		missing = append(missing, "BLOCKCYPHER_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

/**
 * @description
 * This package handles the configuration management for the ledger service. It uses the
 * Viper library to read configuration from environment variables and an optional .env
 * file.
 *
 * @dependencies
 * - github.com/spf13/viper: configuration loading.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

// Config holds all the configuration variables for the ledger service.
type Config struct {
	ServerPort                 string `mapstructure:"SERVER_PORT"`
	StorageDriver              string `mapstructure:"STORAGE_DRIVER"`
	DatabaseURL                string `mapstructure:"DATABASE_URL"`
	RedisURL                   string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix       string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	TransferRateLimitPerMinute int    `mapstructure:"TRANSFER_RATE_LIMIT_PER_MINUTE"`
	AccountLockTTLSeconds      int    `mapstructure:"ACCOUNT_LOCK_TTL_SECONDS"`
	RabbitMQURL                string `mapstructure:"RABBITMQ_URL"`
	LedgerEventsExchange       string `mapstructure:"LEDGER_EVENTS_EXCHANGE"`
	LedgerCashQueue            string `mapstructure:"LEDGER_CASH_QUEUE"`
	LedgerAuditSchedule        string `mapstructure:"LEDGER_AUDIT_SCHEDULE"`
	JWTSecret                  string `mapstructure:"JWT_SECRET"`
	CORSAllowedOrigins         string `mapstructure:"CORS_ALLOWED_ORIGINS"`
}

// LoadConfig reads configuration from environment variables and an optional .env file
// located in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "ledger:rate_limit")
	viper.SetDefault("TRANSFER_RATE_LIMIT_PER_MINUTE", 30)
	viper.SetDefault("ACCOUNT_LOCK_TTL_SECONDS", 10)
	viper.SetDefault("LEDGER_EVENTS_EXCHANGE", "ledger.events")
	viper.SetDefault("LEDGER_CASH_QUEUE", "ledger_service.cash_movements")
	viper.SetDefault("LEDGER_AUDIT_SCHEDULE", "@every 15m")
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "*")

	// Bind explicitly so Unmarshal sees values that only exist in the environment.
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("STORAGE_DRIVER")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "LEDGER_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("TRANSFER_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("ACCOUNT_LOCK_TTL_SECONDS")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("LEDGER_EVENTS_EXCHANGE")
	_ = viper.BindEnv("LEDGER_CASH_QUEUE")
	_ = viper.BindEnv("LEDGER_AUDIT_SCHEDULE")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")

	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}

	config.DatabaseURL = strings.TrimSpace(config.DatabaseURL)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RabbitMQURL = strings.TrimSpace(config.RabbitMQURL)
	config.JWTSecret = strings.TrimSpace(config.JWTSecret)

	config.StorageDriver = strings.ToLower(strings.TrimSpace(config.StorageDriver))
	switch config.StorageDriver {
	case StorageDriverPostgres, StorageDriverMemory:
	case "":
		config.StorageDriver = StorageDriverMemory
		if config.DatabaseURL != "" {
			config.StorageDriver = StorageDriverPostgres
		}
	default:
		log.Printf("level=warn component=config msg=\"unknown STORAGE_DRIVER; falling back to memory\" value=%q", config.StorageDriver)
		config.StorageDriver = StorageDriverMemory
	}

	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "ledger:rate_limit"
	}
	if config.TransferRateLimitPerMinute < 0 {
		config.TransferRateLimitPerMinute = 0
	}
	if config.AccountLockTTLSeconds <= 0 {
		config.AccountLockTTLSeconds = 10
	}
	if strings.TrimSpace(config.LedgerAuditSchedule) == "" {
		config.LedgerAuditSchedule = "@every 15m"
	}

	return
}

// AllowedOrigins splits CORSAllowedOrigins on commas.
func (c Config) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(c.CORSAllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

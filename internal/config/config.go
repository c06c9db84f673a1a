/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the booking-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                string `mapstructure:"SERVER_PORT"`
	DatabaseURL               string `mapstructure:"DATABASE_URL"`
	RedisURL                  string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix      string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL               string `mapstructure:"RABBITMQ_URL"`
	RateCatalogURL            string `mapstructure:"RATE_CATALOG_URL"`
	RateCatalogInternalAPIKey string `mapstructure:"RATE_CATALOG_INTERNAL_API_KEY"`
	ClerkJWKSURL              string `mapstructure:"CLERK_JWKS_URL"`
	InternalAPIKey            string `mapstructure:"INTERNAL_API_KEY"`
	PaymentLinkShareBaseURL   string `mapstructure:"PAYMENT_LINK_SHARE_BASE_URL"`
	PaymentLinkTTLDays        int    `mapstructure:"PAYMENT_LINK_TTL_DAYS"`
	RedistributeRemainder     bool   `mapstructure:"REDISTRIBUTE_INSTALLMENT_REMAINDER"`
	RedeemRateLimitPerMinute  int    `mapstructure:"REDEEM_RATE_LIMIT_PER_MINUTE"`
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
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "rentrooms:rate_limit")
	viper.SetDefault("PAYMENT_LINK_SHARE_BASE_URL", "https://rentrooms.app")
	viper.SetDefault("PAYMENT_LINK_TTL_DAYS", 7)
	viper.SetDefault("REDISTRIBUTE_INSTALLMENT_REMAINDER", false)
	viper.SetDefault("REDEEM_RATE_LIMIT_PER_MINUTE", 30)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "BOOKING_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("RATE_CATALOG_URL")
	_ = viper.BindEnv("RATE_CATALOG_INTERNAL_API_KEY")
	_ = viper.BindEnv("CLERK_JWKS_URL")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "BOOKING_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("PAYMENT_LINK_SHARE_BASE_URL")
	_ = viper.BindEnv("PAYMENT_LINK_TTL_DAYS")
	_ = viper.BindEnv("REDISTRIBUTE_INSTALLMENT_REMAINDER")
	_ = viper.BindEnv("REDEEM_RATE_LIMIT_PER_MINUTE")

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
	if strings.TrimSpace(config.InternalAPIKey) == "" {
		config.InternalAPIKey = strings.TrimSpace(os.Getenv("BOOKING_SERVICE_INTERNAL_API_KEY"))
	}
	config.RateCatalogInternalAPIKey = strings.TrimSpace(config.RateCatalogInternalAPIKey)
	if config.RateCatalogInternalAPIKey == "" {
		config.RateCatalogInternalAPIKey = config.InternalAPIKey
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "rentrooms:rate_limit"
	}
	config.PaymentLinkShareBaseURL = strings.TrimRight(strings.TrimSpace(config.PaymentLinkShareBaseURL), "/")

	if config.PaymentLinkTTLDays <= 0 {
		config.PaymentLinkTTLDays = 7
	}
	if config.RedeemRateLimitPerMinute <= 0 {
		config.RedeemRateLimitPerMinute = 30
	}

	return
}

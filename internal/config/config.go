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

// Config holds all the configuration variables for the atm-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort           string `mapstructure:"SERVER_PORT"`
	DatabaseURL          string `mapstructure:"DATABASE_URL"`
	RedisURL             string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RedisOTPPrefix       string `mapstructure:"REDIS_OTP_PREFIX"`
	RabbitMQURL          string `mapstructure:"RABBITMQ_URL"`
	RateAPIBaseURL       string `mapstructure:"RATE_API_BASE_URL"`
	RateAPIKey           string `mapstructure:"RATE_API_KEY"`
	RateTimeoutSeconds   int    `mapstructure:"RATE_TIMEOUT_SECONDS"`
	JWTSecret            string `mapstructure:"JWT_SECRET"`
	OTPTTLMinutes        int    `mapstructure:"OTP_TTL_MINUTES"`
	OTPIssueLimit        int    `mapstructure:"OTP_ISSUE_LIMIT_PER_WINDOW"`
	OTPIssueWindowMin    int    `mapstructure:"OTP_ISSUE_WINDOW_MINUTES"`
	OTPVerifyLimit       int    `mapstructure:"OTP_VERIFY_LIMIT"`
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
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "atm:rate_limit")
	viper.SetDefault("REDIS_OTP_PREFIX", "atm:otp")
	viper.SetDefault("RATE_TIMEOUT_SECONDS", 10)
	viper.SetDefault("OTP_TTL_MINUTES", 15)
	viper.SetDefault("OTP_ISSUE_LIMIT_PER_WINDOW", 3)
	viper.SetDefault("OTP_ISSUE_WINDOW_MINUTES", 5)
	viper.SetDefault("OTP_VERIFY_LIMIT", 5)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "ATM_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("REDIS_OTP_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("RATE_API_BASE_URL")
	_ = viper.BindEnv("RATE_API_KEY")
	_ = viper.BindEnv("RATE_TIMEOUT_SECONDS")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("OTP_TTL_MINUTES")
	_ = viper.BindEnv("OTP_ISSUE_LIMIT_PER_WINDOW")
	_ = viper.BindEnv("OTP_ISSUE_WINDOW_MINUTES")
	_ = viper.BindEnv("OTP_VERIFY_LIMIT")

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
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "atm:rate_limit"
	}
	config.RedisOTPPrefix = strings.TrimSpace(config.RedisOTPPrefix)
	if config.RedisOTPPrefix == "" {
		config.RedisOTPPrefix = "atm:otp"
	}

	if config.RateTimeoutSeconds <= 0 {
		config.RateTimeoutSeconds = 10
	}
	if config.OTPTTLMinutes <= 0 {
		config.OTPTTLMinutes = 15
	}
	if config.OTPIssueLimit < 0 {
		config.OTPIssueLimit = 0
	}
	if config.OTPIssueWindowMin <= 0 {
		config.OTPIssueWindowMin = 5
	}
	if config.OTPVerifyLimit < 0 {
		config.OTPVerifyLimit = 5
	}

	return
}

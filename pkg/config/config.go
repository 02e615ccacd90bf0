// Package config loads service configuration from 12-factor
// environment variables with development defaults.
package config

import (
	"os"
	"strconv"
)

// Config holds server configuration.
type Config struct {
	Port     string
	LogLevel string

	// StoreDriver selects the plan store: "sqlite" or "postgres".
	StoreDriver string
	// DatabaseURL is the postgres DSN, or the sqlite file path.
	DatabaseURL string

	// HolidayRules is the path to the YAML holiday rule table.
	HolidayRules string
	// HolidayAPIURL is the optional remote holiday calendar; empty
	// disables the HTTP provider.
	HolidayAPIURL string
	// RedisAddr enables the shared holiday cache; empty disables it.
	RedisAddr string

	// ReviewRules is the optional path to extra YAML review rules.
	ReviewRules string

	// S3Bucket enables the S3 document repository; empty selects the
	// in-process store.
	S3Bucket   string
	S3Region   string
	S3Endpoint string

	OTLPEndpoint string
	OTelEnabled  bool

	// RateLimitRPS bounds requests per second per client IP.
	RateLimitRPS float64
}

// Load reads configuration from the environment.
func Load() *Config {
	return &Config{
		Port:          envOr("PORT", "8080"),
		LogLevel:      envOr("LOG_LEVEL", "INFO"),
		StoreDriver:   envOr("STORE_DRIVER", "sqlite"),
		DatabaseURL:   envOr("DATABASE_URL", "lexops.db"),
		HolidayRules:  envOr("HOLIDAY_RULES", "holidays.yaml"),
		HolidayAPIURL: os.Getenv("HOLIDAY_API_URL"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		ReviewRules:   os.Getenv("REVIEW_RULES"),
		S3Bucket:      os.Getenv("S3_BUCKET"),
		S3Region:      envOr("S3_REGION", "eu-west-1"),
		S3Endpoint:    os.Getenv("S3_ENDPOINT"),
		OTLPEndpoint:  envOr("OTLP_ENDPOINT", "localhost:4317"),
		OTelEnabled:   os.Getenv("OTEL_ENABLED") == "true",
		RateLimitRPS:  envFloat("RATE_LIMIT_RPS", 10),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

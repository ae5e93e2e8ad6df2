package config

import (
	"os"
	"strconv"
	"time"

	"ticket-settlement/internal/services/gateway/flowpay"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// PubNub configuration (notification dispatch)
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	OpsAlertChannel    string

	// Payment provider configuration
	FlowPay flowpay.Config

	// Pricing
	DefaultCurrency  string
	CurrencyExponent int

	// Timeout configuration
	IntentSessionTTL time.Duration
	WebhookDedupTTL  time.Duration

	// Redemption
	StaffKeyHash string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Monitoring
	EnableMetrics bool
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
		OpsAlertChannel:    getEnv("OPS_ALERT_CHANNEL", "ops-alerts"),

		// FlowPay provider
		FlowPay: flowpay.Config{
			BaseURL:       getEnv("FLOWPAY_BASE_URL", "https://api.flowpay.test"),
			APIKey:        getEnv("FLOWPAY_API_KEY", ""),
			WebhookSecret: getEnv("FLOWPAY_WEBHOOK_SECRET", ""),

			PNSubKey:    getEnv("FLOWPAY_PN_SUBKEY", ""),
			PNSubSecret: getEnv("FLOWPAY_PN_SUBSECRET", ""),
			PNUUID:      getEnv("FLOWPAY_PN_UUID", ""),
			PNChannel:   getEnv("FLOWPAY_PN_CHANNEL", ""),
		},

		// Pricing
		DefaultCurrency:  getEnv("DEFAULT_CURRENCY", "USD"),
		CurrencyExponent: getEnvAsInt("CURRENCY_EXPONENT", 2),

		// Timeouts
		IntentSessionTTL: getEnvAsDuration("INTENT_SESSION_TTL", "30m"),
		WebhookDedupTTL:  getEnvAsDuration("WEBHOOK_DEDUP_TTL", "24h"),

		// Redemption
		StaffKeyHash: getEnv("STAFF_KEY_HASH", ""),

		// Rate limiting
		RateLimitRequests: getEnvAsInt("RATE_LIMIT_REQUESTS", 30),
		RateLimitWindow:   getEnvAsDuration("RATE_LIMIT_WINDOW", "1m"),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, fall back to the default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

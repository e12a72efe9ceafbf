package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Redis configuration
	RedisURL string

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	PubNubUUID         string

	// Purchase configuration
	IssueOnPurchase bool
	ServiceFeeBps   int
	ServiceFeeFlat  string
	PurchaseLimit   int64

	// Flash-sale mode routes inventory through Redis instead of SQL.
	FlashSaleMode bool

	// Transfer configuration
	TransferTTL   time.Duration
	SweepInterval time.Duration

	// Gate server configuration
	GateAddr      string
	GateAPIKey    string
	GateScanLimit int64

	// Chapa configuration
	ChapaSecretKey     string
	ChapaWebhookSecret string
	ChapaCallbackURL   string

	// Telebirr configuration
	TelebirrAppID     string
	TelebirrAppKey    string
	TelebirrShortCode string
	TelebirrNotifyURL string
	TelebirrBaseURL   string
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL: getEnv("REDIS_URL", "localhost:6379"),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
		PubNubUUID:         getEnv("PUBNUB_UUID", "passaddis-server"),

		// Purchase
		IssueOnPurchase: getEnvAsBool("ISSUE_ON_PURCHASE", false),
		ServiceFeeBps:   getEnvAsInt("SERVICE_FEE_BPS", 350),
		ServiceFeeFlat:  getEnv("SERVICE_FEE_FLAT", "0"),
		PurchaseLimit:   int64(getEnvAsInt("PURCHASE_RATE_LIMIT", 10)),

		FlashSaleMode: getEnvAsBool("FLASH_SALE_MODE", false),

		// Transfers
		TransferTTL:   getEnvAsDuration("TRANSFER_TTL", "24h"),
		SweepInterval: getEnvAsDuration("TRANSFER_SWEEP_INTERVAL", "1h"),

		// Gate
		GateAddr:      getEnv("GATE_ADDR", ":8091"),
		GateAPIKey:    getEnv("GATE_API_KEY", ""),
		GateScanLimit: int64(getEnvAsInt("GATE_SCAN_LIMIT", 120)),

		// Chapa
		ChapaSecretKey:     getEnv("CHAPA_SECRET_KEY", ""),
		ChapaWebhookSecret: getEnv("CHAPA_WEBHOOK_SECRET", ""),
		ChapaCallbackURL:   getEnv("CHAPA_CALLBACK_URL", ""),

		// Telebirr
		TelebirrAppID:     getEnv("TELEBIRR_APP_ID", ""),
		TelebirrAppKey:    getEnv("TELEBIRR_APP_KEY", ""),
		TelebirrShortCode: getEnv("TELEBIRR_SHORT_CODE", ""),
		TelebirrNotifyURL: getEnv("TELEBIRR_NOTIFY_URL", ""),
		TelebirrBaseURL:   getEnv("TELEBIRR_BASE_URL", "https://app.ethiomobilemoney.et:2121"),
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
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

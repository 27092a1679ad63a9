package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	// MercadoPago integration.
	GatewayBaseURL      string
	GatewayTimeout      time.Duration
	GatewayMaxRetries   int
	PlatformAccessToken string
	NotificationBaseURL string

	// Secret used to derive the AES key protecting stored gateway credentials.
	CredentialSecret string

	// Webhook reconciliation worker.
	WebhookBatchSize    int
	WebhookPollInterval time.Duration
	WebhookMaxAttempts  int

	// Webhook ingress rate limiting (disabled when RedisAddr is empty).
	RedisAddr    string
	WebhookRate  float64
	WebhookBurst int

	SMTPHost string
	SMTPPort string
	SMTPUser string
	SMTPPass string
	SMTPFrom string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "billing"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "billing"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),

		GatewayBaseURL:      getenv("MERCADOPAGO_BASE_URL", "https://api.mercadopago.com"),
		GatewayTimeout:      getenvDuration("MERCADOPAGO_TIMEOUT", 10*time.Second),
		GatewayMaxRetries:   getenvInt("MERCADOPAGO_MAX_RETRIES", 3),
		PlatformAccessToken: strings.TrimSpace(getenv("MERCADOPAGO_PLATFORM_ACCESS_TOKEN", "")),
		NotificationBaseURL: strings.TrimSpace(getenv("WEBHOOK_NOTIFICATION_BASE_URL", "")),

		CredentialSecret: strings.TrimSpace(getenv("PROVIDER_CREDENTIAL_SECRET", "")),

		WebhookBatchSize:    getenvInt("WEBHOOK_BATCH_SIZE", 25),
		WebhookPollInterval: getenvDuration("WEBHOOK_POLL_INTERVAL", 2*time.Second),
		WebhookMaxAttempts:  getenvInt("WEBHOOK_MAX_ATTEMPTS", 8),

		RedisAddr:    strings.TrimSpace(getenv("REDIS_ADDR", "")),
		WebhookRate:  getenvFloat("WEBHOOK_RATE_LIMIT", 50),
		WebhookBurst: getenvInt("WEBHOOK_RATE_BURST", 100),

		SMTPHost: getenv("SMTP_HOST", ""),
		SMTPPort: getenv("SMTP_PORT", "587"),
		SMTPUser: getenv("SMTP_USER", ""),
		SMTPPass: getenv("SMTP_PASS", ""),
		SMTPFrom: getenv("SMTP_FROM", ""),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}

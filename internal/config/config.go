package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort string
	AppEnv  string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string

	DynamoTables DynamoTables

	RetryQueueURL     string
	AlertTopicARN     string // optional, ops alert on permanent delivery failure
	ArchiveBucketName string // optional, S3 payload archive

	WebhookTimeout  time.Duration
	CaseTTL         time.Duration
	IdempotencyTTL  time.Duration
	ExpirySweepTick time.Duration

	KeyRateLimit    int // requests per window per API key
	IPRateLimit     int // requests per window per source IP
	RateLimitWindow time.Duration

	AllowedOrigins []string // CORS allowed origins
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Cases           string
	IdempotencyKeys string
	DeliveryLogs    string
	RateLimits      string
	ClientWebhooks  string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort: getEnv("APP_PORT", "3000"),
		AppEnv:  getEnv("APP_ENV", "development"),

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),

		DynamoTables: DynamoTables{
			Cases:           getEnv("DYNAMO_TABLE_CASES", "verification_cases"),
			IdempotencyKeys: getEnv("DYNAMO_TABLE_IDEMPOTENCY_KEYS", "idempotency_keys"),
			DeliveryLogs:    getEnv("DYNAMO_TABLE_DELIVERY_LOGS", "webhook_delivery_logs"),
			RateLimits:      getEnv("DYNAMO_TABLE_RATE_LIMITS", "rate_limit_counters"),
			ClientWebhooks:  getEnv("DYNAMO_TABLE_CLIENT_WEBHOOKS", "client_webhooks"),
		},

		RetryQueueURL:     getEnv("WEBHOOK_RETRY_QUEUE_URL", ""),
		AlertTopicARN:     getEnv("DELIVERY_ALERT_TOPIC_ARN", ""),
		ArchiveBucketName: getEnv("DELIVERY_ARCHIVE_BUCKET", ""),

		WebhookTimeout:  getEnvDuration("WEBHOOK_TIMEOUT", 15*time.Second),
		CaseTTL:         getEnvDuration("CASE_TTL", 30*24*time.Hour),
		IdempotencyTTL:  getEnvDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		ExpirySweepTick: getEnvDuration("EXPIRY_SWEEP_TICK", 15*time.Minute),

		KeyRateLimit:    getEnvInt("RATE_LIMIT_PER_KEY", 100),
		IPRateLimit:     getEnvInt("RATE_LIMIT_PER_IP", 1000),
		RateLimitWindow: getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),

		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

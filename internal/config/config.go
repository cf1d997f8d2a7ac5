package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	ServiceName   string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Telnyx voice gateway
	TelnyxAPIKey      string
	TelnyxAssistantID string
	TelnyxFromNumber  string
	GatewayTimeout    time.Duration

	// Inbound report webhook + admin API auth
	WebhookSecret    string
	AdminJWTSecret   string
	AdminJWTIssuer   string
	AdminJWTAudience string

	// Dispatch scheduling
	DispatchInterval time.Duration
	DispatchLockTTL  time.Duration
	DefaultTimezone  string

	// Follow-up email
	BrandName         string
	EmailProvider     string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
	SESFromName       string

	// AWS wiring (replay queue, call-log table, report archive)
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	ReplayQueueURL      string
	UseMemoryQueue      bool
	WorkerCount         int
	CallLogBackend      string
	CallLogTable        string
	ArchiveBucket       string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		ServiceName:   getEnv("SERVICE_NAME", "callflow"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		TelnyxAPIKey:      getEnv("TELNYX_API_KEY", ""),
		TelnyxAssistantID: getEnv("TELNYX_ASSISTANT_ID", ""),
		TelnyxFromNumber:  getEnv("TELNYX_FROM_NUMBER", ""),
		GatewayTimeout:    getEnvAsDuration("GATEWAY_TIMEOUT", 15*time.Second),

		WebhookSecret:    getEnv("WEBHOOK_SECRET", ""),
		AdminJWTSecret:   getEnv("ADMIN_JWT_SECRET", ""),
		AdminJWTIssuer:   getEnv("ADMIN_JWT_ISSUER", ""),
		AdminJWTAudience: getEnv("ADMIN_JWT_AUDIENCE", ""),

		DispatchInterval: getEnvAsDuration("DISPATCH_INTERVAL", 5*time.Minute),
		DispatchLockTTL:  getEnvAsDuration("DISPATCH_LOCK_TTL", 5*time.Minute),
		DefaultTimezone:  getEnv("DEFAULT_TIMEZONE", "America/New_York"),

		BrandName:         getEnv("BRAND_NAME", "CallFlow"),
		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "auto"))),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "CallFlow"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		SESFromName:       getEnv("SES_FROM_NAME", "CallFlow"),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		ReplayQueueURL:      getEnv("REPLAY_QUEUE_URL", ""),
		UseMemoryQueue:      getEnvAsBool("USE_MEMORY_QUEUE", false),
		WorkerCount:         getEnvAsInt("WORKER_COUNT", 2),
		CallLogBackend:      strings.ToLower(strings.TrimSpace(getEnv("CALL_LOG_BACKEND", "postgres"))),
		CallLogTable:        getEnv("CALL_LOG_TABLE", "call_logs"),
		ArchiveBucket:       getEnv("ARCHIVE_BUCKET", ""),
	}
}

// Validate reports the configuration errors that must stop startup.
func (c *Config) Validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.TelnyxAPIKey == "" {
		missing = append(missing, "TELNYX_API_KEY")
	}
	if c.TelnyxAssistantID == "" {
		missing = append(missing, "TELNYX_ASSISTANT_ID")
	}
	if c.WebhookSecret == "" {
		missing = append(missing, "WEBHOOK_SECRET")
	}
	if c.AdminJWTSecret == "" {
		missing = append(missing, "ADMIN_JWT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required environment variables: %s", strings.Join(missing, ", "))
	}
	if c.CallLogBackend != "postgres" && c.CallLogBackend != "dynamo" {
		return fmt.Errorf("config: unsupported CALL_LOG_BACKEND %q (want postgres or dynamo)", c.CallLogBackend)
	}
	if c.DispatchInterval <= 0 {
		return fmt.Errorf("config: DISPATCH_INTERVAL must be positive, got %s", c.DispatchInterval)
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

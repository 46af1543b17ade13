package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string
	DatabaseURL   string

	// Voice carrier (Twilio-compatible)
	TwilioAccountSID    string
	TwilioAuthToken     string
	TwilioWebhookSecret string
	TwilioCallerID      string
	RecordCalls         bool

	// Messaging gateway (WhatsApp/SMS collaborator)
	GatewayBaseURL   string
	GatewayAPIToken  string
	GatewayTimeout   time.Duration
	DispatchWorkers  int
	UseMemoryQueue   bool
	RedisAddr        string
	RedisPassword    string
	RedisTLS         bool
	DispatchQueueKey string

	// Staff portal
	PortalJWTSecret string

	// Organisation details spoken and messaged to donors
	OrgName           string
	BankAccountName   string
	BankSortCode      string
	BankAccountNumber string
	ContactPhone      string
	AdminContactPhone string

	// Admin email alerts
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	AdminAlertEmail   string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		TwilioAccountSID:    getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:     getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioWebhookSecret: getEnv("TWILIO_WEBHOOK_SECRET", ""),
		TwilioCallerID:      getEnv("TWILIO_CALLER_ID", ""),
		RecordCalls:         getEnvAsBool("RECORD_CALLS", true),

		GatewayBaseURL:   getEnv("MESSAGING_GATEWAY_URL", ""),
		GatewayAPIToken:  getEnv("MESSAGING_GATEWAY_TOKEN", ""),
		GatewayTimeout:   getEnvAsDuration("MESSAGING_GATEWAY_TIMEOUT", 10*time.Second),
		DispatchWorkers:  getEnvAsInt("DISPATCH_WORKERS", 2),
		UseMemoryQueue:   getEnvAsBool("USE_MEMORY_QUEUE", false),
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisTLS:         getEnvAsBool("REDIS_TLS", false),
		DispatchQueueKey: getEnv("DISPATCH_QUEUE_KEY", "callops:dispatch"),

		PortalJWTSecret: getEnv("PORTAL_JWT_SECRET", ""),

		OrgName:           getEnv("ORG_NAME", "the church office"),
		BankAccountName:   getEnv("BANK_ACCOUNT_NAME", ""),
		BankSortCode:      getEnv("BANK_SORT_CODE", ""),
		BankAccountNumber: getEnv("BANK_ACCOUNT_NUMBER", ""),
		ContactPhone:      getEnv("CONTACT_PHONE", ""),
		AdminContactPhone: getEnv("ADMIN_CONTACT_PHONE", ""),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Donor Call Desk"),
		AdminAlertEmail:   getEnv("ADMIN_ALERT_EMAIL", ""),
	}
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

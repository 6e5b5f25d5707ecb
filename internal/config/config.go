package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewPricingHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	NodeID      int64

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
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RateLimit     RateLimitConfig

	Webhook      WebhookConfig
	Notification NotificationConfig
	Email        EmailConfig
	Codes        CodeConfig

	SettlementCurrency string
	PricingFile        string
	RunMigrations      bool
}

type WebhookConfig struct {
	Provider        string
	SigningSecret   string
	ToleranceWindow time.Duration
}

type NotificationConfig struct {
	WebhookURL string
	Timeout    time.Duration
	AdminEmail string
}

// EmailConfig enables SMTP delivery of notifications when SMTPHost is set
// and no notification webhook is configured.
type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

// RateLimitConfig only takes effect when RedisAddr is set.
type RateLimitConfig struct {
	CodeBatchRate  float64
	CodeBatchBurst int
	LockTTL        time.Duration
}

type CodeConfig struct {
	Prefix        string
	Length        int
	GroupSize     int
	AttemptBudget int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "memoria"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		NodeID:       getenvInt64("SNOWFLAKE_NODE", 1),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", ""),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "memoria"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),
		RateLimit: RateLimitConfig{
			CodeBatchRate:  getenvFloat("RATE_LIMIT_CODE_BATCH_RATE", 0.05),
			CodeBatchBurst: getenvInt("RATE_LIMIT_CODE_BATCH_BURST", 5),
			LockTTL:        getenvDuration("RATE_LIMIT_LOCK_TTL", 2*time.Minute),
		},

		Webhook: WebhookConfig{
			Provider:        strings.ToLower(getenv("PAYMENT_PROVIDER", "stripe")),
			SigningSecret:   strings.TrimSpace(getenv("PAYMENT_WEBHOOK_SECRET", "")),
			ToleranceWindow: getenvDuration("PAYMENT_WEBHOOK_TOLERANCE", 5*time.Minute),
		},
		Notification: NotificationConfig{
			WebhookURL: strings.TrimSpace(getenv("NOTIFICATION_WEBHOOK_URL", "")),
			Timeout:    getenvDuration("NOTIFICATION_TIMEOUT", 5*time.Second),
			AdminEmail: strings.TrimSpace(getenv("NOTIFICATION_ADMIN_EMAIL", "")),
		},
		Email: EmailConfig{
			SMTPHost:     strings.TrimSpace(getenv("SMTP_HOST", "")),
			SMTPPort:     getenvInt("SMTP_PORT", 587),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("SMTP_FROM", "no-reply@memoria.local"),
		},
		Codes: CodeConfig{
			Prefix:        strings.ToUpper(getenv("ACTIVATION_CODE_PREFIX", "MEM")),
			Length:        getenvInt("ACTIVATION_CODE_LENGTH", 8),
			GroupSize:     getenvInt("ACTIVATION_CODE_GROUP", 4),
			AttemptBudget: getenvInt("ACTIVATION_CODE_ATTEMPTS", 100),
		},

		SettlementCurrency: strings.ToUpper(getenv("SETTLEMENT_CURRENCY", "EUR")),
		PricingFile:        getenv("PRICING_FILE", ""),
		RunMigrations:      getenvBool("RUN_MIGRATIONS", true),
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
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

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
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

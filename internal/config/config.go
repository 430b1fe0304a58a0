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
	HTTPAddr    string
	AdminToken  string

	SnowflakeNode int64
	SettingsFile  string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Paystack  PaystackConfig
	RateLimit RateLimitConfig
	Slack     SlackConfig
	Scheduler SchedulerConfig
}

type PaystackConfig struct {
	SecretKey   string
	BaseURL     string
	CallbackURL string
	Timeout     time.Duration
}

type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	PayoutRate    float64
	PayoutBurst   int
	PayoutLockTTL time.Duration
}

type SlackConfig struct {
	WebhookURL string
	Channel    string
}

type SchedulerConfig struct {
	Enabled           bool
	RunInterval       time.Duration
	ReplayMaxAttempts int
	PayoutStaleAfter  time.Duration
	BatchSize         int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	redisAddr := strings.TrimSpace(getenv("REDIS_ADDR", ""))

	cfg := Config{
		AppName:       getenv("APP_SERVICE", "payoutd"),
		AppVersion:    getenv("APP_VERSION", "0.1.0"),
		Environment:   getenv("ENVIRONMENT", "development"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		AdminToken:    strings.TrimSpace(getenv("ADMIN_TOKEN", "")),
		SnowflakeNode: getenvInt64("SNOWFLAKE_NODE", 1),
		SettingsFile:  strings.TrimSpace(getenv("SETTINGS_FILE", "")),
		OTLPEndpoint:  getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "payoutd"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "payoutd.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		Paystack: PaystackConfig{
			SecretKey:   strings.TrimSpace(getenv("PAYSTACK_SECRET_KEY", "")),
			BaseURL:     strings.TrimRight(getenv("PAYSTACK_BASE_URL", "https://api.paystack.co"), "/"),
			CallbackURL: strings.TrimSpace(getenv("PAYSTACK_CALLBACK_URL", "")),
			Timeout:     getenvDuration("PAYSTACK_TIMEOUT", 15*time.Second),
		},
		RateLimit: RateLimitConfig{
			Enabled:       redisAddr != "" && getenvBool("RATE_LIMIT_ENABLED", true),
			RedisAddr:     redisAddr,
			RedisPassword: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			RedisDB:       getenvInt("REDIS_DB", 0),
			PayoutRate:    getenvFloat("PAYOUT_RATE_PER_MINUTE", 5) / 60,
			PayoutBurst:   getenvInt("PAYOUT_RATE_BURST", 5),
			PayoutLockTTL: getenvDuration("PAYOUT_LOCK_TTL", 30*time.Second),
		},
		Slack: SlackConfig{
			WebhookURL: strings.TrimSpace(getenv("SLACK_WEBHOOK_URL", "")),
			Channel:    strings.TrimSpace(getenv("SLACK_CHANNEL", "#payouts-ops")),
		},
		Scheduler: SchedulerConfig{
			Enabled:           getenvBool("SCHEDULER_ENABLED", true),
			RunInterval:       getenvDuration("SCHEDULER_RUN_INTERVAL", time.Minute),
			ReplayMaxAttempts: getenvInt("WEBHOOK_REPLAY_MAX_ATTEMPTS", 5),
			PayoutStaleAfter:  getenvDuration("PAYOUT_STALE_AFTER", 24*time.Hour),
			BatchSize:         getenvInt("SCHEDULER_BATCH_SIZE", 50),
		},
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

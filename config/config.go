package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// HTTP/WS server
	ListenAddr  string
	MetricsAddr string

	// Durable storage
	SQLitePath     string
	LegacyDataPath string

	// Optional Redis snapshot mirror
	RedisAddr     string
	RedisPassword string

	// Users and admin gate
	Users           string // "user:pass,user:pass"
	AdminTOTPSecret string

	// Alerting
	WebhookURL string

	// Resolution pipeline
	PrimaryBaseURL  string
	FallbackBaseURL string
	FetchTimeout    time.Duration
	SweepDelay      time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		ListenAddr:  getEnv("LISTEN_ADDR", ":3000"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),

		SQLitePath:     getEnv("SQLITE_PATH", "data/ledger.db"),
		LegacyDataPath: getEnv("LEGACY_DATA_PATH", "data.json"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		Users:           getEnv("USERS", "admin:admin123,user1:pass1,user2:pass2"),
		AdminTOTPSecret: getEnv("ADMIN_TOTP_SECRET", ""),

		WebhookURL: getEnv("WEBHOOK_URL", ""),

		PrimaryBaseURL:  getEnv("PRIMARY_BASE_URL", "https://www.bnppwarrant.com/tc/warrant/"),
		FallbackBaseURL: getEnv("FALLBACK_BASE_URL", "https://www.etnet.com.hk/www/tc/warrants/realtime/quote.php?code="),
		FetchTimeout:    getDurationEnv("FETCH_TIMEOUT_MS", 8000),
		SweepDelay:      getDurationEnv("SWEEP_DELAY_MS", 1500),
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

// getDurationEnv reads a millisecond count from the environment.
func getDurationEnv(key string, fallbackMs int) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return time.Duration(fallbackMs) * time.Millisecond
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("[config] ignoring invalid %s value: %q", key, v)
		return time.Duration(fallbackMs) * time.Millisecond
	}
	return time.Duration(n) * time.Millisecond
}

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the process configuration resolved from the environment.
type Config struct {
	Port      string
	LogLevel  string
	LogFormat string
	APIKey    string

	DefaultStartMS     int
	DefaultGapMS       int
	IncludeAuxChannels bool

	MaxIngestRPS int
	RateWindow   time.Duration
	RedisAddr    string

	SessionTTL           time.Duration
	SessionSweepInterval time.Duration

	BroadcastQueueSize     int
	BroadcastSendTimeout   time.Duration
	StatsBroadcastInterval time.Duration

	LexiconDBPath string
	OTLPEndpoint  string

	AlertLatencyP90MS    int
	AlertReplaceRatio    float64
	AlertRateLimitRatio  float64
	AlertHistoryCapacity int
}

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more paths
// to load from specific files (e.g. ".env"); with no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// FromEnv builds a Config from environment variables, applying defaults for
// anything unset or unparsable.
func FromEnv() Config {
	return Config{
		Port:      GetEnv("PORT", "8000"),
		LogLevel:  GetEnv("LOG_LEVEL", "info"),
		LogFormat: GetEnv("LOG_FORMAT", "json"),
		APIKey:    GetEnv("API_KEY", ""),

		DefaultStartMS:     GetEnvInt("DEFAULT_START_MS", 0),
		DefaultGapMS:       GetEnvInt("DEFAULT_GAP_MS", 60),
		IncludeAuxChannels: GetEnvBool("INCLUDE_AUX_CHANNELS", true),

		MaxIngestRPS: GetEnvInt("MAX_INGEST_RPS", 20),
		RateWindow:   GetEnvDuration("RATE_WINDOW", time.Second),
		RedisAddr:    GetEnv("REDIS_ADDR", ""),

		SessionTTL:           GetEnvDuration("SESSION_TTL", 600*time.Second),
		SessionSweepInterval: GetEnvDuration("SESSION_SWEEP_INTERVAL", 15*time.Second),

		BroadcastQueueSize:     GetEnvInt("BROADCAST_QUEUE_SIZE", 64),
		BroadcastSendTimeout:   GetEnvDuration("BROADCAST_SEND_TIMEOUT", 2*time.Second),
		StatsBroadcastInterval: GetEnvDuration("STATS_BROADCAST_INTERVAL", 5*time.Second),

		LexiconDBPath: GetEnv("LEXICON_DB_PATH", ""),
		OTLPEndpoint:  GetEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		AlertLatencyP90MS:    GetEnvInt("ALERT_LATENCY_P90_MS", 1200),
		AlertReplaceRatio:    GetEnvFloat("ALERT_REPLACE_RATIO", 0.5),
		AlertRateLimitRatio:  GetEnvFloat("ALERT_RATE_LIMIT_RATIO", 0.1),
		AlertHistoryCapacity: GetEnvInt("ALERT_HISTORY_CAPACITY", 200),
	}
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvFloat is GetEnvInt for floating point values.
func GetEnvFloat(key string, fallback float64) float64 {
	if s := os.Getenv(key); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return fallback
}

// GetEnvBool accepts 1/0, true/false, yes/no (case-insensitive).
func GetEnvBool(key string, fallback bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}

// GetEnvDuration parses a Go duration ("15s", "500ms"). A bare integer is
// read as seconds.
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr      string
	PostgresDSN   string
	DBAutoMigrate bool

	LogLevel  string
	LogFormat string
	LogFile   string

	AdminAPIKey string

	RSAKeyBits int
	ECCCurve   string

	LockBackend   string
	LockTimeoutMS int
	LockTTLMS     int

	RateLimitRequests      int
	RateLimitWindowSeconds int
	RateLimitFailClosed    bool
	RateLimitMaxKeys       int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	PolicyPath   string
	MaxDataBytes int
}

const (
	LockBackendLocal = "local"
	LockBackendRedis = "redis"
)

func FromEnv() Config {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return Config{
		HTTPAddr:               addr,
		PostgresDSN:            os.Getenv("POSTGRES_DSN"),
		DBAutoMigrate:          envBoolDefault("DB_AUTO_MIGRATE", true),
		LogLevel:               envDefault("LOG_LEVEL", "info"),
		LogFormat:              envDefault("LOG_FORMAT", "json"),
		LogFile:                os.Getenv("LOG_FILE"),
		AdminAPIKey:            os.Getenv("ADMIN_API_KEY"),
		RSAKeyBits:             envIntDefault("RSA_KEY_BITS", 2048),
		ECCCurve:               envDefault("ECC_CURVE", "P-256"),
		LockBackend:            envDefault("LOCK_BACKEND", LockBackendLocal),
		LockTimeoutMS:          envIntDefault("LOCK_TIMEOUT_MS", 5000),
		LockTTLMS:              envIntDefault("LOCK_TTL_MS", 30000),
		RateLimitRequests:      envIntDefault("RATE_LIMIT_REQUESTS", 0),
		RateLimitWindowSeconds: envIntDefault("RATE_LIMIT_WINDOW_SECONDS", 60),
		RateLimitFailClosed:    envBoolDefault("RATE_LIMIT_FAIL_CLOSED", false),
		RateLimitMaxKeys:       envIntDefault("RATE_LIMIT_MAX_KEYS", 10000),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                envIntDefault("REDIS_DB", 0),
		PolicyPath:             os.Getenv("POLICY_PATH"),
		MaxDataBytes:           envIntDefault("MAX_DATA_BYTES", 65536),
	}
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func envBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "Yes":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "No":
		return false
	default:
		return def
	}
}

func envDurationMillis(ms int) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

func (c Config) LockTimeout() time.Duration {
	return envDurationMillis(c.LockTimeoutMS)
}

func (c Config) LockTTL() time.Duration {
	return envDurationMillis(c.LockTTLMS)
}

func (c Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

// NoDB reports whether the process runs against the in-memory store.
func (c Config) NoDB() bool {
	return c.PostgresDSN == ""
}

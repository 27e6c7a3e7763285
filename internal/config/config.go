package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the session engine.
type Config struct {
	API      APIConfig
	Session  SessionConfig
	Store    StoreConfig
	Redis    RedisConfig
	Postgres PostgresConfig
	Logger   LoggerConfig
	Stub     StubConfig
}

// APIConfig points the client at the account service.
type APIConfig struct {
	BaseURL        string
	TimeoutSeconds int
}

// SessionConfig controls session maintenance behavior.
type SessionConfig struct {
	RevalidateIntervalSeconds int
}

// StoreConfig selects and parameterizes the credential store backend.
type StoreConfig struct {
	Backend  string
	FilePath string
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN      string
	MaxConns int32
	MinConns int32
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// StubConfig parameterizes the bundled reference account API.
type StubConfig struct {
	Host            string
	Port            string
	JWTSecret       string
	TokenTTLMinutes int
	BcryptCost      int
}

// Store backend names accepted by STORE_BACKEND.
const (
	StoreBackendMemory   = "memory"
	StoreBackendFile     = "file"
	StoreBackendRedis    = "redis"
	StoreBackendPostgres = "postgres"
)

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		API: APIConfig{
			BaseURL:        getEnv("API_BASE_URL", "http://127.0.0.1:8080"),
			TimeoutSeconds: getEnvAsInt("HTTP_TIMEOUT_SECONDS", 10),
		},
		Session: SessionConfig{
			RevalidateIntervalSeconds: getEnvAsInt("SESSION_REVALIDATE_INTERVAL_SECONDS", 300),
		},
		Store: StoreConfig{
			Backend:  getEnv("STORE_BACKEND", StoreBackendFile),
			FilePath: getEnv("STORE_FILE_PATH", "credentials.json"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Postgres: PostgresConfig{
			DSN:      os.Getenv("POSTGRES_DSN"),
			MaxConns: int32(getEnvAsInt("POSTGRES_MAX_CONNS", 5)),
			MinConns: int32(getEnvAsInt("POSTGRES_MIN_CONNS", 1)),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Stub: StubConfig{
			Host:            getEnv("STUB_HOST", "0.0.0.0"),
			Port:            getEnv("STUB_PORT", "8080"),
			JWTSecret:       getEnv("STUB_JWT_SECRET", "dev-secret"),
			TokenTTLMinutes: getEnvAsInt("STUB_TOKEN_TTL_MINUTES", 60),
			BcryptCost:      getEnvAsInt("STUB_BCRYPT_COST", 12),
		},
	}

	switch cfg.Store.Backend {
	case StoreBackendMemory, StoreBackendFile, StoreBackendRedis, StoreBackendPostgres:
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND: %q", cfg.Store.Backend)
	}

	return cfg, nil
}

// Timeout returns the HTTP client timeout duration.
func (a APIConfig) Timeout() time.Duration {
	if a.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// RevalidateInterval returns the revalidation period; zero disables it.
func (s SessionConfig) RevalidateInterval() time.Duration {
	if s.RevalidateIntervalSeconds <= 0 {
		return 0
	}
	return time.Duration(s.RevalidateIntervalSeconds) * time.Second
}

// Addr returns the stub bind address.
func (s StubConfig) Addr() string {
	return fmt.Sprintf("%s:%s", s.Host, s.Port)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Store selects the persistence backend.
type Store string

const (
	StorePostgres Store = "postgres"
	StoreMemory   Store = "memory"
)

// Config holds service configuration.
type Config struct {
	Store         Store
	DatabaseURL   string
	MigrationsDir string
	ServerAddr    string

	EscrowBaseURL string
	EscrowAPIKey  string
	EscrowTimeout time.Duration

	AuthCacheTTL time.Duration
}

// Load reads configuration from the environment, with an optional .env
// file for local development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	store := Store(getenv("STORE", string(StorePostgres)))
	if store != StorePostgres && store != StoreMemory {
		return nil, fmt.Errorf("unknown STORE %q", store)
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		user := getenv("POSTGRES_USER", "access_broker")
		pass := getenv("POSTGRES_PASSWORD", "access_broker_pass")
		db := getenv("POSTGRES_DB", "access_broker")
		host := getenv("POSTGRES_HOST", "localhost")
		port := getenv("POSTGRES_PORT", "5432")
		sslmode := getenv("DATABASE_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, sslmode)
	}

	escrowBaseURL := os.Getenv("ESCROW_BASE_URL")
	if escrowBaseURL == "" {
		return nil, fmt.Errorf("ESCROW_BASE_URL is required")
	}

	return &Config{
		Store:         store,
		DatabaseURL:   dsn,
		MigrationsDir: getenv("MIGRATIONS_DIR", "internal/migrations"),
		ServerAddr:    getenv("SERVER_ADDR", "0.0.0.0:8080"),
		EscrowBaseURL: escrowBaseURL,
		EscrowAPIKey:  os.Getenv("ESCROW_API_KEY"),
		EscrowTimeout: parseDuration(getenv("ESCROW_TIMEOUT", "10s"), 10*time.Second),
		AuthCacheTTL:  parseDuration(getenv("AUTH_CACHE_TTL", "5m"), 5*time.Minute),
	}, nil
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func parseDuration(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}

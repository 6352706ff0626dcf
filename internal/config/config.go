// Package config loads the vault backend's configuration from environment
// variables, following the env-var external interface spec.md §6 defines
// (the corpus's YAML config structs in stellar-postgres-ingester and
// stellar-query-api are adapted here to env vars since nothing in this
// system's external interface names a config file).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/withobsrvr/vault-backend/internal/vaulterrors"
)

// Config holds every knob the vault backend reads at startup.
type Config struct {
	RPCURL      string
	ProgramID   string
	DatabaseURL string
	ServerAddr  string

	LogLevel string

	IndexerPollInterval time.Duration
	ReconcileInterval   time.Duration
	TVLPushInterval     time.Duration

	DBMaxOpenConns   int
	DBMaxIdleConns   int
	DBAcquireTimeout time.Duration
}

// Load reads Config from the environment. PROGRAM_ID and DATABASE_URL are
// required; a missing value is a KindFatalConfig error the caller should
// treat as fatal at startup, per spec.md §7. Every other variable, RPC_URL
// included, falls back to a default.
func Load() (*Config, error) {
	cfg := &Config{
		RPCURL:      envOr("RPC_URL", "http://127.0.0.1:8899"),
		ProgramID:   os.Getenv("PROGRAM_ID"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		ServerAddr:  envOr("SERVER_ADDR", "0.0.0.0:8080"),
		LogLevel:    envOr("LOG_LEVEL", "info"),

		IndexerPollInterval: envDuration("INDEXER_POLL_INTERVAL", 10*time.Second),
		ReconcileInterval:   envDuration("RECONCILE_INTERVAL", 60*time.Second),
		TVLPushInterval:     envDuration("TVL_PUSH_INTERVAL", 5*time.Second),

		DBMaxOpenConns:   envInt("DB_MAX_OPEN_CONNS", 10),
		DBMaxIdleConns:   envInt("DB_MIN_IDLE_CONNS", 2),
		DBAcquireTimeout: envDuration("DB_ACQUIRE_TIMEOUT", 5*time.Second),
	}

	if cfg.ProgramID == "" {
		return nil, vaulterrors.New(vaulterrors.KindFatalConfig, "PROGRAM_ID is required")
	}
	if cfg.DatabaseURL == "" {
		return nil, vaulterrors.New(vaulterrors.KindFatalConfig, "DATABASE_URL is required")
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func (c *Config) String() string {
	return fmt.Sprintf("Config{ProgramID:%s ServerAddr:%s LogLevel:%s}", c.ProgramID, c.ServerAddr, c.LogLevel)
}

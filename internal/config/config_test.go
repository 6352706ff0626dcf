package config

import (
	"testing"
	"time"

	"github.com/withobsrvr/vault-backend/internal/vaulterrors"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"RPC_URL", "PROGRAM_ID", "DATABASE_URL", "SERVER_ADDR", "LOG_LEVEL",
		"INDEXER_POLL_INTERVAL", "RECONCILE_INTERVAL", "TVL_PUSH_INTERVAL",
		"DB_MAX_OPEN_CONNS", "DB_MIN_IDLE_CONNS", "DB_ACQUIRE_TIMEOUT",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadMissingProgramID(t *testing.T) {
	clearEnv(t)
	t.Setenv("RPC_URL", "http://localhost:8899")
	t.Setenv("DATABASE_URL", "postgres://localhost/vault")

	_, err := Load()
	if vaulterrors.KindOf(err) != vaulterrors.KindFatalConfig {
		t.Fatalf("expected KindFatalConfig, got %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("PROGRAM_ID", "VauLt111111111111111111111111111111111111")
	t.Setenv("DATABASE_URL", "postgres://localhost/vault")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RPCURL != "http://127.0.0.1:8899" {
		t.Errorf("RPCURL = %q, want http://127.0.0.1:8899", cfg.RPCURL)
	}
	if cfg.ServerAddr != "0.0.0.0:8080" {
		t.Errorf("ServerAddr = %q, want 0.0.0.0:8080", cfg.ServerAddr)
	}
	if cfg.IndexerPollInterval != 10*time.Second {
		t.Errorf("IndexerPollInterval = %v, want 10s", cfg.IndexerPollInterval)
	}
	if cfg.DBMaxOpenConns != 10 || cfg.DBMaxIdleConns != 2 {
		t.Errorf("unexpected pool defaults: %d/%d", cfg.DBMaxOpenConns, cfg.DBMaxIdleConns)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("RPC_URL", "http://localhost:8899")
	t.Setenv("PROGRAM_ID", "VauLt111111111111111111111111111111111111")
	t.Setenv("DATABASE_URL", "postgres://localhost/vault")
	t.Setenv("TVL_PUSH_INTERVAL", "2s")
	t.Setenv("DB_MAX_OPEN_CONNS", "25")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TVLPushInterval != 2*time.Second {
		t.Errorf("TVLPushInterval = %v, want 2s", cfg.TVLPushInterval)
	}
	if cfg.DBMaxOpenConns != 25 {
		t.Errorf("DBMaxOpenConns = %d, want 25", cfg.DBMaxOpenConns)
	}
}

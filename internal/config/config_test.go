package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/spf13/viper"
)

var ledgerEnvKeys = []string{
	"SERVER_PORT", "PORT", "STORAGE_DRIVER", "DATABASE_URL", "REDIS_URL", "LEDGER_REDIS_URL",
	"REDIS_RATE_LIMIT_PREFIX", "TRANSFER_RATE_LIMIT_PER_MINUTE", "ACCOUNT_LOCK_TTL_SECONDS",
	"RABBITMQ_URL", "LEDGER_EVENTS_EXCHANGE", "LEDGER_CASH_QUEUE", "LEDGER_AUDIT_SCHEDULE",
	"JWT_SECRET", "CORS_ALLOWED_ORIGINS",
}

func resetConfigEnv(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	for _, key := range ledgerEnvKeys {
		unsetEnvWithCleanup(t, key)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	resetConfigEnv(t)

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.ServerPort)
	}
	if cfg.StorageDriver != StorageDriverMemory {
		t.Fatalf("expected memory storage without DATABASE_URL, got %q", cfg.StorageDriver)
	}
	if cfg.TransferRateLimitPerMinute != 30 || cfg.AccountLockTTLSeconds != 10 {
		t.Fatalf("unexpected numeric defaults: %+v", cfg)
	}
	if cfg.LedgerEventsExchange != "ledger.events" || cfg.LedgerCashQueue != "ledger_service.cash_movements" {
		t.Fatalf("unexpected messaging defaults: %+v", cfg)
	}
	if cfg.LedgerAuditSchedule != "@every 15m" {
		t.Fatalf("unexpected audit schedule %q", cfg.LedgerAuditSchedule)
	}
	if !reflect.DeepEqual(cfg.AllowedOrigins(), []string{"*"}) {
		t.Fatalf("unexpected origins %v", cfg.AllowedOrigins())
	}
}

func TestLoadConfig_DatabaseURLSelectsPostgres(t *testing.T) {
	resetConfigEnv(t)
	setEnvWithCleanup(t, "DATABASE_URL", " postgres://ledger@localhost/ledger ")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.StorageDriver != StorageDriverPostgres {
		t.Fatalf("expected postgres storage, got %q", cfg.StorageDriver)
	}
	if cfg.DatabaseURL != "postgres://ledger@localhost/ledger" {
		t.Fatalf("expected trimmed DATABASE_URL, got %q", cfg.DatabaseURL)
	}
}

func TestLoadConfig_ExplicitMemoryDriverWins(t *testing.T) {
	resetConfigEnv(t)
	setEnvWithCleanup(t, "DATABASE_URL", "postgres://ledger@localhost/ledger")
	setEnvWithCleanup(t, "STORAGE_DRIVER", "MEMORY")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.StorageDriver != StorageDriverMemory {
		t.Fatalf("expected memory storage, got %q", cfg.StorageDriver)
	}
}

func TestLoadConfig_PortOverridesServerPort(t *testing.T) {
	resetConfigEnv(t)
	setEnvWithCleanup(t, "SERVER_PORT", "9000")
	setEnvWithCleanup(t, "PORT", "9100")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "9100" {
		t.Fatalf("expected PORT to take precedence, got %q", cfg.ServerPort)
	}
}

func TestLoadConfig_RedisURLAlias(t *testing.T) {
	resetConfigEnv(t)
	setEnvWithCleanup(t, "LEDGER_REDIS_URL", "redis://localhost:6379/0")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.RedisURL != "redis://localhost:6379/0" {
		t.Fatalf("expected RedisURL from alias env var, got %q", cfg.RedisURL)
	}
}

func TestLoadConfig_ReadsDotEnvFile(t *testing.T) {
	resetConfigEnv(t)
	dir := t.TempDir()
	content := "TRANSFER_RATE_LIMIT_PER_MINUTE=5\nCORS_ALLOWED_ORIGINS=https://a.example, https://b.example\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.TransferRateLimitPerMinute != 5 {
		t.Fatalf("expected rate limit from .env, got %d", cfg.TransferRateLimitPerMinute)
	}
	want := []string{"https://a.example", "https://b.example"}
	if !reflect.DeepEqual(cfg.AllowedOrigins(), want) {
		t.Fatalf("expected origins %v, got %v", want, cfg.AllowedOrigins())
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
		}
	})
}

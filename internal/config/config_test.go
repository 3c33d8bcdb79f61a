package config

import (
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/gatekeep")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("PORT", "")
	t.Setenv("APP_ENV", "")
	t.Setenv("USE_REDIS_CACHE", "")
	t.Setenv("WORKER_CONCURRENCY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr() != ":8080" {
		t.Fatalf("unexpected addr %q", cfg.Addr())
	}
	if cfg.WorkerConcurrency != 1 {
		t.Fatalf("unexpected worker concurrency %d", cfg.WorkerConcurrency)
	}
	if cfg.RedisAddr() != "127.0.0.1:6379" {
		t.Fatalf("unexpected redis addr %q", cfg.RedisAddr())
	}
	if cfg.IsProduction() || cfg.UseRedisCache {
		t.Fatalf("development defaults expected: %+v", cfg)
	}
}

func TestLoadReportsAllMissingVariables(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("PORT", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing required variables")
	}
	for _, name := range []string{"DATABASE_URL", "JWT_SECRET"} {
		if !strings.Contains(err.Error(), name) {
			t.Fatalf("error should name %s: %v", name, err)
		}
	}
}

func TestLoadRejectsBadPort(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/gatekeep")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("PORT", "not-a-port")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid PORT")
	}
}

func TestWorkerConcurrencyFromEnvironment(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/gatekeep")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("PORT", "")
	t.Setenv("WORKER_CONCURRENCY", "4")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WorkerConcurrency != 4 {
		t.Fatalf("unexpected worker concurrency %d", cfg.WorkerConcurrency)
	}

	for _, bad := range []string{"0", "-2", "many"} {
		t.Setenv("WORKER_CONCURRENCY", bad)
		if _, err := Load(); err == nil {
			t.Fatalf("expected error for WORKER_CONCURRENCY=%q", bad)
		}
	}
}

func TestProductionRequiresResendKey(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/gatekeep")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("APP_ENV", "production")
	t.Setenv("RESEND_API_KEY", "")
	t.Setenv("PORT", "")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "RESEND_API_KEY") {
		t.Fatalf("production must require RESEND_API_KEY, got %v", err)
	}
}

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "grading_service.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config failed: %v", err)
	}
	return path
}

func TestLoadAppConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
executor:
  baseURL: http://judge0:2358
auth:
  jwtSecret: s3cret
redis:
  addr: 127.0.0.1:6379
kafka:
  brokers: ["127.0.0.1:9092"]
`)
	cfg, err := loadAppConfig(path)
	if err != nil {
		t.Fatalf("load config failed: %v", err)
	}
	if cfg.Server.Addr != defaultHTTPAddr || cfg.Executor.DefaultLanguage != "python" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Grading.MaxParallel != 4 || cfg.Grading.MaxConcurrentJobs != 8 || cfg.Grading.SlotTimeout != 2*time.Second {
		t.Fatalf("unexpected grading defaults: %+v", cfg.Grading)
	}
	if cfg.Grading.ResultTTL != 24*time.Hour {
		t.Fatalf("unexpected result ttl: %s", cfg.Grading.ResultTTL)
	}
	if cfg.Kafka.JobTopic != "grading.jobs" || cfg.Kafka.ResultTopic != "grading.results" || cfg.Kafka.Concurrency != 8 {
		t.Fatalf("unexpected kafka defaults: %+v", cfg.Kafka)
	}
	if cfg.TestPack.Bucket != "testpacks" || cfg.Redis.PoolSize == 0 {
		t.Fatalf("unexpected storage defaults: %+v %+v", cfg.TestPack, cfg.Redis)
	}
	opts := cfg.Kafka.subscribeOptions()
	if opts.Concurrency != 8 {
		t.Fatalf("unexpected subscribe options: %+v", opts)
	}
}

func TestLoadAppConfigEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
executor:
  baseURL: http://from-yaml
auth:
  jwtSecret: yaml-secret
`)
	t.Setenv("AUTOGRADE_EXECUTOR_URL", "http://from-env")
	t.Setenv("AUTOGRADE_JWT_SECRET", "env-secret")
	t.Setenv("AUTOGRADE_MYSQL_DSN", "grader:pw@tcp(db:3306)/autograde")
	t.Setenv("AUTOGRADE_REDIS_ADDR", "")

	cfg, err := loadAppConfig(path)
	if err != nil {
		t.Fatalf("load config failed: %v", err)
	}
	if cfg.Executor.BaseURL != "http://from-env" || cfg.Auth.JWTSecret != "env-secret" {
		t.Fatalf("env overrides not applied: %+v %+v", cfg.Executor, cfg.Auth)
	}
	if cfg.Database.DSN == "" || cfg.Redis.Addr != "" {
		t.Fatalf("unexpected storage config: %+v %+v", cfg.Database, cfg.Redis)
	}
}

func TestLoadAppConfigRequiredFields(t *testing.T) {
	cases := map[string]string{
		"missing executor": "auth:\n  jwtSecret: x\nredis:\n  addr: r:6379\n",
		"missing secret":   "executor:\n  baseURL: http://x\nredis:\n  addr: r:6379\n",
		"missing storage":  "executor:\n  baseURL: http://x\nauth:\n  jwtSecret: x\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := loadAppConfig(writeConfig(t, body)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
	if _, err := loadAppConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadEnvFile(t *testing.T) {
	if err := loadEnvFile(filepath.Join(t.TempDir(), "none.env")); err != nil {
		t.Fatalf("missing env file must be ignored, got %v", err)
	}
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("AUTOGRADE_TEST_ONLY=from-dotenv\n"), 0o600); err != nil {
		t.Fatalf("write env failed: %v", err)
	}
	t.Setenv("AUTOGRADE_TEST_ONLY", "")
	os.Unsetenv("AUTOGRADE_TEST_ONLY")
	if err := loadEnvFile(path); err != nil {
		t.Fatalf("load env failed: %v", err)
	}
	if got := os.Getenv("AUTOGRADE_TEST_ONLY"); got != "from-dotenv" {
		t.Fatalf("expected value from env file, got %q", got)
	}
}

func TestParseIssueTarget(t *testing.T) {
	role, subject, err := parseIssueTarget("teacher:alice")
	if err != nil || role != "teacher" || subject != "alice" {
		t.Fatalf("unexpected parse: %q %q %v", role, subject, err)
	}
	for _, bad := range []string{"", "teacher", ":alice", "teacher:"} {
		if _, _, err := parseIssueTarget(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

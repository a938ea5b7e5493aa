package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"meetingflow/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "meetingflow")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.SQLitePath() != filepath.Join(wantData, "meetingflow.db") {
		t.Fatalf("unexpected sqlite path: %q", cfg.SQLitePath())
	}
	if cfg.Store.Driver != "sqlite" {
		t.Fatalf("expected sqlite driver by default, got %q", cfg.Store.Driver)
	}
	if cfg.Blob.AudioFolder != "audio" || cfg.Blob.TraceFolder != "trace" {
		t.Fatalf("unexpected blob folders: %+v", cfg.Blob)
	}
	if cfg.Workflow.HeartbeatInterval != config.Default().Workflow.HeartbeatInterval {
		t.Fatalf("unexpected heartbeat interval: %d", cfg.Workflow.HeartbeatInterval)
	}
	if cfg.Workflow.FailStaleClaims {
		t.Fatal("expected stale claims to be reported, not failed, by default")
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "meetingflow.toml")

	type payload struct {
		Store struct {
			Driver      string `toml:"driver"`
			PostgresDSN string `toml:"postgres_dsn"`
		} `toml:"store"`
		Blob struct {
			Bucket      string `toml:"bucket"`
			AudioFolder string `toml:"audio_folder"`
		} `toml:"blob"`
		Workflow struct {
			HeartbeatInterval    int `toml:"heartbeat_interval"`
			HeartbeatTimeout     int `toml:"heartbeat_timeout"`
			TranscriptionWorkers int `toml:"transcription_workers"`
		} `toml:"workflow"`
	}
	custom := payload{}
	custom.Store.Driver = "Postgres"
	custom.Store.PostgresDSN = "postgres://localhost/meetingflow"
	custom.Blob.Bucket = " recordings "
	custom.Blob.AudioFolder = "/chunks/"
	custom.Workflow.HeartbeatInterval = 20
	custom.Workflow.HeartbeatTimeout = 200
	custom.Workflow.TranscriptionWorkers = 3
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Store.Driver != "postgres" {
		t.Fatalf("expected normalized driver, got %q", cfg.Store.Driver)
	}
	if cfg.Blob.Bucket != "recordings" {
		t.Fatalf("expected trimmed bucket, got %q", cfg.Blob.Bucket)
	}
	if cfg.Blob.AudioFolder != "chunks" {
		t.Fatalf("expected trimmed audio folder, got %q", cfg.Blob.AudioFolder)
	}
	if cfg.Workflow.HeartbeatTimeout != 200 {
		t.Fatalf("expected heartbeat timeout 200, got %d", cfg.Workflow.HeartbeatTimeout)
	}
	if cfg.Workflow.TranscriptionWorkers != 3 {
		t.Fatalf("expected 3 transcription workers, got %d", cfg.Workflow.TranscriptionWorkers)
	}
}

func TestEnvVarOverridesConfigFile(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "meetingflow.toml")
	contents := "[blob]\nbucket = \"from-file\"\nsecret_key = \"file-secret\"\n\n[workflow]\nreport_workers = 1\n"
	if err := os.WriteFile(configPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("MEETINGFLOW_BLOB_SECRET_KEY", "env-secret")
	t.Setenv("MEETINGFLOW_AUTH_SIGNING_KEY", "signing")
	t.Setenv("MEETINGFLOW_WORKFLOW_REPORT_WORKERS", "4")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Blob.Bucket != "from-file" {
		t.Fatalf("expected bucket from file, got %q", cfg.Blob.Bucket)
	}
	if cfg.Blob.SecretKey != "env-secret" {
		t.Fatalf("expected env secret to win, got %q", cfg.Blob.SecretKey)
	}
	if cfg.Auth.SigningKey != "signing" {
		t.Fatalf("expected signing key from env, got %q", cfg.Auth.SigningKey)
	}
	if cfg.Workflow.ReportWorkers != 4 {
		t.Fatalf("expected report workers from env, got %d", cfg.Workflow.ReportWorkers)
	}
}

func TestEnvFileIsLoaded(t *testing.T) {
	tempDir := t.TempDir()
	envPath := filepath.Join(tempDir, "worker.env")
	if err := os.WriteFile(envPath, []byte("MEETINGFLOW_NOTIFICATIONS_REDIS_ADDR=redis.internal:6379\n"), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv(config.EnvFileVar, envPath)
	t.Cleanup(func() { os.Unsetenv("MEETINGFLOW_NOTIFICATIONS_REDIS_ADDR") })

	cfg, _, _, err := config.Load(filepath.Join(tempDir, "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Notifications.RedisAddr != "redis.internal:6379" {
		t.Fatalf("expected redis addr from env file, got %q", cfg.Notifications.RedisAddr)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "FOR UPDATE SKIP LOCKED") {
		t.Fatalf("sample config missing store guidance: %s", contents)
	}

	cfg := config.Default()
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("sample config should validate: %v", err)
	}
	if !strings.Contains(cfg.Paths.DataDir, "meetingflow") {
		t.Fatalf("expected data dir to contain meetingflow, got %q", cfg.Paths.DataDir)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	cfg = config.Default()
	cfg.Workflow.HeartbeatInterval = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for heartbeat interval")
	}

	cfg = config.Default()
	cfg.Workflow.HeartbeatTimeout = cfg.Workflow.HeartbeatInterval
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when timeout <= interval")
	}

	cfg = config.Default()
	cfg.Store.Driver = "postgres"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when postgres has no dsn")
	}

	cfg = config.Default()
	cfg.Store.Driver = "mysql"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unsupported driver")
	}

	cfg = config.Default()
	cfg.Capture.MaxFailedUploadRatio = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for failed upload ratio above 1")
	}

	cfg = config.Default()
	cfg.Upload.MaxConcurrent = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero upload concurrency")
	}

	cfg = config.Default()
	cfg.Workflow.ReportWorkers = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative worker count")
	}
}

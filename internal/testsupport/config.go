package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"meetingflow/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Blobs default to the in-memory backend and polling intervals are short.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Blob.Backend = "memory"
	cfgVal.Blob.Bucket = "meetingflow-test"
	cfgVal.Auth.SigningKey = "test-signing-key"
	cfgVal.Workflow.QueuePollInterval = 1
	cfgVal.Workflow.ErrorRetryInterval = 1
	cfgVal.Capture.StatusPollInterval = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithDownstream points stage-trigger calls at baseURL.
func WithDownstream(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Downstream.BaseURL = baseURL
	}
}

// WithStubbedRecorder writes a shell script used as the capture recorder
// command and configures it. body is the script after the shebang line.
func WithStubbedRecorder(body string) ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		target := filepath.Join(binDir, "recorder")
		script := []byte("#!/bin/sh\n" + body + "\n")
		if err := os.WriteFile(target, script, 0o755); err != nil {
			b.t.Fatalf("write recorder stub: %v", err)
		}
		b.cfg.Capture.RecorderCommand = []string{target, "{url}", "{dir}"}
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}

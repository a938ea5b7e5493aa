package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Store selects and tunes the relational store that doubles as the work queue.
type Store struct {
	Driver         string `toml:"driver"` // sqlite or postgres
	SQLitePath     string `toml:"sqlite_path"`
	PostgresDSN    string `toml:"postgres_dsn"`
	MaxConns       int    `toml:"max_conns"`
	MinConns       int    `toml:"min_conns"`
	AcquireTimeout int    `toml:"acquire_timeout"`
	ClaimBatch     int    `toml:"claim_batch"`
}

// Blob contains object storage settings for audio, traces, transcripts and reports.
type Blob struct {
	Backend             string `toml:"backend"` // s3 or memory
	Endpoint            string `toml:"endpoint"`
	Region              string `toml:"region"`
	Bucket              string `toml:"bucket"`
	AccessKey           string `toml:"access_key"`
	SecretKey           string `toml:"secret_key"`
	UsePathStyle        bool   `toml:"use_path_style"`
	PresignTTL          int    `toml:"presign_ttl"`
	AudioFolder         string `toml:"audio_folder"`
	TraceFolder         string `toml:"trace_folder"`
	TranscriptionFolder string `toml:"transcription_folder"`
	ReportFolder        string `toml:"report_folder"`
}

// Upload bounds the capture upload tracker.
type Upload struct {
	MaxConcurrent int `toml:"max_concurrent"`
	Timeout       int `toml:"timeout"`
}

// Capture contains configuration for the live capture stage.
type Capture struct {
	RecorderCommand      []string `toml:"recorder_command"`
	SegmentPattern       string   `toml:"segment_pattern"`
	StatusPollInterval   int      `toml:"status_poll_interval"`
	ConnectTimeout       int      `toml:"connect_timeout"`
	MaxFailedUploadRatio float64  `toml:"max_failed_upload_ratio"`
}

// Inference points the transcription and report stages at their remote services.
type Inference struct {
	TranscriptionURL string `toml:"transcription_url"`
	ReportURL        string `toml:"report_url"`
	APIKey           string `toml:"api_key"`
	RequestTimeout   int    `toml:"request_timeout"`
}

// Downstream configures the stage-trigger webhook fired on every transition.
type Downstream struct {
	BaseURL        string `toml:"base_url"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Auth configures the actor tokens attached to downstream calls.
type Auth struct {
	SigningKey string `toml:"signing_key"`
	Issuer     string `toml:"issuer"`
	TokenTTL   int    `toml:"token_ttl"`
}

// API configures the daemon's read-only status API. An empty bind disables it.
type API struct {
	Bind string `toml:"bind"`
}

// Notifications configures the Redis wake-up bus between worker pools.
type Notifications struct {
	RedisAddr     string `toml:"redis_addr"`
	RedisUsername string `toml:"redis_username"`
	RedisPassword string `toml:"redis_password"`
	ChannelPrefix string `toml:"channel_prefix"`
}

// Workflow contains configuration for worker timing, pool sizes and intervals.
type Workflow struct {
	QueuePollInterval            int  `toml:"queue_poll_interval"`
	ErrorRetryInterval           int  `toml:"error_retry_interval"`
	HeartbeatInterval            int  `toml:"heartbeat_interval"`
	HeartbeatTimeout             int  `toml:"heartbeat_timeout"`
	FailStaleClaims              bool `toml:"fail_stale_claims"`
	AutoStartReport              bool `toml:"auto_start_report"`
	CaptureWorkers               int  `toml:"capture_workers"`
	TranscriptionWorkers         int  `toml:"transcription_workers"`
	ReportWorkers                int  `toml:"report_workers"`
	TranscriptionAverageDuration int  `toml:"transcription_average_duration"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for meetingflow.
//
// Configuration sections by subsystem:
//   - Paths: data and log directories
//   - Store: sqlite or postgres work-queue store
//   - Blob: S3-compatible object storage
//   - Upload: capture upload concurrency
//   - Capture: recorder command and completion policy
//   - Inference: remote transcription and report services
//   - Downstream: stage-trigger webhook
//   - Auth: actor token signing
//   - Notifications: Redis wake-up bus
//   - Workflow: worker pools, polling intervals and heartbeats
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Store         Store         `toml:"store"`
	Blob          Blob          `toml:"blob"`
	Upload        Upload        `toml:"upload"`
	Capture       Capture       `toml:"capture"`
	Inference     Inference     `toml:"inference"`
	Downstream    Downstream    `toml:"downstream"`
	Auth          Auth          `toml:"auth"`
	API           API           `toml:"api"`
	Notifications Notifications `toml:"notifications"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("meetingflow.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.CaptureDir()} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// CaptureDir is the scratch directory recorders write segments into.
func (c *Config) CaptureDir() string {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return ""
	}
	return filepath.Join(c.Paths.DataDir, "capture")
}

// SQLitePath returns the resolved SQLite database file.
func (c *Config) SQLitePath() string {
	if strings.TrimSpace(c.Store.SQLitePath) != "" {
		return c.Store.SQLitePath
	}
	return filepath.Join(c.Paths.DataDir, "meetingflow.db")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

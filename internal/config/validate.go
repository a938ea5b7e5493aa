package config

import (
	"errors"
	"fmt"
	"sort"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateBlob(); err != nil {
		return err
	}
	if err := c.validateCapture(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if c.API.Bind != "" && c.Auth.SigningKey == "" {
		return errors.New("auth.signing_key must be set when api.bind is set")
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Driver {
	case "sqlite":
	case "postgres":
		if c.Store.PostgresDSN == "" {
			return errors.New("store.postgres_dsn must be set when store.driver is postgres (or set MEETINGFLOW_STORE_POSTGRES_DSN)")
		}
	default:
		return fmt.Errorf("store.driver: unsupported value %q (want sqlite or postgres)", c.Store.Driver)
	}
	if c.Store.MaxConns <= 0 {
		return errors.New("store.max_conns must be positive")
	}
	if c.Store.MinConns < 0 || c.Store.MinConns > c.Store.MaxConns {
		return errors.New("store.min_conns must be between 0 and store.max_conns")
	}
	if c.Store.AcquireTimeout <= 0 {
		return errors.New("store.acquire_timeout must be positive (seconds)")
	}
	return nil
}

func (c *Config) validateBlob() error {
	switch c.Blob.Backend {
	case "memory":
		return nil
	case "s3":
	default:
		return fmt.Errorf("blob.backend: unsupported value %q (want s3 or memory)", c.Blob.Backend)
	}
	if c.Blob.PresignTTL <= 0 {
		return errors.New("blob.presign_ttl must be positive (seconds)")
	}
	return nil
}

func (c *Config) validateCapture() error {
	if c.Capture.MaxFailedUploadRatio < 0 || c.Capture.MaxFailedUploadRatio > 1 {
		return errors.New("capture.max_failed_upload_ratio must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.queue_poll_interval":            c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval":           c.Workflow.ErrorRetryInterval,
		"workflow.transcription_average_duration": c.Workflow.TranscriptionAverageDuration,
		"capture.status_poll_interval":            c.Capture.StatusPollInterval,
		"capture.connect_timeout":                 c.Capture.ConnectTimeout,
		"upload.max_concurrent":                   c.Upload.MaxConcurrent,
		"upload.timeout":                          c.Upload.Timeout,
		"inference.request_timeout":               c.Inference.RequestTimeout,
		"downstream.request_timeout":              c.Downstream.RequestTimeout,
		"auth.token_ttl":                          c.Auth.TokenTTL,
	}); err != nil {
		return err
	}
	for name, value := range map[string]int{
		"workflow.capture_workers":       c.Workflow.CaptureWorkers,
		"workflow.transcription_workers": c.Workflow.TranscriptionWorkers,
		"workflow.report_workers":        c.Workflow.ReportWorkers,
	} {
		if value < 0 {
			return fmt.Errorf("%s must be >= 0", name)
		}
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		return errors.New("workflow.heartbeat_timeout must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be >= 0")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

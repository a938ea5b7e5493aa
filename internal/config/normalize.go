package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeStore()
	c.normalizeBlob()
	c.normalizeEndpoints()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Store.SQLitePath) != "" {
		if c.Store.SQLitePath, err = expandPath(c.Store.SQLitePath); err != nil {
			return fmt.Errorf("store.sqlite_path: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeStore() {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	if c.Store.Driver == "" {
		c.Store.Driver = defaultStoreDriver
	}
	c.Store.PostgresDSN = strings.TrimSpace(c.Store.PostgresDSN)
	if c.Store.ClaimBatch <= 0 {
		c.Store.ClaimBatch = defaultStoreClaimBatch
	}
}

func (c *Config) normalizeBlob() {
	c.Blob.Backend = strings.ToLower(strings.TrimSpace(c.Blob.Backend))
	if c.Blob.Backend == "" {
		c.Blob.Backend = defaultBlobBackend
	}
	c.Blob.Endpoint = strings.TrimRight(strings.TrimSpace(c.Blob.Endpoint), "/")
	c.Blob.Bucket = strings.TrimSpace(c.Blob.Bucket)
	if strings.TrimSpace(c.Blob.Region) == "" {
		c.Blob.Region = defaultBlobRegion
	}
	c.Blob.AudioFolder = folderOrDefault(c.Blob.AudioFolder, defaultAudioFolder)
	c.Blob.TraceFolder = folderOrDefault(c.Blob.TraceFolder, defaultTraceFolder)
	c.Blob.TranscriptionFolder = folderOrDefault(c.Blob.TranscriptionFolder, defaultTranscriptionFolder)
	c.Blob.ReportFolder = folderOrDefault(c.Blob.ReportFolder, defaultReportFolder)
}

func (c *Config) normalizeEndpoints() {
	c.Inference.TranscriptionURL = strings.TrimSpace(c.Inference.TranscriptionURL)
	c.Inference.ReportURL = strings.TrimSpace(c.Inference.ReportURL)
	c.Downstream.BaseURL = strings.TrimRight(strings.TrimSpace(c.Downstream.BaseURL), "/")
	c.Notifications.RedisAddr = strings.TrimSpace(c.Notifications.RedisAddr)
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if strings.TrimSpace(c.Notifications.ChannelPrefix) == "" {
		c.Notifications.ChannelPrefix = defaultNotificationsChannelPrefix
	}
	if strings.TrimSpace(c.Auth.Issuer) == "" {
		c.Auth.Issuer = defaultAuthIssuer
	}
	if strings.TrimSpace(c.Capture.SegmentPattern) == "" {
		c.Capture.SegmentPattern = defaultSegmentPattern
	}
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch format {
	case "", "console", "text":
		c.Logging.Format = "console"
	default:
		c.Logging.Format = format
	}
	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
}

func folderOrDefault(value, fallback string) string {
	value = strings.Trim(strings.TrimSpace(value), "/")
	if value == "" {
		return fallback
	}
	return value
}

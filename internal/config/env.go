package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "MEETINGFLOW"

// EnvFileVar names an optional dotenv file loaded before the overlay.
const EnvFileVar = "MEETINGFLOW_ENV_FILE"

// applyEnv overlays MEETINGFLOW_<SECTION>_<KEY> variables onto the decoded
// file. Variables already present in the process environment win over .env
// entries.
func (c *Config) applyEnv() error {
	if err := loadDotEnv(); err != nil {
		return err
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for key, target := range c.stringBindings() {
		if err := v.BindEnv(key, envName(key)); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
		if value := strings.TrimSpace(v.GetString(key)); value != "" {
			*target = value
		}
	}
	for key, target := range c.intBindings() {
		if err := v.BindEnv(key, envName(key)); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
		if v.IsSet(key) {
			*target = v.GetInt(key)
		}
	}
	return nil
}

func (c *Config) stringBindings() map[string]*string {
	return map[string]*string{
		"store.driver":                 &c.Store.Driver,
		"store.postgres_dsn":           &c.Store.PostgresDSN,
		"blob.backend":                 &c.Blob.Backend,
		"blob.endpoint":                &c.Blob.Endpoint,
		"blob.region":                  &c.Blob.Region,
		"blob.bucket":                  &c.Blob.Bucket,
		"blob.access_key":              &c.Blob.AccessKey,
		"blob.secret_key":              &c.Blob.SecretKey,
		"inference.transcription_url":  &c.Inference.TranscriptionURL,
		"inference.report_url":         &c.Inference.ReportURL,
		"inference.api_key":            &c.Inference.APIKey,
		"downstream.base_url":          &c.Downstream.BaseURL,
		"auth.signing_key":             &c.Auth.SigningKey,
		"api.bind":                     &c.API.Bind,
		"notifications.redis_addr":     &c.Notifications.RedisAddr,
		"notifications.redis_username": &c.Notifications.RedisUsername,
		"notifications.redis_password": &c.Notifications.RedisPassword,
		"logging.level":                &c.Logging.Level,
		"logging.format":               &c.Logging.Format,
	}
}

func (c *Config) intBindings() map[string]*int {
	return map[string]*int{
		"workflow.capture_workers":       &c.Workflow.CaptureWorkers,
		"workflow.transcription_workers": &c.Workflow.TranscriptionWorkers,
		"workflow.report_workers":        &c.Workflow.ReportWorkers,
		"workflow.queue_poll_interval":   &c.Workflow.QueuePollInterval,
	}
}

// envName maps a dotted key to its variable, e.g. store.postgres_dsn to
// MEETINGFLOW_STORE_POSTGRES_DSN.
func envName(key string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func loadDotEnv() error {
	path := strings.TrimSpace(os.Getenv(EnvFileVar))
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

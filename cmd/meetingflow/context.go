package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"meetingflow/internal/config"
	"meetingflow/internal/daemonrun"
	"meetingflow/internal/logging"
	"meetingflow/internal/queueaccess"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

// JSONMode reports whether --json was passed.
func (c *commandContext) JSONMode() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// cliLogger writes warnings and errors to stderr so stdout stays parseable.
func (c *commandContext) cliLogger() *slog.Logger {
	cfg, _ := c.ensureConfig()
	format := "console"
	if cfg != nil && cfg.Logging.Format != "" {
		format = cfg.Logging.Format
	}
	logger, err := logging.New(logging.Options{Level: "warn", Format: format, Writer: os.Stderr})
	if err != nil {
		return logging.NewNop()
	}
	return logger
}

func (c *commandContext) withStore(ctx context.Context, fn func(queueaccess.Session) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	session, err := queueaccess.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer session.Close()
	return fn(session)
}

func (c *commandContext) withRuntime(ctx context.Context, fn func(queueaccess.Session, *daemonrun.Runtime) error) error {
	return c.withStore(ctx, func(session queueaccess.Session) error {
		rt, err := daemonrun.Assemble(ctx, c.config, session.Repository, c.cliLogger())
		if err != nil {
			return err
		}
		defer rt.Close()
		return fn(session, rt)
	})
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

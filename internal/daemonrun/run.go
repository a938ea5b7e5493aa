package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"meetingflow/internal/auth"
	"meetingflow/internal/blob"
	"meetingflow/internal/capture"
	"meetingflow/internal/config"
	"meetingflow/internal/daemon"
	"meetingflow/internal/logging"
	"meetingflow/internal/notifications"
	"meetingflow/internal/preflight"
	"meetingflow/internal/queue"
	"meetingflow/internal/queueaccess"
	"meetingflow/internal/report"
	"meetingflow/internal/services/inference"
	"meetingflow/internal/services/meetingapi"
	"meetingflow/internal/transcription"
	"meetingflow/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// SkipPreflight starts the lanes even when a required check fails.
	SkipPreflight bool
}

// Run starts the worker daemon and blocks until SIGINT, SIGTERM or
// cancellation of cmdCtx.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logPath := filepath.Join(cfg.Paths.LogDir, logging.LogFileName)
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger = logger.With(logging.String("run_id", uuid.NewString()))

	logDependencySnapshot(logger, cfg)
	pidPath := filepath.Join(cfg.Paths.LogDir, "meetingflowd.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	session, err := queueaccess.Open(signalCtx, cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}

	rt, err := Assemble(signalCtx, cfg, session.Repository, logger)
	if err != nil {
		_ = session.Close()
		logger.Error("assemble pipeline", logging.Error(err))
		return err
	}
	defer rt.Close()

	results := preflight.RunAll(signalCtx, cfg, preflight.Targets{Repository: session.Repository, Blobs: rt.Blobs})
	if failed := logPreflight(logger, results); len(failed) > 0 && !opts.SkipPreflight {
		_ = session.Close()
		return fmt.Errorf("preflight failed: %s", failed[0].Name)
	}

	d, err := daemon.New(cfg, session.Repository, session.Driver, logger, rt.Manager, rt.Tokens)
	if err != nil {
		_ = session.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logger.Warn("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check configuration and queue store access"),
			logging.String(logging.FieldImpact, "no worker lanes are processing meetings"),
		)
		return err
	}
	if addr := d.APIAddr(); addr != "" {
		logger.Info("status api listening", logging.String("addr", addr))
	}

	<-signalCtx.Done()
	logger.Info("meetingflow daemon shutting down")
	return nil
}

// Runtime is the pipeline assembled around one store session.
type Runtime struct {
	Orchestrator *workflow.Orchestrator
	Manager      *workflow.Manager
	Heartbeat    *workflow.HeartbeatMonitor
	Blobs        blob.Store
	Tokens       *auth.TokenService
	bus          notifications.Bus
}

// Close releases the notification bus. The store session stays with the
// caller.
func (r *Runtime) Close() error {
	if r == nil || r.bus == nil {
		return nil
	}
	return r.bus.Close()
}

// Assemble builds the orchestrator, the manager and the three stage
// handlers on top of repo.
func Assemble(ctx context.Context, cfg *config.Config, repo queue.Repository, logger *slog.Logger) (*Runtime, error) {
	if cfg == nil || repo == nil {
		return nil, fmt.Errorf("config and repository are required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	blobs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	tokens, err := tokenService(cfg)
	if err != nil {
		return nil, err
	}
	bus, err := notifications.NewBus(ctx, cfg.Notifications, logger)
	if err != nil {
		return nil, fmt.Errorf("open notification bus: %w", err)
	}

	orchestrator := workflow.NewOrchestrator(repo,
		workflow.WithBus(bus),
		workflow.WithTrigger(newTrigger(cfg, tokens)),
		workflow.WithLogger(logger),
		workflow.WithTranscriptionAverage(time.Duration(cfg.Workflow.TranscriptionAverageDuration)*time.Second),
	)
	manager := workflow.NewManager(cfg, repo, orchestrator, bus, logger)

	recorder := capture.NewCommandRecorder(cfg.Capture, cfg.CaptureDir(), logger)
	client := inference.NewClient(inference.ConfigFrom(cfg.Inference))
	manager.ConfigureStages(workflow.StageSet{
		Capture:       capture.NewStage(cfg, recorder, blobs, repo, orchestrator, logger),
		Transcription: transcription.NewStage(cfg, client, blobs, orchestrator, logger),
		Report:        report.NewStage(cfg, client, blobs, orchestrator, logger),
	})

	return &Runtime{
		Orchestrator: orchestrator,
		Manager:      manager,
		Heartbeat:    manager.Heartbeat(),
		Blobs:        blobs,
		Tokens:       tokens,
		bus:          bus,
	}, nil
}

// tokenService returns nil when no signing key is configured.
func tokenService(cfg *config.Config) (*auth.TokenService, error) {
	if strings.TrimSpace(cfg.Auth.SigningKey) == "" {
		return nil, nil
	}
	tokens, err := auth.NewTokenService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("init token service: %w", err)
	}
	return tokens, nil
}

func newTrigger(cfg *config.Config, tokens *auth.TokenService) workflow.Trigger {
	baseURL := strings.TrimSpace(cfg.Downstream.BaseURL)
	if baseURL == "" {
		return workflow.NoopTrigger{}
	}
	timeout := time.Duration(cfg.Downstream.RequestTimeout) * time.Second
	if tokens == nil {
		return meetingapi.NewClient(baseURL, timeout, nil)
	}
	return meetingapi.NewClient(baseURL, timeout, tokens)
}

func logPreflight(logger *slog.Logger, results []preflight.Result) []preflight.Result {
	for _, result := range results {
		if result.Passed {
			logger.Debug("preflight passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
			)
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "run meetingflow health for the full report"),
		)
	}
	return preflight.Failed(results)
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	recorder := ""
	if len(cfg.Capture.RecorderCommand) > 0 {
		recorder = cfg.Capture.RecorderCommand[0]
	}
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("store_driver", cfg.Store.Driver),
		logging.String("blob_bucket", cfg.Blob.Bucket),
		logging.Bool("recorder_available", binaryAvailable(recorder)),
		logging.String("recorder_binary", recorder),
		logging.Bool("transcription_url_set", strings.TrimSpace(cfg.Inference.TranscriptionURL) != ""),
		logging.Bool("report_url_set", strings.TrimSpace(cfg.Inference.ReportURL) != ""),
		logging.Bool("downstream_enabled", strings.TrimSpace(cfg.Downstream.BaseURL) != ""),
		logging.Bool("redis_bus", strings.TrimSpace(cfg.Notifications.RedisAddr) != ""),
		logging.Bool("signing_key_present", strings.TrimSpace(cfg.Auth.SigningKey) != ""),
	)
}

func binaryAvailable(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	_, err := exec.LookPath(name)
	return err == nil
}

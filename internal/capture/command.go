package capture

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"meetingflow/internal/config"
	"meetingflow/internal/logging"
	"meetingflow/internal/queue"
	"meetingflow/internal/services"
)

const (
	recorderLogName       = "recorder.log"
	stopGrace             = 10 * time.Second
	rescanInterval        = time.Second
	defaultConnectTimeout = 10 * time.Second
)

// CommandRecorder runs an external recorder that writes audio segments into
// a per-meeting working directory. A segment is complete once a newer one
// appears or the command exits.
//
// Arguments may use {url}, {platform}, {platform_id}, {password},
// {meeting_id} and {dir}.
type CommandRecorder struct {
	command        []string
	baseDir        string
	pattern        string
	connectTimeout time.Duration
	logger         *slog.Logger
}

// NewCommandRecorder builds a recorder from the capture settings. baseDir
// holds one working directory per meeting.
func NewCommandRecorder(cfg config.Capture, baseDir string, logger *slog.Logger) *CommandRecorder {
	pattern := strings.TrimSpace(cfg.SegmentPattern)
	if pattern == "" {
		pattern = "*.weba"
	}
	connectTimeout := time.Duration(cfg.ConnectTimeout) * time.Second
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	return &CommandRecorder{
		command:        append([]string(nil), cfg.RecorderCommand...),
		baseDir:        baseDir,
		pattern:        pattern,
		connectTimeout: connectTimeout,
		logger:         logging.NewComponentLogger(logger, "recorder"),
	}
}

// Ready reports whether the recorder binary can be found.
func (r *CommandRecorder) Ready() error {
	if len(r.command) == 0 || strings.TrimSpace(r.command[0]) == "" {
		return services.Wrap(services.ErrConfiguration, "capture", "recorder", "capture.recorder_command is empty", nil)
	}
	if _, err := exec.LookPath(r.command[0]); err != nil {
		return services.Wrap(services.ErrConfiguration, "capture", "recorder", "recorder binary not found", err)
	}
	return nil
}

// Connect starts the recorder and waits for the first segment. A recorder
// that exits or writes nothing within the connect timeout never joined.
func (r *CommandRecorder) Connect(ctx context.Context, meeting *queue.Meeting) (Recording, error) {
	if err := r.Ready(); err != nil {
		return nil, err
	}
	dir := filepath.Join(r.baseDir, fmt.Sprintf("meeting-%d", meeting.ID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create capture directory: %w", err)
	}
	logFile, err := os.OpenFile(filepath.Join(dir, recorderLogName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open recorder log: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("watch capture directory: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		logFile.Close()
		return nil, fmt.Errorf("watch capture directory: %w", err)
	}

	args := expandArgs(r.command, meeting, dir)
	runCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	cmd := exec.CommandContext(runCtx, args[0], args[1:]...) //nolint:gosec
	cmd.Dir = dir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = stopGrace

	rec := &commandRecording{
		dir:     dir,
		pattern: r.pattern,
		logger:  r.logger.With(logging.Int64(logging.FieldMeetingID, meeting.ID)),
		watcher: watcher,
		logFile: logFile,
		stop:    stop,
		chunks:  make(chan Chunk),
		exited:  make(chan struct{}),
		emitted: make(map[string]struct{}),
	}
	if err := cmd.Start(); err != nil {
		stop()
		watcher.Close()
		logFile.Close()
		return nil, services.Wrap(services.ErrDownstreamCall, "capture", "start recorder", args[0], err)
	}
	go func() {
		rec.exitErr = cmd.Wait()
		close(rec.exited)
	}()

	if err := rec.awaitConnected(ctx, r.connectTimeout); err != nil {
		rec.Stop()
		<-rec.exited
		watcher.Close()
		logFile.Close()
		return nil, err
	}
	go rec.run()
	return rec, nil
}

func expandArgs(command []string, meeting *queue.Meeting, dir string) []string {
	replacer := strings.NewReplacer(
		"{url}", meeting.URL,
		"{platform}", string(meeting.Platform),
		"{platform_id}", meeting.PlatformID,
		"{password}", meeting.Password,
		"{meeting_id}", strconv.FormatInt(meeting.ID, 10),
		"{dir}", dir,
	)
	out := make([]string, len(command))
	for i, arg := range command {
		out[i] = replacer.Replace(arg)
	}
	return out
}

type commandRecording struct {
	dir     string
	pattern string
	logger  *slog.Logger
	watcher *fsnotify.Watcher
	logFile *os.File
	stop    context.CancelFunc

	chunks  chan Chunk
	exited  chan struct{}
	exitErr error

	mu      sync.Mutex
	emitted map[string]struct{}
	order   []string
}

func (c *commandRecording) Chunks() <-chan Chunk { return c.chunks }

func (c *commandRecording) Stop() error {
	c.stop()
	return nil
}

func (c *commandRecording) awaitConnected(ctx context.Context, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if segments, _ := c.segments(); len(segments) > 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.exited:
			if segments, _ := c.segments(); len(segments) > 0 {
				return nil
			}
			return services.Wrap(services.ErrDownstreamCall, "capture", "connect",
				"recorder exited before recording: "+c.logTail(), c.exitErr)
		case <-deadline.C:
			return services.Wrap(services.ErrDownstreamCall, "capture", "connect",
				fmt.Sprintf("no audio segment after %s: %s", timeout, c.logTail()), nil)
		case <-ticker.C:
		}
	}
}

// run emits finished segments until the command exits, then flushes the
// rest and closes the chunk channel.
func (c *commandRecording) run() {
	defer close(c.chunks)
	defer c.logFile.Close()
	defer c.watcher.Close()

	ticker := time.NewTicker(rescanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.exited:
			c.emit(true)
			if c.exitErr != nil {
				c.logger.Info("recorder exited",
					logging.String(logging.FieldEventType, "recorder_exit"),
					logging.Error(c.exitErr),
				)
			}
			return
		case event, ok := <-c.watcher.Events:
			if ok && event.Has(fsnotify.Create) {
				c.emit(false)
			}
		case err, ok := <-c.watcher.Errors:
			if ok && err != nil {
				c.logger.Debug("capture directory watch error", logging.Error(err))
			}
		case <-ticker.C:
			c.emit(false)
		}
	}
}

// emit sends segments not yet delivered. Unless final, the newest segment
// is held back because the recorder may still be writing it.
func (c *commandRecording) emit(final bool) {
	segments, err := c.segments()
	if err != nil {
		c.logger.Warn("list segments failed", logging.Error(err))
		return
	}
	if !final && len(segments) > 0 {
		segments = segments[:len(segments)-1]
	}
	for _, name := range segments {
		c.mu.Lock()
		_, done := c.emitted[name]
		c.mu.Unlock()
		if done {
			continue
		}
		path := filepath.Join(c.dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			c.logger.Warn("read segment failed", logging.String("segment", name), logging.Error(err))
			continue
		}
		at := time.Now()
		if info, err := os.Stat(path); err == nil {
			at = info.ModTime()
		}
		c.mu.Lock()
		c.emitted[name] = struct{}{}
		c.order = append(c.order, name)
		c.mu.Unlock()
		c.chunks <- Chunk{Name: name, Data: data, At: at}
	}
}

func (c *commandRecording) segments() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(c.dir, c.pattern))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(matches))
	for _, match := range matches {
		names = append(names, filepath.Base(match))
	}
	sort.Strings(names)
	return names, nil
}

func (c *commandRecording) logTail() string {
	data, err := os.ReadFile(filepath.Join(c.dir, recorderLogName))
	if err != nil {
		return "no recorder output"
	}
	text := strings.TrimSpace(string(data))
	if len(text) > 512 {
		text = text[len(text)-512:]
	}
	if text == "" {
		return "no recorder output"
	}
	return text
}

// Trace zips the recorder log and the list of delivered segments.
func (c *commandRecording) Trace() ([]byte, error) {
	var buf bytes.Buffer
	archive := zip.NewWriter(&buf)

	logData, err := os.ReadFile(filepath.Join(c.dir, recorderLogName))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read recorder log: %w", err)
	}
	c.mu.Lock()
	manifest := strings.Join(c.order, "\n")
	c.mu.Unlock()

	for name, data := range map[string][]byte{
		recorderLogName: logData,
		"segments.txt":  []byte(manifest),
	} {
		w, err := archive.Create(name)
		if err != nil {
			return nil, fmt.Errorf("add %s to trace: %w", name, err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("write %s to trace: %w", name, err)
		}
	}
	if err := archive.Close(); err != nil {
		return nil, fmt.Errorf("close trace: %w", err)
	}
	return buf.Bytes(), nil
}

package workflow

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"meetingflow/internal/config"
	"meetingflow/internal/logging"
	"meetingflow/internal/queue"
)

// MeetingLogger keeps one log file per meeting under {log_dir}/meetings so a
// meeting's stage output can be read on its own.
type MeetingLogger struct {
	baseDir string
	level   string
	format  string
}

// NewMeetingLogger creates a meeting logger. Without a log directory it
// hands out the lane logger unchanged.
func NewMeetingLogger(cfg *config.Config) *MeetingLogger {
	ml := &MeetingLogger{level: "info", format: "json"}
	if cfg == nil {
		return ml
	}
	if cfg.Paths.LogDir != "" {
		ml.baseDir = filepath.Join(cfg.Paths.LogDir, "meetings")
	}
	if strings.TrimSpace(cfg.Logging.Level) != "" {
		ml.level = cfg.Logging.Level
	}
	if strings.TrimSpace(cfg.Logging.Format) != "" {
		ml.format = cfg.Logging.Format
	}
	return ml
}

// Path returns the log file for meeting.
func (l *MeetingLogger) Path(meeting *queue.Meeting) string {
	if l == nil || l.baseDir == "" || meeting == nil {
		return ""
	}
	name := fmt.Sprintf("meeting-%d", meeting.ID)
	if slug := sanitizeSlug(meeting.Name); slug != "" {
		name += "-" + slug
	}
	return filepath.Join(l.baseDir, name+".log")
}

// Open returns a logger writing to the meeting's file and a function that
// closes it. Records also carry meeting_id so they can be merged back.
func (l *MeetingLogger) Open(meeting *queue.Meeting) (*slog.Logger, io.Closer, error) {
	path := l.Path(meeting)
	if path == "" {
		return nil, nil, fmt.Errorf("meeting log directory not configured")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("ensure meeting log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		return nil, nil, fmt.Errorf("open meeting log: %w", err)
	}
	logger, err := logging.New(logging.Options{Level: l.level, Format: l.format, Writer: file})
	if err != nil {
		file.Close()
		return nil, nil, err
	}
	return logger.With(logging.Int64(logging.FieldMeetingID, meeting.ID)), file, nil
}

func sanitizeSlug(value string) string {
	var builder strings.Builder
	builder.Grow(len(value))
	lastDash := false
	for _, r := range strings.TrimSpace(value) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			builder.WriteRune(r)
			lastDash = false
		case r >= 'A' && r <= 'Z':
			builder.WriteRune(unicode.ToLower(r))
			lastDash = false
		default:
			if !lastDash && builder.Len() > 0 {
				builder.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(builder.String(), "-")
}

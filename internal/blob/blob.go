// Package blob stores meeting artifacts (audio chunks, trace bundles,
// transcripts and reports) in S3-compatible object storage.
package blob

import (
	"context"
	"fmt"
	"strings"
	"time"

	"meetingflow/internal/config"
	"meetingflow/internal/services"
)

// Content types written by the pipeline.
const (
	ContentTypeAudio      = "audio/weba"
	ContentTypeTrace      = "application/zip"
	ContentTypeTranscript = "text/plain; charset=utf-8"
	ContentTypeReport     = "text/markdown; charset=utf-8"
)

// Descriptor identifies a stored object.
type Descriptor struct {
	Bucket      string
	Key         string
	ContentType string
	Size        int64
}

// Store is the object storage surface the stages use.
type Store interface {
	Put(ctx context.Context, key, contentType string, data []byte) (Descriptor, error)
	// Get returns services.ErrNotFound when key does not exist.
	Get(ctx context.Context, key string) ([]byte, Descriptor, error)
	// List returns the objects under prefix in key order.
	List(ctx context.Context, prefix string) ([]Descriptor, error)
	// Presign returns a time-limited GET URL for key.
	Presign(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Layout builds object keys from the configured folders.
type Layout struct {
	Audio         string
	Trace         string
	Transcription string
	Report        string
}

// LayoutFromConfig reads the folder names from cfg.
func LayoutFromConfig(cfg config.Blob) Layout {
	return Layout{
		Audio:         cfg.AudioFolder,
		Trace:         cfg.TraceFolder,
		Transcription: cfg.TranscriptionFolder,
		Report:        cfg.ReportFolder,
	}
}

// AudioPrefix is the folder holding every audio chunk of a meeting.
func (l Layout) AudioPrefix(meetingID int64) string {
	return fmt.Sprintf("%s/%d/", l.Audio, meetingID)
}

// AudioKey names one audio chunk by its capture time.
func (l Layout) AudioKey(meetingID int64, at time.Time) string {
	return fmt.Sprintf("%s%d.weba", l.AudioPrefix(meetingID), at.UnixMilli())
}

// TraceKey names the trace bundle uploaded when a capture ends.
func (l Layout) TraceKey(meetingID int64, at time.Time) string {
	return fmt.Sprintf("%s/%d/%d.zip", l.Trace, meetingID, at.UnixMilli())
}

// TranscriptionKey names the transcript of a meeting.
func (l Layout) TranscriptionKey(meetingID int64) string {
	return fmt.Sprintf("%s/%d.txt", l.Transcription, meetingID)
}

// ReportKey names the report of a meeting.
func (l Layout) ReportKey(meetingID int64) string {
	return fmt.Sprintf("%s/%d.md", l.Report, meetingID)
}

// Open builds the backend selected by cfg.Backend.
func Open(ctx context.Context, cfg config.Blob) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "memory":
		return NewMemoryStore(cfg.Bucket), nil
	case "", "s3":
		return NewS3Store(ctx, cfg)
	default:
		return nil, services.Wrap(services.ErrConfiguration, "blob", "open",
			fmt.Sprintf("unsupported blob backend %q", cfg.Backend), nil)
	}
}

// Package inference calls the remote transcription and report services.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"meetingflow/internal/config"
)

const (
	defaultHTTPTimeout    = 10 * time.Minute
	defaultRetryAttempts  = 3
	defaultRetryBaseDelay = 2 * time.Second
	defaultRetryMaxDelay  = 30 * time.Second
)

// Config captures the endpoints and credentials of the inference services.
type Config struct {
	TranscriptionURL string
	ReportURL        string
	APIKey           string
	TimeoutSeconds   int
}

// ConfigFrom reads the inference section of cfg.
func ConfigFrom(cfg config.Inference) Config {
	return Config{
		TranscriptionURL: cfg.TranscriptionURL,
		ReportURL:        cfg.ReportURL,
		APIKey:           cfg.APIKey,
		TimeoutSeconds:   cfg.RequestTimeout,
	}
}

// Client wraps both inference endpoints.
type Client struct {
	cfg        Config
	httpClient *http.Client

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetry overrides the retry count and backoff delays.
func WithRetry(attempts int, baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retryMaxAttempts = attempts
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// NewClient constructs a client for cfg.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			TranscriptionURL: strings.TrimSpace(cfg.TranscriptionURL),
			ReportURL:        strings.TrimSpace(cfg.ReportURL),
			APIKey:           strings.TrimSpace(cfg.APIKey),
			TimeoutSeconds:   cfg.TimeoutSeconds,
		},
		httpClient:       &http.Client{Timeout: timeout},
		retryMaxAttempts: defaultRetryAttempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// TranscriptionRequest lists the presigned audio chunks of one meeting in
// capture order.
type TranscriptionRequest struct {
	MeetingID int64    `json:"meeting_id"`
	AudioURLs []string `json:"audio_urls"`
}

// Transcript is the transcription service's answer.
type Transcript struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

// ReportRequest carries a transcript to the report service.
type ReportRequest struct {
	MeetingID  int64  `json:"meeting_id"`
	Transcript string `json:"transcript"`
}

// Report is the report service's answer, rendered as Markdown.
type Report struct {
	Markdown string `json:"markdown"`
}

// Transcribe sends the audio chunk URLs and returns the transcript.
func (c *Client) Transcribe(ctx context.Context, req TranscriptionRequest) (Transcript, error) {
	var out Transcript
	if c.cfg.TranscriptionURL == "" {
		return out, errors.New("transcribe: transcription url required")
	}
	if len(req.AudioURLs) == 0 {
		return out, errors.New("transcribe: no audio to transcribe")
	}
	if err := c.postWithRetry(ctx, "transcribe", c.cfg.TranscriptionURL, req, &out); err != nil {
		return out, err
	}
	if strings.TrimSpace(out.Text) == "" {
		return out, errors.New("transcribe: empty transcript")
	}
	return out, nil
}

// GenerateReport turns a transcript into a report.
func (c *Client) GenerateReport(ctx context.Context, req ReportRequest) (Report, error) {
	var out Report
	if c.cfg.ReportURL == "" {
		return out, errors.New("generate report: report url required")
	}
	if strings.TrimSpace(req.Transcript) == "" {
		return out, errors.New("generate report: transcript required")
	}
	if err := c.postWithRetry(ctx, "generate report", c.cfg.ReportURL, req, &out); err != nil {
		return out, err
	}
	if strings.TrimSpace(out.Markdown) == "" {
		return out, errors.New("generate report: empty report")
	}
	return out, nil
}

type httpStatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

func (c *Client) postWithRetry(ctx context.Context, op, endpoint string, payload, target any) error {
	attempts := c.retryMaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := c.postOnce(ctx, endpoint, payload, target)
		if err == nil {
			return nil
		}
		lastErr = err
		delay, retry := c.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			return fmt.Errorf("%s: %w", op, err)
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-timer.C:
		}
	}
	return fmt.Errorf("%s: failed after %d attempts: %w", op, attempts, lastErr)
}

func (c *Client) postOnce(ctx context.Context, endpoint string, payload, target any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http error: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		statusErr := &httpStatusError{StatusCode: resp.StatusCode, Body: string(body)}
		if seconds, err := strconv.Atoi(strings.TrimSpace(resp.Header.Get("Retry-After"))); err == nil && seconds > 0 {
			statusErr.RetryAfter = time.Duration(seconds) * time.Second
		}
		return statusErr
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) retryDelay(ctx context.Context, err error, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode >= http.StatusInternalServerError:
			if statusErr.RetryAfter > 0 {
				return c.capDelay(statusErr.RetryAfter), true
			}
			return c.backoffDelay(attempt), true
		default:
			return 0, false
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return c.backoffDelay(attempt), true
	}
	return 0, false
}

// backoffDelay doubles from the base delay: attempt 1 -> base, 2 -> base*2.
func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := c.retryBaseDelay
	if delay <= 0 {
		return 0
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return c.capDelay(delay)
}

func (c *Client) capDelay(delay time.Duration) time.Duration {
	if c.retryMaxDelay > 0 && delay > c.retryMaxDelay {
		return c.retryMaxDelay
	}
	return delay
}

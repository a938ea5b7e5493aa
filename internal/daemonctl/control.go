// Package daemonctl lets the CLI observe a running meetingflow daemon through
// its status API and its PID file, falling back to the store when the daemon
// is not reachable.
package daemonctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"meetingflow/internal/api"
	"meetingflow/internal/config"
	"meetingflow/internal/queue"
)

// ErrDaemonNotRunning indicates the status API is unavailable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// TokenMinter signs the bearer token presented to the status API.
type TokenMinter interface {
	GenerateActorToken(actor string, meetingID int64, event string) (string, error)
}

// Client calls the daemon status API.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenMinter
}

// NewClient builds a client for the API bound at bind. Wildcard hosts are
// dialed on loopback.
func NewClient(bind string, tokens TokenMinter) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, ErrDaemonNotRunning
	}
	host, port, err := net.SplitHostPort(bind)
	if err != nil {
		return nil, fmt.Errorf("parse api bind %q: %w", bind, err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return &Client{
		baseURL: "http://" + net.JoinHostPort(host, port),
		http:    &http.Client{Timeout: 3 * time.Second},
		tokens:  tokens,
	}, nil
}

// Status fetches /api/status.
func (c *Client) Status(ctx context.Context) (api.DaemonStatus, error) {
	var status api.DaemonStatus
	err := c.get(ctx, "/api/status", &status)
	return status, err
}

// Meetings fetches /api/meetings, optionally filtered by status.
func (c *Client) Meetings(ctx context.Context, status queue.Status) ([]api.Meeting, error) {
	path := "/api/meetings"
	if status != "" {
		path += "?status=" + string(status)
	}
	var resp api.MeetingListResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Meetings, nil
}

func (c *Client) get(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	if c.tokens != nil {
		token, err := c.tokens.GenerateActorToken("cli", 0, "status")
		if err != nil {
			return fmt.Errorf("sign status token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if isDaemonUnavailable(err) {
			return ErrDaemonNotRunning
		}
		return fmt.Errorf("call daemon api: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var body map[string]string
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return fmt.Errorf("daemon api %s: %d %s", path, resp.StatusCode, body["error"])
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

// PIDPath is where the daemon records its process id.
func PIDPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.LogDir, "meetingflowd.pid")
}

// ProcessInfo reads the daemon PID file and reports whether that process is
// alive.
func ProcessInfo(pidPath string) (bool, int, error) {
	data, err := os.ReadFile(pidPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("read daemon pid file %q: %w", pidPath, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return false, 0, fmt.Errorf("daemon pid file %q is malformed", pidPath)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false, pid, nil
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return false, pid, nil
	}
	return true, pid, nil
}

// Snapshot is the CLI view of the daemon, whether or not it answers.
type Snapshot struct {
	Reachable  bool             `json:"reachable"`
	PID        int              `json:"pid,omitempty"`
	Status     api.DaemonStatus `json:"status"`
	QueueStats map[string]int   `json:"queueStats"`
	APIError   string           `json:"apiError,omitempty"`
}

// StatsReader provides offline queue counts.
type StatsReader interface {
	Stats(ctx context.Context) (map[queue.Status]int, error)
}

// BuildStatusSnapshot asks the status API first and falls back to reading
// queue counts from store when the daemon does not answer.
func BuildStatusSnapshot(ctx context.Context, cfg *config.Config, tokens TokenMinter, store StatsReader) (Snapshot, error) {
	if cfg == nil {
		return Snapshot{}, errors.New("configuration not available")
	}
	var snapshot Snapshot
	if alive, pid, err := ProcessInfo(PIDPath(cfg)); err == nil && alive {
		snapshot.PID = pid
	}

	if client, err := NewClient(cfg.API.Bind, tokens); err == nil {
		queryCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		status, statusErr := client.Status(queryCtx)
		cancel()
		if statusErr == nil {
			snapshot.Reachable = true
			snapshot.Status = status
			snapshot.PID = status.PID
			snapshot.QueueStats = status.Workflow.QueueStats
			return snapshot, nil
		}
		if !errors.Is(statusErr, ErrDaemonNotRunning) {
			snapshot.APIError = statusErr.Error()
		}
	}

	if store == nil {
		return snapshot, nil
	}
	queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	stats, err := store.Stats(queryCtx)
	if err != nil {
		return snapshot, err
	}
	snapshot.QueueStats = make(map[string]int, len(stats))
	for status, count := range stats {
		snapshot.QueueStats[string(status)] = count
	}
	return snapshot, nil
}

func isDaemonUnavailable(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, os.ErrNotExist)
}

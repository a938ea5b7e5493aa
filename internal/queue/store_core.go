package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"meetingflow/internal/config"
	"meetingflow/internal/services"
)

// Store manages meeting persistence backed by SQLite.
type Store struct {
	db             *sql.DB
	path           string
	claimBatch     int
	acquireTimeout time.Duration
}

var _ Repository = (*Store)(nil)

const (
	sqliteBusyCode          = 5
	sqliteLockedCode        = 6
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
	busyTimeoutMillis       = 5000
)

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) {
		switch coder.Code() & 0xff {
		case sqliteBusyCode, sqliteLockedCode:
			return true
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// classify maps driver failures onto the store error taxonomy. Busy and
// locked databases, and deadlines hit while the caller's own context is
// still live, become ErrStoreUnavailable.
func classify(parent context.Context, operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, services.ErrNotFound) || errors.Is(err, services.ErrInvalidTransition) ||
		errors.Is(err, services.ErrStoreUnavailable) || errors.Is(err, services.ErrInconsistent) {
		return err
	}
	if isSQLiteBusy(err) {
		return services.Wrap(services.ErrStoreUnavailable, "queue", operation, "database busy", err)
	}
	if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
		return services.Wrap(services.ErrStoreUnavailable, "queue", operation, "store timeout", err)
	}
	return fmt.Errorf("%s: %w", operation, err)
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// boundedContext applies the store's acquire timeout to one operation.
func (s *Store) boundedContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = ensureContext(ctx)
	if s.acquireTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.acquireTimeout)
}

// Open initializes or connects to the meeting database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.SQLitePath(), cfg.Store)
}

// OpenPath opens the database at dbPath with the pool and claim settings in
// storeCfg.
func OpenPath(dbPath string, storeCfg config.Store) (*Store, error) {
	// Pragmas go in the DSN so every pooled connection gets them, and
	// immediate transactions take the write lock up front instead of failing
	// on a read-to-write upgrade.
	query := url.Values{}
	query.Add("_pragma", "journal_mode(WAL)")
	query.Add("_pragma", "foreign_keys(1)")
	query.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout(storeCfg)))
	query.Set("_txlock", "immediate")
	dsn := "file:" + dbPath + "?" + query.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if storeCfg.MaxConns > 0 {
		db.SetMaxOpenConns(storeCfg.MaxConns)
	}

	claimBatch := storeCfg.ClaimBatch
	if claimBatch <= 0 {
		claimBatch = 8
	}
	store := &Store{
		db:             db,
		path:           dbPath,
		claimBatch:     claimBatch,
		acquireTimeout: time.Duration(storeCfg.AcquireTimeout) * time.Second,
	}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// busyTimeout keeps SQLite's own lock wait inside the acquire timeout so a
// locked database surfaces as ErrStoreUnavailable on time.
func busyTimeout(storeCfg config.Store) int {
	if storeCfg.AcquireTimeout <= 0 {
		return busyTimeoutMillis
	}
	return storeCfg.AcquireTimeout * 1000
}

// Path returns the database file backing the store.
func (s *Store) Path() string { return s.path }

// Ping verifies the database answers.
func (s *Store) Ping(ctx context.Context) error {
	bounded, cancel := s.boundedContext(ctx)
	defer cancel()
	return classify(ensureContext(ctx), "ping", s.db.PingContext(bounded))
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

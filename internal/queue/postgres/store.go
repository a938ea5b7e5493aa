package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"meetingflow/internal/config"
	"meetingflow/internal/queue"
	"meetingflow/internal/services"
)

// Store manages meeting persistence backed by a pgx connection pool.
type Store struct {
	pool           *pgxpool.Pool
	acquireTimeout time.Duration
}

var _ queue.Repository = (*Store)(nil)

// Open connects to the DSN in cfg.Store and prepares the schema.
func Open(ctx context.Context, cfg *config.Config) (*Store, error) {
	return OpenDSN(ctx, cfg.Store.PostgresDSN, cfg.Store)
}

// OpenDSN connects to dsn with the pool settings in storeCfg.
func OpenDSN(ctx context.Context, dsn string, storeCfg config.Store) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "queue", "open postgres", "store.postgres_dsn is required", nil)
	}
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "queue", "open postgres", "parse dsn", err)
	}
	if storeCfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(storeCfg.MaxConns)
	}
	if storeCfg.MinConns > 0 {
		poolConfig.MinConns = int32(storeCfg.MinConns)
	}
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	store := &Store{
		pool:           pool,
		acquireTimeout: time.Duration(storeCfg.AcquireTimeout) * time.Second,
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, classify(ctx, "ping", err)
	}
	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// Ping verifies the database answers.
func (s *Store) Ping(ctx context.Context) error {
	bounded, cancel := s.boundedContext(ctx)
	defer cancel()
	return classify(ctx, "ping", s.pool.Ping(bounded))
}

// Close releases every pooled connection.
func (s *Store) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// boundedContext applies the acquire timeout so an exhausted pool surfaces
// as ErrStoreUnavailable instead of blocking the poll loop.
func (s *Store) boundedContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.acquireTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.acquireTimeout)
}

// unavailableCodes are SQLSTATE classes and codes that mean the server cannot
// serve the request right now.
var unavailableCodes = []string{
	"08",    // connection exception
	"53",    // insufficient resources
	"57P03", // cannot connect now
	"40001", // serialization failure
	"40P01", // deadlock detected
	"55P03", // lock not available
}

func isUnavailable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		for _, code := range unavailableCodes {
			if strings.HasPrefix(pgErr.Code, code) {
				return true
			}
		}
		return false
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	return pgconn.SafeToRetry(err)
}

// classify maps pgx failures onto the store error taxonomy.
func classify(parent context.Context, operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, services.ErrNotFound) || errors.Is(err, services.ErrInvalidTransition) ||
		errors.Is(err, services.ErrStoreUnavailable) || errors.Is(err, services.ErrInconsistent) {
		return err
	}
	if isUnavailable(err) {
		return services.Wrap(services.ErrStoreUnavailable, "queue", operation, "database unavailable", err)
	}
	if parent == nil {
		parent = context.Background()
	}
	if (errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err)) && parent.Err() == nil {
		return services.Wrap(services.ErrStoreUnavailable, "queue", operation, "store timeout", err)
	}
	return fmt.Errorf("%s: %w", operation, err)
}

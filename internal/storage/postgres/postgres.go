// Package postgres implements storage.PositionStore on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

// Pool defaults applied when the DSN does not set pool_* parameters.
// Position writes are small and serialized per position, so a few
// connections suffice.
const (
	applicationName     = "solana-sniper"
	defaultMaxConns     = 4
	defaultHealthPeriod = 30 * time.Second
)

// Pool wraps pgxpool.Pool for dependency injection.
type Pool struct {
	*pgxpool.Pool
}

// NewPool connects and pings. Pool sizing from the DSN (pool_max_conns and
// friends) takes precedence over the defaults.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: parse postgres dsn: %w", domain.ErrFatalConfig, err)
	}
	if _, ok := config.ConnConfig.RuntimeParams["application_name"]; !ok {
		config.ConnConfig.RuntimeParams["application_name"] = applicationName
	}
	if !hasParam(dsn, "pool_max_conns") {
		config.MaxConns = defaultMaxConns
	}
	if !hasParam(dsn, "pool_health_check_period") {
		config.HealthCheckPeriod = defaultHealthPeriod
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Pool{Pool: pool}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() {
	p.Pool.Close()
}

func hasParam(dsn, name string) bool {
	cfg, err := pgconn.ParseConfig(dsn)
	if err != nil {
		return false
	}
	// pgconn leaves unknown keys, including pool_*, in RuntimeParams.
	_, ok := cfg.RuntimeParams[name]
	return ok
}

const pgUniqueViolation = "23505"

// classify maps driver errors onto the storage and domain taxonomy:
// unique violations become storage.ErrDuplicateKey, missing rows
// storage.ErrNotFound, and connection-level failures domain.ErrTransient.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == pgUniqueViolation {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return domain.Transient(fmt.Errorf("%s: %w", op, err))
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return domain.Transient(fmt.Errorf("%s: %w", op, err))
	}
	return fmt.Errorf("%s: %w", op, err)
}

package pgcheck

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Target identifies a database and the role used to reach it.
type Target struct {
	Host     string
	Port     int
	SSLMode  string
	User     string
	Password string
	Database string
}

func (t Target) url() *url.URL {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(t.User, t.Password),
		Host:   net.JoinHostPort(t.Host, strconv.Itoa(t.Port)),
		Path:   "/" + t.Database,
	}
	if t.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{t.SSLMode}}.Encode()
	}
	return u
}

// DSN renders the target as a postgres URL.
func (t Target) DSN() string {
	return t.url().String()
}

// Redacted is the DSN with the password masked, safe for logs.
func (t Target) Redacted() string {
	return t.url().Redacted()
}

type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.InitialDelay == 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.BackoffFactor == 0 {
		c.BackoffFactor = 2.0
	}
	return c
}

// withRetry runs operation until it succeeds, fails with a non connection
// error, or the retries run out. onConnErr is called before retrying a
// connection error.
func withRetry(ctx context.Context, cfg RetryConfig, logger *zerolog.Logger, operation func() error, onConnErr func() error) error {
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}

			delay = time.Duration(float64(delay) * cfg.BackoffFactor)
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		}

		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isConnectionError(err) {
			return err
		}
		logger.Warn().Err(err).Int("attempt", attempt+1).Msg("Connection error, retrying")
		if onConnErr != nil {
			if reconnectErr := onConnErr(); reconnectErr != nil {
				lastErr = fmt.Errorf("reconnection failed: %w (original error: %v)", reconnectErr, err)
			}
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", cfg.MaxRetries+1, lastErr)
}

var connectionErrors = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"network is unreachable",
	"connection timed out",
	"i/o timeout",
	"driver: bad connection",
	"the database system is starting up",
	"the database system is shutting down",
	"too many connections",
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// class 08 connection exception, 57P03 cannot_connect_now, 53300 too_many_connections
		return strings.HasPrefix(pgErr.Code, "08") || pgErr.Code == "57P03" || pgErr.Code == "53300"
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := err.Error()
	for _, connErr := range connectionErrors {
		if strings.Contains(errStr, connErr) {
			return true
		}
	}
	return false
}

// DBConn is a sqlx handle that reconnects on connection errors.
type DBConn struct {
	db          *sqlx.DB
	dsn         string
	concurrency int
	retryConfig RetryConfig
	logger      *zerolog.Logger
	mu          sync.RWMutex
}

func NewDBConn(retryConfig RetryConfig, logger *zerolog.Logger) *DBConn {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &DBConn{
		retryConfig: retryConfig.withDefaults(),
		logger:      logger,
	}
}

func (d *DBConn) Open(ctx context.Context, dsn string, concurrency int) error {
	d.mu.Lock()
	d.dsn = dsn
	d.concurrency = max(concurrency, 1)
	d.mu.Unlock()

	return withRetry(ctx, d.retryConfig, d.logger, func() error {
		d.mu.Lock()
		defer d.mu.Unlock()
		return d.connect(ctx)
	}, nil)
}

func (d *DBConn) connect(ctx context.Context) error {
	db, err := sqlx.ConnectContext(ctx, "pgx", d.dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(d.concurrency)
	db.SetMaxIdleConns(d.concurrency)
	db.SetConnMaxLifetime(5 * time.Minute)

	if d.db != nil {
		d.db.Close()
	}
	d.db = db
	return nil
}

func (d *DBConn) reconnect(ctx context.Context) error {
	d.logger.Info().Msg("Attempting to reconnect to database...")
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connect(ctx)
}

func (d *DBConn) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

func (d *DBConn) withDB(ctx context.Context, operation func(*sqlx.DB) error) error {
	return withRetry(ctx, d.retryConfig, d.logger, func() error {
		d.mu.RLock()
		db := d.db
		d.mu.RUnlock()

		if db == nil {
			return fmt.Errorf("database connection is nil")
		}
		return operation(db)
	}, func() error {
		return d.reconnect(ctx)
	})
}

// GetContext scans a single row into dest with retry logic
func (d *DBConn) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	return d.withDB(ctx, func(db *sqlx.DB) error {
		return db.GetContext(ctx, dest, query, args...)
	})
}

// SelectContext scans all rows into dest with retry logic
func (d *DBConn) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	return d.withDB(ctx, func(db *sqlx.DB) error {
		return db.SelectContext(ctx, dest, query, args...)
	})
}

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/akx/talsi/internal/core/kv"
)

// OpenOptions configures Open.
type OpenOptions struct {
	// BusyTimeout is how long SQLite itself waits on a locked database before
	// reporting SQLITE_BUSY.
	BusyTimeout time.Duration
	// MaxRetries bounds how often a transaction that hit SQLITE_BUSY is
	// retried before the error is returned.
	MaxRetries int
	// RetryWait is the first backoff delay; it doubles on every retry.
	RetryWait time.Duration
	Logger    zerolog.Logger
	// OnBusy, when set, is called before every retry.
	OnBusy func(attempt int)
}

// DefaultOpenOptions returns the options used when the caller has no opinion.
func DefaultOpenOptions() OpenOptions {
	return OpenOptions{
		BusyTimeout: 5 * time.Second,
		MaxRetries:  5,
		RetryWait:   10 * time.Millisecond,
		Logger:      zerolog.Nop(),
	}
}

// DB owns exactly one SQLite connection. Every transaction runs under an
// internal mutex, so a DB may be shared between goroutines.
type DB struct {
	mu     sync.Mutex
	pool   *sql.DB
	conn   *sql.Conn
	path   string
	opts   OpenOptions
	log    zerolog.Logger
	closed bool
}

// Open opens (creating if needed) the database file at path and brings its
// schema up to date.
func Open(path string, opts OpenOptions) (*DB, error) {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = DefaultOpenOptions().RetryWait
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	pool, err := sql.Open("sqlite", dsn(path, opts.BusyTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	pool.SetMaxOpenConns(1)
	pool.SetConnMaxLifetime(0)

	db := &DB{
		pool: pool,
		path: path,
		opts: opts,
		log:  opts.Logger.With().Str("path", path).Logger(),
	}

	ctx := context.Background()
	if err := db.connectWithRetry(ctx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := migrateUp(ctx, db.conn, db.log); err != nil {
		_ = db.conn.Close()
		_ = pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// dsn builds a SQLite URI. The path is percent-escaped so "?", "#" and "%"
// in file names reach the filesystem unchanged.
func dsn(path string, busyTimeout time.Duration) string {
	return fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=temp_store(MEMORY)&_pragma=cache_size(1000)",
		(&url.URL{Path: path}).EscapedPath(), busyTimeout.Milliseconds(),
	)
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close releases the connection. Later calls on db fail with kv.ErrClosed;
// closing twice is a no-op.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil
	}
	db.closed = true

	return errors.Join(db.conn.Close(), db.pool.Close())
}

// WithTx runs fn inside a write transaction. The write lock is taken up front
// (BEGIN IMMEDIATE), and the whole transaction is retried with backoff when
// the database is busy, so fn must be safe to run more than once. If fn
// returns an error the transaction is rolled back.
func (db *DB) WithTx(ctx context.Context, fn func(*Queries) error) error {
	return db.transact(ctx, "BEGIN IMMEDIATE", fn)
}

// WithReadTx runs fn inside a deferred transaction, giving it one consistent
// snapshot.
func (db *DB) WithReadTx(ctx context.Context, fn func(*Queries) error) error {
	return db.transact(ctx, "BEGIN", fn)
}

func (db *DB) transact(ctx context.Context, begin string, fn func(*Queries) error) error {
	return db.withConn(func(conn *sql.Conn) error {
		queries := New(conn)
		wait := db.opts.RetryWait

		for attempt := 0; ; attempt++ {
			err := runTx(ctx, conn, begin, queries, fn)
			if err == nil || !IsBusyError(err) {
				return err
			}
			if attempt >= db.opts.MaxRetries {
				return fmt.Errorf("database still busy after %d retries: %w", attempt, err)
			}

			db.log.Warn().Ctx(ctx).Err(err).Int("attempt", attempt+1).Dur("wait", wait).Msg("database busy, retrying")
			if db.opts.OnBusy != nil {
				db.opts.OnBusy(attempt + 1)
			}

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("waiting for busy database: %w", ctx.Err())
			case <-timer.C:
			}
			wait *= 2
		}
	})
}

func runTx(ctx context.Context, conn *sql.Conn, begin string, queries *Queries, fn func(*Queries) error) error {
	if _, err := conn.ExecContext(ctx, begin); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(queries); err != nil {
		rollback(conn)
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		rollback(conn)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// rollback ignores the caller's context so a cancelled operation still
// leaves the connection outside any transaction.
func rollback(conn *sql.Conn) {
	_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
}

func (db *DB) withConn(fn func(*sql.Conn) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return kv.ErrClosed
	}
	return fn(db.conn)
}

// connectWithRetry acquires the single connection, backing off while another
// process holds the database locked during its own setup.
func (db *DB) connectWithRetry(ctx context.Context) error {
	wait := db.opts.RetryWait
	for attempt := 0; ; attempt++ {
		conn, err := db.pool.Conn(ctx)
		if err == nil {
			if err = conn.PingContext(ctx); err == nil {
				db.conn = conn
				return nil
			}
			_ = conn.Close()
		}

		if !IsBusyError(err) || attempt >= db.opts.MaxRetries {
			return err
		}

		db.log.Warn().Err(err).Int("attempt", attempt+1).Msg("database busy during open, retrying")
		time.Sleep(wait)
		wait *= 2
	}
}

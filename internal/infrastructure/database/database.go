package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/nerrad567/catalogdb/internal/catalog"
)

// Database configuration constants.
const (
	// dirPermissions is the permission mode for the database directory.
	dirPermissions = 0750

	// filePermissions is the permission mode for the database file.
	filePermissions = 0600

	// msPerSecond converts seconds to milliseconds.
	msPerSecond = 1000

	// connectionTimeout bounds acquiring the single connection at open.
	connectionTimeout = 5 * time.Second

	// driverName is the database/sql driver registered by go-sqlite3.
	driverName = "sqlite3"
)

// Config contains database configuration options.
// These map to the database section of config.yaml.
type Config struct {
	// Path is the filesystem path to the SQLite database file.
	// The directory will be created if it doesn't exist.
	Path string

	// Shared allows the Database to be used from several goroutines at once
	// without any serialization beyond SQLite's own. When false, every
	// operation holds an exclusive lock for its duration.
	Shared bool

	// WALMode enables Write-Ahead Logging.
	WALMode bool

	// BusyTimeout is the maximum time to wait for a database lock (seconds).
	BusyTimeout int

	// Params are extra driver connection parameters passed through as-is,
	// e.g. {"_txlock": "immediate"}.
	Params map[string]string
}

// Logger is the logging surface used by Database.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Option customises a Database at Open.
type Option func(*Database)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger Logger) Option {
	return func(d *Database) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithObserver adds an observer notified after every executed statement.
func WithObserver(obs Observer) Option {
	return func(d *Database) {
		if obs != nil {
			d.observers = append(d.observers, obs)
		}
	}
}

// Database owns one SQLite connection and executes catalog or ad-hoc queries on it.
//
// Thread Safety:
//   - With Config.Shared unset, calls are serialized.
//   - With Config.Shared set, calls run concurrently on the one connection
//     and lock contention is reported by SQLite.
type Database struct {
	db   *sql.DB
	conn *sql.Conn
	path string
	cat  *catalog.Catalog

	shared bool
	life   sync.RWMutex
	closed atomic.Bool

	// open tracks result cursors so Close can release the connection.
	openMu sync.Mutex
	open   map[*Rows]struct{}

	logger    Logger
	observers []Observer
}

// Open creates the database file if needed and prepares the connection.
//
// It performs the following setup:
//  1. Creates the database directory if it doesn't exist
//  2. Opens the database file and takes its single connection
//  3. Enables foreign key enforcement
//  4. Runs every bootstrap statement of cat in order
//
// A rejected bootstrap statement is reported as *ConfigError and no
// Database is returned.
//
// Parameters:
//   - ctx: Context for the setup statements
//   - cfg: Database configuration
//   - cat: Query catalog, may be nil
//   - opts: Logger and observers
//
// Returns:
//   - *Database: Ready database; call Close when done
//   - error: If the file cannot be opened or bootstrap fails
func Open(ctx context.Context, cfg Config, cat *catalog.Catalog, opts ...Option) (*Database, error) {
	if cfg.Path == "" {
		return nil, &ConfigError{Op: "open", Err: errors.New("database path is required")}
	}

	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	sqlDB, err := sql.Open(driverName, dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One connection, held for the lifetime of the Database.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)
	sqlDB.SetConnMaxIdleTime(0)

	connCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()

	conn, err := sqlDB.Conn(connCtx)
	if err != nil {
		sqlDB.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("connecting to database: %w", engineErr("", err))
	}

	d := &Database{
		db:     sqlDB,
		conn:   conn,
		path:   cfg.Path,
		cat:    cat,
		shared: cfg.Shared,
		open:   make(map[*Rows]struct{}),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(d)
	}

	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		d.release() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("enabling foreign keys: %w", engineErr("PRAGMA foreign_keys = ON", err))
	}

	if err := d.bootstrap(ctx); err != nil {
		d.release() //nolint:errcheck // Best effort cleanup on error path
		return nil, err
	}

	// Owner read/write only; the file exists once the connection is up.
	_ = os.Chmod(cfg.Path, filePermissions) //nolint:errcheck // In-memory or special paths have no file

	return d, nil
}

// With opens a Database, passes it to fn and closes it on every exit path.
// Close errors are joined to fn's error.
func With(ctx context.Context, cfg Config, cat *catalog.Catalog, fn func(*Database) error, opts ...Option) (err error) {
	d, err := Open(ctx, cfg, cat, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := d.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}()
	return fn(d)
}

// dsn builds the go-sqlite3 connection string.
// See: https://github.com/mattn/go-sqlite3#connection-string
func dsn(cfg Config) string {
	q := url.Values{}
	for k, v := range cfg.Params {
		q.Set(k, v)
	}
	q.Set("_foreign_keys", "on")
	q.Set("_busy_timeout", strconv.Itoa(cfg.BusyTimeout*msPerSecond))
	if cfg.Shared {
		q.Set("_mutex", "full")
	} else {
		q.Set("_mutex", "no")
	}
	if cfg.WALMode {
		q.Set("_journal_mode", "WAL")
		q.Set("_synchronous", "NORMAL")
	}
	return "file:" + cfg.Path + "?" + q.Encode()
}

// bootstrap executes the catalog's create statements, each in its own
// implicit transaction.
func (d *Database) bootstrap(ctx context.Context) error {
	stmts := d.cat.Bootstrap()
	for i, stmt := range stmts {
		start := time.Now()
		_, err := d.conn.ExecContext(ctx, stmt)
		d.notify(ctx, QueryEvent{
			Kind:      EventBootstrap,
			Statement: stmt,
			Duration:  time.Since(start),
			Err:       err,
		})
		if err != nil {
			return &ConfigError{
				Op:  "bootstrap",
				Err: fmt.Errorf("statement %d of %d: %w", i+1, len(stmts), engineErr(stmt, err)),
			}
		}
	}
	if len(stmts) > 0 {
		d.logger.Debug("bootstrap complete", "path", d.path, "statements", len(stmts))
	}
	return nil
}

// enter guards an operation against a concurrent or completed Close.
func (d *Database) enter() (func(), error) {
	unlock := d.life.RUnlock
	if d.shared {
		d.life.RLock()
	} else {
		d.life.Lock()
		unlock = d.life.Unlock
	}
	if d.closed.Load() {
		unlock()
		return nil, ErrClosed
	}
	return unlock, nil
}

// Close optimizes SQLite's statistics and releases the connection.
// Rows still open are closed and report ErrClosed afterwards.
// Calling Close more than once returns ErrClosed.
func (d *Database) Close() error {
	d.life.Lock()
	defer d.life.Unlock()

	if d.closed.Swap(true) {
		return ErrClosed
	}

	d.openMu.Lock()
	cursors := make([]*Rows, 0, len(d.open))
	for r := range d.open {
		cursors = append(cursors, r)
	}
	d.open = nil
	d.openMu.Unlock()
	for _, r := range cursors {
		r.abandon()
	}

	var errs []error
	if _, err := d.conn.ExecContext(context.Background(), "PRAGMA optimize"); err != nil {
		errs = append(errs, fmt.Errorf("optimizing database: %w", engineErr("PRAGMA optimize", err)))
	}
	if err := d.release(); err != nil {
		errs = append(errs, err)
	}

	d.logger.Info("database closed", "path", d.path)
	return errors.Join(errs...)
}

// release returns the connection and closes the pool.
func (d *Database) release() error {
	var errs []error
	if err := d.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		errs = append(errs, fmt.Errorf("releasing connection: %w", err))
	}
	if err := d.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing database: %w", err))
	}
	return errors.Join(errs...)
}

// Path returns the filesystem path to the database file.
func (d *Database) Path() string {
	return d.path
}

// Catalog returns the catalog the Database was opened with (possibly nil).
func (d *Database) Catalog() *catalog.Catalog {
	return d.cat
}

// HealthCheck verifies the connection answers a trivial query.
func (d *Database) HealthCheck(ctx context.Context) error {
	unlock, err := d.enter()
	if err != nil {
		return err
	}
	defer unlock()

	var result int
	if err := d.conn.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database health check failed: %w", engineErr("SELECT 1", err))
	}
	return nil
}

func (d *Database) track(r *Rows) {
	d.openMu.Lock()
	defer d.openMu.Unlock()
	if d.open != nil {
		d.open[r] = struct{}{}
	}
}

func (d *Database) untrack(r *Rows) {
	d.openMu.Lock()
	defer d.openMu.Unlock()
	delete(d.open, r)
}

// Package db is a thin, SQL-first layer over sqlx. It is NOT an ORM: every
// statement is written out by the caller and bound with the placeholder
// style of the configured driver.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// ─────────────────────────────────────────────────────────────────────────────
// Config
// ─────────────────────────────────────────────────────────────────────────────

// Config holds the options for opening a database handle.
type Config struct {
	// DSN is the driver-specific data-source name.
	DSN string

	// DriverName is "mysql", "postgres", or "sqlite3".
	DriverName string

	// DefaultTimeout bounds a statement when the caller's context carries no
	// deadline. Zero means no default timeout.
	DefaultTimeout time.Duration

	// Hooks executed around every statement. Nil entries are skipped.
	Hooks []Hook
}

// ─────────────────────────────────────────────────────────────────────────────
// DB
// ─────────────────────────────────────────────────────────────────────────────

// DB wraps *sqlx.DB with placeholder rebinding, hook dispatch and unified
// error mapping. It is safe for concurrent use.
type DB struct {
	sqldb  *sqlx.DB
	cfg    Config
	hooks  hookChain
	errMap ErrorMapper
}

// Open opens the database described by cfg and verifies connectivity with Ping.
// Callers are responsible for calling Close() when the application shuts down.
func Open(cfg Config) (*DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db: DSN must not be empty")
	}
	if cfg.DriverName == "" {
		return nil, fmt.Errorf("db: DriverName must not be empty")
	}

	sqldb, err := sqlx.Open(cfg.DriverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("db: open: %w", err)
	}

	d := &DB{
		sqldb:  sqldb,
		cfg:    cfg,
		hooks:  newHookChain(cfg.Hooks),
		errMap: DefaultErrorMapper(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqldb.PingContext(ctx); err != nil {
		_ = sqldb.Close()
		return nil, fmt.Errorf("db: ping: %w", d.mapErr(err))
	}

	return d, nil
}

// DriverName reports the database/sql driver the handle was opened with.
func (d *DB) DriverName() string { return d.sqldb.DriverName() }

// Close closes the handle. Safe to call multiple times.
func (d *DB) Close() error { return d.sqldb.Close() }

// Ping verifies that the database is reachable.
func (d *DB) Ping(ctx context.Context) error {
	ctx, cancel := d.withDefaultTimeout(ctx)
	defer cancel()
	return d.mapErr(d.sqldb.PingContext(ctx))
}

// ─────────────────────────────────────────────────────────────────────────────
// Statement execution
// ─────────────────────────────────────────────────────────────────────────────

// Exec runs a statement that returns no rows (INSERT, UPDATE, DELETE, DDL).
// Placeholders are written as "?" and rebound for the driver.
func (d *DB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx, cancel := d.withDefaultTimeout(ctx)
	defer cancel()

	query = d.sqldb.Rebind(query)
	start := time.Now()
	d.hooks.Before(ctx, query, args)
	res, err := d.sqldb.ExecContext(ctx, query, args...)
	err = d.mapErr(err)
	d.hooks.After(ctx, query, args, time.Since(start), err)
	return res, err
}

// Select runs a query and scans every row into dest, which must be a pointer
// to a slice. Columns are matched to struct fields by their `db` tags.
func (d *DB) Select(ctx context.Context, dest any, query string, args ...any) error {
	ctx, cancel := d.withDefaultTimeout(ctx)
	defer cancel()

	query = d.sqldb.Rebind(query)
	start := time.Now()
	d.hooks.Before(ctx, query, args)
	err := d.mapErr(d.sqldb.SelectContext(ctx, dest, query, args...))
	d.hooks.After(ctx, query, args, time.Since(start), err)
	return err
}

// QueryRow runs a query expected to return at most one row. ErrNotFound is
// returned from Scan when no row matches.
func (d *DB) QueryRow(ctx context.Context, query string, args ...any) *Row {
	ctx, cancel := d.withDefaultTimeout(ctx)

	query = d.sqldb.Rebind(query)
	start := time.Now()
	d.hooks.Before(ctx, query, args)
	raw := d.sqldb.QueryRowxContext(ctx, query, args...)
	d.hooks.After(ctx, query, args, time.Since(start), nil) // err unknown until Scan
	return &Row{raw: raw, errMap: d.errMap, cancel: cancel}
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

func (d *DB) withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.cfg.DefaultTimeout == 0 {
		return ctx, func() {}
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d.cfg.DefaultTimeout)
}

func (d *DB) mapErr(err error) error {
	if err == nil {
		return nil
	}
	return d.errMap.Map(err)
}

// ─────────────────────────────────────────────────────────────────────────────
// Row
// ─────────────────────────────────────────────────────────────────────────────

// Row wraps *sqlx.Row and maps errors through the unified error mapper.
type Row struct {
	raw    *sqlx.Row
	errMap ErrorMapper
	cancel context.CancelFunc
}

// Scan copies columns from the matched row into dest values and releases the
// statement's timeout.
func (r *Row) Scan(dest ...any) error {
	defer r.cancel()
	return r.errMap.Map(r.raw.Scan(dest...))
}

// ─────────────────────────────────────────────────────────────────────────────
// Querier
// ─────────────────────────────────────────────────────────────────────────────

// Querier is the statement surface repositories depend on.
type Querier interface {
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
	Select(ctx context.Context, dest any, query string, args ...any) error
	QueryRow(ctx context.Context, query string, args ...any) *Row
	DriverName() string
}

var _ Querier = (*DB)(nil)

package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sentinel errors
// ─────────────────────────────────────────────────────────────────────────────

var (
	// ErrNotFound is returned when a query matches no rows.
	ErrNotFound = errors.New("db: record not found")

	// ErrDuplicateKey is returned on unique constraint violations.
	ErrDuplicateKey = errors.New("db: duplicate key")

	// ErrConstraintViolation covers NOT NULL, CHECK and foreign key failures.
	ErrConstraintViolation = errors.New("db: constraint violation")

	// ErrTimeout is returned when a statement exceeds its deadline or its
	// context is canceled.
	ErrTimeout = errors.New("db: query timeout")

	// ErrConnectionFailed is returned when the driver cannot reach the server.
	ErrConnectionFailed = errors.New("db: connection failed")
)

func IsNotFound(err error) bool         { return errors.Is(err, ErrNotFound) }
func IsDuplicateKey(err error) bool     { return errors.Is(err, ErrDuplicateKey) }
func IsTimeout(err error) bool          { return errors.Is(err, ErrTimeout) }
func IsConnectionFailed(err error) bool { return errors.Is(err, ErrConnectionFailed) }

// ─────────────────────────────────────────────────────────────────────────────
// DBError
// ─────────────────────────────────────────────────────────────────────────────

// DBError pairs a sentinel with the original driver error so callers can use
// errors.Is for the category and errors.As for the driver details.
type DBError struct {
	// Sentinel is one of the package-level Err* variables.
	Sentinel error
	// Cause is the original driver error.
	Cause error
}

func (e *DBError) Error() string {
	return fmt.Sprintf("%s (cause: %v)", e.Sentinel, e.Cause)
}

func (e *DBError) Is(target error) bool { return errors.Is(e.Sentinel, target) }
func (e *DBError) Unwrap() error        { return e.Cause }

// ─────────────────────────────────────────────────────────────────────────────
// ErrorMapper
// ─────────────────────────────────────────────────────────────────────────────

// ErrorMapper translates raw driver errors into the package sentinels.
type ErrorMapper interface {
	Map(err error) error
}

// ErrorMapperFunc adapts a function to ErrorMapper.
type ErrorMapperFunc func(error) error

func (f ErrorMapperFunc) Map(err error) error { return f(err) }

// DefaultErrorMapper handles the MySQL, PostgreSQL and SQLite drivers.
func DefaultErrorMapper() ErrorMapper {
	return ErrorMapperFunc(defaultMap)
}

func defaultMap(err error) error {
	if err == nil {
		return nil
	}

	// Already mapped, do not double-wrap.
	var dbe *DBError
	if errors.As(err, &dbe) {
		return err
	}

	if errors.Is(err, sql.ErrNoRows) {
		return &DBError{Sentinel: ErrNotFound, Cause: err}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &DBError{Sentinel: ErrTimeout, Cause: err}
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return &DBError{Sentinel: ErrConnectionFailed, Cause: err}
	}

	for _, m := range []func(error) error{mapMySQLError, mapPQError, mapSQLiteError} {
		if mapped := m(err); mapped != nil {
			return mapped
		}
	}
	return err
}

// ─────────────────────────────────────────────────────────────────────────────
// MySQL
// ─────────────────────────────────────────────────────────────────────────────

func mapMySQLError(err error) error {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return nil
	}
	switch me.Number {
	case 1062: // ER_DUP_ENTRY
		return &DBError{Sentinel: ErrDuplicateKey, Cause: err}
	case 1048, 1216, 1217, 1451, 1452, 3819: // NOT NULL, FK, CHECK
		return &DBError{Sentinel: ErrConstraintViolation, Cause: err}
	case 3024: // ER_QUERY_TIMEOUT
		return &DBError{Sentinel: ErrTimeout, Cause: err}
	case 1045, 1049, 2002, 2003, 2006, 2013:
		return &DBError{Sentinel: ErrConnectionFailed, Cause: err}
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// PostgreSQL (lib/pq)
// ─────────────────────────────────────────────────────────────────────────────

func mapPQError(err error) error {
	var pe *pq.Error
	if !errors.As(err, &pe) {
		return nil
	}
	code := string(pe.Code)
	switch {
	case code == pgerrcode.UniqueViolation:
		return &DBError{Sentinel: ErrDuplicateKey, Cause: err}
	case pgerrcode.IsIntegrityConstraintViolation(code):
		return &DBError{Sentinel: ErrConstraintViolation, Cause: err}
	case code == pgerrcode.QueryCanceled:
		return &DBError{Sentinel: ErrTimeout, Cause: err}
	case pgerrcode.IsConnectionException(code):
		return &DBError{Sentinel: ErrConnectionFailed, Cause: err}
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// SQLite
// ─────────────────────────────────────────────────────────────────────────────

func mapSQLiteError(err error) error {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return nil
	}
	switch {
	case se.ExtendedCode == sqlite3.ErrConstraintUnique,
		se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
		return &DBError{Sentinel: ErrDuplicateKey, Cause: err}
	case se.Code == sqlite3.ErrConstraint:
		return &DBError{Sentinel: ErrConstraintViolation, Cause: err}
	case se.Code == sqlite3.ErrCantOpen:
		return &DBError{Sentinel: ErrConnectionFailed, Cause: err}
	}
	return nil
}

package db

import (
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/go-sql-driver/mysql"
)

// ─────────────────────────────────────────────────────────────────────────────
// Driver interface
// ─────────────────────────────────────────────────────────────────────────────

// Driver builds the DSN for one database/sql driver from structured options.
// The driver packages themselves register with database/sql through a blank
// import in main.
type Driver interface {
	// Name returns the name passed to sql.Register, e.g. "mysql".
	Name() string

	// DSN converts structured options into a driver DSN string.
	DSN(opts DriverOptions) (string, error)
}

// DriverOptions carries connection parameters in a driver-agnostic form.
type DriverOptions struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string // postgres only: "disable", "require", "verify-full", ...
}

// ─────────────────────────────────────────────────────────────────────────────
// Driver registry
// ─────────────────────────────────────────────────────────────────────────────

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Driver)
)

// RegisterDriver adds a Driver to the registry, replacing any previous entry
// with the same name.
func RegisterDriver(d Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[d.Name()] = d
}

// LookupDriver returns the registered Driver by name or an error.
func LookupDriver(name string) (Driver, error) {
	driversMu.RLock()
	defer driversMu.RUnlock()
	d, ok := drivers[name]
	if !ok {
		return nil, fmt.Errorf("db: driver %q not registered", name)
	}
	return d, nil
}

// OpenWithDriver builds the DSN with the named Driver and opens the handle.
//
//	database, err := db.OpenWithDriver("mysql", db.DriverOptions{
//	    Host: "localhost", User: "app", Password: "secret", Database: "ece140",
//	}, db.Config{})
func OpenWithDriver(driverName string, opts DriverOptions, cfg Config) (*DB, error) {
	drv, err := LookupDriver(driverName)
	if err != nil {
		return nil, err
	}

	dsn, err := drv.DSN(opts)
	if err != nil {
		return nil, fmt.Errorf("db: DSN construction failed: %w", err)
	}

	cfg.DriverName = drv.Name()
	cfg.DSN = dsn
	return Open(cfg)
}

// ─────────────────────────────────────────────────────────────────────────────
// MySQL (go-sql-driver/mysql)
// ─────────────────────────────────────────────────────────────────────────────

// MySQLDriver is the go-sql-driver/mysql adapter.
type MySQLDriver struct{}

func (MySQLDriver) Name() string { return "mysql" }

// DSN enables ClientFoundRows so RowsAffected on UPDATE counts matched rows:
// re-saving a user with unchanged names still reports success.
func (MySQLDriver) DSN(o DriverOptions) (string, error) {
	if o.Host == "" || o.Database == "" {
		return "", fmt.Errorf("mysql driver: Host and Database are required")
	}
	port := o.Port
	if port == 0 {
		port = 3306
	}

	c := mysql.NewConfig()
	c.User = o.User
	c.Passwd = o.Password
	c.Net = "tcp"
	c.Addr = net.JoinHostPort(o.Host, strconv.Itoa(port))
	c.DBName = o.Database
	c.ParseTime = true
	c.ClientFoundRows = true
	return c.FormatDSN(), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// PostgreSQL (lib/pq)
// ─────────────────────────────────────────────────────────────────────────────

// PostgresDriver is the lib/pq adapter.
type PostgresDriver struct{}

func (PostgresDriver) Name() string { return "postgres" }

func (PostgresDriver) DSN(o DriverOptions) (string, error) {
	if o.Host == "" || o.Database == "" {
		return "", fmt.Errorf("postgres driver: Host and Database are required")
	}
	port := o.Port
	if port == 0 {
		port = 5432
	}
	sslMode := o.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		quotePQ(o.Host), port, quotePQ(o.User), quotePQ(o.Password), quotePQ(o.Database), sslMode,
	), nil
}

// quotePQ quotes a keyword/value connection string value for lib/pq.
func quotePQ(v string) string {
	out := make([]byte, 0, len(v)+2)
	out = append(out, '\'')
	for i := 0; i < len(v); i++ {
		if v[i] == '\'' || v[i] == '\\' {
			out = append(out, '\\')
		}
		out = append(out, v[i])
	}
	return string(append(out, '\''))
}

// ─────────────────────────────────────────────────────────────────────────────
// SQLite (mattn/go-sqlite3)
// ─────────────────────────────────────────────────────────────────────────────

// SQLiteDriver is the mattn/go-sqlite3 adapter. Database is the file path or
// ":memory:".
type SQLiteDriver struct{}

func (SQLiteDriver) Name() string { return "sqlite3" }

func (SQLiteDriver) DSN(o DriverOptions) (string, error) {
	if o.Database == "" {
		return "", fmt.Errorf("sqlite3 driver: Database (file path) is required")
	}
	return o.Database, nil
}

func init() {
	RegisterDriver(MySQLDriver{})
	RegisterDriver(PostgresDriver{})
	RegisterDriver(SQLiteDriver{})
}

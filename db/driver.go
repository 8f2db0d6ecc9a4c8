package db

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

// ─────────────────────────────────────────────────────────────────────────────
// Driver
// ─────────────────────────────────────────────────────────────────────────────

// Driver encapsulates the database-specific pieces the rest of the module
// needs: DSN construction from structured options, the driver's error
// mapper, and the DDL fragment for an auto-assigned integer primary key.
//
// The database/sql drivers themselves register through the imports in
// errors.go, so every adapter below is usable as soon as this package is.
type Driver interface {
	// Name is the database/sql driver name, e.g. "sqlite3".
	Name() string

	// DSN converts structured options into the driver's DSN format.
	DSN(opts DriverOptions) (string, error)

	// ErrorMapper returns a mapper tuned to this driver's error types.
	ErrorMapper() ErrorMapper

	// AutoIncrementPK is the column definition of a monotonically
	// increasing integer primary key in this dialect.
	AutoIncrementPK() string
}

// DriverOptions carries connection parameters in a driver-agnostic form.
type DriverOptions struct {
	Host     string
	Port     int
	User     string
	Password string
	// Database is the database name, or the file path for SQLite.
	Database string
	SSLMode  string
	// Extra holds driver-specific key/value parameters.
	Extra map[string]string
}

// ─────────────────────────────────────────────────────────────────────────────
// Registry
// ─────────────────────────────────────────────────────────────────────────────

var (
	driversMu sync.RWMutex
	drivers   = map[string]Driver{
		SQLiteDriver{}.Name():   SQLiteDriver{},
		PostgresDriver{}.Name(): PostgresDriver{},
		MySQLDriver{}.Name():    MySQLDriver{},
	}
)

// RegisterDriver adds a Driver to the registry.
// Panics if a driver with the same name is already registered.
func RegisterDriver(d Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if _, ok := drivers[d.Name()]; ok {
		panic(fmt.Sprintf("leadmanager/db: driver %q already registered", d.Name()))
	}
	drivers[d.Name()] = d
}

// LookupDriver returns the registered Driver by name.
func LookupDriver(name string) (Driver, error) {
	driversMu.RLock()
	defer driversMu.RUnlock()
	d, ok := drivers[name]
	if !ok {
		return nil, fmt.Errorf("leadmanager/db: driver %q not registered", name)
	}
	return d, nil
}

// OpenWithDriver builds the DSN with a registered Driver and opens it.
//
//	database, err := db.OpenWithDriver("sqlite3", db.DriverOptions{
//	    Database: "leads.db",
//	    Extra:    map[string]string{"_busy_timeout": "5000"},
//	}, db.Config{})
func OpenWithDriver(driverName string, driverOpts DriverOptions, cfg Config) (*DB, error) {
	drv, err := LookupDriver(driverName)
	if err != nil {
		return nil, err
	}

	dsn, err := drv.DSN(driverOpts)
	if err != nil {
		return nil, fmt.Errorf("leadmanager/db: DSN construction failed: %w", err)
	}

	cfg.DriverName = drv.Name()
	cfg.DSN = dsn

	d, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	d.SetErrorMapper(ChainMapper(drv.ErrorMapper(), DefaultErrorMapper()))
	return d, nil
}

// only wraps a driver-specific mapping function so it leaves unknown errors
// untouched, which is what ChainMapper expects.
func only(fn func(error) error) ErrorMapper {
	return ErrorMapperFunc(func(err error) error {
		if err == nil {
			return nil
		}
		if mapped := fn(err); mapped != nil {
			return mapped
		}
		return err
	})
}

func sortedExtra(extra map[string]string, kv, sep string) string {
	parts := make([]string, 0, len(extra))
	for _, k := range slices.Sorted(maps.Keys(extra)) {
		parts = append(parts, k+kv+extra[k])
	}
	return strings.Join(parts, sep)
}

// ─────────────────────────────────────────────────────────────────────────────
// SQLite (mattn/go-sqlite3)
// ─────────────────────────────────────────────────────────────────────────────

// SQLiteDriver is the embedded default.
type SQLiteDriver struct{}

func (SQLiteDriver) Name() string { return "sqlite3" }

func (SQLiteDriver) DSN(o DriverOptions) (string, error) {
	if o.Database == "" {
		return "", fmt.Errorf("sqlite3 driver: Database (file path) is required")
	}
	if len(o.Extra) == 0 {
		return o.Database, nil
	}
	return o.Database + "?" + sortedExtra(o.Extra, "=", "&"), nil
}

func (SQLiteDriver) ErrorMapper() ErrorMapper { return only(mapSQLiteError) }
func (SQLiteDriver) AutoIncrementPK() string  { return "INTEGER PRIMARY KEY AUTOINCREMENT" }

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
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		o.Host, port, o.User, o.Password, o.Database, sslMode,
	)
	if len(o.Extra) > 0 {
		dsn += " " + sortedExtra(o.Extra, "=", " ")
	}
	return dsn, nil
}

func (PostgresDriver) ErrorMapper() ErrorMapper { return only(mapPQError) }
func (PostgresDriver) AutoIncrementPK() string  { return "BIGSERIAL PRIMARY KEY" }

// ─────────────────────────────────────────────────────────────────────────────
// MySQL (go-sql-driver/mysql)
// ─────────────────────────────────────────────────────────────────────────────

// MySQLDriver is the go-sql-driver/mysql adapter. clientFoundRows makes
// UPDATE report matched rather than changed rows, so setting a status to its
// current value is not mistaken for a missing row.
type MySQLDriver struct{}

func (MySQLDriver) Name() string { return "mysql" }

func (MySQLDriver) DSN(o DriverOptions) (string, error) {
	if o.Host == "" || o.Database == "" {
		return "", fmt.Errorf("mysql driver: Host and Database are required")
	}
	port := o.Port
	if port == 0 {
		port = 3306
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&clientFoundRows=true",
		o.User, o.Password, o.Host, port, o.Database)
	if len(o.Extra) > 0 {
		dsn += "&" + sortedExtra(o.Extra, "=", "&")
	}
	return dsn, nil
}

func (MySQLDriver) ErrorMapper() ErrorMapper { return only(mapMySQLError) }
func (MySQLDriver) AutoIncrementPK() string  { return "BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY" }

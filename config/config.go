// Package config loads the process configuration from LEADMANAGER_*
// environment variables and builds the logger and database handle from it.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-sql-driver/mysql"

	"github.com/Skryldev/lead-manager/db"
)

// Config is the full process configuration.
type Config struct {
	DB DBConfig

	HTTPAddr    string `env:"LEADMANAGER_HTTP_ADDR"    envDefault:"127.0.0.1:8000"`
	LogLevel    string `env:"LEADMANAGER_LOG_LEVEL"    envDefault:"info"`
	LogFormat   string `env:"LEADMANAGER_LOG_FORMAT"   envDefault:"json"`
	PhoneRegion string `env:"LEADMANAGER_PHONE_REGION" envDefault:"US"`
}

// DBConfig selects and tunes the lead store. DatabaseURL, when set, is passed
// to the driver verbatim; otherwise the DSN is built from the other fields.
type DBConfig struct {
	Driver       string        `env:"LEADMANAGER_DB_DRIVER"         envDefault:"sqlite3"`
	DatabaseURL  string        `env:"LEADMANAGER_DATABASE_URL"`
	Host         string        `env:"LEADMANAGER_DB_HOST"`
	Port         int           `env:"LEADMANAGER_DB_PORT"`
	User         string        `env:"LEADMANAGER_DB_USER"`
	Password     string        `env:"LEADMANAGER_DB_PASSWORD"`
	Name         string        `env:"LEADMANAGER_DB_NAME"           envDefault:"leads.db"`
	SSLMode      string        `env:"LEADMANAGER_DB_SSLMODE"`
	MaxOpenConns int           `env:"LEADMANAGER_DB_MAX_OPEN_CONNS"`
	SlowQuery    time.Duration `env:"LEADMANAGER_SLOW_QUERY"        envDefault:"200ms"`
	LogQueryArgs bool          `env:"LEADMANAGER_LOG_QUERY_ARGS"    envDefault:"false"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values that would only fail later, at first use.
func (c Config) Validate() error {
	if _, err := db.LookupDriver(c.DB.Driver); err != nil {
		return fmt.Errorf("config: LEADMANAGER_DB_DRIVER: %w", err)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("config: LEADMANAGER_LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	if c.DB.MaxOpenConns < 0 {
		return fmt.Errorf("config: LEADMANAGER_DB_MAX_OPEN_CONNS must not be negative")
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("config: LEADMANAGER_LOG_LEVEL: %w", err)
	}
	return lvl, nil
}

// Logger builds the process logger writing to w.
func (c Config) Logger(w io.Writer) *slog.Logger {
	lvl, err := parseLevel(c.LogLevel)
	if err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(c.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// OpenDB opens the configured database with the logging hook and, when
// collector is non-nil, the metrics hook installed.
func (c Config) OpenDB(logger *slog.Logger, collector db.MetricsCollector) (*db.DB, error) {
	hooks := []db.Hook{
		db.NewLogHook(db.LogHookConfig{
			Logger:             logger,
			SlowQueryThreshold: c.DB.SlowQuery,
			LogArgs:            c.DB.LogQueryArgs,
		}),
	}
	if collector != nil {
		hooks = append(hooks, db.NewMetricsHook(collector))
	}

	dbCfg := db.Config{
		MaxOpenConns: c.DB.MaxOpenConns,
		Hooks:        hooks,
	}
	// SQLite serializes writers; one pooled connection avoids SQLITE_BUSY
	// between our own requests.
	if c.DB.Driver == "sqlite3" && dbCfg.MaxOpenConns == 0 {
		dbCfg.MaxOpenConns = 1
	}

	if c.DB.DatabaseURL != "" {
		dsn, err := c.rawDSN()
		if err != nil {
			return nil, err
		}
		dbCfg.DriverName = c.DB.Driver
		dbCfg.DSN = dsn
		return db.Open(dbCfg)
	}
	return db.OpenWithDriver(c.DB.Driver, c.driverOptions(), dbCfg)
}

// rawDSN returns DatabaseURL with the parameters the lead store relies on
// forced for MySQL: parseTime for DATE columns and clientFoundRows so an
// UPDATE that matches a row reports it even when nothing changed.
func (c Config) rawDSN() (string, error) {
	if c.DB.Driver != "mysql" {
		return c.DB.DatabaseURL, nil
	}
	mc, err := mysql.ParseDSN(c.DB.DatabaseURL)
	if err != nil {
		return "", fmt.Errorf("config: LEADMANAGER_DATABASE_URL: %w", err)
	}
	mc.ParseTime = true
	mc.ClientFoundRows = true
	return mc.FormatDSN(), nil
}

func (c Config) driverOptions() db.DriverOptions {
	opts := db.DriverOptions{
		Host:     c.DB.Host,
		Port:     c.DB.Port,
		User:     c.DB.User,
		Password: c.DB.Password,
		Database: c.DB.Name,
		SSLMode:  c.DB.SSLMode,
	}
	if c.DB.Driver == "sqlite3" && c.DB.Name != ":memory:" {
		opts.Extra = map[string]string{"_busy_timeout": "5000"}
	}
	return opts
}

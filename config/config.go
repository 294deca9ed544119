// Package config builds the process configuration once at startup. Nothing
// outside main reads the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

type AppConfig struct {
	Host string
	Port string
}

type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string

	QueryTimeout time.Duration
	LogArgs      bool
}

type LogConfig struct {
	Level  zerolog.Level
	Format string // "console" or "json"
}

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Log      LogConfig
}

// Addr is the listen address for the HTTP server.
func (c AppConfig) Addr() string { return c.Host + ":" + c.Port }

// Load reads the dotenv file named by ENV_FILE (default "credentials.env"),
// then the process environment. Variables already set in the environment win
// over the file. A missing file is not an error; missing required variables
// are, and all of them are reported at once.
func Load() (*Config, error) {
	envFile := getenv("ENV_FILE", "credentials.env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load %s: %w", envFile, err)
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup. Each DB_* variable falls back to the
// MYSQL_* name used by existing credentials files.
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	e := env{lookup: lookup}

	cfg := &Config{
		App: AppConfig{
			Host: e.get("APP_HOST", "127.0.0.1"),
			Port: e.get("APP_PORT", "8000"),
		},
		Database: DatabaseConfig{
			Driver:  e.get("DB_DRIVER", "mysql"),
			SSLMode: e.get("DB_SSLMODE", "disable"),
		},
		Log: LogConfig{
			Format: e.get("LOG_FORMAT", "console"),
		},
	}

	switch cfg.Database.Driver {
	case "mysql", "postgres":
		cfg.Database.Host = e.require("DB_HOST", "MYSQL_HOST")
		cfg.Database.User = e.require("DB_USER", "MYSQL_USER")
		cfg.Database.Password = e.require("DB_PASSWORD", "MYSQL_PASSWORD")
		cfg.Database.Name = e.require("DB_NAME", "MYSQL_DATABASE")
	case "sqlite3":
		cfg.Database.Name = e.require("DB_NAME", "MYSQL_DATABASE")
	default:
		e.fail("DB_DRIVER: unsupported driver %q", cfg.Database.Driver)
	}

	cfg.Database.Port = e.port("DB_PORT", "MYSQL_PORT")
	cfg.Database.QueryTimeout = e.duration("DB_QUERY_TIMEOUT")
	cfg.Database.LogArgs = e.flag("DB_LOG_ARGS")

	level, err := zerolog.ParseLevel(e.get("LOG_LEVEL", "info"))
	if err != nil {
		e.fail("LOG_LEVEL: %v", err)
	}
	cfg.Log.Level = level

	if cfg.Log.Format != "console" && cfg.Log.Format != "json" {
		e.fail("LOG_FORMAT: must be console or json, got %q", cfg.Log.Format)
	}

	if len(e.problems) > 0 {
		return nil, fmt.Errorf("config: %s", strings.Join(e.problems, "; "))
	}
	return cfg, nil
}

// ─────────────────────────────────────────────────────────────────────────────

type env struct {
	lookup   func(string) (string, bool)
	problems []string
}

func (e *env) first(keys ...string) (string, string) {
	for _, k := range keys {
		if v, ok := e.lookup(k); ok && v != "" {
			return k, v
		}
	}
	return "", ""
}

func (e *env) get(key, fallback string) string {
	if _, v := e.first(key); v != "" {
		return v
	}
	return fallback
}

func (e *env) require(keys ...string) string {
	_, v := e.first(keys...)
	if v == "" {
		e.fail("%s is required", strings.Join(keys, " or "))
	}
	return v
}

func (e *env) port(keys ...string) int {
	k, v := e.first(keys...)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		e.fail("%s: invalid port %q", k, v)
		return 0
	}
	return n
}

func (e *env) duration(key string) time.Duration {
	_, v := e.first(key)
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		e.fail("%s: invalid duration %q", key, v)
		return 0
	}
	return d
}

func (e *env) flag(key string) bool {
	_, v := e.first(key)
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail("%s: invalid bool %q", key, v)
	}
	return b
}

func (e *env) fail(format string, args ...any) {
	e.problems = append(e.problems, fmt.Sprintf(format, args...))
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

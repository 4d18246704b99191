// Package config loads service settings from the environment (and a .env
// file when present).
package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"
)

// Store drivers accepted by STORE_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Config holds every setting read by cmd/server and cmd/historian.
type Config struct {
	Port           int      `env:"PORT" envDefault:"8080"`
	Env            string   `env:"AUCTION_ENV" envDefault:"development"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`

	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`

	PostgresUser     string `env:"POSTGRES_USER" envDefault:"postgres"`
	PostgresPassword string `env:"POSTGRES_PASSWORD"`
	PGHost           string `env:"PG_HOST" envDefault:"localhost"`
	PGPort           int    `env:"PG_PORT" envDefault:"5432"`
	PGDatabase       string `env:"PG_DATABASE" envDefault:"auctionarena"`

	SQLitePath string `env:"SQLITE_PATH" envDefault:"data/auctionarena.db"`

	RedisAddr string `env:"REDIS_ADDR"` // empty disables the action queue
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	HistorianQueueName  string        `env:"HISTORIAN_QUEUE_NAME" envDefault:"auction_actions"`
	HistorianBatchSize  int           `env:"HISTORIAN_BATCH_SIZE" envDefault:"20"`
	HistorianFlushMS    int           `env:"HISTORIAN_FLUSH_MS" envDefault:"500"`
	LobbyInactivityTime time.Duration `env:"LOBBY_INACTIVITY_TIMEOUT" envDefault:"30m"`
	LobbyReapInterval   time.Duration `env:"LOBBY_REAP_INTERVAL" envDefault:"1m"` // how often the server drops engines of deactivated lobbies

	TokenExpireTime time.Duration `env:"TOKEN_EXPIRE_TIME" envDefault:"12h"`
	EventBuffer     int           `env:"EVENT_BUFFER" envDefault:"256"`
}

// Load parses the environment into a Config and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverPostgres, DriverSQLite, DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.EventBuffer <= 0 {
		return fmt.Errorf("EVENT_BUFFER must be positive, got %d", c.EventBuffer)
	}
	if c.LobbyReapInterval <= 0 {
		return fmt.Errorf("LOBBY_REAP_INTERVAL must be positive, got %s", c.LobbyReapInterval)
	}
	if c.HistorianBatchSize <= 0 {
		return fmt.Errorf("HISTORIAN_BATCH_SIZE must be positive, got %d", c.HistorianBatchSize)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	return nil
}

// IsProduction reports whether AUCTION_ENV is "production".
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Level returns the parsed log level; Validate guarantees it parses.
func (c *Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// FlushInterval is the historian's periodic flush delay.
func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.HistorianFlushMS) * time.Millisecond
}

// PostgresURL builds the connection string from the PG_* settings.
func (c *Config) PostgresURL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Host:   net.JoinHostPort(c.PGHost, strconv.Itoa(c.PGPort)),
		Path:   "/" + c.PGDatabase,
	}
	return u.String()
}

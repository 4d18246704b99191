package config

import (
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "STORE_DRIVER", "LOG_LEVEL", "EVENT_BUFFER", "ALLOWED_ORIGINS", "HISTORIAN_BATCH_SIZE", "AUCTION_ENV", "TOKEN_EXPIRE_TIME", "LOBBY_REAP_INTERVAL"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, 256, cfg.EventBuffer)
	assert.Equal(t, 12*time.Hour, cfg.TokenExpireTime)
	assert.Equal(t, time.Minute, cfg.LobbyReapInterval)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, logrus.InfoLevel, cfg.Level())
	assert.False(t, cfg.IsProduction())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("AUCTION_ENV", "production")
	t.Setenv("HISTORIAN_FLUSH_MS", "250")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, logrus.DebugLevel, cfg.Level())
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 250*time.Millisecond, cfg.FlushInterval())
}

func TestValidateRejects(t *testing.T) {
	base := func() Config {
		return Config{Port: 80, StoreDriver: DriverMemory, EventBuffer: 1, HistorianBatchSize: 1, LogLevel: "info", LobbyReapInterval: time.Minute}
	}
	cases := map[string]func(c *Config){
		"driver":   func(c *Config) { c.StoreDriver = "mongo" },
		"port":     func(c *Config) { c.Port = 0 },
		"buffer":   func(c *Config) { c.EventBuffer = 0 },
		"batch":    func(c *Config) { c.HistorianBatchSize = -1 },
		"loglevel": func(c *Config) { c.LogLevel = "loud" },
		"reap":     func(c *Config) { c.LobbyReapInterval = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := base()
			require.NoError(t, c.Validate())
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestPostgresURL(t *testing.T) {
	c := Config{PostgresUser: "auction", PostgresPassword: "p@ss", PGHost: "db", PGPort: 5433, PGDatabase: "arena"}
	assert.Equal(t, "postgres://auction:p%40ss@db:5433/arena", c.PostgresURL())
}

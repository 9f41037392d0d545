package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("should read yaml and derive durations", func(t *testing.T) {
		req := require.New(t)
		path := writeConfig(t, `
app:
  port: 9000
store:
  driver: memory
jwt:
  alg: HS256
  hs_secret: dev-secret
ws:
  ping_interval_seconds: 5
  send_timeout_ms: 250
events:
  driver: kafka
kafka:
  brokers: ["k1:9092", "k2:9092"]
`)
		cfg, err := Load(path)
		req.NoError(err)
		req.Equal(9000, cfg.App.Port)
		req.Equal("memory", cfg.Store.Driver)
		req.Equal(5*time.Second, cfg.PingInterval)
		req.Equal(10*time.Second, cfg.WriteDeadline)
		req.Equal(250*time.Millisecond, cfg.SendTimeout)
		req.Equal([]string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
		req.Equal("chat.message.events", cfg.Kafka.TopicEvents)
		req.Equal(int64(50), cfg.Chat.HistoryLimit)
	})

	t.Run("should let the environment override the file", func(t *testing.T) {
		req := require.New(t)
		path := writeConfig(t, "jwt:\n  hs_secret: from-file\n")
		t.Setenv("JWT_HS_SECRET", "from-env")
		t.Setenv("APP_PORT", "9100")
		t.Setenv("STORE_DRIVER", "memory")

		cfg, err := Load(path)
		req.NoError(err)
		req.Equal("from-env", cfg.JWT.HSSecret)
		req.Equal(9100, cfg.App.Port)
	})

	t.Run("should work without a config file", func(t *testing.T) {
		req := require.New(t)
		t.Setenv("JWT_HS_SECRET", "s")
		cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		req.NoError(err)
		req.Equal(8085, cfg.App.Port)
		req.Equal("mongo", cfg.Store.Driver)
	})
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			App:    AppConfig{Port: 8085},
			Store:  StoreConfig{Driver: "memory"},
			Events: EventsConfig{Driver: "none"},
			JWT:    JWTConfig{Alg: "HS256", HSSecret: "s"},
			WS:     WSConfig{PingIntervalSeconds: 25, WriteDeadlineSeconds: 10},
		}
	}

	cases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"should require a port", func(c *Config) { c.App.Port = 0 }},
		{"should reject unknown store drivers", func(c *Config) { c.Store.Driver = "sqlite" }},
		{"should require mongo settings", func(c *Config) { c.Store.Driver = "mongo" }},
		{"should require brokers for kafka", func(c *Config) { c.Events.Driver = "kafka" }},
		{"should require a url for nats", func(c *Config) { c.Events.Driver = "nats" }},
		{"should require a key for RS256", func(c *Config) { c.JWT.Alg = "RS256" }},
		{"should reject unknown algorithms", func(c *Config) { c.JWT.Alg = "none" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := base()
			tc.mutate(&c)
			require.Error(t, c.Validate())
		})
	}

	t.Run("should accept the base config", func(t *testing.T) {
		c := base()
		require.NoError(t, c.Validate())
	})
}

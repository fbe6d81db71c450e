package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestLoad(t *testing.T) {

	t.Run("defaults without file or environment", func(t *testing.T) {
		is := is.New(t)
		for _, name := range []string{"PORT", "DATABASE_URL", "HTTP_REQUEST_TIMEOUT", "KAFKA_BROKERS", "NTFY_ENABLED"} {
			t.Setenv(name, "")
		}

		cfg, err := Load("")
		is.NoErr(err)
		is.Equal(cfg.Server.Port, 8080)
		is.Equal(cfg.Server.RequestTimeout, 5*time.Second)
		is.Equal(cfg.Server.InvalidationTimeout, 2*time.Second)
		is.Equal(cfg.Database.URL, "")
		is.Equal(cfg.Cache.Size, 128)
		is.Equal(cfg.Kafka.Brokers, []string{})
		is.Equal(cfg.Kafka.Topic, "invoices.invalidated")
		is.True(!cfg.Notifications.Enabled)
		is.Equal(cfg.Logger.Format, "json")
	})

	t.Run("yaml file overrides defaults", func(t *testing.T) {
		is := is.New(t)

		path := filepath.Join(t.TempDir(), "config.yaml")
		is.NoErr(os.WriteFile(path, []byte(`
server:
  port: 9090
  expose_errors: true
cache:
  size: 8
logger:
  level: debug
  format: console
`), 0o644))

		cfg, err := Load(path)
		is.NoErr(err)
		is.Equal(cfg.Server.Port, 9090)
		is.True(cfg.Server.ExposeErrors)
		is.Equal(cfg.Cache.Size, 8)
		is.Equal(cfg.Logger.Level, "debug")
		is.Equal(cfg.Logger.Format, "console")
	})

	t.Run("environment overrides file", func(t *testing.T) {
		is := is.New(t)
		t.Setenv("DATABASE_URL", "postgres://invoices@localhost/invoices?sslmode=disable")
		t.Setenv("HTTP_REQUEST_TIMEOUT", "750ms")
		t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
		t.Setenv("NTFY_BASE_URL", "http://ntfy.local")
		t.Setenv("INVOICES_SERVER_PORT", "7000")

		cfg, err := Load("")
		is.NoErr(err)
		is.Equal(cfg.Database.URL, "postgres://invoices@localhost/invoices?sslmode=disable")
		is.Equal(cfg.Server.RequestTimeout, 750*time.Millisecond)
		is.Equal(cfg.Kafka.Brokers, []string{"kafka-1:9092", "kafka-2:9092"})
		is.Equal(cfg.Notifications.BaseURL, "http://ntfy.local")
		is.Equal(cfg.Server.Port, 7000)
	})

	t.Run("missing config file is an error", func(t *testing.T) {
		is := is.New(t)

		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		is.True(err != nil)
	})
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server: ServerConfig{Port: 8080, RequestTimeout: time.Second, InvalidationTimeout: time.Second},
			Cache:  CacheConfig{Size: 1},
			Kafka:  KafkaConfig{Topic: "invoices.invalidated"},
			Logger: LoggerConfig{Format: "json"},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"zero request timeout", func(c *Config) { c.Server.RequestTimeout = 0 }},
		{"zero invalidation timeout", func(c *Config) { c.Server.InvalidationTimeout = 0 }},
		{"empty cache", func(c *Config) { c.Cache.Size = 0 }},
		{"brokers without topic", func(c *Config) { c.Kafka.Brokers = []string{"k:9092"}; c.Kafka.Topic = "" }},
		{"notifications without url", func(c *Config) { c.Notifications.Enabled = true }},
		{"unknown log format", func(c *Config) { c.Logger.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			cfg := valid()
			tt.mutate(&cfg)
			is.True(cfg.Validate() != nil)
		})
	}

	t.Run("valid configuration", func(t *testing.T) {
		is := is.New(t)
		cfg := valid()
		is.NoErr(cfg.Validate())
	})
}

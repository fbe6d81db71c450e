package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Logger        LoggerConfig        `mapstructure:"logger"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	ExposeErrors   bool          `mapstructure:"expose_errors"`

	// InvalidationTimeout bounds the cache, kafka and ntfy invalidators after a write.
	InvalidationTimeout time.Duration `mapstructure:"invalidation_timeout"`
}

// DatabaseConfig holds the Postgres connection. An empty URL selects the in-memory store.
type DatabaseConfig struct {
	URL            string `mapstructure:"url"`
	MigrationsPath string `mapstructure:"migrations_path"`
}

type CacheConfig struct {
	Size int `mapstructure:"size"`
}

// KafkaConfig holds the invalidation event publisher. No brokers, no publisher.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type NotificationsConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load reads the optional .env and YAML files, then applies environment
// overrides on top of the defaults. An empty configPath skips the YAML file.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	bindEnvVars(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", 5*time.Second)
	v.SetDefault("server.expose_errors", false)
	v.SetDefault("server.invalidation_timeout", 2*time.Second)

	v.SetDefault("database.url", "")
	v.SetDefault("database.migrations_path", "migrations")

	v.SetDefault("cache.size", 128)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "invoices.invalidated")

	v.SetDefault("notifications.enabled", false)
	v.SetDefault("notifications.base_url", "https://ntfy.sh")
	v.SetDefault("notifications.timeout", 2*time.Second)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

func bindEnvVars(v *viper.Viper) {
	v.SetEnvPrefix("INVOICES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.BindEnv("server.port", "INVOICES_SERVER_PORT", "PORT")
	v.BindEnv("server.request_timeout", "INVOICES_SERVER_REQUEST_TIMEOUT", "HTTP_REQUEST_TIMEOUT")
	v.BindEnv("database.url", "INVOICES_DATABASE_URL", "DATABASE_URL")
	v.BindEnv("database.migrations_path", "INVOICES_DATABASE_MIGRATIONS_PATH", "DATABASE_MIGRATIONS_PATH")
	v.BindEnv("kafka.brokers", "INVOICES_KAFKA_BROKERS", "KAFKA_BROKERS")
	v.BindEnv("notifications.enabled", "INVOICES_NOTIFICATIONS_ENABLED", "NTFY_ENABLED")
	v.BindEnv("notifications.base_url", "INVOICES_NOTIFICATIONS_BASE_URL", "NTFY_BASE_URL")
}

// Brokers from the environment arrive as one comma separated string.
func splitList(values []string) []string {
	out := []string{}
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server.request_timeout must be positive")
	}
	if c.Server.InvalidationTimeout <= 0 {
		return fmt.Errorf("server.invalidation_timeout must be positive")
	}
	if c.Cache.Size < 1 {
		return fmt.Errorf("cache.size must be at least 1, got %d", c.Cache.Size)
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka.topic is required when kafka.brokers is set")
	}
	if c.Notifications.Enabled && c.Notifications.BaseURL == "" {
		return fmt.Errorf("notifications.base_url is required when notifications are enabled")
	}
	switch c.Logger.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logger.format must be json or console, got %q", c.Logger.Format)
	}
	return nil
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	MQTT       MQTTConfig       `mapstructure:"mqtt"`
	Trends     TrendsConfig     `mapstructure:"trends"`
	Sandbox    SandboxConfig    `mapstructure:"sandbox"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

type DatabaseConfig struct {
	Path        string        `mapstructure:"path"`
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
}

type MQTTConfig struct {
	Address   string `mapstructure:"address"`
	BaseTopic string `mapstructure:"base_topic"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	QueueSize int    `mapstructure:"queue_size"`
}

// Topic returns the topic envelopes are published on.
func (c MQTTConfig) Topic() string {
	return strings.TrimRight(c.BaseTopic, "/") + "/json"
}

type TrendsConfig struct {
	MaxPoints    int           `mapstructure:"max_points"`
	DefaultHours int           `mapstructure:"default_hours"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
}

type SandboxConfig struct {
	Timeout  time.Duration `mapstructure:"timeout"`
	MaxRows  int           `mapstructure:"max_rows"`
	MaxChars int           `mapstructure:"max_chars"`
	MaxLines int           `mapstructure:"max_lines"`
	PoolSize int           `mapstructure:"pool_size"`
	Token    string        `mapstructure:"token"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Enabled reports whether a Redis host was configured.
func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

// Addr returns host:port for the redis client.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type MonitoringConfig struct {
	LogLevel string `mapstructure:"log_level"`
}

// Load initializes configuration from environment variables and config file.
// An empty configFile searches ./config for config.yaml.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WEATHERHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	// Load config file if exists
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.cors_origins", []string{"*"})

	// Database defaults
	v.SetDefault("database.path", "data/weather.db")
	v.SetDefault("database.busy_timeout", "5s")

	// MQTT defaults
	v.SetDefault("mqtt.address", ":1883")
	v.SetDefault("mqtt.base_topic", "weather_station")
	v.SetDefault("mqtt.queue_size", 256)

	// Trends defaults
	v.SetDefault("trends.max_points", 600)
	v.SetDefault("trends.default_hours", 24)
	v.SetDefault("trends.cache_ttl", "30s")

	// Sandbox defaults
	v.SetDefault("sandbox.timeout", "500ms")
	v.SetDefault("sandbox.max_rows", 999)
	v.SetDefault("sandbox.max_chars", 10000)
	v.SetDefault("sandbox.max_lines", 200)
	v.SetDefault("sandbox.pool_size", 2)

	// Redis defaults
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	// Monitoring defaults
	v.SetDefault("monitoring.log_level", "info")
}

func validateConfig(config *Config) error {
	if config.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if config.MQTT.BaseTopic == "" {
		return fmt.Errorf("mqtt base topic is required")
	}
	if config.MQTT.QueueSize <= 0 {
		return fmt.Errorf("mqtt queue size must be positive")
	}
	if config.Trends.MaxPoints <= 0 {
		return fmt.Errorf("trends max points must be positive")
	}
	if config.Sandbox.Timeout <= 0 {
		return fmt.Errorf("sandbox timeout must be positive")
	}
	if config.Sandbox.MaxRows <= 0 {
		return fmt.Errorf("sandbox max rows must be positive")
	}
	if config.Sandbox.MaxChars <= 0 || config.Sandbox.MaxLines <= 0 {
		return fmt.Errorf("sandbox size limits must be positive")
	}
	return nil
}

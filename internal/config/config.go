// Package config loads the taskx binary configuration from an optional file
// and TASKX_* environment variables.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "TASKX"

type Config struct {
	Backend     string        `mapstructure:"backend"`
	Queue       string        `mapstructure:"queue"`
	Workers     int           `mapstructure:"workers"`
	WaitTimeout time.Duration `mapstructure:"wait_timeout"`

	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`

	Bolt struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"bolt"`

	HTTP struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"http"`

	Store struct {
		Driver string `mapstructure:"driver"`
		DSN    string `mapstructure:"dsn"`
	} `mapstructure:"store"`

	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`

	Metrics struct {
		Exporter string        `mapstructure:"exporter"`
		Endpoint string        `mapstructure:"endpoint"`
		Interval time.Duration `mapstructure:"interval"`
	} `mapstructure:"metrics"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend", "redis")
	v.SetDefault("queue", "default")
	v.SetDefault("workers", 4)
	v.SetDefault("wait_timeout", 5*time.Second)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("bolt.path", "taskx.db")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("metrics.exporter", "none")
	v.SetDefault("metrics.endpoint", "localhost:4317")
	v.SetDefault("metrics.interval", 30*time.Second)
}

// Load reads path when it is not empty, then applies the environment on
// top of it.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Backend {
	case "redis", "bolt", "memory":
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	switch c.Metrics.Exporter {
	case "none", "stdout", "otlp":
	default:
		return fmt.Errorf("unknown metrics exporter %q", c.Metrics.Exporter)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	return nil
}

// LogLevel maps log.level to a slog level; unknown names mean info.
func (c *Config) LogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

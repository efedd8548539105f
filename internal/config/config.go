// Package config loads docvcs settings from defaults, an optional config file
// and DOCVCS_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. DOCVCS_STORAGE_DRIVER.
const EnvPrefix = "DOCVCS"

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Log     LogConfig     `mapstructure:"log"`
}

type ServerConfig struct {
	GRPCAddr        string        `mapstructure:"grpc_addr"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	MaxMessageBytes int           `mapstructure:"max_message_bytes"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type StorageConfig struct {
	Driver      string        `mapstructure:"driver"`
	Path        string        `mapstructure:"path"`
	Timeout     time.Duration `mapstructure:"timeout"`
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
	ReadConns   int           `mapstructure:"read_conns"`
}

type EngineConfig struct {
	SnapshotInterval int           `mapstructure:"snapshot_interval"`
	CacheSize        int           `mapstructure:"cache_size"`
	Granularity      string        `mapstructure:"granularity"`
	LockTimeout      time.Duration `mapstructure:"lock_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
	Caller bool   `mapstructure:"caller"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.grpc_addr", ":50051")
	v.SetDefault("server.metrics_addr", ":9090")
	v.SetDefault("server.max_message_bytes", 64<<20)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("storage.driver", DriverSQLite)
	v.SetDefault("storage.path", "docvcs.db")
	v.SetDefault("storage.timeout", 5*time.Second)
	v.SetDefault("storage.busy_timeout", 5*time.Second)
	v.SetDefault("storage.read_conns", 4)

	v.SetDefault("engine.snapshot_interval", 32)
	v.SetDefault("engine.cache_size", 1024)
	v.SetDefault("engine.granularity", "line")
	v.SetDefault("engine.lock_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.caller", false)
}

// Load reads configuration into a fresh viper instance. An empty file looks
// for docvcs.{yaml,toml,json} in the working directory and
// $HOME/.config/docvcs; a missing file there is not an error.
func Load(file string) (*Config, error) {
	return LoadWith(viper.New(), file)
}

// LoadWith is Load on a caller-provided viper, so flags can be bound first.
func LoadWith(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	} else {
		v.SetConfigName("docvcs")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/docvcs")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(&c.Server,
		validation.Field(&c.Server.GRPCAddr, validation.Required),
		validation.Field(&c.Server.MaxMessageBytes, validation.Min(0)),
		validation.Field(&c.Server.ShutdownTimeout, validation.Min(time.Duration(0))),
	); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}
	if err := validation.ValidateStruct(&c.Storage,
		validation.Field(&c.Storage.Driver, validation.Required, validation.In(DriverMemory, DriverSQLite)),
		validation.Field(&c.Storage.Path, validation.When(c.Storage.Driver == DriverSQLite, validation.Required)),
		validation.Field(&c.Storage.Timeout, validation.Min(time.Millisecond)),
		validation.Field(&c.Storage.BusyTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.Storage.ReadConns, validation.Min(1)),
	); err != nil {
		return fmt.Errorf("invalid storage config: %w", err)
	}
	if err := validation.ValidateStruct(&c.Engine,
		validation.Field(&c.Engine.SnapshotInterval, validation.Min(1)),
		validation.Field(&c.Engine.CacheSize, validation.Min(1)),
		validation.Field(&c.Engine.Granularity, validation.In("line", "word")),
		validation.Field(&c.Engine.LockTimeout, validation.Min(time.Millisecond)),
	); err != nil {
		return fmt.Errorf("invalid engine config: %w", err)
	}
	if err := validation.ValidateStruct(&c.Log,
		validation.Field(&c.Log.Level, validation.In("debug", "info", "warn", "error")),
	); err != nil {
		return fmt.Errorf("invalid log config: %w", err)
	}
	return nil
}

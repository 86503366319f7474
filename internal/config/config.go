// Package config loads RelayChat's layered configuration in the style of
// the dittofs server: environment variables (RELAYCHAT_*) > YAML config
// file > defaults, via spf13/viper. No CLI flag feeds a config value; the
// only flag, in cmd/relaychatd, names the config file. It is validated with
// go-playground/validator struct tags rather than dittofs's hand-rolled
// Validate function, since wire already exercises that library for the
// same purpose.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr" validate:"required"`
	HealthAddr string `mapstructure:"health_addr" yaml:"health_addr" validate:"required"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`
}

type DatabaseConfig struct {
	// Driver selects the storage adapter: "memory" for the in-process
	// memstore backend, or "mysql" for sqlstore.
	Driver string `mapstructure:"driver" yaml:"driver" validate:"required,oneof=memory mysql"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

type AuthConfig struct {
	// JWTSigningKey verifies bearer tokens issued by the external auth
	// collaborator; RelayChat never issues tokens itself.
	JWTSigningKey string `mapstructure:"jwt_signing_key" yaml:"jwt_signing_key" validate:"required"`
}

type EventConfig struct {
	SubscriberBufferSize int `mapstructure:"subscriber_buffer_size" yaml:"subscriber_buffer_size" validate:"required,gt=0"`
}

type Config struct {
	Server          ServerConfig   `mapstructure:"server" yaml:"server"`
	Logging         LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Database        DatabaseConfig `mapstructure:"database" yaml:"database"`
	Auth            AuthConfig     `mapstructure:"auth" yaml:"auth"`
	Event           EventConfig    `mapstructure:"event" yaml:"event"`
	ShutdownTimeout time.Duration  `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"required,gt=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ApplyDefaults fills in every field Load didn't find in env or the config
// file.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":7000"
	}
	if cfg.Server.HealthAddr == "" {
		cfg.Server.HealthAddr = ":7001"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "memory"
	}
	if cfg.Event.SubscriberBufferSize == 0 {
		cfg.Event.SubscriberBufferSize = 128
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
}

// Validate runs struct-tag validation over a fully defaulted Config.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.Database.Driver == "mysql" && cfg.Database.DSN == "" {
		return fmt.Errorf("config: database.dsn is required when database.driver is mysql")
	}
	return nil
}

// Load reads configuration from RELAYCHAT_* environment variables, the file
// at configPath (if non-empty), and defaults, in that order of precedence,
// then validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RELAYCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range []string{
		"server.listen_addr", "server.health_addr", "logging.level", "logging.format",
		"database.driver", "database.dsn", "auth.jwt_signing_key",
		"event.subscriber_buffer_size", "shutdown_timeout",
	} {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: reading %s: %w", configPath, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

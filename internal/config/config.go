// Package config loads the server and CLI configuration from an optional YAML
// file and CALC_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/liamcoop/calcengine/internal/logger"
)

// EnvPrefix prefixes every environment override, e.g. CALC_SERVER_ADDRESS
const EnvPrefix = "CALC"

// Configuration holds all configuration for the calculation engine.
type Configuration struct {
	Server    ServerConfig   `mapstructure:"server"`
	Database  DatabaseConfig `mapstructure:"database"`
	Templates TemplateConfig `mapstructure:"templates"`
	Logging   logger.Config  `mapstructure:"logging"`
}

// ServerConfig holds HTTP server options
type ServerConfig struct {
	Address              string        `mapstructure:"address"`
	ReadTimeout          time.Duration `mapstructure:"readTimeout"`
	WriteTimeout         time.Duration `mapstructure:"writeTimeout"`
	IdleTimeout          time.Duration `mapstructure:"idleTimeout"`
	RequestTimeout       time.Duration `mapstructure:"requestTimeout"`
	SlowRequestThreshold time.Duration `mapstructure:"slowRequestThreshold"`
	MaxBodyBytes         int64         `mapstructure:"maxBodyBytes"`
}

// DatabaseConfig holds storage options. An empty URL selects the in-memory stores.
type DatabaseConfig struct {
	URL            string `mapstructure:"url"`
	MigrationsPath string `mapstructure:"migrationsPath"`
	MaxOpenConns   int    `mapstructure:"maxOpenConns"`
}

// TemplateConfig holds catalog options
type TemplateConfig struct {
	CacheTTL    time.Duration `mapstructure:"cacheTTL"`
	SeedCatalog bool          `mapstructure:"seedCatalog"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.readTimeout", 15*time.Second)
	v.SetDefault("server.writeTimeout", 15*time.Second)
	v.SetDefault("server.idleTimeout", 60*time.Second)
	v.SetDefault("server.requestTimeout", 30*time.Second)
	v.SetDefault("server.slowRequestThreshold", time.Second)
	v.SetDefault("server.maxBodyBytes", int64(1<<20))

	v.SetDefault("database.url", "")
	v.SetDefault("database.migrationsPath", "file://migrations")
	v.SetDefault("database.maxOpenConns", 10)

	v.SetDefault("templates.cacheTTL", 5*time.Minute)
	v.SetDefault("templates.seedCatalog", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputFile", "")
}

// Load reads the configuration. configPath may be empty, in which case only
// defaults and environment variables apply.
func Load(configPath string) (*Configuration, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configPath, err)
		}
	}

	var conf Configuration
	if err := v.Unmarshal(&conf); err != nil {
		return nil, fmt.Errorf("unable to decode configuration: %w", err)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

// Validate checks values viper cannot type-check
func (c *Configuration) Validate() error {
	var errs []error
	if c.Server.Address == "" {
		errs = append(errs, errors.New("server.address is required"))
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, errors.New("server.requestTimeout must be positive"))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("server.maxBodyBytes must be positive"))
	}
	if c.Templates.CacheTTL < 0 {
		errs = append(errs, errors.New("templates.cacheTTL cannot be negative"))
	}
	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("invalid log format: %s", c.Logging.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

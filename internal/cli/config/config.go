package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// FileName is the config file looked up in the working directory, without
// its extension
const FileName = "uadiscover"

// EnvPrefix prefixes the environment variables overriding config keys.
// log.level is read from UADISCOVER_LOG_LEVEL.
const EnvPrefix = "UADISCOVER"

// Config represents the uadiscover configuration
type Config struct {
	Endpoint  string          `mapstructure:"endpoint"`
	Snapshot  string          `mapstructure:"snapshot"`
	Log       LogConfig       `mapstructure:"log"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Serve     ServeConfig     `mapstructure:"serve"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// DiscoveryConfig represents discovery configuration
type DiscoveryConfig struct {
	Concurrency int  `mapstructure:"concurrency"`
	Verify      bool `mapstructure:"verify"`
}

// ServeConfig represents the inspect server configuration
type ServeConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load loads the configuration from uadiscover.yaml and the environment
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults. Every key needs one so environment overrides reach Unmarshal.
	v.SetDefault("endpoint", "")
	v.SetDefault("snapshot", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("discovery.concurrency", 4)
	v.SetDefault("discovery.verify", true)
	v.SetDefault("serve.addr", "localhost:8480")

	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the configuration after command line overrides
func (c *Config) Validate() error {
	return validateConfig(c)
}

// Logger builds the zap logger described by the log section
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}

	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.Endpoint != "" && cfg.Snapshot != "" {
		return fmt.Errorf("endpoint and snapshot are mutually exclusive")
	}
	if cfg.Endpoint != "" && !strings.HasPrefix(cfg.Endpoint, "opc.tcp://") {
		return fmt.Errorf("endpoint must start with 'opc.tcp://', got: %s", cfg.Endpoint)
	}
	if _, err := zapcore.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if cfg.Discovery.Concurrency < 0 {
		return fmt.Errorf("discovery.concurrency must not be negative, got: %d", cfg.Discovery.Concurrency)
	}
	if cfg.Serve.Addr == "" {
		return fmt.Errorf("serve.addr must not be empty")
	}
	return nil
}

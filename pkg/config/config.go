// Package config loads and validates CloudBox configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (CLOUDBOX_*)
//  2. Configuration file (YAML)
//  3. Default values
//
// Store configuration follows a factory pattern: the store section names
// a type and carries type-specific option maps, and only the section
// matching the selected type is decoded.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete configuration for the cloudbox binaries.
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging"`

	// API describes the remote File/Folder Service the client talks to.
	API APIConfig `mapstructure:"api"`

	// Client tunes the client core: polling cadence and the event relay.
	Client ClientConfig `mapstructure:"client"`

	// Server configures the dev server.
	Server ServerConfig `mapstructure:"server"`

	// Store selects and configures the dev server's backing store.
	Store StoreConfig `mapstructure:"store"`

	// Blob selects where the badger store keeps version payloads.
	Blob BlobConfig `mapstructure:"blob"`

	// Bridge configures the local UI bridge.
	Bridge BridgeConfig `mapstructure:"bridge"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`
}

// APIConfig describes the remote service endpoint.
type APIConfig struct {
	// BaseURL is the root of the REST API, e.g. http://localhost:7500.
	BaseURL string `mapstructure:"base_url" validate:"required,url"`

	// Timeout bounds every request.
	Timeout time.Duration `mapstructure:"timeout" validate:"required,gt=0"`
}

// ClientConfig tunes the client core.
type ClientConfig struct {
	// PollInterval is the listing refresh cadence used as the staleness
	// backstop when bus events cannot arrive.
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"required,gt=0"`

	// RelaySocket is the unix socket path the cross-process event relay
	// binds or dials. Empty disables the relay; the bus degrades to
	// process-local delivery.
	RelaySocket string `mapstructure:"relay_socket"`
}

// ServerConfig configures the dev server.
type ServerConfig struct {
	// Listen is the address the dev server binds, e.g. ":7500".
	Listen string `mapstructure:"listen" validate:"required"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`
}

// StoreConfig selects the store implementation. Only the section
// matching Type is used.
type StoreConfig struct {
	// Type specifies which store implementation to use.
	// Valid values: memory, badger.
	Type string `mapstructure:"type" validate:"required,oneof=memory badger"`

	// Memory contains memory-specific configuration.
	Memory map[string]any `mapstructure:"memory"`

	// Badger contains BadgerDB-specific configuration.
	Badger map[string]any `mapstructure:"badger"`
}

// BlobConfig selects the version-payload store. Only meaningful with
// the badger store; the memory store always keeps payloads in process.
type BlobConfig struct {
	// Type specifies where version payloads live.
	// Valid values: inline (inside the badger database), memory, fs, s3.
	Type string `mapstructure:"type" validate:"required,oneof=inline memory fs s3"`

	// FS contains filesystem-specific configuration.
	FS map[string]any `mapstructure:"fs"`

	// S3 contains S3-specific configuration.
	S3 map[string]any `mapstructure:"s3"`
}

// BridgeConfig configures the local UI bridge.
type BridgeConfig struct {
	// Listen is the loopback address the bridge binds, e.g. "127.0.0.1:7600".
	Listen string `mapstructure:"listen" validate:"required"`

	// AllowedOrigins lists browser origins allowed to call the bridge.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load loads configuration from file, environment, and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures environment variables and config file lookup.
// Environment variables use the CLOUDBOX_ prefix with underscores, e.g.
// CLOUDBOX_LOGGING_LEVEL=DEBUG.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("CLOUDBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. A missing
// file is fine; defaults cover everything.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory path, preferring
// XDG_CONFIG_HOME, then ~/.config, then the current directory.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "cloudbox")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "cloudbox")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified configuration
// fields. Zero values are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyAPIDefaults(&cfg.API)
	applyClientDefaults(&cfg.Client)
	applyServerDefaults(&cfg.Server)
	applyStoreDefaults(&cfg.Store)
	applyBlobDefaults(&cfg.Blob)
	applyBridgeDefaults(&cfg.Bridge)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)
}

func applyAPIDefaults(cfg *APIConfig) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:7500"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
}

func applyClientDefaults(cfg *ClientConfig) {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.RelaySocket == "" {
		cfg.RelaySocket = filepath.Join(os.TempDir(), "cloudbox-events.sock")
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Listen == "" {
		cfg.Listen = ":7500"
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyStoreDefaults(cfg *StoreConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
	if _, ok := cfg.Badger["path"]; !ok {
		cfg.Badger["path"] = filepath.Join(os.TempDir(), "cloudbox-data")
	}
}

func applyBlobDefaults(cfg *BlobConfig) {
	if cfg.Type == "" {
		cfg.Type = "inline"
	}
	if cfg.FS == nil {
		cfg.FS = make(map[string]any)
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}
	if _, ok := cfg.FS["path"]; !ok {
		cfg.FS["path"] = filepath.Join(os.TempDir(), "cloudbox-blobs")
	}
}

func applyBridgeDefaults(cfg *BridgeConfig) {
	if cfg.Listen == "" {
		cfg.Listen = "127.0.0.1:7600"
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"http://localhost:3000"}
	}
}

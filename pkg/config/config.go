// Package config provides configuration management for zstack-ovn-neutron.
//
// This package handles:
// - Configuration file parsing (YAML/JSON)
// - Environment variable overrides
// - Configuration validation
//
// Configuration Priority (highest to lowest):
// 1. Environment variables (ZSTACK_OVN_NEUTRON_*)
// 2. Configuration file
// 3. Default values
//
// Reference: OVN-Kubernetes pkg/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/ovndb"
)

// ConfigFileEnv names the environment variable holding the config file path
const ConfigFileEnv = "ZSTACK_OVN_NEUTRON_CONFIG_FILE"

// Config is the global configuration structure
type Config struct {
	// OVN contains OVN NB database connection settings
	OVN OVNConfig `json:"ovn" yaml:"ovn"`

	// Neutron contains the synchronizer's behavior switches and model store
	Neutron NeutronConfig `json:"neutron" yaml:"neutron"`

	// Logging contains logging configuration
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Metrics contains the metrics endpoint configuration
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// OVNConfig contains OVN database connection settings
type OVNConfig struct {
	// NBDBAddress is the Northbound Database address
	// Format: tcp:IP:PORT, ssl:IP:PORT or unix:PATH, comma-separated for HA
	// Example: "tcp:192.168.1.100:6641"
	NBDBAddress string `json:"nbdbAddress" yaml:"nbdbAddress"`

	// SSL contains SSL/TLS configuration for ssl: endpoints
	SSL SSLConfig `json:"ssl" yaml:"ssl"`

	// ConnectTimeout is the timeout for initial connection
	// Default: 30s
	ConnectTimeout time.Duration `json:"connectTimeout" yaml:"connectTimeout"`

	// ReconnectInterval is the initial interval between reconnection attempts
	// Uses exponential backoff up to MaxReconnectInterval
	// Default: 1s
	ReconnectInterval time.Duration `json:"reconnectInterval" yaml:"reconnectInterval"`

	// MaxReconnectInterval caps the reconnect backoff
	// Default: 60s
	MaxReconnectInterval time.Duration `json:"maxReconnectInterval" yaml:"maxReconnectInterval"`

	// TransactionTimeout bounds each NB transaction
	// Default: 30s
	TransactionTimeout time.Duration `json:"transactionTimeout" yaml:"transactionTimeout"`
}

// SSLConfig contains SSL/TLS configuration
type SSLConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	CACert     string `json:"caCert" yaml:"caCert"`
	ClientCert string `json:"clientCert" yaml:"clientCert"`
	ClientKey  string `json:"clientKey" yaml:"clientKey"`
}

// NeutronConfig contains settings of the Neutron side of the synchronizer
type NeutronConfig struct {
	// L3Mode makes router interface add/remove write Logical Router Ports.
	// When false, routing is left to an external L3 agent and only the
	// model is updated.
	// Default: true
	L3Mode bool `json:"l3Mode" yaml:"l3Mode"`

	// ModelDBPath is the SQLite file of the reference model store
	// Default: /var/lib/zstack-ovn-neutron/model.db
	ModelDBPath string `json:"modelDBPath" yaml:"modelDBPath"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level is the log level: debug, info, warn, error
	// Default: info
	Level string `json:"level" yaml:"level"`

	// Format is the log format: json or console
	// Default: json
	Format string `json:"format" yaml:"format"`

	// File is the log file path (optional)
	// If empty, logs to stderr
	File string `json:"file" yaml:"file"`
}

// MetricsConfig contains the metrics endpoint configuration
type MetricsConfig struct {
	// BindAddress is where serve-metrics listens
	// Default: ":9476"
	BindAddress string `json:"bindAddress" yaml:"bindAddress"`
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		OVN: OVNConfig{
			NBDBAddress:          fmt.Sprintf("tcp:127.0.0.1:%d", 6641),
			ConnectTimeout:       30 * time.Second,
			ReconnectInterval:    1 * time.Second,
			MaxReconnectInterval: 60 * time.Second,
			TransactionTimeout:   30 * time.Second,
		},
		Neutron: NeutronConfig{
			L3Mode:      true,
			ModelDBPath: "/var/lib/zstack-ovn-neutron/model.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			BindAddress: ":9476",
		},
	}
}

// LoadConfig loads configuration from file and environment variables
//
// Configuration is loaded in the following order:
// 1. Default values
// 2. Configuration file (path argument, or ZSTACK_OVN_NEUTRON_CONFIG_FILE)
// 3. Environment variable overrides
//
// Parameters:
//   - path: Configuration file path; may be empty
//
// Returns:
//   - *Config: Loaded configuration
//   - error: Loading or validation error
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = os.Getenv(ConfigFileEnv)
	}
	if path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a YAML or JSON file
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// YAML is a superset of JSON, so this handles both
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// ApplyEnvOverrides applies environment variable overrides to the configuration
//
// Examples:
//   - ZSTACK_OVN_NEUTRON_NBDB_ADDRESS=tcp:192.168.1.100:6641
//   - ZSTACK_OVN_NEUTRON_TRANSACTION_TIMEOUT=10s
//   - ZSTACK_OVN_NEUTRON_L3_MODE=false
//   - ZSTACK_OVN_NEUTRON_MODEL_DB_PATH=/tmp/model.db
//   - ZSTACK_OVN_NEUTRON_LOG_LEVEL=debug
func (c *Config) ApplyEnvOverrides() {
	// OVN settings
	if v := os.Getenv("ZSTACK_OVN_NEUTRON_NBDB_ADDRESS"); v != "" {
		c.OVN.NBDBAddress = v
	}
	if v := os.Getenv("ZSTACK_OVN_NEUTRON_TRANSACTION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.OVN.TransactionTimeout = d
		}
	}

	// SSL settings
	if v := os.Getenv("ZSTACK_OVN_NEUTRON_SSL_ENABLED"); v != "" {
		c.OVN.SSL.Enabled = strings.ToLower(v) == "true"
	}
	if v := os.Getenv("ZSTACK_OVN_NEUTRON_SSL_CA_CERT"); v != "" {
		c.OVN.SSL.CACert = v
	}
	if v := os.Getenv("ZSTACK_OVN_NEUTRON_SSL_CLIENT_CERT"); v != "" {
		c.OVN.SSL.ClientCert = v
	}
	if v := os.Getenv("ZSTACK_OVN_NEUTRON_SSL_CLIENT_KEY"); v != "" {
		c.OVN.SSL.ClientKey = v
	}

	// Neutron settings
	if v := os.Getenv("ZSTACK_OVN_NEUTRON_L3_MODE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Neutron.L3Mode = b
		}
	}
	if v := os.Getenv("ZSTACK_OVN_NEUTRON_MODEL_DB_PATH"); v != "" {
		c.Neutron.ModelDBPath = v
	}

	// Logging settings
	if v := os.Getenv("ZSTACK_OVN_NEUTRON_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("ZSTACK_OVN_NEUTRON_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}

	// Metrics settings
	if v := os.Getenv("ZSTACK_OVN_NEUTRON_METRICS_BIND_ADDRESS"); v != "" {
		c.Metrics.BindAddress = v
	}
}

// Validate validates the configuration and reports every problem at once
func (c *Config) Validate() error {
	var errors []string

	if c.OVN.NBDBAddress == "" {
		errors = append(errors, "nbdbAddress is required")
	} else if err := ovndb.ValidateDBAddress(c.OVN.NBDBAddress); err != nil {
		errors = append(errors, fmt.Sprintf("invalid nbdbAddress: %v", err))
	}
	if c.OVN.TransactionTimeout <= 0 {
		errors = append(errors, "transactionTimeout must be positive")
	}
	if c.OVN.MaxReconnectInterval < c.OVN.ReconnectInterval {
		errors = append(errors, "maxReconnectInterval must not be smaller than reconnectInterval")
	}

	if c.OVN.SSL.Enabled || strings.Contains(c.OVN.NBDBAddress, "ssl:") {
		if c.OVN.SSL.CACert == "" {
			errors = append(errors, "SSL CA certificate path is required for ssl endpoints")
		}
		if c.OVN.SSL.ClientCert == "" {
			errors = append(errors, "SSL client certificate path is required for ssl endpoints")
		}
		if c.OVN.SSL.ClientKey == "" {
			errors = append(errors, "SSL client key path is required for ssl endpoints")
		}
	}

	if c.Neutron.ModelDBPath == "" {
		errors = append(errors, "modelDBPath is required")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		errors = append(errors, fmt.Sprintf("invalid log level: %s (must be 'debug', 'info', 'warn', or 'error')", c.Logging.Level))
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		errors = append(errors, fmt.Sprintf("invalid log format: %s (must be 'json' or 'console')", c.Logging.Format))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// NBClientConfig converts the OVN section into an ovndb client configuration
func (c *Config) NBClientConfig() *ovndb.ClientConfig {
	cc := &ovndb.ClientConfig{
		NBDBAddress:          c.OVN.NBDBAddress,
		ConnectTimeout:       c.OVN.ConnectTimeout,
		ReconnectInterval:    c.OVN.ReconnectInterval,
		MaxReconnectInterval: c.OVN.MaxReconnectInterval,
		TxnTimeout:           c.OVN.TransactionTimeout,
	}
	if c.OVN.SSL.Enabled || strings.Contains(c.OVN.NBDBAddress, "ssl:") {
		cc.SSL = &ovndb.SSLConfig{
			CACert:     c.OVN.SSL.CACert,
			ClientCert: c.OVN.SSL.ClientCert,
			ClientKey:  c.OVN.SSL.ClientKey,
		}
	}
	return cc
}

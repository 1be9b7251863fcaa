// Package config provides tests for configuration management.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// Verify default values
	if cfg.OVN.NBDBAddress != "tcp:127.0.0.1:6641" {
		t.Errorf("expected NB DB address 'tcp:127.0.0.1:6641', got '%s'", cfg.OVN.NBDBAddress)
	}
	if cfg.OVN.TransactionTimeout != 30*time.Second {
		t.Errorf("expected transaction timeout 30s, got %v", cfg.OVN.TransactionTimeout)
	}
	if !cfg.Neutron.L3Mode {
		t.Error("expected l3 mode to be enabled by default")
	}
	if cfg.Neutron.ModelDBPath != "/var/lib/zstack-ovn-neutron/model.db" {
		t.Errorf("expected default model db path, got '%s'", cfg.Neutron.ModelDBPath)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got '%s'", cfg.Logging.Level)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected default config to be valid, got: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	// Create a temporary config file
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	configContent := `
ovn:
  nbdbAddress: "tcp:192.168.1.100:6641,tcp:192.168.1.101:6641"
  transactionTimeout: 10s
  reconnectInterval: 2s
neutron:
  l3Mode: false
  modelDBPath: /tmp/neutron.db
logging:
  level: debug
  format: console
metrics:
  bindAddress: "127.0.0.1:9000"
`
	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg := DefaultConfig()
	if err := cfg.LoadFromFile(configFile); err != nil {
		t.Fatalf("failed to load config file: %v", err)
	}

	// Verify loaded values
	if cfg.OVN.NBDBAddress != "tcp:192.168.1.100:6641,tcp:192.168.1.101:6641" {
		t.Errorf("unexpected NB DB address '%s'", cfg.OVN.NBDBAddress)
	}
	if cfg.OVN.TransactionTimeout != 10*time.Second {
		t.Errorf("expected transaction timeout 10s, got %v", cfg.OVN.TransactionTimeout)
	}
	if cfg.OVN.ReconnectInterval != 2*time.Second {
		t.Errorf("expected reconnect interval 2s, got %v", cfg.OVN.ReconnectInterval)
	}
	// Not in file, keeps the default
	if cfg.OVN.MaxReconnectInterval != 60*time.Second {
		t.Errorf("expected max reconnect interval 60s, got %v", cfg.OVN.MaxReconnectInterval)
	}
	if cfg.Neutron.L3Mode {
		t.Error("expected l3 mode to be disabled")
	}
	if cfg.Neutron.ModelDBPath != "/tmp/neutron.db" {
		t.Errorf("expected model db path '/tmp/neutron.db', got '%s'", cfg.Neutron.ModelDBPath)
	}
	if cfg.Logging.Format != "console" {
		t.Errorf("expected log format 'console', got '%s'", cfg.Logging.Format)
	}
	if cfg.Metrics.BindAddress != "127.0.0.1:9000" {
		t.Errorf("expected metrics bind address '127.0.0.1:9000', got '%s'", cfg.Metrics.BindAddress)
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("ZSTACK_OVN_NEUTRON_NBDB_ADDRESS", "ssl:10.0.0.1:6641")
	t.Setenv("ZSTACK_OVN_NEUTRON_TRANSACTION_TIMEOUT", "5s")
	t.Setenv("ZSTACK_OVN_NEUTRON_SSL_CA_CERT", "/etc/ovn/ca.crt")
	t.Setenv("ZSTACK_OVN_NEUTRON_SSL_CLIENT_CERT", "/etc/ovn/client.crt")
	t.Setenv("ZSTACK_OVN_NEUTRON_SSL_CLIENT_KEY", "/etc/ovn/client.key")
	t.Setenv("ZSTACK_OVN_NEUTRON_L3_MODE", "false")
	t.Setenv("ZSTACK_OVN_NEUTRON_MODEL_DB_PATH", "/data/model.db")
	t.Setenv("ZSTACK_OVN_NEUTRON_LOG_LEVEL", "warn")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	if cfg.OVN.NBDBAddress != "ssl:10.0.0.1:6641" {
		t.Errorf("expected NB DB address 'ssl:10.0.0.1:6641', got '%s'", cfg.OVN.NBDBAddress)
	}
	if cfg.OVN.TransactionTimeout != 5*time.Second {
		t.Errorf("expected transaction timeout 5s, got %v", cfg.OVN.TransactionTimeout)
	}
	if cfg.OVN.SSL.CACert != "/etc/ovn/ca.crt" {
		t.Errorf("expected CA cert '/etc/ovn/ca.crt', got '%s'", cfg.OVN.SSL.CACert)
	}
	if cfg.Neutron.L3Mode {
		t.Error("expected l3 mode to be disabled by env")
	}
	if cfg.Neutron.ModelDBPath != "/data/model.db" {
		t.Errorf("expected model db path '/data/model.db', got '%s'", cfg.Neutron.ModelDBPath)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected log level 'warn', got '%s'", cfg.Logging.Level)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected config to be valid, got: %v", err)
	}

	cc := cfg.NBClientConfig()
	if cc.SSL == nil || cc.SSL.ClientKey != "/etc/ovn/client.key" {
		t.Errorf("expected SSL settings on the client config, got %+v", cc.SSL)
	}
	if cc.TxnTimeout != 5*time.Second {
		t.Errorf("expected client txn timeout 5s, got %v", cc.TxnTimeout)
	}
}

func TestApplyEnvOverridesIgnoresBadValues(t *testing.T) {
	t.Setenv("ZSTACK_OVN_NEUTRON_TRANSACTION_TIMEOUT", "soon")
	t.Setenv("ZSTACK_OVN_NEUTRON_L3_MODE", "maybe")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	if cfg.OVN.TransactionTimeout != 30*time.Second {
		t.Errorf("expected transaction timeout to stay 30s, got %v", cfg.OVN.TransactionTimeout)
	}
	if !cfg.Neutron.L3Mode {
		t.Error("expected l3 mode to stay enabled")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		modify   func(*Config)
		wantErrs []string
	}{
		{
			name:   "valid default",
			modify: func(c *Config) {},
		},
		{
			name:     "missing NB address",
			modify:   func(c *Config) { c.OVN.NBDBAddress = "" },
			wantErrs: []string{"nbdbAddress is required"},
		},
		{
			name:     "bad NB address scheme",
			modify:   func(c *Config) { c.OVN.NBDBAddress = "http://10.0.0.1:6641" },
			wantErrs: []string{"invalid nbdbAddress"},
		},
		{
			name: "ssl address without certificates",
			modify: func(c *Config) {
				c.OVN.NBDBAddress = "ssl:10.0.0.1:6641"
			},
			wantErrs: []string{"CA certificate", "client certificate", "client key"},
		},
		{
			name:     "zero transaction timeout",
			modify:   func(c *Config) { c.OVN.TransactionTimeout = 0 },
			wantErrs: []string{"transactionTimeout must be positive"},
		},
		{
			name: "reconnect bounds inverted",
			modify: func(c *Config) {
				c.OVN.ReconnectInterval = time.Minute
				c.OVN.MaxReconnectInterval = time.Second
			},
			wantErrs: []string{"maxReconnectInterval"},
		},
		{
			name:     "empty model db path",
			modify:   func(c *Config) { c.Neutron.ModelDBPath = "" },
			wantErrs: []string{"modelDBPath is required"},
		},
		{
			name: "all errors reported together",
			modify: func(c *Config) {
				c.Logging.Level = "verbose"
				c.Logging.Format = "text"
			},
			wantErrs: []string{"invalid log level: verbose", "invalid log format: text"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if len(tt.wantErrs) == 0 {
				if err != nil {
					t.Errorf("expected no error, got: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected errors %v, got nil", tt.wantErrs)
			}
			for _, want := range tt.wantErrs {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("expected error to contain %q, got: %v", want, err)
				}
			}
		})
	}
}

func TestLoadConfigFromEnvFile(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configFile, []byte("logging:\n  level: error\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	t.Setenv(ConfigFileEnv, configFile)

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("expected log level 'error', got '%s'", cfg.Logging.Level)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configFile, []byte("ovn:\n  nbdbAddress: \"bogus\"\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	if _, err := LoadConfig(configFile); err == nil {
		t.Error("expected validation error for bogus NB address")
	}
}

// Package ovndb provides the OVN Northbound database connection.
//
// The Client owns a libovsdb client that monitors every table in NBDBModel.
// All lookups are served from the monitor cache; all writes go through
// transactions (see transaction.go).
//
// Reconnection is delegated to libovsdb with an exponential backoff. While the
// client is reconnecting, TransactWithRetry keeps polling until the caller's
// context expires.
package ovndb

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"
	"github.com/ovn-org/libovsdb/client"
	"k8s.io/klog/v2"
)

// Default connection settings
const (
	DefaultConnectTimeout       = 30 * time.Second
	DefaultReconnectInterval    = 1 * time.Second
	DefaultMaxReconnectInterval = 60 * time.Second
	DefaultTxnTimeout           = 30 * time.Second
)

// SSLConfig holds the certificates used for ssl: endpoints
type SSLConfig struct {
	CACert     string
	ClientCert string
	ClientKey  string
}

// ClientConfig contains the settings for connecting to the OVN NB database
type ClientConfig struct {
	// NBDBAddress is the Northbound DB address
	// Format: tcp:IP:PORT, ssl:IP:PORT or unix:PATH
	// Multiple addresses can be specified separated by commas for HA
	NBDBAddress string

	// SSL is required when any endpoint uses the ssl: scheme
	SSL *SSLConfig

	// ConnectTimeout bounds the initial connection and each reconnect attempt
	ConnectTimeout time.Duration

	// ReconnectInterval and MaxReconnectInterval bound the reconnect backoff
	ReconnectInterval    time.Duration
	MaxReconnectInterval time.Duration

	// TxnTimeout bounds every NB transaction
	TxnTimeout time.Duration

	// Logger is handed to libovsdb; optional
	Logger *logr.Logger
}

// Client is a connection to the OVN Northbound database
type Client struct {
	config *ClientConfig

	mu       sync.RWMutex
	nbClient client.Client
}

// NewClient validates the configuration and creates an unconnected Client
//
// Parameters:
//   - config: Connection configuration; zero durations take defaults
//
// Returns:
//   - *Client: Client instance, call Connect before use
//   - error: Configuration validation error
func NewClient(config *ClientConfig) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := ValidateDBAddress(config.NBDBAddress); err != nil {
		return nil, fmt.Errorf("invalid NBDBAddress: %w", err)
	}
	if strings.Contains(config.NBDBAddress, "ssl:") && config.SSL == nil {
		return nil, fmt.Errorf("ssl configuration is required for ssl endpoints")
	}

	cfg := *config
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.ReconnectInterval == 0 {
		cfg.ReconnectInterval = DefaultReconnectInterval
	}
	if cfg.MaxReconnectInterval == 0 {
		cfg.MaxReconnectInterval = DefaultMaxReconnectInterval
	}
	if cfg.TxnTimeout == 0 {
		cfg.TxnTimeout = DefaultTxnTimeout
	}

	return &Client{config: &cfg}, nil
}

// ValidateDBAddress validates an OVN database address list
func ValidateDBAddress(address string) error {
	if address == "" {
		return fmt.Errorf("address is empty")
	}

	for _, addr := range strings.Split(address, ",") {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}

		if !strings.HasPrefix(addr, "tcp:") &&
			!strings.HasPrefix(addr, "ssl:") &&
			!strings.HasPrefix(addr, "unix:") {
			return fmt.Errorf("invalid address scheme: %s (must be tcp:, ssl:, or unix:)", addr)
		}
	}
	return nil
}

// Connect connects to the NB database and starts monitoring all mapped tables
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.nbClient != nil && c.nbClient.Connected() {
		return nil
	}

	dbModel, err := NBDBModel()
	if err != nil {
		return fmt.Errorf("failed to build NB database model: %w", err)
	}

	opts, err := c.clientOptions()
	if err != nil {
		return err
	}

	nb, err := client.NewOVSDBClient(dbModel, opts...)
	if err != nil {
		return NewConnectionError(c.config.NBDBAddress, err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	defer cancel()

	klog.Infof("Connecting to OVN NB database at %s", c.config.NBDBAddress)
	if err := nb.Connect(connectCtx); err != nil {
		return NewConnectionError(c.config.NBDBAddress, err)
	}

	if _, err := nb.MonitorAll(connectCtx); err != nil {
		nb.Close()
		return NewConnectionError(c.config.NBDBAddress, fmt.Errorf("failed to monitor NB tables: %w", err))
	}

	c.nbClient = nb
	klog.Info("Connected to OVN NB database")
	return nil
}

func (c *Client) clientOptions() ([]client.Option, error) {
	var opts []client.Option
	for _, addr := range strings.Split(c.config.NBDBAddress, ",") {
		addr = strings.TrimSpace(addr)
		if addr != "" {
			opts = append(opts, client.WithEndpoint(addr))
		}
	}

	if c.config.SSL != nil {
		tlsConfig, err := buildTLSConfig(c.config.SSL)
		if err != nil {
			return nil, err
		}
		opts = append(opts, client.WithTLSConfig(tlsConfig))
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.config.ReconnectInterval
	b.MaxInterval = c.config.MaxReconnectInterval
	b.MaxElapsedTime = 0
	opts = append(opts, client.WithReconnect(c.config.ConnectTimeout, b))

	if c.config.Logger != nil {
		opts = append(opts, client.WithLogger(c.config.Logger))
	}
	return opts, nil
}

func buildTLSConfig(ssl *SSLConfig) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(ssl.ClientCert, ssl.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load client certificate: %w", err)
	}

	caPEM, err := os.ReadFile(ssl.CACert)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("no certificates found in %s", ssl.CACert)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// NBClient returns the underlying libovsdb client, or nil before Connect
func (c *Client) NBClient() client.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nbClient
}

// GetTxnTimeout returns the timeout applied to each transaction
func (c *Client) GetTxnTimeout() time.Duration {
	return c.config.TxnTimeout
}

// IsConnected reports whether the NB connection is currently up
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nbClient != nil && c.nbClient.Connected()
}

// Close closes the NB connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nbClient != nil {
		c.nbClient.Close()
		c.nbClient = nil
	}
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/config"
	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/logging"
	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/modeldb"
	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/ovn"
	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/ovndb"
)

// rootOptions holds the persistent flags
type rootOptions struct {
	configFile string
	logLevel   string
}

func (o *rootOptions) addFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.configFile, "config", "",
		"Path to configuration file (can also use "+config.ConfigFileEnv+" env var)")
	fs.StringVar(&o.logLevel, "log-level", "",
		"Log level: debug, info, warn, error (overrides the configuration file)")
}

// setup loads the configuration and installs the global logger
func (o *rootOptions) setup() (*config.Config, *logging.Logger, error) {
	cfg, err := config.LoadConfig(o.configFile)
	if err != nil {
		return nil, nil, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	logger, err := logging.NewLogger(logging.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.File,
		AddCaller:  true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logging.SetGlobalLogger(logger)
	return cfg, logger, nil
}

// app is everything a model command needs
type app struct {
	store  *modeldb.Store
	nb     *ovndb.Client
	plugin *ovn.Plugin
	logger *logging.Logger
}

func (o *rootOptions) open(ctx context.Context) (*app, error) {
	cfg, logger, err := o.setup()
	if err != nil {
		return nil, err
	}

	store, err := modeldb.Open(ctx, cfg.Neutron.ModelDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open model store: %w", err)
	}

	clientConfig := cfg.NBClientConfig()
	libovsdbLogger := logger.Logger().WithName("libovsdb")
	clientConfig.Logger = &libovsdbLogger
	nb, err := ovndb.NewClient(clientConfig)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create OVN client: %w", err)
	}
	if err := nb.Connect(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to connect to OVN NB database: %w", err)
	}

	plugin := ovn.NewPlugin(store, ovndb.NewNBStore(nb), ovn.Options{L3Mode: cfg.Neutron.L3Mode})
	return &app{store: store, nb: nb, plugin: plugin, logger: logger}, nil
}

func (a *app) close() {
	a.nb.Close()
	if err := a.store.Close(); err != nil {
		a.logger.Error(err, "Failed to close model store")
	}
	_ = a.logger.Sync()
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// run opens the app, runs fn and prints its result as JSON
func (o *rootOptions) run(cmd *cobra.Command, fn func(ctx context.Context, a *app) (any, error)) error {
	// Arguments parsed; errors from here on are not usage errors
	cmd.SilenceUsage = true

	ctx, cancel := signalContext()
	defer cancel()

	a, err := o.open(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	ctx = logging.IntoContext(ctx, a.logger)
	result, err := fn(ctx, a)
	if err != nil {
		return err
	}
	return printResult(cmd.OutOrStdout(), result)
}

func printResult(w io.Writer, result any) error {
	if result == nil {
		return nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

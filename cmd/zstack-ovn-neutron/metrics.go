package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	crmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/jiayi-1994/zstack-ovn-neutron/pkg/metrics"
)

func newServeMetricsCmd(opts *rootOptions) *cobra.Command {
	var bindAddress string
	cmd := &cobra.Command{
		Use:   "serve-metrics",
		Short: "Serve the metrics registry over HTTP until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			cfg, logger, err := opts.setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			if bindAddress == "" {
				bindAddress = cfg.Metrics.BindAddress
			}

			ctx, cancel := signalContext()
			defer cancel()
			metrics.Register()

			server := &http.Server{
				Addr:              bindAddress,
				Handler:           newMetricsMux(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				logger.Info("Serving metrics", "address", bindAddress)
				errCh <- server.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				return fmt.Errorf("metrics server failed: %w", err)
			case <-ctx.Done():
			}
			logger.Info("Shutting down metrics server")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&bindAddress, "bind-address", "", "Listen address (default: metrics.bindAddress from the configuration)")
	return cmd
}

func newMetricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(crmetrics.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

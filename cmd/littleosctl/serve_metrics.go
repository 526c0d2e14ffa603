package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func newServeMetricsCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve-metrics",
		Short: "Boot the kernel, run the supervisor loop, and serve Prometheus metrics over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			k, err := bootKernel(ctx, cfg)
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			for _, c := range k.sup.Collectors() {
				if err := reg.Register(c); err != nil {
					return fmt.Errorf("register collector: %w", err)
				}
			}

			go k.sup.Run(ctx)

			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			fmt.Printf("serving supervisor metrics on %s/metrics\n", addr)
			return http.ListenAndServe(addr, mux)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":9100", "address to serve /metrics on")
	return cmd
}

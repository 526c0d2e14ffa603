package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/littleos-dev/littleos/internal/sysinfo"
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print the littlefetch-style system summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			k, err := bootKernel(ctx, cfg)
			if err != nil {
				return err
			}

			metrics := k.sup.GetMetrics()
			snap := sysinfo.Collect(metrics.UptimeMs, 133, metrics.TempCelsius, metrics.HealthStatus.String(), k.mem, rootSecurityContext())

			for _, l := range sysinfo.Logo {
				fmt.Println(l)
			}
			for _, l := range snap.Lines() {
				fmt.Println(l)
			}
			return nil
		},
	}
}

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newSupervisorStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "supervisor-status",
		Short: "Boot the kernel, record one heartbeat, and print the supervisor snapshot (no health check runs, so health, heap and temperature keep their initial values)",
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
			k.sup.Heartbeat()

			snap := k.sup.GetMetrics()
			fmt.Printf("health:        %s (flags=0x%02x)\n", snap.HealthStatus, snap.HealthFlags)
			fmt.Printf("uptime_ms:     %d\n", snap.UptimeMs)
			fmt.Printf("watchdog:      feeds=%d\n", snap.WatchdogFeeds)
			fmt.Printf("heap:          used=%d free=%d peak=%d allocations=%d\n",
				snap.HeapUsedBytes, snap.HeapFreeBytes, snap.HeapPeakBytes, snap.HeapAllocations)
			fmt.Printf("temperature:   %.1fC (peak %.1fC)\n", snap.TempCelsius, snap.TempPeakCelsius)
			fmt.Printf("core0:         responsive=%v\n", snap.Core0Responsive)
			fmt.Printf("alerts:        warnings=%d criticals=%d\n", snap.WarningCount, snap.CriticalCount)
			return nil
		},
	}
}

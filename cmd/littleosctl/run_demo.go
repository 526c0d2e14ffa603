package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/littleos-dev/littleos/internal/lfs"
)

func newRunDemoCmd() *cobra.Command {
	var durationMs int
	cmd := &cobra.Command{
		Use:   "run-demo",
		Short: "Boot the kernel and exercise every component end to end for a short, fixed duration",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), time.Duration(durationMs)*time.Millisecond)
			defer cancel()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			k, err := bootKernel(ctx, cfg)
			if err != nil {
				return err
			}
			seedDemoTasks(k.tasks)

			if err := k.kv.Set("boot.mode", "demo"); err != nil {
				return fmt.Errorf("kvstore set: %w", err)
			}
			if err := k.kv.Save(ctx); err != nil {
				return fmt.Errorf("kvstore save: %w", err)
			}

			if err := k.fs.Lock(ctx); err != nil {
				return err
			}
			if err := k.fs.Mkdir(ctx, "/demo"); err != nil {
				k.fs.Unlock()
				return fmt.Errorf("mkdir: %w", err)
			}
			h, err := k.fs.Open(ctx, "/demo/hello.txt", lfs.OReadWrite|lfs.OCreate, lfs.ModeRegular)
			if err != nil {
				k.fs.Unlock()
				return fmt.Errorf("open: %w", err)
			}
			if _, err := h.Write(ctx, []byte("hello from littleosctl run-demo\n")); err != nil {
				k.fs.Unlock()
				return fmt.Errorf("write: %w", err)
			}
			if err := k.fs.Sync(ctx); err != nil {
				k.fs.Unlock()
				return fmt.Errorf("sync: %w", err)
			}
			k.fs.Unlock()

			if err := k.inter.Push(ctx, 0xC0DE); err != nil {
				return fmt.Errorf("fifo push: %w", err)
			}

			result, err := k.bridge.Eval(ctx, "1 + 1")
			if err != nil {
				return fmt.Errorf("eval: %w", err)
			}
			fmt.Printf("eval result: %s\n", result)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return k.sup.Run(gctx) })
			g.Go(func() error { return k.tasks.RunBothCores(gctx, nil) })
			if err := g.Wait(); err != nil && gctx.Err() == nil {
				return err
			}

			msg, err := k.inter.Pop(context.Background())
			if err != nil {
				return fmt.Errorf("fifo pop: %w", err)
			}
			fmt.Printf("fifo delivered: 0x%X\n", msg)

			snap := k.sup.GetMetrics()
			fmt.Printf("final health: %s, watchdog feeds: %d\n", snap.HealthStatus, snap.WatchdogFeeds)
			return nil
		},
	}
	cmd.Flags().IntVar(&durationMs, "duration-ms", 200, "how long to run the simulated boot for")
	return cmd
}
